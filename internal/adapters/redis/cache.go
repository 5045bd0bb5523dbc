// Package redisad is the Redis side of the listing cache. Values are opaque
// JSON blobs keyed by the query service; the adapter only marshals, expires,
// and counts, it knows nothing about review pages.
package redisad

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"replydesk/internal/adapters/observability"
)

type Cache struct {
	rdb *redis.Client
}

func New(addr, pass string, db int) *Cache {
	return &Cache{rdb: redis.NewClient(&redis.Options{Addr: addr, Password: pass, DB: db})}
}

// Get unmarshals the stored blob into dst. A missing key is (false, nil),
// never an error; callers fall through to the repository.
func (c *Cache) Get(ctx context.Context, key string, dst any) (bool, error) {
	b, err := c.rdb.Get(ctx, key).Bytes()
	if err == redis.Nil {
		observability.ObserveCache("redis", "miss")
		return false, nil
	}
	if err != nil {
		return false, err
	}
	observability.ObserveCache("redis", "hit")
	return true, json.Unmarshal(b, dst)
}

// Set writes v as JSON with a TTL in whole seconds.
func (c *Cache) Set(ctx context.Context, key string, v any, ttlSec int) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	observability.ObserveCache("redis", "set")
	return c.rdb.Set(ctx, key, b, time.Duration(ttlSec)*time.Second).Err()
}

func (c *Cache) Del(ctx context.Context, key string) error {
	observability.ObserveCache("redis", "del")
	return c.rdb.Del(ctx, key).Err()
}
