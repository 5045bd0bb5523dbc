// Package platforms holds one adapter per review platform. Adapters normalize
// platform-specific paged responses into domain.RawReview and publish replies
// where the platform has a write API; nothing platform-shaped leaks past this
// package.
package platforms

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"replydesk/internal/domain"
)

// TokenStore persists refreshed credentials so the next run starts with a
// valid token. Satisfied by the mysql repository.
type TokenStore interface {
	SaveConnectionToken(ctx context.Context, connID int64, access string, refresh *string, expiry *time.Time) error
}

// Registry resolves the adapter for a platform.
type Registry struct {
	adapters map[domain.Platform]domain.PlatformAdapter
}

func NewRegistry(ads ...domain.PlatformAdapter) *Registry {
	m := make(map[domain.Platform]domain.PlatformAdapter, len(ads))
	for _, a := range ads {
		m[a.Platform()] = a
	}
	return &Registry{adapters: m}
}

func (r *Registry) Get(p domain.Platform) (domain.PlatformAdapter, bool) {
	a, ok := r.adapters[p]
	return a, ok
}

// refreshed is the outcome of one token refresh.
type refreshed struct {
	access  string
	refresh *string
	expiry  *time.Time
}

type refreshFunc func(ctx context.Context, conn domain.PlatformConnection) (refreshed, error)

// withAuthRetry runs fn with the connection's token; on an auth failure with
// a refresh token present it refreshes once, persists the new token, and
// retries the single call. A second auth failure surfaces as a permanent
// connection error for this run.
func withAuthRetry(ctx context.Context, conn domain.PlatformConnection, tokens TokenStore, refresh refreshFunc, fn func(token string) error) error {
	err := fn(conn.AccessToken)
	if !errors.Is(err, domain.ErrAuth) {
		return err
	}
	if conn.RefreshToken == nil || *conn.RefreshToken == "" || refresh == nil {
		return err
	}

	nt, rerr := refresh(ctx, conn)
	if rerr != nil {
		return fmt.Errorf("%w: refresh failed: %v", domain.ErrAuth, rerr)
	}
	if tokens != nil {
		if serr := tokens.SaveConnectionToken(ctx, conn.ID, nt.access, nt.refresh, nt.expiry); serr != nil {
			log.Warn().Err(serr).
				Int64("connection", conn.ID).
				Str("platform", string(conn.Platform)).
				Msg("refreshed token not persisted")
		}
	}
	return fn(nt.access)
}
