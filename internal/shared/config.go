package shared

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

type Config struct {
	AppEnv      string
	HTTPAddr    string
	MetricsAddr string
	MySQLDSN    string
	RedisAddr   string
	RedisDB     int
	RedisPass   string

	CronSecret      string
	SyncInterval    time.Duration // 0 disables the in-process scheduler
	BusinessPacing  time.Duration // sleep between businesses in one run
	BusinessTimeout time.Duration // hard cap per business sync
	PageLimit       int           // max reviews an adapter fetches per run

	GoogleClientID     string
	GoogleClientSecret string
	MetaAppID          string
	MetaAppSecret      string
	TikTokClientKey    string

	PlatformRPS int
	CacheTTL    time.Duration
}

func Load() Config {
	// best effort; production sets real env vars
	_ = godotenv.Load()

	atoi := func(k string, def int) int {
		if v := os.Getenv(k); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				return n
			}
		}
		return def
	}
	c := Config{
		AppEnv:      env("APP_ENV", "prod"),
		HTTPAddr:    env("HTTP_ADDR", ":8080"),
		MetricsAddr: env("METRICS_ADDR", ""),
		MySQLDSN:    env("MYSQL_DSN", "root:root@tcp(localhost:3306)/replydesk?parseTime=true&charset=utf8mb4,utf8&loc=UTC"),
		RedisAddr:   env("REDIS_ADDR", "localhost:6379"),
		RedisPass:   env("REDIS_PASSWORD", ""),
		RedisDB:     atoi("REDIS_DB", 0),

		CronSecret:      env("CRON_SECRET", ""),
		SyncInterval:    time.Duration(atoi("SYNC_INTERVAL_MINUTES", 15)) * time.Minute,
		BusinessPacing:  time.Duration(atoi("BUSINESS_PACING_MS", 1000)) * time.Millisecond,
		BusinessTimeout: time.Duration(atoi("BUSINESS_TIMEOUT_SECONDS", 120)) * time.Second,
		PageLimit:       atoi("SYNC_PAGE_LIMIT", 50),

		GoogleClientID:     env("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret: env("GOOGLE_CLIENT_SECRET", ""),
		MetaAppID:          env("META_APP_ID", ""),
		MetaAppSecret:      env("META_APP_SECRET", ""),
		TikTokClientKey:    env("TIKTOK_CLIENT_KEY", ""),

		PlatformRPS: atoi("PLATFORM_RPS", 5),
		CacheTTL:    time.Duration(atoi("CACHE_TTL_SECONDS", 300)) * time.Second,
	}
	if c.CronSecret == "" {
		log.Warn().Msg("CRON_SECRET is empty; /sync accepts scheduler headers only")
	}
	return c
}

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
