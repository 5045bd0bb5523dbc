package main

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog/log"

	server "replydesk/internal/adapters/http_server"
	"replydesk/internal/adapters/observability"
	"replydesk/internal/adapters/platforms"
	redisad "replydesk/internal/adapters/redis"
	"replydesk/internal/app"
	"replydesk/internal/shared"
	mysqlrepo "replydesk/internal/storage/mysql"
)

func main() {
	cfg := shared.Load()

	// set global logger (console in dev, JSON otherwise)
	log.Logger = observability.NewLogger(cfg.AppEnv)

	observability.Serve(cfg.MetricsAddr)

	// db
	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("sql.Open failed")
	}
	if err := db.Ping(); err != nil {
		log.Fatal().Err(err).Msg("db.Ping failed")
	}
	log.Info().Msg("database connection ok")

	// deps
	repo := mysqlrepo.New(db)
	cache := redisad.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)

	adapters := platforms.NewRegistry(
		platforms.NewGoogle(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.PageLimit, cfg.PlatformRPS, repo),
		platforms.NewFacebook(cfg.MetaAppID, cfg.MetaAppSecret, cfg.PageLimit, cfg.PlatformRPS, repo),
		platforms.NewInstagram(cfg.MetaAppID, cfg.MetaAppSecret, cfg.PageLimit, cfg.PlatformRPS, repo),
		platforms.NewTikTok(cfg.TikTokClientKey, cfg.PageLimit, cfg.PlatformRPS, repo),
	)

	pub := app.NewPublisher(repo, adapters)
	syncSvc := app.NewSyncService(repo, adapters, pub, cache, cfg.BusinessTimeout)
	cron := app.NewCron(repo, syncSvc, cfg.BusinessPacing)
	q := app.NewQueryService(repo, cache, cfg.CacheTTL)

	// in-process scheduler; an external cron can hit /sync instead
	if cfg.SyncInterval > 0 {
		go runScheduler(context.Background(), cron, cfg.SyncInterval)
	}

	// http
	srv := server.New()
	srv.Mount("/metrics", observability.Handler())
	srv.MountHandlers(&server.Handlers{Q: q, Pub: pub, Cron: cron, CronSecret: cfg.CronSecret})

	log.Info().Str("addr", cfg.HTTPAddr).Msg("API listening")
	httpSrv := &http.Server{Addr: cfg.HTTPAddr, Handler: srv.Mux()}

	if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("http server failed")
	}
}

func runScheduler(ctx context.Context, cron *app.Cron, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			sum := cron.RunAll(ctx)
			log.Info().
				Str("run_id", sum.RunID).
				Int("businesses", sum.BusinessesProcessed).
				Int("new", sum.TotalNew).
				Int("published", sum.TotalPublished).
				Int("errors", sum.Errors).
				Msg("scheduled sync finished")
		}
	}
}
