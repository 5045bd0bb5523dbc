package main

import (
	"context"
	"database/sql"
	"flag"
	"os"

	_ "github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog/log"

	"replydesk/internal/adapters/observability"
	"replydesk/internal/adapters/platforms"
	redisad "replydesk/internal/adapters/redis"
	"replydesk/internal/app"
	"replydesk/internal/domain"
	"replydesk/internal/shared"
	mysqlrepo "replydesk/internal/storage/mysql"
)

// One-shot sync run for container schedulers. Exits non-zero when the
// run had errors so the scheduler can alert on it.
func main() {
	var (
		businessID = flag.Int64("business", 0, "sync a single business instead of all")
		platform   = flag.String("platform", "", "restrict to one platform (google|instagram|facebook|tiktok)")
	)
	flag.Parse()

	ctx := context.Background()
	cfg := shared.Load()

	log.Logger = observability.NewLogger(cfg.AppEnv)

	log.Info().
		Dur("pacing", cfg.BusinessPacing).
		Dur("timeout", cfg.BusinessTimeout).
		Int("page_limit", cfg.PageLimit).
		Msg("syncer starting")

	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("sql.Open failed")
	}
	if err := db.Ping(); err != nil {
		log.Fatal().Err(err).Msg("db.Ping failed")
	}
	log.Info().Msg("db ping ok")

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

	var sum domain.RunSummary
	if *businessID > 0 {
		var only *domain.Platform
		if *platform != "" {
			p := domain.Platform(*platform)
			if !p.Valid() {
				log.Fatal().Str("platform", *platform).Msg("unknown platform")
			}
			only = &p
		}
		sum = cron.RunScoped(ctx, *businessID, only)
	} else {
		sum = cron.RunAll(ctx)
	}

	log.Info().
		Str("run_id", sum.RunID).
		Int("businesses", sum.BusinessesProcessed).
		Int("new", sum.TotalNew).
		Int("published", sum.TotalPublished).
		Int("errors", sum.Errors).
		Dur("took", sum.Duration).
		Msg("sync completed")

	if !sum.Success {
		os.Exit(1)
	}
}
