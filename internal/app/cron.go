package app

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"replydesk/internal/domain"
)

// Cron is the top-level scheduled entry point: every active business in turn,
// with pacing between them so shared platform rate limits never see a burst.
// A business failing is an entry in the summary, never an aborted run.
type Cron struct {
	repo   domain.ReviewRepository
	sync   *SyncService
	pacing time.Duration
}

func NewCron(repo domain.ReviewRepository, sync *SyncService, pacing time.Duration) *Cron {
	if pacing <= 0 {
		pacing = time.Second
	}
	return &Cron{repo: repo, sync: sync, pacing: pacing}
}

// RunAll syncs every active business sequentially and reduces the per-business
// results into one terminal summary.
func (c *Cron) RunAll(ctx context.Context) domain.RunSummary {
	start := time.Now()
	sum := domain.RunSummary{RunID: uuid.NewString(), Success: true}

	businesses, err := c.repo.ListActiveBusinesses(ctx)
	if err != nil {
		log.Error().Err(err).Msg("cron: listing businesses failed")
		sum.Success = false
		sum.Errors = 1
		sum.Duration = time.Since(start)
		return sum
	}

	log.Info().Str("run", sum.RunID).Int("businesses", len(businesses)).Msg("sync run starting")
	for i, biz := range businesses {
		if i > 0 && !sleepCtx(ctx, c.pacing) {
			log.Warn().Str("run", sum.RunID).Msg("sync run cancelled mid-batch")
			sum.Success = false
			break
		}
		c.runOne(ctx, biz.ID, nil, &sum)
	}

	sum.Duration = time.Since(start)
	log.Info().
		Str("run", sum.RunID).
		Int("processed", sum.BusinessesProcessed).
		Int("new", sum.TotalNew).
		Int("published", sum.TotalPublished).
		Int("errors", sum.Errors).
		Dur("duration", sum.Duration).
		Msg("sync run finished")
	return sum
}

// RunScoped limits a run to one business, and optionally one platform, with
// semantics otherwise identical to a scheduled tick.
func (c *Cron) RunScoped(ctx context.Context, businessID int64, platform *domain.Platform) domain.RunSummary {
	start := time.Now()
	sum := domain.RunSummary{RunID: uuid.NewString(), Success: true}
	c.runOne(ctx, businessID, platform, &sum)
	sum.Duration = time.Since(start)
	return sum
}

func (c *Cron) runOne(ctx context.Context, businessID int64, platform *domain.Platform, sum *domain.RunSummary) {
	res, err := c.sync.SyncBusiness(ctx, businessID, platform)
	sum.BusinessesProcessed++
	if err != nil {
		log.Error().Err(err).Int64("business", businessID).Msg("business sync failed")
		res = domain.BusinessSyncResult{BusinessID: businessID, Error: err.Error()}
		sum.Errors++
		sum.Success = false
	} else {
		for _, pr := range res.PerPlatform {
			if !pr.Success {
				sum.Errors++
			}
		}
	}
	sum.TotalNew += res.TotalNew
	sum.TotalPublished += res.TotalPublished
	sum.Results = append(sum.Results, res)
}

// sleepCtx waits for d or returns early if ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
