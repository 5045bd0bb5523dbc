package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"replydesk/internal/adapters/observability"
	"replydesk/internal/domain"
)

// AdapterRegistry resolves platform adapters; satisfied by platforms.Registry.
type AdapterRegistry interface {
	Get(p domain.Platform) (domain.PlatformAdapter, bool)
}

// SyncService runs one (business, platform) sync and the business-level
// fan-out. Platform failures are values, never panics or aborts: each
// platform reports its own PlatformResult and the repository's idempotent
// upsert makes concurrent platform syncs safe without app-level locks.
type SyncService struct {
	repo      domain.ReviewRepository
	adapters  AdapterRegistry
	publisher *Publisher
	cache     domain.Cache
	timeout   time.Duration
}

func NewSyncService(repo domain.ReviewRepository, adapters AdapterRegistry, pub *Publisher, cache domain.Cache, timeout time.Duration) *SyncService {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &SyncService{repo: repo, adapters: adapters, publisher: pub, cache: cache, timeout: timeout}
}

// SyncPlatform pulls one bounded page run for a single connection and upserts
// the results. The connection's stored cursor makes consecutive runs resume
// where the previous one stopped.
func (s *SyncService) SyncPlatform(ctx context.Context, conn domain.PlatformConnection) domain.PlatformResult {
	res := domain.PlatformResult{Platform: conn.Platform}

	ad, ok := s.adapters.Get(conn.Platform)
	if !ok {
		res.Error = fmt.Sprintf("no adapter for platform %q", conn.Platform)
		observability.ObserveSync(string(conn.Platform), false, 0)
		return res
	}

	cursor := deref(conn.LastCursor)
	fetched, err := ad.FetchReviews(ctx, conn, cursor)
	if err != nil {
		res.Error = err.Error()
		observability.ObserveSync(string(conn.Platform), false, 0)
		return res
	}

	for _, raw := range fetched.Reviews {
		if raw.ExternalID == "" {
			log.Warn().
				Str("platform", string(conn.Platform)).
				Int64("business", conn.BusinessID).
				Msg("skipping review without external id")
			continue
		}
		created, err := s.repo.UpsertReview(ctx, mapRawReview(conn.BusinessID, conn.Platform, raw))
		if err != nil {
			res.Error = fmt.Sprintf("upsert %s: %v", raw.ExternalID, err)
			observability.ObserveSync(string(conn.Platform), false, res.NewCount)
			return res
		}
		if created {
			res.NewCount++
		}
	}

	if err := s.repo.SaveConnectionCursor(ctx, conn.ID, fetched.NextCursor); err != nil {
		// non-fatal: the next run re-fetches a page it has already seen,
		// which the upsert dedups
		log.Warn().Err(err).Int64("connection", conn.ID).Msg("cursor not saved")
	}

	res.Success = true
	observability.ObserveSync(string(conn.Platform), true, res.NewCount)
	return res
}

// SyncBusiness fans platform syncs out concurrently, joins their results, and
// appends one SyncLog row. Only a failure to enumerate connections is fatal;
// everything platform-level ends up inside the per-platform results.
func (s *SyncService) SyncBusiness(ctx context.Context, businessID int64, only *domain.Platform) (domain.BusinessSyncResult, error) {
	started := time.Now().UTC()
	out := domain.BusinessSyncResult{BusinessID: businessID}

	conns, err := s.repo.ListConnections(ctx, businessID)
	if err != nil {
		return out, fmt.Errorf("list connections for business %d: %w", businessID, err)
	}
	if only != nil {
		filtered := conns[:0]
		for _, c := range conns {
			if c.Platform == *only {
				filtered = append(filtered, c)
			}
		}
		conns = filtered
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	// fan-out; independent third parties, so their rate limits don't interact
	results := make([]domain.PlatformResult, len(conns))
	sem := semaphore.NewWeighted(int64(len(domainPlatforms)))
	var wg sync.WaitGroup
	for i, conn := range conns {
		i, conn := i, conn
		if err := sem.Acquire(ctx, 1); err != nil {
			results[i] = domain.PlatformResult{Platform: conn.Platform, Error: err.Error()}
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)
			results[i] = s.SyncPlatform(ctx, conn)
		}()
	}
	wg.Wait()

	// fan-in: fold the joined results into one immutable aggregate
	out.PerPlatform = results
	for _, r := range results {
		out.TotalNew += r.NewCount
		out.TotalPublished += r.Published
	}

	if out.TotalNew > 0 {
		s.invalidateListings(ctx, businessID)
	}

	s.autoPublish(ctx, businessID, &out)
	s.recordLog(ctx, businessID, started, out)
	return out, nil
}

// autoPublish is the scheduled publish pass for auto-approve businesses: any
// review already approved with a stored draft goes out through the same
// status-guarded publisher as a manual approval.
func (s *SyncService) autoPublish(ctx context.Context, businessID int64, out *domain.BusinessSyncResult) {
	if s.publisher == nil {
		return
	}
	biz, err := s.repo.GetBusiness(ctx, businessID)
	if err != nil || biz.ResponseMode != domain.ResponseAuto {
		return
	}
	approved, err := s.repo.ListByStatus(ctx, businessID, domain.StatusApproved, nil)
	if err != nil {
		log.Warn().Err(err).Int64("business", businessID).Msg("auto publish pass skipped")
		return
	}
	for _, rv := range approved {
		if rv.DraftResponse == nil {
			continue
		}
		outc, err := s.publisher.Publish(ctx, rv.ID, *rv.DraftResponse)
		if err != nil {
			log.Warn().Err(err).Int64("review", rv.ID).Msg("auto publish failed")
			continue
		}
		if outc.Published {
			out.TotalPublished++
			for i := range out.PerPlatform {
				if out.PerPlatform[i].Platform == rv.Platform {
					out.PerPlatform[i].Published++
				}
			}
		}
	}
}

func (s *SyncService) recordLog(ctx context.Context, businessID int64, started time.Time, out domain.BusinessSyncResult) {
	success := true
	var errText *string
	for _, r := range out.PerPlatform {
		if !r.Success {
			success = false
			e := r.Error
			if errText == nil {
				errText = &e
			}
		}
	}
	entry := domain.SyncLog{
		ID:             uuid.NewString(),
		BusinessID:     businessID,
		StartedAt:      started,
		FinishedAt:     time.Now().UTC(),
		Success:        success,
		TotalNew:       out.TotalNew,
		TotalPublished: out.TotalPublished,
		Error:          errText,
		Results:        out.PerPlatform,
	}
	if err := s.repo.RecordSyncLog(ctx, entry); err != nil {
		log.Error().Err(err).Int64("business", businessID).Msg("sync log not recorded")
	}
}

var domainPlatforms = []domain.Platform{
	domain.PlatformGoogle, domain.PlatformInstagram,
	domain.PlatformFacebook, domain.PlatformTikTok,
}

// invalidateListings evicts the default listing variants served by the query
// service; rarer filter combinations just age out with the TTL.
func (s *SyncService) invalidateListings(ctx context.Context, businessID int64) {
	if s.cache == nil {
		return
	}
	_ = s.cache.Del(ctx, listKey(domain.ReviewsQuery{BusinessID: businessID, Page: 1, PageSize: 50}))
	for _, p := range domainPlatforms {
		p := p
		_ = s.cache.Del(ctx, listKey(domain.ReviewsQuery{BusinessID: businessID, Platform: &p, Page: 1, PageSize: 50}))
	}
}
