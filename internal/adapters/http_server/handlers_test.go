package httpserver_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	server "replydesk/internal/adapters/http_server"
	"replydesk/internal/app"
	"replydesk/internal/domain"
)

// ---- fakes ----

// stubRepo is a single-review ReviewRepository with hooks that capture the
// request context handlers pass down, so tests can inspect its deadline.
type stubRepo struct {
	review  domain.Review
	sawSync func(ctx context.Context)
	sawList func(ctx context.Context)
}

func (s *stubRepo) UpsertReview(ctx context.Context, rv domain.Review) (bool, error) {
	return false, nil
}

func (s *stubRepo) TransitionStatus(ctx context.Context, reviewID int64, from, to domain.ReviewStatus, extra domain.TransitionExtra) error {
	if !domain.CanTransition(from, to) {
		return domain.ErrIllegalTransition
	}
	if reviewID != s.review.ID {
		return domain.ErrNotFound
	}
	if s.review.Status != from {
		return domain.ErrStaleTransition
	}
	s.review.Status = to
	if extra.DraftResponse != nil {
		s.review.DraftResponse = extra.DraftResponse
	}
	return nil
}

func (s *stubRepo) MarkPublishFailed(ctx context.Context, reviewID int64, errText string) error {
	return nil
}

func (s *stubRepo) RecordSyncLog(ctx context.Context, entry domain.SyncLog) error { return nil }

func (s *stubRepo) UpsertConnection(ctx context.Context, conn domain.PlatformConnection) error {
	return nil
}

func (s *stubRepo) SaveConnectionToken(ctx context.Context, connID int64, access string, refresh *string, expiry *time.Time) error {
	return nil
}

func (s *stubRepo) SaveConnectionCursor(ctx context.Context, connID int64, cursor string) error {
	return nil
}

func (s *stubRepo) GetReview(ctx context.Context, id int64) (domain.Review, error) {
	if id != s.review.ID {
		return domain.Review{}, domain.ErrNotFound
	}
	return s.review, nil
}

func (s *stubRepo) ListReviews(ctx context.Context, q domain.ReviewsQuery) (domain.ReviewsPage, error) {
	if s.sawList != nil {
		s.sawList(ctx)
	}
	return domain.ReviewsPage{Page: q.Page, PageSize: q.PageSize}, nil
}

func (s *stubRepo) ListByStatus(ctx context.Context, businessID int64, status domain.ReviewStatus, platform *domain.Platform) ([]domain.Review, error) {
	return nil, nil
}

func (s *stubRepo) GetBusiness(ctx context.Context, id int64) (domain.Business, error) {
	return domain.Business{}, domain.ErrNotFound
}

func (s *stubRepo) ListActiveBusinesses(ctx context.Context) ([]domain.Business, error) {
	if s.sawSync != nil {
		s.sawSync(ctx)
	}
	return nil, nil
}

func (s *stubRepo) ListConnections(ctx context.Context, businessID int64) ([]domain.PlatformConnection, error) {
	return nil, nil
}

// delCache records evictions; gets always miss.
type delCache struct {
	dels []string
}

func (c *delCache) Get(ctx context.Context, key string, dst any) (bool, error) { return false, nil }
func (c *delCache) Set(ctx context.Context, key string, v any, ttlSec int) error {
	return nil
}
func (c *delCache) Del(ctx context.Context, key string) error {
	c.dels = append(c.dels, key)
	return nil
}

type noAdapters struct{}

func (noAdapters) Get(p domain.Platform) (domain.PlatformAdapter, bool) { return nil, false }

const testCronSecret = "cron-secret"

func newTestServer(repo *stubRepo, cache *delCache) *server.Server {
	pub := app.NewPublisher(repo, noAdapters{})
	syncSvc := app.NewSyncService(repo, noAdapters{}, pub, nil, time.Minute)
	cron := app.NewCron(repo, syncSvc, time.Millisecond)
	q := app.NewQueryService(repo, cache, time.Minute)

	srv := server.New()
	srv.MountHandlers(&server.Handlers{Q: q, Pub: pub, Cron: cron, CronSecret: testCronSecret})
	return srv
}

// ---- tests ----

func TestSyncTriggerRunsWithoutRequestDeadline(t *testing.T) {
	var deadlined, seen bool
	repo := &stubRepo{sawSync: func(ctx context.Context) {
		seen = true
		_, deadlined = ctx.Deadline()
	}}
	srv := newTestServer(repo, &delCache{})

	req := httptest.NewRequest("GET", "/sync", nil)
	req.Header.Set("Authorization", "Bearer "+testCronSecret)
	rr := httptest.NewRecorder()
	srv.Mux().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("sync status: %d (%s)", rr.Code, rr.Body.String())
	}
	if !seen {
		t.Fatal("run never reached the repository")
	}
	// a run's budget is the per-business timeout, not a request timeout; a
	// wrapped request context would cut a healthy batch off mid-run
	if deadlined {
		t.Fatal("sync request context carries a deadline")
	}
}

func TestReviewRoutesRunWithRequestDeadline(t *testing.T) {
	var deadlined, seen bool
	repo := &stubRepo{sawList: func(ctx context.Context) {
		seen = true
		_, deadlined = ctx.Deadline()
	}}
	srv := newTestServer(repo, &delCache{})

	req := httptest.NewRequest("GET", "/reviews?businessId=1", nil)
	rr := httptest.NewRecorder()
	srv.Mux().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("list status: %d (%s)", rr.Code, rr.Body.String())
	}
	if !seen {
		t.Fatal("listing never reached the repository")
	}
	if !deadlined {
		t.Fatal("review request context has no deadline")
	}
}

func TestApproveEvictsCachedListings(t *testing.T) {
	repo := &stubRepo{review: domain.Review{
		ID: 5, BusinessID: 9,
		Platform: domain.PlatformGoogle,
		Status:   domain.StatusPending,
	}}
	cache := &delCache{}
	srv := newTestServer(repo, cache)

	req := httptest.NewRequest("POST", "/reviews/5/approve", strings.NewReader(`{}`))
	rr := httptest.NewRecorder()
	srv.Mux().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("approve status: %d (%s)", rr.Code, rr.Body.String())
	}
	if repo.review.Status != domain.StatusApproved {
		t.Fatalf("review not approved: %s", repo.review.Status)
	}
	// the default variant and the review's platform variant must be dropped,
	// or the dashboard keeps serving the pre-approval status for a full TTL
	if len(cache.dels) != 2 {
		t.Fatalf("expected 2 evictions, got %v", cache.dels)
	}
	for _, key := range cache.dels {
		if !strings.HasPrefix(key, "reviews:9:") {
			t.Fatalf("eviction for the wrong business: %q", key)
		}
	}
}

func TestRejectEvictsCachedListings(t *testing.T) {
	repo := &stubRepo{review: domain.Review{
		ID: 7, BusinessID: 3,
		Platform: domain.PlatformFacebook,
		Status:   domain.StatusAIGenerated,
	}}
	cache := &delCache{}
	srv := newTestServer(repo, cache)

	req := httptest.NewRequest("POST", "/reviews/7/reject", nil)
	rr := httptest.NewRecorder()
	srv.Mux().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("reject status: %d (%s)", rr.Code, rr.Body.String())
	}
	if len(cache.dels) != 2 {
		t.Fatalf("expected 2 evictions, got %v", cache.dels)
	}
}
