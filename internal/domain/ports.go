package domain

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrAuth marks an expired/revoked connection; permanent for the run.
	ErrAuth = errors.New("connection auth failed")
	// ErrUnavailable marks a transient upstream failure (timeout, 5xx).
	ErrUnavailable = errors.New("platform unavailable")
	// ErrStaleTransition is returned when the persisted status no longer
	// matches the expected "from" status of a transition.
	ErrStaleTransition = errors.New("stale status transition")
	// ErrIllegalTransition is returned for a from -> to pair outside the
	// state machine, before any storage round-trip.
	ErrIllegalTransition = errors.New("illegal status transition")
)

// PlatformAdapter translates one third-party review API into the normalized
// model. Pagination cursors are opaque to callers; the adapter decides when a
// run has fetched enough. Token refresh is the adapter's job: one refresh and
// one retry on an auth failure, then ErrAuth.
type PlatformAdapter interface {
	Platform() Platform
	// CanPublish advertises reply support; platforms without a write API
	// report false instead of failing at publish time.
	CanPublish() bool
	FetchReviews(ctx context.Context, conn PlatformConnection, cursor string) (FetchResult, error)
	PublishReply(ctx context.Context, conn PlatformConnection, externalID, text string) error
}

// TransitionExtra carries the mutable fields a status transition may set.
type TransitionExtra struct {
	DraftResponse *string
	FinalResponse *string
	RespondedAt   *time.Time
	PublishError  *string
}

type ReviewsQuery struct {
	BusinessID int64
	Platform   *Platform
	Status     *ReviewStatus
	MinRating  *float64
	MaxRating  *float64
	Page       int
	PageSize   int
}

type ReviewsPage struct {
	Items    []Review
	Total    int
	Page     int
	PageSize int
}

type ReviewRepository interface {
	// Write paths
	// UpsertReview inserts on first sight of the natural key; on conflict it
	// refreshes platform-supplied fields only and never regresses a
	// non-pending status. Reports whether a new row was created.
	UpsertReview(ctx context.Context, rv Review) (bool, error)
	// TransitionStatus performs the optimistic from-check write; returns
	// ErrStaleTransition when the persisted status is not "from".
	TransitionStatus(ctx context.Context, reviewID int64, from, to ReviewStatus, extra TransitionExtra) error
	// MarkPublishFailed is the publisher's compensation path: it demotes a
	// claimed-but-unwritten publish back to failed. Only the claim holder
	// calls it; it is not part of the public transition set.
	MarkPublishFailed(ctx context.Context, reviewID int64, errText string) error
	RecordSyncLog(ctx context.Context, entry SyncLog) error
	UpsertConnection(ctx context.Context, conn PlatformConnection) error
	SaveConnectionToken(ctx context.Context, connID int64, access string, refresh *string, expiry *time.Time) error
	SaveConnectionCursor(ctx context.Context, connID int64, cursor string) error

	// Read paths
	GetReview(ctx context.Context, id int64) (Review, error)
	ListReviews(ctx context.Context, q ReviewsQuery) (ReviewsPage, error)
	ListByStatus(ctx context.Context, businessID int64, status ReviewStatus, platform *Platform) ([]Review, error)
	GetBusiness(ctx context.Context, id int64) (Business, error)
	ListActiveBusinesses(ctx context.Context) ([]Business, error)
	ListConnections(ctx context.Context, businessID int64) ([]PlatformConnection, error)
}

type Cache interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, v any, ttlSec int) error
	Del(ctx context.Context, key string) error
}
