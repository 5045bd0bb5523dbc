package domain

import "time"

type ReviewStatus string

const (
	StatusPending     ReviewStatus = "pending"
	StatusAIGenerated ReviewStatus = "ai_generated"
	StatusApproved    ReviewStatus = "approved"
	StatusPublished   ReviewStatus = "published"
	StatusRejected    ReviewStatus = "rejected"
	StatusFailed      ReviewStatus = "failed"
)

// legalTransitions is the full transition set. published and rejected are
// terminal. pending -> published is forbidden: an approved response must
// exist first. The ai_generated and failed self-loops cover draft refreshes
// and publisher re-attempts.
var legalTransitions = map[ReviewStatus][]ReviewStatus{
	StatusPending:     {StatusAIGenerated, StatusApproved, StatusRejected},
	StatusAIGenerated: {StatusAIGenerated, StatusApproved, StatusRejected},
	StatusApproved:    {StatusPublished, StatusFailed, StatusRejected},
	StatusFailed:      {StatusPublished, StatusFailed},
}

// CanTransition reports whether from -> to is a legal status change.
func CanTransition(from, to ReviewStatus) bool {
	for _, t := range legalTransitions[from] {
		if t == to {
			return true
		}
	}
	return false
}

// Review is one deduplicated unit of feedback. Natural key:
// (BusinessID, Platform, PlatformReviewID), unique in storage; re-ingesting
// the same external review must never create a second row.
type Review struct {
	ID               int64
	BusinessID       int64
	Platform         Platform
	PlatformReviewID string

	ReviewerName     *string
	ReviewerPhotoURL *string
	ReviewerProfile  *string
	Rating           *float64 // nil when the platform has no star rating
	Content          *string
	Lang             *string
	Sentiment        *string // derived externally

	Status        ReviewStatus
	DraftResponse *string
	FinalResponse *string
	RespondedAt   *time.Time
	PublishError  *string

	ReviewedAt time.Time
	RawJSON    []byte // full platform payload for forensic replay
}

// RawReview is what a platform adapter hands back: one review normalized at
// the adapter boundary, before any persistence concerns.
type RawReview struct {
	ExternalID       string
	Rating           *float64
	Content          string
	ReviewerName     string
	ReviewerPhotoURL string
	ReviewerProfile  string
	Lang             string // adapter's language guess, may be empty
	ReviewedAt       time.Time
	RawJSON          []byte
}

// FetchResult is one bounded page batch from an adapter.
type FetchResult struct {
	Reviews    []RawReview
	NextCursor string // empty when the adapter decided it fetched enough
}
