package app

import (
	"strings"
	"time"

	"replydesk/internal/domain"
)

// mapRawReview turns an adapter's normalized record into the persisted shape.
// Ratings are clamped to the 1..5 scale; empty strings become NULLs so the
// upsert's COALESCE conflict policy never wipes known values with blanks.
func mapRawReview(businessID int64, platform domain.Platform, r domain.RawReview) domain.Review {
	rv := domain.Review{
		BusinessID:       businessID,
		Platform:         platform,
		PlatformReviewID: r.ExternalID,
		ReviewerName:     ptrStr(strings.TrimSpace(r.ReviewerName)),
		ReviewerPhotoURL: ptrStr(r.ReviewerPhotoURL),
		ReviewerProfile:  ptrStr(r.ReviewerProfile),
		Content:          ptrStr(strings.TrimSpace(r.Content)),
		Lang:             ptrStr(normalizeLang(r.Lang)),
		Status:           domain.StatusPending,
		ReviewedAt:       r.ReviewedAt,
		RawJSON:          r.RawJSON,
	}
	if r.Rating != nil {
		f := clampRating(*r.Rating)
		rv.Rating = &f
	}
	if rv.ReviewedAt.IsZero() {
		rv.ReviewedAt = time.Now().UTC()
	}
	return rv
}

func clampRating(f float64) float64 {
	if f < 1 {
		return 1
	}
	if f > 5 {
		return 5
	}
	return f
}

// normalizeLang reduces BCP-47-ish tags ("en-US", "IT_it") to the primary
// subtag; unknown/empty guesses stay empty and become NULL.
func normalizeLang(lang string) string {
	s := strings.ToLower(strings.TrimSpace(lang))
	if i := strings.IndexAny(s, "-_"); i > 0 {
		s = s[:i]
	}
	if len(s) < 2 || len(s) > 3 {
		return ""
	}
	return s
}

func ptrStr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
