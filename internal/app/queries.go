package app

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"replydesk/internal/domain"
)

// QueryService serves the dashboard's review listings through the cache.
type QueryService struct {
	repo     domain.ReviewRepository
	cache    domain.Cache
	cacheTTL time.Duration
}

func NewQueryService(r domain.ReviewRepository, c domain.Cache, ttl time.Duration) *QueryService {
	return &QueryService{repo: r, cache: c, cacheTTL: ttl}
}

func (s *QueryService) GetReview(ctx context.Context, id int64) (domain.Review, error) {
	return s.repo.GetReview(ctx, id)
}

func (s *QueryService) ListReviews(ctx context.Context, q domain.ReviewsQuery) (domain.ReviewsPage, error) {
	key := listKey(q)
	var cached domain.ReviewsPage
	if ok, _ := s.cache.Get(ctx, key, &cached); ok {
		return cached, nil
	}

	page, err := s.repo.ListReviews(ctx, q)
	if err != nil {
		return domain.ReviewsPage{}, err
	}

	// copy before caching so callers can't mutate the cached value
	cp := deepCopyPage(page)
	if b, _ := json.Marshal(cp); len(b) < 1_000_000 {
		_ = s.cache.Set(ctx, key, cp, int(s.cacheTTL.Seconds()))
	}
	return cp, nil
}

// InvalidateReview drops the listing variants a status change shows up in.
func (s *QueryService) InvalidateReview(ctx context.Context, rv domain.Review) {
	_ = s.cache.Del(ctx, listKey(domain.ReviewsQuery{BusinessID: rv.BusinessID, Page: 1, PageSize: 50}))
	p := rv.Platform
	_ = s.cache.Del(ctx, listKey(domain.ReviewsQuery{BusinessID: rv.BusinessID, Platform: &p, Page: 1, PageSize: 50}))
}

func listKey(q domain.ReviewsQuery) string {
	plat, status := "*", "*"
	if q.Platform != nil {
		plat = string(*q.Platform)
	}
	if q.Status != nil {
		status = string(*q.Status)
	}
	minR, maxR := "", ""
	if q.MinRating != nil {
		minR = fmt.Sprintf("%.1f", *q.MinRating)
	}
	if q.MaxRating != nil {
		maxR = fmt.Sprintf("%.1f", *q.MaxRating)
	}
	return fmt.Sprintf("reviews:%d:%s:%s:%s:%s:%d:%d", q.BusinessID, plat, status, minR, maxR, q.Page, q.PageSize)
}

func deepCopyPage(in domain.ReviewsPage) domain.ReviewsPage {
	out := in
	if n := len(in.Items); n > 0 {
		out.Items = make([]domain.Review, n)
		copy(out.Items, in.Items)
	}
	return out
}
