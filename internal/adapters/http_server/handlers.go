package httpserver

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"replydesk/internal/app"
	"replydesk/internal/domain"
)

type Handlers struct {
	Q          *app.QueryService
	Pub        *app.Publisher
	Cron       *app.Cron
	CronSecret string
}

type problem struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

func (s *Server) MountHandlers(h *Handlers) {
	s.mux.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); _, _ = w.Write([]byte("ok")) })

	// no request timeout here: a run's budget is the per-business timeout plus
	// pacing, which a single tick may legitimately spend in full
	s.mux.Group(func(r chi.Router) {
		r.Use(CronAuth(h.CronSecret))
		r.Get("/sync", h.runSync)
		r.Post("/sync", h.runScopedSync)
	})

	s.mux.Group(func(r chi.Router) {
		r.Use(Timeout(15 * time.Second))
		r.Get("/reviews", h.listReviews)
		r.Post("/reviews/{id}/publish", h.publishReview)
		r.Post("/reviews/{id}/draft", h.saveDraft)
		r.Post("/reviews/{id}/approve", h.approveReview)
		r.Post("/reviews/{id}/reject", h.rejectReview)
	})
}

func writeProblem(w http.ResponseWriter, status int, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(problem{Type: "about:blank", Title: title, Status: status, Detail: detail}); err != nil {
		log.Error().Err(err).Msg("write JSON problem response failed")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("write JSON response failed")
	}
}

// calcETagAndBody marshals once and hashes once, returning both ETag and body.
func calcETagAndBody(v any) (string, []byte) {
	body, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal object for ETag/body")
		return "", nil
	}
	sum := sha1.Sum(body)
	etag := `W/"` + hex.EncodeToString(sum[:]) + `"`
	return etag, body
}

// ---- sync triggers ----

type runSummaryResponse struct {
	Success             bool                        `json:"success"`
	BusinessesProcessed int                         `json:"businessesProcessed"`
	TotalNew            int                         `json:"totalNew"`
	TotalPublished      int                         `json:"totalPublished"`
	Errors              int                         `json:"errors"`
	Duration            string                      `json:"duration"`
	Results             []domain.BusinessSyncResult `json:"results"`
}

func summaryResponse(sum domain.RunSummary) runSummaryResponse {
	return runSummaryResponse{
		Success:             sum.Success,
		BusinessesProcessed: sum.BusinessesProcessed,
		TotalNew:            sum.TotalNew,
		TotalPublished:      sum.TotalPublished,
		Errors:              sum.Errors,
		Duration:            sum.Duration.String(),
		Results:             sum.Results,
	}
}

func (h *Handlers) runSync(w http.ResponseWriter, r *http.Request) {
	sum := h.Cron.RunAll(r.Context())
	writeJSON(w, http.StatusOK, summaryResponse(sum))
}

func (h *Handlers) runScopedSync(w http.ResponseWriter, r *http.Request) {
	var body struct {
		BusinessID int64  `json:"businessId"`
		Platform   string `json:"platform"`
	}
	if r.Body != nil {
		// empty body means a full run, same as GET
		_ = json.NewDecoder(r.Body).Decode(&body)
	}
	if body.BusinessID == 0 {
		sum := h.Cron.RunAll(r.Context())
		writeJSON(w, http.StatusOK, summaryResponse(sum))
		return
	}
	var platform *domain.Platform
	if body.Platform != "" {
		p := domain.Platform(body.Platform)
		if !p.Valid() {
			writeProblem(w, http.StatusBadRequest, "Invalid platform", "platform must be one of google, instagram, facebook, tiktok")
			return
		}
		platform = &p
	}
	sum := h.Cron.RunScoped(r.Context(), body.BusinessID, platform)
	writeJSON(w, http.StatusOK, summaryResponse(sum))
}

// ---- reviews ----

func (h *Handlers) listReviews(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	businessID, err := strconv.ParseInt(q.Get("businessId"), 10, 64)
	if err != nil || businessID <= 0 {
		writeProblem(w, http.StatusBadRequest, "Invalid businessId", "businessId must be a positive number")
		return
	}
	rq := domain.ReviewsQuery{BusinessID: businessID, Page: 1, PageSize: 50}
	if v := q.Get("platform"); v != "" {
		p := domain.Platform(v)
		if !p.Valid() {
			writeProblem(w, http.StatusBadRequest, "Invalid platform", "unknown platform "+v)
			return
		}
		rq.Platform = &p
	}
	if v := q.Get("status"); v != "" {
		st := domain.ReviewStatus(v)
		rq.Status = &st
	}
	if v := q.Get("minRating"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid minRating", "minRating must be a number")
			return
		}
		rq.MinRating = &f
	}
	if v := q.Get("maxRating"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid maxRating", "maxRating must be a number")
			return
		}
		rq.MaxRating = &f
	}
	if v := q.Get("page"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			rq.Page = n
		}
	}
	if v := q.Get("pageSize"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 200 {
			writeProblem(w, http.StatusBadRequest, "Invalid pageSize", "pageSize must be an integer between 1 and 200")
			return
		}
		rq.PageSize = n
	}

	out, err := h.Q.ListReviews(r.Context(), rq)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Listing failed", err.Error())
		return
	}

	etag, body := calcETagAndBody(reviewsPageResponse(out))
	if inm := r.Header.Get("If-None-Match"); inm != "" && inm == etag {
		w.Header().Set("ETag", etag)
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("ETag", etag)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		log.Error().Err(err).Msg("failed to write listReviews body")
	}
}

type reviewJSON struct {
	ID               int64    `json:"id"`
	BusinessID       int64    `json:"businessId"`
	Platform         string   `json:"platform"`
	PlatformReviewID string   `json:"platformReviewId"`
	ReviewerName     *string  `json:"reviewerName"`
	ReviewerPhotoURL *string  `json:"reviewerPhotoUrl,omitempty"`
	ReviewerProfile  *string  `json:"reviewerProfileUrl,omitempty"`
	Rating           *float64 `json:"rating"`
	Content          *string  `json:"content"`
	Lang             *string  `json:"lang,omitempty"`
	Sentiment        *string  `json:"sentiment,omitempty"`
	Status           string   `json:"status"`
	DraftResponse    *string  `json:"draftResponse,omitempty"`
	FinalResponse    *string  `json:"finalResponse,omitempty"`
	RespondedAt      *string  `json:"respondedAt,omitempty"`
	PublishError     *string  `json:"publishError,omitempty"`
	ReviewedAt       string   `json:"reviewedAt"`
}

type reviewsPageJSON struct {
	Items    []reviewJSON `json:"items"`
	Total    int          `json:"total"`
	Page     int          `json:"page"`
	PageSize int          `json:"pageSize"`
}

func reviewsPageResponse(p domain.ReviewsPage) reviewsPageJSON {
	out := reviewsPageJSON{Total: p.Total, Page: p.Page, PageSize: p.PageSize, Items: make([]reviewJSON, 0, len(p.Items))}
	for _, rv := range p.Items {
		j := reviewJSON{
			ID:               rv.ID,
			BusinessID:       rv.BusinessID,
			Platform:         string(rv.Platform),
			PlatformReviewID: rv.PlatformReviewID,
			ReviewerName:     rv.ReviewerName,
			ReviewerPhotoURL: rv.ReviewerPhotoURL,
			ReviewerProfile:  rv.ReviewerProfile,
			Rating:           rv.Rating,
			Content:          rv.Content,
			Lang:             rv.Lang,
			Sentiment:        rv.Sentiment,
			Status:           string(rv.Status),
			DraftResponse:    rv.DraftResponse,
			FinalResponse:    rv.FinalResponse,
			PublishError:     rv.PublishError,
			ReviewedAt:       rv.ReviewedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
		}
		if rv.RespondedAt != nil {
			s := rv.RespondedAt.UTC().Format("2006-01-02T15:04:05Z07:00")
			j.RespondedAt = &s
		}
		out.Items = append(out.Items, j)
	}
	return out
}

// invalidateListing drops the cached listing variants a status change shows
// up in, so the dashboard never serves the old status for a full TTL.
func (h *Handlers) invalidateListing(r *http.Request, id int64) {
	if rv, err := h.Q.GetReview(r.Context(), id); err == nil {
		h.Q.InvalidateReview(r.Context(), rv)
	}
}

func (h *Handlers) reviewID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeProblem(w, http.StatusBadRequest, "Invalid ID", "id must be a number")
		return 0, false
	}
	return id, true
}

func (h *Handlers) publishReview(w http.ResponseWriter, r *http.Request) {
	id, ok := h.reviewID(w, r)
	if !ok {
		return
	}
	var body struct {
		Response string `json:"response"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid body", "expected {\"response\": string}")
		return
	}
	out, err := h.Pub.Publish(r.Context(), id, body.Response)
	if err != nil {
		writePublishError(w, err)
		return
	}
	h.invalidateListing(r, id)
	writeJSON(w, http.StatusOK, out)
}

func (h *Handlers) saveDraft(w http.ResponseWriter, r *http.Request) {
	id, ok := h.reviewID(w, r)
	if !ok {
		return
	}
	var body struct {
		Response string `json:"response"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Response == "" {
		writeProblem(w, http.StatusBadRequest, "Invalid body", "expected {\"response\": string}")
		return
	}
	if err := h.Pub.SaveDraft(r.Context(), id, body.Response); err != nil {
		writePublishError(w, err)
		return
	}
	h.invalidateListing(r, id)
	writeJSON(w, http.StatusOK, map[string]bool{"saved": true})
}

func (h *Handlers) approveReview(w http.ResponseWriter, r *http.Request) {
	id, ok := h.reviewID(w, r)
	if !ok {
		return
	}
	var body struct {
		Response *string `json:"response"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)
	if err := h.Pub.Approve(r.Context(), id, body.Response); err != nil {
		writePublishError(w, err)
		return
	}
	h.invalidateListing(r, id)
	writeJSON(w, http.StatusOK, map[string]bool{"approved": true})
}

func (h *Handlers) rejectReview(w http.ResponseWriter, r *http.Request) {
	id, ok := h.reviewID(w, r)
	if !ok {
		return
	}
	if err := h.Pub.Reject(r.Context(), id); err != nil {
		writePublishError(w, err)
		return
	}
	h.invalidateListing(r, id)
	writeJSON(w, http.StatusOK, map[string]bool{"rejected": true})
}

// writePublishError maps workflow errors onto HTTP statuses: conflicts are a
// logic race the caller must see, not something to mask as a 500.
func writePublishError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeProblem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, domain.ErrStaleTransition), errors.Is(err, domain.ErrIllegalTransition):
		writeProblem(w, http.StatusConflict, "Conflict", err.Error())
	default:
		writeProblem(w, http.StatusInternalServerError, "Internal Error", err.Error())
	}
}
