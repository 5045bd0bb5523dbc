package platforms_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"replydesk/internal/adapters/platforms"
	"replydesk/internal/domain"
)

func conn(p domain.Platform) domain.PlatformConnection {
	rt := "refresh-1"
	return domain.PlatformConnection{
		ID:                1,
		BusinessID:        7,
		Platform:          p,
		ExternalAccountID: "acc-1",
		ExternalLocation:  "loc-1",
		AccessToken:       "tok-1",
		RefreshToken:      &rt,
		Enabled:           true,
	}
}

func TestGoogle_FetchReviews_PagesAndNormalizes(t *testing.T) {
	var hits int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok-1" {
			w.WriteHeader(401)
			return
		}
		switch atomic.AddInt32(&hits, 1) {
		case 1:
			_ = json.NewEncoder(w).Encode(map[string]any{
				"reviews": []map[string]any{{
					"reviewId":   "g-001",
					"starRating": "FIVE",
					"comment":    "Ottimo",
					"createTime": "2026-08-01T10:00:00Z",
					"reviewer":   map[string]any{"displayName": "Ana", "profilePhotoUrl": "https://p/x.jpg"},
				}},
				"nextPageToken": "page-2",
			})
		default:
			_ = json.NewEncoder(w).Encode(map[string]any{
				"reviews": []map[string]any{{
					"reviewId":   "g-002",
					"starRating": "THREE",
					"createTime": "2026-08-02T10:00:00Z",
				}},
			})
		}
	}))
	defer ts.Close()

	g := platforms.NewGoogle("cid", "sec", 50, 100, nil).WithBases(ts.URL, ts.URL)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	out, err := g.FetchReviews(ctx, conn(domain.PlatformGoogle), "")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if len(out.Reviews) != 2 {
		t.Fatalf("expected 2 reviews across pages, got %d", len(out.Reviews))
	}
	r := out.Reviews[0]
	if r.ExternalID != "g-001" || r.Rating == nil || *r.Rating != 5 || r.Content != "Ottimo" || r.ReviewerName != "Ana" {
		t.Fatalf("unexpected normalization: %+v", r)
	}
	if out.NextCursor != "" {
		t.Fatalf("expected exhausted cursor, got %q", out.NextCursor)
	}
	if atomic.LoadInt32(&hits) != 2 {
		t.Fatalf("expected 2 page fetches, got %d", hits)
	}
}

func TestGoogle_FetchReviews_RetriesTransient(t *testing.T) {
	var hits int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) == 1 {
			w.WriteHeader(500)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"reviews": []map[string]any{}})
	}))
	defer ts.Close()

	g := platforms.NewGoogle("cid", "sec", 50, 100, nil).WithBases(ts.URL, ts.URL)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := g.FetchReviews(ctx, conn(domain.PlatformGoogle), ""); err != nil {
		t.Fatalf("expected the single retry to recover: %v", err)
	}
	if atomic.LoadInt32(&hits) != 2 {
		t.Fatalf("expected 2 attempts, got %d", hits)
	}
}

func TestGoogle_PublishReply(t *testing.T) {
	var gotPath, gotBody string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			t.Errorf("expected PUT, got %s", r.Method)
		}
		gotPath = r.URL.Path
		var b struct {
			Comment string `json:"comment"`
		}
		_ = json.NewDecoder(r.Body).Decode(&b)
		gotBody = b.Comment
		w.WriteHeader(200)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer ts.Close()

	g := platforms.NewGoogle("cid", "sec", 50, 100, nil).WithBases(ts.URL, ts.URL)
	if err := g.PublishReply(context.Background(), conn(domain.PlatformGoogle), "g-001", "Grazie!"); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if gotPath != "/accounts/acc-1/locations/loc-1/reviews/g-001/reply" {
		t.Fatalf("unexpected path %q", gotPath)
	}
	if gotBody != "Grazie!" {
		t.Fatalf("unexpected body %q", gotBody)
	}
}

func TestTikTok_CapabilityIsReadOnly(t *testing.T) {
	tk := platforms.NewTikTok("key", 50, 100, nil)
	if tk.CanPublish() {
		t.Fatal("tiktok adapter must advertise no publish support")
	}
}
