package platforms

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"replydesk/internal/domain"
)

// Google Business Profile reviews. Star ratings arrive as enum words.
var googleStars = map[string]float64{
	"ONE": 1, "TWO": 2, "THREE": 3, "FOUR": 4, "FIVE": 5,
}

type Google struct {
	base      string // mybusiness API base, overridable in tests
	tokenBase string // oauth2 token endpoint base
	clientID  string
	secret    string
	pageLimit int
	rest      *rest
	tokens    TokenStore
}

func NewGoogle(clientID, secret string, pageLimit, rps int, tokens TokenStore) *Google {
	return &Google{
		base:      "https://mybusiness.googleapis.com/v4",
		tokenBase: "https://oauth2.googleapis.com",
		clientID:  clientID,
		secret:    secret,
		pageLimit: pageLimit,
		rest:      newREST("google", rps),
		tokens:    tokens,
	}
}

// WithBases points the adapter at test servers.
func (g *Google) WithBases(api, token string) *Google {
	g.base, g.tokenBase = api, token
	return g
}

func (g *Google) Platform() domain.Platform { return domain.PlatformGoogle }
func (g *Google) CanPublish() bool          { return true }

type googleReview struct {
	ReviewID string `json:"reviewId"`
	Reviewer struct {
		DisplayName     string `json:"displayName"`
		ProfilePhotoURL string `json:"profilePhotoUrl"`
	} `json:"reviewer"`
	StarRating string    `json:"starRating"`
	Comment    string    `json:"comment"`
	CreateTime time.Time `json:"createTime"`
	UpdateTime time.Time `json:"updateTime"`
}

type googleReviewsPage struct {
	Reviews       []googleReview `json:"reviews"`
	NextPageToken string         `json:"nextPageToken"`
}

func (g *Google) FetchReviews(ctx context.Context, conn domain.PlatformConnection, cursor string) (domain.FetchResult, error) {
	var out domain.FetchResult
	err := withAuthRetry(ctx, conn, g.tokens, g.refresh, func(token string) error {
		out = domain.FetchResult{}
		page := cursor
		// one bounded run: at most two pages keeps sync ticks short
		for i := 0; i < 2; i++ {
			u := fmt.Sprintf("%s/accounts/%s/locations/%s/reviews?pageSize=%d",
				g.base, url.PathEscape(conn.ExternalAccountID), url.PathEscape(conn.ExternalLocation), g.pageLimit)
			if page != "" {
				u += "&pageToken=" + url.QueryEscape(page)
			}
			var resp googleReviewsPage
			if err := g.rest.getJSON(ctx, u, bearer(token), &resp); err != nil {
				return err
			}
			for _, r := range resp.Reviews {
				out.Reviews = append(out.Reviews, g.normalize(r))
			}
			page = resp.NextPageToken
			if page == "" {
				break
			}
		}
		out.NextCursor = page
		return nil
	})
	return out, err
}

func (g *Google) normalize(r googleReview) domain.RawReview {
	raw, _ := json.Marshal(r)
	rv := domain.RawReview{
		ExternalID:       r.ReviewID,
		Content:          r.Comment,
		ReviewerName:     r.Reviewer.DisplayName,
		ReviewerPhotoURL: r.Reviewer.ProfilePhotoURL,
		ReviewedAt:       r.CreateTime,
		RawJSON:          raw,
	}
	if s, ok := googleStars[r.StarRating]; ok {
		rv.Rating = &s
	}
	return rv
}

func (g *Google) PublishReply(ctx context.Context, conn domain.PlatformConnection, externalID, text string) error {
	body, _ := json.Marshal(map[string]string{"comment": text})
	return withAuthRetry(ctx, conn, g.tokens, g.refresh, func(token string) error {
		u := fmt.Sprintf("%s/accounts/%s/locations/%s/reviews/%s/reply",
			g.base, url.PathEscape(conn.ExternalAccountID), url.PathEscape(conn.ExternalLocation), url.PathEscape(externalID))
		hdr := bearer(token)
		hdr["Content-Type"] = "application/json"
		return g.rest.doJSON(ctx, http.MethodPut, u, hdr, body, nil)
	})
}

func (g *Google) refresh(ctx context.Context, conn domain.PlatformConnection) (refreshed, error) {
	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {*conn.RefreshToken},
		"client_id":     {g.clientID},
		"client_secret": {g.secret},
	}
	var resp struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	err := g.rest.doJSON(ctx, http.MethodPost, g.tokenBase+"/token",
		map[string]string{"Content-Type": "application/x-www-form-urlencoded"},
		[]byte(form.Encode()), &resp)
	if err != nil {
		return refreshed{}, err
	}
	exp := time.Now().Add(time.Duration(resp.ExpiresIn) * time.Second)
	// Google keeps the refresh token stable; only access/expiry rotate.
	return refreshed{access: resp.AccessToken, refresh: conn.RefreshToken, expiry: &exp}, nil
}

func bearer(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}
