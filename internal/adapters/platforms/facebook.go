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

const graphVersion = "v23.0"

// Facebook page recommendations. The Graph API replaced star ratings with
// positive/negative recommendations; both are mapped onto the 1..5 scale the
// rest of the pipeline speaks.
type Facebook struct {
	base      string
	appID     string
	appSecret string
	pageLimit int
	rest      *rest
	tokens    TokenStore
}

func NewFacebook(appID, appSecret string, pageLimit, rps int, tokens TokenStore) *Facebook {
	return &Facebook{
		base:      "https://graph.facebook.com/" + graphVersion,
		appID:     appID,
		appSecret: appSecret,
		pageLimit: pageLimit,
		rest:      newREST("facebook", rps),
		tokens:    tokens,
	}
}

func (f *Facebook) WithBase(base string) *Facebook { f.base = base; return f }

func (f *Facebook) Platform() domain.Platform { return domain.PlatformFacebook }
func (f *Facebook) CanPublish() bool          { return true }

type fbRating struct {
	CreatedTime        string `json:"created_time"`
	RecommendationType string `json:"recommendation_type"` // positive | negative
	ReviewText         string `json:"review_text"`
	Reviewer           struct {
		ID      string `json:"id"`
		Name    string `json:"name"`
		Picture struct {
			Data struct {
				URL string `json:"url"`
			} `json:"data"`
		} `json:"picture"`
	} `json:"reviewer"`
	OpenGraphStory struct {
		ID string `json:"id"`
	} `json:"open_graph_story"`
}

type fbRatingsPage struct {
	Data   []fbRating `json:"data"`
	Paging struct {
		Cursors struct {
			After string `json:"after"`
		} `json:"cursors"`
		Next string `json:"next"`
	} `json:"paging"`
}

func (f *Facebook) FetchReviews(ctx context.Context, conn domain.PlatformConnection, cursor string) (domain.FetchResult, error) {
	var out domain.FetchResult
	err := withAuthRetry(ctx, conn, f.tokens, f.refresh, func(token string) error {
		out = domain.FetchResult{}
		after := cursor
		for i := 0; i < 2; i++ {
			u := fmt.Sprintf("%s/%s/ratings?fields=created_time,recommendation_type,review_text,reviewer{id,name,picture},open_graph_story&limit=%d&access_token=%s",
				f.base, url.PathEscape(conn.ExternalLocation), f.pageLimit, url.QueryEscape(token))
			if after != "" {
				u += "&after=" + url.QueryEscape(after)
			}
			var resp fbRatingsPage
			if err := f.rest.getJSON(ctx, u, nil, &resp); err != nil {
				return err
			}
			for _, r := range resp.Data {
				out.Reviews = append(out.Reviews, f.normalize(r))
			}
			after = resp.Paging.Cursors.After
			if after == "" || resp.Paging.Next == "" {
				after = ""
				break
			}
		}
		out.NextCursor = after
		return nil
	})
	return out, err
}

func (f *Facebook) normalize(r fbRating) domain.RawReview {
	raw, _ := json.Marshal(r)
	rv := domain.RawReview{
		ExternalID:       r.OpenGraphStory.ID,
		Content:          r.ReviewText,
		ReviewerName:     r.Reviewer.Name,
		ReviewerPhotoURL: r.Reviewer.Picture.Data.URL,
		RawJSON:          raw,
	}
	if r.Reviewer.ID != "" {
		p := "https://facebook.com/" + r.Reviewer.ID
		rv.ReviewerProfile = p
	}
	switch r.RecommendationType {
	case "positive":
		v := 5.0
		rv.Rating = &v
	case "negative":
		v := 1.0
		rv.Rating = &v
	}
	if t, err := time.Parse("2006-01-02T15:04:05-0700", r.CreatedTime); err == nil {
		rv.ReviewedAt = t
	}
	// ratings without review text have no story id; fall back to a stable
	// reviewer-scoped key so dedup still holds
	if rv.ExternalID == "" {
		rv.ExternalID = "rating:" + r.Reviewer.ID + ":" + r.CreatedTime
	}
	return rv
}

// PublishReply comments on the recommendation's open-graph story.
func (f *Facebook) PublishReply(ctx context.Context, conn domain.PlatformConnection, externalID, text string) error {
	return withAuthRetry(ctx, conn, f.tokens, f.refresh, func(token string) error {
		u := fmt.Sprintf("%s/%s/comments", f.base, url.PathEscape(externalID))
		form := url.Values{"message": {text}, "access_token": {token}}
		return f.rest.doJSON(ctx, http.MethodPost, u,
			map[string]string{"Content-Type": "application/x-www-form-urlencoded"},
			[]byte(form.Encode()), nil)
	})
}

// refresh exchanges the stored long-lived token for a fresh one
// (fb_exchange_token grant). Meta rotates the token itself, so the result is
// stored as both access and refresh token.
func (f *Facebook) refresh(ctx context.Context, conn domain.PlatformConnection) (refreshed, error) {
	u := fmt.Sprintf("%s/oauth/access_token?grant_type=fb_exchange_token&client_id=%s&client_secret=%s&fb_exchange_token=%s",
		f.base, url.QueryEscape(f.appID), url.QueryEscape(f.appSecret), url.QueryEscape(*conn.RefreshToken))
	var resp struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := f.rest.getJSON(ctx, u, nil, &resp); err != nil {
		return refreshed{}, err
	}
	var exp *time.Time
	if resp.ExpiresIn > 0 {
		t := time.Now().Add(time.Duration(resp.ExpiresIn) * time.Second)
		exp = &t
	}
	tok := resp.AccessToken
	return refreshed{access: tok, refresh: &tok, expiry: exp}, nil
}
