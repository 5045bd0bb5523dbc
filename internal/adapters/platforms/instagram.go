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

// Instagram has no star ratings; comments on the connected business profile's
// media act as reviews, so Rating stays nil on every RawReview.
type Instagram struct {
	base      string
	appID     string
	appSecret string
	pageLimit int
	rest      *rest
	tokens    TokenStore
}

func NewInstagram(appID, appSecret string, pageLimit, rps int, tokens TokenStore) *Instagram {
	return &Instagram{
		base:      "https://graph.facebook.com/" + graphVersion,
		appID:     appID,
		appSecret: appSecret,
		pageLimit: pageLimit,
		rest:      newREST("instagram", rps),
		tokens:    tokens,
	}
}

func (ig *Instagram) WithBase(base string) *Instagram { ig.base = base; return ig }

func (ig *Instagram) Platform() domain.Platform { return domain.PlatformInstagram }
func (ig *Instagram) CanPublish() bool          { return true }

type igComment struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Username  string    `json:"username"`
	Timestamp time.Time `json:"timestamp"`
}

type igCommentsPage struct {
	Data   []igComment `json:"data"`
	Paging struct {
		Cursors struct {
			After string `json:"after"`
		} `json:"cursors"`
		Next string `json:"next"`
	} `json:"paging"`
}

func (ig *Instagram) FetchReviews(ctx context.Context, conn domain.PlatformConnection, cursor string) (domain.FetchResult, error) {
	var out domain.FetchResult
	err := withAuthRetry(ctx, conn, ig.tokens, ig.refresh, func(token string) error {
		out = domain.FetchResult{}
		after := cursor
		for i := 0; i < 2; i++ {
			u := fmt.Sprintf("%s/%s/comments?fields=id,text,username,timestamp&limit=%d&access_token=%s",
				ig.base, url.PathEscape(conn.ExternalLocation), ig.pageLimit, url.QueryEscape(token))
			if after != "" {
				u += "&after=" + url.QueryEscape(after)
			}
			var resp igCommentsPage
			if err := ig.rest.getJSON(ctx, u, nil, &resp); err != nil {
				return err
			}
			for _, c := range resp.Data {
				raw, _ := json.Marshal(c)
				out.Reviews = append(out.Reviews, domain.RawReview{
					ExternalID:      c.ID,
					Content:         c.Text,
					ReviewerName:    c.Username,
					ReviewerProfile: "https://instagram.com/" + c.Username,
					ReviewedAt:      c.Timestamp,
					RawJSON:         raw,
				})
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

// PublishReply posts a threaded reply on the comment.
func (ig *Instagram) PublishReply(ctx context.Context, conn domain.PlatformConnection, externalID, text string) error {
	return withAuthRetry(ctx, conn, ig.tokens, ig.refresh, func(token string) error {
		u := fmt.Sprintf("%s/%s/replies", ig.base, url.PathEscape(externalID))
		form := url.Values{"message": {text}, "access_token": {token}}
		return ig.rest.doJSON(ctx, http.MethodPost, u,
			map[string]string{"Content-Type": "application/x-www-form-urlencoded"},
			[]byte(form.Encode()), nil)
	})
}

// Instagram business tokens ride the same Meta exchange as Facebook pages.
func (ig *Instagram) refresh(ctx context.Context, conn domain.PlatformConnection) (refreshed, error) {
	u := fmt.Sprintf("%s/oauth/access_token?grant_type=fb_exchange_token&client_id=%s&client_secret=%s&fb_exchange_token=%s",
		ig.base, url.QueryEscape(ig.appID), url.QueryEscape(ig.appSecret), url.QueryEscape(*conn.RefreshToken))
	var resp struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := ig.rest.getJSON(ctx, u, nil, &resp); err != nil {
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
