package platforms

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"replydesk/internal/domain"
)

// TikTok video comments, read-only: the comment-reply endpoint is restricted
// to approved partners, so CanPublish is false and approved responses take
// the manual-publish path.
type TikTok struct {
	base      string
	clientKey string
	pageLimit int
	rest      *rest
	tokens    TokenStore
}

func NewTikTok(clientKey string, pageLimit, rps int, tokens TokenStore) *TikTok {
	return &TikTok{
		base:      "https://open.tiktokapis.com/v2",
		clientKey: clientKey,
		pageLimit: pageLimit,
		rest:      newREST("tiktok", rps),
		tokens:    tokens,
	}
}

func (t *TikTok) WithBase(base string) *TikTok { t.base = base; return t }

func (t *TikTok) Platform() domain.Platform { return domain.PlatformTikTok }
func (t *TikTok) CanPublish() bool          { return false }

type tiktokComment struct {
	ID         string `json:"id"`
	Text       string `json:"text"`
	CreateTime int64  `json:"create_time"`
	User       struct {
		Nickname  string `json:"nickname"`
		AvatarURL string `json:"avatar_url"`
	} `json:"user"`
}

type tiktokCommentList struct {
	Data struct {
		Comments []tiktokComment `json:"comments"`
		Cursor   int64           `json:"cursor"`
		HasMore  bool            `json:"has_more"`
	} `json:"data"`
}

func (t *TikTok) FetchReviews(ctx context.Context, conn domain.PlatformConnection, cursor string) (domain.FetchResult, error) {
	var out domain.FetchResult
	err := withAuthRetry(ctx, conn, t.tokens, t.refresh, func(token string) error {
		out = domain.FetchResult{}
		cur, _ := strconv.ParseInt(cursor, 10, 64)
		for i := 0; i < 2; i++ {
			body, _ := json.Marshal(map[string]any{
				"video_id":  conn.ExternalLocation,
				"cursor":    cur,
				"max_count": t.pageLimit,
			})
			hdr := bearer(token)
			hdr["Content-Type"] = "application/json"
			var resp tiktokCommentList
			if err := t.rest.doJSON(ctx, http.MethodPost, t.base+"/video/comment/list/", hdr, body, &resp); err != nil {
				return err
			}
			for _, c := range resp.Data.Comments {
				raw, _ := json.Marshal(c)
				out.Reviews = append(out.Reviews, domain.RawReview{
					ExternalID:       c.ID,
					Content:          c.Text,
					ReviewerName:     c.User.Nickname,
					ReviewerPhotoURL: c.User.AvatarURL,
					ReviewedAt:       time.Unix(c.CreateTime, 0).UTC(),
					RawJSON:          raw,
				})
			}
			if !resp.Data.HasMore {
				out.NextCursor = ""
				return nil
			}
			cur = resp.Data.Cursor
		}
		out.NextCursor = strconv.FormatInt(cur, 10)
		return nil
	})
	return out, err
}

func (t *TikTok) PublishReply(ctx context.Context, conn domain.PlatformConnection, externalID, text string) error {
	return fmt.Errorf("tiktok: %w: no reply API", domain.ErrNotFound)
}

func (t *TikTok) refresh(ctx context.Context, conn domain.PlatformConnection) (refreshed, error) {
	body := fmt.Sprintf("client_key=%s&grant_type=refresh_token&refresh_token=%s",
		t.clientKey, *conn.RefreshToken)
	var resp struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresIn    int    `json:"expires_in"`
	}
	err := t.rest.doJSON(ctx, http.MethodPost, t.base+"/oauth/token/",
		map[string]string{"Content-Type": "application/x-www-form-urlencoded"},
		[]byte(body), &resp)
	if err != nil {
		return refreshed{}, err
	}
	exp := time.Now().Add(time.Duration(resp.ExpiresIn) * time.Second)
	rt := resp.RefreshToken
	return refreshed{access: resp.AccessToken, refresh: &rt, expiry: &exp}, nil
}
