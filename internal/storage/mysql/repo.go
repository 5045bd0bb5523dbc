package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"replydesk/internal/domain"
)

func valStr(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}
func valF64(p *float64) any {
	if p == nil {
		return nil
	}
	return *p
}
func valTime(p *time.Time) any {
	if p == nil {
		return nil
	}
	return *p
}
func valJSON(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
func strOrEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

type Repo struct{ db *sql.DB }

func New(db *sql.DB) *Repo { return &Repo{db: db} }

// UpsertReview inserts on first sight of the natural key and refreshes
// platform-supplied fields on conflict. MySQL reports 1 affected row for an
// insert and 2 for an update, which is how newly-seen reviews are counted.
func (r *Repo) UpsertReview(ctx context.Context, rv domain.Review) (bool, error) {
	var reviewedAt any
	if !rv.ReviewedAt.IsZero() {
		reviewedAt = rv.ReviewedAt
	}
	res, err := r.db.ExecContext(ctx, upsertReviewSQL,
		rv.BusinessID,
		string(rv.Platform),
		rv.PlatformReviewID,
		valStr(rv.ReviewerName),
		valStr(rv.ReviewerPhotoURL),
		valStr(rv.ReviewerProfile),
		valF64(rv.Rating),
		valStr(rv.Content),
		valStr(rv.Lang),
		valStr(rv.Sentiment),
		reviewedAt,
		valJSON(rv.RawJSON),
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// TransitionStatus enforces the state machine before touching storage, then
// relies on the conditional UPDATE for the optimistic from-check.
func (r *Repo) TransitionStatus(ctx context.Context, reviewID int64, from, to domain.ReviewStatus, extra domain.TransitionExtra) error {
	if !domain.CanTransition(from, to) {
		return domain.ErrIllegalTransition
	}
	res, err := r.db.ExecContext(ctx, transitionStatusSQL,
		string(to),
		valStr(extra.DraftResponse),
		valStr(extra.FinalResponse),
		valTime(extra.RespondedAt),
		valStr(extra.PublishError),
		reviewID,
		string(from),
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrStaleTransition
	}
	return nil
}

func (r *Repo) MarkPublishFailed(ctx context.Context, reviewID int64, errText string) error {
	res, err := r.db.ExecContext(ctx, markPublishFailedSQL, errText, reviewID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrStaleTransition
	}
	return nil
}

func (r *Repo) RecordSyncLog(ctx context.Context, e domain.SyncLog) error {
	results, _ := json.Marshal(e.Results)
	_, err := r.db.ExecContext(ctx, insertSyncLogSQL,
		e.ID,
		e.BusinessID,
		e.StartedAt,
		e.FinishedAt,
		e.Success,
		e.TotalNew,
		e.TotalPublished,
		valStr(e.Error),
		string(results),
	)
	return err
}

func (r *Repo) UpsertConnection(ctx context.Context, c domain.PlatformConnection) error {
	_, err := r.db.ExecContext(ctx, upsertConnectionSQL,
		c.BusinessID,
		string(c.Platform),
		c.ExternalAccountID,
		c.ExternalLocation,
		c.AccessToken,
		valStr(c.RefreshToken),
		valTime(c.TokenExpiresAt),
		c.Enabled,
	)
	return err
}

func (r *Repo) SaveConnectionToken(ctx context.Context, connID int64, access string, refresh *string, expiry *time.Time) error {
	_, err := r.db.ExecContext(ctx, saveConnectionTokenSQL, access, valStr(refresh), valTime(expiry), connID)
	return err
}

func (r *Repo) SaveConnectionCursor(ctx context.Context, connID int64, cursor string) error {
	_, err := r.db.ExecContext(ctx, saveConnectionCursorSQL, strOrEmpty(cursor), connID)
	return err
}

func (r *Repo) GetReview(ctx context.Context, id int64) (domain.Review, error) {
	row := r.db.QueryRowContext(ctx, getReviewSQL, id)
	rv, err := scanReview(row)
	if err == sql.ErrNoRows {
		return domain.Review{}, domain.ErrNotFound
	}
	return rv, err
}

func (r *Repo) ListReviews(ctx context.Context, q domain.ReviewsQuery) (domain.ReviewsPage, error) {
	where := []string{"business_id = ?"}
	args := []any{q.BusinessID}
	if q.Platform != nil {
		where = append(where, "platform = ?")
		args = append(args, string(*q.Platform))
	}
	if q.Status != nil {
		where = append(where, "status = ?")
		args = append(args, string(*q.Status))
	}
	if q.MinRating != nil {
		where = append(where, "rating >= ?")
		args = append(args, *q.MinRating)
	}
	if q.MaxRating != nil {
		where = append(where, "rating <= ?")
		args = append(args, *q.MaxRating)
	}
	cond := strings.Join(where, " AND ")

	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM reviews WHERE "+cond, args...).Scan(&total); err != nil {
		return domain.ReviewsPage{}, err
	}

	page, size := q.Page, q.PageSize
	if page < 1 {
		page = 1
	}
	if size <= 0 || size > 200 {
		size = 50
	}
	listArgs := append(append([]any{}, args...), size, (page-1)*size)
	rows, err := r.db.QueryContext(ctx,
		"SELECT"+reviewColumns+"FROM reviews WHERE "+cond+
			" ORDER BY reviewed_at DESC, id DESC LIMIT ? OFFSET ?",
		listArgs...)
	if err != nil {
		return domain.ReviewsPage{}, err
	}
	defer rows.Close()

	var items []domain.Review
	for rows.Next() {
		rv, err := scanReview(rows)
		if err != nil {
			return domain.ReviewsPage{}, err
		}
		items = append(items, rv)
	}
	if err := rows.Err(); err != nil {
		return domain.ReviewsPage{}, err
	}
	return domain.ReviewsPage{Items: items, Total: total, Page: page, PageSize: size}, nil
}

func (r *Repo) ListByStatus(ctx context.Context, businessID int64, status domain.ReviewStatus, platform *domain.Platform) ([]domain.Review, error) {
	q := listByStatusSQL
	args := []any{businessID, string(status)}
	if platform != nil {
		q += " AND platform = ?"
		args = append(args, string(*platform))
	}
	q += " ORDER BY reviewed_at DESC, id DESC"

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Review
	for rows.Next() {
		rv, err := scanReview(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rv)
	}
	return out, rows.Err()
}

func (r *Repo) GetBusiness(ctx context.Context, id int64) (domain.Business, error) {
	b, err := scanBusiness(r.db.QueryRowContext(ctx, getBusinessSQL, id))
	if err == sql.ErrNoRows {
		return domain.Business{}, domain.ErrNotFound
	}
	return b, err
}

func (r *Repo) ListActiveBusinesses(ctx context.Context) ([]domain.Business, error) {
	rows, err := r.db.QueryContext(ctx, listActiveBusinessesSQL)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Business
	for rows.Next() {
		b, err := scanBusiness(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (r *Repo) ListConnections(ctx context.Context, businessID int64) ([]domain.PlatformConnection, error) {
	rows, err := r.db.QueryContext(ctx, listConnectionsSQL, businessID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.PlatformConnection
	for rows.Next() {
		var c domain.PlatformConnection
		var platform string
		var refresh, cursor sql.NullString
		var expiry sql.NullTime
		if err := rows.Scan(
			&c.ID, &c.BusinessID, &platform,
			&c.ExternalAccountID, &c.ExternalLocation,
			&c.AccessToken, &refresh, &expiry, &c.Enabled, &cursor,
		); err != nil {
			return nil, err
		}
		c.Platform = domain.Platform(platform)
		if refresh.Valid {
			s := refresh.String
			c.RefreshToken = &s
		}
		if expiry.Valid {
			t := expiry.Time
			c.TokenExpiresAt = &t
		}
		if cursor.Valid {
			s := cursor.String
			c.LastCursor = &s
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ---- scanning ----

type rowScanner interface{ Scan(dest ...any) error }

func scanReview(row rowScanner) (domain.Review, error) {
	var rv domain.Review
	var platform, status string
	var (
		name, photo, profile       sql.NullString
		rating                     sql.NullFloat64
		content, lang, sentiment   sql.NullString
		draft, final, publishError sql.NullString
		respondedAt                sql.NullTime
		raw                        []byte
	)
	if err := row.Scan(
		&rv.ID, &rv.BusinessID, &platform, &rv.PlatformReviewID,
		&name, &photo, &profile,
		&rating, &content, &lang, &sentiment,
		&status, &draft, &final, &respondedAt, &publishError,
		&rv.ReviewedAt, &raw,
	); err != nil {
		return domain.Review{}, err
	}
	rv.Platform = domain.Platform(platform)
	rv.Status = domain.ReviewStatus(status)
	rv.ReviewerName = nullStr(name)
	rv.ReviewerPhotoURL = nullStr(photo)
	rv.ReviewerProfile = nullStr(profile)
	if rating.Valid {
		f := rating.Float64
		rv.Rating = &f
	}
	rv.Content = nullStr(content)
	rv.Lang = nullStr(lang)
	rv.Sentiment = nullStr(sentiment)
	rv.DraftResponse = nullStr(draft)
	rv.FinalResponse = nullStr(final)
	rv.PublishError = nullStr(publishError)
	if respondedAt.Valid {
		t := respondedAt.Time
		rv.RespondedAt = &t
	}
	rv.RawJSON = raw
	return rv, nil
}

func scanBusiness(row rowScanner) (domain.Business, error) {
	var b domain.Business
	var mode string
	var tone sql.NullString
	var langsJSON []byte
	var deleted sql.NullTime
	if err := row.Scan(&b.ID, &b.Name, &b.Active, &mode, &tone, &langsJSON, &b.CreatedAt, &deleted); err != nil {
		return domain.Business{}, err
	}
	b.ResponseMode = domain.ResponseMode(mode)
	b.ResponseTone = nullStr(tone)
	if len(langsJSON) > 0 {
		_ = json.Unmarshal(langsJSON, &b.ResponseLangs)
	}
	if deleted.Valid {
		t := deleted.Time
		b.DeletedAt = &t
	}
	return b, nil
}

func nullStr(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}
