//go:build integration || !unit

package mysql_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"

	"replydesk/internal/domain"
	mysqlrepo "replydesk/internal/storage/mysql"
)

// ---------- small helpers ----------
func pstr(s string) *string     { return &s }
func pfloat(f float64) *float64 { return &f }

func mustEnv(t *testing.T, k string) string {
	t.Helper()
	v := os.Getenv(k)
	if v == "" {
		t.Fatalf("%s not set; export it (e.g. MIGRATIONS_DIR=/path/to/sql)", k)
	}
	return v
}

func applyMigrations(t *testing.T, db *sql.DB) {
	t.Helper()
	dir := mustEnv(t, "MIGRATIONS_DIR")

	st, err := os.Stat(dir)
	if err != nil || !st.IsDir() {
		t.Fatalf("MIGRATIONS_DIR=%s is not a directory or missing", dir)
	}

	ents, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read migrations dir: %v", err)
	}
	var files []string
	for _, e := range ents {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".sql" {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	if len(files) == 0 {
		t.Fatalf("no .sql files in %s", dir)
	}
	sort.Strings(files)

	for _, f := range files {
		sqlBytes, err := os.ReadFile(f)
		if err != nil {
			t.Fatalf("read %s: %v", f, err)
		}
		if _, err := db.Exec(string(sqlBytes)); err != nil {
			t.Fatalf("exec %s: %v", f, err)
		}
	}
}

func startMySQL(t *testing.T) *sql.DB {
	t.Helper()

	// Isolated MySQL; let Docker pick a free host port.
	pool, err := dockertest.NewPool("")
	if err != nil {
		t.Fatalf("dockertest: %v", err)
	}

	runOpts := &dockertest.RunOptions{
		Repository: "mysql",
		Tag:        "8.0.36",
		Env: []string{
			"MYSQL_ROOT_PASSWORD=root",
			"MYSQL_DATABASE=replydesk",
		},
	}
	resource, err := pool.RunWithOptions(runOpts, func(hc *docker.HostConfig) {
		hc.AutoRemove = true
		hc.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	if err != nil {
		t.Fatalf("run mysql: %v", err)
	}
	t.Cleanup(func() { _ = pool.Purge(resource) })

	hostPort := resource.GetPort("3306/tcp")
	dsn := fmt.Sprintf("root:%s@tcp(127.0.0.1:%s)/%s?parseTime=true&multiStatements=true&charset=utf8mb4,utf8&loc=UTC",
		"root", hostPort, "replydesk")

	var db *sql.DB
	if err := pool.Retry(func() error {
		var e error
		db, e = sql.Open("mysql", dsn)
		if e != nil {
			return e
		}
		return db.Ping()
	}); err != nil {
		t.Fatalf("connect mysql: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	applyMigrations(t, db)
	return db
}

func seedBusiness(t *testing.T, db *sql.DB, id int64, mode string) {
	t.Helper()
	_, err := db.Exec(
		`INSERT INTO businesses (id, name, active, response_mode, response_languages) VALUES (?, ?, 1, ?, '["en"]')`,
		id, fmt.Sprintf("business-%d", id), mode,
	)
	if err != nil {
		t.Fatalf("seed business: %v", err)
	}
}

// ---------- the test ----------
func TestRepo_MySQL_ReviewLifecycle(t *testing.T) {
	db := startMySQL(t)
	repo := mysqlrepo.New(db)
	ctx := context.Background()

	seedBusiness(t, db, 100, "manual")

	rv := domain.Review{
		BusinessID:       100,
		Platform:         domain.PlatformGoogle,
		PlatformReviewID: "g-001",
		ReviewerName:     pstr("Ana"),
		Rating:           pfloat(4.0),
		Content:          pstr("great stay"),
		Lang:             pstr("en"),
		ReviewedAt:       time.Date(2026, 2, 10, 9, 30, 0, 0, time.UTC),
		RawJSON:          []byte(`{"starRating":"FOUR"}`),
	}

	// First sight inserts
	created, err := repo.UpsertReview(ctx, rv)
	if err != nil {
		t.Fatalf("UpsertReview: %v", err)
	}
	if !created {
		t.Fatal("first upsert should report a new row")
	}

	// Re-ingesting the same external review never creates a second row
	rv.Content = pstr("great stay, edited")
	created, err = repo.UpsertReview(ctx, rv)
	if err != nil {
		t.Fatalf("re-upsert: %v", err)
	}
	if created {
		t.Fatal("duplicate natural key reported as new")
	}
	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM reviews WHERE business_id=100`).Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("row count = %d, want 1", count)
	}

	page, err := repo.ListReviews(ctx, domain.ReviewsQuery{BusinessID: 100, Page: 1, PageSize: 50})
	if err != nil {
		t.Fatalf("ListReviews: %v", err)
	}
	if page.Total != 1 || *page.Items[0].Content != "great stay, edited" {
		t.Fatalf("unexpected page: %+v", page)
	}
	id := page.Items[0].ID

	// Workflow: draft -> approve -> publish
	if err := repo.TransitionStatus(ctx, id, domain.StatusPending, domain.StatusAIGenerated,
		domain.TransitionExtra{DraftResponse: pstr("thanks Ana!")}); err != nil {
		t.Fatalf("draft transition: %v", err)
	}
	if err := repo.TransitionStatus(ctx, id, domain.StatusAIGenerated, domain.StatusApproved,
		domain.TransitionExtra{}); err != nil {
		t.Fatalf("approve transition: %v", err)
	}

	// re-ingesting again must not regress the workflow status
	if _, err := repo.UpsertReview(ctx, rv); err != nil {
		t.Fatalf("post-approve upsert: %v", err)
	}
	got, err := repo.GetReview(ctx, id)
	if err != nil {
		t.Fatalf("GetReview: %v", err)
	}
	if got.Status != domain.StatusApproved {
		t.Fatalf("status regressed to %s", got.Status)
	}
	if got.DraftResponse == nil || *got.DraftResponse != "thanks Ana!" {
		t.Fatalf("draft lost: %+v", got.DraftResponse)
	}

	// Stale transition: expected "from" no longer matches
	err = repo.TransitionStatus(ctx, id, domain.StatusAIGenerated, domain.StatusApproved, domain.TransitionExtra{})
	if !errors.Is(err, domain.ErrStaleTransition) {
		t.Fatalf("err = %v, want ErrStaleTransition", err)
	}

	// Illegal pair is rejected before any write
	err = repo.TransitionStatus(ctx, id, domain.StatusPending, domain.StatusPublished, domain.TransitionExtra{})
	if !errors.Is(err, domain.ErrIllegalTransition) {
		t.Fatalf("err = %v, want ErrIllegalTransition", err)
	}

	// Claim the publish, then compensate as if the platform rejected it
	now := time.Now().UTC().Truncate(time.Second)
	if err := repo.TransitionStatus(ctx, id, domain.StatusApproved, domain.StatusPublished,
		domain.TransitionExtra{FinalResponse: pstr("thanks Ana!"), RespondedAt: &now}); err != nil {
		t.Fatalf("publish claim: %v", err)
	}
	if err := repo.MarkPublishFailed(ctx, id, "comment rejected"); err != nil {
		t.Fatalf("MarkPublishFailed: %v", err)
	}
	got, _ = repo.GetReview(ctx, id)
	if got.Status != domain.StatusFailed || got.PublishError == nil || got.FinalResponse != nil {
		t.Fatalf("compensation left review as %+v", got)
	}

	// Compensation is guarded too: a second call finds nothing to demote
	if err := repo.MarkPublishFailed(ctx, id, "again"); !errors.Is(err, domain.ErrStaleTransition) {
		t.Fatalf("err = %v, want ErrStaleTransition", err)
	}
}

func TestRepo_MySQL_ConnectionsAndLogs(t *testing.T) {
	db := startMySQL(t)
	repo := mysqlrepo.New(db)
	ctx := context.Background()

	seedBusiness(t, db, 200, "auto")

	conn := domain.PlatformConnection{
		BusinessID:        200,
		Platform:          domain.PlatformFacebook,
		ExternalAccountID: "acct-1",
		ExternalLocation:  "page-1",
		AccessToken:       "tok-1",
		RefreshToken:      pstr("refresh-1"),
		Enabled:           true,
	}
	if err := repo.UpsertConnection(ctx, conn); err != nil {
		t.Fatalf("UpsertConnection: %v", err)
	}
	// second upsert for the same (business, platform) updates in place
	conn.AccessToken = "tok-2"
	if err := repo.UpsertConnection(ctx, conn); err != nil {
		t.Fatalf("re-upsert connection: %v", err)
	}

	conns, err := repo.ListConnections(ctx, 200)
	if err != nil {
		t.Fatalf("ListConnections: %v", err)
	}
	if len(conns) != 1 || conns[0].AccessToken != "tok-2" {
		t.Fatalf("unexpected connections: %+v", conns)
	}

	// cursor round-trip
	if err := repo.SaveConnectionCursor(ctx, conns[0].ID, "page-token-7"); err != nil {
		t.Fatalf("SaveConnectionCursor: %v", err)
	}
	conns, _ = repo.ListConnections(ctx, 200)
	if conns[0].LastCursor == nil || *conns[0].LastCursor != "page-token-7" {
		t.Fatalf("cursor not persisted: %+v", conns[0].LastCursor)
	}

	// token refresh round-trip
	exp := time.Now().UTC().Add(time.Hour).Truncate(time.Second)
	if err := repo.SaveConnectionToken(ctx, conns[0].ID, "tok-3", pstr("refresh-2"), &exp); err != nil {
		t.Fatalf("SaveConnectionToken: %v", err)
	}
	conns, _ = repo.ListConnections(ctx, 200)
	if conns[0].AccessToken != "tok-3" || conns[0].RefreshToken == nil || *conns[0].RefreshToken != "refresh-2" {
		t.Fatalf("token not persisted: %+v", conns[0])
	}

	// audit row with per-platform results as JSON
	started := time.Now().UTC().Add(-time.Minute).Truncate(time.Second)
	entry := domain.SyncLog{
		ID:         uuid.NewString(),
		BusinessID: 200,
		StartedAt:  started,
		FinishedAt: started.Add(30 * time.Second),
		Success:    true,
		TotalNew:   3,
		Results: []domain.PlatformResult{
			{Platform: domain.PlatformFacebook, Success: true, NewCount: 3},
		},
	}
	if err := repo.RecordSyncLog(ctx, entry); err != nil {
		t.Fatalf("RecordSyncLog: %v", err)
	}
	var logged int
	if err := db.QueryRow(`SELECT COUNT(*) FROM sync_logs WHERE business_id=200 AND success=1`).Scan(&logged); err != nil {
		t.Fatalf("count logs: %v", err)
	}
	if logged != 1 {
		t.Fatalf("logged = %d, want 1", logged)
	}

	biz, err := repo.GetBusiness(ctx, 200)
	if err != nil {
		t.Fatalf("GetBusiness: %v", err)
	}
	if biz.ResponseMode != domain.ResponseAuto || len(biz.ResponseLangs) != 1 {
		t.Fatalf("unexpected business: %+v", biz)
	}
}
