package app_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"replydesk/internal/app"
	"replydesk/internal/domain"
)

func TestRunAll_FailingBusinessDoesNotAbortBatch(t *testing.T) {
	repo := newMemRepo()
	repo.businesses[1] = domain.Business{ID: 1, Active: true, ResponseMode: domain.ResponseManual}
	repo.businesses[2] = domain.Business{ID: 2, Active: true, ResponseMode: domain.ResponseManual}
	repo.businesses[3] = domain.Business{ID: 3, Active: false, ResponseMode: domain.ResponseManual}
	repo.conns = []domain.PlatformConnection{
		connFor(10, 1, domain.PlatformGoogle),
		connFor(20, 2, domain.PlatformGoogle),
	}
	repo.connsErr = map[int64]error{1: errors.New("connections table unreachable")}

	adapters := fakeRegistry{
		domain.PlatformGoogle: &fakeAdapter{
			platform: domain.PlatformGoogle,
			fetch: func(string) (domain.FetchResult, error) {
				return domain.FetchResult{Reviews: raws("g-1")}, nil
			},
		},
	}
	svc := app.NewSyncService(repo, adapters, nil, nil, time.Minute)
	cron := app.NewCron(repo, svc, 0)

	sum := cron.RunAll(context.Background())
	if sum.Success {
		t.Fatal("run with a failed business should not report success")
	}
	// inactive business 3 is skipped, failing business 1 is counted
	if sum.BusinessesProcessed != 2 {
		t.Fatalf("processed = %d, want 2", sum.BusinessesProcessed)
	}
	if sum.Errors != 1 {
		t.Fatalf("errors = %d, want 1", sum.Errors)
	}
	if sum.TotalNew != 1 {
		t.Fatalf("totalNew = %d, want 1 from the healthy business", sum.TotalNew)
	}
	if sum.RunID == "" {
		t.Fatal("run id missing")
	}
}

func TestRunAll_ListBusinessesFailure(t *testing.T) {
	repo := newMemRepo()
	svc := app.NewSyncService(repo, fakeRegistry{}, nil, nil, time.Minute)
	cron := app.NewCron(&failingBusinessRepo{memRepo: repo}, svc, 0)

	sum := cron.RunAll(context.Background())
	if sum.Success || sum.Errors != 1 || sum.BusinessesProcessed != 0 {
		t.Fatalf("unexpected summary: %+v", sum)
	}
}

func TestRunScoped_SingleBusinessAndPlatform(t *testing.T) {
	repo := newMemRepo()
	repo.businesses[1] = domain.Business{ID: 1, Active: true, ResponseMode: domain.ResponseManual}
	repo.conns = []domain.PlatformConnection{
		connFor(10, 1, domain.PlatformGoogle),
		connFor(11, 1, domain.PlatformFacebook),
	}
	fetchOne := func(id string) func(string) (domain.FetchResult, error) {
		return func(string) (domain.FetchResult, error) {
			return domain.FetchResult{Reviews: raws(id)}, nil
		}
	}
	adapters := fakeRegistry{
		domain.PlatformGoogle:   &fakeAdapter{platform: domain.PlatformGoogle, fetch: fetchOne("g-1")},
		domain.PlatformFacebook: &fakeAdapter{platform: domain.PlatformFacebook, fetch: fetchOne("f-1")},
	}
	svc := app.NewSyncService(repo, adapters, nil, nil, time.Minute)
	cron := app.NewCron(repo, svc, 0)

	only := domain.PlatformFacebook
	sum := cron.RunScoped(context.Background(), 1, &only)
	if !sum.Success || sum.BusinessesProcessed != 1 {
		t.Fatalf("unexpected summary: %+v", sum)
	}
	if sum.TotalNew != 1 {
		t.Fatalf("totalNew = %d, want only the facebook review", sum.TotalNew)
	}
	if len(sum.Results) != 1 || len(sum.Results[0].PerPlatform) != 1 {
		t.Fatalf("scope leaked: %+v", sum.Results)
	}
}

// failingBusinessRepo fails only the business enumeration.
type failingBusinessRepo struct {
	*memRepo
}

func (f *failingBusinessRepo) ListActiveBusinesses(ctx context.Context) ([]domain.Business, error) {
	return nil, errors.New("db down")
}
