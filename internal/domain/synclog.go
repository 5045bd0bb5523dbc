package domain

import "time"

// PlatformResult is the outcome of syncing one (business, platform) pair.
// Failure is explicit: Success=false plus Error, never a swallowed log line.
type PlatformResult struct {
	Platform  Platform `json:"platform"`
	Success   bool     `json:"success"`
	NewCount  int      `json:"newCount"`
	Published int      `json:"published"`
	Error     string   `json:"error,omitempty"`
}

// BusinessSyncResult aggregates per-platform results for one business run.
type BusinessSyncResult struct {
	BusinessID     int64            `json:"businessId"`
	TotalNew       int              `json:"totalNew"`
	TotalPublished int              `json:"totalPublished"`
	PerPlatform    []PlatformResult `json:"perPlatform"`
	Error          string           `json:"error,omitempty"`
}

// SyncLog is one append-only audit row per (business, run).
type SyncLog struct {
	ID             string // run id (uuid)
	BusinessID     int64
	StartedAt      time.Time
	FinishedAt     time.Time
	Success        bool
	TotalNew       int
	TotalPublished int
	Error          *string
	Results        []PlatformResult
}

// RunSummary is the terminal report of one cron tick. Not persisted; the
// per-business SyncLog rows are the durable trail.
type RunSummary struct {
	RunID               string               `json:"runId"`
	Success             bool                 `json:"success"`
	BusinessesProcessed int                  `json:"businessesProcessed"`
	TotalNew            int                  `json:"totalNew"`
	TotalPublished      int                  `json:"totalPublished"`
	Errors              int                  `json:"errors"`
	Duration            time.Duration        `json:"duration"`
	Results             []BusinessSyncResult `json:"results"`
}
