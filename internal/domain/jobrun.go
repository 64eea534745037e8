package domain

import (
	"context"
	"time"
)

// JobRun records the outcome of one batch job execution.
type JobRun struct {
	ID        int64
	RunID     string // shared by every job of one pipeline run
	Job       string
	Processed int
	Updated   int
	Skipped   int
	Failed    int
	Error     string // empty on success
	StartedAt time.Time
	Elapsed   time.Duration
}

// Succeeded reports whether the job finished without error.
func (r JobRun) Succeeded() bool { return r.Error == "" }

// JobRunStore is an append-only log of job runs.
type JobRunStore interface {
	Record(ctx context.Context, run JobRun) error
	// ListRecent returns runs newest first. An empty job lists every job.
	ListRecent(ctx context.Context, job string, opts ListOpts) ([]JobRun, error)
}
