package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/polyrec/internal/domain"
)

// Job is one batch step of the pipeline.
type Job interface {
	Run(ctx context.Context) (Stats, error)
}

// Job names, matching the run modes that execute them alone.
const (
	JobBackfill   = "backfill"
	JobRefresh    = "refresh"
	JobSummaries  = "summaries"
	JobPnL        = "pnl"
	JobCategories = "categories"
	JobEmbeddings = "embeddings"
	JobProfiles   = "profiles"
	JobCluster    = "cluster"
)

// PipelineOrder is the sequence RunPipeline executes. Backfill is run on
// demand only.
var PipelineOrder = []string{
	JobRefresh,
	JobSummaries,
	JobCategories,
	JobEmbeddings,
	JobPnL,
	JobProfiles,
	JobCluster,
}

// Orchestrator runs registered jobs by name, alone or as the full pipeline.
type Orchestrator struct {
	jobs      map[string]Job
	runs      domain.JobRunStore // optional
	observers []RunObserver
	logger    *slog.Logger
}

// RunObserver is told about every finished job run, e.g. to send alerts.
type RunObserver interface {
	JobFinished(ctx context.Context, run domain.JobRun)
}

// NewOrchestrator creates an Orchestrator over jobs keyed by name.
func NewOrchestrator(jobs map[string]Job, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		jobs:   jobs,
		logger: logger.With(slog.String("component", "orchestrator")),
	}
}

// WithRunLog records every job run in store.
func (o *Orchestrator) WithRunLog(store domain.JobRunStore) *Orchestrator {
	o.runs = store
	return o
}

// WithObserver adds obs to the observers notified after each job.
func (o *Orchestrator) WithObserver(obs RunObserver) *Orchestrator {
	o.observers = append(o.observers, obs)
	return o
}

// RunJob runs a single job and logs its stats under a fresh run id.
func (o *Orchestrator) RunJob(ctx context.Context, name string) (Stats, error) {
	return o.runJob(ctx, uuid.New().String(), name)
}

func (o *Orchestrator) runJob(ctx context.Context, runID, name string) (Stats, error) {
	job, ok := o.jobs[name]
	if !ok {
		return Stats{}, fmt.Errorf("pipeline: unknown job %q", name)
	}

	logger := o.logger.With(slog.String("job", name), slog.String("run_id", runID))
	logger.InfoContext(ctx, "job starting")
	start := time.Now()

	stats, err := job.Run(ctx)
	elapsed := time.Since(start)
	o.record(ctx, logger, runID, name, start, elapsed, stats, err)

	attrs := append(stats.attrs(), slog.Duration("elapsed", elapsed))
	if err != nil {
		logger.ErrorContext(ctx, "job failed", append(attrs, slog.String("error", err.Error()))...)
		return stats, fmt.Errorf("pipeline: %s: %w", name, err)
	}
	logger.InfoContext(ctx, "job complete", attrs...)
	return stats, nil
}

// RunPipeline runs the jobs of PipelineOrder in sequence under one run id.
// Jobs that are not registered are skipped. The first job error stops the
// run.
func (o *Orchestrator) RunPipeline(ctx context.Context) error {
	runID := uuid.New().String()
	o.logger.InfoContext(ctx, "pipeline starting", slog.String("run_id", runID))
	start := time.Now()

	for _, name := range PipelineOrder {
		if _, ok := o.jobs[name]; !ok {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := o.runJob(ctx, runID, name); err != nil {
			return err
		}
	}

	o.logger.InfoContext(ctx, "pipeline complete",
		slog.String("run_id", runID),
		slog.Duration("elapsed", time.Since(start)),
	)
	return nil
}

// record writes the run to the run log and tells the observers. Neither can
// fail the job.
func (o *Orchestrator) record(ctx context.Context, logger *slog.Logger, runID, name string,
	start time.Time, elapsed time.Duration, stats Stats, jobErr error) {
	if o.runs == nil && len(o.observers) == 0 {
		return
	}
	run := domain.JobRun{
		RunID:     runID,
		Job:       name,
		Processed: stats.Processed,
		Updated:   stats.Updated,
		Skipped:   stats.Skipped,
		Failed:    stats.Failed,
		StartedAt: start.UTC(),
		Elapsed:   elapsed,
	}
	if jobErr != nil {
		run.Error = jobErr.Error()
	}

	// The job context may already be cancelled; the record should still land.
	recCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
	defer cancel()
	if o.runs != nil {
		if err := o.runs.Record(recCtx, run); err != nil {
			logger.WarnContext(ctx, "job run not recorded", slog.String("error", err.Error()))
		}
	}
	for _, obs := range o.observers {
		obs.JobFinished(recCtx, run)
	}
}
