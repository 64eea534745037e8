package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/polyrec/internal/domain"
)

const (
	defaultRunsLimit = 20
	maxRunsLimit     = 200
)

// JobRunLister reads the job run log.
type JobRunLister interface {
	ListRecent(ctx context.Context, job string, opts domain.ListOpts) ([]domain.JobRun, error)
}

// PipelineHandler serves pipeline trigger and run history endpoints.
type PipelineHandler struct {
	logger    *slog.Logger
	triggerCh chan<- struct{} // when non-nil, sending triggers one pipeline run
	runs      JobRunLister
}

// NewPipelineHandler creates a PipelineHandler with the given logger.
func NewPipelineHandler(logger *slog.Logger) *PipelineHandler {
	return &PipelineHandler{logger: logHandler(logger, "pipeline")}
}

// WithTriggerChannel sets the channel to send on when a trigger is requested.
// The scheduler must receive from this channel to run one cycle.
func (h *PipelineHandler) WithTriggerChannel(ch chan<- struct{}) *PipelineHandler {
	h.triggerCh = ch
	return h
}

// WithRunLog sets the store backing GET /api/pipeline/runs.
func (h *PipelineHandler) WithRunLog(runs JobRunLister) *PipelineHandler {
	h.runs = runs
	return h
}

// TriggerPipeline enqueues one pipeline run. Without a scheduler to consume
// the trigger the endpoint answers 503.
// POST /api/pipeline/trigger
func (h *PipelineHandler) TriggerPipeline(w http.ResponseWriter, r *http.Request) {
	if h.triggerCh == nil {
		writeError(w, http.StatusServiceUnavailable, "pipeline scheduler is not running")
		return
	}

	h.logger.InfoContext(r.Context(), "handler: pipeline trigger requested")
	msg := "pipeline trigger enqueued"
	select {
	case h.triggerCh <- struct{}{}:
	default:
		msg = "pipeline trigger already pending"
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"status":       "accepted",
		"message":      msg,
		"requested_at": time.Now().UTC().Format(time.RFC3339),
	})
}

type jobRunResponse struct {
	RunID     string `json:"run_id"`
	Job       string `json:"job"`
	Status    string `json:"status"`
	Processed int    `json:"processed"`
	Updated   int    `json:"updated"`
	Skipped   int    `json:"skipped"`
	Failed    int    `json:"failed"`
	Error     string `json:"error,omitempty"`
	StartedAt string `json:"started_at"`
	ElapsedMS int64  `json:"elapsed_ms"`
}

// ListRuns returns the most recent job runs, newest first.
// GET /api/pipeline/runs?job=pnl&limit=20
func (h *PipelineHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	if h.runs == nil {
		writeError(w, http.StatusServiceUnavailable, "job run log is not configured")
		return
	}
	limit, err := parseLimit(r)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "")
		return
	}
	if limit == 0 {
		limit = defaultRunsLimit
	}
	limit = min(limit, maxRunsLimit)

	runs, err := h.runs.ListRecent(r.Context(), r.URL.Query().Get("job"), domain.ListOpts{Limit: limit})
	if err != nil {
		writeServiceError(w, r, h.logger, err, "failed to list job runs")
		return
	}

	out := make([]jobRunResponse, 0, len(runs))
	for _, run := range runs {
		status := "succeeded"
		if !run.Succeeded() {
			status = "failed"
		}
		out = append(out, jobRunResponse{
			RunID:     run.RunID,
			Job:       run.Job,
			Status:    status,
			Processed: run.Processed,
			Updated:   run.Updated,
			Skipped:   run.Skipped,
			Failed:    run.Failed,
			Error:     run.Error,
			StartedAt: run.StartedAt.UTC().Format(time.RFC3339),
			ElapsedMS: run.Elapsed.Milliseconds(),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": out})
}
