package handler

import (
	"net/http"
	"time"
)

// StatusHandler serves the running mode and uptime.
type StatusHandler struct {
	Mode      string
	StartedAt time.Time
}

// NewStatusHandler creates a StatusHandler for the given mode.
func NewStatusHandler(mode string, startedAt time.Time) *StatusHandler {
	return &StatusHandler{Mode: mode, StartedAt: startedAt}
}

// GetStatus responds with the current mode and uptime.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"mode":           h.Mode,
		"started_at":     h.StartedAt.UTC().Format(time.RFC3339),
		"uptime_seconds": int64(time.Since(h.StartedAt).Seconds()),
	})
}
