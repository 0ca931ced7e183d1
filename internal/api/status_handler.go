package api

import (
	"net/http"
	"time"

	"github.com/b0czek/linuxcnc-node-sub000/internal/status"
)

// StatusHandler exposes the cached machine status snapshot
type StatusHandler struct {
	watcher *status.Watcher
}

// NewStatusHandler creates a new status handler
func NewStatusHandler(watcher *status.Watcher) *StatusHandler {
	return &StatusHandler{watcher: watcher}
}

// Get handles GET /api/v1/status
func (h *StatusHandler) Get(w http.ResponseWriter, r *http.Request) {
	snapshot := h.watcher.Get()
	if snapshot == nil {
		sendError(w, r, http.StatusServiceUnavailable, "NO_SNAPSHOT", "Status has not been polled yet", nil)
		return
	}
	sendJSON(w, http.StatusOK, snapshot)
}

// IntervalRequest carries a poll interval update
type IntervalRequest struct {
	IntervalMS int `json:"interval_ms" validate:"required,gt=0"`
}

// IntervalResponse reports the effective poll interval after clamping
type IntervalResponse struct {
	IntervalMS int64 `json:"interval_ms"`
}

// SetInterval handles PUT /api/v1/status/interval
func (h *StatusHandler) SetInterval(w http.ResponseWriter, r *http.Request) {
	input, ok := decodeJSON[IntervalRequest](w, r)
	if !ok {
		return
	}
	if !validateStruct(w, r, input) {
		return
	}

	h.watcher.SetPollInterval(time.Duration(input.IntervalMS) * time.Millisecond)
	sendJSON(w, http.StatusOK, IntervalResponse{
		IntervalMS: h.watcher.PollInterval().Milliseconds(),
	})
}
