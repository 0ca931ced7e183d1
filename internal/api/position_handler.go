package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/b0czek/linuxcnc-node-sub000/internal/position"
)

// PositionHandler exposes the motion-history logger
type PositionHandler struct {
	logger *position.Logger
}

// NewPositionHandler creates a new position handler
func NewPositionHandler(logger *position.Logger) *PositionHandler {
	return &PositionHandler{logger: logger}
}

// Current handles GET /api/v1/position
func (h *PositionHandler) Current(w http.ResponseWriter, r *http.Request) {
	p := h.logger.Current()
	if p == nil {
		sendError(w, r, http.StatusNotFound, "NO_POSITION", "No position has been logged yet", nil)
		return
	}
	sendJSON(w, http.StatusOK, p)
}

// HistoryResponse wraps a retained-window slice of logged points
type HistoryResponse struct {
	Count  int              `json:"count"`
	Cursor uint64           `json:"cursor"`
	Points []position.Point `json:"points"`
}

// History handles GET /api/v1/position/history with optional ?start and
// ?count window parameters.
func (h *PositionHandler) History(w http.ResponseWriter, r *http.Request) {
	start, ok := queryInt(w, r, "start", 0)
	if !ok {
		return
	}
	count, ok := queryInt(w, r, "count", -1)
	if !ok {
		return
	}

	points := h.logger.History(start, count)
	sendJSON(w, http.StatusOK, HistoryResponse{
		Count:  len(points),
		Cursor: h.logger.Cursor(),
		Points: points,
	})
}

// Delta handles GET /api/v1/position/delta?cursor=N
func (h *PositionHandler) Delta(w http.ResponseWriter, r *http.Request) {
	var since uint64
	if q := r.URL.Query().Get("cursor"); q != "" {
		parsed, err := strconv.ParseUint(q, 10, 64)
		if err != nil {
			sendError(w, r, http.StatusBadRequest, "INVALID_CURSOR", "Cursor must be an unsigned integer", nil)
			return
		}
		since = parsed
	}
	sendJSON(w, http.StatusOK, h.logger.DeltaSince(since))
}

// StartRequest optionally reconfigures the logger when starting it
type StartRequest struct {
	IntervalMS int `json:"interval_ms" validate:"omitempty,gt=0"`
}

// LoggerStateResponse reports the logger's run state
type LoggerStateResponse struct {
	Running    bool  `json:"running"`
	IntervalMS int64 `json:"interval_ms"`
}

// Start handles POST /api/v1/position/start
func (h *PositionHandler) Start(w http.ResponseWriter, r *http.Request) {
	if r.ContentLength > 0 {
		input, ok := decodeJSON[StartRequest](w, r)
		if !ok {
			return
		}
		if !validateStruct(w, r, input) {
			return
		}
		if input.IntervalMS > 0 {
			h.logger.SetLogInterval(time.Duration(input.IntervalMS) * time.Millisecond)
		}
	}

	h.logger.Start()
	sendJSON(w, http.StatusOK, LoggerStateResponse{
		Running:    h.logger.Running(),
		IntervalMS: h.logger.LogInterval().Milliseconds(),
	})
}

// Stop handles POST /api/v1/position/stop
func (h *PositionHandler) Stop(w http.ResponseWriter, r *http.Request) {
	h.logger.Stop()
	sendJSON(w, http.StatusOK, LoggerStateResponse{
		Running:    h.logger.Running(),
		IntervalMS: h.logger.LogInterval().Milliseconds(),
	})
}

// Clear handles POST /api/v1/position/clear
func (h *PositionHandler) Clear(w http.ResponseWriter, r *http.Request) {
	h.logger.Clear()
	sendJSON(w, http.StatusOK, map[string]any{"cleared": true, "cursor": h.logger.Cursor()})
}

// queryInt parses an optional integer query parameter.
func queryInt(w http.ResponseWriter, r *http.Request, name string, def int) (int, bool) {
	q := r.URL.Query().Get(name)
	if q == "" {
		return def, true
	}
	v, err := strconv.Atoi(q)
	if err != nil {
		sendError(w, r, http.StatusBadRequest, "INVALID_QUERY", "Parameter "+name+" must be an integer", nil)
		return 0, false
	}
	return v, true
}
