package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/b0czek/linuxcnc-node-sub000/internal/hal"
)

// HalHandler exposes the HAL item table and changeset cursor
type HalHandler struct {
	watcher *hal.Watcher
	comp    *hal.Component
}

// NewHalHandler creates a new HAL handler
func NewHalHandler(watcher *hal.Watcher, comp *hal.Component) *HalHandler {
	return &HalHandler{watcher: watcher, comp: comp}
}

// Snapshot handles GET /api/v1/hal/snapshot. With ?cursor=N the snapshot is
// only returned when the watcher has advanced past N; otherwise 204.
func (h *HalHandler) Snapshot(w http.ResponseWriter, r *http.Request) {
	if q := r.URL.Query().Get("cursor"); q != "" {
		since, err := strconv.ParseUint(q, 10, 64)
		if err != nil {
			sendError(w, r, http.StatusBadRequest, "INVALID_CURSOR", "Cursor must be an unsigned integer", nil)
			return
		}
		if h.watcher.Cursor() <= since {
			w.WriteHeader(http.StatusNoContent)
			return
		}
	}
	sendJSON(w, http.StatusOK, h.watcher.GetSnapshot())
}

// ItemResponse describes one pin or parameter
type ItemResponse struct {
	Name      string `json:"name"`
	Type      string `json:"type"`
	Pin       bool   `json:"pin"`
	Direction string `json:"direction"`
	Value     any    `json:"value"`
}

// Items handles GET /api/v1/hal/items
func (h *HalHandler) Items(w http.ResponseWriter, r *http.Request) {
	items := h.comp.Describe()
	out := make([]ItemResponse, 0, len(items))
	for _, item := range items {
		dir := item.ParamDir.String()
		if item.Pin {
			dir = item.PinDir.String()
		}
		value, _ := h.comp.Get(item.Suffix)
		out = append(out, ItemResponse{
			Name:      item.Name,
			Type:      item.Type.String(),
			Pin:       item.Pin,
			Direction: dir,
			Value:     value,
		})
	}
	sendJSON(w, http.StatusOK, out)
}

// SetItemRequest carries a halcmd-style item write
type SetItemRequest struct {
	Value string `json:"value" validate:"required"`
}

// SetItem handles PUT /api/v1/hal/items/{suffix}
func (h *HalHandler) SetItem(w http.ResponseWriter, r *http.Request) {
	suffix := chi.URLParam(r, "suffix")

	input, ok := decodeJSON[SetItemRequest](w, r)
	if !ok {
		return
	}
	if !validateStruct(w, r, input) {
		return
	}

	if err := h.comp.SetString(suffix, input.Value); err != nil {
		sendError(w, r, http.StatusBadRequest, "SET_FAILED", err.Error(), nil)
		return
	}

	value, err := h.comp.Get(suffix)
	if err != nil {
		sendError(w, r, http.StatusNotFound, "NOT_FOUND", err.Error(), nil)
		return
	}
	sendJSON(w, http.StatusOK, map[string]any{"value": value})
}
