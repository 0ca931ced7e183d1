package stream

import (
	"github.com/b0czek/linuxcnc-node-sub000/internal/hal"
	"github.com/b0czek/linuxcnc-node-sub000/internal/machine"
	"github.com/b0czek/linuxcnc-node-sub000/internal/watch"
)

// StatusCallback returns a listener that broadcasts per-path status changes.
func StatusCallback(h *Hub) watch.Callback {
	return func(newValue, oldValue any, path string) {
		h.Broadcast("status_change", path, map[string]any{
			"new_value": newValue,
			"old_value": oldValue,
		})
	}
}

// MessageCallback returns a listener that broadcasts operator messages.
func MessageCallback(h *Hub) watch.Callback {
	return func(newValue, _ any, kind string) {
		msg, ok := newValue.(machine.Message)
		if !ok {
			return
		}
		h.Broadcast("message", kind, msg)
	}
}

// HalDeltaCallback returns a listener that broadcasts HAL changesets.
func HalDeltaCallback(h *Hub) watch.Callback {
	return func(newValue, _ any, _ string) {
		cs, ok := newValue.(hal.Changeset)
		if !ok {
			return
		}
		h.Broadcast("hal_changeset", hal.DeltaPath, cs)
	}
}
