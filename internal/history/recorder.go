package history

import (
	"github.com/b0czek/linuxcnc-node-sub000/internal/hal"
	"github.com/b0czek/linuxcnc-node-sub000/internal/machine"
	"github.com/b0czek/linuxcnc-node-sub000/internal/watch"
)

// Sink is where the recorder submits records. Satisfied by *Writer.
type Sink interface {
	Submit(ChangeRecord) bool
}

// Recorder adapts watcher callbacks into change records. Attach its
// callbacks with the watchers' On methods; they are ordinary listeners and
// follow the same delivery rules as any other.
type Recorder struct {
	sink Sink
}

// NewRecorder creates a recorder writing into sink.
func NewRecorder(sink Sink) *Recorder {
	return &Recorder{sink: sink}
}

// StatusCallback records per-path status changes.
func (r *Recorder) StatusCallback() watch.Callback {
	return func(newValue, oldValue any, path string) {
		r.sink.Submit(ChangeRecord{
			Source:   "status",
			Path:     path,
			OldValue: oldValue,
			NewValue: newValue,
		})
	}
}

// MessageCallback records operator messages under their kind.
func (r *Recorder) MessageCallback() watch.Callback {
	return func(newValue, _ any, kind string) {
		msg, ok := newValue.(machine.Message)
		if !ok {
			return
		}
		r.sink.Submit(ChangeRecord{
			Source:   "message",
			Path:     kind,
			Recorded: msg.Time,
			NewValue: msg.Text,
		})
	}
}

// HalDeltaCallback records every item of each HAL changeset with the
// changeset's cursor.
func (r *Recorder) HalDeltaCallback() watch.Callback {
	return func(newValue, _ any, _ string) {
		cs, ok := newValue.(hal.Changeset)
		if !ok {
			return
		}
		for _, c := range cs.Changes {
			cursor := cs.Cursor
			r.sink.Submit(ChangeRecord{
				Source:   "hal",
				Path:     c.Name,
				Cursor:   &cursor,
				Recorded: cs.Timestamp,
				NewValue: c.Value,
			})
		}
	}
}
