// Package channels provides typed Go channels for the bridge's diagnostic
// event stream, replacing a generic string-keyed emitter with compile-time
// type safety. Poll- and dispatch-time failures never propagate as errors to
// API callers; they surface here (and in the log) instead, so anything that
// needs poll-health monitoring consumes these channels.
package channels

import "time"

// PollErrorEvent is published when a watcher's poll cycle fails at the
// source boundary. The cycle ended early; the next tick proceeds normally.
type PollErrorEvent struct {
	Watcher   string // "status", "message", "hal"
	Err       error
	Timestamp time.Time
}

// ListenerPanicEvent is published when a subscriber callback panics during
// dispatch. Sibling listeners were still invoked.
type ListenerPanicEvent struct {
	Watcher   string
	Path      string
	Recovered any
	Timestamp time.Time
}

// WatcherStateEvent is published on the idle/armed transitions of a watcher:
// armed when its first watch is added, idle when the last one is removed.
type WatcherStateEvent struct {
	Watcher   string
	State     string // "armed", "idle"
	Timestamp time.Time
}

// Config sets the buffer sizes for the event channels.
type Config struct {
	PollErrorBufferSize     int
	ListenerPanicBufferSize int
	WatcherStateBufferSize  int
}

// Events is the hub of typed diagnostic channels shared by all watchers.
type Events struct {
	PollError     chan PollErrorEvent
	ListenerPanic chan ListenerPanicEvent
	WatcherState  chan WatcherStateEvent

	done chan struct{}
}

// NewEvents creates an Events hub with the configured buffer sizes. Zero or
// negative sizes fall back to a small default.
func NewEvents(cfg Config) *Events {
	return &Events{
		PollError:     make(chan PollErrorEvent, bufSize(cfg.PollErrorBufferSize)),
		ListenerPanic: make(chan ListenerPanicEvent, bufSize(cfg.ListenerPanicBufferSize)),
		WatcherState:  make(chan WatcherStateEvent, bufSize(cfg.WatcherStateBufferSize)),
		done:          make(chan struct{}),
	}
}

func bufSize(n int) int {
	if n <= 0 {
		return 32
	}
	return n
}

// PublishPollError emits a poll failure event without blocking; if the
// buffer is full the event is dropped (the log still has it).
func (e *Events) PublishPollError(ev PollErrorEvent) {
	if e == nil {
		return
	}
	select {
	case e.PollError <- ev:
	default:
	}
}

// PublishListenerPanic emits a listener panic event without blocking.
func (e *Events) PublishListenerPanic(ev ListenerPanicEvent) {
	if e == nil {
		return
	}
	select {
	case e.ListenerPanic <- ev:
	default:
	}
}

// PublishWatcherState emits an armed/idle transition without blocking.
func (e *Events) PublishWatcherState(ev WatcherStateEvent) {
	if e == nil {
		return
	}
	select {
	case e.WatcherState <- ev:
	default:
	}
}

// Close shuts down all channels to signal consumers to exit.
func (e *Events) Close() error {
	close(e.done)
	close(e.PollError)
	close(e.ListenerPanic)
	close(e.WatcherState)
	return nil
}

// Done returns a channel closed when the hub is shutting down.
func (e *Events) Done() <-chan struct{} {
	return e.done
}
