// Package message exposes the backend error channel as subscribable
// operator-message events. Messages carry no comparison baseline: every
// message drained from the channel is delivered once to the listeners of
// its category ("error", "text" or "display").
package message

import (
	"log/slog"
	"sync"
	"time"

	"github.com/b0czek/linuxcnc-node-sub000/internal/channels"
	"github.com/b0czek/linuxcnc-node-sub000/internal/machine"
	"github.com/b0czek/linuxcnc-node-sub000/internal/watch"
)

const (
	// MinPollInterval is the floor for the message poll interval. Operator
	// messages are rare; polling them below 50ms buys nothing.
	MinPollInterval = 50 * time.Millisecond

	// DefaultPollInterval is used when no interval is configured.
	DefaultPollInterval = 100 * time.Millisecond
)

// Watcher polls an ErrorChannel and fans each drained message out to the
// listeners of its category. Listener callbacks receive the machine.Message
// as newValue, a nil oldValue, and the category as path.
type Watcher struct {
	source machine.ErrorChannel
	logger *slog.Logger
	diag   *channels.Events
	sched  *watch.Scheduler

	mu        sync.Mutex
	registry  *watch.Registry
	destroyed bool
}

// Option configures a Watcher.
type Option func(*options)

type options struct {
	logger   *slog.Logger
	diag     *channels.Events
	interval time.Duration
}

// WithLogger sets the diagnostic logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithDiagnostics attaches the diagnostics channel hub.
func WithDiagnostics(diag *channels.Events) Option {
	return func(o *options) { o.diag = diag }
}

// WithPollInterval sets the initial poll interval, clamped to MinPollInterval.
// Non-positive durations keep the default.
func WithPollInterval(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.interval = d
		}
	}
}

// New creates a stopped watcher over source.
func New(source machine.ErrorChannel, opts ...Option) *Watcher {
	o := &options{
		logger:   slog.Default(),
		interval: DefaultPollInterval,
	}
	for _, opt := range opts {
		opt(o)
	}

	w := &Watcher{
		source:   source,
		logger:   o.logger.With("component", "message-watcher"),
		diag:     o.diag,
		registry: watch.NewRegistry(),
	}
	w.sched = watch.NewScheduler(MinPollInterval, o.interval, w.pollCycle)
	return w
}

// On subscribes fn to messages of the given kind.
func (w *Watcher) On(kind machine.MessageKind, fn watch.Callback) {
	w.subscribe(kind, fn, false)
}

// Once subscribes fn for a single message of the given kind.
func (w *Watcher) Once(kind machine.MessageKind, fn watch.Callback) {
	w.subscribe(kind, fn, true)
}

func (w *Watcher) subscribe(kind machine.MessageKind, fn watch.Callback, once bool) {
	if fn == nil {
		return
	}
	w.mu.Lock()
	if w.destroyed {
		w.mu.Unlock()
		return
	}
	wasEmpty := w.registry.Empty()
	w.registry.Subscribe(string(kind), fn, once, nil)
	arm := wasEmpty && !w.registry.Empty()
	w.mu.Unlock()

	if arm {
		w.sched.Start()
		w.publishState("armed")
	}
}

// Off removes a previously subscribed callback. No-op if never subscribed.
func (w *Watcher) Off(kind machine.MessageKind, fn watch.Callback) {
	w.mu.Lock()
	w.registry.Unsubscribe(string(kind), fn)
	disarm := w.registry.Empty() && w.sched.Running()
	w.mu.Unlock()

	if disarm {
		w.sched.Stop()
		w.publishState("idle")
	}
}

// SetPollInterval reconfigures the poll interval, clamped to MinPollInterval.
func (w *Watcher) SetPollInterval(d time.Duration) {
	w.sched.SetInterval(d)
}

// PollInterval returns the effective poll interval.
func (w *Watcher) PollInterval() time.Duration {
	return w.sched.Interval()
}

// Destroy stops the scheduler, clears subscriptions and disconnects the
// source. Idempotent.
func (w *Watcher) Destroy() {
	w.mu.Lock()
	if w.destroyed {
		w.mu.Unlock()
		return
	}
	w.destroyed = true
	w.registry.Clear()
	w.mu.Unlock()

	w.sched.Stop()
	if err := w.source.Close(); err != nil {
		w.logger.Warn("failed to close error channel", "error", err)
	}
	w.publishState("idle")
}

// pollCycle drains at most one message per tick, matching the backend
// channel's one-read-per-poll contract.
func (w *Watcher) pollCycle() {
	w.mu.Lock()
	if w.destroyed || w.registry.Empty() {
		w.mu.Unlock()
		return
	}

	msg, err := w.source.Poll()
	if err != nil {
		w.mu.Unlock()
		w.logger.Error("message poll failed", "error", err)
		w.diag.PublishPollError(channels.PollErrorEvent{
			Watcher:   "message",
			Err:       err,
			Timestamp: time.Now(),
		})
		return
	}
	if msg == nil {
		w.mu.Unlock()
		return
	}

	kind := string(msg.Kind)
	deliveries := w.registry.Deliveries(kind)
	w.mu.Unlock()

	var fired []uintptr
	for _, d := range deliveries {
		if rec := watch.Invoke(d.Fn, *msg, nil, kind); rec != nil {
			w.logger.Error("message listener panicked",
				"kind", kind,
				"panic", rec,
			)
			w.diag.PublishListenerPanic(channels.ListenerPanicEvent{
				Watcher:   "message",
				Path:      kind,
				Recovered: rec,
				Timestamp: time.Now(),
			})
		}
		if d.Once {
			fired = append(fired, d.Key)
		}
	}

	w.mu.Lock()
	if !w.destroyed {
		for _, key := range fired {
			w.registry.RemoveKey(kind, key)
		}
	}
	disarm := !w.destroyed && w.registry.Empty() && w.sched.Running()
	w.mu.Unlock()

	if disarm {
		w.sched.Stop()
		w.publishState("idle")
	}
}

func (w *Watcher) publishState(state string) {
	w.diag.PublishWatcherState(channels.WatcherStateEvent{
		Watcher:   "message",
		State:     state,
		Timestamp: time.Now(),
	})
}
