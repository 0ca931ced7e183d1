// Package status exposes the backend status channel as per-field change
// subscriptions. One poll cycle refreshes the full status record; only paths
// with active subscriptions are diffed against their baselines, and each
// changed path is delivered once per cycle to its listeners in subscription
// order.
package status

import (
	"log/slog"
	"sync"
	"time"

	"github.com/b0czek/linuxcnc-node-sub000/internal/channels"
	"github.com/b0czek/linuxcnc-node-sub000/internal/machine"
	"github.com/b0czek/linuxcnc-node-sub000/internal/watch"
)

const (
	// MinPollInterval is the floor for the status poll interval; requests
	// below it are clamped up.
	MinPollInterval = 10 * time.Millisecond

	// DefaultPollInterval is used when no interval is configured.
	DefaultPollInterval = 50 * time.Millisecond
)

// Watcher polls a StatChannel and notifies listeners of per-path changes.
// The zero value is not usable; construct with New.
type Watcher struct {
	source machine.StatChannel
	logger *slog.Logger
	diag   *channels.Events
	sched  *watch.Scheduler

	mu        sync.Mutex
	registry  *watch.Registry
	snapshot  map[string]any
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

// New creates a stopped watcher over source. The scheduler arms on the first
// subscription and disarms when the last one is removed.
func New(source machine.StatChannel, opts ...Option) *Watcher {
	o := &options{
		logger:   slog.Default(),
		interval: DefaultPollInterval,
	}
	for _, opt := range opts {
		opt(o)
	}

	w := &Watcher{
		source:   source,
		logger:   o.logger.With("component", "status-watcher"),
		diag:     o.diag,
		registry: watch.NewRegistry(),
	}
	w.sched = watch.NewScheduler(MinPollInterval, o.interval, w.pollCycle)
	return w
}

// On subscribes fn to changes of the value at path. The comparison baseline
// for a newly watched path is the value at subscription time, so the first
// notification reflects the first change after subscribing. Subscribing the
// same callback to the same path twice registers it once.
func (w *Watcher) On(path string, fn watch.Callback) {
	w.subscribe(path, fn, false)
}

// Once subscribes fn for a single delivery; it is removed after its first
// invocation.
func (w *Watcher) Once(path string, fn watch.Callback) {
	w.subscribe(path, fn, true)
}

func (w *Watcher) subscribe(path string, fn watch.Callback, once bool) {
	if fn == nil {
		return
	}
	w.mu.Lock()
	if w.destroyed {
		w.mu.Unlock()
		return
	}
	wasEmpty := w.registry.Empty()
	if wasEmpty {
		// The cache goes stale while no path is watched; refresh it so the
		// new baseline is the value at subscription time.
		w.refreshSnapshotLocked()
	}
	w.registry.Subscribe(path, fn, once, func(p string) any {
		return watch.Clone(watch.Resolve(w.snapshot, p))
	})
	arm := wasEmpty && !w.registry.Empty()
	w.mu.Unlock()

	if arm {
		w.sched.Start()
		w.publishState("armed")
	}
}

// Off removes a previously subscribed callback from path. Removing a
// callback that was never subscribed is a no-op.
func (w *Watcher) Off(path string, fn watch.Callback) {
	w.mu.Lock()
	w.registry.Unsubscribe(path, fn)
	disarm := w.registry.Empty() && w.sched.Running()
	w.mu.Unlock()

	if disarm {
		w.sched.Stop()
		w.publishState("idle")
	}
}

// RemoveListener is an alias for Off.
func (w *Watcher) RemoveListener(path string, fn watch.Callback) {
	w.Off(path, fn)
}

// Get returns a copy of the last cached full snapshot tree, or nil if the
// source has not been successfully polled yet. Independent of subscriptions.
func (w *Watcher) Get() map[string]any {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.snapshot == nil {
		return nil
	}
	return watch.Clone(w.snapshot).(map[string]any)
}

// SetPollInterval reconfigures the poll interval, clamped to MinPollInterval.
func (w *Watcher) SetPollInterval(d time.Duration) {
	w.sched.SetInterval(d)
}

// PollInterval returns the effective poll interval.
func (w *Watcher) PollInterval() time.Duration {
	return w.sched.Interval()
}

// Destroy stops the scheduler, clears all subscriptions and disconnects the
// source. Safe to call more than once and at any time; an in-flight poll
// cycle completes but no further ticks fire.
func (w *Watcher) Destroy() {
	w.mu.Lock()
	if w.destroyed {
		w.mu.Unlock()
		return
	}
	w.destroyed = true
	w.registry.Clear()
	w.snapshot = nil
	w.mu.Unlock()

	w.sched.Stop()
	if err := w.source.Close(); err != nil {
		w.logger.Warn("failed to close stat channel", "error", err)
	}
	w.publishState("idle")
}

// refreshSnapshotLocked fetches a snapshot so baselines for new
// subscriptions reflect the state at subscription time rather than the last
// value cached before the watcher went idle. Poll errors are logged; the
// baseline then falls back to the cached snapshot (or nil) and the first
// successful cycle reports the difference.
func (w *Watcher) refreshSnapshotLocked() {
	changed, err := w.source.Poll()
	if err != nil {
		w.logger.Warn("baseline status poll failed", "error", err)
		w.publishPollError(err)
		return
	}
	if !changed && w.snapshot != nil {
		return
	}
	st := w.source.Status()
	if st == nil {
		return
	}
	tree, err := st.Tree()
	if err != nil {
		w.logger.Error("failed to convert status snapshot", "error", err)
		return
	}
	w.snapshot = tree
}

type pathChange struct {
	path     string
	oldValue any
	// newValue is delivered to listeners; baseline is an independent clone
	// of the same value, so a listener mutating its argument cannot corrupt
	// the next cycle's comparison.
	newValue   any
	baseline   any
	deliveries []watch.Delivery
}

// pollCycle runs one poll/diff/dispatch round. It is only ever invoked by
// the scheduler, which guarantees cycles never overlap.
func (w *Watcher) pollCycle() {
	w.mu.Lock()
	if w.destroyed || w.registry.Empty() {
		w.mu.Unlock()
		return
	}

	changed, err := w.source.Poll()
	if err != nil {
		w.mu.Unlock()
		w.logger.Error("status poll failed", "error", err)
		w.publishPollError(err)
		return
	}
	if !changed {
		w.mu.Unlock()
		return
	}

	st := w.source.Status()
	if st == nil {
		w.mu.Unlock()
		return
	}
	tree, err := st.Tree()
	if err != nil {
		w.mu.Unlock()
		w.logger.Error("failed to convert status snapshot", "error", err)
		w.publishPollError(err)
		return
	}
	w.snapshot = tree

	var pending []pathChange
	for _, p := range w.registry.Paths() {
		resolved := watch.Resolve(tree, p)
		oldValue, _ := w.registry.Baseline(p)
		if watch.Equal(resolved, oldValue) {
			continue
		}
		pending = append(pending, pathChange{
			path:       p,
			oldValue:   oldValue,
			newValue:   watch.Clone(resolved),
			baseline:   watch.Clone(resolved),
			deliveries: w.registry.Deliveries(p),
		})
	}
	w.mu.Unlock()

	if len(pending) == 0 {
		return
	}

	// Dispatch with the listener lists snapshotted above: listeners that
	// remove themselves or others mid-dispatch only affect later cycles.
	type firedOnce struct {
		path string
		key  uintptr
	}
	var fired []firedOnce
	for _, c := range pending {
		for _, d := range c.deliveries {
			if rec := watch.Invoke(d.Fn, c.newValue, c.oldValue, c.path); rec != nil {
				w.logger.Error("status listener panicked",
					"path", c.path,
					"panic", rec,
				)
				w.diag.PublishListenerPanic(channels.ListenerPanicEvent{
					Watcher:   "status",
					Path:      c.path,
					Recovered: rec,
					Timestamp: time.Now(),
				})
			}
			if d.Once {
				fired = append(fired, firedOnce{path: c.path, key: d.Key})
			}
		}
	}

	// Baselines advance only after every listener for the cycle has fired,
	// so all of them observed the same old value.
	w.mu.Lock()
	if !w.destroyed {
		for _, c := range pending {
			w.registry.SetBaseline(c.path, c.baseline)
		}
		for _, f := range fired {
			w.registry.RemoveKey(f.path, f.key)
		}
	}
	disarm := !w.destroyed && w.registry.Empty() && w.sched.Running()
	w.mu.Unlock()

	if disarm {
		w.sched.Stop()
		w.publishState("idle")
	}
}

func (w *Watcher) publishPollError(err error) {
	w.diag.PublishPollError(channels.PollErrorEvent{
		Watcher:   "status",
		Err:       err,
		Timestamp: time.Now(),
	})
}

func (w *Watcher) publishState(state string) {
	w.diag.PublishWatcherState(channels.WatcherStateEvent{
		Watcher:   "status",
		State:     state,
		Timestamp: time.Now(),
	})
}
