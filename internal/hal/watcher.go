// Package hal models an in-process HAL component and a change watcher over
// its pins and parameters. Writes mark items dirty; a poll cycle collects
// the dirty set into a cursor-stamped changeset and notifies per-item and
// whole-changeset listeners.
package hal

import (
	"log/slog"
	"sync"
	"time"

	"github.com/b0czek/linuxcnc-node-sub000/internal/channels"
	"github.com/b0czek/linuxcnc-node-sub000/internal/watch"
)

const (
	// MinPollInterval is the floor for the HAL poll interval; requests
	// below it are clamped up.
	MinPollInterval = 10 * time.Millisecond

	// DefaultPollInterval is used when no interval is configured.
	DefaultPollInterval = 100 * time.Millisecond

	// DeltaPath subscribes to whole changesets rather than a single item.
	DeltaPath = "delta"
)

// Changeset is the batch of item changes produced by one non-empty poll
// cycle. Cursor increases by one per non-empty cycle; empty cycles do not
// advance it.
type Changeset struct {
	Cursor    uint64       `json:"cursor"`
	Timestamp time.Time    `json:"timestamp"`
	Changes   []ItemChange `json:"changes"`
}

// Snapshot is a consistent view of every item's value together with the
// cursor of the cycle that produced it.
type Snapshot struct {
	Items     map[string]any `json:"items"`
	Cursor    uint64         `json:"cursor"`
	Timestamp time.Time      `json:"timestamp"`
}

// Watcher polls a Source and notifies listeners of item changes. Per-item
// listeners subscribe under the item's full name; DeltaPath listeners
// receive the Changeset of every non-empty cycle. The zero value is not
// usable; construct with New.
type Watcher struct {
	source Source
	logger *slog.Logger
	diag   *channels.Events
	sched  *watch.Scheduler

	mu        sync.Mutex
	registry  *watch.Registry
	items     map[string]any
	cursor    uint64
	stamp     time.Time
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

// New creates a stopped watcher over source, priming the item table from
// the source's current values. The scheduler arms on the first subscription
// and disarms when the last one is removed.
func New(source Source, opts ...Option) *Watcher {
	o := &options{
		logger:   slog.Default(),
		interval: DefaultPollInterval,
	}
	for _, opt := range opts {
		opt(o)
	}

	w := &Watcher{
		source:   source,
		logger:   o.logger.With("component", "hal-watcher"),
		diag:     o.diag,
		registry: watch.NewRegistry(),
		items:    source.Values(),
		stamp:    time.Now(),
	}
	w.sched = watch.NewScheduler(MinPollInterval, o.interval, w.pollCycle)
	return w
}

// On subscribes fn to changes of the named item, or of every non-empty
// cycle when name is DeltaPath. Per-item baselines are the value at
// subscription time. Subscribing the same callback to the same name twice
// registers it once.
func (w *Watcher) On(name string, fn watch.Callback) {
	w.subscribe(name, fn, false)
}

// Once subscribes fn for a single delivery; it is removed after its first
// invocation.
func (w *Watcher) Once(name string, fn watch.Callback) {
	w.subscribe(name, fn, true)
}

func (w *Watcher) subscribe(name string, fn watch.Callback, once bool) {
	if fn == nil {
		return
	}
	w.mu.Lock()
	if w.destroyed {
		w.mu.Unlock()
		return
	}
	wasEmpty := w.registry.Empty()
	w.registry.Subscribe(name, fn, once, func(n string) any {
		if n == DeltaPath {
			return nil
		}
		return w.items[n]
	})
	arm := wasEmpty && !w.registry.Empty()
	w.mu.Unlock()

	if arm {
		w.sched.Start()
		w.publishState("armed")
	}
}

// OnDelta subscribes fn to whole changesets; shorthand for On(DeltaPath, fn).
// The callback receives the Changeset as newValue and a nil oldValue.
func (w *Watcher) OnDelta(fn watch.Callback) {
	w.subscribe(DeltaPath, fn, false)
}

// OffDelta removes a changeset listener added with OnDelta.
func (w *Watcher) OffDelta(fn watch.Callback) {
	w.Off(DeltaPath, fn)
}

// Off removes a previously subscribed callback from name. Removing a
// callback that was never subscribed is a no-op.
func (w *Watcher) Off(name string, fn watch.Callback) {
	w.mu.Lock()
	w.registry.Unsubscribe(name, fn)
	disarm := w.registry.Empty() && w.sched.Running()
	w.mu.Unlock()

	if disarm {
		w.sched.Stop()
		w.publishState("idle")
	}
}

// RemoveListener is an alias for Off.
func (w *Watcher) RemoveListener(name string, fn watch.Callback) {
	w.Off(name, fn)
}

// Cursor returns the cursor of the last non-empty cycle, 0 before any.
func (w *Watcher) Cursor() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.cursor
}

// GetSnapshot returns the current item table with the cursor it is
// consistent with. Independent of subscriptions.
func (w *Watcher) GetSnapshot() Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	items := make(map[string]any, len(w.items))
	for k, v := range w.items {
		items[k] = v
	}
	return Snapshot{Items: items, Cursor: w.cursor, Timestamp: w.stamp}
}

// SetPollInterval reconfigures the poll interval, clamped to MinPollInterval.
func (w *Watcher) SetPollInterval(d time.Duration) {
	w.sched.SetInterval(d)
}

// PollInterval returns the effective poll interval.
func (w *Watcher) PollInterval() time.Duration {
	return w.sched.Interval()
}

// Destroy stops the scheduler, clears all subscriptions and releases the
// source. Safe to call more than once and at any time.
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
		w.logger.Warn("failed to close hal source", "error", err)
	}
	w.publishState("idle")
}

// pollCycle runs one poll/commit/dispatch round. It is only ever invoked by
// the scheduler, which guarantees cycles never overlap.
func (w *Watcher) pollCycle() {
	w.mu.Lock()
	if w.destroyed || w.registry.Empty() {
		w.mu.Unlock()
		return
	}

	reported := w.source.Poll(false)

	// A dirty mark can be left by a write that restored the previous value;
	// only items whose value actually differs from the table make the
	// changeset.
	var changes []ItemChange
	type itemChange struct {
		name       string
		oldValue   any
		newValue   any
		deliveries []watch.Delivery
	}
	var perItem []itemChange
	for _, c := range reported {
		prev, known := w.items[c.Name]
		if known && watch.Equal(prev, c.Value) {
			continue
		}
		changes = append(changes, c)
		if w.registry.Watched(c.Name) {
			oldValue, _ := w.registry.Baseline(c.Name)
			perItem = append(perItem, itemChange{
				name:       c.Name,
				oldValue:   oldValue,
				newValue:   c.Value,
				deliveries: w.registry.Deliveries(c.Name),
			})
		}
	}
	if len(changes) == 0 {
		w.mu.Unlock()
		return
	}

	// Commit before dispatch so listeners calling GetSnapshot or Cursor
	// observe the cycle that is being delivered to them.
	w.cursor++
	w.stamp = time.Now()
	for _, c := range changes {
		w.items[c.Name] = c.Value
	}
	cs := Changeset{Cursor: w.cursor, Timestamp: w.stamp, Changes: changes}
	deltaDeliveries := w.registry.Deliveries(DeltaPath)
	w.mu.Unlock()

	type firedOnce struct {
		name string
		key  uintptr
	}
	var fired []firedOnce
	for _, c := range perItem {
		for _, d := range c.deliveries {
			if rec := watch.Invoke(d.Fn, c.newValue, c.oldValue, c.name); rec != nil {
				w.reportPanic(c.name, rec)
			}
			if d.Once {
				fired = append(fired, firedOnce{name: c.name, key: d.Key})
			}
		}
	}
	for _, d := range deltaDeliveries {
		if rec := watch.Invoke(d.Fn, cs, nil, DeltaPath); rec != nil {
			w.reportPanic(DeltaPath, rec)
		}
		if d.Once {
			fired = append(fired, firedOnce{name: DeltaPath, key: d.Key})
		}
	}

	w.mu.Lock()
	if !w.destroyed {
		for _, c := range perItem {
			w.registry.SetBaseline(c.name, c.newValue)
		}
		for _, f := range fired {
			w.registry.RemoveKey(f.name, f.key)
		}
	}
	disarm := !w.destroyed && w.registry.Empty() && w.sched.Running()
	w.mu.Unlock()

	if disarm {
		w.sched.Stop()
		w.publishState("idle")
	}
}

func (w *Watcher) reportPanic(name string, rec any) {
	w.logger.Error("hal listener panicked",
		"item", name,
		"panic", rec,
	)
	w.diag.PublishListenerPanic(channels.ListenerPanicEvent{
		Watcher:   "hal",
		Path:      name,
		Recovered: rec,
		Timestamp: time.Now(),
	})
}

func (w *Watcher) publishState(state string) {
	w.diag.PublishWatcherState(channels.WatcherStateEvent{
		Watcher:   "hal",
		State:     state,
		Timestamp: time.Now(),
	})
}
