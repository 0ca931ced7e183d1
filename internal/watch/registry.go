package watch

import "unsafe"

// Callback receives one change notification: the new value, the value
// immediately before the change, and the watched path (or category key).
type Callback func(newValue, oldValue any, path string)

// CallbackKey derives the identity of a callback value. Two subscriptions
// with the same key are the same listener: they dedup to one delivery per
// change and Unsubscribe matches on it. The key is the address of the
// function value itself, not its code pointer, so two closures built from
// the same literal remain distinct listeners while re-subscribing the same
// stored callback does not.
func CallbackKey(fn Callback) uintptr {
	return uintptr(*(*unsafe.Pointer)(unsafe.Pointer(&fn)))
}

type listener struct {
	key  uintptr
	fn   Callback
	once bool
}

type entry struct {
	baseline  any
	listeners []*listener
}

// Delivery is one listener invocation captured before dispatch, so removals
// performed by listeners mid-dispatch cannot affect the current cycle.
type Delivery struct {
	Key  uintptr
	Fn   Callback
	Once bool
}

// Registry maps watched paths to ordered listener lists and comparison
// baselines. A path entry is created lazily on first subscription and
// destroyed when its last listener is removed, so only actively watched
// paths incur diff cost. Not synchronized; the owning watcher serializes.
type Registry struct {
	entries map[string]*entry
	order   []string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*entry)}
}

// Subscribe adds a listener for path. When the path is watched for the first
// time, init supplies the comparison baseline from the current snapshot so
// the first detected change is relative to subscription time. A listener
// already subscribed to the path (same CallbackKey) is not added again.
func (r *Registry) Subscribe(path string, fn Callback, once bool, init func(path string) any) {
	if fn == nil {
		return
	}
	key := CallbackKey(fn)
	e, ok := r.entries[path]
	if !ok {
		e = &entry{}
		if init != nil {
			e.baseline = init(path)
		}
		r.entries[path] = e
		r.order = append(r.order, path)
	}
	for _, l := range e.listeners {
		if l.key == key {
			return
		}
	}
	e.listeners = append(e.listeners, &listener{key: key, fn: fn, once: once})
}

// Unsubscribe removes the listener identified by fn from path. Removing a
// listener that was never subscribed is a no-op. When the path's listener
// list empties the entry is deleted along with its baseline.
func (r *Registry) Unsubscribe(path string, fn Callback) {
	if fn == nil {
		return
	}
	r.RemoveKey(path, CallbackKey(fn))
}

// RemoveKey removes a listener by its CallbackKey.
func (r *Registry) RemoveKey(path string, key uintptr) {
	e, ok := r.entries[path]
	if !ok {
		return
	}
	for i, l := range e.listeners {
		if l.key == key {
			e.listeners = append(e.listeners[:i], e.listeners[i+1:]...)
			break
		}
	}
	if len(e.listeners) == 0 {
		r.drop(path)
	}
}

// UnsubscribeAll removes every listener for path.
func (r *Registry) UnsubscribeAll(path string) {
	if _, ok := r.entries[path]; ok {
		r.drop(path)
	}
}

// Clear removes everything; used on watcher teardown.
func (r *Registry) Clear() {
	r.entries = make(map[string]*entry)
	r.order = nil
}

func (r *Registry) drop(path string) {
	delete(r.entries, path)
	for i, p := range r.order {
		if p == path {
			r.order = append(r.order[:i], r.order[i+1:]...)
			return
		}
	}
}

// Empty reports whether no paths are watched.
func (r *Registry) Empty() bool {
	return len(r.entries) == 0
}

// Paths returns the watched paths in first-subscription order. The returned
// slice is a copy.
func (r *Registry) Paths() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Watched reports whether path has at least one listener.
func (r *Registry) Watched(path string) bool {
	_, ok := r.entries[path]
	return ok
}

// Baseline returns the last known value for path.
func (r *Registry) Baseline(path string) (any, bool) {
	e, ok := r.entries[path]
	if !ok {
		return nil, false
	}
	return e.baseline, true
}

// SetBaseline records the last known value for path, if still watched.
func (r *Registry) SetBaseline(path string, v any) {
	if e, ok := r.entries[path]; ok {
		e.baseline = v
	}
}

// Deliveries snapshots the listener list for path in subscription order.
func (r *Registry) Deliveries(path string) []Delivery {
	e, ok := r.entries[path]
	if !ok {
		return nil
	}
	out := make([]Delivery, len(e.listeners))
	for i, l := range e.listeners {
		out[i] = Delivery{Key: l.key, Fn: l.fn, Once: l.once}
	}
	return out
}
