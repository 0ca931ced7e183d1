package status

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/b0czek/linuxcnc-node-sub000/internal/channels"
	"github.com/b0czek/linuxcnc-node-sub000/internal/machine"
	"github.com/b0czek/linuxcnc-node-sub000/internal/watch"
)

// fakeStat is a scriptable StatChannel. Tests drive poll cycles directly
// with a poll interval long enough that the scheduler never ticks.
type fakeStat struct {
	mu      sync.Mutex
	status  machine.Status
	changed bool
	pollErr error
	polls   int
	closes  int
}

func newFakeStat() *fakeStat {
	st := machine.Status{}
	st.Task.MotionLine = 10
	st.Task.File = "part.ngc"
	st.Motion.Joint = make([]machine.JointStatus, 3)
	st.Motion.Spindle = make([]machine.SpindleStatus, 1)
	return &fakeStat{status: st, changed: true}
}

func (f *fakeStat) set(fn func(*machine.Status)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(&f.status)
	f.changed = true
}

func (f *fakeStat) Poll() (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.polls++
	if f.pollErr != nil {
		return false, f.pollErr
	}
	changed := f.changed
	f.changed = false
	return changed, nil
}

func (f *fakeStat) Status() *machine.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	st := f.status
	return &st
}

func (f *fakeStat) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes++
	return nil
}

func newTestWatcher(t *testing.T, source machine.StatChannel) *Watcher {
	t.Helper()
	w := New(source, WithPollInterval(time.Hour))
	t.Cleanup(w.Destroy)
	return w
}

func TestChangeDeliveredWithOldAndNewValue(t *testing.T) {
	src := newFakeStat()
	w := newTestWatcher(t, src)

	var gotNew, gotOld any
	var gotPath string
	calls := 0
	w.On("task.motionLine", func(newValue, oldValue any, path string) {
		calls++
		gotNew, gotOld, gotPath = newValue, oldValue, path
	})

	src.set(func(st *machine.Status) { st.Task.MotionLine = 20 })
	w.pollCycle()

	if calls != 1 {
		t.Fatalf("expected 1 delivery, got %d", calls)
	}
	// Snapshot trees come from JSON, so numbers are float64.
	if gotNew != float64(20) || gotOld != float64(10) {
		t.Errorf("delivery = (%v, %v), want (20, 10)", gotNew, gotOld)
	}
	if gotPath != "task.motionLine" {
		t.Errorf("path = %q", gotPath)
	}
}

func TestUnchangedPathNotDelivered(t *testing.T) {
	src := newFakeStat()
	w := newTestWatcher(t, src)

	calls := 0
	w.On("task.motionLine", func(_, _ any, _ string) { calls++ })

	// The file changes, the watched path does not.
	src.set(func(st *machine.Status) { st.Task.File = "other.ngc" })
	w.pollCycle()

	if calls != 0 {
		t.Errorf("expected no delivery for unchanged path, got %d", calls)
	}
}

func TestBaselineAdvancesOncePerChange(t *testing.T) {
	src := newFakeStat()
	w := newTestWatcher(t, src)

	calls := 0
	w.On("task.motionLine", func(_, _ any, _ string) { calls++ })

	src.set(func(st *machine.Status) { st.Task.MotionLine = 20 })
	w.pollCycle()
	// Second cycle with the record marked changed but the watched value
	// stable: no delivery.
	src.set(func(st *machine.Status) { st.Task.File = "b.ngc" })
	w.pollCycle()

	if calls != 1 {
		t.Errorf("expected 1 delivery, got %d", calls)
	}
}

func TestRapidChangesCoalesceBetweenPolls(t *testing.T) {
	src := newFakeStat()
	w := newTestWatcher(t, src)

	var lines []any
	w.On("task.motionLine", func(newValue, _ any, _ string) {
		lines = append(lines, newValue)
	})

	// Both changes land between two polls; only the final value is seen.
	src.set(func(st *machine.Status) { st.Task.MotionLine = 15 })
	src.set(func(st *machine.Status) { st.Task.MotionLine = 20 })
	w.pollCycle()

	if len(lines) != 1 || lines[0] != float64(20) {
		t.Errorf("deliveries = %v, want [20]", lines)
	}
}

func TestListenerPanicDoesNotStarveSiblings(t *testing.T) {
	src := newFakeStat()
	w := newTestWatcher(t, src)

	siblingCalls := 0
	w.On("task.motionLine", func(_, _ any, _ string) {
		panic("broken listener")
	})
	w.On("task.motionLine", func(_, _ any, _ string) { siblingCalls++ })

	src.set(func(st *machine.Status) { st.Task.MotionLine = 20 })
	w.pollCycle()

	if siblingCalls != 1 {
		t.Errorf("sibling listener calls = %d, want 1", siblingCalls)
	}

	// The panicking listener stays subscribed and the loop keeps running.
	src.set(func(st *machine.Status) { st.Task.MotionLine = 30 })
	w.pollCycle()
	if siblingCalls != 2 {
		t.Errorf("sibling listener calls after second cycle = %d, want 2", siblingCalls)
	}
}

func TestOnceListenerFiresOnce(t *testing.T) {
	src := newFakeStat()
	w := newTestWatcher(t, src)

	calls := 0
	w.Once("task.motionLine", func(_, _ any, _ string) { calls++ })

	src.set(func(st *machine.Status) { st.Task.MotionLine = 20 })
	w.pollCycle()
	src.set(func(st *machine.Status) { st.Task.MotionLine = 30 })
	w.pollCycle()

	if calls != 1 {
		t.Errorf("once listener calls = %d, want 1", calls)
	}
}

func TestSchedulerArmsAndDisarmsWithSubscriptions(t *testing.T) {
	src := newFakeStat()
	w := newTestWatcher(t, src)

	if w.sched.Running() {
		t.Fatal("watcher should start idle")
	}

	fn := watch.Callback(func(_, _ any, _ string) {})
	w.On("task.motionLine", fn)
	if !w.sched.Running() {
		t.Fatal("first subscription should arm the scheduler")
	}

	w.Off("task.motionLine", fn)
	if w.sched.Running() {
		t.Fatal("last unsubscribe should disarm the scheduler")
	}
}

func TestOnceListenerDisarmsWhenLast(t *testing.T) {
	src := newFakeStat()
	w := newTestWatcher(t, src)

	w.Once("task.motionLine", func(_, _ any, _ string) {})
	src.set(func(st *machine.Status) { st.Task.MotionLine = 20 })
	w.pollCycle()

	if w.sched.Running() {
		t.Error("firing the last once listener should disarm the scheduler")
	}
}

func TestBaselineResetAfterResubscribe(t *testing.T) {
	src := newFakeStat()
	w := newTestWatcher(t, src)

	fn := watch.Callback(func(_, _ any, _ string) {})
	w.On("task.motionLine", fn)
	w.Off("task.motionLine", fn)

	// The value moves while nothing is watched; resubscribing must baseline
	// against the current value, not the one from the first subscription.
	src.set(func(st *machine.Status) { st.Task.MotionLine = 50 })
	w.pollCycle()

	var gotOld any
	calls := 0
	w.On("task.motionLine", func(_, oldValue any, _ string) {
		calls++
		gotOld = oldValue
	})

	src.set(func(st *machine.Status) { st.Task.MotionLine = 60 })
	w.pollCycle()

	if calls != 1 {
		t.Fatalf("expected 1 delivery, got %d", calls)
	}
	if gotOld != float64(50) {
		t.Errorf("old value = %v, want 50 (baseline at resubscribe time)", gotOld)
	}
}

func TestPollErrorEndsCycleWithoutDispatch(t *testing.T) {
	src := newFakeStat()
	w := newTestWatcher(t, src)

	calls := 0
	w.On("task.motionLine", func(_, _ any, _ string) { calls++ })

	src.set(func(st *machine.Status) { st.Task.MotionLine = 20 })
	src.mu.Lock()
	src.pollErr = errors.New("shm detached")
	src.mu.Unlock()
	w.pollCycle()

	if calls != 0 {
		t.Errorf("no delivery expected on poll error, got %d", calls)
	}

	// Recovery on the next cycle delivers the pending change.
	src.mu.Lock()
	src.pollErr = nil
	src.mu.Unlock()
	w.pollCycle()
	if calls != 1 {
		t.Errorf("expected delivery after recovery, got %d", calls)
	}
}

func TestGetReturnsIndependentSnapshot(t *testing.T) {
	src := newFakeStat()
	w := newTestWatcher(t, src)

	w.On("task.motionLine", func(_, _ any, _ string) {})

	snap := w.Get()
	if snap == nil {
		t.Fatal("snapshot should exist after first subscription primes it")
	}
	if got := watch.Resolve(snap, "task.motionLine"); got != float64(10) {
		t.Fatalf("snapshot motionLine = %v, want 10", got)
	}

	// Mutating the returned copy must not affect the watcher's cache.
	snap["task"].(map[string]any)["motionLine"] = float64(0)
	again := w.Get()
	if got := watch.Resolve(again, "task.motionLine"); got != float64(10) {
		t.Errorf("cached snapshot corrupted through Get copy: %v", got)
	}
}

func TestPollIntervalClamped(t *testing.T) {
	src := newFakeStat()
	w := newTestWatcher(t, src)

	w.SetPollInterval(time.Millisecond)
	if got := w.PollInterval(); got != MinPollInterval {
		t.Errorf("interval = %v, want clamped %v", got, MinPollInterval)
	}
}

func TestDestroyIdempotentAndFinal(t *testing.T) {
	src := newFakeStat()
	w := New(src, WithPollInterval(time.Hour))

	calls := 0
	w.On("task.motionLine", func(_, _ any, _ string) { calls++ })

	w.Destroy()
	w.Destroy()

	if src.closes != 1 {
		t.Errorf("source closed %d times, want 1", src.closes)
	}

	// Subscriptions after Destroy are ignored.
	w.On("task.motionLine", func(_, _ any, _ string) { calls++ })
	src.set(func(st *machine.Status) { st.Task.MotionLine = 20 })
	w.pollCycle()

	if calls != 0 {
		t.Errorf("no deliveries expected after Destroy, got %d", calls)
	}
	if w.sched.Running() {
		t.Error("scheduler should be stopped after Destroy")
	}
}

func TestListenerCanUnsubscribeSelfMidDispatch(t *testing.T) {
	src := newFakeStat()
	w := newTestWatcher(t, src)

	var fn watch.Callback
	calls := 0
	fn = func(_, _ any, _ string) {
		calls++
		w.Off("task.motionLine", fn)
	}
	w.On("task.motionLine", fn)

	src.set(func(st *machine.Status) { st.Task.MotionLine = 20 })
	w.pollCycle()

	src.set(func(st *machine.Status) { st.Task.MotionLine = 30 })
	w.pollCycle()

	if calls != 1 {
		t.Errorf("self-removing listener calls = %d, want 1", calls)
	}
}

func nextState(t *testing.T, events *channels.Events) string {
	t.Helper()
	select {
	case ev := <-events.WatcherState:
		return ev.State
	default:
		t.Fatal("no watcher state event pending")
		return ""
	}
}

func TestDiagnosticsReportStateTransitions(t *testing.T) {
	src := newFakeStat()
	events := channels.NewEvents(channels.Config{})
	w := New(src, WithPollInterval(time.Hour), WithDiagnostics(events))
	t.Cleanup(w.Destroy)

	fn := func(_, _ any, _ string) {}
	w.On("task.motionLine", fn)
	if got := nextState(t, events); got != "armed" {
		t.Errorf("state after first subscribe = %q, want armed", got)
	}

	w.Off("task.motionLine", fn)
	if got := nextState(t, events); got != "idle" {
		t.Errorf("state after last unsubscribe = %q, want idle", got)
	}
}

func TestDiagnosticsReportPollErrorsAndPanics(t *testing.T) {
	src := newFakeStat()
	events := channels.NewEvents(channels.Config{})
	w := New(src, WithPollInterval(time.Hour), WithDiagnostics(events))
	t.Cleanup(w.Destroy)

	w.On("task.motionLine", func(_, _ any, _ string) { panic("listener boom") })

	src.set(func(st *machine.Status) { st.Task.MotionLine = 20 })
	w.pollCycle()

	select {
	case ev := <-events.ListenerPanic:
		if ev.Watcher != "status" || ev.Path != "task.motionLine" || ev.Recovered != "listener boom" {
			t.Errorf("panic event = %+v", ev)
		}
	default:
		t.Error("no listener panic event published")
	}

	src.mu.Lock()
	src.pollErr = errors.New("channel gone")
	src.mu.Unlock()
	w.pollCycle()

	select {
	case ev := <-events.PollError:
		if ev.Watcher != "status" || ev.Err == nil {
			t.Errorf("poll error event = %+v", ev)
		}
	default:
		t.Error("no poll error event published")
	}
}

func TestListenerMutationCannotCorruptBaseline(t *testing.T) {
	src := newFakeStat()
	w := newTestWatcher(t, src)

	calls := 0
	w.On("task", func(newValue, _ any, _ string) {
		calls++
		// A listener writing into its argument must not reach the stored
		// baseline or the snapshot cache.
		if m, ok := newValue.(map[string]any); ok {
			m["motionLine"] = float64(999)
		}
	})

	src.set(func(st *machine.Status) { st.Task.MotionLine = 20 })
	w.pollCycle()

	snap := w.Get()
	if got := watch.Resolve(snap, "task.motionLine"); got != float64(20) {
		t.Errorf("cached snapshot motionLine = %v, want 20", got)
	}

	// The source flags a change but its content is identical; a redelivery
	// here means the mutation leaked into the comparison baseline.
	src.set(func(*machine.Status) {})
	w.pollCycle()

	if calls != 1 {
		t.Errorf("deliveries = %d, want 1", calls)
	}
}
