package hal

import (
	"testing"
	"time"
)

func newWatchedComponent(t *testing.T) (*Component, *Watcher) {
	t.Helper()
	c := newReadyComponent(t)
	w := New(c, WithPollInterval(time.Hour))
	t.Cleanup(w.Destroy)
	return c, w
}

func TestCursorAdvancesOnlyOnNonEmptyCycles(t *testing.T) {
	c, w := newWatchedComponent(t)

	var sets []Changeset
	w.On(DeltaPath, func(newValue, _ any, _ string) {
		sets = append(sets, newValue.(Changeset))
	})

	w.pollCycle()
	if w.Cursor() != 0 {
		t.Fatalf("cursor moved on an empty cycle: %d", w.Cursor())
	}

	if err := c.Set("running", true); err != nil {
		t.Fatal(err)
	}
	w.pollCycle()
	if w.Cursor() != 1 {
		t.Fatalf("cursor = %d after first change, want 1", w.Cursor())
	}

	w.pollCycle()
	if w.Cursor() != 1 {
		t.Fatalf("cursor moved without changes: %d", w.Cursor())
	}

	if len(sets) != 1 {
		t.Fatalf("changesets delivered = %d, want 1", len(sets))
	}
	if sets[0].Cursor != 1 || len(sets[0].Changes) != 1 || sets[0].Changes[0].Name != "mill.running" {
		t.Errorf("changeset = %+v", sets[0])
	}
}

func TestMultipleWritesOneChangeset(t *testing.T) {
	c, w := newWatchedComponent(t)

	var sets []Changeset
	w.On(DeltaPath, func(newValue, _ any, _ string) {
		sets = append(sets, newValue.(Changeset))
	})

	if err := c.Set("running", true); err != nil {
		t.Fatal(err)
	}
	if err := c.Set("scale", 2.5); err != nil {
		t.Fatal(err)
	}
	if err := c.Inject("mill.enable", true); err != nil {
		t.Fatal(err)
	}
	w.pollCycle()

	if len(sets) != 1 {
		t.Fatalf("changesets = %d, want 1 batch for all writes", len(sets))
	}
	if len(sets[0].Changes) != 3 {
		t.Errorf("changes = %v, want 3 entries", sets[0].Changes)
	}
}

func TestPerItemListenerGetsOldValue(t *testing.T) {
	c, w := newWatchedComponent(t)

	if err := c.Set("scale", 1.0); err != nil {
		t.Fatal(err)
	}
	w.On("mill.scale", func(_, _ any, _ string) {})
	// Drain the pending write so the next cycle starts clean.
	w.pollCycle()

	var gotNew, gotOld any
	var gotPath string
	w.On("mill.scale", func(newValue, oldValue any, path string) {
		gotNew, gotOld, gotPath = newValue, oldValue, path
	})

	if err := c.Set("scale", 2.0); err != nil {
		t.Fatal(err)
	}
	w.pollCycle()

	if gotNew != float64(2.0) || gotOld != float64(1.0) {
		t.Errorf("delivery = (%v, %v), want (2, 1)", gotNew, gotOld)
	}
	if gotPath != "mill.scale" {
		t.Errorf("path = %q, want mill.scale", gotPath)
	}
}

func TestRestoredValueProducesNoChangeset(t *testing.T) {
	c, w := newWatchedComponent(t)

	calls := 0
	w.OnDelta(func(_, _ any, _ string) { calls++ })

	// A write away and back between polls restores the table value; the
	// dirty mark alone must not produce a changeset.
	if err := c.Set("scale", 9.0); err != nil {
		t.Fatal(err)
	}
	if err := c.Set("scale", 0.0); err != nil {
		t.Fatal(err)
	}
	w.pollCycle()

	if calls != 0 {
		t.Errorf("changesets = %d, want 0 for a restored value", calls)
	}
	if w.Cursor() != 0 {
		t.Errorf("cursor = %d, want 0", w.Cursor())
	}
}

func TestSnapshotConsistentWithCursor(t *testing.T) {
	c, w := newWatchedComponent(t)

	w.On(DeltaPath, func(_, _ any, _ string) {})

	if err := c.Set("count", 7); err != nil {
		t.Fatal(err)
	}
	w.pollCycle()

	snap := w.GetSnapshot()
	if snap.Cursor != 1 {
		t.Errorf("snapshot cursor = %d, want 1", snap.Cursor)
	}
	if snap.Items["mill.count"] != int32(7) {
		t.Errorf("snapshot count = %v, want 7", snap.Items["mill.count"])
	}
	if len(snap.Items) != 6 {
		t.Errorf("snapshot has %d items, want all 6", len(snap.Items))
	}
}

func TestSnapshotVisibleDuringDispatch(t *testing.T) {
	c, w := newWatchedComponent(t)

	var seenCursor uint64
	var seenValue any
	w.On(DeltaPath, func(newValue, _ any, _ string) {
		cs := newValue.(Changeset)
		snap := w.GetSnapshot()
		seenCursor = snap.Cursor
		seenValue = snap.Items["mill.running"]
		if snap.Cursor != cs.Cursor {
			t.Errorf("snapshot cursor %d != changeset cursor %d", snap.Cursor, cs.Cursor)
		}
	})

	if err := c.Set("running", true); err != nil {
		t.Fatal(err)
	}
	w.pollCycle()

	if seenCursor != 1 || seenValue != true {
		t.Errorf("mid-dispatch snapshot = (cursor %d, running %v)", seenCursor, seenValue)
	}
}

func TestOnceDeltaListener(t *testing.T) {
	c, w := newWatchedComponent(t)

	calls := 0
	w.Once(DeltaPath, func(_, _ any, _ string) { calls++ })

	if err := c.Set("running", true); err != nil {
		t.Fatal(err)
	}
	w.pollCycle()
	if err := c.Set("running", false); err != nil {
		t.Fatal(err)
	}
	w.pollCycle()

	if calls != 1 {
		t.Errorf("once listener calls = %d, want 1", calls)
	}
	if w.sched.Running() {
		t.Error("scheduler should disarm after the last once listener fires")
	}
}

func TestItemBaselinePrimedAtSubscribe(t *testing.T) {
	c := newReadyComponent(t)
	if err := c.Set("scale", 5.0); err != nil {
		t.Fatal(err)
	}

	// The watcher primes its table from the source at construction, so a
	// subscription baselines against 5.0 even though no cycle ran yet.
	w := New(c, WithPollInterval(time.Hour))
	t.Cleanup(w.Destroy)

	var gotOld any
	w.On("mill.scale", func(_, oldValue any, _ string) { gotOld = oldValue })

	if err := c.Set("scale", 6.0); err != nil {
		t.Fatal(err)
	}
	w.pollCycle()

	if gotOld != float64(5.0) {
		t.Errorf("old value = %v, want 5 (value at subscription time)", gotOld)
	}
}

func TestIntervalClamped(t *testing.T) {
	_, w := newWatchedComponent(t)
	w.SetPollInterval(time.Millisecond)
	if got := w.PollInterval(); got != MinPollInterval {
		t.Errorf("interval = %v, want clamped %v", got, MinPollInterval)
	}
}
