package hal

import (
	"strings"
	"testing"
)

func newReadyComponent(t *testing.T) *Component {
	t.Helper()
	c := NewComponent("mill", "")
	mustAdd := func(err error) {
		if err != nil {
			t.Fatalf("item creation failed: %v", err)
		}
	}
	mustAdd(c.NewPin("enable", Bit, In))
	mustAdd(c.NewPin("running", Bit, Out))
	mustAdd(c.NewPin("speed-cmd", Float, Out))
	mustAdd(c.NewPin("count", S32, IO))
	mustAdd(c.NewParam("scale", Float, RW))
	mustAdd(c.NewParam("revision", U32, RO))
	c.Ready()
	return c
}

func TestItemNamesUsePrefix(t *testing.T) {
	c := NewComponent("mill", "spindle")
	if err := c.NewPin("speed", Float, Out); err != nil {
		t.Fatal(err)
	}
	if _, ok := c.Value("spindle.speed"); !ok {
		t.Error("item should be addressable as prefix.suffix")
	}

	// Empty prefix falls back to the component name.
	d := NewComponent("mill", "")
	if err := d.NewPin("speed", Float, Out); err != nil {
		t.Fatal(err)
	}
	if _, ok := d.Value("mill.speed"); !ok {
		t.Error("default prefix should be the component name")
	}
}

func TestItemCreationRules(t *testing.T) {
	c := NewComponent("mill", "")

	if err := c.NewPin("enable", Bit, In); err != nil {
		t.Fatal(err)
	}
	if err := c.NewPin("enable", Float, Out); err == nil {
		t.Error("duplicate suffix should be rejected")
	}

	long := strings.Repeat("x", NameLen)
	if err := c.NewPin(long, Bit, Out); err == nil {
		t.Error("full name beyond the length limit should be rejected")
	}

	c.Ready()
	if err := c.NewPin("late", Bit, Out); err == nil {
		t.Error("item creation after Ready should be rejected")
	}

	c.Unready()
	if err := c.NewPin("late", Bit, Out); err != nil {
		t.Errorf("item creation after Unready should work: %v", err)
	}
}

func TestSetRespectsPinDirection(t *testing.T) {
	c := newReadyComponent(t)

	if err := c.Set("enable", true); err == nil {
		t.Error("setting an IN pin from the component side should fail")
	}
	if err := c.Set("running", true); err != nil {
		t.Errorf("setting an OUT pin should work: %v", err)
	}
	if err := c.Set("count", 5); err != nil {
		t.Errorf("setting an IO pin should work: %v", err)
	}
	if err := c.Set("scale", 1.5); err != nil {
		t.Errorf("setting a parameter should work: %v", err)
	}

	// Inject bypasses direction, standing in for the signal bus.
	if err := c.Inject("mill.enable", true); err != nil {
		t.Errorf("inject on an IN pin should work: %v", err)
	}
	if v, _ := c.Get("enable"); v != true {
		t.Errorf("enable = %v after inject, want true", v)
	}
}

func TestSetCoercesAndValidates(t *testing.T) {
	c := newReadyComponent(t)

	if err := c.Set("speed-cmd", 42); err != nil {
		t.Errorf("int into float item should coerce: %v", err)
	}
	if v, _ := c.Get("speed-cmd"); v != float64(42) {
		t.Errorf("speed-cmd = %v (%T), want float64(42)", v, v)
	}

	if err := c.Set("count", 1<<40); err == nil {
		t.Error("out-of-range s32 should be rejected")
	}
	if err := c.Set("running", 1); err == nil {
		t.Error("non-bool into bit item should be rejected")
	}
}

func TestSetString(t *testing.T) {
	c := newReadyComponent(t)

	testCases := []struct {
		name    string
		suffix  string
		input   string
		want    any
		wantErr bool
	}{
		{"BitOne", "running", "1", true, false},
		{"BitTrueUpper", "running", "TRUE", true, false},
		{"BitZero", "running", "0", false, false},
		{"BitFalse", "running", "false", false, false},
		{"BitJunk", "running", "yes", nil, true},
		{"FloatPlain", "speed-cmd", "123.5", float64(123.5), false},
		{"S32Hex", "count", "0x10", int32(16), false},
		{"S32Negative", "count", "-7", int32(-7), false},
		{"S32Junk", "count", "ten", nil, true},
		{"UnknownItem", "missing", "1", nil, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := c.SetString(tc.suffix, tc.input)
			if tc.wantErr {
				if err == nil {
					t.Errorf("SetString(%q, %q) should fail", tc.suffix, tc.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("SetString(%q, %q): %v", tc.suffix, tc.input, err)
			}
			if v, _ := c.Get(tc.suffix); v != tc.want {
				t.Errorf("value = %v (%T), want %v", v, v, tc.want)
			}
		})
	}
}

func TestPollReportsDirtyItemsInCreationOrder(t *testing.T) {
	c := newReadyComponent(t)

	// Discard creation-time zero values.
	c.Poll(true)

	if err := c.Set("scale", 2.0); err != nil {
		t.Fatal(err)
	}
	if err := c.Set("running", true); err != nil {
		t.Fatal(err)
	}

	changes := c.Poll(false)
	if len(changes) != 2 {
		t.Fatalf("changes = %v, want 2 entries", changes)
	}
	// running was created before scale, so it comes first regardless of
	// write order.
	if changes[0].Name != "mill.running" || changes[1].Name != "mill.scale" {
		t.Errorf("order = [%s %s], want [mill.running mill.scale]", changes[0].Name, changes[1].Name)
	}

	if again := c.Poll(false); len(again) != 0 {
		t.Errorf("second poll should be empty, got %v", again)
	}

	if all := c.Poll(true); len(all) != 6 {
		t.Errorf("forced poll should report all 6 items, got %d", len(all))
	}
}

func TestRewriteOfSameValueNotDirty(t *testing.T) {
	c := newReadyComponent(t)
	c.Poll(true)

	if err := c.Set("scale", 0.0); err != nil {
		t.Fatal(err)
	}
	if changes := c.Poll(false); len(changes) != 0 {
		t.Errorf("writing the current value should not mark dirty, got %v", changes)
	}
}

func TestValuesSnapshot(t *testing.T) {
	c := newReadyComponent(t)
	if err := c.Set("scale", 3.5); err != nil {
		t.Fatal(err)
	}

	values := c.Values()
	if len(values) != 6 {
		t.Fatalf("values has %d entries, want 6", len(values))
	}
	if values["mill.scale"] != float64(3.5) {
		t.Errorf("mill.scale = %v, want 3.5", values["mill.scale"])
	}
	if values["mill.enable"] != false {
		t.Errorf("mill.enable = %v, want zero value false", values["mill.enable"])
	}
}

func TestClosedComponentRejectsWrites(t *testing.T) {
	c := newReadyComponent(t)
	if err := c.Close(); err != nil {
		t.Fatal(err)
	}
	if err := c.Set("running", true); err == nil {
		t.Error("writes after Close should fail")
	}
}
