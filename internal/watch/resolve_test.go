package watch

import "testing"

func sampleTree() map[string]any {
	return map[string]any{
		"task": map[string]any{
			"motionLine": float64(42),
			"file":       "part.ngc",
		},
		"motion": map[string]any{
			"joint": []any{
				map[string]any{"homed": true},
				map[string]any{"homed": false},
			},
		},
		"scalar": float64(7),
	}
}

func TestResolve(t *testing.T) {
	tree := sampleTree()

	testCases := []struct {
		name string
		path string
		want any
	}{
		{"NestedField", "task.motionLine", float64(42)},
		{"StringLeaf", "task.file", "part.ngc"},
		{"SliceIndex", "motion.joint.1.homed", false},
		{"MissingKey", "task.missing", nil},
		{"IndexOutOfRange", "motion.joint.5.homed", nil},
		{"NegativeIndex", "motion.joint.-1", nil},
		{"NonNumericIndex", "motion.joint.first", nil},
		{"ScalarMidPath", "scalar.deeper", nil},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := Resolve(tree, tc.path)
			if !Equal(got, tc.want) {
				t.Errorf("Resolve(%q) = %v, want %v", tc.path, got, tc.want)
			}
		})
	}
}

func TestResolveEmptyPathReturnsRoot(t *testing.T) {
	tree := sampleTree()
	got := Resolve(tree, "")
	if !Equal(got, tree) {
		t.Error("empty path should return the root")
	}
}

func TestResolveSubtree(t *testing.T) {
	tree := sampleTree()
	got := Resolve(tree, "motion.joint.0")
	want := map[string]any{"homed": true}
	if !Equal(got, want) {
		t.Errorf("Resolve subtree = %v, want %v", got, want)
	}
}

func TestEqualComposite(t *testing.T) {
	a := map[string]any{"x": []any{float64(1), float64(2)}}
	b := map[string]any{"x": []any{float64(1), float64(2)}}
	c := map[string]any{"x": []any{float64(1), float64(3)}}

	if !Equal(a, b) {
		t.Error("structurally identical trees should be equal")
	}
	if Equal(a, c) {
		t.Error("trees differing in a leaf should not be equal")
	}
	if !Equal(nil, nil) {
		t.Error("nil should equal nil")
	}
	if Equal(a, nil) {
		t.Error("tree should not equal nil")
	}
}

func TestCloneIndependence(t *testing.T) {
	original := sampleTree()
	cloned := Clone(original).(map[string]any)

	if !Equal(original, cloned) {
		t.Fatal("clone should be structurally equal to the original")
	}

	// Mutating the original must not reflect in the clone.
	original["task"].(map[string]any)["motionLine"] = float64(99)
	original["motion"].(map[string]any)["joint"].([]any)[0].(map[string]any)["homed"] = false

	if got := Resolve(cloned, "task.motionLine"); got != float64(42) {
		t.Errorf("clone leaked map mutation: got %v", got)
	}
	if got := Resolve(cloned, "motion.joint.0.homed"); got != true {
		t.Errorf("clone leaked slice mutation: got %v", got)
	}
}
