package watch

import "testing"

func TestInvokePassesArguments(t *testing.T) {
	var gotNew, gotOld any
	var gotPath string
	fn := Callback(func(newValue, oldValue any, path string) {
		gotNew, gotOld, gotPath = newValue, oldValue, path
	})

	rec := Invoke(fn, 2, 1, "a.b")
	if rec != nil {
		t.Fatalf("unexpected recovered value: %v", rec)
	}
	if gotNew != 2 || gotOld != 1 || gotPath != "a.b" {
		t.Errorf("callback got (%v, %v, %q)", gotNew, gotOld, gotPath)
	}
}

func TestInvokeRecoversPanic(t *testing.T) {
	fn := Callback(func(_, _ any, _ string) {
		panic("listener bug")
	})

	rec := Invoke(fn, nil, nil, "x")
	if rec != "listener bug" {
		t.Errorf("recovered = %v, want listener bug", rec)
	}
}
