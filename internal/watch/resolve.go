package watch

import (
	"reflect"
	"strconv"
	"strings"
)

// Resolve walks a dot-segmented path through a generic value tree of
// map[string]any and []any nodes. Numeric segments index slices. A path that
// does not resolve (missing key, index out of range, scalar mid-path) yields
// nil: a shape change in the snapshot is a value change, not an error.
func Resolve(root any, path string) any {
	if path == "" {
		return root
	}
	cur := root
	for _, seg := range strings.Split(path, ".") {
		switch node := cur.(type) {
		case map[string]any:
			v, ok := node[seg]
			if !ok {
				return nil
			}
			cur = v
		case []any:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil
			}
			cur = node[idx]
		default:
			return nil
		}
	}
	return cur
}

// Equal compares two values by deep structural equality. Composite values
// are compared field by field, primitives by value.
func Equal(a, b any) bool {
	return reflect.DeepEqual(a, b)
}

// Clone returns a structurally independent copy of a value tree so a stored
// comparison baseline cannot be corrupted through the original. Scalars are
// returned as-is.
func Clone(v any) any {
	switch node := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(node))
		for k, child := range node {
			out[k] = Clone(child)
		}
		return out
	case []any:
		out := make([]any, len(node))
		for i, child := range node {
			out[i] = Clone(child)
		}
		return out
	default:
		return v
	}
}
