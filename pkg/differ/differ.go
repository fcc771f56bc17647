// Package differ provides deep structural comparison of JSON-like values.
// It backs the dirty-flag queries of the settings store: a section is dirty
// exactly when its draft value is not structurally equal to its committed
// value. The comparison is pure and stateless, so dirty flags can be
// recomputed on every query and never go stale.
package differ

import (
	"fmt"
	"sort"
)

// Equal reports whether two JSON-like values (maps, slices, primitives) are
// structurally equal. Map comparison is key-order independent; slice
// comparison is order sensitive. Numeric values are compared after
// normalization to float64, so an int 5 and a float64 5.0 are equal.
//
// nil maps and nil slices compare equal to empty ones. Callers that want a
// missing key to compare equal to an explicit default must normalize both
// sides to the same default before calling Equal; see Normalize.
func Equal(a, b any) bool {
	return equalValue(Normalize(a), Normalize(b))
}

// Normalize converts a JSON-like value into a canonical form: all numeric
// types become float64, nil maps and slices become empty ones, and typed
// string maps become map[string]any. The result is a deep copy; mutating it
// never affects the input.
func Normalize(v any) any {
	switch val := v.(type) {
	case nil:
		return nil
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = Normalize(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = Normalize(item)
		}
		return out
	case []string:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = item
		}
		return out
	case string, bool:
		return val
	case float64:
		return val
	case float32:
		return float64(val)
	case int:
		return float64(val)
	case int8:
		return float64(val)
	case int16:
		return float64(val)
	case int32:
		return float64(val)
	case int64:
		return float64(val)
	case uint:
		return float64(val)
	case uint8:
		return float64(val)
	case uint16:
		return float64(val)
	case uint32:
		return float64(val)
	case uint64:
		return float64(val)
	default:
		// Unknown types fall back to their string rendering. Settings trees
		// are decoded from JSON/YAML so this path is rarely taken.
		return fmt.Sprintf("%v", val)
	}
}

// Copy returns a structurally independent deep copy of a JSON-like value.
// The copy shares no mutable substructure with the original.
func Copy(v any) any {
	return Normalize(v)
}

// DiffPaths returns the dotted paths at which two values differ, sorted.
// An empty result means the values are equal. Paths descend into maps by
// key; a differing slice or primitive reports the path of its container.
func DiffPaths(a, b any) []string {
	var paths []string
	collectDiffs("", Normalize(a), Normalize(b), &paths)
	sort.Strings(paths)
	return paths
}

func equalValue(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}

	switch av := a.(type) {
	case map[string]any:
		bv, ok := b.(map[string]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, item := range av {
			other, exists := bv[k]
			if !exists || !equalValue(item, other) {
				return false
			}
		}
		return true
	case []any:
		bv, ok := b.([]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !equalValue(av[i], bv[i]) {
				return false
			}
		}
		return true
	default:
		return a == b
	}
}

func collectDiffs(prefix string, a, b any, paths *[]string) {
	am, aIsMap := a.(map[string]any)
	bm, bIsMap := b.(map[string]any)

	if aIsMap && bIsMap {
		keys := make(map[string]struct{}, len(am)+len(bm))
		for k := range am {
			keys[k] = struct{}{}
		}
		for k := range bm {
			keys[k] = struct{}{}
		}
		for k := range keys {
			childPath := k
			if prefix != "" {
				childPath = prefix + "." + k
			}
			collectDiffs(childPath, am[k], bm[k], paths)
		}
		return
	}

	if !equalValue(a, b) {
		if prefix == "" {
			prefix = "."
		}
		*paths = append(*paths, prefix)
	}
}
