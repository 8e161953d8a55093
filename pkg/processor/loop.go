package processor

import "sort"

// loopIteration is one (item, loop) binding produced by loop expansion.
type loopIteration struct {
	item any
	meta map[string]any
}

// expandLoop turns a resolved loop value (a sequence or mapping) into an
// ordered set of iterations, each carrying the item and a loop metadata
// object exposing index, index0, first, last, even, odd, revindex, and
// revindex0. The first iteration (index0 0) is odd, the second (index0 1)
// is even, matching the pre-increment counter the metadata is derived from.
func expandLoop(value any) ([]loopIteration, error) {
	var items []any

	switch v := value.(type) {
	case []any:
		items = v
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			items = append(items, map[string]any{"key": k, "value": v[k]})
		}
	default:
		return nil, &LoopTypeError{Value: value}
	}

	n := len(items)
	out := make([]loopIteration, n)
	for i, item := range items {
		out[i] = loopIteration{
			item: item,
			meta: map[string]any{
				"index":     int64(i + 1),
				"index0":    int64(i),
				"first":     i == 0,
				"last":      i == n-1,
				"even":      i%2 == 1,
				"odd":       i%2 == 0,
				"revindex":  int64(n - i),
				"revindex0": int64(n - i - 1),
			},
		}
	}
	return out, nil
}

// LoopTypeError is raised when a loop expression evaluates to something
// other than a sequence or mapping.
type LoopTypeError struct {
	Value any
}

func (e *LoopTypeError) Error() string {
	return "processor: loop expression did not evaluate to a sequence or mapping"
}
