// Package asserts registers the "asserts" chipset: small diagnostic chips
// used to assert conditions from inside a pipeline without unwinding the
// run the way the AssertTask kind does, grounded on
// chipsets/utils/json.py's status/result/error response shape.
package asserts

import (
	"context"
	"fmt"

	"github.com/SouthPatron/reasonchip/pkg/chip"
)

func init() {
	chip.RegisterChipset("asserts", register)
}

func register(r *chip.Registry) error {
	if err := r.Register("asserts.fail", fail, nil, nil); err != nil {
		return err
	}
	if err := r.Register("asserts.equal", equal, chip.Schema{"a": chip.Any(), "b": chip.Any()}, nil); err != nil {
		return err
	}
	return nil
}

// fail unconditionally reports failure. A pipeline wires it behind a `when`
// guard to prove the guard actually prevented invocation rather than
// merely discarding the result.
func fail(ctx context.Context, req map[string]any) (map[string]any, error) {
	return map[string]any{"status": "error", "error": "asserts.fail: unconditional failure"}, nil
}

func equal(ctx context.Context, req map[string]any) (map[string]any, error) {
	a, b := req["a"], req["b"]
	if fmt.Sprint(a) == fmt.Sprint(b) {
		return map[string]any{"status": "ok"}, nil
	}
	return map[string]any{"status": "error", "error": fmt.Sprintf("asserts.equal: %v != %v", a, b)}, nil
}
