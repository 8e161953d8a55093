// Package waitfor registers the well-known "wait_for" chip: it awaits a
// processor.AsyncHandle produced by a run_async task and yields the
// underlying result, expressed with context.WithTimeout.
package waitfor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/SouthPatron/reasonchip/pkg/chip"
	"github.com/SouthPatron/reasonchip/pkg/processor"
)

func init() {
	chip.RegisterChipset("wait_for", register)
}

func register(r *chip.Registry) error {
	return r.Register("wait_for", waitFor, chip.Schema{"handle": chip.Any()}, nil)
}

func waitFor(ctx context.Context, req map[string]any) (map[string]any, error) {
	handle, ok := req["handle"].(*processor.AsyncHandle)
	if !ok {
		return map[string]any{
			"status": "error",
			"error":  fmt.Sprintf("wait_for: handle has unexpected type %T", req["handle"]),
		}, nil
	}

	waitCtx := ctx
	if raw, present := req["deadline_seconds"]; present {
		d, err := toDuration(raw)
		if err != nil {
			return map[string]any{"status": "error", "error": err.Error()}, nil
		}
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	value, err := handle.Wait(waitCtx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return map[string]any{"status": "timeout"}, nil
		}
		return map[string]any{"status": "error", "error": err.Error()}, nil
	}
	return map[string]any{"status": "ok", "result": value}, nil
}

func toDuration(v any) (time.Duration, error) {
	switch n := v.(type) {
	case int64:
		return time.Duration(n) * time.Second, nil
	case float64:
		return time.Duration(n * float64(time.Second)), nil
	default:
		return 0, fmt.Errorf("wait_for: deadline_seconds has unexpected type %T", v)
	}
}
