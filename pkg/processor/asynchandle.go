package processor

import (
	"context"
	"sync"
)

// AsyncHandle is the opaque reference to a still-running task produced when
// a task's run_async attribute is set. It is created by the Processor,
// consumed by the well-known wait_for chip (which awaits completion and
// yields the underlying result), and cancelled when the context passed to
// RunPipeline is cancelled. Returning from RunPipeline does not cancel it:
// a handle can outlive the Processor that created it and still be awaited.
// It is a first-class in-process value and is never
// serialized into a pipeline result that crosses the wire.
type AsyncHandle struct {
	mu     sync.Mutex
	done   chan struct{}
	value  any
	err    error
	cancel context.CancelFunc
}

func newAsyncHandle(cancel context.CancelFunc) *AsyncHandle {
	return &AsyncHandle{
		done:   make(chan struct{}),
		cancel: cancel,
	}
}

func (h *AsyncHandle) complete(value any, err error) {
	h.mu.Lock()
	h.value, h.err = value, err
	h.mu.Unlock()
	close(h.done)
}

// Wait blocks until the underlying task completes, ctx is cancelled, or the
// handle's own deadline (if any, applied by the caller via ctx) elapses.
func (h *AsyncHandle) Wait(ctx context.Context) (any, error) {
	select {
	case <-h.done:
		h.mu.Lock()
		defer h.mu.Unlock()
		return h.value, h.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Cancel requests the underlying task stop at its next suspension point.
// Idempotent.
func (h *AsyncHandle) Cancel() {
	if h.cancel != nil {
		h.cancel()
	}
}

// runAsync spawns fn in its own goroutine and returns immediately with a
// handle that yields fn's eventual result. The spawned goroutine's context
// is a child of ctx, so cancelling ctx cancels every outstanding async task;
// the Processor itself never cancels ctx.
func runAsync(ctx context.Context, fn func(context.Context) (any, error)) *AsyncHandle {
	taskCtx, cancel := context.WithCancel(ctx)
	h := newAsyncHandle(cancel)
	go func() {
		value, err := fn(taskCtx)
		h.complete(value, err)
	}()
	return h
}
