// Package worker implements the Worker TaskManager: one transport
// connection to a broker, a bounded pool of concurrently running
// pipeline invocations, and the RUN/CANCEL/SHUTDOWN packet handling that
// keeps the broker's view of this worker's capacity accurate.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/SouthPatron/reasonchip/pkg/engine"
	"github.com/SouthPatron/reasonchip/pkg/packet"
	"github.com/SouthPatron/reasonchip/pkg/transport"
)

// runningTask tracks one in-flight RUN, so a CANCEL for its cookie can
// reach it.
type runningTask struct {
	cancel context.CancelFunc
}

// TaskManager owns one worker→broker connection and a fixed concurrency
// budget of N. It is not safe to Serve the same TaskManager on two
// goroutines, but the running pipelines it spawns run concurrently with
// each other and with the receive loop.
type TaskManager struct {
	conn    transport.Duplex
	engine  *engine.Engine
	limit   int
	logger  *slog.Logger

	mu      sync.Mutex
	running map[string]*runningTask
	count   int
}

// New constructs a TaskManager bound to conn, running pipelines through
// eng, allowing at most limit concurrent runs.
func New(conn transport.Duplex, eng *engine.Engine, limit int, logger *slog.Logger) *TaskManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &TaskManager{
		conn:    conn,
		engine:  eng,
		limit:   limit,
		logger:  logger,
		running: make(map[string]*runningTask),
	}
}

// Serve sends the initial REGISTER and then processes packets from the
// broker until ctx is cancelled or the connection is lost.
func (tm *TaskManager) Serve(ctx context.Context) error {
	if err := tm.conn.Send(packet.Register(tm.limit)); err != nil {
		return fmt.Errorf("worker: initial register: %w", err)
	}

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		pkt, err := tm.conn.Recv()
		if err != nil {
			return fmt.Errorf("worker: recv: %w", err)
		}

		switch pkt.Type {
		case packet.RUN:
			tm.handleRun(ctx, pkt)
		case packet.CANCEL:
			tm.handleCancel(pkt)
		case packet.SHUTDOWN:
			tm.drain()
			return nil
		default:
			tm.logger.Warn("worker: unexpected packet type", "type", pkt.Type.String())
		}
	}
}

func (tm *TaskManager) handleRun(ctx context.Context, run *packet.Packet) {
	tm.mu.Lock()
	if tm.count >= tm.limit {
		tm.mu.Unlock()
		tm.logger.Error("worker: RUN received while at capacity, broker oversubscribed", "cookie", run.Cookie)
		tm.send(packet.Failed(run.Cookie, packet.ERROR, "worker at capacity", ""))
		return
	}
	taskCtx, cancel := context.WithCancel(ctx)
	tm.running[run.Cookie] = &runningTask{cancel: cancel}
	tm.count++
	tm.mu.Unlock()

	go tm.runOne(taskCtx, run)
}

func (tm *TaskManager) runOne(ctx context.Context, run *packet.Packet) {
	defer tm.finish(run.Cookie)

	result, err := tm.engine.Run(ctx, run.Pipeline, run.Variables)
	if err != nil {
		if ctx.Err() != nil {
			tm.send(packet.Failed(run.Cookie, packet.CANCELLED, "run cancelled", ""))
			return
		}
		tm.send(packet.Failed(run.Cookie, packet.ERROR, err.Error(), ""))
		return
	}

	tm.send(packet.Ok(run.Cookie, result))
}

func (tm *TaskManager) finish(cookie string) {
	tm.mu.Lock()
	delete(tm.running, cookie)
	tm.count--
	tm.mu.Unlock()

	// Replenish the one slot this run freed up.
	tm.send(packet.Register(1))
}

func (tm *TaskManager) handleCancel(cancel *packet.Packet) {
	tm.mu.Lock()
	task, ok := tm.running[cancel.Cookie]
	tm.mu.Unlock()
	if !ok {
		return
	}
	task.cancel()
}

func (tm *TaskManager) drain() {
	tm.mu.Lock()
	tasks := make([]*runningTask, 0, len(tm.running))
	for _, t := range tm.running {
		tasks = append(tasks, t)
	}
	tm.mu.Unlock()

	for _, t := range tasks {
		t.cancel()
	}
}

func (tm *TaskManager) send(pkt *packet.Packet) {
	if err := tm.conn.Send(pkt); err != nil {
		tm.logger.Warn("worker: send failed", "err", err)
	}
}

// RunningCount reports the number of currently in-flight runs, for tests
// and metrics.
func (tm *TaskManager) RunningCount() int {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	return tm.count
}
