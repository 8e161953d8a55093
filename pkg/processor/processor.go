// Package processor implements the pipeline interpreter: the recursive,
// variable-scoped, asynchronous task executor.
package processor

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/SouthPatron/reasonchip/pkg/chip"
	"github.com/SouthPatron/reasonchip/pkg/expr"
	"github.com/SouthPatron/reasonchip/pkg/flow"
	"github.com/SouthPatron/reasonchip/pkg/pipeline"
	"github.com/SouthPatron/reasonchip/pkg/varctx"
)

// Resolver looks up a pipeline by its dotted name, letting the Processor
// dispatch nested pipelines without holding the owning Engine directly.
type Resolver func(name string) (*pipeline.Pipeline, error)

// branchTarget carries what a BranchTask needs the owning RunPipeline call
// to resume with: the pipeline to run instead, and the scope to run it in.
type branchTarget struct {
	pipeline *pipeline.Pipeline
	scope    *varctx.Context
}

// Processor executes one pipeline run. It is exclusively owned by the
// goroutine that constructed it; it borrows (read-only) a chip Registry and
// a pipeline Resolver from its Engine, and never mutates a pipeline
// definition. DispatchTask creates a fresh Processor per nested pipeline
// call; TaskSet reuses the current Processor with a nested flow and a child
// scope.
type Processor struct {
	registry     *chip.Registry
	resolver     Resolver
	evaluator    *expr.Evaluator
	logger       *slog.Logger
	pipelineName string
}

// New constructs a Processor bound to a pipeline name, for error context and
// logging. Engine.Run creates the top-level Processor; DispatchTask creates
// nested ones by calling New again with the same registry/resolver/evaluator.
func New(pipelineName string, registry *chip.Registry, resolver Resolver, evaluator *expr.Evaluator, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		registry:     registry,
		resolver:     resolver,
		evaluator:    evaluator,
		logger:       logger,
		pipelineName: pipelineName,
	}
}

// RunPipeline is the Processor's single public entry point: it seeds a flow
// with the entry pipeline's tasks and walks it to completion, restarting
// over a branch pipeline's tasks whenever a BranchTask fires.
func (p *Processor) RunPipeline(ctx context.Context, name string, scope *varctx.Context) (any, error) {
	pl, err := p.resolver(name)
	if err != nil {
		return nil, err
	}

	fl := flow.New(pl.Tasks)
	for {
		value, err := p.runFlow(ctx, fl, scope)
		if err == nil {
			return value, nil
		}
		if bs, ok := err.(*branchSignal); ok {
			fl = flow.New(bs.target.pipeline.Tasks)
			scope = bs.target.scope
			continue
		}
		return nil, err
	}
}

// runFlow drains fl in order. A returnSignal is consumed here (Return, or
// return_result, exits only this structural flow level). A branchSignal or
// terminateSignal is left unhandled so it can bubble past nested TaskSet
// frames to whichever call is responsible for catching it.
func (p *Processor) runFlow(ctx context.Context, fl *flow.Flow, scope *varctx.Context) (any, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		task, ok := fl.Take()
		if !ok {
			return nil, nil
		}

		_, err := p.executeTask(ctx, task, scope)
		if err == nil {
			continue
		}

		switch sig := err.(type) {
		case *returnSignal:
			return sig.value, nil
		case *branchSignal, *terminateSignal:
			return nil, sig.(error)
		default:
			return nil, &TaskError{Pipeline: p.pipelineName, Task: taskLabel(task), Cause: err}
		}
	}
}

// executeTask runs the six-step sequence for a single
// task: conditional gate, scope materialization, loop expansion,
// kind-specific execution, result binding, and (if applicable) async
// dispatch. scope is the parent scope owning the flow task came from; it is
// mutated in place only by result-binding sinks and DeclareTask, never
// during evaluation itself.
func (p *Processor) executeTask(ctx context.Context, task *pipeline.Task, scope *varctx.Context) (any, error) {
	if task.When != "" {
		ok, err := p.evaluator.EvaluatePredicate(ctx, task.When, scope)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, nil
		}
	}

	var effective *varctx.Context
	if len(task.Variables) > 0 {
		interpolated, err := p.evaluator.Interpolate(ctx, any(task.Variables), scope)
		if err != nil {
			return nil, err
		}
		effective = varctx.Merged(scope, interpolated.(map[string]any))
	} else {
		effective = scope.Child()
	}

	if task.Loop != nil {
		return nil, p.executeLoop(ctx, task, effective, scope)
	}

	if task.RunAsync {
		handle := runAsync(ctx, func(taskCtx context.Context) (any, error) {
			return p.executeKind(taskCtx, task, effective, scope)
		})
		return p.bindResult(scope, task, handle)
	}

	value, err := p.executeKind(ctx, task, effective, scope)
	if err != nil {
		return nil, err
	}
	return p.bindResult(scope, task, value)
}

// executeLoop expands task.Loop against effective, then for each iteration
// re-runs the kind execution and applies result binding immediately.
// Bindings accumulate into parentScope across iterations, so an
// append_result_into target collects every iteration's result in order.
func (p *Processor) executeLoop(ctx context.Context, task *pipeline.Task, effective, parentScope *varctx.Context) error {
	loopValue, err := p.resolveLoopValue(ctx, task, effective)
	if err != nil {
		return err
	}
	iterations, err := expandLoop(loopValue)
	if err != nil {
		return err
	}

	for _, it := range iterations {
		iterScope := varctx.Merged(effective, map[string]any{"item": it.item, "loop": it.meta})

		if task.RunAsync {
			handle := runAsync(ctx, func(taskCtx context.Context) (any, error) {
				return p.executeKind(taskCtx, task, iterScope, parentScope)
			})
			if _, err := p.bindResult(parentScope, task, handle); err != nil {
				return err
			}
			continue
		}

		value, err := p.executeKind(ctx, task, iterScope, parentScope)
		if err != nil {
			return err
		}
		if _, err := p.bindResult(parentScope, task, value); err != nil {
			return err
		}
	}
	return nil
}

func (p *Processor) resolveLoopValue(ctx context.Context, task *pipeline.Task, scope *varctx.Context) (any, error) {
	if s, ok := task.Loop.(string); ok {
		return p.evaluator.Evaluate(ctx, s, scope)
	}
	return p.evaluator.Interpolate(ctx, task.Loop, scope)
}

func taskLabel(task *pipeline.Task) string {
	if task.Name != "" {
		return fmt.Sprintf("%q", task.Name)
	}
	return "<" + task.Kind.String() + ">"
}
