package processor

import (
	"context"
	"fmt"

	"github.com/SouthPatron/reasonchip/pkg/chip"
	"github.com/SouthPatron/reasonchip/pkg/flow"
	"github.com/SouthPatron/reasonchip/pkg/pipeline"
	"github.com/SouthPatron/reasonchip/pkg/varctx"
)

// executeKind performs the kind-specific execution step against scope, and,
// for DeclareTask only, mutates parentScope directly (Declare's merge must
// be visible to the task's siblings, not just to itself).
func (p *Processor) executeKind(ctx context.Context, task *pipeline.Task, scope, parentScope *varctx.Context) (any, error) {
	switch task.Kind {

	case pipeline.KindTaskSet:
		child := scope.Child()
		inner := flow.New(task.TaskSet)
		return p.runFlow(ctx, inner, child)

	case pipeline.KindDispatch:
		params, err := p.interpolateParams(ctx, task, scope)
		if err != nil {
			return nil, err
		}
		callScope := varctx.New()
		callScope.Merge(params)

		nested := New(task.Dispatch, p.registry, p.resolver, p.evaluator, p.logger)
		return nested.RunPipeline(ctx, task.Dispatch, callScope)

	case pipeline.KindBranch:
		pl, err := p.resolver(task.Branch)
		if err != nil {
			return nil, err
		}
		return nil, &branchSignal{target: &branchTarget{pipeline: pl, scope: scope}}

	case pipeline.KindChip:
		params, err := p.interpolateParams(ctx, task, scope)
		if err != nil {
			return nil, err
		}
		return p.invokeChip(ctx, task.Chip, params)

	case pipeline.KindCode:
		params, err := p.interpolateParams(ctx, task, scope)
		if err != nil {
			return nil, err
		}
		return p.evaluator.EvaluateCode(ctx, task.Code, scope, params)

	case pipeline.KindAssert:
		return nil, p.executeAssert(ctx, task, scope)

	case pipeline.KindReturn:
		value, err := p.evaluator.Interpolate(ctx, task.Return, scope)
		if err != nil {
			return nil, err
		}
		return nil, &returnSignal{value: value}

	case pipeline.KindDeclare:
		interpolated, err := p.evaluator.Interpolate(ctx, any(task.Declare), scope)
		if err != nil {
			return nil, err
		}
		parentScope.Merge(interpolated.(map[string]any))
		return nil, nil

	case pipeline.KindComment:
		return nil, nil

	case pipeline.KindTerminate:
		value, err := p.evaluator.Interpolate(ctx, task.Terminate, scope)
		if err != nil {
			return nil, err
		}
		return nil, &terminateSignal{value: value}

	default:
		return nil, fmt.Errorf("processor: unhandled task kind %s", task.Kind)
	}
}

func (p *Processor) interpolateParams(ctx context.Context, task *pipeline.Task, scope *varctx.Context) (map[string]any, error) {
	if len(task.Params) == 0 {
		return map[string]any{}, nil
	}
	interpolated, err := p.evaluator.Interpolate(ctx, any(task.Params), scope)
	if err != nil {
		return nil, err
	}
	return interpolated.(map[string]any), nil
}

// invokeChip runs a chip and reports its outcome. A request-schema mismatch
// (ErrChipInvalidInput) unwinds the run, the same as an unresolvable chip
// name or an assertion failure. Only a response-schema mismatch
// (ErrChipInvalidOutput) is delivered as a structured
// {"status": "error", "error": ...} response instead, since the handler has
// already run by the time that failure is detected.
//
// A response consisting of exactly one field named "result" is unwrapped
// to its bare value, for chips with no status/error signaling of their own
// (e.g. strip.upper, which cannot fail once its request validates).
func (p *Processor) invokeChip(ctx context.Context, name string, params map[string]any) (any, error) {
	resp, err := p.registry.Invoke(ctx, name, params)
	if err == nil {
		if v, ok := resp["result"]; ok && len(resp) == 1 {
			return v, nil
		}
		return resp, nil
	}

	var badOutput *chip.ErrChipInvalidOutput
	if asError(err, &badOutput) {
		return map[string]any{"status": "error", "error": badOutput.Error()}, nil
	}
	return nil, err
}

func asError[T error](err error, target *T) bool {
	e, ok := err.(T)
	if ok {
		*target = e
	}
	return ok
}

func (p *Processor) executeAssert(ctx context.Context, task *pipeline.Task, scope *varctx.Context) error {
	var exprs []string
	switch v := task.Assert.(type) {
	case string:
		exprs = []string{v}
	case []any:
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return fmt.Errorf("processor: assert: sequence element is not a string")
			}
			exprs = append(exprs, s)
		}
	default:
		return fmt.Errorf("processor: assert: expected a string or sequence of strings")
	}

	for _, e := range exprs {
		ok, err := p.evaluator.EvaluatePredicate(ctx, e, scope)
		if err != nil {
			return err
		}
		if !ok {
			return &AssertionFailed{Expression: e}
		}
	}
	return nil
}
