package processor

import (
	"errors"

	"github.com/SouthPatron/reasonchip/pkg/pipeline"
	"github.com/SouthPatron/reasonchip/pkg/varctx"
)

// bindResult applies the task's result-binding directives against scope
// (the parent scope owning the task, so a binding is visible to the
// task's siblings). If return_result is set, bindResult returns a
// returnSignal that unwinds the enclosing flow with the value bound to `_`.
func (p *Processor) bindResult(scope *varctx.Context, task *pipeline.Task, value any) (any, error) {
	if task.StoreResultAs == "" && task.AppendResultInto == "" && task.KeyResultInto == nil && !task.ReturnResult {
		return value, nil
	}

	if task.StoreResultAs != "" {
		if err := scope.Set(task.StoreResultAs, value); err != nil {
			return nil, err
		}
	}

	if task.AppendResultInto != "" {
		if err := scope.Append(task.AppendResultInto, value); err != nil {
			return nil, err
		}
	}

	if task.KeyResultInto != nil {
		if err := setKeyResultInto(scope, task.KeyResultInto, value); err != nil {
			return nil, err
		}
	}

	if task.ReturnResult {
		return nil, &returnSignal{value: value}
	}

	return value, nil
}

func setKeyResultInto(scope *varctx.Context, kri *pipeline.KeyResultInto, value any) error {
	var container map[string]any

	existing, err := scope.Get(kri.Path)
	if err != nil {
		var nf *varctx.NotFound
		if !errors.As(err, &nf) {
			return err
		}
		container = map[string]any{}
	} else {
		m, ok := existing.(map[string]any)
		if !ok {
			return &varctx.TypeMismatch{Path: kri.Path, Want: "map", Got: existing}
		}
		container = m
	}

	container[kri.Key] = value
	return scope.Set(kri.Path, container)
}
