package engine_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/SouthPatron/reasonchip/pkg/chip"
	"github.com/SouthPatron/reasonchip/pkg/engine"
	"github.com/SouthPatron/reasonchip/pkg/pipeline"
)

func mustParse(t *testing.T, name, doc string) *pipeline.Pipeline {
	t.Helper()
	var tasks []*pipeline.Task
	require.NoError(t, yaml.Unmarshal([]byte(doc), &tasks))
	return &pipeline.Pipeline{Name: name, Tasks: tasks}
}

func TestLoadCollectionValidatesReferences(t *testing.T) {
	registry := chip.NewRegistry()
	require.NoError(t, registry.Register("greet", func(ctx context.Context, req map[string]any) (map[string]any, error) {
		return map[string]any{"ok": true}, nil
	}, nil, nil))

	entry := mustParse(t, "entry", `
- chip: greet
- dispatch: missing.pipeline
- branch: also.missing
`)
	col := pipeline.NewCollection(map[string]*pipeline.Pipeline{"entry": entry})

	e := engine.New(registry, nil)
	err := e.LoadCollection(col)
	require.Error(t, err)

	var verr *engine.ErrValidation
	require.ErrorAs(t, err, &verr)
	assert.Len(t, verr.Problems, 2)
}

func TestRunEndToEnd(t *testing.T) {
	registry := chip.NewRegistry()
	require.NoError(t, registry.Register("greet", func(ctx context.Context, req map[string]any) (map[string]any, error) {
		return map[string]any{"greeting": "hello " + req["name"].(string)}, nil
	}, nil, nil))

	entry := mustParse(t, "entry", `
- chip: greet
  store_result_as: resp
  params:
    name: "{{ who }}"
- return: "{{ resp.greeting }}"
`)
	col := pipeline.NewCollection(map[string]*pipeline.Pipeline{"entry": entry})

	e := engine.New(registry, nil)
	require.NoError(t, e.LoadCollection(col))

	result, err := e.Run(context.Background(), "entry", map[string]any{"who": "world"})
	require.NoError(t, err)
	assert.Equal(t, "hello world", result)
}

func TestRunPropagatesTerminateAsResult(t *testing.T) {
	registry := chip.NewRegistry()
	entry := mustParse(t, "entry", `
- terminate: "aborted"
`)
	col := pipeline.NewCollection(map[string]*pipeline.Pipeline{"entry": entry})

	e := engine.New(registry, nil)
	require.NoError(t, e.LoadCollection(col))

	result, err := e.Run(context.Background(), "entry", nil)
	require.NoError(t, err)
	assert.Equal(t, "aborted", result)
}

func TestRunUnknownEntryPipeline(t *testing.T) {
	registry := chip.NewRegistry()
	col := pipeline.NewCollection(nil)

	e := engine.New(registry, nil)
	require.NoError(t, e.LoadCollection(col))

	_, err := e.Run(context.Background(), "nope", nil)
	require.Error(t, err)
}
