package processor_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	_ "github.com/SouthPatron/reasonchip/internal/chips/strip"
	"github.com/SouthPatron/reasonchip/pkg/chip"
	"github.com/SouthPatron/reasonchip/pkg/expr"
	"github.com/SouthPatron/reasonchip/pkg/pipeline"
	"github.com/SouthPatron/reasonchip/pkg/processor"
	"github.com/SouthPatron/reasonchip/pkg/varctx"
)

func parsePipeline(t *testing.T, name, doc string) *pipeline.Pipeline {
	t.Helper()
	var tasks []*pipeline.Task
	require.NoError(t, yaml.Unmarshal([]byte(doc), &tasks))
	return &pipeline.Pipeline{Name: name, Tasks: tasks}
}

func newTestProcessor(t *testing.T, registry *chip.Registry, pipelines map[string]*pipeline.Pipeline) *processor.Processor {
	t.Helper()
	if registry == nil {
		registry = chip.NewRegistry()
	}
	resolver := func(name string) (*pipeline.Pipeline, error) {
		p, ok := pipelines[name]
		if !ok {
			return nil, &pipeline.ErrUnknownPipeline{Name: name}
		}
		return p, nil
	}
	return processor.New("entry", registry, resolver, expr.New(), nil)
}

func TestDeclareAndInterpolate(t *testing.T) {
	entry := parsePipeline(t, "entry", `
- declare:
    a: "Hi, {{ name }}"
- return: "{{ a }}!"
`)
	p := newTestProcessor(t, nil, map[string]*pipeline.Pipeline{"entry": entry})

	result, err := p.RunPipeline(context.Background(), "entry", varctx.FromMap(map[string]any{"name": "Elvis"}))
	require.NoError(t, err)
	assert.Equal(t, "Hi, Elvis!", result)
}

func TestConditionalSkip(t *testing.T) {
	var calls int
	registry := chip.NewRegistry()
	require.NoError(t, registry.Register("asserts.fail", func(ctx context.Context, req map[string]any) (map[string]any, error) {
		calls++
		return map[string]any{}, nil
	}, nil, nil))

	entry := parsePipeline(t, "entry", `
- declare:
    x: 5
- chip: asserts.fail
  when: "x > 10"
- return: "ok"
`)
	p := newTestProcessor(t, registry, map[string]*pipeline.Pipeline{"entry": entry})

	result, err := p.RunPipeline(context.Background(), "entry", varctx.New())
	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, 0, calls)
}

func TestLoopAppend(t *testing.T) {
	registry := chip.NewRegistry()
	require.NoError(t, registry.Discover("strip"))

	entry := parsePipeline(t, "entry", `
- chip: strip.upper
  loop: "[\"a\", \"b\"]"
  append_result_into: out
  params:
    s: "{{ item }}"
- return: "{{ out }}"
`)
	p := newTestProcessor(t, registry, map[string]*pipeline.Pipeline{"entry": entry})

	result, err := p.RunPipeline(context.Background(), "entry", varctx.New())
	require.NoError(t, err)

	assert.Equal(t, []any{"A", "B"}, result)
}

func TestLoopOrderingMetadata(t *testing.T) {
	var loopMetas []map[string]any
	registry := chip.NewRegistry()
	require.NoError(t, registry.Register("capture", func(ctx context.Context, req map[string]any) (map[string]any, error) {
		loopMetas = append(loopMetas, req)
		return map[string]any{}, nil
	}, nil, nil))

	entry := parsePipeline(t, "entry", `
- chip: capture
  loop: "[\"a\", \"b\", \"c\"]"
  params:
    item: "{{ item }}"
    index: "{{ loop.index }}"
    first: "{{ loop.first }}"
    last: "{{ loop.last }}"
    revindex: "{{ loop.revindex }}"
`)
	p := newTestProcessor(t, registry, map[string]*pipeline.Pipeline{"entry": entry})

	_, err := p.RunPipeline(context.Background(), "entry", varctx.New())
	require.NoError(t, err)

	require.Len(t, loopMetas, 3)
	assert.Equal(t, "a", loopMetas[0]["item"])
	assert.Equal(t, "b", loopMetas[1]["item"])
	assert.Equal(t, "c", loopMetas[2]["item"])
	assert.Equal(t, true, loopMetas[0]["first"])
	assert.Equal(t, false, loopMetas[1]["first"])
	assert.Equal(t, true, loopMetas[2]["last"])
	assert.EqualValues(t, 3, loopMetas[0]["revindex"])
	assert.EqualValues(t, 1, loopMetas[2]["revindex"])
}

func TestLoopedAsyncDispatchesPerIteration(t *testing.T) {
	registry := chip.NewRegistry()
	require.NoError(t, registry.Register("slow.echo", func(ctx context.Context, req map[string]any) (map[string]any, error) {
		time.Sleep(5 * time.Millisecond)
		return map[string]any{"echo": req["s"]}, nil
	}, nil, nil))

	entry := parsePipeline(t, "entry", `
- chip: slow.echo
  loop: "[\"a\", \"b\", \"c\"]"
  run_async: true
  append_result_into: handles
  params:
    s: "{{ item }}"
- return: "{{ handles }}"
`)
	p := newTestProcessor(t, registry, map[string]*pipeline.Pipeline{"entry": entry})

	result, err := p.RunPipeline(context.Background(), "entry", varctx.New())
	require.NoError(t, err)

	handles, ok := result.([]any)
	require.True(t, ok)
	require.Len(t, handles, 3)

	want := []string{"a", "b", "c"}
	for i, h := range handles {
		handle, ok := h.(*processor.AsyncHandle)
		require.True(t, ok)
		v, err := handle.Wait(context.Background())
		require.NoError(t, err)
		resp, ok := v.(map[string]any)
		require.True(t, ok)
		assert.Equal(t, want[i], resp["echo"])
	}
}

func TestAsyncHandleWaitFor(t *testing.T) {
	registry := chip.NewRegistry()
	require.NoError(t, registry.Register("slow.echo", func(ctx context.Context, req map[string]any) (map[string]any, error) {
		return map[string]any{"echo": req["s"]}, nil
	}, nil, nil))

	entry := parsePipeline(t, "entry", `
- chip: slow.echo
  run_async: true
  store_result_as: handle
  params:
    s: "hello"
- return: "done"
`)
	p := newTestProcessor(t, registry, map[string]*pipeline.Pipeline{"entry": entry})

	result, err := p.RunPipeline(context.Background(), "entry", varctx.New())
	require.NoError(t, err)
	assert.Equal(t, "done", result)
}

func TestTerminatePropagatesThroughDispatch(t *testing.T) {
	inner := parsePipeline(t, "inner", `
- terminate: "stopped early"
`)
	outer := parsePipeline(t, "outer", `
- dispatch: inner
- return: "unreachable"
`)
	p := newTestProcessor(t, nil, map[string]*pipeline.Pipeline{"inner": inner, "outer": outer})

	_, err := p.RunPipeline(context.Background(), "outer", varctx.New())
	require.Error(t, err)
	value, ok := processor.IsTerminate(err)
	require.True(t, ok)
	assert.Equal(t, "stopped early", value)
}

func TestBranchClearsCurrentPipelineFlowOnly(t *testing.T) {
	target := parsePipeline(t, "target", `
- return: "branched"
`)
	entry := parsePipeline(t, "entry", `
- branch: target
- return: "unreachable"
`)
	p := newTestProcessor(t, nil, map[string]*pipeline.Pipeline{"entry": entry, "target": target})

	result, err := p.RunPipeline(context.Background(), "entry", varctx.New())
	require.NoError(t, err)
	assert.Equal(t, "branched", result)
}

func TestAssertFailureUnwinds(t *testing.T) {
	entry := parsePipeline(t, "entry", `
- declare:
    x: 1
- assert: "x > 10"
- return: "unreachable"
`)
	p := newTestProcessor(t, nil, map[string]*pipeline.Pipeline{"entry": entry})

	_, err := p.RunPipeline(context.Background(), "entry", varctx.New())
	require.Error(t, err)
}

func TestChipRequestSchemaFailureUnwinds(t *testing.T) {
	var called bool
	registry := chip.NewRegistry()
	require.NoError(t, registry.Register("greet",
		func(ctx context.Context, req map[string]any) (map[string]any, error) {
			called = true
			return map[string]any{"ok": true}, nil
		},
		chip.Schema{"name": chip.String()}, nil,
	))

	entry := parsePipeline(t, "entry", `
- chip: greet
  params:
    name: 5
- return: "unreachable"
`)
	p := newTestProcessor(t, registry, map[string]*pipeline.Pipeline{"entry": entry})

	_, err := p.RunPipeline(context.Background(), "entry", varctx.New())
	require.Error(t, err)
	var badInput *chip.ErrChipInvalidInput
	assert.ErrorAs(t, err, &badInput)
	assert.False(t, called)
}

func TestChipResponseSchemaFailureIsStructured(t *testing.T) {
	registry := chip.NewRegistry()
	require.NoError(t, registry.Register("greet",
		func(ctx context.Context, req map[string]any) (map[string]any, error) {
			return map[string]any{"ok": "not-a-bool"}, nil
		},
		nil, chip.Schema{"ok": chip.Bool()},
	))

	entry := parsePipeline(t, "entry", `
- chip: greet
  store_result_as: "result"
- return: "{{ result }}"
`)
	p := newTestProcessor(t, registry, map[string]*pipeline.Pipeline{"entry": entry})

	result, err := p.RunPipeline(context.Background(), "entry", varctx.New())
	require.NoError(t, err)
	resultMap, ok := result.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "error", resultMap["status"])
	assert.NotEmpty(t, resultMap["error"])
}

