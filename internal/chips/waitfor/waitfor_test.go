package waitfor_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	_ "github.com/SouthPatron/reasonchip/internal/chips/waitfor"
	"github.com/SouthPatron/reasonchip/pkg/chip"
	"github.com/SouthPatron/reasonchip/pkg/expr"
	"github.com/SouthPatron/reasonchip/pkg/pipeline"
	"github.com/SouthPatron/reasonchip/pkg/processor"
	"github.com/SouthPatron/reasonchip/pkg/varctx"
)

func newRegistry(t *testing.T) *chip.Registry {
	t.Helper()
	r := chip.NewRegistry()
	require.NoError(t, r.Discover("wait_for"))
	return r
}

func parse(t *testing.T, doc string) *pipeline.Pipeline {
	t.Helper()
	var tasks []*pipeline.Task
	require.NoError(t, yaml.Unmarshal([]byte(doc), &tasks))
	return &pipeline.Pipeline{Name: "entry", Tasks: tasks}
}

func TestWaitForReturnsUnderlyingResult(t *testing.T) {
	r := newRegistry(t)
	require.NoError(t, r.Register("slow.echo", func(ctx context.Context, req map[string]any) (map[string]any, error) {
		time.Sleep(10 * time.Millisecond)
		return map[string]any{"echo": req["s"]}, nil
	}, nil, nil))

	entry := parse(t, `
- chip: slow.echo
  run_async: true
  store_result_as: handle
  params:
    s: "hi"
- chip: wait_for
  params:
    handle: "{{ handle }}"
  store_result_as: outcome
- return: "{{ outcome }}"
`)
	resolver := func(name string) (*pipeline.Pipeline, error) { return entry, nil }
	p := processor.New("entry", r, resolver, expr.New(), nil)

	result, err := p.RunPipeline(context.Background(), "entry", varctx.New())
	require.NoError(t, err)

	outcome, ok := result.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "ok", outcome["status"])
	echoed, ok := outcome["result"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "hi", echoed["echo"])
}

func TestWaitForTimesOut(t *testing.T) {
	r := newRegistry(t)
	require.NoError(t, r.Register("slow.echo", func(ctx context.Context, req map[string]any) (map[string]any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}, nil, nil))

	entry := parse(t, `
- chip: slow.echo
  run_async: true
  store_result_as: handle
- chip: wait_for
  params:
    handle: "{{ handle }}"
    deadline_seconds: 0.05
  store_result_as: outcome
- return: "{{ outcome }}"
`)
	resolver := func(name string) (*pipeline.Pipeline, error) { return entry, nil }
	p := processor.New("entry", r, resolver, expr.New(), nil)

	result, err := p.RunPipeline(context.Background(), "entry", varctx.New())
	require.NoError(t, err)

	outcome, ok := result.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "timeout", outcome["status"])
}
