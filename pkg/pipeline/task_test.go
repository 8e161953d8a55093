package pipeline_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/SouthPatron/reasonchip/pkg/pipeline"
)

func decodeTask(t *testing.T, doc string) (*pipeline.Task, error) {
	t.Helper()
	var task pipeline.Task
	err := yaml.Unmarshal([]byte(doc), &task)
	return &task, err
}

func TestTaskDiscriminationDeclare(t *testing.T) {
	task, err := decodeTask(t, `
declare:
  a: "Hi, {{ name }}"
`)
	require.NoError(t, err)
	assert.Equal(t, pipeline.KindDeclare, task.Kind)
	assert.Equal(t, "Hi, {{ name }}", task.Declare["a"])
}

func TestTaskDiscriminationCommentOnly(t *testing.T) {
	task, err := decodeTask(t, `
comment: "just a note"
`)
	require.NoError(t, err)
	assert.Equal(t, pipeline.KindComment, task.Kind)
}

func TestTaskDiscriminationCommentAlongsideKind(t *testing.T) {
	task, err := decodeTask(t, `
chip: strip.upper
comment: "uppercase the input"
`)
	require.NoError(t, err)
	assert.Equal(t, pipeline.KindChip, task.Kind)
	assert.Equal(t, "strip.upper", task.Chip)
	assert.Equal(t, "uppercase the input", task.CommentText)
}

func TestTaskDiscriminationZeroKindKeys(t *testing.T) {
	_, err := decodeTask(t, `
name: "nothing here"
`)
	require.Error(t, err)
}

func TestTaskDiscriminationMultipleKindKeys(t *testing.T) {
	_, err := decodeTask(t, `
chip: strip.upper
dispatch: some.pipeline
`)
	require.Error(t, err)
}

func TestTaskNestedTaskSet(t *testing.T) {
	task, err := decodeTask(t, `
tasks:
  - declare:
      a: 1
  - return: "{{ a }}"
`)
	require.NoError(t, err)
	assert.Equal(t, pipeline.KindTaskSet, task.Kind)
	require.Len(t, task.TaskSet, 2)
	assert.Equal(t, pipeline.KindDeclare, task.TaskSet[0].Kind)
	assert.Equal(t, pipeline.KindReturn, task.TaskSet[1].Kind)
}

func TestTaskRunAsyncRequiresResultSink(t *testing.T) {
	_, err := decodeTask(t, `
chip: strip.upper
run_async: true
`)
	require.Error(t, err)

	task, err := decodeTask(t, `
chip: strip.upper
run_async: true
store_result_as: handle
`)
	require.NoError(t, err)
	assert.True(t, task.RunAsync)
	assert.Equal(t, "handle", task.StoreResultAs)
}

func TestTaskRunAsyncUnsupportedKind(t *testing.T) {
	_, err := decodeTask(t, `
return: "x"
run_async: true
store_result_as: handle
`)
	require.Error(t, err)
}

func TestNameFromPath(t *testing.T) {
	assert.Equal(t, "chatbot.app.entry", pipeline.NameFromPath("chatbot/app/entry.yml"))
}
