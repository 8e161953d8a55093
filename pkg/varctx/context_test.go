package varctx

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetSetDotted(t *testing.T) {
	ctx := New()
	require.NoError(t, ctx.Set("a.b.c", 5))

	v, err := ctx.Get("a.b.c")
	require.NoError(t, err)
	assert.Equal(t, 5, v)

	_, err = ctx.Get("a.b.nope")
	require.Error(t, err)
	var nf *NotFound
	assert.ErrorAs(t, err, &nf)
}

func TestSequenceIndexing(t *testing.T) {
	ctx := FromMap(map[string]any{
		"items": []any{"a", "b", "c"},
	})

	v, err := ctx.Get("items.1")
	require.NoError(t, err)
	assert.Equal(t, "b", v)

	require.NoError(t, ctx.Set("items.2", "z"))
	v, err = ctx.Get("items.2")
	require.NoError(t, err)
	assert.Equal(t, "z", v)
}

func TestAppendRequiresSequence(t *testing.T) {
	ctx := FromMap(map[string]any{"out": "not-a-list"})
	err := ctx.Append("out", "x")
	require.Error(t, err)
	var tm *TypeMismatch
	assert.ErrorAs(t, err, &tm)

	ctx2 := New()
	require.NoError(t, ctx2.Append("out", "x"))
	require.NoError(t, ctx2.Append("out", "y"))
	v, err := ctx2.Get("out")
	require.NoError(t, err)
	assert.Equal(t, []any{"x", "y"}, v)
}

func TestMergeAssociativityAndIdentity(t *testing.T) {
	a := map[string]any{"x": 1, "nested": map[string]any{"p": 1}}
	b := map[string]any{"y": 2, "nested": map[string]any{"q": 2}}
	c := map[string]any{"z": 3, "nested": map[string]any{"r": 3}}

	left := FromMap(cloneMap(a))
	left.Merge(cloneMap(b))
	left.Merge(cloneMap(c))

	right := FromMap(cloneMap(b))
	right.Merge(cloneMap(c))
	combinedRight := FromMap(cloneMap(a))
	combinedRight.Merge(right.Raw())

	assert.Equal(t, left.Raw(), combinedRight.Raw())

	identity := FromMap(cloneMap(a))
	identity.Merge(map[string]any{})
	assert.Equal(t, a, identity.Raw())
}

func TestChildIsolation(t *testing.T) {
	parent := FromMap(map[string]any{"a": map[string]any{"b": 1}})
	child := parent.Child()
	require.NoError(t, child.Set("a.b", 2))
	require.NoError(t, child.Set("a.c", 3))

	v, _ := parent.Get("a.b")
	assert.Equal(t, 1, v)
	_, err := parent.Get("a.c")
	assert.Error(t, err)
}

func TestScalarReplaceOnMerge(t *testing.T) {
	ctx := FromMap(map[string]any{"x": map[string]any{"y": 1}})
	ctx.Merge(map[string]any{"x": 5})
	v, err := ctx.Get("x")
	require.NoError(t, err)
	assert.Equal(t, 5, v)
}

func TestSequenceReplacesWholesaleOnMerge(t *testing.T) {
	ctx := FromMap(map[string]any{"list": []any{1, 2, 3}})
	ctx.Merge(map[string]any{"list": []any{9}})
	v, err := ctx.Get("list")
	require.NoError(t, err)
	assert.Equal(t, []any{9}, v)
}
