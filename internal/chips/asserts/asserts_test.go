package asserts_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "github.com/SouthPatron/reasonchip/internal/chips/asserts"
	"github.com/SouthPatron/reasonchip/pkg/chip"
)

func newRegistry(t *testing.T) *chip.Registry {
	t.Helper()
	r := chip.NewRegistry()
	require.NoError(t, r.Discover("asserts"))
	return r
}

func TestFailAlwaysErrors(t *testing.T) {
	r := newRegistry(t)
	resp, err := r.Invoke(context.Background(), "asserts.fail", nil)
	require.NoError(t, err)
	assert.Equal(t, "error", resp["status"])
}

func TestEqualMatch(t *testing.T) {
	r := newRegistry(t)
	resp, err := r.Invoke(context.Background(), "asserts.equal", map[string]any{"a": "x", "b": "x"})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp["status"])
}

func TestEqualMismatch(t *testing.T) {
	r := newRegistry(t)
	resp, err := r.Invoke(context.Background(), "asserts.equal", map[string]any{"a": "x", "b": "y"})
	require.NoError(t, err)
	assert.Equal(t, "error", resp["status"])
}
