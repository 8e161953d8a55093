package chips_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SouthPatron/reasonchip/internal/chips"
	"github.com/SouthPatron/reasonchip/pkg/chip"
)

func TestDiscoverAllRegistersEveryBuiltinChip(t *testing.T) {
	r := chip.NewRegistry()
	require.NoError(t, chips.DiscoverAll(r))

	names := r.Names()
	assert.Contains(t, names, "wait_for")
	assert.Contains(t, names, "asserts.fail")
	assert.Contains(t, names, "asserts.equal")
	assert.Contains(t, names, "strip.upper")
	assert.Contains(t, names, "strip.lower")
	assert.Contains(t, names, "strip.trim")
}
