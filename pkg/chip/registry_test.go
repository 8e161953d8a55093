package chip_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SouthPatron/reasonchip/pkg/chip"
)

func echoHandler(_ context.Context, req map[string]any) (map[string]any, error) {
	return map[string]any{"echo": req["s"]}, nil
}

func TestRegisterAndLookup(t *testing.T) {
	r := chip.NewRegistry()
	require.NoError(t, r.Register("strip.upper", echoHandler, nil, nil))

	e, err := r.Lookup("strip.upper")
	require.NoError(t, err)
	assert.Equal(t, "strip.upper", e.Name)
}

func TestRegisterCollisionIsFatal(t *testing.T) {
	r := chip.NewRegistry()
	require.NoError(t, r.Register("strip.upper", echoHandler, nil, nil))
	err := r.Register("strip.upper", echoHandler, nil, nil)
	require.Error(t, err)
	var collision *chip.ErrChipCollision
	assert.ErrorAs(t, err, &collision)
}

func TestLookupModulePrefixFallback(t *testing.T) {
	r := chip.NewRegistry("redis.")
	require.NoError(t, r.Register("redis.redis_execute", echoHandler, nil, nil))

	e, err := r.Lookup("redis_execute")
	require.NoError(t, err)
	assert.Equal(t, "redis.redis_execute", e.Name)
}

func TestLookupNotFound(t *testing.T) {
	r := chip.NewRegistry()
	_, err := r.Lookup("nope")
	require.Error(t, err)
	var nf *chip.ErrChipNotFound
	assert.ErrorAs(t, err, &nf)
}

func TestInvokeValidatesRequestAndResponse(t *testing.T) {
	r := chip.NewRegistry()
	require.NoError(t, r.Register("strip.upper", echoHandler, chip.Schema{"s": chip.String()}, chip.Schema{"echo": chip.String()}))

	_, err := r.Invoke(context.Background(), "strip.upper", map[string]any{})
	require.Error(t, err)
	var badInput *chip.ErrChipInvalidInput
	assert.ErrorAs(t, err, &badInput)

	out, err := r.Invoke(context.Background(), "strip.upper", map[string]any{"s": "a"})
	require.NoError(t, err)
	assert.Equal(t, "a", out["echo"])
}
