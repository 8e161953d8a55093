package logging_test

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/SouthPatron/reasonchip/internal/logging"
)

func TestLevelsFallsBackToDefault(t *testing.T) {
	levels := logging.NewLevels(slog.LevelWarn)
	assert.Equal(t, slog.LevelWarn, levels.Get("broker"))

	levels.Set("broker", slog.LevelDebug)
	assert.Equal(t, slog.LevelDebug, levels.Get("broker"))
	assert.Equal(t, slog.LevelWarn, levels.Get("worker"))
}

func TestContextForBuildsScopedLogger(t *testing.T) {
	ctx := logging.NewNop()
	ctx.Levels.Set("worker", slog.LevelInfo)

	logger := ctx.For("worker")
	assert.NotNil(t, logger)
}
