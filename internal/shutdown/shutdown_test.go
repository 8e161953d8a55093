package shutdown_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/SouthPatron/reasonchip/internal/shutdown"
)

func TestNewIsNotCancelledUntilStop(t *testing.T) {
	s := shutdown.New()
	defer s.Stop()

	assert.Nil(t, s.Context().Err())
}

func TestStopCancelsContext(t *testing.T) {
	s := shutdown.New()
	s.Stop()

	assert.NotNil(t, s.Context().Err())
}
