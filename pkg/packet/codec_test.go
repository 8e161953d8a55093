package packet_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SouthPatron/reasonchip/pkg/packet"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := []*packet.Packet{
		packet.Register(4),
		packet.Run("cookie-1", "chatbot.entry", map[string]any{"name": "world", "count": int64(3)}),
		packet.Cancel("cookie-1"),
		packet.Ok("cookie-1", map[string]any{"greeting": "hi"}),
		packet.Failed("cookie-1", packet.WORKER_LOST, "worker disconnected", ""),
		packet.Shutdown(),
	}

	var buf bytes.Buffer
	for _, pkt := range cases {
		require.NoError(t, packet.Encode(&buf, pkt))
	}

	for _, want := range cases {
		got, err := packet.Decode(&buf)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestDecodeShortReadIsError(t *testing.T) {
	_, err := packet.Decode(bytes.NewReader([]byte{0, 0}))
	require.Error(t, err)
}

func TestTypeAndRCStringers(t *testing.T) {
	assert.Equal(t, "RUN", packet.RUN.String())
	assert.Equal(t, "NO_WORKER_AVAILABLE", packet.NO_WORKER_AVAILABLE.String())
}
