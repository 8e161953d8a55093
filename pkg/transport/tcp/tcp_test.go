package tcp_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SouthPatron/reasonchip/pkg/packet"
	"github.com/SouthPatron/reasonchip/pkg/transport/tcp"
)

func TestTCPRoundTrip(t *testing.T) {
	l, err := tcp.Listen("tcp://127.0.0.1:0", nil)
	require.NoError(t, err)
	defer l.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	serverCh := make(chan error, 1)
	go func() {
		server, err := l.Accept(ctx)
		if err != nil {
			serverCh <- err
			return
		}
		pkt, err := server.Recv()
		if err != nil {
			serverCh <- err
			return
		}
		serverCh <- server.Send(packet.Ok(pkt.Cookie, "pong"))
	}()

	dialer := tcp.NewDialer(nil)
	client, err := dialer.Dial(ctx, "tcp://"+l.Addr())
	require.NoError(t, err)
	require.NoError(t, client.Send(packet.Run("c1", "entry", nil)))

	resp, err := client.Recv()
	require.NoError(t, err)
	assert.Equal(t, "c1", resp.Cookie)
	assert.Equal(t, "pong", resp.Result)

	require.NoError(t, <-serverCh)
}

func TestUnsupportedScheme(t *testing.T) {
	_, err := tcp.Listen("udp://127.0.0.1:0", nil)
	require.Error(t, err)
}
