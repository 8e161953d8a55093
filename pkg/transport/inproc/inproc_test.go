package inproc_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SouthPatron/reasonchip/pkg/packet"
	"github.com/SouthPatron/reasonchip/pkg/transport/inproc"
)

func TestListenDialRoundTrip(t *testing.T) {
	net := inproc.NewNetwork()
	l, err := net.Listen("broker")
	require.NoError(t, err)
	defer l.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
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

	client, err := net.Dial(ctx, "broker")
	require.NoError(t, err)
	require.NoError(t, client.Send(packet.Run("c1", "entry", nil)))

	resp, err := client.Recv()
	require.NoError(t, err)
	assert.Equal(t, "c1", resp.Cookie)
	assert.Equal(t, "pong", resp.Result)

	require.NoError(t, <-serverCh)
}

func TestDialUnknownAddress(t *testing.T) {
	net := inproc.NewNetwork()
	_, err := net.Dial(context.Background(), "nowhere")
	require.Error(t, err)
}

func TestListenTwiceOnSameAddress(t *testing.T) {
	net := inproc.NewNetwork()
	_, err := net.Listen("dup")
	require.NoError(t, err)
	_, err = net.Listen("dup")
	require.Error(t, err)
}
