package client_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SouthPatron/reasonchip/pkg/client"
	"github.com/SouthPatron/reasonchip/pkg/packet"
	"github.com/SouthPatron/reasonchip/pkg/transport"
	"github.com/SouthPatron/reasonchip/pkg/transport/inproc"
)

func dialPair(t *testing.T) (transport.Duplex, transport.Duplex) {
	t.Helper()
	net := inproc.NewNetwork()
	l, err := net.Listen("broker")
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	serverCh := make(chan transport.Duplex, 1)
	go func() {
		d, err := l.Accept(ctx)
		require.NoError(t, err)
		serverCh <- d
	}()

	clientConn, err := net.Dial(ctx, "broker")
	require.NoError(t, err)
	return clientConn, <-serverCh
}

func TestRunPipelineHappyPath(t *testing.T) {
	clientConn, brokerConn := dialPair(t)

	mux := client.New(clientConn)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	go mux.Run(ctx)

	go func() {
		run, err := brokerConn.Recv()
		require.NoError(t, err)
		require.NoError(t, brokerConn.Send(packet.Ok(run.Cookie, "done")))
	}()

	result, err := client.RunPipeline(ctx, mux, "entry", map[string]any{"x": int64(1)})
	require.NoError(t, err)
	assert.Equal(t, packet.OK, result.RC)
	assert.Equal(t, "done", result.Result)
}

func TestRunPipelineWithCancelForwardsCancel(t *testing.T) {
	clientConn, brokerConn := dialPair(t)

	mux := client.New(clientConn)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	go mux.Run(ctx)

	cancelSignal := make(chan struct{})
	go func() {
		run, err := brokerConn.Recv()
		require.NoError(t, err)
		close(cancelSignal)

		cancelPkt, err := brokerConn.Recv()
		require.NoError(t, err)
		assert.Equal(t, packet.CANCEL, cancelPkt.Type)
		assert.Equal(t, run.Cookie, cancelPkt.Cookie)

		require.NoError(t, brokerConn.Send(packet.Failed(run.Cookie, packet.CANCELLED, "cancelled", "")))
	}()

	result, err := client.RunPipelineWithCancel(ctx, mux, "entry", nil, cancelSignal)
	require.NoError(t, err)
	assert.Equal(t, packet.CANCELLED, result.RC)
}

func TestMultiplexorStopSurfacesBrokerLost(t *testing.T) {
	clientConn, _ := dialPair(t)

	mux := client.New(clientConn)
	session := mux.RegisterSession()

	mux.Stop()

	_, err := session.Recv(context.Background())
	assert.ErrorIs(t, err, client.ErrBrokerLost)
}
