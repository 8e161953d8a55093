// Package transport defines the connection abstraction the broker, worker,
// and client sit on top of, independent of whether packets travel over TCP,
// a Unix socket, or an in-process channel pair. Grounded on
// other_examples/creachadair-chirp__doc.go's Peer/Channel split: a Channel
// only needs to send and receive opaque frames over one connection: this
// package's Duplex plays that role for packet.Packet specifically.
package transport

import (
	"context"

	"github.com/SouthPatron/reasonchip/pkg/packet"
)

// Duplex is one established connection: ordered send, ordered receive, and
// a way to tear it down. A Duplex implementation must tolerate one sender
// and one receiver goroutine operating concurrently (Send/Recv need not be
// safe to call concurrently with themselves, only with each other).
type Duplex interface {
	Send(pkt *packet.Packet) error
	Recv() (*packet.Packet, error)
	Close() error

	// RemoteID identifies the peer for logging and disconnect bookkeeping
	// (e.g. "tcp://10.0.0.4:51422" or a generated in-process id).
	RemoteID() string
}

// Listener accepts inbound connections one at a time.
type Listener interface {
	Accept(ctx context.Context) (Duplex, error)
	Close() error
	Addr() string
}

// Dialer opens an outbound connection to addr.
type Dialer interface {
	Dial(ctx context.Context, addr string) (Duplex, error)
}
