// Package tcp implements pkg/transport over net.Conn, accepting both
// "tcp://host:port" and "unix:///path/to/socket" addresses so the broker
// and worker can share one flag surface for either transport.
package tcp

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"strings"
	"sync"

	"github.com/SouthPatron/reasonchip/pkg/packet"
	"github.com/SouthPatron/reasonchip/pkg/transport"
)

// conn wraps a net.Conn as a transport.Duplex. Writes are serialized with a
// mutex since packet.Encode issues two Write calls per frame (length prefix,
// then body) that must not interleave with a concurrent Send.
type conn struct {
	nc     net.Conn
	sendMu sync.Mutex
}

func newDuplex(nc net.Conn) transport.Duplex {
	return &conn{nc: nc}
}

func (c *conn) Send(pkt *packet.Packet) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	return packet.Encode(c.nc, pkt)
}

func (c *conn) Recv() (*packet.Packet, error) {
	return packet.Decode(c.nc)
}

func (c *conn) Close() error {
	return c.nc.Close()
}

func (c *conn) RemoteID() string {
	return c.nc.RemoteAddr().String()
}

// splitAddr separates a "tcp://" or "unix://" address into its network and
// endpoint parts.
func splitAddr(addr string) (network, endpoint string, err error) {
	switch {
	case strings.HasPrefix(addr, "tcp://"):
		return "tcp", strings.TrimPrefix(addr, "tcp://"), nil
	case strings.HasPrefix(addr, "unix://"):
		return "unix", strings.TrimPrefix(addr, "unix://"), nil
	default:
		return "", "", fmt.Errorf("tcp: unsupported address scheme: %q (want tcp:// or unix://)", addr)
	}
}

// listener wraps a net.Listener.
type listener struct {
	nl net.Listener
}

// Listen opens a Listener on addr ("tcp://host:port" or "unix:///path"). If
// tlsConfig is non-nil, accepted connections are TLS-wrapped.
func Listen(addr string, tlsConfig *tls.Config) (transport.Listener, error) {
	network, endpoint, err := splitAddr(addr)
	if err != nil {
		return nil, err
	}

	nl, err := net.Listen(network, endpoint)
	if err != nil {
		return nil, fmt.Errorf("tcp: listen %s: %w", addr, err)
	}
	if tlsConfig != nil {
		nl = tls.NewListener(nl, tlsConfig)
	}
	return &listener{nl: nl}, nil
}

func (l *listener) Accept(ctx context.Context) (transport.Duplex, error) {
	type result struct {
		nc  net.Conn
		err error
	}
	ch := make(chan result, 1)
	go func() {
		nc, err := l.nl.Accept()
		ch <- result{nc, err}
	}()

	select {
	case <-ctx.Done():
		l.nl.Close()
		return nil, ctx.Err()
	case r := <-ch:
		if r.err != nil {
			return nil, r.err
		}
		return newDuplex(r.nc), nil
	}
}

func (l *listener) Close() error {
	return l.nl.Close()
}

func (l *listener) Addr() string {
	return l.nl.Addr().String()
}

// dialer implements transport.Dialer over net.Dial.
type dialer struct {
	tlsConfig *tls.Config
}

// NewDialer returns a transport.Dialer. If tlsConfig is non-nil, dialed
// connections are wrapped in TLS.
func NewDialer(tlsConfig *tls.Config) transport.Dialer {
	return &dialer{tlsConfig: tlsConfig}
}

func (d *dialer) Dial(ctx context.Context, addr string) (transport.Duplex, error) {
	network, endpoint, err := splitAddr(addr)
	if err != nil {
		return nil, err
	}

	var nd net.Dialer
	nc, err := nd.DialContext(ctx, network, endpoint)
	if err != nil {
		return nil, fmt.Errorf("tcp: dial %s: %w", addr, err)
	}

	if d.tlsConfig != nil {
		tc := tls.Client(nc, d.tlsConfig)
		if err := tc.HandshakeContext(ctx); err != nil {
			nc.Close()
			return nil, fmt.Errorf("tcp: tls handshake with %s: %w", addr, err)
		}
		nc = tc
	}

	return newDuplex(nc), nil
}
