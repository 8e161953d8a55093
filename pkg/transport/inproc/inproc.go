// Package inproc implements pkg/transport over Go channels, for tests that
// want the broker/worker wiring exercised without a real socket.
package inproc

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/SouthPatron/reasonchip/pkg/packet"
	"github.com/SouthPatron/reasonchip/pkg/transport"
)

// duplex is one end of an in-process connected pair: packets written to
// out arrive as Recv results on the peer holding in. Closing one end makes
// the peer's Send fail and its Recv fail once its queued packets are read.
type duplex struct {
	id       string
	out      chan *packet.Packet
	in       chan *packet.Packet
	closeOne sync.Once
	closed   chan struct{}
	peerGone chan struct{}
}

func newPair(idA, idB string) (transport.Duplex, transport.Duplex) {
	ab := make(chan *packet.Packet, 16)
	ba := make(chan *packet.Packet, 16)
	closedA, closedB := make(chan struct{}), make(chan struct{})
	a := &duplex{id: idA, out: ab, in: ba, closed: closedA, peerGone: closedB}
	b := &duplex{id: idB, out: ba, in: ab, closed: closedB, peerGone: closedA}
	return a, b
}

func (d *duplex) Send(pkt *packet.Packet) error {
	select {
	case d.out <- pkt:
		return nil
	case <-d.closed:
		return fmt.Errorf("inproc: send on closed duplex %s", d.id)
	case <-d.peerGone:
		return fmt.Errorf("inproc: peer of %s closed", d.id)
	}
}

func (d *duplex) Recv() (*packet.Packet, error) {
	select {
	case pkt, ok := <-d.in:
		if !ok {
			return nil, fmt.Errorf("inproc: peer of %s closed", d.id)
		}
		return pkt, nil
	case <-d.closed:
		return nil, fmt.Errorf("inproc: recv on closed duplex %s", d.id)
	case <-d.peerGone:
		select {
		case pkt := <-d.in:
			return pkt, nil
		default:
			return nil, fmt.Errorf("inproc: peer of %s closed", d.id)
		}
	}
}

func (d *duplex) Close() error {
	d.closeOne.Do(func() { close(d.closed) })
	return nil
}

func (d *duplex) RemoteID() string {
	return d.id
}

// Network is a shared in-process address space: Listen registers an
// address, Dial connects to a listener registered on it, and the pair gets
// a connected duplex each. Distinct Networks never see each other's
// addresses, so tests can run isolated networks in parallel.
type Network struct {
	mu        sync.Mutex
	listeners map[string]*netListener
}

// NewNetwork creates an empty address space.
func NewNetwork() *Network {
	return &Network{listeners: make(map[string]*netListener)}
}

type netListener struct {
	addr    string
	incoming chan transport.Duplex
	closed  chan struct{}
	closeOne sync.Once
}

// Listen registers addr in the network and returns a transport.Listener
// for it. Listening twice on the same addr is an error.
func (n *Network) Listen(addr string) (transport.Listener, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if _, exists := n.listeners[addr]; exists {
		return nil, fmt.Errorf("inproc: address %q already in use", addr)
	}
	l := &netListener{addr: addr, incoming: make(chan transport.Duplex), closed: make(chan struct{})}
	n.listeners[addr] = l
	return l, nil
}

// Dial connects to a listener already registered on addr.
func (n *Network) Dial(ctx context.Context, addr string) (transport.Duplex, error) {
	n.mu.Lock()
	l, ok := n.listeners[addr]
	n.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("inproc: no listener on %q", addr)
	}

	clientSide, serverSide := newPair("client-"+uuid.NewString(), "server-"+uuid.NewString())

	select {
	case l.incoming <- serverSide:
		return clientSide, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-l.closed:
		return nil, fmt.Errorf("inproc: listener on %q closed", addr)
	}
}

func (l *netListener) Accept(ctx context.Context) (transport.Duplex, error) {
	select {
	case d := <-l.incoming:
		return d, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-l.closed:
		return nil, fmt.Errorf("inproc: listener on %q closed", l.addr)
	}
}

func (l *netListener) Close() error {
	l.closeOne.Do(func() { close(l.closed) })
	return nil
}

func (l *netListener) Addr() string {
	return l.addr
}
