// Package client implements the Multiplexor and the high-level run_pipeline
// API a caller uses to talk to a broker. One Multiplexor
// owns one ClientTransport connection and fans incoming packets out to
// whichever Session is waiting on them, looked up by the cookie the
// session's RUN was sent with. Packets carry no connection id, so there is
// no lookup by connection id.
package client

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/SouthPatron/reasonchip/pkg/packet"
	"github.com/SouthPatron/reasonchip/pkg/transport"
)

// ErrBrokerLost is delivered to a Session's Recv once the Multiplexor is
// stopped or the underlying connection drops.
var ErrBrokerLost = fmt.Errorf("client: broker connection lost")

const sessionQueueSize = 16

// Session is one logical conversation with the broker: a connection id
// plus a bounded inbound packet queue. It is exclusively held by whichever
// caller registered it.
type Session struct {
	id  string
	mux *Multiplexor
	in  chan *packet.Packet
}

// ID returns the session's connection id. It identifies the session
// locally; Send does not write it onto outgoing packets.
func (s *Session) ID() string { return s.id }

// Send hands pkt to the transport unchanged. It stamps nothing on the
// packet: the caller sets Cookie itself.
func (s *Session) Send(pkt *packet.Packet) error {
	return s.mux.send(pkt)
}

// Recv blocks until a packet arrives for this session, ctx is cancelled, or
// the Multiplexor is stopped (in which case it returns ErrBrokerLost).
func (s *Session) Recv(ctx context.Context) (*packet.Packet, error) {
	select {
	case pkt, ok := <-s.in:
		if !ok {
			return nil, ErrBrokerLost
		}
		return pkt, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Chan exposes the session's inbound queue directly, for callers (like
// RunPipelineWithCancel) that need to select on it alongside another
// channel instead of going through Recv.
func (s *Session) Chan() <-chan *packet.Packet {
	return s.in
}

// Multiplexor owns one transport.Duplex to a broker and demultiplexes
// inbound RESULT packets to whichever Session issued the matching cookie.
type Multiplexor struct {
	conn transport.Duplex

	mu       sync.Mutex
	sessions map[string]*Session
	cookies  map[string]string // cookie -> session id
	poisoned bool
}

// New wraps conn, an already-established connection to a broker.
func New(conn transport.Duplex) *Multiplexor {
	return &Multiplexor{
		conn:     conn,
		sessions: make(map[string]*Session),
		cookies:  make(map[string]string),
	}
}

// RegisterSession creates a new Session with its own bounded packet queue.
func (m *Multiplexor) RegisterSession() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := &Session{id: uuid.NewString(), mux: m, in: make(chan *packet.Packet, sessionQueueSize)}
	m.sessions[s.id] = s
	return s
}

// ReleaseSession removes id's mapping (and any cookies still pointing at
// it) and closes its queue.
func (m *Multiplexor) ReleaseSession(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return
	}
	delete(m.sessions, id)
	for cookie, sid := range m.cookies {
		if sid == id {
			delete(m.cookies, cookie)
		}
	}
	close(s.in)
}

// BindCookie associates cookie with sessionID, so a later RESULT carrying
// that cookie is routed to the right session's queue.
func (m *Multiplexor) BindCookie(cookie, sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cookies[cookie] = sessionID
}

func (m *Multiplexor) send(pkt *packet.Packet) error {
	return m.conn.Send(pkt)
}

// Run reads from the transport until it errors or ctx is cancelled,
// dispatching each packet to its session via OnIncoming. Callers typically
// run this in its own goroutine for the lifetime of the connection.
func (m *Multiplexor) Run(ctx context.Context) error {
	defer m.Stop()
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		pkt, err := m.conn.Recv()
		if err != nil {
			return err
		}
		m.OnIncoming(pkt)
	}
}

// OnIncoming routes one inbound packet to its session's queue by cookie. A
// packet whose cookie has no bound session (already released, or a stray)
// is dropped with no error: the session that cared about it is gone.
func (m *Multiplexor) OnIncoming(pkt *packet.Packet) {
	m.mu.Lock()
	sid, ok := m.cookies[pkt.Cookie]
	if !ok {
		m.mu.Unlock()
		return
	}
	s, ok := m.sessions[sid]
	m.mu.Unlock()
	if !ok {
		return
	}

	select {
	case s.in <- pkt:
	default:
		// Slow session: drop rather than block the shared receive loop.
	}
}

// Stop marks the Multiplexor poisoned and closes every session's queue so
// a blocked Recv surfaces ErrBrokerLost.
func (m *Multiplexor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.poisoned {
		return
	}
	m.poisoned = true
	for id, s := range m.sessions {
		close(s.in)
		delete(m.sessions, id)
	}
	m.cookies = make(map[string]string)
}
