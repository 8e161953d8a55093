// Package broker implements the routing fabric between clients and
// workers: a Switchboard tracking available worker capacity and
// in-flight routes, and a Broker that owns the two transport listeners and
// drives the Switchboard from incoming packets.
package broker

import (
	"sync"

	"github.com/SouthPatron/reasonchip/pkg/packet"
)

// Store is an optional external mirror of the Switchboard's worker-slot
// queue, used to give multiple broker replicas a shared view of capacity;
// it is not a substitute for the Switchboard's own in-memory state (route
// forwarding never blocks on it) and it is never consulted to recover a
// specific in-flight run.
type Store interface {
	PushSlot(workerID string) error
	PopSlot() (workerID string, ok bool, err error)
	RemoveWorkerSlots(workerID string) error
}

// route records which client and worker a cookie is currently bound to.
type route struct {
	clientID string
	workerID string
}

// Switchboard holds the Broker's routing state under one lock: every
// route-affecting operation executes serialized by a single broker-wide
// lock. It never touches a transport.Duplex itself; Broker translates its
// decisions
// (Forward/direct results) into actual sends.
type Switchboard struct {
	mu sync.Mutex

	availableWorkers []string // worker connection ids, front = next to use
	routes           map[string]route

	store Store
}

// NewSwitchboard creates an empty Switchboard. store may be nil.
func NewSwitchboard(store Store) *Switchboard {
	return &Switchboard{
		routes: make(map[string]route),
		store:  store,
	}
}

// Decision tells the Broker what, if anything, to send and to whom as the
// result of one Switchboard operation.
type Decision struct {
	// SendToClient/SendToWorker are connection ids the Broker should
	// forward Packet to, when non-empty.
	SendToClient string
	SendToWorker string
	Packet       *packet.Packet
}

// Register adds capacity slots for workerID, per a REGISTER packet.
func (s *Switchboard) Register(workerID string, capacity int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := 0; i < capacity; i++ {
		s.availableWorkers = append(s.availableWorkers, workerID)
		if s.store != nil {
			s.store.PushSlot(workerID)
		}
	}
}

// RunFromClient handles a RUN packet from clientID. If no worker capacity is
// available it returns a NO_WORKER_AVAILABLE result addressed back to the
// client; otherwise it claims the front slot, records the route, and
// forwards RUN to the chosen worker.
func (s *Switchboard) RunFromClient(clientID string, run *packet.Packet) Decision {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.availableWorkers) == 0 {
		return Decision{
			SendToClient: clientID,
			Packet:       packet.Failed(run.Cookie, packet.NO_WORKER_AVAILABLE, "no worker available", ""),
		}
	}

	workerID := s.availableWorkers[0]
	s.availableWorkers = s.availableWorkers[1:]
	if s.store != nil {
		s.store.PopSlot()
	}

	s.routes[run.Cookie] = route{clientID: clientID, workerID: workerID}
	return Decision{SendToWorker: workerID, Packet: run}
}

// CancelFromClient forwards a CANCEL to the worker holding cookie's route,
// or does nothing if the route is unknown (already completed or never
// existed).
func (s *Switchboard) CancelFromClient(cancel *packet.Packet) Decision {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.routes[cancel.Cookie]
	if !ok {
		return Decision{}
	}
	return Decision{SendToWorker: r.workerID, Packet: cancel}
}

// ResultFromWorker forwards a RESULT to the route's client and releases the
// route. It deliberately does not restore a worker slot: the worker
// re-registers its own capacity via a fresh REGISTER packet.
func (s *Switchboard) ResultFromWorker(result *packet.Packet) Decision {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.routes[result.Cookie]
	if !ok {
		return Decision{}
	}
	delete(s.routes, result.Cookie)
	return Decision{SendToClient: r.clientID, Packet: result}
}

// ClientDisconnected forwards CANCEL to every worker with a route owned by
// clientID and removes those routes. Any RESULT that later arrives for one
// of them is silently discarded by ResultFromWorker (the route is gone).
func (s *Switchboard) ClientDisconnected(clientID string) []Decision {
	s.mu.Lock()
	defer s.mu.Unlock()

	var decisions []Decision
	for cookie, r := range s.routes {
		if r.clientID != clientID {
			continue
		}
		decisions = append(decisions, Decision{
			SendToWorker: r.workerID,
			Packet:       packet.Cancel(cookie),
		})
		delete(s.routes, cookie)
	}
	return decisions
}

// WorkerDisconnected sends RESULT{rc=WORKER_LOST} to every client with a
// route owned by workerID, removes those routes, and purges any of the
// worker's slots still sitting in the available queue.
func (s *Switchboard) WorkerDisconnected(workerID string) []Decision {
	s.mu.Lock()
	defer s.mu.Unlock()

	var decisions []Decision
	for cookie, r := range s.routes {
		if r.workerID != workerID {
			continue
		}
		decisions = append(decisions, Decision{
			SendToClient: r.clientID,
			Packet:       packet.Failed(cookie, packet.WORKER_LOST, "worker disconnected", ""),
		})
		delete(s.routes, cookie)
	}

	kept := s.availableWorkers[:0]
	for _, w := range s.availableWorkers {
		if w != workerID {
			kept = append(kept, w)
		}
	}
	s.availableWorkers = kept

	if s.store != nil {
		s.store.RemoveWorkerSlots(workerID)
	}
	return decisions
}

// AvailableWorkerCount reports the current worker-slot queue length, for
// metrics.
func (s *Switchboard) AvailableWorkerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.availableWorkers)
}

// RouteCount reports the number of in-flight routes, for metrics.
func (s *Switchboard) RouteCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.routes)
}
