package broker

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/SouthPatron/reasonchip/pkg/packet"
	"github.com/SouthPatron/reasonchip/pkg/transport"
)

var (
	packetsForwarded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reasonchip_broker_packets_forwarded_total",
		Help: "Packets forwarded by the broker, by type.",
	}, []string{"type"})

	connectionsGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "reasonchip_broker_connections",
		Help: "Currently open broker connections, by side.",
	}, []string{"side"})
)

// Broker owns the client-facing and worker-facing listeners and drives the
// Switchboard from incoming packets. Each accepted connection gets its own
// read loop goroutine; the Switchboard's single lock is what actually
// serializes route-affecting decisions.
type Broker struct {
	clientListener transport.Listener
	workerListener transport.Listener

	switchboard *Switchboard
	logger      *slog.Logger

	mu          sync.Mutex
	clientConns map[string]transport.Duplex
	workerConns map[string]transport.Duplex
}

// New constructs a Broker over the given listeners. store may be nil.
func New(clientListener, workerListener transport.Listener, store Store, logger *slog.Logger) *Broker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broker{
		clientListener: clientListener,
		workerListener: workerListener,
		switchboard:    NewSwitchboard(store),
		logger:         logger,
		clientConns:    make(map[string]transport.Duplex),
		workerConns:    make(map[string]transport.Duplex),
	}
}

// Serve accepts connections on both listeners until ctx is cancelled.
func (b *Broker) Serve(ctx context.Context) error {
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		b.acceptLoop(ctx, b.clientListener, b.serveClient)
	}()
	go func() {
		defer wg.Done()
		b.acceptLoop(ctx, b.workerListener, b.serveWorker)
	}()

	wg.Wait()
	return ctx.Err()
}

func (b *Broker) acceptLoop(ctx context.Context, l transport.Listener, serve func(context.Context, transport.Duplex)) {
	for {
		d, err := l.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			b.logger.Warn("broker: accept failed", "err", err)
			continue
		}
		go serve(ctx, d)
	}
}

func (b *Broker) serveClient(ctx context.Context, d transport.Duplex) {
	id := d.RemoteID()
	b.mu.Lock()
	b.clientConns[id] = d
	b.mu.Unlock()
	connectionsGauge.WithLabelValues("client").Inc()

	defer func() {
		b.mu.Lock()
		delete(b.clientConns, id)
		b.mu.Unlock()
		connectionsGauge.WithLabelValues("client").Dec()
		d.Close()
		for _, dec := range b.switchboard.ClientDisconnected(id) {
			b.dispatch(dec)
		}
	}()

	for {
		pkt, err := d.Recv()
		if err != nil {
			return
		}
		switch pkt.Type {
		case packet.RUN:
			b.dispatch(b.switchboard.RunFromClient(id, pkt))
		case packet.CANCEL:
			b.dispatch(b.switchboard.CancelFromClient(pkt))
		default:
			b.logger.Warn("broker: unexpected packet type from client", "type", pkt.Type.String())
		}
	}
}

func (b *Broker) serveWorker(ctx context.Context, d transport.Duplex) {
	id := d.RemoteID()
	connectionsGauge.WithLabelValues("worker").Inc()

	defer func() {
		b.mu.Lock()
		delete(b.workerConns, id)
		b.mu.Unlock()
		connectionsGauge.WithLabelValues("worker").Dec()
		d.Close()
		for _, dec := range b.switchboard.WorkerDisconnected(id) {
			b.dispatch(dec)
		}
	}()

	for {
		pkt, err := d.Recv()
		if err != nil {
			return
		}
		switch pkt.Type {
		case packet.REGISTER:
			b.mu.Lock()
			b.workerConns[id] = d
			b.mu.Unlock()
			b.switchboard.Register(id, pkt.Capacity)
		case packet.RESULT:
			b.dispatch(b.switchboard.ResultFromWorker(pkt))
		default:
			b.logger.Warn("broker: unexpected packet type from worker", "type", pkt.Type.String())
		}
	}
}

func (b *Broker) dispatch(dec Decision) {
	if dec.Packet == nil {
		return
	}

	if dec.SendToClient != "" {
		b.mu.Lock()
		conn, ok := b.clientConns[dec.SendToClient]
		b.mu.Unlock()
		if ok {
			if err := conn.Send(dec.Packet); err != nil {
				b.logger.Warn("broker: send to client failed", "client", dec.SendToClient, "err", err)
			}
			packetsForwarded.WithLabelValues(dec.Packet.Type.String()).Inc()
		}
	}

	if dec.SendToWorker != "" {
		b.mu.Lock()
		conn, ok := b.workerConns[dec.SendToWorker]
		b.mu.Unlock()
		if ok {
			if err := conn.Send(dec.Packet); err != nil {
				b.logger.Warn("broker: send to worker failed", "worker", dec.SendToWorker, "err", err)
			}
			packetsForwarded.WithLabelValues(dec.Packet.Type.String()).Inc()
		}
	}
}

// IntrospectionHandler returns a chi-routed HTTP handler exposing
// Prometheus metrics and a small JSON status endpoint. It is scaled down
// to the operational surface a broker needs (no OpenAPI-generated
// request/response types, since the broker's real protocol is the packet
// wire, not HTTP).
func (b *Broker) IntrospectionHandler() http.Handler {
	r := chi.NewRouter()
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})
	r.Get("/status", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]int{
			"available_workers": b.switchboard.AvailableWorkerCount(),
			"routes":            b.switchboard.RouteCount(),
		})
	})
	return r
}
