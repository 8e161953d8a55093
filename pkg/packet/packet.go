// Package packet defines the wire-independent message shape exchanged
// between clients, the broker, and workers. The struct here carries every
// field any Type ever needs; a given Type only populates the subset it
// needs, and the codec (see
// codec.go) does not enforce that subset: callers do.
package packet

import "fmt"

// Type discriminates a Packet's role in the client/broker/worker protocol.
type Type int

const (
	// REGISTER (worker→broker) carries Capacity.
	REGISTER Type = iota
	// RUN (client→broker→worker) carries Cookie, Pipeline, Variables.
	RUN
	// CANCEL (client→broker→worker) carries Cookie.
	CANCEL
	// RESULT (worker→broker→client) carries Cookie, RC, Result, Error,
	// Stacktrace.
	RESULT
	// SHUTDOWN (broker→worker) carries nothing; the worker drains and exits.
	SHUTDOWN
)

func (t Type) String() string {
	switch t {
	case REGISTER:
		return "REGISTER"
	case RUN:
		return "RUN"
	case CANCEL:
		return "CANCEL"
	case RESULT:
		return "RESULT"
	case SHUTDOWN:
		return "SHUTDOWN"
	default:
		return fmt.Sprintf("Type(%d)", int(t))
	}
}

// RC is a RESULT packet's outcome code.
type RC int

const (
	OK RC = iota
	ERROR
	CANCELLED
	NO_WORKER_AVAILABLE
	WORKER_LOST
	BROKER_LOST
)

func (rc RC) String() string {
	switch rc {
	case OK:
		return "OK"
	case ERROR:
		return "ERROR"
	case CANCELLED:
		return "CANCELLED"
	case NO_WORKER_AVAILABLE:
		return "NO_WORKER_AVAILABLE"
	case WORKER_LOST:
		return "WORKER_LOST"
	case BROKER_LOST:
		return "BROKER_LOST"
	default:
		return fmt.Sprintf("RC(%d)", int(rc))
	}
}

// Packet is one message on the client/broker/worker wire. Cookie
// round-trips a client-chosen run identifier so RESULT can be matched back
// to its RUN without the broker or worker keeping any state keyed on
// anything else.
type Packet struct {
	Type Type

	// REGISTER
	Capacity int

	// RUN, CANCEL, RESULT
	Cookie string

	// RUN
	Pipeline  string
	Variables map[string]any

	// RESULT
	RC         RC
	Result     any
	Error      string
	Stacktrace string
}

// Register builds a REGISTER packet.
func Register(capacity int) *Packet {
	return &Packet{Type: REGISTER, Capacity: capacity}
}

// Run builds a RUN packet.
func Run(cookie, pipelineName string, variables map[string]any) *Packet {
	return &Packet{Type: RUN, Cookie: cookie, Pipeline: pipelineName, Variables: variables}
}

// Cancel builds a CANCEL packet.
func Cancel(cookie string) *Packet {
	return &Packet{Type: CANCEL, Cookie: cookie}
}

// Ok builds a successful RESULT packet.
func Ok(cookie string, result any) *Packet {
	return &Packet{Type: RESULT, Cookie: cookie, RC: OK, Result: result}
}

// Failed builds an errored RESULT packet.
func Failed(cookie string, rc RC, errMsg, stacktrace string) *Packet {
	return &Packet{Type: RESULT, Cookie: cookie, RC: rc, Error: errMsg, Stacktrace: stacktrace}
}

// Shutdown builds a SHUTDOWN packet.
func Shutdown() *Packet {
	return &Packet{Type: SHUTDOWN}
}
