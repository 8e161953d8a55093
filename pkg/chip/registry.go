package chip

import (
	"context"
	"fmt"
	"sync"
)

// Handler is the async function backing one chip: it accepts exactly one
// structured request and returns exactly one structured response.
type Handler func(ctx context.Context, request map[string]any) (map[string]any, error)

// Entry is one registered chip: its handler plus its declared schemas.
type Entry struct {
	Name     string
	Request  Schema
	Response Schema
	Handler  Handler
}

// ErrChipNotFound is returned by Lookup when a chip name (and any configured
// module-prefix fallback) does not resolve.
type ErrChipNotFound struct {
	Name string
}

func (e *ErrChipNotFound) Error() string {
	return fmt.Sprintf("chip: not found: %q", e.Name)
}

// ErrChipCollision is returned by Register when a name is already bound;
// collisions on registration are fatal.
type ErrChipCollision struct {
	Name string
}

func (e *ErrChipCollision) Error() string {
	return fmt.Sprintf("chip: %q is already registered", e.Name)
}

// ErrChipInvalidInput/Output surface request/response schema mismatches.
type ErrChipInvalidInput struct {
	Name  string
	Cause error
}

func (e *ErrChipInvalidInput) Error() string {
	return fmt.Sprintf("chip: %q: invalid input: %s", e.Name, e.Cause)
}
func (e *ErrChipInvalidInput) Unwrap() error { return e.Cause }

type ErrChipInvalidOutput struct {
	Name  string
	Cause error
}

func (e *ErrChipInvalidOutput) Error() string {
	return fmt.Sprintf("chip: %q: invalid output: %s", e.Name, e.Cause)
}
func (e *ErrChipInvalidOutput) Unwrap() error { return e.Cause }

// Registry maps dotted chip names to their entries, grounded on
// pkg/registry/registry.go's name->handler map under sync.RWMutex,
// generalized to also carry request/response schemas.
//
// A Registry is immutable after startup: Discover/Register happen once
// before it is handed to engine.New; the Processor only ever reads from a Registry
// it was handed at construction time.
type Registry struct {
	mu            sync.RWMutex
	entries       map[string]*Entry
	modulePrefixes []string
}

// NewRegistry creates an empty Registry. modulePrefixes are tried, in
// order, as a fallback when a bare chip name doesn't resolve directly.
// A prefix of "redis." lets "redis_execute" also resolve via
// "redis.redis_execute".
func NewRegistry(modulePrefixes ...string) *Registry {
	return &Registry{
		entries:        make(map[string]*Entry),
		modulePrefixes: modulePrefixes,
	}
}

// Register binds name to handler with the given schemas. Re-registering an
// already-bound name is a fatal error.
func (r *Registry) Register(name string, handler Handler, request, response Schema) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[name]; exists {
		return &ErrChipCollision{Name: name}
	}
	r.entries[name] = &Entry{Name: name, Request: request, Response: response, Handler: handler}
	return nil
}

// Lookup resolves name to its Entry, trying the exact name first and then
// each configured module-prefix fallback.
func (r *Registry) Lookup(name string) (*Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if e, ok := r.entries[name]; ok {
		return e, nil
	}
	for _, prefix := range r.modulePrefixes {
		if e, ok := r.entries[prefix+name]; ok {
			return e, nil
		}
	}
	return nil, &ErrChipNotFound{Name: name}
}

// Names returns every registered chip name, for validation walks.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.entries))
	for n := range r.entries {
		out = append(out, n)
	}
	return out
}

// Invoke looks up name, validates request against its request schema,
// invokes the handler, and validates the response against its response
// schema. A request-schema failure returns ErrChipInvalidInput without
// invoking the handler; a response-schema failure returns
// ErrChipInvalidOutput after the handler has already run. Callers decide
// what to do with each: a request-schema failure is expected to unwind the
// run, since the chip was never actually invoked.
func (r *Registry) Invoke(ctx context.Context, name string, request map[string]any) (map[string]any, error) {
	entry, err := r.Lookup(name)
	if err != nil {
		return nil, err
	}

	if err := Validate(entry.Request, request); err != nil {
		return nil, &ErrChipInvalidInput{Name: name, Cause: err}
	}

	response, err := entry.Handler(ctx, request)
	if err != nil {
		return nil, err
	}

	if err := Validate(entry.Response, response); err != nil {
		return nil, &ErrChipInvalidOutput{Name: name, Cause: err}
	}

	return response, nil
}
