// Package logging builds the application's logging context: a single
// handler configuration built once at startup, plus a flat
// namespace->level map that runtime level changes apply to and every
// namespaced logger consults when it is created, rather than patching
// logger creation to install new handlers after the fact.
package logging

import (
	"io"
	"log/slog"
	"os"
	"sync"
)

// Levels is the flat namespace->level map consulted whenever a namespaced
// logger is created. An unregistered namespace falls back to the table's
// default level.
type Levels struct {
	mu      sync.RWMutex
	def     slog.Level
	byNames map[string]slog.Level
}

// NewLevels creates a Levels table with the given default level.
func NewLevels(def slog.Level) *Levels {
	return &Levels{def: def, byNames: make(map[string]slog.Level)}
}

// Set applies level to namespace. It takes effect on the next logger
// created for that namespace; existing *slog.Logger values are
// unaffected, since level is consulted on creation rather than through
// live handler rewriting.
func (l *Levels) Set(namespace string, level slog.Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.byNames[namespace] = level
}

// Get returns the effective level for namespace.
func (l *Levels) Get(namespace string) slog.Level {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if lvl, ok := l.byNames[namespace]; ok {
		return lvl
	}
	return l.def
}

// Context is the logging context built once at startup and passed down to
// every component that needs a logger.
type Context struct {
	w      io.Writer
	Levels *Levels
}

// New builds a Context writing to stderr (to separate from stdout flow UI),
// with the flat namespace->level map defaulting to level.
func New(level slog.Level) *Context {
	return &Context{w: os.Stderr, Levels: NewLevels(level)}
}

// NewNop builds a Context that discards everything, for tests.
func NewNop() *Context {
	return &Context{w: io.Discard, Levels: NewLevels(slog.LevelError)}
}

// For returns a *slog.Logger scoped to namespace, at whatever level Levels
// currently holds for it, standardizing "error" attribute keys to "err".
func (c *Context) For(namespace string) *slog.Logger {
	handler := slog.NewTextHandler(c.w, &slog.HandlerOptions{
		Level: c.Levels.Get(namespace),
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == "error" {
				a.Key = "err"
			}
			return a
		},
	})
	return slog.New(handler).With("component", namespace)
}
