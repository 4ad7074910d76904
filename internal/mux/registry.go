// Package mux implements the per-connection multiplexer of §4.4: it
// accepts the bidirectional streams a peer opens, reads each one's
// Hello, and dispatches to the registered handler for that session kind.
package mux

import (
	"sync"
	"time"

	"github.com/kerrnet/kerr/internal/wire"
)

// Info describes one live session, for introspection only — it plays no
// part in routing, since each session already owns a dedicated stream.
type Info struct {
	SessionID string
	Kind      wire.SessionKind
	StartedAt time.Time
}

// Registry is the only shared mutable state per connection (§5): a
// session-id-keyed map guarded by a single mutex held only for the
// O(1) operations below.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]Info
	cancels  map[string]func()
}

func newRegistry() *Registry {
	return &Registry{sessions: make(map[string]Info), cancels: make(map[string]func())}
}

func (r *Registry) add(id string, kind wire.SessionKind, cancel func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[id] = Info{SessionID: id, Kind: kind, StartedAt: time.Now()}
	r.cancels[id] = cancel
}

func (r *Registry) remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
	delete(r.cancels, id)
}

// Snapshot returns the currently live sessions, for the admin/introspection
// surface.
func (r *Registry) Snapshot() []Info {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Info, 0, len(r.sessions))
	for _, info := range r.sessions {
		out = append(out, info)
	}
	return out
}

// teardownAll cancels every live session, for the connection-fatal path:
// "all sessions are dropped; each session's close hook runs for local
// cleanup" (§4.4).
func (r *Registry) teardownAll() {
	r.mu.Lock()
	cancels := make([]func(), 0, len(r.cancels))
	for _, c := range r.cancels {
		cancels = append(cancels, c)
	}
	r.sessions = make(map[string]Info)
	r.cancels = make(map[string]func())
	r.mu.Unlock()

	for _, c := range cancels {
		c()
	}
}

func (r *Registry) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
