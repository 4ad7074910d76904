package main

import (
	"sync"

	"github.com/kerrnet/kerr/internal/mux"
	"github.com/kerrnet/kerr/internal/observability"
	"github.com/kerrnet/kerr/internal/session/tcprelay"
)

// sessionRegistry aggregates every live connection's multiplexer plus the
// active relay sessions' byte counters, and is the observability.AdminView
// implementation the admin server queries. One serve process holds exactly
// one of these, shared across all accepted connections.
type sessionRegistry struct {
	mu    sync.Mutex
	conns map[string]*mux.Multiplexer
	relay map[string]*tcprelay.Counters
}

func newSessionRegistry() *sessionRegistry {
	return &sessionRegistry{
		conns: make(map[string]*mux.Multiplexer),
		relay: make(map[string]*tcprelay.Counters),
	}
}

func (r *sessionRegistry) add(peerNodeID string, m *mux.Multiplexer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[peerNodeID] = m
}

func (r *sessionRegistry) remove(peerNodeID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.conns, peerNodeID)
}

func (r *sessionRegistry) newRelayCounters(sessionID string) *tcprelay.Counters {
	c := &tcprelay.Counters{}
	r.mu.Lock()
	r.relay[sessionID] = c
	r.mu.Unlock()
	return c
}

func (r *sessionRegistry) dropRelayCounters(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.relay, sessionID)
}

// Sessions implements observability.AdminView.
func (r *sessionRegistry) Sessions() []observability.SessionInfo {
	r.mu.Lock()
	conns := make(map[string]*mux.Multiplexer, len(r.conns))
	for k, v := range r.conns {
		conns[k] = v
	}
	r.mu.Unlock()

	var out []observability.SessionInfo
	for peer, m := range conns {
		for _, info := range m.Sessions() {
			out = append(out, observability.SessionInfo{
				SessionID: info.SessionID,
				Kind:      info.Kind.String(),
				Peer:      peer,
				StartedAt: info.StartedAt,
			})
		}
	}
	return out
}

// RelayCounters implements observability.AdminView.
func (r *sessionRegistry) RelayCounters(sessionID string) (observability.RelayCounters, bool) {
	r.mu.Lock()
	c, ok := r.relay[sessionID]
	r.mu.Unlock()
	if !ok {
		return observability.RelayCounters{}, false
	}
	snap := c.Snapshot()
	return observability.RelayCounters{
		BytesUp:       snap.BytesUp,
		BytesDown:     snap.BytesDown,
		ActiveStreams: snap.ActiveStreams,
	}, true
}
