package mux

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/kerrnet/kerr/internal/observability"
	"github.com/kerrnet/kerr/internal/ratelimit"
	"github.com/kerrnet/kerr/internal/wire"
)

// HandshakeTimeout bounds how long the multiplexer waits for a new
// stream's first envelope to be a valid Hello, per §4.4/§5.
const HandshakeTimeout = 10 * time.Second

// DefaultSessionOpenRate and DefaultSessionOpenBurst bound how fast one
// peer may open new sessions on a single connection, independent of the
// accept-time per-IP connection limiter in internal/ratelimit/accept.go.
const (
	DefaultSessionOpenRate  = 20.0
	DefaultSessionOpenBurst = 40
)

// Stream is the minimal surface a multiplexed session stream needs to
// offer; *quic.Stream satisfies it directly.
type Stream interface {
	io.Reader
	io.Writer
	io.Closer
	SetReadDeadline(time.Time) error
}

// StreamAcceptor yields the bidirectional streams a peer opens on one
// connection.
type StreamAcceptor interface {
	AcceptStream(ctx context.Context) (Stream, error)
}

// AcceptorFunc adapts a plain function to StreamAcceptor, so callers can
// wrap a *kquic.Connection without this package depending on kquic.
type AcceptorFunc func(ctx context.Context) (Stream, error)

func (f AcceptorFunc) AcceptStream(ctx context.Context) (Stream, error) { return f(ctx) }

// Handler runs one session to completion, owning stream for its
// lifetime. A returned error is reported to the peer as an Error
// envelope before the stream is closed; a nil return closes the stream
// cleanly.
type Handler func(ctx context.Context, sessionID string, stream Stream) error

// Multiplexer is the per-connection dispatcher of §4.4: it owns one
// Connection's incoming streams, reads each one's Hello, and routes it
// to the handler registered for that SessionKind. Its Registry is the
// connection's only shared mutable state.
type Multiplexer struct {
	handlers map[wire.SessionKind]Handler
	registry *Registry
	log      *observability.Logger
	opens    *ratelimit.TokenBucket

	// PeerNodeID labels this connection's sessions for the admin
	// surface; it plays no part in routing.
	PeerNodeID string
}

// New creates a Multiplexer. log may be nil, in which case a
// discard-output logger is used.
func New(log *observability.Logger) *Multiplexer {
	if log == nil {
		log = observability.NewLogger("kerr", "dev", io.Discard)
	}
	return &Multiplexer{
		handlers: make(map[wire.SessionKind]Handler),
		registry: newRegistry(),
		log:      log,
		opens:    ratelimit.NewTokenBucket(DefaultSessionOpenRate, DefaultSessionOpenBurst),
	}
}

// Register binds a Handler to the given session kind. Call before Serve.
func (m *Multiplexer) Register(kind wire.SessionKind, h Handler) {
	m.handlers[kind] = h
}

// Sessions returns a snapshot of currently live sessions, for the
// admin/introspection surface.
func (m *Multiplexer) Sessions() []Info { return m.registry.Snapshot() }

// SessionCount returns the number of currently live sessions.
func (m *Multiplexer) SessionCount() int { return m.registry.count() }

// Serve accepts streams from acc until it errors (peer gone, transport
// failure, or ctx cancellation), dispatching each to its handler
// concurrently. On exit, every live session is torn down: its handler's
// context is cancelled so its cleanup hook runs (§4.4 connection-fatal
// policy).
func (m *Multiplexer) Serve(ctx context.Context, acc StreamAcceptor) error {
	defer m.registry.teardownAll()

	for {
		stream, err := acc.AcceptStream(ctx)
		if err != nil {
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return err
		}
		go m.handleStream(ctx, stream)
	}
}

func (m *Multiplexer) handleStream(ctx context.Context, stream Stream) {
	if !m.opens.Allow(1) {
		m.failHandshake(stream, errors.New("bad handshake: session open rate exceeded"))
		return
	}

	env, err := wire.ReadFrame(stream, HandshakeTimeout)
	if err != nil {
		m.failHandshake(stream, fmt.Errorf("bad handshake: %w", err))
		return
	}
	hello, ok := env.Payload.(*wire.Hello)
	if !ok {
		m.failHandshake(stream, errors.New("bad handshake: first envelope was not Hello"))
		return
	}
	handler, ok := m.handlers[hello.Kind]
	if !ok {
		m.failHandshake(stream, fmt.Errorf("bad handshake: no handler for kind %s", hello.Kind))
		return
	}

	sessionID := env.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	sessCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	m.registry.add(sessionID, hello.Kind, cancel)
	defer m.registry.remove(sessionID)

	m.log.SessionStarted(sessionID, hello.Kind.String())
	err = handler(sessCtx, sessionID, stream)
	m.log.SessionEnded(sessionID, hello.Kind.String(), err)

	if err != nil {
		_ = wire.WriteFrame(stream, wire.Envelope{SessionID: sessionID, Payload: &wire.ErrorMsg{Message: err.Error()}})
	}
	_ = stream.Close()
}

func (m *Multiplexer) failHandshake(stream Stream, cause error) {
	m.log.Warn(cause.Error())
	_ = wire.WriteFrame(stream, wire.Envelope{Payload: &wire.ErrorMsg{Message: "bad handshake"}})
	_ = stream.Close()
}
