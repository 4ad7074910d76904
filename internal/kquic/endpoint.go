package kquic

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/quic-go/quic-go"

	"github.com/kerrnet/kerr/internal/identity"
	"github.com/kerrnet/kerr/internal/ratelimit"
	"github.com/kerrnet/kerr/internal/token"
)

// DefaultConnectTimeout bounds Dial per §5's connect=30s default.
const DefaultConnectTimeout = 30 * time.Second

var (
	// ErrUnreachable means the dial could not reach any advertised
	// address (direct or relay) within the connect timeout.
	ErrUnreachable = errors.New("kquic: peer unreachable")
	// ErrClosed can be matched against with errors.Is by callers that
	// distinguish a deliberate Close from a transport failure.
	ErrClosed = errors.New("kquic: endpoint closed")
)

// quicConfig mirrors the keepalive/idle/window tuning a teacher transport
// layer applies to long-lived P2P connections carrying many multiplexed
// streams.
func quicConfig() *quic.Config {
	return &quic.Config{
		KeepAlivePeriod:                15 * time.Second,
		MaxIdleTimeout:                 45 * time.Second,
		InitialStreamReceiveWindow:     1 << 20,
		InitialConnectionReceiveWindow: 4 << 20,
		MaxIncomingStreams:             256,
	}
}

// Connection is an identity-confirmed QUIC connection to a peer: the raw
// *quic.Conn plus the node_id that its confirmation handshake proved
// possession of.
type Connection struct {
	Raw          *quic.Conn
	PeerNodeID   string
	ConfirmedKey [32]byte
}

// OpenStream opens a new bidirectional QUIC stream for a session.
func (c *Connection) OpenStream(ctx context.Context) (*quic.Stream, error) {
	return c.Raw.OpenStreamSync(ctx)
}

// AcceptStream waits for the peer to open a new session stream.
func (c *Connection) AcceptStream(ctx context.Context) (*quic.Stream, error) {
	return c.Raw.AcceptStream(ctx)
}

// Close tears down the connection with a session-level close code.
func (c *Connection) Close() error {
	return c.Raw.CloseWithError(0, "closed")
}

// Endpoint is a single node's QUIC listener plus dialer, per §4.3: one
// Endpoint accepts inbound connections from peers holding a token for
// this node, and dials outbound connections using a peer's token.
type Endpoint struct {
	id       identity.Identity
	listener *quic.Listener
	addr     string
	admit    *ratelimit.AcceptLimiter
}

// Listen starts accepting inbound QUIC connections on addr (host:port,
// empty host binds all interfaces). The identity is used only for the
// post-connect confirmation handshake, never for the TLS certificate
// itself. Inbound connections are admitted through a per-IP limiter
// (default 5/s, burst 10) to bound how fast one address can consume
// Accept-side resources.
func Listen(addr string, id identity.Identity) (*Endpoint, error) {
	tlsConf, err := serverTLSConfig()
	if err != nil {
		return nil, err
	}
	l, err := quic.ListenAddr(addr, tlsConf, quicConfig())
	if err != nil {
		return nil, fmt.Errorf("kquic: listen %s: %w", addr, err)
	}
	return &Endpoint{
		id:       id,
		listener: l,
		addr:     l.Addr().String(),
		admit:    ratelimit.NewAcceptLimiter(5, 10),
	}, nil
}

// Addr returns the address the Endpoint is actually bound to.
func (e *Endpoint) Addr() string { return e.addr }

// Accept blocks for the next inbound connection and runs the server side
// of the identity confirmation handshake over a dedicated control
// stream the dialer is expected to open first. Once the Endpoint is
// closed, Accept returns an error wrapping ErrClosed. Connections from an
// IP exceeding the admission rate are closed immediately without running
// the confirmation handshake.
func (e *Endpoint) Accept(ctx context.Context) (*Connection, error) {
	var raw *quic.Conn
	for {
		r, err := e.listener.Accept(ctx)
		if err != nil {
			if errors.Is(err, quic.ErrServerClosed) {
				return nil, fmt.Errorf("%w: %v", ErrClosed, err)
			}
			return nil, err
		}
		host, _, splitErr := net.SplitHostPort(r.RemoteAddr().String())
		if splitErr == nil && !e.admit.Allow(host) {
			r.CloseWithError(3, "too many connections")
			continue
		}
		raw = r
		break
	}
	ctrl, err := raw.AcceptStream(ctx)
	if err != nil {
		raw.CloseWithError(1, "missing control stream")
		return nil, fmt.Errorf("kquic: awaiting control stream: %w", err)
	}
	key, peerNodeID, err := ServerConfirm(ctrl, e.id.Private, e.id.Public)
	if err != nil {
		raw.CloseWithError(2, "identity confirmation failed")
		return nil, fmt.Errorf("kquic: confirming peer identity: %w", err)
	}
	return &Connection{Raw: raw, PeerNodeID: peerNodeID, ConfirmedKey: key}, nil
}

// Close stops accepting new connections. In-flight connections are
// unaffected.
func (e *Endpoint) Close() error {
	return e.listener.Close()
}

// Dial decodes tok and connects to the peer it describes, running the
// client side of the identity confirmation handshake and verifying the
// peer proves possession of tok's node_id. It tries, in order, every
// address in tok.DirectAddresses and finally tok.RelayURL's QUIC
// address, per the ordering rule in §3.
func Dial(ctx context.Context, id identity.Identity, tok token.Token) (*Connection, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultConnectTimeout)
	defer cancel()

	addrs := append([]string{}, tok.DirectAddresses...)
	if tok.RelayURL != "" {
		addrs = append(addrs, tok.RelayURL)
	}
	if len(addrs) == 0 {
		return nil, fmt.Errorf("%w: token carries no addresses", ErrUnreachable)
	}

	var lastErr error
	for _, addr := range addrs {
		conn, err := dialOne(ctx, id, tok.NodeID, addr)
		if err == nil {
			return conn, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("%w: %v", ErrUnreachable, lastErr)
}

func dialOne(ctx context.Context, id identity.Identity, peerNodeID, addr string) (*Connection, error) {
	raw, err := quic.DialAddr(ctx, addr, clientTLSConfig(), quicConfig())
	if err != nil {
		return nil, err
	}
	ctrl, err := raw.OpenStreamSync(ctx)
	if err != nil {
		raw.CloseWithError(1, "opening control stream")
		return nil, err
	}
	key, err := ClientConfirm(ctrl, id.Private, id.Public, peerNodeID)
	if err != nil {
		raw.CloseWithError(2, "identity confirmation failed")
		return nil, err
	}
	return &Connection{Raw: raw, PeerNodeID: peerNodeID, ConfirmedKey: key}, nil
}
