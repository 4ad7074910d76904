package mux

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/kerrnet/kerr/internal/wire"
)

func writeEnvelope(t *testing.T, conn net.Conn, env wire.Envelope) {
	t.Helper()
	if err := wire.WriteFrame(conn, env); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
}

func readEnvelope(t *testing.T, conn net.Conn) wire.Envelope {
	t.Helper()
	env, err := wire.ReadFrame(conn, 2*time.Second)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	return env
}

// fixedAcceptor serves a fixed slice of server-side connections in order,
// one per AcceptStream call, then blocks until ctx is cancelled.
type fixedAcceptor struct {
	conns []net.Conn
	next  int
	mu    sync.Mutex
}

func (f *fixedAcceptor) AcceptStream(ctx context.Context) (Stream, error) {
	f.mu.Lock()
	if f.next < len(f.conns) {
		c := f.conns[f.next]
		f.next++
		f.mu.Unlock()
		return c, nil
	}
	f.mu.Unlock()
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestMultiplexerDispatchesByKind(t *testing.T) {
	shellServer, shellClient := net.Pipe()
	pingServer, pingClient := net.Pipe()
	acc := &fixedAcceptor{conns: []net.Conn{shellServer, pingServer}}

	var gotShell, gotPing bool
	m := New(nil)
	m.Register(wire.KindShell, func(ctx context.Context, sessionID string, s Stream) error {
		gotShell = true
		return nil
	})
	m.Register(wire.KindPing, func(ctx context.Context, sessionID string, s Stream) error {
		gotPing = true
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Serve(ctx, acc)

	writeEnvelope(t, shellClient, wire.Envelope{Payload: &wire.Hello{Kind: wire.KindShell}})
	writeEnvelope(t, pingClient, wire.Envelope{Payload: &wire.Hello{Kind: wire.KindPing}})

	time.Sleep(100 * time.Millisecond)
	if !gotShell || !gotPing {
		t.Fatalf("expected both handlers invoked, shell=%v ping=%v", gotShell, gotPing)
	}
}

func TestMultiplexerBadHandshakeClosesStreamOnly(t *testing.T) {
	badServer, badClient := net.Pipe()
	goodServer, goodClient := net.Pipe()
	acc := &fixedAcceptor{conns: []net.Conn{badServer, goodServer}}

	var goodRan bool
	goodDone := make(chan struct{})
	m := New(nil)
	m.Register(wire.KindPing, func(ctx context.Context, sessionID string, s Stream) error {
		goodRan = true
		close(goodDone)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Serve(ctx, acc)

	// Not a Hello: the stream should be failed without affecting the
	// connection or other sessions.
	writeEnvelope(t, badClient, wire.Envelope{Payload: &wire.Output{Bytes: []byte("oops")}})
	reply := readEnvelope(t, badClient)
	if _, ok := reply.Payload.(*wire.ErrorMsg); !ok {
		t.Fatalf("expected ErrorMsg reply, got %T", reply.Payload)
	}

	writeEnvelope(t, goodClient, wire.Envelope{Payload: &wire.Hello{Kind: wire.KindPing}})
	select {
	case <-goodDone:
	case <-time.After(2 * time.Second):
		t.Fatal("good session never ran after a sibling bad handshake")
	}
	if !goodRan {
		t.Fatal("good session handler did not run")
	}
}

func TestMultiplexerSessionIsolation(t *testing.T) {
	blockServer, blockClient := net.Pipe()
	fastServer, fastClient := net.Pipe()
	acc := &fixedAcceptor{conns: []net.Conn{blockServer, fastServer}}

	fastDone := make(chan struct{})
	m := New(nil)
	m.Register(wire.KindShell, func(ctx context.Context, sessionID string, s Stream) error {
		// Blocks forever on a read the client never satisfies.
		buf := make([]byte, 1)
		s.Read(buf)
		return nil
	})
	m.Register(wire.KindPing, func(ctx context.Context, sessionID string, s Stream) error {
		close(fastDone)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Serve(ctx, acc)

	writeEnvelope(t, blockClient, wire.Envelope{Payload: &wire.Hello{Kind: wire.KindShell}})
	writeEnvelope(t, fastClient, wire.Envelope{Payload: &wire.Hello{Kind: wire.KindPing}})

	select {
	case <-fastDone:
	case <-time.After(2 * time.Second):
		t.Fatal("fast session blocked behind a slow sibling session")
	}
}
