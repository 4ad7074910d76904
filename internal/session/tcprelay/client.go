package tcprelay

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/kerrnet/kerr/internal/wire"
)

// Relay is the client side of a relay session: one shared reader loop
// demultiplexes TcpOpened/TcpData/TcpClose frames by stream_id to the
// local sockets accepted by Forward.
type Relay struct {
	sessionID string
	fw        *frameWriter
	conns     *connTable
	counters  *Counters
	nextID    uint64

	pendingMu sync.Mutex
	pending   map[uint64]chan *wire.TcpOpened
}

// Dial opens a relay session on stream (sending Hello{TcpRelay}) and
// starts its demultiplexing loop in the background. When ctx is done,
// every forwarded local socket is closed; the loop itself runs until a
// read from stream fails.
func Dial(ctx context.Context, sessionID string, stream Stream, counters *Counters) (*Relay, error) {
	if err := wire.WriteFrame(stream, wire.Envelope{SessionID: sessionID, Payload: &wire.Hello{Kind: wire.KindTcpRelay}}); err != nil {
		return nil, err
	}
	r := &Relay{
		sessionID: sessionID,
		fw:        &frameWriter{stream: stream, sessionID: sessionID},
		conns:     newConnTable(),
		counters:  counters,
		pending:   make(map[uint64]chan *wire.TcpOpened),
	}
	go r.readLoop(stream)
	go func() {
		<-ctx.Done()
		r.conns.closeAll()
	}()
	return r, nil
}

func (r *Relay) readLoop(stream Stream) {
	defer r.conns.closeAll()
	for {
		env, err := wire.ReadFrame(stream, wire.DefaultIdleTimeout)
		if err != nil {
			return
		}
		switch p := env.Payload.(type) {
		case *wire.TcpOpened:
			r.pendingMu.Lock()
			ch, ok := r.pending[p.StreamID]
			delete(r.pending, p.StreamID)
			r.pendingMu.Unlock()
			if ok {
				ch <- p
			}
		case *wire.TcpData:
			if conn, ok := r.conns.get(p.StreamID); ok {
				if _, err := conn.Write(p.Bytes); err != nil {
					conn.Close()
					r.conns.remove(p.StreamID)
					r.counters.streamClosed()
				} else {
					r.counters.addDown(int64(len(p.Bytes)))
				}
			}
		case *wire.TcpClose:
			if conn, ok := r.conns.get(p.StreamID); ok {
				conn.Close()
				r.conns.remove(p.StreamID)
				r.counters.streamClosed()
			}
		}
	}
}

// Forward accepts TCP connections on 127.0.0.1:localPort and relays each
// through the session to remotePort, until ctx is cancelled or the
// listener fails.
func (r *Relay) Forward(ctx context.Context, localPort, remotePort uint16) error {
	l, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", localPort))
	if err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		l.Close()
	}()
	for {
		conn, err := l.Accept()
		if err != nil {
			return err
		}
		go r.handleAccepted(conn, remotePort)
	}
}

func (r *Relay) handleAccepted(conn net.Conn, remotePort uint16) {
	id := atomic.AddUint64(&r.nextID, 1)
	ch := make(chan *wire.TcpOpened, 1)
	r.pendingMu.Lock()
	r.pending[id] = ch
	r.pendingMu.Unlock()

	if err := r.fw.write(&wire.TcpOpen{StreamID: id, RemotePort: remotePort}); err != nil {
		conn.Close()
		return
	}
	opened, ok := <-ch
	if !ok || opened == nil || !opened.Ok {
		conn.Close()
		return
	}

	r.conns.add(id, conn)
	r.counters.streamOpened()
	pumpSocketToStream(id, conn, r.fw, r.counters, r.counters.addUp)
}
