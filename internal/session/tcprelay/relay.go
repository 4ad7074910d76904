// Package tcprelay implements the TCP port-relay session of §4.8: one
// multiplexed wire stream carries many independently forwarded TCP
// connections, each identified by a 64-bit stream_id and bridged to a
// local or dialed socket through a bounded-buffer byte pump.
package tcprelay

import (
	"io"
	"net"
	"sync"
	"time"

	"github.com/kerrnet/kerr/internal/wire"
)

// BufferSize is the per-stream pump buffer of §4.8's backpressure note.
const BufferSize = 256 << 10

// DialTimeout bounds the server's dial of the forwarded port.
const DialTimeout = 5 * time.Second

// Stream is the minimal surface the session needs from its stream.
type Stream interface {
	io.Reader
	io.Writer
	SetReadDeadline(time.Time) error
}

// frameWriter serializes wire.WriteFrame calls from the many concurrent
// per-stream pump goroutines that all share one underlying Stream.
type frameWriter struct {
	mu        sync.Mutex
	stream    Stream
	sessionID string
}

func (w *frameWriter) write(p wire.Payload) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return wire.WriteFrame(w.stream, wire.Envelope{SessionID: w.sessionID, Payload: p})
}

// connTable tracks the forwarded sockets live for this relay session,
// keyed by stream_id.
type connTable struct {
	mu    sync.Mutex
	conns map[uint64]net.Conn
}

func newConnTable() *connTable {
	return &connTable{conns: make(map[uint64]net.Conn)}
}

func (t *connTable) add(id uint64, c net.Conn) {
	t.mu.Lock()
	t.conns[id] = c
	t.mu.Unlock()
}

func (t *connTable) get(id uint64) (net.Conn, bool) {
	t.mu.Lock()
	c, ok := t.conns[id]
	t.mu.Unlock()
	return c, ok
}

func (t *connTable) remove(id uint64) {
	t.mu.Lock()
	delete(t.conns, id)
	t.mu.Unlock()
}

func (t *connTable) closeAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, c := range t.conns {
		c.Close()
		delete(t.conns, id)
	}
}

// pumpSocketToStream reads from conn and emits TcpData frames until EOF
// or error, then sends a single TcpClose for id.
func pumpSocketToStream(id uint64, conn net.Conn, fw *frameWriter, counters *Counters, track func(int64)) {
	buf := make([]byte, BufferSize)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			track(int64(n))
			if werr := fw.write(&wire.TcpData{StreamID: id, Bytes: append([]byte(nil), buf[:n]...)}); werr != nil {
				break
			}
		}
		if err != nil {
			break
		}
	}
	fw.write(&wire.TcpClose{StreamID: id})
}
