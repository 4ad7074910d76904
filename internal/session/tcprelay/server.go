package tcprelay

import (
	"fmt"
	"io"
	"net"

	"github.com/kerrnet/kerr/internal/wire"
)

// Serve runs the server side of a relay session: it has already
// consumed Hello{TcpRelay}; on each TcpOpen it dials 127.0.0.1:remote_port
// and, on success, bridges the dialed socket to the stream via TcpData
// until either side sends TcpClose or the stream itself ends.
func Serve(sessionID string, stream Stream, counters *Counters) error {
	fw := &frameWriter{stream: stream, sessionID: sessionID}
	conns := newConnTable()
	defer conns.closeAll()

	for {
		env, err := wire.ReadFrame(stream, wire.DefaultIdleTimeout)
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		switch p := env.Payload.(type) {
		case *wire.TcpOpen:
			go acceptOpen(p.StreamID, p.RemotePort, fw, conns, counters)
		case *wire.TcpData:
			if conn, ok := conns.get(p.StreamID); ok {
				if _, err := conn.Write(p.Bytes); err != nil {
					conn.Close()
					conns.remove(p.StreamID)
					counters.streamClosed()
				} else {
					counters.addDown(int64(len(p.Bytes)))
				}
			}
		case *wire.TcpClose:
			if conn, ok := conns.get(p.StreamID); ok {
				conn.Close()
				conns.remove(p.StreamID)
				counters.streamClosed()
			}
		default:
			return fmt.Errorf("tcprelay: unexpected payload %T", env.Payload)
		}
	}
}

func acceptOpen(id uint64, remotePort uint16, fw *frameWriter, conns *connTable, counters *Counters) {
	addr := fmt.Sprintf("127.0.0.1:%d", remotePort)
	conn, err := net.DialTimeout("tcp", addr, DialTimeout)
	if err != nil {
		fw.write(&wire.TcpOpened{StreamID: id, Ok: false, Reason: err.Error()})
		return
	}
	conns.add(id, conn)
	counters.streamOpened()
	if err := fw.write(&wire.TcpOpened{StreamID: id, Ok: true}); err != nil {
		conn.Close()
		conns.remove(id)
		counters.streamClosed()
		return
	}
	pumpSocketToStream(id, conn, fw, counters, counters.addUp)
}
