// Package ping implements the network-diagnostics session of §4.9: the
// server echoes a sized reply for every request until the stream ends.
package ping

import (
	"io"
	"time"

	"github.com/kerrnet/kerr/internal/wire"
)

// Stream is the minimal surface the session needs from its stream.
type Stream interface {
	io.Reader
	io.Writer
	SetReadDeadline(time.Time) error
}

// Serve runs the server side of a ping session: it has already consumed
// Hello{Ping}; it now replies to each PingRequest with a PingReply of the
// requested size until the stream closes.
func Serve(sessionID string, stream Stream) error {
	for {
		env, err := wire.ReadFrame(stream, wire.DefaultIdleTimeout)
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		req, ok := env.Payload.(*wire.PingRequest)
		if !ok {
			continue
		}
		reply := &wire.PingReply{ID: req.ID}
		if req.EchoBytes {
			reply.Bytes = append([]byte(nil), req.Payload...)
			if uint32(len(reply.Bytes)) < req.PayloadSize {
				reply.Bytes = append(reply.Bytes, make([]byte, req.PayloadSize-uint32(len(reply.Bytes)))...)
			}
		} else {
			reply.Bytes = make([]byte, req.PayloadSize)
		}
		if err := wire.WriteFrame(stream, wire.Envelope{SessionID: sessionID, Payload: reply}); err != nil {
			return err
		}
	}
}
