package ping

import (
	"fmt"
	"time"

	"github.com/kerrnet/kerr/internal/wire"
)

// DefaultSizeLadder is the size progression the test suite of §8
// walks to sample round-trip time and throughput per size.
var DefaultSizeLadder = []uint32{0, 1 << 10, 4 << 10, 16 << 10, 64 << 10, 256 << 10, 1 << 20}

// Sample is one round-trip measurement against a given payload size.
type Sample struct {
	ID          uint64
	PayloadSize uint32
	RTT         time.Duration
}

// Open sends Hello{Ping} to start a ping session on stream.
func Open(sessionID string, stream Stream) error {
	return wire.WriteFrame(stream, wire.Envelope{SessionID: sessionID, Payload: &wire.Hello{Kind: wire.KindPing}})
}

// Ping sends one PingRequest of size bytes and waits for its PingReply,
// returning the measured round-trip time. echoBytes, when true, asks the
// server to echo payload back instead of zero-filling the reply.
func Ping(sessionID string, stream Stream, id uint64, size uint32, echoBytes bool) (Sample, error) {
	var payload []byte
	if echoBytes {
		payload = make([]byte, size)
		for i := range payload {
			payload[i] = byte(i)
		}
	}
	start := time.Now()
	if err := wire.WriteFrame(stream, wire.Envelope{
		SessionID: sessionID,
		Payload:   &wire.PingRequest{ID: id, PayloadSize: size, EchoBytes: echoBytes, Payload: payload},
	}); err != nil {
		return Sample{}, err
	}

	env, err := wire.ReadFrame(stream, wire.DefaultIdleTimeout)
	if err != nil {
		return Sample{}, err
	}
	reply, ok := env.Payload.(*wire.PingReply)
	if !ok {
		return Sample{}, fmt.Errorf("ping: expected PingReply, got %T", env.Payload)
	}
	if reply.ID != id {
		return Sample{}, fmt.Errorf("ping: reply id %d, expected %d", reply.ID, id)
	}
	if uint32(len(reply.Bytes)) != size {
		return Sample{}, fmt.Errorf("ping: reply size %d, expected %d", len(reply.Bytes), size)
	}
	if echoBytes {
		for i, b := range reply.Bytes {
			if b != payload[i] {
				return Sample{}, fmt.Errorf("ping: echoed payload mismatch at byte %d", i)
			}
		}
	}
	return Sample{ID: id, PayloadSize: size, RTT: time.Since(start)}, nil
}

// Walk runs one Ping per entry of sizes in order, returning their
// samples. It stops at the first error.
func Walk(sessionID string, stream Stream, sizes []uint32, echoBytes bool) ([]Sample, error) {
	samples := make([]Sample, 0, len(sizes))
	for i, size := range sizes {
		s, err := Ping(sessionID, stream, uint64(i), size, echoBytes)
		if err != nil {
			return samples, err
		}
		samples = append(samples, s)
	}
	return samples, nil
}
