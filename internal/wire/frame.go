package wire

import (
	"encoding/binary"
	"fmt"
	"io"
	"time"
)

// DefaultIdleTimeout is the default short-read timeout of §4.1: a stream
// that makes no progress for this long is considered failed.
const DefaultIdleTimeout = 30 * time.Second

// deadlineReader is satisfied by quic.Stream and net.Conn alike.
type deadlineReader interface {
	io.Reader
	SetReadDeadline(time.Time) error
}

// WriteFrame writes the 4-byte little-endian length prefix followed by
// the binary-encoded envelope, per §6.
func WriteFrame(w io.Writer, e Envelope) error {
	body, err := Encode(e)
	if err != nil {
		return err
	}
	if len(body) > MaxFrameSize {
		return ErrFrameTooLarge
	}
	var header [4]byte
	binary.LittleEndian.PutUint32(header[:], uint32(len(body)))
	if _, err := w.Write(header[:]); err != nil {
		return err
	}
	_, err = w.Write(body)
	return err
}

// ReadFrame reads the next frame from r, enforcing the hard 16 MiB cap
// and an idle read deadline. The declared length is validated before any
// body allocation, so an oversized frame is rejected without allocating
// the declared size (§8 property 3).
func ReadFrame(r deadlineReader, idleTimeout time.Duration) (Envelope, error) {
	if idleTimeout <= 0 {
		idleTimeout = DefaultIdleTimeout
	}
	if err := r.SetReadDeadline(time.Now().Add(idleTimeout)); err != nil {
		return Envelope{}, err
	}

	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return Envelope{}, err
	}
	length := binary.LittleEndian.Uint32(header[:])
	if length > MaxFrameSize {
		return Envelope{}, fmt.Errorf("%w: declared %d bytes", ErrFrameTooLarge, length)
	}

	if err := r.SetReadDeadline(time.Now().Add(idleTimeout)); err != nil {
		return Envelope{}, err
	}
	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return Envelope{}, err
	}

	return DecodeEnvelope(body)
}
