// Package shell implements the interactive shell session of §4.5: a
// server that attaches a peer's stream to a spawned PTY, and a client
// that attaches the local terminal to the stream.
package shell

import (
	"context"
	"errors"
	"io"
	"net"
	"time"

	"github.com/kerrnet/kerr/internal/pty"
	"github.com/kerrnet/kerr/internal/wire"
)

// GracefulShutdownTimeout is the §5 default for Disconnect handling.
const GracefulShutdownTimeout = 2 * time.Second

// OutputBufferSize bounds the PTY->stream buffering of §4.5; once full,
// the PTY reader itself blocks rather than bytes being dropped.
const OutputBufferSize = 64 * 1024

// Stream is the minimal surface the server needs from a session stream.
type Stream interface {
	io.Reader
	io.Writer
	SetReadDeadline(time.Time) error
}

// ptyHandle is the surface Serve needs from a spawned PTY; *pty.PTY
// satisfies it, and tests substitute a fake.
type ptyHandle interface {
	Read([]byte) (int, error)
	Write([]byte) (int, error)
	Resize(cols, rows uint16) error
	GracefulClose(timeout time.Duration) error
}

// Spawn is the PTY-spawning hook, overridable in tests.
type Spawn func(shellPath string, cols, rows uint16) (ptyHandle, error)

func defaultSpawn(shellPath string, cols, rows uint16) (ptyHandle, error) {
	return pty.Start(shellPath, cols, rows)
}

// Serve runs one shell session to completion: it spawns a PTY-attached
// shell and pumps bytes between it and stream until either side ends.
// Per §4.5, the session ends as soon as either the child exits or the
// peer disconnects — whichever happens first unblocks the other pump
// rather than Serve waiting on them in sequence. sessionID is echoed on
// every outgoing envelope.
func Serve(ctx context.Context, sessionID string, stream Stream, shellPath string, spawn Spawn) error {
	if spawn == nil {
		spawn = defaultSpawn
	}
	p, err := spawn(shellPath, pty.DefaultCols, pty.DefaultRows)
	if err != nil {
		return err
	}

	outputDone := make(chan error, 1)
	go func() { outputDone <- pumpPTYToStream(sessionID, stream, p) }()

	inputDone := make(chan error, 1)
	go func() { inputDone <- pumpStreamToPTY(ctx, sessionID, stream, p) }()

	var inputErr, outputErr error
	select {
	case outputErr = <-outputDone:
		// The child exited on its own: pumpStreamToPTY is still
		// blocked on its next read, so force it to unblock now
		// instead of lingering until the idle timeout elapses.
		// GracefulClose still runs to reap the child, just after
		// rather than before, since it already exited.
		stream.SetReadDeadline(time.Now())
		inputErr = <-inputDone
		p.GracefulClose(GracefulShutdownTimeout)
	case inputErr = <-inputDone:
		p.GracefulClose(GracefulShutdownTimeout)
		outputErr = <-outputDone
	}

	if outputErr != nil {
		return outputErr
	}
	if inputErr != nil && !errors.Is(inputErr, io.EOF) && !isTimeout(inputErr) {
		return inputErr
	}
	return nil
}

// isTimeout reports whether err is a deadline-related error, whether
// from the peer going idle or from Serve forcing a blocked read to
// unblock via SetReadDeadline.
func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func pumpPTYToStream(sessionID string, stream Stream, p ptyHandle) error {
	buf := make([]byte, OutputBufferSize)
	for {
		n, err := p.Read(buf)
		if n > 0 {
			if werr := wire.WriteFrame(stream, wire.Envelope{
				SessionID: sessionID,
				Payload:   &wire.Output{Bytes: append([]byte(nil), buf[:n]...)},
			}); werr != nil {
				return werr
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
	}
}

func pumpStreamToPTY(ctx context.Context, sessionID string, stream Stream, p ptyHandle) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		env, err := wire.ReadFrame(stream, wire.DefaultIdleTimeout)
		if err != nil {
			return err
		}
		switch msg := env.Payload.(type) {
		case *wire.Input:
			if _, err := p.Write(msg.Bytes); err != nil {
				return err
			}
		case *wire.Resize:
			if err := p.Resize(msg.Cols, msg.Rows); err != nil {
				return err
			}
		case *wire.Disconnect:
			return io.EOF
		}
	}
}
