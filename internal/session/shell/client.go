package shell

import (
	"context"
	"errors"
	"io"
	"os"
	"time"

	"golang.org/x/term"

	"github.com/kerrnet/kerr/internal/wire"
)

// Attach runs the client side of a shell session: it sends Hello{Shell},
// puts the local terminal in raw mode, and pumps bytes between the local
// terminal and stream until the remote session ends or in is closed.
func Attach(ctx context.Context, sessionID string, stream Stream, in io.Reader, out io.Writer) error {
	if err := wire.WriteFrame(stream, wire.Envelope{SessionID: sessionID, Payload: &wire.Hello{Kind: wire.KindShell}}); err != nil {
		return err
	}

	var restore func()
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		state, err := term.MakeRaw(int(f.Fd()))
		if err == nil {
			restore = func() { term.Restore(int(f.Fd()), state) }
			defer restore()
		}
	}

	resizeDone := make(chan struct{})
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		go watchResize(ctx, sessionID, stream, f, resizeDone)
		defer close(resizeDone)
	}

	outputDone := make(chan error, 1)
	go func() { outputDone <- pumpOutput(stream, out) }()

	// pumpInput blocks on local terminal reads, which have no way to be
	// interrupted by ctx or by the remote session ending, so it runs in
	// its own goroutine: Attach reacts to whichever side ends first
	// instead of only noticing the remote end on the next keystroke.
	inputDone := make(chan error, 1)
	go func() { inputDone <- pumpInput(ctx, sessionID, stream, in) }()

	var inputErr, outputErr error
	select {
	case outputErr = <-outputDone:
		// The remote session ended on its own: return promptly rather
		// than waiting on a local pumpInput that may never unblock.
	case inputErr = <-inputDone:
		_ = wire.WriteFrame(stream, wire.Envelope{SessionID: sessionID, Payload: &wire.Disconnect{}})
		select {
		case outputErr = <-outputDone:
		case <-time.After(GracefulShutdownTimeout):
		}
	}

	if outputErr != nil && !errors.Is(outputErr, io.EOF) {
		return outputErr
	}
	if inputErr != nil && !errors.Is(inputErr, io.EOF) {
		return inputErr
	}
	return nil
}

func pumpOutput(stream Stream, out io.Writer) error {
	for {
		env, err := wire.ReadFrame(stream, wire.DefaultIdleTimeout)
		if err != nil {
			return err
		}
		if o, ok := env.Payload.(*wire.Output); ok {
			if _, err := out.Write(o.Bytes); err != nil {
				return err
			}
		}
	}
}

func pumpInput(ctx context.Context, sessionID string, stream Stream, in io.Reader) error {
	buf := make([]byte, 4096)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		n, err := in.Read(buf)
		if n > 0 {
			if werr := wire.WriteFrame(stream, wire.Envelope{
				SessionID: sessionID,
				Payload:   &wire.Input{Bytes: append([]byte(nil), buf[:n]...)},
			}); werr != nil {
				return werr
			}
		}
		if err != nil {
			return err
		}
	}
}

func watchResize(ctx context.Context, sessionID string, stream Stream, f *os.File, done <-chan struct{}) {
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	var lastCols, lastRows int
	for {
		select {
		case <-ctx.Done():
			return
		case <-done:
			return
		case <-ticker.C:
			cols, rows, err := term.GetSize(int(f.Fd()))
			if err != nil || (cols == lastCols && rows == lastRows) {
				continue
			}
			lastCols, lastRows = cols, rows
			_ = wire.WriteFrame(stream, wire.Envelope{
				SessionID: sessionID,
				Payload:   &wire.Resize{Cols: uint16(cols), Rows: uint16(rows)},
			})
		}
	}
}
