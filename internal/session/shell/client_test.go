package shell

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/kerrnet/kerr/internal/wire"
)

func TestAttachReturnsWhenRemoteEndsWithoutLocalInput(t *testing.T) {
	serverConn, clientConn := net.Pipe()

	// in never produces anything and is never closed, simulating a
	// local terminal sitting idle with no keystrokes pending.
	inR, inW := io.Pipe()
	defer inW.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	attachDone := make(chan error, 1)
	go func() { attachDone <- Attach(ctx, "sess-1", clientConn, inR, io.Discard) }()

	// Consume the Hello the client sends, then close the server side to
	// simulate the remote session ending on its own.
	if _, err := wire.ReadFrame(serverConn, 2*time.Second); err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	serverConn.Close()

	// If pumpInput were still run inline, Attach would block here
	// forever since inR is never written to or closed.
	select {
	case <-attachDone:
	case <-time.After(1 * time.Second):
		t.Fatal("Attach did not return promptly when the remote session ended with no local input pending")
	}
}
