package tcprelay

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/kerrnet/kerr/internal/wire"
)

func TestRelayBidirectional(t *testing.T) {
	echoL, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer echoL.Close()
	remotePort := uint16(echoL.Addr().(*net.TCPAddr).Port)

	remoteConns := make(chan net.Conn, 1)
	go func() {
		for {
			c, err := echoL.Accept()
			if err != nil {
				return
			}
			remoteConns <- c
			// Single-shot echo: read the one test message and reply,
			// then stop reading so the test can later read from c
			// itself without racing this goroutine.
			buf := make([]byte, 64)
			n, err := c.Read(buf)
			if err != nil {
				continue
			}
			c.Write(buf[:n])
		}
	}()

	serverSide, clientSide := net.Pipe()
	defer clientSide.Close()

	serverCounters := &Counters{}
	serverErr := make(chan error, 1)
	go func() {
		// Serve expects the Hello{TcpRelay} that Dial sends to have been
		// consumed already, as the multiplexer does in production.
		if _, err := wire.ReadFrame(serverSide, wire.DefaultIdleTimeout); err != nil {
			serverErr <- err
			return
		}
		serverErr <- Serve("s1", serverSide, serverCounters)
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	clientCounters := &Counters{}
	relay, err := Dial(ctx, "s1", clientSide, clientCounters)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}

	localL, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen local: %v", err)
	}
	localPort := uint16(localL.Addr().(*net.TCPAddr).Port)
	localL.Close()

	go relay.Forward(ctx, localPort, remotePort)

	var conn net.Conn
	for i := 0; i < 50; i++ {
		conn, err = net.Dial("tcp", localL.Addr().String())
		if err == nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("Dial local relay port: %v", err)
	}
	defer conn.Close()

	if _, err := conn.Write([]byte("ping\n")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	buf := make([]byte, 64)
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	n, err := conn.Read(buf)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(buf[:n]) != "ping\n" {
		t.Fatalf("got %q, want %q", buf[:n], "ping\n")
	}

	var remote net.Conn
	select {
	case remote = <-remoteConns:
	case <-time.After(2 * time.Second):
		t.Fatal("remote side never accepted a dialed connection")
	}

	// §8 property 9: closing the local socket closes the remote-side
	// socket within 500ms.
	conn.Close()
	remote.SetReadDeadline(time.Now().Add(500 * time.Millisecond))
	if _, err := remote.Read(buf); err != io.EOF {
		t.Fatalf("expected remote socket to observe EOF within 500ms of local close, got %v", err)
	}
}
