package filetransfer

import (
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/kerrnet/kerr/internal/wire"
)

func readEnvelope(t *testing.T, conn net.Conn) wire.Envelope {
	t.Helper()
	env, err := wire.ReadFrame(conn, 2*time.Second)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	return env
}

func writeEnvelope(t *testing.T, conn net.Conn, env wire.Envelope) {
	t.Helper()
	if err := wire.WriteFrame(conn, env); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
}

func TestServeUploadAcceptsAndWritesInOrder(t *testing.T) {
	root := t.TempDir()
	server, client := net.Pipe()
	defer client.Close()

	done := make(chan struct {
		res Result
		err error
	}, 1)
	go func() {
		res, err := ServeUpload("s1", server, root, nil)
		done <- struct {
			res Result
			err error
		}{res, err}
	}()

	writeEnvelope(t, client, wire.Envelope{SessionID: "s1", Payload: &wire.StartUpload{Path: "out.bin", Size: 6}})
	ack := readEnvelope(t, client).Payload.(*wire.UploadAck)
	if !ack.Accept {
		t.Fatalf("expected accept, got refuse: %s", ack.Reason)
	}
	writeEnvelope(t, client, wire.Envelope{SessionID: "s1", Payload: &wire.FileChunk{Seq: 0, Bytes: []byte("abc"), Last: false}})
	writeEnvelope(t, client, wire.Envelope{SessionID: "s1", Payload: &wire.FileChunk{Seq: 1, Bytes: []byte("def"), Last: true}})

	res := <-done
	if res.err != nil {
		t.Fatalf("ServeUpload: %v", res.err)
	}
	if res.res.BytesTransferred != 6 {
		t.Fatalf("BytesTransferred = %d, want 6", res.res.BytesTransferred)
	}
	if res.res.Digest == "" {
		t.Fatal("expected non-empty digest")
	}

	got, err := os.ReadFile(filepath.Join(root, "out.bin"))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(got) != "abcdef" {
		t.Fatalf("file content = %q, want %q", got, "abcdef")
	}
}

func TestServeUploadRejectsPathEscape(t *testing.T) {
	root := t.TempDir()
	server, client := net.Pipe()
	defer client.Close()

	errc := make(chan error, 1)
	go func() {
		_, err := ServeUpload("s1", server, root, nil)
		errc <- err
	}()

	writeEnvelope(t, client, wire.Envelope{SessionID: "s1", Payload: &wire.StartUpload{Path: "../../etc/passwd", Size: 1}})
	ack := readEnvelope(t, client).Payload.(*wire.UploadAck)
	if ack.Accept {
		t.Fatal("expected refuse for path escape")
	}
	if err := <-errc; err == nil {
		t.Fatal("expected ServeUpload to return an error")
	}
}

func TestServeUploadRejectsExistingWithoutForce(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "exists.bin"), []byte("x"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	server, client := net.Pipe()
	defer client.Close()

	errc := make(chan error, 1)
	go func() {
		_, err := ServeUpload("s1", server, root, nil)
		errc <- err
	}()

	writeEnvelope(t, client, wire.Envelope{SessionID: "s1", Payload: &wire.StartUpload{Path: "exists.bin", Size: 1, Force: false}})
	ack := readEnvelope(t, client).Payload.(*wire.UploadAck)
	if ack.Accept {
		t.Fatal("expected refuse for existing target without force")
	}
	if err := <-errc; err == nil {
		t.Fatal("expected ServeUpload to return an error")
	}
}

func TestServeUploadRejectsOutOfOrderChunk(t *testing.T) {
	root := t.TempDir()
	server, client := net.Pipe()
	defer client.Close()

	errc := make(chan error, 1)
	go func() {
		_, err := ServeUpload("s1", server, root, nil)
		errc <- err
	}()

	writeEnvelope(t, client, wire.Envelope{SessionID: "s1", Payload: &wire.StartUpload{Path: "gap.bin", Size: 6}})
	ack := readEnvelope(t, client).Payload.(*wire.UploadAck)
	if !ack.Accept {
		t.Fatalf("expected accept, got refuse: %s", ack.Reason)
	}
	writeEnvelope(t, client, wire.Envelope{SessionID: "s1", Payload: &wire.FileChunk{Seq: 1, Bytes: []byte("def"), Last: true}})

	if err := <-errc; err == nil {
		t.Fatal("expected ServeUpload to fail on out-of-order chunk")
	}
	if _, statErr := os.Stat(filepath.Join(root, "gap.bin")); !os.IsNotExist(statErr) {
		t.Fatal("expected partial file to be removed after protocol violation")
	}
}

func TestServeDownloadStreamsFile(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "src.bin"), []byte("hello world"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	server, client := net.Pipe()
	defer client.Close()

	errc := make(chan error, 1)
	go func() {
		errc <- ServeDownload("s1", server, root, "src.bin", 4, nil)
	}()

	var got []byte
	for {
		env := readEnvelope(t, client)
		chunk := env.Payload.(*wire.FileChunk)
		got = append(got, chunk.Bytes...)
		if chunk.Last {
			break
		}
	}
	if err := <-errc; err != nil {
		t.Fatalf("ServeDownload: %v", err)
	}
	if string(got) != "hello world" {
		t.Fatalf("got %q, want %q", got, "hello world")
	}
}

func TestServeDownloadEmptyFile(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "empty.bin"), nil, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	server, client := net.Pipe()
	defer client.Close()

	errc := make(chan error, 1)
	go func() {
		errc <- ServeDownload("s1", server, root, "empty.bin", 4, nil)
	}()

	env := readEnvelope(t, client)
	chunk := env.Payload.(*wire.FileChunk)
	if !chunk.Last || len(chunk.Bytes) != 0 {
		t.Fatalf("expected a single empty last chunk, got %+v", chunk)
	}
	if err := <-errc; err != nil {
		t.Fatalf("ServeDownload: %v", err)
	}
}
