package filetransfer

import (
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/kerrnet/kerr/internal/wire"
)

func TestUploadServeUploadRoundTrip(t *testing.T) {
	srcDir := t.TempDir()
	dstDir := t.TempDir()
	srcPath := filepath.Join(srcDir, "payload.bin")
	content := make([]byte, 3*DefaultChunkSize+17)
	for i := range content {
		content[i] = byte(i)
	}
	if err := os.WriteFile(srcPath, content, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	server, client := net.Pipe()

	serverDone := make(chan struct {
		res Result
		err error
	}, 1)
	go func() {
		// Consume the Hello the client sends before StartUpload.
		env, err := wire.ReadFrame(server, wire.DefaultIdleTimeout)
		if err != nil {
			serverDone <- struct {
				res Result
				err error
			}{Result{}, err}
			return
		}
		if _, ok := env.Payload.(*wire.Hello); !ok {
			serverDone <- struct {
				res Result
				err error
			}{Result{}, nil}
			return
		}
		res, err := ServeUpload("s1", server, dstDir, nil)
		serverDone <- struct {
			res Result
			err error
		}{res, err}
	}()

	clientRes, err := Upload("s1", client, srcPath, "payload.bin", false, DefaultChunkSize, 0, 0, nil)
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	sres := <-serverDone
	if sres.err != nil {
		t.Fatalf("ServeUpload: %v", sres.err)
	}
	if sres.res.Digest != clientRes.Digest {
		t.Fatalf("digest mismatch: server %s client %s", sres.res.Digest, clientRes.Digest)
	}
	if sres.res.BytesTransferred != int64(len(content)) {
		t.Fatalf("BytesTransferred = %d, want %d", sres.res.BytesTransferred, len(content))
	}

	got, err := os.ReadFile(filepath.Join(dstDir, "payload.bin"))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(got) != string(content) {
		t.Fatal("round-tripped content mismatch")
	}
}

func TestUploadWithFECRoundTrip(t *testing.T) {
	srcDir := t.TempDir()
	dstDir := t.TempDir()
	srcPath := filepath.Join(srcDir, "payload.bin")
	const chunkSize = 256
	content := make([]byte, 5*chunkSize+13)
	for i := range content {
		content[i] = byte(i * 7)
	}
	if err := os.WriteFile(srcPath, content, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	server, client := net.Pipe()

	serverDone := make(chan struct {
		res Result
		err error
	}, 1)
	go func() {
		if _, err := wire.ReadFrame(server, wire.DefaultIdleTimeout); err != nil {
			serverDone <- struct {
				res Result
				err error
			}{Result{}, err}
			return
		}
		res, err := ServeUpload("s1", server, dstDir, nil)
		serverDone <- struct {
			res Result
			err error
		}{res, err}
	}()

	clientRes, err := Upload("s1", client, srcPath, "payload.bin", false, chunkSize, 3, 1, nil)
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	sres := <-serverDone
	if sres.err != nil {
		t.Fatalf("ServeUpload: %v", sres.err)
	}
	if sres.res.Digest != clientRes.Digest {
		t.Fatalf("digest mismatch: server %s client %s", sres.res.Digest, clientRes.Digest)
	}

	got, err := os.ReadFile(filepath.Join(dstDir, "payload.bin"))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(got) != string(content) {
		t.Fatal("round-tripped content mismatch with FEC enabled")
	}
}

func TestServeDownloadPullRoundTrip(t *testing.T) {
	root := t.TempDir()
	localDir := t.TempDir()
	content := []byte("the quick brown fox jumps over the lazy dog")
	if err := os.WriteFile(filepath.Join(root, "remote.txt"), content, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	server, client := net.Pipe()

	serverErr := make(chan error, 1)
	go func() {
		env, err := wire.ReadFrame(server, wire.DefaultIdleTimeout)
		if err != nil {
			serverErr <- err
			return
		}
		if _, ok := env.Payload.(*wire.Hello); !ok {
			serverErr <- nil
			return
		}
		readEnv, err := wire.ReadFrame(server, wire.DefaultIdleTimeout)
		if err != nil {
			serverErr <- err
			return
		}
		rf, ok := readEnv.Payload.(*wire.ReadFile)
		if !ok {
			serverErr <- nil
			return
		}
		serverErr <- ServeDownload("s1", server, root, rf.Path, 8, nil)
	}()

	localPath := filepath.Join(localDir, "local.txt")
	res, err := Pull("s1", client, "remote.txt", localPath, nil)
	if err != nil {
		t.Fatalf("Pull: %v", err)
	}
	if err := <-serverErr; err != nil {
		t.Fatalf("ServeDownload: %v", err)
	}
	if res.BytesTransferred != int64(len(content)) {
		t.Fatalf("BytesTransferred = %d, want %d", res.BytesTransferred, len(content))
	}

	got, err := os.ReadFile(localPath)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(got) != string(content) {
		t.Fatalf("got %q, want %q", got, content)
	}
}
