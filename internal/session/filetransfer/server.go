// Package filetransfer implements the chunked upload/download session of
// §4.6: a sequenced stream of FileChunk frames with an explicit
// accept/refuse handshake, strict in-order writes, and an optional
// Reed-Solomon FEC enrichment for loss recovery without a retransmit
// round trip.
package filetransfer

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/zeebo/blake3"

	"github.com/kerrnet/kerr/internal/validation"
	"github.com/kerrnet/kerr/internal/wire"
)

// DefaultChunkSize is the §4.6 tunable default.
const DefaultChunkSize = 64 * 1024

// Result summarizes a completed transfer for the caller's own logging;
// Digest is the hex-encoded BLAKE3 hash of the bytes actually written.
type Result struct {
	BytesTransferred int64
	Digest           string
}

// Stream is the minimal surface the session needs from its stream.
type Stream interface {
	io.Reader
	io.Writer
	SetReadDeadline(time.Time) error
}

// Serve runs either side of a file-transfer request: it has already
// consumed Hello{FileTransfer}, reads the next envelope, and dispatches
// to the upload or download path depending on whether the peer sent
// StartUpload or ReadFile. root restricts both paths; chunkSize applies
// only to the download path (an upload takes its chunking from the
// sender).
func Serve(sessionID string, stream Stream, root string, chunkSize int, progress func(int64, int64)) (Result, error) {
	env, err := wire.ReadFrame(stream, wire.DefaultIdleTimeout)
	if err != nil {
		return Result{}, err
	}
	switch p := env.Payload.(type) {
	case *wire.StartUpload:
		return serveUploadFrom(sessionID, stream, root, p, progress)
	case *wire.ReadFile:
		return Result{}, ServeDownload(sessionID, stream, root, p.Path, chunkSize, progress)
	default:
		return Result{}, fmt.Errorf("protocol violation: expected StartUpload or ReadFile, got %T", env.Payload)
	}
}

// ServeUpload runs the server side of an upload: it has already
// consumed Hello{FileTransfer}; it now reads StartUpload, decides
// accept/refuse, and if accepted receives the FileChunk sequence.
// root is the optional filesystem-root restriction of §4.6 (empty means
// unrestricted). progress, if non-nil, is called after each chunk.
func ServeUpload(sessionID string, stream Stream, root string, progress func(transferred, total int64)) (Result, error) {
	env, err := wire.ReadFrame(stream, wire.DefaultIdleTimeout)
	if err != nil {
		return Result{}, err
	}
	start, ok := env.Payload.(*wire.StartUpload)
	if !ok {
		return Result{}, writeRefuse(sessionID, stream, "expected StartUpload")
	}
	return serveUploadFrom(sessionID, stream, root, start, progress)
}

func serveUploadFrom(sessionID string, stream Stream, root string, start *wire.StartUpload, progress func(transferred, total int64)) (Result, error) {
	target, err := validation.ResolvePath(root, start.Path)
	if err != nil {
		return Result{}, writeRefuse(sessionID, stream, err.Error())
	}
	if _, statErr := os.Stat(target); statErr == nil && !start.Force {
		return Result{}, writeRefuse(sessionID, stream, "target exists and force was not set")
	}
	if err := validation.CheckWritableParent(filepath.Dir(target)); err != nil {
		return Result{}, writeRefuse(sessionID, stream, "parent directory is unwritable")
	}
	if start.IsDir {
		if err := os.MkdirAll(target, 0o755); err != nil {
			return Result{}, writeRefuse(sessionID, stream, err.Error())
		}
	}

	if err := wire.WriteFrame(stream, wire.Envelope{SessionID: sessionID, Payload: &wire.UploadAck{Accept: true}}); err != nil {
		return Result{}, err
	}
	if start.IsDir {
		// A directory upload ends here: the directory is created and
		// acknowledged, and no further StartUpload is read from this
		// stream.
		return Result{}, nil
	}

	return receiveChunks(sessionID, stream, target, start.Size, start.FECData, start.FECParity, start.ChunkSize, progress)
}

func writeRefuse(sessionID string, stream Stream, reason string) error {
	_ = wire.WriteFrame(stream, wire.Envelope{SessionID: sessionID, Payload: &wire.UploadAck{Accept: false, Reason: reason}})
	return fmt.Errorf("upload refused: %s", reason)
}

// receiveChunks writes FileChunk frames to target in strict sequence
// order. Per §4.6, a gap or out-of-order seq is fatal: the partial file
// is removed and an error returned so the caller reports Error and
// closes the stream. When fecData/fecParity are non-zero, interleaved
// FECChunk frames are fed to a stripeValidator stripe by stripe; the
// final stripe's parity, which the sender writes after the last data
// chunk, is read before returning.
func receiveChunks(sessionID string, stream Stream, target string, size int64, fecData, fecParity uint8, chunkSize uint32, progress func(int64, int64)) (Result, error) {
	f, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return Result{}, err
	}
	ok := false
	defer func() {
		f.Close()
		if !ok {
			os.Remove(target)
		}
	}()

	var validator *stripeValidator

	hasher := blake3.New()
	var written int64
	var nextSeq uint64
	for {
		env, err := wire.ReadFrame(stream, wire.DefaultIdleTimeout)
		if err != nil {
			return Result{}, err
		}
		if fecChunk, isFEC := env.Payload.(*wire.FECChunk); isFEC {
			if validator == nil {
				return Result{}, fmt.Errorf("protocol violation: unexpected FECChunk, FEC not negotiated")
			}
			if err := validator.addParity(fecChunk); err != nil {
				return Result{}, fmt.Errorf("fec stripe validation failed: %w", err)
			}
			continue
		}
		chunk, isChunk := env.Payload.(*wire.FileChunk)
		if !isChunk {
			return Result{}, fmt.Errorf("protocol violation: expected FileChunk, got %T", env.Payload)
		}
		if chunk.Seq != nextSeq {
			return Result{}, fmt.Errorf("protocol violation: out-of-order chunk seq %d, expected %d", chunk.Seq, nextSeq)
		}
		if fecData > 0 && fecParity > 0 {
			if validator == nil {
				validator, err = newStripeValidator(int(fecData), int(fecParity), chunkSizeOrDefault(chunkSize))
				if err != nil {
					return Result{}, err
				}
			}
			validator.addData(chunk.Seq, chunk.Bytes)
		}
		if _, err := f.Write(chunk.Bytes); err != nil {
			return Result{}, err
		}
		hasher.Write(chunk.Bytes)
		written += int64(len(chunk.Bytes))
		nextSeq++
		if progress != nil {
			progress(written, size)
		}
		if chunk.Last {
			for i := 0; validator != nil && i < validator.k; i++ {
				if validator.shards[i] == nil {
					validator.shards[i] = make([]byte, validator.chunkSize)
				}
			}
			for validator != nil && validator.shards != nil {
				env, err := wire.ReadFrame(stream, wire.DefaultIdleTimeout)
				if err != nil {
					return Result{}, err
				}
				fc, isFEC := env.Payload.(*wire.FECChunk)
				if !isFEC || validator.addParity(fc) != nil {
					return Result{}, fmt.Errorf("protocol violation: bad parity for the final FEC stripe")
				}
			}
			ok = true
			return Result{BytesTransferred: written, Digest: hex.EncodeToString(hasher.Sum(nil))}, nil
		}
	}
}

func chunkSizeOrDefault(n uint32) int {
	if n == 0 {
		return DefaultChunkSize
	}
	return int(n)
}

// ServeDownload runs the server side of a small-file download: it has
// already consumed ReadFile{path}; it streams the file as a sequence of
// FileChunk frames ending with last=true.
func ServeDownload(sessionID string, stream Stream, root, path string, chunkSize int, progress func(int64, int64)) error {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	target, err := validation.ResolvePath(root, path)
	if err != nil {
		return err
	}
	f, err := os.Open(target)
	if err != nil {
		return err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return err
	}

	total := info.Size()
	if total == 0 {
		return wire.WriteFrame(stream, wire.Envelope{SessionID: sessionID, Payload: &wire.FileChunk{Seq: 0, Bytes: nil, Last: true}})
	}

	buf := make([]byte, chunkSize)
	var seq uint64
	var sent int64
	for {
		n, rerr := f.Read(buf)
		if n > 0 {
			sent += int64(n)
			// See the matching comment in client.go's Upload: total is
			// known up front, so Last is driven by byte count rather than
			// assuming Read signals io.EOF in the same call that returns
			// the final bytes.
			last := sent >= total
			if werr := wire.WriteFrame(stream, wire.Envelope{
				SessionID: sessionID,
				Payload:   &wire.FileChunk{Seq: seq, Bytes: append([]byte(nil), buf[:n]...), Last: last},
			}); werr != nil {
				return werr
			}
			seq++
			if progress != nil {
				progress(sent, total)
			}
			if last {
				return nil
			}
		}
		if rerr != nil {
			if rerr == io.EOF {
				return nil
			}
			return rerr
		}
	}
}
