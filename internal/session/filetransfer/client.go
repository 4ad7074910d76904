package filetransfer

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/zeebo/blake3"

	"github.com/kerrnet/kerr/internal/wire"
)

// ProgressFunc is the client-side progress hook of §4.6, computed from
// bytes transferred against the declared total.
type ProgressFunc func(transferred, total int64)

// Rendered returns a human-readable "N MiB / M MiB (P%)" string for a
// progress callback to log or print, using go-humanize for formatting.
func Rendered(transferred, total int64) string {
	if total <= 0 {
		return humanize.IBytes(uint64(transferred))
	}
	pct := float64(transferred) / float64(total) * 100
	return fmt.Sprintf("%s / %s (%.1f%%)", humanize.IBytes(uint64(transferred)), humanize.IBytes(uint64(total)), pct)
}

// Upload sends Hello{FileTransfer}, StartUpload, and the file's bytes as
// a FileChunk sequence. force lets the caller overwrite an existing
// remote target. fecData/fecParity opt into the §4.6 FEC enrichment
// (SPEC_FULL.md); zero for either disables it.
func Upload(sessionID string, stream Stream, localPath, remotePath string, force bool, chunkSize int, fecData, fecParity uint8, progress ProgressFunc) (Result, error) {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	f, err := os.Open(localPath)
	if err != nil {
		return Result{}, err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return Result{}, err
	}

	var enc *stripeEncoder
	if fecData > 0 && fecParity > 0 {
		enc, err = newStripeEncoder(int(fecData), int(fecParity), chunkSize)
		if err != nil {
			return Result{}, err
		}
	}

	if err := wire.WriteFrame(stream, wire.Envelope{SessionID: sessionID, Payload: &wire.Hello{Kind: wire.KindFileTransfer}}); err != nil {
		return Result{}, err
	}
	if err := wire.WriteFrame(stream, wire.Envelope{
		SessionID: sessionID,
		Payload:   &wire.StartUpload{Path: remotePath, Size: info.Size(), Force: force, FECData: fecData, FECParity: fecParity, ChunkSize: uint32(chunkSize)},
	}); err != nil {
		return Result{}, err
	}

	ackEnv, err := wire.ReadFrame(stream, wire.DefaultIdleTimeout)
	if err != nil {
		return Result{}, err
	}
	ack, ok := ackEnv.Payload.(*wire.UploadAck)
	if !ok {
		return Result{}, fmt.Errorf("filetransfer: expected UploadAck, got %T", ackEnv.Payload)
	}
	if !ack.Accept {
		return Result{}, fmt.Errorf("filetransfer: upload refused: %s", ack.Reason)
	}

	hasher := blake3.New()
	buf := make([]byte, chunkSize)
	var seq uint64
	var sent int64
	total := info.Size()
	if total == 0 {
		if werr := wire.WriteFrame(stream, wire.Envelope{SessionID: sessionID, Payload: &wire.FileChunk{Seq: 0, Last: true}}); werr != nil {
			return Result{}, werr
		}
		if enc != nil {
			if werr := sendStripeParity(sessionID, stream, enc, 0, nil, true); werr != nil {
				return Result{}, werr
			}
		}
		return Result{Digest: hex.EncodeToString(hasher.Sum(nil))}, nil
	}
	for {
		n, rerr := f.Read(buf)
		if n > 0 {
			hasher.Write(buf[:n])
			sent += int64(n)
			// total is known up front for a regular file, so the final
			// chunk is identified by byte count rather than by whether
			// Read happens to return io.EOF alongside data: many Readers
			// (including *os.File) only signal io.EOF on a later, empty
			// call, by which point a naive check would have already sent
			// a non-final chunk with Last unset and nothing left to mark
			// true.
			last := sent >= total
			chunkBytes := append([]byte(nil), buf[:n]...)
			if werr := wire.WriteFrame(stream, wire.Envelope{
				SessionID: sessionID,
				Payload:   &wire.FileChunk{Seq: seq, Bytes: chunkBytes, Last: last},
			}); werr != nil {
				return Result{}, werr
			}
			if enc != nil {
				if werr := sendStripeParity(sessionID, stream, enc, seq, chunkBytes, last); werr != nil {
					return Result{}, werr
				}
			}
			seq++
			if progress != nil {
				progress(sent, total)
			}
			if last {
				return Result{BytesTransferred: sent, Digest: hex.EncodeToString(hasher.Sum(nil))}, nil
			}
		}
		if rerr != nil {
			if rerr == io.EOF {
				return Result{BytesTransferred: sent, Digest: hex.EncodeToString(hasher.Sum(nil))}, nil
			}
			return Result{}, rerr
		}
	}
}

// sendStripeParity feeds one data chunk into enc and, once a stripe is
// ready, writes its parity shards as FECChunk frames.
func sendStripeParity(sessionID string, stream Stream, enc *stripeEncoder, seq uint64, data []byte, flush bool) error {
	parity, stripeStart, ready, err := enc.add(seq, data, flush)
	if err != nil {
		return fmt.Errorf("filetransfer: encoding FEC parity: %w", err)
	}
	if !ready {
		return nil
	}
	for i, shard := range parity {
		if werr := wire.WriteFrame(stream, wire.Envelope{
			SessionID: sessionID,
			Payload:   &wire.FECChunk{StripeStart: stripeStart, Index: uint8(i), Bytes: shard},
		}); werr != nil {
			return werr
		}
	}
	return nil
}

// Pull downloads a remote file via the small-file ReadFile protocol and
// writes it to localPath.
func Pull(sessionID string, stream Stream, remotePath, localPath string, progress ProgressFunc) (Result, error) {
	if err := wire.WriteFrame(stream, wire.Envelope{SessionID: sessionID, Payload: &wire.Hello{Kind: wire.KindFileTransfer}}); err != nil {
		return Result{}, err
	}
	if err := wire.WriteFrame(stream, wire.Envelope{SessionID: sessionID, Payload: &wire.ReadFile{Path: remotePath}}); err != nil {
		return Result{}, err
	}

	f, err := os.OpenFile(localPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return Result{}, err
	}
	ok := false
	defer func() {
		f.Close()
		if !ok {
			os.Remove(localPath)
		}
	}()

	hasher := blake3.New()
	var nextSeq uint64
	var received int64
	for {
		env, err := wire.ReadFrame(stream, wire.DefaultIdleTimeout)
		if err != nil {
			return Result{}, err
		}
		switch p := env.Payload.(type) {
		case *wire.FileChunk:
			if p.Seq != nextSeq {
				return Result{}, fmt.Errorf("filetransfer: out-of-order chunk seq %d, expected %d", p.Seq, nextSeq)
			}
			if _, err := f.Write(p.Bytes); err != nil {
				return Result{}, err
			}
			hasher.Write(p.Bytes)
			nextSeq++
			received += int64(len(p.Bytes))
			if progress != nil {
				progress(received, received)
			}
			if p.Last {
				ok = true
				return Result{BytesTransferred: received, Digest: hex.EncodeToString(hasher.Sum(nil))}, nil
			}
		case *wire.ErrorMsg:
			return Result{}, fmt.Errorf("filetransfer: %s", p.Message)
		default:
			return Result{}, fmt.Errorf("filetransfer: unexpected payload %T", env.Payload)
		}
	}
}
