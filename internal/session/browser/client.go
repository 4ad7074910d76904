package browser

import (
	"fmt"

	"github.com/kerrnet/kerr/internal/wire"
)

// Open sends Hello{FileBrowser} to start a browser session on stream.
func Open(sessionID string, stream Stream) error {
	return wire.WriteFrame(stream, wire.Envelope{SessionID: sessionID, Payload: &wire.Hello{Kind: wire.KindFileBrowser}})
}

func roundTrip(sessionID string, stream Stream, req wire.Payload) (wire.Payload, error) {
	if err := wire.WriteFrame(stream, wire.Envelope{SessionID: sessionID, Payload: req}); err != nil {
		return nil, err
	}
	env, err := wire.ReadFrame(stream, wire.DefaultIdleTimeout)
	if err != nil {
		return nil, err
	}
	if e, ok := env.Payload.(*wire.ErrorMsg); ok {
		return nil, fmt.Errorf("browser: %s", e.Message)
	}
	return env.Payload, nil
}

// List returns the entries of a remote directory.
func List(sessionID string, stream Stream, path string) ([]wire.DirEntry, error) {
	reply, err := roundTrip(sessionID, stream, &wire.ListDir{Path: path})
	if err != nil {
		return nil, err
	}
	listing, ok := reply.(*wire.DirListing)
	if !ok {
		return nil, fmt.Errorf("browser: expected DirListing, got %T", reply)
	}
	return listing.Entries, nil
}

// Read returns the full contents of a remote file, rejected by the
// server if it exceeds validation.MaxBrowserReadSize.
func Read(sessionID string, stream Stream, path string) ([]byte, error) {
	reply, err := roundTrip(sessionID, stream, &wire.ReadFile{Path: path})
	if err != nil {
		return nil, err
	}
	content, ok := reply.(*wire.FileContent)
	if !ok {
		return nil, fmt.Errorf("browser: expected FileContent, got %T", reply)
	}
	return content.Bytes, nil
}

// Write overwrites (or creates) a remote file with data.
func Write(sessionID string, stream Stream, path string, data []byte) error {
	_, err := roundTrip(sessionID, stream, &wire.WriteFile{Path: path, Bytes: data})
	return err
}

// Delete removes a remote path, recursively if recursive is set.
func Delete(sessionID string, stream Stream, path string, recursive bool) error {
	_, err := roundTrip(sessionID, stream, &wire.DeleteFile{Path: path, Recursive: recursive})
	return err
}

// Metadata returns size/type/modtime for a remote path.
func Metadata(sessionID string, stream Stream, path string) (wire.FileMeta, error) {
	reply, err := roundTrip(sessionID, stream, &wire.MetadataReq{Path: path})
	if err != nil {
		return wire.FileMeta{}, err
	}
	meta, ok := reply.(*wire.MetadataReply)
	if !ok {
		return wire.FileMeta{}, fmt.Errorf("browser: expected MetadataReply, got %T", reply)
	}
	return meta.Meta, nil
}

// Exists reports whether a remote path exists.
func Exists(sessionID string, stream Stream, path string) (bool, error) {
	reply, err := roundTrip(sessionID, stream, &wire.FileExists{Path: path})
	if err != nil {
		return false, err
	}
	er, ok := reply.(*wire.ExistsReply)
	if !ok {
		return false, fmt.Errorf("browser: expected ExistsReply, got %T", reply)
	}
	return er.Exists, nil
}
