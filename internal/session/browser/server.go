// Package browser implements the file-browser session of §4.7: a
// request/reply protocol over a single stream for listing directories,
// reading and writing whole files, deleting paths, and querying
// metadata/existence, all rooted under an optional filesystem-root
// restriction.
package browser

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/kerrnet/kerr/internal/validation"
	"github.com/kerrnet/kerr/internal/wire"
)

// Stream is the minimal surface the session needs from its stream.
type Stream interface {
	io.Reader
	io.Writer
	SetReadDeadline(time.Time) error
}

// Serve runs the server side of a browser session: it has already
// consumed Hello{FileBrowser}; it now loops reading one request per
// envelope and replying until the stream closes or a fatal read error
// occurs. root restricts every path the same way ServeUpload does.
func Serve(sessionID string, stream Stream, root string) error {
	for {
		env, err := wire.ReadFrame(stream, wire.DefaultIdleTimeout)
		if err != nil {
			if err == io.EOF || errors.Is(err, io.ErrClosedPipe) {
				return nil
			}
			return err
		}
		reply := dispatch(root, env.Payload)
		if err := wire.WriteFrame(stream, wire.Envelope{SessionID: sessionID, Payload: reply}); err != nil {
			return err
		}
	}
}

func dispatch(root string, req wire.Payload) wire.Payload {
	switch p := req.(type) {
	case *wire.ListDir:
		return listDir(root, p.Path)
	case *wire.ReadFile:
		return readFile(root, p.Path)
	case *wire.WriteFile:
		return writeFile(root, p.Path, p.Bytes)
	case *wire.DeleteFile:
		return deleteFile(root, p.Path, p.Recursive)
	case *wire.MetadataReq:
		return metadata(root, p.Path)
	case *wire.FileExists:
		return exists(root, p.Path)
	default:
		return errMsg("unexpected request type")
	}
}

func errMsg(msg string) *wire.ErrorMsg { return &wire.ErrorMsg{Message: msg} }

func listDir(root, path string) wire.Payload {
	if path == "" {
		path = "."
	}
	target, err := validation.ResolvePath(root, path)
	if err != nil {
		return errMsg(err.Error())
	}
	entries, err := os.ReadDir(target)
	if err != nil {
		return errMsg(err.Error())
	}
	out := make([]wire.DirEntry, 0, len(entries))
	for _, e := range entries {
		info, err := e.Info()
		if err != nil {
			continue
		}
		out = append(out, wire.DirEntry{
			Name:        e.Name(),
			Path:        filepath.Join(path, e.Name()),
			IsDir:       e.IsDir(),
			Size:        info.Size(),
			Modified:    info.ModTime().Unix(),
			HasModified: true,
		})
	}
	return &wire.DirListing{Entries: out}
}

func readFile(root, path string) wire.Payload {
	target, err := validation.ResolvePath(root, path)
	if err != nil {
		return errMsg(err.Error())
	}
	info, err := os.Stat(target)
	if err != nil {
		return errMsg(err.Error())
	}
	if info.Size() > validation.MaxBrowserReadSize {
		return errMsg("file exceeds maximum browser read size, use a file-transfer session instead")
	}
	data, err := os.ReadFile(target)
	if err != nil {
		return errMsg(err.Error())
	}
	return &wire.FileContent{Bytes: data}
}

func writeFile(root, path string, data []byte) wire.Payload {
	target, err := validation.ResolvePath(root, path)
	if err != nil {
		return errMsg(err.Error())
	}
	if err := validation.CheckWritableParent(filepath.Dir(target)); err != nil {
		return errMsg(err.Error())
	}
	if err := os.WriteFile(target, data, 0o644); err != nil {
		return errMsg(err.Error())
	}
	return &wire.Ok{}
}

func deleteFile(root, path string, recursive bool) wire.Payload {
	target, err := validation.ResolvePath(root, path)
	if err != nil {
		return errMsg(err.Error())
	}
	if recursive {
		err = os.RemoveAll(target)
	} else {
		err = os.Remove(target)
	}
	if err != nil {
		return errMsg(err.Error())
	}
	return &wire.Ok{}
}

func metadata(root, path string) wire.Payload {
	target, err := validation.ResolvePath(root, path)
	if err != nil {
		return errMsg(err.Error())
	}
	info, err := os.Stat(target)
	if err != nil {
		return errMsg(err.Error())
	}
	return &wire.MetadataReply{Meta: wire.FileMeta{
		Size:        info.Size(),
		IsDir:       info.IsDir(),
		Modified:    info.ModTime().Unix(),
		HasModified: true,
	}}
}

func exists(root, path string) wire.Payload {
	target, err := validation.ResolvePath(root, path)
	if err != nil {
		return &wire.ExistsReply{Exists: false}
	}
	_, err = os.Stat(target)
	return &wire.ExistsReply{Exists: err == nil}
}
