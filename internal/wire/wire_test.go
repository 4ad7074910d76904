package wire

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"
	"time"
)

// fakeConn adapts a single io.Reader into something ReadFrame accepts.
type fakeConn struct {
	r io.Reader
}

func (f *fakeConn) Read(p []byte) (int, error)          { return f.r.Read(p) }
func (f *fakeConn) SetReadDeadline(time.Time) error      { return nil }

func roundTrip(t *testing.T, e Envelope) Envelope {
	t.Helper()
	var buf bytes.Buffer
	if err := WriteFrame(&buf, e); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	got, err := ReadFrame(&fakeConn{r: &buf}, time.Second)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	return got
}

func TestFrameRoundTripVariants(t *testing.T) {
	cases := []Envelope{
		{SessionID: "s1", Payload: &Hello{Kind: KindShell}},
		{SessionID: "s1", Payload: &Input{Bytes: []byte("echo hi\n")}},
		{SessionID: "s1", Payload: &Resize{Cols: 80, Rows: 24}},
		{SessionID: "s1", Payload: &Disconnect{}},
		{SessionID: "s2", Payload: &StartUpload{Path: "/tmp/out.bin", Size: 5 << 20, IsDir: false, Force: true}},
		{SessionID: "s2", Payload: &FileChunk{Seq: 3, Bytes: []byte("abc"), Last: true}},
		{SessionID: "s3", Payload: &ListDir{Path: "/"}},
		{SessionID: "s4", Payload: &DirListing{Entries: []DirEntry{
			{Name: "a", Path: "/a", IsDir: false, Size: 10, HasModified: true, Modified: 123},
			{Name: "b", Path: "/b", IsDir: true},
		}}},
		{SessionID: "s5", Payload: &TcpOpen{StreamID: 42, RemotePort: 9000}},
		{SessionID: "s5", Payload: &TcpData{StreamID: 42, Bytes: []byte("ping\n")}},
		{SessionID: "s5", Payload: &TcpClose{StreamID: 42}},
		{SessionID: "s6", Payload: &PingRequest{ID: 1, PayloadSize: 4, EchoBytes: true, Payload: []byte{1, 2, 3, 4}}},
		{SessionID: "s6", Payload: &PingReply{ID: 1, Bytes: []byte{1, 2, 3, 4}}},
		{SessionID: "", Payload: &Ok{}},
		{SessionID: "s7", Payload: &ErrorMsg{Message: "bad handshake"}},
	}

	for _, want := range cases {
		got := roundTrip(t, want)
		if got.SessionID != want.SessionID {
			t.Fatalf("session id mismatch: got %q want %q", got.SessionID, want.SessionID)
		}
		if got.Payload.payloadTag() != want.Payload.payloadTag() {
			t.Fatalf("tag mismatch for %T", want.Payload)
		}
	}
}

func TestSessionIDTooLong(t *testing.T) {
	long := make([]byte, MaxSessionIDLen+1)
	_, err := Encode(Envelope{SessionID: string(long), Payload: &Ok{}})
	if err != ErrSessionIDTooLong {
		t.Fatalf("expected ErrSessionIDTooLong, got %v", err)
	}
}

func TestOversizedFrameRejectedWithoutAllocation(t *testing.T) {
	// Declare a length far beyond MaxFrameSize but supply no body: if
	// ReadFrame tried to allocate the declared size before checking the
	// cap, this would OOM rather than return an error quickly.
	var header [4]byte
	binary.LittleEndian.PutUint32(header[:], 1<<31)
	got := bytes.NewReader(header[:])
	_, err := ReadFrame(&fakeConn{r: got}, time.Second)
	if err == nil {
		t.Fatal("expected error for oversized frame")
	}
}

func TestUnknownTagRejected(t *testing.T) {
	body := []byte{0, 0, 0xFF} // session_id len=0, tag=0xFF
	if _, err := DecodeEnvelope(body); err == nil {
		t.Fatal("expected error for unknown tag")
	}
}

func TestTruncatedFrameRejected(t *testing.T) {
	body := []byte{0, 0} // session_id len=0, missing tag byte
	if _, err := DecodeEnvelope(body); err == nil {
		t.Fatal("expected error for truncated envelope")
	}
}
