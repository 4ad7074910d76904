// Package wire implements the length-prefixed frame format and the
// tagged-union envelope codec that every Kerr session stream speaks.
// See §4.1 and §6 of the protocol design for the bit-exact layout.
package wire

import "fmt"

// SessionKind names which handler a Hello should dispatch to.
type SessionKind uint8

const (
	KindShell SessionKind = iota + 1
	KindFileTransfer
	KindFileBrowser
	KindTcpRelay
	KindPing
)

func (k SessionKind) String() string {
	switch k {
	case KindShell:
		return "shell"
	case KindFileTransfer:
		return "file_transfer"
	case KindFileBrowser:
		return "file_browser"
	case KindTcpRelay:
		return "tcp_relay"
	case KindPing:
		return "ping"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// MaxSessionIDLen is the wire limit on an envelope's session_id, per §3.
const MaxSessionIDLen = 64

// MaxFrameSize is the hard cap on a single frame's payload, per §3/§4.1.
const MaxFrameSize = 16 << 20

// payload tags. A single tag space spans both directions; FileChunk,
// TcpData and TcpClose are shared because their wire shape is identical
// in both directions.
const (
	tagHello uint8 = iota + 1
	tagInput
	tagResize
	tagDisconnect
	tagStartUpload
	tagFileChunk
	tagListDir
	tagReadFile
	tagWriteFile
	tagDeleteFile
	tagMetadataReq
	tagFileExists
	tagTcpOpen
	tagTcpData
	tagTcpClose
	tagPingRequest
	tagOutput
	tagError
	tagUploadAck
	tagDirListing
	tagFileContent
	tagMetadataReply
	tagExistsReply
	tagOk
	tagTcpOpened
	tagPingReply
	tagFECChunk
)

// Payload is implemented by every envelope variant.
type Payload interface {
	payloadTag() uint8
	marshal(w *writer)
	unmarshal(r *reader) error
}

// Envelope is a single framed message: a session id plus a typed payload.
type Envelope struct {
	SessionID string
	Payload   Payload
}

// ---- client -> server ----

type Hello struct{ Kind SessionKind }

func (*Hello) payloadTag() uint8 { return tagHello }
func (h *Hello) marshal(w *writer) { w.u8(uint8(h.Kind)) }
func (h *Hello) unmarshal(r *reader) error {
	v, err := r.u8()
	h.Kind = SessionKind(v)
	return err
}

type Input struct{ Bytes []byte }

func (*Input) payloadTag() uint8    { return tagInput }
func (p *Input) marshal(w *writer)  { w.bytes(p.Bytes) }
func (p *Input) unmarshal(r *reader) (err error) { p.Bytes, err = r.bytes(); return }

type Resize struct{ Cols, Rows uint16 }

func (*Resize) payloadTag() uint8 { return tagResize }
func (p *Resize) marshal(w *writer) { w.u16(p.Cols); w.u16(p.Rows) }
func (p *Resize) unmarshal(r *reader) error {
	var err error
	if p.Cols, err = r.u16(); err != nil {
		return err
	}
	p.Rows, err = r.u16()
	return err
}

type Disconnect struct{}

func (*Disconnect) payloadTag() uint8          { return tagDisconnect }
func (*Disconnect) marshal(*writer)            {}
func (*Disconnect) unmarshal(*reader) error    { return nil }

// StartUpload begins an upload. FECData/FECParity are non-zero only when
// the sender opts into the fixed-stripe FEC enrichment (SPEC_FULL.md); zero
// means "no redundancy", the spec.md baseline behavior. ChunkSize is the
// shard size the sender zero-pads FEC stripes to; it is meaningless
// when FECData is zero.
type StartUpload struct {
	Path      string
	Size      int64
	IsDir     bool
	Force     bool
	FECData   uint8
	FECParity uint8
	ChunkSize uint32
}

func (*StartUpload) payloadTag() uint8 { return tagStartUpload }
func (p *StartUpload) marshal(w *writer) {
	w.str(p.Path)
	w.i64(p.Size)
	w.bool(p.IsDir)
	w.bool(p.Force)
	w.u8(p.FECData)
	w.u8(p.FECParity)
	w.u32(p.ChunkSize)
}
func (p *StartUpload) unmarshal(r *reader) error {
	var err error
	if p.Path, err = r.str(); err != nil {
		return err
	}
	if p.Size, err = r.i64(); err != nil {
		return err
	}
	if p.IsDir, err = r.boolean(); err != nil {
		return err
	}
	if p.Force, err = r.boolean(); err != nil {
		return err
	}
	if p.FECData, err = r.u8(); err != nil {
		return err
	}
	if p.FECParity, err = r.u8(); err != nil {
		return err
	}
	p.ChunkSize, err = r.u32()
	return err
}

// FileChunk carries one numbered chunk of a transfer in either direction.
type FileChunk struct {
	Seq  uint64
	Bytes []byte
	Last bool
}

func (*FileChunk) payloadTag() uint8 { return tagFileChunk }
func (p *FileChunk) marshal(w *writer) {
	w.u64(p.Seq)
	w.bytes(p.Bytes)
	w.bool(p.Last)
}
func (p *FileChunk) unmarshal(r *reader) error {
	var err error
	if p.Seq, err = r.u64(); err != nil {
		return err
	}
	if p.Bytes, err = r.bytes(); err != nil {
		return err
	}
	p.Last, err = r.boolean()
	return err
}

// FECChunk carries a parity shard for the FEC enrichment. StripeStart is
// the seq of the first data chunk the stripe covers.
type FECChunk struct {
	StripeStart uint64
	Index       uint8
	Bytes       []byte
}

func (*FECChunk) payloadTag() uint8 { return tagFECChunk }
func (p *FECChunk) marshal(w *writer) {
	w.u64(p.StripeStart)
	w.u8(p.Index)
	w.bytes(p.Bytes)
}
func (p *FECChunk) unmarshal(r *reader) error {
	var err error
	if p.StripeStart, err = r.u64(); err != nil {
		return err
	}
	if p.Index, err = r.u8(); err != nil {
		return err
	}
	p.Bytes, err = r.bytes()
	return err
}

type ListDir struct{ Path string }

func (*ListDir) payloadTag() uint8 { return tagListDir }
func (p *ListDir) marshal(w *writer) { w.str(p.Path) }
func (p *ListDir) unmarshal(r *reader) (err error) { p.Path, err = r.str(); return }

type ReadFile struct{ Path string }

func (*ReadFile) payloadTag() uint8 { return tagReadFile }
func (p *ReadFile) marshal(w *writer) { w.str(p.Path) }
func (p *ReadFile) unmarshal(r *reader) (err error) { p.Path, err = r.str(); return }

type WriteFile struct {
	Path  string
	Bytes []byte
}

func (*WriteFile) payloadTag() uint8 { return tagWriteFile }
func (p *WriteFile) marshal(w *writer) { w.str(p.Path); w.bytes(p.Bytes) }
func (p *WriteFile) unmarshal(r *reader) error {
	var err error
	if p.Path, err = r.str(); err != nil {
		return err
	}
	p.Bytes, err = r.bytes()
	return err
}

type DeleteFile struct {
	Path      string
	Recursive bool
}

func (*DeleteFile) payloadTag() uint8 { return tagDeleteFile }
func (p *DeleteFile) marshal(w *writer) { w.str(p.Path); w.bool(p.Recursive) }
func (p *DeleteFile) unmarshal(r *reader) error {
	var err error
	if p.Path, err = r.str(); err != nil {
		return err
	}
	p.Recursive, err = r.boolean()
	return err
}

// MetadataReq is the wire "Metadata" client request.
type MetadataReq struct{ Path string }

func (*MetadataReq) payloadTag() uint8 { return tagMetadataReq }
func (p *MetadataReq) marshal(w *writer) { w.str(p.Path) }
func (p *MetadataReq) unmarshal(r *reader) (err error) { p.Path, err = r.str(); return }

type FileExists struct{ Path string }

func (*FileExists) payloadTag() uint8 { return tagFileExists }
func (p *FileExists) marshal(w *writer) { w.str(p.Path) }
func (p *FileExists) unmarshal(r *reader) (err error) { p.Path, err = r.str(); return }

type TcpOpen struct {
	StreamID   uint64
	RemotePort uint16
}

func (*TcpOpen) payloadTag() uint8 { return tagTcpOpen }
func (p *TcpOpen) marshal(w *writer) { w.u64(p.StreamID); w.u16(p.RemotePort) }
func (p *TcpOpen) unmarshal(r *reader) error {
	var err error
	if p.StreamID, err = r.u64(); err != nil {
		return err
	}
	p.RemotePort, err = r.u16()
	return err
}

// TcpData carries relayed bytes for a stream_id in either direction.
type TcpData struct {
	StreamID uint64
	Bytes    []byte
}

func (*TcpData) payloadTag() uint8 { return tagTcpData }
func (p *TcpData) marshal(w *writer) { w.u64(p.StreamID); w.bytes(p.Bytes) }
func (p *TcpData) unmarshal(r *reader) error {
	var err error
	if p.StreamID, err = r.u64(); err != nil {
		return err
	}
	p.Bytes, err = r.bytes()
	return err
}

// TcpClose closes both half-directions of a relayed stream_id.
type TcpClose struct{ StreamID uint64 }

func (*TcpClose) payloadTag() uint8 { return tagTcpClose }
func (p *TcpClose) marshal(w *writer) { w.u64(p.StreamID) }
func (p *TcpClose) unmarshal(r *reader) (err error) { p.StreamID, err = r.u64(); return }

type PingRequest struct {
	ID          uint64
	PayloadSize uint32
	EchoBytes   bool
	Payload     []byte
}

func (*PingRequest) payloadTag() uint8 { return tagPingRequest }
func (p *PingRequest) marshal(w *writer) {
	w.u64(p.ID)
	w.u32(p.PayloadSize)
	w.bool(p.EchoBytes)
	w.bytes(p.Payload)
}
func (p *PingRequest) unmarshal(r *reader) error {
	var err error
	if p.ID, err = r.u64(); err != nil {
		return err
	}
	if p.PayloadSize, err = r.u32(); err != nil {
		return err
	}
	if p.EchoBytes, err = r.boolean(); err != nil {
		return err
	}
	p.Payload, err = r.bytes()
	return err
}

// ---- server -> client ----

type Output struct{ Bytes []byte }

func (*Output) payloadTag() uint8 { return tagOutput }
func (p *Output) marshal(w *writer) { w.bytes(p.Bytes) }
func (p *Output) unmarshal(r *reader) (err error) { p.Bytes, err = r.bytes(); return }

type ErrorMsg struct{ Message string }

func (*ErrorMsg) payloadTag() uint8 { return tagError }
func (p *ErrorMsg) marshal(w *writer) { w.str(p.Message) }
func (p *ErrorMsg) unmarshal(r *reader) (err error) { p.Message, err = r.str(); return }

type UploadAck struct {
	Accept bool
	Reason string
}

func (*UploadAck) payloadTag() uint8 { return tagUploadAck }
func (p *UploadAck) marshal(w *writer) { w.bool(p.Accept); w.str(p.Reason) }
func (p *UploadAck) unmarshal(r *reader) error {
	var err error
	if p.Accept, err = r.boolean(); err != nil {
		return err
	}
	p.Reason, err = r.str()
	return err
}

// DirEntry describes one entry of a ListDir reply. Modified is valid
// only when HasModified is true (directories on some platforms omit it).
type DirEntry struct {
	Name        string
	Path        string
	IsDir       bool
	Size        int64
	Modified    int64
	HasModified bool
}

func (e *DirEntry) marshal(w *writer) {
	w.str(e.Name)
	w.str(e.Path)
	w.bool(e.IsDir)
	w.i64(e.Size)
	w.bool(e.HasModified)
	w.i64(e.Modified)
}

func (e *DirEntry) unmarshal(r *reader) error {
	var err error
	if e.Name, err = r.str(); err != nil {
		return err
	}
	if e.Path, err = r.str(); err != nil {
		return err
	}
	if e.IsDir, err = r.boolean(); err != nil {
		return err
	}
	if e.Size, err = r.i64(); err != nil {
		return err
	}
	if e.HasModified, err = r.boolean(); err != nil {
		return err
	}
	e.Modified, err = r.i64()
	return err
}

type DirListing struct{ Entries []DirEntry }

func (*DirListing) payloadTag() uint8 { return tagDirListing }
func (p *DirListing) marshal(w *writer) {
	w.u32(uint32(len(p.Entries)))
	for i := range p.Entries {
		p.Entries[i].marshal(w)
	}
}
func (p *DirListing) unmarshal(r *reader) error {
	n, err := r.u32()
	if err != nil {
		return err
	}
	p.Entries = make([]DirEntry, n)
	for i := range p.Entries {
		if err := p.Entries[i].unmarshal(r); err != nil {
			return err
		}
	}
	return nil
}

type FileContent struct{ Bytes []byte }

func (*FileContent) payloadTag() uint8 { return tagFileContent }
func (p *FileContent) marshal(w *writer) { w.bytes(p.Bytes) }
func (p *FileContent) unmarshal(r *reader) (err error) { p.Bytes, err = r.bytes(); return }

type FileMeta struct {
	Size        int64
	IsDir       bool
	Modified    int64
	HasModified bool
}

func (m *FileMeta) marshal(w *writer) {
	w.i64(m.Size)
	w.bool(m.IsDir)
	w.bool(m.HasModified)
	w.i64(m.Modified)
}

func (m *FileMeta) unmarshal(r *reader) error {
	var err error
	if m.Size, err = r.i64(); err != nil {
		return err
	}
	if m.IsDir, err = r.boolean(); err != nil {
		return err
	}
	if m.HasModified, err = r.boolean(); err != nil {
		return err
	}
	m.Modified, err = r.i64()
	return err
}

type MetadataReply struct{ Meta FileMeta }

func (*MetadataReply) payloadTag() uint8 { return tagMetadataReply }
func (p *MetadataReply) marshal(w *writer) { p.Meta.marshal(w) }
func (p *MetadataReply) unmarshal(r *reader) error { return p.Meta.unmarshal(r) }

type ExistsReply struct{ Exists bool }

func (*ExistsReply) payloadTag() uint8 { return tagExistsReply }
func (p *ExistsReply) marshal(w *writer) { w.bool(p.Exists) }
func (p *ExistsReply) unmarshal(r *reader) (err error) { p.Exists, err = r.boolean(); return }

type Ok struct{}

func (*Ok) payloadTag() uint8       { return tagOk }
func (*Ok) marshal(*writer)         {}
func (*Ok) unmarshal(*reader) error { return nil }

type TcpOpened struct {
	StreamID uint64
	Ok       bool
	Reason   string
}

func (*TcpOpened) payloadTag() uint8 { return tagTcpOpened }
func (p *TcpOpened) marshal(w *writer) { w.u64(p.StreamID); w.bool(p.Ok); w.str(p.Reason) }
func (p *TcpOpened) unmarshal(r *reader) error {
	var err error
	if p.StreamID, err = r.u64(); err != nil {
		return err
	}
	if p.Ok, err = r.boolean(); err != nil {
		return err
	}
	p.Reason, err = r.str()
	return err
}

type PingReply struct {
	ID    uint64
	Bytes []byte
}

func (*PingReply) payloadTag() uint8 { return tagPingReply }
func (p *PingReply) marshal(w *writer) { w.u64(p.ID); w.bytes(p.Bytes) }
func (p *PingReply) unmarshal(r *reader) error {
	var err error
	if p.ID, err = r.u64(); err != nil {
		return err
	}
	p.Bytes, err = r.bytes()
	return err
}

func newPayload(tag uint8) (Payload, error) {
	switch tag {
	case tagHello:
		return &Hello{}, nil
	case tagInput:
		return &Input{}, nil
	case tagResize:
		return &Resize{}, nil
	case tagDisconnect:
		return &Disconnect{}, nil
	case tagStartUpload:
		return &StartUpload{}, nil
	case tagFileChunk:
		return &FileChunk{}, nil
	case tagListDir:
		return &ListDir{}, nil
	case tagReadFile:
		return &ReadFile{}, nil
	case tagWriteFile:
		return &WriteFile{}, nil
	case tagDeleteFile:
		return &DeleteFile{}, nil
	case tagMetadataReq:
		return &MetadataReq{}, nil
	case tagFileExists:
		return &FileExists{}, nil
	case tagTcpOpen:
		return &TcpOpen{}, nil
	case tagTcpData:
		return &TcpData{}, nil
	case tagTcpClose:
		return &TcpClose{}, nil
	case tagPingRequest:
		return &PingRequest{}, nil
	case tagOutput:
		return &Output{}, nil
	case tagError:
		return &ErrorMsg{}, nil
	case tagUploadAck:
		return &UploadAck{}, nil
	case tagDirListing:
		return &DirListing{}, nil
	case tagFileContent:
		return &FileContent{}, nil
	case tagMetadataReply:
		return &MetadataReply{}, nil
	case tagExistsReply:
		return &ExistsReply{}, nil
	case tagOk:
		return &Ok{}, nil
	case tagTcpOpened:
		return &TcpOpened{}, nil
	case tagPingReply:
		return &PingReply{}, nil
	case tagFECChunk:
		return &FECChunk{}, nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownTag, tag)
	}
}

// Encode serializes an envelope to its binary wire form (without the
// frame length prefix).
func Encode(e Envelope) ([]byte, error) {
	if len(e.SessionID) > MaxSessionIDLen {
		return nil, ErrSessionIDTooLong
	}
	w := &writer{}
	w.u16(uint16(len(e.SessionID)))
	w.buf = append(w.buf, e.SessionID...)
	w.u8(e.Payload.payloadTag())
	e.Payload.marshal(w)
	return w.buf, nil
}

// DecodeEnvelope parses a binary envelope body (without the frame length
// prefix) produced by Encode.
func DecodeEnvelope(b []byte) (Envelope, error) {
	r := newReader(b)
	idLen, err := r.u16()
	if err != nil {
		return Envelope{}, err
	}
	if err := r.need(int(idLen)); err != nil {
		return Envelope{}, err
	}
	sessionID := string(r.buf[r.pos : r.pos+int(idLen)])
	r.pos += int(idLen)
	if len(sessionID) > MaxSessionIDLen {
		return Envelope{}, ErrSessionIDTooLong
	}

	tag, err := r.u8()
	if err != nil {
		return Envelope{}, err
	}
	payload, err := newPayload(tag)
	if err != nil {
		return Envelope{}, err
	}
	if err := payload.unmarshal(r); err != nil {
		return Envelope{}, err
	}
	return Envelope{SessionID: sessionID, Payload: payload}, nil
}
