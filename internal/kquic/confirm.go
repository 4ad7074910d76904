package kquic

import (
	"crypto/ecdh"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// ErrIdentityMismatch is returned when a peer's confirmation handshake
// doesn't prove possession of the private key for the node_id the dialer
// expected to reach.
var ErrIdentityMismatch = errors.New("kquic: peer identity does not match expected node_id")

// confirmHello is exchanged on the control stream immediately after the
// QUIC handshake completes. It binds the peer's ed25519 node identity to
// this connection, since the transport TLS certificate is a throwaway
// and proves nothing about identity on its own.
type confirmHello struct {
	EphemeralPub string `json:"eph_pub"`
	NodePub      string `json:"node_pub"`
	Sig          string `json:"sig"`
}

func sign(priv ed25519.PrivateKey, parts ...[]byte) string {
	msg := transcript(parts...)
	return base64.StdEncoding.EncodeToString(ed25519.Sign(priv, msg))
}

func verify(pub ed25519.PublicKey, sigB64 string, parts ...[]byte) bool {
	sig, err := base64.StdEncoding.DecodeString(sigB64)
	if err != nil {
		return false
	}
	return ed25519.Verify(pub, transcript(parts...), sig)
}

func transcript(parts ...[]byte) []byte {
	msg := []byte("kerr-confirm|")
	for i, p := range parts {
		msg = append(msg, p...)
		if i+1 < len(parts) {
			msg = append(msg, '|')
		}
	}
	return msg
}

func deriveConfirmedKey(shared, transcriptHash []byte) ([32]byte, error) {
	salt := sha256.Sum256(transcriptHash)
	h := hkdf.New(sha256.New, shared, salt[:], []byte("kerr-confirm-key"))
	var out [32]byte
	_, err := io.ReadFull(h, out[:])
	return out, err
}

// rw is the minimal surface confirm needs from a stream.
type rw interface {
	io.Reader
	io.Writer
}

// ClientConfirm proves identityPub's possession of identityPriv to the
// peer and verifies the peer presents expectedPeerNodeID (hex-encoded
// ed25519 public key, as carried in the connection token). It returns a
// derived confirmation key that callers may log a fingerprint of, but
// which plays no role in QUIC's own transport encryption.
func ClientConfirm(s rw, identityPriv ed25519.PrivateKey, identityPub ed25519.PublicKey, expectedPeerNodeID string) ([32]byte, error) {
	ephPriv, err := ecdh.X25519().GenerateKey(rand.Reader)
	if err != nil {
		return [32]byte{}, err
	}
	ephPubBytes := ephPriv.PublicKey().Bytes()

	hello := confirmHello{
		EphemeralPub: base64.StdEncoding.EncodeToString(ephPubBytes),
		NodePub:      base64.StdEncoding.EncodeToString(identityPub),
	}
	hello.Sig = sign(identityPriv, []byte(hello.EphemeralPub), []byte(hello.NodePub))
	if err := writeJSON(s, hello); err != nil {
		return [32]byte{}, err
	}

	var peer confirmHello
	if err := readJSON(s, &peer); err != nil {
		return [32]byte{}, err
	}
	peerPub, err := decodeEd25519Pub(peer.NodePub)
	if err != nil {
		return [32]byte{}, err
	}
	if expectedPeerNodeID != "" && hexEncode(peerPub) != expectedPeerNodeID {
		return [32]byte{}, ErrIdentityMismatch
	}
	if !verify(peerPub, peer.Sig, []byte(peer.EphemeralPub), []byte(peer.NodePub)) {
		return [32]byte{}, ErrIdentityMismatch
	}

	peerEphBytes, err := base64.StdEncoding.DecodeString(peer.EphemeralPub)
	if err != nil {
		return [32]byte{}, err
	}
	peerEphKey, err := ecdh.X25519().NewPublicKey(peerEphBytes)
	if err != nil {
		return [32]byte{}, err
	}
	shared, err := ephPriv.ECDH(peerEphKey)
	if err != nil {
		return [32]byte{}, err
	}
	th := sha256.Sum256(transcript([]byte(hello.EphemeralPub), []byte(peer.EphemeralPub)))
	return deriveConfirmedKey(shared, th[:])
}

// ServerConfirm is the responder side of ClientConfirm.
func ServerConfirm(s rw, identityPriv ed25519.PrivateKey, identityPub ed25519.PublicKey) ([32]byte, string, error) {
	var peer confirmHello
	if err := readJSON(s, &peer); err != nil {
		return [32]byte{}, "", err
	}
	peerPub, err := decodeEd25519Pub(peer.NodePub)
	if err != nil {
		return [32]byte{}, "", err
	}
	if !verify(peerPub, peer.Sig, []byte(peer.EphemeralPub), []byte(peer.NodePub)) {
		return [32]byte{}, "", ErrIdentityMismatch
	}

	ephPriv, err := ecdh.X25519().GenerateKey(rand.Reader)
	if err != nil {
		return [32]byte{}, "", err
	}
	hello := confirmHello{
		EphemeralPub: base64.StdEncoding.EncodeToString(ephPriv.PublicKey().Bytes()),
		NodePub:      base64.StdEncoding.EncodeToString(identityPub),
	}
	hello.Sig = sign(identityPriv, []byte(hello.EphemeralPub), []byte(hello.NodePub))
	if err := writeJSON(s, hello); err != nil {
		return [32]byte{}, "", err
	}

	peerEphBytes, err := base64.StdEncoding.DecodeString(peer.EphemeralPub)
	if err != nil {
		return [32]byte{}, "", err
	}
	peerEphKey, err := ecdh.X25519().NewPublicKey(peerEphBytes)
	if err != nil {
		return [32]byte{}, "", err
	}
	shared, err := ephPriv.ECDH(peerEphKey)
	if err != nil {
		return [32]byte{}, "", err
	}
	th := sha256.Sum256(transcript([]byte(peer.EphemeralPub), []byte(hello.EphemeralPub)))
	key, err := deriveConfirmedKey(shared, th[:])
	return key, hexEncode(peerPub), err
}

func decodeEd25519Pub(b64 string) (ed25519.PublicKey, error) {
	b, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, err
	}
	if len(b) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("kquic: bad public key size %d", len(b))
	}
	return ed25519.PublicKey(b), nil
}

func hexEncode(b []byte) string {
	const hexDigits = "0123456789abcdef"
	out := make([]byte, len(b)*2)
	for i, c := range b {
		out[i*2] = hexDigits[c>>4]
		out[i*2+1] = hexDigits[c&0xf]
	}
	return string(out)
}

func writeJSON(w io.Writer, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	b = append(b, '\n')
	_, err = w.Write(b)
	return err
}

func readJSON(r io.Reader, v any) error {
	dec := json.NewDecoder(r)
	return dec.Decode(v)
}
