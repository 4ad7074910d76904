// Package token implements the connection-string codec of §3/§4.2: a
// peer's identity and reachability hints, packed into an opaque,
// transportable string.
package token

import (
	"bytes"
	"compress/gzip"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// MaxTokenLen is the hard cap on an encoded token, per §4.2.
const MaxTokenLen = 8 * 1024

var (
	ErrTokenTooLarge = errors.New("token: exceeds 8 KiB")
	ErrBadNodeID     = errors.New("token: node_id must be 32-byte hex")
)

// Token is the decoded connection-string payload. Unknown JSON fields in
// an encoded token are ignored on decode, permitting forward
// compatibility (§3). Fields are declared in sorted JSON-key order.
type Token struct {
	DirectAddresses  []string `json:"direct_addresses,omitempty"`
	NodeID           string   `json:"node_id"`
	RelayURL         string   `json:"relay_url,omitempty"`
}

// Encode canonicalizes the token as JSON with sorted keys (encoding/json
// emits struct fields in declaration order, and Token declares them in
// key order), gzips it, and base64url-encodes the result without padding.
func Encode(t Token) (string, error) {
	if err := validateNodeID(t.NodeID); err != nil {
		return "", err
	}

	raw, err := json.Marshal(t)
	if err != nil {
		return "", fmt.Errorf("token: marshal: %w", err)
	}

	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	if _, err := gw.Write(raw); err != nil {
		return "", fmt.Errorf("token: gzip: %w", err)
	}
	if err := gw.Close(); err != nil {
		return "", fmt.Errorf("token: gzip: %w", err)
	}

	encoded := base64.RawURLEncoding.EncodeToString(buf.Bytes())
	if len(encoded) > MaxTokenLen {
		return "", ErrTokenTooLarge
	}
	return encoded, nil
}

// Decode reverses Encode. It rejects tokens over 8 KiB before doing any
// work and rejects a node_id that isn't 32-byte hex; reachability hints
// may be entirely absent (relay-only discovery is still possible).
func Decode(s string) (Token, error) {
	if len(s) > MaxTokenLen {
		return Token{}, ErrTokenTooLarge
	}

	compressed, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return Token{}, fmt.Errorf("token: base64: %w", err)
	}

	gr, err := gzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return Token{}, fmt.Errorf("token: gzip: %w", err)
	}
	defer gr.Close()

	raw, err := io.ReadAll(gr)
	if err != nil {
		return Token{}, fmt.Errorf("token: gzip: %w", err)
	}

	var t Token
	if err := json.Unmarshal(raw, &t); err != nil {
		return Token{}, fmt.Errorf("token: unmarshal: %w", err)
	}
	if err := validateNodeID(t.NodeID); err != nil {
		return Token{}, err
	}
	return t, nil
}

func validateNodeID(nodeID string) error {
	b, err := hex.DecodeString(nodeID)
	if err != nil || len(b) != 32 {
		return ErrBadNodeID
	}
	return nil
}
