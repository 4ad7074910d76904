package token

import (
	"bytes"
	"compress/gzip"
	"encoding/base64"
	"encoding/json"
	"strings"
	"testing"
)

func validNodeID() string {
	return strings.Repeat("ab", 32)
}

func TestRoundTrip(t *testing.T) {
	cases := []Token{
		{NodeID: validNodeID()},
		{NodeID: validNodeID(), RelayURL: "https://relay.example.com"},
		{NodeID: validNodeID(), DirectAddresses: []string{"10.0.0.1:4433", "192.168.1.5:51820"}},
		{NodeID: validNodeID(), RelayURL: "https://relay.example.com", DirectAddresses: []string{"10.0.0.1:4433"}},
	}

	for _, want := range cases {
		s, err := Encode(want)
		if err != nil {
			t.Fatalf("Encode: %v", err)
		}
		got, err := Decode(s)
		if err != nil {
			t.Fatalf("Decode: %v", err)
		}
		if got.NodeID != want.NodeID || got.RelayURL != want.RelayURL || len(got.DirectAddresses) != len(want.DirectAddresses) {
			t.Fatalf("round trip mismatch: got %+v want %+v", got, want)
		}
	}
}

func TestDecodeIgnoresUnknownFields(t *testing.T) {
	raw := map[string]any{
		"node_id":       validNodeID(),
		"relay_url":     "https://relay.example.com",
		"future_field":  "ignored by older decoders",
		"another_field": 42,
	}
	b, err := json.Marshal(raw)
	if err != nil {
		t.Fatal(err)
	}

	// Reuse Encode's gzip+base64url pipeline by constructing the token
	// the same way Encode would, but from arbitrary JSON with extra keys.
	encoded := gzipB64(t, b)

	got, err := Decode(encoded)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.NodeID != validNodeID() || got.RelayURL != "https://relay.example.com" {
		t.Fatalf("unexpected decode result: %+v", got)
	}
}

func TestDecodeRejectsOversizedToken(t *testing.T) {
	huge := strings.Repeat("A", MaxTokenLen+1)
	if _, err := Decode(huge); err != ErrTokenTooLarge {
		t.Fatalf("expected ErrTokenTooLarge, got %v", err)
	}
}

func TestDecodeRejectsBadNodeID(t *testing.T) {
	s, err := Encode(Token{NodeID: validNodeID()})
	if err != nil {
		t.Fatal(err)
	}
	_ = s
	if _, err := Encode(Token{NodeID: "not-hex"}); err != ErrBadNodeID {
		t.Fatalf("expected ErrBadNodeID, got %v", err)
	}
	b, err := json.Marshal(map[string]any{"node_id": "not-hex"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Decode(gzipB64(t, b)); err != ErrBadNodeID {
		t.Fatalf("expected Decode to return ErrBadNodeID, got %v", err)
	}
}

func gzipB64(t *testing.T, raw []byte) string {
	t.Helper()
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(raw); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return base64.RawURLEncoding.EncodeToString(buf.Bytes())
}
