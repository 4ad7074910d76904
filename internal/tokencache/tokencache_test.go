package tokencache

import (
	"strings"
	"testing"

	"github.com/kerrnet/kerr/internal/token"
)

func validToken(t *testing.T) string {
	t.Helper()
	s, err := token.Encode(token.Token{NodeID: strings.Repeat("ab", 32)})
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestDecodeCachesResult(t *testing.T) {
	c, err := New(DefaultSize)
	if err != nil {
		t.Fatal(err)
	}
	s := validToken(t)

	a, err := c.Decode(s)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	b, err := c.Decode(s)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if a.NodeID != b.NodeID {
		t.Fatalf("cache returned inconsistent results: %+v vs %+v", a, b)
	}
}

func TestDecodePropagatesError(t *testing.T) {
	c, err := New(DefaultSize)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.Decode("not a valid token"); err == nil {
		t.Fatal("expected an error for an invalid token string")
	}
}

func TestNewDefaultsInvalidSize(t *testing.T) {
	c, err := New(0)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.Decode(validToken(t)); err != nil {
		t.Fatalf("Decode: %v", err)
	}
}
