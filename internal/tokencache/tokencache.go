// Package tokencache is the connection-string caching enrichment of
// SPEC_FULL.md: a small in-memory LRU of decoded tokens keyed by their
// original string, so a CLI invocation that handles the same token
// string more than once (retrying a dial, re-entering an interactive
// command) doesn't re-run the base64url/gzip/JSON decode and node_id
// validation every time. It is never written to disk; durability beyond
// identity keys is a Non-goal.
package tokencache

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/kerrnet/kerr/internal/token"
)

// DefaultSize bounds the cache to a handful of distinct tokens, plenty
// for any single CLI process's lifetime.
const DefaultSize = 32

// Cache decodes tokens on demand, caching the result by the exact input
// string (a token's encoding is canonical for a given Token value, so
// string identity is a safe cache key).
type Cache struct {
	lru *lru.Cache[string, token.Token]
}

// New creates a Cache holding up to size distinct tokens.
func New(size int) (*Cache, error) {
	if size <= 0 {
		size = DefaultSize
	}
	l, err := lru.New[string, token.Token](size)
	if err != nil {
		return nil, err
	}
	return &Cache{lru: l}, nil
}

// Decode returns tok's decoded form, consulting the cache first.
func (c *Cache) Decode(s string) (token.Token, error) {
	if t, ok := c.lru.Get(s); ok {
		return t, nil
	}
	t, err := token.Decode(s)
	if err != nil {
		return token.Token{}, err
	}
	c.lru.Add(s, t)
	return t, nil
}
