package main

import (
	"context"
	"os"

	"github.com/kerrnet/kerr/internal/config"
	"github.com/kerrnet/kerr/internal/identity"
	"github.com/kerrnet/kerr/internal/kquic"
	"github.com/kerrnet/kerr/internal/observability"
	"github.com/kerrnet/kerr/internal/token"
	"github.com/kerrnet/kerr/internal/tokencache"
)

// tokens caches decoded connection strings for this process's lifetime
// (the connection-string caching enrichment of SPEC_FULL.md).
var tokens = mustTokenCache()

func mustTokenCache() *tokencache.Cache {
	c, err := tokencache.New(tokencache.DefaultSize)
	if err != nil {
		panic(err)
	}
	return c
}

func newLogger() *observability.Logger {
	return observability.NewLogger("kerr", version, os.Stderr)
}

// version is overridable at build time via -ldflags.
var version = "dev"

// loadIdentity loads or creates this process's node keypair from cfg's
// keys directory.
func loadIdentity(cfg *config.Config) (identity.Identity, error) {
	return identity.LoadOrCreate(cfg.KeysDirectory)
}

// decodeToken parses a connection-string argument, through the
// process-lifetime cache.
func decodeToken(s string) (token.Token, error) {
	t, err := tokens.Decode(s)
	if err != nil {
		return token.Token{}, usageErrorf("invalid connection token: %v", err)
	}
	return t, nil
}

// dial decodes tokStr and connects to the peer it names.
func dial(ctx context.Context, id identity.Identity, tokStr string) (*kquic.Connection, error) {
	tok, err := decodeToken(tokStr)
	if err != nil {
		return nil, err
	}
	return kquic.Dial(ctx, id, tok)
}
