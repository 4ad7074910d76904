// Package config holds the launcher's tunable configuration: listen
// addresses, timeouts, and transfer sizing, with CLI-flag overrides
// layered on top of a documented default.
package config

import (
	"flag"
	"os"
	"path/filepath"
	"time"
)

// Config holds the launcher's configuration.
type Config struct {
	QUICAddress       string
	AdminAddress      string
	KeysDirectory     string
	ChunkSize         int
	RelayBufferSize   int
	HandshakeTimeout  time.Duration
	ConnectTimeout    time.Duration
	ShutdownTimeout   time.Duration
	IdleTimeout       time.Duration
	FilesystemRoot    string
	EnableAdminServer bool
}

// DefaultConfig returns Kerr's documented defaults.
func DefaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()
	keysDir := filepath.Join(homeDir, ".local", "share", "kerr", "keys")

	return &Config{
		QUICAddress:       ":4443",
		AdminAddress:      "127.0.0.1:7070",
		KeysDirectory:     keysDir,
		ChunkSize:         64 * 1024,
		RelayBufferSize:   256 * 1024,
		HandshakeTimeout:  10 * time.Second,
		ConnectTimeout:    30 * time.Second,
		ShutdownTimeout:   2 * time.Second,
		IdleTimeout:       30 * time.Second,
		EnableAdminServer: false,
	}
}

// RegisterFlags binds cfg's fields to fs, for use from a cmd/kerr
// subcommand's own flag.FlagSet. Call before fs.Parse.
func (cfg *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.StringVar(&cfg.QUICAddress, "listen", cfg.QUICAddress, "QUIC listen address")
	fs.StringVar(&cfg.AdminAddress, "admin-addr", cfg.AdminAddress, "admin/introspection server address")
	fs.StringVar(&cfg.KeysDirectory, "keys-dir", cfg.KeysDirectory, "identity keys directory")
	fs.IntVar(&cfg.ChunkSize, "chunk-size", cfg.ChunkSize, "file-transfer chunk size in bytes")
	fs.IntVar(&cfg.RelayBufferSize, "relay-buffer-size", cfg.RelayBufferSize, "per-stream TCP relay buffer size in bytes (accepted but not applied; relay sessions use a fixed 256 KiB buffer)")
	fs.DurationVar(&cfg.HandshakeTimeout, "handshake-timeout", cfg.HandshakeTimeout, "session Hello handshake timeout (accepted but not applied; the multiplexer uses a fixed 10s)")
	fs.DurationVar(&cfg.ConnectTimeout, "connect-timeout", cfg.ConnectTimeout, "QUIC dial timeout (accepted but not applied; dials use a fixed 30s)")
	fs.DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout", cfg.ShutdownTimeout, "graceful session teardown timeout (accepted but not applied; shell sessions use a fixed 2s)")
	fs.StringVar(&cfg.FilesystemRoot, "root", cfg.FilesystemRoot, "optional filesystem root restricting file-transfer and browser sessions")
	fs.BoolVar(&cfg.EnableAdminServer, "admin", cfg.EnableAdminServer, "start the read-only admin/introspection server")
}

// LoadConfig returns DefaultConfig; Kerr carries no on-disk config file
// and reads no environment variables, only flag overrides, since durable
// state beyond identity keys is a non-goal.
func LoadConfig() *Config {
	return DefaultConfig()
}
