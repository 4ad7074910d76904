// Package identity manages the ed25519 keypair that names a Kerr
// endpoint, per §3: "a stable public-key identity derived at startup".
package identity

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// Identity is a loaded or freshly generated node keypair.
type Identity struct {
	Public  ed25519.PublicKey
	Private ed25519.PrivateKey
}

// NodeID is the hex-encoded public key used in connection tokens.
func (id Identity) NodeID() string { return hex.EncodeToString(id.Public) }

// DefaultDir returns the default key storage directory, ~/.kerr.
func DefaultDir() (string, error) {
	h, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(h, ".kerr"), nil
}

// LoadOrCreate loads an ed25519 keypair from dir, generating and
// persisting one if none exists. An empty dir uses DefaultDir.
func LoadOrCreate(dir string) (Identity, error) {
	if dir == "" {
		d, err := DefaultDir()
		if err != nil {
			return Identity{}, err
		}
		dir = d
	}
	privPath := filepath.Join(dir, "id_ed25519")
	pubPath := filepath.Join(dir, "id_ed25519.pub")

	id, err := load(privPath, pubPath)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return Identity{}, err
	}

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return Identity{}, err
	}
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return Identity{}, err
	}
	if err := write(privPath, pubPath, priv, pub); err != nil {
		return Identity{}, err
	}
	return Identity{Public: pub, Private: priv}, nil
}

// Ephemeral generates a keypair that is never written to disk, for
// transient clients that don't need a stable identity across runs.
func Ephemeral() (Identity, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return Identity{}, err
	}
	return Identity{Public: pub, Private: priv}, nil
}

func load(privPath, pubPath string) (Identity, error) {
	pb, err := os.ReadFile(privPath)
	if err != nil {
		return Identity{}, err
	}
	ub, err := os.ReadFile(pubPath)
	if err != nil {
		return Identity{}, err
	}
	priv, err := decode(pb)
	if err != nil {
		return Identity{}, fmt.Errorf("identity: invalid private key: %w", err)
	}
	pub, err := decode(ub)
	if err != nil {
		return Identity{}, fmt.Errorf("identity: invalid public key: %w", err)
	}
	if len(priv) != ed25519.PrivateKeySize || len(pub) != ed25519.PublicKeySize {
		return Identity{}, fmt.Errorf("identity: bad key sizes")
	}
	return Identity{Public: ed25519.PublicKey(pub), Private: ed25519.PrivateKey(priv)}, nil
}

func write(privPath, pubPath string, priv ed25519.PrivateKey, pub ed25519.PublicKey) error {
	if err := os.WriteFile(privPath, encode(priv), 0o600); err != nil {
		return err
	}
	return os.WriteFile(pubPath, encode(pub), 0o644)
}

func encode(b []byte) []byte { return []byte(base64.StdEncoding.EncodeToString(b)) }

func decode(b []byte) ([]byte, error) {
	return base64.StdEncoding.DecodeString(string(trimSpace(b)))
}

func trimSpace(b []byte) []byte {
	i, j := 0, len(b)
	isSpace := func(c byte) bool { return c == ' ' || c == '\n' || c == '\r' || c == '\t' }
	for i < j && isSpace(b[i]) {
		i++
	}
	for j > i && isSpace(b[j-1]) {
		j--
	}
	return b[i:j]
}
