// Package clientcrypto seals console credentials at rest.
//
// Each value is encrypted with XChaCha20-Poly1305 under a subkey derived with
// HKDF-SHA256 from the installation key and the value's name. The name is also
// bound as associated data, so a sealed token cannot be replayed as another key.
package clientcrypto

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// Params
const (
	KeyLen  = 32
	SaltLen = 16

	argonTime    uint32 = 3
	argonMemory  uint32 = 64 * 1024
	argonThreads uint8  = 1
)

// ErrOpen is returned when a sealed value fails authentication.
var ErrOpen = errors.New("sealed value is corrupt or was sealed with another key")

func Rand(n int) ([]byte, error) {
	b := make([]byte, n)
	_, err := rand.Read(b)
	return b, err
}

// DeriveKey stretches a passphrase into a key using Argon2id.
func DeriveKey(passphrase, salt []byte) []byte {
	return argon2.IDKey(passphrase, salt, argonTime, argonMemory, argonThreads, KeyLen)
}

// loadOrCreate returns the n random bytes stored at path, creating the file (0600) on first use.
func loadOrCreate(path string, n int) ([]byte, error) {
	b, err := os.ReadFile(path)
	if err == nil {
		if len(b) != n {
			return nil, fmt.Errorf("%s: want %d bytes, got %d", path, n, len(b))
		}
		return b, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	if b, err = Rand(n); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, b, 0o600); err != nil {
		return nil, err
	}
	return b, nil
}

// LoadOrCreateKey reads the installation key at path or generates one.
func LoadOrCreateKey(path string) ([]byte, error) { return loadOrCreate(path, KeyLen) }

// KeyFromPassphrase derives the key from passphrase and a salt persisted at saltPath.
func KeyFromPassphrase(passphrase, saltPath string) ([]byte, error) {
	if passphrase == "" {
		return nil, errors.New("empty passphrase")
	}
	salt, err := loadOrCreate(saltPath, SaltLen)
	if err != nil {
		return nil, err
	}
	return DeriveKey([]byte(passphrase), salt), nil
}

// Sealer encrypts small named values.
type Sealer struct {
	key []byte
}

// NewSealer wraps a KeyLen-byte key.
func NewSealer(key []byte) (*Sealer, error) {
	if len(key) != KeyLen {
		return nil, fmt.Errorf("key must be %d bytes, got %d", KeyLen, len(key))
	}
	k := make([]byte, KeyLen)
	copy(k, key)
	return &Sealer{key: k}, nil
}

func (s *Sealer) subkey(name string) ([]byte, error) {
	r := hkdf.New(sha256.New, s.key, nil, []byte(name))
	key := make([]byte, KeyLen)
	_, err := r.Read(key)
	return key, err
}

// Seal encrypts plaintext for name. Output is nonce||ciphertext.
func (s *Sealer) Seal(name string, plaintext []byte) ([]byte, error) {
	key, err := s.subkey(name)
	if err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	nonce, err := Rand(chacha20poly1305.NonceSizeX)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(nonce)+len(plaintext)+aead.Overhead())
	out = append(out, nonce...)
	return aead.Seal(out, nonce, plaintext, []byte(name)), nil
}

// Open reverses Seal for the same name.
func (s *Sealer) Open(name string, blob []byte) ([]byte, error) {
	if len(blob) < chacha20poly1305.NonceSizeX {
		return nil, ErrOpen
	}
	key, err := s.subkey(name)
	if err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	nonce, ct := blob[:chacha20poly1305.NonceSizeX], blob[chacha20poly1305.NonceSizeX:]
	pt, err := aead.Open(nil, nonce, ct, []byte(name))
	if err != nil {
		return nil, ErrOpen
	}
	return pt, nil
}
