// Package crypto seals bank SFTP credentials before they hit the
// database. The key is held outside the database, so a dump of
// bank_configs alone does not expose working credentials.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

const sealPrefix = "sealed:v1:"

// ErrBadKey is returned when the master key has the wrong size.
var ErrBadKey = errors.New("master key must be 32 bytes")

// Sealer encrypts and decrypts short secrets with AES-256-GCM.
type Sealer struct {
	aead cipher.AEAD
}

// NewSealer builds a Sealer from a 32-byte master key.
func NewSealer(key []byte) (*Sealer, error) {
	if len(key) != 32 {
		return nil, ErrBadKey
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}
	return &Sealer{aead: aead}, nil
}

// NewSealerFromHex builds a Sealer from a hex-encoded master key, the
// form used in SETTLEMENT_MASTER_KEY.
func NewSealerFromHex(hexKey string) (*Sealer, error) {
	key, err := hex.DecodeString(strings.TrimSpace(hexKey))
	if err != nil {
		return nil, fmt.Errorf("decode master key: %w", err)
	}
	return NewSealer(key)
}

// NewSealerFromEnv reads SETTLEMENT_MASTER_KEY. It returns (nil, nil)
// when the variable is unset, which disables sealing.
func NewSealerFromEnv() (*Sealer, error) {
	raw := os.Getenv("SETTLEMENT_MASTER_KEY")
	if raw == "" {
		return nil, nil
	}
	return NewSealerFromHex(raw)
}

// Seal encrypts a secret. The result carries a version prefix, a
// random nonce and the ciphertext, hex encoded for storage in text
// columns. Sealing an empty secret returns an empty string.
func (s *Sealer) Seal(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	sealed := s.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return sealPrefix + hex.EncodeToString(sealed), nil
}

// Open decrypts a value produced by Seal. Values without the seal
// prefix pass through unchanged so a database written before sealing
// was enabled stays readable.
func (s *Sealer) Open(stored string) (string, error) {
	if !IsSealed(stored) {
		return stored, nil
	}
	raw, err := hex.DecodeString(strings.TrimPrefix(stored, sealPrefix))
	if err != nil {
		return "", fmt.Errorf("decode sealed value: %w", err)
	}
	if len(raw) < s.aead.NonceSize() {
		return "", errors.New("sealed value too short")
	}
	nonce, ciphertext := raw[:s.aead.NonceSize()], raw[s.aead.NonceSize():]
	plaintext, err := s.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("open sealed value: %w", err)
	}
	return string(plaintext), nil
}

// IsSealed reports whether a stored value was produced by Seal.
func IsSealed(stored string) bool {
	return strings.HasPrefix(stored, sealPrefix)
}
