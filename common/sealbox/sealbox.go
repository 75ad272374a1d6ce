// Package sealbox encrypts bot secrets at rest with AES-256-GCM.
//
// Sealed values are stored as "v1:" + base64(nonce || ciphertext) so they fit
// in a TEXT column and can be told apart from legacy plaintext rows.
package sealbox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
)

// KeySize is the AES-256 key length in bytes.
const KeySize = 32

const prefix = "v1:"

var (
	// ErrKeySize is returned for keys that are not KeySize bytes.
	ErrKeySize = fmt.Errorf("sealbox: key must be %d bytes", KeySize)
	// ErrMalformed is returned when a sealed value cannot be decoded.
	ErrMalformed = errors.New("sealbox: malformed sealed value")
)

// Box seals and opens values with one key.
type Box struct {
	aead cipher.AEAD
}

// New builds a Box from a raw 32-byte key.
func New(key []byte) (*Box, error) {
	if len(key) != KeySize {
		return nil, ErrKeySize
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("sealbox: cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("sealbox: gcm: %w", err)
	}
	return &Box{aead: aead}, nil
}

// ParseKey decodes a 64-character hex key (openssl rand -hex 32).
func ParseKey(raw string) ([]byte, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, errors.New("sealbox: key is empty")
	}
	key, err := hex.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("sealbox: key is not hex: %w", err)
	}
	if len(key) != KeySize {
		return nil, ErrKeySize
	}
	return key, nil
}

// Seal encrypts plaintext.
func (b *Box) Seal(plaintext string) (string, error) {
	nonce := make([]byte, b.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("sealbox: nonce: %w", err)
	}
	out := b.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return prefix + base64.StdEncoding.EncodeToString(out), nil
}

// Open decrypts a value produced by Seal.
func (b *Box) Open(sealed string) (string, error) {
	if !IsSealed(sealed) {
		return "", ErrMalformed
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(sealed, prefix))
	if err != nil {
		return "", ErrMalformed
	}
	ns := b.aead.NonceSize()
	if len(raw) < ns {
		return "", ErrMalformed
	}
	plain, err := b.aead.Open(nil, raw[:ns], raw[ns:], nil)
	if err != nil {
		return "", fmt.Errorf("sealbox: open: %w", err)
	}
	return string(plain), nil
}

// IsSealed reports whether s carries the sealed-value prefix.
func IsSealed(s string) bool {
	return strings.HasPrefix(s, prefix)
}
