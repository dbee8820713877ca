// Package session seals and opens owner session tokens. The token is an
// AES-GCM envelope over the owner id plus an expiry instant; the service
// never mints tokens for end users, it only verifies what the login
// collaborator issued with the shared key.
package session

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

var (
	ErrInvalidToken = errors.New("invalid session token")
	ErrExpiredToken = errors.New("session token expired")
)

type Sealer struct {
	aead cipher.AEAD
}

// NewSealer expects a base64-encoded 32-byte key, supplied via configuration.
func NewSealer(encodedKey string) (*Sealer, error) {
	key, err := base64.StdEncoding.DecodeString(encodedKey)
	if err != nil {
		return nil, fmt.Errorf("session key is not valid base64: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("session key must be 32 bytes, got %d", len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	return &Sealer{aead: aead}, nil
}

// Seal produces an opaque token binding ownerID to an expiry instant.
func (s *Sealer) Seal(ownerID string, expiresAt time.Time) (string, error) {
	if ownerID == "" {
		return "", errors.New("owner id cannot be empty")
	}
	plaintext := []byte(ownerID + ":" + strconv.FormatInt(expiresAt.Unix(), 10))

	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	ct := s.aead.Seal(nonce, nonce, plaintext, nil)
	return base64.RawURLEncoding.EncodeToString(ct), nil
}

// Open verifies a token and returns the owner id it was sealed for.
func (s *Sealer) Open(token string, now time.Time) (string, error) {
	data, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return "", ErrInvalidToken
	}

	nonceSize := s.aead.NonceSize()
	if len(data) <= nonceSize {
		return "", ErrInvalidToken
	}

	pt, err := s.aead.Open(nil, data[:nonceSize], data[nonceSize:], nil)
	if err != nil {
		return "", ErrInvalidToken
	}

	idx := strings.LastIndexByte(string(pt), ':')
	if idx <= 0 {
		return "", ErrInvalidToken
	}
	ownerID := string(pt[:idx])
	expiry, err := strconv.ParseInt(string(pt[idx+1:]), 10, 64)
	if err != nil {
		return "", ErrInvalidToken
	}

	if now.After(time.Unix(expiry, 0)) {
		return "", ErrExpiredToken
	}

	return ownerID, nil
}
