// SPDX-License-Identifier: MIT

package session

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrInvalidToken is returned when a token cannot be authenticated or decoded.
// A forged, corrupted or wrong-key token always fails with this error and never
// yields a default configuration.
var ErrInvalidToken = errors.New("session: invalid token")

// Codec encrypts and decrypts session tokens with AES-256-GCM. The key is
// derived from the server secret, so decoding is a pure function of
// (token, secret).
type Codec struct {
	aead cipher.AEAD
}

// NewCodec derives the AEAD key from the server secret.
func NewCodec(secret string) (*Codec, error) {
	if secret == "" {
		return nil, errors.New("session: empty secret")
	}
	key := sha256.Sum256([]byte(secret))
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("session: cipher init: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("session: gcm init: %w", err)
	}
	return &Codec{aead: aead}, nil
}

// Encode serialises and encrypts cfg into an opaque URL-safe token.
func (c *Codec) Encode(cfg UserConfig) (string, error) {
	plaintext, err := json.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("session: marshal: %w", err)
	}
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("session: nonce: %w", err)
	}
	sealed := c.aead.Seal(nonce, nonce, plaintext, nil)
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Decode authenticates and decrypts a token back into a UserConfig.
func (c *Codec) Decode(token string) (UserConfig, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return UserConfig{}, ErrInvalidToken
	}
	ns := c.aead.NonceSize()
	if len(raw) < ns {
		return UserConfig{}, ErrInvalidToken
	}
	plaintext, err := c.aead.Open(nil, raw[:ns], raw[ns:], nil)
	if err != nil {
		return UserConfig{}, ErrInvalidToken
	}
	var cfg UserConfig
	if err := json.Unmarshal(plaintext, &cfg); err != nil {
		return UserConfig{}, ErrInvalidToken
	}
	return cfg, nil
}
