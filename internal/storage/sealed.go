package storage

import (
	"context"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"

	sferrors "github.com/felixgeelhaar/storefront/internal/errors"
)

// sealedSalt is fixed so the same secret always opens the same store.
// The secret itself is the only confidential input.
var sealedSalt = []byte("storefront/session-storage/v1")

// Sealed encrypts values with XChaCha20-Poly1305 and stores them base64
// encoded in an inner backend. The entry key is bound as associated data, so a ciphertext
// copied to another key does not decrypt.
type Sealed struct {
	inner Backend
	aead  cipher.AEAD
}

// NewSealed derives an encryption key from secret with argon2id.
func NewSealed(inner Backend, secret string) (*Sealed, error) {
	if secret == "" {
		return nil, sferrors.New(sferrors.ErrCodeStorageSealed, "storage secret is empty")
	}
	key := argon2.IDKey([]byte(secret), sealedSalt, 1, 64*1024, 4, chacha20poly1305.KeySize)
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, sferrors.NewStorageSealedError(err)
	}
	return &Sealed{inner: inner, aead: aead}, nil
}

// Get decrypts the value stored under key.
func (s *Sealed) Get(ctx context.Context, key string) ([]byte, error) {
	encoded, err := s.inner.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	ciphertext, err := base64.RawStdEncoding.DecodeString(string(encoded))
	if err != nil {
		return nil, sferrors.NewStorageSealedError(err)
	}
	nonceSize := s.aead.NonceSize()
	if len(ciphertext) < nonceSize+s.aead.Overhead() {
		return nil, sferrors.NewStorageSealedError(fmt.Errorf("ciphertext too short"))
	}
	plaintext, err := s.aead.Open(nil, ciphertext[:nonceSize], ciphertext[nonceSize:], []byte(key))
	if err != nil {
		return nil, sferrors.NewStorageSealedError(err)
	}
	return plaintext, nil
}

// Set encrypts value with a fresh random nonce.
func (s *Sealed) Set(ctx context.Context, key string, value []byte) error {
	nonce := make([]byte, s.aead.NonceSize(), s.aead.NonceSize()+len(value)+s.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return sferrors.NewStorageSealedError(err)
	}
	sealed := s.aead.Seal(nonce, nonce, value, []byte(key))
	return s.inner.Set(ctx, key, []byte(base64.RawStdEncoding.EncodeToString(sealed)))
}

// Delete removes key from the inner backend.
func (s *Sealed) Delete(ctx context.Context, key string) error {
	return s.inner.Delete(ctx, key)
}

// Ping forwards to the inner backend when it supports it.
func (s *Sealed) Ping(ctx context.Context) error {
	if p, ok := s.inner.(Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}
