// Package cryptox holds the two cryptographic primitives of the service:
// the vault cipher (AES-256-GCM) and the adaptive credential hasher
// (argon2id in PHC string form).
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/safepass/internal/common"
)

// KeySize is the required vault key length in bytes (AES-256).
const KeySize = 32

// ErrDecrypt is returned when a ciphertext fails authentication. The
// underlying cause is deliberately not exposed.
var ErrDecrypt = errors.New("decryption failed")

// Cipher encrypts vault secrets with AES-256-GCM. Every Seal call uses a
// fresh random nonce; the associated data binds a ciphertext to its owner so
// a row copied to another identity fails to open.
type Cipher struct {
	aead cipher.AEAD
}

// NewCipher builds a Cipher from a raw 32-byte key.
func NewCipher(key []byte) (*Cipher, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("vault key must be %d bytes, got %d", KeySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &Cipher{aead: aead}, nil
}

// NewCipherFromBase64 decodes a standard base64 key and builds a Cipher.
func NewCipherFromBase64(encoded string) (*Cipher, error) {
	key, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("vault key is not valid base64: %w", err)
	}
	defer common.WipeByteArray(key)
	return NewCipher(key)
}

// Seal encrypts plaintext and returns the ciphertext and the nonce used.
func (c *Cipher) Seal(plaintext, aad []byte) (ciphertext, nonce []byte) {
	nonce = common.GenerateRandByteArray(c.aead.NonceSize())
	ciphertext = c.aead.Seal(nil, nonce, plaintext, aad)
	return ciphertext, nonce
}

// Open authenticates and decrypts ciphertext.
func (c *Cipher) Open(ciphertext, nonce, aad []byte) ([]byte, error) {
	if len(nonce) != c.aead.NonceSize() {
		return nil, ErrDecrypt
	}
	plaintext, err := c.aead.Open(nil, nonce, ciphertext, aad)
	if err != nil {
		return nil, ErrDecrypt
	}
	return plaintext, nil
}

// GenerateKey returns a new random vault key encoded as standard base64.
func GenerateKey() string {
	key := common.GenerateRandByteArray(KeySize)
	defer common.WipeByteArray(key)
	return base64.StdEncoding.EncodeToString(key)
}
