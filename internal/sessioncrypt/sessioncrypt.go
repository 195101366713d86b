/**
 * @description
 * AES-256-GCM encryption for Telegram session credentials. The encoded form is
 * base64(nonce || ciphertext || tag) with a 12-byte random nonce, which is the
 * exact layout the worker fleet decrypts with the shared ENCRYPTION_KEY.
 */
package sessioncrypt

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
)

const nonceSize = 12

var ErrInvalidCiphertext = errors.New("invalid session ciphertext")

// Cipher encrypts and decrypts session strings with a fixed key.
type Cipher struct {
	aead cipher.AEAD
}

// New builds a Cipher from a hex-encoded 32-byte key.
func New(keyHex string) (*Cipher, error) {
	key, err := hex.DecodeString(keyHex)
	if err != nil {
		return nil, fmt.Errorf("encryption key must be hex: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("encryption key must be 32 bytes, got %d", len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCMWithNonceSize(block, nonceSize)
	if err != nil {
		return nil, err
	}
	return &Cipher{aead: aead}, nil
}

// Encrypt seals the plaintext with a fresh random nonce.
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}

	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt. It exists for operational tooling; the worker
// fleet holds its own copy of the key and decrypts queue payloads itself.
func (c *Cipher) Decrypt(encoded string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", ErrInvalidCiphertext
	}
	if len(data) < nonceSize+c.aead.Overhead() {
		return "", ErrInvalidCiphertext
	}

	plaintext, err := c.aead.Open(nil, data[:nonceSize], data[nonceSize:], nil)
	if err != nil {
		return "", ErrInvalidCiphertext
	}
	return string(plaintext), nil
}
