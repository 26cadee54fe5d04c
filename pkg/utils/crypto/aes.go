package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"io"
)

var (
	ErrInvalidKey        = errors.New("crypto: invalid encryption key")
	ErrEncryptionFailed  = errors.New("crypto: encryption failed")
	ErrDecryptionFailed  = errors.New("crypto: decryption failed")
	ErrInvalidCipherText = errors.New("crypto: invalid cipher text")
)

// Cipher seals credential fields with AES-256-GCM. The associated data binds
// a ciphertext to the row it was written for, so a value copied into another
// tenant's row fails to open.
type Cipher struct {
	aead cipher.AEAD
}

// deriveKey creates a 32-byte key from any string using SHA-256
func deriveKey(key string) []byte {
	hash := sha256.Sum256([]byte(key))
	return hash[:]
}

func NewCipher(key string) (*Cipher, error) {
	if key == "" {
		return nil, ErrInvalidKey
	}
	block, err := aes.NewCipher(deriveKey(key))
	if err != nil {
		return nil, ErrInvalidKey
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, ErrInvalidKey
	}
	return &Cipher{aead: gcm}, nil
}

// Seal returns base64(nonce|ciphertext). An empty plaintext stays empty.
func (c *Cipher) Seal(plainText, associated string) (string, error) {
	if plainText == "" {
		return "", nil
	}
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", ErrEncryptionFailed
	}
	sealed := c.aead.Seal(nonce, nonce, []byte(plainText), []byte(associated))
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func (c *Cipher) Open(cipherText, associated string) (string, error) {
	if cipherText == "" {
		return "", nil
	}
	data, err := base64.StdEncoding.DecodeString(cipherText)
	if err != nil {
		return "", ErrInvalidCipherText
	}
	nonceSize := c.aead.NonceSize()
	if len(data) < nonceSize {
		return "", ErrInvalidCipherText
	}
	nonce, sealed := data[:nonceSize], data[nonceSize:]
	plain, err := c.aead.Open(nil, nonce, sealed, []byte(associated))
	if err != nil {
		return "", ErrDecryptionFailed
	}
	return string(plain), nil
}
