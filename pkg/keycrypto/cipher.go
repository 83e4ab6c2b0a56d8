package keycrypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"fmt"
)

const (
	// SymmetricKeySize is the AES-256 key length in bytes.
	SymmetricKeySize = 32
	// NonceSize is the GCM nonce length in bytes.
	NonceSize = 12
)

// GenerateSymmetricKey creates a random 256-bit key.
func GenerateSymmetricKey() ([]byte, error) {
	key := make([]byte, SymmetricKeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generate symmetric key: %w", err)
	}
	return key, nil
}

// Encrypt seals plaintext with AES-256-GCM under a fresh random nonce.
// The returned ciphertext includes the authentication tag.
func Encrypt(key, plaintext []byte) (iv, ciphertext []byte, err error) {
	aead, err := newAEAD(key)
	if err != nil {
		return nil, nil, err
	}

	iv = make([]byte, NonceSize)
	if _, err := rand.Read(iv); err != nil {
		return nil, nil, fmt.Errorf("generate nonce: %w", err)
	}

	return iv, aead.Seal(nil, iv, plaintext, nil), nil
}

// Decrypt opens ciphertext produced by Encrypt. A wrong key or any
// modification of iv or ciphertext yields ErrDecryptionFailed.
func Decrypt(key, iv, ciphertext []byte) ([]byte, error) {
	aead, err := newAEAD(key)
	if err != nil {
		return nil, err
	}
	if len(iv) != NonceSize {
		return nil, fmt.Errorf("%w: nonce must be %d bytes, got %d", ErrMalformedKey, NonceSize, len(iv))
	}

	plaintext, err := aead.Open(nil, iv, ciphertext, nil)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return plaintext, nil
}

// EncryptString is a convenience wrapper over Encrypt for text fields.
func EncryptString(key []byte, plaintext string) (iv, ciphertext []byte, err error) {
	return Encrypt(key, []byte(plaintext))
}

// DecryptString is a convenience wrapper over Decrypt for text fields.
func DecryptString(key, iv, ciphertext []byte) (string, error) {
	plaintext, err := Decrypt(key, iv, ciphertext)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}

// EncryptJSON serializes v as JSON and encrypts the result.
func EncryptJSON(key []byte, v any) (iv, ciphertext []byte, err error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal payload: %w", err)
	}
	return Encrypt(key, data)
}

// DecryptJSON decrypts and unmarshals into out.
func DecryptJSON(key, iv, ciphertext []byte, out any) error {
	plaintext, err := Decrypt(key, iv, ciphertext)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(plaintext, out); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}
	return nil
}

func newAEAD(key []byte) (cipher.AEAD, error) {
	if len(key) != SymmetricKeySize {
		return nil, fmt.Errorf("%w: key must be %d bytes, got %d", ErrMalformedKey, SymmetricKeySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedKey, err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("init gcm: %w", err)
	}
	return aead, nil
}
