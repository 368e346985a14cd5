// Package crypto encrypts bot platform credentials before they are stored.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
)

var (
	// ErrInvalidKey is returned when the encryption key is empty.
	ErrInvalidKey = errors.New("invalid encryption key: must not be empty")
	// ErrDecryptionFailed is returned when decryption fails due to invalid ciphertext,
	// wrong key, or a ciphertext bound to a different owner.
	ErrDecryptionFailed = errors.New("decryption failed: invalid ciphertext or wrong key")
)

// CredentialSealer encrypts a credential and binds it to the record that owns it.
type CredentialSealer interface {
	Seal(plaintext, boundTo string) (string, error)
	Open(sealed, boundTo string) (string, error)
}

// CredentialEncryptor provides AES-256-GCM encryption for bot tokens.
// The owning record's ID is used as additional authenticated data, so a
// ciphertext copied onto another row fails to open.
type CredentialEncryptor struct {
	gcm cipher.AEAD
}

// NewCredentialEncryptor creates a new encryptor from a key string.
// The key can be:
//   - A base64-encoded 32-byte key (e.g., from: openssl rand -base64 32)
//   - Any passphrase (will be hashed to 32 bytes with SHA-256)
func NewCredentialEncryptor(keyInput string) (*CredentialEncryptor, error) {
	if keyInput == "" {
		return nil, ErrInvalidKey
	}

	var key []byte
	decoded, err := base64.StdEncoding.DecodeString(keyInput)
	if err == nil && len(decoded) == 32 {
		key = decoded
	} else {
		hash := sha256.Sum256([]byte(keyInput))
		key = hash[:]
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &CredentialEncryptor{gcm: gcm}, nil
}

// Seal encrypts plaintext and returns base64(nonce || ciphertext || tag).
// Empty strings are returned as-is.
func (e *CredentialEncryptor) Seal(plaintext, boundTo string) (string, error) {
	if plaintext == "" {
		return "", nil
	}

	nonce := make([]byte, e.gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := e.gcm.Seal(nonce, nonce, []byte(plaintext), []byte(boundTo))
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Open reverses Seal. boundTo must match the value used when sealing.
// Empty strings are returned as-is.
func (e *CredentialEncryptor) Open(sealed, boundTo string) (string, error) {
	if sealed == "" {
		return "", nil
	}

	data, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return "", fmt.Errorf("%w: base64 decode failed", ErrDecryptionFailed)
	}

	nonceSize := e.gcm.NonceSize()
	if len(data) < nonceSize+e.gcm.Overhead() {
		return "", fmt.Errorf("%w: ciphertext too short", ErrDecryptionFailed)
	}

	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	plaintext, err := e.gcm.Open(nil, nonce, ciphertext, []byte(boundTo))
	if err != nil {
		return "", fmt.Errorf("%w: authentication failed", ErrDecryptionFailed)
	}

	return string(plaintext), nil
}

// SealOptional seals *plaintext. nil and "" both map to nil (no credential).
func SealOptional(s CredentialSealer, plaintext *string, boundTo string) (*string, error) {
	if plaintext == nil || *plaintext == "" {
		return nil, nil
	}
	sealed, err := s.Seal(*plaintext, boundTo)
	if err != nil {
		return nil, err
	}
	return &sealed, nil
}

// OpenOptional opens *sealed, passing nil through.
func OpenOptional(s CredentialSealer, sealed *string, boundTo string) (*string, error) {
	if sealed == nil {
		return nil, nil
	}
	plaintext, err := s.Open(*sealed, boundTo)
	if err != nil {
		return nil, err
	}
	return &plaintext, nil
}

var _ CredentialSealer = (*CredentialEncryptor)(nil)
