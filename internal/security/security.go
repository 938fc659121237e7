// Package security provides token encryption, audit logging, and input
// hygiene for the journal agent.
package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/pbkdf2"

	apperrors "github.com/EbubeImoh/AI-Powered-Trading-Journal-Agent/internal/errors"
)

const (
	// EncryptionKeySize is the size of the AES-256 key in bytes.
	EncryptionKeySize = 32
	// NonceSize is the size of the GCM nonce.
	NonceSize = 12
	// PBKDF2Iterations is the number of iterations for key derivation.
	PBKDF2Iterations = 100000

	// cipherVersion prefixes every ciphertext so the format can change.
	cipherVersion = "v1."
)

// keySalt binds derived keys to this application.
var keySalt = []byte("journalbot/token-cipher/v1")

// TokenCipher encrypts short secrets such as OAuth tokens for storage.
// The key is derived once from the configured secret.
type TokenCipher struct {
	gcm cipher.AEAD
}

// NewTokenCipher derives a key from secret. An empty secret is a
// configuration error.
func NewTokenCipher(secret string) (*TokenCipher, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, apperrors.Wrap(apperrors.ErrConfigInvalid, "token encryption secret must be provided")
	}

	block, err := aes.NewCipher(deriveKey(secret, keySalt))
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("creating GCM: %w", err)
	}
	return &TokenCipher{gcm: gcm}, nil
}

// deriveKey derives an encryption key from a password using PBKDF2.
func deriveKey(password string, salt []byte) []byte {
	return pbkdf2.Key([]byte(password), salt, PBKDF2Iterations, EncryptionKeySize, sha256.New)
}

// Encrypt seals plaintext with a fresh nonce and returns printable text.
func (c *TokenCipher) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, NonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generating nonce: %w", err)
	}

	sealed := c.gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return cipherVersion + base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a value produced by Encrypt.
func (c *TokenCipher) Decrypt(ciphertext string) (string, error) {
	if !strings.HasPrefix(ciphertext, cipherVersion) {
		return "", fmt.Errorf("decrypting: unsupported ciphertext format")
	}

	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimPrefix(ciphertext, cipherVersion))
	if err != nil {
		return "", fmt.Errorf("decoding ciphertext: %w", err)
	}
	if len(raw) < NonceSize+c.gcm.Overhead() {
		return "", fmt.Errorf("decrypting: ciphertext too short")
	}

	plaintext, err := c.gcm.Open(nil, raw[:NonceSize], raw[NonceSize:], nil)
	if err != nil {
		return "", fmt.Errorf("decrypting: %w", err)
	}
	return string(plaintext), nil
}
