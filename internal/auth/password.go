package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

const (
	pbkdf2Iterations = 100_000
	pbkdf2KeyLength  = 32
	saltLength       = 16
)

// PasswordHasher derives deterministic PBKDF2-SHA256 hashes over a
// per-user random salt. The same derivation covers stored passwords and
// refresh-token hashes, matching how both are persisted.
type PasswordHasher struct{}

func NewPasswordHasher() *PasswordHasher {
	return &PasswordHasher{}
}

// NewSalt returns a fresh base64-encoded 16-byte salt.
func (h *PasswordHasher) NewSalt() (string, error) {
	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	return base64.StdEncoding.EncodeToString(salt), nil
}

// Hash derives the base64-encoded PBKDF2 hash of secret under the given
// base64-encoded salt. Pure: same inputs always yield the same output.
func (h *PasswordHasher) Hash(secret, encodedSalt string) (string, error) {
	salt, err := base64.StdEncoding.DecodeString(encodedSalt)
	if err != nil {
		return "", fmt.Errorf("decode salt: %w", err)
	}

	key := pbkdf2.Key([]byte(secret), salt, pbkdf2Iterations, pbkdf2KeyLength, sha256.New)
	return base64.StdEncoding.EncodeToString(key), nil
}

// Verify re-derives the hash and compares it in constant time. A wrong
// secret is not an error; it just does not match.
func (h *PasswordHasher) Verify(secret, encodedSalt, storedHash string) (bool, error) {
	derived, err := h.Hash(secret, encodedSalt)
	if err != nil {
		return false, err
	}
	return subtle.ConstantTimeCompare([]byte(derived), []byte(storedHash)) == 1, nil
}
