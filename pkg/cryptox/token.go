// Package cryptox holds the small crypto helpers the service depends
// on: random tokens, hashed lookups and backup-code handling.
package cryptox

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

// Token size constants (in bytes before encoding).
const (
	// TokenSize128 provides 128 bits of entropy (22 chars base64url).
	TokenSize128 = 16
	// TokenSize256 provides 256 bits of entropy (43 chars base64url).
	TokenSize256 = 32
)

// GenerateToken creates a cryptographically secure random token of the
// given byte length, encoded base64url without padding.
func GenerateToken(size int) (string, error) {
	if size <= 0 {
		return "", fmt.Errorf("token size must be positive, got %d", size)
	}

	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate random token: %w", err)
	}

	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// FingerprintToken returns a deterministic SHA-256 fingerprint of a
// value, base64url encoded. Used for storing hashed lookups in the
// database without keeping the original value.
func FingerprintToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// SaltedFingerprint returns a SHA-256 fingerprint of value mixed with
// salt. Rate-limit keys use this so raw IPs and emails never land in
// storage.
func SaltedFingerprint(salt, value string) string {
	sum := sha256.Sum256([]byte(salt + ":" + value))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
