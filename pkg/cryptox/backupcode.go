package cryptox

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"math/big"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Backup codes are shown to the user exactly once, so the alphabet
// drops characters that read ambiguously when written down.
const backupCodeAlphabet = "ABCDEFGHJKMNPQRSTVWXYZ23456789"

const (
	backupCodeGroups   = 2
	backupCodeGroupLen = 4
	backupCodeSaltLen  = 16
)

// Argon2id parameters for backup-code hashing. Codes carry limited
// entropy, so they get a memory-hard hash rather than a bare digest.
const (
	codeHashTime    = 2
	codeHashMemory  = 19 * 1024 // KiB
	codeHashThreads = 1
	codeHashKeyLen  = 32
)

// GenerateBackupCode produces a human-readable single-use code in the
// form XXXX-XXXX drawn from a crypto-secure source.
func GenerateBackupCode() (string, error) {
	groups := make([]string, backupCodeGroups)
	for g := range groups {
		var sb strings.Builder
		for range backupCodeGroupLen {
			n, err := rand.Int(rand.Reader, big.NewInt(int64(len(backupCodeAlphabet))))
			if err != nil {
				return "", fmt.Errorf("failed to generate backup code: %w", err)
			}
			sb.WriteByte(backupCodeAlphabet[n.Int64()])
		}
		groups[g] = sb.String()
	}
	return strings.Join(groups, "-"), nil
}

// NewBackupCodeSalt returns a fresh per-user salt for backup-code
// hashing, base64url encoded.
func NewBackupCodeSalt() (string, error) {
	buf := make([]byte, backupCodeSaltLen)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// HashBackupCode derives the stored hash for a code under the user's
// salt. The derivation is deterministic so verification is a set
// membership check against the stored hashes.
func HashBackupCode(salt, code string) string {
	key := argon2.IDKey(
		[]byte(NormalizeBackupCode(code)),
		[]byte(salt),
		codeHashTime,
		codeHashMemory,
		codeHashThreads,
		codeHashKeyLen,
	)
	return base64.RawURLEncoding.EncodeToString(key)
}

// NormalizeBackupCode uppercases a user-entered code and strips the
// separators and whitespace people tend to include.
func NormalizeBackupCode(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	code = strings.ReplaceAll(code, "-", "")
	return strings.ReplaceAll(code, " ", "")
}
