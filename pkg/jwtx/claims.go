// Package jwtx reads and verifies the signed identity tokens minted by
// the external identity provider. This service never signs tokens; it
// only needs a verifier and the claim fields the policy engine consumes.
package jwtx

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrIssuer  = errors.New("jwtx: unexpected issuer")
	ErrExpired = errors.New("jwtx: token expired or not yet valid")
)

// Claims are the identity-provider claims attached to a verified caller.
// Additive changes only, to stay compatible with tokens already in
// circulation.
type Claims struct {
	jwt.RegisteredClaims

	// Email of the account as verified by the identity provider.
	Email string `json:"email,omitempty"`

	// Admin is the direct elevation flag set by setAdminClaims.
	Admin bool `json:"admin,omitempty"`

	// Role mirrors the user record role ("user", "admin", "super_admin").
	Role string `json:"role,omitempty"`

	// ConfiguredBy records which actor last set the admin claims.
	ConfiguredBy string `json:"configured_by,omitempty"`

	// ConfiguredAt is when the admin claims were last set (RFC3339).
	ConfiguredAt string `json:"configured_at,omitempty"`
}

// ValidateIssuer checks the issuer when one is enforced.
func (c *Claims) ValidateIssuer(expected string) error {
	if expected == "" {
		return nil
	}
	if c.Issuer != expected {
		return ErrIssuer
	}
	return nil
}

// ValidateExpiry ensures the token is inside its validity window.
func (c *Claims) ValidateExpiry() error {
	now := time.Now().UTC()

	if c.ExpiresAt != nil && now.After(c.ExpiresAt.Time) {
		return ErrExpired
	}
	if c.NotBefore != nil && now.Before(c.NotBefore.Time) {
		return ErrExpired
	}
	return nil
}
