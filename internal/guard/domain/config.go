package domain

import (
	"slices"
	"strings"
	"time"
)

// AllowlistConfig is the shared configuration document consulted by the
// policy engine and the registration guard. Changes take effect on the
// next read; callers may hold a snapshot for one request lifecycle.
type AllowlistConfig struct {
	// AdminEmails and AdminUserIDs grant admin access without relying
	// on token claims.
	AdminEmails  []string `json:"admin_emails"`
	AdminUserIDs []string `json:"admin_user_ids"`

	// BlockedEmailDomains extends the built-in disposable-domain
	// blocklist at runtime.
	BlockedEmailDomains []string `json:"blocked_email_domains"`

	UpdatedAt time.Time `json:"updated_at"`
}

// AllowsAdmin reports whether the identity key or email appears in the
// allowlist. Email comparison is case-insensitive.
func (c AllowlistConfig) AllowsAdmin(userID, email string) bool {
	if userID != "" && slices.Contains(c.AdminUserIDs, userID) {
		return true
	}
	if email == "" {
		return false
	}
	email = strings.ToLower(email)
	for _, e := range c.AdminEmails {
		if strings.ToLower(e) == email {
			return true
		}
	}
	return false
}
