package domain

import "time"

// Role is the stored role on a user record. It is the fallback the
// policy engine consults when token claims are stale.
type Role string

const (
	RoleUser       Role = "user"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "super_admin"
)

// IsAdmin reports whether the role grants administrator privileges.
func (r Role) IsAdmin() bool {
	return r == RoleAdmin || r == RoleSuperAdmin
}

// TOTPState is the per-user TOTP sub-state. Enabled may only be true
// once a secret exists and has been confirmed with a valid code.
type TOTPState struct {
	Secret        string     // base32 provisioning secret, empty when not provisioned
	Enabled       bool
	ProvisionedAt *time.Time
	VerifiedAt    *time.Time
}

// User is the identity record this core owns. It is created on first
// sign-in observation and mutated only by the TOTP, backup-code and
// admin-elevation services.
type User struct {
	ID         string
	Email      string
	Role       Role
	Claims     map[string]any // mirror of the identity-provider custom claims
	TOTP       TOTPState
	BackupSalt string // per-user salt for backup-code hashing, empty when no codes exist
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// BackupCode is one stored recovery-code hash. The plaintext is never
// persisted.
type BackupCode struct {
	UserID    string
	CodeHash  string
	UsedAt    *time.Time
	CreatedAt time.Time
}
