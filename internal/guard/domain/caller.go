package domain

// CallerClaims are the signed assertions attached to a verified caller
// by the identity provider. The policy engine trusts these first and
// falls back to the stored user record when they are stale.
type CallerClaims struct {
	Admin bool
	Role  Role
}

// IsAdmin reports whether the claims mark the caller as administrator.
func (c CallerClaims) IsAdmin() bool {
	return c.Admin || c.Role.IsAdmin()
}

// Caller is the verified identity attached to an inbound call, plus the
// raw transport metadata the registration guard inspects. A zero ID
// means the call is anonymous.
type Caller struct {
	ID     string
	Email  string
	Claims CallerClaims

	// Transport metadata, populated by the HTTP layer.
	IP        string
	UserAgent string
}

// IsAnonymous reports whether no verified identity is attached.
func (c Caller) IsAnonymous() bool { return c.ID == "" }
