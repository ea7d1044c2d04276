package service

import (
	"context"

	"github.com/merchhq/storeguard/internal/guard/domain"
	"github.com/merchhq/storeguard/internal/guard/store"
	"github.com/merchhq/storeguard/pkg/slogx"
)

// PolicyService is the access policy engine. Every externally reachable
// operation runs one of its three checks before touching a functional
// service.
type PolicyService struct {
	Store store.Store
}

// RequireAuthenticated fails unless a verified identity is attached to
// the call.
func (s *PolicyService) RequireAuthenticated(caller domain.Caller) (string, error) {
	if caller.IsAnonymous() {
		return "", Unauthenticated("authentication required")
	}
	return caller.ID, nil
}

// RequireAdmin requires authentication plus admin-marking claims.
func (s *PolicyService) RequireAdmin(caller domain.Caller) (string, error) {
	id, err := s.RequireAuthenticated(caller)
	if err != nil {
		return "", err
	}
	if !caller.Claims.IsAdmin() {
		return "", PermissionDenied("", "administrator access required")
	}
	return id, nil
}

// RequireAdminOrAllowlisted requires authentication and passes when any
// of the following holds: the claims mark the caller admin, the caller
// appears in the configuration allowlist, or the stored user record
// carries an admin role (defense against stale claims).
//
// This is the single place where allowlist-read and user-record-read
// failures are collapsed to "not admin": a configuration outage must
// degrade to denial, never to silent elevation.
func (s *PolicyService) RequireAdminOrAllowlisted(ctx context.Context, caller domain.Caller) (string, error) {
	id, err := s.RequireAuthenticated(caller)
	if err != nil {
		return "", err
	}

	if caller.Claims.IsAdmin() {
		return id, nil
	}

	if s.AllowlistSnapshot(ctx).AllowsAdmin(caller.ID, caller.Email) {
		return id, nil
	}

	if user, err := s.Store.Users().GetUserByID(ctx, caller.ID); err == nil {
		if user.Role.IsAdmin() {
			return id, nil
		}
	} else if err != store.ErrNotFound {
		slogx.FromContext(ctx).Warn("user record lookup failed during policy check", "user_id", id, "err", err)
	}

	return "", PermissionDenied("", "administrator access required")
}

// AllowlistSnapshot reads the shared allowlist configuration, collapsing
// any read failure to the empty (deny-everything) config. Callers may
// hold the snapshot for the remainder of a single request.
func (s *PolicyService) AllowlistSnapshot(ctx context.Context) domain.AllowlistConfig {
	cfg, err := s.Store.Config().GetAllowlistConfig(ctx)
	if err != nil {
		if err != store.ErrNotFound {
			slogx.FromContext(ctx).Warn("allowlist config read failed, treating as empty", "err", err)
		}
		return domain.AllowlistConfig{}
	}
	return cfg
}
