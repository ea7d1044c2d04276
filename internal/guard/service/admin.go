package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/merchhq/storeguard/internal/guard/domain"
	"github.com/merchhq/storeguard/internal/guard/store"
	"github.com/merchhq/storeguard/pkg/slogx"
)

// AdminService grants administrator claims. Non-admin actors may only
// self-elevate, and only when their email appears in the bootstrap
// allowlist, a privileged config set apart from the general admin
// allowlist and meant for standing up the first administrator.
type AdminService struct {
	Store  store.Store
	Policy *PolicyService
	Audit  *AuditService

	// BootstrapAdminEmails comes from privileged deployment config,
	// never from the runtime-editable allowlist document.
	BootstrapAdminEmails []string
}

// AdminElevation reports the resolved identities of a successful
// elevation.
type AdminElevation struct {
	TargetUID   string
	TargetEmail string
	ActorUID    string
}

// SetAdminClaims elevates targetUID (defaulting to the caller) to
// administrator. Idempotent: re-running against an already-elevated
// target converges on the same end state.
func (s *AdminService) SetAdminClaims(ctx context.Context, caller domain.Caller, targetUID, emailHint string) (AdminElevation, error) {
	actorID, err := s.Policy.RequireAuthenticated(caller)
	if err != nil {
		return AdminElevation{}, err
	}

	if targetUID == "" {
		targetUID = actorID
	}

	_, adminErr := s.Policy.RequireAdminOrAllowlisted(ctx, caller)
	actorIsAdmin := adminErr == nil

	if !actorIsAdmin {
		if targetUID != actorID {
			return AdminElevation{}, PermissionDenied("", "only administrators may elevate other accounts")
		}
		if !s.bootstrapAllowed(caller.Email) {
			return AdminElevation{}, PermissionDenied("not_in_bootstrap_allowlist",
				"account is not eligible for self-elevation")
		}
	}

	target, err := s.resolveTarget(ctx, caller, actorID, targetUID)
	if err != nil {
		return AdminElevation{}, err
	}

	if emailHint != "" && !strings.EqualFold(emailHint, target.Email) {
		return AdminElevation{}, InvalidArgument("email_mismatch",
			"email does not match the target account")
	}

	claims := target.Claims
	if claims == nil {
		claims = map[string]any{}
	}
	claims["admin"] = true
	claims["role"] = string(domain.RoleAdmin)
	claims["configured_at"] = time.Now().UTC().Format(time.RFC3339)
	claims["configured_by"] = actorID

	// Never downgrade a super admin's stored role.
	role := domain.RoleAdmin
	if target.Role == domain.RoleSuperAdmin {
		role = domain.RoleSuperAdmin
	}

	if err := s.Store.Users().UpdateRoleAndClaims(ctx, target.ID, role, claims); err != nil {
		return AdminElevation{}, Internal(err)
	}

	s.Audit.Record(ctx, domain.SecurityEvent{
		Type:     domain.EventAdminClaimsSet,
		ActorID:  actorID,
		TargetID: target.ID,
		Metadata: map[string]string{"target_email": target.Email},
		Critical: true, // elevation records are exempt from retention
	})

	slogx.FromContext(ctx).Info("admin claims set",
		"actor_id", actorID, "target_id", target.ID)

	return AdminElevation{
		TargetUID:   target.ID,
		TargetEmail: target.Email,
		ActorUID:    actorID,
	}, nil
}

func (s *AdminService) resolveTarget(ctx context.Context, caller domain.Caller, actorID, targetUID string) (domain.User, error) {
	if targetUID == actorID {
		// Self-elevation counts as a first sign-in observation.
		return ensureUser(ctx, s.Store, caller)
	}

	target, err := s.Store.Users().GetUserByID(ctx, targetUID)
	if errors.Is(err, store.ErrNotFound) {
		return domain.User{}, NotFound("target account does not exist")
	}
	if err != nil {
		return domain.User{}, Internal(err)
	}
	return target, nil
}

// Allowlist returns the shared allowlist configuration document.
// Admin-only: the document names accounts eligible for elevation.
func (s *AdminService) Allowlist(ctx context.Context, caller domain.Caller) (domain.AllowlistConfig, error) {
	if _, err := s.Policy.RequireAdminOrAllowlisted(ctx, caller); err != nil {
		return domain.AllowlistConfig{}, err
	}
	return s.Policy.AllowlistSnapshot(ctx), nil
}

// UpdateAllowlist replaces the shared allowlist configuration document.
func (s *AdminService) UpdateAllowlist(ctx context.Context, caller domain.Caller, cfg domain.AllowlistConfig) (domain.AllowlistConfig, error) {
	actorID, err := s.Policy.RequireAdminOrAllowlisted(ctx, caller)
	if err != nil {
		return domain.AllowlistConfig{}, err
	}

	cfg.UpdatedAt = time.Now().UTC()
	if err := s.Store.Config().PutAllowlistConfig(ctx, cfg); err != nil {
		return domain.AllowlistConfig{}, Internal(err)
	}

	slogx.FromContext(ctx).Info("allowlist config updated", "actor_id", actorID)
	return cfg, nil
}

func (s *AdminService) bootstrapAllowed(email string) bool {
	if email == "" {
		return false
	}
	for _, e := range s.BootstrapAdminEmails {
		if strings.EqualFold(e, email) {
			return true
		}
	}
	return false
}
