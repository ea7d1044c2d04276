package service

import (
	"context"
	"testing"
	"time"

	"github.com/merchhq/storeguard/internal/guard/domain"
	"github.com/stretchr/testify/require"
)

func TestRequireAuthenticated(t *testing.T) {
	t.Parallel()

	svc := &PolicyService{}

	t.Run("rejects anonymous callers", func(t *testing.T) {
		_, err := svc.RequireAuthenticated(domain.Caller{})
		require.Equal(t, KindUnauthenticated, KindOf(err))
	})

	t.Run("returns the caller id", func(t *testing.T) {
		id, err := svc.RequireAuthenticated(testCaller("u1", "a@example.com"))
		require.NoError(t, err)
		require.Equal(t, "u1", id)
	})
}

func TestRequireAdmin(t *testing.T) {
	t.Parallel()

	svc := &PolicyService{}

	t.Run("rejects non-admin claims", func(t *testing.T) {
		_, err := svc.RequireAdmin(testCaller("u1", "a@example.com"))
		require.Equal(t, KindPermissionDenied, KindOf(err))
	})

	t.Run("accepts admin flag", func(t *testing.T) {
		id, err := svc.RequireAdmin(adminCaller("u1", "a@example.com"))
		require.NoError(t, err)
		require.Equal(t, "u1", id)
	})

	t.Run("accepts admin role claim", func(t *testing.T) {
		c := testCaller("u1", "a@example.com")
		c.Claims.Role = domain.RoleSuperAdmin
		_, err := svc.RequireAdmin(c)
		require.NoError(t, err)
	})
}

func TestRequireAdminOrAllowlisted(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	svc := &PolicyService{Store: st}

	t.Run("denies plain users", func(t *testing.T) {
		_, err := svc.RequireAdminOrAllowlisted(ctx, testCaller("plain", "plain@example.com"))
		require.Equal(t, KindPermissionDenied, KindOf(err))
	})

	t.Run("allows admin claims without any config", func(t *testing.T) {
		_, err := svc.RequireAdminOrAllowlisted(ctx, adminCaller("a1", "admin@example.com"))
		require.NoError(t, err)
	})

	t.Run("allows allowlisted email case-insensitively", func(t *testing.T) {
		require.NoError(t, st.Config().PutAllowlistConfig(ctx, domain.AllowlistConfig{
			AdminEmails: []string{"Ops@Example.com"},
			UpdatedAt:   time.Now().UTC(),
		}))

		_, err := svc.RequireAdminOrAllowlisted(ctx, testCaller("u2", "ops@example.com"))
		require.NoError(t, err)
	})

	t.Run("allows allowlisted user id", func(t *testing.T) {
		require.NoError(t, st.Config().PutAllowlistConfig(ctx, domain.AllowlistConfig{
			AdminUserIDs: []string{"uid-42"},
			UpdatedAt:    time.Now().UTC(),
		}))

		_, err := svc.RequireAdminOrAllowlisted(ctx, testCaller("uid-42", ""))
		require.NoError(t, err)
	})

	t.Run("falls back to the stored admin role", func(t *testing.T) {
		u := seedUser(t, st, domain.User{Email: "stored@example.com", Role: domain.RoleAdmin})

		_, err := svc.RequireAdminOrAllowlisted(ctx, testCaller(u.ID, u.Email))
		require.NoError(t, err)
	})
}

func TestAllowlistSnapshotDegradesToEmpty(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	svc := &PolicyService{Store: st}

	// Never written: the snapshot is the empty deny-everything config.
	cfg := svc.AllowlistSnapshot(ctx)
	require.Empty(t, cfg.AdminEmails)
	require.False(t, cfg.AllowsAdmin("anyone", "anyone@example.com"))
}
