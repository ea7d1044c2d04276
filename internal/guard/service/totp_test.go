package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/merchhq/storeguard/internal/guard/domain"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/require"
)

func newTOTPService(t *testing.T) *TOTPService {
	t.Helper()

	st := newTestStore(t)
	return &TOTPService{
		Store:  st,
		Policy: &PolicyService{Store: st},
		Audit:  &AuditService{Store: st},
		Issuer: "storeguard-test",
	}
}

func TestGenerateSecret(t *testing.T) {
	ctx := context.Background()
	svc := newTOTPService(t)
	caller := testCaller("u1", "alice@example.com")

	t.Run("requires authentication", func(t *testing.T) {
		_, err := svc.GenerateSecret(ctx, domain.Caller{})
		require.Equal(t, KindUnauthenticated, KindOf(err))
	})

	t.Run("provisions a secret with QR payload", func(t *testing.T) {
		enrollment, err := svc.GenerateSecret(ctx, caller)
		require.NoError(t, err)
		require.Contains(t, enrollment.OtpauthURL, "otpauth://totp/")
		require.Contains(t, enrollment.OtpauthURL, "alice%40example.com")
		require.True(t, strings.HasPrefix(enrollment.QRDataURL, "data:image/png;base64,"))

		user, err := svc.Store.Users().GetUserByID(ctx, caller.ID)
		require.NoError(t, err)
		require.NotEmpty(t, user.TOTP.Secret)
		require.False(t, user.TOTP.Enabled)
	})

	t.Run("re-provisioning replaces the unconfirmed secret", func(t *testing.T) {
		before, err := svc.Store.Users().GetUserByID(ctx, caller.ID)
		require.NoError(t, err)

		_, err = svc.GenerateSecret(ctx, caller)
		require.NoError(t, err)

		after, err := svc.Store.Users().GetUserByID(ctx, caller.ID)
		require.NoError(t, err)
		require.NotEqual(t, before.TOTP.Secret, after.TOTP.Secret)
	})

	t.Run("rejected once enabled", func(t *testing.T) {
		user, err := svc.Store.Users().GetUserByID(ctx, caller.ID)
		require.NoError(t, err)

		code, err := totp.GenerateCode(user.TOTP.Secret, time.Now())
		require.NoError(t, err)
		require.NoError(t, svc.VerifyAndEnable(ctx, caller, code))

		_, err = svc.GenerateSecret(ctx, caller)
		require.Equal(t, KindFailedPrecondition, KindOf(err))
		require.Equal(t, "totp_already_enabled", ReasonOf(err))
	})
}

func TestGenerateSecretWithoutEmail(t *testing.T) {
	// The identity provider does not guarantee an email claim, so
	// several accounts may be observed without one.
	ctx := context.Background()
	svc := newTOTPService(t)

	_, err := svc.GenerateSecret(ctx, testCaller("no-email-1", ""))
	require.NoError(t, err)

	_, err = svc.GenerateSecret(ctx, testCaller("no-email-2", ""))
	require.NoError(t, err)

	user, err := svc.Store.Users().GetUserByID(ctx, "no-email-2")
	require.NoError(t, err)
	require.Empty(t, user.Email)
	require.NotEmpty(t, user.TOTP.Secret)
}

func TestVerifyAndEnable(t *testing.T) {
	ctx := context.Background()
	svc := newTOTPService(t)
	caller := testCaller("u1", "alice@example.com")

	t.Run("rejects malformed codes before touching state", func(t *testing.T) {
		err := svc.VerifyAndEnable(ctx, caller, "12 34")
		require.Equal(t, KindInvalidArgument, KindOf(err))

		err = svc.VerifyAndEnable(ctx, caller, "12345a")
		require.Equal(t, KindInvalidArgument, KindOf(err))
	})

	t.Run("fails when no secret is provisioned", func(t *testing.T) {
		err := svc.VerifyAndEnable(ctx, caller, "123456")
		require.Equal(t, "totp_not_provisioned", ReasonOf(err))
	})

	t.Run("wrong code does not enable", func(t *testing.T) {
		_, err := svc.GenerateSecret(ctx, caller)
		require.NoError(t, err)

		err = svc.VerifyAndEnable(ctx, caller, "000000")
		require.Equal(t, KindPermissionDenied, KindOf(err))

		user, err := svc.Store.Users().GetUserByID(ctx, caller.ID)
		require.NoError(t, err)
		require.False(t, user.TOTP.Enabled)
	})

	t.Run("valid code enables, with separators tolerated", func(t *testing.T) {
		user, err := svc.Store.Users().GetUserByID(ctx, caller.ID)
		require.NoError(t, err)

		code, err := totp.GenerateCode(user.TOTP.Secret, time.Now())
		require.NoError(t, err)

		spaced := code[:3] + " " + code[3:]
		require.NoError(t, svc.VerifyAndEnable(ctx, caller, spaced))

		user, err = svc.Store.Users().GetUserByID(ctx, caller.ID)
		require.NoError(t, err)
		require.True(t, user.TOTP.Enabled)
		require.NotNil(t, user.TOTP.VerifiedAt)
	})

	t.Run("second enable is rejected", func(t *testing.T) {
		user, err := svc.Store.Users().GetUserByID(ctx, caller.ID)
		require.NoError(t, err)

		code, err := totp.GenerateCode(user.TOTP.Secret, time.Now())
		require.NoError(t, err)

		err = svc.VerifyAndEnable(ctx, caller, code)
		require.Equal(t, "totp_already_enabled", ReasonOf(err))
	})
}

func TestDisable(t *testing.T) {
	ctx := context.Background()
	svc := newTOTPService(t)
	caller := testCaller("u1", "alice@example.com")

	t.Run("idempotent with no record at all", func(t *testing.T) {
		require.NoError(t, svc.Disable(ctx, caller))
	})

	t.Run("clears secret and backup state", func(t *testing.T) {
		enableTOTPForTest(t, svc, caller)

		backup := &BackupCodeService{Store: svc.Store, Policy: svc.Policy, Audit: svc.Audit}
		codes, err := backup.Generate(ctx, caller)
		require.NoError(t, err)
		require.Len(t, codes, backupCodeCount)

		require.NoError(t, svc.Disable(ctx, caller))

		user, err := svc.Store.Users().GetUserByID(ctx, caller.ID)
		require.NoError(t, err)
		require.False(t, user.TOTP.Enabled)
		require.Empty(t, user.TOTP.Secret)
		require.Empty(t, user.BackupSalt)

		stored, err := svc.Store.BackupCodes().ListBackupCodes(ctx, caller.ID)
		require.NoError(t, err)
		require.Empty(t, stored)

		// And again, still fine.
		require.NoError(t, svc.Disable(ctx, caller))
	})
}

func TestStatus(t *testing.T) {
	ctx := context.Background()
	svc := newTOTPService(t)
	caller := testCaller("u1", "alice@example.com")

	t.Run("zero status without a record", func(t *testing.T) {
		status, err := svc.Status(ctx, caller)
		require.NoError(t, err)
		require.False(t, status.Enabled)
		require.False(t, status.HasBackupCodes)
		require.Zero(t, status.RemainingBackupCodes)
	})

	t.Run("counts unused backup codes", func(t *testing.T) {
		enableTOTPForTest(t, svc, caller)

		backup := &BackupCodeService{Store: svc.Store, Policy: svc.Policy, Audit: svc.Audit}
		codes, err := backup.Generate(ctx, caller)
		require.NoError(t, err)

		require.NoError(t, backup.Verify(ctx, caller, codes[0]))

		status, err := svc.Status(ctx, caller)
		require.NoError(t, err)
		require.True(t, status.Enabled)
		require.True(t, status.HasBackupCodes)
		require.Equal(t, backupCodeCount-1, status.RemainingBackupCodes)
	})
}

func TestVerifyForElevatedAction(t *testing.T) {
	ctx := context.Background()
	svc := newTOTPService(t)
	caller := testCaller("u1", "alice@example.com")

	t.Run("requires enabled TOTP", func(t *testing.T) {
		_, err := svc.VerifyForElevatedAction(ctx, caller, "123456")
		require.Equal(t, "totp_not_enabled", ReasonOf(err))
	})

	t.Run("valid code passes", func(t *testing.T) {
		secret := enableTOTPForTest(t, svc, caller)

		code, err := totp.GenerateCode(secret, time.Now())
		require.NoError(t, err)

		verifiedAt, err := svc.VerifyForElevatedAction(ctx, caller, code)
		require.NoError(t, err)
		require.WithinDuration(t, time.Now().UTC(), verifiedAt, 5*time.Second)
	})

	t.Run("wrong code fails", func(t *testing.T) {
		_, err := svc.VerifyForElevatedAction(ctx, caller, "000000")
		require.Equal(t, KindPermissionDenied, KindOf(err))
	})
}

// enableTOTPForTest walks the real enrollment flow and returns the
// active secret.
func enableTOTPForTest(t *testing.T, svc *TOTPService, caller domain.Caller) string {
	t.Helper()
	ctx := context.Background()

	_, err := svc.GenerateSecret(ctx, caller)
	require.NoError(t, err)

	user, err := svc.Store.Users().GetUserByID(ctx, caller.ID)
	require.NoError(t, err)

	code, err := totp.GenerateCode(user.TOTP.Secret, time.Now())
	require.NoError(t, err)
	require.NoError(t, svc.VerifyAndEnable(ctx, caller, code))

	return user.TOTP.Secret
}
