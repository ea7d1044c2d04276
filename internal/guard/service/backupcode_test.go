package service

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/merchhq/storeguard/internal/guard/domain"
	"github.com/stretchr/testify/require"
)

func newBackupCodeService(t *testing.T) (*BackupCodeService, *TOTPService) {
	t.Helper()

	st := newTestStore(t)
	policy := &PolicyService{Store: st}
	audit := &AuditService{Store: st}

	totpSvc := &TOTPService{Store: st, Policy: policy, Audit: audit, Issuer: "storeguard-test"}
	return &BackupCodeService{Store: st, Policy: policy, Audit: audit}, totpSvc
}

func TestBackupCodeGenerate(t *testing.T) {
	ctx := context.Background()
	svc, totpSvc := newBackupCodeService(t)
	caller := testCaller("u1", "alice@example.com")

	t.Run("requires TOTP enabled", func(t *testing.T) {
		_, err := svc.Generate(ctx, caller)
		require.Equal(t, "totp_not_enabled", ReasonOf(err))
	})

	t.Run("issues ten formatted codes", func(t *testing.T) {
		enableTOTPForTest(t, totpSvc, caller)

		codes, err := svc.Generate(ctx, caller)
		require.NoError(t, err)
		require.Len(t, codes, backupCodeCount)

		seen := map[string]bool{}
		for _, code := range codes {
			require.Regexp(t, `^[A-HJ-KM-NP-TV-Z2-9]{4}-[A-HJ-KM-NP-TV-Z2-9]{4}$`, code)
			require.False(t, seen[code], "codes must be unique")
			seen[code] = true
		}

		// Plaintext never hits storage.
		stored, err := svc.Store.BackupCodes().ListBackupCodes(ctx, caller.ID)
		require.NoError(t, err)
		require.Len(t, stored, backupCodeCount)
		for _, sc := range stored {
			require.False(t, seen[sc.CodeHash])
			require.False(t, strings.Contains(sc.CodeHash, "-"))
		}
	})

	t.Run("regeneration invalidates the old set", func(t *testing.T) {
		oldCodes, err := svc.Generate(ctx, caller)
		require.NoError(t, err)

		newCodes, err := svc.Generate(ctx, caller)
		require.NoError(t, err)

		err = svc.Verify(ctx, caller, oldCodes[0])
		require.Equal(t, KindPermissionDenied, KindOf(err))

		require.NoError(t, svc.Verify(ctx, caller, newCodes[0]))
	})
}

func TestBackupCodeVerify(t *testing.T) {
	ctx := context.Background()
	svc, totpSvc := newBackupCodeService(t)
	caller := testCaller("u1", "alice@example.com")

	t.Run("empty code is invalid", func(t *testing.T) {
		err := svc.Verify(ctx, caller, "  - ")
		require.Equal(t, "empty_code", ReasonOf(err))
	})

	t.Run("no codes generated yet", func(t *testing.T) {
		err := svc.Verify(ctx, caller, "AAAA-BBBB")
		require.Equal(t, "no_backup_codes", ReasonOf(err))
	})

	enableTOTPForTest(t, totpSvc, caller)
	codes, err := svc.Generate(ctx, caller)
	require.NoError(t, err)

	t.Run("unknown code is denied", func(t *testing.T) {
		err := svc.Verify(ctx, caller, "XXXX-XXXX")
		require.Equal(t, KindPermissionDenied, KindOf(err))
		require.Equal(t, "invalid_backup_code", ReasonOf(err))
	})

	t.Run("accepts lowercase and stripped separators once", func(t *testing.T) {
		messy := strings.ToLower(strings.ReplaceAll(codes[0], "-", " "))
		require.NoError(t, svc.Verify(ctx, caller, messy))

		err := svc.Verify(ctx, caller, codes[0])
		require.Equal(t, "backup_code_used", ReasonOf(err))
	})

	t.Run("concurrent redemption admits exactly one", func(t *testing.T) {
		code := codes[1]

		const attempts = 8
		var wg sync.WaitGroup
		results := make(chan error, attempts)

		for range attempts {
			wg.Add(1)
			go func() {
				defer wg.Done()
				results <- svc.Verify(ctx, caller, code)
			}()
		}
		wg.Wait()
		close(results)

		var ok, used int
		for err := range results {
			switch {
			case err == nil:
				ok++
			case ReasonOf(err) == "backup_code_used":
				used++
			default:
				t.Fatalf("unexpected error: %v", err)
			}
		}
		require.Equal(t, 1, ok)
		require.Equal(t, attempts-1, used)
	})

	t.Run("codes are scoped to their owner", func(t *testing.T) {
		other := testCaller("u2", "bob@example.com")
		seedUser(t, svc.Store, domain.User{ID: other.ID, Email: other.Email})

		err := svc.Verify(ctx, other, codes[2])
		require.Equal(t, "no_backup_codes", ReasonOf(err))
	})
}
