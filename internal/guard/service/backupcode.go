package service

import (
	"context"
	"errors"
	"strconv"

	"github.com/merchhq/storeguard/internal/guard/domain"
	"github.com/merchhq/storeguard/internal/guard/store"
	"github.com/merchhq/storeguard/pkg/cryptox"
)

const backupCodeCount = 10

// BackupCodeService is the recovery-code vault: it issues code sets and
// enforces single use. Plaintext codes exist only in the generate
// response; storage holds the per-user salt and salted hashes.
type BackupCodeService struct {
	Store  store.Store
	Policy *PolicyService
	Audit  *AuditService
}

// Generate issues a fresh set of codes, replacing any prior set and
// resetting used state. Requires TOTP to be enabled first.
func (s *BackupCodeService) Generate(ctx context.Context, caller domain.Caller) ([]string, error) {
	if _, err := s.Policy.RequireAuthenticated(caller); err != nil {
		return nil, err
	}

	user, err := ensureUser(ctx, s.Store, caller)
	if err != nil {
		return nil, err
	}
	if !user.TOTP.Enabled {
		return nil, FailedPrecondition("totp_not_enabled",
			"enable TOTP before generating backup codes")
	}

	salt, err := cryptox.NewBackupCodeSalt()
	if err != nil {
		return nil, Internal(err)
	}

	codes := make([]string, backupCodeCount)
	hashes := make([]string, backupCodeCount)
	for i := range codes {
		code, err := cryptox.GenerateBackupCode()
		if err != nil {
			return nil, Internal(err)
		}
		codes[i] = code
		hashes[i] = cryptox.HashBackupCode(salt, code)
	}

	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.Users().SetBackupSalt(ctx, user.ID, salt); err != nil {
			return err
		}
		return tx.BackupCodes().ReplaceBackupCodes(ctx, user.ID, hashes)
	})
	if err != nil {
		return nil, Internal(err)
	}

	s.Audit.Record(ctx, domain.SecurityEvent{
		Type:     domain.EventBackupCodesIssued,
		ActorID:  user.ID,
		Metadata: map[string]string{"count": strconv.Itoa(backupCodeCount)},
	})

	return codes, nil
}

// Verify consumes one backup code. The check-then-mark sequence runs in
// a transaction with a conditional write, so a losing concurrent
// attempt with the same code surfaces as already-used rather than a
// double acceptance.
func (s *BackupCodeService) Verify(ctx context.Context, caller domain.Caller, code string) error {
	if _, err := s.Policy.RequireAuthenticated(caller); err != nil {
		return err
	}
	if cryptox.NormalizeBackupCode(code) == "" {
		return InvalidArgument("empty_code", "backup code is required")
	}

	user, err := s.Store.Users().GetUserByID(ctx, caller.ID)
	if errors.Is(err, store.ErrNotFound) || (err == nil && user.BackupSalt == "") {
		return FailedPrecondition("no_backup_codes", "no backup codes have been generated")
	}
	if err != nil {
		return Internal(err)
	}

	hash := cryptox.HashBackupCode(user.BackupSalt, code)

	var verr error
	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		codes, err := tx.BackupCodes().ListBackupCodes(ctx, user.ID)
		if err != nil {
			return err
		}
		if len(codes) == 0 {
			verr = FailedPrecondition("no_backup_codes", "no backup codes have been generated")
			return nil
		}

		var match *domain.BackupCode
		for i := range codes {
			if codes[i].CodeHash == hash {
				match = &codes[i]
				break
			}
		}
		if match == nil {
			verr = PermissionDenied("invalid_backup_code", "backup code not recognized")
			return nil
		}
		if match.UsedAt != nil {
			verr = FailedPrecondition("backup_code_used", "backup code already used")
			return nil
		}

		ok, err := tx.BackupCodes().MarkBackupCodeUsed(ctx, user.ID, hash)
		if err != nil {
			return err
		}
		if !ok {
			// Lost the race against a concurrent verification.
			verr = FailedPrecondition("backup_code_used", "backup code already used")
		}
		return nil
	})
	if err != nil {
		return Internal(err)
	}
	if verr != nil {
		return verr
	}

	s.Audit.Record(ctx, domain.SecurityEvent{
		Type:    domain.EventBackupCodeUsed,
		ActorID: user.ID,
	})
	return nil
}
