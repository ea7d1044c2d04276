package service

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image/png"
	"strings"
	"time"

	"github.com/merchhq/storeguard/internal/guard/domain"
	"github.com/merchhq/storeguard/internal/guard/store"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const qrImageSize = 200 // px, comfortably scannable on retina screens

// TOTPService drives the per-user TOTP state machine:
// NoSecret -> Provisioned -> Enabled. verifyAndEnable is the only
// transition into Enabled.
type TOTPService struct {
	Store  store.Store
	Policy *PolicyService
	Audit  *AuditService
	Issuer string // issuer label shown in authenticator apps
}

// TOTPEnrollment is returned from secret generation. The QR data URL
// embeds the same otpauth URI as a scannable PNG.
type TOTPEnrollment struct {
	OtpauthURL string
	QRDataURL  string
}

// TOTPStatus summarizes the caller's second-factor state.
type TOTPStatus struct {
	Enabled              bool
	HasBackupCodes       bool
	RemainingBackupCodes int
}

// GenerateSecret provisions a fresh secret for the caller. Safe to call
// repeatedly before confirmation (the prior unconfirmed secret is
// overwritten); rejected once TOTP is enabled.
func (s *TOTPService) GenerateSecret(ctx context.Context, caller domain.Caller) (TOTPEnrollment, error) {
	if _, err := s.Policy.RequireAuthenticated(caller); err != nil {
		return TOTPEnrollment{}, err
	}

	user, err := ensureUser(ctx, s.Store, caller)
	if err != nil {
		return TOTPEnrollment{}, err
	}
	if user.TOTP.Enabled {
		return TOTPEnrollment{}, FailedPrecondition("totp_already_enabled",
			"TOTP is already enabled; disable it before re-provisioning")
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.Issuer,
		AccountName: accountLabel(user),
		Period:      30,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return TOTPEnrollment{}, Internal(fmt.Errorf("generate TOTP key: %w", err))
	}

	qr, err := renderQRDataURL(key)
	if err != nil {
		return TOTPEnrollment{}, Internal(err)
	}

	if err := s.Store.Users().SetTOTPSecret(ctx, user.ID, key.Secret()); err != nil {
		return TOTPEnrollment{}, Internal(err)
	}

	return TOTPEnrollment{OtpauthURL: key.URL(), QRDataURL: qr}, nil
}

// VerifyAndEnable checks a 6-digit code against the provisioned secret
// and, on success, flips the account into Enabled.
func (s *TOTPService) VerifyAndEnable(ctx context.Context, caller domain.Caller, code string) error {
	if _, err := s.Policy.RequireAuthenticated(caller); err != nil {
		return err
	}

	code, err := normalizeTOTPCode(code)
	if err != nil {
		return err
	}

	user, err := ensureUser(ctx, s.Store, caller)
	if err != nil {
		return err
	}
	if user.TOTP.Secret == "" {
		return FailedPrecondition("totp_not_provisioned", "no TOTP secret provisioned")
	}
	if user.TOTP.Enabled {
		return FailedPrecondition("totp_already_enabled", "TOTP is already enabled")
	}

	if !totp.Validate(code, user.TOTP.Secret) {
		return PermissionDenied("invalid_totp_code", "TOTP code did not match")
	}

	if err := s.Store.Users().EnableTOTP(ctx, user.ID); err != nil {
		return Internal(err)
	}

	s.Audit.Record(ctx, domain.SecurityEvent{
		Type:    domain.EventTOTPEnabled,
		ActorID: user.ID,
	})
	return nil
}

// Disable clears the secret, enabled flag and all backup-code state.
// Idempotent and safe from any state.
func (s *TOTPService) Disable(ctx context.Context, caller domain.Caller) error {
	if _, err := s.Policy.RequireAuthenticated(caller); err != nil {
		return err
	}

	_, err := s.Store.Users().GetUserByID(ctx, caller.ID)
	if errors.Is(err, store.ErrNotFound) {
		return nil // nothing to clear
	}
	if err != nil {
		return Internal(err)
	}

	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.BackupCodes().DeleteAllBackupCodes(ctx, caller.ID); err != nil {
			return err
		}
		return tx.Users().ClearTOTP(ctx, caller.ID)
	})
	if err != nil {
		return Internal(err)
	}

	s.Audit.Record(ctx, domain.SecurityEvent{
		Type:    domain.EventTOTPDisabled,
		ActorID: caller.ID,
	})
	return nil
}

// Status never fails for an authenticated caller; a missing record just
// reads as everything-off.
func (s *TOTPService) Status(ctx context.Context, caller domain.Caller) (TOTPStatus, error) {
	if _, err := s.Policy.RequireAuthenticated(caller); err != nil {
		return TOTPStatus{}, err
	}

	user, err := s.Store.Users().GetUserByID(ctx, caller.ID)
	if errors.Is(err, store.ErrNotFound) {
		return TOTPStatus{}, nil
	}
	if err != nil {
		return TOTPStatus{}, Internal(err)
	}

	codes, err := s.Store.BackupCodes().ListBackupCodes(ctx, caller.ID)
	if err != nil {
		return TOTPStatus{}, Internal(err)
	}

	remaining := 0
	for _, c := range codes {
		if c.UsedAt == nil {
			remaining++
		}
	}

	return TOTPStatus{
		Enabled:              user.TOTP.Enabled,
		HasBackupCodes:       len(codes) > 0,
		RemainingBackupCodes: remaining,
	}, nil
}

// VerifyForElevatedAction re-checks a code for an already-enabled
// account, gating sensitive actions. The caller-held "recently
// verified" window is owned by the calling layer.
func (s *TOTPService) VerifyForElevatedAction(ctx context.Context, caller domain.Caller, code string) (time.Time, error) {
	if _, err := s.Policy.RequireAuthenticated(caller); err != nil {
		return time.Time{}, err
	}

	code, err := normalizeTOTPCode(code)
	if err != nil {
		return time.Time{}, err
	}

	user, err := s.Store.Users().GetUserByID(ctx, caller.ID)
	if errors.Is(err, store.ErrNotFound) {
		return time.Time{}, FailedPrecondition("totp_not_enabled", "TOTP is not enabled")
	}
	if err != nil {
		return time.Time{}, Internal(err)
	}
	if !user.TOTP.Enabled {
		return time.Time{}, FailedPrecondition("totp_not_enabled", "TOTP is not enabled")
	}

	if !totp.Validate(code, user.TOTP.Secret) {
		return time.Time{}, PermissionDenied("invalid_totp_code", "TOTP code did not match")
	}

	return time.Now().UTC(), nil
}

// normalizeTOTPCode strips the separators users type and requires
// exactly six decimal digits.
func normalizeTOTPCode(code string) (string, error) {
	code = strings.TrimSpace(code)
	code = strings.ReplaceAll(code, " ", "")
	code = strings.ReplaceAll(code, "-", "")

	if len(code) != 6 {
		return "", InvalidArgument("invalid_code", "code must be 6 digits")
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return "", InvalidArgument("invalid_code", "code must be 6 digits")
		}
	}
	return code, nil
}

func accountLabel(user domain.User) string {
	if user.Email != "" {
		return user.Email
	}
	return user.ID
}

func renderQRDataURL(key *otp.Key) (string, error) {
	img, err := key.Image(qrImageSize, qrImageSize)
	if err != nil {
		return "", fmt.Errorf("render QR image: %w", err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", fmt.Errorf("encode QR png: %w", err)
	}

	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
