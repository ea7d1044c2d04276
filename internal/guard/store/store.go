package store

import (
	"context"
	"errors"
	"time"

	"github.com/merchhq/storeguard/internal/guard/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
)

// Store is the root data access interface. Concrete drivers (sqlite for
// now) implement this. Sub-repositories keep concerns tidy and make the
// transactional boundaries explicit.
type Store interface {
	Users() Users
	BackupCodes() BackupCodes
	RateCounters() RateCounters
	SecurityEvents() SecurityEvents
	DailyRollups() DailyRollups
	Config() Config

	ApplyMigrations() error

	// Tx starts a read/write transaction and returns a Tx-scoped Store.
	// The caller MUST call Commit() or Rollback() on the returned Tx.
	Tx(ctx context.Context) (Tx, error)

	// WithTx executes fn within a transaction. If fn returns an error
	// the transaction is rolled back, otherwise it is committed. This
	// is the recommended way to run the rate-counter and backup-code
	// read-modify-write sequences.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	// Close releases underlying resources.
	Close() error

	// Ping verifies the database connection is still alive.
	Ping(ctx context.Context) error
}

// Tx is a transactional store. It embeds the same repos but adds
// Commit/Rollback.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}

type Users interface {
	// GetUserByID returns a user by identity key.
	GetUserByID(ctx context.Context, id string) (domain.User, error)

	// GetUserByEmail resolves a user by email (case-insensitive).
	GetUserByEmail(ctx context.Context, email string) (domain.User, error)

	// CreateUser inserts a new user record (id provided by the caller).
	CreateUser(ctx context.Context, u domain.User) error

	// UpdateRoleAndClaims sets the role and replaces the mirrored claims
	// document, bumping updated_at.
	UpdateRoleAndClaims(ctx context.Context, userID string, role domain.Role, claims map[string]any) error

	// SetTOTPSecret stores a fresh unconfirmed secret, clearing any
	// enabled/verified state from a prior enrollment.
	SetTOTPSecret(ctx context.Context, userID, secret string) error

	// EnableTOTP marks TOTP enabled and records the verification time.
	// The secret must already be provisioned.
	EnableTOTP(ctx context.Context, userID string) error

	// ClearTOTP removes the secret, enabled flag, timestamps and the
	// backup-code salt in one statement.
	ClearTOTP(ctx context.Context, userID string) error

	// SetBackupSalt replaces the per-user backup-code salt.
	SetBackupSalt(ctx context.Context, userID, salt string) error
}

type BackupCodes interface {
	// ReplaceBackupCodes deletes any existing codes for the user and
	// inserts the new hash set with empty used state.
	ReplaceBackupCodes(ctx context.Context, userID string, hashes []string) error

	// ListBackupCodes returns the stored codes in insertion order.
	ListBackupCodes(ctx context.Context, userID string) ([]domain.BackupCode, error)

	// MarkBackupCodeUsed flips a code to used if and only if it exists
	// and is still unused. Returns false when another writer won or the
	// hash is unknown, so single-use stays enforced under concurrency.
	MarkBackupCodeUsed(ctx context.Context, userID, codeHash string) (bool, error)

	// DeleteAllBackupCodes removes every code for the user.
	DeleteAllBackupCodes(ctx context.Context, userID string) error

	// CountRemainingBackupCodes returns how many codes are still unused.
	CountRemainingBackupCodes(ctx context.Context, userID string) (int, error)
}

type RateCounters interface {
	// GetRateCounter fetches a counter by its salted key.
	GetRateCounter(ctx context.Context, key string) (domain.RateCounter, error)

	// PutRateCounter upserts a counter row.
	PutRateCounter(ctx context.Context, c domain.RateCounter) error

	// DeleteStaleRateCounters drops counters idle since before cutoff.
	// Correctness never depends on this; it is housekeeping only.
	DeleteStaleRateCounters(ctx context.Context, cutoff time.Time) (int64, error)
}

type SecurityEvents interface {
	// InsertSecurityEvent appends one immutable event row.
	InsertSecurityEvent(ctx context.Context, e domain.SecurityEvent) error

	// ListSecurityEventsPage returns up to limit events created within
	// [from, to), with ID greater than afterID, ordered by ID. ULID
	// ordering doubles as creation ordering, which makes this a stable
	// pagination cursor.
	ListSecurityEventsPage(ctx context.Context, from, to time.Time, afterID string, limit int) ([]domain.SecurityEvent, error)

	// DeleteOldEvents removes up to limit non-critical events of the
	// given types created before cutoff, returning how many went.
	DeleteOldEvents(ctx context.Context, cutoff time.Time, types []string, limit int) (int64, error)
}

type DailyRollups interface {
	// UpsertDailyRollup replaces the rollup stored under its date key.
	UpsertDailyRollup(ctx context.Context, r domain.DailyRollup) error

	// GetDailyRollup fetches one day's rollup.
	GetDailyRollup(ctx context.Context, dateKey string) (domain.DailyRollup, error)

	// ListDailyRollups returns rollups with fromKey <= date_key <= toKey
	// ordered by date key ascending.
	ListDailyRollups(ctx context.Context, fromKey, toKey string) ([]domain.DailyRollup, error)
}

type Config interface {
	// GetAllowlistConfig reads the shared configuration document.
	// Returns ErrNotFound when it has never been written.
	GetAllowlistConfig(ctx context.Context) (domain.AllowlistConfig, error)

	// PutAllowlistConfig replaces the shared configuration document.
	PutAllowlistConfig(ctx context.Context, cfg domain.AllowlistConfig) error
}
