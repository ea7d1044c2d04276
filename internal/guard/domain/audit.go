package domain

import "time"

// Security event types recorded by this core.
const (
	EventRegistrationBlocked = "registration_blocked"
	EventAdminClaimsSet      = "admin_claims_set"
	EventTOTPEnabled         = "totp_enabled"
	EventTOTPDisabled        = "totp_disabled"
	EventBackupCodesIssued   = "backup_codes_generated"
	EventBackupCodeUsed      = "backup_code_used"
)

// SecurityEvent is an immutable append-only audit record. It is never
// updated. Only the retention job deletes events, and it skips rows
// flagged critical.
type SecurityEvent struct {
	ID        string // ULID, encodes creation time
	Type      string
	Reason    string
	ActorID   string
	TargetID  string
	Metadata  map[string]string
	Critical  bool
	CreatedAt time.Time
}

// DailyRollup is the pre-aggregated per-UTC-day summary of security
// events. DateKey is the primary key in YYYY-MM-DD form. Re-running the
// aggregation for a day replaces the tallies, so the job is idempotent.
type DailyRollup struct {
	DateKey       string
	Total         int
	ByType        map[string]int
	ByReason      map[string]int
	ByAdminAction map[string]int
	ByAdminActor  map[string]int
	UpdatedAt     time.Time
}

// DateKey formats t's UTC day in the rollup key form.
func DateKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
