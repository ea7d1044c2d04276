package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/merchhq/storeguard/internal/guard/domain"
	"github.com/merchhq/storeguard/internal/guard/store"
	"github.com/merchhq/storeguard/pkg/idx"
	"github.com/merchhq/storeguard/pkg/slogx"
)

const (
	// aggregatePageSize and aggregateMaxPages bound a single rollup run
	// so the job always terminates, even on a pathological day.
	aggregatePageSize = 500
	aggregateMaxPages = 40

	// retentionBatchSize and retentionMaxBatches bound a single cleanup
	// run the same way.
	retentionBatchSize  = 200
	retentionMaxBatches = 50

	// Default retention window for non-critical events.
	DefaultRetentionWindow = 30 * 24 * time.Hour
)

// purgeableEventTypes is the non-critical type set eligible for
// retention deletion. Admin elevation records are kept indefinitely.
var purgeableEventTypes = []string{
	domain.EventRegistrationBlocked,
	domain.EventTOTPEnabled,
	domain.EventTOTPDisabled,
	domain.EventBackupCodesIssued,
	domain.EventBackupCodeUsed,
}

// AuditService is the append-only security event log plus the two
// scheduled jobs that consume it.
type AuditService struct {
	Store store.Store

	// RetentionWindow overrides DefaultRetentionWindow when positive.
	RetentionWindow time.Duration
}

// Record appends an event best-effort. Audit is observability, not a
// correctness gate: a write failure is logged and swallowed so it can
// never fail the operation that triggered it.
func (s *AuditService) Record(ctx context.Context, e domain.SecurityEvent) {
	if e.ID == "" {
		e.ID = idx.New().String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	if err := s.Store.SecurityEvents().InsertSecurityEvent(ctx, e); err != nil {
		slogx.FromContext(ctx).Error("audit write failed",
			"event_type", e.Type, "reason", e.Reason, "err", err)
	}
}

// AggregateDay recomputes the rollup for the UTC day containing t and
// upserts it. Recomputing from the raw events rather than adding deltas
// makes re-runs idempotent under at-least-once scheduling.
func (s *AuditService) AggregateDay(ctx context.Context, t time.Time) (domain.DailyRollup, error) {
	dayStart := t.UTC().Truncate(24 * time.Hour)
	dayEnd := dayStart.Add(24 * time.Hour)

	rollup := domain.DailyRollup{
		DateKey:       domain.DateKey(dayStart),
		ByType:        map[string]int{},
		ByReason:      map[string]int{},
		ByAdminAction: map[string]int{},
		ByAdminActor:  map[string]int{},
	}

	cursor := ""
	for page := 0; page < aggregateMaxPages; page++ {
		events, err := s.Store.SecurityEvents().ListSecurityEventsPage(
			ctx, dayStart, dayEnd, cursor, aggregatePageSize)
		if err != nil {
			return domain.DailyRollup{}, fmt.Errorf("list events for %s: %w", rollup.DateKey, err)
		}
		if len(events) == 0 {
			break
		}

		for _, e := range events {
			rollup.Total++
			rollup.ByType[e.Type]++
			if e.Reason != "" {
				rollup.ByReason[e.Reason]++
			}
			if strings.HasPrefix(e.Type, "admin_") {
				rollup.ByAdminAction[e.Type]++
				if e.ActorID != "" {
					rollup.ByAdminActor[e.ActorID]++
				}
			}
		}

		cursor = events[len(events)-1].ID
		if len(events) < aggregatePageSize {
			break
		}
	}

	rollup.UpdatedAt = time.Now().UTC()
	if err := s.Store.DailyRollups().UpsertDailyRollup(ctx, rollup); err != nil {
		return domain.DailyRollup{}, fmt.Errorf("upsert rollup %s: %w", rollup.DateKey, err)
	}

	return rollup, nil
}

// AggregatePreviousDay is the scheduled entry point: it rolls up the
// previous UTC day.
func (s *AuditService) AggregatePreviousDay(ctx context.Context) (domain.DailyRollup, error) {
	return s.AggregateDay(ctx, time.Now().UTC().AddDate(0, 0, -1))
}

// CleanupRetention deletes retention-eligible events in bounded batches
// and reports how many rows went. Events flagged critical, and any type
// outside the purgeable set, are never touched. The delete-and-stop-
// when-empty loop keeps re-runs safe.
func (s *AuditService) CleanupRetention(ctx context.Context) (int64, error) {
	window := s.RetentionWindow
	if window <= 0 {
		window = DefaultRetentionWindow
	}
	cutoff := time.Now().UTC().Add(-window)

	var total int64
	for batch := 0; batch < retentionMaxBatches; batch++ {
		n, err := s.Store.SecurityEvents().DeleteOldEvents(ctx, cutoff, purgeableEventTypes, retentionBatchSize)
		if err != nil {
			return total, fmt.Errorf("delete old events: %w", err)
		}
		total += n
		if n == 0 {
			break
		}
	}

	return total, nil
}

// RegistrationBlockStats sums registration-block reasons over the last
// days rollups (today inclusive).
type RegistrationBlockStats struct {
	Days     int            `json:"days"`
	Total    int            `json:"total"`
	ByReason map[string]int `json:"byReason"`
}

func (s *AuditService) RegistrationBlockStats(ctx context.Context, days int) (RegistrationBlockStats, error) {
	rollups, err := s.recentRollups(ctx, days)
	if err != nil {
		return RegistrationBlockStats{}, err
	}

	stats := RegistrationBlockStats{Days: days, ByReason: map[string]int{}}
	for _, ru := range rollups {
		stats.Total += ru.ByType[domain.EventRegistrationBlocked]
		for reason, n := range ru.ByReason {
			switch reason {
			case domain.ReasonHoneypot, domain.ReasonInvalidEmail,
				domain.ReasonBlockedDomain, domain.ReasonBotUserAgent,
				domain.ReasonRateLimit:
				stats.ByReason[reason] += n
			}
		}
	}
	return stats, nil
}

// SecurityLogsDailyStats returns the per-day rollups for the last days
// plus grand totals.
type SecurityLogsDailyStats struct {
	Days   int                  `json:"days"`
	Total  int                  `json:"total"`
	ByType map[string]int       `json:"byType"`
	Daily  []domain.DailyRollup `json:"daily"`
}

func (s *AuditService) SecurityLogsDailyStats(ctx context.Context, days int) (SecurityLogsDailyStats, error) {
	rollups, err := s.recentRollups(ctx, days)
	if err != nil {
		return SecurityLogsDailyStats{}, err
	}

	stats := SecurityLogsDailyStats{Days: days, ByType: map[string]int{}, Daily: rollups}
	for _, ru := range rollups {
		stats.Total += ru.Total
		for t, n := range ru.ByType {
			stats.ByType[t] += n
		}
	}
	return stats, nil
}

func (s *AuditService) recentRollups(ctx context.Context, days int) ([]domain.DailyRollup, error) {
	if days <= 0 {
		days = 7
	}
	now := time.Now().UTC()
	from := domain.DateKey(now.AddDate(0, 0, -(days - 1)))
	to := domain.DateKey(now)

	rollups, err := s.Store.DailyRollups().ListDailyRollups(ctx, from, to)
	if err != nil {
		return nil, Internal(err)
	}
	return rollups, nil
}
