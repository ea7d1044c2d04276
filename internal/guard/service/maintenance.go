package service

import (
	"context"
	"log/slog"
	"time"
)

// MaintenanceService runs the scheduled jobs: the daily rollup
// aggregation, security-event retention cleanup, and stale rate-counter
// pruning. Each job fires at most once per UTC day at its configured
// hour; the at-most-once tracking is in-memory, so a restart may rerun
// a job, which every job tolerates by being idempotent.
type MaintenanceService struct {
	Audit  *AuditService
	Logger *slog.Logger

	// AggregateHour and CleanupHour are UTC hours [0,24). Defaults:
	// aggregation at 01:00, cleanup at 03:00.
	AggregateHour int
	CleanupHour   int

	// CheckInterval is how often the worker wakes to compare the clock
	// against the schedule. Defaults to 5 minutes.
	CheckInterval time.Duration

	lastAggregateDay string
	lastCleanupDay   string

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewMaintenanceService wires the scheduler with sane defaults.
func NewMaintenanceService(audit *AuditService, logger *slog.Logger) *MaintenanceService {
	return &MaintenanceService{
		Audit:         audit,
		Logger:        logger,
		AggregateHour: 1,
		CleanupHour:   3,
		CheckInterval: 5 * time.Minute,
		stopCh:        make(chan struct{}),
		doneCh:        make(chan struct{}),
	}
}

// Start launches the background worker. Non-blocking; call Stop to
// shut it down.
func (s *MaintenanceService) Start() {
	go s.run()
	s.Logger.Info("maintenance worker started",
		"aggregate_hour_utc", s.AggregateHour, "cleanup_hour_utc", s.CleanupHour)
}

// Stop shuts the worker down, waiting for any in-progress job.
func (s *MaintenanceService) Stop() {
	close(s.stopCh)
	<-s.doneCh
	s.Logger.Info("maintenance worker stopped")
}

func (s *MaintenanceService) run() {
	defer close(s.doneCh)

	interval := s.CheckInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.tick(time.Now().UTC())
		case <-s.stopCh:
			return
		}
	}
}

// tick runs whichever jobs are due at the given instant.
func (s *MaintenanceService) tick(now time.Time) {
	day := now.Format("2006-01-02")

	if now.Hour() >= s.AggregateHour && s.lastAggregateDay != day {
		s.lastAggregateDay = day
		s.RunAggregation(context.Background())
	}

	if now.Hour() >= s.CleanupHour && s.lastCleanupDay != day {
		s.lastCleanupDay = day
		s.RunCleanup(context.Background())
	}
}

// RunAggregation rolls up the previous UTC day. Also the handler behind
// the manual trigger endpoint.
func (s *MaintenanceService) RunAggregation(ctx context.Context) {
	rollup, err := s.Audit.AggregatePreviousDay(ctx)
	if err != nil {
		s.Logger.Error("daily rollup aggregation failed", "error", err)
		return
	}
	s.Logger.Info("daily rollup aggregated",
		"date", rollup.DateKey, "events", rollup.Total)
}

// RunCleanup purges retention-expired events and stale rate counters.
// The two deletions are independent; a failure in one does not stop the
// other.
func (s *MaintenanceService) RunCleanup(ctx context.Context) {
	deleted, err := s.Audit.CleanupRetention(ctx)
	if err != nil {
		s.Logger.Error("retention cleanup failed", "error", err, "deleted", deleted)
	} else {
		s.Logger.Info("retention cleanup completed", "deleted", deleted)
	}

	cutoff := time.Now().UTC().Add(-24 * time.Hour)
	pruned, err := s.Audit.Store.RateCounters().DeleteStaleRateCounters(ctx, cutoff)
	if err != nil {
		s.Logger.Error("rate counter pruning failed", "error", err)
	} else {
		s.Logger.Debug("stale rate counters pruned", "deleted", pruned)
	}
}
