package sqlite

import (
	"context"
	"time"

	"github.com/merchhq/storeguard/internal/guard/domain"
)

type rateCountersRepo struct {
	db dbtx
}

func (r *rateCountersRepo) GetRateCounter(ctx context.Context, key string) (domain.RateCounter, error) {
	var c domain.RateCounter
	err := r.db.QueryRowContext(ctx,
		`SELECT key, window_start, count, last_attempt FROM rate_counters WHERE key = ?`,
		key).Scan(&c.Key, &c.WindowStart, &c.Count, &c.LastAttempt)
	if err != nil {
		return domain.RateCounter{}, mapNotFound(err)
	}
	return c, nil
}

func (r *rateCountersRepo) PutRateCounter(ctx context.Context, c domain.RateCounter) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO rate_counters (key, window_start, count, last_attempt)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET
		   window_start = excluded.window_start,
		   count = excluded.count,
		   last_attempt = excluded.last_attempt`,
		c.Key, c.WindowStart.UTC(), c.Count, c.LastAttempt.UTC())
	return err
}

func (r *rateCountersRepo) DeleteStaleRateCounters(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM rate_counters WHERE last_attempt < ?`, cutoff.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
