package sqlite

import (
	"context"
	"strings"
	"time"

	"github.com/merchhq/storeguard/internal/guard/domain"
)

type securityEventsRepo struct {
	db dbtx
}

func (r *securityEventsRepo) InsertSecurityEvent(ctx context.Context, e domain.SecurityEvent) error {
	critical := 0
	if e.Critical {
		critical = 1
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO security_events (id, event_type, reason, actor_id, target_id, metadata, critical, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Type, e.Reason, e.ActorID, e.TargetID,
		marshalJSONMap(e.Metadata), critical, e.CreatedAt.UTC())
	return err
}

func (r *securityEventsRepo) ListSecurityEventsPage(ctx context.Context, from, to time.Time, afterID string, limit int) ([]domain.SecurityEvent, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, event_type, reason, actor_id, target_id, metadata, critical, created_at
		   FROM security_events
		  WHERE created_at >= ? AND created_at < ? AND id > ?
		  ORDER BY id
		  LIMIT ?`,
		from.UTC(), to.UTC(), afterID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []domain.SecurityEvent
	for rows.Next() {
		var (
			e        domain.SecurityEvent
			metadata string
			critical int
		)
		if err := rows.Scan(&e.ID, &e.Type, &e.Reason, &e.ActorID, &e.TargetID,
			&metadata, &critical, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Metadata = unmarshalJSONMap[string](metadata)
		e.Critical = critical != 0
		events = append(events, e)
	}
	return events, rows.Err()
}

// DeleteOldEvents removes one bounded batch of retention-eligible rows.
// Critical events are excluded regardless of age or type.
func (r *securityEventsRepo) DeleteOldEvents(ctx context.Context, cutoff time.Time, types []string, limit int) (int64, error) {
	if len(types) == 0 {
		return 0, nil
	}

	placeholders := strings.Repeat("?,", len(types))
	placeholders = placeholders[:len(placeholders)-1]

	args := make([]any, 0, len(types)+2)
	args = append(args, cutoff.UTC())
	for _, t := range types {
		args = append(args, t)
	}
	args = append(args, limit)

	res, err := r.db.ExecContext(ctx,
		`DELETE FROM security_events WHERE id IN (
		   SELECT id FROM security_events
		    WHERE created_at < ? AND critical = 0 AND event_type IN (`+placeholders+`)
		    ORDER BY id LIMIT ?)`,
		args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
