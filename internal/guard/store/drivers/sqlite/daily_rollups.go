package sqlite

import (
	"context"

	"github.com/merchhq/storeguard/internal/guard/domain"
)

type dailyRollupsRepo struct {
	db dbtx
}

func (r *dailyRollupsRepo) UpsertDailyRollup(ctx context.Context, ru domain.DailyRollup) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO daily_rollups (date_key, total, by_type, by_reason, by_admin_action, by_admin_actor, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(date_key) DO UPDATE SET
		   total = excluded.total,
		   by_type = excluded.by_type,
		   by_reason = excluded.by_reason,
		   by_admin_action = excluded.by_admin_action,
		   by_admin_actor = excluded.by_admin_actor,
		   updated_at = excluded.updated_at`,
		ru.DateKey, ru.Total,
		marshalJSONMap(ru.ByType), marshalJSONMap(ru.ByReason),
		marshalJSONMap(ru.ByAdminAction), marshalJSONMap(ru.ByAdminActor),
		ru.UpdatedAt.UTC())
	return err
}

func (r *dailyRollupsRepo) GetDailyRollup(ctx context.Context, dateKey string) (domain.DailyRollup, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT date_key, total, by_type, by_reason, by_admin_action, by_admin_actor, updated_at
		   FROM daily_rollups WHERE date_key = ?`, dateKey)

	var (
		ru                                       domain.DailyRollup
		byType, byReason, byAdmAction, byAdmAsct string
	)
	err := row.Scan(&ru.DateKey, &ru.Total, &byType, &byReason, &byAdmAction, &byAdmAsct, &ru.UpdatedAt)
	if err != nil {
		return domain.DailyRollup{}, mapNotFound(err)
	}

	ru.ByType = unmarshalJSONMap[int](byType)
	ru.ByReason = unmarshalJSONMap[int](byReason)
	ru.ByAdminAction = unmarshalJSONMap[int](byAdmAction)
	ru.ByAdminActor = unmarshalJSONMap[int](byAdmAsct)
	return ru, nil
}

func (r *dailyRollupsRepo) ListDailyRollups(ctx context.Context, fromKey, toKey string) ([]domain.DailyRollup, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT date_key, total, by_type, by_reason, by_admin_action, by_admin_actor, updated_at
		   FROM daily_rollups
		  WHERE date_key >= ? AND date_key <= ?
		  ORDER BY date_key`,
		fromKey, toKey)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rollups []domain.DailyRollup
	for rows.Next() {
		var (
			ru                                       domain.DailyRollup
			byType, byReason, byAdmAction, byAdmAsct string
		)
		if err := rows.Scan(&ru.DateKey, &ru.Total, &byType, &byReason,
			&byAdmAction, &byAdmAsct, &ru.UpdatedAt); err != nil {
			return nil, err
		}
		ru.ByType = unmarshalJSONMap[int](byType)
		ru.ByReason = unmarshalJSONMap[int](byReason)
		ru.ByAdminAction = unmarshalJSONMap[int](byAdmAction)
		ru.ByAdminActor = unmarshalJSONMap[int](byAdmAsct)
		rollups = append(rollups, ru)
	}
	return rollups, rows.Err()
}
