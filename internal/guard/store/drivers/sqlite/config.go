package sqlite

import (
	"context"
	"encoding/json"
	"time"

	"github.com/merchhq/storeguard/internal/guard/domain"
)

type configRepo struct {
	db dbtx
}

// The allowlist lives in a single-row document so operators can edit it
// without a schema change; readers always see the latest write.
func (r *configRepo) GetAllowlistConfig(ctx context.Context) (domain.AllowlistConfig, error) {
	var (
		doc       string
		updatedAt time.Time
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT document, updated_at FROM config WHERE id = 1`).Scan(&doc, &updatedAt)
	if err != nil {
		return domain.AllowlistConfig{}, mapNotFound(err)
	}

	var cfg domain.AllowlistConfig
	if err := json.Unmarshal([]byte(doc), &cfg); err != nil {
		return domain.AllowlistConfig{}, err
	}
	cfg.UpdatedAt = updatedAt
	return cfg, nil
}

func (r *configRepo) PutAllowlistConfig(ctx context.Context, cfg domain.AllowlistConfig) error {
	now := time.Now().UTC()
	cfg.UpdatedAt = now

	doc, err := json.Marshal(cfg)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO config (id, document, updated_at) VALUES (1, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET document = excluded.document, updated_at = excluded.updated_at`,
		string(doc), now)
	return err
}
