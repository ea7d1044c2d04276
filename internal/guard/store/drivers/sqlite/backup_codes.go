package sqlite

import (
	"context"
	"database/sql"

	"github.com/merchhq/storeguard/internal/guard/domain"
)

type backupCodesRepo struct {
	db dbtx
}

func (r *backupCodesRepo) ReplaceBackupCodes(ctx context.Context, userID string, hashes []string) error {
	if _, err := r.db.ExecContext(ctx,
		`DELETE FROM backup_codes WHERE user_id = ?`, userID); err != nil {
		return err
	}
	for _, h := range hashes {
		if _, err := r.db.ExecContext(ctx,
			`INSERT INTO backup_codes (user_id, code_hash) VALUES (?, ?)`,
			userID, h); err != nil {
			return err
		}
	}
	return nil
}

func (r *backupCodesRepo) ListBackupCodes(ctx context.Context, userID string) ([]domain.BackupCode, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT user_id, code_hash, used_at, created_at
		   FROM backup_codes WHERE user_id = ? ORDER BY created_at, code_hash`,
		userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var codes []domain.BackupCode
	for rows.Next() {
		var (
			c      domain.BackupCode
			usedAt sql.NullTime
		)
		if err := rows.Scan(&c.UserID, &c.CodeHash, &usedAt, &c.CreatedAt); err != nil {
			return nil, err
		}
		if usedAt.Valid {
			t := usedAt.Time
			c.UsedAt = &t
		}
		codes = append(codes, c)
	}
	return codes, rows.Err()
}

// MarkBackupCodeUsed is a conditional write: the WHERE clause only
// matches an existing unused hash, so two concurrent verifications of
// the same code cannot both report success.
func (r *backupCodesRepo) MarkBackupCodeUsed(ctx context.Context, userID, codeHash string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE backup_codes SET used_at = CURRENT_TIMESTAMP
		  WHERE user_id = ? AND code_hash = ? AND used_at IS NULL`,
		userID, codeHash)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *backupCodesRepo) DeleteAllBackupCodes(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM backup_codes WHERE user_id = ?`, userID)
	return err
}

func (r *backupCodesRepo) CountRemainingBackupCodes(ctx context.Context, userID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM backup_codes WHERE user_id = ? AND used_at IS NULL`,
		userID).Scan(&n)
	if err != nil {
		return 0, err
	}
	return n, nil
}
