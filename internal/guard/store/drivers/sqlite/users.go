package sqlite

import (
	"context"
	"database/sql"

	"github.com/merchhq/storeguard/internal/guard/domain"
)

type usersRepo struct {
	db dbtx
}

const userColumns = `id, email, role, claims, totp_secret, totp_enabled,
	totp_provisioned_at, totp_verified_at, backup_salt, created_at, updated_at`

func (r *usersRepo) GetUserByID(ctx context.Context, id string) (domain.User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	return scanUser(row)
}

func (r *usersRepo) GetUserByEmail(ctx context.Context, email string) (domain.User, error) {
	// Accounts without a verified address all store '', which is not
	// an identity worth matching on.
	if email == "" {
		return domain.User{}, mapNotFound(sql.ErrNoRows)
	}
	row := r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = ? COLLATE NOCASE`, email)
	return scanUser(row)
}

func (r *usersRepo) CreateUser(ctx context.Context, u domain.User) error {
	role := u.Role
	if role == "" {
		role = domain.RoleUser
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, email, role, claims) VALUES (?, ?, ?, ?)`,
		u.ID, u.Email, string(role), marshalJSONMap(u.Claims))
	return err
}

func (r *usersRepo) UpdateRoleAndClaims(ctx context.Context, userID string, role domain.Role, claims map[string]any) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET role = ?, claims = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		string(role), marshalJSONMap(claims), userID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (r *usersRepo) SetTOTPSecret(ctx context.Context, userID, secret string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE users
		    SET totp_secret = ?, totp_enabled = 0,
		        totp_provisioned_at = CURRENT_TIMESTAMP, totp_verified_at = NULL,
		        updated_at = CURRENT_TIMESTAMP
		  WHERE id = ?`,
		secret, userID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (r *usersRepo) EnableTOTP(ctx context.Context, userID string) error {
	// Guarded by totp_secret so the state machine's only path into
	// Enabled runs through a provisioned secret.
	res, err := r.db.ExecContext(ctx,
		`UPDATE users
		    SET totp_enabled = 1, totp_verified_at = CURRENT_TIMESTAMP,
		        updated_at = CURRENT_TIMESTAMP
		  WHERE id = ? AND totp_secret IS NOT NULL`,
		userID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (r *usersRepo) ClearTOTP(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users
		    SET totp_secret = NULL, totp_enabled = 0,
		        totp_provisioned_at = NULL, totp_verified_at = NULL,
		        backup_salt = NULL, updated_at = CURRENT_TIMESTAMP
		  WHERE id = ?`,
		userID)
	return err
}

func (r *usersRepo) SetBackupSalt(ctx context.Context, userID, salt string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET backup_salt = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		salt, userID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func scanUser(row *sql.Row) (domain.User, error) {
	var (
		u             domain.User
		role          string
		claims        string
		secret        sql.NullString
		enabled       int
		provisionedAt sql.NullTime
		verifiedAt    sql.NullTime
		salt          sql.NullString
	)

	err := row.Scan(&u.ID, &u.Email, &role, &claims, &secret, &enabled,
		&provisionedAt, &verifiedAt, &salt, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return domain.User{}, mapNotFound(err)
	}

	u.Role = domain.Role(role)
	u.Claims = unmarshalJSONMap[any](claims)
	u.TOTP = domain.TOTPState{
		Secret:  secret.String,
		Enabled: enabled != 0,
	}
	if provisionedAt.Valid {
		t := provisionedAt.Time
		u.TOTP.ProvisionedAt = &t
	}
	if verifiedAt.Valid {
		t := verifiedAt.Time
		u.TOTP.VerifiedAt = &t
	}
	u.BackupSalt = salt.String

	return u, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return mapNotFound(sql.ErrNoRows)
	}
	return nil
}
