package store

import (
	"context"
	"time"

	"github.com/tgdrive/filebox/internal/database"
	"github.com/tgdrive/filebox/pkg/models"
)

const userColumns = `id, name, email, phone_number, password_hash, is_verified, otp_hash,
	otp_expires_at, reset_allowed_until, created_at, updated_at`

func scanUser(row scanner) (*models.User, error) {
	var u models.User
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PhoneNumber, &u.PasswordHash, &u.IsVerified,
		&u.OTPHash, &u.OTPExpiresAt, &u.ResetAllowedUntil, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, wrapSQL(err)
	}
	return &u, nil
}

type pgUsers struct {
	db database.DBTX
}

func (r *pgUsers) Create(ctx context.Context, u *models.User) error {
	_, err := r.db.ExecContext(ctx,
		"INSERT INTO users ("+userColumns+") VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)",
		u.ID, u.Name, u.Email, u.PhoneNumber, u.PasswordHash, u.IsVerified, u.OTPHash,
		u.OTPExpiresAt, u.ResetAllowedUntil, u.CreatedAt, u.UpdatedAt)
	return wrapSQL(err)
}

func (r *pgUsers) Get(ctx context.Context, id string) (*models.User, error) {
	return scanUser(r.db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE id = $1", id))
}

func (r *pgUsers) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return scanUser(r.db.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE lower(email) = lower($1)", email))
}

func (r *pgUsers) ExistsByEmailOrPhone(ctx context.Context, email, phone string) (bool, error) {
	var ok bool
	err := r.db.QueryRowContext(ctx,
		"SELECT EXISTS (SELECT 1 FROM users WHERE lower(email) = lower($1) OR phone_number = $2)",
		email, phone).Scan(&ok)
	return ok, wrapSQL(err)
}

func (r *pgUsers) Update(ctx context.Context, u *models.User) error {
	return execOne(ctx, r.db,
		`UPDATE users SET name = $2, email = $3, phone_number = $4, password_hash = $5, is_verified = $6,
		 otp_hash = $7, otp_expires_at = $8, reset_allowed_until = $9, updated_at = $10 WHERE id = $1`,
		u.ID, u.Name, u.Email, u.PhoneNumber, u.PasswordHash, u.IsVerified,
		u.OTPHash, u.OTPExpiresAt, u.ResetAllowedUntil, u.UpdatedAt)
}

func (r *pgUsers) Delete(ctx context.Context, id string) error {
	return execOne(ctx, r.db, "DELETE FROM users WHERE id = $1", id)
}

func (r *pgUsers) DeleteUnverifiedBefore(ctx context.Context, t time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		"DELETE FROM users WHERE is_verified = FALSE AND otp_expires_at < $1", t)
	if err != nil {
		return 0, wrapSQL(err)
	}
	n, err := res.RowsAffected()
	return n, wrapSQL(err)
}
