package store

import (
	"context"
	"database/sql"

	"github.com/tgdrive/filebox/internal/database"
	"github.com/tgdrive/filebox/pkg/models"
)

type pgSessions struct {
	db   database.DBTX
	conn *sql.DB
}

func insertSession(ctx context.Context, db database.DBTX, s *models.Session) error {
	_, err := db.ExecContext(ctx,
		"INSERT INTO sessions (id, user_id, token_hash, expires_at, created_at) VALUES ($1, $2, $3, $4, $5)",
		s.ID, s.UserID, s.TokenHash, s.ExpiresAt, s.CreatedAt)
	return wrapSQL(err)
}

func (r *pgSessions) Create(ctx context.Context, s *models.Session) error {
	return insertSession(ctx, r.db, s)
}

func (r *pgSessions) GetByHash(ctx context.Context, hash string) (*models.Session, error) {
	var s models.Session
	err := r.db.QueryRowContext(ctx,
		"SELECT id, user_id, token_hash, expires_at, created_at FROM sessions WHERE token_hash = $1", hash).
		Scan(&s.ID, &s.UserID, &s.TokenHash, &s.ExpiresAt, &s.CreatedAt)
	if err != nil {
		return nil, wrapSQL(err)
	}
	return &s, nil
}

func (r *pgSessions) Rotate(ctx context.Context, oldHash string, next *models.Session) error {
	return database.WithTx(ctx, r.conn, nil, func(ctx context.Context, tx database.DBTX) error {
		if err := execOne(ctx, tx, "DELETE FROM sessions WHERE token_hash = $1", oldHash); err != nil {
			return err
		}
		return insertSession(ctx, tx, next)
	})
}

func (r *pgSessions) DeleteByHash(ctx context.Context, hash string) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM sessions WHERE token_hash = $1", hash)
	return wrapSQL(err)
}

func (r *pgSessions) DeleteByUser(ctx context.Context, userID, exceptHash string) error {
	_, err := r.db.ExecContext(ctx,
		"DELETE FROM sessions WHERE user_id = $1 AND token_hash <> $2", userID, exceptHash)
	return wrapSQL(err)
}
