package store

import (
	"context"

	"github.com/tgdrive/filebox/internal/database"
	"github.com/tgdrive/filebox/pkg/models"
)

type pgOrphans struct {
	db database.DBTX
}

func (r *pgOrphans) Add(ctx context.Context, storageID, reason string) error {
	_, err := r.db.ExecContext(ctx,
		"INSERT INTO orphaned_blobs (storage_id, reason) VALUES ($1, $2) ON CONFLICT (storage_id) DO NOTHING",
		storageID, reason)
	return wrapSQL(err)
}

func (r *pgOrphans) List(ctx context.Context, limit int) ([]models.OrphanedBlob, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT storage_id, reason, attempts, last_error, created_at FROM orphaned_blobs
		 ORDER BY created_at, storage_id LIMIT $1`, limit)
	if err != nil {
		return nil, wrapSQL(err)
	}
	defer rows.Close()
	res := []models.OrphanedBlob{}
	for rows.Next() {
		var o models.OrphanedBlob
		if err := rows.Scan(&o.StorageID, &o.Reason, &o.Attempts, &o.LastError, &o.CreatedAt); err != nil {
			return nil, wrapSQL(err)
		}
		res = append(res, o)
	}
	return res, wrapSQL(rows.Err())
}

func (r *pgOrphans) Remove(ctx context.Context, storageID string) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM orphaned_blobs WHERE storage_id = $1", storageID)
	return wrapSQL(err)
}

func (r *pgOrphans) MarkFailed(ctx context.Context, storageID, msg string) error {
	_, err := r.db.ExecContext(ctx,
		"UPDATE orphaned_blobs SET attempts = attempts + 1, last_error = $2 WHERE storage_id = $1",
		storageID, msg)
	return wrapSQL(err)
}
