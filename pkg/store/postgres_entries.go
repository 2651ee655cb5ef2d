package store

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/tgdrive/filebox/internal/database"
	"github.com/tgdrive/filebox/pkg/models"
)

var entryColumns = []string{
	"id", "owner_id", "name", "kind", "parent_id", "file_type", "mime_type",
	"size_bytes", "storage_url", "storage_id", "share_token", "share_expires_at", "created_at",
}

func selectEntries(alias string) string {
	if alias == "" {
		return strings.Join(entryColumns, ", ")
	}
	cols := make([]string, len(entryColumns))
	for i, c := range entryColumns {
		cols[i] = alias + "." + c
	}
	return strings.Join(cols, ", ")
}

func scanEntry(row scanner) (*models.Entry, error) {
	var (
		e       models.Entry
		kind    string
		token   *string
		expires *time.Time
	)
	if err := row.Scan(&e.ID, &e.OwnerID, &e.Name, &kind, &e.ParentID, &e.FileType, &e.MimeType,
		&e.SizeBytes, &e.StorageURL, &e.StorageID, &token, &expires, &e.CreatedAt); err != nil {
		return nil, err
	}
	e.Kind = models.Kind(kind)
	if token != nil {
		e.ShareLink = &models.ShareLink{Token: *token, ExpiresAt: expires}
	}
	return &e, nil
}

type pgEntries struct {
	db  database.DBTX
	orm *gorm.DB
}

func (r *pgEntries) query(ctx context.Context, q string, args ...any) ([]models.Entry, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, wrapSQL(err)
	}
	defer rows.Close()
	res := []models.Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, wrapSQL(err)
		}
		res = append(res, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapSQL(err)
	}
	return res, nil
}

// attachGrants loads the grants of every entry in items with one query.
func (r *pgEntries) attachGrants(ctx context.Context, items []models.Entry) error {
	if len(items) == 0 {
		return nil
	}
	ids := make([]string, len(items))
	index := make(map[string]int, len(items))
	for i := range items {
		ids[i] = items[i].ID
		index[items[i].ID] = i
		items[i].SharedWith = []models.Grant{}
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT entry_id, grantee_id, grantee_email, created_at FROM entry_grants
		 WHERE entry_id = ANY($1) ORDER BY created_at, grantee_id`, ids)
	if err != nil {
		return wrapSQL(err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			entryID string
			g       models.Grant
		)
		if err := rows.Scan(&entryID, &g.UserID, &g.Email, &g.CreatedAt); err != nil {
			return wrapSQL(err)
		}
		if i, ok := index[entryID]; ok {
			items[i].SharedWith = append(items[i].SharedWith, g)
		}
	}
	return wrapSQL(rows.Err())
}

func (r *pgEntries) Create(ctx context.Context, e *models.Entry) error {
	var token *string
	var expires *time.Time
	if e.ShareLink != nil {
		token, expires = &e.ShareLink.Token, e.ShareLink.ExpiresAt
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO entries (id, owner_id, name, kind, parent_id, file_type, mime_type,
		 size_bytes, storage_url, storage_id, share_token, share_expires_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		e.ID, e.OwnerID, e.Name, string(e.Kind), e.ParentID, e.FileType, e.MimeType,
		e.SizeBytes, e.StorageURL, e.StorageID, token, expires, e.CreatedAt)
	return wrapSQL(err)
}

func (r *pgEntries) Get(ctx context.Context, id string) (*models.Entry, error) {
	e, err := scanEntry(r.db.QueryRowContext(ctx,
		"SELECT "+selectEntries("")+" FROM entries WHERE id = $1", id))
	if err != nil {
		return nil, wrapSQL(err)
	}
	items := []models.Entry{*e}
	if err := r.attachGrants(ctx, items); err != nil {
		return nil, err
	}
	return &items[0], nil
}

func (r *pgEntries) NameTaken(ctx context.Context, ownerID string, parentID *string, kind models.Kind, name string) (bool, error) {
	parent := ""
	if parentID != nil {
		parent = *parentID
	}
	var taken bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM entries WHERE owner_id = $1 AND COALESCE(parent_id, '') = $2
		 AND kind = $3 AND name = $4)`,
		ownerID, parent, string(kind), name).Scan(&taken)
	return taken, wrapSQL(err)
}

// entryRow maps the entries table for gorm.
type entryRow struct {
	ID             string     `gorm:"column:id;primaryKey"`
	OwnerID        string     `gorm:"column:owner_id"`
	Name           string     `gorm:"column:name"`
	Kind           string     `gorm:"column:kind"`
	ParentID       *string    `gorm:"column:parent_id"`
	FileType       *string    `gorm:"column:file_type"`
	MimeType       *string    `gorm:"column:mime_type"`
	SizeBytes      *int64     `gorm:"column:size_bytes"`
	StorageURL     *string    `gorm:"column:storage_url"`
	StorageID      *string    `gorm:"column:storage_id"`
	ShareToken     *string    `gorm:"column:share_token"`
	ShareExpiresAt *time.Time `gorm:"column:share_expires_at"`
	CreatedAt      time.Time  `gorm:"column:created_at"`
}

func (entryRow) TableName() string { return "entries" }

func (row *entryRow) toModel() models.Entry {
	e := models.Entry{
		ID:         row.ID,
		OwnerID:    row.OwnerID,
		Name:       row.Name,
		Kind:       models.Kind(row.Kind),
		ParentID:   row.ParentID,
		FileType:   row.FileType,
		MimeType:   row.MimeType,
		SizeBytes:  row.SizeBytes,
		StorageURL: row.StorageURL,
		StorageID:  row.StorageID,
		CreatedAt:  row.CreatedAt,
	}
	if row.ShareToken != nil {
		e.ShareLink = &models.ShareLink{Token: *row.ShareToken, ExpiresAt: row.ShareExpiresAt}
	}
	return e
}

func ownedBy(ownerID string) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("owner_id = ?", ownerID)
	}
}

func listFilters(f ListFilter) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if f.Kind != "" {
			db = db.Where("kind = ?", string(f.Kind))
		}
		if f.ParentID != nil {
			db = db.Where("parent_id = ?", *f.ParentID)
		}
		return db
	}
}

func searchFilters(f SearchFilter) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if f.Query != "" {
			db = db.Where("name ILIKE ?", "%"+EscapeLike(f.Query)+"%")
		}
		if f.FileType != "" {
			db = db.Where("file_type = ?", f.FileType)
		}
		if f.ParentID != nil {
			db = db.Where("parent_id = ?", *f.ParentID)
		}
		return db
	}
}

// find runs q and loads the grants of the rows it returns.
func (r *pgEntries) find(ctx context.Context, q *gorm.DB) ([]models.Entry, error) {
	var rows []entryRow
	if err := q.Select(entryColumns).Order("created_at DESC, id").Find(&rows).Error; err != nil {
		return nil, wrapSQL(err)
	}
	items := make([]models.Entry, len(rows))
	for i := range rows {
		items[i] = rows[i].toModel()
	}
	if err := r.attachGrants(ctx, items); err != nil {
		return nil, err
	}
	return items, nil
}

func (r *pgEntries) List(ctx context.Context, ownerID string, f ListFilter, offset, limit int) ([]models.Entry, int, error) {
	var total int64
	if err := r.orm.WithContext(ctx).Model(&entryRow{}).
		Scopes(ownedBy(ownerID), listFilters(f)).
		Count(&total).Error; err != nil {
		return nil, 0, wrapSQL(err)
	}
	items, err := r.find(ctx, r.orm.WithContext(ctx).Model(&entryRow{}).
		Scopes(ownedBy(ownerID), listFilters(f)).
		Limit(limit).Offset(offset))
	if err != nil {
		return nil, 0, err
	}
	return items, int(total), nil
}

func (r *pgEntries) Search(ctx context.Context, ownerID string, f SearchFilter) ([]models.Entry, error) {
	return r.find(ctx, r.orm.WithContext(ctx).Model(&entryRow{}).
		Scopes(ownedBy(ownerID), searchFilters(f)))
}

func (r *pgEntries) SharedWith(ctx context.Context, userID string, limit int) ([]models.Entry, error) {
	q := "SELECT " + selectEntries("e") + ` FROM entries e
		 JOIN entry_grants g ON g.entry_id = e.id
		 WHERE g.grantee_id = $1 ORDER BY e.created_at DESC, e.id`
	args := []any{userID}
	if limit > 0 {
		q += " LIMIT $2"
		args = append(args, limit)
	}
	items, err := r.query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	if err := r.attachGrants(ctx, items); err != nil {
		return nil, err
	}
	return items, nil
}

func (r *pgEntries) Children(ctx context.Context, parentID string) ([]models.Entry, error) {
	items, err := r.query(ctx,
		"SELECT "+selectEntries("")+" FROM entries WHERE parent_id = $1 ORDER BY created_at DESC, id", parentID)
	if err != nil {
		return nil, err
	}
	if err := r.attachGrants(ctx, items); err != nil {
		return nil, err
	}
	return items, nil
}

func (r *pgEntries) HasChildren(ctx context.Context, id string) (bool, error) {
	var ok bool
	err := r.db.QueryRowContext(ctx,
		"SELECT EXISTS (SELECT 1 FROM entries WHERE parent_id = $1)", id).Scan(&ok)
	return ok, wrapSQL(err)
}

func (r *pgEntries) IsGrantee(ctx context.Context, entryID, userID string) (bool, error) {
	var ok bool
	err := r.db.QueryRowContext(ctx,
		"SELECT EXISTS (SELECT 1 FROM entry_grants WHERE entry_id = $1 AND grantee_id = $2)",
		entryID, userID).Scan(&ok)
	return ok, wrapSQL(err)
}

func (r *pgEntries) Update(ctx context.Context, id, name string, parentID *string) error {
	return execOne(ctx, r.db, "UPDATE entries SET name = $2, parent_id = $3 WHERE id = $1", id, name, parentID)
}

func (r *pgEntries) Delete(ctx context.Context, id string) error {
	err := execOne(ctx, r.db, "DELETE FROM entries WHERE id = $1", id)
	if database.IsForeignKeyErr(err) {
		return ErrHasChildren
	}
	return err
}

func (r *pgEntries) DeleteByOwner(ctx context.Context, ownerID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		"DELETE FROM entries WHERE owner_id = $1 RETURNING storage_id", ownerID)
	if err != nil {
		return nil, wrapSQL(err)
	}
	defer rows.Close()
	ids := []string{}
	for rows.Next() {
		var id sql.NullString
		if err := rows.Scan(&id); err != nil {
			return nil, wrapSQL(err)
		}
		if id.Valid {
			ids = append(ids, id.String)
		}
	}
	return ids, wrapSQL(rows.Err())
}

func (r *pgEntries) AddGrant(ctx context.Context, entryID string, g models.Grant) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO entry_grants (entry_id, grantee_id, grantee_email, created_at)
		 VALUES ($1, $2, $3, $4) ON CONFLICT (entry_id, grantee_id) DO NOTHING`,
		entryID, g.UserID, g.Email, g.CreatedAt)
	if err != nil {
		return false, wrapSQL(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, wrapSQL(err)
	}
	return n == 1, nil
}

func (r *pgEntries) SetShareLink(ctx context.Context, entryID string, link *models.ShareLink) error {
	var token *string
	var expires *time.Time
	if link != nil {
		token, expires = &link.Token, link.ExpiresAt
	}
	return execOne(ctx, r.db,
		"UPDATE entries SET share_token = $2, share_expires_at = $3 WHERE id = $1", entryID, token, expires)
}

func (r *pgEntries) ListFiles(ctx context.Context, afterID string, limit int) ([]models.Entry, error) {
	return r.query(ctx,
		"SELECT "+selectEntries("")+" FROM entries WHERE kind = 'file' AND id > $1 ORDER BY id LIMIT $2",
		afterID, limit)
}
