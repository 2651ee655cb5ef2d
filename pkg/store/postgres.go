package store

import (
	"context"
	"database/sql"

	"github.com/go-faster/errors"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/tgdrive/filebox/internal/config"
	"github.com/tgdrive/filebox/internal/database"
)

// MemoryDataSource selects the in-process store.
const MemoryDataSource = "memory"

// Open connects to the configured data source and applies pending
// migrations.
func Open(ctx context.Context, cfg *config.DBConfig, lg *zap.Logger) (Store, error) {
	if cfg.DataSource == MemoryDataSource {
		lg.Warn("db.memory", zap.String("note", "data is lost on restart"))
		return NewMemory(), nil
	}
	db, err := database.NewDatabase(ctx, cfg, lg)
	if err != nil {
		return nil, err
	}
	if err := database.MigrateDB(ctx, db); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "migrate")
	}
	orm, err := database.NewORM(db, cfg)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return NewPostgres(db, orm), nil
}

type Postgres struct {
	db       *sql.DB
	entries  *pgEntries
	users    *pgUsers
	sessions *pgSessions
	orphans  *pgOrphans
}

// NewPostgres serves filtered entry listings through orm and everything
// else through db. Both must share the same pool.
func NewPostgres(db *sql.DB, orm *gorm.DB) *Postgres {
	return &Postgres{
		db:       db,
		entries:  &pgEntries{db: db, orm: orm},
		users:    &pgUsers{db: db},
		sessions: &pgSessions{db: db, conn: db},
		orphans:  &pgOrphans{db: db},
	}
}

func (p *Postgres) Entries() Entries   { return p.entries }
func (p *Postgres) Users() Users       { return p.users }
func (p *Postgres) Sessions() Sessions { return p.sessions }
func (p *Postgres) Orphans() Orphans   { return p.orphans }
func (p *Postgres) Close() error       { return p.db.Close() }

// DB exposes the pool for migrations and health checks.
func (p *Postgres) DB() *sql.DB { return p.db }

func wrapSQL(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sql.ErrNoRows):
		return database.ErrNotFound
	case database.IsKeyConflictErr(err):
		return errors.Wrap(database.ErrKeyConflict, err.Error())
	default:
		return errors.Wrap(err, "error performing sql request")
	}
}

func execOne(ctx context.Context, db database.DBTX, query string, args ...any) error {
	res, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return wrapSQL(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return wrapSQL(err)
	}
	if n == 0 {
		return database.ErrNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}
