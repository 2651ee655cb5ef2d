package database

import (
	"context"
	"database/sql"
	"embed"
	"io/fs"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-faster/errors"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/tgdrive/filebox/internal/config"
	"go.uber.org/zap"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// NewDatabase opens a pgx backed *sql.DB and pings it, retrying with
// exponential backoff for up to a minute.
func NewDatabase(ctx context.Context, cfg *config.DBConfig, lg *zap.Logger) (*sql.DB, error) {
	db, err := sql.Open("pgx", cfg.DataSource)
	if err != nil {
		return nil, errors.Wrap(err, "open database")
	}
	db.SetMaxOpenConns(cfg.Pool.MaxOpenConnections)
	db.SetMaxIdleConns(cfg.Pool.MaxIdleConnections)
	db.SetConnMaxLifetime(cfg.Pool.MaxLifetime)

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxElapsedTime = time.Minute

	err = backoff.RetryNotify(func() error {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return db.PingContext(pingCtx)
	}, backoff.WithContext(b, ctx), func(err error, next time.Duration) {
		lg.Warn("database not ready", zap.Error(err), zap.Duration("retry-in", next))
	})
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "connect database")
	}
	return db, nil
}

func newProvider(db *sql.DB) (*goose.Provider, error) {
	migrations, err := fs.Sub(embedMigrations, "migrations")
	if err != nil {
		return nil, err
	}
	return goose.NewProvider(goose.DialectPostgres, db, migrations)
}

func MigrateDB(ctx context.Context, db *sql.DB) error {
	p, err := newProvider(db)
	if err != nil {
		return errors.Wrap(err, "migrations")
	}
	if _, err := p.Up(ctx); err != nil {
		return errors.Wrap(err, "migrate up")
	}
	return nil
}

func MigrateDown(ctx context.Context, db *sql.DB) error {
	p, err := newProvider(db)
	if err != nil {
		return errors.Wrap(err, "migrations")
	}
	if _, err := p.Down(ctx); err != nil {
		return errors.Wrap(err, "migrate down")
	}
	return nil
}

type MigrationStatus struct {
	Version int64
	Source  string
	Applied bool
	At      time.Time
}

func MigrationsStatus(ctx context.Context, db *sql.DB) ([]MigrationStatus, error) {
	p, err := newProvider(db)
	if err != nil {
		return nil, errors.Wrap(err, "migrations")
	}
	res, err := p.Status(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "migration status")
	}
	out := make([]MigrationStatus, 0, len(res))
	for _, r := range res {
		out = append(out, MigrationStatus{
			Version: r.Source.Version,
			Source:  r.Source.Path,
			Applied: r.State == goose.StateApplied,
			At:      r.AppliedAt,
		})
	}
	return out, nil
}
