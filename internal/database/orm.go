package database

import (
	"database/sql"
	"time"

	"github.com/go-faster/errors"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/tgdrive/filebox/internal/config"
)

// NewORM wraps an open pool in gorm for the queries built from filters.
func NewORM(db *sql.DB, cfg *config.DBConfig) (*gorm.DB, error) {
	orm, err := gorm.Open(postgres.New(postgres.Config{Conn: db}), &gorm.Config{
		Logger:                 NewLogger(cfg.SlowQuery, cfg.LogLevel),
		DisableAutomaticPing:   true,
		SkipDefaultTransaction: true,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, errors.Wrap(err, "open orm")
	}
	return orm, nil
}
