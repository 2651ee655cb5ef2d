package cmd

import (
	"context"
	"database/sql"
	"time"

	"github.com/go-faster/errors"
	"github.com/spf13/cobra"

	"github.com/tgdrive/filebox/internal/config"
	"github.com/tgdrive/filebox/internal/database"
	"github.com/tgdrive/filebox/pkg/store"
)

func NewMigrateCmd() *cobra.Command {
	var cfg config.MigrateCmdConfig
	loader := config.NewConfigLoader()
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage database migrations",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := loader.Load(cmd, &cfg); err != nil {
				return err
			}
			return loader.Validate()
		},
	}
	if err := loader.RegisterFlags(cmd.PersistentFlags(), "", cfg, false); err != nil {
		panic(err)
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			RunE: func(cmd *cobra.Command, args []string) error {
				return withDatabase(cmd.Context(), &cfg, database.MigrateDB)
			},
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back the latest migration",
			RunE: func(cmd *cobra.Command, args []string) error {
				return withDatabase(cmd.Context(), &cfg, database.MigrateDown)
			},
		},
		&cobra.Command{
			Use:   "status",
			Short: "Show applied and pending migrations",
			RunE: func(cmd *cobra.Command, args []string) error {
				return withDatabase(cmd.Context(), &cfg, func(ctx context.Context, db *sql.DB) error {
					list, err := database.MigrationsStatus(ctx, db)
					if err != nil {
						return err
					}
					for _, m := range list {
						applied := "pending"
						if m.Applied {
							applied = m.At.Format(time.RFC3339)
						}
						cmd.Printf("%5d  %-40s %s\n", m.Version, m.Source, applied)
					}
					return nil
				})
			},
		},
	)
	return cmd
}

func withDatabase(ctx context.Context, cfg *config.MigrateCmdConfig, fn func(context.Context, *sql.DB) error) error {
	if cfg.DB.DataSource == store.MemoryDataSource {
		return errors.New("migrations need a postgres data source")
	}
	lg := setupLogging(&cfg.Log)
	defer lg.Sync()

	db, err := database.NewDatabase(ctx, &cfg.DB, lg)
	if err != nil {
		return err
	}
	defer db.Close()
	return fn(ctx, db)
}
