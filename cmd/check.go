package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tgdrive/filebox/internal/config"
	"github.com/tgdrive/filebox/internal/logging"
	"github.com/tgdrive/filebox/internal/storage"
	"github.com/tgdrive/filebox/pkg/services"
	"github.com/tgdrive/filebox/pkg/store"
)

type exportFile struct {
	ID        string `json:"id"`
	OwnerID   string `json:"owner_id"`
	Name      string `json:"name"`
	StorageID string `json:"storage_id"`
}

type checkExport struct {
	Timestamp string       `json:"timestamp"`
	Scanned   int          `json:"scanned"`
	Removed   int          `json:"removed"`
	Files     []exportFile `json:"files"`
}

type checkOptions struct {
	exportFile string
	clean      bool
	dryRun     bool
	sweep      bool
}

func NewCheckCmd() *cobra.Command {
	var cfg config.CheckCmdConfig
	var opts checkOptions
	loader := config.NewConfigLoader()
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Check file records against the object store",
		Long: `Check the integrity of stored files by comparing database records
with the objects kept in the configured object store.

Examples:
  # Preview dangling records without making changes
  filebox check --clean --dry-run

  # Remove dangling records and retry releasing orphaned blobs
  filebox check --clean --sweep

  # Export dangling records to a custom file
  filebox check --export-file dangling.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheckCmd(cmd, &cfg, &opts)
		},
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := loader.Load(cmd, &cfg); err != nil {
				return err
			}
			return loader.Validate()
		},
	}
	if err := loader.RegisterFlags(cmd.Flags(), "", cfg, false); err != nil {
		panic(err)
	}
	cmd.Flags().StringVar(&opts.exportFile, "export-file", "results.json", "Path for exported JSON file")
	cmd.Flags().BoolVar(&opts.clean, "clean", false, "Delete records whose object is missing")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "Simulate the clean without making changes")
	cmd.Flags().BoolVar(&opts.sweep, "sweep", false, "Retry releasing orphaned objects")
	return cmd
}

func runCheckCmd(cmd *cobra.Command, cfg *config.CheckCmdConfig, opts *checkOptions) error {
	lg := setupLogging(&cfg.Log)
	defer lg.Sync()
	ctx := logging.WithLogger(cmd.Context(), lg)

	st, err := store.Open(ctx, &cfg.DB, lg)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer st.Close()

	objects, err := storage.NewObjectStore(ctx, &cfg.Storage, cfg.Server.PublicURL)
	if err != nil {
		return fmt.Errorf("failed to open object store: %w", err)
	}
	defer objects.Close()

	sweeper := services.NewSweepService(st, objects, 0, 0, services.UTCNow)
	report, err := sweeper.Check(ctx, opts.clean, opts.dryRun)
	if err != nil {
		return err
	}

	cmd.Printf("scanned %d files, %d dangling", report.Scanned, len(report.Dangling))
	if opts.clean {
		if opts.dryRun {
			cmd.Print(" (dry run, nothing removed)")
		} else {
			cmd.Printf(", %d removed", report.Removed)
		}
	}
	cmd.Println()

	if len(report.Dangling) > 0 {
		if err := writeExport(opts.exportFile, report); err != nil {
			return err
		}
		cmd.Printf("dangling records written to %s\n", opts.exportFile)
	}

	if opts.sweep && !opts.dryRun {
		return runSweep(ctx, cmd, sweeper)
	}
	return nil
}

func runSweep(ctx context.Context, cmd *cobra.Command, sweeper *services.SweepService) error {
	lg := logging.FromContext(ctx)
	total := services.SweepResult{}
	for {
		res, err := sweeper.Sweep(ctx)
		if err != nil {
			return err
		}
		total.Released += res.Released
		total.Failed += res.Failed
		// Failed entries stay in the ledger, stop once a pass makes no progress.
		if res.Released == 0 {
			break
		}
	}
	lg.Debug("check.sweep", zap.Int("released", total.Released), zap.Int("failed", total.Failed))
	cmd.Printf("released %d orphaned objects, %d still failing\n", total.Released, total.Failed)
	return nil
}

func writeExport(path string, report *services.CheckReport) error {
	out := checkExport{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Scanned:   report.Scanned,
		Removed:   report.Removed,
		Files:     make([]exportFile, 0, len(report.Dangling)),
	}
	for _, f := range report.Dangling {
		ef := exportFile{ID: f.ID, OwnerID: f.OwnerID, Name: f.Name}
		if f.StorageID != nil {
			ef.StorageID = *f.StorageID
		}
		out.Files = append(out.Files, ef)
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
