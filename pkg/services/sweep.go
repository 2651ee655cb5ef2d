package services

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/tgdrive/filebox/internal/database"
	"github.com/tgdrive/filebox/internal/logging"
	"github.com/tgdrive/filebox/internal/storage"
	"github.com/tgdrive/filebox/pkg/models"
	"github.com/tgdrive/filebox/pkg/store"
)

const checkBatch = 100

// SweepService reconciles the metadata store with the object store.
type SweepService struct {
	entries   store.Entries
	users     store.Users
	orphans   store.Orphans
	objects   storage.ObjectStore
	batch     int
	retention time.Duration
	now       Clock
}

func NewSweepService(st store.Store, objects storage.ObjectStore, batch int, retention time.Duration, now Clock) *SweepService {
	if batch < 1 {
		batch = checkBatch
	}
	return &SweepService{
		entries:   st.Entries(),
		users:     st.Users(),
		orphans:   st.Orphans(),
		objects:   objects,
		batch:     batch,
		retention: retention,
		now:       now,
	}
}

type SweepResult struct {
	Released int
	Failed   int
}

// Sweep retries deleting orphaned blobs. Deleting an absent blob succeeds, so
// a blob released earlier is simply dropped from the ledger.
func (s *SweepService) Sweep(ctx context.Context) (*SweepResult, error) {
	lg := logging.FromContext(ctx)
	list, err := s.orphans.List(ctx, s.batch)
	if err != nil {
		return nil, errors.Wrap(err, "list orphans")
	}
	res := &SweepResult{}
	for _, o := range list {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if err := s.objects.Delete(ctx, o.StorageID); err != nil {
			res.Failed++
			lg.Warn("sweep.failed", zap.String("storage_id", o.StorageID), zap.Int("attempts", o.Attempts+1), zap.Error(err))
			if err := s.orphans.MarkFailed(ctx, o.StorageID, err.Error()); err != nil {
				return res, errors.Wrap(err, "mark orphan")
			}
			continue
		}
		if err := s.orphans.Remove(ctx, o.StorageID); err != nil {
			return res, errors.Wrap(err, "remove orphan")
		}
		res.Released++
	}
	if len(list) > 0 {
		lg.Info("sweep.done", zap.Int("released", res.Released), zap.Int("failed", res.Failed))
	}
	return res, nil
}

// PurgePending removes unverified accounts whose code expired more than the
// retention period ago.
func (s *SweepService) PurgePending(ctx context.Context) (int64, error) {
	n, err := s.users.DeleteUnverifiedBefore(ctx, s.now().Add(-s.retention))
	if err != nil {
		return 0, errors.Wrap(err, "purge pending users")
	}
	if n > 0 {
		logging.FromContext(ctx).Info("users.purged", zap.Int64("count", n))
	}
	return n, nil
}

type CheckReport struct {
	Scanned  int
	Dangling []models.Entry
	Removed  int
}

// Check finds file records whose blob is gone. With clean set they are
// deleted unless dryRun is set too.
func (s *SweepService) Check(ctx context.Context, clean, dryRun bool) (*CheckReport, error) {
	report := &CheckReport{Dangling: []models.Entry{}}
	after := ""
	for {
		files, err := s.entries.ListFiles(ctx, after, checkBatch)
		if err != nil {
			return report, errors.Wrap(err, "list files")
		}
		for _, f := range files {
			report.Scanned++
			if f.StorageID == nil {
				continue
			}
			ok, err := s.objects.Exists(ctx, *f.StorageID)
			if err != nil {
				return report, errors.Wrapf(err, "stat %s", *f.StorageID)
			}
			if ok {
				continue
			}
			report.Dangling = append(report.Dangling, f)
			if clean && !dryRun {
				if err := s.entries.Delete(ctx, f.ID); err != nil && !database.IsRecordNotFoundErr(err) {
					return report, errors.Wrapf(err, "delete %s", f.ID)
				}
				report.Removed++
			}
		}
		if len(files) < checkBatch {
			return report, nil
		}
		after = files[len(files)-1].ID
	}
}
