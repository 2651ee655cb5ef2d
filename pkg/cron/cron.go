package cron

import (
	"context"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/tgdrive/filebox/internal/config"
	"github.com/tgdrive/filebox/internal/logging"
	"github.com/tgdrive/filebox/pkg/services"
)

type Reconciler interface {
	Sweep(ctx context.Context) (*services.SweepResult, error)
	PurgePending(ctx context.Context) (int64, error)
}

type CronService struct {
	jobs   Reconciler
	logger *zap.Logger
}

func NewScheduler() *gocron.Scheduler {
	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()
	return s
}

// StartCronJobs registers the reconciliation jobs and starts the scheduler.
// Nothing is scheduled when jobs are disabled.
func StartCronJobs(ctx context.Context, scheduler *gocron.Scheduler, jobs Reconciler, cnf *config.CronJobConfig) error {
	if !cnf.Enable {
		return nil
	}
	if cnf.SweepInterval <= 0 || cnf.PurgeInterval <= 0 {
		return errors.New("cron intervals must be positive")
	}
	c := &CronService{jobs: jobs, logger: logging.DefaultLogger()}
	ctx = logging.WithLogger(ctx, c.logger)

	if _, err := scheduler.Every(cnf.SweepInterval).Do(c.SweepOrphans, ctx); err != nil {
		return errors.Wrap(err, "schedule sweep")
	}
	if _, err := scheduler.Every(cnf.PurgeInterval).Do(c.PurgePending, ctx); err != nil {
		return errors.Wrap(err, "schedule purge")
	}
	scheduler.StartAsync()
	return nil
}

func (c *CronService) SweepOrphans(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if _, err := c.jobs.Sweep(ctx); err != nil && !errors.Is(err, context.Canceled) {
		c.logger.Error("cron.sweep", zap.Error(err))
	}
}

func (c *CronService) PurgePending(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if _, err := c.jobs.PurgePending(ctx); err != nil && !errors.Is(err, context.Canceled) {
		c.logger.Error("cron.purge", zap.Error(err))
	}
}
