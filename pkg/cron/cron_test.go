package cron

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/tgdrive/filebox/internal/config"
	"github.com/tgdrive/filebox/pkg/services"
)

type fakeJobs struct {
	sweeps, purges atomic.Int32
	err            error
}

func (f *fakeJobs) Sweep(context.Context) (*services.SweepResult, error) {
	f.sweeps.Add(1)
	return &services.SweepResult{}, f.err
}

func (f *fakeJobs) PurgePending(context.Context) (int64, error) {
	f.purges.Add(1)
	return 0, f.err
}

func TestStartCronJobs(t *testing.T) {
	jobs := &fakeJobs{}
	s := NewScheduler()
	defer s.Stop()

	err := StartCronJobs(context.Background(), s, jobs, &config.CronJobConfig{
		Enable: true, SweepInterval: time.Hour, PurgeInterval: 12 * time.Hour,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, s.Len())
	assert.True(t, s.IsRunning())

	// jobs run once on start
	assert.Eventually(t, func() bool {
		return jobs.sweeps.Load() == 1 && jobs.purges.Load() == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestStartCronJobsDisabled(t *testing.T) {
	s := NewScheduler()
	require.NoError(t, StartCronJobs(context.Background(), s, &fakeJobs{}, &config.CronJobConfig{}))
	assert.Zero(t, s.Len())
	assert.False(t, s.IsRunning())
}

func TestStartCronJobsRejectsZeroInterval(t *testing.T) {
	s := NewScheduler()
	err := StartCronJobs(context.Background(), s, &fakeJobs{}, &config.CronJobConfig{Enable: true, SweepInterval: time.Hour})
	assert.Error(t, err)
}

func TestJobErrorsAreLogged(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	c := &CronService{jobs: &fakeJobs{err: errors.New("db down")}, logger: zap.New(core)}

	c.SweepOrphans(context.Background())
	c.PurgePending(context.Background())
	assert.Equal(t, 1, logs.FilterMessage("cron.sweep").Len())
	assert.Equal(t, 1, logs.FilterMessage("cron.purge").Len())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	jobs := &fakeJobs{}
	c.jobs = jobs
	c.SweepOrphans(ctx)
	assert.Zero(t, jobs.sweeps.Load())
}
