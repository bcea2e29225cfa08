package runner

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/quartzbi/beacon/config"
	"github.com/quartzbi/beacon/report"
)

func TestPoolProcessesFirings(t *testing.T) {
	f := newFixture(t)
	sched := f.createAlert(t)

	cfg := config.SchedulerConfig{Workers: 2}
	pool := NewPool(context.Background(), f.machine, cfg, zap.NewNop().Sugar())
	pool.Start()
	defer pool.Stop()

	pool.Submit(f.firing(sched, "exec-1"))

	require.Eventually(t, func() bool {
		return pool.Stats().Processed == 1
	}, 5*time.Second, 10*time.Millisecond)

	reloaded, err := f.schedules.FindByID(context.Background(), sched.ID)
	require.NoError(t, err)
	assert.Equal(t, report.StateSuccess, reloaded.LastState)
}

func TestPoolIsolatesFailures(t *testing.T) {
	f := newFixture(t)
	f.builder.err = report.ErrScreenshotFailed
	sched := f.createAlert(t)

	pool := NewPool(context.Background(), f.machine, config.SchedulerConfig{Workers: 1}, zap.NewNop().Sugar())
	pool.Start()
	defer pool.Stop()

	// A failing execution must not take the worker down
	pool.Submit(f.firing(sched, "exec-1"))
	require.Eventually(t, func() bool {
		return pool.Stats().Processed == 1
	}, 5*time.Second, 10*time.Millisecond)

	f.builder.err = nil
	f.now = f.now.Add(2 * time.Hour)
	pool.Submit(f.firing(sched, "exec-2"))
	require.Eventually(t, func() bool {
		return pool.Stats().Processed == 2
	}, 5*time.Second, 10*time.Millisecond)

	reloaded, err := f.schedules.FindByID(context.Background(), sched.ID)
	require.NoError(t, err)
	assert.Equal(t, report.StateSuccess, reloaded.LastState)
}

func TestPoolStatsReportWorkerCounts(t *testing.T) {
	f := newFixture(t)

	pool := NewPool(context.Background(), f.machine, config.SchedulerConfig{Workers: 3}, zap.NewNop().Sugar())
	pool.Start()
	defer pool.Stop()

	stats := pool.Stats()
	assert.Equal(t, 3, stats.WorkersTotal)
	assert.Equal(t, 0, stats.Processed)
}
