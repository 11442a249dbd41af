package tasks

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mediathekdl/mediathekdl/internal/config"
	"github.com/mediathekdl/mediathekdl/internal/downloader"
	"github.com/mediathekdl/mediathekdl/internal/scheduler"
	"github.com/mediathekdl/mediathekdl/internal/subscription"
	"github.com/mediathekdl/mediathekdl/internal/testutil"
)

type runnerFunc func(ctx context.Context) (subscription.Stats, error)

func (f runnerFunc) Run(ctx context.Context) (subscription.Stats, error) { return f(ctx) }

type prunerFunc func(time.Duration) int

func (f prunerFunc) Prune(d time.Duration) int { return f(d) }

func newScheduler(t *testing.T) *scheduler.Scheduler {
	t.Helper()
	s, err := scheduler.New(testutil.NopLogger())
	require.NoError(t, err)
	s.Start()
	t.Cleanup(func() { _ = s.Stop() })
	return s
}

func waitIdle(t *testing.T, s *scheduler.Scheduler, id string) *scheduler.TaskInfo {
	t.Helper()
	var info *scheduler.TaskInfo
	require.Eventually(t, func() bool {
		var err error
		info, err = s.GetTask(id)
		return err == nil && info.LastRun != nil && !info.Running
	}, 2*time.Second, 10*time.Millisecond)
	return info
}

func TestSubscriptionTask_IgnoresOverlap(t *testing.T) {
	s := newScheduler(t)
	var calls atomic.Int32
	runner := runnerFunc(func(context.Context) (subscription.Stats, error) {
		calls.Add(1)
		return subscription.Stats{}, subscription.ErrRunInProgress
	})

	cfg := config.Default().Scheduler
	require.NoError(t, RegisterSubscriptionTask(s, runner, &cfg))
	require.NoError(t, s.RunNow(SubscriptionRunTaskID))

	info := waitIdle(t, s, SubscriptionRunTaskID)
	assert.Empty(t, info.LastError)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, cfg.SubscriptionCron, info.Cron)
}

func TestTempCleanupTask(t *testing.T) {
	s := newScheduler(t)
	dir := t.TempDir()

	stale := filepath.Join(dir, "a.mkv"+downloader.TempSuffix)
	fresh := filepath.Join(dir, "b.mkv"+downloader.TempSuffix)
	require.NoError(t, os.WriteFile(stale, []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(fresh, []byte("x"), 0o644))
	old := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(stale, old, old))

	require.NoError(t, RegisterTempCleanupTask(s, "0 3 * * *", 24*time.Hour, func() []string { return []string{dir} }, testutil.NopLogger()))
	require.NoError(t, s.RunNow(TempCleanupTaskID))
	waitIdle(t, s, TempCleanupTaskID)

	assert.NoFileExists(t, stale)
	assert.FileExists(t, fresh)
}

func TestQueuePruneTask(t *testing.T) {
	s := newScheduler(t)
	var got atomic.Int64
	pruner := prunerFunc(func(d time.Duration) int {
		got.Store(int64(d))
		return 2
	})

	cfg := config.SchedulerConfig{PruneCron: "*/5 * * * *", PruneAfterMinutes: 30}
	require.NoError(t, RegisterQueuePruneTask(s, pruner, &cfg, testutil.NopLogger()))
	require.NoError(t, s.RunNow(QueuePruneTaskID))
	waitIdle(t, s, QueuePruneTaskID)

	assert.Equal(t, int64(30*time.Minute), got.Load())
}
