package tasks

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/mediathekdl/mediathekdl/internal/downloader"
	"github.com/mediathekdl/mediathekdl/internal/scheduler"
)

const TempCleanupTaskID = "temp-cleanup"

// RegisterTempCleanupTask registers removal of abandoned temp files older
// than maxAge. dirs is evaluated on every run.
func RegisterTempCleanupTask(sched *scheduler.Scheduler, cron string, maxAge time.Duration, dirs func() []string, logger zerolog.Logger) error {
	return sched.RegisterTask(scheduler.TaskConfig{
		ID:          TempCleanupTaskID,
		Name:        "Temp File Cleanup",
		Description: "Delete abandoned partial download files",
		Cron:        cron,
		Func: func(ctx context.Context) error {
			downloader.CleanupTempFiles(ctx, logger, maxAge, dirs()...)
			return ctx.Err()
		},
	})
}
