package tasks

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/mediathekdl/mediathekdl/internal/config"
	"github.com/mediathekdl/mediathekdl/internal/scheduler"
)

const QueuePruneTaskID = "queue-prune"

// Pruner drops terminal queue entries.
type Pruner interface {
	Prune(olderThan time.Duration) int
}

// RegisterQueuePruneTask registers removal of finished downloads from the
// active list.
func RegisterQueuePruneTask(sched *scheduler.Scheduler, q Pruner, cfg *config.SchedulerConfig, logger zerolog.Logger) error {
	after := cfg.PruneAfter()
	return sched.RegisterTask(scheduler.TaskConfig{
		ID:          QueuePruneTaskID,
		Name:        "Queue Prune",
		Description: "Remove completed downloads from the active list",
		Cron:        cfg.PruneCron,
		Func: func(context.Context) error {
			if n := q.Prune(after); n > 0 {
				logger.Debug().Int("removed", n).Msg("Pruned queue")
			}
			return nil
		},
	})
}
