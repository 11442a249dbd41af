package tasks

import (
	"context"
	"errors"

	"github.com/mediathekdl/mediathekdl/internal/config"
	"github.com/mediathekdl/mediathekdl/internal/scheduler"
	"github.com/mediathekdl/mediathekdl/internal/subscription"
)

const SubscriptionRunTaskID = "subscription-run"

// SubscriptionRunner processes all subscriptions once.
type SubscriptionRunner interface {
	Run(ctx context.Context) (subscription.Stats, error)
}

// RegisterSubscriptionTask registers the periodic subscription run.
// An overlapping manual run is not treated as a failure.
func RegisterSubscriptionTask(sched *scheduler.Scheduler, runner SubscriptionRunner, cfg *config.SchedulerConfig) error {
	return sched.RegisterTask(scheduler.TaskConfig{
		ID:          SubscriptionRunTaskID,
		Name:        "Subscription Run",
		Description: "Search every enabled subscription and download new matches",
		Cron:        cfg.SubscriptionCron,
		RunOnStart:  cfg.RunOnStart,
		Func: func(ctx context.Context) error {
			_, err := runner.Run(ctx)
			if errors.Is(err, subscription.ErrRunInProgress) {
				return nil
			}
			return err
		},
	})
}
