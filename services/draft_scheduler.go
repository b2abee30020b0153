package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/jonboulle/clockwork"
)

// StartDraftScheduler сохраняет несохранённые раскладки каждые interval. Вызывающий
// сам останавливает возвращённый планировщик. clock может быть nil - тогда реальные часы.
func StartDraftScheduler(svc SessionService, interval time.Duration, clock clockwork.Clock, logger *slog.Logger) (gocron.Scheduler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	schedOpts := []gocron.SchedulerOption{gocron.WithLogger(logger)}
	if clock != nil {
		schedOpts = append(schedOpts, gocron.WithClock(clock))
	}
	sched, err := gocron.NewScheduler(schedOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create draft scheduler: %w", err)
	}

	_, err = sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), interval)
			defer cancel()
			n, err := svc.SnapshotDrafts(ctx)
			if err != nil {
				logger.Warn("draft snapshot incomplete", slog.Int("saved", n), slog.Any("error", err))
				return
			}
			if n > 0 {
				logger.Debug("drafts saved", slog.Int("saved", n))
			}
		}),
		gocron.WithName("group-draft-snapshot"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = sched.Shutdown()
		return nil, fmt.Errorf("failed to schedule draft snapshots: %w", err)
	}

	sched.Start()
	return sched, nil
}
