package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/zulandar/buildyard/internal/logging"
	"github.com/zulandar/buildyard/internal/queue"
	"gorm.io/gorm"
)

// Scheduler runs Sweep on a cron schedule.
type Scheduler struct {
	DB       *gorm.DB
	Queue    queue.Enqueuer
	Schedule string // standard 5-field cron expression
	Opts     Opts
}

// Run sweeps at every fire time of the schedule until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	sched, err := cron.ParseStandard(s.Schedule)
	if err != nil {
		return fmt.Errorf("reconcile: schedule %q: %w", s.Schedule, err)
	}
	log := logging.OrDefault(s.Opts.Log)
	log.Info("reconcile scheduler started", "schedule", s.Schedule)

	timer := time.NewTimer(untilNext(sched, time.Now()))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
			if ctx.Err() != nil {
				return nil
			}
			s.sweep(ctx, log)
			timer.Reset(untilNext(sched, time.Now()))
		}
	}
}

func (s *Scheduler) sweep(ctx context.Context, log *slog.Logger) {
	report, err := Sweep(ctx, s.DB, s.Queue, s.Opts)
	if err != nil {
		log.Error("reconcile sweep failed", "error", err)
		return
	}
	if report.Scanned > 0 {
		log.Info("reconcile sweep finished", "scanned", report.Scanned, "repaired", len(report.Repaired), "failed", len(report.Failed))
	}
}

// untilNext returns the wait until sched next fires after now.
func untilNext(sched cron.Schedule, now time.Time) time.Duration {
	d := sched.Next(now).Sub(now)
	if d < 0 {
		return 0
	}
	return d
}
