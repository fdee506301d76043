package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/dbsmedya/goindexq/internal/config"
)

// nextRun returns the duration from now until the next fire time of sched.
func nextRun(sched cron.Schedule, now time.Time) time.Duration {
	d := sched.Next(now).Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// Schedule runs RunOnce on a 5-field cron expression until ctx is cancelled.
// Runs never overlap: a run that outlasts its slot delays the next one.
// A failed run is logged and the schedule continues.
func (w *Worker) Schedule(ctx context.Context, expr string) error {
	sched, err := config.ScheduleParser.Parse(expr)
	if err != nil {
		return fmt.Errorf("invalid schedule %q: %w", expr, err)
	}

	w.logger.Infow("Worker scheduled", "schedule", expr)
	for {
		wait := nextRun(sched, w.now())
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			w.logger.Info("Worker schedule stopped")
			return nil
		case <-timer.C:
		}

		if _, err := w.RunOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			w.logger.Errorw("Scheduled drain failed", "error", err)
		}
	}
}
