package schedule

import (
	"context"
	"log/slog"
	"time"
)

// Loop calls run at every time produced by sched until ctx is done. Runs
// never overlap: a run that outlasts its slot delays the next one to the
// first scheduled time after it finished. Errors from run are logged and do
// not end the loop.
//
// Loop returns nil when ctx is canceled.
func Loop(ctx context.Context, sched Schedule, run func(ctx context.Context) error, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	next := sched.Next(time.Now())
	for {
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}

		logger.Info("scheduled run starting", "scheduled_at", next)
		start := time.Now()
		if err := run(ctx); err != nil {
			logger.Error("scheduled run failed", "error", err, "duration", time.Since(start))
		} else {
			logger.Info("scheduled run finished", "duration", time.Since(start))
		}
		if ctx.Err() != nil {
			return nil
		}

		next = sched.Next(time.Now())
	}
}
