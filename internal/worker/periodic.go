package worker

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"go.uber.org/zap"
)

// Task is one iteration of a periodic job.
type Task func(ctx context.Context) error

// IntervalFunc yields the pause before the next iteration. It is consulted after every
// iteration so configuration changes apply without a restart.
type IntervalFunc func(ctx context.Context) time.Duration

// Every returns a constant IntervalFunc.
func Every(d time.Duration) IntervalFunc {
	return func(context.Context) time.Duration { return d }
}

// RunPeriodic runs task immediately and then after each interval until ctx is done.
// Errors and panics are logged and never stop the loop. An in-flight iteration sees
// ctx cancellation but is not waited for beyond its own checks.
func RunPeriodic(ctx context.Context, name string, interval IntervalFunc, task Task, logger *zap.Logger) error {
	log := logger.With(zap.String("task", name))
	log.Info("periodic task started")
	defer log.Info("periodic task stopped")

	for {
		start := time.Now()
		if err := runOnce(ctx, task); err != nil && ctx.Err() == nil {
			log.Error("iteration failed", zap.Duration("elapsed", time.Since(start)), zap.Error(err))
		}

		wait := interval(ctx)
		if wait <= 0 {
			wait = time.Minute
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

func runOnce(ctx context.Context, task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v\n%s", r, debug.Stack())
		}
	}()
	return task(ctx)
}
