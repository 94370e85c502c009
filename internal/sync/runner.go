package sync

import (
	"context"
	"log/slog"
	"time"

	"github.com/herdbook/herdbook/internal/backoff"
)

// drainer is the slice of the Orchestrator the Runner drives.
type drainer interface {
	SyncAll(ctx context.Context) (*Result, error)
}

// Runner drives periodic queue drains in serve mode. Clean runs wait the
// full poll interval; runs with transient failures reschedule on the shared
// backoff curve so a flapping connection is probed sooner, without
// hot-looping when it stays down.
type Runner struct {
	orch     drainer
	policy   *backoff.Policy
	interval time.Duration
	logger   *slog.Logger

	// sleepFunc is injectable so tests run without wall-clock waits.
	sleepFunc func(ctx context.Context, d time.Duration) error
}

// NewRunner creates a Runner around the given orchestrator.
func NewRunner(orch drainer, policy *backoff.Policy, interval time.Duration, logger *slog.Logger) *Runner {
	return &Runner{
		orch:      orch,
		policy:    policy,
		interval:  interval,
		logger:    logger,
		sleepFunc: sleepCtx,
	}
}

// Run loops until ctx is canceled: drain, then wait. The first drain starts
// immediately. Returns ctx.Err() on cancellation; drain errors are logged
// and the loop continues (the queue is durable, nothing is lost by waiting
// for the next cycle).
func (r *Runner) Run(ctx context.Context) error {
	failures := 0

	for {
		result, err := r.orch.SyncAll(ctx)

		switch {
		case err != nil:
			if ctx.Err() != nil {
				return ctx.Err()
			}

			failures++

			r.logger.Warn("sync run errored",
				slog.Int("consecutive_failures", failures),
				slog.String("error", err.Error()),
			)
		case result.Failed > 0:
			failures++
		default:
			failures = 0
		}

		delay := r.interval
		if failures > 0 {
			if d := r.policy.NextDelay(failures - 1); d < delay {
				delay = d
			}
		}

		if err := r.sleepFunc(ctx, delay); err != nil {
			return err
		}
	}
}

// sleepCtx sleeps for d or until ctx is canceled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
