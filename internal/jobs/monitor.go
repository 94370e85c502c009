package jobs

import (
	"context"
	"log/slog"
	"time"
)

// Monitor times out jobs stuck in pending or processing longer than the
// configured threshold. It is the safety net for callbacks that never arrive.
type Monitor struct {
	tracker  *Tracker
	timeout  time.Duration
	interval time.Duration
	logger   *slog.Logger

	// nowFunc is injectable for testing.
	nowFunc func() time.Time
}

// NewMonitor creates a Monitor scanning every interval for jobs idle longer
// than timeout.
func NewMonitor(tracker *Tracker, timeout, interval time.Duration, logger *slog.Logger) *Monitor {
	return &Monitor{
		tracker:  tracker,
		timeout:  timeout,
		interval: interval,
		logger:   logger,
		nowFunc:  time.Now,
	}
}

// Scan transitions all stale jobs to timeout and returns how many moved.
// Individual transition failures are logged and do not abort the scan.
func (m *Monitor) Scan(ctx context.Context) (int, error) {
	cutoff := m.nowFunc().Add(-m.timeout)

	stale, err := m.tracker.ListStale(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	moved := 0

	for _, runID := range stale {
		if err := m.tracker.MarkTimeout(ctx, runID); err != nil {
			m.logger.Warn("timeout transition failed",
				slog.String("run_id", runID),
				slog.String("error", err.Error()),
			)

			continue
		}

		moved++
	}

	if moved > 0 {
		m.logger.Info("stale jobs timed out",
			slog.Int("count", moved),
			slog.Duration("threshold", m.timeout),
		)
	}

	return moved, nil
}

// Run scans on a ticker until ctx is canceled. Scan errors are logged and
// the loop continues.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := m.Scan(ctx); err != nil {
				m.logger.Warn("timeout scan failed", slog.String("error", err.Error()))
			}
		}
	}
}
