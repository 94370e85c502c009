package sync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/herdbook/herdbook/internal/backoff"
)

// scriptedDrainer returns pre-programmed results, one per call.
type scriptedDrainer struct {
	results []*Result
	errs    []error
	calls   int
}

func (d *scriptedDrainer) SyncAll(context.Context) (*Result, error) {
	i := d.calls
	d.calls++

	if i < len(d.errs) && d.errs[i] != nil {
		return nil, d.errs[i]
	}

	if i < len(d.results) {
		return d.results[i], nil
	}

	return &Result{}, nil
}

// runScripted runs the Runner with a sleep stub that records delays and
// cancels the context after maxSleeps sleeps.
func runScripted(t *testing.T, drainer *scriptedDrainer, maxSleeps int) []time.Duration {
	t.Helper()

	policy := backoff.New(5, time.Second, time.Minute)
	runner := NewRunner(drainer, policy, 5*time.Minute, testLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var delays []time.Duration

	runner.sleepFunc = func(ctx context.Context, d time.Duration) error {
		delays = append(delays, d)

		if len(delays) >= maxSleeps {
			cancel()
			return ctx.Err()
		}

		return nil
	}

	if err := runner.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Run = %v, want context.Canceled", err)
	}

	return delays
}

func TestRunner_CleanRunsUsePollInterval(t *testing.T) {
	t.Parallel()

	drainer := &scriptedDrainer{results: []*Result{{Synced: 2}, {}, {}}}

	delays := runScripted(t, drainer, 3)

	for i, d := range delays {
		if d != 5*time.Minute {
			t.Errorf("delay %d = %v, want poll interval 5m", i, d)
		}
	}
}

func TestRunner_FailingRunsRescheduleOnBackoff(t *testing.T) {
	t.Parallel()

	drainer := &scriptedDrainer{results: []*Result{
		{Failed: 1},
		{Failed: 1},
		{Synced: 1},
	}}

	delays := runScripted(t, drainer, 3)

	// Two failing runs back off (well under the 5m interval), then the
	// clean run restores the poll interval.
	if delays[0] > 2*time.Second {
		t.Errorf("delay 0 = %v, want ~1s backoff", delays[0])
	}

	if delays[1] > 4*time.Second {
		t.Errorf("delay 1 = %v, want ~2s backoff", delays[1])
	}

	if delays[2] != 5*time.Minute {
		t.Errorf("delay 2 = %v, want poll interval after clean run", delays[2])
	}
}

func TestRunner_DrainErrorKeepsLooping(t *testing.T) {
	t.Parallel()

	drainer := &scriptedDrainer{errs: []error{errors.New("db busy"), nil}}

	delays := runScripted(t, drainer, 2)

	if drainer.calls != 2 {
		t.Errorf("drain calls = %d, want 2 (loop survives errors)", drainer.calls)
	}

	if delays[0] > 2*time.Second {
		t.Errorf("delay after error = %v, want backoff", delays[0])
	}
}
