package callback

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/herdbook/herdbook/internal/backoff"
	"github.com/herdbook/herdbook/internal/jobs"
	"github.com/herdbook/herdbook/internal/journal"
	"github.com/herdbook/herdbook/internal/remote"
	"github.com/herdbook/herdbook/internal/store"
)

// testLogWriter routes slog output through t.Log.
type testLogWriter struct{ t *testing.T }

func (w testLogWriter) Write(p []byte) (int, error) {
	w.t.Log(string(p))
	return len(p), nil
}

func testLogger(t *testing.T) *slog.Logger {
	t.Helper()

	return slog.New(slog.NewTextHandler(testLogWriter{t: t}, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

// stubSubmitter satisfies the tracker's submitter with canned run ids.
type stubSubmitter struct{ next int }

func (s *stubSubmitter) SubmitAssessment(context.Context, remote.AssessmentRequest) (*remote.AssessmentReply, error) {
	s.next++
	return &remote.AssessmentReply{RunID: fmt.Sprintf("run-%d", s.next), Status: "pending"}, nil
}

// newTestReceiver builds a Receiver over a real tracker and returns both.
func newTestReceiver(t *testing.T) (*Receiver, *jobs.Tracker) {
	t.Helper()

	db, err := store.Open(filepath.Join(t.TempDir(), "herdbook.db"), testLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	policy := backoff.New(3, time.Second, time.Minute)
	tracker := jobs.NewTracker(db, &stubSubmitter{}, policy, testLogger(t))

	return NewReceiver(tracker, testLogger(t)), tracker
}

// submitTestJob records a pending job and returns its run id.
func submitTestJob(t *testing.T, tracker *jobs.Tracker) string {
	t.Helper()

	runID, err := tracker.Submit(context.Background(), "quality_score", journal.EntrySnapshot{
		EntryID:    "entry-1",
		OwnerID:    "owner-1",
		Activity:   "feeding",
		RecordedAt: time.Now().Unix(),
	})
	require.NoError(t, err)

	return runID
}

func TestReceiver_AppliesLifecycleUpdates(t *testing.T) {
	t.Parallel()

	receiver, tracker := newTestReceiver(t)
	ctx := context.Background()
	runID := submitTestJob(t, tracker)

	outcome := receiver.Handle(ctx, StatusUpdate{RunID: runID, Status: "processing", Plan: json.RawMessage(`{"steps":2}`)})
	require.True(t, outcome.OK, "processing update: %s", outcome.Error)

	outcome = receiver.Handle(ctx, StatusUpdate{RunID: runID, Status: "completed", Results: json.RawMessage(`{"score":92}`)})
	require.True(t, outcome.OK, "completed update: %s", outcome.Error)

	job, err := tracker.Get(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusCompleted, job.Status)
	assert.JSONEq(t, `{"score":92}`, string(job.Results))
}

func TestReceiver_DuplicateTerminalCallbackIsAccepted(t *testing.T) {
	t.Parallel()

	receiver, tracker := newTestReceiver(t)
	ctx := context.Background()
	runID := submitTestJob(t, tracker)

	require.True(t, receiver.Handle(ctx, StatusUpdate{RunID: runID, Status: "processing"}).OK)
	require.True(t, receiver.Handle(ctx, StatusUpdate{RunID: runID, Status: "completed", Results: json.RawMessage(`{"score":92}`)}).OK)

	// Second completed notice: accepted, ignored, no state change.
	outcome := receiver.Handle(ctx, StatusUpdate{RunID: runID, Status: "completed", Results: json.RawMessage(`{"score":1}`)})
	assert.True(t, outcome.OK)
	assert.Empty(t, outcome.Error)

	job, err := tracker.Get(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusCompleted, job.Status)
	assert.JSONEq(t, `{"score":92}`, string(job.Results))
}

func TestReceiver_RejectsMalformedUpdates(t *testing.T) {
	t.Parallel()

	receiver, tracker := newTestReceiver(t)
	ctx := context.Background()
	runID := submitTestJob(t, tracker)

	tests := []struct {
		name   string
		update StatusUpdate
	}{
		{"missing run id", StatusUpdate{Status: "completed"}},
		{"unknown status", StatusUpdate{RunID: runID, Status: "exploded"}},
		{"unknown run", StatusUpdate{RunID: "no-such-run", Status: "processing"}},
		{"off-graph transition", StatusUpdate{RunID: runID, Status: "completed"}}, // still pending
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			outcome := receiver.Handle(ctx, tt.update)
			assert.False(t, outcome.OK)
			assert.NotEmpty(t, outcome.Error)
		})
	}
}

func TestReceiver_BatchRejectsIndividually(t *testing.T) {
	t.Parallel()

	receiver, tracker := newTestReceiver(t)
	ctx := context.Background()
	runID := submitTestJob(t, tracker)

	batch := receiver.HandleBatch(ctx, []StatusUpdate{
		{RunID: "bogus", Status: "completed"},           // rejected: unknown run
		{RunID: runID, Status: "processing"},            // applied
		{RunID: runID, Status: "bogus-status"},          // rejected: bad status
		{RunID: runID, Status: "failed", Error: "boom"}, // applied
	})

	assert.Equal(t, 2, batch.Accepted)
	assert.Equal(t, 2, batch.Rejected)
	require.Len(t, batch.Outcomes, 4)

	// The bad entries did not abort the rest of the batch.
	job, err := tracker.Get(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusFailed, job.Status)
	assert.Equal(t, "boom", job.ErrorMsg)
}

func TestReceiver_FailedUpdateDefaultsErrorMessage(t *testing.T) {
	t.Parallel()

	receiver, tracker := newTestReceiver(t)
	ctx := context.Background()
	runID := submitTestJob(t, tracker)

	require.True(t, receiver.Handle(ctx, StatusUpdate{RunID: runID, Status: "processing"}).OK)
	require.True(t, receiver.Handle(ctx, StatusUpdate{RunID: runID, Status: "failed"}).OK)

	job, err := tracker.Get(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, "assessment failed", job.ErrorMsg)
}
