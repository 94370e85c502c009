// Package jobs owns the lifecycle of AI-assessment jobs, from submission to
// a terminal state. Transitions follow a fixed graph:
//
//	pending → processing → {completed, failed, timeout}
//
// with an explicit Retry edge from failed/timeout back to pending. All
// transitions are enforced by guarded UPDATEs against the assessment_jobs
// table, so a duplicate callback against a terminal job is a logged no-op
// rather than an error.
package jobs

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/herdbook/herdbook/internal/backoff"
	"github.com/herdbook/herdbook/internal/journal"
	"github.com/herdbook/herdbook/internal/remote"
)

// Sentinel errors for tracker operations.
var (
	// ErrNotFound means no job exists for the given run id.
	ErrNotFound = errors.New("jobs: job not found")
	// ErrInvalidTransition means the requested transition is off the graph
	// and the job is not in a terminal state (terminal no-ops are silent).
	ErrInvalidTransition = errors.New("jobs: invalid status transition")
	// ErrRetryExhausted means the job's retry budget is spent.
	ErrRetryExhausted = errors.New("jobs: retry budget exhausted")
)

// submitter is the slice of the remote client the tracker needs.
// *remote.Client implements it; tests inject stubs.
type submitter interface {
	SubmitAssessment(ctx context.Context, req remote.AssessmentRequest) (*remote.AssessmentReply, error)
}

// Tracker manages the assessment_jobs table over the shared sole-writer
// database connection.
type Tracker struct {
	db     *sql.DB
	submit submitter
	policy *backoff.Policy
	logger *slog.Logger

	// nowFunc is injectable for testing.
	nowFunc func() time.Time
}

// NewTracker creates a Tracker. The backoff policy is the same value object
// the sync orchestrator uses, so queue drains and job retries share one
// retry budget.
func NewTracker(db *sql.DB, submit submitter, policy *backoff.Policy, logger *slog.Logger) *Tracker {
	return &Tracker{
		db:      db,
		submit:  submit,
		policy:  policy,
		logger:  logger,
		nowFunc: time.Now,
	}
}

// Submit sends an assessment request for the given entry snapshot and
// records the resulting job as pending. The request carries a fresh UUID
// as its idempotency key; the assessment service assigns the run id.
func (t *Tracker) Submit(ctx context.Context, intent string, snap journal.EntrySnapshot) (string, error) {
	inputs, err := json.Marshal(snap)
	if err != nil {
		return "", fmt.Errorf("jobs: encoding inputs for %s: %w", snap.EntryID, err)
	}

	reply, err := t.submit.SubmitAssessment(ctx, remote.AssessmentRequest{
		Domain:    remote.AssessmentDomain,
		Action:    intent,
		OwnerID:   snap.OwnerID,
		EntityID:  snap.EntryID,
		Inputs:    inputs,
		RequestID: uuid.NewString(),
	})
	if err != nil {
		return "", fmt.Errorf("jobs: submitting assessment for %s: %w", snap.EntryID, err)
	}

	runID := reply.RunID
	if runID == "" {
		runID = uuid.NewString()
	}

	now := t.nowFunc().UnixNano()

	_, err = t.db.ExecContext(ctx,
		`INSERT INTO assessment_jobs
			(run_id, entity_id, owner_id, status, intent, inputs, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, snap.EntryID, snap.OwnerID, string(StatusPending), intent, inputs, now, now)
	if err != nil {
		return "", fmt.Errorf("jobs: recording job %s: %w", runID, err)
	}

	t.logger.Info("assessment job submitted",
		slog.String("run_id", runID),
		slog.String("entity_id", snap.EntryID),
		slog.String("intent", intent),
	)

	return runID, nil
}

// MarkProcessing transitions a pending job to processing, storing the plan
// the assessment service reported. Duplicate or terminal-state calls are
// logged no-ops.
func (t *Tracker) MarkProcessing(ctx context.Context, runID string, plan json.RawMessage) error {
	return t.transition(ctx, runID, StatusProcessing,
		`UPDATE assessment_jobs SET status = ?, plan = ?, updated_at = ?
		 WHERE run_id = ? AND status = ?`,
		string(StatusProcessing), plan, t.nowFunc().UnixNano(), runID, string(StatusPending))
}

// MarkCompleted transitions a processing job to completed with its results.
func (t *Tracker) MarkCompleted(ctx context.Context, runID string, results json.RawMessage) error {
	return t.transition(ctx, runID, StatusCompleted,
		`UPDATE assessment_jobs SET status = ?, results = ?, error_msg = '', updated_at = ?
		 WHERE run_id = ? AND status = ?`,
		string(StatusCompleted), results, t.nowFunc().UnixNano(), runID, string(StatusProcessing))
}

// MarkFailed transitions a processing job to failed, recording the error.
func (t *Tracker) MarkFailed(ctx context.Context, runID, errMsg string) error {
	return t.transition(ctx, runID, StatusFailed,
		`UPDATE assessment_jobs SET status = ?, error_msg = ?, updated_at = ?
		 WHERE run_id = ? AND status = ?`,
		string(StatusFailed), errMsg, t.nowFunc().UnixNano(), runID, string(StatusProcessing))
}

// MarkTimeout transitions a pending or processing job to timeout. Called by
// the monitor when no callback arrived within the configured threshold.
func (t *Tracker) MarkTimeout(ctx context.Context, runID string) error {
	return t.transition(ctx, runID, StatusTimeout,
		`UPDATE assessment_jobs SET status = ?, error_msg = ?, updated_at = ?
		 WHERE run_id = ? AND status IN (?, ?)`,
		string(StatusTimeout), "assessment timed out", t.nowFunc().UnixNano(),
		runID, string(StatusPending), string(StatusProcessing))
}

// transition runs a guarded UPDATE. Zero rows affected means the guard did
// not match: terminal jobs and already-at-target jobs absorb the call as an
// idempotent no-op; anything else is an invalid transition.
func (t *Tracker) transition(ctx context.Context, runID string, target Status, query string, args ...any) error {
	result, err := t.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("jobs: marking %s %s: %w", runID, target, err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("jobs: rows affected for %s: %w", runID, err)
	}

	if n == 1 {
		t.logger.Info("job status changed",
			slog.String("run_id", runID),
			slog.String("status", string(target)),
		)

		return nil
	}

	job, getErr := t.Get(ctx, runID)
	if getErr != nil {
		return getErr
	}

	if job.Status.IsTerminal() || job.Status == target {
		t.logger.Info("duplicate status update ignored",
			slog.String("run_id", runID),
			slog.String("status", string(job.Status)),
			slog.String("requested", string(target)),
		)

		return nil
	}

	return fmt.Errorf("%w: %s is %s, requested %s", ErrInvalidTransition, runID, job.Status, target)
}

// Retry transitions a failed or timed-out job back to pending, increments
// its retry count, and re-submits the stored inputs with the run id as the
// idempotency key so the assessment service re-enqueues rather than forks
// the run. Valid only from a terminal retryable state and within the retry
// budget.
func (t *Tracker) Retry(ctx context.Context, runID string) error {
	job, err := t.Get(ctx, runID)
	if err != nil {
		return err
	}

	if job.Status != StatusFailed && job.Status != StatusTimeout {
		return fmt.Errorf("%w: %s is %s, retry requires failed or timeout",
			ErrInvalidTransition, runID, job.Status)
	}

	if !t.policy.ShouldRetry(job.RetryCount) {
		return fmt.Errorf("%w: %s at %d retries", ErrRetryExhausted, runID, job.RetryCount)
	}

	now := t.nowFunc().UnixNano()

	result, err := t.db.ExecContext(ctx,
		`UPDATE assessment_jobs
		 SET status = ?, retry_count = retry_count + 1, error_msg = '', results = NULL, updated_at = ?
		 WHERE run_id = ? AND status IN (?, ?)`,
		string(StatusPending), now, runID, string(StatusFailed), string(StatusTimeout))
	if err != nil {
		return fmt.Errorf("jobs: retrying %s: %w", runID, err)
	}

	if n, rowsErr := result.RowsAffected(); rowsErr != nil || n == 0 {
		if rowsErr != nil {
			return fmt.Errorf("jobs: retry rows affected for %s: %w", runID, rowsErr)
		}

		return fmt.Errorf("%w: %s changed state during retry", ErrInvalidTransition, runID)
	}

	t.logger.Info("job retried",
		slog.String("run_id", runID),
		slog.Int("retry_count", job.RetryCount+1),
	)

	if _, err := t.submit.SubmitAssessment(ctx, remote.AssessmentRequest{
		Domain:    remote.AssessmentDomain,
		Action:    job.Intent,
		OwnerID:   job.OwnerID,
		EntityID:  job.EntityID,
		Inputs:    job.Inputs,
		RequestID: runID,
	}); err != nil {
		// The local transition stands; the monitor times the job out if the
		// re-submission never lands.
		t.logger.Warn("assessment re-submission failed",
			slog.String("run_id", runID),
			slog.String("error", err.Error()),
		)
	}

	return nil
}

// Get returns the job for the given run id.
func (t *Tracker) Get(ctx context.Context, runID string) (*Job, error) {
	row := t.db.QueryRowContext(ctx, jobSelectCols+`WHERE run_id = ?`, runID)

	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, runID)
	}

	if err != nil {
		return nil, err
	}

	return job, nil
}

// ListStale returns run ids of pending or processing jobs whose last update
// is older than cutoff. Used by the timeout monitor.
func (t *Tracker) ListStale(ctx context.Context, cutoff time.Time) ([]string, error) {
	rows, err := t.db.QueryContext(ctx,
		`SELECT run_id FROM assessment_jobs
		 WHERE status IN (?, ?) AND updated_at < ?
		 ORDER BY updated_at`,
		string(StatusPending), string(StatusProcessing), cutoff.UnixNano())
	if err != nil {
		return nil, fmt.Errorf("jobs: listing stale jobs: %w", err)
	}
	defer rows.Close()

	var ids []string

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("jobs: scanning stale run id: %w", err)
		}

		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("jobs: iterating stale rows: %w", err)
	}

	return ids, nil
}

// List returns all jobs ordered by creation time, newest first.
func (t *Tracker) List(ctx context.Context) ([]Job, error) {
	rows, err := t.db.QueryContext(ctx, jobSelectCols+`ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("jobs: list: %w", err)
	}
	defer rows.Close()

	var result []Job

	for rows.Next() {
		job, scanErr := scanJob(rows)
		if scanErr != nil {
			return nil, scanErr
		}

		result = append(result, *job)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("jobs: iterating list rows: %w", err)
	}

	return result, nil
}

// jobSelectCols is the column list shared by all job queries.
const jobSelectCols = `SELECT run_id, entity_id, owner_id, status, intent,
	inputs, plan, results, error_msg, retry_count, created_at, updated_at
 FROM assessment_jobs `

// rowScanner abstracts *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanJob scans a single row into a Job.
func scanJob(row rowScanner) (*Job, error) {
	var (
		j        Job
		status   string
		inputs   []byte
		plan     []byte
		results  []byte
		errorMsg sql.NullString
	)

	err := row.Scan(&j.RunID, &j.EntityID, &j.OwnerID, &status, &j.Intent,
		&inputs, &plan, &results, &errorMsg, &j.RetryCount, &j.CreatedAt, &j.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	if err != nil {
		return nil, fmt.Errorf("jobs: scanning job row: %w", err)
	}

	j.Status, err = ParseStatus(status)
	if err != nil {
		return nil, err
	}

	j.Inputs = inputs
	j.Plan = plan
	j.Results = results
	j.ErrorMsg = errorMsg.String

	return &j, nil
}
