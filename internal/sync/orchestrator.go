// Package sync implements the queue-drain orchestration: batching pending
// mutations, applying them to the remote store, detecting conflicts,
// pacing retries through the shared backoff policy, and triggering
// assessment submission for every successfully mirrored entry.
package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	gosync "sync"
	"time"

	"github.com/herdbook/herdbook/internal/backoff"
	"github.com/herdbook/herdbook/internal/journal"
	"github.com/herdbook/herdbook/internal/queue"
	"github.com/herdbook/herdbook/internal/remote"
)

// AssessIntent is the assessment action submitted for each synced entry.
const AssessIntent = "quality_score"

// ErrSyncInFlight is returned when SyncAll is called while another sync for
// the same engine is still running. At most one drain runs at a time.
var ErrSyncInFlight = errors.New("sync: sync already in flight")

// remoteStore is the slice of the remote client the orchestrator needs.
// *remote.Client implements it; tests inject stubs.
type remoteStore interface {
	Upsert(ctx context.Context, entityID string, payload json.RawMessage, baseVersion int64) (*remote.Record, error)
}

// jobSubmitter triggers downstream assessment submission for synced
// entries. *jobs.Tracker implements it.
type jobSubmitter interface {
	Submit(ctx context.Context, intent string, snap journal.EntrySnapshot) (string, error)
}

// Result summarizes one SyncAll invocation. Created fresh per run and
// immutable once returned. Nothing is swallowed: abandoned mutations and
// conflicts always show up here.
type Result struct {
	Synced    int
	Failed    int
	Abandoned int
	Conflicts []Conflict
	Errors    []string
}

// Orchestrator drains the durable queue against the remote store.
type Orchestrator struct {
	queue     *queue.Queue
	remote    remoteStore
	jobs      jobSubmitter
	policy    *backoff.Policy
	batchSize int
	logger    *slog.Logger

	// mu serializes SyncAll; TryLock keeps a second invocation from
	// blocking behind an in-flight drain.
	mu gosync.Mutex

	// nowFunc is injectable for testing.
	nowFunc func() time.Time
}

// NewOrchestrator creates an Orchestrator. The policy is shared with the
// job tracker so both paths degrade at the same rate.
func NewOrchestrator(q *queue.Queue, rs remoteStore, js jobSubmitter,
	policy *backoff.Policy, batchSize int, logger *slog.Logger,
) *Orchestrator {
	return &Orchestrator{
		queue:     q,
		remote:    rs,
		jobs:      js,
		policy:    policy,
		batchSize: batchSize,
		logger:    logger,
		nowFunc:   time.Now,
	}
}

// SyncAll drains the full queue in batches and returns the run summary.
// The drain is restartable: every mutation is removed only after its remote
// write is acknowledged, and the remote upsert is idempotent per entity id,
// so re-invoking after a partial run makes forward progress without
// duplicate writes. Returns ErrSyncInFlight if a drain is already running.
func (o *Orchestrator) SyncAll(ctx context.Context) (*Result, error) {
	if !o.mu.TryLock() {
		return nil, ErrSyncInFlight
	}
	defer o.mu.Unlock()

	// Claims left by an interrupted drain would block cancellation forever.
	if n, err := o.queue.ResetClaims(ctx); err != nil {
		return nil, err
	} else if n > 0 {
		o.logger.Warn("stale claims cleared", slog.Int("count", n))
	}

	muts, err := o.queue.List(ctx)
	if err != nil {
		return nil, err
	}

	result := &Result{}

	// Entities whose earlier mutation failed or conflicted this run.
	// Later mutations for them stay queued untouched so per-entity order
	// is never violated across retries.
	blocked := make(map[string]bool)

	// Versions advanced by our own successful writes this run. A queued
	// update stacked on a just-synced create fast-forwards to the new
	// version instead of tripping a false conflict.
	advanced := make(map[string]int64)

	for start := 0; start < len(muts); start += o.batchSize {
		end := start + o.batchSize
		if end > len(muts) {
			end = len(muts)
		}

		for i := start; i < end; i++ {
			if ctx.Err() != nil {
				return result, fmt.Errorf("sync: drain interrupted: %w", ctx.Err())
			}

			o.syncOne(ctx, &muts[i], result, blocked, advanced)
		}
	}

	o.logger.Info("sync run finished",
		slog.Int("synced", result.Synced),
		slog.Int("failed", result.Failed),
		slog.Int("abandoned", result.Abandoned),
		slog.Int("conflicts", len(result.Conflicts)),
	)

	return result, nil
}

// syncOne applies a single mutation and updates the run result.
func (o *Orchestrator) syncOne(ctx context.Context, m *queue.Mutation, result *Result,
	blocked map[string]bool, advanced map[string]int64,
) {
	if blocked[m.EntityID] {
		o.logger.Debug("mutation deferred behind blocked entity",
			slog.String("id", m.ID),
			slog.String("entity_id", m.EntityID),
		)

		return
	}

	// The claim pins the row for the duration of the attempt: Cancel is
	// refused until the attempt resolves, so a cancel can never succeed
	// against an entry that is about to be mirrored.
	if err := o.queue.Claim(ctx, m.ID); err != nil {
		if errors.Is(err, queue.ErrNotQueued) {
			// Canceled since listing; nothing to sync.
			o.logger.Debug("mutation gone before attempt", slog.String("id", m.ID))
			return
		}

		result.Errors = append(result.Errors, fmt.Sprintf("claim %s: %v", m.ID, err))

		return
	}

	payload, err := json.Marshal(m.Payload)
	if err != nil {
		// Undecodable payloads cannot ever sync; abandon and report.
		o.abandon(ctx, m, result, fmt.Sprintf("encoding payload: %v", err))
		return
	}

	baseVersion := m.BaseVersion
	if v, ok := advanced[m.EntityID]; ok && v > baseVersion {
		baseVersion = v
	}

	rec, err := o.remote.Upsert(ctx, m.EntityID, payload, baseVersion)
	if err == nil {
		o.finishSynced(ctx, m, rec, result, advanced)
		return
	}

	var conflictErr *remote.ConflictError
	if errors.As(err, &conflictErr) {
		// Surfaced as data, not an error. The mutation stays queued,
		// untouched, for manual resolution.
		if c := Detect(m, conflictErr.ServerVersion); c != nil {
			result.Conflicts = append(result.Conflicts, *c)
			blocked[m.EntityID] = true

			o.logger.Warn("sync conflict detected",
				slog.String("entity_id", m.EntityID),
				slog.Int64("local_version", c.LocalVersion),
				slog.Int64("server_version", c.ServerVersion),
			)
		}

		o.release(ctx, m)

		return
	}

	blocked[m.EntityID] = true

	if !remote.IsRetryable(err) {
		// Fatal rejection (validation-class). Retrying cannot help.
		o.abandon(ctx, m, result, err.Error())
		return
	}

	o.recordFailure(ctx, m, result, err)
}

// release clears the attempt's claim so the mutation is cancelable again.
func (o *Orchestrator) release(ctx context.Context, m *queue.Mutation) {
	if err := o.queue.Release(ctx, m.ID); err != nil && !errors.Is(err, queue.ErrNotQueued) {
		o.logger.Warn("releasing claim failed",
			slog.String("id", m.ID),
			slog.String("error", err.Error()),
		)
	}
}

// finishSynced removes the acknowledged mutation and triggers downstream
// assessment submission. Submission failure never un-syncs the mutation; it
// is reported in the run errors instead.
func (o *Orchestrator) finishSynced(ctx context.Context, m *queue.Mutation, rec *remote.Record,
	result *Result, advanced map[string]int64,
) {
	if err := o.queue.Remove(ctx, m.ID); err != nil && !errors.Is(err, queue.ErrNotQueued) {
		result.Errors = append(result.Errors, fmt.Sprintf("remove %s: %v", m.ID, err))
		result.Failed++

		return
	}

	advanced[m.EntityID] = rec.Version
	result.Synced++

	if _, err := o.jobs.Submit(ctx, AssessIntent, m.Payload); err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("assessment for %s: %v", m.EntityID, err))

		o.logger.Warn("assessment submission failed after sync",
			slog.String("entity_id", m.EntityID),
			slog.String("error", err.Error()),
		)
	}
}

// recordFailure books a transient failure: retry metadata is bumped and the
// mutation stays queued, unless the retry budget is now exhausted, in which
// case it is abandoned and counted.
func (o *Orchestrator) recordFailure(ctx context.Context, m *queue.Mutation, result *Result, cause error) {
	newCount := m.RetryCount + 1

	if !o.policy.ShouldRetry(m.RetryCount) {
		o.abandon(ctx, m, result, cause.Error())
		return
	}

	if err := o.queue.UpdateRetry(ctx, m.ID, newCount, o.nowFunc()); err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("update retry %s: %v", m.ID, err))
	}

	o.release(ctx, m)

	result.Failed++
	result.Errors = append(result.Errors, fmt.Sprintf("sync %s: %v", m.EntityID, cause))

	o.logger.Warn("sync attempt failed",
		slog.String("entity_id", m.EntityID),
		slog.Int("retry_count", newCount),
		slog.Duration("next_delay", o.policy.NextDelay(newCount)),
		slog.String("error", cause.Error()),
	)
}

// abandon permanently removes a mutation past help and records it. Never
// silent: the count and the cause both land in the result.
func (o *Orchestrator) abandon(ctx context.Context, m *queue.Mutation, result *Result, cause string) {
	if err := o.queue.Remove(ctx, m.ID); err != nil && !errors.Is(err, queue.ErrNotQueued) {
		result.Errors = append(result.Errors, fmt.Sprintf("abandon %s: %v", m.ID, err))
		return
	}

	result.Abandoned++
	result.Errors = append(result.Errors, fmt.Sprintf("abandoned %s after %d retries: %s",
		m.EntityID, m.RetryCount, cause))

	o.logger.Error("mutation abandoned",
		slog.String("id", m.ID),
		slog.String("entity_id", m.EntityID),
		slog.Int("retry_count", m.RetryCount),
		slog.String("cause", cause),
	)
}
