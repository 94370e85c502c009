// Package queue implements the durable local mutation queue backing
// offline-first journal capture. Every create/update lands here first; the
// sync orchestrator is the only component that removes rows or touches
// retry metadata. State survives process restart: List after a restart
// reproduces the exact pending set.
package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/herdbook/herdbook/internal/journal"
)

// Sentinel errors for queue operations.
var (
	// ErrNotQueued is returned by Remove, UpdateRetry, and Cancel when no
	// pending mutation has the given id (already synced, abandoned, or
	// never enqueued).
	ErrNotQueued = errors.New("queue: mutation not queued")
	// ErrInFlight is returned by Cancel when a sync attempt for the
	// mutation is in flight. The caller retries after the attempt resolves.
	ErrInFlight = errors.New("queue: sync attempt in flight")
)

// Queue manages the queue_mutations table. The shared sole-writer *sql.DB
// serializes foreground enqueues against background drains, so a sync cycle
// cannot race a foreground write to the persisted list.
type Queue struct {
	db     *sql.DB
	logger *slog.Logger

	// nowFunc is injectable for testing.
	nowFunc func() time.Time
}

// New creates a Queue over the shared database connection.
func New(db *sql.DB, logger *slog.Logger) *Queue {
	return &Queue{db: db, logger: logger, nowFunc: time.Now}
}

// Enqueue validates the mutation's payload and persists it, returning the
// assigned mutation id. Validation failures (journal.ValidationError) are
// fatal: the row is never written. The caller suspends only for this local
// write, never for remote or assessment latency.
func (q *Queue) Enqueue(ctx context.Context, op Operation, snap journal.EntrySnapshot, baseVersion int64) (string, error) {
	if err := snap.Validate(); err != nil {
		return "", err
	}

	if op != OpCreate && op != OpUpdate {
		return "", fmt.Errorf("queue: unknown operation %q", op)
	}

	payload, err := json.Marshal(snap)
	if err != nil {
		return "", fmt.Errorf("queue: encoding payload for %s: %w", snap.EntryID, err)
	}

	id := uuid.NewString()
	now := q.nowFunc().UnixNano()

	_, err = q.db.ExecContext(ctx,
		`INSERT INTO queue_mutations
			(id, entity_id, entity_type, operation, payload, base_version, enqueued_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, snap.EntryID, EntityTypeJournalEntry, string(op), payload, baseVersion, now)
	if err != nil {
		return "", fmt.Errorf("queue: enqueue %s for %s: %w", op, snap.EntryID, err)
	}

	q.logger.Info("mutation enqueued",
		slog.String("id", id),
		slog.String("entity_id", snap.EntryID),
		slog.String("operation", string(op)),
	)

	return id, nil
}

// Claim marks a mutation as having a sync attempt in flight, which blocks
// Cancel until the attempt resolves. Returns ErrNotQueued when the row is
// gone (canceled or removed since listing) or already claimed.
func (q *Queue) Claim(ctx context.Context, id string) error {
	result, err := q.db.ExecContext(ctx,
		`UPDATE queue_mutations SET claimed_at = ? WHERE id = ? AND claimed_at IS NULL`,
		q.nowFunc().UnixNano(), id)
	if err != nil {
		return fmt.Errorf("queue: claim %s: %w", id, err)
	}

	return requireRow(result, id)
}

// Release clears a claim after a failed or conflicted attempt so the
// mutation becomes cancelable again. Successful and abandoned attempts
// remove the row instead.
func (q *Queue) Release(ctx context.Context, id string) error {
	result, err := q.db.ExecContext(ctx,
		`UPDATE queue_mutations SET claimed_at = NULL WHERE id = ? AND claimed_at IS NOT NULL`, id)
	if err != nil {
		return fmt.Errorf("queue: release %s: %w", id, err)
	}

	return requireRow(result, id)
}

// ResetClaims clears every claim and returns how many were cleared. At most
// one drain runs at a time, so any claim present when a new drain starts
// was left behind by an interrupted run and must not block cancellation
// forever.
func (q *Queue) ResetClaims(ctx context.Context) (int, error) {
	result, err := q.db.ExecContext(ctx,
		`UPDATE queue_mutations SET claimed_at = NULL WHERE claimed_at IS NOT NULL`)
	if err != nil {
		return 0, fmt.Errorf("queue: reset claims: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("queue: reset claims rows affected: %w", err)
	}

	return int(n), nil
}

// List returns all pending mutations ordered by enqueue time (rowid breaks
// ties), which preserves per-entity FIFO across restarts and retries.
func (q *Queue) List(ctx context.Context) ([]Mutation, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT id, entity_id, entity_type, operation, payload, base_version,
			enqueued_at, retry_count, last_retry_at, claimed_at
		 FROM queue_mutations ORDER BY enqueued_at, rowid`)
	if err != nil {
		return nil, fmt.Errorf("queue: list: %w", err)
	}
	defer rows.Close()

	var result []Mutation

	for rows.Next() {
		m, scanErr := scanMutation(rows)
		if scanErr != nil {
			return nil, scanErr
		}

		result = append(result, *m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("queue: iterating list rows: %w", err)
	}

	return result, nil
}

// Remove deletes a mutation after its remote write was acknowledged or its
// retry budget was exhausted. Removal is never speculative.
func (q *Queue) Remove(ctx context.Context, id string) error {
	result, err := q.db.ExecContext(ctx,
		`DELETE FROM queue_mutations WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("queue: remove %s: %w", id, err)
	}

	return requireRow(result, id)
}

// UpdateRetry records a failed sync attempt's retry metadata.
func (q *Queue) UpdateRetry(ctx context.Context, id string, retryCount int, lastRetryAt time.Time) error {
	result, err := q.db.ExecContext(ctx,
		`UPDATE queue_mutations SET retry_count = ?, last_retry_at = ? WHERE id = ?`,
		retryCount, lastRetryAt.UnixNano(), id)
	if err != nil {
		return fmt.Errorf("queue: update retry %s: %w", id, err)
	}

	return requireRow(result, id)
}

// Cancel removes a still-queued mutation at the user's request. A mutation
// whose sync attempt is in flight (claimed by the drain) is refused with
// ErrInFlight until the attempt resolves, so a cancel can never report
// success for an entry that is being mirrored. A row already synced or
// abandoned yields ErrNotQueued.
func (q *Queue) Cancel(ctx context.Context, id string) error {
	result, err := q.db.ExecContext(ctx,
		`DELETE FROM queue_mutations WHERE id = ? AND claimed_at IS NULL`, id)
	if err != nil {
		return fmt.Errorf("queue: cancel %s: %w", id, err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("queue: rows affected for %s: %w", id, err)
	}

	if n == 0 {
		var claimedAt sql.NullInt64

		err := q.db.QueryRowContext(ctx,
			`SELECT claimed_at FROM queue_mutations WHERE id = ?`, id).Scan(&claimedAt)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: %s", ErrNotQueued, id)
		}

		if err != nil {
			return fmt.Errorf("queue: cancel %s: %w", id, err)
		}

		return fmt.Errorf("%w: %s", ErrInFlight, id)
	}

	q.logger.Info("mutation canceled", slog.String("id", id))

	return nil
}

// Len returns the number of pending mutations.
func (q *Queue) Len(ctx context.Context) (int, error) {
	var count int

	err := q.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM queue_mutations`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("queue: len: %w", err)
	}

	return count, nil
}

// requireRow converts a zero-rows-affected result into ErrNotQueued.
func requireRow(result sql.Result, id string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("queue: rows affected for %s: %w", id, err)
	}

	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotQueued, id)
	}

	return nil
}

// scanMutation scans a single row, decoding the payload snapshot.
func scanMutation(rows *sql.Rows) (*Mutation, error) {
	var (
		m           Mutation
		op          string
		payload     []byte
		lastRetryAt sql.NullInt64
		claimedAt   sql.NullInt64
	)

	err := rows.Scan(&m.ID, &m.EntityID, &m.EntityType, &op, &payload,
		&m.BaseVersion, &m.EnqueuedAt, &m.RetryCount, &lastRetryAt, &claimedAt)
	if err != nil {
		return nil, fmt.Errorf("queue: scanning mutation row: %w", err)
	}

	m.Op, err = ParseOperation(op)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(payload, &m.Payload); err != nil {
		return nil, fmt.Errorf("queue: decoding payload for %s: %w", m.ID, err)
	}

	if lastRetryAt.Valid {
		m.LastRetryAt = lastRetryAt.Int64
	}

	if claimedAt.Valid {
		m.ClaimedAt = claimedAt.Int64
	}

	return &m, nil
}
