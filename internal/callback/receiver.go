// Package callback accepts asynchronous assessment status notices, single
// or batched, over HTTP or the optional websocket stream, and applies them
// idempotently through the job tracker's transition rules. A malformed or
// unauthenticated entry is rejected individually; it never aborts the rest
// of a batch.
package callback

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/herdbook/herdbook/internal/jobs"
)

// transitioner is the slice of the job tracker the receiver drives.
// *jobs.Tracker implements it.
type transitioner interface {
	MarkProcessing(ctx context.Context, runID string, plan json.RawMessage) error
	MarkCompleted(ctx context.Context, runID string, results json.RawMessage) error
	MarkFailed(ctx context.Context, runID, errMsg string) error
	MarkTimeout(ctx context.Context, runID string) error
}

// StatusUpdate is one wire-format status notice from the assessment
// service.
type StatusUpdate struct {
	RunID   string          `json:"run_id"`
	Status  string          `json:"status"`
	Plan    json.RawMessage `json:"plan,omitempty"`
	Results json.RawMessage `json:"results,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// Outcome reports how a single update was handled. OK is true for applied
// transitions and for idempotent no-ops absorbed by the tracker, such as a
// redelivery against a terminal job. OK is false only for rejections, and
// then Error carries the cause.
type Outcome struct {
	RunID string `json:"run_id"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// BatchOutcome summarizes a batched delivery.
type BatchOutcome struct {
	Accepted int       `json:"accepted"`
	Rejected int       `json:"rejected"`
	Outcomes []Outcome `json:"outcomes"`
}

// Receiver applies status updates to the tracker.
type Receiver struct {
	tracker transitioner
	logger  *slog.Logger
}

// NewReceiver creates a Receiver over the given tracker.
func NewReceiver(tracker transitioner, logger *slog.Logger) *Receiver {
	return &Receiver{tracker: tracker, logger: logger}
}

// Handle applies a single status update. The update's transition runs under
// the tracker's graph rules, so duplicates against terminal jobs come back
// as accepted no-ops.
func (r *Receiver) Handle(ctx context.Context, u StatusUpdate) Outcome {
	if err := r.apply(ctx, u); err != nil {
		r.logger.Warn("status update rejected",
			slog.String("run_id", u.RunID),
			slog.String("status", u.Status),
			slog.String("error", err.Error()),
		)

		return Outcome{RunID: u.RunID, OK: false, Error: err.Error()}
	}

	return Outcome{RunID: u.RunID, OK: true}
}

// HandleBatch applies each update independently: batch processing is N
// idempotent single applications.
func (r *Receiver) HandleBatch(ctx context.Context, updates []StatusUpdate) BatchOutcome {
	batch := BatchOutcome{Outcomes: make([]Outcome, 0, len(updates))}

	for _, u := range updates {
		outcome := r.Handle(ctx, u)

		if outcome.OK {
			batch.Accepted++
		} else {
			batch.Rejected++
		}

		batch.Outcomes = append(batch.Outcomes, outcome)
	}

	return batch
}

// apply validates and routes one update to the matching transition.
func (r *Receiver) apply(ctx context.Context, u StatusUpdate) error {
	if u.RunID == "" {
		return errors.New("callback: missing run_id")
	}

	status, err := jobs.ParseStatus(u.Status)
	if err != nil {
		return err
	}

	switch status {
	case jobs.StatusPending:
		// Submission ack; the job is already at least pending locally.
		r.logger.Debug("pending ack absorbed", slog.String("run_id", u.RunID))
		return nil
	case jobs.StatusProcessing:
		return r.tracker.MarkProcessing(ctx, u.RunID, u.Plan)
	case jobs.StatusCompleted:
		return r.tracker.MarkCompleted(ctx, u.RunID, u.Results)
	case jobs.StatusFailed:
		msg := u.Error
		if msg == "" {
			msg = "assessment failed"
		}

		return r.tracker.MarkFailed(ctx, u.RunID, msg)
	case jobs.StatusTimeout:
		return r.tracker.MarkTimeout(ctx, u.RunID)
	default:
		return fmt.Errorf("callback: unhandled status %q", status)
	}
}
