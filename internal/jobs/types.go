package jobs

import (
	"encoding/json"
	"fmt"
)

// Status is the lifecycle state of an assessment job. The value doubles as
// the wire and database representation.
type Status string

// Job status values.
const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusTimeout    Status = "timeout"
)

// ParseStatus converts a wire/database TEXT value to a Status.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed, StatusTimeout:
		return Status(s), nil
	default:
		return "", fmt.Errorf("jobs: unknown status %q", s)
	}
}

// IsTerminal reports whether the status ends the lifecycle. Terminal jobs
// only leave their state through an explicit Retry.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusTimeout
}

// Job is one asynchronous AI-assessment request for a single journal entry,
// persisted in the assessment_jobs table and mutated only through Tracker
// transitions. Results is set only when completed; ErrorMsg only when
// failed or timed out. Timestamps are unix nanos.
type Job struct {
	RunID      string
	EntityID   string
	OwnerID    string
	Status     Status
	Intent     string
	Inputs     json.RawMessage
	Plan       json.RawMessage
	Results    json.RawMessage
	ErrorMsg   string
	RetryCount int
	CreatedAt  int64
	UpdatedAt  int64
}
