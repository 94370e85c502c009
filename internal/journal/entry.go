// Package journal defines the livestock journal entry snapshot that flows
// through the mutation queue, the remote store, and assessment submission.
// The snapshot is validated once, at the queue boundary, so internal logic
// never branches on raw JSON keys.
package journal

import (
	"fmt"
	"strings"
)

// EntrySnapshot is an immutable capture of a journal entry at enqueue time.
// Metrics holds numeric observations keyed by measure name (weight_lbs,
// feed_lbs, minutes_worked, ...).
type EntrySnapshot struct {
	EntryID    string             `json:"entry_id"`
	OwnerID    string             `json:"owner_id"`
	AnimalTag  string             `json:"animal_tag"`
	Activity   string             `json:"activity"`
	Notes      string             `json:"notes,omitempty"`
	Metrics    map[string]float64 `json:"metrics,omitempty"`
	RecordedAt int64              `json:"recorded_at"`
}

// ValidationError describes a snapshot rejected at the queue boundary.
// Validation failures are fatal and surfaced immediately: an invalid
// snapshot is never queued.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("journal: invalid entry: %s %s", e.Field, e.Reason)
}

// Validate checks the snapshot's required fields.
func (s *EntrySnapshot) Validate() error {
	if strings.TrimSpace(s.EntryID) == "" {
		return &ValidationError{Field: "entry_id", Reason: "must not be empty"}
	}

	if strings.TrimSpace(s.OwnerID) == "" {
		return &ValidationError{Field: "owner_id", Reason: "must not be empty"}
	}

	if strings.TrimSpace(s.Activity) == "" {
		return &ValidationError{Field: "activity", Reason: "must not be empty"}
	}

	if s.RecordedAt <= 0 {
		return &ValidationError{Field: "recorded_at", Reason: "must be a positive unix timestamp"}
	}

	for name, v := range s.Metrics {
		if v < 0 {
			return &ValidationError{Field: "metrics." + name, Reason: "must not be negative"}
		}
	}

	return nil
}
