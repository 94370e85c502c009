package journal

import (
	"errors"
	"testing"
	"time"
)

func validSnapshot() EntrySnapshot {
	return EntrySnapshot{
		EntryID:    "entry-1",
		OwnerID:    "owner-1",
		AnimalTag:  "heifer-12",
		Activity:   "grooming",
		Metrics:    map[string]float64{"minutes_worked": 45},
		RecordedAt: time.Now().Unix(),
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		mutate    func(*EntrySnapshot)
		wantField string
	}{
		{"valid", func(*EntrySnapshot) {}, ""},
		{"no optional fields", func(s *EntrySnapshot) { s.AnimalTag = ""; s.Notes = ""; s.Metrics = nil }, ""},
		{"empty entry id", func(s *EntrySnapshot) { s.EntryID = "" }, "entry_id"},
		{"whitespace owner", func(s *EntrySnapshot) { s.OwnerID = "   " }, "owner_id"},
		{"empty activity", func(s *EntrySnapshot) { s.Activity = "" }, "activity"},
		{"zero timestamp", func(s *EntrySnapshot) { s.RecordedAt = 0 }, "recorded_at"},
		{"negative metric", func(s *EntrySnapshot) { s.Metrics["weight_lbs"] = -3 }, "metrics.weight_lbs"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			snap := validSnapshot()
			tt.mutate(&snap)

			err := snap.Validate()

			if tt.wantField == "" {
				if err != nil {
					t.Fatalf("Validate: %v", err)
				}

				return
			}

			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("Validate = %v, want ValidationError", err)
			}

			if verr.Field != tt.wantField {
				t.Errorf("field = %q, want %q", verr.Field, tt.wantField)
			}
		})
	}
}
