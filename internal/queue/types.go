package queue

import (
	"fmt"

	"github.com/herdbook/herdbook/internal/journal"
)

// Operation is the kind of mutation held in the queue.
type Operation string

// Queue operation values (also the wire/database representation).
const (
	OpCreate Operation = "create"
	OpUpdate Operation = "update"
)

// ParseOperation converts a database TEXT value to an Operation.
func ParseOperation(s string) (Operation, error) {
	switch Operation(s) {
	case OpCreate:
		return OpCreate, nil
	case OpUpdate:
		return OpUpdate, nil
	default:
		return "", fmt.Errorf("queue: unknown operation %q", s)
	}
}

// EntityTypeJournalEntry is the only entity type the engine currently
// queues. The column exists so future record kinds (expense logs, show
// results) can share the queue.
const EntityTypeJournalEntry = "journal_entry"

// Mutation is a pending create/update persisted in the queue_mutations
// table. It is owned exclusively by the queue until removed after a
// confirmed remote write or abandonment. BaseVersion is the remote version
// the edit was based on (0 for creates); timestamps are unix nanos.
// ClaimedAt is non-zero while a sync attempt for the row is in flight.
type Mutation struct {
	ID          string
	EntityID    string
	EntityType  string
	Op          Operation
	Payload     journal.EntrySnapshot
	BaseVersion int64
	EnqueuedAt  int64
	RetryCount  int
	LastRetryAt int64
	ClaimedAt   int64
}
