package sync

import "github.com/herdbook/herdbook/internal/queue"

// Conflict records a detected divergence between a locally queued edit's
// base version and the remote record's current version. Conflicts are
// produced, reported, and left for the caller to resolve. The engine never
// merges or overwrites.
type Conflict struct {
	EntityID      string
	LocalVersion  int64
	ServerVersion int64
}

// Detect compares a queued mutation's base version against the remote
// record's current version. Pure comparison: returns a Conflict when the
// remote record was independently modified past the mutation's base,
// nil otherwise.
func Detect(m *queue.Mutation, serverVersion int64) *Conflict {
	if m.BaseVersion >= serverVersion {
		return nil
	}

	return &Conflict{
		EntityID:      m.EntityID,
		LocalVersion:  m.BaseVersion,
		ServerVersion: serverVersion,
	}
}
