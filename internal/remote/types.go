package remote

import "encoding/json"

// AssessmentDomain is the workflow domain for journal quality scoring.
const AssessmentDomain = "livestock-journal"

// Record is the canonical remote copy of a journal entry, returned by
// Upsert. Version is the monotonically increasing revision used for future
// conflict checks; UpdatedAt is a unix-nano server timestamp.
type Record struct {
	EntityID  string          `json:"entity_id"`
	Version   int64           `json:"version"`
	UpdatedAt int64           `json:"updated_at"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// upsertRequest is the wire body for the idempotent upsert call.
type upsertRequest struct {
	Payload     json.RawMessage `json:"payload"`
	BaseVersion int64           `json:"base_version"`
}

// conflictBody is the wire body of a 409 response.
type conflictBody struct {
	EntityID      string `json:"entity_id"`
	ServerVersion int64  `json:"server_version"`
}

// AssessmentRequest is the wire body for submitting an assessment job.
// RequestID is the caller's idempotency key; the service assigns RunID.
type AssessmentRequest struct {
	Domain    string          `json:"domain"`
	Action    string          `json:"action"`
	OwnerID   string          `json:"owner_id"`
	EntityID  string          `json:"entity_id"`
	Inputs    json.RawMessage `json:"inputs"`
	RequestID string          `json:"request_id"`
}

// AssessmentReply acknowledges a submission.
type AssessmentReply struct {
	RunID  string `json:"run_id"`
	Status string `json:"status"`
}

// errorBody is the generic error envelope for non-2xx responses.
type errorBody struct {
	Message string `json:"message"`
}
