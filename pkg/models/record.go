package models

import "time"

// Outcome is the result of one dispatch attempt.
type Outcome string

const (
	// OutcomeSuccess indicates the attempt completed successfully.
	OutcomeSuccess Outcome = "success"
	// OutcomeFailure indicates the attempt failed.
	OutcomeFailure Outcome = "failure"
)

// Valid returns true if the outcome is a known value.
func (o Outcome) Valid() bool {
	return o == OutcomeSuccess || o == OutcomeFailure
}

// ErrorKind classifies why a dispatch attempt failed.
type ErrorKind string

const (
	// ErrorKindNone is set on successful attempts.
	ErrorKindNone ErrorKind = ""
	// ErrorKindNoCandidate indicates no registered agent could serve the task.
	ErrorKindNoCandidate ErrorKind = "no_candidate"
	// ErrorKindGateDenied indicates the governance gate refused the dispatch.
	ErrorKindGateDenied ErrorKind = "gate_denied"
	// ErrorKindTransport indicates the transport reported a failure.
	ErrorKindTransport ErrorKind = "transport"
	// ErrorKindTimeout indicates the task's deadline expired before completion.
	ErrorKindTimeout ErrorKind = "timeout"
	// ErrorKindCancelled indicates the attempt was cut short by plan cancellation.
	ErrorKindCancelled ErrorKind = "cancelled"
)

// Valid returns true if the kind is a known value.
func (k ErrorKind) Valid() bool {
	switch k {
	case ErrorKindNone, ErrorKindNoCandidate, ErrorKindGateDenied,
		ErrorKindTransport, ErrorKindTimeout, ErrorKindCancelled:
		return true
	default:
		return false
	}
}

// ExecutionRecord is the audit entry for one dispatch attempt.
// Records are append-only and never mutated after being finalized.
type ExecutionRecord struct {
	// ID is the unique identifier for this record.
	ID string `json:"id"`
	// PlanID is the plan the attempt belongs to.
	PlanID string `json:"plan_id"`
	// TaskID is the task the attempt was for.
	TaskID string `json:"task_id"`
	// AgentID is the agent involved, empty when no candidate was found.
	AgentID string `json:"agent_id,omitempty"`
	// Attempt is the 1-indexed attempt number for the task.
	Attempt int `json:"attempt"`
	// StartedAt is when the attempt began.
	StartedAt time.Time `json:"started_at"`
	// EndedAt is when the attempt finished.
	EndedAt time.Time `json:"ended_at"`
	// Outcome is success or failure.
	Outcome Outcome `json:"outcome"`
	// ErrorKind classifies the failure, empty on success.
	ErrorKind ErrorKind `json:"error_kind,omitempty"`
	// Error is the failure detail, empty on success.
	Error string `json:"error,omitempty"`
}
