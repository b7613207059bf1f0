package models

import "time"

// TaskState represents the current state of a task.
type TaskState string

const (
	// TaskStatePending indicates the task is waiting on its dependencies.
	TaskStatePending TaskState = "pending"
	// TaskStateReady indicates all dependencies have succeeded.
	TaskStateReady TaskState = "ready"
	// TaskStateMatched indicates an agent has been selected for the task.
	TaskStateMatched TaskState = "matched"
	// TaskStateGated indicates the task is undergoing the governance check.
	TaskStateGated TaskState = "gated"
	// TaskStateDispatched indicates the task has been handed to the transport.
	TaskStateDispatched TaskState = "dispatched"
	// TaskStateRetrying indicates the task failed and is waiting out a backoff delay.
	TaskStateRetrying TaskState = "retrying"
	// TaskStateSucceeded indicates the task completed successfully.
	TaskStateSucceeded TaskState = "succeeded"
	// TaskStateFailed indicates the task failed with no retries left.
	TaskStateFailed TaskState = "failed"
	// TaskStateCancelled indicates the task was cancelled before completion.
	TaskStateCancelled TaskState = "cancelled"
)

// Valid returns true if the state is a known value.
func (s TaskState) Valid() bool {
	switch s {
	case TaskStatePending, TaskStateReady, TaskStateMatched, TaskStateGated,
		TaskStateDispatched, TaskStateRetrying, TaskStateSucceeded,
		TaskStateFailed, TaskStateCancelled:
		return true
	default:
		return false
	}
}

// Terminal returns true if no further transitions are possible from this state.
func (s TaskState) Terminal() bool {
	switch s {
	case TaskStateSucceeded, TaskStateFailed, TaskStateCancelled:
		return true
	default:
		return false
	}
}

// Task represents a unit of work within a plan.
type Task struct {
	// ID is the unique identifier for this task within its plan.
	ID string `json:"id"`
	// Capability is the capability tag an agent must declare to run this task.
	Capability string `json:"capability"`
	// DependsOn lists task IDs that must succeed before this task becomes ready.
	DependsOn []string `json:"depends_on,omitempty"`
	// Payload is opaque data handed to the agent at dispatch.
	Payload map[string]string `json:"payload,omitempty"`
	// EstimatedCost is the declared resource estimate for this task.
	EstimatedCost float64 `json:"estimated_cost,omitempty"`
	// State is the current state of the task.
	State TaskState `json:"state"`
	// RetryCount is the number of times this task has been retried.
	RetryCount int `json:"retry_count,omitempty"`
	// AssignedTo is the ID of the agent the task was last matched to.
	AssignedTo string `json:"assigned_to,omitempty"`
	// CreatedAt is when the task was created with its plan.
	CreatedAt time.Time `json:"created_at"`
	// CompletedAt is when the task reached a terminal state, if it has.
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	// Error contains the most recent error message if the task failed.
	Error string `json:"error,omitempty"`
}
