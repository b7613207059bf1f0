// Package orchestrator executes plans: it walks each plan's task DAG in
// dependency order, matches ready tasks to agents, gates and dispatches
// them with bounded concurrency, and drives retries and plan status.
package orchestrator

import (
	"time"
)

// EventType represents the type of orchestrator event.
type EventType string

const (
	// EventPlanStarted indicates a plan has begun executing.
	EventPlanStarted EventType = "plan_started"
	// EventPlanCompleted indicates a plan reached a terminal status.
	EventPlanCompleted EventType = "plan_completed"
	// EventPlanPaused indicates a plan stopped dispatching new tasks.
	EventPlanPaused EventType = "plan_paused"
	// EventPlanResumed indicates a paused plan resumed dispatching.
	EventPlanResumed EventType = "plan_resumed"
	// EventTaskReady indicates a task's dependencies are all satisfied.
	EventTaskReady EventType = "task_ready"
	// EventTaskDispatched indicates a task was handed to the transport.
	EventTaskDispatched EventType = "task_dispatched"
	// EventTaskSucceeded indicates a task completed successfully.
	EventTaskSucceeded EventType = "task_succeeded"
	// EventTaskFailed indicates a task reached terminal failure.
	EventTaskFailed EventType = "task_failed"
	// EventTaskRetrying indicates a failed attempt will be retried.
	EventTaskRetrying EventType = "task_retrying"
	// EventTaskCancelled indicates a task was cancelled.
	EventTaskCancelled EventType = "task_cancelled"
)

// Event represents an event emitted by the orchestrator. Subscribers
// (the CLI progress output) use these to track execution.
type Event struct {
	// Type is the kind of event.
	Type EventType
	// PlanID is the plan the event belongs to.
	PlanID string
	// TaskID is the ID of the related task, if applicable.
	TaskID string
	// AgentID is the ID of the related agent, if applicable.
	AgentID string
	// Message provides additional context about the event.
	Message string
	// Error contains error details for failure events.
	Error error
	// Timestamp is when the event occurred.
	Timestamp time.Time
}
