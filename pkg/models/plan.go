package models

import "time"

// PlanStatus represents the overall state of a plan.
type PlanStatus string

const (
	// PlanStatusPending indicates the plan has been built but not started.
	PlanStatusPending PlanStatus = "pending"
	// PlanStatusRunning indicates the plan is executing.
	PlanStatusRunning PlanStatus = "running"
	// PlanStatusSucceeded indicates every task in the plan succeeded.
	PlanStatusSucceeded PlanStatus = "succeeded"
	// PlanStatusFailed indicates the plan terminated with failed tasks.
	PlanStatusFailed PlanStatus = "failed"
	// PlanStatusCancelled indicates the plan was cancelled by an external request.
	PlanStatusCancelled PlanStatus = "cancelled"
)

// Valid returns true if the status is a known value.
func (s PlanStatus) Valid() bool {
	switch s {
	case PlanStatusPending, PlanStatusRunning, PlanStatusSucceeded,
		PlanStatusFailed, PlanStatusCancelled:
		return true
	default:
		return false
	}
}

// Terminal returns true if the plan can no longer change status.
func (s PlanStatus) Terminal() bool {
	switch s {
	case PlanStatusSucceeded, PlanStatusFailed, PlanStatusCancelled:
		return true
	default:
		return false
	}
}

// FailureMode controls how a plan reacts to a task reaching terminal failure.
type FailureMode string

const (
	// FailFast cancels all non-terminal tasks as soon as any task fails.
	FailFast FailureMode = "fail_fast"
	// BestEffort keeps executing tasks whose dependencies still succeed.
	BestEffort FailureMode = "best_effort"
)

// Valid returns true if the mode is a known value.
func (m FailureMode) Valid() bool {
	return m == FailFast || m == BestEffort
}

// Constraints carries the caller-supplied limits a plan is built under.
type Constraints struct {
	// MaxCost is the ceiling on the sum of task cost estimates. Zero means unlimited.
	MaxCost float64 `json:"max_cost,omitempty"`
	// Deadline is the wall-clock time by which the plan must finish.
	// Dispatched tasks inherit it as an upper bound on their own deadline.
	// The zero value means no deadline.
	Deadline time.Time `json:"deadline,omitempty"`
}

// Goal describes the caller's intent a plan is decomposed from.
// Immutable once a plan has been built from it.
type Goal struct {
	// ID is the caller-supplied identifier for the goal.
	ID string `json:"id"`
	// Description is the opaque goal text handed to the decomposition strategy.
	Description string `json:"description"`
	// Constraints are the limits the plan must respect.
	Constraints Constraints `json:"constraints"`
}

// Plan is a dependency graph of tasks derived from one goal.
// The task set and edges are frozen at construction; only task runtime
// fields and the plan status mutate during execution.
type Plan struct {
	// ID is the unique identifier for this plan.
	ID string `json:"id"`
	// Goal is the goal this plan was built from.
	Goal Goal `json:"goal"`
	// Tasks are the plan's tasks in deterministic construction order.
	Tasks []*Task `json:"tasks"`
	// Status is the overall plan status.
	Status PlanStatus `json:"status"`
	// FailureMode controls fail-fast versus best-effort completion.
	FailureMode FailureMode `json:"failure_mode"`
	// CreatedAt is when the plan was built.
	CreatedAt time.Time `json:"created_at"`
	// CompletedAt is when the plan reached a terminal status, if it has.
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// TaskByID returns the task with the given ID, or nil if absent.
func (p *Plan) TaskByID(id string) *Task {
	for _, t := range p.Tasks {
		if t.ID == id {
			return t
		}
	}
	return nil
}

// TaskIDs returns the IDs of all tasks in construction order.
func (p *Plan) TaskIDs() []string {
	ids := make([]string, 0, len(p.Tasks))
	for _, t := range p.Tasks {
		ids = append(ids, t.ID)
	}
	return ids
}
