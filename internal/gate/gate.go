// Package gate provides the governance check invoked before every task
// dispatch. The scheduler consumes the Gate interface; denial is a
// task-level retryable failure, never a plan-level fatal error.
package gate

import (
	"context"

	"github.com/ShayCichocki/foreman/pkg/models"
)

// Decision is the outcome of a governance check.
type Decision struct {
	// Allow reports whether the dispatch may proceed.
	Allow bool
	// Reason explains a denial; empty when allowed.
	Reason string
}

// Allowed is the decision permitting dispatch.
func Allowed() Decision {
	return Decision{Allow: true}
}

// Denied returns a denial carrying a human-readable reason for audit.
func Denied(reason string) Decision {
	return Decision{Allow: false, Reason: reason}
}

// Gate is the pre-dispatch policy check. Implementations must be
// side-effect free from the scheduler's perspective beyond their own
// bookkeeping, and safe for concurrent use.
type Gate interface {
	Check(ctx context.Context, task *models.Task, agent *models.AgentDescriptor) Decision
}

// AllowAll approves every dispatch. The default gate.
type AllowAll struct{}

// Check implements Gate.
func (AllowAll) Check(ctx context.Context, task *models.Task, agent *models.AgentDescriptor) Decision {
	return Allowed()
}

// Func adapts a function to the Gate interface.
type Func func(ctx context.Context, task *models.Task, agent *models.AgentDescriptor) Decision

// Check implements Gate.
func (f Func) Check(ctx context.Context, task *models.Task, agent *models.AgentDescriptor) Decision {
	return f(ctx, task, agent)
}
