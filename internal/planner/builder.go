// Package planner builds validated task plans from goals.
package planner

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ShayCichocki/foreman/internal/decompose"
	"github.com/ShayCichocki/foreman/internal/graph"
	"github.com/ShayCichocki/foreman/pkg/models"
)

// BuildReason classifies why plan construction failed.
type BuildReason string

const (
	// CycleDetected indicates the declared dependencies form a cycle.
	CycleDetected BuildReason = "cycle_detected"
	// UnknownDependency indicates a task references a dependency that was not produced.
	UnknownDependency BuildReason = "unknown_dependency"
	// EmptyCapability indicates a task carries no capability tag.
	EmptyCapability BuildReason = "empty_capability"
	// ConstraintUnsatisfiable indicates the goal's constraints cannot be met.
	ConstraintUnsatisfiable BuildReason = "constraint_unsatisfiable"
)

// BuildError reports why a plan could not be constructed.
// Construction is all-or-nothing: when a BuildError is returned no plan
// exists and nothing has been dispatched.
type BuildError struct {
	// Reason classifies the failure.
	Reason BuildReason
	// Detail is the human-readable specifics.
	Detail string
}

// Error implements the error interface.
func (e *BuildError) Error() string {
	return fmt.Sprintf("plan build failed (%s): %s", e.Reason, e.Detail)
}

// IsReason returns true if err is a BuildError with the given reason.
func IsReason(err error, reason BuildReason) bool {
	var be *BuildError
	return errors.As(err, &be) && be.Reason == reason
}

// Builder turns goals into validated plans using a decomposition strategy.
// The strategy is swappable; the builder owns all validation regardless of
// what the strategy returns.
type Builder struct {
	strategy decompose.Strategy
	now      func() time.Time
}

// New creates a Builder with the given decomposition strategy.
func New(strategy decompose.Strategy) *Builder {
	return &Builder{
		strategy: strategy,
		now:      time.Now,
	}
}

// Build decomposes the goal and constructs a validated plan.
// Returns a *BuildError for validation failures; strategy errors are
// wrapped and returned as-is. No side effects occur beyond the returned
// plan value.
func (b *Builder) Build(goal models.Goal) (*models.Plan, error) {
	specs, err := b.strategy.Decompose(goal)
	if err != nil {
		return nil, fmt.Errorf("decompose goal %s: %w", goal.ID, err)
	}
	if len(specs) == 0 {
		return nil, fmt.Errorf("decompose goal %s: strategy produced no tasks", goal.ID)
	}

	now := b.now()

	seen := make(map[string]bool, len(specs))
	tasks := make([]*models.Task, 0, len(specs))
	var totalCost float64
	for _, spec := range specs {
		if strings.TrimSpace(spec.ID) == "" {
			return nil, fmt.Errorf("decompose goal %s: strategy produced a task with no id", goal.ID)
		}
		if seen[spec.ID] {
			return nil, fmt.Errorf("decompose goal %s: duplicate task id %s", goal.ID, spec.ID)
		}
		seen[spec.ID] = true

		if strings.TrimSpace(spec.Capability) == "" {
			return nil, &BuildError{
				Reason: EmptyCapability,
				Detail: fmt.Sprintf("task %s has no capability tag", spec.ID),
			}
		}

		totalCost += spec.EstimatedCost
		tasks = append(tasks, &models.Task{
			ID:            spec.ID,
			Capability:    spec.Capability,
			DependsOn:     spec.DependsOn,
			Payload:       spec.Payload,
			EstimatedCost: spec.EstimatedCost,
			State:         models.TaskStatePending,
			CreatedAt:     now,
		})
	}

	// Graph construction validates dependency references and acyclicity.
	g := graph.New()
	if err := g.Build(tasks); err != nil {
		switch {
		case errors.Is(err, graph.ErrUnknownDependency):
			return nil, &BuildError{Reason: UnknownDependency, Detail: err.Error()}
		case errors.Is(err, graph.ErrCycleDetected):
			return nil, &BuildError{Reason: CycleDetected, Detail: err.Error()}
		default:
			return nil, fmt.Errorf("build dependency graph: %w", err)
		}
	}

	if goal.Constraints.MaxCost > 0 && totalCost > goal.Constraints.MaxCost {
		return nil, &BuildError{
			Reason: ConstraintUnsatisfiable,
			Detail: fmt.Sprintf("estimated cost %.2f exceeds ceiling %.2f", totalCost, goal.Constraints.MaxCost),
		}
	}
	if !goal.Constraints.Deadline.IsZero() && !goal.Constraints.Deadline.After(now) {
		return nil, &BuildError{
			Reason: ConstraintUnsatisfiable,
			Detail: fmt.Sprintf("deadline %s is not in the future", goal.Constraints.Deadline.Format(time.RFC3339)),
		}
	}

	return &models.Plan{
		ID:          "plan-" + uuid.New().String()[:8],
		Goal:        goal,
		Tasks:       tasks,
		Status:      models.PlanStatusPending,
		FailureMode: models.FailFast,
		CreatedAt:   now,
	}, nil
}
