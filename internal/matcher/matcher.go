// Package matcher assigns tasks to capable agents.
package matcher

import (
	"errors"
	"fmt"

	"github.com/ShayCichocki/foreman/pkg/models"
)

// ErrNoCandidate indicates no registered agent can serve the task's
// capability tag. The scheduler treats this as a task-level retryable
// failure, not a plan-level fatal error.
var ErrNoCandidate = errors.New("no candidate agent")

// Match selects an agent for the task from a registry snapshot.
// Candidates are agents declaring the task's capability tag with spare
// capacity. Ties break on lowest current load, then lowest agent ID, so
// repeated calls on the same snapshot return the same agent.
// The snapshot is never mutated.
func Match(task *models.Task, snapshot []*models.AgentDescriptor) (string, error) {
	if task.Capability == "" {
		return "", fmt.Errorf("task %s has no capability tag: %w", task.ID, ErrNoCandidate)
	}

	var best *models.AgentDescriptor
	for _, a := range snapshot {
		if !a.HasCapability(task.Capability) || a.AtCapacity() {
			continue
		}
		if best == nil || better(a, best) {
			best = a
		}
	}

	if best == nil {
		return "", fmt.Errorf("no agent declares capability %q for task %s: %w", task.Capability, task.ID, ErrNoCandidate)
	}
	return best.ID, nil
}

// better reports whether a should win the tie-break against b.
func better(a, b *models.AgentDescriptor) bool {
	if a.CurrentLoad != b.CurrentLoad {
		return a.CurrentLoad < b.CurrentLoad
	}
	return a.ID < b.ID
}
