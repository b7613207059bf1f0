// Package decompose provides goal decomposition strategies for plan building.
package decompose

import (
	"fmt"

	"github.com/ShayCichocki/foreman/pkg/models"
)

// TaskSpec describes one task produced by a decomposition strategy.
// The builder turns specs into plan tasks after validating them.
type TaskSpec struct {
	// ID is the task identifier, unique within the decomposition.
	ID string `yaml:"id"`
	// Capability is the capability tag an agent needs to run the task.
	Capability string `yaml:"capability"`
	// DependsOn lists IDs of tasks that must succeed first.
	DependsOn []string `yaml:"depends_on,omitempty"`
	// Payload is opaque data handed to the agent at dispatch.
	Payload map[string]string `yaml:"payload,omitempty"`
	// EstimatedCost is the declared resource estimate for the task.
	EstimatedCost float64 `yaml:"estimated_cost,omitempty"`
}

// Strategy turns a goal into task specifications.
// Implementations must be pure: no dispatch, no registry access, no
// mutation of the goal. The builder revalidates everything a strategy
// returns, so a strategy is free to trust its own input format.
type Strategy interface {
	Decompose(goal models.Goal) ([]TaskSpec, error)
}

// StaticStrategy returns a fixed list of task specs for every goal.
// Useful for embedding and tests.
type StaticStrategy struct {
	specs []TaskSpec
}

// NewStatic creates a StaticStrategy from the given specs.
func NewStatic(specs []TaskSpec) *StaticStrategy {
	return &StaticStrategy{specs: specs}
}

// Decompose returns a copy of the configured specs.
func (s *StaticStrategy) Decompose(goal models.Goal) ([]TaskSpec, error) {
	if len(s.specs) == 0 {
		return nil, fmt.Errorf("static strategy has no task specs")
	}
	out := make([]TaskSpec, len(s.specs))
	for i, spec := range s.specs {
		out[i] = spec.clone()
	}
	return out, nil
}

// clone returns a deep copy of the spec so plan tasks never share
// mutable state with the strategy's own configuration.
func (s TaskSpec) clone() TaskSpec {
	c := s
	if s.DependsOn != nil {
		c.DependsOn = make([]string, len(s.DependsOn))
		copy(c.DependsOn, s.DependsOn)
	}
	if s.Payload != nil {
		c.Payload = make(map[string]string, len(s.Payload))
		for k, v := range s.Payload {
			c.Payload[k] = v
		}
	}
	return c
}
