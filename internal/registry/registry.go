// Package registry tracks the agents available for dispatch, their
// declared capabilities, and their current load.
package registry

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/ShayCichocki/foreman/pkg/models"
)

// ErrRegistryFull indicates the registry's max-agents cap has been reached.
var ErrRegistryFull = errors.New("agent registry is full")

// ErrUnknownAgent indicates a load operation referenced an unregistered agent.
var ErrUnknownAgent = errors.New("unknown agent")

// Registry is the capability registry. The matcher reads snapshots of it;
// the scheduler mutates load counters on dispatch and completion. All
// methods are safe for concurrent use.
type Registry struct {
	// agents maps agent IDs to their descriptors.
	agents map[string]*models.AgentDescriptor
	// maxAgents caps registration; zero means uncapped.
	maxAgents int
	// mu protects all fields.
	mu sync.RWMutex
}

// New creates an empty Registry with no registration cap.
func New() *Registry {
	return &Registry{agents: make(map[string]*models.AgentDescriptor)}
}

// NewWithCap creates a Registry that refuses registrations beyond max agents.
func NewWithCap(max int) *Registry {
	r := New()
	r.maxAgents = max
	return r
}

// Register adds an agent to the registry.
// The descriptor's load counter is reset to zero on registration.
func (r *Registry) Register(a *models.AgentDescriptor) error {
	if a == nil || a.ID == "" {
		return fmt.Errorf("register agent: missing id")
	}
	if len(a.Capabilities) == 0 {
		return fmt.Errorf("register agent %s: no capabilities", a.ID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.agents[a.ID]; !exists && r.maxAgents > 0 && len(r.agents) >= r.maxAgents {
		return fmt.Errorf("register agent %s: %w", a.ID, ErrRegistryFull)
	}

	desc := a.Clone()
	desc.CurrentLoad = 0
	if desc.MaxConcurrent < 1 {
		desc.MaxConcurrent = 1
	}
	r.agents[a.ID] = desc
	return nil
}

// Unregister removes an agent from the registry.
func (r *Registry) Unregister(agentID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.agents, agentID)
}

// Snapshot returns a copy of all registered agents sorted by ID.
// Callers may mutate the returned descriptors freely.
func (r *Registry) Snapshot() []*models.AgentDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	agents := make([]*models.AgentDescriptor, 0, len(r.agents))
	for _, a := range r.agents {
		agents = append(agents, a.Clone())
	}
	sort.Slice(agents, func(i, j int) bool { return agents[i].ID < agents[j].ID })
	return agents
}

// Agent returns a copy of the descriptor for the given ID, or nil if absent.
func (r *Registry) Agent(agentID string) *models.AgentDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.agents[agentID]
	if !ok {
		return nil
	}
	return a.Clone()
}

// AgentsByCapability returns copies of all agents declaring the given tag,
// sorted by ID.
func (r *Registry) AgentsByCapability(tag string) []*models.AgentDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var agents []*models.AgentDescriptor
	for _, a := range r.agents {
		if a.HasCapability(tag) {
			agents = append(agents, a.Clone())
		}
	}
	sort.Slice(agents, func(i, j int) bool { return agents[i].ID < agents[j].ID })
	return agents
}

// IncrementLoad records a dispatch to the agent.
// Fails when the agent is unknown or already at its concurrency bound, so
// the scheduler cannot over-subscribe an agent it raced another dispatch for.
func (r *Registry) IncrementLoad(agentID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.agents[agentID]
	if !ok {
		return fmt.Errorf("increment load for %s: %w", agentID, ErrUnknownAgent)
	}
	if a.AtCapacity() {
		return fmt.Errorf("agent %s is at capacity (%d/%d)", agentID, a.CurrentLoad, a.MaxConcurrent)
	}
	a.CurrentLoad++
	return nil
}

// DecrementLoad records a completion for the agent.
// The counter never goes below zero; an agent removed by a registry reload
// while its task was in flight is not an error.
func (r *Registry) DecrementLoad(agentID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.agents[agentID]
	if !ok {
		return
	}
	if a.CurrentLoad > 0 {
		a.CurrentLoad--
	}
}

// Count returns the number of registered agents.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.agents)
}

// Replace swaps the agent set for the given descriptors, carrying over the
// load counters of agents that survive the swap. Used by the file watcher
// so a reload never loses track of in-flight work.
func (r *Registry) Replace(agents []*models.AgentDescriptor) {
	r.mu.Lock()
	defer r.mu.Unlock()

	next := make(map[string]*models.AgentDescriptor, len(agents))
	for _, a := range agents {
		desc := a.Clone()
		if desc.MaxConcurrent < 1 {
			desc.MaxConcurrent = 1
		}
		if prev, ok := r.agents[desc.ID]; ok {
			desc.CurrentLoad = prev.CurrentLoad
		} else {
			desc.CurrentLoad = 0
		}
		next[desc.ID] = desc
	}
	r.agents = next
}
