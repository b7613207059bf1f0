package models

// AgentDescriptor describes an agent known to the capability registry.
type AgentDescriptor struct {
	// ID is the unique identifier for this agent.
	ID string `json:"id"`
	// Capabilities is the set of capability tags the agent declares.
	Capabilities []string `json:"capabilities"`
	// CurrentLoad is the number of tasks currently dispatched to the agent.
	CurrentLoad int `json:"current_load"`
	// MaxConcurrent is the agent's per-agent concurrency bound.
	MaxConcurrent int `json:"max_concurrent"`
}

// HasCapability returns true if the agent declares the given capability tag.
func (a *AgentDescriptor) HasCapability(tag string) bool {
	for _, c := range a.Capabilities {
		if c == tag {
			return true
		}
	}
	return false
}

// AtCapacity returns true if the agent cannot accept another task.
func (a *AgentDescriptor) AtCapacity() bool {
	return a.MaxConcurrent > 0 && a.CurrentLoad >= a.MaxConcurrent
}

// Clone returns a deep copy of the descriptor.
// Registry snapshots hand out clones so callers cannot mutate registry state.
func (a *AgentDescriptor) Clone() *AgentDescriptor {
	caps := make([]string, len(a.Capabilities))
	copy(caps, a.Capabilities)
	return &AgentDescriptor{
		ID:            a.ID,
		Capabilities:  caps,
		CurrentLoad:   a.CurrentLoad,
		MaxConcurrent: a.MaxConcurrent,
	}
}
