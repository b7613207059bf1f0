package gate

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/ShayCichocki/foreman/pkg/models"
)

// Rule is one ordered policy rule. A rule matches when every non-empty
// selector matches the dispatch under check; the first matching rule
// decides.
type Rule struct {
	// Name identifies the rule in stats and audit reasons.
	Name string `mapstructure:"name" yaml:"name"`
	// Capability selects tasks by capability tag; empty matches all.
	Capability string `mapstructure:"capability" yaml:"capability"`
	// AgentID selects the candidate agent; empty matches all.
	AgentID string `mapstructure:"agent_id" yaml:"agent_id"`
	// PayloadKey/PayloadValue select tasks whose payload carries the given
	// entry. An empty PayloadValue matches any value under PayloadKey.
	PayloadKey   string `mapstructure:"payload_key" yaml:"payload_key"`
	PayloadValue string `mapstructure:"payload_value" yaml:"payload_value"`
	// Action is "allow" or "deny".
	Action string `mapstructure:"action" yaml:"action"`
	// Reason is recorded on denial.
	Reason string `mapstructure:"reason" yaml:"reason"`
}

// matches reports whether the rule applies to the dispatch.
func (r *Rule) matches(task *models.Task, agent *models.AgentDescriptor) bool {
	if r.Capability != "" && r.Capability != task.Capability {
		return false
	}
	if r.AgentID != "" && (agent == nil || r.AgentID != agent.ID) {
		return false
	}
	if r.PayloadKey != "" {
		v, ok := task.Payload[r.PayloadKey]
		if !ok {
			return false
		}
		if r.PayloadValue != "" && r.PayloadValue != v {
			return false
		}
	}
	return true
}

// RuleStats is the hit count for one rule.
type RuleStats struct {
	Name string
	Hits int
}

// PolicyGate evaluates an ordered rule list. The first matching rule
// decides; when nothing matches the dispatch is allowed.
type PolicyGate struct {
	rules []Rule
	hits  []int
	mu    sync.Mutex
}

// NewPolicyGate creates a PolicyGate after validating the rules.
func NewPolicyGate(rules []Rule) (*PolicyGate, error) {
	for i, r := range rules {
		action := strings.ToLower(strings.TrimSpace(r.Action))
		if action != "allow" && action != "deny" {
			return nil, fmt.Errorf("rule %d (%s): action must be allow or deny, got %q", i, r.Name, r.Action)
		}
	}
	return &PolicyGate{
		rules: rules,
		hits:  make([]int, len(rules)),
	}, nil
}

// Check implements Gate.
func (g *PolicyGate) Check(ctx context.Context, task *models.Task, agent *models.AgentDescriptor) Decision {
	for i := range g.rules {
		r := &g.rules[i]
		if !r.matches(task, agent) {
			continue
		}

		g.mu.Lock()
		g.hits[i]++
		g.mu.Unlock()

		if strings.EqualFold(r.Action, "allow") {
			return Allowed()
		}
		reason := r.Reason
		if reason == "" {
			reason = fmt.Sprintf("denied by rule %s", r.Name)
		}
		return Denied(reason)
	}
	return Allowed()
}

// Stats returns per-rule hit counts in rule order.
func (g *PolicyGate) Stats() []RuleStats {
	g.mu.Lock()
	defer g.mu.Unlock()

	stats := make([]RuleStats, len(g.rules))
	for i, r := range g.rules {
		name := r.Name
		if name == "" {
			name = fmt.Sprintf("rule-%d", i)
		}
		stats[i] = RuleStats{Name: name, Hits: g.hits[i]}
	}
	return stats
}
