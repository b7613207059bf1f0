package decompose

import (
	"fmt"
	"os"
	"path"
	"strings"

	"go.yaml.in/yaml/v3"

	"github.com/ShayCichocki/foreman/pkg/models"
)

// Rule maps goals matching a pattern to a list of task templates.
type Rule struct {
	// Match is a glob pattern tested against the goal description.
	Match string `yaml:"match"`
	// Tasks are the specs emitted when the rule matches.
	Tasks []TaskSpec `yaml:"tasks"`
}

// Ruleset is the file format for rule-based decomposition.
type Ruleset struct {
	Rules []Rule `yaml:"rules"`
}

// RulesetStrategy decomposes goals by matching them against an ordered
// list of rules. The first matching rule wins. Each emitted task's
// payload is populated with the goal id and description under the
// reserved keys "goal_id" and "goal" unless the rule sets them itself.
type RulesetStrategy struct {
	ruleset Ruleset
}

// LoadRuleset reads and validates a ruleset file.
func LoadRuleset(filePath string) (*RulesetStrategy, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("read ruleset: %w", err)
	}
	return ParseRuleset(data)
}

// ParseRuleset parses and validates ruleset YAML.
func ParseRuleset(data []byte) (*RulesetStrategy, error) {
	var rs Ruleset
	if err := yaml.Unmarshal(data, &rs); err != nil {
		return nil, fmt.Errorf("parse ruleset: %w", err)
	}

	if len(rs.Rules) == 0 {
		return nil, fmt.Errorf("ruleset has no rules")
	}
	for i, rule := range rs.Rules {
		if strings.TrimSpace(rule.Match) == "" {
			return nil, fmt.Errorf("rule %d: missing match pattern", i)
		}
		if len(rule.Tasks) == 0 {
			return nil, fmt.Errorf("rule %d (%s): no tasks", i, rule.Match)
		}
		seen := make(map[string]bool)
		for j, spec := range rule.Tasks {
			if strings.TrimSpace(spec.ID) == "" {
				return nil, fmt.Errorf("rule %d (%s): task %d has no id", i, rule.Match, j)
			}
			if seen[spec.ID] {
				return nil, fmt.Errorf("rule %d (%s): duplicate task id %s", i, rule.Match, spec.ID)
			}
			seen[spec.ID] = true
		}
	}

	return &RulesetStrategy{ruleset: rs}, nil
}

// Decompose returns the task specs of the first rule whose pattern
// matches the goal description.
func (s *RulesetStrategy) Decompose(goal models.Goal) ([]TaskSpec, error) {
	for _, rule := range s.ruleset.Rules {
		matched, err := path.Match(rule.Match, goal.Description)
		if err != nil {
			return nil, fmt.Errorf("rule %q: bad pattern: %w", rule.Match, err)
		}
		if !matched {
			continue
		}

		out := make([]TaskSpec, len(rule.Tasks))
		for i, spec := range rule.Tasks {
			c := spec.clone()
			if c.Payload == nil {
				c.Payload = make(map[string]string, 2)
			}
			if _, ok := c.Payload["goal_id"]; !ok {
				c.Payload["goal_id"] = goal.ID
			}
			if _, ok := c.Payload["goal"]; !ok {
				c.Payload["goal"] = goal.Description
			}
			out[i] = c
		}
		return out, nil
	}

	return nil, fmt.Errorf("no decomposition rule matches goal %q", goal.Description)
}

// RuleCount returns the number of rules in the strategy.
func (s *RulesetStrategy) RuleCount() int {
	return len(s.ruleset.Rules)
}
