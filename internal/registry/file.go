package registry

import (
	"fmt"
	"os"
	"strings"

	"go.yaml.in/yaml/v3"

	"github.com/ShayCichocki/foreman/pkg/models"
)

// agentFile is the YAML format of an agents file.
type agentFile struct {
	Agents []agentEntry `yaml:"agents"`
}

// agentEntry is one agent declaration in an agents file.
type agentEntry struct {
	ID            string   `yaml:"id"`
	Capabilities  []string `yaml:"capabilities"`
	MaxConcurrent int      `yaml:"max_concurrent"`
}

// LoadFile reads an agents YAML file and returns validated descriptors.
func LoadFile(path string) ([]*models.AgentDescriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read agents file: %w", err)
	}
	return ParseFile(data)
}

// ParseFile parses and validates agents YAML.
// Agents must have unique non-empty IDs and at least one capability tag;
// max_concurrent defaults to 1 when omitted.
func ParseFile(data []byte) ([]*models.AgentDescriptor, error) {
	var f agentFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse agents file: %w", err)
	}

	if len(f.Agents) == 0 {
		return nil, fmt.Errorf("agents file declares no agents")
	}

	seen := make(map[string]bool, len(f.Agents))
	agents := make([]*models.AgentDescriptor, 0, len(f.Agents))
	for i, entry := range f.Agents {
		if strings.TrimSpace(entry.ID) == "" {
			return nil, fmt.Errorf("agent %d: missing id", i)
		}
		if seen[entry.ID] {
			return nil, fmt.Errorf("agent %d: duplicate id %s", i, entry.ID)
		}
		seen[entry.ID] = true

		if len(entry.Capabilities) == 0 {
			return nil, fmt.Errorf("agent %s: no capabilities", entry.ID)
		}
		for _, tag := range entry.Capabilities {
			if strings.TrimSpace(tag) == "" {
				return nil, fmt.Errorf("agent %s: empty capability tag", entry.ID)
			}
		}

		maxConcurrent := entry.MaxConcurrent
		if maxConcurrent == 0 {
			maxConcurrent = 1
		}
		if maxConcurrent < 1 {
			return nil, fmt.Errorf("agent %s: max_concurrent must be >= 1", entry.ID)
		}

		agents = append(agents, &models.AgentDescriptor{
			ID:            entry.ID,
			Capabilities:  entry.Capabilities,
			MaxConcurrent: maxConcurrent,
		})
	}

	return agents, nil
}

// LoadFileInto loads an agents file and registers every agent.
func LoadFileInto(r *Registry, path string) error {
	agents, err := LoadFile(path)
	if err != nil {
		return err
	}
	for _, a := range agents {
		if err := r.Register(a); err != nil {
			return err
		}
	}
	return nil
}
