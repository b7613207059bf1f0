package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/foreman/internal/config"
	"github.com/ShayCichocki/foreman/internal/registry"
)

var (
	agentsFile       string
	agentsCapability string
)

var agentsCmd = &cobra.Command{
	Use:   "agents",
	Short: "List agents from the registry file",
	Long: `Load the agent registry file and list the agents it declares.

Each agent advertises capability tags and a concurrency cap; the
matcher only considers agents whose tags cover a task's capability.`,
	RunE: runAgents,
}

func init() {
	agentsCmd.Flags().StringVar(&agentsFile, "agents", "", "Agent registry file (overrides config)")
	agentsCmd.Flags().StringVar(&agentsCapability, "capability", "", "Only show agents advertising this capability")
}

func runAgents(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	file := agentsFile
	if file == "" {
		file = cfg.Agents.File
	}

	reg := registry.NewWithCap(cfg.Agents.MaxAgents)
	if err := registry.LoadFileInto(reg, file); err != nil {
		return fmt.Errorf("load agents: %w", err)
	}

	agents := reg.Snapshot()
	if agentsCapability != "" {
		agents = reg.AgentsByCapability(agentsCapability)
	}
	if len(agents) == 0 {
		fmt.Printf("No agents found in %s\n", file)
		return nil
	}

	fmt.Printf("%-20s %-12s %s\n", "AGENT", "SLOTS", "CAPABILITIES")
	for _, a := range agents {
		fmt.Printf("%-20s %-12s %s\n", a.ID,
			fmt.Sprintf("%d/%d", a.CurrentLoad, a.MaxConcurrent),
			strings.Join(a.Capabilities, ", "))
	}
	return nil
}
