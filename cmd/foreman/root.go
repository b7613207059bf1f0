package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/foreman/internal/config"
	"github.com/ShayCichocki/foreman/internal/state"
)

var rootCmd = &cobra.Command{
	Use:   "foreman",
	Short: "Multi-agent task orchestrator",
	Long: `Foreman decomposes goals into dependency-ordered task plans,
matches tasks to capable agents, and executes them with bounded
concurrency, retries, and governance gating.

Every dispatch attempt lands in an append-only audit trail; plan and
task state is persisted so interrupted runs are recovered on the next
invocation.`,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(cancelCmd)
	rootCmd.AddCommand(agentsCmd)
	rootCmd.AddCommand(auditCmd)
	rootCmd.AddCommand(secretsCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

// openStateDB opens and migrates the state database selected by the
// configuration: an explicit path, the project database when a .foreman
// directory exists, or the global one.
func openStateDB(cfg *config.Config) (*state.DB, error) {
	dbPath := cfg.State.Path
	if dbPath == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("get working directory: %w", err)
		}
		dbPath = state.ProjectDBPath(cwd)
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			dbPath = state.GlobalDBPath()
		}
	}

	db, err := state.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open state database: %w", err)
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate state database: %w", err)
	}
	return db, nil
}
