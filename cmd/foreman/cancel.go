package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/foreman/internal/config"
	"github.com/ShayCichocki/foreman/pkg/models"
)

var cancelCmd = &cobra.Command{
	Use:   "cancel <plan-id>",
	Short: "Cancel a persisted non-terminal plan",
	Long: `Mark a non-terminal plan as cancelled in the state database.

A live run is cancelled with Ctrl-C; this command cleans up plans a
previous process left behind in a pending or running state. All of the
plan's non-terminal tasks are cancelled with it.`,
	Args: cobra.ExactArgs(1),
	RunE: runCancel,
}

func runCancel(cmd *cobra.Command, args []string) error {
	planID := args[0]

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	db, err := openStateDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	plan, err := db.GetPlan(planID)
	if err != nil {
		return fmt.Errorf("get plan: %w", err)
	}
	if plan == nil {
		return fmt.Errorf("plan %s not found", planID)
	}
	if plan.Status.Terminal() {
		return fmt.Errorf("plan %s is already %s", planID, plan.Status)
	}

	now := time.Now()
	plan.Status = models.PlanStatusCancelled
	plan.CompletedAt = &now
	cancelled := 0
	for _, task := range plan.Tasks {
		if task.State.Terminal() {
			continue
		}
		task.State = models.TaskStateCancelled
		task.CompletedAt = &now
		cancelled++
	}

	if err := db.SavePlan(plan); err != nil {
		return fmt.Errorf("save plan: %w", err)
	}

	fmt.Printf("Cancelled plan %s (%d task(s) cancelled)\n", planID, cancelled)
	return nil
}
