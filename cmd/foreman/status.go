package main

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/foreman/internal/config"
	"github.com/ShayCichocki/foreman/pkg/models"
)

var statusCmd = &cobra.Command{
	Use:   "status [plan-id]",
	Short: "Show persisted plan state",
	Long: `Display persisted plans from the state database.

Without arguments, lists all plans newest first. With a plan id,
shows the plan's tasks with their states, retry counts, and
assignments.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	db, err := openStateDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	if len(args) == 1 {
		return displayPlan(db, args[0])
	}
	return displayPlans(db)
}

type planGetter interface {
	GetPlan(planID string) (*models.Plan, error)
	ListPlans() ([]*models.Plan, error)
}

func displayPlan(db planGetter, planID string) error {
	plan, err := db.GetPlan(planID)
	if err != nil {
		return fmt.Errorf("get plan: %w", err)
	}
	if plan == nil {
		return fmt.Errorf("plan %s not found", planID)
	}

	fmt.Printf("Plan %s: %s\n", plan.ID, colorStatus(string(plan.Status)))
	fmt.Printf("  Goal: %s\n", plan.Goal.Description)
	fmt.Printf("  Mode: %s\n", plan.FailureMode)
	fmt.Printf("  Created: %s ago\n", formatDuration(time.Since(plan.CreatedAt)))
	if plan.CompletedAt != nil {
		fmt.Printf("  Duration: %s\n", formatDuration(plan.CompletedAt.Sub(plan.CreatedAt)))
	}

	fmt.Println("  Tasks:")
	for _, task := range plan.Tasks {
		line := fmt.Sprintf("    %-20s %-12s", task.ID, colorStatus(string(task.State)))
		if task.AssignedTo != "" {
			line += " " + task.AssignedTo
		}
		if task.RetryCount > 0 {
			line += fmt.Sprintf(" (%d retr%s)", task.RetryCount, plural(task.RetryCount, "y", "ies"))
		}
		fmt.Println(line)
		if task.Error != "" {
			fmt.Printf("      %s\n", color.RedString(task.Error))
		}
	}
	return nil
}

func displayPlans(db planGetter) error {
	plans, err := db.ListPlans()
	if err != nil {
		return fmt.Errorf("list plans: %w", err)
	}
	if len(plans) == 0 {
		fmt.Println("No plans recorded. Run 'foreman run <goal>' to start one.")
		return nil
	}

	for _, plan := range plans {
		succeeded := 0
		for _, task := range plan.Tasks {
			if task.State == models.TaskStateSucceeded {
				succeeded++
			}
		}
		fmt.Printf("%s  %-10s %d/%d tasks  %s ago  %s\n",
			plan.ID, colorStatus(string(plan.Status)), succeeded, len(plan.Tasks),
			formatDuration(time.Since(plan.CreatedAt)), plan.Goal.Description)
	}
	return nil
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm", int(d.Minutes()))
	}
	if d < 24*time.Hour {
		h := int(d.Hours())
		m := int(d.Minutes()) % 60
		if m > 0 {
			return fmt.Sprintf("%dh%dm", h, m)
		}
		return fmt.Sprintf("%dh", h)
	}
	return fmt.Sprintf("%dd", int(d.Hours())/24)
}

func plural(n int, singular, pluralForm string) string {
	if n == 1 {
		return singular
	}
	return pluralForm
}
