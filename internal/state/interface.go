// Package state provides SQLite-based persistence for plans and tasks.
package state

import (
	"io"
	"time"

	"github.com/ShayCichocki/foreman/pkg/models"
)

// PlanStore handles plan-level persistence operations.
type PlanStore interface {
	SavePlan(plan *models.Plan) error
	GetPlan(planID string) (*models.Plan, error)
	ListPlans() ([]*models.Plan, error)
	RecoverInterrupted() (int64, error)
	PurgeOldPlans(olderThan time.Duration) (int64, error)
}

// TaskStore handles task-level persistence operations.
type TaskStore interface {
	SaveTask(planID string, task *models.Task) error
	GetTask(planID, taskID string) (*models.Task, error)
	ListTasks(planID string) ([]*models.Task, error)
}

// Migrator handles database schema migrations.
// Separating this allows clients to depend only on migration functionality.
type Migrator interface {
	// Migrate applies all pending schema migrations.
	Migrate() error
}

// StateStore defines the interface for state persistence.
// This interface allows the orchestrator and CLI to work with any state
// backend without depending on the concrete SQLite implementation.
// It composes focused sub-interfaces for better modularity.
type StateStore interface {
	io.Closer
	Migrator
	PlanStore
	TaskStore
}

// Compile-time verification that DB implements all interfaces.
var (
	_ StateStore = (*DB)(nil)
	_ Migrator   = (*DB)(nil)
	_ PlanStore  = (*DB)(nil)
	_ TaskStore  = (*DB)(nil)
)
