package state

import (
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/ShayCichocki/foreman/pkg/models"
)

// SavePlan upserts the plan row and all of its tasks in one transaction.
// Called at submission and on every plan status transition.
func (db *DB) SavePlan(plan *models.Plan) error {
	return db.Transaction(func(tx *sql.Tx) error {
		var deadline any
		if !plan.Goal.Constraints.Deadline.IsZero() {
			deadline = formatTime(plan.Goal.Constraints.Deadline)
		}

		_, err := tx.Exec(`
			INSERT INTO plans (id, goal_id, goal_description, max_cost, deadline, status, failure_mode, created_at, completed_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				status = excluded.status,
				failure_mode = excluded.failure_mode,
				completed_at = excluded.completed_at
		`, plan.ID, plan.Goal.ID, plan.Goal.Description, plan.Goal.Constraints.MaxCost,
			deadline, string(plan.Status), string(plan.FailureMode),
			formatTime(plan.CreatedAt), nullableTimeArg(plan.CompletedAt))
		if err != nil {
			return fmt.Errorf("save plan %s: %w", plan.ID, err)
		}

		for _, task := range plan.Tasks {
			if err := saveTaskTx(tx, plan.ID, task); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetPlan loads a plan and its tasks. Returns nil without error when the
// plan does not exist.
func (db *DB) GetPlan(planID string) (*models.Plan, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	row := db.conn.QueryRow(`
		SELECT id, goal_id, goal_description, max_cost, deadline, status, failure_mode, created_at, completed_at
		FROM plans WHERE id = ?
	`, planID)

	plan, err := scanPlan(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get plan %s: %w", planID, err)
	}

	tasks, err := db.listTasksLocked(planID)
	if err != nil {
		return nil, err
	}
	plan.Tasks = tasks
	return plan, nil
}

// ListPlans returns all plans with their tasks, newest first.
func (db *DB) ListPlans() ([]*models.Plan, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	rows, err := db.conn.Query(`
		SELECT id, goal_id, goal_description, max_cost, deadline, status, failure_mode, created_at, completed_at
		FROM plans ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list plans: %w", err)
	}
	defer rows.Close()

	var plans []*models.Plan
	for rows.Next() {
		plan, err := scanPlan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan plan: %w", err)
		}
		plans = append(plans, plan)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, plan := range plans {
		tasks, err := db.listTasksLocked(plan.ID)
		if err != nil {
			return nil, err
		}
		plan.Tasks = tasks
	}
	return plans, nil
}

// scanner abstracts sql.Row and sql.Rows for scanPlan.
type scanner interface {
	Scan(dest ...any) error
}

func scanPlan(row scanner) (*models.Plan, error) {
	var plan models.Plan
	var deadline, completedAt sql.NullString
	var createdAt, status, failureMode string

	err := row.Scan(&plan.ID, &plan.Goal.ID, &plan.Goal.Description,
		&plan.Goal.Constraints.MaxCost, &deadline, &status, &failureMode,
		&createdAt, &completedAt)
	if err != nil {
		return nil, err
	}

	plan.Status = models.PlanStatus(status)
	plan.FailureMode = models.FailureMode(failureMode)
	if deadline.Valid {
		if t, err := parseTime(deadline.String); err == nil {
			plan.Goal.Constraints.Deadline = t
		}
	}
	if t, err := parseTime(createdAt); err == nil {
		plan.CreatedAt = t
	}
	plan.CompletedAt = parseNullableTime(completedAt)
	return &plan, nil
}

// RecoverInterrupted marks plans left running by a crashed process as
// failed, cancelling their non-terminal tasks. Returns the number of
// plans recovered. Run once at startup, before submitting new plans.
func (db *DB) RecoverInterrupted() (int64, error) {
	var recovered int64
	err := db.Transaction(func(tx *sql.Tx) error {
		now := formatTime(time.Now())

		result, err := tx.Exec(`
			UPDATE plans SET status = 'failed', completed_at = ?
			WHERE status IN ('pending', 'running')
		`, now)
		if err != nil {
			return fmt.Errorf("fail interrupted plans: %w", err)
		}
		recovered, err = result.RowsAffected()
		if err != nil {
			return fmt.Errorf("get rows affected: %w", err)
		}

		_, err = tx.Exec(`
			UPDATE tasks SET state = 'cancelled', completed_at = ?
			WHERE state NOT IN ('succeeded', 'failed', 'cancelled')
			AND plan_id IN (SELECT id FROM plans WHERE status = 'failed' AND completed_at = ?)
		`, now, now)
		if err != nil {
			return fmt.Errorf("cancel interrupted tasks: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if recovered > 0 {
		log.Printf("[state] recovered %d interrupted plan(s)", recovered)
	}
	return recovered, nil
}

// PurgeOldPlans deletes terminal plans created before the cutoff. Tasks
// go with their plan via the foreign key cascade. Returns the number of
// plans deleted.
func (db *DB) PurgeOldPlans(olderThan time.Duration) (int64, error) {
	cutoff := formatTime(time.Now().Add(-olderThan))

	db.mu.Lock()
	defer db.mu.Unlock()

	result, err := db.conn.Exec(`
		DELETE FROM plans
		WHERE status IN ('succeeded', 'failed', 'cancelled') AND created_at < ?
	`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge old plans: %w", err)
	}

	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("get rows affected: %w", err)
	}
	return count, nil
}
