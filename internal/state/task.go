package state

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/ShayCichocki/foreman/pkg/models"
)

// SaveTask upserts one task. Called on every task state transition.
func (db *DB) SaveTask(planID string, task *models.Task) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	dependsOn, payload, err := encodeTaskFields(task)
	if err != nil {
		return err
	}

	_, err = db.conn.Exec(`
		INSERT INTO tasks (plan_id, id, capability, depends_on, payload, estimated_cost, state, retry_count, assigned_to, created_at, completed_at, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(plan_id, id) DO UPDATE SET
			state = excluded.state,
			retry_count = excluded.retry_count,
			assigned_to = excluded.assigned_to,
			completed_at = excluded.completed_at,
			error = excluded.error
	`, planID, task.ID, task.Capability, dependsOn, payload, task.EstimatedCost,
		string(task.State), task.RetryCount, task.AssignedTo,
		formatTime(task.CreatedAt), nullableTimeArg(task.CompletedAt), task.Error)
	if err != nil {
		return fmt.Errorf("save task %s/%s: %w", planID, task.ID, err)
	}
	return nil
}

// saveTaskTx is SaveTask inside an existing transaction.
func saveTaskTx(tx *sql.Tx, planID string, task *models.Task) error {
	dependsOn, payload, err := encodeTaskFields(task)
	if err != nil {
		return err
	}

	_, err = tx.Exec(`
		INSERT INTO tasks (plan_id, id, capability, depends_on, payload, estimated_cost, state, retry_count, assigned_to, created_at, completed_at, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(plan_id, id) DO UPDATE SET
			state = excluded.state,
			retry_count = excluded.retry_count,
			assigned_to = excluded.assigned_to,
			completed_at = excluded.completed_at,
			error = excluded.error
	`, planID, task.ID, task.Capability, dependsOn, payload, task.EstimatedCost,
		string(task.State), task.RetryCount, task.AssignedTo,
		formatTime(task.CreatedAt), nullableTimeArg(task.CompletedAt), task.Error)
	if err != nil {
		return fmt.Errorf("save task %s/%s: %w", planID, task.ID, err)
	}
	return nil
}

// GetTask loads one task. Returns nil without error when absent.
func (db *DB) GetTask(planID, taskID string) (*models.Task, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	row := db.conn.QueryRow(`
		SELECT id, capability, depends_on, payload, estimated_cost, state, retry_count, assigned_to, created_at, completed_at, error
		FROM tasks WHERE plan_id = ? AND id = ?
	`, planID, taskID)

	task, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get task %s/%s: %w", planID, taskID, err)
	}
	return task, nil
}

// ListTasks returns a plan's tasks in insertion order.
func (db *DB) ListTasks(planID string) ([]*models.Task, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.listTasksLocked(planID)
}

// listTasksLocked is ListTasks with the lock already held.
func (db *DB) listTasksLocked(planID string) ([]*models.Task, error) {
	rows, err := db.conn.Query(`
		SELECT id, capability, depends_on, payload, estimated_cost, state, retry_count, assigned_to, created_at, completed_at, error
		FROM tasks WHERE plan_id = ? ORDER BY rowid
	`, planID)
	if err != nil {
		return nil, fmt.Errorf("list tasks for plan %s: %w", planID, err)
	}
	defer rows.Close()

	var tasks []*models.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

func scanTask(row scanner) (*models.Task, error) {
	var task models.Task
	var dependsOn, payload, assignedTo, completedAt, errDetail sql.NullString
	var createdAt, state string

	err := row.Scan(&task.ID, &task.Capability, &dependsOn, &payload,
		&task.EstimatedCost, &state, &task.RetryCount, &assignedTo,
		&createdAt, &completedAt, &errDetail)
	if err != nil {
		return nil, err
	}

	task.State = models.TaskState(state)
	task.AssignedTo = assignedTo.String
	task.Error = errDetail.String
	if t, err := parseTime(createdAt); err == nil {
		task.CreatedAt = t
	}
	task.CompletedAt = parseNullableTime(completedAt)

	if dependsOn.Valid && dependsOn.String != "" {
		if err := json.Unmarshal([]byte(dependsOn.String), &task.DependsOn); err != nil {
			return nil, fmt.Errorf("decode depends_on for task %s: %w", task.ID, err)
		}
	}
	if payload.Valid && payload.String != "" {
		if err := json.Unmarshal([]byte(payload.String), &task.Payload); err != nil {
			return nil, fmt.Errorf("decode payload for task %s: %w", task.ID, err)
		}
	}
	return &task, nil
}

// encodeTaskFields serializes the task's slice and map fields for storage.
func encodeTaskFields(task *models.Task) (dependsOn, payload any, err error) {
	if len(task.DependsOn) > 0 {
		data, err := json.Marshal(task.DependsOn)
		if err != nil {
			return nil, nil, fmt.Errorf("encode depends_on for task %s: %w", task.ID, err)
		}
		dependsOn = string(data)
	}
	if len(task.Payload) > 0 {
		data, err := json.Marshal(task.Payload)
		if err != nil {
			return nil, nil, fmt.Errorf("encode payload for task %s: %w", task.ID, err)
		}
		payload = string(data)
	}
	return dependsOn, payload, nil
}
