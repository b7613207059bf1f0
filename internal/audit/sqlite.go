package audit

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/ShayCichocki/foreman/pkg/models"
)

// SQLiteSink stores execution records in a self-contained SQLite file,
// separate from the plan state database.
type SQLiteSink struct {
	db *sql.DB
}

// NewSQLiteSink opens (or creates) the audit database at dbPath.
func NewSQLiteSink(dbPath string) (*SQLiteSink, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create audit directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open audit database: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS execution_records (
			id TEXT PRIMARY KEY,
			plan_id TEXT NOT NULL,
			task_id TEXT NOT NULL,
			agent_id TEXT,
			attempt INTEGER NOT NULL,
			started_at DATETIME NOT NULL,
			ended_at DATETIME NOT NULL,
			outcome TEXT NOT NULL,
			error_kind TEXT,
			error TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_records_plan_id ON execution_records(plan_id);
		CREATE INDEX IF NOT EXISTS idx_records_task_id ON execution_records(task_id);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create execution_records table: %w", err)
	}

	return &SQLiteSink{db: db}, nil
}

// Append implements Sink.
func (s *SQLiteSink) Append(r *models.ExecutionRecord) error {
	_, err := s.db.Exec(`
		INSERT INTO execution_records (id, plan_id, task_id, agent_id, attempt, started_at, ended_at, outcome, error_kind, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, r.ID, r.PlanID, r.TaskID, r.AgentID, r.Attempt,
		r.StartedAt.UTC().Format(time.RFC3339Nano), r.EndedAt.UTC().Format(time.RFC3339Nano),
		string(r.Outcome), string(r.ErrorKind), r.Error)
	if err != nil {
		return fmt.Errorf("append record %s: %w", r.ID, err)
	}
	return nil
}

// List implements Store. Records come back in append order.
func (s *SQLiteSink) List(q Query) ([]*models.ExecutionRecord, error) {
	var conds []string
	var args []any
	if q.PlanID != "" {
		conds = append(conds, "plan_id = ?")
		args = append(args, q.PlanID)
	}
	if q.TaskID != "" {
		conds = append(conds, "task_id = ?")
		args = append(args, q.TaskID)
	}
	if q.ErrorKind != models.ErrorKindNone {
		conds = append(conds, "error_kind = ?")
		args = append(args, string(q.ErrorKind))
	}
	if !q.From.IsZero() {
		conds = append(conds, "started_at >= ?")
		args = append(args, q.From.UTC().Format(time.RFC3339Nano))
	}
	if !q.To.IsZero() {
		conds = append(conds, "started_at < ?")
		args = append(args, q.To.UTC().Format(time.RFC3339Nano))
	}

	query := "SELECT id, plan_id, task_id, agent_id, attempt, started_at, ended_at, outcome, error_kind, error FROM execution_records"
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY rowid"
	if q.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", q.Limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	var out []*models.ExecutionRecord
	for rows.Next() {
		var r models.ExecutionRecord
		var started, ended string
		var agentID, errorKind, errorDetail sql.NullString
		if err := rows.Scan(&r.ID, &r.PlanID, &r.TaskID, &agentID, &r.Attempt, &started, &ended, &r.Outcome, &errorKind, &errorDetail); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		r.AgentID = agentID.String
		r.ErrorKind = models.ErrorKind(errorKind.String)
		r.Error = errorDetail.String
		r.StartedAt, _ = time.Parse(time.RFC3339Nano, started)
		r.EndedAt, _ = time.Parse(time.RFC3339Nano, ended)
		out = append(out, &r)
	}
	return out, rows.Err()
}

// Close closes the audit database.
func (s *SQLiteSink) Close() error {
	return s.db.Close()
}

var _ Store = (*SQLiteSink)(nil)
