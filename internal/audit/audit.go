// Package audit persists Execution Records, the append-only trail of
// dispatch attempts. Records are never mutated after append.
package audit

import (
	"fmt"
	"sync"
	"time"

	"github.com/ShayCichocki/foreman/pkg/models"
)

// Sink receives finalized Execution Records.
type Sink interface {
	Append(record *models.ExecutionRecord) error
}

// Query filters stored records. Zero-valued fields match everything.
type Query struct {
	// PlanID restricts results to one plan.
	PlanID string
	// TaskID restricts results to one task.
	TaskID string
	// ErrorKind restricts results to one failure classification.
	ErrorKind models.ErrorKind
	// From/To bound the record start time, inclusive/exclusive.
	From time.Time
	To   time.Time
	// Limit caps the number of results; zero means unlimited.
	Limit int
}

// matches reports whether the record passes the query's filters.
func (q Query) matches(r *models.ExecutionRecord) bool {
	if q.PlanID != "" && r.PlanID != q.PlanID {
		return false
	}
	if q.TaskID != "" && r.TaskID != q.TaskID {
		return false
	}
	if q.ErrorKind != models.ErrorKindNone && r.ErrorKind != q.ErrorKind {
		return false
	}
	if !q.From.IsZero() && r.StartedAt.Before(q.From) {
		return false
	}
	if !q.To.IsZero() && !r.StartedAt.Before(q.To) {
		return false
	}
	return true
}

// Store is a Sink that can also be queried.
type Store interface {
	Sink
	List(q Query) ([]*models.ExecutionRecord, error)
}

// MemorySink keeps records in memory, in append order. Used in tests and
// as the CLI fallback when no audit database is configured.
type MemorySink struct {
	mu      sync.Mutex
	records []*models.ExecutionRecord
}

// NewMemorySink creates an empty MemorySink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// Append implements Sink. The record is copied so later finalization by
// the caller cannot alter what was appended.
func (s *MemorySink) Append(record *models.ExecutionRecord) error {
	c := *record
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, &c)
	return nil
}

// List implements Store.
func (s *MemorySink) List(q Query) ([]*models.ExecutionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*models.ExecutionRecord
	for _, r := range s.records {
		if !q.matches(r) {
			continue
		}
		c := *r
		out = append(out, &c)
		if q.Limit > 0 && len(out) >= q.Limit {
			break
		}
	}
	return out, nil
}

// Len returns the number of appended records.
func (s *MemorySink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// MultiSink fans each record out to every sink. The first error wins but
// all sinks still receive the record.
type MultiSink []Sink

// Append implements Sink.
func (m MultiSink) Append(record *models.ExecutionRecord) error {
	var firstErr error
	for _, s := range m {
		if err := s.Append(record); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("append record %s: %w", record.ID, err)
		}
	}
	return firstErr
}

// Compile-time interface checks.
var (
	_ Store = (*MemorySink)(nil)
	_ Sink  = (MultiSink)(nil)
)
