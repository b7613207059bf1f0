package orchestrator

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ShayCichocki/foreman/internal/matcher"
	"github.com/ShayCichocki/foreman/internal/transport"
	"github.com/ShayCichocki/foreman/pkg/models"
)

// slotLimiter bounds dispatched tasks across all plans in a pool.
type slotLimiter struct {
	mu    sync.Mutex
	used  int
	limit int
}

func newSlotLimiter(limit int) *slotLimiter {
	return &slotLimiter{limit: limit}
}

// TryAcquire claims a slot if one is free.
func (s *slotLimiter) TryAcquire() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.used >= s.limit {
		return false
	}
	s.used++
	return true
}

// Release frees a previously acquired slot.
func (s *slotLimiter) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.used > 0 {
		s.used--
	}
}

// InUse returns the number of claimed slots.
func (s *slotLimiter) InUse() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.used
}

// completionRouter fans transport completions out to the orchestrator
// owning each dispatch handle. A completion can arrive before its handle
// is registered (the transport goroutine races Dispatch's return), so
// unclaimed completions are parked until the owner registers.
type completionRouter struct {
	mu     sync.Mutex
	owners map[transport.Handle]chan<- transport.Completion
	parked map[transport.Handle]transport.Completion
}

func newCompletionRouter() *completionRouter {
	return &completionRouter{
		owners: make(map[transport.Handle]chan<- transport.Completion),
		parked: make(map[transport.Handle]transport.Completion),
	}
}

// register claims a handle for the given channel. If the completion
// already arrived it is delivered immediately.
func (r *completionRouter) register(h transport.Handle, ch chan<- transport.Completion) {
	r.mu.Lock()
	if c, ok := r.parked[h]; ok {
		delete(r.parked, h)
		r.mu.Unlock()
		ch <- c
		return
	}
	r.owners[h] = ch
	r.mu.Unlock()
}

// route consumes the transport's completion stream until it closes.
func (r *completionRouter) route(completions <-chan transport.Completion) {
	for c := range completions {
		r.mu.Lock()
		ch, ok := r.owners[c.Handle]
		if ok {
			delete(r.owners, c.Handle)
		} else {
			r.parked[c.Handle] = c
		}
		r.mu.Unlock()
		if ok {
			ch <- c
		}
	}
}

// readyTaskIDsLocked returns the current ready set in deterministic
// (sorted) order. Caller holds o.mu.
func (o *Orchestrator) readyTaskIDsLocked() []string {
	ready := o.graph.Ready()
	sort.Strings(ready)
	return ready
}

// dispatchReady walks the ready set and pushes each task through
// match, gate, and dispatch, up to the global concurrency bound and each
// agent's per-agent bound. Returns true if any task made progress.
func (o *Orchestrator) dispatchReady(ctx context.Context) bool {
	if o.pauseCtrl.IsPaused() {
		return false
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.failing || o.cancelled {
		return false
	}

	progressed := false
	for _, taskID := range o.readyTaskIDsLocked() {
		if o.failing || o.cancelled {
			break
		}
		task := o.plan.TaskByID(taskID)
		if task == nil || task.State != models.TaskStatePending {
			continue
		}
		if !o.slots.TryAcquire() {
			break
		}
		if o.dispatchOneLocked(ctx, task) {
			progressed = true
		}
	}
	return progressed
}

// dispatchOneLocked runs one ready task through the dispatch pipeline.
// The caller has already acquired a global slot; this releases it on any
// path that does not leave the task dispatched. Caller holds o.mu.
func (o *Orchestrator) dispatchOneLocked(ctx context.Context, task *models.Task) bool {
	now := time.Now()
	task.State = models.TaskStateReady
	o.queueEventLocked(Event{Type: EventTaskReady, PlanID: o.plan.ID, TaskID: task.ID, Timestamp: now})

	agentID, err := matcher.Match(task, o.registry.Snapshot())
	if err != nil {
		o.slots.Release()
		o.recorder.MatchFailed()
		o.logger.Log("[scheduler] task %s: no candidate: %v", task.ID, err)
		o.recordAttemptFailureLocked(task, "", models.ErrorKindNoCandidate, err)
		return true
	}
	task.State = models.TaskStateMatched

	decision := o.gate.Check(ctx, task, o.registry.Agent(agentID))
	if !decision.Allow {
		o.slots.Release()
		o.recorder.GateDenied()
		o.logger.Log("[scheduler] task %s: gate denied for agent %s: %s", task.ID, agentID, decision.Reason)
		err := errors.New("gate denied: " + decision.Reason)
		o.recordAttemptFailureLocked(task, agentID, models.ErrorKindGateDenied, err)
		return true
	}
	task.State = models.TaskStateGated

	// Load increment happens only after the gate approves. A failure here
	// means the agent saturated between snapshot and now; treat it like
	// finding no candidate.
	if err := o.registry.IncrementLoad(agentID); err != nil {
		o.slots.Release()
		o.recorder.MatchFailed()
		o.recordAttemptFailureLocked(task, agentID, models.ErrorKindNoCandidate, err)
		return true
	}

	record := &models.ExecutionRecord{
		ID:        uuid.New().String(),
		PlanID:    o.plan.ID,
		TaskID:    task.ID,
		AgentID:   agentID,
		Attempt:   task.RetryCount + 1,
		StartedAt: now,
	}

	handle, err := o.trans.Dispatch(ctx, agentID, task, o.dispatchDeadline(now))
	if err != nil {
		o.registry.DecrementLoad(agentID)
		o.slots.Release()
		record.EndedAt = time.Now()
		record.Outcome = models.OutcomeFailure
		record.ErrorKind = models.ErrorKindTransport
		record.Error = err.Error()
		o.appendRecord(record)
		o.failAttemptLocked(task, err)
		return true
	}

	task.State = models.TaskStateDispatched
	task.AssignedTo = agentID
	o.inflight[task.ID] = &inflightTask{
		task:    task,
		handle:  handle,
		agentID: agentID,
		record:  record,
	}
	o.router.register(handle, o.completionCh)
	o.recorder.TaskDispatched()
	o.recorder.InflightAdd(1)
	o.persistTaskLocked(task)
	o.queueEventLocked(Event{
		Type:      EventTaskDispatched,
		PlanID:    o.plan.ID,
		TaskID:    task.ID,
		AgentID:   agentID,
		Timestamp: time.Now(),
	})
	o.logger.Log("[scheduler] task %s dispatched to %s (attempt %d)", task.ID, agentID, record.Attempt)
	return true
}

// recordAttemptFailureLocked appends a failed attempt record for a task
// that never reached the transport, then routes the task through the
// shared retry path. Caller holds o.mu.
func (o *Orchestrator) recordAttemptFailureLocked(task *models.Task, agentID string, kind models.ErrorKind, err error) {
	now := time.Now()
	o.appendRecord(&models.ExecutionRecord{
		ID:        uuid.New().String(),
		PlanID:    o.plan.ID,
		TaskID:    task.ID,
		AgentID:   agentID,
		Attempt:   task.RetryCount + 1,
		StartedAt: now,
		EndedAt:   now,
		Outcome:   models.OutcomeFailure,
		ErrorKind: kind,
		Error:     err.Error(),
	})
	o.failAttemptLocked(task, err)
}

// dispatchDeadline derives the per-dispatch deadline from the task
// timeout, bounded by the plan's own deadline when one is set.
func (o *Orchestrator) dispatchDeadline(now time.Time) time.Time {
	var deadline time.Time
	if o.cfg.TaskTimeout > 0 {
		deadline = now.Add(o.cfg.TaskTimeout)
	}
	planDeadline := o.plan.Goal.Constraints.Deadline
	if !planDeadline.IsZero() && (deadline.IsZero() || planDeadline.Before(deadline)) {
		deadline = planDeadline
	}
	return deadline
}
