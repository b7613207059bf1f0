package orchestrator

import (
	"context"
	"errors"
	"time"

	"github.com/ShayCichocki/foreman/internal/transport"
	"github.com/ShayCichocki/foreman/pkg/models"
)

// Run executes the plan to a terminal status. It is the only goroutine
// mutating scheduler state outside the retry timer callbacks; both paths
// serialize on o.mu.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.mu.Lock()
	o.plan.Status = models.PlanStatusRunning
	o.persistPlanLocked()
	o.mu.Unlock()

	o.emit(Event{Type: EventPlanStarted, PlanID: o.plan.ID, Timestamp: time.Now()})
	o.logger.Log("[runLoop] plan %s started with %d tasks", o.plan.ID, len(o.plan.Tasks))

	// Nilled after the first cancellation so the loop doesn't spin on a
	// closed Done channel while completions drain.
	ctxDone := ctx.Done()

	for {
		// Drain completions ahead of scheduling so freshly succeeded
		// dependencies unlock their dependents in this iteration.
		select {
		case c := <-o.completionCh:
			o.handleCompletion(c)
			o.flushEvents()
			continue
		default:
		}

		if status, done := o.terminalStatus(); done {
			return o.finalize(status)
		}

		progressed := o.dispatchReady(ctx)
		o.flushEvents()
		if progressed {
			continue
		}

		select {
		case <-ctxDone:
			o.logger.Log("[runLoop] plan %s: context cancelled, halting", o.plan.ID)
			o.Cancel()
			ctxDone = nil
		case c := <-o.completionCh:
			o.handleCompletion(c)
			o.flushEvents()
		case <-o.wakeCh:
		case <-time.After(o.cfg.PollInterval):
			// Fallback poll so a missed wakeup never wedges the loop.
		}
	}
}

// terminalStatus reports whether the plan has reached a terminal status,
// and which one.
func (o *Orchestrator) terminalStatus() (models.PlanStatus, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	// In-flight tasks must report back before any terminal status.
	if len(o.inflight) > 0 {
		return "", false
	}
	if o.cancelled {
		return models.PlanStatusCancelled, true
	}
	if len(o.retryTimers) > 0 {
		return "", false
	}
	if o.failing {
		return models.PlanStatusFailed, true
	}

	allSucceeded := true
	for _, t := range o.plan.Tasks {
		if t.State != models.TaskStateSucceeded {
			allSucceeded = false
			break
		}
	}
	if allSucceeded {
		return models.PlanStatusSucceeded, true
	}

	// Nothing running, nothing waiting: if the ready set is empty the
	// remaining pending tasks sit behind failed dependencies (best-effort
	// mode) and the plan can make no further progress.
	if len(o.graph.Ready()) == 0 && len(o.failed) > 0 {
		return models.PlanStatusFailed, true
	}
	return "", false
}

// finalize records the terminal status and returns the plan's error.
func (o *Orchestrator) finalize(status models.PlanStatus) error {
	o.mu.Lock()
	now := time.Now()
	o.plan.Status = status
	o.plan.CompletedAt = &now
	o.persistPlanLocked()

	var err error
	if status == models.PlanStatusFailed {
		failed := make(map[string]error, len(o.failed))
		for id, ferr := range o.failed {
			failed[id] = ferr
		}
		err = &PlanFailedError{PlanID: o.plan.ID, Failed: failed}
	}
	o.runErr = err
	o.mu.Unlock()

	// Drain any task events still queued so they precede the plan event.
	o.flushEvents()
	o.recorder.PlanCompleted(string(status))
	o.emit(Event{
		Type:      EventPlanCompleted,
		PlanID:    o.plan.ID,
		Message:   string(status),
		Error:     err,
		Timestamp: now,
	})
	o.logger.Log("[runLoop] plan %s finished: %s", o.plan.ID, status)

	close(o.done)
	return err
}

// handleCompletion processes one transport result: it finalizes the
// attempt's execution record, releases the agent and the global slot, and
// advances the task's state machine.
func (o *Orchestrator) handleCompletion(c transport.Completion) {
	o.mu.Lock()
	defer o.mu.Unlock()

	inf, ok := o.inflight[c.TaskID]
	if !ok || inf.handle != c.Handle {
		o.logger.Log("[runLoop] stray completion for task %s", c.TaskID)
		return
	}
	delete(o.inflight, c.TaskID)
	o.registry.DecrementLoad(inf.agentID)
	o.slots.Release()
	o.recorder.InflightAdd(-1)

	task := inf.task
	record := inf.record
	record.EndedAt = time.Now()

	if c.Err == nil {
		record.Outcome = models.OutcomeSuccess
		o.appendRecord(record)
		o.succeedTaskLocked(task, c.AgentID)
		return
	}

	record.Outcome = models.OutcomeFailure
	record.ErrorKind = classifyTransportError(c.Err)
	record.Error = c.Err.Error()
	o.appendRecord(record)

	if o.cancelled || o.failing {
		// The plan is already winding down; the attempt was cut short.
		now := record.EndedAt
		task.State = models.TaskStateCancelled
		task.CompletedAt = &now
		task.Error = c.Err.Error()
		o.persistTaskLocked(task)
		o.recorder.TaskCompleted(string(models.TaskStateCancelled))
		o.queueEventLocked(Event{
			Type:      EventTaskCancelled,
			PlanID:    o.plan.ID,
			TaskID:    task.ID,
			AgentID:   inf.agentID,
			Error:     c.Err,
			Timestamp: now,
		})
		return
	}

	o.failAttemptLocked(task, c.Err)
}

// succeedTaskLocked marks a task terminal succeeded, which may unlock
// dependents on the next scheduling pass. Caller holds o.mu.
func (o *Orchestrator) succeedTaskLocked(task *models.Task, agentID string) {
	now := time.Now()
	task.State = models.TaskStateSucceeded
	task.CompletedAt = &now
	task.Error = ""
	o.graph.MarkSucceeded(task.ID)
	o.persistTaskLocked(task)
	o.recorder.TaskCompleted(string(models.TaskStateSucceeded))
	o.queueEventLocked(Event{
		Type:      EventTaskSucceeded,
		PlanID:    o.plan.ID,
		TaskID:    task.ID,
		AgentID:   agentID,
		Timestamp: now,
	})
	o.logger.Log("[runLoop] task %s succeeded on %s", task.ID, agentID)
}

// classifyTransportError maps a completion error to an audit error kind.
func classifyTransportError(err error) models.ErrorKind {
	switch {
	case errors.Is(err, transport.ErrDeadlineExceeded):
		return models.ErrorKindTimeout
	case errors.Is(err, transport.ErrCancelled):
		return models.ErrorKindCancelled
	default:
		return models.ErrorKindTransport
	}
}
