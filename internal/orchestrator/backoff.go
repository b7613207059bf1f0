package orchestrator

import (
	"time"

	"github.com/ShayCichocki/foreman/pkg/models"
)

// failAttemptLocked advances a task after a failed attempt: back into
// pending behind an exponential backoff while retries remain, terminal
// failed otherwise. Matcher no-candidate, gate denial, and transport
// failures all arrive here. Caller holds o.mu.
func (o *Orchestrator) failAttemptLocked(task *models.Task, cause error) {
	task.Error = cause.Error()

	if task.RetryCount < o.cfg.MaxRetries {
		task.RetryCount++
		task.State = models.TaskStateRetrying
		o.persistTaskLocked(task)
		o.recorder.TaskRetried()
		delay := o.cfg.Backoff(task.RetryCount)
		o.queueEventLocked(Event{
			Type:      EventTaskRetrying,
			PlanID:    o.plan.ID,
			TaskID:    task.ID,
			Message:   delay.String(),
			Error:     cause,
			Timestamp: time.Now(),
		})
		o.logger.Log("[backoff] task %s retry %d/%d in %s: %v",
			task.ID, task.RetryCount, o.cfg.MaxRetries, delay, cause)
		o.scheduleRetryLocked(task, delay)
		return
	}

	now := time.Now()
	task.State = models.TaskStateFailed
	task.CompletedAt = &now
	o.failed[task.ID] = cause
	o.persistTaskLocked(task)
	o.recorder.TaskCompleted(string(models.TaskStateFailed))
	o.queueEventLocked(Event{
		Type:      EventTaskFailed,
		PlanID:    o.plan.ID,
		TaskID:    task.ID,
		Error:     cause,
		Timestamp: now,
	})
	o.logger.Log("[backoff] task %s failed terminally after %d retries: %v",
		task.ID, task.RetryCount, cause)

	if o.plan.FailureMode == models.FailFast && !o.failing && !o.cancelled {
		o.failing = true
		o.haltLocked("dependency failed")
	}
}

// scheduleRetryLocked arms a cancellable timer returning the task to
// pending after the backoff delay. Halting the plan stops the timer, so a
// cancelled task is never resurrected. Caller holds o.mu.
func (o *Orchestrator) scheduleRetryLocked(task *models.Task, delay time.Duration) {
	taskID := task.ID
	timer := time.AfterFunc(delay, func() {
		o.mu.Lock()
		delete(o.retryTimers, taskID)
		if task.State == models.TaskStateRetrying && !o.failing && !o.cancelled {
			task.State = models.TaskStatePending
			o.persistTaskLocked(task)
		}
		o.mu.Unlock()
		o.wake()
	})
	o.retryTimers[taskID] = timer
}
