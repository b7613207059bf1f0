package transport

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ShayCichocki/foreman/pkg/models"
)

// Handler runs one task on behalf of an agent. The context is cancelled
// when the dispatch deadline expires or the dispatch is cancelled.
type Handler func(ctx context.Context, agentID string, task *models.Task) (map[string]string, error)

// Local is an in-process Transport running per-capability handlers on
// goroutines. Used by the CLI's simulated agents and by tests.
type Local struct {
	// handlers maps capability tags to handler funcs.
	handlers map[string]Handler
	// completions delivers results back to the scheduler.
	completions chan Completion
	// inflight maps handles to the cancel funcs of running dispatches.
	inflight map[Handle]context.CancelFunc
	// mu protects handlers and inflight.
	mu sync.Mutex
	// wg tracks running dispatch goroutines.
	wg sync.WaitGroup
	// closed guards against dispatch after Close.
	closed bool
}

// NewLocal creates a Local transport with the given completion buffer.
func NewLocal(buffer int) *Local {
	if buffer < 1 {
		buffer = 64
	}
	return &Local{
		handlers:    make(map[string]Handler),
		completions: make(chan Completion, buffer),
		inflight:    make(map[Handle]context.CancelFunc),
	}
}

// Register installs a handler for a capability tag. A task dispatched
// with an unregistered capability fails immediately.
func (l *Local) Register(capability string, h Handler) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.handlers[capability] = h
}

// Dispatch implements Transport.
func (l *Local) Dispatch(ctx context.Context, agentID string, task *models.Task, deadline time.Time) (Handle, error) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return "", fmt.Errorf("transport is closed")
	}
	h, ok := l.handlers[task.Capability]
	if !ok {
		l.mu.Unlock()
		return "", fmt.Errorf("no handler for capability %q", task.Capability)
	}

	// Exactly one child context per dispatch; run's deferred cleanup
	// releases its cancel once the completion is delivered.
	var runCtx context.Context
	var cancel context.CancelFunc
	if deadline.IsZero() {
		runCtx, cancel = context.WithCancel(ctx)
	} else {
		runCtx, cancel = context.WithDeadline(ctx, deadline)
	}

	handle := Handle(uuid.New().String())
	l.inflight[handle] = cancel
	l.wg.Add(1)
	l.mu.Unlock()

	go l.run(runCtx, handle, agentID, task, h)

	return handle, nil
}

// run executes the handler and delivers exactly one completion.
func (l *Local) run(ctx context.Context, handle Handle, agentID string, task *models.Task, h Handler) {
	defer l.wg.Done()
	defer func() {
		l.mu.Lock()
		if cancel, ok := l.inflight[handle]; ok {
			delete(l.inflight, handle)
			cancel()
		}
		l.mu.Unlock()
	}()

	type outcome struct {
		result map[string]string
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		result, err := h(ctx, agentID, task)
		done <- outcome{result: result, err: err}
	}()

	var c Completion
	select {
	case out := <-done:
		c = Completion{Handle: handle, TaskID: task.ID, AgentID: agentID, Result: out.result, Err: out.err}
	case <-ctx.Done():
		err := ctx.Err()
		if err == context.DeadlineExceeded {
			err = fmt.Errorf("task %s on agent %s: %w", task.ID, agentID, ErrDeadlineExceeded)
		} else {
			err = fmt.Errorf("task %s on agent %s: %w", task.ID, agentID, ErrCancelled)
		}
		c = Completion{Handle: handle, TaskID: task.ID, AgentID: agentID, Err: err}
	}

	l.completions <- c
}

// Cancel implements Transport.
func (l *Local) Cancel(handle Handle) {
	l.mu.Lock()
	cancel, ok := l.inflight[handle]
	l.mu.Unlock()
	if ok {
		cancel()
	}
}

// Completions implements Transport.
func (l *Local) Completions() <-chan Completion {
	return l.completions
}

// Close waits for in-flight dispatches and closes the completion channel.
func (l *Local) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	for _, cancel := range l.inflight {
		cancel()
	}
	l.mu.Unlock()

	l.wg.Wait()
	close(l.completions)
	return nil
}
