// Package transport carries tasks to agents and delivers their results
// back to the scheduler. The scheduler consumes the Transport interface;
// agents themselves live on the far side of it.
package transport

import (
	"context"
	"errors"
	"time"

	"github.com/ShayCichocki/foreman/pkg/models"
)

// ErrDeadlineExceeded indicates a dispatched task's deadline expired
// before the agent reported a result.
var ErrDeadlineExceeded = errors.New("task deadline exceeded")

// ErrCancelled indicates the dispatch was cancelled before completion.
var ErrCancelled = errors.New("task cancelled")

// Handle identifies one in-flight dispatch for cancellation.
type Handle string

// Completion is the asynchronous result of one dispatch.
type Completion struct {
	// Handle identifies the dispatch the result belongs to.
	Handle Handle
	// TaskID is the task the dispatch was for.
	TaskID string
	// AgentID is the agent the task ran on.
	AgentID string
	// Result is the agent's output on success.
	Result map[string]string
	// Err is non-nil when the dispatch failed, including timeout and
	// cancellation.
	Err error
}

// Transport hands tasks to agents. Completions arrive asynchronously,
// at least once per dispatch, on the Completions channel.
type Transport interface {
	// Dispatch hands the task's payload to the given agent. The deadline
	// bounds execution; its expiry is reported as a failed Completion
	// wrapping ErrDeadlineExceeded.
	Dispatch(ctx context.Context, agentID string, task *models.Task, deadline time.Time) (Handle, error)
	// Cancel best-effort-stops an in-flight dispatch. The dispatch still
	// delivers a Completion, with an error wrapping ErrCancelled.
	Cancel(handle Handle)
	// Completions delivers results for every dispatch.
	Completions() <-chan Completion
	// Close releases transport resources. No dispatches may follow.
	Close() error
}
