package models

import (
	"testing"
	"time"
)

func TestTaskState_Valid(t *testing.T) {
	tests := []struct {
		name  string
		state TaskState
		want  bool
	}{
		{"pending is valid", TaskStatePending, true},
		{"ready is valid", TaskStateReady, true},
		{"matched is valid", TaskStateMatched, true},
		{"gated is valid", TaskStateGated, true},
		{"dispatched is valid", TaskStateDispatched, true},
		{"retrying is valid", TaskStateRetrying, true},
		{"succeeded is valid", TaskStateSucceeded, true},
		{"failed is valid", TaskStateFailed, true},
		{"cancelled is valid", TaskStateCancelled, true},
		{"empty string is invalid", TaskState(""), false},
		{"unknown state is invalid", TaskState("paused"), false},
		{"typo state is invalid", TaskState("pendingg"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.state.Valid(); got != tt.want {
				t.Errorf("TaskState(%q).Valid() = %v, want %v", tt.state, got, tt.want)
			}
		})
	}
}

func TestTaskState_Terminal(t *testing.T) {
	tests := []struct {
		state TaskState
		want  bool
	}{
		{TaskStatePending, false},
		{TaskStateReady, false},
		{TaskStateMatched, false},
		{TaskStateGated, false},
		{TaskStateDispatched, false},
		{TaskStateRetrying, false},
		{TaskStateSucceeded, true},
		{TaskStateFailed, true},
		{TaskStateCancelled, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.state), func(t *testing.T) {
			if got := tt.state.Terminal(); got != tt.want {
				t.Errorf("TaskState(%q).Terminal() = %v, want %v", tt.state, got, tt.want)
			}
		})
	}
}

func TestTask_DefaultValues(t *testing.T) {
	task := Task{}

	if task.ID != "" {
		t.Errorf("Task.ID default should be empty string, got %q", task.ID)
	}
	if task.Capability != "" {
		t.Errorf("Task.Capability default should be empty string, got %q", task.Capability)
	}
	if task.DependsOn != nil {
		t.Errorf("Task.DependsOn default should be nil, got %v", task.DependsOn)
	}
	if task.State != "" {
		t.Errorf("Task.State default should be empty string, got %q", task.State)
	}
	if task.CompletedAt != nil {
		t.Errorf("Task.CompletedAt default should be nil, got %v", task.CompletedAt)
	}
	if !task.CreatedAt.IsZero() {
		t.Errorf("Task.CreatedAt default should be zero time, got %v", task.CreatedAt)
	}
}

func TestTask_Fields(t *testing.T) {
	now := time.Now()
	completedAt := now.Add(time.Minute)

	task := Task{
		ID:            "fetch-sources",
		Capability:    "research",
		DependsOn:     []string{"resolve-topic"},
		Payload:       map[string]string{"query": "multi-agent systems"},
		EstimatedCost: 2.5,
		State:         TaskStateDispatched,
		RetryCount:    1,
		AssignedTo:    "agent-a",
		CreatedAt:     now,
		CompletedAt:   &completedAt,
		Error:         "",
	}

	if task.Capability != "research" {
		t.Errorf("Task.Capability = %q, want %q", task.Capability, "research")
	}
	if len(task.DependsOn) != 1 || task.DependsOn[0] != "resolve-topic" {
		t.Errorf("Task.DependsOn = %v, want [resolve-topic]", task.DependsOn)
	}
	if task.Payload["query"] != "multi-agent systems" {
		t.Errorf("Task.Payload[query] = %q, want %q", task.Payload["query"], "multi-agent systems")
	}
	if task.State != TaskStateDispatched {
		t.Errorf("Task.State = %q, want %q", task.State, TaskStateDispatched)
	}
	if task.CompletedAt == nil || !task.CompletedAt.Equal(completedAt) {
		t.Errorf("Task.CompletedAt = %v, want %v", task.CompletedAt, completedAt)
	}
}
