package models

import "testing"

func TestPlanStatus_Valid(t *testing.T) {
	tests := []struct {
		name   string
		status PlanStatus
		want   bool
	}{
		{"pending is valid", PlanStatusPending, true},
		{"running is valid", PlanStatusRunning, true},
		{"succeeded is valid", PlanStatusSucceeded, true},
		{"failed is valid", PlanStatusFailed, true},
		{"cancelled is valid", PlanStatusCancelled, true},
		{"empty string is invalid", PlanStatus(""), false},
		{"unknown status is invalid", PlanStatus("done"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.status.Valid(); got != tt.want {
				t.Errorf("PlanStatus(%q).Valid() = %v, want %v", tt.status, got, tt.want)
			}
		})
	}
}

func TestPlanStatus_Terminal(t *testing.T) {
	tests := []struct {
		status PlanStatus
		want   bool
	}{
		{PlanStatusPending, false},
		{PlanStatusRunning, false},
		{PlanStatusSucceeded, true},
		{PlanStatusFailed, true},
		{PlanStatusCancelled, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			if got := tt.status.Terminal(); got != tt.want {
				t.Errorf("PlanStatus(%q).Terminal() = %v, want %v", tt.status, got, tt.want)
			}
		})
	}
}

func TestFailureMode_Valid(t *testing.T) {
	if !FailFast.Valid() {
		t.Error("FailFast should be valid")
	}
	if !BestEffort.Valid() {
		t.Error("BestEffort should be valid")
	}
	if FailureMode("").Valid() {
		t.Error("empty failure mode should be invalid")
	}
	if FailureMode("lenient").Valid() {
		t.Error("unknown failure mode should be invalid")
	}
}

func TestPlan_TaskByID(t *testing.T) {
	plan := &Plan{
		ID: "plan-1",
		Tasks: []*Task{
			{ID: "a", Capability: "build"},
			{ID: "b", Capability: "test", DependsOn: []string{"a"}},
		},
	}

	if got := plan.TaskByID("b"); got == nil || got.Capability != "test" {
		t.Errorf("TaskByID(b) = %v, want task with capability test", got)
	}
	if got := plan.TaskByID("missing"); got != nil {
		t.Errorf("TaskByID(missing) = %v, want nil", got)
	}
}

func TestPlan_TaskIDs(t *testing.T) {
	plan := &Plan{
		Tasks: []*Task{{ID: "a"}, {ID: "b"}, {ID: "c"}},
	}

	ids := plan.TaskIDs()
	want := []string{"a", "b", "c"}
	if len(ids) != len(want) {
		t.Fatalf("TaskIDs() returned %d ids, want %d", len(ids), len(want))
	}
	for i, id := range want {
		if ids[i] != id {
			t.Errorf("TaskIDs()[%d] = %q, want %q", i, ids[i], id)
		}
	}
}

