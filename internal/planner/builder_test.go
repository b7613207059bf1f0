package planner

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ShayCichocki/foreman/internal/decompose"
	"github.com/ShayCichocki/foreman/pkg/models"
)

func staticBuilder(specs []decompose.TaskSpec) *Builder {
	return New(decompose.NewStatic(specs))
}

func TestBuildSimplePlan(t *testing.T) {
	b := staticBuilder([]decompose.TaskSpec{
		{ID: "compile", Capability: "build", EstimatedCost: 2},
		{ID: "verify", Capability: "test", DependsOn: []string{"compile"}, EstimatedCost: 1},
	})

	plan, err := b.Build(models.Goal{ID: "g1", Description: "ship it"})
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	if !strings.HasPrefix(plan.ID, "plan-") || len(plan.ID) != len("plan-")+8 {
		t.Errorf("unexpected plan id format: %s", plan.ID)
	}
	if plan.Status != models.PlanStatusPending {
		t.Errorf("new plan should be pending, got %s", plan.Status)
	}
	if plan.FailureMode != models.FailFast {
		t.Errorf("default failure mode should be fail_fast, got %s", plan.FailureMode)
	}
	if len(plan.Tasks) != 2 {
		t.Fatalf("expected 2 tasks, got %d", len(plan.Tasks))
	}
	for _, task := range plan.Tasks {
		if task.State != models.TaskStatePending {
			t.Errorf("task %s should start pending, got %s", task.ID, task.State)
		}
	}
}

func TestBuildRejectsCycle(t *testing.T) {
	b := staticBuilder([]decompose.TaskSpec{
		{ID: "a", Capability: "x", DependsOn: []string{"b"}},
		{ID: "b", Capability: "x", DependsOn: []string{"a"}},
	})

	_, err := b.Build(models.Goal{ID: "g1", Description: "loop"})
	if !IsReason(err, CycleDetected) {
		t.Errorf("expected CycleDetected, got %v", err)
	}
}

func TestBuildRejectsUnknownDependency(t *testing.T) {
	b := staticBuilder([]decompose.TaskSpec{
		{ID: "a", Capability: "x", DependsOn: []string{"ghost"}},
	})

	_, err := b.Build(models.Goal{ID: "g1", Description: "dangling"})
	if !IsReason(err, UnknownDependency) {
		t.Errorf("expected UnknownDependency, got %v", err)
	}
}

func TestBuildRejectsEmptyCapability(t *testing.T) {
	b := staticBuilder([]decompose.TaskSpec{
		{ID: "a", Capability: "  "},
	})

	_, err := b.Build(models.Goal{ID: "g1", Description: "untagged"})
	if !IsReason(err, EmptyCapability) {
		t.Errorf("expected EmptyCapability, got %v", err)
	}
}

func TestBuildRejectsDuplicateTaskIDs(t *testing.T) {
	b := staticBuilder([]decompose.TaskSpec{
		{ID: "a", Capability: "x"},
		{ID: "a", Capability: "y"},
	})

	_, err := b.Build(models.Goal{ID: "g1", Description: "dupes"})
	if err == nil {
		t.Fatal("expected error for duplicate task ids")
	}
	var be *BuildError
	if errors.As(err, &be) {
		t.Errorf("duplicate ids are a strategy bug, not a BuildError: %v", err)
	}
}

func TestBuildEnforcesCostCeiling(t *testing.T) {
	b := staticBuilder([]decompose.TaskSpec{
		{ID: "a", Capability: "x", EstimatedCost: 6},
		{ID: "b", Capability: "x", EstimatedCost: 5},
	})

	_, err := b.Build(models.Goal{
		ID:          "g1",
		Description: "expensive",
		Constraints: models.Constraints{MaxCost: 10},
	})
	if !IsReason(err, ConstraintUnsatisfiable) {
		t.Errorf("expected ConstraintUnsatisfiable, got %v", err)
	}

	// At exactly the ceiling the plan builds.
	b2 := staticBuilder([]decompose.TaskSpec{
		{ID: "a", Capability: "x", EstimatedCost: 5},
		{ID: "b", Capability: "x", EstimatedCost: 5},
	})
	if _, err := b2.Build(models.Goal{
		ID:          "g2",
		Description: "affordable",
		Constraints: models.Constraints{MaxCost: 10},
	}); err != nil {
		t.Errorf("cost at ceiling should build: %v", err)
	}
}

func TestBuildRejectsPastDeadline(t *testing.T) {
	b := staticBuilder([]decompose.TaskSpec{
		{ID: "a", Capability: "x"},
	})

	_, err := b.Build(models.Goal{
		ID:          "g1",
		Description: "late",
		Constraints: models.Constraints{Deadline: time.Now().Add(-time.Minute)},
	})
	if !IsReason(err, ConstraintUnsatisfiable) {
		t.Errorf("expected ConstraintUnsatisfiable, got %v", err)
	}
}

func TestBuildWrapsStrategyErrors(t *testing.T) {
	b := New(failingStrategy{})

	_, err := b.Build(models.Goal{ID: "g1", Description: "anything"})
	if err == nil {
		t.Fatal("expected strategy error to propagate")
	}
	if !strings.Contains(err.Error(), "no can do") {
		t.Errorf("strategy error lost in wrapping: %v", err)
	}
}

type failingStrategy struct{}

func (failingStrategy) Decompose(goal models.Goal) ([]decompose.TaskSpec, error) {
	return nil, errors.New("no can do")
}

func TestBuildIsAllOrNothing(t *testing.T) {
	specs := []decompose.TaskSpec{
		{ID: "ok", Capability: "x"},
		{ID: "bad", Capability: ""},
	}
	b := staticBuilder(specs)

	plan, err := b.Build(models.Goal{ID: "g1", Description: "partial"})
	if err == nil {
		t.Fatal("expected build failure")
	}
	if plan != nil {
		t.Error("failed build must not return a partial plan")
	}
}
