package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ShayCichocki/foreman/internal/audit"
	"github.com/ShayCichocki/foreman/internal/decompose"
	"github.com/ShayCichocki/foreman/internal/gate"
	"github.com/ShayCichocki/foreman/internal/orchestrator/policy"
	"github.com/ShayCichocki/foreman/internal/planner"
	"github.com/ShayCichocki/foreman/internal/registry"
	"github.com/ShayCichocki/foreman/internal/transport"
	"github.com/ShayCichocki/foreman/pkg/models"
)

func fastPolicy() *policy.Config {
	return &policy.Config{
		GlobalConcurrency: 4,
		MaxRetries:        2,
		BackoffBase:       10 * time.Millisecond,
		BackoffCap:        50 * time.Millisecond,
		TaskTimeout:       5 * time.Second,
		PollInterval:      10 * time.Millisecond,
		EventBufferSize:   256,
		FailureMode:       models.FailFast,
	}
}

func testAgent(id string, caps ...string) *models.AgentDescriptor {
	return &models.AgentDescriptor{ID: id, Capabilities: caps, MaxConcurrent: 4}
}

type poolFixture struct {
	pool  *Pool
	trans *transport.Local
	sink  *audit.MemorySink
}

func newTestPool(t *testing.T, specs []decompose.TaskSpec, agents []*models.AgentDescriptor, cfg *policy.Config, opts ...Option) *poolFixture {
	t.Helper()

	reg := registry.New()
	for _, a := range agents {
		if err := reg.Register(a); err != nil {
			t.Fatalf("register agent %s: %v", a.ID, err)
		}
	}

	tr := transport.NewLocal(32)
	sink := audit.NewMemorySink()
	if cfg == nil {
		cfg = fastPolicy()
	}

	pool := NewPool(
		RequiredConfig{
			Builder:   planner.New(decompose.NewStatic(specs)),
			Registry:  reg,
			Transport: tr,
		},
		append([]Option{WithPolicy(cfg), WithAuditSink(sink)}, opts...)...,
	)
	t.Cleanup(func() {
		pool.Stop()
		tr.Close()
	})

	return &poolFixture{pool: pool, trans: tr, sink: sink}
}

// okHandler succeeds immediately.
func okHandler(ctx context.Context, agentID string, task *models.Task) (map[string]string, error) {
	return map[string]string{"done": "true"}, nil
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", msg)
}

// dispatchRecorder tracks handler invocation order per task.
type dispatchRecorder struct {
	mu    sync.Mutex
	order []string
}

func (d *dispatchRecorder) record(taskID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.order = append(d.order, taskID)
}

func (d *dispatchRecorder) snapshot() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, len(d.order))
	copy(out, d.order)
	return out
}

func (d *dispatchRecorder) indexOf(taskID string) int {
	for i, id := range d.snapshot() {
		if id == taskID {
			return i
		}
	}
	return -1
}

func TestDiamondDependencyOrder(t *testing.T) {
	specs := []decompose.TaskSpec{
		{ID: "a", Capability: "build"},
		{ID: "b", Capability: "build", DependsOn: []string{"a"}},
		{ID: "c", Capability: "build", DependsOn: []string{"a"}},
	}
	f := newTestPool(t, specs, []*models.AgentDescriptor{
		testAgent("agent-1", "build"),
		testAgent("agent-2", "build"),
		testAgent("agent-3", "build"),
	}, nil)

	rec := &dispatchRecorder{}
	f.trans.Register("build", func(ctx context.Context, agentID string, task *models.Task) (map[string]string, error) {
		rec.record(task.ID)
		return nil, nil
	})

	planID, err := f.pool.Submit(models.Goal{ID: "g1", Description: "diamond"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := f.pool.Wait(planID); err != nil {
		t.Fatalf("wait: %v", err)
	}

	snap, err := f.pool.Status(planID)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if snap.Status != models.PlanStatusSucceeded {
		t.Fatalf("expected succeeded plan, got %s", snap.Status)
	}

	a, b, c := rec.indexOf("a"), rec.indexOf("b"), rec.indexOf("c")
	if a < 0 || b < 0 || c < 0 {
		t.Fatalf("not all tasks dispatched: %v", rec.snapshot())
	}
	if a > b || a > c {
		t.Errorf("dependency dispatched after dependent: order %v", rec.snapshot())
	}
}

func TestNoDispatchBeforeDependenciesSucceed(t *testing.T) {
	specs := []decompose.TaskSpec{
		{ID: "first", Capability: "build"},
		{ID: "second", Capability: "build", DependsOn: []string{"first"}},
	}
	f := newTestPool(t, specs, []*models.AgentDescriptor{testAgent("agent-1", "build")}, nil)

	release := make(chan struct{})
	var mu sync.Mutex
	firstDone := false
	f.trans.Register("build", func(ctx context.Context, agentID string, task *models.Task) (map[string]string, error) {
		mu.Lock()
		if task.ID == "second" && !firstDone {
			mu.Unlock()
			t.Error("second dispatched before first succeeded")
			return nil, nil
		}
		mu.Unlock()
		if task.ID == "first" {
			<-release
			mu.Lock()
			firstDone = true
			mu.Unlock()
		}
		return nil, nil
	})

	planID, err := f.pool.Submit(models.Goal{ID: "g1", Description: "chain"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	// Give the scheduler time to (incorrectly) dispatch "second" early.
	time.Sleep(50 * time.Millisecond)
	snap, _ := f.pool.Status(planID)
	if snap.TaskStates["second"] != models.TaskStatePending {
		t.Errorf("second should be pending while first runs, got %s", snap.TaskStates["second"])
	}

	close(release)
	if err := f.pool.Wait(planID); err != nil {
		t.Fatalf("wait: %v", err)
	}
}

func TestCyclicGoalRejected(t *testing.T) {
	specs := []decompose.TaskSpec{
		{ID: "a", Capability: "build", DependsOn: []string{"b"}},
		{ID: "b", Capability: "build", DependsOn: []string{"a"}},
	}
	f := newTestPool(t, specs, []*models.AgentDescriptor{testAgent("agent-1", "build")}, nil)

	_, err := f.pool.Submit(models.Goal{ID: "g1", Description: "cyclic"})
	if !planner.IsReason(err, planner.CycleDetected) {
		t.Fatalf("expected CycleDetected, got %v", err)
	}
	if f.pool.Count() != 0 {
		t.Errorf("no plan should exist after a build failure, got %d", f.pool.Count())
	}
}

func TestRetryBoundAndPendingDependents(t *testing.T) {
	// Transport fails every attempt; max 2 retries gives 3 attempts total.
	// Best-effort mode so the dependent's fate is visible: it must never
	// leave pending.
	specs := []decompose.TaskSpec{
		{ID: "flaky", Capability: "build"},
		{ID: "after", Capability: "build", DependsOn: []string{"flaky"}},
	}
	f := newTestPool(t, specs, []*models.AgentDescriptor{testAgent("agent-1", "build")}, nil)

	var attempts sync.Map
	f.trans.Register("build", func(ctx context.Context, agentID string, task *models.Task) (map[string]string, error) {
		n, _ := attempts.LoadOrStore(task.ID, new(int))
		*(n.(*int))++
		return nil, fmt.Errorf("agent exploded")
	})

	planID, err := f.pool.SubmitWithMode(models.Goal{ID: "g1", Description: "flaky"}, models.BestEffort)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	err = f.pool.Wait(planID)
	var pfe *PlanFailedError
	if !errors.As(err, &pfe) {
		t.Fatalf("expected PlanFailedError, got %v", err)
	}
	if _, ok := pfe.Failed["flaky"]; !ok {
		t.Errorf("expected flaky in failed set: %v", pfe.Failed)
	}

	snap, _ := f.pool.Status(planID)
	if snap.Status != models.PlanStatusFailed {
		t.Errorf("expected failed plan, got %s", snap.Status)
	}
	if snap.TaskStates["flaky"] != models.TaskStateFailed {
		t.Errorf("expected flaky failed, got %s", snap.TaskStates["flaky"])
	}
	if snap.TaskStates["after"] != models.TaskStatePending {
		t.Errorf("dependent must never leave pending, got %s", snap.TaskStates["after"])
	}

	n, ok := attempts.Load("flaky")
	if !ok || *(n.(*int)) != 3 {
		t.Errorf("expected exactly 3 attempts, got %v", n)
	}
	if _, ok := attempts.Load("after"); ok {
		t.Error("dependent was dispatched despite failed dependency")
	}

	records, _ := f.sink.List(audit.Query{PlanID: planID, TaskID: "flaky"})
	if len(records) != 3 {
		t.Fatalf("expected 3 execution records, got %d", len(records))
	}
	for i, r := range records {
		if r.Attempt != i+1 {
			t.Errorf("record %d: expected attempt %d, got %d", i, i+1, r.Attempt)
		}
		if r.ErrorKind != models.ErrorKindTransport {
			t.Errorf("record %d: expected transport error kind, got %s", i, r.ErrorKind)
		}
	}
}

func TestFailFastStopsPendingDispatch(t *testing.T) {
	// Concurrency 1 forces "doomed" to dispatch first (sorted order);
	// its terminal failure must cancel "later" before it ever dispatches.
	cfg := fastPolicy()
	cfg.GlobalConcurrency = 1
	cfg.MaxRetries = 0

	specs := []decompose.TaskSpec{
		{ID: "a-doomed", Capability: "build"},
		{ID: "b-later", Capability: "build"},
	}
	f := newTestPool(t, specs, []*models.AgentDescriptor{testAgent("agent-1", "build")}, cfg)

	rec := &dispatchRecorder{}
	f.trans.Register("build", func(ctx context.Context, agentID string, task *models.Task) (map[string]string, error) {
		rec.record(task.ID)
		return nil, fmt.Errorf("boom")
	})

	planID, err := f.pool.Submit(models.Goal{ID: "g1", Description: "fail fast"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	err = f.pool.Wait(planID)
	if err == nil {
		t.Fatal("expected plan failure")
	}

	snap, _ := f.pool.Status(planID)
	if snap.Status != models.PlanStatusFailed {
		t.Errorf("expected failed plan, got %s", snap.Status)
	}
	if snap.TaskStates["a-doomed"] != models.TaskStateFailed {
		t.Errorf("expected a-doomed failed, got %s", snap.TaskStates["a-doomed"])
	}
	if snap.TaskStates["b-later"] != models.TaskStateCancelled {
		t.Errorf("expected b-later cancelled, got %s", snap.TaskStates["b-later"])
	}
	if got := rec.snapshot(); len(got) != 1 || got[0] != "a-doomed" {
		t.Errorf("only a-doomed should have dispatched, got %v", got)
	}
}

func TestDeterministicAgentAssignment(t *testing.T) {
	// Identical snapshots must always produce the same assignment:
	// equal load breaks ties on the lowest agent id.
	specs := []decompose.TaskSpec{{ID: "solo", Capability: "build"}}

	for i := 0; i < 5; i++ {
		f := newTestPool(t, specs, []*models.AgentDescriptor{
			testAgent("zeta", "build"),
			testAgent("alpha", "build"),
			testAgent("midway", "build"),
		}, nil)
		f.trans.Register("build", okHandler)

		planID, err := f.pool.Submit(models.Goal{ID: "g1", Description: "pick one"})
		if err != nil {
			t.Fatalf("submit: %v", err)
		}
		if err := f.pool.Wait(planID); err != nil {
			t.Fatalf("wait: %v", err)
		}

		records, _ := f.sink.List(audit.Query{PlanID: planID})
		if len(records) != 1 || records[0].AgentID != "alpha" {
			t.Fatalf("run %d: expected assignment to alpha, got %+v", i, records)
		}
		f.pool.Stop()
		f.trans.Close()
	}
}

func TestGateDeniesTwiceThenAllows(t *testing.T) {
	specs := []decompose.TaskSpec{{ID: "guarded", Capability: "deploy"}}

	var mu sync.Mutex
	checks := 0
	denyTwice := gate.Func(func(ctx context.Context, task *models.Task, agent *models.AgentDescriptor) gate.Decision {
		mu.Lock()
		defer mu.Unlock()
		checks++
		if checks <= 2 {
			return gate.Denied("change freeze")
		}
		return gate.Allowed()
	})

	f := newTestPool(t, specs,
		[]*models.AgentDescriptor{testAgent("agent-1", "deploy")},
		nil, WithGate(denyTwice))
	f.trans.Register("deploy", okHandler)

	planID, err := f.pool.Submit(models.Goal{ID: "g1", Description: "guarded"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := f.pool.Wait(planID); err != nil {
		t.Fatalf("expected success within the retry budget: %v", err)
	}

	snap, _ := f.pool.Status(planID)
	if snap.TaskStates["guarded"] != models.TaskStateSucceeded {
		t.Errorf("expected guarded succeeded, got %s", snap.TaskStates["guarded"])
	}

	records, _ := f.sink.List(audit.Query{PlanID: planID, TaskID: "guarded"})
	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(records))
	}
	for i := 0; i < 2; i++ {
		if records[i].Outcome != models.OutcomeFailure || records[i].ErrorKind != models.ErrorKindGateDenied {
			t.Errorf("record %d: expected gate_denied failure, got %s/%s", i, records[i].Outcome, records[i].ErrorKind)
		}
	}
	if records[2].Outcome != models.OutcomeSuccess {
		t.Errorf("final record should be success, got %s", records[2].Outcome)
	}
}

func TestNoCandidateRetriesThenFails(t *testing.T) {
	specs := []decompose.TaskSpec{{ID: "orphan", Capability: "paint"}}
	f := newTestPool(t, specs, []*models.AgentDescriptor{testAgent("agent-1", "build")}, nil)

	planID, err := f.pool.Submit(models.Goal{ID: "g1", Description: "no painter"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	if err := f.pool.Wait(planID); err == nil {
		t.Fatal("expected plan failure")
	}

	records, _ := f.sink.List(audit.Query{PlanID: planID, ErrorKind: models.ErrorKindNoCandidate})
	if len(records) != 3 {
		t.Errorf("expected 3 no_candidate records, got %d", len(records))
	}
}

func TestCancelWithInflightAndPending(t *testing.T) {
	specs := []decompose.TaskSpec{
		{ID: "slow-1", Capability: "build"},
		{ID: "slow-2", Capability: "build"},
		{ID: "wait-1", Capability: "build", DependsOn: []string{"slow-1"}},
		{ID: "wait-2", Capability: "build", DependsOn: []string{"slow-2"}},
		{ID: "wait-3", Capability: "build", DependsOn: []string{"slow-1", "slow-2"}},
	}
	f := newTestPool(t, specs, []*models.AgentDescriptor{
		testAgent("agent-1", "build"),
		testAgent("agent-2", "build"),
	}, nil)

	f.trans.Register("build", func(ctx context.Context, agentID string, task *models.Task) (map[string]string, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})

	planID, err := f.pool.Submit(models.Goal{ID: "g1", Description: "cancel me"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	waitFor(t, 2*time.Second, func() bool {
		snap, _ := f.pool.Status(planID)
		return snap.TaskStates["slow-1"] == models.TaskStateDispatched &&
			snap.TaskStates["slow-2"] == models.TaskStateDispatched
	}, "both slow tasks dispatched")

	if err := f.pool.Cancel(planID); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	// Pending tasks are cancelled synchronously with the request.
	snap, _ := f.pool.Status(planID)
	for _, id := range []string{"wait-1", "wait-2", "wait-3"} {
		if snap.TaskStates[id] != models.TaskStateCancelled {
			t.Errorf("expected %s cancelled immediately, got %s", id, snap.TaskStates[id])
		}
	}

	if err := f.pool.Wait(planID); err != nil {
		t.Fatalf("wait after cancel: %v", err)
	}
	snap, _ = f.pool.Status(planID)
	if snap.Status != models.PlanStatusCancelled {
		t.Errorf("expected cancelled plan, got %s", snap.Status)
	}
	for id, state := range snap.TaskStates {
		if !state.Terminal() {
			t.Errorf("task %s left non-terminal after cancel: %s", id, state)
		}
	}
}

func TestStatusResponsiveDuringCancelWithFullEventBuffer(t *testing.T) {
	// Nobody drains the event stream and the buffer holds one event, so
	// every emit past the first stalls for its full drop timeout. Status
	// reads must not queue behind that while a mass cancellation flushes
	// its cancelled-task events.
	cfg := fastPolicy()
	cfg.EventBufferSize = 1
	cfg.GlobalConcurrency = 1

	specs := []decompose.TaskSpec{
		{ID: "a-slow", Capability: "build"},
		{ID: "b-1", Capability: "build"},
		{ID: "b-2", Capability: "build"},
		{ID: "b-3", Capability: "build"},
		{ID: "b-4", Capability: "build"},
		{ID: "b-5", Capability: "build"},
	}
	f := newTestPool(t, specs, []*models.AgentDescriptor{testAgent("agent-1", "build")}, cfg)

	started := make(chan struct{})
	f.trans.Register("build", func(ctx context.Context, agentID string, task *models.Task) (map[string]string, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	})

	planID, err := f.pool.Submit(models.Goal{ID: "g1", Description: "stuffed"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	<-started

	cancelDone := make(chan struct{})
	go func() {
		defer close(cancelDone)
		if err := f.pool.Cancel(planID); err != nil {
			t.Errorf("cancel: %v", err)
		}
	}()

	// Give the cancellation time to mark the pending tasks and start
	// flushing their events against the full buffer.
	time.Sleep(20 * time.Millisecond)

	begin := time.Now()
	if _, err := f.pool.Status(planID); err != nil {
		t.Fatalf("status: %v", err)
	}
	if elapsed := time.Since(begin); elapsed > 150*time.Millisecond {
		t.Errorf("status blocked %v behind cancellation event delivery", elapsed)
	}

	<-cancelDone
	if err := f.pool.Wait(planID); err != nil {
		t.Fatalf("wait after cancel: %v", err)
	}
	snap, _ := f.pool.Status(planID)
	if snap.Status != models.PlanStatusCancelled {
		t.Errorf("expected cancelled plan, got %s", snap.Status)
	}
}

func TestPauseStopsNewDispatchOnly(t *testing.T) {
	cfg := fastPolicy()
	cfg.GlobalConcurrency = 1

	specs := []decompose.TaskSpec{
		{ID: "a-first", Capability: "build"},
		{ID: "b-second", Capability: "build"},
	}
	f := newTestPool(t, specs, []*models.AgentDescriptor{testAgent("agent-1", "build")}, cfg)

	release := make(chan struct{})
	rec := &dispatchRecorder{}
	f.trans.Register("build", func(ctx context.Context, agentID string, task *models.Task) (map[string]string, error) {
		rec.record(task.ID)
		if task.ID == "a-first" {
			<-release
		}
		return nil, nil
	})

	planID, err := f.pool.Submit(models.Goal{ID: "g1", Description: "pausable"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	waitFor(t, 2*time.Second, func() bool {
		snap, _ := f.pool.Status(planID)
		return snap.TaskStates["a-first"] == models.TaskStateDispatched
	}, "first task dispatched")

	if err := f.pool.Pause(planID); err != nil {
		t.Fatalf("pause: %v", err)
	}
	close(release)

	// The in-flight task finishes, but b-second must not dispatch while
	// paused.
	waitFor(t, 2*time.Second, func() bool {
		snap, _ := f.pool.Status(planID)
		return snap.TaskStates["a-first"] == models.TaskStateSucceeded
	}, "first task to finish while paused")
	time.Sleep(50 * time.Millisecond)

	snap, _ := f.pool.Status(planID)
	if !snap.Paused {
		t.Error("snapshot should report paused")
	}
	if snap.Status != models.PlanStatusRunning {
		t.Errorf("paused plan should report running, got %s", snap.Status)
	}
	if snap.TaskStates["b-second"] != models.TaskStatePending {
		t.Errorf("no new dispatch while paused, got %s", snap.TaskStates["b-second"])
	}

	if err := f.pool.Resume(planID); err != nil {
		t.Fatalf("resume: %v", err)
	}
	if err := f.pool.Wait(planID); err != nil {
		t.Fatalf("wait: %v", err)
	}
	if got := rec.snapshot(); len(got) != 2 {
		t.Errorf("expected both tasks dispatched after resume, got %v", got)
	}
}

func TestTimeoutRecordedAsTimeoutKind(t *testing.T) {
	cfg := fastPolicy()
	cfg.MaxRetries = 0
	cfg.TaskTimeout = 30 * time.Millisecond

	specs := []decompose.TaskSpec{{ID: "sleepy", Capability: "build"}}
	f := newTestPool(t, specs, []*models.AgentDescriptor{testAgent("agent-1", "build")}, cfg)

	f.trans.Register("build", func(ctx context.Context, agentID string, task *models.Task) (map[string]string, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})

	planID, err := f.pool.Submit(models.Goal{ID: "g1", Description: "sleepy"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := f.pool.Wait(planID); err == nil {
		t.Fatal("expected plan failure from timeout")
	}

	records, _ := f.sink.List(audit.Query{PlanID: planID})
	if len(records) != 1 || records[0].ErrorKind != models.ErrorKindTimeout {
		t.Errorf("expected one timeout record, got %+v", records)
	}
}

type fakeStateWriter struct {
	mu        sync.Mutex
	planSaves int
	taskSaves int
}

func (w *fakeStateWriter) SavePlan(plan *models.Plan) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.planSaves++
	return nil
}

func (w *fakeStateWriter) SaveTask(planID string, task *models.Task) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.taskSaves++
	return nil
}

func TestPlanAndTaskTransitionsPersisted(t *testing.T) {
	specs := []decompose.TaskSpec{{ID: "only", Capability: "build"}}
	writer := &fakeStateWriter{}
	f := newTestPool(t, specs,
		[]*models.AgentDescriptor{testAgent("agent-1", "build")},
		nil, WithStateWriter(writer))
	f.trans.Register("build", okHandler)

	planID, err := f.pool.Submit(models.Goal{ID: "g1", Description: "persist"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := f.pool.Wait(planID); err != nil {
		t.Fatalf("wait: %v", err)
	}

	writer.mu.Lock()
	defer writer.mu.Unlock()
	// Submission, running, and terminal at minimum.
	if writer.planSaves < 3 {
		t.Errorf("expected at least 3 plan saves, got %d", writer.planSaves)
	}
	// Dispatch and success at minimum.
	if writer.taskSaves < 2 {
		t.Errorf("expected at least 2 task saves, got %d", writer.taskSaves)
	}
}

func TestEventsCarryPlanLifecycle(t *testing.T) {
	specs := []decompose.TaskSpec{{ID: "only", Capability: "build"}}
	f := newTestPool(t, specs, []*models.AgentDescriptor{testAgent("agent-1", "build")}, nil)
	f.trans.Register("build", okHandler)

	planID, err := f.pool.Submit(models.Goal{ID: "g1", Description: "events"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := f.pool.Wait(planID); err != nil {
		t.Fatalf("wait: %v", err)
	}

	seen := make(map[EventType]bool)
	deadline := time.After(time.Second)
	for !seen[EventPlanCompleted] {
		select {
		case e := <-f.pool.Events():
			if e.PlanID == planID {
				seen[e.Type] = true
			}
		case <-deadline:
			t.Fatalf("event stream incomplete: %v", seen)
		}
	}
	for _, want := range []EventType{EventPlanStarted, EventTaskDispatched, EventTaskSucceeded, EventPlanCompleted} {
		if !seen[want] {
			t.Errorf("missing event %s", want)
		}
	}
}
