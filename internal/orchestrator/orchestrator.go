package orchestrator

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ShayCichocki/foreman/internal/audit"
	"github.com/ShayCichocki/foreman/internal/gate"
	"github.com/ShayCichocki/foreman/internal/graph"
	"github.com/ShayCichocki/foreman/internal/metrics"
	"github.com/ShayCichocki/foreman/internal/orchestrator/policy"
	"github.com/ShayCichocki/foreman/internal/registry"
	"github.com/ShayCichocki/foreman/internal/transport"
	"github.com/ShayCichocki/foreman/pkg/models"
)

// StateWriter persists plans and task transitions. The pool accepts any
// implementation; a nil writer disables persistence.
type StateWriter interface {
	SavePlan(plan *models.Plan) error
	SaveTask(planID string, task *models.Task) error
}

// PlanFailedError is returned from Wait when a plan terminates failed.
type PlanFailedError struct {
	// PlanID is the failed plan.
	PlanID string
	// Failed maps task IDs to the error that made them terminal.
	Failed map[string]error
}

// Error implements error.
func (e *PlanFailedError) Error() string {
	ids := make([]string, 0, len(e.Failed))
	for id := range e.Failed {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return fmt.Sprintf("plan %s failed: tasks [%s]", e.PlanID, strings.Join(ids, ", "))
}

// PlanSnapshot is a point-in-time view of one plan's execution.
type PlanSnapshot struct {
	// PlanID identifies the plan.
	PlanID string
	// GoalID is the goal the plan was built from.
	GoalID string
	// Status is the plan's current status.
	Status models.PlanStatus
	// Paused reports whether dispatch is currently paused.
	Paused bool
	// TaskStates maps task IDs to their current state.
	TaskStates map[string]models.TaskState
	// Failed maps terminally failed task IDs to their error messages.
	Failed map[string]string
}

// inflightTask tracks one dispatched attempt awaiting its completion.
type inflightTask struct {
	task    *models.Task
	handle  transport.Handle
	agentID string
	record  *models.ExecutionRecord
}

// Orchestrator executes a single plan. All state transitions happen under
// one mutex; dispatch handlers run concurrently on the far side of the
// transport and report back through the completion channel.
type Orchestrator struct {
	plan  *models.Plan
	graph *graph.DependencyGraph
	cfg   *policy.Config

	registry *registry.Registry
	gate     gate.Gate
	trans    transport.Transport
	sink     audit.Sink
	recorder *metrics.Recorder
	store    StateWriter
	emitter  *EventEmitter
	logger   *DebugLogger
	slots    *slotLimiter
	router   *completionRouter

	pauseCtrl *PauseController

	mu          sync.Mutex
	inflight    map[string]*inflightTask
	retryTimers map[string]*time.Timer
	failed      map[string]error
	// failing is set when fail-fast has triggered; cancelled when an
	// external cancellation was requested. Both stop new dispatch.
	failing   bool
	cancelled bool

	// pendingEvents holds events produced under o.mu until the next
	// flushEvents call, so a slow subscriber never blocks the mutex.
	pendingEvents []Event

	completionCh chan transport.Completion
	wakeCh       chan struct{}
	done         chan struct{}
	runErr       error
}

// newOrchestrator wires an execution engine for one built plan. The graph
// is rebuilt from the plan's tasks; construction already guaranteed
// acyclicity, so Build cannot fail here.
func newOrchestrator(plan *models.Plan, deps poolDeps) (*Orchestrator, error) {
	g := graph.New()
	g.SetDebugLog(debugLog)
	if err := g.Build(plan.Tasks); err != nil {
		return nil, fmt.Errorf("rebuild plan graph: %w", err)
	}

	return &Orchestrator{
		plan:      plan,
		graph:     g,
		cfg:       deps.cfg,
		registry:  deps.registry,
		gate:      deps.gate,
		trans:     deps.transport,
		sink:      deps.sink,
		recorder:  deps.recorder,
		store:     deps.store,
		emitter:   deps.emitter,
		logger:    deps.logger,
		slots:     deps.slots,
		router:    deps.router,
		pauseCtrl: NewPauseController(),

		inflight:    make(map[string]*inflightTask),
		retryTimers: make(map[string]*time.Timer),
		failed:      make(map[string]error),

		// Buffered past the global bound so the router never blocks.
		completionCh: make(chan transport.Completion, deps.cfg.GlobalConcurrency*2+8),
		wakeCh:       make(chan struct{}, 1),
		done:         make(chan struct{}),
	}, nil
}

// Snapshot returns the plan's current status and per-task states.
func (o *Orchestrator) Snapshot() PlanSnapshot {
	o.mu.Lock()
	defer o.mu.Unlock()

	snap := PlanSnapshot{
		PlanID:     o.plan.ID,
		GoalID:     o.plan.Goal.ID,
		Status:     o.plan.Status,
		Paused:     o.pauseCtrl.IsPaused(),
		TaskStates: make(map[string]models.TaskState, len(o.plan.Tasks)),
		Failed:     make(map[string]string, len(o.failed)),
	}
	for _, t := range o.plan.Tasks {
		snap.TaskStates[t.ID] = t.State
	}
	for id, err := range o.failed {
		snap.Failed[id] = err.Error()
	}
	return snap
}

// Cancel requests external cancellation per the plan cancellation
// contract: pending tasks cancel immediately, backoff timers die, and
// in-flight dispatches are best-effort cancelled. The plan reaches
// terminal cancelled once in-flight tasks report back.
func (o *Orchestrator) Cancel() {
	o.mu.Lock()
	if !o.cancelled && !o.plan.Status.Terminal() {
		o.cancelled = true
		o.haltLocked("plan cancelled")
	}
	o.mu.Unlock()
	o.flushEvents()
	o.wake()
}

// Pause stops new dispatch; in-flight tasks finish normally.
func (o *Orchestrator) Pause() {
	o.pauseCtrl.Pause()
	o.emit(Event{Type: EventPlanPaused, PlanID: o.plan.ID, Timestamp: time.Now()})
}

// Resume re-enables dispatch after a pause.
func (o *Orchestrator) Resume() {
	o.pauseCtrl.Resume()
	o.emit(Event{Type: EventPlanResumed, PlanID: o.plan.ID, Timestamp: time.Now()})
	o.wake()
}

// Done is closed when the plan reaches a terminal status.
func (o *Orchestrator) Done() <-chan struct{} {
	return o.done
}

// Err returns the terminal error, valid after Done is closed.
func (o *Orchestrator) Err() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.runErr
}

// haltLocked stops all forward progress: non-terminal undispatched tasks
// become cancelled, backoff timers are stopped so no cancelled task is
// ever resurrected, and in-flight handles get a best-effort cancel.
// Caller holds o.mu.
func (o *Orchestrator) haltLocked(reason string) {
	for id, timer := range o.retryTimers {
		timer.Stop()
		delete(o.retryTimers, id)
	}

	now := time.Now()
	for _, t := range o.plan.Tasks {
		if t.State.Terminal() || t.State == models.TaskStateDispatched {
			continue
		}
		t.State = models.TaskStateCancelled
		completed := now
		t.CompletedAt = &completed
		o.persistTaskLocked(t)
		o.recorder.TaskCompleted(string(models.TaskStateCancelled))
		o.queueEventLocked(Event{
			Type:      EventTaskCancelled,
			PlanID:    o.plan.ID,
			TaskID:    t.ID,
			Message:   reason,
			Timestamp: now,
		})
	}

	for _, inf := range o.inflight {
		o.trans.Cancel(inf.handle)
	}
}

// wake nudges the run loop without blocking.
func (o *Orchestrator) wake() {
	select {
	case o.wakeCh <- struct{}{}:
	default:
	}
}

// emit forwards an event to the pool's subscribers. Emit can block on a
// full subscriber buffer, so it must never run under o.mu; state
// transitions made while holding the mutex go through queueEventLocked
// instead.
func (o *Orchestrator) emit(e Event) {
	if o.emitter != nil {
		o.emitter.Emit(e)
	}
}

// queueEventLocked defers an event until the next flushEvents. Caller
// holds o.mu.
func (o *Orchestrator) queueEventLocked(e Event) {
	o.pendingEvents = append(o.pendingEvents, e)
}

// flushEvents emits all queued events with the mutex released.
func (o *Orchestrator) flushEvents() {
	o.mu.Lock()
	events := o.pendingEvents
	o.pendingEvents = nil
	o.mu.Unlock()

	for _, e := range events {
		o.emit(e)
	}
}

// persistPlanLocked saves the plan, logging rather than failing on error:
// persistence trouble must not wedge a running plan. Caller holds o.mu.
func (o *Orchestrator) persistPlanLocked() {
	if o.store == nil {
		return
	}
	if err := o.store.SavePlan(o.plan); err != nil {
		o.logger.Log("[orchestrator] persist plan %s: %v", o.plan.ID, err)
	}
}

// persistTaskLocked saves one task transition. Caller holds o.mu.
func (o *Orchestrator) persistTaskLocked(t *models.Task) {
	if o.store == nil {
		return
	}
	if err := o.store.SaveTask(o.plan.ID, t); err != nil {
		o.logger.Log("[orchestrator] persist task %s/%s: %v", o.plan.ID, t.ID, err)
	}
}

// appendRecord finalizes and appends one execution record.
func (o *Orchestrator) appendRecord(r *models.ExecutionRecord) {
	if o.sink == nil {
		return
	}
	if err := o.sink.Append(r); err != nil {
		o.logger.Log("[orchestrator] append record %s: %v", r.ID, err)
	}
}
