package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/ShayCichocki/foreman/internal/audit"
	"github.com/ShayCichocki/foreman/internal/gate"
	"github.com/ShayCichocki/foreman/internal/metrics"
	"github.com/ShayCichocki/foreman/internal/orchestrator/policy"
	"github.com/ShayCichocki/foreman/internal/planner"
	"github.com/ShayCichocki/foreman/internal/registry"
	"github.com/ShayCichocki/foreman/internal/transport"
	"github.com/ShayCichocki/foreman/pkg/models"
)

// ErrUnknownPlan indicates the pool holds no plan with the given ID.
var ErrUnknownPlan = errors.New("unknown plan")

// RequiredConfig carries the collaborators every pool needs.
type RequiredConfig struct {
	// Builder turns goals into plans.
	Builder *planner.Builder
	// Registry holds the agents tasks can be matched against.
	Registry *registry.Registry
	// Transport carries dispatched tasks to agents.
	Transport transport.Transport
}

// Pool runs plans. Each submitted goal gets its own orchestrator; the
// pool shares the registry, transport, global concurrency bound, and
// event stream across all of them.
type Pool struct {
	cfg      *policy.Config
	builder  *planner.Builder
	registry *registry.Registry
	trans    transport.Transport
	gate     gate.Gate
	sink     audit.Sink
	recorder *metrics.Recorder
	store    StateWriter
	logger   *DebugLogger

	emitter *EventEmitter
	slots   *slotLimiter
	router  *completionRouter

	// orchestrators tracks plans by ID, terminal ones included so Status
	// keeps answering after completion.
	orchestrators map[string]*Orchestrator
	mu            sync.RWMutex

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewPool creates a Pool. Optional collaborators default to: AllowAll
// gate, no audit sink, no metrics, no persistence, no debug logging.
func NewPool(req RequiredConfig, opts ...Option) *Pool {
	ctx, cancel := context.WithCancel(context.Background())

	p := &Pool{
		cfg:           policy.Default(),
		builder:       req.Builder,
		registry:      req.Registry,
		trans:         req.Transport,
		gate:          gate.AllowAll{},
		logger:        NopLogger(),
		router:        newCompletionRouter(),
		orchestrators: make(map[string]*Orchestrator),
		ctx:           ctx,
		cancel:        cancel,
	}

	for _, opt := range opts {
		opt(p)
	}

	p.cfg.Validate()
	p.emitter = NewEventEmitter(p.cfg.EventBufferSize)
	p.slots = newSlotLimiter(p.cfg.GlobalConcurrency)
	setPackageLogger(p.logger)

	// Route transport completions to their owning plan until the
	// transport closes.
	go p.router.route(p.trans.Completions())

	return p
}

// Submit builds a plan for the goal and starts executing it under the
// pool's default failure mode. A build failure aborts before any
// dispatch; no plan is created.
func (p *Pool) Submit(goal models.Goal) (string, error) {
	return p.SubmitWithMode(goal, p.cfg.FailureMode)
}

// SubmitWithMode is Submit with an explicit per-plan failure mode.
func (p *Pool) SubmitWithMode(goal models.Goal, mode models.FailureMode) (string, error) {
	if p.ctx.Err() != nil {
		return "", fmt.Errorf("pool is stopped")
	}

	plan, err := p.builder.Build(goal)
	if err != nil {
		return "", err
	}
	if mode.Valid() {
		plan.FailureMode = mode
	}

	if p.store != nil {
		if err := p.store.SavePlan(plan); err != nil {
			return "", fmt.Errorf("persist plan %s: %w", plan.ID, err)
		}
	}

	orch, err := newOrchestrator(plan, p.deps())
	if err != nil {
		return "", err
	}

	p.mu.Lock()
	p.orchestrators[plan.ID] = orch
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		if err := orch.Run(p.ctx); err != nil {
			log.Printf("[pool] plan %s failed: %v", plan.ID, err)
		}
	}()

	return plan.ID, nil
}

// deps bundles the shared collaborators handed to each orchestrator.
func (p *Pool) deps() poolDeps {
	return poolDeps{
		cfg:       p.cfg,
		registry:  p.registry,
		gate:      p.gate,
		transport: p.trans,
		sink:      p.sink,
		recorder:  p.recorder,
		store:     p.store,
		emitter:   p.emitter,
		logger:    p.logger,
		slots:     p.slots,
		router:    p.router,
	}
}

// poolDeps is the dependency set shared by all orchestrators in a pool.
type poolDeps struct {
	cfg       *policy.Config
	registry  *registry.Registry
	gate      gate.Gate
	transport transport.Transport
	sink      audit.Sink
	recorder  *metrics.Recorder
	store     StateWriter
	emitter   *EventEmitter
	logger    *DebugLogger
	slots     *slotLimiter
	router    *completionRouter
}

// get looks up a plan's orchestrator.
func (p *Pool) get(planID string) (*Orchestrator, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	orch, ok := p.orchestrators[planID]
	if !ok {
		return nil, fmt.Errorf("plan %s: %w", planID, ErrUnknownPlan)
	}
	return orch, nil
}

// Status returns the plan's current snapshot.
func (p *Pool) Status(planID string) (PlanSnapshot, error) {
	orch, err := p.get(planID)
	if err != nil {
		return PlanSnapshot{}, err
	}
	return orch.Snapshot(), nil
}

// Cancel cancels a running plan.
func (p *Pool) Cancel(planID string) error {
	orch, err := p.get(planID)
	if err != nil {
		return err
	}
	orch.Cancel()
	return nil
}

// Pause stops new dispatch for a plan; in-flight tasks finish normally.
func (p *Pool) Pause(planID string) error {
	orch, err := p.get(planID)
	if err != nil {
		return err
	}
	orch.Pause()
	return nil
}

// Resume re-enables dispatch for a paused plan.
func (p *Pool) Resume(planID string) error {
	orch, err := p.get(planID)
	if err != nil {
		return err
	}
	orch.Resume()
	return nil
}

// Wait blocks until the plan reaches a terminal status and returns its
// terminal error: nil for succeeded and cancelled plans, a
// *PlanFailedError for failed ones.
func (p *Pool) Wait(planID string) error {
	orch, err := p.get(planID)
	if err != nil {
		return err
	}
	<-orch.Done()
	return orch.Err()
}

// Events returns the pool-wide event stream.
func (p *Pool) Events() <-chan Event {
	return p.emitter.Events()
}

// Count returns the number of plans still executing.
func (p *Pool) Count() int {
	p.mu.RLock()
	defer p.mu.RUnlock()

	n := 0
	for _, orch := range p.orchestrators {
		select {
		case <-orch.Done():
		default:
			n++
		}
	}
	return n
}

// DroppedEventCount returns the number of events dropped because the
// event channel was full.
func (p *Pool) DroppedEventCount() uint64 {
	return p.emitter.DroppedCount()
}

// Stop cancels all running plans, waits for them to settle, and closes
// the event stream. Safe to call more than once.
func (p *Pool) Stop() error {
	p.stopOnce.Do(func() {
		p.cancel()

		p.mu.RLock()
		for _, orch := range p.orchestrators {
			orch.Cancel()
		}
		p.mu.RUnlock()

		p.wg.Wait()
		p.emitter.Close()
	})
	return nil
}
