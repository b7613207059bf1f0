package orchestrator

import (
	"log"
	"sync"
)

// PauseController manages pause/stop state for one plan's execution.
// A paused plan dispatches no new tasks; in-flight tasks finish normally,
// so the run loop keeps draining completions and simply skips dispatch
// while paused.
type PauseController struct {
	// paused indicates whether dispatch is paused.
	paused bool
	// stopped indicates whether execution has been stopped.
	stopped bool
	// mu protects all fields.
	mu sync.RWMutex
}

// NewPauseController creates a new PauseController.
func NewPauseController() *PauseController {
	return &PauseController{}
}

// Pause pauses dispatch. New tasks will not be dispatched.
func (p *PauseController) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.paused {
		p.paused = true
		log.Printf("[orchestrator] paused - no new tasks will be dispatched")
	}
}

// Resume resumes dispatch after a pause.
func (p *PauseController) Resume() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.paused {
		p.paused = false
		log.Printf("[orchestrator] resumed - task dispatch enabled")
	}
}

// Stop signals a stop.
func (p *PauseController) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopped = true
}

// IsPaused returns whether dispatch is currently paused.
func (p *PauseController) IsPaused() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.paused
}

// IsStopped returns whether the controller has been stopped.
func (p *PauseController) IsStopped() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.stopped
}
