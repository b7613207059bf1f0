package orchestrator

import (
	"github.com/ShayCichocki/foreman/internal/audit"
	"github.com/ShayCichocki/foreman/internal/gate"
	"github.com/ShayCichocki/foreman/internal/metrics"
	"github.com/ShayCichocki/foreman/internal/orchestrator/policy"
)

// Option configures optional pool collaborators.
type Option func(*Pool)

// WithPolicy overrides the default scheduling policy. The config is
// validated (and clamped) before use.
func WithPolicy(cfg *policy.Config) Option {
	return func(p *Pool) {
		if cfg != nil {
			p.cfg = cfg
		}
	}
}

// WithGate installs a governance gate. Defaults to AllowAll.
func WithGate(g gate.Gate) Option {
	return func(p *Pool) {
		if g != nil {
			p.gate = g
		}
	}
}

// WithAuditSink installs the sink receiving execution records.
func WithAuditSink(s audit.Sink) Option {
	return func(p *Pool) {
		p.sink = s
	}
}

// WithMetrics installs a metrics recorder. A nil recorder is valid and
// records nothing.
func WithMetrics(r *metrics.Recorder) Option {
	return func(p *Pool) {
		p.recorder = r
	}
}

// WithStateWriter installs plan/task persistence.
func WithStateWriter(w StateWriter) Option {
	return func(p *Pool) {
		p.store = w
	}
}

// WithDebugLogger installs a debug logger shared by pool components.
func WithDebugLogger(l *DebugLogger) Option {
	return func(p *Pool) {
		if l != nil {
			p.logger = l
		}
	}
}
