// Package policy defines configurable policy parameters for orchestrator
// behavior. This centralizes magic numbers and threshold values, enabling
// configuration and testing.
package policy

import (
	"time"

	"github.com/ShayCichocki/foreman/pkg/models"
)

// Config contains all configurable policy parameters for the orchestrator.
// These values control scheduling, retries, and deadlines.
type Config struct {
	// GlobalConcurrency caps dispatched tasks across all plans.
	GlobalConcurrency int `mapstructure:"global_concurrency"`

	// MaxRetries is the number of retries after the first failed attempt.
	MaxRetries int `mapstructure:"max_retries"`

	// BackoffBase is the delay before the first retry; doubles per retry.
	BackoffBase time.Duration `mapstructure:"backoff_base"`

	// BackoffCap bounds the exponential retry delay.
	BackoffCap time.Duration `mapstructure:"backoff_cap"`

	// TaskTimeout is the per-dispatch deadline handed to the transport.
	// Zero means no deadline.
	TaskTimeout time.Duration `mapstructure:"task_timeout"`

	// PollInterval is the fallback delay between schedule checks when no
	// completion arrives.
	PollInterval time.Duration `mapstructure:"poll_interval"`

	// EventBufferSize is the buffer of the orchestrator event channel.
	EventBufferSize int `mapstructure:"event_buffer_size"`

	// FailureMode is the default failure mode for submitted plans.
	FailureMode models.FailureMode `mapstructure:"failure_mode"`
}

// Default returns the default policy configuration.
func Default() *Config {
	return &Config{
		GlobalConcurrency: 4,
		MaxRetries:        2,
		BackoffBase:       500 * time.Millisecond,
		BackoffCap:        30 * time.Second,
		TaskTimeout:       5 * time.Minute,
		PollInterval:      100 * time.Millisecond,
		EventBufferSize:   100,
		FailureMode:       models.FailFast,
	}
}

// Validate checks that policy values are within acceptable ranges,
// clamping out-of-range values back to defaults.
func (c *Config) Validate() error {
	if c.GlobalConcurrency < 1 {
		c.GlobalConcurrency = 4
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 2
	}
	if c.BackoffBase < 10*time.Millisecond {
		c.BackoffBase = 500 * time.Millisecond
	}
	if c.BackoffCap < c.BackoffBase {
		c.BackoffCap = 30 * time.Second
	}
	if c.TaskTimeout < 0 {
		c.TaskTimeout = 5 * time.Minute
	}
	if c.PollInterval < 10*time.Millisecond {
		c.PollInterval = 100 * time.Millisecond
	}
	if c.EventBufferSize < 1 {
		c.EventBufferSize = 100
	}
	if c.FailureMode != models.FailFast && c.FailureMode != models.BestEffort {
		c.FailureMode = models.FailFast
	}
	return nil
}

// Backoff returns the delay before retry number retry (1-based),
// doubling from BackoffBase and capped at BackoffCap.
func (c *Config) Backoff(retry int) time.Duration {
	if retry < 1 {
		retry = 1
	}
	d := c.BackoffBase
	for i := 1; i < retry; i++ {
		d *= 2
		if d >= c.BackoffCap {
			return c.BackoffCap
		}
	}
	if d > c.BackoffCap {
		return c.BackoffCap
	}
	return d
}
