// Package config handles configuration loading and management for foreman.
// It supports XDG config paths, project-level overrides, and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/ShayCichocki/foreman/internal/gate"
)

// Config holds all configuration for foreman.
type Config struct {
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Agents    AgentsConfig    `mapstructure:"agents"`
	State     StateConfig     `mapstructure:"state"`
	Audit     AuditConfig     `mapstructure:"audit"`
	Secrets   SecretsConfig   `mapstructure:"secrets"`
	Gate      GateConfig      `mapstructure:"gate"`
	Decompose DecomposeConfig `mapstructure:"decompose"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Debug     DebugConfig     `mapstructure:"debug"`
}

// SchedulerConfig holds the execution tunables handed to the orchestrator.
type SchedulerConfig struct {
	GlobalConcurrency int           `mapstructure:"global_concurrency"`
	MaxRetries        int           `mapstructure:"max_retries"`
	BackoffBase       time.Duration `mapstructure:"backoff_base"`
	BackoffCap        time.Duration `mapstructure:"backoff_cap"`
	TaskTimeout       time.Duration `mapstructure:"task_timeout"`
	PollInterval      time.Duration `mapstructure:"poll_interval"`
	EventBufferSize   int           `mapstructure:"event_buffer_size"`
	FailureMode       string        `mapstructure:"failure_mode"`
}

// AgentsConfig holds agent registry settings.
type AgentsConfig struct {
	// File is the agents.yaml registry file.
	File string `mapstructure:"file"`
	// Watch enables hot-reload of the registry file.
	Watch bool `mapstructure:"watch"`
	// MaxAgents caps registrations; zero means unlimited.
	MaxAgents int `mapstructure:"max_agents"`
}

// StateConfig holds plan persistence settings.
type StateConfig struct {
	// Path is the state database file; empty selects the global database.
	Path string `mapstructure:"path"`
	// RetentionDays is the age after which terminal plans are purged at
	// startup. Zero disables purging.
	RetentionDays int `mapstructure:"retention_days"`
}

// AuditConfig holds execution record persistence settings.
type AuditConfig struct {
	// Path is the audit database file; empty keeps records in memory only.
	Path string `mapstructure:"path"`
}

// SecretsConfig holds encrypted secret store settings.
type SecretsConfig struct {
	// Path is the encrypted store file.
	Path string `mapstructure:"path"`
	// KeyFile is the fallback key file when FOREMAN_SECRETS_KEY is unset.
	KeyFile string `mapstructure:"key_file"`
}

// GateConfig holds governance gate settings.
type GateConfig struct {
	// Rules are evaluated in order; first match wins, default allow.
	Rules []gate.Rule `mapstructure:"rules"`
}

// DecomposeConfig holds decomposition strategy settings.
type DecomposeConfig struct {
	// Ruleset is the YAML ruleset file mapping goal kinds to task templates.
	Ruleset string `mapstructure:"ruleset"`
}

// MetricsConfig holds the metrics endpoint settings.
type MetricsConfig struct {
	// Addr is the listen address for the prometheus endpoint; empty
	// disables it.
	Addr string `mapstructure:"addr"`
}

// DebugConfig holds debug logging settings.
type DebugConfig struct {
	// LogDir is the directory for orchestrator debug logs; empty disables
	// file logging.
	LogDir string `mapstructure:"log_dir"`
}

// Load loads configuration from XDG paths, project overrides, and environment variables.
// Precedence (highest to lowest):
// 1. Environment variables (FOREMAN_*)
// 2. Project config (.foreman.yaml in current directory or parent)
// 3. User config (~/.config/foreman/config.yaml)
// 4. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Load user config from XDG path
	userConfigDir := getUserConfigDir()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(userConfigDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	// Load project config if present
	projectConfig := findProjectConfig()
	if projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err == nil {
			// Merge project config (takes precedence)
			if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
				return nil, fmt.Errorf("merging project config: %w", err)
			}
		}
	}

	// Environment variable overrides: FOREMAN_SCHEDULER_MAX_RETRIES etc.
	v.SetEnvPrefix("FOREMAN")
	v.SetEnvKeyReplacer(envKeyReplacer)
	v.AutomaticEnv()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	// Expand ${VAR} references in path settings
	cfg.Agents.File = os.ExpandEnv(cfg.Agents.File)
	cfg.State.Path = os.ExpandEnv(cfg.State.Path)
	cfg.Audit.Path = os.ExpandEnv(cfg.Audit.Path)
	cfg.Secrets.Path = os.ExpandEnv(cfg.Secrets.Path)
	cfg.Secrets.KeyFile = os.ExpandEnv(cfg.Secrets.KeyFile)

	return cfg, nil
}

// LoadFromPath loads configuration from a specific path (for testing).
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return cfg, nil
}

// Save writes the current configuration to the user config file.
func Save(cfg *Config) error {
	userConfigDir := getUserConfigDir()
	if err := os.MkdirAll(userConfigDir, 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	configPath := filepath.Join(userConfigDir, "config.yaml")

	v := viper.New()
	v.SetConfigFile(configPath)

	v.Set("scheduler.global_concurrency", cfg.Scheduler.GlobalConcurrency)
	v.Set("scheduler.max_retries", cfg.Scheduler.MaxRetries)
	v.Set("scheduler.backoff_base", cfg.Scheduler.BackoffBase.String())
	v.Set("scheduler.backoff_cap", cfg.Scheduler.BackoffCap.String())
	v.Set("scheduler.task_timeout", cfg.Scheduler.TaskTimeout.String())
	v.Set("scheduler.poll_interval", cfg.Scheduler.PollInterval.String())
	v.Set("scheduler.event_buffer_size", cfg.Scheduler.EventBufferSize)
	v.Set("scheduler.failure_mode", cfg.Scheduler.FailureMode)
	v.Set("agents.file", cfg.Agents.File)
	v.Set("agents.watch", cfg.Agents.Watch)
	v.Set("agents.max_agents", cfg.Agents.MaxAgents)
	v.Set("state.path", cfg.State.Path)
	v.Set("state.retention_days", cfg.State.RetentionDays)
	v.Set("audit.path", cfg.Audit.Path)
	v.Set("secrets.path", cfg.Secrets.Path)
	v.Set("secrets.key_file", cfg.Secrets.KeyFile)
	v.Set("decompose.ruleset", cfg.Decompose.Ruleset)
	v.Set("metrics.addr", cfg.Metrics.Addr)
	v.Set("debug.log_dir", cfg.Debug.LogDir)

	return v.WriteConfig()
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// GetProjectConfigPath returns the path to the project config file if it exists.
func GetProjectConfigPath() string {
	return findProjectConfig()
}

// setDefaults configures default values.
func setDefaults(v *viper.Viper) {
	// Scheduler defaults mirror policy.Default
	v.SetDefault("scheduler.global_concurrency", 4)
	v.SetDefault("scheduler.max_retries", 2)
	v.SetDefault("scheduler.backoff_base", "500ms")
	v.SetDefault("scheduler.backoff_cap", "30s")
	v.SetDefault("scheduler.task_timeout", "5m")
	v.SetDefault("scheduler.poll_interval", "100ms")
	v.SetDefault("scheduler.event_buffer_size", 100)
	v.SetDefault("scheduler.failure_mode", "fail_fast")

	// Registry defaults
	v.SetDefault("agents.file", "agents.yaml")
	v.SetDefault("agents.watch", false)
	v.SetDefault("agents.max_agents", 0)

	// Persistence defaults: empty state path selects the global database
	v.SetDefault("state.path", "")
	v.SetDefault("state.retention_days", 30)
	v.SetDefault("audit.path", "")

	// Secrets defaults
	v.SetDefault("secrets.path", "")
	v.SetDefault("secrets.key_file", "")

	// Decomposition defaults
	v.SetDefault("decompose.ruleset", "")

	// Metrics defaults
	v.SetDefault("metrics.addr", "")

	// Debug defaults
	v.SetDefault("debug.log_dir", "")
}

// getUserConfigDir returns the XDG config directory for foreman.
func getUserConfigDir() string {
	// Check XDG_CONFIG_HOME first
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "foreman")
	}

	// Fall back to ~/.config/foreman
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "foreman")
	}
	return filepath.Join(home, ".config", "foreman")
}

// findProjectConfig searches for .foreman.yaml in the current directory and parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(cwd, ".foreman.yaml")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(cwd)
		if parent == cwd {
			break
		}
		cwd = parent
	}

	return ""
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Scheduler: SchedulerConfig{
			GlobalConcurrency: 4,
			MaxRetries:        2,
			BackoffBase:       500 * time.Millisecond,
			BackoffCap:        30 * time.Second,
			TaskTimeout:       5 * time.Minute,
			PollInterval:      100 * time.Millisecond,
			EventBufferSize:   100,
			FailureMode:       "fail_fast",
		},
		Agents: AgentsConfig{
			File: "agents.yaml",
		},
		State: StateConfig{
			RetentionDays: 30,
		},
	}
}
