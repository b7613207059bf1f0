package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadFromPath(t *testing.T) {
	path := writeConfigFile(t, `
scheduler:
  global_concurrency: 8
  max_retries: 5
  backoff_base: 250ms
  task_timeout: 1m
  failure_mode: best_effort
agents:
  file: team.yaml
  watch: true
state:
  path: /tmp/foreman-state.db
  retention_days: 7
gate:
  rules:
    - name: no-deploys
      capability: deploy
      action: deny
      reason: deploys are frozen
metrics:
  addr: ":9090"
`)

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Scheduler.GlobalConcurrency != 8 {
		t.Errorf("global_concurrency = %d, want 8", cfg.Scheduler.GlobalConcurrency)
	}
	if cfg.Scheduler.MaxRetries != 5 {
		t.Errorf("max_retries = %d, want 5", cfg.Scheduler.MaxRetries)
	}
	if cfg.Scheduler.BackoffBase != 250*time.Millisecond {
		t.Errorf("backoff_base = %v, want 250ms", cfg.Scheduler.BackoffBase)
	}
	if cfg.Scheduler.TaskTimeout != time.Minute {
		t.Errorf("task_timeout = %v, want 1m", cfg.Scheduler.TaskTimeout)
	}
	if cfg.Scheduler.FailureMode != "best_effort" {
		t.Errorf("failure_mode = %q, want best_effort", cfg.Scheduler.FailureMode)
	}
	if cfg.Agents.File != "team.yaml" || !cfg.Agents.Watch {
		t.Errorf("agents config did not load: %+v", cfg.Agents)
	}
	if cfg.State.Path != "/tmp/foreman-state.db" || cfg.State.RetentionDays != 7 {
		t.Errorf("state config did not load: %+v", cfg.State)
	}
	if len(cfg.Gate.Rules) != 1 {
		t.Fatalf("expected 1 gate rule, got %d", len(cfg.Gate.Rules))
	}
	rule := cfg.Gate.Rules[0]
	if rule.Name != "no-deploys" || rule.Capability != "deploy" || rule.Action != "deny" {
		t.Errorf("gate rule did not load: %+v", rule)
	}
	if cfg.Metrics.Addr != ":9090" {
		t.Errorf("metrics addr = %q, want :9090", cfg.Metrics.Addr)
	}
}

func TestLoadFromPathAppliesDefaults(t *testing.T) {
	path := writeConfigFile(t, "agents:\n  file: custom.yaml\n")

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Agents.File != "custom.yaml" {
		t.Errorf("explicit value lost: %q", cfg.Agents.File)
	}
	if cfg.Scheduler.MaxRetries != 2 {
		t.Errorf("default max_retries = %d, want 2", cfg.Scheduler.MaxRetries)
	}
	if cfg.Scheduler.BackoffCap != 30*time.Second {
		t.Errorf("default backoff_cap = %v, want 30s", cfg.Scheduler.BackoffCap)
	}
	if cfg.State.RetentionDays != 30 {
		t.Errorf("default retention_days = %d, want 30", cfg.State.RetentionDays)
	}
	if cfg.Scheduler.FailureMode != "fail_fast" {
		t.Errorf("default failure_mode = %q, want fail_fast", cfg.Scheduler.FailureMode)
	}
}

func TestLoadFromPathMissingFile(t *testing.T) {
	if _, err := LoadFromPath(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("FOREMAN_SCHEDULER_MAX_RETRIES", "9")
	t.Setenv("FOREMAN_METRICS_ADDR", ":7070")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Scheduler.MaxRetries != 9 {
		t.Errorf("env override not applied, max_retries = %d", cfg.Scheduler.MaxRetries)
	}
	if cfg.Metrics.Addr != ":7070" {
		t.Errorf("env override not applied, metrics addr = %q", cfg.Metrics.Addr)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	cfg := Default()
	cfg.Scheduler.GlobalConcurrency = 12
	cfg.Agents.File = "fleet.yaml"
	cfg.Metrics.Addr = ":9100"

	if err := Save(cfg); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := LoadFromPath(GetUserConfigPath())
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if loaded.Scheduler.GlobalConcurrency != 12 {
		t.Errorf("global_concurrency = %d, want 12", loaded.Scheduler.GlobalConcurrency)
	}
	if loaded.Agents.File != "fleet.yaml" {
		t.Errorf("agents file = %q, want fleet.yaml", loaded.Agents.File)
	}
	if loaded.Metrics.Addr != ":9100" {
		t.Errorf("metrics addr = %q, want :9100", loaded.Metrics.Addr)
	}
}

func TestGetUserConfigPathHonorsXDG(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)

	want := filepath.Join(dir, "foreman", "config.yaml")
	if got := GetUserConfigPath(); got != want {
		t.Errorf("config path = %q, want %q", got, want)
	}
}

func TestDefaultMatchesSetDefaults(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	loaded, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	def := Default()
	if loaded.Scheduler != def.Scheduler {
		t.Errorf("scheduler defaults diverge:\nloaded  %+v\ndefault %+v", loaded.Scheduler, def.Scheduler)
	}
	if loaded.Agents.File != def.Agents.File {
		t.Errorf("agents file defaults diverge: %q vs %q", loaded.Agents.File, def.Agents.File)
	}
	if loaded.State.RetentionDays != def.State.RetentionDays {
		t.Errorf("retention defaults diverge: %d vs %d", loaded.State.RetentionDays, def.State.RetentionDays)
	}
}
