package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/foreman/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config [key] [value]",
	Short: "Manage configuration",
	Long: `View or modify foreman configuration.

Without arguments, displays current configuration.
With one argument (key), displays the value for that key.
With two arguments (key value), sets the configuration value.
'foreman config init' writes a default config file.

Configuration is stored at ~/.config/foreman/config.yaml
Project-specific overrides can be placed in .foreman.yaml`,
	Run: func(cmd *cobra.Command, args []string) {
		if len(args) == 1 && args[0] == "init" {
			initConfig()
			return
		}

		cfg, err := config.Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			os.Exit(1)
		}

		switch len(args) {
		case 0:
			displayAllConfig(cfg)
		case 1:
			displayConfigKey(cfg, args[0])
		default:
			setConfigKey(cfg, args[0], args[1])
		}
	},
}

// initConfig writes the built-in defaults to the user config file.
func initConfig() {
	path := config.GetUserConfigPath()
	if _, err := os.Stat(path); err == nil {
		fmt.Fprintf(os.Stderr, "Config already exists at %s\n", path)
		os.Exit(1)
	}
	if err := config.Save(config.Default()); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing config: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Wrote default config to %s\n", path)
}

// displayAllConfig prints all configuration values.
func displayAllConfig(cfg *config.Config) {
	fmt.Printf("scheduler.global_concurrency: %d\n", cfg.Scheduler.GlobalConcurrency)
	fmt.Printf("scheduler.max_retries: %d\n", cfg.Scheduler.MaxRetries)
	fmt.Printf("scheduler.backoff_base: %s\n", cfg.Scheduler.BackoffBase)
	fmt.Printf("scheduler.backoff_cap: %s\n", cfg.Scheduler.BackoffCap)
	fmt.Printf("scheduler.task_timeout: %s\n", cfg.Scheduler.TaskTimeout)
	fmt.Printf("scheduler.poll_interval: %s\n", cfg.Scheduler.PollInterval)
	fmt.Printf("scheduler.failure_mode: %s\n", cfg.Scheduler.FailureMode)
	fmt.Printf("agents.file: %s\n", cfg.Agents.File)
	fmt.Printf("agents.watch: %t\n", cfg.Agents.Watch)
	fmt.Printf("agents.max_agents: %d\n", cfg.Agents.MaxAgents)
	fmt.Printf("state.path: %s\n", orUnset(cfg.State.Path))
	fmt.Printf("state.retention_days: %d\n", cfg.State.RetentionDays)
	fmt.Printf("audit.path: %s\n", orUnset(cfg.Audit.Path))
	fmt.Printf("secrets.path: %s\n", orUnset(cfg.Secrets.Path))
	fmt.Printf("secrets.key_file: %s\n", orUnset(cfg.Secrets.KeyFile))
	fmt.Printf("secrets.key_source: %s\n", config.GetSecretsKeySource(cfg))
	fmt.Printf("decompose.ruleset: %s\n", orUnset(cfg.Decompose.Ruleset))
	fmt.Printf("metrics.addr: %s\n", orUnset(cfg.Metrics.Addr))
	fmt.Printf("debug.log_dir: %s\n", orUnset(cfg.Debug.LogDir))
	fmt.Printf("gate.rules: %d rule(s)\n", len(cfg.Gate.Rules))
}

func orUnset(s string) string {
	if s == "" {
		return "(not set)"
	}
	return s
}

// displayConfigKey prints a single configuration value.
func displayConfigKey(cfg *config.Config, key string) {
	value, err := getConfigValue(cfg, key)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(value)
}

// setConfigKey sets a configuration value and saves the config.
func setConfigKey(cfg *config.Config, key, value string) {
	if err := setConfigValue(cfg, key, value); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if err := config.Save(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error saving config: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Set %s = %s\n", key, value)
}

// getConfigValue retrieves a configuration value by dot-notation key.
func getConfigValue(cfg *config.Config, key string) (string, error) {
	switch strings.ToLower(key) {
	case "scheduler.global_concurrency":
		return strconv.Itoa(cfg.Scheduler.GlobalConcurrency), nil
	case "scheduler.max_retries":
		return strconv.Itoa(cfg.Scheduler.MaxRetries), nil
	case "scheduler.backoff_base":
		return cfg.Scheduler.BackoffBase.String(), nil
	case "scheduler.backoff_cap":
		return cfg.Scheduler.BackoffCap.String(), nil
	case "scheduler.task_timeout":
		return cfg.Scheduler.TaskTimeout.String(), nil
	case "scheduler.poll_interval":
		return cfg.Scheduler.PollInterval.String(), nil
	case "scheduler.failure_mode":
		return cfg.Scheduler.FailureMode, nil
	case "agents.file":
		return cfg.Agents.File, nil
	case "agents.watch":
		return strconv.FormatBool(cfg.Agents.Watch), nil
	case "agents.max_agents":
		return strconv.Itoa(cfg.Agents.MaxAgents), nil
	case "state.path":
		return cfg.State.Path, nil
	case "state.retention_days":
		return strconv.Itoa(cfg.State.RetentionDays), nil
	case "audit.path":
		return cfg.Audit.Path, nil
	case "secrets.path":
		return cfg.Secrets.Path, nil
	case "secrets.key_file":
		return cfg.Secrets.KeyFile, nil
	case "decompose.ruleset":
		return cfg.Decompose.Ruleset, nil
	case "metrics.addr":
		return cfg.Metrics.Addr, nil
	case "debug.log_dir":
		return cfg.Debug.LogDir, nil
	default:
		return "", fmt.Errorf("unknown configuration key: %s", key)
	}
}

// setConfigValue sets a configuration value by dot-notation key.
func setConfigValue(cfg *config.Config, key, value string) error {
	switch strings.ToLower(key) {
	case "scheduler.global_concurrency":
		return setIntKey(&cfg.Scheduler.GlobalConcurrency, key, value)
	case "scheduler.max_retries":
		return setIntKey(&cfg.Scheduler.MaxRetries, key, value)
	case "scheduler.backoff_base":
		return setDurationKey(&cfg.Scheduler.BackoffBase, key, value)
	case "scheduler.backoff_cap":
		return setDurationKey(&cfg.Scheduler.BackoffCap, key, value)
	case "scheduler.task_timeout":
		return setDurationKey(&cfg.Scheduler.TaskTimeout, key, value)
	case "scheduler.poll_interval":
		return setDurationKey(&cfg.Scheduler.PollInterval, key, value)
	case "scheduler.failure_mode":
		if value != "fail_fast" && value != "best_effort" {
			return fmt.Errorf("invalid failure mode %q: want fail_fast or best_effort", value)
		}
		cfg.Scheduler.FailureMode = value
	case "agents.file":
		cfg.Agents.File = value
	case "agents.watch":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean for %s: %w", key, err)
		}
		cfg.Agents.Watch = b
	case "agents.max_agents":
		return setIntKey(&cfg.Agents.MaxAgents, key, value)
	case "state.path":
		cfg.State.Path = value
	case "state.retention_days":
		return setIntKey(&cfg.State.RetentionDays, key, value)
	case "audit.path":
		cfg.Audit.Path = value
	case "secrets.path":
		cfg.Secrets.Path = value
	case "secrets.key_file":
		cfg.Secrets.KeyFile = value
	case "decompose.ruleset":
		cfg.Decompose.Ruleset = value
	case "metrics.addr":
		cfg.Metrics.Addr = value
	case "debug.log_dir":
		cfg.Debug.LogDir = value
	default:
		return fmt.Errorf("unknown configuration key: %s", key)
	}
	return nil
}

func setIntKey(dst *int, key, value string) error {
	n, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dst = n
	return nil
}

func setDurationKey(dst *time.Duration, key, value string) error {
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("invalid duration for %s: %w", key, err)
	}
	*dst = d
	return nil
}
