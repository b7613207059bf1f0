package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/foreman/internal/audit"
	"github.com/ShayCichocki/foreman/internal/config"
	"github.com/ShayCichocki/foreman/internal/decompose"
	"github.com/ShayCichocki/foreman/internal/gate"
	"github.com/ShayCichocki/foreman/internal/metrics"
	"github.com/ShayCichocki/foreman/internal/orchestrator"
	"github.com/ShayCichocki/foreman/internal/orchestrator/policy"
	"github.com/ShayCichocki/foreman/internal/planner"
	"github.com/ShayCichocki/foreman/internal/registry"
	"github.com/ShayCichocki/foreman/internal/transport"
	"github.com/ShayCichocki/foreman/pkg/models"
)

var (
	runRuleset    string
	runAgentsFile string
	runMode       string
	runCapability string
	runGoalID     string
	runMaxCost    float64
	runDeadline   time.Duration
	runSimDelay   time.Duration
	runVerbose    bool
)

var runCmd = &cobra.Command{
	Use:   "run <goal>",
	Short: "Submit a goal and execute its plan",
	Long: `Decompose a goal into a task plan and execute it.

The goal description is matched against the configured decomposition
ruleset; the first matching rule supplies the task templates. Without a
ruleset the goal becomes a single task with the capability given by
--capability.

Tasks are dispatched to agents from the registry file over the local
transport, which simulates agent execution in-process. Execution stops
on the first terminal task failure unless --mode best_effort is given.

Examples:
  foreman run "release service" --ruleset release.yaml --agents team.yaml
  foreman run "smoke check" --capability check --mode best_effort`,
	Args: cobra.MinimumNArgs(1),
	RunE: runGoal,
}

func init() {
	runCmd.Flags().StringVar(&runRuleset, "ruleset", "", "Decomposition ruleset file (overrides config)")
	runCmd.Flags().StringVar(&runAgentsFile, "agents", "", "Agent registry file (overrides config)")
	runCmd.Flags().StringVar(&runMode, "mode", "", "Failure mode: fail_fast or best_effort")
	runCmd.Flags().StringVar(&runCapability, "capability", "general", "Capability for the single-task fallback when no ruleset matches")
	runCmd.Flags().StringVar(&runGoalID, "goal-id", "", "Caller-supplied goal id (defaults to a generated one)")
	runCmd.Flags().Float64Var(&runMaxCost, "max-cost", 0, "Ceiling on summed task cost estimates (0 = unlimited)")
	runCmd.Flags().DurationVar(&runDeadline, "deadline", 0, "Wall-clock budget for the plan (0 = none)")
	runCmd.Flags().DurationVar(&runSimDelay, "sim-delay", 0, "Simulated per-task execution time on the local transport")
	runCmd.Flags().BoolVarP(&runVerbose, "verbose", "v", false, "Print every scheduling event")
}

func runGoal(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	description := strings.Join(args, " ")

	// Agent registry
	agentsFile := runAgentsFile
	if agentsFile == "" {
		agentsFile = cfg.Agents.File
	}
	reg := registry.NewWithCap(cfg.Agents.MaxAgents)
	if err := registry.LoadFileInto(reg, agentsFile); err != nil {
		return fmt.Errorf("load agents: %w", err)
	}
	if reg.Count() == 0 {
		return fmt.Errorf("no agents registered from %s", agentsFile)
	}
	if cfg.Agents.Watch {
		w, err := registry.Watch(reg, agentsFile)
		if err != nil {
			return fmt.Errorf("watch agents file: %w", err)
		}
		defer w.Close()
	}

	// Decomposition strategy
	strategy, err := buildStrategy(cfg)
	if err != nil {
		return err
	}
	builder := planner.New(strategy)

	// State store
	db, err := openStateDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()
	if _, err := db.RecoverInterrupted(); err != nil {
		return fmt.Errorf("recover interrupted plans: %w", err)
	}
	if cfg.State.RetentionDays > 0 {
		retention := time.Duration(cfg.State.RetentionDays) * 24 * time.Hour
		if _, err := db.PurgeOldPlans(retention); err != nil {
			return fmt.Errorf("purge old plans: %w", err)
		}
	}

	// Audit trail: always in memory for the end-of-run summary, mirrored
	// to SQLite when a database is configured.
	mem := audit.NewMemorySink()
	var sink audit.Sink = mem
	if cfg.Audit.Path != "" {
		sqlSink, err := audit.NewSQLiteSink(cfg.Audit.Path)
		if err != nil {
			return fmt.Errorf("open audit database: %w", err)
		}
		defer sqlSink.Close()
		sink = audit.MultiSink{mem, sqlSink}
	}

	// Governance gate
	var planGate gate.Gate = gate.AllowAll{}
	var policyGate *gate.PolicyGate
	if len(cfg.Gate.Rules) > 0 {
		policyGate, err = gate.NewPolicyGate(cfg.Gate.Rules)
		if err != nil {
			return fmt.Errorf("gate rules: %w", err)
		}
		planGate = policyGate
	}

	// Metrics endpoint
	var recorder *metrics.Recorder
	if cfg.Metrics.Addr != "" {
		recorder = metrics.NewRecorder()
		go func() {
			if err := http.ListenAndServe(cfg.Metrics.Addr, recorder.Handler()); err != nil {
				fmt.Fprintf(os.Stderr, "metrics endpoint: %v\n", err)
			}
		}()
	}

	pol := schedulerPolicy(cfg)

	// Local transport with one simulated handler per capability
	trans := transport.NewLocal(pol.GlobalConcurrency * 2)
	defer trans.Close()
	registerSimHandlers(trans, reg)

	opts := []orchestrator.Option{
		orchestrator.WithPolicy(pol),
		orchestrator.WithGate(planGate),
		orchestrator.WithAuditSink(sink),
		orchestrator.WithStateWriter(db),
	}
	if recorder != nil {
		opts = append(opts, orchestrator.WithMetrics(recorder))
	}
	if cfg.Debug.LogDir != "" {
		logger := orchestrator.NewDebugLoggerForDir(cfg.Debug.LogDir)
		defer logger.Close()
		opts = append(opts, orchestrator.WithDebugLogger(logger))
	}

	pool := orchestrator.NewPool(orchestrator.RequiredConfig{
		Builder:   builder,
		Registry:  reg,
		Transport: trans,
	}, opts...)
	defer pool.Stop()

	printerDone := make(chan struct{})
	go func() {
		defer close(printerDone)
		printEvents(pool.Events())
	}()

	goal := models.Goal{
		ID:          runGoalID,
		Description: description,
		Constraints: models.Constraints{MaxCost: runMaxCost},
	}
	if goal.ID == "" {
		goal.ID = fmt.Sprintf("goal-%d", time.Now().Unix())
	}
	if runDeadline > 0 {
		goal.Constraints.Deadline = time.Now().Add(runDeadline)
	}

	mode := models.FailureMode(runMode)
	if runMode == "" {
		mode = models.FailureMode(cfg.Scheduler.FailureMode)
	}
	if runMode != "" && !mode.Valid() {
		return fmt.Errorf("invalid failure mode %q: want fail_fast or best_effort", runMode)
	}

	planID, err := pool.SubmitWithMode(goal, mode)
	if err != nil {
		return fmt.Errorf("submit goal: %w", err)
	}
	fmt.Printf("Plan %s: %d agent(s), mode %s\n", planID, reg.Count(), mode)

	// Ctrl-C cancels the plan; in-flight tasks are asked to stop.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		if _, ok := <-sigCh; ok {
			fmt.Println("\nCancelling...")
			pool.Cancel(planID)
		}
	}()

	runErr := pool.Wait(planID)

	pool.Stop()
	<-printerDone

	printSummary(pool, planID, mem, policyGate)
	return runErr
}

// buildStrategy selects the ruleset strategy when one is configured and
// falls back to a single static task otherwise.
func buildStrategy(cfg *config.Config) (decompose.Strategy, error) {
	rulesetPath := runRuleset
	if rulesetPath == "" {
		rulesetPath = cfg.Decompose.Ruleset
	}
	if rulesetPath != "" {
		strategy, err := decompose.LoadRuleset(rulesetPath)
		if err != nil {
			return nil, fmt.Errorf("load ruleset: %w", err)
		}
		if runVerbose {
			fmt.Printf("Loaded %d decomposition rule(s) from %s\n", strategy.RuleCount(), rulesetPath)
		}
		return strategy, nil
	}
	return decompose.NewStatic([]decompose.TaskSpec{
		{ID: "task-1", Capability: runCapability},
	}), nil
}

// schedulerPolicy converts the loaded configuration into scheduler
// tunables. Validate clamps anything out of range.
func schedulerPolicy(cfg *config.Config) *policy.Config {
	return &policy.Config{
		GlobalConcurrency: cfg.Scheduler.GlobalConcurrency,
		MaxRetries:        cfg.Scheduler.MaxRetries,
		BackoffBase:       cfg.Scheduler.BackoffBase,
		BackoffCap:        cfg.Scheduler.BackoffCap,
		TaskTimeout:       cfg.Scheduler.TaskTimeout,
		PollInterval:      cfg.Scheduler.PollInterval,
		EventBufferSize:   cfg.Scheduler.EventBufferSize,
		FailureMode:       models.FailureMode(cfg.Scheduler.FailureMode),
	}
}

// registerSimHandlers installs a simulated worker for every capability
// the registry currently advertises. The handler sleeps for the
// configured delay and echoes the task payload back as its result.
func registerSimHandlers(trans *transport.Local, reg *registry.Registry) {
	seen := make(map[string]bool)
	for _, agent := range reg.Snapshot() {
		for _, capability := range agent.Capabilities {
			if seen[capability] {
				continue
			}
			seen[capability] = true
			trans.Register(capability, simHandler)
		}
	}
}

// simHandler is the local transport's stand-in for a real agent.
func simHandler(ctx context.Context, agentID string, task *models.Task) (map[string]string, error) {
	delay := runSimDelay
	if v, ok := task.Payload["sim_delay"]; ok {
		if d, err := time.ParseDuration(v); err == nil {
			delay = d
		}
	}
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if task.Payload["sim_fail"] == "true" {
		return nil, fmt.Errorf("task %s failed as instructed", task.ID)
	}

	result := map[string]string{"agent": agentID, "status": "done"}
	for k, v := range task.Payload {
		result[k] = v
	}
	return result, nil
}

// printEvents renders the event stream until it is closed.
func printEvents(events <-chan orchestrator.Event) {
	for e := range events {
		switch e.Type {
		case orchestrator.EventTaskSucceeded:
			fmt.Printf("%s %s (%s)\n", color.GreenString("✓"), e.TaskID, e.AgentID)
		case orchestrator.EventTaskFailed:
			fmt.Printf("%s %s: %s\n", color.RedString("✗"), e.TaskID, e.Error)
		case orchestrator.EventTaskRetrying:
			fmt.Printf("%s %s: %s\n", color.YellowString("↻"), e.TaskID, e.Message)
		case orchestrator.EventTaskCancelled:
			fmt.Printf("%s %s cancelled\n", color.YellowString("-"), e.TaskID)
		case orchestrator.EventPlanCompleted:
			fmt.Printf("Plan %s: %s\n", e.PlanID, e.Message)
		default:
			if runVerbose {
				fmt.Printf("  %s %s %s\n", e.Type, e.TaskID, e.Message)
			}
		}
	}
}

// printSummary reports final task states, the audit trail size, and gate
// rule hits after the plan has finished.
func printSummary(pool *orchestrator.Pool, planID string, mem *audit.MemorySink, policyGate *gate.PolicyGate) {
	snap, err := pool.Status(planID)
	if err != nil {
		return
	}

	taskIDs := make([]string, 0, len(snap.TaskStates))
	for id := range snap.TaskStates {
		taskIDs = append(taskIDs, id)
	}
	sort.Strings(taskIDs)

	fmt.Println()
	fmt.Printf("Plan %s: %s\n", snap.PlanID, colorStatus(string(snap.Status)))
	for _, id := range taskIDs {
		fmt.Printf("  %-20s %s\n", id, colorStatus(string(snap.TaskStates[id])))
	}
	if len(snap.Failed) > 0 {
		fmt.Println("Failures:")
		failedIDs := make([]string, 0, len(snap.Failed))
		for id := range snap.Failed {
			failedIDs = append(failedIDs, id)
		}
		sort.Strings(failedIDs)
		for _, id := range failedIDs {
			fmt.Printf("  %s: %s\n", id, snap.Failed[id])
		}
	}
	fmt.Printf("Audit trail: %d record(s)\n", mem.Len())

	if policyGate != nil && runVerbose {
		fmt.Println("Gate rules:")
		for _, s := range policyGate.Stats() {
			fmt.Printf("  %-20s %d hit(s)\n", s.Name, s.Hits)
		}
	}
}

// colorStatus colors terminal states for human output.
func colorStatus(s string) string {
	switch s {
	case "succeeded":
		return color.GreenString(s)
	case "failed":
		return color.RedString(s)
	case "cancelled", "retrying":
		return color.YellowString(s)
	default:
		return s
	}
}
