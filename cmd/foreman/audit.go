package main

import (
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/foreman/internal/audit"
	"github.com/ShayCichocki/foreman/internal/config"
	"github.com/ShayCichocki/foreman/pkg/models"
)

var (
	auditDB     string
	auditPlanID string
	auditTaskID string
	auditKind   string
	auditLimit  int
	auditExport bool
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "List or export execution records",
	Long: `Query the append-only audit trail of dispatch attempts.

Each record captures one attempt: which agent ran which task, when,
with what outcome, and on failure a classification (no_candidate,
gate_denied, transport, timeout, cancelled).

Examples:
  foreman audit --plan plan-1a2b3c4d
  foreman audit --kind gate_denied --limit 20
  foreman audit --plan plan-1a2b3c4d --export > records.jsonl`,
	RunE: runAuditCmd,
}

func init() {
	auditCmd.Flags().StringVar(&auditDB, "db", "", "Audit database file (overrides config)")
	auditCmd.Flags().StringVar(&auditPlanID, "plan", "", "Only records for this plan")
	auditCmd.Flags().StringVar(&auditTaskID, "task", "", "Only records for this task")
	auditCmd.Flags().StringVar(&auditKind, "kind", "", "Only records with this error kind")
	auditCmd.Flags().IntVar(&auditLimit, "limit", 0, "Cap the number of records (0 = unlimited)")
	auditCmd.Flags().BoolVar(&auditExport, "export", false, "Emit records as JSONL on stdout")
}

func runAuditCmd(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	dbPath := auditDB
	if dbPath == "" {
		dbPath = cfg.Audit.Path
	}
	if dbPath == "" {
		return fmt.Errorf("no audit database configured: set audit.path or pass --db")
	}

	store, err := audit.NewSQLiteSink(dbPath)
	if err != nil {
		return fmt.Errorf("open audit database: %w", err)
	}
	defer store.Close()

	kind := models.ErrorKind(auditKind)
	if !kind.Valid() {
		return fmt.Errorf("unknown error kind %q", auditKind)
	}

	query := audit.Query{
		PlanID:    auditPlanID,
		TaskID:    auditTaskID,
		ErrorKind: kind,
		Limit:     auditLimit,
	}

	if auditExport {
		n, err := audit.ExportJSONL(store, query, os.Stdout)
		if err != nil {
			return fmt.Errorf("export records: %w", err)
		}
		fmt.Fprintf(os.Stderr, "Exported %d record(s)\n", n)
		return nil
	}

	records, err := store.List(query)
	if err != nil {
		return fmt.Errorf("list records: %w", err)
	}
	if len(records) == 0 {
		fmt.Println("No matching records.")
		return nil
	}

	for _, r := range records {
		outcome := color.GreenString(string(r.Outcome))
		if r.Outcome == models.OutcomeFailure {
			outcome = color.RedString(fmt.Sprintf("%s (%s)", r.Outcome, r.ErrorKind))
		}
		line := fmt.Sprintf("%s  %s/%s attempt %d  %s  %s",
			r.StartedAt.Format(time.RFC3339), r.PlanID, r.TaskID, r.Attempt,
			agentOrDash(r.AgentID), outcome)
		fmt.Println(line)
		if r.Error != "" {
			fmt.Printf("    %s\n", r.Error)
		}
	}
	fmt.Printf("%d record(s)\n", len(records))
	return nil
}

func agentOrDash(agentID string) string {
	if agentID == "" {
		return "-"
	}
	return agentID
}
