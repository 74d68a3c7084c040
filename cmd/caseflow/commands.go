package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"caseflow/internal/aggregate"
	"caseflow/internal/logging"
	"caseflow/internal/types"
)

var runCmd = &cobra.Command{
	Use:   "run <case.json>",
	Short: "Run a case file through the pipeline",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read case file: %w", err)
		}
		var raw types.RawCase
		if err := json.Unmarshal(data, &raw); err != nil {
			return fmt.Errorf("failed to parse case file: %w", err)
		}

		p, err := buildPipeline()
		if err != nil {
			return err
		}
		defer p.close()

		stop := watchSignals(p.orch)
		defer stop()

		summary, err := p.orch.Run(cmd.Context(), raw)
		if err != nil {
			return err
		}
		fmt.Print(aggregate.Render(summary))
		return nil
	},
}

var resumeCmd = &cobra.Command{
	Use:   "resume <case-id>",
	Short: "Resume an interrupted case from its latest checkpoint",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := buildPipeline()
		if err != nil {
			return err
		}
		defer p.close()

		stop := watchSignals(p.orch)
		defer stop()

		summary, err := p.orch.Resume(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Print(aggregate.Render(summary))
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status <case-id>",
	Short: "Show the latest checkpointed state of a case",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := buildPipeline()
		if err != nil {
			return err
		}
		defer p.close()

		state, err := p.store.Resume(args[0])
		if err != nil {
			return err
		}
		return printJSON(map[string]any{
			"case_id":        state.Case.ID,
			"status":         state.Case.Status,
			"checkpoint_seq": state.CheckpointSeq,
			"stage_results":  len(state.StageResults),
			"updated_at":     state.UpdatedAt,
		})
	},
}

var auditCmd = &cobra.Command{
	Use:   "audit <case-id>",
	Short: "List audit entries recorded for a case in this process",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := buildPipeline()
		if err != nil {
			return err
		}
		defer p.close()

		events := logging.ReadAudit(logging.AuditFilter{CaseID: args[0]})
		if len(events) == 0 {
			fmt.Printf("no audit entries for %s in this process; see the audit trail file\n", args[0])
			return nil
		}
		return printJSON(events)
	},
}

var signalsCmd = &cobra.Command{
	Use:   "signals",
	Short: "Show aggregate-signal counters",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := buildPipeline()
		if err != nil {
			return err
		}
		defer p.close()

		counters, err := p.store.ListSignals()
		if err != nil {
			return err
		}
		return printJSON(counters)
	},
}
