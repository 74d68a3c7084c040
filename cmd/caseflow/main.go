// caseflow processes sensitive case records through a pipeline of isolated
// analysis stages with tiered memory, bounded context selection, and
// budget-constrained aggregation.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"caseflow/internal/aggregate"
	"caseflow/internal/config"
	"caseflow/internal/logging"
	"caseflow/internal/memory"
	"caseflow/internal/orchestrator"
	"caseflow/internal/privacy"
	"caseflow/internal/selector"
	"caseflow/internal/stages"
	"caseflow/internal/types"
)

var (
	verbose    bool
	dataDir    string
	configPath string

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "caseflow",
	Short: "caseflow - contextual case pipeline orchestrator",
	Long: `caseflow routes a case through an ordered set of bounded-context
analysis stages, with three memory tiers, checkpoint/resume, a privacy
boundary in front of every stage, and deterministic aggregation into a
compact, audit-traceable summary.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		logger, err = logging.NewDevelopmentLogger(verbose)
		if err != nil {
			return fmt.Errorf("failed to build logger: %w", err)
		}
		logging.Init(logger)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
		_ = logging.CloseAudit()
	},
}

func main() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", ".caseflow", "data directory for databases and audit trail")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config yaml (defaults built from --data-dir)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(resumeCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(auditCmd)
	rootCmd.AddCommand(signalsCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig builds configuration from the flags.
func loadConfig() (*config.Config, error) {
	if configPath != "" {
		return config.Load(configPath)
	}
	cfg := config.Default(dataDir)
	if key := os.Getenv(config.EnvHashKey); key != "" {
		cfg.Privacy.HashKey = key
	}
	return cfg, nil
}

// pipeline bundles everything a command needs to drive cases.
type pipeline struct {
	cfg      *config.Config
	store    *memory.TieredStore
	boundary *privacy.Boundary
	orch     *orchestrator.Orchestrator
}

// buildPipeline wires the full component graph.
func buildPipeline() (*pipeline, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if err := logging.InitAudit(cfg.Logging.AuditPath); err != nil {
		return nil, err
	}

	store, err := memory.New(cfg.Memory)
	if err != nil {
		return nil, err
	}

	boundary, err := privacy.NewBoundary(cfg.Privacy)
	if err != nil {
		store.Close()
		return nil, err
	}

	registry := stages.NewRegistry()
	stages.RegisterTriage(registry)

	sel := selector.New(cfg.Selector)
	sel.Register(types.ModeHistory, selector.NewHistorySource(store))
	sel.Register(types.ModeSignal, selector.NewSignalSource(store))
	if path := cfg.Selector.ReferenceDocsPath; path != "" {
		src, err := selector.LoadDocumentSource(path)
		if err != nil {
			boundary.Close()
			store.Close()
			return nil, err
		}
		sel.Register(types.ModeReference, src)
	}
	if path := cfg.Selector.LiteratureDocsPath; path != "" {
		src, err := selector.LoadDocumentSource(path)
		if err != nil {
			boundary.Close()
			store.Close()
			return nil, err
		}
		sel.Register(types.ModeLiterature, src)
	}

	agg := aggregate.New(cfg.Aggregate, registry)

	orch := orchestrator.New(cfg.Orchestrator, orchestrator.Deps{
		Boundary:   boundary,
		Store:      store,
		Selector:   sel,
		Registry:   registry,
		Aggregator: agg,
	})

	return &pipeline{cfg: cfg, store: store, boundary: boundary, orch: orch}, nil
}

func (p *pipeline) close() {
	p.boundary.Close()
	p.store.Close()
}

// watchSignals cancels the case on SIGINT/SIGTERM.
func watchSignals(orch *orchestrator.Orchestrator) func() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	done := make(chan struct{})
	go func() {
		select {
		case sig := <-sigCh:
			orch.Cancel("interrupted by " + sig.String())
		case <-done:
		}
	}()
	return func() {
		signal.Stop(sigCh)
		close(done)
	}
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
