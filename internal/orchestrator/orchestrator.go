// Package orchestrator drives a case end to end: intake, selection, routing,
// isolated stage execution, aggregation, and persistence. One orchestrator
// instance owns one case; its logic is single-threaded, coordinating
// concurrent stage executions only within the executing state. A checkpoint
// is taken on every state transition so an interrupted case resumes at the
// checkpointed state without re-running completed work.
package orchestrator

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"caseflow/internal/aggregate"
	"caseflow/internal/config"
	"caseflow/internal/memory"
	"caseflow/internal/privacy"
	"caseflow/internal/selector"
	"caseflow/internal/stages"
	"caseflow/internal/types"
)

const actorName = "orchestrator"

// Deps are the collaborators an orchestrator drives.
type Deps struct {
	Boundary   *privacy.Boundary
	Store      *memory.TieredStore
	Selector   *selector.Selector
	Registry   *stages.Registry
	Aggregator *aggregate.Aggregator
}

// Orchestrator runs one case through the pipeline state machine.
type Orchestrator struct {
	mu  sync.RWMutex
	cfg config.OrchestratorConfig

	boundary   *privacy.Boundary
	store      *memory.TieredStore
	selector   *selector.Selector
	registry   *stages.Registry
	router     *stages.Router
	aggregator *aggregate.Aggregator

	state        *types.OrchestratorState
	cancelFunc   context.CancelFunc
	cancelReason string

	// stageCalls counts Execute invocations per stage, exposed so resume
	// behavior (no re-running completed stages) is verifiable.
	stageCalls map[string]int
}

// New creates an orchestrator for a single case run.
func New(cfg config.OrchestratorConfig, deps Deps) *Orchestrator {
	return &Orchestrator{
		cfg:        cfg,
		boundary:   deps.Boundary,
		store:      deps.Store,
		selector:   deps.Selector,
		registry:   deps.Registry,
		router:     stages.NewRouter(deps.Registry),
		aggregator: deps.Aggregator,
		stageCalls: make(map[string]int),
	}
}

// newCaseID mints a short unique case id.
func newCaseID() string {
	return "case_" + uuid.NewString()[:8]
}

// validate rejects malformed intake before the case enters the pipeline.
func validate(raw types.RawCase) error {
	if raw.SubjectID == "" {
		return types.ValidationErrorf("intake record has no subject identifier")
	}
	if len(raw.Facts) == 0 {
		return types.ValidationErrorf("intake record has no facts")
	}
	for i, f := range raw.Facts {
		if f.Value == "" {
			return types.ValidationErrorf("intake fact %d has no value", i)
		}
	}
	return nil
}

// StageCalls returns a copy of per-stage invocation counts.
func (o *Orchestrator) StageCalls() map[string]int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make(map[string]int, len(o.stageCalls))
	for k, v := range o.stageCalls {
		out[k] = v
	}
	return out
}

// State returns the current case state snapshot, nil before intake.
func (o *Orchestrator) State() *types.OrchestratorState {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.state
}
