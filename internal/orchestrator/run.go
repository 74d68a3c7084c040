package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"caseflow/internal/config"
	"caseflow/internal/logging"
	"caseflow/internal/memory"
	"caseflow/internal/types"
)

// Run drives a new case from intake to completion. A completed case always
// yields a summary, even under degraded conditions; only validation and
// privacy violations abort outright.
func (o *Orchestrator) Run(ctx context.Context, raw types.RawCase) (*types.AggregatedSummary, error) {
	if err := validate(raw); err != nil {
		logging.Get(logging.CategoryOrchestrator).Warnf("intake rejected: %v", err)
		return nil, err
	}

	caseID := newCaseID()

	// The privacy boundary is applied at intake, before anything durable is
	// written: one sanitized view per declared capability. The raw case is
	// not retained past this block, so checkpoints never carry raw fields.
	views := make(map[string]types.SanitizedView)
	subjectRef := ""
	for _, profile := range o.registry.Profiles() {
		if _, done := views[profile.Capability]; done {
			continue
		}
		view, err := o.boundary.Deidentify(caseID, raw, profile.Capability)
		if err != nil {
			logging.Audit(logging.AuditEvent{
				EventType: logging.AuditCaseFailed,
				Actor:     actorName,
				CaseID:    caseID,
				Category:  "intake",
				Action:    "halt case on privacy violation",
				Severity:  logging.SeverityHigh,
				Success:   false,
				Error:     err.Error(),
			})
			return nil, err
		}
		views[profile.Capability] = *view
		subjectRef = view.SubjectRef
	}
	if subjectRef == "" {
		subjectRef = o.boundary.HashSubject(caseID, raw.SubjectID)
	}

	now := time.Now().UTC()
	state := &types.OrchestratorState{
		Case: types.Case{
			ID:         caseID,
			SubjectRef: subjectRef,
			Facts:      o.sanitizedFacts(views, raw),
			Status:     types.StatusIntake,
			CreatedAt:  now,
			UpdatedAt:  now,
		},
		Views:        views,
		StageResults: make(map[string]types.StageResult),
	}

	o.mu.Lock()
	o.state = state
	o.mu.Unlock()

	// Intake notes live in the scratchpad for the duration of the run only.
	if err := o.store.Write(ctx, types.TierScratchpad, memory.Namespace(caseID, "intake"),
		"facts", raw.Facts, actorName); err != nil {
		return nil, fmt.Errorf("failed to record intake notes: %w", err)
	}

	logging.Orchestrator("case %s intake accepted: %d facts, %d capability views", caseID, len(raw.Facts), len(views))
	logging.Audit(logging.AuditEvent{
		EventType: logging.AuditCaseIntake,
		Actor:     actorName,
		CaseID:    caseID,
		Category:  "intake",
		Action:    fmt.Sprintf("accept case with %d facts", len(raw.Facts)),
		Success:   true,
	})

	if err := o.checkpoint(); err != nil {
		return nil, err
	}
	return o.runFrom(ctx)
}

// Resume re-enters a case at its checkpointed state, re-running only
// incomplete work.
func (o *Orchestrator) Resume(ctx context.Context, caseID string) (*types.AggregatedSummary, error) {
	state, err := o.store.Resume(caseID)
	if err != nil {
		return nil, err
	}

	o.mu.Lock()
	o.state = state
	o.mu.Unlock()

	logging.Orchestrator("case %s resumed at %s (checkpoint %d, %d stage results)",
		caseID, state.Case.Status, state.CheckpointSeq, len(state.StageResults))
	logging.Audit(logging.AuditEvent{
		EventType: logging.AuditCaseResumed,
		Actor:     actorName,
		CaseID:    caseID,
		Category:  "session:checkpoint",
		Action:    fmt.Sprintf("resume at %s from checkpoint %d", state.Case.Status, state.CheckpointSeq),
		Success:   true,
	})

	switch state.Case.Status {
	case types.StatusComplete:
		return state.Summary, nil
	case types.StatusFailed:
		// A cancelled or crashed case recorded where it was interrupted;
		// re-enter there. A case that failed on its own merits stays failed.
		if state.InterruptedAt == "" || state.InterruptedAt.Terminal() {
			return nil, fmt.Errorf("case %s already failed: %w", caseID, types.ErrStageFailure)
		}
		o.mu.Lock()
		o.state.Case.Status = state.InterruptedAt
		o.state.InterruptedAt = ""
		o.state.FailureReason = ""
		o.mu.Unlock()
	}
	return o.runFrom(ctx)
}

// runFrom executes the state machine loop from the current state until a
// terminal state is reached.
func (o *Orchestrator) runFrom(ctx context.Context) (*types.AggregatedSummary, error) {
	runCtx, cancel := context.WithCancel(ctx)
	o.mu.Lock()
	o.cancelFunc = cancel
	o.mu.Unlock()
	defer cancel()

	for {
		if err := runCtx.Err(); err != nil {
			return nil, o.fail(err)
		}

		o.mu.RLock()
		status := o.state.Case.Status
		o.mu.RUnlock()

		switch status {
		case types.StatusIntake:
			if err := o.transition(types.StatusSelecting); err != nil {
				return nil, o.fail(err)
			}

		case types.StatusSelecting:
			if err := o.doSelect(runCtx); err != nil {
				return nil, o.fail(err)
			}
			if err := o.transition(types.StatusRouting); err != nil {
				return nil, o.fail(err)
			}

		case types.StatusRouting:
			o.doRoute()
			if err := o.transition(types.StatusExecuting); err != nil {
				return nil, o.fail(err)
			}

		case types.StatusExecuting:
			if err := o.executeWaves(runCtx); err != nil {
				return nil, o.fail(err)
			}
			if err := o.transition(types.StatusAggregating); err != nil {
				return nil, o.fail(err)
			}

		case types.StatusAggregating:
			if err := o.doAggregate(); err != nil {
				return nil, o.fail(err)
			}
			if err := o.transition(types.StatusPersisting); err != nil {
				return nil, o.fail(err)
			}

		case types.StatusPersisting:
			if err := o.doPersist(runCtx); err != nil {
				return nil, o.fail(err)
			}
			if err := o.transition(types.StatusComplete); err != nil {
				return nil, o.fail(err)
			}

		case types.StatusComplete:
			return o.complete(), nil

		default:
			return nil, o.fail(fmt.Errorf("unexpected case status %q", status))
		}
	}
}

// transition advances the case status and checkpoints. Every transition is
// checkpointed so resume re-enters exactly where the case left off.
func (o *Orchestrator) transition(next types.CaseStatus) error {
	o.mu.Lock()
	prev := o.state.Case.Status
	o.state.Case.Status = next
	o.state.Case.UpdatedAt = time.Now().UTC()
	caseID := o.state.Case.ID
	o.mu.Unlock()

	logging.Orchestrator("case %s: %s -> %s", caseID, prev, next)
	logging.Audit(logging.AuditEvent{
		EventType: logging.AuditCaseTransition,
		Actor:     actorName,
		CaseID:    caseID,
		Category:  "state_machine",
		Action:    fmt.Sprintf("%s -> %s", prev, next),
		Success:   true,
	})
	return o.checkpoint()
}

// checkpoint persists the current state to the session tier.
func (o *Orchestrator) checkpoint() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, err := o.store.Checkpoint(o.state); err != nil {
		return fmt.Errorf("failed to checkpoint case %s: %w", o.state.Case.ID, err)
	}
	return nil
}

// doSelect pulls bounded context for the case across all four modes.
// Unavailable sources degrade the selection, they never fail the case.
func (o *Orchestrator) doSelect(ctx context.Context) error {
	o.mu.RLock()
	facts := o.state.Case.Facts
	subjectRef := o.state.Case.SubjectRef
	o.mu.RUnlock()

	terms := make([]string, 0, len(facts))
	for _, f := range facts {
		terms = append(terms, f.Value)
	}
	query := types.SelectionQuery{
		Terms:   terms,
		Filters: map[string]string{"subject_ref": subjectRef},
	}

	selected, degraded, err := o.selector.SelectAll(ctx, query)
	if err != nil {
		return err
	}

	o.mu.Lock()
	o.state.Selected = selected
	o.state.Degraded = degraded
	caseID := o.state.Case.ID
	o.mu.Unlock()

	total := 0
	for _, items := range selected {
		total += len(items)
	}
	logging.Audit(logging.AuditEvent{
		EventType: logging.AuditSelection,
		Actor:     actorName,
		CaseID:    caseID,
		Category:  "selection",
		Action:    fmt.Sprintf("selected %d items, %d degraded modes", total, len(degraded)),
		Success:   true,
	})
	return nil
}

// doRoute decides the applicable stages from the sanitized field availability.
func (o *Orchestrator) doRoute() {
	o.mu.Lock()
	defer o.mu.Unlock()

	available := make(map[string]map[string]bool, len(o.state.Views))
	for capability, view := range o.state.Views {
		fields := make(map[string]bool, len(view.Fields))
		for name := range view.Fields {
			fields[name] = true
		}
		available[capability] = fields
	}

	plan := o.router.Route(o.state.Case.ID, available)
	o.state.Plan = plan

	// Skipped stages get terminal results immediately: never silently
	// omitted, and resume will not reconsider them.
	for name, reason := range plan.Skipped {
		if _, done := o.state.StageResults[name]; done {
			continue
		}
		o.state.StageResults[name] = types.StageResult{
			StageID: name,
			Status:  types.StageSkipped,
			Reason:  reason,
		}
	}
}

// doAggregate merges stage results into the budget-bounded summary.
// Degraded selection modes surface as open flags via synthetic skipped
// results so a reviewer always sees the reduced context.
func (o *Orchestrator) doAggregate() error {
	o.mu.RLock()
	caseID := o.state.Case.ID
	results := make(map[string]types.StageResult, len(o.state.StageResults))
	for id, res := range o.state.StageResults {
		results[id] = res
	}
	degraded := o.state.Degraded
	o.mu.RUnlock()

	for _, mode := range degraded {
		id := "selector/" + string(mode)
		results[id] = types.StageResult{
			StageID: id,
			Status:  types.StageSkipped,
			Reason:  "selection source unavailable, case proceeded with reduced context",
		}
	}

	summary, err := o.aggregator.Aggregate(caseID, results)
	if err != nil {
		return err
	}

	o.mu.Lock()
	o.state.Summary = summary
	o.mu.Unlock()
	return nil
}

// doPersist writes the summary and archived case record to the long-term
// store, bounded by the configured persist timeout. A conflicting key is
// re-attempted once with a version suffix; the original entry is never
// overwritten.
func (o *Orchestrator) doPersist(ctx context.Context) error {
	o.mu.RLock()
	state := o.state
	caseID := state.Case.ID
	subjectRef := state.Case.SubjectRef
	summary := state.Summary
	o.mu.RUnlock()

	if summary == nil {
		return fmt.Errorf("case %s reached persisting with no summary", caseID)
	}

	timeout := o.cfg.PersistTimeout
	if timeout <= 0 {
		timeout = config.DefaultOrchestratorConfig().PersistTimeout
	}
	persistCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := o.writeVersioned(persistCtx, memory.Namespace(subjectRef, "summary"), caseID, summary); err != nil {
		return err
	}
	archived := state.Case
	if err := o.writeVersioned(persistCtx, memory.Namespace(subjectRef, "case"), caseID, archived); err != nil {
		return err
	}

	// Aggregate-signal accounting: emergent and urgent findings feed the
	// cross-case counters used for signal-detection thresholds.
	for _, section := range summary.FindingsByPriority {
		if section.Priority.Rank() > types.PriorityUrgent.Rank() {
			continue
		}
		for range section.Items {
			if _, err := o.store.IncrementSignal(persistCtx, "findings/"+string(section.Priority), 1); err != nil {
				return err
			}
		}
	}
	return nil
}

// writeVersioned performs a conflict-checked long-term write, retrying once
// under a new version key on conflict.
func (o *Orchestrator) writeVersioned(ctx context.Context, namespace, key string, payload any) error {
	err := o.store.Write(ctx, types.TierLongTerm, namespace, key, payload, actorName)
	if err == nil {
		return nil
	}
	if !errors.Is(err, types.ErrPersistenceConflict) {
		return err
	}
	versioned := key + "/v2"
	logging.Get(logging.CategoryOrchestrator).Warnf("conflict on %s/%s, retrying as %s", namespace, key, versioned)
	return o.store.Write(ctx, types.TierLongTerm, namespace, versioned, payload, actorName)
}

// complete finalizes a successful run: scratchpad destroyed, session
// checkpoints retained, audit trail closed out for the case.
func (o *Orchestrator) complete() *types.AggregatedSummary {
	o.mu.RLock()
	caseID := o.state.Case.ID
	summary := o.state.Summary
	o.mu.RUnlock()

	o.store.DiscardScratchpad(caseID)
	logging.Orchestrator("case %s complete: %d words, %d open flags", caseID, summary.WordCount, len(summary.OpenFlags))
	logging.Audit(logging.AuditEvent{
		EventType: logging.AuditCaseComplete,
		Actor:     actorName,
		CaseID:    caseID,
		Category:  "state_machine",
		Action:    "case complete",
		Success:   true,
	})
	return summary
}

// fail transitions to the terminal failed state. The scratchpad is
// discarded but the session checkpoint survives so partial work stays
// auditable.
func (o *Orchestrator) fail(cause error) error {
	o.mu.Lock()
	caseID := o.state.Case.ID
	reason := o.cancelReason
	interruptedAt := o.state.Case.Status
	o.state.Case.Status = types.StatusFailed
	o.state.Case.UpdatedAt = time.Now().UTC()
	o.mu.Unlock()

	cancelled := reason != "" || errors.Is(cause, context.Canceled) || errors.Is(cause, types.ErrCancelled)
	if cancelled {
		if reason == "" {
			reason = "cancelled"
		}
		cause = fmt.Errorf("%w: %s", types.ErrCancelled, reason)
	}

	o.mu.Lock()
	o.state.FailureReason = cause.Error()
	if cancelled && !interruptedAt.Terminal() {
		// Cancellation is an interruption, not a verdict: record where the
		// case stood so resume can pick it back up.
		o.state.InterruptedAt = interruptedAt
	}
	o.mu.Unlock()

	if err := o.checkpoint(); err != nil {
		logging.Get(logging.CategoryOrchestrator).Errorf("failed to checkpoint failed case %s: %v", caseID, err)
	}
	o.store.DiscardScratchpad(caseID)

	event := logging.AuditCaseFailed
	if cancelled {
		event = logging.AuditCaseCancelled
	}
	logging.Audit(logging.AuditEvent{
		EventType: event,
		Actor:     actorName,
		CaseID:    caseID,
		Category:  "state_machine",
		Action:    "case failed",
		Severity:  logging.SeverityWarn,
		Success:   false,
		Error:     cause.Error(),
	})
	return cause
}

// sanitizedFacts prefers redacted facts from a capability view. With no
// capability declared, facts still pass through the boundary's deny-value
// redaction before anything durable sees them.
func (o *Orchestrator) sanitizedFacts(views map[string]types.SanitizedView, raw types.RawCase) []types.IntakeFact {
	for _, view := range views {
		return view.Facts
	}
	return o.boundary.SanitizeFacts(raw)
}
