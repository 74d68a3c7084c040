package orchestrator

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"caseflow/internal/logging"
	"caseflow/internal/stages"
	"caseflow/internal/types"
)

// executeWaves fans out the routed plan wave by wave. Stages within a wave
// run concurrently with no shared mutable state; a stage with a declared
// dependency sits in a later wave and receives its dependency's terminal
// result explicitly in its input. Already-completed stages (from a resumed
// checkpoint) are never re-invoked.
func (o *Orchestrator) executeWaves(ctx context.Context) error {
	o.mu.RLock()
	plan := o.state.Plan
	caseID := o.state.Case.ID
	o.mu.RUnlock()

	if plan == nil {
		return fmt.Errorf("case %s has no route plan", caseID)
	}

	for _, wave := range plan.Waves {
		g, waveCtx := errgroup.WithContext(ctx)
		if o.cfg.MaxParallelStages > 0 {
			g.SetLimit(o.cfg.MaxParallelStages)
		}

		dispatched := 0
		for _, stageID := range wave {
			o.mu.RLock()
			_, done := o.state.StageResults[stageID]
			o.mu.RUnlock()
			if done {
				continue
			}

			dispatched++
			id := stageID
			g.Go(func() error {
				result, terminal := o.runStage(waveCtx, id)
				if terminal {
					o.recordStageResult(id, result)
				}
				return nil
			})
		}
		if dispatched == 0 {
			continue
		}

		if err := o.waitWithDrain(ctx, g); err != nil {
			return err
		}
		// One checkpoint per completed wave on top of the per-stage ones,
		// so a crash between waves resumes cleanly at Executing.
		if err := o.checkpoint(); err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	return nil
}

// waitWithDrain waits for in-flight stages. On cancellation the wait is
// best-effort, bounded by the configured drain timeout.
func (o *Orchestrator) waitWithDrain(ctx context.Context, g *errgroup.Group) error {
	done := make(chan error, 1)
	go func() { done <- g.Wait() }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
	}

	drain := o.cfg.CancelDrainTimeout
	if drain <= 0 {
		drain = 10 * time.Second
	}
	select {
	case <-done:
	case <-time.After(drain):
		logging.Get(logging.CategoryOrchestrator).Warnf("drain timeout after %s, abandoning in-flight stages", drain)
	}
	return ctx.Err()
}

// runStage executes one stage with bounded retries and a per-attempt
// timeout. A timeout counts as a failed attempt for retry accounting,
// never as an indefinite hang. Exhausted retries yield a Failed result
// with empty findings, which the aggregator surfaces as an open flag.
// The second return is false when cancellation interrupted the stage
// mid-flight: such a stage has no terminal result and re-runs on resume.
func (o *Orchestrator) runStage(ctx context.Context, stageID string) (types.StageResult, bool) {
	o.mu.RLock()
	caseID := o.state.Case.ID
	o.mu.RUnlock()

	profile, ok := o.registry.Profile(stageID)
	if !ok {
		return types.StageResult{
			StageID: stageID,
			Status:  types.StageFailed,
			Reason:  "no profile declared",
		}, true
	}

	budget := profile.RetryBudget
	if budget <= 0 {
		budget = o.cfg.MaxRetries
	}
	timeout := profile.Timeout
	if timeout <= 0 {
		timeout = o.cfg.StageTimeout
	}

	input := o.buildInput(caseID, profile)

	logging.Audit(logging.AuditEvent{
		EventType: logging.AuditStageDispatch,
		Actor:     actorName,
		CaseID:    caseID,
		Category:  "capability:" + profile.Capability,
		Action:    "dispatch " + stageID,
		Success:   true,
	})

	var lastErr error
	executed := 0
	for attempt := 0; attempt < budget; attempt++ {
		if ctx.Err() != nil {
			return types.StageResult{}, false
		}
		if attempt > 0 {
			sleepBackoff(ctx, o.backoff(attempt))
		}

		stage, err := o.registry.Spawn(stageID)
		if err != nil {
			lastErr = err
			break
		}

		o.countCall(stageID)
		executed++
		attemptCtx, cancel := context.WithTimeout(ctx, timeout)
		result, err := stage.Execute(attemptCtx, input)
		cancel()

		if err == nil {
			result.StageID = stageID
			if result.Status == "" {
				result.Status = types.StageOk
			}
			result.Retries = attempt
			return result, true
		}
		if ctx.Err() != nil {
			// The attempt was cut short by case cancellation, not by its
			// own failure; leave the stage without a terminal result.
			return types.StageResult{}, false
		}
		lastErr = err
		logging.Get(logging.CategoryStages).Warnf("stage %s attempt %d/%d failed: %v", stageID, attempt+1, budget, err)
	}

	reason := "retry budget exhausted"
	if lastErr != nil {
		reason = fmt.Sprintf("retry budget exhausted: %v", lastErr)
	}
	// Retries reflects attempts that actually ran: a stage that never
	// spawned reports zero, not a full budget it never spent.
	retries := 0
	if executed > 0 {
		retries = executed - 1
	} else if lastErr != nil {
		reason = fmt.Sprintf("failed to spawn stage: %v", lastErr)
	}
	return types.StageResult{
		StageID:  stageID,
		Status:   types.StageFailed,
		Findings: nil,
		Reason:   reason,
		Retries:  retries,
	}, true
}

// buildInput assembles the isolated, explicit input for one stage: its
// capability's sanitized view, the selection modes it declared, and the
// terminal results of its declared dependencies. Nothing else crosses in.
func (o *Orchestrator) buildInput(caseID string, profile stages.Profile) types.StageInput {
	o.mu.RLock()
	defer o.mu.RUnlock()

	view := o.state.Views[profile.Capability]

	var contextItems []types.SelectedItem
	for _, mode := range profile.RequiredContext {
		contextItems = append(contextItems, o.state.Selected[mode]...)
	}

	var deps map[string]types.StageResult
	if len(profile.DependsOn) > 0 {
		deps = make(map[string]types.StageResult, len(profile.DependsOn))
		for _, dep := range profile.DependsOn {
			if res, ok := o.state.StageResults[dep]; ok {
				deps[dep] = res
			}
		}
	}

	return types.StageInput{
		CaseID:     caseID,
		SubjectRef: view.SubjectRef,
		Fields:     view.Fields,
		Facts:      view.Facts,
		Context:    contextItems,
		DepResults: deps,
	}
}

// recordStageResult stores a terminal stage result and checkpoints it, so
// resume never re-runs a stage that already finished.
func (o *Orchestrator) recordStageResult(stageID string, result types.StageResult) {
	o.mu.Lock()
	o.state.StageResults[stageID] = result
	caseID := o.state.Case.ID
	o.mu.Unlock()

	logging.Stages("case %s stage %s: %s (retries=%d, findings=%d)",
		caseID, stageID, result.Status, result.Retries, len(result.Findings))
	logging.Audit(logging.AuditEvent{
		EventType: logging.AuditStageResult,
		Actor:     stageID,
		CaseID:    caseID,
		Category:  "stage_result",
		Action:    fmt.Sprintf("%s after %d retries", result.Status, result.Retries),
		Success:   result.Status == types.StageOk,
		Error:     result.Reason,
	})

	if err := o.checkpoint(); err != nil {
		logging.Get(logging.CategoryOrchestrator).Errorf("failed to checkpoint stage result %s: %v", stageID, err)
	}
}

// countCall tracks stage invocations for resume verification.
func (o *Orchestrator) countCall(stageID string) {
	o.mu.Lock()
	o.stageCalls[stageID]++
	o.mu.Unlock()
}

// backoff computes exponential backoff for an attempt, capped at the max.
func (o *Orchestrator) backoff(attempt int) time.Duration {
	base := o.cfg.RetryBackoffBase
	if base <= 0 {
		base = 200 * time.Millisecond
	}
	d := base << (attempt - 1)
	if max := o.cfg.RetryBackoffMax; max > 0 && d > max {
		d = max
	}
	return d
}

// sleepBackoff sleeps unless the context is cancelled first.
func sleepBackoff(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
