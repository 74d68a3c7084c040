package orchestrator

import (
	"caseflow/internal/logging"
	"caseflow/internal/types"
)

// Progress is a point-in-time view of a running case.
type Progress struct {
	CaseID          string           `json:"case_id"`
	Status          types.CaseStatus `json:"status"`
	CheckpointSeq   int              `json:"checkpoint_seq"`
	StagesPlanned   int              `json:"stages_planned"`
	StagesTerminal  int              `json:"stages_terminal"`
	SkippedStages   int              `json:"skipped_stages"`
	DegradedSources int              `json:"degraded_sources"`
}

// GetProgress returns current case progress.
func (o *Orchestrator) GetProgress() Progress {
	o.mu.RLock()
	defer o.mu.RUnlock()

	if o.state == nil {
		return Progress{}
	}

	planned := 0
	if o.state.Plan != nil {
		for _, wave := range o.state.Plan.Waves {
			planned += len(wave)
		}
		planned += len(o.state.Plan.Skipped)
	}
	return Progress{
		CaseID:          o.state.Case.ID,
		Status:          o.state.Case.Status,
		CheckpointSeq:   o.state.CheckpointSeq,
		StagesPlanned:   planned,
		StagesTerminal:  len(o.state.StageResults),
		SkippedStages:   skippedCount(o.state.StageResults),
		DegradedSources: len(o.state.Degraded),
	}
}

func skippedCount(results map[string]types.StageResult) int {
	n := 0
	for _, res := range results {
		if res.Status == types.StageSkipped {
			n++
		}
	}
	return n
}

// Cancel requests cancellation of the running case. In-flight stage calls
// drain best-effort within the configured timeout, then the case
// transitions to failed with the given reason. The scratchpad is discarded
// but the session checkpoint is preserved so partial work stays auditable.
func (o *Orchestrator) Cancel(reason string) {
	o.mu.Lock()
	if reason == "" {
		reason = "cancelled"
	}
	o.cancelReason = reason
	cancel := o.cancelFunc
	var caseID string
	if o.state != nil {
		caseID = o.state.Case.ID
	}
	o.mu.Unlock()

	logging.Orchestrator("case %s cancellation requested: %s", caseID, reason)
	if cancel != nil {
		cancel()
	}
}
