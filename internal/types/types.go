// Package types provides shared type definitions used across caseflow packages.
// This package exists to break import cycles between the orchestrator, memory,
// and stage packages. Types in this package should be foundational data
// structures with no complex dependencies.
package types

import (
	"encoding/json"
	"time"
)

// =============================================================================
// CASE MODEL
// =============================================================================

// CaseStatus tracks a case through the pipeline state machine.
type CaseStatus string

const (
	StatusIntake      CaseStatus = "intake"
	StatusSelecting   CaseStatus = "selecting"
	StatusRouting     CaseStatus = "routing"
	StatusExecuting   CaseStatus = "executing"
	StatusAggregating CaseStatus = "aggregating"
	StatusPersisting  CaseStatus = "persisting"
	StatusComplete    CaseStatus = "complete"
	StatusFailed      CaseStatus = "failed"
)

// Terminal reports whether the status is a terminal state.
func (s CaseStatus) Terminal() bool {
	return s == StatusComplete || s == StatusFailed
}

// IntakeFact is a single reported symptom or event on a case.
type IntakeFact struct {
	Kind       string    `json:"kind"` // symptom, event, medication, observation
	Value      string    `json:"value"`
	ObservedAt time.Time `json:"observed_at,omitempty"`
}

// RawCase is the intake record as received from the external collaborator.
// It may contain identifying fields and must never cross the privacy
// boundary unsanitized. The field schema is owned by the intake side.
type RawCase struct {
	SubjectID string            `json:"subject_id"` // raw identifier, hashed at intake
	Fields    map[string]string `json:"fields"`     // free-form intake fields
	Facts     []IntakeFact      `json:"facts"`      // ordered symptoms/events
}

// Case is one unit of work through the pipeline. It is owned exclusively by
// the orchestrator for its lifetime; the persisted record is owned by the
// long-term store after completion.
type Case struct {
	ID         string       `json:"id"`
	SubjectRef string       `json:"subject_ref"` // opaque hash, never the raw identifier
	Facts      []IntakeFact `json:"facts"`
	Status     CaseStatus   `json:"status"`
	CreatedAt  time.Time    `json:"created_at"`
	UpdatedAt  time.Time    `json:"updated_at"`
}

// =============================================================================
// MEMORY MODEL
// =============================================================================

// Tier identifies one of the three memory lifecycles.
type Tier string

const (
	TierScratchpad Tier = "scratchpad" // single case run, destroyed on completion
	TierSession    Tier = "session"    // checkpointed, resumable
	TierLongTerm   Tier = "longterm"   // durable, append-only
)

// MemoryEntry is a single record in one of the memory tiers.
type MemoryEntry struct {
	Tier      Tier            `json:"tier"`
	Namespace string          `json:"namespace"` // case id + category
	Key       string          `json:"key"`
	Payload   json.RawMessage `json:"payload"`
	WrittenAt time.Time       `json:"written_at"`
	Writer    string          `json:"writer"` // component identity
}

// SanitizedView is the narrow slice of a case a single capability may see.
// Produced by the privacy boundary; safe to checkpoint because every field
// has already passed the deny/allow classification.
type SanitizedView struct {
	Capability string            `json:"capability"`
	SubjectRef string            `json:"subject_ref"`
	Fields     map[string]string `json:"fields"`
	Facts      []IntakeFact      `json:"facts"`
}

// =============================================================================
// SELECTION MODEL
// =============================================================================

// SelectionMode names one of the four logical selection sources.
type SelectionMode string

const (
	ModeHistory    SelectionMode = "history"    // historical cases
	ModeReference  SelectionMode = "reference"  // current-context reference documents
	ModeLiterature SelectionMode = "literature" // external literature/knowledge base
	ModeSignal     SelectionMode = "signal"     // aggregate-signal state
)

// SelectionQuery describes what to retrieve and how much.
type SelectionQuery struct {
	Terms   []string          `json:"terms"`             // symptom set / keywords
	Filters map[string]string `json:"filters,omitempty"` // demographic filters
	Since   time.Time         `json:"since,omitempty"`   // recency bound
	K       int               `json:"k"`                 // result-size bound
}

// SelectedItem is one ranked candidate returned by the selector.
// Ordering: descending score, ties broken by recency then stable id order.
type SelectedItem struct {
	ID        string        `json:"id"`
	Mode      SelectionMode `json:"mode"`
	Content   string        `json:"content"`
	Score     float64       `json:"score"`
	Timestamp time.Time     `json:"timestamp"`
}

// EvidenceRef points into selected context rather than copying it.
type EvidenceRef struct {
	Mode SelectionMode `json:"mode"`
	ID   string        `json:"id"`
}

// =============================================================================
// STAGE MODEL
// =============================================================================

// StageStatus is the terminal per-stage state.
type StageStatus string

const (
	StageOk      StageStatus = "ok"
	StageSkipped StageStatus = "skipped"
	StageFailed  StageStatus = "failed"
)

// Priority orders findings for aggregation. Explicit ordering:
// fatal/emergent > serious/urgent > other > informational.
type Priority string

const (
	PriorityEmergent      Priority = "emergent"
	PriorityUrgent        Priority = "urgent"
	PriorityOther         Priority = "other"
	PriorityInformational Priority = "informational"
)

// Rank returns the sort rank of a priority; lower sorts first.
// Unknown priorities rank below informational so they are never
// promoted above classified findings.
func (p Priority) Rank() int {
	switch p {
	case PriorityEmergent:
		return 0
	case PriorityUrgent:
		return 1
	case PriorityOther:
		return 2
	case PriorityInformational:
		return 3
	default:
		return 4
	}
}

// Finding is one structured observation produced by a stage.
type Finding struct {
	Summary  string   `json:"summary"`
	Detail   string   `json:"detail,omitempty"`
	Priority Priority `json:"priority"`
}

// StageInput is the narrow, de-identified, bounded context a stage receives.
// Any case-global information a stage needs is passed here explicitly;
// stages share no mutable state.
type StageInput struct {
	CaseID     string                 `json:"case_id"`
	SubjectRef string                 `json:"subject_ref"`
	Fields     map[string]string      `json:"fields"` // allow-listed for this capability only
	Facts      []IntakeFact           `json:"facts"`
	Context    []SelectedItem         `json:"context"`            // post-selector bounded context
	DepResults map[string]StageResult `json:"dep_results,omitempty"` // declared dependencies only
}

// StageResult is the typed output of one stage invocation.
type StageResult struct {
	StageID    string        `json:"stage_id"`
	Status     StageStatus   `json:"status"`
	Findings   []Finding     `json:"findings"`
	Evidence   []EvidenceRef `json:"evidence,omitempty"`
	Confidence float64       `json:"confidence"` // 0.0-1.0 quality signal
	Retries    int           `json:"retries"`    // attempts beyond the first
	Reason     string        `json:"reason,omitempty"` // skip/failure reason
}

// =============================================================================
// AGGREGATION MODEL
// =============================================================================

// SummaryItem is one finding carried into the aggregated summary.
type SummaryItem struct {
	StageID  string        `json:"stage_id"`
	Summary  string        `json:"summary"`
	Detail   string        `json:"detail,omitempty"`
	Priority Priority      `json:"priority"`
	Evidence []EvidenceRef `json:"evidence,omitempty"`
}

// PrioritySection groups summary items of one priority.
type PrioritySection struct {
	Priority Priority      `json:"priority"`
	Items    []SummaryItem `json:"items"`
}

// OpenFlag marks known-incomplete analysis. Every Failed or Skipped stage
// must appear here; compression may shorten but never omit these.
type OpenFlag struct {
	StageID string      `json:"stage_id"`
	Status  StageStatus `json:"status"`
	Reason  string      `json:"reason,omitempty"`
}

// DroppedRef is a traceable pointer to detail removed during compression.
type DroppedRef struct {
	StageID  string   `json:"stage_id"`
	Summary  string   `json:"summary"`
	Priority Priority `json:"priority"`
}

// AggregatedSummary is the fixed-schema, budget-bounded result of a run.
type AggregatedSummary struct {
	CaseID             string            `json:"case_id"`
	Overview           string            `json:"overview"`
	FindingsByPriority []PrioritySection `json:"findings_by_priority"`
	RecommendedActions []string          `json:"recommended_actions"`
	OpenFlags          []OpenFlag        `json:"open_flags"`
	Dropped            []DroppedRef      `json:"dropped,omitempty"`
	SourceResults      []string          `json:"source_results"` // stage ids it derives from
	WordCount          int               `json:"word_count"`
	WordBudget         int               `json:"word_budget"`
}

// =============================================================================
// ORCHESTRATOR STATE (checkpointable)
// =============================================================================

// RoutePlan is the router's decision for one case: ordered waves of stage
// ids that may run concurrently within a wave, plus stages skipped because
// their declared requirements were unmet.
type RoutePlan struct {
	Waves   [][]string        `json:"waves"`
	Skipped map[string]string `json:"skipped,omitempty"` // stage id -> reason
}

// OrchestratorState is the full resumable state of one case run. Reading the
// latest checkpoint for a case must reconstruct this losslessly.
type OrchestratorState struct {
	Case          Case                            `json:"case"`
	Views         map[string]SanitizedView        `json:"views,omitempty"` // capability -> sanitized view
	Selected      map[SelectionMode][]SelectedItem `json:"selected,omitempty"`
	Degraded      []SelectionMode                 `json:"degraded,omitempty"` // sources that were unavailable
	Plan          *RoutePlan                      `json:"plan,omitempty"`
	StageResults  map[string]StageResult          `json:"stage_results,omitempty"`
	Summary       *AggregatedSummary              `json:"summary,omitempty"`
	CheckpointSeq int                             `json:"checkpoint_seq"`
	UpdatedAt     time.Time                       `json:"updated_at"`

	// InterruptedAt records the non-terminal status a cancelled or crashed
	// case was in when it failed, so resume can re-enter there.
	InterruptedAt CaseStatus `json:"interrupted_at,omitempty"`
	FailureReason string     `json:"failure_reason,omitempty"`
}

// CompletedStages lists stages that have reached a terminal per-stage state.
func (s *OrchestratorState) CompletedStages() []string {
	ids := make([]string, 0, len(s.StageResults))
	for id := range s.StageResults {
		ids = append(ids, id)
	}
	return ids
}
