package stages

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"caseflow/internal/types"
)

// =============================================================================
// TRIAGE STAGE (built-in reference implementation)
// =============================================================================
// Domain stages (coding rules, causality scoring, clinical reasoning) are
// registered externally. Triage ships in-core as a working reference for
// the stage contract: it grades intake facts against a keyword table and
// emits priority-ranked findings with evidence references into the
// selected context.

// TriageStage assigns an initial urgency grade to a case.
type TriageStage struct {
	id      string
	profile Profile
	table   map[string]types.Priority
}

// DefaultTriageKeywords maps symptom keywords to priorities.
var DefaultTriageKeywords = map[string]types.Priority{
	"cardiac arrest": types.PriorityEmergent,
	"anaphylaxis":    types.PriorityEmergent,
	"unresponsive":   types.PriorityEmergent,
	"chest pain":     types.PriorityEmergent,
	"dyspnea":        types.PriorityUrgent,
	"syncope":        types.PriorityUrgent,
	"seizure":        types.PriorityUrgent,
	"rash":           types.PriorityOther,
	"nausea":         types.PriorityOther,
	"headache":       types.PriorityOther,
}

// NewTriageStage builds the reference triage stage.
func NewTriageStage(id string, profile Profile) Stage {
	return &TriageStage{id: id, profile: profile, table: DefaultTriageKeywords}
}

// TriageProfile is the contract the reference stage declares.
func TriageProfile() Profile {
	return Profile{
		Capability:      "triage",
		RequiredFields:  []string{"symptoms"},
		RequiredContext: []types.SelectionMode{types.ModeReference},
		Produces:        "urgency_grade",
	}
}

// RegisterTriage wires the reference stage into a registry.
func RegisterTriage(r *Registry) {
	r.RegisterStage("triage", NewTriageStage)
	r.DefineProfile("triage", TriageProfile())
}

// Execute grades each fact and the symptoms field against the keyword table.
func (t *TriageStage) Execute(ctx context.Context, input types.StageInput) (types.StageResult, error) {
	if err := ctx.Err(); err != nil {
		return types.StageResult{}, err
	}

	result := types.StageResult{
		StageID:    t.id,
		Status:     types.StageOk,
		Confidence: 0.8,
	}

	graded := map[string]types.Priority{}
	texts := []string{input.Fields["symptoms"]}
	for _, f := range input.Facts {
		texts = append(texts, f.Value)
	}

	for _, text := range texts {
		lower := strings.ToLower(text)
		for keyword, priority := range t.table {
			if !strings.Contains(lower, keyword) {
				continue
			}
			if prev, seen := graded[keyword]; seen && prev.Rank() <= priority.Rank() {
				continue
			}
			graded[keyword] = priority
		}
	}

	if len(graded) == 0 {
		result.Findings = append(result.Findings, types.Finding{
			Summary:  "no graded symptoms matched",
			Priority: types.PriorityInformational,
		})
		result.Confidence = 0.4
		return result, nil
	}

	// Findings are emitted in a fixed order (priority rank, then keyword)
	// so identical inputs always yield identical results.
	keywords := make([]string, 0, len(graded))
	for keyword := range graded {
		keywords = append(keywords, keyword)
	}
	sort.Slice(keywords, func(i, j int) bool {
		ri, rj := graded[keywords[i]].Rank(), graded[keywords[j]].Rank()
		if ri != rj {
			return ri < rj
		}
		return keywords[i] < keywords[j]
	})

	for _, keyword := range keywords {
		priority := graded[keyword]
		finding := types.Finding{
			Summary:  fmt.Sprintf("symptom %q graded %s", keyword, priority),
			Priority: priority,
		}
		for _, item := range input.Context {
			if strings.Contains(strings.ToLower(item.Content), keyword) {
				finding.Detail = "supported by selected context"
				result.Evidence = append(result.Evidence, types.EvidenceRef{Mode: item.Mode, ID: item.ID})
			}
		}
		result.Findings = append(result.Findings, finding)
	}
	return result, nil
}
