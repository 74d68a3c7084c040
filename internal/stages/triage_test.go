package stages

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"caseflow/internal/types"
)

func runTriage(t *testing.T, input types.StageInput) types.StageResult {
	t.Helper()
	r := NewRegistry()
	RegisterTriage(r)
	stage, err := r.Spawn("triage")
	require.NoError(t, err)

	result, err := stage.Execute(context.Background(), input)
	require.NoError(t, err)
	return result
}

func findingFor(result types.StageResult, keyword string) (types.Finding, bool) {
	for _, f := range result.Findings {
		if strings.Contains(f.Summary, keyword) {
			return f, true
		}
	}
	return types.Finding{}, false
}

func TestTriageGradesSymptoms(t *testing.T) {
	result := runTriage(t, types.StageInput{
		CaseID: "case_1",
		Fields: map[string]string{"symptoms": "crushing chest pain, then dyspnea"},
	})

	require.Equal(t, types.StageOk, result.Status)

	chestPain, ok := findingFor(result, "chest pain")
	require.True(t, ok, "chest pain must be graded")
	assert.Equal(t, types.PriorityEmergent, chestPain.Priority)

	dyspnea, ok := findingFor(result, "dyspnea")
	require.True(t, ok, "dyspnea must be graded")
	assert.Equal(t, types.PriorityUrgent, dyspnea.Priority)
}

func TestTriageGradesFacts(t *testing.T) {
	result := runTriage(t, types.StageInput{
		CaseID: "case_1",
		Fields: map[string]string{"symptoms": ""},
		Facts:  []types.IntakeFact{{Kind: "symptom", Value: "patient had a seizure"}},
	})

	seizure, ok := findingFor(result, "seizure")
	require.True(t, ok)
	assert.Equal(t, types.PriorityUrgent, seizure.Priority)
}

func TestTriageNoMatchIsInformational(t *testing.T) {
	result := runTriage(t, types.StageInput{
		CaseID: "case_1",
		Fields: map[string]string{"symptoms": "feeling fine"},
	})

	require.Len(t, result.Findings, 1)
	assert.Equal(t, types.PriorityInformational, result.Findings[0].Priority)
	assert.Less(t, result.Confidence, 0.5, "no-match grading carries reduced confidence")
}

func TestTriageFindingsOrderDeterministic(t *testing.T) {
	input := types.StageInput{
		CaseID: "case_1",
		Fields: map[string]string{"symptoms": "rash and nausea and headache after chest pain"},
	}

	summaries := func(result types.StageResult) []string {
		out := make([]string, len(result.Findings))
		for i, f := range result.Findings {
			out[i] = f.Summary
		}
		return out
	}

	first := summaries(runTriage(t, input))
	for i := 0; i < 50; i++ {
		assert.Equal(t, first, summaries(runTriage(t, input)),
			"identical inputs must yield identically ordered findings")
	}

	// Priority rank first, keyword order within a rank.
	require.Len(t, first, 4)
	assert.Contains(t, first[0], "chest pain")
	assert.Contains(t, first[1], "headache")
	assert.Contains(t, first[2], "nausea")
	assert.Contains(t, first[3], "rash")
}

func TestTriageCitesSelectedContext(t *testing.T) {
	result := runTriage(t, types.StageInput{
		CaseID: "case_1",
		Fields: map[string]string{"symptoms": "dyspnea on exertion"},
		Context: []types.SelectedItem{
			{ID: "doc1", Mode: types.ModeReference, Content: "dyspnea triage guideline"},
			{ID: "doc2", Mode: types.ModeReference, Content: "unrelated billing note"},
		},
	})

	require.Len(t, result.Evidence, 1)
	assert.Equal(t, types.EvidenceRef{Mode: types.ModeReference, ID: "doc1"}, result.Evidence[0])
}
