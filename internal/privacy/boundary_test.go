package privacy

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"caseflow/internal/config"
	"caseflow/internal/logging"
	"caseflow/internal/types"
)

const testTable = `
deny:
  - name
  - phone
capabilities:
  cardiac:
    - symptoms
    - medications
  demographics:
    - age
`

func writeTable(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "table.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func newTestBoundary(t *testing.T) *Boundary {
	t.Helper()
	logging.InitAuditMemory()
	b, err := NewBoundary(config.PrivacyConfig{
		HashKey:   "test-key",
		TablePath: writeTable(t, testTable),
	})
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })
	return b
}

func TestNewBoundaryRequiresHashKey(t *testing.T) {
	_, err := NewBoundary(config.PrivacyConfig{})
	require.Error(t, err)
}

func TestHashSubjectDeterministic(t *testing.T) {
	b := newTestBoundary(t)

	first := b.HashSubject("case_1", "patient-42")
	second := b.HashSubject("case_2", "patient-42")
	assert.Equal(t, first, second, "same raw id must hash to the same opaque id across cases")
	assert.True(t, strings.HasPrefix(first, "subj_"))
	assert.NotContains(t, first, "patient-42")
}

func TestHashSubjectCollisionFree(t *testing.T) {
	b := newTestBoundary(t)

	seen := make(map[string]string, 10000)
	for i := 0; i < 10000; i++ {
		raw := fmt.Sprintf("patient-%d", i)
		opaque := b.HashSubject("case_1", raw)
		if prev, dup := seen[opaque]; dup {
			t.Fatalf("collision: %q and %q both hash to %s", prev, raw, opaque)
		}
		seen[opaque] = raw
	}
}

func TestDeidentifyStripsDeniedFields(t *testing.T) {
	b := newTestBoundary(t)

	raw := types.RawCase{
		SubjectID: "patient-42",
		Fields: map[string]string{
			"name":     "John Doe",
			"phone":    "555-0100",
			"symptoms": "chest pain reported by John Doe, contact 555-0100",
			"age":      "63",
		},
		Facts: []types.IntakeFact{
			{Kind: "symptom", Value: "John Doe collapsed, patient-42 unresponsive"},
		},
	}

	view, err := b.Deidentify("case_1", raw, "cardiac")
	require.NoError(t, err)

	assert.NotContains(t, view.Fields, "name")
	assert.NotContains(t, view.Fields, "phone")
	assert.NotContains(t, view.Fields, "age", "fields allowed for other capabilities must not leak")
	require.Contains(t, view.Fields, "symptoms")

	// Deny-listed values are redacted everywhere, including free text and
	// the raw subject id.
	blob, err := json.Marshal(view)
	require.NoError(t, err)
	for _, leaked := range []string{"John Doe", "555-0100", "patient-42"} {
		assert.NotContains(t, string(blob), leaked)
	}
	assert.Contains(t, view.Fields["symptoms"], "[REDACTED]")
	assert.Contains(t, view.Facts[0].Value, "[REDACTED]")
}

func TestDeidentifyFailsClosedOnUnclassifiedField(t *testing.T) {
	b := newTestBoundary(t)

	raw := types.RawCase{
		SubjectID: "patient-42",
		Fields:    map[string]string{"favorite_color": "blue"},
	}
	_, err := b.Deidentify("case_1", raw, "cardiac")
	require.ErrorIs(t, err, types.ErrPrivacyViolation)

	blocks := logging.ReadAudit(logging.AuditFilter{EventType: logging.AuditPrivacyBlock})
	require.NotEmpty(t, blocks)
	assert.Equal(t, logging.SeverityHigh, blocks[len(blocks)-1].Severity)
}

func TestSanitizeFactsRedactsWithoutCapabilityView(t *testing.T) {
	b := newTestBoundary(t)

	raw := types.RawCase{
		SubjectID: "patient-42",
		Fields: map[string]string{
			"name":     "John Doe",
			"symptoms": "chest pain",
		},
		Facts: []types.IntakeFact{
			{Kind: "symptom", Value: "John Doe reported chest pain, patient-42 admitted"},
		},
	}

	facts := b.SanitizeFacts(raw)
	require.Len(t, facts, 1)
	assert.NotContains(t, facts[0].Value, "John Doe")
	assert.NotContains(t, facts[0].Value, "patient-42")
	assert.Contains(t, facts[0].Value, "chest pain")
	assert.Equal(t, "John Doe reported chest pain, patient-42 admitted", raw.Facts[0].Value,
		"the raw case is never mutated")
}

func TestClassifyDenyWinsOverAllow(t *testing.T) {
	table := &Table{
		Deny:         []string{"symptoms"},
		Capabilities: map[string][]string{"cardiac": {"symptoms"}},
	}
	if got := table.classify("symptoms", "cardiac"); got != classDenied {
		t.Fatalf("deny must win over allow, got %d", got)
	}
	if got := table.classify("Symptoms ", "cardiac"); got != classDenied {
		t.Fatalf("classification must normalize names, got %d", got)
	}
}

func TestEmptyTableAllowsNothing(t *testing.T) {
	logging.InitAuditMemory()
	b, err := NewBoundary(config.PrivacyConfig{
		HashKey:    "test-key",
		DenyFields: []string{"name"},
	})
	require.NoError(t, err)

	raw := types.RawCase{
		SubjectID: "patient-42",
		Fields:    map[string]string{"name": "John Doe"},
		Facts:     []types.IntakeFact{{Kind: "symptom", Value: "rash"}},
	}
	view, err := b.Deidentify("case_1", raw, "cardiac")
	require.NoError(t, err)
	assert.Empty(t, view.Fields, "without a classification table no field may pass")
}
