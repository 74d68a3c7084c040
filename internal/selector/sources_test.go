package selector

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"caseflow/internal/config"
	"caseflow/internal/logging"
	"caseflow/internal/memory"
	"caseflow/internal/types"
)

func TestDocumentSourceScoresAndFilters(t *testing.T) {
	old := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	recent := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	src := NewDocumentSource([]types.SelectedItem{
		{ID: "match", Content: "dyspnea management guideline", Timestamp: recent},
		{ID: "stale", Content: "dyspnea protocol", Timestamp: old},
		{ID: "unrelated", Content: "billing codes", Timestamp: recent},
	})

	items, err := src.Search(context.Background(), types.SelectionQuery{
		Terms: []string{"dyspnea"},
		Since: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "match", items[0].ID)
	assert.Greater(t, items[0].Score, 0.0)
}

func TestLoadDocumentSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reference.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
documents:
  - id: guideline_1
    content: dyspnea management guideline
    timestamp: 2026-06-01T00:00:00Z
  - id: guideline_2
    content: billing codes
`), 0o644))

	src, err := LoadDocumentSource(path)
	require.NoError(t, err)

	items, err := src.Search(context.Background(), types.SelectionQuery{Terms: []string{"dyspnea"}})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "guideline_1", items[0].ID)
}

func TestLoadDocumentSourceRejectsMissingID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("documents:\n  - content: orphaned\n"), 0o644))
	_, err := LoadDocumentSource(path)
	require.Error(t, err)
}

func TestHistorySourceScopesBySubject(t *testing.T) {
	logging.InitAuditMemory()
	store, err := memory.New(config.MemoryConfig{
		DatabasePath: filepath.Join(t.TempDir(), "test.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	write := func(ns, key string, payload any) {
		require.NoError(t, store.Write(context.Background(), types.TierLongTerm, ns, key, payload, "tester"))
	}
	write("subj_a/summary", "case_1", map[string]string{"overview": "recurrent dyspnea"})
	write("subj_a/case", "case_1", map[string]string{"status": "complete"})
	write("subj_b/summary", "case_2", map[string]string{"overview": "dyspnea episode"})

	src := NewHistorySource(store)
	items, err := src.Search(context.Background(), types.SelectionQuery{
		Terms:   []string{"dyspnea"},
		Filters: map[string]string{"subject_ref": "subj_a"},
	})
	require.NoError(t, err)
	require.Len(t, items, 1, "only summary entries under the subject prefix qualify")
	assert.Equal(t, "subj_a/summary/case_1", items[0].ID)
}

func TestSignalSourceScoresByCount(t *testing.T) {
	logging.InitAuditMemory()
	store, err := memory.New(config.MemoryConfig{
		DatabasePath: filepath.Join(t.TempDir(), "test.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	_, err = store.IncrementSignal(context.Background(), "findings/urgent", 4)
	require.NoError(t, err)
	_, err = store.IncrementSignal(context.Background(), "findings/other", 9)
	require.NoError(t, err)

	src := NewSignalSource(store)
	items, err := src.Search(context.Background(), types.SelectionQuery{Terms: []string{"urgent"}})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "signal/findings/urgent", items[0].ID)
	assert.Equal(t, 4.0, items[0].Score)
}
