package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsComplete(t *testing.T) {
	cfg := Default("/tmp/caseflow-test")

	assert.Equal(t, filepath.Join("/tmp/caseflow-test", "caseflow.db"), cfg.Memory.DatabasePath)
	assert.NotEmpty(t, cfg.Privacy.DenyFields)
	assert.Positive(t, cfg.Selector.HistoryK)
	assert.Positive(t, cfg.Aggregate.WordBudget)
	assert.Positive(t, cfg.Orchestrator.MaxRetries)
	assert.NotEmpty(t, cfg.Logging.AuditPath)
}

func TestLoadAppliesEnvOverride(t *testing.T) {
	t.Setenv(EnvHashKey, "env-secret")

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("name: caseflow\naggregate:\n  word_budget: 250\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 250, cfg.Aggregate.WordBudget)
	assert.Equal(t, "env-secret", cfg.Privacy.HashKey)
}

func TestSaveNeverWritesHashKey(t *testing.T) {
	cfg := Default(t.TempDir())
	cfg.Privacy.HashKey = "do-not-persist"

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, cfg.Save(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "do-not-persist")
	assert.Equal(t, "do-not-persist", cfg.Privacy.HashKey, "the in-memory config keeps its key")
}

func TestKForPerMode(t *testing.T) {
	cfg := DefaultSelectorConfig()
	assert.Equal(t, cfg.HistoryK, cfg.KFor("history"))
	assert.Equal(t, cfg.SignalK, cfg.KFor("signal"))
	assert.Equal(t, 5, cfg.KFor("unknown-mode"))
}
