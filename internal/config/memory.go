package config

import "path/filepath"

// MemoryConfig configures the tiered memory store.
type MemoryConfig struct {
	// DatabasePath is the sqlite file backing the session and long-term
	// tiers. The scratchpad tier is in-process by design.
	DatabasePath string `yaml:"database_path"`

	// ScratchpadLimit bounds entries per case run in the scratchpad tier.
	ScratchpadLimit int `yaml:"scratchpad_limit"`
}

// DefaultMemoryConfig returns sensible defaults rooted at dataDir.
func DefaultMemoryConfig(dataDir string) MemoryConfig {
	return MemoryConfig{
		DatabasePath:    filepath.Join(dataDir, "caseflow.db"),
		ScratchpadLimit: 1000,
	}
}
