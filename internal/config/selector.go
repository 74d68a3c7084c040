package config

import "time"

// SelectorConfig configures bounded context selection. Each of the four
// query modes carries its own result bound.
type SelectorConfig struct {
	HistoryK    int `yaml:"history_k"`    // historical cases
	ReferenceK  int `yaml:"reference_k"`  // reference documents
	LiteratureK int `yaml:"literature_k"` // external knowledge base
	SignalK     int `yaml:"signal_k"`     // aggregate-signal state

	// QueryTimeout bounds each source query.
	QueryTimeout time.Duration `yaml:"query_timeout"`

	// ReferenceDocsPath and LiteratureDocsPath point at yaml document sets
	// backing the reference and literature modes. An empty path leaves the
	// mode unsourced, so every selection degrades it.
	ReferenceDocsPath  string `yaml:"reference_docs_path"`
	LiteratureDocsPath string `yaml:"literature_docs_path"`
}

// DefaultSelectorConfig returns sensible defaults.
func DefaultSelectorConfig() SelectorConfig {
	return SelectorConfig{
		HistoryK:     10,
		ReferenceK:   5,
		LiteratureK:  5,
		SignalK:      3,
		QueryTimeout: 15 * time.Second,
	}
}

// KFor returns the configured bound for a mode name, defaulting to 5.
func (c SelectorConfig) KFor(mode string) int {
	switch mode {
	case "history":
		return c.HistoryK
	case "reference":
		return c.ReferenceK
	case "literature":
		return c.LiteratureK
	case "signal":
		return c.SignalK
	default:
		return 5
	}
}
