package config

// AggregateConfig configures summary compression.
type AggregateConfig struct {
	// WordBudget bounds the rendered summary size.
	WordBudget int `yaml:"word_budget"`

	// MinRetainedPriority names the lowest priority that may never be
	// dropped during compression: emergent, urgent, other, informational.
	MinRetainedPriority string `yaml:"min_retained_priority"`

	// MaxCompressionPasses bounds how many stricter drop passes run before
	// the compressor escalates a budget failure.
	MaxCompressionPasses int `yaml:"max_compression_passes"`
}

// DefaultAggregateConfig returns sensible defaults.
func DefaultAggregateConfig() AggregateConfig {
	return AggregateConfig{
		WordBudget:           400,
		MinRetainedPriority:  "urgent",
		MaxCompressionPasses: 3,
	}
}
