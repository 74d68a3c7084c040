package config

import "time"

// OrchestratorConfig configures the per-case state machine.
type OrchestratorConfig struct {
	// MaxRetries is the retry budget per stage (attempts beyond the first).
	MaxRetries int `yaml:"max_retries"`

	// StageTimeout bounds each stage invocation.
	StageTimeout time.Duration `yaml:"stage_timeout"`

	// PersistTimeout bounds the durable write at Persisting.
	PersistTimeout time.Duration `yaml:"persist_timeout"`

	// CancelDrainTimeout bounds how long cancellation waits for in-flight
	// stages to drain before forcing the Failed transition.
	CancelDrainTimeout time.Duration `yaml:"cancel_drain_timeout"`

	// RetryBackoffBase and RetryBackoffMax shape exponential retry backoff.
	RetryBackoffBase time.Duration `yaml:"retry_backoff_base"`
	RetryBackoffMax  time.Duration `yaml:"retry_backoff_max"`

	// MaxParallelStages bounds concurrent stage executions within a wave.
	MaxParallelStages int `yaml:"max_parallel_stages"`
}

// DefaultOrchestratorConfig returns sensible defaults.
func DefaultOrchestratorConfig() OrchestratorConfig {
	return OrchestratorConfig{
		MaxRetries:         3,
		StageTimeout:       2 * time.Minute,
		PersistTimeout:     30 * time.Second,
		CancelDrainTimeout: 10 * time.Second,
		RetryBackoffBase:   200 * time.Millisecond,
		RetryBackoffMax:    10 * time.Second,
		MaxParallelStages:  4,
	}
}
