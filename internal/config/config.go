// Package config holds all caseflow configuration. Each concern gets its own
// sub-config with a Default*Config constructor so components can be built
// standalone in tests.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// EnvHashKey overrides the subject hashing secret so it never has to live in
// the config file.
const EnvHashKey = "CASEFLOW_HASH_KEY"

// Config holds all caseflow configuration.
type Config struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// DataDir is the root for databases, audit trail, and logs.
	DataDir string `yaml:"data_dir"`

	Privacy      PrivacyConfig      `yaml:"privacy"`
	Memory       MemoryConfig       `yaml:"memory"`
	Selector     SelectorConfig     `yaml:"selector"`
	Aggregate    AggregateConfig    `yaml:"aggregate"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`
	Logging      LoggingConfig      `yaml:"logging"`
}

// LoggingConfig configures log output.
type LoggingConfig struct {
	Verbose   bool   `yaml:"verbose"`
	AuditPath string `yaml:"audit_path"` // JSONL audit trail, append-only
}

// Default returns a complete configuration rooted at dataDir.
func Default(dataDir string) *Config {
	return &Config{
		Name:    "caseflow",
		Version: "1.0.0",
		DataDir: dataDir,
		Privacy: DefaultPrivacyConfig(),
		Memory:  DefaultMemoryConfig(dataDir),
		Selector: DefaultSelectorConfig(),
		Aggregate: DefaultAggregateConfig(),
		Orchestrator: DefaultOrchestratorConfig(),
		Logging: LoggingConfig{
			AuditPath: filepath.Join(dataDir, "audit.jsonl"),
		},
	}
}

// Load reads configuration from a yaml file, applies environment overrides,
// and fills unset fields from defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := Default(filepath.Dir(path))
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.applyEnv()
	return cfg, nil
}

// Save writes the configuration to a yaml file. The hashing key is cleared
// first; it belongs in the environment, not on disk.
func (c *Config) Save(path string) error {
	clone := *c
	clone.Privacy.HashKey = ""

	data, err := yaml.Marshal(&clone)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// applyEnv applies environment variable overrides.
func (c *Config) applyEnv() {
	if key := os.Getenv(EnvHashKey); key != "" {
		c.Privacy.HashKey = key
	}
}
