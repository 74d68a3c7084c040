package config

// PrivacyConfig configures the privacy boundary.
type PrivacyConfig struct {
	// HashKey is the installation-wide secret for subject hashing. Usually
	// injected via CASEFLOW_HASH_KEY rather than the config file.
	HashKey string `yaml:"hash_key,omitempty"`

	// TablePath points at the deny/allow field classification table
	// (yaml, loaded externally; hot-reloaded when it changes).
	TablePath string `yaml:"table_path"`

	// DenyFields are always stripped regardless of the table.
	DenyFields []string `yaml:"deny_fields"`

	// WatchTable enables fsnotify reload of the classification table.
	WatchTable bool `yaml:"watch_table"`
}

// DefaultPrivacyConfig returns sensible defaults. The built-in deny list
// covers direct identifiers; installations extend it via the table.
func DefaultPrivacyConfig() PrivacyConfig {
	return PrivacyConfig{
		DenyFields: []string{
			"name", "patient_name", "reporter_name",
			"subject_id", "medical_record_number",
			"phone", "email", "address", "date_of_birth",
		},
	}
}
