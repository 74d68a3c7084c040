package privacy

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Table is the deny/allow field classification table. It is configuration,
// loaded externally; the schema of raw case fields is owned by the intake
// collaborator, so the table is the only place field semantics are known.
type Table struct {
	// Deny lists fields that are always stripped.
	Deny []string `yaml:"deny"`

	// Capabilities maps a stage capability tag to the fields it may see.
	Capabilities map[string][]string `yaml:"capabilities"`
}

// classification is the outcome of classifying one field for one capability.
type classification int

const (
	classUnclassified classification = iota
	classDenied
	classAllowed           // allowed for the requested capability
	classAllowedElsewhere  // classified under some other capability
)

// emptyTable builds a table carrying only the built-in deny list.
func emptyTable(deny []string) *Table {
	return &Table{Deny: deny, Capabilities: map[string][]string{}}
}

// LoadTable reads a classification table from a yaml file.
func LoadTable(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read table: %w", err)
	}
	var t Table
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("failed to parse table: %w", err)
	}
	if t.Capabilities == nil {
		t.Capabilities = map[string][]string{}
	}
	return &t, nil
}

// isDenied reports whether a field name is on the deny list. Matching is
// case-insensitive on the normalized name.
func (t *Table) isDenied(name string) bool {
	n := normalize(name)
	for _, d := range t.Deny {
		if normalize(d) == n {
			return true
		}
	}
	return false
}

// allowedFor returns the allow list for one capability.
func (t *Table) allowedFor(capability string) []string {
	return t.Capabilities[capability]
}

// classify decides what happens to one field for one capability.
// Deny wins over allow; a field listed nowhere is unclassified.
func (t *Table) classify(name, capability string) classification {
	if t.isDenied(name) {
		return classDenied
	}
	n := normalize(name)
	allowedHere := false
	allowedAnywhere := false
	for cap, fields := range t.Capabilities {
		for _, f := range fields {
			if normalize(f) == n {
				allowedAnywhere = true
				if cap == capability {
					allowedHere = true
				}
			}
		}
	}
	switch {
	case allowedHere:
		return classAllowed
	case allowedAnywhere:
		return classAllowedElsewhere
	default:
		return classUnclassified
	}
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
