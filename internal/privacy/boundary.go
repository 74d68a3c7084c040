// Package privacy implements the de-identification boundary. No raw case
// data crosses into an analysis stage without passing through here first.
// The boundary fails closed: a field that cannot be classified as allowed
// or denied is refused, never passed through unreviewed.
package privacy

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"sync"

	"caseflow/internal/config"
	"caseflow/internal/logging"
	"caseflow/internal/types"
)

// Boundary enforces the deny/allow field classification table and owns the
// one-way subject hash. It never touches the secured re-identification
// mapping; that lives behind separate access control entirely.
type Boundary struct {
	mu      sync.RWMutex
	table   *Table
	hashKey []byte
	watcher *tableWatcher
}

// NewBoundary builds a boundary from configuration. The classification
// table is loaded from cfg.TablePath when set, otherwise the built-in deny
// list alone applies, which classifies nothing as allowed: every stage
// view stays empty until a table is provided.
func NewBoundary(cfg config.PrivacyConfig) (*Boundary, error) {
	if cfg.HashKey == "" {
		return nil, fmt.Errorf("privacy: hash key is required (set %s)", config.EnvHashKey)
	}

	table := emptyTable(cfg.DenyFields)
	if cfg.TablePath != "" {
		loaded, err := LoadTable(cfg.TablePath)
		if err != nil {
			return nil, fmt.Errorf("privacy: failed to load classification table: %w", err)
		}
		loaded.Deny = append(loaded.Deny, cfg.DenyFields...)
		table = loaded
	}

	b := &Boundary{
		table:   table,
		hashKey: []byte(cfg.HashKey),
	}

	if cfg.WatchTable && cfg.TablePath != "" {
		w, err := watchTable(cfg.TablePath, b.swapTable)
		if err != nil {
			return nil, err
		}
		b.watcher = w
	}
	return b, nil
}

// Close stops the table watcher if one is running.
func (b *Boundary) Close() error {
	if b.watcher != nil {
		return b.watcher.close()
	}
	return nil
}

// swapTable installs a freshly reloaded classification table.
func (b *Boundary) swapTable(t *Table) {
	b.mu.Lock()
	b.table = t
	b.mu.Unlock()
	logging.Privacy("classification table reloaded: %d capabilities, %d denied fields",
		len(t.Capabilities), len(t.Deny))
	logging.Audit(logging.AuditEvent{
		EventType: logging.AuditTableReloaded,
		Actor:     "privacy.Boundary",
		Category:  "classification_table",
		Action:    "reload classification table",
		Success:   true,
	})
}

// HashSubject maps a raw identifier to an opaque id. One-way, deterministic
// per installation key: the same raw id always hashes to the same opaque id,
// which enables cross-case linking without exposing identity.
func (b *Boundary) HashSubject(caseID, rawID string) string {
	mac := hmac.New(sha256.New, b.hashKey)
	mac.Write([]byte(rawID))
	opaque := "subj_" + hex.EncodeToString(mac.Sum(nil))[:32]

	logging.Audit(logging.AuditEvent{
		EventType: logging.AuditSubjectHash,
		Actor:     "privacy.Boundary",
		CaseID:    caseID,
		Category:  "subject_identifier",
		Action:    "hash subject identifier",
		Success:   true,
	})
	return opaque
}

// Deidentify produces the view a single capability is entitled to. Every
// field on the raw case must classify as either denied or allowed for some
// capability; an unclassifiable field halts the case with a high-severity
// audit entry.
func (b *Boundary) Deidentify(caseID string, raw types.RawCase, capability string) (*types.SanitizedView, error) {
	b.mu.RLock()
	table := b.table
	b.mu.RUnlock()

	allowed := table.allowedFor(capability)
	denyValues := b.collectDenyValues(table, raw)

	fields := make(map[string]string)
	for name, value := range raw.Fields {
		switch table.classify(name, capability) {
		case classDenied:
			continue // stripped
		case classAllowed:
			fields[name] = redact(value, denyValues)
		case classAllowedElsewhere:
			continue // classified, just not for this capability
		default:
			// Fail closed: refuse the field rather than pass it unreviewed.
			err := types.PrivacyViolationf("unclassified field %q", name)
			logging.Audit(logging.AuditEvent{
				EventType: logging.AuditPrivacyBlock,
				Actor:     "privacy.Boundary",
				CaseID:    caseID,
				Category:  "field:" + name,
				Action:    "block unclassified field",
				Severity:  logging.SeverityHigh,
				Success:   false,
				Error:     err.Error(),
			})
			return nil, err
		}
	}

	facts := redactFacts(raw.Facts, denyValues)

	view := &types.SanitizedView{
		Capability: capability,
		SubjectRef: b.HashSubject(caseID, raw.SubjectID),
		Fields:     fields,
		Facts:      facts,
	}

	logging.Audit(logging.AuditEvent{
		EventType: logging.AuditDeidentify,
		Actor:     "privacy.Boundary",
		CaseID:    caseID,
		Category:  "capability:" + capability,
		Action:    fmt.Sprintf("deidentify for %s (%d/%d fields passed)", capability, len(fields), len(raw.Fields)),
		Success:   true,
		Fields:    map[string]any{"allowed": len(allowed), "passed": len(fields)},
	})
	return view, nil
}

// SanitizeFacts redacts deny-listed values out of the intake facts without
// building a capability view. Callers that hold no capability views still
// must not let raw fact text reach durable storage.
func (b *Boundary) SanitizeFacts(raw types.RawCase) []types.IntakeFact {
	b.mu.RLock()
	table := b.table
	b.mu.RUnlock()
	return redactFacts(raw.Facts, b.collectDenyValues(table, raw))
}

// collectDenyValues gathers the concrete values of denied fields plus the
// raw subject id, so free-text fields carrying them can be redacted.
func (b *Boundary) collectDenyValues(table *Table, raw types.RawCase) []string {
	values := make([]string, 0, len(table.Deny)+1)
	if raw.SubjectID != "" {
		values = append(values, raw.SubjectID)
	}
	for name, value := range raw.Fields {
		if table.isDenied(name) && strings.TrimSpace(value) != "" {
			values = append(values, value)
		}
	}
	// Longest first so overlapping values redact fully.
	sort.Slice(values, func(i, j int) bool { return len(values[i]) > len(values[j]) })
	return values
}

// redactFacts returns a copy of facts with deny-listed values redacted.
func redactFacts(facts []types.IntakeFact, denyValues []string) []types.IntakeFact {
	out := make([]types.IntakeFact, len(facts))
	for i, f := range facts {
		f.Value = redact(f.Value, denyValues)
		out[i] = f
	}
	return out
}

// redact replaces any occurrence of a deny-listed value inside free text.
func redact(text string, denyValues []string) string {
	for _, v := range denyValues {
		if v == "" {
			continue
		}
		text = strings.ReplaceAll(text, v, "[REDACTED]")
	}
	return text
}
