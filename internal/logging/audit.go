// Package logging: audit trail. Audit events are structured, append-only
// records of every privacy-sensitive action. They are never mutated or
// deleted; the sink only ever appends.
package logging

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// =============================================================================
// AUDIT EVENT TYPES
// =============================================================================

// AuditEventType defines the type of audit event.
type AuditEventType string

const (
	// Privacy boundary events
	AuditDeidentify    AuditEventType = "deidentify"
	AuditSubjectHash   AuditEventType = "subject_hash"
	AuditPrivacyBlock  AuditEventType = "privacy_block"
	AuditTableReloaded AuditEventType = "table_reloaded"

	// Case lifecycle events
	AuditCaseIntake     AuditEventType = "case_intake"
	AuditCaseTransition AuditEventType = "case_transition"
	AuditCaseComplete   AuditEventType = "case_complete"
	AuditCaseFailed     AuditEventType = "case_failed"
	AuditCaseCancelled  AuditEventType = "case_cancelled"
	AuditCaseResumed    AuditEventType = "case_resumed"

	// Memory events
	AuditMemoryWrite      AuditEventType = "memory_write"
	AuditMemoryConflict   AuditEventType = "memory_conflict"
	AuditCheckpoint       AuditEventType = "checkpoint"
	AuditScratchpadPurge  AuditEventType = "scratchpad_purge"
	AuditSignalIncrement  AuditEventType = "signal_increment"

	// Selection and stage events
	AuditSelection     AuditEventType = "selection"
	AuditStageDispatch AuditEventType = "stage_dispatch"
	AuditStageResult   AuditEventType = "stage_result"
)

// Severity grades audit events. Privacy blocks are always high.
type Severity string

const (
	SeverityInfo Severity = "info"
	SeverityWarn Severity = "warn"
	SeverityHigh Severity = "high"
)

// AuditEvent is one append-only audit record.
type AuditEvent struct {
	Timestamp time.Time      `json:"ts"`
	EventType AuditEventType `json:"event"`
	Actor     string         `json:"actor"`    // component identity
	CaseID    string         `json:"case_id"`  // case correlation
	Category  string         `json:"category"` // data category touched
	Action    string         `json:"action"`   // human-readable action
	Severity  Severity       `json:"severity"`
	Success   bool           `json:"success"`
	Error     string         `json:"error,omitempty"`
	Fields    map[string]any `json:"fields,omitempty"`
}

// =============================================================================
// AUDIT SINK
// =============================================================================

// AuditSink appends events to a JSONL file and keeps an in-memory trail for
// read-back. The file handle is opened append-only.
type AuditSink struct {
	mu    sync.Mutex
	file  *os.File
	trail []AuditEvent
}

var (
	auditMu   sync.RWMutex
	auditSink *AuditSink
)

// InitAudit opens the audit file and installs the global sink.
func InitAudit(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create audit directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open audit file: %w", err)
	}
	auditMu.Lock()
	defer auditMu.Unlock()
	if auditSink != nil && auditSink.file != nil {
		auditSink.file.Close()
	}
	auditSink = &AuditSink{file: f}
	return nil
}

// InitAuditMemory installs a file-less sink. Used by tests and library
// embedders that only need the in-memory trail.
func InitAuditMemory() {
	auditMu.Lock()
	defer auditMu.Unlock()
	if auditSink != nil && auditSink.file != nil {
		auditSink.file.Close()
	}
	auditSink = &AuditSink{}
}

// Audit appends one event. Events are timestamped here if unset.
func Audit(ev AuditEvent) {
	auditMu.RLock()
	sink := auditSink
	auditMu.RUnlock()
	if sink == nil {
		return
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	if ev.Severity == "" {
		ev.Severity = SeverityInfo
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	sink.trail = append(sink.trail, ev)
	if sink.file != nil {
		line, err := json.Marshal(ev)
		if err != nil {
			Get(CategoryAudit).Errorf("failed to marshal audit event: %v", err)
			return
		}
		if _, err := sink.file.Write(append(line, '\n')); err != nil {
			Get(CategoryAudit).Errorf("failed to append audit event: %v", err)
		}
	}
}

// AuditFilter narrows ReadAudit results. Zero values match everything.
type AuditFilter struct {
	CaseID    string
	EventType AuditEventType
	Severity  Severity
}

// ReadAudit returns a copy of the in-memory trail matching the filter, in
// append order.
func ReadAudit(filter AuditFilter) []AuditEvent {
	auditMu.RLock()
	sink := auditSink
	auditMu.RUnlock()
	if sink == nil {
		return nil
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	out := make([]AuditEvent, 0, len(sink.trail))
	for _, ev := range sink.trail {
		if filter.CaseID != "" && ev.CaseID != filter.CaseID {
			continue
		}
		if filter.EventType != "" && ev.EventType != filter.EventType {
			continue
		}
		if filter.Severity != "" && ev.Severity != filter.Severity {
			continue
		}
		out = append(out, ev)
	}
	return out
}

// CloseAudit flushes and closes the audit file.
func CloseAudit() error {
	auditMu.Lock()
	defer auditMu.Unlock()
	if auditSink == nil || auditSink.file == nil {
		return nil
	}
	err := auditSink.file.Close()
	auditSink.file = nil
	return err
}
