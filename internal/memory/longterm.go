package memory

import (
	"context"
	"fmt"
	"strings"

	"caseflow/internal/logging"
	"caseflow/internal/types"
)

// =============================================================================
// LONG-TERM TIER (durable, append-only, conflict-checked)
// =============================================================================

// writeLongTerm inserts an entry. Each (namespace, key) is written at most
// once; a second write surfaces types.ErrPersistenceConflict instead of
// silently overwriting. Corrections are new entries referencing the old one.
func (s *TieredStore) writeLongTerm(ctx context.Context, entry types.MemoryEntry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO longterm_entries (namespace, key, payload, writer) VALUES (?, ?, ?, ?)`,
		entry.Namespace, entry.Key, string(entry.Payload), entry.Writer,
	)
	if err != nil {
		if isUniqueViolation(err) {
			logging.Audit(logging.AuditEvent{
				EventType: logging.AuditMemoryConflict,
				Actor:     entry.Writer,
				CaseID:    caseIDFromNamespace(entry.Namespace),
				Category:  "longterm:" + entry.Namespace,
				Action:    "conflicting write " + entry.Key,
				Severity:  logging.SeverityWarn,
				Success:   false,
			})
			return fmt.Errorf("longterm %s/%s: %w", entry.Namespace, entry.Key, types.ErrPersistenceConflict)
		}
		return fmt.Errorf("failed to write longterm entry: %w", err)
	}
	return nil
}

func (s *TieredStore) readLongTerm(namespace, key string) (*types.MemoryEntry, error) {
	row := s.db.QueryRow(
		`SELECT payload, writer, created_at FROM longterm_entries WHERE namespace = ? AND key = ?`,
		namespace, key,
	)
	return scanEntry(row, types.TierLongTerm, namespace, key)
}

func (s *TieredStore) listLongTerm(namespace string) ([]types.MemoryEntry, error) {
	rows, err := s.db.Query(
		`SELECT key, payload, writer, created_at FROM longterm_entries
		 WHERE namespace = ? ORDER BY key`,
		namespace,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list longterm entries: %w", err)
	}
	defer rows.Close()
	return collectEntries(rows, types.TierLongTerm, namespace)
}

// ListNamespaces returns long-term namespaces matching a prefix, for
// cross-case scans by opaque subject id.
func (s *TieredStore) ListNamespaces(prefix string) ([]string, error) {
	rows, err := s.db.Query(
		`SELECT DISTINCT namespace FROM longterm_entries WHERE namespace LIKE ? ORDER BY namespace`,
		prefix+"%",
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list namespaces: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var ns string
		if err := rows.Scan(&ns); err != nil {
			return nil, err
		}
		out = append(out, ns)
	}
	return out, rows.Err()
}

// isUniqueViolation detects a primary-key collision from the sqlite driver.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint") || strings.Contains(msg, "constraint failed")
}
