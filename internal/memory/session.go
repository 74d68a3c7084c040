package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"caseflow/internal/logging"
	"caseflow/internal/types"
)

// =============================================================================
// SESSION TIER (durable, checkpoint-addressable, supersede-not-delete)
// =============================================================================

func (s *TieredStore) writeSession(ctx context.Context, entry types.MemoryEntry) error {
	// Plain INSERT: earlier versions stay in place, reads pick the latest.
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO session_entries (namespace, key, payload, writer) VALUES (?, ?, ?, ?)`,
		entry.Namespace, entry.Key, string(entry.Payload), entry.Writer,
	)
	if err != nil {
		return fmt.Errorf("failed to write session entry: %w", err)
	}
	return nil
}

func (s *TieredStore) readSession(namespace, key string) (*types.MemoryEntry, error) {
	row := s.db.QueryRow(
		`SELECT payload, writer, created_at FROM session_entries
		 WHERE namespace = ? AND key = ?
		 ORDER BY id DESC LIMIT 1`,
		namespace, key,
	)
	return scanEntry(row, types.TierSession, namespace, key)
}

func (s *TieredStore) listSession(namespace string) ([]types.MemoryEntry, error) {
	rows, err := s.db.Query(
		`SELECT key, payload, writer, created_at FROM session_entries
		 WHERE namespace = ? AND id IN (
			SELECT MAX(id) FROM session_entries WHERE namespace = ? GROUP BY key
		 )
		 ORDER BY key`,
		namespace, namespace,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list session entries: %w", err)
	}
	defer rows.Close()
	return collectEntries(rows, types.TierSession, namespace)
}

// =============================================================================
// CHECKPOINTS
// =============================================================================

// Checkpoint persists the orchestrator state under the next sequence number
// for its case. Earlier checkpoints are superseded, never deleted, so
// partial work stays auditable. Returns "caseID/seq".
func (s *TieredStore) Checkpoint(state *types.OrchestratorState) (string, error) {
	blob, err := json.Marshal(state)
	if err != nil {
		return "", fmt.Errorf("failed to marshal state: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return "", fmt.Errorf("failed to begin checkpoint tx: %w", err)
	}
	defer tx.Rollback()

	var seq int
	err = tx.QueryRow(
		`SELECT COALESCE(MAX(checkpoint_seq), 0) + 1 FROM session_checkpoints WHERE case_id = ?`,
		state.Case.ID,
	).Scan(&seq)
	if err != nil {
		return "", fmt.Errorf("failed to allocate checkpoint seq: %w", err)
	}

	state.CheckpointSeq = seq
	state.UpdatedAt = time.Now().UTC()
	blob, err = json.Marshal(state)
	if err != nil {
		return "", fmt.Errorf("failed to marshal state: %w", err)
	}

	if _, err := tx.Exec(
		`INSERT INTO session_checkpoints (case_id, checkpoint_seq, state_json) VALUES (?, ?, ?)`,
		state.Case.ID, seq, string(blob),
	); err != nil {
		return "", fmt.Errorf("failed to write checkpoint: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit checkpoint: %w", err)
	}

	id := fmt.Sprintf("%s/%d", state.Case.ID, seq)
	logging.MemoryDebug("checkpoint written: %s status=%s stages=%d", id, state.Case.Status, len(state.StageResults))
	logging.Audit(logging.AuditEvent{
		EventType: logging.AuditCheckpoint,
		Actor:     "memory.TieredStore",
		CaseID:    state.Case.ID,
		Category:  "session:checkpoint",
		Action:    fmt.Sprintf("checkpoint seq=%d status=%s", seq, state.Case.Status),
		Success:   true,
	})
	return id, nil
}

// Resume reconstructs orchestrator state from the latest checkpoint for a
// case. The round trip is lossless: the returned state matches what the
// orchestrator held at the last transition.
func (s *TieredStore) Resume(caseID string) (*types.OrchestratorState, error) {
	var blob string
	err := s.db.QueryRow(
		`SELECT state_json FROM session_checkpoints
		 WHERE case_id = ? ORDER BY checkpoint_seq DESC LIMIT 1`,
		caseID,
	).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("checkpoint for case %s: %w", caseID, types.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint: %w", err)
	}

	var state types.OrchestratorState
	if err := json.Unmarshal([]byte(blob), &state); err != nil {
		return nil, fmt.Errorf("failed to decode checkpoint: %w", err)
	}
	return &state, nil
}

// =============================================================================
// ROW HELPERS
// =============================================================================

func scanEntry(row *sql.Row, tier types.Tier, namespace, key string) (*types.MemoryEntry, error) {
	var payload, writer string
	var createdAt time.Time
	err := row.Scan(&payload, &writer, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s %s/%s: %w", tier, namespace, key, types.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read entry: %w", err)
	}
	return &types.MemoryEntry{
		Tier:      tier,
		Namespace: namespace,
		Key:       key,
		Payload:   json.RawMessage(payload),
		WrittenAt: createdAt,
		Writer:    writer,
	}, nil
}

func collectEntries(rows *sql.Rows, tier types.Tier, namespace string) ([]types.MemoryEntry, error) {
	var out []types.MemoryEntry
	for rows.Next() {
		var key, payload, writer string
		var createdAt time.Time
		if err := rows.Scan(&key, &payload, &writer, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		out = append(out, types.MemoryEntry{
			Tier:      tier,
			Namespace: namespace,
			Key:       key,
			Payload:   json.RawMessage(payload),
			WrittenAt: createdAt,
			Writer:    writer,
		})
	}
	return out, rows.Err()
}
