package memory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"caseflow/internal/logging"
)

// =============================================================================
// SIGNAL COUNTERS (cross-case accumulating state)
// =============================================================================
// Counters are the one shared mutable resource across cases. Updates are
// serialized per counter key (single writer at a time) so increments from
// concurrent cases are never lost.

// lockFor returns the mutex serializing updates to one counter key.
func (s *TieredStore) lockFor(key string) *sync.Mutex {
	s.counterMu.Lock()
	defer s.counterMu.Unlock()
	if l, ok := s.counterLocks[key]; ok {
		return l
	}
	l := &sync.Mutex{}
	s.counterLocks[key] = l
	return l
}

// IncrementSignal atomically adds delta to a signal counter and returns the
// new value.
func (s *TieredStore) IncrementSignal(ctx context.Context, key string, delta int64) (int64, error) {
	lock := s.lockFor(key)
	lock.Lock()
	defer lock.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin counter tx: %w", err)
	}
	defer tx.Rollback()

	var value int64
	err = tx.QueryRowContext(ctx, `SELECT value FROM signal_counters WHERE key = ?`, key).Scan(&value)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		value = 0
	case err != nil:
		return 0, fmt.Errorf("failed to read counter: %w", err)
	}

	value += delta
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO signal_counters (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`,
		key, value,
	); err != nil {
		return 0, fmt.Errorf("failed to update counter: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit counter: %w", err)
	}

	logging.Audit(logging.AuditEvent{
		EventType: logging.AuditSignalIncrement,
		Actor:     "memory.TieredStore",
		Category:  "signal:" + key,
		Action:    fmt.Sprintf("increment by %d to %d", delta, value),
		Success:   true,
	})
	return value, nil
}

// ReadSignal returns the current value of a counter, zero if absent.
func (s *TieredStore) ReadSignal(key string) (int64, error) {
	var value int64
	err := s.db.QueryRow(`SELECT value FROM signal_counters WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read counter: %w", err)
	}
	return value, nil
}

// ListSignals returns all counter keys and values in stable key order.
func (s *TieredStore) ListSignals() (map[string]int64, error) {
	rows, err := s.db.Query(`SELECT key, value FROM signal_counters ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("failed to list counters: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int64)
	for rows.Next() {
		var key string
		var value int64
		if err := rows.Scan(&key, &value); err != nil {
			return nil, err
		}
		out[key] = value
	}
	return out, rows.Err()
}
