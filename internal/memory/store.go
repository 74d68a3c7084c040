// Package memory implements the three-tier memory store.
//
// Scratchpad: in-process, bound to a single case run, unreachable after the
// run completes. Session: durable sqlite, checkpoint-addressable, later
// writes supersede (never delete) earlier ones. Long-term: durable sqlite,
// append-only, conflict-checked per (namespace, key) so safety data is
// never silently overwritten.
package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"caseflow/internal/config"
	"caseflow/internal/logging"
	"caseflow/internal/types"
)

// TieredStore backs the session and long-term tiers with sqlite and keeps
// the scratchpad tier in process memory by design: crash recovery of
// in-flight case reasoning notes is an explicit non-goal.
type TieredStore struct {
	db     *sql.DB
	dbPath string

	mu         sync.RWMutex
	scratch    map[string]map[string]types.MemoryEntry // namespace -> key -> entry
	scratchCap int

	counterMu sync.Mutex
	counterLocks map[string]*sync.Mutex // per-signal-key serialization
}

// New initializes the store, creating the sqlite database if needed.
func New(cfg config.MemoryConfig) (*TieredStore, error) {
	dir := filepath.Dir(cfg.DatabasePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Single connection: sqlite serializes writers anyway, and one shared
	// connection turns would-be busy errors into ordinary queueing.
	db.SetMaxOpenConns(1)

	store := &TieredStore{
		db:           db,
		dbPath:       cfg.DatabasePath,
		scratch:      make(map[string]map[string]types.MemoryEntry),
		scratchCap:   cfg.ScratchpadLimit,
		counterLocks: make(map[string]*sync.Mutex),
	}
	if err := store.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// initialize creates the required tables.
func (s *TieredStore) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS session_entries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		namespace TEXT NOT NULL,
		key TEXT NOT NULL,
		payload TEXT NOT NULL,
		writer TEXT NOT NULL DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_session_ns_key ON session_entries(namespace, key, id);

	CREATE TABLE IF NOT EXISTS session_checkpoints (
		case_id TEXT NOT NULL,
		checkpoint_seq INTEGER NOT NULL,
		state_json TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (case_id, checkpoint_seq)
	);

	CREATE TABLE IF NOT EXISTS longterm_entries (
		namespace TEXT NOT NULL,
		key TEXT NOT NULL,
		payload TEXT NOT NULL,
		writer TEXT NOT NULL DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (namespace, key)
	);

	CREATE TABLE IF NOT EXISTS signal_counters (
		key TEXT PRIMARY KEY,
		value INTEGER NOT NULL DEFAULT 0,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *TieredStore) Close() error {
	return s.db.Close()
}

// =============================================================================
// GENERIC TIER OPERATIONS
// =============================================================================

// Write stores one entry in the given tier. Long-term and scratchpad writes
// to an existing (namespace, key) return types.ErrPersistenceConflict;
// session writes supersede earlier versions without deleting them. Durable
// writes respect the context so callers can bound them with a timeout.
func (s *TieredStore) Write(ctx context.Context, tier types.Tier, namespace, key string, payload any, writer string) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}
	entry := types.MemoryEntry{
		Tier:      tier,
		Namespace: namespace,
		Key:       key,
		Payload:   raw,
		WrittenAt: time.Now().UTC(),
		Writer:    writer,
	}

	switch tier {
	case types.TierScratchpad:
		err = s.writeScratch(entry)
	case types.TierSession:
		err = s.writeSession(ctx, entry)
	case types.TierLongTerm:
		err = s.writeLongTerm(ctx, entry)
	default:
		return fmt.Errorf("unknown tier %q", tier)
	}
	if err != nil {
		return err
	}

	logging.MemoryDebug("write tier=%s ns=%s key=%s writer=%s", tier, namespace, key, writer)
	logging.Audit(logging.AuditEvent{
		EventType: logging.AuditMemoryWrite,
		Actor:     writer,
		CaseID:    caseIDFromNamespace(namespace),
		Category:  string(tier) + ":" + namespace,
		Action:    "write " + key,
		Success:   true,
	})
	return nil
}

// Read returns one entry, the latest version for the session tier.
func (s *TieredStore) Read(tier types.Tier, namespace, key string) (*types.MemoryEntry, error) {
	switch tier {
	case types.TierScratchpad:
		return s.readScratch(namespace, key)
	case types.TierSession:
		return s.readSession(namespace, key)
	case types.TierLongTerm:
		return s.readLongTerm(namespace, key)
	default:
		return nil, fmt.Errorf("unknown tier %q", tier)
	}
}

// List returns all entries in a namespace, latest version per key for the
// session tier, in stable key order.
func (s *TieredStore) List(tier types.Tier, namespace string) ([]types.MemoryEntry, error) {
	switch tier {
	case types.TierScratchpad:
		return s.listScratch(namespace)
	case types.TierSession:
		return s.listSession(namespace)
	case types.TierLongTerm:
		return s.listLongTerm(namespace)
	default:
		return nil, fmt.Errorf("unknown tier %q", tier)
	}
}

// caseIDFromNamespace extracts the case id from a "caseID/category" namespace.
func caseIDFromNamespace(namespace string) string {
	if i := strings.IndexByte(namespace, '/'); i > 0 {
		return namespace[:i]
	}
	return namespace
}

// Namespace builds the canonical "caseID/category" namespace.
func Namespace(caseID, category string) string {
	return caseID + "/" + category
}
