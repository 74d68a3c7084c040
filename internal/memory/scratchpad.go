package memory

import (
	"fmt"
	"sort"
	"strings"

	"caseflow/internal/logging"
	"caseflow/internal/types"
)

// =============================================================================
// SCRATCHPAD TIER (in-process, single case run)
// =============================================================================

func (s *TieredStore) writeScratch(entry types.MemoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ns, ok := s.scratch[entry.Namespace]
	if !ok {
		ns = make(map[string]types.MemoryEntry)
		s.scratch[entry.Namespace] = ns
	}
	if _, exists := ns[entry.Key]; exists {
		return fmt.Errorf("scratchpad %s/%s: %w", entry.Namespace, entry.Key, types.ErrPersistenceConflict)
	}
	if s.scratchCap > 0 && len(ns) >= s.scratchCap {
		return fmt.Errorf("scratchpad namespace %s full (%d entries)", entry.Namespace, s.scratchCap)
	}
	ns[entry.Key] = entry
	return nil
}

func (s *TieredStore) readScratch(namespace, key string) (*types.MemoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if ns, ok := s.scratch[namespace]; ok {
		if entry, ok := ns[key]; ok {
			return &entry, nil
		}
	}
	return nil, fmt.Errorf("scratchpad %s/%s: %w", namespace, key, types.ErrNotFound)
}

func (s *TieredStore) listScratch(namespace string) ([]types.MemoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ns := s.scratch[namespace]
	out := make([]types.MemoryEntry, 0, len(ns))
	for _, entry := range ns {
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// DiscardScratchpad destroys every scratchpad namespace belonging to a case.
// Scratchpad entries must be unreachable after run completion.
func (s *TieredStore) DiscardScratchpad(caseID string) {
	s.mu.Lock()
	purged := 0
	for ns := range s.scratch {
		if caseIDFromNamespace(ns) == caseID || strings.HasPrefix(ns, caseID+"/") {
			purged += len(s.scratch[ns])
			delete(s.scratch, ns)
		}
	}
	s.mu.Unlock()

	logging.MemoryDebug("scratchpad purged: case=%s entries=%d", caseID, purged)
	logging.Audit(logging.AuditEvent{
		EventType: logging.AuditScratchpadPurge,
		Actor:     "memory.TieredStore",
		CaseID:    caseID,
		Category:  "scratchpad",
		Action:    fmt.Sprintf("purge %d entries", purged),
		Success:   true,
	})
}
