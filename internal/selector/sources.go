package selector

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"caseflow/internal/memory"
	"caseflow/internal/types"
)

// =============================================================================
// BUILT-IN SOURCES
// =============================================================================
// These lexical sources make the selector usable without external
// collaborators. Embedding-backed rankers plug in through the same Source
// interface without core changes.

// DocumentSource serves a fixed snapshot of documents (reference sets,
// guideline excerpts) with lexical scoring.
type DocumentSource struct {
	docs []types.SelectedItem
}

// NewDocumentSource copies the given items as the source snapshot.
func NewDocumentSource(items []types.SelectedItem) *DocumentSource {
	snapshot := make([]types.SelectedItem, len(items))
	copy(snapshot, items)
	return &DocumentSource{docs: snapshot}
}

// documentSetFile is the on-disk yaml shape for a document-backed source.
type documentSetFile struct {
	Documents []struct {
		ID        string    `yaml:"id"`
		Content   string    `yaml:"content"`
		Timestamp time.Time `yaml:"timestamp"`
	} `yaml:"documents"`
}

// LoadDocumentSource reads a yaml document set from disk and wraps it as a
// source. Reference and literature corpora ship as these files.
func LoadDocumentSource(path string) (*DocumentSource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read document set: %w", err)
	}
	var file documentSetFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse document set %s: %w", path, err)
	}

	items := make([]types.SelectedItem, 0, len(file.Documents))
	for i, doc := range file.Documents {
		if doc.ID == "" {
			return nil, fmt.Errorf("document %d in %s has no id", i, path)
		}
		items = append(items, types.SelectedItem{
			ID:        doc.ID,
			Content:   doc.Content,
			Timestamp: doc.Timestamp,
		})
	}
	return NewDocumentSource(items), nil
}

// Search scores each document against the query terms. Documents outside
// the recency bound or failing a filter are excluded.
func (d *DocumentSource) Search(ctx context.Context, query types.SelectionQuery) ([]types.SelectedItem, error) {
	var out []types.SelectedItem
	for _, doc := range d.docs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !WithinRecency(query, doc.Timestamp) {
			continue
		}
		score := LexicalScore(query.Terms, doc.Content)
		if score <= 0 {
			continue
		}
		item := doc
		item.Score = score
		out = append(out, item)
	}
	return out, nil
}

// HistorySource searches archived cases in the long-term store, scoped by
// opaque subject prefix when a subject filter is present.
type HistorySource struct {
	store *memory.TieredStore
}

// NewHistorySource wraps the long-term tier as a selection source.
func NewHistorySource(store *memory.TieredStore) *HistorySource {
	return &HistorySource{store: store}
}

// Search scans archived case summaries. The namespace layout is
// (subject_opaque_id, category, entry_id); only the "summary" category is
// considered history.
func (h *HistorySource) Search(ctx context.Context, query types.SelectionQuery) ([]types.SelectedItem, error) {
	prefix := query.Filters["subject_ref"]
	namespaces, err := h.store.ListNamespaces(prefix)
	if err != nil {
		return nil, fmt.Errorf("history scan failed: %w", err)
	}

	var out []types.SelectedItem
	for _, ns := range namespaces {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !strings.HasSuffix(ns, "/summary") {
			continue
		}
		entries, err := h.store.List(types.TierLongTerm, ns)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			if !WithinRecency(query, e.WrittenAt) {
				continue
			}
			content := string(e.Payload)
			score := LexicalScore(query.Terms, content)
			if score <= 0 {
				continue
			}
			out = append(out, types.SelectedItem{
				ID:        ns + "/" + e.Key,
				Content:   content,
				Score:     score,
				Timestamp: e.WrittenAt,
			})
		}
	}
	return out, nil
}

// SignalSource exposes aggregate-signal counters as selectable context so
// stages can see cross-case accumulation (e.g. recurring symptom signals).
type SignalSource struct {
	store *memory.TieredStore
}

// NewSignalSource wraps the signal counters as a selection source.
func NewSignalSource(store *memory.TieredStore) *SignalSource {
	return &SignalSource{store: store}
}

// Search returns counters whose keys match any query term, scored by count
// so hotter signals rank first.
func (s *SignalSource) Search(ctx context.Context, query types.SelectionQuery) ([]types.SelectedItem, error) {
	counters, err := s.store.ListSignals()
	if err != nil {
		return nil, fmt.Errorf("signal scan failed: %w", err)
	}

	var out []types.SelectedItem
	for key, value := range counters {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if LexicalScore(query.Terms, key) <= 0 {
			continue
		}
		out = append(out, types.SelectedItem{
			ID:      "signal/" + key,
			Content: fmt.Sprintf("%s=%d", key, value),
			Score:   float64(value),
		})
	}
	return out, nil
}

// LexicalScore computes token-overlap relevance between query terms and
// content: the fraction of terms present, weighted up slightly for repeat
// occurrences. Deterministic for identical inputs.
func LexicalScore(terms []string, content string) float64 {
	if len(terms) == 0 {
		return 1.0 // unconstrained query matches everything equally
	}
	lower := strings.ToLower(content)
	matched := 0
	bonus := 0.0
	for _, term := range terms {
		t := strings.ToLower(strings.TrimSpace(term))
		if t == "" {
			continue
		}
		n := strings.Count(lower, t)
		if n > 0 {
			matched++
			if n > 1 {
				bonus += 0.05
			}
		}
	}
	if matched == 0 {
		return 0
	}
	score := float64(matched)/float64(len(terms)) + bonus
	if score > 1.0 {
		score = 1.0
	}
	return score
}
