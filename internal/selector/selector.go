// Package selector implements bounded, relevance-ordered context selection.
// Ranking internals are pluggable behind the Source contract; the selector
// guarantees only output shape: at most k items, ordered by non-increasing
// score with ties broken by recency then stable id order, and deterministic
// for identical inputs against an unchanged source snapshot.
package selector

import (
	"context"
	"sort"
	"time"

	"caseflow/internal/config"
	"caseflow/internal/logging"
	"caseflow/internal/types"
)

// Source is the uniform search contract external collaborators satisfy:
// historical-case stores, reference-document stores, and literature or
// knowledge retrieval services all look the same from here.
type Source interface {
	Search(ctx context.Context, query types.SelectionQuery) ([]types.SelectedItem, error)
}

// Result is one mode's selection outcome. Degraded marks a source that was
// empty or unavailable; the case proceeds with reduced context rather than
// failing.
type Result struct {
	Mode     types.SelectionMode `json:"mode"`
	Items    []types.SelectedItem `json:"items"`
	Degraded bool                 `json:"degraded"`
}

// Selector ranks and bounds candidates from the registered sources.
type Selector struct {
	cfg     config.SelectorConfig
	sources map[types.SelectionMode]Source
}

// New creates a selector with no sources registered. Modes without a source
// return an empty, degraded result.
func New(cfg config.SelectorConfig) *Selector {
	return &Selector{
		cfg:     cfg,
		sources: make(map[types.SelectionMode]Source),
	}
}

// Register installs the source for one mode, replacing any previous one.
func (s *Selector) Register(mode types.SelectionMode, src Source) {
	s.sources[mode] = src
}

// Select runs one query against one mode's source. The source's own ranking
// is not trusted for shape: results are re-sorted and truncated here so the
// output contract holds regardless of backend.
func (s *Selector) Select(ctx context.Context, query types.SelectionQuery, mode types.SelectionMode) (Result, error) {
	timer := logging.StartTimer(logging.CategorySelector, "select:"+string(mode))
	defer timer.Stop()

	k := query.K
	if k <= 0 {
		k = s.cfg.KFor(string(mode))
	}

	src, ok := s.sources[mode]
	if !ok {
		logging.SelectorDebug("no source for mode=%s, degrading", mode)
		return Result{Mode: mode, Items: []types.SelectedItem{}, Degraded: true}, nil
	}

	qctx := ctx
	if s.cfg.QueryTimeout > 0 {
		var cancel context.CancelFunc
		qctx, cancel = context.WithTimeout(ctx, s.cfg.QueryTimeout)
		defer cancel()
	}

	items, err := src.Search(qctx, query)
	if err != nil {
		// Degrade gracefully: reduced context, never a failed case.
		logging.Get(logging.CategorySelector).Warnf("source %s unavailable: %v", mode, err)
		return Result{Mode: mode, Items: []types.SelectedItem{}, Degraded: true}, nil
	}

	ordered := Order(items)
	if len(ordered) > k {
		ordered = ordered[:k]
	}
	for i := range ordered {
		ordered[i].Mode = mode
	}

	logging.SelectorDebug("selected mode=%s k=%d candidates=%d returned=%d", mode, k, len(items), len(ordered))
	return Result{Mode: mode, Items: ordered, Degraded: false}, nil
}

// SelectAll runs the query across all four modes and returns results keyed
// by mode, plus the list of degraded modes.
func (s *Selector) SelectAll(ctx context.Context, query types.SelectionQuery) (map[types.SelectionMode][]types.SelectedItem, []types.SelectionMode, error) {
	modes := []types.SelectionMode{
		types.ModeHistory, types.ModeReference, types.ModeLiterature, types.ModeSignal,
	}

	selected := make(map[types.SelectionMode][]types.SelectedItem, len(modes))
	var degraded []types.SelectionMode
	for _, mode := range modes {
		q := query
		q.K = 0 // per-mode configured bound
		res, err := s.Select(ctx, q, mode)
		if err != nil {
			return nil, nil, err
		}
		selected[mode] = res.Items
		if res.Degraded {
			degraded = append(degraded, mode)
		}
	}
	return selected, degraded, nil
}

// Order sorts candidates by descending score, ties broken by recency (newer
// first) then by stable id order. Sorting a copy keeps the source slice
// untouched.
func Order(items []types.SelectedItem) []types.SelectedItem {
	out := make([]types.SelectedItem, len(items))
	copy(out, items)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.After(out[j].Timestamp)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// WithinRecency reports whether a timestamp satisfies the query's recency
// bound. A zero bound admits everything.
func WithinRecency(query types.SelectionQuery, ts time.Time) bool {
	return query.Since.IsZero() || !ts.Before(query.Since)
}
