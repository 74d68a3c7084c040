package selector

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"caseflow/internal/config"
	"caseflow/internal/types"
)

// stubSource returns a fixed candidate list, or an error when set.
type stubSource struct {
	items []types.SelectedItem
	err   error
}

func (s *stubSource) Search(ctx context.Context, query types.SelectionQuery) ([]types.SelectedItem, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.items, nil
}

func newTestSelector() *Selector {
	return New(config.DefaultSelectorConfig())
}

func TestSelectBoundsAndOrders(t *testing.T) {
	s := newTestSelector()
	s.Register(types.ModeReference, &stubSource{items: []types.SelectedItem{
		{ID: "a", Score: 0.9},
		{ID: "b", Score: 0.4},
		{ID: "c", Score: 0.95},
	}})

	res, err := s.Select(context.Background(), types.SelectionQuery{K: 2}, types.ModeReference)
	require.NoError(t, err)
	require.Len(t, res.Items, 2)
	assert.Equal(t, "c", res.Items[0].ID)
	assert.Equal(t, "a", res.Items[1].ID)
	assert.False(t, res.Degraded)
}

func TestOrderTieBreaking(t *testing.T) {
	older := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := older.Add(time.Hour)

	ordered := Order([]types.SelectedItem{
		{ID: "z", Score: 0.5, Timestamp: older},
		{ID: "a", Score: 0.5, Timestamp: older},
		{ID: "m", Score: 0.5, Timestamp: newer},
	})

	// Equal scores: newer first, then stable id order.
	assert.Equal(t, "m", ordered[0].ID)
	assert.Equal(t, "a", ordered[1].ID)
	assert.Equal(t, "z", ordered[2].ID)
}

func TestOrderDoesNotMutateInput(t *testing.T) {
	items := []types.SelectedItem{
		{ID: "b", Score: 0.1},
		{ID: "a", Score: 0.9},
	}
	Order(items)
	assert.Equal(t, "b", items[0].ID, "source slice must stay untouched")
}

func TestSelectDeterministic(t *testing.T) {
	s := newTestSelector()
	ts := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	s.Register(types.ModeHistory, &stubSource{items: []types.SelectedItem{
		{ID: "h2", Score: 0.6, Timestamp: ts},
		{ID: "h1", Score: 0.6, Timestamp: ts},
		{ID: "h3", Score: 0.8, Timestamp: ts},
	}})
	query := types.SelectionQuery{Terms: []string{"dyspnea"}, K: 3}

	first, err := s.Select(context.Background(), query, types.ModeHistory)
	require.NoError(t, err)
	second, err := s.Select(context.Background(), query, types.ModeHistory)
	require.NoError(t, err)
	if diff := cmp.Diff(first.Items, second.Items); diff != "" {
		t.Fatalf("identical queries diverged:\n%s", diff)
	}
}

func TestSelectMissingSourceDegrades(t *testing.T) {
	s := newTestSelector()
	res, err := s.Select(context.Background(), types.SelectionQuery{}, types.ModeLiterature)
	require.NoError(t, err)
	assert.True(t, res.Degraded)
	assert.Empty(t, res.Items)
}

func TestSelectSourceErrorDegrades(t *testing.T) {
	s := newTestSelector()
	s.Register(types.ModeHistory, &stubSource{err: errors.New("store offline")})

	res, err := s.Select(context.Background(), types.SelectionQuery{}, types.ModeHistory)
	require.NoError(t, err, "an unavailable source degrades, it never fails the case")
	assert.True(t, res.Degraded)
	assert.Empty(t, res.Items)
}

func TestSelectAllReportsDegradedModes(t *testing.T) {
	s := newTestSelector()
	s.Register(types.ModeReference, &stubSource{items: []types.SelectedItem{{ID: "doc", Score: 1}}})

	selected, degraded, err := s.SelectAll(context.Background(), types.SelectionQuery{})
	require.NoError(t, err)
	assert.Len(t, selected[types.ModeReference], 1)
	assert.ElementsMatch(t, []types.SelectionMode{
		types.ModeHistory, types.ModeLiterature, types.ModeSignal,
	}, degraded)
}

func TestSelectUsesConfiguredKPerMode(t *testing.T) {
	cfg := config.DefaultSelectorConfig()
	cfg.SignalK = 1
	s := New(cfg)

	s.Register(types.ModeSignal, &stubSource{items: []types.SelectedItem{
		{ID: "s1", Score: 3},
		{ID: "s2", Score: 7},
	}})
	res, err := s.Select(context.Background(), types.SelectionQuery{}, types.ModeSignal)
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	assert.Equal(t, "s2", res.Items[0].ID)
}

func TestLexicalScore(t *testing.T) {
	cases := []struct {
		name    string
		terms   []string
		content string
		want    float64
	}{
		{"empty terms match everything", nil, "anything", 1.0},
		{"no overlap", []string{"syncope"}, "mild rash", 0},
		{"full overlap", []string{"rash"}, "a rash appeared", 1.0},
		{"partial overlap", []string{"rash", "syncope"}, "a rash appeared", 0.5},
		{"repeat bonus", []string{"rash", "syncope"}, "rash then rash again", 0.55},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.InDelta(t, tc.want, LexicalScore(tc.terms, tc.content), 1e-9)
		})
	}
}

func TestWithinRecency(t *testing.T) {
	since := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	q := types.SelectionQuery{Since: since}
	assert.True(t, WithinRecency(q, since))
	assert.True(t, WithinRecency(q, since.Add(time.Hour)))
	assert.False(t, WithinRecency(q, since.Add(-time.Hour)))
	assert.True(t, WithinRecency(types.SelectionQuery{}, since.Add(-time.Hour)))
}
