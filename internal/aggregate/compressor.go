// Package aggregate merges stage outputs into a fixed-schema, budget-bounded
// summary. The merge is deterministic: findings group by priority (emergent >
// urgent > other > informational) and order by stage declaration within a
// group, so identical inputs always render identical summaries.
package aggregate

import (
	"fmt"
	"strings"

	"caseflow/internal/config"
	"caseflow/internal/logging"
	"caseflow/internal/stages"
	"caseflow/internal/types"
)

// Aggregator compresses stage results into an AggregatedSummary.
type Aggregator struct {
	cfg      config.AggregateConfig
	registry *stages.Registry
}

// New creates an aggregator. The registry supplies stage declaration order
// for reproducible tie-breaking.
func New(cfg config.AggregateConfig, registry *stages.Registry) *Aggregator {
	return &Aggregator{cfg: cfg, registry: registry}
}

// priorityOrder is the explicit rendering order of sections.
var priorityOrder = []types.Priority{
	types.PriorityEmergent,
	types.PriorityUrgent,
	types.PriorityOther,
	types.PriorityInformational,
}

// Aggregate merges all stage results. Every Failed or Skipped stage appears
// in OpenFlags; compression may shorten but never omit them. The word
// budget is satisfied by progressively dropping lowest-priority supporting
// detail while retaining every item at or above the configured minimum
// priority and a traceable reference to anything dropped.
func (a *Aggregator) Aggregate(caseID string, results map[string]types.StageResult) (*types.AggregatedSummary, error) {
	timer := logging.StartTimer(logging.CategoryAggregate, "aggregate")
	defer timer.Stop()

	ids := make([]string, 0, len(results))
	for id := range results {
		ids = append(ids, id)
	}
	ids = a.registry.SortByDeclaration(ids)

	summary := &types.AggregatedSummary{
		CaseID:        caseID,
		SourceResults: ids,
		WordBudget:    a.cfg.WordBudget,
	}

	// Open flags: known-incomplete analysis, never silently dropped.
	for _, id := range ids {
		res := results[id]
		if res.Status == types.StageFailed || res.Status == types.StageSkipped {
			summary.OpenFlags = append(summary.OpenFlags, types.OpenFlag{
				StageID: id,
				Status:  res.Status,
				Reason:  res.Reason,
			})
		}
	}

	// Group findings by priority, deduplicating identical summaries within
	// a group (first writer by declaration order wins).
	grouped := make(map[types.Priority][]types.SummaryItem)
	seen := make(map[string]bool)
	for _, id := range ids {
		res := results[id]
		if res.Status != types.StageOk {
			continue
		}
		for _, f := range res.Findings {
			key := string(f.Priority) + "|" + f.Summary
			if seen[key] {
				continue
			}
			seen[key] = true
			grouped[f.Priority] = append(grouped[f.Priority], types.SummaryItem{
				StageID:  id,
				Summary:  f.Summary,
				Detail:   f.Detail,
				Priority: f.Priority,
				Evidence: res.Evidence,
			})
		}
	}
	for _, p := range priorityOrder {
		if items := grouped[p]; len(items) > 0 {
			summary.FindingsByPriority = append(summary.FindingsByPriority, types.PrioritySection{
				Priority: p,
				Items:    items,
			})
		}
	}

	summary.Overview = a.overview(caseID, results, summary)
	summary.RecommendedActions = recommendedActions(summary)

	if err := a.compress(summary); err != nil {
		return nil, err
	}
	summary.WordCount = countSummaryWords(summary)
	return summary, nil
}

// overview renders a deterministic one-line digest.
func (a *Aggregator) overview(caseID string, results map[string]types.StageResult, s *types.AggregatedSummary) string {
	ok, failed, skipped := 0, 0, 0
	for _, res := range results {
		switch res.Status {
		case types.StageOk:
			ok++
		case types.StageFailed:
			failed++
		case types.StageSkipped:
			skipped++
		}
	}
	top := "none"
	if len(s.FindingsByPriority) > 0 {
		top = string(s.FindingsByPriority[0].Priority)
	}
	return fmt.Sprintf("case %s: %d stages ok, %d failed, %d skipped; highest priority: %s",
		caseID, ok, failed, skipped, top)
}

// recommendedActions derives actions from the priorities present. Purely
// structural; domain recommendations come from stage findings themselves.
func recommendedActions(s *types.AggregatedSummary) []string {
	var actions []string
	for _, section := range s.FindingsByPriority {
		switch section.Priority {
		case types.PriorityEmergent:
			actions = append(actions, "escalate emergent findings for immediate review")
		case types.PriorityUrgent:
			actions = append(actions, "schedule urgent findings for expedited review")
		}
	}
	if len(s.OpenFlags) > 0 {
		actions = append(actions, fmt.Sprintf("review %d incomplete analysis flag(s)", len(s.OpenFlags)))
	}
	if len(actions) == 0 {
		actions = append(actions, "file for routine periodic review")
	}
	return actions
}

// =============================================================================
// COMPRESSION
// =============================================================================

// compress enforces the word budget with progressively stricter passes:
//  1. drop supporting detail below the minimum retained priority
//  2. drop whole items below the minimum retained priority (keeping refs)
//  3. drop all supporting detail and shorten open-flag reasons
//
// Items at or above the minimum priority are always retained, as are all
// open flags. If the strictest pass still exceeds the budget the error
// escalates instead of silently truncating.
func (a *Aggregator) compress(s *types.AggregatedSummary) error {
	if s.WordBudget <= 0 || countSummaryWords(s) <= s.WordBudget {
		return nil
	}

	minPriority := types.Priority(a.cfg.MinRetainedPriority)
	passes := []func(*types.AggregatedSummary, types.Priority){
		dropDetailBelow,
		dropItemsBelow,
		dropAllDetail,
	}
	limit := a.cfg.MaxCompressionPasses
	if limit <= 0 || limit > len(passes) {
		limit = len(passes)
	}

	for i := 0; i < limit; i++ {
		passes[i](s, minPriority)
		if countSummaryWords(s) <= s.WordBudget {
			logging.Get(logging.CategoryAggregate).Debugf("budget met after pass %d (%d/%d words)",
				i+1, countSummaryWords(s), s.WordBudget)
			return nil
		}
	}
	return fmt.Errorf("summary %d words over budget %d after strictest drop policy: %w",
		countSummaryWords(s), s.WordBudget, types.ErrBudgetExceeded)
}

func dropDetailBelow(s *types.AggregatedSummary, min types.Priority) {
	for si, section := range s.FindingsByPriority {
		if section.Priority.Rank() <= min.Rank() {
			continue
		}
		for ii := range section.Items {
			s.FindingsByPriority[si].Items[ii].Detail = ""
		}
	}
}

func dropItemsBelow(s *types.AggregatedSummary, min types.Priority) {
	kept := s.FindingsByPriority[:0]
	for _, section := range s.FindingsByPriority {
		if section.Priority.Rank() <= min.Rank() {
			kept = append(kept, section)
			continue
		}
		for _, item := range section.Items {
			s.Dropped = append(s.Dropped, types.DroppedRef{
				StageID:  item.StageID,
				Summary:  firstWords(item.Summary, 6),
				Priority: item.Priority,
			})
		}
	}
	s.FindingsByPriority = kept
}

func dropAllDetail(s *types.AggregatedSummary, _ types.Priority) {
	for si := range s.FindingsByPriority {
		for ii := range s.FindingsByPriority[si].Items {
			s.FindingsByPriority[si].Items[ii].Detail = ""
		}
	}
	// Open flags may be shortened, never omitted.
	for fi := range s.OpenFlags {
		s.OpenFlags[fi].Reason = firstWords(s.OpenFlags[fi].Reason, 8)
	}
}

// =============================================================================
// WORD COUNTING
// =============================================================================

func countWords(text string) int {
	return len(strings.Fields(text))
}

func countSummaryWords(s *types.AggregatedSummary) int {
	total := countWords(s.Overview)
	for _, section := range s.FindingsByPriority {
		for _, item := range section.Items {
			total += countWords(item.Summary) + countWords(item.Detail)
		}
	}
	for _, action := range s.RecommendedActions {
		total += countWords(action)
	}
	for _, flag := range s.OpenFlags {
		total += 2 + countWords(flag.Reason) // stage id + status + reason
	}
	for _, ref := range s.Dropped {
		total += countWords(ref.Summary)
	}
	return total
}

func firstWords(text string, n int) string {
	words := strings.Fields(text)
	if len(words) <= n {
		return text
	}
	return strings.Join(words[:n], " ") + "..."
}

// Render produces the deterministic plain-text form handed to the external
// formatting collaborator. Sections always appear in the same order.
func Render(s *types.AggregatedSummary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "OVERVIEW\n%s\n", s.Overview)

	b.WriteString("\nFINDINGS BY PRIORITY\n")
	for _, section := range s.FindingsByPriority {
		fmt.Fprintf(&b, "[%s]\n", section.Priority)
		for _, item := range section.Items {
			fmt.Fprintf(&b, "- (%s) %s", item.StageID, item.Summary)
			if item.Detail != "" {
				fmt.Fprintf(&b, ": %s", item.Detail)
			}
			b.WriteString("\n")
		}
	}

	b.WriteString("\nRECOMMENDED ACTIONS\n")
	for _, action := range s.RecommendedActions {
		fmt.Fprintf(&b, "- %s\n", action)
	}

	b.WriteString("\nOPEN FLAGS\n")
	if len(s.OpenFlags) == 0 {
		b.WriteString("- none\n")
	}
	for _, flag := range s.OpenFlags {
		fmt.Fprintf(&b, "- %s: %s", flag.StageID, flag.Status)
		if flag.Reason != "" {
			fmt.Fprintf(&b, " (%s)", flag.Reason)
		}
		b.WriteString("\n")
	}

	if len(s.Dropped) > 0 {
		b.WriteString("\nDROPPED DETAIL (references)\n")
		for _, ref := range s.Dropped {
			fmt.Fprintf(&b, "- %s/%s: %s\n", ref.StageID, ref.Priority, ref.Summary)
		}
	}

	fmt.Fprintf(&b, "\nSOURCES: %s\n", strings.Join(s.SourceResults, ", "))
	return b.String()
}
