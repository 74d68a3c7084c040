package types

import "testing"

func TestPriorityRankOrdering(t *testing.T) {
	order := []Priority{PriorityEmergent, PriorityUrgent, PriorityOther, PriorityInformational}
	for i := 1; i < len(order); i++ {
		if order[i-1].Rank() >= order[i].Rank() {
			t.Fatalf("expected %s to rank above %s", order[i-1], order[i])
		}
	}
	if Priority("made-up").Rank() <= PriorityInformational.Rank() {
		t.Fatalf("unknown priority must rank below informational")
	}
}

func TestCaseStatusTerminal(t *testing.T) {
	terminal := map[CaseStatus]bool{
		StatusIntake:      false,
		StatusSelecting:   false,
		StatusRouting:     false,
		StatusExecuting:   false,
		StatusAggregating: false,
		StatusPersisting:  false,
		StatusComplete:    true,
		StatusFailed:      true,
	}
	for status, want := range terminal {
		if got := status.Terminal(); got != want {
			t.Fatalf("Terminal(%s) = %v, want %v", status, got, want)
		}
	}
}

func TestCompletedStages(t *testing.T) {
	state := &OrchestratorState{
		StageResults: map[string]StageResult{
			"a": {StageID: "a", Status: StageOk},
			"b": {StageID: "b", Status: StageSkipped},
		},
	}
	if got := len(state.CompletedStages()); got != 2 {
		t.Fatalf("expected 2 completed stages, got %d", got)
	}
}
