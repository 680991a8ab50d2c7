package app

import (
	"testing"

	"github.com/transfa/transfer-status-service/internal/domain"
)

func warningOfType(warnings []domain.Warning, wt domain.WarningType) *domain.Warning {
	for i := range warnings {
		if warnings[i].Type == wt {
			return &warnings[i]
		}
	}
	return nil
}

func containsID(ids []string, id string) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}

func TestDetectWarnings_CleanLifecycleHasNoWarnings(t *testing.T) {
	sorted := sortEvents([]domain.Event{
		eventAt("evt_1", domain.StatusInitiated, 10),
		eventAt("evt_2", domain.StatusProcessing, 20),
		eventAt("evt_3", domain.StatusSettled, 30),
	})

	warnings := detectWarnings(sorted)
	if len(warnings) != 0 {
		t.Fatalf("expected zero warnings for a clean lifecycle, got %d: %+v", len(warnings), warnings)
	}
}

func TestDetectWarnings_EventAfterTerminal(t *testing.T) {
	sorted := sortEvents([]domain.Event{
		eventAt("evt_1", domain.StatusInitiated, 10),
		eventAt("evt_2", domain.StatusSettled, 20),
		eventAt("evt_3", domain.StatusProcessing, 30),
	})

	w := warningOfType(detectWarnings(sorted), domain.WarningEventAfterTerminal)
	if w == nil {
		t.Fatal("expected event_after_terminal warning")
	}
	if len(w.EventIDs) != 1 || w.EventIDs[0] != "evt_3" {
		t.Fatalf("expected only evt_3 to be flagged, got %v", w.EventIDs)
	}
}

func TestDetectWarnings_EventAtSameInstantAsTerminalNotFlagged(t *testing.T) {
	// Only strictly later timestamps count as activity after the terminal.
	sorted := sortEvents([]domain.Event{
		eventAt("evt_a", domain.StatusSettled, 20),
		eventAt("evt_b", domain.StatusProcessing, 20),
	})

	if w := warningOfType(detectWarnings(sorted), domain.WarningEventAfterTerminal); w != nil {
		t.Fatalf("expected no event_after_terminal warning for equal timestamps, got %v", w.EventIDs)
	}
}

func TestDetectWarnings_NoTerminalMeansNoAfterTerminalWarning(t *testing.T) {
	sorted := sortEvents([]domain.Event{
		eventAt("evt_1", domain.StatusInitiated, 10),
		eventAt("evt_2", domain.StatusProcessing, 20),
	})

	if w := warningOfType(detectWarnings(sorted), domain.WarningEventAfterTerminal); w != nil {
		t.Fatal("expected no event_after_terminal warning without a terminal event")
	}
}

func TestDetectWarnings_ConflictingTerminalsFlagsEveryTerminalEvent(t *testing.T) {
	sorted := sortEvents([]domain.Event{
		eventAt("evt_1", domain.StatusInitiated, 10),
		eventAt("evt_2", domain.StatusSettled, 20),
		eventAt("evt_3", domain.StatusFailed, 30),
	})

	w := warningOfType(detectWarnings(sorted), domain.WarningConflictingTerminals)
	if w == nil {
		t.Fatal("expected conflicting_terminals warning")
	}
	if len(w.EventIDs) != 2 || !containsID(w.EventIDs, "evt_2") || !containsID(w.EventIDs, "evt_3") {
		t.Fatalf("expected both terminal events flagged, got %v", w.EventIDs)
	}
}

func TestDetectWarnings_MissingInitiatedFlagsWholeHistory(t *testing.T) {
	sorted := sortEvents([]domain.Event{
		eventAt("evt_1", domain.StatusProcessing, 10),
		eventAt("evt_2", domain.StatusSettled, 20),
	})

	w := warningOfType(detectWarnings(sorted), domain.WarningMissingInitiated)
	if w == nil {
		t.Fatal("expected missing_initiated warning")
	}
	if len(w.EventIDs) != 2 {
		t.Fatalf("expected the whole event set flagged, got %v", w.EventIDs)
	}
}

func TestDetectWarnings_DuplicateStatusListsEveryEventInGroup(t *testing.T) {
	sorted := sortEvents([]domain.Event{
		eventAt("evt_1", domain.StatusInitiated, 10),
		eventAt("evt_2", domain.StatusProcessing, 20),
		eventAt("evt_3", domain.StatusProcessing, 30),
	})

	w := warningOfType(detectWarnings(sorted), domain.WarningDuplicateStatus)
	if w == nil {
		t.Fatal("expected duplicate_status warning")
	}
	if len(w.EventIDs) != 2 || !containsID(w.EventIDs, "evt_2") || !containsID(w.EventIDs, "evt_3") {
		t.Fatalf("expected both processing events listed, got %v", w.EventIDs)
	}
}

func TestDetectWarnings_RulesAreAdditive(t *testing.T) {
	// No initiated, settled and failed both present, repeat settled, and a
	// processing event after the first terminal: four rules fire at once.
	sorted := sortEvents([]domain.Event{
		eventAt("evt_1", domain.StatusSettled, 10),
		eventAt("evt_2", domain.StatusFailed, 20),
		eventAt("evt_3", domain.StatusSettled, 30),
		eventAt("evt_4", domain.StatusProcessing, 40),
	})

	warnings := detectWarnings(sorted)

	for _, wt := range []domain.WarningType{
		domain.WarningEventAfterTerminal,
		domain.WarningConflictingTerminals,
		domain.WarningMissingInitiated,
		domain.WarningDuplicateStatus,
	} {
		if warningOfType(warnings, wt) == nil {
			t.Fatalf("expected %s warning to fire alongside the others", wt)
		}
	}
}
