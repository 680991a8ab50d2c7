package app

import (
	"fmt"

	"github.com/transfa/transfer-status-service/internal/domain"
)

// detectWarnings runs the four data-quality rules against an already-sorted
// event sequence. Rules are additive: each runs unconditionally and none
// suppresses another, so a transfer can carry several warnings at once.
// Detection is read-time derived and never gates ingestion.
func detectWarnings(sorted []domain.Event) []domain.Warning {
	warnings := make([]domain.Warning, 0, 4)
	if w := detectEventAfterTerminal(sorted); w != nil {
		warnings = append(warnings, *w)
	}
	if w := detectConflictingTerminals(sorted); w != nil {
		warnings = append(warnings, *w)
	}
	if w := detectMissingInitiated(sorted); w != nil {
		warnings = append(warnings, *w)
	}
	warnings = append(warnings, detectDuplicateStatus(sorted)...)
	return warnings
}

// detectEventAfterTerminal flags every event with a timestamp strictly later
// than the first terminal-status event in sorted order.
func detectEventAfterTerminal(sorted []domain.Event) *domain.Warning {
	terminalIdx := -1
	for i, event := range sorted {
		if event.Status.IsTerminal() {
			terminalIdx = i
			break
		}
	}
	if terminalIdx == -1 {
		return nil
	}

	terminal := sorted[terminalIdx]
	var eventIDs []string
	for _, event := range sorted[terminalIdx+1:] {
		if event.Timestamp.After(terminal.Timestamp) {
			eventIDs = append(eventIDs, event.EventID)
		}
	}
	if len(eventIDs) == 0 {
		return nil
	}
	return &domain.Warning{
		Type:     domain.WarningEventAfterTerminal,
		Message:  fmt.Sprintf("%d event(s) timestamped after terminal status %q (event %s)", len(eventIDs), terminal.Status, terminal.EventID),
		EventIDs: eventIDs,
	}
}

// detectConflictingTerminals flags every settled and failed event when both
// terminal statuses appear anywhere in the history.
func detectConflictingTerminals(sorted []domain.Event) *domain.Warning {
	var hasSettled, hasFailed bool
	for _, event := range sorted {
		switch event.Status {
		case domain.StatusSettled:
			hasSettled = true
		case domain.StatusFailed:
			hasFailed = true
		}
	}
	if !hasSettled || !hasFailed {
		return nil
	}

	var eventIDs []string
	for _, event := range sorted {
		if event.Status.IsTerminal() {
			eventIDs = append(eventIDs, event.EventID)
		}
	}
	return &domain.Warning{
		Type:     domain.WarningConflictingTerminals,
		Message:  "history contains both settled and failed events",
		EventIDs: eventIDs,
	}
}

// detectMissingInitiated flags the whole event set when no initiated event
// exists. Informational: the lifecycle was observed mid-flight.
func detectMissingInitiated(sorted []domain.Event) *domain.Warning {
	for _, event := range sorted {
		if event.Status == domain.StatusInitiated {
			return nil
		}
	}

	eventIDs := make([]string, 0, len(sorted))
	for _, event := range sorted {
		eventIDs = append(eventIDs, event.EventID)
	}
	return &domain.Warning{
		Type:     domain.WarningMissingInitiated,
		Message:  "no initiated event present in history",
		EventIDs: eventIDs,
	}
}

// detectDuplicateStatus emits one warning per status reported by more than
// one distinct event, in first-seen status order for deterministic output.
func detectDuplicateStatus(sorted []domain.Event) []domain.Warning {
	byStatus := make(map[domain.Status][]string)
	var statusOrder []domain.Status
	for _, event := range sorted {
		if _, seen := byStatus[event.Status]; !seen {
			statusOrder = append(statusOrder, event.Status)
		}
		byStatus[event.Status] = append(byStatus[event.Status], event.EventID)
	}

	var warnings []domain.Warning
	for _, status := range statusOrder {
		eventIDs := byStatus[status]
		if len(eventIDs) < 2 {
			continue
		}
		warnings = append(warnings, domain.Warning{
			Type:     domain.WarningDuplicateStatus,
			Message:  fmt.Sprintf("status %q reported by %d distinct events", status, len(eventIDs)),
			EventIDs: eventIDs,
		})
	}
	return warnings
}
