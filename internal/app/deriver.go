package app

import (
	"sort"
	"time"

	"github.com/transfa/transfer-status-service/internal/domain"
)

// derivedCore is the part of a Transfer computed purely from its sorted
// event history.
type derivedCore struct {
	CurrentStatus domain.Status
	IsTerminal    bool
	LastUpdated   time.Time
	EventCount    int
}

// sortEvents returns a copy of events ordered by (timestamp ascending,
// event_id lexicographically ascending). The event_id tie-break is load-bearing
// policy: timestamps alone do not totally order events, and every consumer of
// the sorted sequence must see the same order.
func sortEvents(events []domain.Event) []domain.Event {
	sorted := make([]domain.Event, len(events))
	copy(sorted, events)
	sort.Slice(sorted, func(i, j int) bool {
		if !sorted[i].Timestamp.Equal(sorted[j].Timestamp) {
			return sorted[i].Timestamp.Before(sorted[j].Timestamp)
		}
		return sorted[i].EventID < sorted[j].EventID
	})
	return sorted
}

// deriveCore computes the current state from an already-sorted, non-empty
// event sequence. The chronologically last event wins regardless of arrival
// order; at equal timestamps the lexicographically last event_id wins, even
// when that demotes a terminal status.
func deriveCore(sorted []domain.Event) derivedCore {
	last := sorted[len(sorted)-1]
	return derivedCore{
		CurrentStatus: last.Status,
		IsTerminal:    last.Status.IsTerminal(),
		LastUpdated:   last.Timestamp,
		EventCount:    len(sorted),
	}
}
