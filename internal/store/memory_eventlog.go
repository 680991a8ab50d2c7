/**
 * @description
 * In-memory EventLog implementation. This is the default backing store: the
 * derived state served by this service is disposable by design, so a process
 * restart discarding the log is an accepted scope boundary, not an oversight.
 *
 * @dependencies
 * - context, sort, sync: Standard Go libraries.
 * - internal/domain: For the service's domain models.
 */

package store

import (
	"context"
	"sort"
	"sync"

	"github.com/transfa/transfer-status-service/internal/domain"
)

// MemoryEventLog keeps one append-only stream per transfer identifier plus a
// seen-set of accepted event_ids. All methods are safe for concurrent use.
type MemoryEventLog struct {
	mu      sync.RWMutex
	streams map[string]*memoryStream
}

type memoryStream struct {
	events     []domain.Event
	seen       map[string]struct{}
	duplicates []string
}

// NewMemoryEventLog creates an empty in-memory event log.
func NewMemoryEventLog() *MemoryEventLog {
	return &MemoryEventLog{streams: make(map[string]*memoryStream)}
}

// Append implements the atomic check-and-insert idempotency gate. The whole
// check-and-insert runs under one lock so concurrent submissions of the same
// new event_id cannot both be accepted.
func (l *MemoryEventLog) Append(ctx context.Context, event domain.Event) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	stream, ok := l.streams[event.TransferID]
	if !ok {
		stream = &memoryStream{seen: make(map[string]struct{})}
		l.streams[event.TransferID] = stream
	}

	if _, dup := stream.seen[event.EventID]; dup {
		stream.duplicates = append(stream.duplicates, event.EventID)
		return false, nil
	}

	event.ArrivalOrder = len(stream.events) + 1
	stream.seen[event.EventID] = struct{}{}
	stream.events = append(stream.events, event)
	return true, nil
}

// Events returns a copy of the accepted history in arrival order.
func (l *MemoryEventLog) Events(ctx context.Context, transferID string) ([]domain.Event, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	stream, ok := l.streams[transferID]
	if !ok {
		return nil, ErrTransferNotFound
	}
	events := make([]domain.Event, len(stream.events))
	copy(events, stream.events)
	return events, nil
}

// Duplicates returns a copy of the rejected duplicate event_ids.
func (l *MemoryEventLog) Duplicates(ctx context.Context, transferID string) ([]string, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	stream, ok := l.streams[transferID]
	if !ok {
		return nil, ErrTransferNotFound
	}
	duplicates := make([]string, len(stream.duplicates))
	copy(duplicates, stream.duplicates)
	return duplicates, nil
}

// TransferIDs returns every known transfer identifier, sorted.
func (l *MemoryEventLog) TransferIDs(ctx context.Context) ([]string, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	ids := make([]string, 0, len(l.streams))
	for id := range l.streams {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}
