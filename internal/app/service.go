/**
 * @description
 * This file contains the core derivation engine for the transfer-status-service.
 * The `Service` struct owns the derived-state cache and orchestrates the flow:
 * an accepted event is appended to the event log, the owning transfer's full
 * history is re-derived (status + warnings), the cache entry is swapped
 * wholesale, and the change tracker advances. Reads never recompute; only
 * submission and the explicit recompute command do.
 *
 * Key invariants:
 * - Full recomputation per write is deliberate: rebuilding from the whole
 *   history makes out-of-order and duplicate handling trivially correct at
 *   O(n log n) per write for realistic per-identifier history sizes.
 * - Append, rebuild, cache swap, and version advance happen under one
 *   per-identifier critical section, so readers observe either the pre- or
 *   post-mutation state, never a partially-rebuilt one.
 *
 * @dependencies
 * - context, log, sync, time: Standard Go libraries.
 * - github.com/google/uuid: Message ids on published change-feed events.
 * - internal/domain, internal/store: For domain models and the log contract.
 * - pkg/rabbitmq: For the optional change-feed publisher.
 */

package app

import (
	"context"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/transfa/transfer-status-service/internal/domain"
	"github.com/transfa/transfer-status-service/internal/store"
	"github.com/transfa/transfer-status-service/pkg/rabbitmq"
)

// Service provides the core derivation logic for transfer status tracking.
type Service struct {
	eventLog   store.EventLog
	changeFeed rabbitmq.Publisher

	exchange   string
	routingKey string

	tracker *changeTracker

	cacheMu sync.RWMutex
	cache   map[string]*domain.Transfer

	// One mutex per transfer identifier; cross-identifier operations do not
	// serialize against each other.
	locks sync.Map
}

// NewService creates a new derivation service. changeFeed may be nil when no
// broker is configured; change publication is then skipped.
func NewService(eventLog store.EventLog, changeFeed rabbitmq.Publisher, exchange, routingKey string) *Service {
	return &Service{
		eventLog:   eventLog,
		changeFeed: changeFeed,
		exchange:   exchange,
		routingKey: routingKey,
		tracker:    newChangeTracker(),
		cache:      make(map[string]*domain.Transfer),
	}
}

func (s *Service) transferLock(transferID string) *sync.Mutex {
	mu, _ := s.locks.LoadOrStore(transferID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// SubmitEvent runs an event through the idempotency gate. On acceptance the
// owning transfer is fully re-derived and the version advances; on a duplicate
// the submission is a no-op and the existing derived state is returned with
// accepted=false. Input is assumed well-typed: the transport layer validates
// identifiers, status membership, and timestamp before calling in.
func (s *Service) SubmitEvent(ctx context.Context, event domain.Event) (*domain.SubmitResult, error) {
	mu := s.transferLock(event.TransferID)
	mu.Lock()
	defer mu.Unlock()

	accepted, err := s.eventLog.Append(ctx, event)
	if err != nil {
		return nil, err
	}

	// Rebuild on both paths: a duplicate changes no load-bearing field, but
	// the rejected_duplicates diagnostic list must reflect the repeat.
	transfer, err := s.rebuild(ctx, event.TransferID)
	if err != nil {
		return nil, err
	}

	if accepted {
		version := s.tracker.MarkMutated(event.TransferID)
		s.publishChange(ctx, transfer, version)
	} else {
		log.Printf("level=info component=engine op=submit outcome=duplicate_skip transfer_id=%s event_id=%s", event.TransferID, event.EventID)
	}

	return &domain.SubmitResult{Accepted: accepted, Transfer: transfer}, nil
}

// GetTransfer returns the cached derived state for one transfer. Reads never
// trigger recomputation.
func (s *Service) GetTransfer(ctx context.Context, transferID string) (*domain.Transfer, error) {
	s.cacheMu.RLock()
	transfer, ok := s.cache[transferID]
	s.cacheMu.RUnlock()
	if !ok {
		return nil, store.ErrTransferNotFound
	}
	return transfer, nil
}

// ListTransfers returns every cached transfer matching the filter, sorted by
// transfer_id. Filter predicates are conjunctive; nil fields match everything.
func (s *Service) ListTransfers(ctx context.Context, filter domain.ListFilter) (*domain.ListResult, error) {
	s.cacheMu.RLock()
	items := make([]*domain.Transfer, 0, len(s.cache))
	for _, transfer := range s.cache {
		if filter.Status != nil && transfer.CurrentStatus != *filter.Status {
			continue
		}
		if filter.HasWarnings != nil && transfer.HasWarnings != *filter.HasWarnings {
			continue
		}
		items = append(items, transfer)
	}
	s.cacheMu.RUnlock()

	sort.Slice(items, func(i, j int) bool { return items[i].TransferID < items[j].TransferID })
	return &domain.ListResult{Items: items, Total: len(items)}, nil
}

// Recompute re-derives a transfer from its stored history regardless of
// whether anything changed, advances the version, and marks it affected.
// This is the escape hatch that lets a consumer force re-derivation (for
// example after a detection-rule fix) without resubmitting events.
func (s *Service) Recompute(ctx context.Context, transferID string) (*domain.Transfer, error) {
	mu := s.transferLock(transferID)
	mu.Lock()
	defer mu.Unlock()

	transfer, err := s.rebuild(ctx, transferID)
	if err != nil {
		return nil, err
	}

	version := s.tracker.MarkMutated(transferID)
	s.publishChange(ctx, transfer, version)
	return transfer, nil
}

// Version returns the current change version without side effects.
func (s *Service) Version() int64 {
	return s.tracker.Version()
}

// DrainChanges returns one poll-cycle snapshot: the current version plus the
// transfers touched since the last drain. Destructive by contract; an
// immediate second call returns an empty identifier set.
func (s *Service) DrainChanges() domain.ChangeSet {
	version, ids := s.tracker.Drain()
	return domain.ChangeSet{Version: version, TransferIDs: ids}
}

// WarmCache rebuilds the derived cache for every transfer in the event log.
// Used at startup with a durable log; it neither advances the version nor
// marks transfers affected, since nothing changed from a consumer's view.
func (s *Service) WarmCache(ctx context.Context) error {
	ids, err := s.eventLog.TransferIDs(ctx)
	if err != nil {
		return err
	}
	for _, id := range ids {
		mu := s.transferLock(id)
		mu.Lock()
		_, err := s.rebuild(ctx, id)
		mu.Unlock()
		if err != nil {
			return err
		}
	}
	if len(ids) > 0 {
		log.Printf("level=info component=engine op=warm_cache transfers=%d", len(ids))
	}
	return nil
}

// rebuild re-derives one transfer from its full event history and swaps the
// cache entry. Callers must hold the transfer's lock.
func (s *Service) rebuild(ctx context.Context, transferID string) (*domain.Transfer, error) {
	events, err := s.eventLog.Events(ctx, transferID)
	if err != nil {
		return nil, err
	}
	duplicates, err := s.eventLog.Duplicates(ctx, transferID)
	if err != nil {
		return nil, err
	}
	if duplicates == nil {
		duplicates = make([]string, 0)
	}

	sorted := sortEvents(events)
	core := deriveCore(sorted)
	warnings := detectWarnings(sorted)

	transfer := &domain.Transfer{
		TransferID:         transferID,
		CurrentStatus:      core.CurrentStatus,
		IsTerminal:         core.IsTerminal,
		HasWarnings:        len(warnings) > 0,
		LastUpdated:        core.LastUpdated,
		EventCount:         core.EventCount,
		Warnings:           warnings,
		Events:             sorted,
		RejectedDuplicates: duplicates,
	}

	s.cacheMu.Lock()
	s.cache[transferID] = transfer
	s.cacheMu.Unlock()
	return transfer, nil
}

func (s *Service) publishChange(ctx context.Context, transfer *domain.Transfer, version int64) {
	if s.changeFeed == nil {
		return
	}
	event := rabbitmq.TransferChangedEvent{
		MessageID:     uuid.NewString(),
		TransferID:    transfer.TransferID,
		Version:       version,
		CurrentStatus: string(transfer.CurrentStatus),
		HasWarnings:   transfer.HasWarnings,
		OccurredAt:    time.Now().UTC(),
	}
	if err := s.changeFeed.Publish(ctx, s.exchange, s.routingKey, event); err != nil {
		log.Printf("level=warn component=engine msg=\"change feed publish failed\" transfer_id=%s err=%v", transfer.TransferID, err)
	}
}
