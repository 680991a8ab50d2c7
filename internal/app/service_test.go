package app

import (
	"context"
	"sync"
	"testing"

	"github.com/transfa/transfer-status-service/internal/domain"
	"github.com/transfa/transfer-status-service/internal/store"
	"github.com/transfa/transfer-status-service/pkg/rabbitmq"
)

type changeFeedStub struct {
	mu        sync.Mutex
	published []rabbitmq.TransferChangedEvent
}

func (s *changeFeedStub) Publish(ctx context.Context, exchange, routingKey string, body interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if event, ok := body.(rabbitmq.TransferChangedEvent); ok {
		s.published = append(s.published, event)
	}
	return nil
}

func (s *changeFeedStub) Close() {}

func newTestService() (*Service, *changeFeedStub) {
	feed := &changeFeedStub{}
	return NewService(store.NewMemoryEventLog(), feed, "transfa.events", "transfer.derived.updated"), feed
}

func mustSubmit(t *testing.T, service *Service, event domain.Event) *domain.SubmitResult {
	t.Helper()
	result, err := service.SubmitEvent(context.Background(), event)
	if err != nil {
		t.Fatalf("SubmitEvent(%s/%s) returned error: %v", event.TransferID, event.EventID, err)
	}
	return result
}

func TestSubmitEvent_OutOfOrderArrivalDerivesLatestByTimestamp(t *testing.T) {
	service, _ := newTestService()

	mustSubmit(t, service, eventAt("evt_3", domain.StatusSettled, 30))
	mustSubmit(t, service, eventAt("evt_1", domain.StatusInitiated, 10))
	result := mustSubmit(t, service, eventAt("evt_2", domain.StatusProcessing, 20))

	transfer := result.Transfer
	if transfer.CurrentStatus != domain.StatusSettled {
		t.Fatalf("expected settled despite arrival order, got %s", transfer.CurrentStatus)
	}
	if !transfer.IsTerminal {
		t.Fatal("expected terminal transfer")
	}
	if transfer.EventCount != 3 {
		t.Fatalf("expected 3 events, got %d", transfer.EventCount)
	}
	for i, id := range []string{"evt_1", "evt_2", "evt_3"} {
		if transfer.Events[i].EventID != id {
			t.Fatalf("events not sorted chronologically: position %d is %s", i, transfer.Events[i].EventID)
		}
	}
}

func TestSubmitEvent_DuplicateIsIdempotentNoOp(t *testing.T) {
	service, _ := newTestService()

	first := mustSubmit(t, service, eventAt("evt_1", domain.StatusInitiated, 10))
	if !first.Accepted {
		t.Fatal("expected first submission to be accepted")
	}

	// Same event_id, different payload: still a no-op.
	repeat := eventAt("evt_1", domain.StatusFailed, 99)
	second := mustSubmit(t, service, repeat)

	if second.Accepted {
		t.Fatal("expected duplicate submission to be rejected")
	}
	if second.Transfer.EventCount != 1 {
		t.Fatalf("expected event count unchanged, got %d", second.Transfer.EventCount)
	}
	if second.Transfer.CurrentStatus != domain.StatusInitiated {
		t.Fatalf("expected status unchanged, got %s", second.Transfer.CurrentStatus)
	}
	if len(second.Transfer.RejectedDuplicates) != 1 || second.Transfer.RejectedDuplicates[0] != "evt_1" {
		t.Fatalf("expected rejected_duplicates to record the repeat, got %v", second.Transfer.RejectedDuplicates)
	}
	if got := service.Version(); got != 1 {
		t.Fatalf("expected duplicate to leave version at 1, got %d", got)
	}
}

func TestSubmitEvent_EventIDScopedPerTransfer(t *testing.T) {
	service, _ := newTestService()

	a := eventAt("evt_1", domain.StatusInitiated, 10)
	b := eventAt("evt_1", domain.StatusInitiated, 10)
	b.TransferID = "trf_2"

	if !mustSubmit(t, service, a).Accepted {
		t.Fatal("expected first transfer's event accepted")
	}
	if !mustSubmit(t, service, b).Accepted {
		t.Fatal("expected same event_id on a different transfer_id to be accepted independently")
	}
}

func TestSubmitEvent_ConcurrentDuplicatesAcceptedExactlyOnce(t *testing.T) {
	service, _ := newTestService()
	event := eventAt("evt_race", domain.StatusInitiated, 10)

	const attempts = 16
	var wg sync.WaitGroup
	results := make([]bool, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			result, err := service.SubmitEvent(context.Background(), event)
			if err != nil {
				t.Errorf("concurrent submit error: %v", err)
				return
			}
			results[slot] = result.Accepted
		}(i)
	}
	wg.Wait()

	accepted := 0
	for _, ok := range results {
		if ok {
			accepted++
		}
	}
	if accepted != 1 {
		t.Fatalf("expected exactly one acceptance, got %d", accepted)
	}
	if got := service.Version(); got != 1 {
		t.Fatalf("expected version 1 after concurrent duplicates, got %d", got)
	}

	transfer, err := service.GetTransfer(context.Background(), "trf_1")
	if err != nil {
		t.Fatalf("GetTransfer returned error: %v", err)
	}
	if transfer.EventCount != 1 {
		t.Fatalf("expected single stored event, got %d", transfer.EventCount)
	}
}

func TestGetTransfer_UnknownIdentifier(t *testing.T) {
	service, _ := newTestService()

	if _, err := service.GetTransfer(context.Background(), "trf_missing"); err != store.ErrTransferNotFound {
		t.Fatalf("expected ErrTransferNotFound, got %v", err)
	}
}

func TestListTransfers_FiltersAreConjunctive(t *testing.T) {
	service, _ := newTestService()

	// trf_1: initiated then settled, no warnings.
	mustSubmit(t, service, eventAt("evt_1", domain.StatusInitiated, 10))
	mustSubmit(t, service, eventAt("evt_2", domain.StatusSettled, 20))

	// trf_2: processing with a missing_initiated warning.
	warned := eventAt("evt_1", domain.StatusProcessing, 10)
	warned.TransferID = "trf_2"
	mustSubmit(t, service, warned)

	// trf_3: settled but warned (missing initiated).
	warnedSettled := eventAt("evt_1", domain.StatusSettled, 10)
	warnedSettled.TransferID = "trf_3"
	mustSubmit(t, service, warnedSettled)

	all, err := service.ListTransfers(context.Background(), domain.ListFilter{})
	if err != nil {
		t.Fatalf("ListTransfers returned error: %v", err)
	}
	if all.Total != 3 {
		t.Fatalf("expected 3 transfers unfiltered, got %d", all.Total)
	}
	if all.Items[0].TransferID != "trf_1" || all.Items[2].TransferID != "trf_3" {
		t.Fatalf("expected listing sorted by transfer_id, got %s..%s", all.Items[0].TransferID, all.Items[2].TransferID)
	}

	settled := domain.StatusSettled
	noWarnings := false
	result, err := service.ListTransfers(context.Background(), domain.ListFilter{Status: &settled, HasWarnings: &noWarnings})
	if err != nil {
		t.Fatalf("ListTransfers returned error: %v", err)
	}
	if result.Total != 1 || result.Items[0].TransferID != "trf_1" {
		t.Fatalf("expected only trf_1 to match settled+no-warnings, got %+v", result.Items)
	}
}

func TestRecompute_IsIdempotentAndAdvancesVersion(t *testing.T) {
	service, _ := newTestService()

	mustSubmit(t, service, eventAt("evt_1", domain.StatusInitiated, 10))
	organic := mustSubmit(t, service, eventAt("evt_2", domain.StatusSettled, 20)).Transfer
	service.DrainChanges()

	recomputed, err := service.Recompute(context.Background(), "trf_1")
	if err != nil {
		t.Fatalf("Recompute returned error: %v", err)
	}

	if recomputed.CurrentStatus != organic.CurrentStatus ||
		recomputed.IsTerminal != organic.IsTerminal ||
		recomputed.EventCount != organic.EventCount {
		t.Fatalf("recompute diverged from organic derivation: %+v vs %+v", recomputed, organic)
	}
	if got := service.Version(); got != 3 {
		t.Fatalf("expected recompute to advance version to 3, got %d", got)
	}

	changes := service.DrainChanges()
	if len(changes.TransferIDs) != 1 || changes.TransferIDs[0] != "trf_1" {
		t.Fatalf("expected recompute to mark trf_1 affected, got %v", changes.TransferIDs)
	}
}

func TestRecompute_UnknownIdentifier(t *testing.T) {
	service, _ := newTestService()

	if _, err := service.Recompute(context.Background(), "trf_missing"); err != store.ErrTransferNotFound {
		t.Fatalf("expected ErrTransferNotFound, got %v", err)
	}
}

func TestDrainChanges_ReturnsAccumulatedSetOnce(t *testing.T) {
	service, _ := newTestService()

	mustSubmit(t, service, eventAt("evt_1", domain.StatusInitiated, 10))
	other := eventAt("evt_1", domain.StatusProcessing, 10)
	other.TransferID = "trf_2"
	mustSubmit(t, service, other)

	changes := service.DrainChanges()
	if changes.Version != 2 {
		t.Fatalf("expected version 2, got %d", changes.Version)
	}
	if len(changes.TransferIDs) != 2 {
		t.Fatalf("expected both transfers affected, got %v", changes.TransferIDs)
	}

	again := service.DrainChanges()
	if len(again.TransferIDs) != 0 {
		t.Fatalf("expected empty set on immediate re-drain, got %v", again.TransferIDs)
	}
	if again.Version != 2 {
		t.Fatalf("expected version unchanged by drain, got %d", again.Version)
	}
}

func TestSubmitEvent_PublishesChangeFeedOnAcceptanceOnly(t *testing.T) {
	service, feed := newTestService()

	mustSubmit(t, service, eventAt("evt_1", domain.StatusInitiated, 10))
	mustSubmit(t, service, eventAt("evt_1", domain.StatusInitiated, 10))

	feed.mu.Lock()
	defer feed.mu.Unlock()
	if len(feed.published) != 1 {
		t.Fatalf("expected exactly one change-feed publish, got %d", len(feed.published))
	}
	if feed.published[0].TransferID != "trf_1" || feed.published[0].Version != 1 {
		t.Fatalf("unexpected change-feed payload: %+v", feed.published[0])
	}
	if feed.published[0].MessageID == "" {
		t.Fatal("expected change-feed message id to be set")
	}
}

func TestWarmCache_RestoresReadsWithoutAdvancingVersion(t *testing.T) {
	eventLog := store.NewMemoryEventLog()
	seed := NewService(eventLog, nil, "transfa.events", "transfer.derived.updated")
	mustSubmit(t, seed, eventAt("evt_1", domain.StatusInitiated, 10))
	mustSubmit(t, seed, eventAt("evt_2", domain.StatusSettled, 20))

	// A fresh service over the same log: empty cache until warmed.
	restarted := NewService(eventLog, nil, "transfa.events", "transfer.derived.updated")
	if _, err := restarted.GetTransfer(context.Background(), "trf_1"); err != store.ErrTransferNotFound {
		t.Fatalf("expected cold cache miss, got %v", err)
	}

	if err := restarted.WarmCache(context.Background()); err != nil {
		t.Fatalf("WarmCache returned error: %v", err)
	}

	transfer, err := restarted.GetTransfer(context.Background(), "trf_1")
	if err != nil {
		t.Fatalf("GetTransfer after warmup returned error: %v", err)
	}
	if transfer.CurrentStatus != domain.StatusSettled || transfer.EventCount != 2 {
		t.Fatalf("unexpected warmed state: %+v", transfer)
	}
	if got := restarted.Version(); got != 0 {
		t.Fatalf("expected warmup to leave version at 0, got %d", got)
	}
}
