/**
 * @description
 * This file defines the `EventLog` interface: the append-only, per-identifier
 * ordered-log contract the derivation engine is written against. Defining an
 * interface keeps the engine storage-shape-agnostic; the in-memory
 * implementation is the default and a Postgres-backed one satisfies the same
 * contract for durable deployments.
 *
 * @dependencies
 * - context, errors: Standard Go libraries.
 * - internal/domain: For the service's domain models.
 */

package store

import (
	"context"
	"errors"

	"github.com/transfa/transfer-status-service/internal/domain"
)

// ErrTransferNotFound is returned when no event has ever been accepted for
// the requested transfer identifier.
var ErrTransferNotFound = errors.New("transfer not found")

// EventLog is the append-only event store for transfer lifecycle events.
//
// Append is the idempotency gate: it must atomically check the per-transfer
// seen-set and insert, so two concurrent submissions of the same new event_id
// can never both be accepted. A rejected duplicate is recorded for diagnostics
// and reported through Duplicates, not through an error.
type EventLog interface {
	// Append stores the event unless its event_id was already accepted for the
	// same transfer_id. It assigns arrival_order on acceptance and returns
	// whether the event was appended. Duplicate submission is not an error.
	Append(ctx context.Context, event domain.Event) (accepted bool, err error)

	// Events returns the full accepted history for a transfer in arrival
	// order. Returns ErrTransferNotFound for an unknown identifier.
	Events(ctx context.Context, transferID string) ([]domain.Event, error)

	// Duplicates returns the event_ids of rejected duplicate submissions for
	// a transfer, in the order the repeats arrived.
	Duplicates(ctx context.Context, transferID string) ([]string, error)

	// TransferIDs returns every known transfer identifier, sorted.
	TransferIDs(ctx context.Context) ([]string, error)
}
