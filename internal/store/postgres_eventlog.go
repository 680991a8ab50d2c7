/**
 * @description
 * PostgreSQL implementation of the `EventLog` interface. Durability is an
 * external-storage concern for this service; this implementation exists so a
 * deployment can survive restarts without resubmitting events, while the
 * derivation engine stays written against the abstract contract.
 *
 * Idempotency relies on the (transfer_id, event_id) primary key: an insert
 * that conflicts is the duplicate no-op path. The per-identifier arrival
 * counter is assigned under a transaction-scoped advisory lock so concurrent
 * appends for the same transfer cannot race on MAX(arrival_order).
 *
 * @dependencies
 * - github.com/jackc/pgx/v5: The PostgreSQL driver for database operations.
 * - internal/domain: Contains the domain models used for data transfer.
 */

package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/transfa/transfer-status-service/internal/domain"
)

// PostgresEventLog is a concrete implementation of the EventLog interface for PostgreSQL.
type PostgresEventLog struct {
	db *pgxpool.Pool
}

// NewPostgresEventLog creates a new instance of PostgresEventLog.
func NewPostgresEventLog(db *pgxpool.Pool) *PostgresEventLog {
	return &PostgresEventLog{db: db}
}

// EnsureSchema creates the event tables if they do not exist yet.
func (l *PostgresEventLog) EnsureSchema(ctx context.Context) error {
	_, err := l.db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS transfer_events (
			transfer_id   TEXT        NOT NULL,
			event_id      TEXT        NOT NULL,
			status        TEXT        NOT NULL,
			occurred_at   TIMESTAMPTZ NOT NULL,
			reason        TEXT        NOT NULL DEFAULT '',
			arrival_order INT         NOT NULL,
			PRIMARY KEY (transfer_id, event_id)
		);
		CREATE TABLE IF NOT EXISTS transfer_event_duplicates (
			transfer_id TEXT        NOT NULL,
			event_id    TEXT        NOT NULL,
			seen_at     TIMESTAMPTZ NOT NULL DEFAULT now()
		);
	`)
	if err != nil {
		return fmt.Errorf("ensure event log schema: %w", err)
	}
	return nil
}

// Append inserts the event unless its event_id was already accepted for the
// same transfer_id. Duplicate submissions are recorded in the diagnostics
// table and reported as accepted=false, not as an error.
func (l *PostgresEventLog) Append(ctx context.Context, event domain.Event) (bool, error) {
	tx, err := l.db.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin append tx: %w", err)
	}
	defer tx.Rollback(ctx)

	// Serialize appends per transfer so the arrival counter stays dense.
	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock(hashtext($1))", event.TransferID); err != nil {
		return false, fmt.Errorf("acquire transfer lock: %w", err)
	}

	var arrivalOrder int
	err = tx.QueryRow(ctx,
		"SELECT COALESCE(MAX(arrival_order), 0) + 1 FROM transfer_events WHERE transfer_id = $1",
		event.TransferID,
	).Scan(&arrivalOrder)
	if err != nil {
		return false, fmt.Errorf("next arrival order: %w", err)
	}

	tag, err := tx.Exec(ctx, `
		INSERT INTO transfer_events (transfer_id, event_id, status, occurred_at, reason, arrival_order)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (transfer_id, event_id) DO NOTHING`,
		event.TransferID, event.EventID, string(event.Status), event.Timestamp, event.Reason, arrivalOrder,
	)
	if err != nil {
		return false, fmt.Errorf("insert event: %w", err)
	}

	accepted := tag.RowsAffected() > 0
	if !accepted {
		_, err = tx.Exec(ctx,
			"INSERT INTO transfer_event_duplicates (transfer_id, event_id) VALUES ($1, $2)",
			event.TransferID, event.EventID,
		)
		if err != nil {
			return false, fmt.Errorf("record duplicate: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit append tx: %w", err)
	}
	return accepted, nil
}

// Events returns the full accepted history for a transfer in arrival order.
func (l *PostgresEventLog) Events(ctx context.Context, transferID string) ([]domain.Event, error) {
	rows, err := l.db.Query(ctx, `
		SELECT transfer_id, event_id, status, occurred_at, reason, arrival_order
		FROM transfer_events
		WHERE transfer_id = $1
		ORDER BY arrival_order`,
		transferID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []domain.Event
	for rows.Next() {
		var event domain.Event
		var status string
		if err := rows.Scan(&event.TransferID, &event.EventID, &status, &event.Timestamp, &event.Reason, &event.ArrivalOrder); err != nil {
			return nil, err
		}
		event.Status = domain.Status(status)
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, ErrTransferNotFound
	}
	return events, nil
}

// Duplicates returns the rejected duplicate event_ids in the order the repeats arrived.
func (l *PostgresEventLog) Duplicates(ctx context.Context, transferID string) ([]string, error) {
	rows, err := l.db.Query(ctx,
		"SELECT event_id FROM transfer_event_duplicates WHERE transfer_id = $1 ORDER BY seen_at",
		transferID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var duplicates []string
	for rows.Next() {
		var eventID string
		if err := rows.Scan(&eventID); err != nil {
			return nil, err
		}
		duplicates = append(duplicates, eventID)
	}
	return duplicates, rows.Err()
}

// TransferIDs returns every known transfer identifier, sorted.
func (l *PostgresEventLog) TransferIDs(ctx context.Context) ([]string, error) {
	rows, err := l.db.Query(ctx, "SELECT DISTINCT transfer_id FROM transfer_events ORDER BY transfer_id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
