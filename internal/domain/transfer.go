/**
 * @description
 * This file defines the core domain models for the transfer-status-service.
 * Events are the source of truth: immutable status observations submitted by
 * upstream systems. A Transfer is a derived, disposable view rebuilt from the
 * full event history of one transfer identifier.
 *
 * @notes
 * - `event_id` is an idempotency key scoped to one `transfer_id`; the same
 *   event_id on two distinct transfers is two distinct events.
 * - `arrival_order` is assigned at acceptance time and is diagnostic only; it
 *   never participates in status derivation.
 */

package domain

import "time"

// Status is the closed enumeration of transfer lifecycle statuses.
type Status string

const (
	StatusInitiated  Status = "initiated"
	StatusProcessing Status = "processing"
	StatusSettled    Status = "settled"
	StatusFailed     Status = "failed"
)

// IsTerminal reports whether a status ends the lifecycle. Later events are
// still accepted after a terminal status; they are flagged, not rejected.
func (s Status) IsTerminal() bool {
	return s == StatusSettled || s == StatusFailed
}

// Valid reports whether s is a member of the closed enumeration.
func (s Status) Valid() bool {
	switch s {
	case StatusInitiated, StatusProcessing, StatusSettled, StatusFailed:
		return true
	}
	return false
}

// Event is an immutable, timestamped status observation about a transfer.
type Event struct {
	TransferID   string    `json:"transfer_id"`
	EventID      string    `json:"event_id"`
	Status       Status    `json:"status"`
	Timestamp    time.Time `json:"timestamp"`
	Reason       string    `json:"reason,omitempty"`
	ArrivalOrder int       `json:"arrival_order"`
}

// WarningType is the closed enumeration of data-quality warning types.
type WarningType string

const (
	WarningEventAfterTerminal   WarningType = "event_after_terminal"
	WarningConflictingTerminals WarningType = "conflicting_terminals"
	WarningMissingInitiated     WarningType = "missing_initiated"
	WarningDuplicateStatus      WarningType = "duplicate_status"
)

// Warning describes one data-quality irregularity found in a transfer's
// event history. Warnings never block ingestion.
type Warning struct {
	Type     WarningType `json:"type"`
	Message  string      `json:"message"`
	EventIDs []string    `json:"event_ids"`
}

// Transfer is the derived view of one transfer identifier. It is rebuilt
// wholesale on every accepted event or explicit recompute, never patched.
type Transfer struct {
	TransferID         string    `json:"transfer_id"`
	CurrentStatus      Status    `json:"current_status"`
	IsTerminal         bool      `json:"is_terminal"`
	HasWarnings        bool      `json:"has_warnings"`
	LastUpdated        time.Time `json:"last_updated"`
	EventCount         int       `json:"event_count"`
	Warnings           []Warning `json:"warnings"`
	Events             []Event   `json:"events"`
	RejectedDuplicates []string  `json:"rejected_duplicates"`
}

// SubmitResult is the outcome of one event submission. Accepted=false marks
// the idempotent no-op path, which is a success condition rather than an error.
type SubmitResult struct {
	Accepted bool      `json:"accepted"`
	Transfer *Transfer `json:"transfer"`
}

// ListFilter narrows ListTransfers results. Nil fields impose no constraint;
// set fields combine conjunctively.
type ListFilter struct {
	Status      *Status
	HasWarnings *bool
}

// ListResult carries a filtered transfer listing. No pagination by design.
type ListResult struct {
	Items []*Transfer `json:"items"`
	Total int         `json:"total"`
}

// ChangeSet is one poll-cycle snapshot of the change feed: the current
// version plus every transfer touched since the previous drain.
type ChangeSet struct {
	Version     int64    `json:"version"`
	TransferIDs []string `json:"transfer_ids"`
}

// TransferStatusMessage is the broker payload emitted by upstream systems for
// transfer lifecycle updates. Field vocabulary follows the upstream producers;
// the consumer normalizes it into the Status enumeration before submission.
type TransferStatusMessage struct {
	EventID    string    `json:"event_id"`
	TransferID string    `json:"transfer_id"`
	Status     string    `json:"status"`
	Reason     string    `json:"reason,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}
