/**
 * @description
 * This file contains the HTTP handlers for the transfer-status-service's API
 * endpoints. The submit handler is the validator collaborator the derivation
 * engine trusts: it guarantees non-empty identifiers, status membership in the
 * closed enumeration, and a parseable timestamp before any event reaches the
 * core. Everything past validation is ordinary request/response plumbing.
 *
 * @dependencies
 * - encoding/json, log, net/http: Standard Go libraries.
 * - github.com/go-chi/chi/v5: URL parameter extraction.
 * - internal/app, internal/domain, internal/store: For service logic, models, and custom errors.
 */

package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/transfa/transfer-status-service/internal/app"
	"github.com/transfa/transfer-status-service/internal/domain"
	"github.com/transfa/transfer-status-service/internal/store"
)

// TransferHandlers holds the application service that handlers will use.
type TransferHandlers struct {
	service *app.Service
}

// NewTransferHandlers creates a new instance of TransferHandlers.
func NewTransferHandlers(service *app.Service) *TransferHandlers {
	return &TransferHandlers{service: service}
}

// submitEventRequest is the inbound payload for event submission. Timestamp
// is an RFC 3339 string; everything else maps directly onto domain.Event.
type submitEventRequest struct {
	TransferID string `json:"transfer_id"`
	EventID    string `json:"event_id"`
	Status     string `json:"status"`
	Timestamp  string `json:"timestamp"`
	Reason     string `json:"reason,omitempty"`
}

// versionResponse carries the non-destructive version peek.
type versionResponse struct {
	Version int64 `json:"version"`
}

// SubmitEventHandler validates and submits one lifecycle event. 201 signals
// first-time acceptance; 200 signals the idempotent duplicate no-op.
func (h *TransferHandlers) SubmitEventHandler(w http.ResponseWriter, r *http.Request) {
	var req submitEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("level=warn component=api endpoint=submit_event outcome=reject reason=invalid_json err=%v", err)
		h.writeError(w, http.StatusBadRequest, "Invalid request body.")
		return
	}

	event, validationErr := h.validateSubmitRequest(req)
	if validationErr != "" {
		log.Printf("level=warn component=api endpoint=submit_event outcome=reject reason=validation transfer_id=%q event_id=%q detail=%q", req.TransferID, req.EventID, validationErr)
		h.writeError(w, http.StatusBadRequest, validationErr)
		return
	}

	result, err := h.service.SubmitEvent(r.Context(), event)
	if err != nil {
		log.Printf("level=error component=api endpoint=submit_event outcome=failed transfer_id=%s event_id=%s err=%v", event.TransferID, event.EventID, err)
		h.writeError(w, http.StatusInternalServerError, "Could not process event.")
		return
	}

	status := http.StatusOK
	if result.Accepted {
		status = http.StatusCreated
	}
	h.writeJSON(w, status, result)
}

// validateSubmitRequest enforces the input contract of the derivation engine.
// It returns the well-typed event or a human-readable rejection message.
func (h *TransferHandlers) validateSubmitRequest(req submitEventRequest) (domain.Event, string) {
	transferID := strings.TrimSpace(req.TransferID)
	if transferID == "" {
		return domain.Event{}, "transfer_id is required."
	}
	eventID := strings.TrimSpace(req.EventID)
	if eventID == "" {
		return domain.Event{}, "event_id is required."
	}

	status := domain.Status(strings.TrimSpace(strings.ToLower(req.Status)))
	if !status.Valid() {
		return domain.Event{}, "status must be one of: initiated, processing, settled, failed."
	}

	timestamp, err := time.Parse(time.RFC3339, strings.TrimSpace(req.Timestamp))
	if err != nil {
		return domain.Event{}, "timestamp must be a valid RFC 3339 instant."
	}

	return domain.Event{
		TransferID: transferID,
		EventID:    eventID,
		Status:     status,
		Timestamp:  timestamp,
		Reason:     strings.TrimSpace(req.Reason),
	}, ""
}

// GetTransferHandler returns the derived state for one transfer.
func (h *TransferHandlers) GetTransferHandler(w http.ResponseWriter, r *http.Request) {
	transferID := chi.URLParam(r, "id")

	transfer, err := h.service.GetTransfer(r.Context(), transferID)
	if err != nil {
		if errors.Is(err, store.ErrTransferNotFound) {
			h.writeError(w, http.StatusNotFound, "Transfer not found.")
			return
		}
		log.Printf("level=error component=api endpoint=get_transfer outcome=failed transfer_id=%s err=%v", transferID, err)
		h.writeError(w, http.StatusInternalServerError, "Could not retrieve transfer.")
		return
	}

	h.writeJSON(w, http.StatusOK, transfer)
}

// ListTransfersHandler returns all transfers matching the optional status and
// has_warnings filters. Filters combine conjunctively; there is no pagination.
func (h *TransferHandlers) ListTransfersHandler(w http.ResponseWriter, r *http.Request) {
	var filter domain.ListFilter

	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		status := domain.Status(strings.ToLower(raw))
		if !status.Valid() {
			h.writeError(w, http.StatusBadRequest, "Invalid status filter.")
			return
		}
		filter.Status = &status
	}

	if raw := strings.TrimSpace(r.URL.Query().Get("has_warnings")); raw != "" {
		hasWarnings, err := strconv.ParseBool(raw)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "Invalid has_warnings filter.")
			return
		}
		filter.HasWarnings = &hasWarnings
	}

	result, err := h.service.ListTransfers(r.Context(), filter)
	if err != nil {
		log.Printf("level=error component=api endpoint=list_transfers outcome=failed err=%v", err)
		h.writeError(w, http.StatusInternalServerError, "Could not list transfers.")
		return
	}

	h.writeJSON(w, http.StatusOK, result)
}

// RecomputeTransferHandler forces re-derivation of one transfer from its
// stored event history.
func (h *TransferHandlers) RecomputeTransferHandler(w http.ResponseWriter, r *http.Request) {
	transferID := chi.URLParam(r, "id")

	transfer, err := h.service.Recompute(r.Context(), transferID)
	if err != nil {
		if errors.Is(err, store.ErrTransferNotFound) {
			h.writeError(w, http.StatusNotFound, "Transfer not found.")
			return
		}
		log.Printf("level=error component=api endpoint=recompute_transfer outcome=failed transfer_id=%s err=%v", transferID, err)
		h.writeError(w, http.StatusInternalServerError, "Could not recompute transfer.")
		return
	}

	h.writeJSON(w, http.StatusOK, transfer)
}

// ChangesHandler drains the change feed: current version plus every transfer
// touched since the previous drain. Destructive by contract.
func (h *TransferHandlers) ChangesHandler(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.service.DrainChanges())
}

// VersionHandler returns the current version without draining.
func (h *TransferHandlers) VersionHandler(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, versionResponse{Version: h.service.Version()})
}

// writeJSON is a helper for writing JSON responses.
func (h *TransferHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeError is a helper for writing JSON error responses.
func (h *TransferHandlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
