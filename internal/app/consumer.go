package app

import (
	"context"
	"encoding/json"
	"log"
	"strings"
	"time"

	"github.com/transfa/transfer-status-service/internal/domain"
)

// TransferStatusConsumer adapts broker deliveries of upstream lifecycle
// messages into event submissions. Malformed messages are dropped with an ack
// so they do not poison the queue; only internal errors requeue.
type TransferStatusConsumer struct {
	service *Service
}

func NewTransferStatusConsumer(service *Service) *TransferStatusConsumer {
	return &TransferStatusConsumer{service: service}
}

// HandleMessage processes one delivery. The return value follows the broker
// contract: true acknowledges, false requeues.
func (c *TransferStatusConsumer) HandleMessage(routingKey string, body []byte) bool {
	var msg domain.TransferStatusMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		log.Printf("level=warn component=transfer_consumer msg=\"unmarshal failed; dropping\" routing_key=%s err=%v", routingKey, err)
		return true
	}

	event, ok := c.toEvent(msg)
	if !ok {
		log.Printf("level=warn component=transfer_consumer msg=\"invalid payload; dropping\" routing_key=%s transfer_id=%q event_id=%q status=%q", routingKey, msg.TransferID, msg.EventID, msg.Status)
		return true
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	result, err := c.service.SubmitEvent(ctx, event)
	if err != nil {
		log.Printf("level=error component=transfer_consumer msg=\"submit failed\" transfer_id=%s event_id=%s err=%v", event.TransferID, event.EventID, err)
		return false
	}
	if !result.Accepted {
		// Duplicate redelivery is a success condition; ack it away.
		return true
	}
	return true
}

// toEvent enforces the same input contract the HTTP validator guarantees:
// non-empty identifiers, a member of the status enumeration, a real timestamp.
func (c *TransferStatusConsumer) toEvent(msg domain.TransferStatusMessage) (domain.Event, bool) {
	transferID := strings.TrimSpace(msg.TransferID)
	eventID := strings.TrimSpace(msg.EventID)
	if transferID == "" || eventID == "" || msg.OccurredAt.IsZero() {
		return domain.Event{}, false
	}

	status := domain.Status(normalizeUpstreamStatus(msg.Status))
	if !status.Valid() {
		return domain.Event{}, false
	}

	return domain.Event{
		TransferID: transferID,
		EventID:    eventID,
		Status:     status,
		Timestamp:  msg.OccurredAt,
		Reason:     strings.TrimSpace(msg.Reason),
	}, true
}

// normalizeUpstreamStatus maps the vocabulary used by upstream producers onto
// the closed status enumeration.
func normalizeUpstreamStatus(status string) string {
	status = strings.TrimSpace(strings.ToLower(status))
	switch status {
	case "successful", "success", "completed":
		return string(domain.StatusSettled)
	case "failure":
		return string(domain.StatusFailed)
	case "pending":
		return string(domain.StatusProcessing)
	default:
		return status
	}
}
