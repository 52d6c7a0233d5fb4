package notifications

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EventType classifies a booking lifecycle event
type EventType string

const (
	EventSessionStarted        EventType = "session.started"
	EventSessionExpired        EventType = "session.expired"
	EventSessionCancelled      EventType = "session.cancelled"
	EventOrderCreated          EventType = "order.created"
	EventOrderFailed           EventType = "order.failed"
	EventCompensationPerformed EventType = "order.compensated"
)

// BookingEvent is the message published to the booking events topic for
// every lifecycle transition a downstream consumer may care about.
type BookingEvent struct {
	ID          uuid.UUID      `json:"id"`
	Type        EventType      `json:"type"`
	SessionID   string         `json:"session_id"`
	AgentID     string         `json:"agent_id,omitempty"`
	TicketID    string         `json:"ticket_id,omitempty"`
	OrderRefNum string         `json:"order_ref_num,omitempty"`
	Payload     map[string]any `json:"payload,omitempty"`
	OccurredAt  time.Time      `json:"occurred_at"`
}

// NewBookingEvent builds an event stamped with a fresh ID and timestamp
func NewBookingEvent(eventType EventType, sessionID string) *BookingEvent {
	return &BookingEvent{
		ID:         uuid.New(),
		Type:       eventType,
		SessionID:  sessionID,
		OccurredAt: time.Now().UTC(),
	}
}

// ToJSON serializes the event for the wire
func (e *BookingEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// PartitionKey routes all events of one session to the same partition so
// consumers see them in order.
func (e *BookingEvent) PartitionKey() string {
	return e.SessionID
}
