package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/helpdesk/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated      EventType = "ticket_created"
	EventTicketAssigned     EventType = "ticket_assigned"
	EventTicketSelfAssigned EventType = "ticket_self_assigned"
	EventTicketResponded    EventType = "ticket_responded"
	EventTicketReplied      EventType = "ticket_replied"
	EventTicketResolved     EventType = "ticket_resolved"
	EventTicketClosed       EventType = "ticket_closed"
)

// Actor identifies who triggered an event.
type Actor struct {
	UserID int64       `json:"user_id"`
	Role   domain.Role `json:"role"`
}

// ActorFrom converts a principal.
func ActorFrom(p domain.Principal) Actor {
	return Actor{UserID: p.UserID, Role: p.Role}
}

// Event represents a domain event emitted after a committed mutation.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	TicketID  string      `json:"ticket_id"`
	Actor     Actor       `json:"actor"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// NewEvent stamps an event with a fresh id and the current time.
func NewEvent(eventType EventType, ticketID string, actor Actor, payload interface{}) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		TicketID:  ticketID,
		Actor:     actor,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	CreatedBy int64                 `json:"created_by"`
	Subject   string                `json:"subject"`
	Category  domain.TicketCategory `json:"category"`
	Priority  domain.TicketPriority `json:"priority"`
}

// TicketAssignedPayload is used for both assign and self-assign.
type TicketAssignedPayload struct {
	AssigneeID int64               `json:"assignee_id"`
	CreatedBy  int64               `json:"created_by"`
	Subject    string              `json:"subject"`
	Status     domain.TicketStatus `json:"status"`
}

// TicketRespondedPayload payload.
type TicketRespondedPayload struct {
	ResponseID  int64                `json:"response_id"`
	CreatedBy   int64                `json:"created_by"`
	Subject     string               `json:"subject"`
	NewStatus   *domain.TicketStatus `json:"new_status,omitempty"`
	BodyPreview string               `json:"body_preview"`
}

// TicketRepliedPayload payload.
type TicketRepliedPayload struct {
	ResponseID  int64  `json:"response_id"`
	ReplyID     int64  `json:"reply_id"`
	Responder   int64  `json:"responder"`
	BodyPreview string `json:"body_preview"`
}

// TicketStatusChangedPayload is used for resolve and close.
type TicketStatusChangedPayload struct {
	CreatedBy int64               `json:"created_by"`
	Subject   string              `json:"subject"`
	OldStatus domain.TicketStatus `json:"old_status"`
	NewStatus domain.TicketStatus `json:"new_status"`
}

// Preview truncates body text for event payloads.
func Preview(body string) string {
	const max = 120
	runes := []rune(body)
	if len(runes) <= max {
		return body
	}
	return string(runes[:max]) + "..."
}
