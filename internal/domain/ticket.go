package domain

import "time"

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusYetToOpen  TicketStatus = "yet_to_open"
	TicketStatusInProgress TicketStatus = "in_progress"
	TicketStatusResolved   TicketStatus = "resolved"
)

// Valid reports whether s is a known status.
func (s TicketStatus) Valid() bool {
	switch s {
	case TicketStatusYetToOpen, TicketStatusInProgress, TicketStatusResolved:
		return true
	}
	return false
}

// TicketPriority enumerates urgency.
type TicketPriority string

const (
	TicketPriorityLow    TicketPriority = "low"
	TicketPriorityMedium TicketPriority = "medium"
	TicketPriorityHigh   TicketPriority = "high"
)

// Valid reports whether p is a known priority.
func (p TicketPriority) Valid() bool {
	switch p {
	case TicketPriorityLow, TicketPriorityMedium, TicketPriorityHigh:
		return true
	}
	return false
}

// TicketCategory enumerates what the issue is about.
type TicketCategory string

const (
	TicketCategoryHardware      TicketCategory = "hardware"
	TicketCategorySoftware      TicketCategory = "software"
	TicketCategoryNetwork       TicketCategory = "network"
	TicketCategoryAccountAccess TicketCategory = "account_access"
	TicketCategoryOther         TicketCategory = "other"
)

// Valid reports whether c is a known category.
func (c TicketCategory) Valid() bool {
	switch c {
	case TicketCategoryHardware, TicketCategorySoftware, TicketCategoryNetwork, TicketCategoryAccountAccess, TicketCategoryOther:
		return true
	}
	return false
}

// TicketAction is the audit tag stored in tickets.last_action.
type TicketAction string

const (
	ActionNone         TicketAction = ""
	ActionAssigned     TicketAction = "assigned"
	ActionSelfAssigned TicketAction = "self-assigned"
	ActionResolved     TicketAction = "resolved"
	ActionClosed       TicketAction = "closed"
	ActionResponded    TicketAction = "responded"
	ActionCreated      TicketAction = "created"
)

// IsAssignment reports whether the action marks an open assignment episode.
func (a TicketAction) IsAssignment() bool {
	return a == ActionAssigned || a == ActionSelfAssigned
}

// Ticket is the aggregate for support requests.
type Ticket struct {
	ID         string
	Subject    string
	Issue      string
	Category   TicketCategory
	Priority   TicketPriority
	Status     TicketStatus
	LastAction TicketAction
	Attachment *string
	CreatedBy  int64
	AssignedTo *int64
	UpdatedBy  *int64
	CreatedAt  time.Time
	UpdatedAt  time.Time
	ClosedAt   *time.Time

	// Read-side projections, filled by list/get queries.
	CreatedByName  string
	AssignedToName *string
	Responses      []Response
}

// IsAssigned reports whether an assignment episode is in effect.
func (t *Ticket) IsAssigned() bool {
	return t.AssignedTo != nil && t.LastAction.IsAssignment()
}

// IsClosed reports whether the ticket was closed.
func (t *Ticket) IsClosed() bool {
	return t.LastAction == ActionClosed && t.ClosedAt != nil
}

// TicketStats aggregates per-creator ticket counts.
type TicketStats struct {
	Created  int64 `json:"created_tickets"`
	Resolved int64 `json:"resolved_tickets"`
	Pending  int64 `json:"pending_tickets"`
}
