package domain

import "time"

// TicketHistory is an immutable audit trail entry for one lifecycle transition.
type TicketHistory struct {
	ID        int64
	TicketID  string
	ActorID   int64
	Action    TicketAction
	OldValue  map[string]any
	NewValue  map[string]any
	CreatedAt time.Time
}
