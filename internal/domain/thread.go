package domain

import "time"

// Response is a first-level staff comment on a ticket.
type Response struct {
	ID            int64
	TicketID      string
	Responder     int64
	ResponderName string
	Body          string
	ResponseType  Role
	CreatedAt     time.Time
	UpdatedAt     time.Time
	Replies       []Reply
}

// Reply is a second-level comment attached to a Response.
type Reply struct {
	ID         int64
	ResponseID int64
	UserID     int64
	Username   string
	Body       string
	CreatedAt  time.Time
}
