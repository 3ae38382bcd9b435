package dto

import (
	"time"

	"github.com/spec-kit/helpdesk/internal/domain"
)

// CreateTicketRequest payload. Accepted as JSON or multipart form; the
// multipart variant may carry an "attachment" file part.
type CreateTicketRequest struct {
	Subject  string                `json:"subject" form:"subject"`
	Issue    string                `json:"issue" form:"issue"`
	Category domain.TicketCategory `json:"category" form:"category"`
	Priority domain.TicketPriority `json:"priority" form:"priority"`
}

// TicketIDRequest is the body of self-assign, resolve and close.
type TicketIDRequest struct {
	TicketID string `json:"ticket_id" validate:"required"`
}

// AssignRequest payload. AssignedTo is ignored for agents.
type AssignRequest struct {
	TicketID   string `json:"ticket_id" validate:"required"`
	AssignedTo *int64 `json:"assigned_to" validate:"omitempty,gt=0"`
}

// RespondRequest payload.
type RespondRequest struct {
	TicketID string               `json:"ticket_id" validate:"required"`
	Response string               `json:"response" validate:"required"`
	Status   *domain.TicketStatus `json:"status" validate:"omitempty,oneof=yet_to_open in_progress resolved"`
}

// ReplyRequest payload.
type ReplyRequest struct {
	ResponseID int64  `json:"response_id" validate:"required,gt=0"`
	Reply      string `json:"reply" validate:"required"`
}

// TicketResponse is the public view of a ticket. Responses is only rendered when the thread was loaded.
type TicketResponse struct {
	TicketID       string                `json:"ticket_id"`
	Subject        string                `json:"subject"`
	Issue          string                `json:"issue"`
	Category       domain.TicketCategory `json:"category"`
	Priority       domain.TicketPriority `json:"priority"`
	Status         domain.TicketStatus   `json:"status"`
	LastAction     *string               `json:"last_action"`
	Attachment     *string               `json:"attachment"`
	CreatedBy      int64                 `json:"created_by"`
	CreatedByName  string                `json:"created_by_name,omitempty"`
	AssignedTo     *int64                `json:"assigned_to"`
	AssignedToName *string               `json:"assigned_to_name,omitempty"`
	UpdatedBy      *int64                `json:"updated_by"`
	CreatedAt      time.Time             `json:"created_at"`
	UpdatedAt      time.Time             `json:"updated_at"`
	ClosedAt       *time.Time            `json:"closed_at"`
	Responses      *[]ResponseView       `json:"responses,omitempty"`
}

// ResponseView is a staff response with its replies.
type ResponseView struct {
	ResponseID    int64       `json:"response_id"`
	TicketID      string      `json:"ticket_id"`
	Responder     int64       `json:"responder"`
	ResponderName string      `json:"responder_name"`
	Response      string      `json:"response"`
	ResponseType  domain.Role `json:"response_type"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
	Replies       []ReplyView `json:"replies"`
}

// ReplyView is a reply under a response.
type ReplyView struct {
	ReplyID    int64     `json:"reply_id"`
	ResponseID int64     `json:"response_id"`
	UserID     int64     `json:"user_id"`
	Username   string    `json:"username"`
	Reply      string    `json:"reply"`
	CreatedAt  time.Time `json:"created_at"`
}

// HistoryView is one audit trail entry.
type HistoryView struct {
	ID        int64          `json:"id"`
	ActorID   int64          `json:"actor_id"`
	Action    string         `json:"action"`
	OldValue  map[string]any `json:"old_value,omitempty"`
	NewValue  map[string]any `json:"new_value,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// TicketDetailResponse wraps a ticket with its audit trail.
type TicketDetailResponse struct {
	TicketResponse
	History []HistoryView `json:"history"`
}

// RespondResult is returned by the respond endpoint.
type RespondResult struct {
	Response ResponseView   `json:"response"`
	Ticket   TicketResponse `json:"ticket"`
}

// NewTicketResponse maps a ticket, including any loaded thread.
func NewTicketResponse(t *domain.Ticket) TicketResponse {
	view := TicketResponse{
		TicketID:       t.ID,
		Subject:        t.Subject,
		Issue:          t.Issue,
		Category:       t.Category,
		Priority:       t.Priority,
		Status:         t.Status,
		Attachment:     t.Attachment,
		CreatedBy:      t.CreatedBy,
		CreatedByName:  t.CreatedByName,
		AssignedTo:     t.AssignedTo,
		AssignedToName: t.AssignedToName,
		UpdatedBy:      t.UpdatedBy,
		CreatedAt:      t.CreatedAt,
		UpdatedAt:      t.UpdatedAt,
		ClosedAt:       t.ClosedAt,
	}
	if t.LastAction != domain.ActionNone {
		action := string(t.LastAction)
		view.LastAction = &action
	}
	if t.Responses != nil {
		responses := make([]ResponseView, 0, len(t.Responses))
		for i := range t.Responses {
			responses = append(responses, NewResponseView(&t.Responses[i]))
		}
		view.Responses = &responses
	}
	return view
}

// NewTicketList maps a slice of tickets; never nil.
func NewTicketList(tickets []domain.Ticket) []TicketResponse {
	items := make([]TicketResponse, 0, len(tickets))
	for i := range tickets {
		items = append(items, NewTicketResponse(&tickets[i]))
	}
	return items
}

// NewTicketDetail maps a ticket plus history.
func NewTicketDetail(t *domain.Ticket, history []domain.TicketHistory) TicketDetailResponse {
	entries := make([]HistoryView, 0, len(history))
	for _, h := range history {
		entries = append(entries, HistoryView{
			ID:        h.ID,
			ActorID:   h.ActorID,
			Action:    string(h.Action),
			OldValue:  h.OldValue,
			NewValue:  h.NewValue,
			CreatedAt: h.CreatedAt,
		})
	}
	return TicketDetailResponse{TicketResponse: NewTicketResponse(t), History: entries}
}

// NewResponseView maps a response and its replies.
func NewResponseView(r *domain.Response) ResponseView {
	replies := make([]ReplyView, 0, len(r.Replies))
	for i := range r.Replies {
		replies = append(replies, NewReplyView(&r.Replies[i]))
	}
	return ResponseView{
		ResponseID:    r.ID,
		TicketID:      r.TicketID,
		Responder:     r.Responder,
		ResponderName: r.ResponderName,
		Response:      r.Body,
		ResponseType:  r.ResponseType,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
		Replies:       replies,
	}
}

func NewReplyView(r *domain.Reply) ReplyView {
	return ReplyView{
		ReplyID:    r.ID,
		ResponseID: r.ResponseID,
		UserID:     r.UserID,
		Username:   r.Username,
		Reply:      r.Body,
		CreatedAt:  r.CreatedAt,
	}
}
