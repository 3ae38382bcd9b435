package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/repository"
	apperrors "github.com/spec-kit/helpdesk/pkg/util/errorutil"
)

// ThreadService manages the two-level response/reply thread. Both levels are append-only.
type ThreadService struct {
	logger *zap.Logger
}

// NewThreadService constructs the service.
func NewThreadService(logger *zap.Logger) *ThreadService {
	return &ThreadService{logger: logger}
}

// AddResponse appends a staff response to ticketID using the supplied store, which is
// normally the caller's transaction. The response type is the responder's current role.
func (s *ThreadService) AddResponse(ctx context.Context, store repository.Store, actor domain.Principal, ticketID, text string) (*domain.Response, error) {
	text = strings.TrimSpace(text)
	if strings.TrimSpace(ticketID) == "" || text == "" {
		return nil, apperrors.NewValidationError("ticket_id and response are required", nil)
	}
	response := &domain.Response{
		TicketID:     ticketID,
		Responder:    actor.UserID,
		Body:         text,
		ResponseType: actor.Role,
	}
	if err := store.Threads().CreateResponse(ctx, response); err != nil {
		return nil, translate(s.logger, err, "ticket", map[string]any{"ticket_id": ticketID})
	}
	return response, nil
}

// AddReply appends a reply to an existing response. responseID must be explicit.
func (s *ThreadService) AddReply(ctx context.Context, store repository.Store, actor domain.Principal, responseID int64, text string) (*domain.Reply, *domain.Response, error) {
	text = strings.TrimSpace(text)
	if responseID <= 0 || text == "" {
		return nil, nil, apperrors.NewValidationError("response_id and reply are required", nil)
	}
	details := map[string]any{"response_id": responseID}

	parent, err := store.Threads().GetResponse(ctx, responseID)
	if err != nil {
		return nil, nil, translate(s.logger, err, "response", details)
	}
	reply := &domain.Reply{
		ResponseID: responseID,
		UserID:     actor.UserID,
		Body:       text,
	}
	if err := store.Threads().CreateReply(ctx, reply); err != nil {
		return nil, nil, translate(s.logger, err, "response", details)
	}
	return reply, parent, nil
}

// LoadThreads attaches responses, and their replies, to tickets in created_at order.
func (s *ThreadService) LoadThreads(ctx context.Context, store repository.Store, tickets []domain.Ticket) error {
	if len(tickets) == 0 {
		return nil
	}
	ticketIDs := make([]string, len(tickets))
	for i := range tickets {
		ticketIDs[i] = tickets[i].ID
	}

	responses, err := store.Threads().ListResponses(ctx, ticketIDs)
	if err != nil {
		return translate(s.logger, err, "responses", nil)
	}
	responseIDs := make([]int64, len(responses))
	for i := range responses {
		responseIDs[i] = responses[i].ID
	}
	replies, err := store.Threads().ListReplies(ctx, responseIDs)
	if err != nil {
		return translate(s.logger, err, "replies", nil)
	}

	repliesByResponse := make(map[int64][]domain.Reply, len(responses))
	for _, reply := range replies {
		repliesByResponse[reply.ResponseID] = append(repliesByResponse[reply.ResponseID], reply)
	}
	responsesByTicket := make(map[string][]domain.Response, len(tickets))
	for _, response := range responses {
		response.Replies = repliesByResponse[response.ID]
		if response.Replies == nil {
			response.Replies = []domain.Reply{}
		}
		responsesByTicket[response.TicketID] = append(responsesByTicket[response.TicketID], response)
	}
	for i := range tickets {
		tickets[i].Responses = responsesByTicket[tickets[i].ID]
		if tickets[i].Responses == nil {
			tickets[i].Responses = []domain.Response{}
		}
	}
	return nil
}
