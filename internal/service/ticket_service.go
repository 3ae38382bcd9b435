package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk/internal/auth"
	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/events"
	"github.com/spec-kit/helpdesk/internal/observability"
	"github.com/spec-kit/helpdesk/internal/repository"
	"github.com/spec-kit/helpdesk/internal/ticketid"
	apperrors "github.com/spec-kit/helpdesk/pkg/util/errorutil"
)

// TicketService coordinates ticket lifecycle workflows.
type TicketService struct {
	store      repository.Store
	allocator  *ticketid.Allocator
	policy     *auth.Policy
	threads    *ThreadService
	stats      *StatsService
	dispatcher events.Dispatcher
	logger     *zap.Logger
	metrics    *observability.Metrics
	now        func() time.Time
}

// TicketDependencies bundles collaborators for the ticket service.
type TicketDependencies struct {
	Store      repository.Store
	Allocator  *ticketid.Allocator
	Policy     *auth.Policy
	Threads    *ThreadService
	Stats      *StatsService
	Dispatcher events.Dispatcher
	Logger     *zap.Logger
	Metrics    *observability.Metrics
	Now        func() time.Time
}

// CreateTicketInput describes ticket creation payload.
type CreateTicketInput struct {
	Subject    string
	Issue      string
	Category   domain.TicketCategory
	Priority   domain.TicketPriority
	Attachment *string
}

// ListTicketsInput narrows a role-scoped listing.
type ListTicketsInput struct {
	Statuses []domain.TicketStatus
	Limit    int
	Offset   int
}

// RespondInput describes a staff response with an optional status overwrite.
type RespondInput struct {
	TicketID string
	Response string
	Status   *domain.TicketStatus
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	s := &TicketService{
		store:      deps.Store,
		allocator:  deps.Allocator,
		policy:     deps.Policy,
		threads:    deps.Threads,
		stats:      deps.Stats,
		dispatcher: deps.Dispatcher,
		logger:     deps.Logger,
		metrics:    deps.Metrics,
		now:        deps.Now,
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.allocator == nil {
		s.allocator = ticketid.NewAllocator(s.now)
	}
	if s.threads == nil {
		s.threads = NewThreadService(s.logger)
	}
	return s
}

// CreateTicket allocates an id and stores a new yet_to_open ticket for a verified actor.
// A duplicate id from storage retries the whole creation once.
func (s *TicketService) CreateTicket(ctx context.Context, actor domain.Principal, input CreateTicketInput) (*domain.Ticket, error) {
	if err := authorize(s.policy, actor, auth.OpCreate); err != nil {
		return nil, err
	}
	if !actor.IsVerified {
		return nil, apperrors.NewForbidden("Email not verified. Please verify before creating a ticket.")
	}
	if err := validateCreate(&input); err != nil {
		return nil, err
	}

	var (
		ticket *domain.Ticket
		err    error
	)
	for attempt := 1; attempt <= 2; attempt++ {
		var attempted string
		ticket, attempted, err = s.createOnce(ctx, actor, input)
		if !errors.Is(err, repository.ErrDuplicateKey) {
			break
		}
		s.metrics.RecordTicketIDRetry()
		s.logger.Warn("ticket id collision", zap.Int("attempt", attempt), zap.String("ticket_id", attempted), zap.Error(err))
		s.resyncCounter(ctx, attempted)
	}
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateKey) {
			return nil, apperrors.NewConflict("could not allocate a unique ticket id, please try again", nil)
		}
		return nil, translate(s.logger, err, "user", map[string]any{"user_id": actor.UserID})
	}

	s.metrics.RecordTicketID(ticketid.CategoryCode(ticket.Category))
	s.metrics.RecordTransition(string(domain.ActionCreated))
	s.logger.Info("ticket created",
		zap.String("ticket_id", ticket.ID),
		zap.Int64("actor_id", actor.UserID),
		zap.String("category", string(ticket.Category)))
	s.stats.Invalidate(ctx, ticket.CreatedBy)
	s.publish(ctx, events.NewEvent(events.EventTicketCreated, ticket.ID, events.ActorFrom(actor), events.TicketCreatedPayload{
		CreatedBy: ticket.CreatedBy,
		Subject:   ticket.Subject,
		Category:  ticket.Category,
		Priority:  ticket.Priority,
	}))
	return ticket, nil
}

// resyncCounter runs outside the failed transaction, whose rollback also undid the increment.
func (s *TicketService) resyncCounter(ctx context.Context, attempted string) {
	year, code, _, err := ticketid.Parse(attempted)
	if err != nil {
		return
	}
	serial, err := s.store.Counters().Resync(ctx, year, code)
	if err != nil {
		s.logger.Warn("ticket counter resync failed", zap.String("ticket_id", attempted), zap.Error(err))
		return
	}
	s.logger.Info("ticket counter resynced", zap.Int("year", year), zap.String("code", code), zap.Int64("last_serial", serial))
}

func (s *TicketService) createOnce(ctx context.Context, actor domain.Principal, input CreateTicketInput) (*domain.Ticket, string, error) {
	var (
		created *domain.Ticket
		id      string
	)
	err := s.store.InTx(ctx, func(tx repository.Store) error {
		var err error
		id, err = s.allocator.Next(ctx, tx.Counters(), input.Category)
		if err != nil {
			return err
		}
		ticket := &domain.Ticket{
			ID:         id,
			Subject:    input.Subject,
			Issue:      input.Issue,
			Category:   input.Category,
			Priority:   input.Priority,
			Status:     domain.TicketStatusYetToOpen,
			LastAction: domain.ActionNone,
			Attachment: input.Attachment,
			CreatedBy:  actor.UserID,
		}
		if err := tx.Tickets().Create(ctx, ticket); err != nil {
			return err
		}
		if err := tx.History().Create(ctx, &domain.TicketHistory{
			TicketID: id,
			ActorID:  actor.UserID,
			Action:   domain.ActionCreated,
			NewValue: map[string]any{
				"status":   ticket.Status,
				"category": ticket.Category,
				"priority": ticket.Priority,
			},
		}); err != nil {
			return err
		}
		created, err = tx.Tickets().GetByID(ctx, id)
		return err
	})
	return created, id, err
}

func validateCreate(input *CreateTicketInput) error {
	input.Subject = strings.TrimSpace(input.Subject)
	input.Issue = strings.TrimSpace(input.Issue)
	if input.Subject == "" || input.Issue == "" {
		return apperrors.NewUnprocessable("Subject and issue are required.", nil)
	}
	if !input.Category.Valid() {
		return apperrors.NewUnprocessable(
			"Invalid category. Choose from: hardware, software, network, account_access, other",
			map[string]any{"category": input.Category})
	}
	if !input.Priority.Valid() {
		return apperrors.NewUnprocessable(
			"Invalid priority. Choose from: low, medium, high",
			map[string]any{"priority": input.Priority})
	}
	if input.Attachment != nil && strings.TrimSpace(*input.Attachment) == "" {
		input.Attachment = nil
	}
	return nil
}

// ListTickets returns tickets visible to the actor with nested responses and replies.
// Admins see everything, agents see unassigned tickets and their own, users see what they created.
func (s *TicketService) ListTickets(ctx context.Context, actor domain.Principal, input ListTicketsInput) ([]domain.Ticket, error) {
	if err := authorize(s.policy, actor, auth.OpList); err != nil {
		return nil, err
	}
	for _, status := range input.Statuses {
		if !status.Valid() {
			return nil, apperrors.NewValidationError(fmt.Sprintf("invalid status %q", status), nil)
		}
	}

	filter := repository.TicketFilter{
		Statuses: input.Statuses,
		Limit:    input.Limit,
		Offset:   input.Offset,
	}
	userID := actor.UserID
	switch actor.Role {
	case domain.RoleAdmin:
	case domain.RoleAgent:
		filter.AssignedToOrUnassigned = &userID
	default:
		filter.CreatedBy = &userID
	}

	tickets, err := s.store.Tickets().List(ctx, filter)
	if err != nil {
		return nil, translate(s.logger, err, "tickets", nil)
	}
	if tickets == nil {
		tickets = []domain.Ticket{}
	}
	if err := s.threads.LoadThreads(ctx, s.store, tickets); err != nil {
		return nil, err
	}
	return tickets, nil
}

// GetTicket returns one ticket with its thread and audit history.
func (s *TicketService) GetTicket(ctx context.Context, actor domain.Principal, ticketID string) (*domain.Ticket, []domain.TicketHistory, error) {
	if err := authorize(s.policy, actor, auth.OpGet); err != nil {
		return nil, nil, err
	}
	details := map[string]any{"ticket_id": ticketID}

	ticket, err := s.store.Tickets().GetByID(ctx, ticketID)
	if err != nil {
		return nil, nil, translate(s.logger, err, "ticket", details)
	}
	if !canView(actor, ticket) {
		return nil, nil, apperrors.NewForbidden("access denied")
	}

	tickets := []domain.Ticket{*ticket}
	if err := s.threads.LoadThreads(ctx, s.store, tickets); err != nil {
		return nil, nil, err
	}
	history, err := s.store.History().ListByTicket(ctx, ticketID)
	if err != nil {
		return nil, nil, translate(s.logger, err, "ticket", details)
	}
	if history == nil {
		history = []domain.TicketHistory{}
	}
	return &tickets[0], history, nil
}

func canView(actor domain.Principal, ticket *domain.Ticket) bool {
	switch actor.Role {
	case domain.RoleAdmin:
		return true
	case domain.RoleAgent:
		return ticket.AssignedTo == nil || *ticket.AssignedTo == actor.UserID || ticket.CreatedBy == actor.UserID
	default:
		return ticket.CreatedBy == actor.UserID
	}
}

// Assign hands the ticket to a user. Admins must name the assignee; agents always take it themselves.
func (s *TicketService) Assign(ctx context.Context, actor domain.Principal, ticketID string, assignedTo *int64) (*domain.Ticket, error) {
	if err := authorize(s.policy, actor, auth.OpAssign); err != nil {
		return nil, err
	}
	if strings.TrimSpace(ticketID) == "" {
		return nil, apperrors.NewValidationError("Ticket ID is required", nil)
	}
	target := actor.UserID
	if actor.Role == domain.RoleAdmin {
		if assignedTo == nil || *assignedTo <= 0 {
			return nil, apperrors.NewValidationError("Agent ID is required for assignment", nil)
		}
		target = *assignedTo
	}

	ticket, err := s.transition(ctx, auth.OpAssign, actor, ticketID, func(tx repository.Store, t *domain.Ticket) (*domain.TicketHistory, error) {
		if t.IsAssigned() {
			return nil, apperrors.NewConflict(alreadyAssignedMessage, map[string]any{"ticket_id": t.ID})
		}
		if _, err := tx.Users().GetByID(ctx, target); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, apperrors.NewNotFound("user", map[string]any{"user_id": target})
			}
			return nil, err
		}
		before := ticketState(t)
		t.AssignedTo = &target
		t.Status = domain.TicketStatusInProgress
		t.LastAction = domain.ActionAssigned
		return &domain.TicketHistory{Action: domain.ActionAssigned, OldValue: before, NewValue: ticketState(t)}, nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events.NewEvent(events.EventTicketAssigned, ticket.ID, events.ActorFrom(actor), events.TicketAssignedPayload{
		AssigneeID: target,
		CreatedBy:  ticket.CreatedBy,
		Subject:    ticket.Subject,
		Status:     ticket.Status,
	}))
	return ticket, nil
}

// SelfAssign lets the actor claim an unassigned ticket. Only yet_to_open moves to in_progress.
func (s *TicketService) SelfAssign(ctx context.Context, actor domain.Principal, ticketID string) (*domain.Ticket, error) {
	if err := authorize(s.policy, actor, auth.OpSelfAssign); err != nil {
		return nil, err
	}
	if strings.TrimSpace(ticketID) == "" {
		return nil, apperrors.NewValidationError("Ticket ID is required", nil)
	}

	self := actor.UserID
	ticket, err := s.transition(ctx, auth.OpSelfAssign, actor, ticketID, func(_ repository.Store, t *domain.Ticket) (*domain.TicketHistory, error) {
		if t.IsAssigned() {
			return nil, apperrors.NewConflict(alreadyAssignedMessage, map[string]any{"ticket_id": t.ID})
		}
		before := ticketState(t)
		t.AssignedTo = &self
		t.LastAction = domain.ActionSelfAssigned
		if t.Status == domain.TicketStatusYetToOpen {
			t.Status = domain.TicketStatusInProgress
		}
		return &domain.TicketHistory{Action: domain.ActionSelfAssigned, OldValue: before, NewValue: ticketState(t)}, nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events.NewEvent(events.EventTicketSelfAssigned, ticket.ID, events.ActorFrom(actor), events.TicketAssignedPayload{
		AssigneeID: self,
		CreatedBy:  ticket.CreatedBy,
		Subject:    ticket.Subject,
		Status:     ticket.Status,
	}))
	return ticket, nil
}

// Respond records a staff response and, when Status is set, overwrites the ticket status in
// the same transaction. Any valid status is accepted regardless of the current one.
func (s *TicketService) Respond(ctx context.Context, actor domain.Principal, input RespondInput) (*domain.Response, *domain.Ticket, error) {
	if err := authorize(s.policy, actor, auth.OpRespond); err != nil {
		return nil, nil, err
	}
	if strings.TrimSpace(input.TicketID) == "" || strings.TrimSpace(input.Response) == "" {
		return nil, nil, apperrors.NewValidationError("ticket_id and response are required", nil)
	}
	if input.Status != nil && !input.Status.Valid() {
		return nil, nil, apperrors.NewValidationError(
			"invalid status. Choose from: yet_to_open, in_progress, resolved",
			map[string]any{"status": *input.Status})
	}

	var response *domain.Response
	ticket, err := s.transition(ctx, auth.OpRespond, actor, input.TicketID, func(tx repository.Store, t *domain.Ticket) (*domain.TicketHistory, error) {
		created, err := s.threads.AddResponse(ctx, tx, actor, t.ID, input.Response)
		if err != nil {
			return nil, err
		}
		response = created

		entry := &domain.TicketHistory{
			Action:   domain.ActionResponded,
			NewValue: map[string]any{"response_id": created.ID},
		}
		if input.Status != nil && *input.Status != t.Status {
			entry.OldValue = map[string]any{"status": t.Status}
			entry.NewValue["status"] = *input.Status
			t.Status = *input.Status
		}
		return entry, nil
	})
	if err != nil {
		return nil, nil, err
	}

	s.publish(ctx, events.NewEvent(events.EventTicketResponded, ticket.ID, events.ActorFrom(actor), events.TicketRespondedPayload{
		ResponseID:  response.ID,
		CreatedBy:   ticket.CreatedBy,
		Subject:     ticket.Subject,
		NewStatus:   input.Status,
		BodyPreview: events.Preview(response.Body),
	}))
	return response, ticket, nil
}

// Reply appends a reply under an explicit response. Any authenticated role may reply.
func (s *TicketService) Reply(ctx context.Context, actor domain.Principal, responseID int64, text string) (*domain.Reply, error) {
	if err := authorize(s.policy, actor, auth.OpReply); err != nil {
		return nil, err
	}
	reply, parent, err := s.threads.AddReply(ctx, s.store, actor, responseID, text)
	if err != nil {
		return nil, err
	}

	s.logger.Info("reply added",
		zap.String("ticket_id", parent.TicketID),
		zap.Int64("response_id", responseID),
		zap.Int64("actor_id", actor.UserID))
	s.publish(ctx, events.NewEvent(events.EventTicketReplied, parent.TicketID, events.ActorFrom(actor), events.TicketRepliedPayload{
		ResponseID:  responseID,
		ReplyID:     reply.ID,
		Responder:   parent.Responder,
		BodyPreview: events.Preview(reply.Body),
	}))
	return reply, nil
}

// Resolve marks the ticket resolved and records who resolved it.
func (s *TicketService) Resolve(ctx context.Context, actor domain.Principal, ticketID string) (*domain.Ticket, error) {
	if err := authorize(s.policy, actor, auth.OpResolve); err != nil {
		return nil, err
	}
	if strings.TrimSpace(ticketID) == "" {
		return nil, apperrors.NewValidationError("Ticket ID is required", nil)
	}

	var oldStatus domain.TicketStatus
	resolver := actor.UserID
	ticket, err := s.transition(ctx, auth.OpResolve, actor, ticketID, func(_ repository.Store, t *domain.Ticket) (*domain.TicketHistory, error) {
		before := ticketState(t)
		oldStatus = t.Status
		t.Status = domain.TicketStatusResolved
		t.LastAction = domain.ActionResolved
		t.UpdatedBy = &resolver
		return &domain.TicketHistory{Action: domain.ActionResolved, OldValue: before, NewValue: ticketState(t)}, nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events.NewEvent(events.EventTicketResolved, ticket.ID, events.ActorFrom(actor), events.TicketStatusChangedPayload{
		CreatedBy: ticket.CreatedBy,
		Subject:   ticket.Subject,
		OldStatus: oldStatus,
		NewStatus: ticket.Status,
	}))
	return ticket, nil
}

// Close stamps closed_at from any status. Closing twice refreshes closed_at.
func (s *TicketService) Close(ctx context.Context, actor domain.Principal, ticketID string) (*domain.Ticket, error) {
	if err := authorize(s.policy, actor, auth.OpClose); err != nil {
		return nil, err
	}
	if strings.TrimSpace(ticketID) == "" {
		return nil, apperrors.NewValidationError("Ticket ID is required", nil)
	}

	ticket, err := s.transition(ctx, auth.OpClose, actor, ticketID, func(_ repository.Store, t *domain.Ticket) (*domain.TicketHistory, error) {
		before := ticketState(t)
		closedAt := s.now().UTC()
		t.LastAction = domain.ActionClosed
		t.ClosedAt = &closedAt
		after := ticketState(t)
		after["closed_at"] = closedAt
		return &domain.TicketHistory{Action: domain.ActionClosed, OldValue: before, NewValue: after}, nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events.NewEvent(events.EventTicketClosed, ticket.ID, events.ActorFrom(actor), events.TicketStatusChangedPayload{
		CreatedBy: ticket.CreatedBy,
		Subject:   ticket.Subject,
		OldStatus: ticket.Status,
		NewStatus: ticket.Status,
	}))
	return ticket, nil
}

type applyFunc func(tx repository.Store, ticket *domain.Ticket) (*domain.TicketHistory, error)

// transition locks the ticket row, applies the guarded change, writes the ticket and its
// history entry, and commits. Nothing is written when apply fails.
func (s *TicketService) transition(ctx context.Context, operation string, actor domain.Principal, ticketID string, apply applyFunc) (*domain.Ticket, error) {
	var (
		updated *domain.Ticket
		action  domain.TicketAction
	)
	err := s.store.InTx(ctx, func(tx repository.Store) error {
		ticket, err := tx.Tickets().GetForUpdate(ctx, ticketID)
		if err != nil {
			return err
		}
		entry, err := apply(tx, ticket)
		if err != nil {
			return err
		}
		if err := tx.Tickets().Update(ctx, ticket); err != nil {
			return err
		}
		entry.TicketID = ticket.ID
		entry.ActorID = actor.UserID
		if err := tx.History().Create(ctx, entry); err != nil {
			return err
		}
		action = entry.Action
		updated, err = tx.Tickets().GetByID(ctx, ticket.ID)
		return err
	})
	if err != nil {
		if apperrors.KindOf(err) == apperrors.KindConflict {
			s.metrics.RecordConflict(operation)
			s.logger.Warn("ticket transition rejected",
				zap.String("ticket_id", ticketID),
				zap.String("operation", operation),
				zap.Int64("actor_id", actor.UserID))
		}
		return nil, translate(s.logger, err, "ticket", map[string]any{"ticket_id": ticketID})
	}

	s.metrics.RecordTransition(string(action))
	s.logger.Info("ticket transition",
		zap.String("ticket_id", updated.ID),
		zap.String("action", string(action)),
		zap.Int64("actor_id", actor.UserID),
		zap.String("status", string(updated.Status)))
	s.stats.Invalidate(ctx, updated.CreatedBy)
	return updated, nil
}

func ticketState(t *domain.Ticket) map[string]any {
	state := map[string]any{
		"status":      t.Status,
		"last_action": t.LastAction,
	}
	if t.AssignedTo != nil {
		state["assigned_to"] = *t.AssignedTo
	}
	return state
}

func (s *TicketService) publish(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	_ = s.dispatcher.Publish(ctx, event)
}
