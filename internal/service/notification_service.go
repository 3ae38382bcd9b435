package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk/internal/events"
	"github.com/spec-kit/helpdesk/internal/notify"
	"github.com/spec-kit/helpdesk/internal/repository"
)

// NotificationQueue accepts messages for asynchronous delivery.
type NotificationQueue interface {
	Enqueue(msg notify.Message) error
}

// NotificationService turns committed ticket events into emails.
type NotificationService struct {
	dispatcher events.Dispatcher
	users      repository.UserRepository
	queue      NotificationQueue
	logger     *zap.Logger
}

// NewNotificationService creates the service.
func NewNotificationService(dispatcher events.Dispatcher, users repository.UserRepository, queue NotificationQueue, logger *zap.Logger) *NotificationService {
	return &NotificationService{
		dispatcher: dispatcher,
		users:      users,
		queue:      queue,
		logger:     logger,
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventTicketCreated, n.handleTicketCreated)
	n.dispatcher.Subscribe(events.EventTicketAssigned, n.handleTicketAssigned)
	n.dispatcher.Subscribe(events.EventTicketSelfAssigned, n.handleTicketAssigned)
	n.dispatcher.Subscribe(events.EventTicketResponded, n.handleTicketResponded)
}

func (n *NotificationService) handleTicketCreated(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketCreatedPayload)
	if !ok {
		return fmt.Errorf("unexpected payload %T for %s", event.Payload, event.Type)
	}
	user, err := n.users.GetByID(ctx, payload.CreatedBy)
	if err != nil {
		return fmt.Errorf("load ticket creator: %w", err)
	}
	return n.enqueue(event, notify.TicketCreated(user.Email, user.Username, event.TicketID, payload.Subject))
}

func (n *NotificationService) handleTicketAssigned(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketAssignedPayload)
	if !ok {
		return fmt.Errorf("unexpected payload %T for %s", event.Payload, event.Type)
	}
	// Self-assignment needs no email to oneself.
	if payload.AssigneeID == event.Actor.UserID {
		n.logger.Debug("skipping assignment notification for self",
			zap.String("ticket_id", event.TicketID))
		return nil
	}
	user, err := n.users.GetByID(ctx, payload.AssigneeID)
	if err != nil {
		return fmt.Errorf("load assignee: %w", err)
	}
	return n.enqueue(event, notify.TicketAssigned(user.Email, user.Username, event.TicketID, payload.Subject))
}

func (n *NotificationService) handleTicketResponded(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketRespondedPayload)
	if !ok {
		return fmt.Errorf("unexpected payload %T for %s", event.Payload, event.Type)
	}
	user, err := n.users.GetByID(ctx, payload.CreatedBy)
	if err != nil {
		return fmt.Errorf("load ticket creator: %w", err)
	}
	return n.enqueue(event, notify.TicketResponded(user.Email, user.Username, event.TicketID, payload.Subject, payload.BodyPreview))
}

func (n *NotificationService) enqueue(event events.Event, msg notify.Message) error {
	if msg.To == "" {
		n.logger.Debug("recipient has no email", zap.String("ticket_id", event.TicketID))
		return nil
	}
	if err := n.queue.Enqueue(msg); err != nil {
		return errors.Join(fmt.Errorf("enqueue %s notification", event.Type), err)
	}
	n.logger.Debug("notification queued",
		zap.String("ticket_id", event.TicketID),
		zap.String("event_type", string(event.Type)))
	return nil
}
