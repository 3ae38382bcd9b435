package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk/internal/api/dto"
	"github.com/spec-kit/helpdesk/internal/auth"
	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/service"
	"github.com/spec-kit/helpdesk/internal/storage"
	apperrors "github.com/spec-kit/helpdesk/pkg/util/errorutil"
)

// TicketsHandler exposes the ticket lifecycle endpoints.
type TicketsHandler struct {
	service     *service.TicketService
	attachments storage.AttachmentStore
	logger      *zap.Logger
}

// NewTicketsHandler constructs handler. attachments may be nil, in which case uploads are rejected.
func NewTicketsHandler(ticketService *service.TicketService, attachments storage.AttachmentStore, logger *zap.Logger) *TicketsHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TicketsHandler{service: ticketService, attachments: attachments, logger: logger}
}

// CreateTicket POST /api/ticket/create-ticket.
func (h *TicketsHandler) CreateTicket(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	var req dto.CreateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	input := service.CreateTicketInput{
		Subject:  req.Subject,
		Issue:    req.Issue,
		Category: domain.TicketCategory(strings.ToLower(strings.TrimSpace(string(req.Category)))),
		Priority: domain.TicketPriority(strings.ToLower(strings.TrimSpace(string(req.Priority)))),
	}
	attachment, err := h.saveAttachment(c)
	if err != nil {
		return err
	}
	input.Attachment = attachment

	ticket, err := h.service.CreateTicket(c.UserContext(), *principal, input)
	if err != nil {
		h.discardAttachment(c.UserContext(), attachment)
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"message": "Ticket created successfully",
		"data":    dto.NewTicketResponse(ticket),
	})
}

func (h *TicketsHandler) saveAttachment(c *fiber.Ctx) (*string, error) {
	if !strings.HasPrefix(string(c.Request().Header.ContentType()), fiber.MIMEMultipartForm) {
		return nil, nil
	}
	header, err := c.FormFile("attachment")
	if err != nil {
		return nil, nil
	}
	if h.attachments == nil {
		return nil, apperrors.NewValidationError("attachments are not accepted", nil)
	}
	file, err := header.Open()
	if err != nil {
		return nil, apperrors.NewValidationError("unreadable attachment", nil)
	}
	defer file.Close()

	name, err := h.attachments.Save(c.UserContext(), header.Filename, file)
	if err != nil {
		if errors.Is(err, storage.ErrTooLarge) {
			return nil, apperrors.NewDomainError(apperrors.CodeValidation, err.Error(), http.StatusRequestEntityTooLarge, nil)
		}
		return nil, apperrors.NewStorageError(err)
	}
	return &name, nil
}

// discardAttachment removes an upload whose ticket was never created.
func (h *TicketsHandler) discardAttachment(ctx context.Context, name *string) {
	if name == nil || h.attachments == nil {
		return
	}
	if err := h.attachments.Delete(context.WithoutCancel(ctx), *name); err != nil {
		h.logger.Warn("orphaned attachment not removed", zap.String("attachment", *name), zap.Error(err))
	}
}

// ListTickets GET /api/ticket/get-ticket.
func (h *TicketsHandler) ListTickets(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	input, err := parseListQuery(c)
	if err != nil {
		return err
	}
	tickets, err := h.service.ListTickets(c.UserContext(), *principal, input)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketList(tickets)})
}

// GetTicket GET /api/ticket/:ticket_id.
func (h *TicketsHandler) GetTicket(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	ticket, history, err := h.service.GetTicket(c.UserContext(), *principal, c.Params("ticket_id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketDetail(ticket, history)})
}

// Assign POST /api/ticket/assign.
func (h *TicketsHandler) Assign(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	var req dto.AssignRequest
	if err := parseAndValidate(c, &req); err != nil {
		return err
	}
	ticket, err := h.service.Assign(c.UserContext(), *principal, req.TicketID, req.AssignedTo)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"message": "Ticket assigned successfully",
		"data":    dto.NewTicketResponse(ticket),
	})
}

// SelfAssign POST /api/ticket/self-assign.
func (h *TicketsHandler) SelfAssign(c *fiber.Ctx) error {
	return h.ticketAction(c, "Ticket self-assigned successfully", h.service.SelfAssign)
}

// Resolve POST /api/ticket/resolve.
func (h *TicketsHandler) Resolve(c *fiber.Ctx) error {
	return h.ticketAction(c, "Ticket resolved successfully", h.service.Resolve)
}

// Close POST /api/ticket/close.
func (h *TicketsHandler) Close(c *fiber.Ctx) error {
	return h.ticketAction(c, "Ticket closed successfully", h.service.Close)
}

type ticketActionFunc func(ctx context.Context, actor domain.Principal, ticketID string) (*domain.Ticket, error)

func (h *TicketsHandler) ticketAction(c *fiber.Ctx, message string, action ticketActionFunc) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	var req dto.TicketIDRequest
	if err := parseAndValidate(c, &req); err != nil {
		return err
	}
	ticket, err := action(c.UserContext(), *principal, req.TicketID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"message": message, "data": dto.NewTicketResponse(ticket)})
}

// Respond POST /api/ticket/respond.
func (h *TicketsHandler) Respond(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	var req dto.RespondRequest
	if err := parseAndValidate(c, &req); err != nil {
		return err
	}
	response, ticket, err := h.service.Respond(c.UserContext(), *principal, service.RespondInput{
		TicketID: req.TicketID,
		Response: req.Response,
		Status:   req.Status,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"message": "Response added successfully",
		"data": dto.RespondResult{
			Response: dto.NewResponseView(response),
			Ticket:   dto.NewTicketResponse(ticket),
		},
	})
}

// Reply POST /api/ticket/reply.
func (h *TicketsHandler) Reply(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	var req dto.ReplyRequest
	if err := parseAndValidate(c, &req); err != nil {
		return err
	}
	reply, err := h.service.Reply(c.UserContext(), *principal, req.ResponseID, req.Reply)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"message": "Reply added successfully",
		"data":    dto.NewReplyView(reply),
	})
}

func parseListQuery(c *fiber.Ctx) (service.ListTicketsInput, error) {
	input := service.ListTicketsInput{}
	if statusStr := c.Query("status"); statusStr != "" {
		for _, part := range strings.Split(statusStr, ",") {
			if part = strings.TrimSpace(part); part != "" {
				input.Statuses = append(input.Statuses, domain.TicketStatus(part))
			}
		}
	}
	var err error
	if input.Limit, err = queryInt(c, "limit"); err != nil {
		return input, err
	}
	if input.Offset, err = queryInt(c, "offset"); err != nil {
		return input, err
	}
	return input, nil
}

func queryInt(c *fiber.Ctx, key string) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, apperrors.NewValidationError(key+" must be a non-negative integer", nil)
	}
	return v, nil
}

func requirePrincipal(c *fiber.Ctx) (*domain.Principal, error) {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.UserID <= 0 {
		return nil, apperrors.NewUnauthorized("authentication required")
	}
	return principal, nil
}

func parseAndValidate(c *fiber.Ctx, out any) error {
	if err := c.BodyParser(out); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	return apperrors.ValidateStruct(out, http.StatusBadRequest)
}
