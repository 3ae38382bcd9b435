package handlers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk/internal/service"
	apperrors "github.com/spec-kit/helpdesk/pkg/util/errorutil"
)

// StatsHandler serves per-creator ticket counts.
type StatsHandler struct {
	service *service.StatsService
}

func NewStatsHandler(statsService *service.StatsService) *StatsHandler {
	return &StatsHandler{service: statsService}
}

// GetStats GET /api/ticket/ticket-stat/:user_id.
func (h *StatsHandler) GetStats(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	userID, err := strconv.ParseInt(c.Params("user_id"), 10, 64)
	if err != nil || userID <= 0 {
		return apperrors.NewValidationError("user_id must be a positive integer", nil)
	}
	stats, err := h.service.GetStats(c.UserContext(), *principal, userID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": stats})
}
