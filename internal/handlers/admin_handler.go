package handlers

import (
	"fmt"

	"github.com/ahmetcoskunkizilkaya/anonchat-backend/internal/dto"
	"github.com/ahmetcoskunkizilkaya/anonchat-backend/internal/models"
	"github.com/ahmetcoskunkizilkaya/anonchat-backend/internal/services"
	"github.com/gofiber/fiber/v2"
)

// AdminHandler is the out-of-band operator surface. Writes go straight to the
// store and are visible to the core on its next read.
type AdminHandler struct {
	registry   *services.UserRegistry
	moderation *services.ModerationService
	dispatcher *services.Dispatcher
}

func NewAdminHandler(registry *services.UserRegistry, moderation *services.ModerationService, dispatcher *services.Dispatcher) *AdminHandler {
	return &AdminHandler{registry: registry, moderation: moderation, dispatcher: dispatcher}
}

func (h *AdminHandler) Stats(c *fiber.Ctx) error {
	stats, err := h.registry.Stats(c.UserContext())
	if err != nil {
		return errorResponse(c, err, "admin_stats")
	}
	return c.JSON(stats)
}

func (h *AdminHandler) ListUsers(c *fiber.Ctx) error {
	status := c.Query("status", "")
	switch models.UserStatus(status) {
	case "", models.StatusIdle, models.StatusSearching, models.StatusChatting:
	default:
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: true, Message: "Invalid status filter",
		})
	}
	limit, offset := pagination(c)

	users, total, err := h.registry.List(c.UserContext(), status, limit, offset)
	if err != nil {
		return errorResponse(c, err, "admin_list_users")
	}

	return c.JSON(fiber.Map{
		"users":  users,
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

func (h *AdminHandler) ListReports(c *fiber.Ctx) error {
	limit, offset := pagination(c)

	reports, total, err := h.moderation.ListReports(c.UserContext(), c.Query("reported_id", ""), limit, offset)
	if err != nil {
		return errorResponse(c, err, "admin_list_reports")
	}

	return c.JSON(fiber.Map{
		"reports": reports,
		"total":   total,
		"limit":   limit,
		"offset":  offset,
	})
}

func (h *AdminHandler) SetBanned(c *fiber.Ctx) error {
	var req dto.SetBannedRequest
	if err := c.BodyParser(&req); err != nil {
		return badBody(c)
	}
	if req.Banned == nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: true, Message: "banned is required",
		})
	}

	res, err := h.moderation.SetBanned(c.UserContext(), c.Params("id"), *req.Banned)
	if err != nil {
		return errorResponse(c, err, "admin_ban")
	}
	h.dispatcher.Dispatch(c.UserContext(), res.Events)
	return commandResponse(c, res)
}

func (h *AdminHandler) SetPremium(c *fiber.Ctx) error {
	var req dto.SetPremiumRequest
	if err := c.BodyParser(&req); err != nil {
		return badBody(c)
	}
	if req.Days < 0 || req.Days > dto.MaxPremiumDays {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: true, Message: fmt.Sprintf("days must be between 0 and %d", dto.MaxPremiumDays),
		})
	}

	id := c.Params("id")
	var err error
	if req.Days == 0 {
		err = h.registry.RevokePremium(c.UserContext(), id)
	} else {
		until := h.registry.Now().AddDate(0, 0, req.Days)
		err = h.registry.SetPremium(c.UserContext(), id, &until)
	}
	if err != nil {
		return errorResponse(c, err, "admin_premium")
	}
	return commandResponse(c, services.Result{Outcome: services.OutcomeUpdated})
}
