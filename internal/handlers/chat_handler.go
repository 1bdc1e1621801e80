package handlers

import (
	"context"

	"github.com/ahmetcoskunkizilkaya/anonchat-backend/internal/dto"
	"github.com/ahmetcoskunkizilkaya/anonchat-backend/internal/services"
	"github.com/gofiber/fiber/v2"
)

// ChatHandler exposes the chat commands. Every command commits its transition
// first and then hands the resulting events to the dispatcher.
type ChatHandler struct {
	sessions   *services.SessionManager
	moderation *services.ModerationService
	dispatcher *services.Dispatcher
	registry   *services.UserRegistry
	limiter    *services.RateLimiter
}

func NewChatHandler(
	sessions *services.SessionManager,
	moderation *services.ModerationService,
	dispatcher *services.Dispatcher,
	registry *services.UserRegistry,
	limiter *services.RateLimiter,
) *ChatHandler {
	return &ChatHandler{
		sessions:   sessions,
		moderation: moderation,
		dispatcher: dispatcher,
		registry:   registry,
		limiter:    limiter,
	}
}

func (h *ChatHandler) Search(c *fiber.Ctx) error {
	return h.run(c, "search", h.sessions.Search)
}

func (h *ChatHandler) Stop(c *fiber.Ctx) error {
	return h.run(c, "stop", h.sessions.Stop)
}

func (h *ChatHandler) Next(c *fiber.Ctx) error {
	return h.run(c, "next", h.sessions.Next)
}

func (h *ChatHandler) Report(c *fiber.Ctx) error {
	userID, ok := userFrom(c)
	if !ok {
		return unauthorized(c)
	}

	var req dto.ReportRequest
	if err := c.BodyParser(&req); err != nil {
		return badBody(c)
	}

	res, err := h.moderation.SubmitReport(c.UserContext(), userID, req.Reason)
	if err != nil {
		return errorResponse(c, err, "report")
	}
	h.dispatcher.Dispatch(c.UserContext(), res.Events)
	return commandResponse(c, res)
}

func (h *ChatHandler) SendMessage(c *fiber.Ctx) error {
	userID, ok := userFrom(c)
	if !ok {
		return unauthorized(c)
	}

	var req dto.MessageRequest
	if err := c.BodyParser(&req); err != nil {
		return badBody(c)
	}

	res, err := h.dispatcher.Forward(c.UserContext(), userID, req.Text)
	if err != nil {
		return errorResponse(c, err, "forward")
	}
	return commandResponse(c, res)
}

func (h *ChatHandler) Me(c *fiber.Ctx) error {
	userID, ok := userFrom(c)
	if !ok {
		return unauthorized(c)
	}

	u, err := h.registry.GetOrCreate(c.UserContext(), userID)
	if err != nil {
		return errorResponse(c, err, "me")
	}

	return c.JSON(dto.MeResponse{
		ID:            u.ID,
		Status:        string(u.Status),
		PartnerID:     u.Partner(),
		AwaitingInput: u.AwaitingInput,
		Gender:        u.Gender,
		Age:           u.Age,
		IsPremium:     u.PremiumActive(h.registry.Now()),
		GenderFilter:  u.GenderFilter,
		AgeMin:        u.AgeMin,
		AgeMax:        u.AgeMax,
		TotalChats:    u.TotalChats,
		TotalMessages: u.TotalMessages,
		NextRemaining: h.limiter.Remaining(u),
		IsBanned:      u.IsBanned,
	})
}

// Online returns the public counters shown next to the search button.
func (h *ChatHandler) Online(c *fiber.Ctx) error {
	stats, err := h.registry.Stats(c.UserContext())
	if err != nil {
		return errorResponse(c, err, "online")
	}
	return c.JSON(fiber.Map{
		"total_users": stats.TotalUsers,
		"online":      stats.Searching + 2*stats.ChattingPairs,
	})
}

func (h *ChatHandler) run(c *fiber.Ctx, action string, cmd func(ctx context.Context, id string) (services.Result, error)) error {
	userID, ok := userFrom(c)
	if !ok {
		return unauthorized(c)
	}

	res, err := cmd(c.UserContext(), userID)
	// Events from a partially applied transition are still delivered.
	h.dispatcher.Dispatch(c.UserContext(), res.Events)
	if err != nil {
		return errorResponse(c, err, action)
	}
	return commandResponse(c, res)
}
