package handlers

import (
	"github.com/ahmetcoskunkizilkaya/anonchat-backend/internal/dto"
	"github.com/ahmetcoskunkizilkaya/anonchat-backend/internal/services"
	"github.com/gofiber/fiber/v2"
)

type ProfileHandler struct {
	sessions *services.SessionManager
}

func NewProfileHandler(sessions *services.SessionManager) *ProfileHandler {
	return &ProfileHandler{sessions: sessions}
}

// SetFilter stores the partner filter. It is accepted from free users too but
// only narrows matching while premium is active.
func (h *ProfileHandler) SetFilter(c *fiber.Ctx) error {
	userID, ok := userFrom(c)
	if !ok {
		return unauthorized(c)
	}

	var req dto.FilterRequest
	if err := c.BodyParser(&req); err != nil {
		return badBody(c)
	}

	res, err := h.sessions.SetFilter(c.UserContext(), userID, services.FilterUpdate{
		Gender: req.Gender,
		AgeMin: req.AgeMin,
		AgeMax: req.AgeMax,
	})
	if err != nil {
		return errorResponse(c, err, "set_filter")
	}
	return commandResponse(c, res)
}

func (h *ProfileHandler) SetGender(c *fiber.Ctx) error {
	userID, ok := userFrom(c)
	if !ok {
		return unauthorized(c)
	}

	var req dto.GenderRequest
	if err := c.BodyParser(&req); err != nil {
		return badBody(c)
	}

	res, err := h.sessions.SetGender(c.UserContext(), userID, req.Gender)
	if err != nil {
		return errorResponse(c, err, "set_gender")
	}
	return commandResponse(c, res)
}

func (h *ProfileHandler) SetAge(c *fiber.Ctx) error {
	userID, ok := userFrom(c)
	if !ok {
		return unauthorized(c)
	}

	var req dto.AgeRequest
	if err := c.BodyParser(&req); err != nil {
		return badBody(c)
	}

	res, err := h.sessions.SetAge(c.UserContext(), userID, req.Age)
	if err != nil {
		return errorResponse(c, err, "set_age")
	}
	return commandResponse(c, res)
}

// BeginInput asks the client to send the value of :field as free text next.
func (h *ProfileHandler) BeginInput(c *fiber.Ctx) error {
	userID, ok := userFrom(c)
	if !ok {
		return unauthorized(c)
	}

	res, err := h.sessions.BeginInput(c.UserContext(), userID, c.Params("field"))
	if err != nil {
		return errorResponse(c, err, "begin_input")
	}
	return commandResponse(c, res)
}

func (h *ProfileHandler) SubmitInput(c *fiber.Ctx) error {
	userID, ok := userFrom(c)
	if !ok {
		return unauthorized(c)
	}

	var req dto.InputRequest
	if err := c.BodyParser(&req); err != nil {
		return badBody(c)
	}

	res, err := h.sessions.SubmitInput(c.UserContext(), userID, req.Text)
	if err != nil {
		return errorResponse(c, err, "submit_input")
	}
	return commandResponse(c, res)
}
