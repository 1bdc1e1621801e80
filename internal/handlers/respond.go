package handlers

import (
	"errors"
	"log/slog"
	"strconv"

	"github.com/ahmetcoskunkizilkaya/anonchat-backend/internal/dto"
	"github.com/ahmetcoskunkizilkaya/anonchat-backend/internal/middleware"
	"github.com/ahmetcoskunkizilkaya/anonchat-backend/internal/services"
	"github.com/gofiber/fiber/v2"
)

// validationErrors are rejected with 400 and leave state untouched.
var validationErrors = []error{
	services.ErrInvalidUserID,
	services.ErrInvalidGender,
	services.ErrInvalidAge,
	services.ErrInvalidFilter,
	services.ErrInvalidField,
	services.ErrNoPendingInput,
	services.ErrInvalidReason,
	services.ErrEmptyMessage,
}

func outcomeStatus(o services.Outcome) int {
	switch o {
	case services.OutcomeAlreadyChatting, services.OutcomeAlreadySearching,
		services.OutcomeNotInChat, services.OutcomeInvalidContext:
		return fiber.StatusConflict
	case services.OutcomeQuotaExceeded:
		return fiber.StatusTooManyRequests
	case services.OutcomeBanned:
		return fiber.StatusForbidden
	default:
		return fiber.StatusOK
	}
}

func commandResponse(c *fiber.Ctx, res services.Result) error {
	return c.Status(outcomeStatus(res.Outcome)).JSON(dto.CommandResponse{
		Outcome:   string(res.Outcome),
		PartnerID: res.PartnerID,
	})
}

func errorResponse(c *fiber.Ctx, err error, action string) error {
	for _, v := range validationErrors {
		if errors.Is(err, v) {
			return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
				Error: true, Message: err.Error(),
			})
		}
	}
	if errors.Is(err, services.ErrUserNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{
			Error: true, Message: err.Error(),
		})
	}

	slog.Error("command failed", "action", action, "path", c.Path(), "error", err)
	return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
		Error: true, Message: "Internal server error",
	})
}

func unauthorized(c *fiber.Ctx) error {
	return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{
		Error: true, Message: "Unauthorized",
	})
}

func badBody(c *fiber.Ctx) error {
	return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
		Error: true, Message: "Invalid request body",
	})
}

// userFrom resolves the caller from the verified token.
func userFrom(c *fiber.Ctx) (string, bool) {
	id, err := middleware.GetUserID(c)
	if err != nil {
		return "", false
	}
	return id, true
}

func pagination(c *fiber.Ctx) (limit, offset int) {
	limit, _ = strconv.Atoi(c.Query("limit", "20"))
	offset, _ = strconv.Atoi(c.Query("offset", "0"))
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
