package middleware

import (
	"crypto/subtle"

	"github.com/ahmetcoskunkizilkaya/anonchat-backend/internal/config"
	"github.com/ahmetcoskunkizilkaya/anonchat-backend/internal/dto"
	"github.com/gofiber/fiber/v2"
)

// AdminRequired guards the operator endpoints with the shared X-Admin-Token.
// With no token configured every request is refused.
func AdminRequired(cfg *config.Config) fiber.Handler {
	expected := []byte(cfg.AdminToken)

	return func(c *fiber.Ctx) error {
		got := c.Get("X-Admin-Token")
		if got == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{
				Error: true, Message: "Unauthorized",
			})
		}
		if len(expected) == 0 || subtle.ConstantTimeCompare([]byte(got), expected) != 1 {
			return c.Status(fiber.StatusForbidden).JSON(dto.ErrorResponse{
				Error: true, Message: "Admin access required",
			})
		}
		return c.Next()
	}
}
