package middleware

import (
	"errors"
	"strings"

	"github.com/ahmetcoskunkizilkaya/anonchat-backend/internal/config"
	"github.com/ahmetcoskunkizilkaya/anonchat-backend/internal/dto"
	jwtware "github.com/gofiber/contrib/jwt"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

func JWTProtected(cfg *config.Config) fiber.Handler {
	return jwtware.New(jwtware.Config{
		SigningKey: jwtware.SigningKey{Key: []byte(cfg.JWTSecret)},
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{
				Error:   true,
				Message: "Unauthorized: invalid or expired token",
			})
		},
	})
}

// GetUserID returns the participant id carried in the token's sub claim. It is
// the messaging platform's opaque chat id, so it is not parsed further.
func GetUserID(c *fiber.Ctx) (string, error) {
	token, ok := c.Locals("user").(*jwt.Token)
	if !ok {
		return "", errors.New("invalid token in context")
	}

	sub, err := token.Claims.GetSubject()
	if err != nil {
		return "", errors.New("invalid claims")
	}
	sub = strings.TrimSpace(sub)
	if sub == "" {
		return "", errors.New("missing sub claim")
	}
	return sub, nil
}
