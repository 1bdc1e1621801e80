package middleware

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ahmetcoskunkizilkaya/anonchat-backend/internal/config"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-secret"

func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return token
}

func TestJWTProtectedExposesSubject(t *testing.T) {
	cfg := &config.Config{JWTSecret: testSecret}
	app := fiber.New()
	app.Get("/me", JWTProtected(cfg), func(c *fiber.Ctx) error {
		id, err := GetUserID(c)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).SendString(err.Error())
		}
		return c.SendString(id)
	})

	tests := []struct {
		name   string
		token  string
		status int
		body   string
	}{
		{
			name:   "valid",
			token:  signToken(t, jwt.MapClaims{"sub": "tg:42", "exp": time.Now().Add(time.Hour).Unix()}),
			status: fiber.StatusOK,
			body:   "tg:42",
		},
		{
			name:   "missing sub",
			token:  signToken(t, jwt.MapClaims{"exp": time.Now().Add(time.Hour).Unix()}),
			status: fiber.StatusUnauthorized,
			body:   "missing sub claim",
		},
		{
			name:   "expired",
			token:  signToken(t, jwt.MapClaims{"sub": "tg:42", "exp": time.Now().Add(-time.Hour).Unix()}),
			status: fiber.StatusUnauthorized,
		},
		{
			name:   "no token",
			status: fiber.StatusUnauthorized,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/me", nil)
			if tt.token != "" {
				req.Header.Set("Authorization", "Bearer "+tt.token)
			}
			resp, err := app.Test(req)
			if err != nil {
				t.Fatalf("request: %v", err)
			}
			if resp.StatusCode != tt.status {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tt.status)
			}
			if tt.body != "" {
				b, _ := io.ReadAll(resp.Body)
				if string(b) != tt.body {
					t.Fatalf("body = %q, want %q", b, tt.body)
				}
			}
		})
	}
}

func TestAdminRequired(t *testing.T) {
	tests := []struct {
		name       string
		configured string
		header     string
		status     int
	}{
		{"valid token", "s3cret", "s3cret", fiber.StatusOK},
		{"wrong token", "s3cret", "guess", fiber.StatusForbidden},
		{"missing header", "s3cret", "", fiber.StatusUnauthorized},
		{"not configured", "", "anything", fiber.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := fiber.New()
			app.Get("/admin", AdminRequired(&config.Config{AdminToken: tt.configured}), func(c *fiber.Ctx) error {
				return c.SendStatus(fiber.StatusOK)
			})

			req := httptest.NewRequest("GET", "/admin", nil)
			if tt.header != "" {
				req.Header.Set("X-Admin-Token", tt.header)
			}
			resp, err := app.Test(req)
			if err != nil {
				t.Fatalf("request: %v", err)
			}
			if resp.StatusCode != tt.status {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tt.status)
			}
		})
	}
}
