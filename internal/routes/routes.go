package routes

import (
	"time"

	"github.com/ahmetcoskunkizilkaya/anonchat-backend/internal/config"
	"github.com/ahmetcoskunkizilkaya/anonchat-backend/internal/handlers"
	"github.com/ahmetcoskunkizilkaya/anonchat-backend/internal/middleware"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
)

type Handlers struct {
	Chat    *handlers.ChatHandler
	Profile *handlers.ProfileHandler
	Admin   *handlers.AdminHandler
	Health  *handlers.HealthHandler
	Legal   *handlers.LegalHandler
}

func Setup(app *fiber.App, cfg *config.Config, h Handlers) {
	api := app.Group("/api")

	// General API rate limiter: 120 req/min per IP
	api.Use(limiter.New(limiter.Config{
		Max:               120,
		Expiration:        1 * time.Minute,
		LimiterMiddleware: limiter.SlidingWindow{},
		KeyGenerator:      func(c *fiber.Ctx) string { return c.IP() },
	}))

	// Public
	api.Get("/health", h.Health.Check)
	api.Get("/help", h.Legal.Help)
	api.Get("/legal/privacy", h.Legal.PrivacyPolicy)
	api.Get("/legal/terms", h.Legal.TermsOfService)
	api.Get("/online", h.Chat.Online)

	// Chat commands, keyed by the token subject
	chat := api.Group("/chat", middleware.JWTProtected(cfg))
	chat.Post("/search", h.Chat.Search)
	chat.Post("/stop", h.Chat.Stop)
	chat.Post("/next", h.Chat.Next)
	chat.Post("/report", h.Chat.Report)
	// Message relay is chattier than commands; limit per user rather than per IP
	chat.Post("/messages", limiter.New(limiter.Config{
		Max:               60,
		Expiration:        1 * time.Minute,
		LimiterMiddleware: limiter.SlidingWindow{},
		KeyGenerator: func(c *fiber.Ctx) string {
			if id, err := middleware.GetUserID(c); err == nil {
				return "msg:" + id
			}
			return c.IP()
		},
	}), h.Chat.SendMessage)

	api.Get("/me", middleware.JWTProtected(cfg), h.Chat.Me)

	profile := api.Group("/profile", middleware.JWTProtected(cfg))
	profile.Put("/filter", h.Profile.SetFilter)
	profile.Put("/gender", h.Profile.SetGender)
	profile.Put("/age", h.Profile.SetAge)
	profile.Post("/input/:field", h.Profile.BeginInput)
	profile.Post("/input", h.Profile.SubmitInput)

	// Operator panel (shared token)
	admin := api.Group("/admin", middleware.AdminRequired(cfg))
	admin.Get("/stats", h.Admin.Stats)
	admin.Get("/users", h.Admin.ListUsers)
	admin.Get("/reports", h.Admin.ListReports)
	admin.Put("/users/:id/ban", h.Admin.SetBanned)
	admin.Put("/users/:id/premium", h.Admin.SetPremium)
}
