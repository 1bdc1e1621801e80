package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	sentryfiber "github.com/getsentry/sentry-go/fiber"

	"github.com/ahmetcoskunkizilkaya/anonchat-backend/internal/config"
	"github.com/ahmetcoskunkizilkaya/anonchat-backend/internal/database"
	"github.com/ahmetcoskunkizilkaya/anonchat-backend/internal/handlers"
	"github.com/ahmetcoskunkizilkaya/anonchat-backend/internal/logging"
	"github.com/ahmetcoskunkizilkaya/anonchat-backend/internal/middleware"
	"github.com/ahmetcoskunkizilkaya/anonchat-backend/internal/relay"
	"github.com/ahmetcoskunkizilkaya/anonchat-backend/internal/routes"
	"github.com/ahmetcoskunkizilkaya/anonchat-backend/internal/services"
	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
)

func main() {
	// Structured logging (JSON to stdout)
	stdoutHandler := logging.Setup()

	cfg := config.Load()

	if cfg.JWTSecret == "" {
		slog.Error("JWT_SECRET environment variable is required")
		os.Exit(1)
	}
	if cfg.DBPassword == "" {
		slog.Error("DB_PASSWORD environment variable is required")
		os.Exit(1)
	}
	if cfg.AdminToken == "" {
		slog.Warn("ADMIN_TOKEN is not set, admin endpoints are disabled")
	}

	// Database
	if err := database.Connect(cfg); err != nil {
		slog.Error("database connection failed", "error", err)
		os.Exit(1)
	}
	if err := database.Migrate(database.DB); err != nil {
		slog.Error("migration failed", "error", err)
		os.Exit(1)
	}

	// PostgreSQL log handler (ERROR+ async batch)
	pgLogHandler := logging.NewPGHandler(database.DB)
	slog.SetDefault(slog.New(logging.NewMultiHandler(stdoutHandler, pgLogHandler)))

	cleanupDone := make(chan struct{})
	logging.StartCleanup(database.DB, cfg.LogRetention, cleanupDone)

	// Sentry error tracking
	if dsn := os.Getenv("SENTRY_DSN"); dsn != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              dsn,
			EnableTracing:    true,
			TracesSampleRate: 0.2,
			Environment:      os.Getenv("APP_ENV"),
		}); err != nil {
			slog.Error("sentry init failed", "error", err)
		} else {
			defer sentry.Flush(2 * time.Second)
		}
	}

	// Services
	registry := services.NewUserRegistry(database.DB)
	engine := services.NewMatchEngine(database.DB, registry, cfg.MatchBatchSize)
	limiter := services.NewRateLimiter(registry, cfg.DailyNextLimit)
	sessions := services.NewSessionManager(registry, engine, limiter)
	moderation := services.NewModerationService(database.DB, registry, cfg.BanThreshold)

	var out services.Relay = relay.LogRelay{}
	if cfg.RelayWebhookURL != "" {
		out = relay.NewWebhookRelay(cfg.RelayWebhookURL, cfg.RelayTimeout)
		slog.Info("relay webhook configured", "timeout", cfg.RelayTimeout.String())
	} else {
		slog.Warn("RELAY_WEBHOOK_URL is not set, events are only logged")
	}
	dispatcher := services.NewDispatcher(out, sessions, registry)

	// Background workers: one sweep, one quota reset
	workers, stopWorkers := context.WithCancel(context.Background())
	go engine.Start(workers, cfg.MatchSweepInterval, dispatcher)
	go limiter.Start(workers, cfg.QuotaResetInterval)

	// Fiber app
	app := fiber.New(fiber.Config{
		BodyLimit:    64 * 1024,
		ErrorHandler: customErrorHandler,
	})

	// Sentry middleware
	app.Use(sentryfiber.New(sentryfiber.Options{
		Repanic:         true,
		WaitForDelivery: false,
	}))

	// Global middleware
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(fiberlogger.New(fiberlogger.Config{
		Format: "${time} | ${status} | ${latency} | ${ip} | ${method} | ${path}\n",
	}))
	app.Use(middleware.CORS(cfg))
	app.Use(func(c *fiber.Ctx) error {
		c.Set("X-Content-Type-Options", "nosniff")
		c.Set("X-Frame-Options", "DENY")
		c.Set("X-XSS-Protection", "1; mode=block")
		return c.Next()
	})

	// Routes
	routes.Setup(app, cfg, routes.Handlers{
		Chat:    handlers.NewChatHandler(sessions, moderation, dispatcher, registry, limiter),
		Profile: handlers.NewProfileHandler(sessions),
		Admin:   handlers.NewAdminHandler(registry, moderation, dispatcher),
		Health:  handlers.NewHealthHandler(database.Ping),
		Legal:   handlers.NewLegalHandler(limiter.Limit(), cfg.BanThreshold),
	})

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("server starting", "port", cfg.Port)
		if err := app.Listen(":" + cfg.Port); err != nil {
			slog.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	<-quit
	slog.Info("shutting down server...")

	if err := app.Shutdown(); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	stopWorkers()
	close(cleanupDone)
	pgLogHandler.Stop()
	sentry.Flush(2 * time.Second)

	// Close database connections
	if sqlDB, err := database.DB.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			slog.Error("database close error", "error", err)
		}
	}

	slog.Info("server stopped")
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal server error"
	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	// Only expose error details for client errors (4xx), not server errors (5xx)
	if code >= 500 {
		slog.Error("unhandled server error", "method", c.Method(), "path", c.Path(), "error", err.Error())
		message = "Internal server error"
	}

	return c.Status(code).JSON(fiber.Map{
		"error":   true,
		"message": message,
	})
}
