package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ahmetcoskunkizilkaya/anonchat-backend/internal/services"
	"github.com/gofiber/fiber/v2"
)

// LogRelay writes notifications to the log. It is used when no messaging
// platform is configured and never reports a delivery failure.
type LogRelay struct{}

func (LogRelay) Deliver(_ context.Context, ev services.Event) error {
	slog.Info("event", "action", string(ev.Type), "user_id", ev.UserID, "partner_id", ev.PartnerID)
	return nil
}

func (LogRelay) Forward(_ context.Context, msg services.Message) error {
	slog.Info("message", "action", "forward", "partner_id", msg.To, "length", len(msg.Text))
	return nil
}

// payload is the JSON body posted to the platform bridge.
type payload struct {
	Kind      string `json:"kind"`
	Type      string `json:"type,omitempty"`
	UserID    string `json:"user_id"`
	PartnerID string `json:"partner_id,omitempty"`
	Text      string `json:"text,omitempty"`
}

// WebhookRelay posts events and messages to a bridge service that talks to the
// messaging platform. Any transport error or non-2xx status is a delivery failure.
type WebhookRelay struct {
	url     string
	timeout time.Duration
}

func NewWebhookRelay(url string, timeout time.Duration) *WebhookRelay {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &WebhookRelay{url: url, timeout: timeout}
}

func (r *WebhookRelay) Deliver(ctx context.Context, ev services.Event) error {
	return r.post(ctx, payload{
		Kind:      "event",
		Type:      string(ev.Type),
		UserID:    ev.UserID,
		PartnerID: ev.PartnerID,
	})
}

func (r *WebhookRelay) Forward(ctx context.Context, msg services.Message) error {
	return r.post(ctx, payload{Kind: "message", UserID: msg.To, Text: msg.Text})
}

func (r *WebhookRelay) post(ctx context.Context, p payload) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	agent := fiber.Post(r.url).JSON(p).Timeout(r.timeout)
	status, body, errs := agent.Bytes()
	if len(errs) > 0 {
		return fmt.Errorf("relay request failed: %w", errors.Join(errs...))
	}
	if status < 200 || status >= 300 {
		return fmt.Errorf("relay rejected %s for %s: status %d: %s", p.Kind, p.UserID, status, truncate(body, 200))
	}
	return nil
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n])
	}
	return string(b)
}
