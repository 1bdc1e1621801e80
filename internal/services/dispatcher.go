package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ahmetcoskunkizilkaya/anonchat-backend/internal/models"
	"github.com/getsentry/sentry-go"
)

var ErrEmptyMessage = errors.New("message text is required")

// Message is chat text relayed verbatim from one user to their partner.
type Message struct {
	To   string `json:"to"`
	Text string `json:"text"`
}

// Relay delivers notifications and chat text to users over the messaging
// platform. A returned error means the recipient could not be reached.
type Relay interface {
	Deliver(ctx context.Context, event Event) error
	Forward(ctx context.Context, msg Message) error
}

// Dispatcher hands transition events to the relay after the transition has
// committed. A failed delivery ends the recipient's chat, which may produce more
// events; those are queued and delivered in the same call.
type Dispatcher struct {
	relay    Relay
	sessions *SessionManager
	registry *UserRegistry
}

func NewDispatcher(relay Relay, sessions *SessionManager, registry *UserRegistry) *Dispatcher {
	return &Dispatcher{relay: relay, sessions: sessions, registry: registry}
}

func (d *Dispatcher) Dispatch(ctx context.Context, events []Event) {
	queue := append([]Event(nil), events...)
	for len(queue) > 0 {
		ev := queue[0]
		queue = queue[1:]

		err := d.relay.Deliver(ctx, ev)
		if err == nil {
			continue
		}
		slog.Warn("event delivery failed", "action", string(ev.Type), "user_id", ev.UserID, "partner_id", ev.PartnerID, "error", err)

		// A banned user is already out of any chat.
		if ev.Type == EventAccountBanned {
			continue
		}
		res, err := d.sessions.PartnerUnreachable(ctx, ev.UserID)
		if err != nil {
			slog.Error("failed to end chat for unreachable user", "action", "partner_unreachable", "user_id", ev.UserID, "error", err)
			sentry.CaptureException(err)
			continue
		}
		queue = append(queue, res.Events...)
	}
}

// Forward relays text from senderID to their partner and counts it.
func (d *Dispatcher) Forward(ctx context.Context, senderID, text string) (Result, error) {
	if strings.TrimSpace(text) == "" {
		return Result{}, ErrEmptyMessage
	}
	sender, err := d.registry.GetOrCreate(ctx, senderID)
	if err != nil {
		return Result{}, err
	}
	if sender.IsBanned {
		return Result{Outcome: OutcomeBanned}, nil
	}
	if sender.Status != models.StatusChatting || sender.PartnerID == nil {
		return Result{Outcome: OutcomeNotInChat}, nil
	}
	partnerID := *sender.PartnerID

	if err := d.relay.Forward(ctx, Message{To: partnerID, Text: text}); err != nil {
		slog.Warn("message delivery failed", "action", "forward", "user_id", senderID, "partner_id", partnerID, "error", err)
		res, err := d.sessions.PartnerUnreachable(ctx, partnerID)
		if err != nil {
			return Result{}, fmt.Errorf("failed to end chat: %w", err)
		}
		d.Dispatch(ctx, res.Events)
		return Result{Outcome: OutcomeNotInChat}, nil
	}

	if err := d.registry.IncrementCounter(ctx, senderID, CounterTotalMessages, 1); err != nil {
		return Result{}, err
	}
	return Result{Outcome: OutcomeDelivered, PartnerID: partnerID}, nil
}
