package services

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Outcome is the structured answer to an inbound command.
type Outcome string

const (
	OutcomeMatched          Outcome = "matched"
	OutcomeWaiting          Outcome = "waiting"
	OutcomeAlreadyChatting  Outcome = "already_chatting"
	OutcomeAlreadySearching Outcome = "already_searching"
	OutcomeNotInChat        Outcome = "not_in_chat"
	OutcomeQuotaExceeded    Outcome = "quota_exceeded"
	OutcomeBanned           Outcome = "banned"
	OutcomeReportAccepted   Outcome = "report_accepted"
	OutcomeInvalidContext   Outcome = "invalid_context"
	OutcomeStopped          Outcome = "stopped"
	OutcomeUpdated          Outcome = "updated"
	OutcomeDelivered        Outcome = "delivered"
)

type EventType string

const (
	EventMatchFound          EventType = "match_found"
	EventPartnerDisconnected EventType = "partner_disconnected"
	EventAccountBanned       EventType = "account_banned"
)

// Event is a notification for the relay to deliver to UserID.
type Event struct {
	Type      EventType `json:"type"`
	UserID    string    `json:"user_id"`
	PartnerID string    `json:"partner_id,omitempty"`
}

// Result carries the outcome of a state transition and the notifications it produced.
// Transitions never deliver events themselves.
type Result struct {
	Outcome   Outcome
	PartnerID string
	Events    []Event
}

// EventSink receives events produced outside a request, e.g. by the sweep.
type EventSink interface {
	Dispatch(ctx context.Context, events []Event)
}

func matchEvents(a, b string) []Event {
	return []Event{
		{Type: EventMatchFound, UserID: a, PartnerID: b},
		{Type: EventMatchFound, UserID: b, PartnerID: a},
	}
}

func disconnectEvent(to string) Event {
	return Event{Type: EventPartnerDisconnected, UserID: to}
}

// forUpdate adds a row lock. SQLite has no row locks and serializes writers instead.
func forUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "sqlite" {
		return tx
	}
	return tx.Clauses(clause.Locking{Strength: "UPDATE"})
}
