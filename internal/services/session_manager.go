package services

import (
	"context"
	"errors"
	"log/slog"

	"github.com/ahmetcoskunkizilkaya/anonchat-backend/internal/models"
	"gorm.io/gorm"
)

// SessionManager implements the per-user command state machine:
//
//	idle -> searching | chatting   (search)
//	searching -> chatting          (sweep or concurrent on-demand match)
//	searching -> idle              (stop)
//	chatting -> idle               (stop, partner unreachable; both sides)
//	chatting -> idle -> searching | chatting (next, quota permitting)
type SessionManager struct {
	registry *UserRegistry
	engine   *MatchEngine
	limiter  *RateLimiter
}

func NewSessionManager(registry *UserRegistry, engine *MatchEngine, limiter *RateLimiter) *SessionManager {
	return &SessionManager{registry: registry, engine: engine, limiter: limiter}
}

// maxStatusRetries bounds re-reads when a conditional update loses a race.
const maxStatusRetries = 3

func (s *SessionManager) Search(ctx context.Context, id string) (Result, error) {
	for attempt := 0; attempt < maxStatusRetries; attempt++ {
		user, err := s.registry.GetOrCreate(ctx, id)
		if err != nil {
			return Result{}, err
		}
		if user.IsBanned {
			return Result{Outcome: OutcomeBanned}, nil
		}
		switch user.Status {
		case models.StatusChatting:
			return Result{Outcome: OutcomeAlreadyChatting, PartnerID: user.Partner()}, nil
		case models.StatusSearching:
			return Result{Outcome: OutcomeAlreadySearching}, nil
		}

		// The commit primitive only pairs searching users, so enqueue first.
		ok, err := s.registry.SetStatus(ctx, id, models.StatusIdle, models.StatusSearching)
		if err != nil {
			return Result{}, err
		}
		if ok {
			return s.engine.MatchOnDemand(ctx, id)
		}
	}
	return Result{Outcome: OutcomeAlreadySearching}, nil
}

func (s *SessionManager) Stop(ctx context.Context, id string) (Result, error) {
	for attempt := 0; attempt < maxStatusRetries; attempt++ {
		user, err := s.registry.GetOrCreate(ctx, id)
		if err != nil {
			return Result{}, err
		}

		switch user.Status {
		case models.StatusSearching:
			ok, err := s.registry.SetStatus(ctx, id, models.StatusSearching, models.StatusIdle)
			if err != nil {
				return Result{}, err
			}
			if ok {
				return Result{Outcome: OutcomeStopped}, nil
			}
			// Matched meanwhile; retry as a chatting stop.
		case models.StatusChatting:
			partnerID, err := s.registry.Disconnect(ctx, id)
			if err != nil {
				return Result{}, err
			}
			if partnerID == "" {
				return Result{Outcome: OutcomeNotInChat}, nil
			}
			slog.Info("chat stopped", "action", "stop", "user_id", id, "partner_id", partnerID)
			return Result{
				Outcome:   OutcomeStopped,
				PartnerID: partnerID,
				Events:    []Event{disconnectEvent(partnerID)},
			}, nil
		default:
			return Result{Outcome: OutcomeNotInChat}, nil
		}
	}
	return Result{Outcome: OutcomeNotInChat}, nil
}

// Next leaves the current chat and searches again. The skip is charged in the
// same transaction that ends the chat, and is charged even when no new partner
// is found. A skip that ends no chat costs nothing.
func (s *SessionManager) Next(ctx context.Context, id string) (Result, error) {
	user, err := s.registry.GetOrCreate(ctx, id)
	if err != nil {
		return Result{}, err
	}
	if user.Status != models.StatusChatting {
		return Result{Outcome: OutcomeNotInChat}, nil
	}
	if user.IsBanned {
		return Result{Outcome: OutcomeBanned}, nil
	}
	if s.limiter.Exceeded(user) {
		return Result{Outcome: OutcomeQuotaExceeded, PartnerID: user.Partner()}, nil
	}

	partnerID, ended, err := s.registry.DisconnectWith(ctx, id, func(tx *gorm.DB) error {
		return s.limiter.chargeTx(tx, id)
	})
	if errors.Is(err, ErrQuotaExceeded) {
		return Result{Outcome: OutcomeQuotaExceeded, PartnerID: user.Partner()}, nil
	}
	if err != nil {
		return Result{}, err
	}
	if !ended {
		return Result{Outcome: OutcomeNotInChat}, nil
	}
	var events []Event
	if partnerID != "" {
		events = append(events, disconnectEvent(partnerID))
	}
	slog.Info("chat skipped", "action", "next", "user_id", id, "partner_id", partnerID)

	ok, err := s.registry.SetStatus(ctx, id, models.StatusIdle, models.StatusSearching)
	if err != nil {
		return Result{Outcome: OutcomeStopped, Events: events}, err
	}
	if !ok {
		fresh, err := s.registry.Get(ctx, id)
		if err != nil {
			return Result{Outcome: OutcomeStopped, Events: events}, err
		}
		res := settled(fresh)
		res.Events = events
		return res, nil
	}

	res, err := s.engine.MatchOnDemand(ctx, id)
	res.Events = append(events, res.Events...)
	return res, err
}

// PartnerUnreachable handles a relay delivery failure to id the same way as a
// stop issued by id: the pair is dissolved and the other side is notified.
func (s *SessionManager) PartnerUnreachable(ctx context.Context, id string) (Result, error) {
	partnerID, err := s.registry.Disconnect(ctx, id)
	if err != nil {
		return Result{}, err
	}
	if partnerID == "" {
		return Result{Outcome: OutcomeNotInChat}, nil
	}
	slog.Warn("partner unreachable, chat ended", "action", "partner_unreachable", "user_id", id, "partner_id", partnerID)
	return Result{
		Outcome:   OutcomeStopped,
		PartnerID: partnerID,
		Events:    []Event{disconnectEvent(partnerID)},
	}, nil
}

func (s *SessionManager) SetFilter(ctx context.Context, id string, f FilterUpdate) (Result, error) {
	return s.profileUpdate(ctx, id, func() error { return s.registry.SetFilter(ctx, id, f) })
}

func (s *SessionManager) SetGender(ctx context.Context, id, gender string) (Result, error) {
	return s.profileUpdate(ctx, id, func() error { return s.registry.SetGender(ctx, id, gender) })
}

func (s *SessionManager) SetAge(ctx context.Context, id string, age int) (Result, error) {
	return s.profileUpdate(ctx, id, func() error { return s.registry.SetAge(ctx, id, age) })
}

func (s *SessionManager) BeginInput(ctx context.Context, id, field string) (Result, error) {
	return s.profileUpdate(ctx, id, func() error { return s.registry.BeginInput(ctx, id, field) })
}

func (s *SessionManager) SubmitInput(ctx context.Context, id, text string) (Result, error) {
	return s.profileUpdate(ctx, id, func() error {
		_, err := s.registry.SubmitInput(ctx, id, text)
		return err
	})
}

func (s *SessionManager) profileUpdate(ctx context.Context, id string, apply func() error) (Result, error) {
	if _, err := s.registry.GetOrCreate(ctx, id); err != nil {
		return Result{}, err
	}
	if err := apply(); err != nil {
		return Result{}, err
	}
	return Result{Outcome: OutcomeUpdated}, nil
}
