package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ahmetcoskunkizilkaya/anonchat-backend/internal/models"
	"github.com/getsentry/sentry-go"
	"gorm.io/gorm"
)

const DefaultMatchBatchSize = 50

// Compatible reports whether owner's filter accepts candidate. Filters only
// narrow the pool while the owner's premium is active.
func Compatible(owner, candidate *models.User, now time.Time) bool {
	if !owner.PremiumActive(now) {
		return true
	}
	if owner.GenderFilter != models.GenderAny && owner.GenderFilter != "" && owner.GenderFilter != candidate.Gender {
		return false
	}
	if candidate.Age != nil && (*candidate.Age < owner.AgeMin || *candidate.Age > owner.AgeMax) {
		return false
	}
	return true
}

func mutuallyCompatible(a, b *models.User, now time.Time) bool {
	return Compatible(a, b, now) && Compatible(b, a, now)
}

// MatchEngine pairs searching users. The on-demand path and the sweep both go
// through commitPair, which is the only code that moves users into chatting.
// batchSize is the page size used when walking the queue.
type MatchEngine struct {
	db        *gorm.DB
	registry  *UserRegistry
	batchSize int
}

func NewMatchEngine(db *gorm.DB, registry *UserRegistry, batchSize int) *MatchEngine {
	if batchSize <= 0 {
		batchSize = DefaultMatchBatchSize
	}
	return &MatchEngine{db: db, registry: registry, batchSize: batchSize}
}

// MatchOnDemand tries to pair a searching requester with the oldest compatible
// searching user, paging through the whole queue. The requester stays searching
// when nobody fits.
func (e *MatchEngine) MatchOnDemand(ctx context.Context, requesterID string) (Result, error) {
	requester, err := e.registry.Get(ctx, requesterID)
	if err != nil {
		return Result{}, err
	}
	if requester.Status != models.StatusSearching {
		return settled(requester), nil
	}

	partnerID, err := e.pairFirst(ctx, requester, e.registry.Now(), nil)
	if errors.Is(err, errRequesterMoved) {
		fresh, err := e.registry.Get(ctx, requesterID)
		if err != nil {
			return Result{}, err
		}
		return settled(fresh), nil
	}
	if err != nil {
		return Result{}, err
	}
	if partnerID == "" {
		return Result{Outcome: OutcomeWaiting}, nil
	}

	slog.Info("match found", "action", "match_on_demand", "user_id", requester.ID, "partner_id", partnerID)
	return Result{
		Outcome:   OutcomeMatched,
		PartnerID: partnerID,
		Events:    matchEvents(requester.ID, partnerID),
	}, nil
}

// settled describes a requester that left searching while a match was in flight.
// A sweep match has already emitted its own events.
func settled(u *models.User) Result {
	switch u.Status {
	case models.StatusChatting:
		return Result{Outcome: OutcomeMatched, PartnerID: u.Partner()}
	case models.StatusSearching:
		return Result{Outcome: OutcomeWaiting}
	default:
		return Result{Outcome: OutcomeStopped}
	}
}

var errRequesterMoved = errors.New("requester is no longer searching")

// queueCursor is a keyset position in the searching queue.
type queueCursor struct {
	createdAt time.Time
	id        string
}

func cursorAt(u *models.User) *queueCursor {
	return &queueCursor{createdAt: u.CreatedAt, id: u.ID}
}

func (c *queueCursor) after(q *gorm.DB) *gorm.DB {
	if c == nil {
		return q
	}
	return q.Where("(created_at > ? OR (created_at = ? AND id > ?))", c.createdAt, c.createdAt, c.id)
}

func (e *MatchEngine) searching(ctx context.Context) *gorm.DB {
	return e.db.WithContext(ctx).
		Where("status = ? AND is_banned = ? AND partner_id IS NULL", models.StatusSearching, false)
}

// pairFirst walks the users compatible with u, queued after from, one page at a
// time and commits the first that is still available. Returns "" when nobody is,
// or errRequesterMoved once u itself has left searching.
func (e *MatchEngine) pairFirst(ctx context.Context, u *models.User, now time.Time, from *queueCursor) (string, error) {
	cursor := from
	for {
		page, err := e.candidates(ctx, u, now, cursor)
		if err != nil {
			return "", err
		}
		for i := range page {
			candidate := &page[i]
			if !mutuallyCompatible(u, candidate, now) {
				continue
			}
			ok, err := e.commitPair(ctx, u.ID, candidate.ID)
			if err != nil {
				return "", err
			}
			if ok {
				return candidate.ID, nil
			}

			// Either side moved since the scan. Stop if it was u.
			fresh, err := e.registry.Get(ctx, u.ID)
			if err != nil && !errors.Is(err, ErrUserNotFound) {
				return "", err
			}
			if fresh == nil || fresh.Status != models.StatusSearching {
				return "", errRequesterMoved
			}
		}
		if len(page) < e.batchSize {
			return "", nil
		}
		cursor = cursorAt(&page[len(page)-1])
	}
}

// candidates returns one page of searching users that u may be paired with.
// Both filters are applied in SQL so incompatible users never crowd out a page:
// u's filter when u is premium, and the candidate's filter when theirs is active.
func (e *MatchEngine) candidates(ctx context.Context, u *models.User, now time.Time, cursor *queueCursor) ([]models.User, error) {
	query := cursor.after(e.searching(ctx).Where("id <> ?", u.ID))

	if u.PremiumActive(now) {
		if u.GenderFilter != models.GenderAny && u.GenderFilter != "" {
			query = query.Where("gender = ?", u.GenderFilter)
		}
		query = query.Where("(age IS NULL OR (age >= ? AND age <= ?))", u.AgeMin, u.AgeMax)
	}

	rejects := "(gender_filter NOT IN ? AND gender_filter <> ?)"
	args := []interface{}{[]string{models.GenderAny, ""}, u.Gender}
	if u.Age != nil {
		rejects += " OR age_min > ? OR age_max < ?"
		args = append(args, *u.Age, *u.Age)
	}
	query = query.Where(
		"NOT (is_premium = ? AND (premium_until IS NULL OR premium_until > ?) AND ("+rejects+"))",
		append([]interface{}{true, now}, args...)...,
	)

	var users []models.User
	if err := query.Order("created_at ASC, id ASC").Limit(e.batchSize).Find(&users).Error; err != nil {
		return nil, fmt.Errorf("failed to scan candidates: %w", err)
	}
	return users, nil
}

// Sweep walks the whole searching queue a page at a time. Each user still
// unpaired is committed to the first compatible user queued after it, so a run
// of mutually incompatible users at the head never blocks the rest.
func (e *MatchEngine) Sweep(ctx context.Context) ([]Event, error) {
	now := e.registry.Now()
	paired := make(map[string]bool)
	var events []Event
	var cursor *queueCursor

	for {
		var page []models.User
		err := cursor.after(e.searching(ctx)).
			Order("created_at ASC, id ASC").
			Limit(e.batchSize).
			Find(&page).Error
		if err != nil {
			return events, fmt.Errorf("failed to fetch sweep page: %w", err)
		}

		for i := range page {
			a := &page[i]
			if paired[a.ID] {
				continue
			}
			partnerID, err := e.pairFirst(ctx, a, now, cursorAt(a))
			if errors.Is(err, errRequesterMoved) {
				continue
			}
			if err != nil {
				return events, err
			}
			if partnerID == "" {
				continue
			}
			paired[a.ID], paired[partnerID] = true, true
			events = append(events, matchEvents(a.ID, partnerID)...)
			slog.Info("match found", "action", "sweep", "user_id", a.ID, "partner_id", partnerID)
		}

		if len(page) < e.batchSize {
			return events, nil
		}
		cursor = cursorAt(&page[len(page)-1])
	}
}

// Start runs the sweep every interval until ctx is cancelled.
func (e *MatchEngine) Start(ctx context.Context, interval time.Duration, sink EventSink) {
	slog.Info("match sweep started", "interval", interval.String(), "page_size", e.batchSize)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("match sweep stopped")
			return
		case <-ticker.C:
			events, err := e.Sweep(ctx)
			if err != nil && ctx.Err() == nil {
				slog.Error("match sweep failed", "action", "sweep", "error", err)
				sentry.CaptureException(err)
			}
			if len(events) > 0 && sink != nil {
				sink.Dispatch(ctx, events)
			}
		}
	}
}

// commitPair moves a and b into chatting with each other, or does nothing.
// Both rows are locked in id order and each is claimed with a conditional update
// that requires searching, no partner and not banned; a zero-row update rolls the
// whole transaction back. Returns false when either side was no longer available.
func (e *MatchEngine) commitPair(ctx context.Context, a, b string) (bool, error) {
	if a == b {
		return false, nil
	}

	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var pair []models.User
		if err := forUpdate(tx).Where("id IN ?", []string{a, b}).Order("id").Find(&pair).Error; err != nil {
			return err
		}
		if len(pair) != 2 {
			return errPairStale
		}
		for _, u := range pair {
			if u.Status != models.StatusSearching || u.PartnerID != nil || u.IsBanned {
				return errPairStale
			}
		}

		if err := claim(tx, a, b); err != nil {
			return err
		}
		return claim(tx, b, a)
	})
	if errors.Is(err, errPairStale) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to commit pair: %w", err)
	}
	return true, nil
}

func claim(tx *gorm.DB, id, partnerID string) error {
	res := tx.Model(&models.User{}).
		Where("id = ? AND status = ? AND partner_id IS NULL AND is_banned = ?", id, models.StatusSearching, false).
		Updates(map[string]interface{}{
			"status":      models.StatusChatting,
			"partner_id":  partnerID,
			"total_chats": gorm.Expr("total_chats + ?", 1),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected != 1 {
		return errPairStale
	}
	return nil
}
