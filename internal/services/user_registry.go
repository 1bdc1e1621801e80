package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ahmetcoskunkizilkaya/anonchat-backend/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrUserNotFound      = errors.New("user not found")
	ErrInvalidUserID     = errors.New("invalid user id")
	ErrInvalidGender     = errors.New("invalid gender: must be male or female")
	ErrInvalidAge        = errors.New("invalid age: must be between 18 and 99")
	ErrInvalidFilter     = errors.New("invalid filter: gender must be any, male or female and 18 <= age_min <= age_max <= 99")
	ErrInvalidField      = errors.New("invalid profile field: must be gender or age")
	ErrNoPendingInput    = errors.New("no profile field is awaiting input")
	ErrInvalidCounter    = errors.New("invalid counter")
	ErrInvalidTransition = errors.New("invalid status transition")

	errPairStale = errors.New("pair changed concurrently")
)

// Counter is one of the per-user counters that may be incremented atomically.
type Counter string

const (
	CounterTotalChats      Counter = "total_chats"
	CounterTotalMessages   Counter = "total_messages"
	CounterNextUsedToday   Counter = "next_used_today"
	CounterReportsReceived Counter = "reports_received"
)

func (c Counter) valid() bool {
	switch c {
	case CounterTotalChats, CounterTotalMessages, CounterNextUsedToday, CounterReportsReceived:
		return true
	}
	return false
}

// FilterUpdate replaces a user's partner filter.
type FilterUpdate struct {
	Gender string
	AgeMin int
	AgeMax int
}

func (f FilterUpdate) Validate() error {
	switch f.Gender {
	case models.GenderAny, models.GenderMale, models.GenderFemale:
	default:
		return ErrInvalidFilter
	}
	if f.AgeMin < models.DefaultAgeMin || f.AgeMax > models.DefaultAgeMax || f.AgeMin > f.AgeMax {
		return ErrInvalidFilter
	}
	return nil
}

func validateGender(g string) error {
	if g != models.GenderMale && g != models.GenderFemale {
		return ErrInvalidGender
	}
	return nil
}

func validateAge(age int) error {
	if age < models.DefaultAgeMin || age > models.DefaultAgeMax {
		return ErrInvalidAge
	}
	return nil
}

// Stats is the aggregate view exposed to administrators.
type Stats struct {
	TotalUsers    int64 `json:"total_users"`
	Searching     int64 `json:"searching"`
	ChattingPairs int64 `json:"chatting_pairs"`
	Premium       int64 `json:"premium"`
	Banned        int64 `json:"banned"`
	Reports       int64 `json:"reports"`
}

// UserRegistry owns the users table. Every method reads through to the store;
// nothing is cached, so out-of-band admin writes are visible on the next call.
type UserRegistry struct {
	db  *gorm.DB
	now func() time.Time
}

func NewUserRegistry(db *gorm.DB) *UserRegistry {
	return &UserRegistry{db: db, now: time.Now}
}

// WithClock replaces the time source used for creation stamps and premium expiry.
func (r *UserRegistry) WithClock(now func() time.Time) *UserRegistry {
	r.now = now
	return r
}

func (r *UserRegistry) Now() time.Time {
	return r.now()
}

// GetOrCreate returns the user, creating an idle record on first contact.
// Existing records are never modified.
func (r *UserRegistry) GetOrCreate(ctx context.Context, id string) (*models.User, error) {
	id = strings.TrimSpace(id)
	if id == "" || len(id) > 64 {
		return nil, ErrInvalidUserID
	}

	now := r.now()
	user := models.User{
		ID:           id,
		Status:       models.StatusIdle,
		GenderFilter: models.GenderAny,
		AgeMin:       models.DefaultAgeMin,
		AgeMax:       models.DefaultAgeMax,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&user).Error; err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return r.Get(ctx, id)
}

func (r *UserRegistry) Get(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch user: %w", err)
	}
	return &user, nil
}

// SetStatus moves a user between idle and searching only if it is currently in from.
// Chatting is entered and left exclusively through the pair operations.
func (r *UserRegistry) SetStatus(ctx context.Context, id string, from, to models.UserStatus) (bool, error) {
	if from == models.StatusChatting || to == models.StatusChatting {
		return false, ErrInvalidTransition
	}
	res := r.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ? AND status = ? AND partner_id IS NULL", id, from).
		Updates(map[string]interface{}{"status": to})
	if res.Error != nil {
		return false, fmt.Errorf("failed to update status: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (r *UserRegistry) IncrementCounter(ctx context.Context, id string, counter Counter, delta int) error {
	if !counter.valid() {
		return ErrInvalidCounter
	}
	col := string(counter)
	res := r.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", id).
		UpdateColumn(col, gorm.Expr(col+" + ?", delta))
	if res.Error != nil {
		return fmt.Errorf("failed to increment %s: %w", col, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

// ResetCounter zeroes a counter for every user; returns the number of rows touched.
func (r *UserRegistry) ResetCounter(ctx context.Context, counter Counter) (int64, error) {
	if !counter.valid() {
		return 0, ErrInvalidCounter
	}
	col := string(counter)
	res := r.db.WithContext(ctx).Model(&models.User{}).
		Where(col+" <> ?", 0).
		UpdateColumn(col, 0)
	if res.Error != nil {
		return 0, fmt.Errorf("failed to reset %s: %w", col, res.Error)
	}
	return res.RowsAffected, nil
}

func (r *UserRegistry) SetBanned(ctx context.Context, id string, banned bool) error {
	return r.update(ctx, id, map[string]interface{}{"is_banned": banned})
}

func (r *UserRegistry) SetPremium(ctx context.Context, id string, until *time.Time) error {
	return r.update(ctx, id, map[string]interface{}{"is_premium": true, "premium_until": until})
}

func (r *UserRegistry) RevokePremium(ctx context.Context, id string) error {
	return r.update(ctx, id, map[string]interface{}{"is_premium": false, "premium_until": nil})
}

func (r *UserRegistry) SetGender(ctx context.Context, id, gender string) error {
	gender = strings.ToLower(strings.TrimSpace(gender))
	if err := validateGender(gender); err != nil {
		return err
	}
	return r.update(ctx, id, map[string]interface{}{"gender": gender})
}

func (r *UserRegistry) SetAge(ctx context.Context, id string, age int) error {
	if err := validateAge(age); err != nil {
		return err
	}
	return r.update(ctx, id, map[string]interface{}{"age": age})
}

// SetFilter stores the filter for any user; it is only enforced while premium is active.
func (r *UserRegistry) SetFilter(ctx context.Context, id string, f FilterUpdate) error {
	f.Gender = strings.ToLower(strings.TrimSpace(f.Gender))
	if err := f.Validate(); err != nil {
		return err
	}
	return r.update(ctx, id, map[string]interface{}{
		"gender_filter": f.Gender,
		"age_min":       f.AgeMin,
		"age_max":       f.AgeMax,
	})
}

// BeginInput marks field as awaiting the user's next free-text answer.
func (r *UserRegistry) BeginInput(ctx context.Context, id, field string) error {
	if field != models.InputGender && field != models.InputAge {
		return ErrInvalidField
	}
	return r.update(ctx, id, map[string]interface{}{"awaiting_input": field})
}

// SubmitInput applies text to the pending field and clears the pending marker in
// the same conditional update. Returns the field that was filled.
func (r *UserRegistry) SubmitInput(ctx context.Context, id, text string) (string, error) {
	user, err := r.Get(ctx, id)
	if err != nil {
		return "", err
	}

	text = strings.TrimSpace(text)
	values := map[string]interface{}{"awaiting_input": models.InputNone}
	switch user.AwaitingInput {
	case models.InputGender:
		gender := strings.ToLower(text)
		if err := validateGender(gender); err != nil {
			return "", err
		}
		values["gender"] = gender
	case models.InputAge:
		age, err := strconv.Atoi(text)
		if err != nil {
			return "", ErrInvalidAge
		}
		if err := validateAge(age); err != nil {
			return "", err
		}
		values["age"] = age
	default:
		return "", ErrNoPendingInput
	}

	res := r.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ? AND awaiting_input = ?", id, user.AwaitingInput).
		Updates(values)
	if res.Error != nil {
		return "", fmt.Errorf("failed to apply input: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return "", ErrNoPendingInput
	}
	return user.AwaitingInput, nil
}

// Disconnect ends the pair id belongs to. This is a cross-row operation: both
// rows are locked in id order and cleared in one transaction, and the partner is
// only cleared if it still points back at id. Returns the former partner, or ""
// when id was not chatting.
func (r *UserRegistry) Disconnect(ctx context.Context, id string) (string, error) {
	partnerID, _, err := r.DisconnectWith(ctx, id, nil)
	return partnerID, err
}

// DisconnectWith releases id's chat like Disconnect and runs inTx inside the same
// transaction, before anything is released. An error from inTx rolls the whole
// disconnect back and is returned wrapped. ended reports whether id was chatting
// and has been released.
func (r *UserRegistry) DisconnectWith(ctx context.Context, id string, inTx func(tx *gorm.DB) error) (partnerID string, ended bool, err error) {
	for attempt := 0; attempt < 3; attempt++ {
		partnerID, ended, err = r.disconnectOnce(ctx, id, inTx)
		if errors.Is(err, errPairStale) {
			continue
		}
		return partnerID, ended, err
	}
	return "", false, fmt.Errorf("failed to disconnect %s: %w", id, errPairStale)
}

func (r *UserRegistry) disconnectOnce(ctx context.Context, id string, inTx func(tx *gorm.DB) error) (string, bool, error) {
	user, err := r.Get(ctx, id)
	if err != nil {
		return "", false, err
	}
	if user.Status != models.StatusChatting || user.PartnerID == nil {
		return "", false, nil
	}
	expected := *user.PartnerID

	var former string
	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var pair []models.User
		if err := forUpdate(tx).Where("id IN ?", []string{id, expected}).Order("id").Find(&pair).Error; err != nil {
			return err
		}

		var self, other *models.User
		for i := range pair {
			if pair[i].ID == id {
				self = &pair[i]
			} else {
				other = &pair[i]
			}
		}
		if self == nil || self.Status != models.StatusChatting || self.Partner() != expected {
			return errPairStale
		}

		if inTx != nil {
			if err := inTx(tx); err != nil {
				return err
			}
		}

		if err := release(tx, id, expected); err != nil {
			return err
		}
		if other != nil && other.Status == models.StatusChatting && other.Partner() == id {
			if err := release(tx, expected, id); err != nil {
				return err
			}
			former = expected
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, errPairStale) {
			return "", false, err
		}
		return "", false, fmt.Errorf("failed to disconnect pair: %w", err)
	}
	return former, true, nil
}

func release(tx *gorm.DB, id, partnerID string) error {
	res := tx.Model(&models.User{}).
		Where("id = ? AND status = ? AND partner_id = ?", id, models.StatusChatting, partnerID).
		Updates(map[string]interface{}{"status": models.StatusIdle, "partner_id": nil})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected != 1 {
		return errPairStale
	}
	return nil
}

func (r *UserRegistry) Stats(ctx context.Context) (*Stats, error) {
	var s Stats
	db := r.db.WithContext(ctx)
	var chatting int64
	counts := []struct {
		dest  *int64
		query *gorm.DB
	}{
		{&s.TotalUsers, db.Model(&models.User{})},
		{&s.Searching, db.Model(&models.User{}).Where("status = ?", models.StatusSearching)},
		{&chatting, db.Model(&models.User{}).Where("status = ?", models.StatusChatting)},
		{&s.Premium, db.Model(&models.User{}).Where("is_premium = ?", true)},
		{&s.Banned, db.Model(&models.User{}).Where("is_banned = ?", true)},
		{&s.Reports, db.Model(&models.Report{})},
	}
	for _, c := range counts {
		if err := c.query.Count(c.dest).Error; err != nil {
			return nil, fmt.Errorf("failed to count users: %w", err)
		}
	}
	s.ChattingPairs = chatting / 2
	return &s, nil
}

func (r *UserRegistry) List(ctx context.Context, status string, limit, offset int) ([]models.User, int64, error) {
	var users []models.User
	var total int64

	query := r.db.WithContext(ctx).Model(&models.User{})
	if status != "" {
		query = query.Where("status = ?", status)
	}
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if err := query.Order("created_at ASC, id ASC").Limit(limit).Offset(offset).Find(&users).Error; err != nil {
		return nil, 0, err
	}
	return users, total, nil
}

func (r *UserRegistry) update(ctx context.Context, id string, values map[string]interface{}) error {
	res := r.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Updates(values)
	if res.Error != nil {
		return fmt.Errorf("failed to update user: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}
