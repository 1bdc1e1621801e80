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

const DefaultDailyNextLimit = 5

var ErrQuotaExceeded = errors.New("daily skip quota exceeded")

// RateLimiter enforces the daily skip quota stored in next_used_today.
type RateLimiter struct {
	registry *UserRegistry
	limit    int
}

func NewRateLimiter(registry *UserRegistry, limit int) *RateLimiter {
	if limit <= 0 {
		limit = DefaultDailyNextLimit
	}
	return &RateLimiter{registry: registry, limit: limit}
}

func (l *RateLimiter) Limit() int {
	return l.limit
}

// Exceeded reports whether u may not skip again. Premium users are never limited,
// whatever their stored counter says.
func (l *RateLimiter) Exceeded(u *models.User) bool {
	if u.PremiumActive(l.registry.Now()) {
		return false
	}
	return u.NextUsedToday >= l.limit
}

// Remaining returns the skips left today, or -1 for unlimited.
func (l *RateLimiter) Remaining(u *models.User) int {
	if u.PremiumActive(l.registry.Now()) {
		return -1
	}
	if left := l.limit - u.NextUsedToday; left > 0 {
		return left
	}
	return 0
}

// Charge spends one skip for id, or returns ErrQuotaExceeded when none is left.
func (l *RateLimiter) Charge(ctx context.Context, id string) error {
	return l.chargeTx(l.registry.db.WithContext(ctx), id)
}

// chargeTx is the conditional form of the counter increment: it only applies
// while the user has skips left or premium is active, so concurrent skips can
// never push the counter past the limit.
func (l *RateLimiter) chargeTx(tx *gorm.DB, id string) error {
	res := tx.Model(&models.User{}).
		Where("id = ? AND (next_used_today < ? OR (is_premium = ? AND (premium_until IS NULL OR premium_until > ?)))",
			id, l.limit, true, l.registry.Now()).
		UpdateColumn(string(CounterNextUsedToday), gorm.Expr(string(CounterNextUsedToday)+" + ?", 1))
	if res.Error != nil {
		return fmt.Errorf("failed to charge skip: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrQuotaExceeded
	}
	return nil
}

func (l *RateLimiter) ResetAll(ctx context.Context) (int64, error) {
	return l.registry.ResetCounter(ctx, CounterNextUsedToday)
}

// Start resets every quota once per interval, measured from process start.
func (l *RateLimiter) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			n, err := l.ResetAll(ctx)
			if err != nil {
				slog.Error("quota reset failed", "action", "quota_reset", "error", err)
				sentry.CaptureException(err)
			} else if n > 0 {
				slog.Info("quota reset completed", "action", "quota_reset", "users", n)
			}
		case <-ctx.Done():
			return
		}
	}
}
