package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ahmetcoskunkizilkaya/anonchat-backend/internal/database"
	"github.com/ahmetcoskunkizilkaya/anonchat-backend/internal/models"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// stepClock advances by one millisecond per reading so creation order is stable.
type stepClock struct {
	mu  sync.Mutex
	cur time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cur = c.cur.Add(time.Millisecond)
	return c.cur
}

type testEnv struct {
	db         *gorm.DB
	registry   *UserRegistry
	engine     *MatchEngine
	limiter    *RateLimiter
	sessions   *SessionManager
	moderation *ModerationService
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	// Each connection to :memory: is a separate database.
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newEnvOn(t, newTestDB(t))
}

func newEnvOn(t *testing.T, db *gorm.DB) *testEnv {
	t.Helper()
	clock := &stepClock{cur: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	registry := NewUserRegistry(db).WithClock(clock.Now)
	engine := NewMatchEngine(db, registry, DefaultMatchBatchSize)
	limiter := NewRateLimiter(registry, DefaultDailyNextLimit)
	return &testEnv{
		db:         db,
		registry:   registry,
		engine:     engine,
		limiter:    limiter,
		sessions:   NewSessionManager(registry, engine, limiter),
		moderation: NewModerationService(db, registry, DefaultBanThreshold),
	}
}

func (e *testEnv) user(t *testing.T, id string) *models.User {
	t.Helper()
	u, err := e.registry.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("get %s: %v", id, err)
	}
	return u
}

func (e *testEnv) search(t *testing.T, id string) Result {
	t.Helper()
	res, err := e.sessions.Search(context.Background(), id)
	if err != nil {
		t.Fatalf("search %s: %v", id, err)
	}
	return res
}

// pair makes a and b chat with each other through the normal command path.
func (e *testEnv) pair(t *testing.T, a, b string) {
	t.Helper()
	if res := e.search(t, a); res.Outcome != OutcomeWaiting {
		t.Fatalf("search %s = %s, want waiting", a, res.Outcome)
	}
	res := e.search(t, b)
	if res.Outcome != OutcomeMatched || res.PartnerID != a {
		t.Fatalf("search %s = %s/%s, want matched/%s", b, res.Outcome, res.PartnerID, a)
	}
}

// assertConsistent checks that chatting holds exactly for mutually paired users.
func (e *testEnv) assertConsistent(t *testing.T) {
	t.Helper()
	var users []models.User
	if err := e.db.Find(&users).Error; err != nil {
		t.Fatalf("list users: %v", err)
	}
	byID := make(map[string]models.User, len(users))
	for _, u := range users {
		byID[u.ID] = u
	}
	for _, u := range users {
		chatting := u.Status == models.StatusChatting
		if chatting != (u.PartnerID != nil) {
			t.Errorf("%s: status %s with partner %q", u.ID, u.Status, u.Partner())
			continue
		}
		if !chatting {
			continue
		}
		p, ok := byID[*u.PartnerID]
		if !ok || p.Status != models.StatusChatting || p.Partner() != u.ID {
			t.Errorf("%s: partner %s does not point back (status %s, partner %q)", u.ID, *u.PartnerID, p.Status, p.Partner())
		}
	}
}

func countEvents(events []Event, typ EventType, userID string) int {
	n := 0
	for _, ev := range events {
		if ev.Type == typ && (userID == "" || ev.UserID == userID) {
			n++
		}
	}
	return n
}

func userID(prefix string, i int) string {
	return fmt.Sprintf("%s-%02d", prefix, i)
}
