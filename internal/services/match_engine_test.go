package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ahmetcoskunkizilkaya/anonchat-backend/internal/models"
)

func intPtr(v int) *int { return &v }

func TestCompatible(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	premium := func(gender string, min, max int) *models.User {
		return &models.User{IsPremium: true, GenderFilter: gender, AgeMin: min, AgeMax: max}
	}

	tests := []struct {
		name      string
		owner     *models.User
		candidate *models.User
		want      bool
	}{
		{
			name:      "non-premium filter is ignored",
			owner:     &models.User{GenderFilter: models.GenderFemale, AgeMin: 20, AgeMax: 25},
			candidate: &models.User{Gender: models.GenderMale, Age: intPtr(60)},
			want:      true,
		},
		{
			name:      "premium any accepts everyone",
			owner:     premium(models.GenderAny, 18, 99),
			candidate: &models.User{},
			want:      true,
		},
		{
			name:      "premium gender mismatch",
			owner:     premium(models.GenderMale, 18, 99),
			candidate: &models.User{Gender: models.GenderFemale},
			want:      false,
		},
		{
			name:      "premium gender requires a known gender",
			owner:     premium(models.GenderMale, 18, 99),
			candidate: &models.User{},
			want:      false,
		},
		{
			name:      "premium age out of range",
			owner:     premium(models.GenderAny, 20, 30),
			candidate: &models.User{Age: intPtr(31)},
			want:      false,
		},
		{
			name:      "premium age bounds inclusive",
			owner:     premium(models.GenderAny, 20, 30),
			candidate: &models.User{Age: intPtr(30)},
			want:      true,
		},
		{
			name:      "unknown age passes age filter",
			owner:     premium(models.GenderAny, 20, 30),
			candidate: &models.User{},
			want:      true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Compatible(tt.owner, tt.candidate, now); got != tt.want {
				t.Fatalf("Compatible = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSweepPairsDefaultUsers(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	for _, id := range []string{"a", "b"} {
		env.registry.GetOrCreate(ctx, id)
		env.registry.SetStatus(ctx, id, models.StatusIdle, models.StatusSearching)
	}

	events, err := env.engine.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if countEvents(events, EventMatchFound, "a") != 1 || countEvents(events, EventMatchFound, "b") != 1 {
		t.Fatalf("events = %+v, want one match_found per side", events)
	}

	a, b := env.user(t, "a"), env.user(t, "b")
	if a.Partner() != "b" || b.Partner() != "a" {
		t.Fatalf("partners = %q/%q", a.Partner(), b.Partner())
	}
	if a.TotalChats != 1 || b.TotalChats != 1 {
		t.Fatalf("total_chats = %d/%d, want 1/1", a.TotalChats, b.TotalChats)
	}
	env.assertConsistent(t)
}

func TestSweepSkipsIncompatiblePremium(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.registry.GetOrCreate(ctx, "a")
	env.registry.SetPremium(ctx, "a", nil)
	env.registry.SetFilter(ctx, "a", FilterUpdate{Gender: models.GenderMale, AgeMin: 20, AgeMax: 30})
	env.registry.GetOrCreate(ctx, "b")
	env.registry.SetGender(ctx, "b", models.GenderFemale)
	env.registry.SetAge(ctx, "b", 25)

	if res := env.search(t, "a"); res.Outcome != OutcomeWaiting {
		t.Fatalf("search a = %s", res.Outcome)
	}
	if res := env.search(t, "b"); res.Outcome != OutcomeWaiting {
		t.Fatalf("search b = %s, want waiting", res.Outcome)
	}

	events, err := env.engine.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("events = %+v, want none", events)
	}
	for _, id := range []string{"a", "b"} {
		if u := env.user(t, id); u.Status != models.StatusSearching || u.TotalChats != 0 {
			t.Fatalf("%s = %s/%d chats, want untouched", id, u.Status, u.TotalChats)
		}
	}

	env.registry.GetOrCreate(ctx, "c")
	env.registry.SetGender(ctx, "c", models.GenderMale)
	env.registry.SetAge(ctx, "c", 24)
	res := env.search(t, "c")
	if res.Outcome != OutcomeMatched || res.PartnerID != "a" {
		t.Fatalf("search c = %s/%s, want matched with a", res.Outcome, res.PartnerID)
	}
	if u := env.user(t, "b"); u.Status != models.StatusSearching {
		t.Fatalf("b = %s, want still searching", u.Status)
	}
	env.assertConsistent(t)
}

func TestSymmetricCompatibility(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// b is premium and only wants women; a is a man with no filter of his own.
	env.registry.GetOrCreate(ctx, "a")
	env.registry.SetGender(ctx, "a", models.GenderMale)
	env.registry.GetOrCreate(ctx, "b")
	env.registry.SetPremium(ctx, "b", nil)
	env.registry.SetFilter(ctx, "b", FilterUpdate{Gender: models.GenderFemale, AgeMin: 18, AgeMax: 99})

	env.search(t, "b")
	if res := env.search(t, "a"); res.Outcome != OutcomeWaiting {
		t.Fatalf("search a = %s, want waiting", res.Outcome)
	}
}

func TestNonPremiumFilterDoesNotNarrow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.registry.GetOrCreate(ctx, "a")
	env.registry.SetFilter(ctx, "a", FilterUpdate{Gender: models.GenderFemale, AgeMin: 20, AgeMax: 22})
	env.registry.GetOrCreate(ctx, "b")
	env.registry.SetGender(ctx, "b", models.GenderMale)
	env.registry.SetAge(ctx, "b", 70)

	env.pair(t, "b", "a")
	env.assertConsistent(t)
}

func TestExpiredPremiumFilterDoesNotNarrow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	expired := env.registry.Now().Add(-time.Hour)
	env.registry.GetOrCreate(ctx, "a")
	env.registry.SetPremium(ctx, "a", &expired)
	env.registry.SetFilter(ctx, "a", FilterUpdate{Gender: models.GenderFemale, AgeMin: 18, AgeMax: 99})
	env.registry.GetOrCreate(ctx, "b")
	env.registry.SetGender(ctx, "b", models.GenderMale)

	env.pair(t, "b", "a")
}

func TestOnDemandPicksOldestCandidate(t *testing.T) {
	env := newTestEnv(t)
	env.search(t, "first")
	env.registry.GetOrCreate(context.Background(), "x")
	env.registry.SetPremium(context.Background(), "x", nil)
	env.registry.SetFilter(context.Background(), "x", FilterUpdate{Gender: models.GenderFemale, AgeMin: 18, AgeMax: 99})
	env.search(t, "x")

	// first and x were created before late, and first is compatible with everyone.
	res := env.search(t, "late")
	if res.Outcome != OutcomeMatched || res.PartnerID != "first" {
		t.Fatalf("search late = %s/%s, want matched with first", res.Outcome, res.PartnerID)
	}
}

// queueMenWantingWomen puts n premium men who only accept women at the head of
// the searching queue.
func queueMenWantingWomen(t *testing.T, env *testEnv, n int) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < n; i++ {
		id := userID("picky", i)
		env.registry.GetOrCreate(ctx, id)
		env.registry.SetGender(ctx, id, models.GenderMale)
		env.registry.SetPremium(ctx, id, nil)
		env.registry.SetFilter(ctx, id, FilterUpdate{Gender: models.GenderFemale, AgeMin: 18, AgeMax: 99})
		if res := env.search(t, id); res.Outcome != OutcomeWaiting {
			t.Fatalf("search %s = %s, want waiting", id, res.Outcome)
		}
	}
}

func TestOnDemandLooksPastIncompatibleQueueHead(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	queueMenWantingWomen(t, env, DefaultMatchBatchSize+5)

	env.registry.GetOrCreate(ctx, "r")
	env.registry.SetGender(ctx, "r", models.GenderMale)
	if res := env.search(t, "r"); res.Outcome != OutcomeWaiting {
		t.Fatalf("search r = %s, want waiting", res.Outcome)
	}
	res := env.search(t, "d")
	if res.Outcome != OutcomeMatched || res.PartnerID != "r" {
		t.Fatalf("search d = %s/%s, want matched with r", res.Outcome, res.PartnerID)
	}
	env.assertConsistent(t)
}

func TestSweepPagesPastIncompatibleQueueHead(t *testing.T) {
	env := newTestEnv(t)
	env.engine = NewMatchEngine(env.db, env.registry, 4)
	ctx := context.Background()
	queueMenWantingWomen(t, env, 10)

	// r and d enter the queue without an on-demand attempt.
	for _, id := range []string{"r", "d"} {
		env.registry.GetOrCreate(ctx, id)
		env.registry.SetGender(ctx, id, models.GenderMale)
		env.registry.SetStatus(ctx, id, models.StatusIdle, models.StatusSearching)
	}
	env.registry.GetOrCreate(ctx, "w")
	env.registry.SetGender(ctx, "w", models.GenderFemale)
	env.registry.SetStatus(ctx, "w", models.StatusIdle, models.StatusSearching)

	events, err := env.engine.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if countEvents(events, EventMatchFound, "") != 4 {
		t.Fatalf("events = %+v, want two pairs", events)
	}
	if u := env.user(t, userID("picky", 0)); u.Partner() != "w" {
		t.Fatalf("oldest picky user partner = %q, want w", u.Partner())
	}
	if r := env.user(t, "r"); r.Partner() != "d" {
		t.Fatalf("r partner = %q, want d", r.Partner())
	}
	env.assertConsistent(t)
}

func TestCommitPairRejectsStaleUsers(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.pair(t, "a", "b")
	env.search(t, "c")

	ok, err := env.engine.commitPair(ctx, "a", "c")
	if err != nil {
		t.Fatalf("commitPair: %v", err)
	}
	if ok {
		t.Fatal("committed a user that is already chatting")
	}
	if u := env.user(t, "c"); u.Status != models.StatusSearching || u.TotalChats != 0 {
		t.Fatalf("c = %s/%d, want untouched", u.Status, u.TotalChats)
	}

	env.registry.GetOrCreate(ctx, "d")
	if ok, _ := env.engine.commitPair(ctx, "c", "d"); ok {
		t.Fatal("committed an idle user")
	}
	if ok, _ := env.engine.commitPair(ctx, "c", "c"); ok {
		t.Fatal("paired a user with itself")
	}
	env.assertConsistent(t)
}

func TestStaleOnDemandMatchAfterStop(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.search(t, "a")
	env.search(t, "b")
	// b matched a; now a cancels before a late commit lands.
	env.sessions.Stop(ctx, "a")
	env.search(t, "c")

	res, err := env.engine.MatchOnDemand(ctx, "a")
	if err != nil {
		t.Fatalf("MatchOnDemand: %v", err)
	}
	if res.Outcome != OutcomeStopped || len(res.Events) != 0 {
		t.Fatalf("stale match = %+v, want stopped without events", res)
	}
	if u := env.user(t, "c"); u.Status != models.StatusSearching {
		t.Fatalf("c = %s, want still searching", u.Status)
	}
}

func TestConcurrentSearchConverges(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	const n = 24

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			if _, err := env.sessions.Search(ctx, id); err != nil {
				errs <- err
			}
		}(userID("u", i))
	}
	// The sweep races the on-demand path.
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 5; i++ {
			if _, err := env.engine.Sweep(ctx); err != nil {
				errs <- err
			}
		}
	}()
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent call failed: %v", err)
	}

	for {
		events, err := env.engine.Sweep(ctx)
		if err != nil {
			t.Fatalf("Sweep: %v", err)
		}
		if len(events) == 0 {
			break
		}
	}

	var chatting, searching int64
	env.db.Model(&models.User{}).Where("status = ?", models.StatusChatting).Count(&chatting)
	env.db.Model(&models.User{}).Where("status = ?", models.StatusSearching).Count(&searching)
	if chatting%2 != 0 {
		t.Fatalf("odd number of chatting users: %d", chatting)
	}
	if chatting != n || searching != 0 {
		t.Fatalf("chatting=%d searching=%d, want all %d paired", chatting, searching, n)
	}
	env.assertConsistent(t)
}
