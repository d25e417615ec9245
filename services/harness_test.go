package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"engagement-engine/models"
	"engagement-engine/testutil"

	"gorm.io/gorm"
)

// monday is 2026-01-05 10:00 UTC, a Monday.
var monday = time.Date(2026, time.January, 5, 10, 0, 0, 0, time.UTC)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (f *fakeNotifier) Notify(_ context.Context, evt Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, evt)
	return f.err
}

func (f *fakeNotifier) count(kind models.NotificationKind) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, e := range f.events {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

func (f *fakeNotifier) kinds() []models.NotificationKind {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.NotificationKind, len(f.events))
	for i, e := range f.events {
		out[i] = e.Kind
	}
	return out
}

func (f *fakeNotifier) badgesFor(userID string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, e := range f.events {
		if p, ok := e.Payload.(BadgeEarnedEvent); ok && p.UserID == userID {
			out = append(out, p.BadgeCode)
		}
	}
	return out
}

type harness struct {
	db       *gorm.DB
	clock    *testClock
	notifier *fakeNotifier
	granter  *MemoryGranter
	policy   *PolicyStore
	seasons  *SeasonManager
	badges   *BadgeEngine
	roles    *RoleEvaluator
	engine   *Engine
	streaks  *StreakTracker
	digests  *DigestService
	reminder *ReminderService
}

func newHarness(t *testing.T, overrides map[string]string) *harness {
	t.Helper()
	return newHarnessIn(t, time.UTC, overrides)
}

// newHarnessIn wires the services for a community in loc.
func newHarnessIn(t *testing.T, loc *time.Location, overrides map[string]string) *harness {
	t.Helper()

	db := testutil.OpenTestDB(t)
	h := &harness{
		db:       db,
		clock:    &testClock{t: monday},
		notifier: &fakeNotifier{},
		granter:  NewMemoryGranter(),
		policy:   NewPolicyStore(db),
	}
	if err := h.policy.SeedDefaults(context.Background(), overrides); err != nil {
		t.Fatalf("seed policies: %v", err)
	}

	h.seasons = NewSeasonManager(db, h.policy, h.notifier)
	h.seasons.Now = h.clock.Now
	h.badges = NewBadgeEngine(db, h.notifier)
	h.roles = NewRoleEvaluator(db, h.policy, h.granter, h.notifier)
	h.roles.Now = h.clock.Now
	h.engine = NewEngine(db, h.policy, h.seasons, h.badges, h.roles, loc)
	h.engine.Now = h.clock.Now
	h.streaks = NewStreakTracker(db, h.policy, loc)
	h.streaks.Now = h.clock.Now
	h.digests = NewDigestService(db, h.notifier, loc)
	h.digests.Now = h.clock.Now
	h.reminder = NewReminderService(db, h.notifier)
	h.reminder.Now = h.clock.Now
	return h
}

func (h *harness) log(t *testing.T, userID string, actionType models.ActionType) int64 {
	t.Helper()
	credited, err := h.engine.LogAction(context.Background(), userID, actionType, nil)
	if err != nil {
		t.Fatalf("LogAction(%s, %s): %v", userID, actionType, err)
	}
	return credited
}

func (h *harness) score(t *testing.T, userID, seasonID string) int64 {
	t.Helper()
	var s models.Score
	if err := h.db.Where("user_id = ? AND season_id = ?", userID, seasonID).First(&s).Error; err != nil {
		t.Fatalf("load score: %v", err)
	}
	return s.Points
}

func (h *harness) activeSeasons(t *testing.T) int64 {
	t.Helper()
	var n int64
	if err := h.db.Model(&models.Season{}).Where("status = ?", models.SeasonActive).Count(&n).Error; err != nil {
		t.Fatalf("count active seasons: %v", err)
	}
	return n
}

func contains(list []string, want string) bool {
	for _, v := range list {
		if v == want {
			return true
		}
	}
	return false
}
