package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"engagement-engine/models"
)

func TestLogActionWeeklyCap(t *testing.T) {
	h := newHarness(t, map[string]string{
		models.PolicyPointsPerAction:  "1",
		models.PolicyMaxPointsPerWeek: "3",
	})

	want := []int64{1, 1, 1, 0}
	for i, w := range want {
		if got := h.log(t, "alice", models.ActionCheckIn); got != w {
			t.Errorf("check-in %d: credited %d, want %d", i+1, got, w)
		}
	}

	season, err := h.seasons.CurrentSeason(context.Background())
	if err != nil || season == nil {
		t.Fatalf("CurrentSeason: %v, %v", season, err)
	}
	if got := h.score(t, "alice", season.ID); got != 3 {
		t.Errorf("season score = %d, want 3", got)
	}

	// The capped action is still in the ledger.
	var total, zero int64
	h.db.Model(&models.Action{}).Where("user_id = ?", "alice").Count(&total)
	h.db.Model(&models.Action{}).Where("user_id = ? AND points = 0", "alice").Count(&zero)
	if total != 4 || zero != 1 {
		t.Errorf("ledger has %d actions with %d uncredited, want 4 and 1", total, zero)
	}

	// A new week resets the cap.
	h.clock.Advance(7 * 24 * time.Hour)
	if got := h.log(t, "alice", models.ActionCheckIn); got != 1 {
		t.Errorf("next week credited %d, want 1", got)
	}
	if got := h.score(t, "alice", season.ID); got != 4 {
		t.Errorf("season score = %d, want 4", got)
	}
}

func TestLogActionBonusesAndPartialCap(t *testing.T) {
	h := newHarness(t, map[string]string{models.PolicyMaxPointsPerWeek: "40"})

	if got := h.log(t, "bob", models.ActionMeetingAttend); got != 15 {
		t.Errorf("meeting-attend credited %d, want 15", got)
	}
	if got := h.log(t, "bob", models.ActionDemoPresented); got != 25 {
		t.Errorf("demo-presented credited %d, want 25", got)
	}
	// 40 - 40 already credited
	if got := h.log(t, "bob", models.ActionHelpSolved); got != 0 {
		t.Errorf("help-solved credited %d, want 0", got)
	}
}

func TestLogActionValidation(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	if _, err := h.engine.LogAction(ctx, "alice", models.ActionType("dance"), nil); !errors.Is(err, ErrUnknownActionType) {
		t.Errorf("unknown type error = %v, want ErrUnknownActionType", err)
	}
	if _, err := h.engine.LogAction(ctx, "  ", models.ActionCheckIn, nil); !errors.Is(err, ErrInvalidUser) {
		t.Errorf("empty user error = %v, want ErrInvalidUser", err)
	}

	var n int64
	h.db.Model(&models.Action{}).Count(&n)
	if n != 0 {
		t.Errorf("rejected actions wrote %d ledger rows", n)
	}
}

func TestLogActionDisabled(t *testing.T) {
	h := newHarness(t, map[string]string{models.PolicyGamificationEnabled: "false"})

	if got := h.log(t, "alice", models.ActionCheckIn); got != 0 {
		t.Errorf("credited %d while disabled, want 0", got)
	}
	var n int64
	h.db.Model(&models.Action{}).Count(&n)
	if n != 0 {
		t.Errorf("ledger has %d rows while disabled, want 0", n)
	}
	if got := h.activeSeasons(t); got != 1 {
		t.Errorf("active seasons = %d, want 1", got)
	}
	if len(h.notifier.badgesFor("alice")) != 0 {
		t.Error("badges awarded while disabled")
	}
}

func TestLogActionStoresRefAndWeekKey(t *testing.T) {
	h := newHarness(t, nil)
	ref := "msg-42"
	if _, err := h.engine.LogAction(context.Background(), "alice", models.ActionDemoPosted, &ref); err != nil {
		t.Fatalf("LogAction: %v", err)
	}

	var a models.Action
	if err := h.db.First(&a).Error; err != nil {
		t.Fatalf("load action: %v", err)
	}
	if a.Ref == nil || *a.Ref != ref {
		t.Errorf("ref = %v, want %q", a.Ref, ref)
	}
	if a.WeekKey != "2026-01-05" {
		t.Errorf("week key = %q, want 2026-01-05", a.WeekKey)
	}
	if a.SeasonID == "" {
		t.Error("action has no season")
	}
}

func TestHasActionOnDay(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	has, err := h.engine.HasActionOnDay(ctx, "alice", models.ActionCheckIn, h.clock.Now())
	if err != nil || has {
		t.Fatalf("before check-in: %v, %v", has, err)
	}
	h.log(t, "alice", models.ActionCheckIn)

	has, err = h.engine.HasActionOnDay(ctx, "alice", models.ActionCheckIn, h.clock.Now().Add(time.Hour))
	if err != nil || !has {
		t.Errorf("same day: %v, %v", has, err)
	}
	has, err = h.engine.HasActionOnDay(ctx, "alice", models.ActionCheckIn, h.clock.Now().Add(24*time.Hour))
	if err != nil || has {
		t.Errorf("next day: %v, %v", has, err)
	}
}

func TestHasActionOnDayOutsideUTC(t *testing.T) {
	est := time.FixedZone("EST", -5*60*60)
	h := newHarnessIn(t, est, nil)
	ctx := context.Background()

	// 2026-01-06 02:00 UTC is still Jan 5 in the community.
	h.clock.Set(time.Date(2026, time.January, 5, 21, 0, 0, 0, est))
	h.log(t, "alice", models.ActionCheckIn)

	tests := []struct {
		name string
		at   time.Time
		want bool
	}{
		{"same instant", h.clock.Now(), true},
		{"same local day, UTC next day", time.Date(2026, time.January, 6, 4, 0, 0, 0, time.UTC), true},
		{"local morning", time.Date(2026, time.January, 5, 6, 0, 0, 0, est), true},
		{"next local day", time.Date(2026, time.January, 6, 1, 0, 0, 0, est), false},
		{"previous local day", time.Date(2026, time.January, 4, 23, 0, 0, 0, est), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			has, err := h.engine.HasActionOnDay(ctx, "alice", models.ActionCheckIn, tt.at)
			if err != nil || has != tt.want {
				t.Errorf("HasActionOnDay(%v) = %v, %v; want %v", tt.at, has, err, tt.want)
			}
		})
	}

	var a models.Action
	if err := h.db.First(&a, "user_id = ?", "alice").Error; err != nil {
		t.Fatalf("load action: %v", err)
	}
	if a.WeekKey != "2026-01-05" {
		t.Errorf("week key = %s, want 2026-01-05", a.WeekKey)
	}
}

func TestGetUserStats(t *testing.T) {
	h := newHarness(t, nil)

	h.log(t, "alice", models.ActionCheckIn)
	h.log(t, "alice", models.ActionMeetingAttend)
	h.log(t, "bob", models.ActionCheckIn)

	stats, err := h.engine.GetUserStats(context.Background(), "alice")
	if err != nil {
		t.Fatalf("GetUserStats: %v", err)
	}
	if stats.Week.Actions != 2 || stats.Week.Points != 25 || stats.Week.DistinctTypes != 2 {
		t.Errorf("week = %+v, want 2 actions, 25 points, 2 types", stats.Week)
	}
	if stats.SeasonPoints != 25 {
		t.Errorf("season points = %d, want 25", stats.SeasonPoints)
	}
	if stats.CurrentStreak != 0 || stats.BestStreak != 0 {
		t.Errorf("streak = %d/%d, want 0/0", stats.CurrentStreak, stats.BestStreak)
	}
	if len(stats.Badges) != 1 || stats.Badges[0].Code != "first-check-in" || stats.Badges[0].Label != "First Check-in" {
		t.Errorf("badges = %+v, want first-check-in", stats.Badges)
	}
}

func TestGetUserStatsUnknownUser(t *testing.T) {
	h := newHarness(t, nil)

	stats, err := h.engine.GetUserStats(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("GetUserStats: %v", err)
	}
	if stats.SeasonPoints != 0 || stats.Week.Actions != 0 || len(stats.Badges) != 0 {
		t.Errorf("stats = %+v, want zero values", stats)
	}
}

func TestCapPoints(t *testing.T) {
	tests := []struct {
		base, already, cap, want int64
	}{
		{10, 0, 100, 10},
		{10, 95, 100, 5},
		{10, 100, 100, 0},
		{10, 120, 100, 0},
		{0, 0, 100, 0},
		{10, 0, 0, 0},
	}
	for _, tt := range tests {
		if got := CapPoints(tt.base, tt.already, tt.cap); got != tt.want {
			t.Errorf("CapPoints(%d, %d, %d) = %d, want %d", tt.base, tt.already, tt.cap, got, tt.want)
		}
	}
}
