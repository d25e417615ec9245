package services

import (
	"context"
	"strings"
	"testing"

	"engagement-engine/models"
)

func TestMeetRegularAwardedOnce(t *testing.T) {
	h := newHarness(t, nil)

	for i := 0; i < 3; i++ {
		h.log(t, "alice", models.ActionMeetingAttend)
	}
	if contains(h.notifier.badgesFor("alice"), "meet-regular") {
		t.Fatal("meet-regular awarded after three meetings")
	}
	h.log(t, "alice", models.ActionMeetingAttend)
	h.log(t, "alice", models.ActionMeetingAttend)

	var n int64
	h.db.Model(&models.UserBadge{}).Where("user_id = ? AND badge_code = ?", "alice", "meet-regular").Count(&n)
	if n != 1 {
		t.Errorf("meet-regular grants = %d, want 1", n)
	}
	got := 0
	for _, code := range h.notifier.badgesFor("alice") {
		if code == "meet-regular" {
			got++
		}
	}
	if got != 1 {
		t.Errorf("meet-regular notifications = %d, want 1", got)
	}
}

func TestAwardIsIdempotent(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	badge := models.BadgeRules[0].Badge

	ok, err := h.badges.Award(ctx, "alice", badge, "")
	if err != nil || !ok {
		t.Fatalf("first award = %v, %v", ok, err)
	}
	ok, err = h.badges.Award(ctx, "alice", badge, "")
	if err != nil || ok {
		t.Errorf("second award = %v, %v; want false, nil", ok, err)
	}
}

func TestSeasonalBadgeOncePerSeason(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	badge := models.Badge{Code: "season-regular", Label: "Season Regular", Seasonal: true}

	if _, err := h.badges.Award(ctx, "alice", badge, ""); err == nil {
		t.Error("seasonal badge without season should fail")
	}
	for _, tc := range []struct {
		season string
		want   bool
	}{
		{"s1", true},
		{"s1", false},
		{"s2", true},
	} {
		ok, err := h.badges.Award(ctx, "alice", badge, tc.season)
		if err != nil || ok != tc.want {
			t.Errorf("Award(%s) = %v, %v; want %v", tc.season, ok, err, tc.want)
		}
	}
}

func TestSeasonalRuleCountsSeasonActions(t *testing.T) {
	h := newHarness(t, nil)
	h.badges.Rules = []models.BadgeRule{{
		Badge:  models.Badge{Code: "season-helper", Label: "Season Helper", Seasonal: true},
		Action: models.ActionHelpSolved,
		Count:  2,
	}}
	ctx := context.Background()

	h.log(t, "alice", models.ActionHelpSolved)
	if _, err := h.seasons.EndCurrentSeason(ctx); err != nil {
		t.Fatalf("EndCurrentSeason: %v", err)
	}
	h.log(t, "alice", models.ActionHelpSolved)
	if contains(h.notifier.badgesFor("alice"), "season-helper") {
		t.Fatal("seasonal badge counted actions from the previous season")
	}
	h.log(t, "alice", models.ActionHelpSolved)
	if !contains(h.notifier.badgesFor("alice"), "season-helper") {
		t.Error("seasonal badge not awarded")
	}
}

func TestBadgeNotifyFailureKeepsGrant(t *testing.T) {
	h := newHarness(t, nil)
	h.notifier.err = errTest

	if got := h.log(t, "alice", models.ActionCheckIn); got != 10 {
		t.Errorf("credited %d, want 10", got)
	}
	var n int64
	h.db.Model(&models.UserBadge{}).Where("user_id = ?", "alice").Count(&n)
	if n != 1 {
		t.Errorf("grants = %d, want 1", n)
	}
}

func TestValidateRules(t *testing.T) {
	if err := ValidateRules(models.BadgeRules); err != nil {
		t.Fatalf("default rules: %v", err)
	}

	tests := []struct {
		name  string
		rules []models.BadgeRule
		want  string
	}{
		{"not a slug", []models.BadgeRule{{Badge: models.Badge{Code: "First Demo"}, Action: models.ActionDemoPosted, Count: 1}}, "not a slug"},
		{"duplicate", []models.BadgeRule{
			{Badge: models.Badge{Code: "a"}, Action: models.ActionCheckIn, Count: 1},
			{Badge: models.Badge{Code: "a"}, Action: models.ActionCheckIn, Count: 2},
		}, "duplicate"},
		{"two triggers", []models.BadgeRule{{Badge: models.Badge{Code: "b"}, Action: models.ActionCheckIn, Count: 1, WeeklyStreak: 2}}, "exactly one trigger"},
		{"no trigger", []models.BadgeRule{{Badge: models.Badge{Code: "c"}}}, "exactly one trigger"},
		{"unknown action", []models.BadgeRule{{Badge: models.Badge{Code: "d"}, Action: "dance", Count: 1}}, "unknown action type"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRules(tt.rules)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want %q", err, tt.want)
			}
		})
	}
}

func TestCatalogIsSeeded(t *testing.T) {
	h := newHarness(t, nil)
	badges, err := h.badges.Catalog(context.Background())
	if err != nil {
		t.Fatalf("Catalog: %v", err)
	}
	if len(badges) != len(models.BadgeRules) {
		t.Errorf("catalog has %d badges, want %d", len(badges), len(models.BadgeRules))
	}
}
