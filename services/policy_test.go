package services

import (
	"context"
	"errors"
	"testing"

	"engagement-engine/models"
	"engagement-engine/testutil"
)

func TestPolicyDefaultsWithoutRows(t *testing.T) {
	p := NewPolicyStore(testutil.OpenTestDB(t))

	if got := p.Int(models.PolicyPointsPerAction); got != 10 {
		t.Errorf("points.per_action = %d, want 10", got)
	}
	if !p.Bool(models.PolicyGamificationEnabled) {
		t.Error("gamification.enabled should default to true")
	}
	if got := p.String(models.PolicyRoleTier3); got != "Mentor" {
		t.Errorf("roles.tier3 = %q, want Mentor", got)
	}
	if got := p.Get("unknown.key", "fallback"); got != "fallback" {
		t.Errorf("unknown key = %q, want fallback", got)
	}
}

func TestPolicySetAndInvalidate(t *testing.T) {
	db := testutil.OpenTestDB(t)
	p := NewPolicyStore(db)
	ctx := context.Background()

	if err := p.Set(ctx, models.PolicyMaxPointsPerWeek, "50"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if got := p.Int(models.PolicyMaxPointsPerWeek); got != 50 {
		t.Errorf("after Set = %d, want 50", got)
	}

	// Direct writes are invisible until the cache is dropped.
	db.Model(&models.Policy{Key: models.PolicyMaxPointsPerWeek}).Update("value", "70")
	if got := p.Int(models.PolicyMaxPointsPerWeek); got != 50 {
		t.Errorf("cached value = %d, want 50", got)
	}
	p.Invalidate()
	if got := p.Int(models.PolicyMaxPointsPerWeek); got != 70 {
		t.Errorf("after Invalidate = %d, want 70", got)
	}

	if err := p.Set(ctx, " ", "x"); !errors.Is(err, ErrPolicyKeyRequired) {
		t.Errorf("empty key error = %v", err)
	}
}

func TestPolicyMalformedValuesUseDefault(t *testing.T) {
	p := NewPolicyStore(testutil.OpenTestDB(t))
	ctx := context.Background()

	p.Set(ctx, models.PolicyPointsPerAction, "lots")
	p.Set(ctx, models.PolicyGamificationEnabled, "maybe")

	if got := p.Int(models.PolicyPointsPerAction); got != 10 {
		t.Errorf("malformed int = %d, want default 10", got)
	}
	if !p.Bool(models.PolicyGamificationEnabled) {
		t.Error("malformed bool should fall back to true")
	}
}

func TestSeedDefaultsKeepsExistingRows(t *testing.T) {
	p := NewPolicyStore(testutil.OpenTestDB(t))
	ctx := context.Background()

	if err := p.Set(ctx, models.PolicySeasonTopN, "3"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	err := p.SeedDefaults(ctx, map[string]string{
		models.PolicySeasonTopN:        "20",
		models.PolicyWeeklyGoalActions: "5",
	})
	if err != nil {
		t.Fatalf("SeedDefaults: %v", err)
	}

	all, err := p.All(ctx)
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	if all[models.PolicySeasonTopN] != "3" {
		t.Errorf("season.top_n = %q, want stored 3", all[models.PolicySeasonTopN])
	}
	if all[models.PolicyWeeklyGoalActions] != "5" {
		t.Errorf("weekly_goal.required_actions = %q, want override 5", all[models.PolicyWeeklyGoalActions])
	}
	if all[models.PolicyRoleTier1] != "Contributor" {
		t.Errorf("roles.tier1 = %q, want default", all[models.PolicyRoleTier1])
	}
}

func TestPointsCalculator(t *testing.T) {
	p := NewPolicyStore(testutil.OpenTestDB(t))
	p.Set(context.Background(), models.PolicyPointsPerAction, "2")
	c := NewPointsCalculator(p)

	tests := map[models.ActionType]int64{
		models.ActionCheckIn:       2,
		models.ActionMeetingAttend: 7,
		models.ActionDemoPresented: 17,
		models.ActionHelpSolved:    2,
	}
	for at, want := range tests {
		if got := c.BasePoints(at); got != want {
			t.Errorf("BasePoints(%s) = %d, want %d", at, got, want)
		}
	}
	if got := c.WeeklyCap(); got != 100 {
		t.Errorf("WeeklyCap = %d, want 100", got)
	}
}
