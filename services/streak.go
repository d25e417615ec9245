package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"engagement-engine/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// StreakTracker applies the weekly goal rollup to every user's streak.
type StreakTracker struct {
	DB       *gorm.DB
	Policy   *PolicyStore
	Location *time.Location
	Now      func() time.Time
}

func NewStreakTracker(db *gorm.DB, policy *PolicyStore, loc *time.Location) *StreakTracker {
	if loc == nil {
		loc = time.UTC
	}
	return &StreakTracker{DB: db, Policy: policy, Location: loc, Now: time.Now}
}

// WeekActivity is one user's activity in the week being rolled up.
type WeekActivity struct {
	UserID        string `json:"user_id"`
	Actions       int64  `json:"actions"`
	DistinctTypes int64  `json:"distinct_types"`
}

// RollupSummary reports what a rollup did.
type RollupSummary struct {
	WeekKey   string `json:"week_key"`
	Evaluated int    `json:"evaluated"`
	GoalsMet  int    `json:"goals_met"`
	Resets    int    `json:"resets"`
	Skipped   int    `json:"skipped"`
}

// MaxCatchUpWeeks bounds how many unevaluated weeks one rollup replays.
const MaxCatchUpWeeks = 12

// ApplyWeek advances s by one evaluated week. It returns false when the week
// was already applied, which keeps rollups idempotent. A gap since the last
// evaluated week breaks the streak before weekKey is counted.
func ApplyWeek(s *models.Streak, weekKey string, met bool, weekEnd time.Time) bool {
	if s.LastWeekEvaluated != "" && s.LastWeekEvaluated >= weekKey {
		return false
	}
	if s.LastWeekEvaluated != "" && s.LastWeekEvaluated != previousWeekKey(weekKey) {
		s.WeeklyCurrent = 0
	}
	if met {
		s.WeeklyCurrent++
		if s.WeeklyCurrent > s.WeeklyBest {
			s.WeeklyBest = s.WeeklyCurrent
		}
		achieved := weekEnd
		s.LastWeekAchieved = &achieved
	} else {
		s.WeeklyCurrent = 0
	}
	s.LastWeekEvaluated = weekKey
	return true
}

func previousWeekKey(weekKey string) string {
	t, err := time.Parse(WeekKeyLayout, weekKey)
	if err != nil {
		return ""
	}
	return t.AddDate(0, 0, -7).Format(WeekKeyLayout)
}

// RollupPreviousWeek rolls up the last completed week before now. Weeks
// after the latest evaluated one that never got a rollup are replayed first,
// oldest first, up to MaxCatchUpWeeks. It returns the last week's summary.
func (t *StreakTracker) RollupPreviousWeek(ctx context.Context) (*RollupSummary, error) {
	now := time.Now()
	if t.Now != nil {
		now = t.Now()
	}
	target := PreviousWeekStart(now, t.Location)

	start, err := t.catchUpStart(ctx, target)
	if err != nil {
		return nil, err
	}
	var summary *RollupSummary
	for week := start; !week.After(target); week = week.AddDate(0, 0, 7) {
		if summary, err = t.RollupWeek(ctx, week); err != nil {
			return summary, err
		}
	}
	return summary, nil
}

// catchUpStart returns the first week after the latest evaluated one, no
// earlier than MaxCatchUpWeeks before target.
func (t *StreakTracker) catchUpStart(ctx context.Context, target time.Time) (time.Time, error) {
	var latest string
	if err := t.DB.WithContext(ctx).Model(&models.Streak{}).
		Select("COALESCE(MAX(last_week_evaluated), '')").
		Scan(&latest).Error; err != nil {
		return time.Time{}, fmt.Errorf("load last evaluated week: %w", err)
	}
	if latest == "" {
		return target, nil
	}
	last, err := ParseWeekKey(latest, t.Location)
	if err != nil {
		return target, nil
	}
	start := last.AddDate(0, 0, 7)
	if floor := target.AddDate(0, 0, -7*(MaxCatchUpWeeks-1)); start.Before(floor) {
		start = floor
	}
	if start.After(target) {
		return target, nil
	}
	return start, nil
}

// RollupWeek evaluates the week containing weekStart for every user who
// either acted that week or already has a streak. Each user is updated in
// its own transaction.
func (t *StreakTracker) RollupWeek(ctx context.Context, weekStart time.Time) (*RollupSummary, error) {
	start := WeekStart(weekStart, t.Location)
	weekKey := start.Format(WeekKeyLayout)
	weekEnd := WeekEnd(start)
	required := t.Policy.Int(models.PolicyWeeklyGoalActions)

	activity, err := t.WeekActivity(ctx, weekKey)
	if err != nil {
		return nil, err
	}

	var tracked []string
	if err := t.DB.WithContext(ctx).Model(&models.Streak{}).Pluck("user_id", &tracked).Error; err != nil {
		return nil, fmt.Errorf("load streak users: %w", err)
	}

	users := map[string]WeekActivity{}
	for _, uid := range tracked {
		users[uid] = WeekActivity{UserID: uid}
	}
	for _, a := range activity {
		users[a.UserID] = a
	}
	ids := make([]string, 0, len(users))
	for uid := range users {
		ids = append(ids, uid)
	}
	sort.Strings(ids)

	summary := &RollupSummary{WeekKey: weekKey}
	for _, uid := range ids {
		met := users[uid].Actions >= required
		applied, err := t.applyUser(ctx, uid, weekKey, met, weekEnd)
		if err != nil {
			slog.Error("streak rollup failed", "user_id", uid, "week_key", weekKey, "error", err)
			return summary, fmt.Errorf("rollup %s: %w", uid, err)
		}
		switch {
		case !applied:
			summary.Skipped++
		case met:
			summary.GoalsMet++
		default:
			summary.Resets++
		}
		if applied {
			summary.Evaluated++
		}
	}

	slog.Info("📅 weekly streak rollup",
		"week_key", weekKey, "evaluated", summary.Evaluated, "goals_met", summary.GoalsMet,
		"resets", summary.Resets, "skipped", summary.Skipped)
	return summary, nil
}

func (t *StreakTracker) applyUser(ctx context.Context, userID, weekKey string, met bool, weekEnd time.Time) (bool, error) {
	var applied bool
	err := t.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		seed := models.Streak{UserID: userID}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&seed).Error; err != nil {
			return err
		}
		var s models.Streak
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ?", userID).
			First(&s).Error; err != nil {
			return err
		}
		if !ApplyWeek(&s, weekKey, met, weekEnd) {
			return nil
		}
		applied = true
		return tx.Save(&s).Error
	})
	return applied, err
}

// WeekActivity returns per-user action totals and distinct action types for
// a week key.
func (t *StreakTracker) WeekActivity(ctx context.Context, weekKey string) ([]WeekActivity, error) {
	var rows []WeekActivity
	err := t.DB.WithContext(ctx).Model(&models.Action{}).
		Select("user_id, COUNT(*) AS actions, COUNT(DISTINCT type) AS distinct_types").
		Where("week_key = ?", weekKey).
		Group("user_id").
		Order("user_id").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("load week activity: %w", err)
	}
	return rows, nil
}

// Get returns the streak for userID; a user without one has a zero streak.
func (t *StreakTracker) Get(ctx context.Context, userID string) (*models.Streak, error) {
	var s models.Streak
	err := t.DB.WithContext(ctx).Where("user_id = ?", userID).First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &models.Streak{UserID: userID}, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}
