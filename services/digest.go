package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"engagement-engine/models"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gorm.io/gorm"
)

// ActionLabel renders an action type for people, e.g. "meeting-attend" →
// "Meeting Attend".
func ActionLabel(t models.ActionType) string {
	return cases.Title(language.English).String(strings.ReplaceAll(string(t), "-", " "))
}

type Contributor struct {
	UserID  string `json:"user_id"`
	Points  int64  `json:"points"`
	Actions int64  `json:"actions"`
}

// WeeklyDigest is the community summary for one week key.
type WeeklyDigest struct {
	WeekKey         string           `json:"week_key"`
	TotalActions    int64            `json:"total_actions"`
	ActiveUsers     int64            `json:"active_users"`
	ByType          map[string]int64 `json:"by_type"`
	TopContributors []Contributor    `json:"top_contributors"`
}

// DigestService builds and publishes the weekly digest.
type DigestService struct {
	DB       *gorm.DB
	Notifier Notifier
	Location *time.Location
	Now      func() time.Time
	Top      int
}

func NewDigestService(db *gorm.DB, notifier Notifier, loc *time.Location) *DigestService {
	if loc == nil {
		loc = time.UTC
	}
	return &DigestService{DB: db, Notifier: notifier, Location: loc, Now: time.Now, Top: 5}
}

// BuildWeekly aggregates the ledger for the week containing weekStart.
func (d *DigestService) BuildWeekly(ctx context.Context, weekStart time.Time) (*WeeklyDigest, error) {
	weekKey := WeekKey(weekStart, d.Location)
	db := d.DB.WithContext(ctx)

	digest := &WeeklyDigest{WeekKey: weekKey, ByType: map[string]int64{}, TopContributors: []Contributor{}}

	byType, err := countByType(db.Where("week_key = ?", weekKey))
	if err != nil {
		return nil, fmt.Errorf("count actions by type: %w", err)
	}
	for _, t := range models.ActionTypes {
		if n := byType[t]; n > 0 {
			digest.ByType[ActionLabel(t)] = n
			digest.TotalActions += n
		}
	}

	if err := db.Model(&models.Action{}).
		Where("week_key = ?", weekKey).
		Select("COUNT(DISTINCT user_id)").
		Scan(&digest.ActiveUsers).Error; err != nil {
		return nil, fmt.Errorf("count active users: %w", err)
	}

	top := d.Top
	if top <= 0 {
		top = 5
	}
	if err := db.Model(&models.Action{}).
		Select("user_id, COALESCE(SUM(points), 0) AS points, COUNT(*) AS actions").
		Where("week_key = ?", weekKey).
		Group("user_id").
		Order("points DESC, actions DESC, user_id ASC").
		Limit(top).
		Scan(&digest.TopContributors).Error; err != nil {
		return nil, fmt.Errorf("rank contributors: %w", err)
	}
	return digest, nil
}

// PublishWeekly builds the digest for the last completed week and publishes
// it as a community-wide notification.
func (d *DigestService) PublishWeekly(ctx context.Context) (*WeeklyDigest, error) {
	now := time.Now()
	if d.Now != nil {
		now = d.Now()
	}
	digest, err := d.BuildWeekly(ctx, PreviousWeekStart(now, d.Location))
	if err != nil {
		return nil, err
	}
	slog.Info("📰 weekly digest", "week_key", digest.WeekKey, "actions", digest.TotalActions, "active_users", digest.ActiveUsers)
	publish(ctx, d.Notifier, Event{Kind: models.NotifyWeeklyDigest, Payload: digest})
	return digest, nil
}
