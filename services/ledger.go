package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"engagement-engine/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrUnknownActionType = errors.New("unknown action type")
	ErrInvalidUser       = errors.New("user id is required")
)

// Engine is the entry point for recording engagement: it appends to the
// action ledger, keeps season scores and runs badge and role checks.
type Engine struct {
	DB       *gorm.DB
	Policy   *PolicyStore
	Points   *PointsCalculator
	Seasons  *SeasonManager
	Badges   *BadgeEngine
	Roles    *RoleEvaluator
	Location *time.Location
	Now      func() time.Time
}

func NewEngine(db *gorm.DB, policy *PolicyStore, seasons *SeasonManager, badges *BadgeEngine, roles *RoleEvaluator, loc *time.Location) *Engine {
	if loc == nil {
		loc = time.UTC
	}
	return &Engine{
		DB:       db,
		Policy:   policy,
		Points:   NewPointsCalculator(policy),
		Seasons:  seasons,
		Badges:   badges,
		Roles:    roles,
		Location: loc,
		Now:      time.Now,
	}
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now().UTC()
	}
	return time.Now().UTC()
}

// LogAction records one action for userID and returns the points credited
// after the weekly cap. The season lookup, cap read, ledger append and score
// update commit together; badge and role evaluation run afterwards and never
// undo the append.
func (e *Engine) LogAction(ctx context.Context, userID string, actionType models.ActionType, ref *string) (int64, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return 0, ErrInvalidUser
	}
	if !actionType.Valid() {
		return 0, fmt.Errorf("%w: %q", ErrUnknownActionType, actionType)
	}
	if ref != nil && strings.TrimSpace(*ref) == "" {
		ref = nil
	}

	// Policy is read before the transaction opens; the cache may need the
	// store and the transaction holds a connection.
	now := e.now()
	enabled := e.Policy.Bool(models.PolicyGamificationEnabled)
	base := e.Points.BasePoints(actionType)
	weeklyCap := e.Points.WeeklyCap()
	length := e.Seasons.length()
	weekKey := WeekKey(now, e.Location)

	var (
		credited int64
		season   *models.Season
		started  bool
	)
	err := e.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		season, started, err = ensureActiveTx(tx, now, length)
		if err != nil {
			return err
		}
		if !enabled {
			return nil
		}

		score, err := lockScoreTx(tx, userID, season.ID)
		if err != nil {
			return fmt.Errorf("lock score: %w", err)
		}

		var already int64
		if err := tx.Model(&models.Action{}).
			Where("user_id = ? AND week_key = ?", userID, weekKey).
			Select("COALESCE(SUM(points), 0)").
			Scan(&already).Error; err != nil {
			return fmt.Errorf("sum weekly points: %w", err)
		}
		credited = CapPoints(base, already, weeklyCap)

		action := models.Action{
			ID:        uuid.NewString(),
			UserID:    userID,
			Type:      actionType,
			Ref:       ref,
			Points:    credited,
			SeasonID:  season.ID,
			WeekKey:   weekKey,
			CreatedAt: now,
		}
		if err := tx.Create(&action).Error; err != nil {
			return fmt.Errorf("append action: %w", err)
		}

		if credited > 0 {
			if err := tx.Model(&models.Score{}).
				Where("id = ?", score.ID).
				UpdateColumns(map[string]any{
					"points":     gorm.Expr("points + ?", credited),
					"updated_at": now,
				}).Error; err != nil {
				return fmt.Errorf("update score: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("log action: %w", err)
	}

	if started {
		e.Seasons.announceStarted(ctx, season)
	}
	if !enabled {
		slog.Debug("gamification disabled, action skipped", "user_id", userID, "type", actionType)
		return 0, nil
	}

	slog.Info("🎮 action logged",
		"user_id", userID, "type", actionType, "credited", credited,
		"base", base, "week_key", weekKey, "season_id", season.ID)

	e.evaluate(ctx, userID, season.ID)
	return credited, nil
}

// lockScoreTx makes sure the (user, season) score row exists and locks it,
// serialising concurrent appends for the same user.
func lockScoreTx(tx *gorm.DB, userID, seasonID string) (*models.Score, error) {
	seed := models.Score{ID: uuid.NewString(), UserID: userID, SeasonID: seasonID}
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&seed).Error; err != nil {
		return nil, err
	}
	var score models.Score
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ? AND season_id = ?", userID, seasonID).
		First(&score).Error
	if err != nil {
		return nil, err
	}
	return &score, nil
}

func (e *Engine) evaluate(ctx context.Context, userID, seasonID string) {
	if e.Badges != nil {
		if _, err := e.Badges.Evaluate(ctx, userID, seasonID); err != nil {
			slog.Warn("badge evaluation failed", "user_id", userID, "error", err)
		}
	}
	if e.Roles != nil {
		if _, err := e.Roles.Evaluate(ctx, userID); err != nil {
			slog.Warn("role evaluation failed", "user_id", userID, "error", err)
		}
	}
}

// GetCurrentSeason returns the active season, starting one if needed.
func (e *Engine) GetCurrentSeason(ctx context.Context) (*models.Season, error) {
	return e.Seasons.GetOrStartCurrentSeason(ctx)
}

// HasActionOnDay reports whether userID already logged actionType on the
// community-local calendar day containing day. Callers use it to suppress
// repeat daily check-ins.
func (e *Engine) HasActionOnDay(ctx context.Context, userID string, actionType models.ActionType, day time.Time) (bool, error) {
	start, end := dayBounds(day, e.Location)
	var count int64
	err := e.DB.WithContext(ctx).Model(&models.Action{}).
		Where("user_id = ? AND type = ? AND created_at >= ? AND created_at < ?", userID, actionType, start.UTC(), end.UTC()).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// WeekStats summarises one user's activity within a week key.
type WeekStats struct {
	WeekKey       string                      `json:"week_key"`
	Actions       int64                       `json:"actions"`
	Points        int64                       `json:"points"`
	DistinctTypes int                         `json:"distinct_types"`
	ByType        map[models.ActionType]int64 `json:"by_type"`
}

type EarnedBadge struct {
	Code      string    `json:"code"`
	Label     string    `json:"label"`
	SeasonID  *string   `json:"season_id,omitempty"`
	AwardedAt time.Time `json:"awarded_at"`
}

// UserStats is the read model returned to the chat layer.
type UserStats struct {
	UserID        string        `json:"user_id"`
	Week          WeekStats     `json:"week"`
	SeasonID      string        `json:"season_id"`
	SeasonPoints  int64         `json:"season_points"`
	CurrentStreak int           `json:"current_streak"`
	BestStreak    int           `json:"best_streak"`
	Badges        []EarnedBadge `json:"badges"`
}

// GetUserStats returns this week's activity, the current season total,
// streaks and badges for userID.
func (e *Engine) GetUserStats(ctx context.Context, userID string) (*UserStats, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, ErrInvalidUser
	}
	season, err := e.Seasons.GetOrStartCurrentSeason(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolve season: %w", err)
	}
	db := e.DB.WithContext(ctx)

	stats := &UserStats{UserID: userID, SeasonID: season.ID, Badges: []EarnedBadge{}}

	week, err := e.weekStats(ctx, userID, WeekKey(e.now(), e.Location))
	if err != nil {
		return nil, err
	}
	stats.Week = *week

	var score models.Score
	err = db.Where("user_id = ? AND season_id = ?", userID, season.ID).First(&score).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("load score: %w", err)
	}
	stats.SeasonPoints = score.Points

	var streak models.Streak
	err = db.Where("user_id = ?", userID).First(&streak).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("load streak: %w", err)
	}
	stats.CurrentStreak = streak.WeeklyCurrent
	stats.BestStreak = streak.WeeklyBest

	var granted []models.UserBadge
	if err := db.Where("user_id = ?", userID).Order("awarded_at ASC").Find(&granted).Error; err != nil {
		return nil, fmt.Errorf("load badges: %w", err)
	}
	labels, err := badgeLabels(db)
	if err != nil {
		return nil, fmt.Errorf("load badge catalog: %w", err)
	}
	for _, ub := range granted {
		stats.Badges = append(stats.Badges, EarnedBadge{
			Code:      ub.BadgeCode,
			Label:     labels[ub.BadgeCode],
			SeasonID:  ub.SeasonID,
			AwardedAt: ub.AwardedAt,
		})
	}
	return stats, nil
}

func (e *Engine) weekStats(ctx context.Context, userID, weekKey string) (*WeekStats, error) {
	var rows []struct {
		Type   models.ActionType
		Count  int64
		Points int64
	}
	if err := e.DB.WithContext(ctx).Model(&models.Action{}).
		Select("type, COUNT(*) AS count, COALESCE(SUM(points), 0) AS points").
		Where("user_id = ? AND week_key = ?", userID, weekKey).
		Group("type").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("load week stats: %w", err)
	}

	w := &WeekStats{WeekKey: weekKey, ByType: map[models.ActionType]int64{}}
	for _, r := range rows {
		w.Actions += r.Count
		w.Points += r.Points
		w.ByType[r.Type] = r.Count
	}
	w.DistinctTypes = len(rows)
	return w, nil
}
