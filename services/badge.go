package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"engagement-engine/models"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// BadgeEngine evaluates the badge rule table for a single user.
type BadgeEngine struct {
	DB       *gorm.DB
	Rules    []models.BadgeRule
	Notifier Notifier
}

func NewBadgeEngine(db *gorm.DB, notifier Notifier) *BadgeEngine {
	return &BadgeEngine{DB: db, Rules: models.BadgeRules, Notifier: notifier}
}

// ValidateRules checks that every rule has a slug code, a unique code and
// exactly one kind of trigger.
func ValidateRules(rules []models.BadgeRule) error {
	seen := map[string]bool{}
	for _, r := range rules {
		if !slug.IsSlug(r.Code) {
			return fmt.Errorf("badge code %q is not a slug (try %q)", r.Code, slug.Make(r.Code))
		}
		if seen[r.Code] {
			return fmt.Errorf("duplicate badge code %q", r.Code)
		}
		seen[r.Code] = true

		byAction := r.Action != "" && r.Count > 0
		byStreak := r.WeeklyStreak > 0
		if byAction == byStreak {
			return fmt.Errorf("badge %q needs exactly one trigger", r.Code)
		}
		if r.Action != "" && !r.Action.Valid() {
			return fmt.Errorf("badge %q: %w: %q", r.Code, ErrUnknownActionType, r.Action)
		}
	}
	return nil
}

// badgeStats is what the rule table is evaluated against.
type badgeStats struct {
	lifetime      map[models.ActionType]int64
	season        map[models.ActionType]int64
	weeklyCurrent int
}

func (b *BadgeEngine) loadStats(ctx context.Context, userID, seasonID string) (*badgeStats, error) {
	db := b.DB.WithContext(ctx)
	st := &badgeStats{}

	var err error
	if st.lifetime, err = countByType(db.Where("user_id = ?", userID)); err != nil {
		return nil, fmt.Errorf("count actions: %w", err)
	}
	if seasonID != "" {
		if st.season, err = countByType(db.Where("user_id = ? AND season_id = ?", userID, seasonID)); err != nil {
			return nil, fmt.Errorf("count season actions: %w", err)
		}
	}

	var streak models.Streak
	err = db.Where("user_id = ?", userID).First(&streak).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("load streak: %w", err)
	}
	st.weeklyCurrent = streak.WeeklyCurrent
	return st, nil
}

func countByType(q *gorm.DB) (map[models.ActionType]int64, error) {
	var rows []struct {
		Type  models.ActionType
		Count int64
	}
	if err := q.Model(&models.Action{}).
		Select("type, COUNT(*) AS count").
		Group("type").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[models.ActionType]int64, len(rows))
	for _, r := range rows {
		out[r.Type] = r.Count
	}
	return out, nil
}

func (b *BadgeEngine) meetsThreshold(rule models.BadgeRule, st *badgeStats) bool {
	if rule.WeeklyStreak > 0 {
		return st.weeklyCurrent >= rule.WeeklyStreak
	}
	counts := st.lifetime
	if rule.Seasonal {
		counts = st.season
	}
	return counts[rule.Action] >= rule.Count
}

// Evaluate awards every badge whose rule the user now meets and returns the
// newly granted ones. Seasonal rules count only actions in seasonID.
func (b *BadgeEngine) Evaluate(ctx context.Context, userID, seasonID string) ([]models.Badge, error) {
	st, err := b.loadStats(ctx, userID, seasonID)
	if err != nil {
		return nil, err
	}

	var awarded []models.Badge
	for _, rule := range b.Rules {
		if !b.meetsThreshold(rule, st) {
			continue
		}
		ok, err := b.Award(ctx, userID, rule.Badge, seasonID)
		if err != nil {
			return awarded, fmt.Errorf("award %s: %w", rule.Code, err)
		}
		if ok {
			awarded = append(awarded, rule.Badge)
		}
	}
	return awarded, nil
}

// Award grants badge to userID once per scope (per season for seasonal
// badges, lifetime otherwise). It reports whether a new grant was written.
// A "badge earned" notification follows a new grant; its failure does not
// undo the grant.
func (b *BadgeEngine) Award(ctx context.Context, userID string, badge models.Badge, seasonID string) (bool, error) {
	db := b.DB.WithContext(ctx)

	scope := ""
	var seasonRef *string
	if badge.Seasonal {
		if seasonID == "" {
			return false, fmt.Errorf("seasonal badge %s needs a season", badge.Code)
		}
		scope = seasonID
		seasonRef = &seasonID
	}

	var count int64
	if err := db.Model(&models.UserBadge{}).
		Where("user_id = ? AND badge_code = ? AND scope = ?", userID, badge.Code, scope).
		Count(&count).Error; err != nil {
		return false, err
	}
	if count > 0 {
		return false, nil
	}

	grant := models.UserBadge{
		ID:        uuid.NewString(),
		UserID:    userID,
		BadgeCode: badge.Code,
		Scope:     scope,
		SeasonID:  seasonRef,
	}
	res := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&grant)
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		return false, nil
	}

	slog.Info("🎖️ badge awarded", "user_id", userID, "badge", badge.Code, "season_id", seasonID)
	publish(ctx, b.Notifier, Event{
		Kind:   models.NotifyBadgeEarned,
		UserID: userID,
		Payload: BadgeEarnedEvent{
			UserID:    userID,
			BadgeCode: badge.Code,
			Label:     badge.Label,
			SeasonID:  scope,
		},
	})
	return true, nil
}

// Catalog returns every badge in the catalog ordered by code.
func (b *BadgeEngine) Catalog(ctx context.Context) ([]models.Badge, error) {
	var badges []models.Badge
	err := b.DB.WithContext(ctx).Order("code ASC").Find(&badges).Error
	return badges, err
}

func badgeLabels(db *gorm.DB) (map[string]string, error) {
	var badges []models.Badge
	if err := db.Find(&badges).Error; err != nil {
		return nil, err
	}
	out := make(map[string]string, len(badges))
	for _, b := range badges {
		out[b.Code] = b.Label
	}
	return out, nil
}
