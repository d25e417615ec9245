package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"engagement-engine/models"

	"gorm.io/gorm"
)

// RecentActivityWindow is how far back tier 1 looks for helpful feedback.
const RecentActivityWindow = 14 * 24 * time.Hour

// ProgressStats are the lifetime aggregates role tiers are judged on.
type ProgressStats struct {
	PresentedDemos  int64 `json:"presented_demos"`
	HelpfulFeedback int64 `json:"helpful_feedback"`
	ActiveWeeks     int64 `json:"active_weeks"`
	RecentFeedback  int64 `json:"recent_feedback"`
}

// EligibleTiers returns the tiers (1..3) the stats qualify for, lowest first.
func EligibleTiers(st ProgressStats) []int {
	var tiers []int
	if st.ActiveWeeks >= 2 || st.RecentFeedback >= 2 {
		tiers = append(tiers, 1)
	}
	if st.PresentedDemos >= 1 && st.HelpfulFeedback >= 3 {
		tiers = append(tiers, 2)
	}
	if st.PresentedDemos >= 3 && st.HelpfulFeedback >= 10 {
		tiers = append(tiers, 3)
	}
	return tiers
}

// RoleEvaluator promotes users through the progression tiers.
type RoleEvaluator struct {
	DB       *gorm.DB
	Policy   *PolicyStore
	Granter  RoleGranter
	Notifier Notifier
	Now      func() time.Time
}

func NewRoleEvaluator(db *gorm.DB, policy *PolicyStore, granter RoleGranter, notifier Notifier) *RoleEvaluator {
	return &RoleEvaluator{DB: db, Policy: policy, Granter: granter, Notifier: notifier, Now: time.Now}
}

func (r *RoleEvaluator) now() time.Time {
	if r.Now != nil {
		return r.Now().UTC()
	}
	return time.Now().UTC()
}

// RoleName maps a tier to its configured role name.
func (r *RoleEvaluator) RoleName(tier int) string {
	switch tier {
	case 1:
		return r.Policy.String(models.PolicyRoleTier1)
	case 2:
		return r.Policy.String(models.PolicyRoleTier2)
	case 3:
		return r.Policy.String(models.PolicyRoleTier3)
	}
	return ""
}

// Stats computes the progression aggregates for userID.
func (r *RoleEvaluator) Stats(ctx context.Context, userID string) (*ProgressStats, error) {
	db := r.DB.WithContext(ctx)
	st := &ProgressStats{}

	// Demos presented more than once under the same ref count once.
	if err := db.Model(&models.Action{}).
		Where("user_id = ? AND type = ?", userID, models.ActionDemoPresented).
		Select("COUNT(DISTINCT COALESCE(ref, id))").
		Scan(&st.PresentedDemos).Error; err != nil {
		return nil, fmt.Errorf("count presented demos: %w", err)
	}
	if err := db.Model(&models.Action{}).
		Where("user_id = ? AND type = ?", userID, models.ActionFeedbackHelpful).
		Count(&st.HelpfulFeedback).Error; err != nil {
		return nil, fmt.Errorf("count helpful feedback: %w", err)
	}
	if err := db.Model(&models.Action{}).
		Where("user_id = ?", userID).
		Select("COUNT(DISTINCT week_key)").
		Scan(&st.ActiveWeeks).Error; err != nil {
		return nil, fmt.Errorf("count active weeks: %w", err)
	}
	since := r.now().Add(-RecentActivityWindow)
	if err := db.Model(&models.Action{}).
		Where("user_id = ? AND type = ? AND created_at >= ?", userID, models.ActionFeedbackHelpful, since).
		Count(&st.RecentFeedback).Error; err != nil {
		return nil, fmt.Errorf("count recent feedback: %w", err)
	}
	return st, nil
}

// Evaluate grants every tier role the user qualifies for and does not hold
// yet. Lower tiers are never revoked. Membership failures are collected and
// returned; the next triggering action retries them.
func (r *RoleEvaluator) Evaluate(ctx context.Context, userID string) ([]string, error) {
	if r.Granter == nil {
		return nil, nil
	}
	st, err := r.Stats(ctx, userID)
	if err != nil {
		return nil, err
	}

	var (
		granted []string
		errs    []error
	)
	for _, tier := range EligibleTiers(*st) {
		role := r.RoleName(tier)
		if role == "" {
			continue
		}
		has, err := r.Granter.HasRole(ctx, userID, role)
		if err != nil {
			errs = append(errs, fmt.Errorf("lookup %s: %w", role, err))
			continue
		}
		if has {
			continue
		}
		if err := r.Granter.GrantRole(ctx, userID, role); err != nil {
			errs = append(errs, fmt.Errorf("grant %s: %w", role, err))
			continue
		}

		granted = append(granted, role)
		slog.Info("⬆️ role granted", "user_id", userID, "role", role, "tier", tier)
		publish(ctx, r.Notifier, Event{
			Kind:    models.NotifyRolePromotion,
			UserID:  userID,
			Payload: RolePromotionEvent{UserID: userID, RoleName: role, Tier: tier},
		})
	}
	return granted, errors.Join(errs...)
}
