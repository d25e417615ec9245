package models

import (
	"time"
)

// Badge: static catalog entry, seeded from BadgeRules at startup
type Badge struct {
	Code        string    `gorm:"primaryKey;type:varchar(64)" json:"code"` // e.g., "first-check-in", "meet-regular"
	Label       string    `gorm:"not null" json:"label"`
	Description string    `json:"description"`
	Seasonal    bool      `gorm:"not null;default:false" json:"seasonal"` // seasonal badges can be earned once per season
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// UserBadge: awarded instance. Scope is the season id for seasonal badges and
// empty otherwise, so the unique index covers both kinds of grant.
type UserBadge struct {
	ID        string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	UserID    string    `gorm:"uniqueIndex:idx_user_badges_scope,priority:1;not null" json:"user_id"`
	BadgeCode string    `gorm:"type:varchar(64);uniqueIndex:idx_user_badges_scope,priority:2;not null" json:"badge_code"`
	Scope     string    `gorm:"type:varchar(36);uniqueIndex:idx_user_badges_scope,priority:3;not null;default:''" json:"-"`
	SeasonID  *string   `gorm:"type:varchar(36)" json:"season_id,omitempty"`
	AwardedAt time.Time `gorm:"autoCreateTime" json:"awarded_at"`
}

// BadgeRule maps a lifetime threshold to a badge. A rule fires when the
// user's count of Action reaches Count, or when WeeklyStreak is set and the
// current weekly streak reaches it.
type BadgeRule struct {
	Badge
	Action       ActionType `json:"action,omitempty"`
	Count        int64      `json:"count,omitempty"`
	WeeklyStreak int        `json:"weekly_streak,omitempty"`
}

// BadgeRules is the default rule table. Adding a badge means adding a row.
var BadgeRules = []BadgeRule{
	{
		Badge: Badge{
			Code:        "first-check-in",
			Label:       "First Check-in",
			Description: "Posted your first daily check-in",
		},
		Action: ActionCheckIn,
		Count:  1,
	},
	{
		Badge: Badge{
			Code:        "first-demo",
			Label:       "First Demo",
			Description: "Shared your first demo",
		},
		Action: ActionDemoPosted,
		Count:  1,
	},
	{
		Badge: Badge{
			Code:        "feedback-helper",
			Label:       "Feedback Helper",
			Description: "Gave five pieces of helpful feedback",
		},
		Action: ActionFeedbackHelpful,
		Count:  5,
	},
	{
		Badge: Badge{
			Code:        "problem-solver",
			Label:       "Problem Solver",
			Description: "Solved five help requests",
		},
		Action: ActionHelpSolved,
		Count:  5,
	},
	{
		Badge: Badge{
			Code:        "meet-regular",
			Label:       "Meet Regular",
			Description: "Attended four community meetings",
		},
		Action: ActionMeetingAttend,
		Count:  4,
	},
	{
		Badge: Badge{
			Code:        "4-week-streak",
			Label:       "4-Week Streak",
			Description: "Met the weekly goal four weeks in a row",
		},
		WeeklyStreak: 4,
	},
}
