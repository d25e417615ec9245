package models

import (
	"time"
)

// Policy is a single key/value configuration row read by the engine.
type Policy struct {
	Key       string    `gorm:"primaryKey;type:varchar(128)" json:"key"`
	Value     string    `gorm:"type:text;not null" json:"value"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// Policy keys consumed by the engine.
const (
	PolicyGamificationEnabled = "gamification.enabled"
	PolicyPointsPerAction     = "points.per_action"
	PolicyMeetAttendanceBonus = "points.meet_attendance_bonus"
	PolicyDemoPresentedBonus  = "points.demo_presented_bonus"
	PolicyMaxPointsPerWeek    = "points.max_per_week"
	PolicySeasonLengthWeeks   = "season.length_weeks"
	PolicySeasonTopN          = "season.top_n"
	PolicyWeeklyGoalActions   = "weekly_goal.required_actions"
	PolicyRoleTier1           = "roles.tier1"
	PolicyRoleTier2           = "roles.tier2"
	PolicyRoleTier3           = "roles.tier3"
)

// DefaultPolicies documents the fallback for every key above.
var DefaultPolicies = map[string]string{
	PolicyGamificationEnabled: "true",
	PolicyPointsPerAction:     "10",
	PolicyMeetAttendanceBonus: "5",
	PolicyDemoPresentedBonus:  "15",
	PolicyMaxPointsPerWeek:    "100",
	PolicySeasonLengthWeeks:   "12",
	PolicySeasonTopN:          "10",
	PolicyWeeklyGoalActions:   "2",
	PolicyRoleTier1:           "Contributor",
	PolicyRoleTier2:           "Builder",
	PolicyRoleTier3:           "Mentor",
}
