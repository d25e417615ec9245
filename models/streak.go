package models

import (
	"time"
)

// Streak tracks consecutive weeks in which a user met the weekly action goal.
// Only the weekly rollup writes it; WeeklyBest never decreases.
type Streak struct {
	UserID            string     `gorm:"primaryKey" json:"user_id"`
	WeeklyCurrent     int        `gorm:"not null;default:0" json:"weekly_current"`
	WeeklyBest        int        `gorm:"not null;default:0" json:"weekly_best"`
	LastWeekAchieved  *time.Time `json:"last_week_achieved,omitempty"`
	LastWeekEvaluated string     `gorm:"type:varchar(10)" json:"last_week_evaluated,omitempty"` // week key of the last applied rollup
	Timestamps
}
