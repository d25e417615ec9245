package models

import (
	"time"
)

// ActionType is the closed set of engagement actions the ledger accepts.
type ActionType string

const (
	ActionCheckIn         ActionType = "check-in"
	ActionMeetingAttend   ActionType = "meeting-attend"
	ActionDemoPosted      ActionType = "demo-posted"
	ActionDemoPresented   ActionType = "demo-presented"
	ActionFeedbackHelpful ActionType = "feedback-helpful"
	ActionHelpSolved      ActionType = "help-solved"
)

// ActionTypes lists every valid ActionType in display order.
var ActionTypes = []ActionType{
	ActionCheckIn,
	ActionMeetingAttend,
	ActionDemoPosted,
	ActionDemoPresented,
	ActionFeedbackHelpful,
	ActionHelpSolved,
}

// Valid reports whether t is one of the known action types.
func (t ActionType) Valid() bool {
	for _, known := range ActionTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Action is an immutable ledger entry. Points holds the value actually
// credited after the weekly cap, which may be zero.
type Action struct {
	ID        string     `gorm:"primaryKey;type:varchar(36)" json:"id"`
	UserID    string     `gorm:"index:idx_actions_user_week,priority:1;index:idx_actions_user_type,priority:1;not null" json:"user_id"`
	Type      ActionType `gorm:"type:varchar(32);index:idx_actions_user_type,priority:2;not null" json:"type"`
	Ref       *string    `gorm:"type:text" json:"ref,omitempty"`
	Points    int64      `gorm:"not null;default:0" json:"points"`
	SeasonID  string     `gorm:"type:varchar(36);index;not null" json:"season_id"`
	WeekKey   string     `gorm:"type:varchar(10);index:idx_actions_user_week,priority:2;index;not null" json:"week_key"` // Monday of the ISO week, YYYY-MM-DD
	CreatedAt time.Time  `gorm:"index;not null" json:"created_at"`
}
