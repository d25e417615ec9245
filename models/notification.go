package models

import (
	"time"
)

type NotificationKind string

const (
	NotifyBadgeEarned   NotificationKind = "badge_earned"
	NotifyRolePromotion NotificationKind = "role_promotion"
	NotifySeasonStarted NotificationKind = "season_started"
	NotifySeasonEnded   NotificationKind = "season_ended"
	NotifyWeeklyDigest  NotificationKind = "weekly_digest"
	NotifyReminder      NotificationKind = "reminder"
)

// Notification is an outbox row. UserID is empty for community-wide events
// such as season announcements and digests.
type Notification struct {
	ID        string           `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Kind      NotificationKind `gorm:"type:varchar(32);index;not null" json:"kind"`
	UserID    string           `gorm:"index" json:"user_id,omitempty"`
	Payload   string           `gorm:"type:text" json:"payload"` // JSON
	Delivered bool             `gorm:"default:false;index" json:"delivered"`
	CreatedAt time.Time        `gorm:"index" json:"created_at"`

	// Webhook retry bookkeeping for the outbox worker.
	Attempts      int        `gorm:"default:0;not null" json:"-"`
	NextAttemptAt *time.Time `gorm:"index" json:"-"`
}
