package models

import (
	"time"
)

type ReminderStatus string

const (
	ReminderPending   ReminderStatus = "pending"
	ReminderSent      ReminderStatus = "sent"
	ReminderCancelled ReminderStatus = "cancelled"
)

// Reminder is a durable "due at" record picked up by the scheduler tick.
type Reminder struct {
	ID      string         `gorm:"primaryKey;type:varchar(36)" json:"id"`
	UserID  string         `gorm:"index;not null" json:"user_id"`
	Kind    string         `gorm:"type:varchar(32);not null" json:"kind"` // e.g., "check-in", "meeting"
	Message string         `gorm:"type:text" json:"message"`
	DueAt   time.Time      `gorm:"index;not null" json:"due_at"`
	Status  ReminderStatus `gorm:"type:varchar(16);index;not null;default:'pending'" json:"status"`
	SentAt  *time.Time     `json:"sent_at,omitempty"`
	Timestamps
}
