package models

import (
	"time"
)

type SeasonStatus string

const (
	SeasonPlanned SeasonStatus = "planned"
	SeasonActive  SeasonStatus = "active"
	SeasonClosed  SeasonStatus = "closed"
)

// Season is a bounded scoring period. ActiveSlot is 1 while the season is
// active and NULL otherwise; the unique index on it keeps a second active
// season out of the table even under concurrent starts.
type Season struct {
	ID         string       `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Name       string       `gorm:"not null" json:"name"`
	StartDate  time.Time    `gorm:"not null" json:"start_date"`
	EndDate    time.Time    `gorm:"index;not null" json:"end_date"`
	Status     SeasonStatus `gorm:"type:varchar(16);index;not null;default:'planned'" json:"status"`
	ActiveSlot *int         `gorm:"uniqueIndex" json:"-"`
	ClosedAt   *time.Time   `json:"closed_at,omitempty"`
	Timestamps
}

// Activate marks the season active and claims the singleton slot.
func (s *Season) Activate() {
	one := 1
	s.Status = SeasonActive
	s.ActiveSlot = &one
}

// Close marks the season closed and releases the singleton slot.
func (s *Season) Close(at time.Time) {
	s.Status = SeasonClosed
	s.ActiveSlot = nil
	s.ClosedAt = &at
}

// Score accumulates credited points for one user within one season.
type Score struct {
	ID        string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	UserID    string    `gorm:"uniqueIndex:idx_scores_user_season,priority:1;not null" json:"user_id"`
	SeasonID  string    `gorm:"type:varchar(36);uniqueIndex:idx_scores_user_season,priority:2;index;not null" json:"season_id"`
	Points    int64     `gorm:"not null;default:0" json:"points"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// ScoreEntry is one row of a season leaderboard.
type ScoreEntry struct {
	Rank   int    `json:"rank"`
	UserID string `json:"user_id"`
	Points int64  `json:"points"`
}
