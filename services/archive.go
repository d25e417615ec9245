package services

import (
	"context"
	"fmt"
	"time"

	"engagement-engine/models"
)

// JSONPutter is the slice of an object store the archive needs.
type JSONPutter interface {
	PutJSON(ctx context.Context, key string, v any) error
}

// SeasonStandings is the document written for a closed season.
type SeasonStandings struct {
	SeasonID   string              `json:"season_id"`
	Name       string              `json:"name"`
	StartDate  time.Time           `json:"start_date"`
	EndDate    time.Time           `json:"end_date"`
	ClosedAt   *time.Time          `json:"closed_at,omitempty"`
	Standings  []models.ScoreEntry `json:"standings"`
	ArchivedAt time.Time           `json:"archived_at"`
}

// ObjectArchive writes closed-season standings to object storage.
type ObjectArchive struct {
	Store JSONPutter
}

func NewObjectArchive(store JSONPutter) *ObjectArchive {
	return &ObjectArchive{Store: store}
}

// StandingsKey is the object key for a season's standings.
func StandingsKey(seasonID string) string {
	return fmt.Sprintf("seasons/%s/standings.json", seasonID)
}

func (a *ObjectArchive) ArchiveSeason(ctx context.Context, season *models.Season, standings []models.ScoreEntry) error {
	if standings == nil {
		standings = []models.ScoreEntry{}
	}
	doc := SeasonStandings{
		SeasonID:   season.ID,
		Name:       season.Name,
		StartDate:  season.StartDate,
		EndDate:    season.EndDate,
		ClosedAt:   season.ClosedAt,
		Standings:  standings,
		ArchivedAt: time.Now().UTC(),
	}
	return a.Store.PutJSON(ctx, StandingsKey(season.ID), doc)
}
