package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"engagement-engine/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SeasonArchiver stores the final standings of a closed season.
type SeasonArchiver interface {
	ArchiveSeason(ctx context.Context, season *models.Season, standings []models.ScoreEntry) error
}

// SeasonRollover describes one EndCurrentSeason transition.
type SeasonRollover struct {
	Closed    *models.Season      `json:"closed"`
	Started   *models.Season      `json:"started"`
	TopScores []models.ScoreEntry `json:"top_scores"`
}

// SeasonManager owns the single-active-season invariant.
type SeasonManager struct {
	DB       *gorm.DB
	Policy   *PolicyStore
	Notifier Notifier
	Archiver SeasonArchiver
	Now      func() time.Time
}

func NewSeasonManager(db *gorm.DB, policy *PolicyStore, notifier Notifier) *SeasonManager {
	return &SeasonManager{DB: db, Policy: policy, Notifier: notifier, Now: time.Now}
}

func (m *SeasonManager) now() time.Time {
	if m.Now != nil {
		return m.Now().UTC()
	}
	return time.Now().UTC()
}

func (m *SeasonManager) length() time.Duration {
	weeks := m.Policy.Int(models.PolicySeasonLengthWeeks)
	if weeks < 1 {
		weeks = 1
	}
	return time.Duration(weeks) * 7 * 24 * time.Hour
}

// activeTx loads the active season inside tx with the given lock strength.
// It returns nil, nil when no season is active.
func activeTx(tx *gorm.DB, strength string) (*models.Season, error) {
	var s models.Season
	q := tx.Where("status = ?", models.SeasonActive)
	if strength != "" {
		q = q.Clauses(clause.Locking{Strength: strength})
	}
	err := q.Order("start_date DESC").First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// startTx creates and activates a season starting at now. If another writer
// claimed the active slot first, that season is returned with started=false.
func startTx(tx *gorm.DB, now time.Time, length time.Duration) (*models.Season, bool, error) {
	var count int64
	if err := tx.Model(&models.Season{}).Count(&count).Error; err != nil {
		return nil, false, err
	}
	s := models.Season{
		ID:        uuid.NewString(),
		Name:      fmt.Sprintf("Season %d", count+1),
		StartDate: now,
		EndDate:   now.Add(length),
	}
	s.Activate()

	res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&s)
	if res.Error != nil {
		return nil, false, res.Error
	}
	if res.RowsAffected == 0 {
		existing, err := activeTx(tx, "")
		if err != nil {
			return nil, false, err
		}
		if existing == nil {
			return nil, false, errors.New("season start conflicted but no active season found")
		}
		return existing, false, nil
	}
	return &s, true, nil
}

// ensureActiveTx returns the active season, starting one when none exists.
// The returned season row is share-locked so a concurrent rollover waits for
// the caller's transaction.
func ensureActiveTx(tx *gorm.DB, now time.Time, length time.Duration) (*models.Season, bool, error) {
	s, err := activeTx(tx, "SHARE")
	if err != nil {
		return nil, false, fmt.Errorf("load active season: %w", err)
	}
	if s != nil {
		return s, false, nil
	}
	s, started, err := startTx(tx, now, length)
	if err != nil {
		return nil, false, fmt.Errorf("start season: %w", err)
	}
	return s, started, nil
}

// GetOrStartCurrentSeason returns the active season, creating one when none
// is active.
func (m *SeasonManager) GetOrStartCurrentSeason(ctx context.Context) (*models.Season, error) {
	now := m.now()
	length := m.length()

	var (
		season  *models.Season
		started bool
	)
	err := m.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		season, started, err = ensureActiveTx(tx, now, length)
		return err
	})
	if err != nil {
		return nil, err
	}
	if started {
		m.announceStarted(ctx, season)
	}
	return season, nil
}

// CurrentSeason returns the active season without starting one.
func (m *SeasonManager) CurrentSeason(ctx context.Context) (*models.Season, error) {
	return activeTx(m.DB.WithContext(ctx), "")
}

func (m *SeasonManager) announceStarted(ctx context.Context, s *models.Season) {
	slog.Info("🏁 season started", "season_id", s.ID, "name", s.Name, "end_date", s.EndDate)
	publish(ctx, m.Notifier, Event{
		Kind: models.NotifySeasonStarted,
		Payload: SeasonEvent{
			SeasonID:  s.ID,
			Name:      s.Name,
			StartDate: s.StartDate,
			EndDate:   s.EndDate,
		},
	})
}

// EndCurrentSeason closes the active season, computes its top scores and
// starts the next season in the same transaction, so an active season is
// always observable. With no active season it is a no-op returning nil.
func (m *SeasonManager) EndCurrentSeason(ctx context.Context) (*SeasonRollover, error) {
	now := m.now()
	length := m.length()
	topN := int(m.Policy.Int(models.PolicySeasonTopN))

	var out *SeasonRollover
	err := m.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := activeTx(tx, "UPDATE")
		if err != nil {
			return fmt.Errorf("load active season: %w", err)
		}
		if current == nil {
			return nil
		}

		top, err := leaderboardTx(tx, current.ID, topN)
		if err != nil {
			return fmt.Errorf("compute top scores: %w", err)
		}

		current.Close(now)
		if err := tx.Model(current).Select("status", "active_slot", "closed_at").Updates(current).Error; err != nil {
			return fmt.Errorf("close season: %w", err)
		}

		next, _, err := startTx(tx, now, length)
		if err != nil {
			return fmt.Errorf("start next season: %w", err)
		}
		out = &SeasonRollover{Closed: current, Started: next, TopScores: top}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if out == nil {
		slog.Debug("season rollover skipped, no active season")
		return nil, nil
	}

	slog.Info("🏆 season closed", "season_id", out.Closed.ID, "name", out.Closed.Name, "ranked", len(out.TopScores))
	publish(ctx, m.Notifier, Event{
		Kind: models.NotifySeasonEnded,
		Payload: SeasonEvent{
			SeasonID:  out.Closed.ID,
			Name:      out.Closed.Name,
			StartDate: out.Closed.StartDate,
			EndDate:   out.Closed.EndDate,
			TopScores: out.TopScores,
		},
	})
	m.announceStarted(ctx, out.Started)
	m.archive(ctx, out.Closed)
	return out, nil
}

func (m *SeasonManager) archive(ctx context.Context, s *models.Season) {
	if m.Archiver == nil {
		return
	}
	standings, err := m.Leaderboard(ctx, s.ID, 0)
	if err != nil {
		slog.Warn("season archive skipped, standings unavailable", "season_id", s.ID, "error", err)
		return
	}
	if err := m.Archiver.ArchiveSeason(ctx, s, standings); err != nil {
		slog.Warn("season archive failed", "season_id", s.ID, "error", err)
	}
}

// RolloverIfDue ends the active season once its end date has passed.
func (m *SeasonManager) RolloverIfDue(ctx context.Context) (*SeasonRollover, error) {
	current, err := m.CurrentSeason(ctx)
	if err != nil {
		return nil, fmt.Errorf("load active season: %w", err)
	}
	if current == nil || current.EndDate.After(m.now()) {
		return nil, nil
	}
	return m.EndCurrentSeason(ctx)
}

// Leaderboard returns the season's ranked scores. limit <= 0 returns all.
func (m *SeasonManager) Leaderboard(ctx context.Context, seasonID string, limit int) ([]models.ScoreEntry, error) {
	return leaderboardTx(m.DB.WithContext(ctx), seasonID, limit)
}

func leaderboardTx(tx *gorm.DB, seasonID string, limit int) ([]models.ScoreEntry, error) {
	var scores []models.Score
	q := tx.Where("season_id = ? AND points > 0", seasonID).Order("points DESC, updated_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&scores).Error; err != nil {
		return nil, err
	}
	out := make([]models.ScoreEntry, len(scores))
	for i, s := range scores {
		out[i] = models.ScoreEntry{Rank: i + 1, UserID: s.UserID, Points: s.Points}
	}
	return out, nil
}

// ListSeasons returns every season, newest first.
func (m *SeasonManager) ListSeasons(ctx context.Context) ([]models.Season, error) {
	var seasons []models.Season
	err := m.DB.WithContext(ctx).Order("start_date DESC").Find(&seasons).Error
	return seasons, err
}
