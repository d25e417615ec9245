package database

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"engagement-engine/models"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// Open connects to Postgres when url is a postgres DSN and to a SQLite file
// otherwise, then migrates every table the engine owns.
func Open(url string) (*gorm.DB, error) {
	cfg := GormConfig()

	var (
		db  *gorm.DB
		err error
	)
	if isPostgres(url) {
		db, err = gorm.Open(postgres.Open(url), cfg)
	} else {
		if dir := filepath.Dir(url); dir != "." && url != ":memory:" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create data dir: %w", err)
			}
		}
		db, err = gorm.Open(sqlite.Open(url), cfg)
		if err == nil {
			err = configureSQLite(db)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}
	slog.Info("database ready", "driver", db.Dialector.Name())
	return db, nil
}

// GormConfig is shared by every connection the engine opens. SQLite keeps
// times as text, so every timestamp GORM fills in is UTC to keep range
// queries comparable.
func GormConfig() *gorm.Config {
	return &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	}
}

func isPostgres(url string) bool {
	return strings.HasPrefix(url, "postgres://") ||
		strings.HasPrefix(url, "postgresql://") ||
		strings.Contains(url, "host=")
}

// configureSQLite keeps a single writer connection; SQLite serialises
// writers anyway and this makes transactions behave like row locks.
func configureSQLite(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	sqlDB.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if err := db.Exec(pragma).Error; err != nil {
			return fmt.Errorf("exec %s: %w", pragma, err)
		}
	}
	return nil
}

// Migrate creates or updates all engine tables and seeds the badge catalog.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.Season{},
		&models.Action{},
		&models.Score{},
		&models.Streak{},
		&models.Badge{},
		&models.UserBadge{},
		&models.Policy{},
		&models.Notification{},
		&models.Reminder{},
	); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}
	return SeedBadges(db, models.BadgeRules)
}

// SeedBadges upserts the catalog rows for a rule table. Labels and
// descriptions follow the rule table; codes never change.
func SeedBadges(db *gorm.DB, rules []models.BadgeRule) error {
	if len(rules) == 0 {
		return nil
	}
	badges := make([]models.Badge, 0, len(rules))
	for _, r := range rules {
		badges = append(badges, r.Badge)
	}
	err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "code"}},
		DoUpdates: clause.AssignmentColumns([]string{"label", "description", "seasonal"}),
	}).Create(&badges).Error
	if err != nil {
		return fmt.Errorf("seed badges: %w", err)
	}
	return nil
}

// Close releases the underlying connection pool.
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
