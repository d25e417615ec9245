package testutil

import (
	"testing"

	"engagement-engine/database"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

// OpenTestDB opens an in-memory SQLite database with every table migrated.
// The pool is pinned to one connection because each :memory: connection is
// a separate database.
func OpenTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), database.GormConfig())
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("get sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	return db
}
