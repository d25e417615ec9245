package database

import (
	"path/filepath"
	"testing"

	"engagement-engine/models"
)

func TestOpen_SQLiteFileMigratesAndSeeds(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "engagement.db")

	db, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer Close(db)

	var count int64
	if err := db.Model(&models.Badge{}).Count(&count).Error; err != nil {
		t.Fatalf("count badges: %v", err)
	}
	if count != int64(len(models.BadgeRules)) {
		t.Errorf("seeded %d badges, want %d", count, len(models.BadgeRules))
	}

	// Re-seeding must not duplicate and must refresh labels.
	rules := []models.BadgeRule{{Badge: models.Badge{Code: "first-demo", Label: "Demo Debut"}}}
	if err := SeedBadges(db, rules); err != nil {
		t.Fatalf("SeedBadges: %v", err)
	}
	var b models.Badge
	if err := db.First(&b, "code = ?", "first-demo").Error; err != nil {
		t.Fatal(err)
	}
	if b.Label != "Demo Debut" {
		t.Errorf("label = %q, want Demo Debut", b.Label)
	}
	db.Model(&models.Badge{}).Count(&count)
	if count != int64(len(models.BadgeRules)) {
		t.Errorf("badge count changed to %d", count)
	}
}

func TestIsPostgres(t *testing.T) {
	cases := map[string]bool{
		"postgres://u:p@localhost:5432/db":  true,
		"postgresql://localhost/db":         true,
		"host=localhost user=u dbname=db":   true,
		"./data/engagement.db":              false,
		":memory:":                          false,
	}
	for in, want := range cases {
		if got := isPostgres(in); got != want {
			t.Errorf("isPostgres(%q) = %v, want %v", in, got, want)
		}
	}
}
