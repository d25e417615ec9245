package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"engagement-engine/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrPolicyKeyRequired = errors.New("policy key is required")

// PolicyStore is the engine's read-mostly configuration service. Reads are
// served from an in-memory snapshot of the policies table; Set writes
// through and refreshes the snapshot, Invalidate drops it so the next read
// reloads.
type PolicyStore struct {
	DB *gorm.DB

	mu     sync.RWMutex
	cache  map[string]string
	loaded bool
}

func NewPolicyStore(db *gorm.DB) *PolicyStore {
	return &PolicyStore{DB: db}
}

// Reload replaces the cached snapshot with the current table contents.
func (p *PolicyStore) Reload(ctx context.Context) error {
	var rows []models.Policy
	if err := p.DB.WithContext(ctx).Find(&rows).Error; err != nil {
		return fmt.Errorf("load policies: %w", err)
	}
	snapshot := make(map[string]string, len(rows))
	for _, r := range rows {
		snapshot[r.Key] = r.Value
	}

	p.mu.Lock()
	p.cache = snapshot
	p.loaded = true
	p.mu.Unlock()
	return nil
}

// Invalidate drops the cached snapshot.
func (p *PolicyStore) Invalidate() {
	p.mu.Lock()
	p.cache = nil
	p.loaded = false
	p.mu.Unlock()
}

func (p *PolicyStore) lookup(key string) (string, bool) {
	p.mu.RLock()
	loaded := p.loaded
	v, ok := p.cache[key]
	p.mu.RUnlock()
	if loaded {
		return v, ok
	}

	if err := p.Reload(context.Background()); err != nil {
		slog.Warn("policy reload failed, using defaults", "error", err)
		return "", false
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	v, ok = p.cache[key]
	return v, ok
}

// Get returns the stored value for key, or def when the key is absent.
func (p *PolicyStore) Get(key, def string) string {
	if v, ok := p.lookup(key); ok {
		return v
	}
	slog.Debug("policy key missing, using default", "key", key, "default", def)
	return def
}

// GetInt returns key as an integer; absent or malformed values yield def.
func (p *PolicyStore) GetInt(key string, def int64) int64 {
	v, ok := p.lookup(key)
	if !ok {
		return def
	}
	n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil {
		slog.Warn("policy value is not an integer, using default", "key", key, "value", v, "default", def)
		return def
	}
	return n
}

// GetBool returns key as a boolean; absent or malformed values yield def.
func (p *PolicyStore) GetBool(key string, def bool) bool {
	v, ok := p.lookup(key)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		slog.Warn("policy value is not a boolean, using default", "key", key, "value", v, "default", def)
		return def
	}
	return b
}

// Int reads a known key with its documented default.
func (p *PolicyStore) Int(key string) int64 {
	def, _ := strconv.ParseInt(models.DefaultPolicies[key], 10, 64)
	return p.GetInt(key, def)
}

// Bool reads a known key with its documented default.
func (p *PolicyStore) Bool(key string) bool {
	def, _ := strconv.ParseBool(models.DefaultPolicies[key])
	return p.GetBool(key, def)
}

// String reads a known key with its documented default.
func (p *PolicyStore) String(key string) string {
	return p.Get(key, models.DefaultPolicies[key])
}

// Set stores value under key and refreshes the cache.
func (p *PolicyStore) Set(ctx context.Context, key, value string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return ErrPolicyKeyRequired
	}
	row := models.Policy{Key: key, Value: value}
	err := p.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("set policy %s: %w", key, err)
	}
	slog.Info("policy updated", "key", key, "value", value)
	return p.Reload(ctx)
}

// All returns every stored key merged over the documented defaults.
func (p *PolicyStore) All(ctx context.Context) (map[string]string, error) {
	if err := p.Reload(ctx); err != nil {
		return nil, err
	}
	out := make(map[string]string, len(models.DefaultPolicies))
	for k, v := range models.DefaultPolicies {
		out[k] = v
	}
	p.mu.RLock()
	for k, v := range p.cache {
		out[k] = v
	}
	p.mu.RUnlock()
	return out, nil
}

// SeedDefaults inserts the documented defaults, with overrides applied, for
// keys that are not stored yet. Existing rows are left alone.
func (p *PolicyStore) SeedDefaults(ctx context.Context, overrides map[string]string) error {
	rows := make([]models.Policy, 0, len(models.DefaultPolicies)+len(overrides))
	seen := map[string]bool{}
	for k, v := range overrides {
		rows = append(rows, models.Policy{Key: k, Value: v})
		seen[k] = true
	}
	for k, v := range models.DefaultPolicies {
		if !seen[k] {
			rows = append(rows, models.Policy{Key: k, Value: v})
		}
	}
	if err := p.DB.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&rows).Error; err != nil {
		return fmt.Errorf("seed policies: %w", err)
	}
	return p.Reload(ctx)
}
