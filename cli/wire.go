package cli

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"engagement-engine/config"
	"engagement-engine/database"
	"engagement-engine/handlers"
	"engagement-engine/logging"
	"engagement-engine/models"
	"engagement-engine/services"
	"engagement-engine/utils"

	"gorm.io/gorm"
)

// app holds the wired services shared by every command.
type app struct {
	cfg      *config.Config
	db       *gorm.DB
	loc      *time.Location
	policy   *services.PolicyStore
	notifier *services.NotificationService
	seasons  *services.SeasonManager
	badges   *services.BadgeEngine
	roles    *services.RoleEvaluator
	engine   *services.Engine
	streaks  *services.StreakTracker
	digests  *services.DigestService
	reminder *services.ReminderService
}

// bootstrap loads config, opens the database and builds the service graph.
func bootstrap(ctx context.Context) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	logging.Setup(cfg.Log.Level)

	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	db, err := database.Open(cfg.Database.URL)
	if err != nil {
		return nil, err
	}
	if err := services.ValidateRules(models.BadgeRules); err != nil {
		database.Close(db)
		return nil, err
	}

	policy := services.NewPolicyStore(db)
	if err := policy.SeedDefaults(ctx, cfg.Policy); err != nil {
		database.Close(db)
		return nil, fmt.Errorf("seed policies: %w", err)
	}

	notifier := services.NewNotificationService(db, cfg.Notify.WebhookURL, cfg.Notify.Token)

	var granter services.RoleGranter
	if cfg.Membership.BaseURL != "" {
		granter = services.NewMembershipClient(cfg.Membership.BaseURL, cfg.Membership.Token)
	} else {
		slog.Warn("membership.base_url not set, role grants are kept in memory only")
		granter = services.NewMemoryGranter()
	}

	seasons := services.NewSeasonManager(db, policy, notifier)
	if cfg.Archive.Enabled() {
		store, err := utils.NewObjectStore(ctx, utils.R2Options{
			AccountID:       cfg.Archive.AccountID,
			AccessKeyID:     cfg.Archive.AccessKeyID,
			AccessKeySecret: cfg.Archive.AccessKeySecret,
			Bucket:          cfg.Archive.Bucket,
			Endpoint:        cfg.Archive.Endpoint,
		})
		if err != nil {
			database.Close(db)
			return nil, err
		}
		seasons.Archiver = services.NewObjectArchive(store)
	}

	badges := services.NewBadgeEngine(db, notifier)
	roles := services.NewRoleEvaluator(db, policy, granter, notifier)

	return &app{
		cfg:      cfg,
		db:       db,
		loc:      loc,
		policy:   policy,
		notifier: notifier,
		seasons:  seasons,
		badges:   badges,
		roles:    roles,
		engine:   services.NewEngine(db, policy, seasons, badges, roles, loc),
		streaks:  services.NewStreakTracker(db, policy, loc),
		digests:  services.NewDigestService(db, notifier, loc),
		reminder: services.NewReminderService(db, notifier),
	}, nil
}

func (a *app) Close() {
	database.Close(a.db)
}

func (a *app) handlerServices(ctx context.Context) handlers.Services {
	return handlers.Services{
		Lifetime:      ctx,
		Engine:        a.engine,
		Seasons:       a.seasons,
		Streaks:       a.streaks,
		Badges:        a.badges,
		Roles:         a.roles,
		Policy:        a.policy,
		Digests:       a.digests,
		Reminders:     a.reminder,
		Notifications: a.notifier,
	}
}

func (a *app) scheduler() (*services.Scheduler, error) {
	sc := a.cfg.Scheduler
	return services.NewScheduler(services.ScheduleOptions{
		Location:         a.loc,
		RolloverInterval: sc.RolloverInterval,
		ReminderInterval: sc.ReminderInterval,
		WeeklyRollupCron: sc.WeeklyRollupCron,
		WeeklyDigestCron: sc.WeeklyDigestCron,
	}, a.seasons, a.streaks, a.digests, a.reminder)
}
