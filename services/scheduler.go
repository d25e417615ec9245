// services/scheduler.go
package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// ScheduleOptions sets when each recurring job fires.
type ScheduleOptions struct {
	Location         *time.Location
	RolloverInterval time.Duration
	ReminderInterval time.Duration
	WeeklyRollupCron string
	WeeklyDigestCron string
}

// Scheduler runs the engine's recurring jobs. Every job runs in singleton
// mode: a tick that fires while the previous run of the same job is still
// going is rescheduled rather than overlapped.
type Scheduler struct {
	sched     gocron.Scheduler
	opts      ScheduleOptions
	Seasons   *SeasonManager
	Streaks   *StreakTracker
	Digests   *DigestService
	Reminders *ReminderService
}

func NewScheduler(opts ScheduleOptions, seasons *SeasonManager, streaks *StreakTracker, digests *DigestService, reminders *ReminderService) (*Scheduler, error) {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.RolloverInterval <= 0 {
		opts.RolloverInterval = 5 * time.Minute
	}
	if opts.ReminderInterval <= 0 {
		opts.ReminderInterval = time.Minute
	}
	sched, err := gocron.NewScheduler(gocron.WithLocation(opts.Location))
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}
	return &Scheduler{
		sched:     sched,
		opts:      opts,
		Seasons:   seasons,
		Streaks:   streaks,
		Digests:   digests,
		Reminders: reminders,
	}, nil
}

type jobSpec struct {
	name string
	def  gocron.JobDefinition
	run  func(ctx context.Context) error
}

func (s *Scheduler) specs() []jobSpec {
	var specs []jobSpec
	if s.Seasons != nil {
		specs = append(specs, jobSpec{"season-rollover", gocron.DurationJob(s.opts.RolloverInterval), s.rolloverSeason})
	}
	if s.Streaks != nil && s.opts.WeeklyRollupCron != "" {
		specs = append(specs, jobSpec{"weekly-streak-rollup", gocron.CronJob(s.opts.WeeklyRollupCron, false), s.rollupStreaks})
	}
	if s.Digests != nil && s.opts.WeeklyDigestCron != "" {
		specs = append(specs, jobSpec{"weekly-digest", gocron.CronJob(s.opts.WeeklyDigestCron, false), s.publishDigest})
	}
	if s.Reminders != nil {
		specs = append(specs, jobSpec{"reminder-dispatch", gocron.DurationJob(s.opts.ReminderInterval), s.dispatchReminders})
	}
	return specs
}

// Start registers the jobs and starts the scheduler. Jobs receive ctx.
func (s *Scheduler) Start(ctx context.Context) error {
	for _, spec := range s.specs() {
		spec := spec
		_, err := s.sched.NewJob(
			spec.def,
			gocron.NewTask(func() { s.runJob(ctx, spec.name, spec.run) }),
			gocron.WithName(spec.name),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		)
		if err != nil {
			return fmt.Errorf("register %s job: %w", spec.name, err)
		}
	}
	s.sched.Start()
	slog.Info("scheduler started", "jobs", len(s.sched.Jobs()), "location", s.opts.Location.String())
	return nil
}

// Shutdown stops the scheduler and waits for running jobs.
func (s *Scheduler) Shutdown() error {
	return s.sched.Shutdown()
}

// JobNames lists the registered job names.
func (s *Scheduler) JobNames() []string {
	var names []string
	for _, j := range s.sched.Jobs() {
		names = append(names, j.Name())
	}
	return names
}

// runJob logs and swallows job failures; the next tick picks the work up.
func (s *Scheduler) runJob(ctx context.Context, name string, run func(context.Context) error) {
	if ctx.Err() != nil {
		return
	}
	started := time.Now()
	if err := run(ctx); err != nil {
		slog.Error("[Scheduler] job failed", "job", name, "error", err)
		return
	}
	slog.Debug("[Scheduler] job finished", "job", name, "took", time.Since(started))
}

func (s *Scheduler) rolloverSeason(ctx context.Context) error {
	_, err := s.Seasons.RolloverIfDue(ctx)
	return err
}

func (s *Scheduler) rollupStreaks(ctx context.Context) error {
	_, err := s.Streaks.RollupPreviousWeek(ctx)
	return err
}

func (s *Scheduler) publishDigest(ctx context.Context) error {
	_, err := s.Digests.PublishWeekly(ctx)
	return err
}

func (s *Scheduler) dispatchReminders(ctx context.Context) error {
	_, err := s.Reminders.DispatchDue(ctx)
	return err
}
