package services

import (
	"context"
	"sort"
	"testing"
	"time"
)

func TestSchedulerRegistersJobs(t *testing.T) {
	s, err := NewScheduler(ScheduleOptions{
		RolloverInterval: time.Hour,
		ReminderInterval: time.Hour,
		WeeklyRollupCron: "5 0 * * 1",
		WeeklyDigestCron: "0 9 * * 1",
	}, &SeasonManager{}, &StreakTracker{}, &DigestService{}, &ReminderService{})
	if err != nil {
		t.Fatalf("NewScheduler: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Shutdown()

	names := s.JobNames()
	sort.Strings(names)
	want := []string{"reminder-dispatch", "season-rollover", "weekly-digest", "weekly-streak-rollup"}
	if len(names) != len(want) {
		t.Fatalf("jobs = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("jobs = %v, want %v", names, want)
		}
	}
}

func TestSchedulerSkipsUnconfiguredJobs(t *testing.T) {
	s, err := NewScheduler(ScheduleOptions{}, &SeasonManager{}, &StreakTracker{}, nil, nil)
	if err != nil {
		t.Fatalf("NewScheduler: %v", err)
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Shutdown()

	names := s.JobNames()
	if len(names) != 1 || names[0] != "season-rollover" {
		t.Errorf("jobs = %v, want [season-rollover]", names)
	}
}

func TestSchedulerRejectsBadCron(t *testing.T) {
	s, err := NewScheduler(ScheduleOptions{WeeklyRollupCron: "every monday"}, nil, &StreakTracker{}, nil, nil)
	if err != nil {
		t.Fatalf("NewScheduler: %v", err)
	}
	if err := s.Start(context.Background()); err == nil {
		t.Error("expected error for malformed cron expression")
	}
}
