package services

import (
	"fmt"
	"time"
)

// WeekKeyLayout formats the Monday that identifies a week.
const WeekKeyLayout = "2006-01-02"

// WeekStart returns Monday 00:00 of the ISO week containing t, in loc.
func WeekStart(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	local := t.In(loc)
	offset := (int(local.Weekday()) + 6) % 7 // Monday=0 … Sunday=6
	y, m, d := local.Date()
	return time.Date(y, m, d-offset, 0, 0, 0, 0, loc)
}

// WeekKey returns the week key (Monday date) for t in loc.
func WeekKey(t time.Time, loc *time.Location) string {
	return WeekStart(t, loc).Format(WeekKeyLayout)
}

// WeekEnd returns the last second of the week that starts at weekStart.
func WeekEnd(weekStart time.Time) time.Time {
	return weekStart.AddDate(0, 0, 7).Add(-time.Second)
}

// ParseWeekKey parses a week key and normalises it to the Monday of its week.
func ParseWeekKey(key string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	t, err := time.ParseInLocation(WeekKeyLayout, key, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid week key %q: %w", key, err)
	}
	return WeekStart(t, loc), nil
}

// PreviousWeekStart returns the start of the last completed week before now.
func PreviousWeekStart(now time.Time, loc *time.Location) time.Time {
	return WeekStart(now, loc).AddDate(0, 0, -7)
}

// dayBounds returns [start, end) of the calendar day containing t in loc.
func dayBounds(t time.Time, loc *time.Location) (time.Time, time.Time) {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := t.In(loc).Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 0, 1)
}
