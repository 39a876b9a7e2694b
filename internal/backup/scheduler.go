package backup

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

const (
	// MinScheduleInterval is the minimum allowed interval between scheduled
	// backups. Schedules more frequent than this are rejected by validation.
	MinScheduleInterval = 15 * time.Minute
	// WarnScheduleInterval is the interval below which we warn about
	// frequent backups.
	WarnScheduleInterval = 1 * time.Hour
)

// Parser is a cron parser configured for standard 5-field cron expressions.
var Parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ParseSchedule parses a cron expression and returns the schedule.
func ParseSchedule(expr string) (cron.Schedule, error) {
	schedule, err := Parser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return schedule, nil
}

// ScheduleInterval estimates the typical interval between scheduled runs by
// checking two consecutive occurrences.
func ScheduleInterval(expr string) (time.Duration, error) {
	schedule, err := ParseSchedule(expr)
	if err != nil {
		return 0, err
	}

	now := time.Now().UTC()
	next := schedule.Next(now)
	nextNext := schedule.Next(next)
	return nextNext.Sub(next), nil
}

// ValidateSchedule validates a cron expression. It returns an error if the
// schedule is invalid or more frequent than MinScheduleInterval, and a
// non-empty warning when the schedule is more frequent than
// WarnScheduleInterval.
func ValidateSchedule(expr string) (warning string, err error) {
	interval, err := ScheduleInterval(expr)
	if err != nil {
		return "", err
	}

	if interval < MinScheduleInterval {
		return "", fmt.Errorf("backup schedule interval %v is less than minimum allowed %v", interval, MinScheduleInterval)
	}

	if interval < WarnScheduleInterval {
		warning = fmt.Sprintf("backup schedule interval %v is less than recommended %v; frequent full-bucket backups can be expensive", interval, WarnScheduleInterval)
	}

	return warning, nil
}
