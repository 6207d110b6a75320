package cron

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// NextRun computes the next run time of a schedule, relative to now.
func NextRun(schedule Schedule, now time.Time) (time.Time, error) {
	switch schedule.Kind {
	case ScheduleKindAt:
		return nextAtRun(schedule)
	case ScheduleKindEvery:
		return nextEveryRun(schedule, now)
	case ScheduleKindCron:
		return nextCronRun(schedule, now)
	default:
		return time.Time{}, fmt.Errorf("unknown schedule kind: %s", schedule.Kind)
	}
}

func nextAtRun(schedule Schedule) (time.Time, error) {
	if schedule.At.IsZero() {
		return time.Time{}, fmt.Errorf("'at' schedule requires the 'at' field")
	}
	return schedule.At, nil
}

func nextEveryRun(schedule Schedule, now time.Time) (time.Time, error) {
	if schedule.Every == "" {
		return time.Time{}, fmt.Errorf("'every' schedule requires the 'every' field")
	}
	interval, err := time.ParseDuration(schedule.Every)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid interval: %w", err)
	}
	if interval <= 0 {
		return time.Time{}, fmt.Errorf("interval must be positive")
	}

	if schedule.Anchor == nil {
		return now.Add(interval), nil
	}

	anchor := *schedule.Anchor
	if anchor.After(now) {
		return anchor, nil
	}

	// Align to anchor + n*interval, strictly after now.
	elapsed := now.Sub(anchor)
	periods := elapsed / interval
	return anchor.Add((periods + 1) * interval), nil
}

func nextCronRun(schedule Schedule, now time.Time) (time.Time, error) {
	if schedule.Expr == "" {
		return time.Time{}, fmt.Errorf("'cron' schedule requires the 'expr' field")
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	sched, err := parser.Parse(schedule.Expr)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid cron expression: %w", err)
	}

	if schedule.TZ != "" {
		loc, err := time.LoadLocation(schedule.TZ)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid timezone: %w", err)
		}
		now = now.In(loc)
	}
	return sched.Next(now), nil
}
