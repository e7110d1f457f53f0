package schedule

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// Schedule yields the tick times of a recurring job.
//
// Next must be a pure function of its argument so that every worker, started
// at any moment, computes the same ticks; the worker derives each tick's
// unique key from the tick time.
type Schedule interface {
	Next(from time.Time) time.Time
}

// everySchedule ticks on multiples of a fixed interval since the Unix epoch.
type everySchedule struct {
	interval time.Duration
}

// Every creates a schedule that ticks every d, aligned to the Unix epoch.
// Intervals shorter than a second are raised to one second.
func Every(d time.Duration) Schedule {
	if d < time.Second {
		d = time.Second
	}
	return &everySchedule{interval: d}
}

func (s *everySchedule) Next(from time.Time) time.Time {
	return from.UTC().Truncate(s.interval).Add(s.interval)
}

// dailySchedule runs at a specific time each day.
type dailySchedule struct {
	hour   int
	minute int
	loc    *time.Location
}

// Daily creates a schedule that runs at hour:minute UTC each day.
func Daily(hour, minute int) Schedule {
	return DailyIn(hour, minute, time.UTC)
}

// DailyIn is Daily in the given location.
func DailyIn(hour, minute int, loc *time.Location) Schedule {
	return &dailySchedule{hour: hour, minute: minute, loc: loc}
}

func (s *dailySchedule) Next(from time.Time) time.Time {
	local := from.In(s.loc)
	next := time.Date(local.Year(), local.Month(), local.Day(), s.hour, s.minute, 0, 0, s.loc)
	if !next.After(local) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// weeklySchedule runs on one weekday at a fixed time.
type weeklySchedule struct {
	day  time.Weekday
	time dailySchedule
}

// Weekly creates a schedule that runs at hour:minute UTC on day.
func Weekly(day time.Weekday, hour, minute int) Schedule {
	return &weeklySchedule{day: day, time: dailySchedule{hour: hour, minute: minute, loc: time.UTC}}
}

func (s *weeklySchedule) Next(from time.Time) time.Time {
	next := s.time.Next(from)
	for next.Weekday() != s.day {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// cronSchedule wraps a parsed cron expression.
type cronSchedule struct {
	schedule cron.Schedule
}

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Cron parses a five-field cron expression or a descriptor such as "@hourly".
func Cron(expr string) (Schedule, error) {
	parsed, err := cronParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("delayed: invalid cron expression %q: %w", expr, err)
	}
	return &cronSchedule{schedule: parsed}, nil
}

// MustCron is Cron for expressions known at compile time. It panics on error.
func MustCron(expr string) Schedule {
	s, err := Cron(expr)
	if err != nil {
		panic(err)
	}
	return s
}

func (s *cronSchedule) Next(from time.Time) time.Time {
	return s.schedule.Next(from.UTC())
}
