package scheduler

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Trigger decides when a job runs next
type Trigger interface {
	// Next returns the first run time strictly after t
	Next(t time.Time) time.Time
	String() string
}

// Every runs a job at a fixed interval
type Every time.Duration

// Next returns t plus the interval
func (e Every) Next(t time.Time) time.Time {
	return t.Add(time.Duration(e))
}

func (e Every) String() string {
	return "every " + time.Duration(e).String()
}

// DailyAt runs a job once a day at Hour:Minute in Location (local time when nil)
type DailyAt struct {
	Hour     int
	Minute   int
	Location *time.Location
}

// Next returns the next Hour:Minute strictly after t
func (d DailyAt) Next(t time.Time) time.Time {
	loc := d.Location
	if loc == nil {
		loc = time.Local
	}
	t = t.In(loc)
	next := time.Date(t.Year(), t.Month(), t.Day(), d.Hour, d.Minute, 0, 0, loc)
	if !next.After(t) {
		next = time.Date(t.Year(), t.Month(), t.Day()+1, d.Hour, d.Minute, 0, 0, loc)
	}
	return next
}

func (d DailyAt) String() string {
	return fmt.Sprintf("daily at %02d:%02d", d.Hour, d.Minute)
}

// ParseDailySchedule parses a "minute hour * * *" cron expression.
// Only fixed minute and hour fields are supported; the day, month and
// weekday fields must be "*".
func ParseDailySchedule(expr string) (DailyAt, error) {
	parts := strings.Fields(expr)
	if len(parts) != 5 {
		return DailyAt{}, fmt.Errorf("%w: %q must have 5 fields", ErrInvalidSchedule, expr)
	}
	for _, field := range parts[2:] {
		if field != "*" {
			return DailyAt{}, fmt.Errorf("%w: %q only supports daily schedules", ErrInvalidSchedule, expr)
		}
	}

	minute, err := parseField(parts[0], 59)
	if err != nil {
		return DailyAt{}, fmt.Errorf("%w: minute: %v", ErrInvalidSchedule, err)
	}
	hour, err := parseField(parts[1], 23)
	if err != nil {
		return DailyAt{}, fmt.Errorf("%w: hour: %v", ErrInvalidSchedule, err)
	}
	return DailyAt{Hour: hour, Minute: minute}, nil
}

func parseField(s string, max int) (int, error) {
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%q is not a number", s)
	}
	if v < 0 || v > max {
		return 0, fmt.Errorf("%d out of range 0-%d", v, max)
	}
	return v, nil
}
