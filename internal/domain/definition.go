package domain

import (
	"fmt"
	"time"
)

// TimeOfDay is the wall-clock time used to compute each generated
// instance's deadline on a given date.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// ParseTimeOfDay parses "15:04" strings as stored by the definition CRUD.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return TimeOfDay{}, fmt.Errorf("invalid time of day %q: %w", s, err)
	}
	return TimeOfDay{Hour: t.Hour(), Minute: t.Minute()}, nil
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// On combines the time-of-day with a calendar date in the date's location.
func (t TimeOfDay) On(date time.Time) time.Time {
	return time.Date(date.Year(), date.Month(), date.Day(), t.Hour, t.Minute, 0, 0, date.Location())
}

// TaskDefinition is the recurring template an operator configures once.
// Read-only to the materialization engine; edits happen through the CRUD
// surface and never retroactively change already-generated instances.
type TaskDefinition struct {
	ID            string
	OrgID         string
	CreatorID     string
	Name          string
	Description   string
	Recurrence    Recurrence
	ScheduledTime TimeOfDay
	Assignment    Assignment
	Active        bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// DeadlineOn returns the deadline an instance generated on date carries.
func (d *TaskDefinition) DeadlineOn(date time.Time) time.Time {
	return d.ScheduledTime.On(date)
}

// Personnel is a directory record, the unit the Assignee Resolver expands to.
type Personnel struct {
	ID    string
	OrgID string
	Name  string
	Role  Role
}

// DateOf truncates t to midnight in its own location. All per-day keys
// (skip dates, leave dates, the instance idempotency key) are keyed on the
// value this returns.
func DateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
