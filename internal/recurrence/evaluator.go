// Package recurrence decides which calendar dates a recurrence rule fires
// on. It is pure: no I/O, no clock reads, the date always comes from the
// caller.
package recurrence

import (
	"fmt"
	"time"

	"github.com/crewboard/materializer/internal/domain"
)

// Fires reports whether rule is due on date. Only the calendar components
// of date matter; time-of-day is ignored.
//
// Monthly rules with a DayOfMonth exceeding the month's length never fire
// in that month — e.g. Monthly{31} is silent in April. There is no
// last-day-of-month fallback.
//
// An unknown rule variant is a programming error (the domain decoders make
// it unreachable for stored data) and panics.
func Fires(rule domain.Recurrence, date time.Time) bool {
	switch r := rule.(type) {
	case domain.Daily:
		return true
	case domain.Weekly:
		return r.Contains(date.Weekday())
	case domain.Monthly:
		return date.Day() == r.DayOfMonth
	default:
		panic(fmt.Sprintf("recurrence: unknown rule variant %T", rule))
	}
}

// NextFire returns the first date strictly after from on which rule fires,
// searching at most horizon days ahead. Used for operator-facing "next due"
// logging; the materializer itself only ever asks about a single date.
func NextFire(rule domain.Recurrence, from time.Time, horizon int) (time.Time, bool) {
	d := domain.DateOf(from)
	for i := 0; i < horizon; i++ {
		d = d.AddDate(0, 0, 1)
		if Fires(rule, d) {
			return d, true
		}
	}
	return time.Time{}, false
}
