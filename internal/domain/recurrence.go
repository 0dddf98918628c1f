package domain

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// Recurrence is the rule deciding which calendar dates a task definition is
// due on. It is a closed set of variants: Daily, Weekly, Monthly. Stored
// configs carry a "type" tag; DecodeRecurrence is the only way to build a
// Recurrence from stored data, so an unknown or mismatched payload surfaces
// as a MalformedRuleError at decode time instead of a silently-wrong branch
// at evaluation time.
type Recurrence interface {
	isRecurrence()
}

// Daily fires on every date.
type Daily struct{}

func (Daily) isRecurrence() {}

// Weekly fires on the selected weekdays (time.Sunday == 0).
type Weekly struct {
	Weekdays []time.Weekday
}

func (Weekly) isRecurrence() {}

// Contains reports whether d is one of the selected weekdays.
func (w Weekly) Contains(d time.Weekday) bool {
	for _, wd := range w.Weekdays {
		if wd == d {
			return true
		}
	}
	return false
}

// Monthly fires when the date's day-of-month equals DayOfMonth. Months with
// fewer days than DayOfMonth simply never fire; there is no clamping or
// last-day fallback.
type Monthly struct {
	DayOfMonth int
}

func (Monthly) isRecurrence() {}

const (
	recurrenceDaily   = "daily"
	recurrenceWeekly  = "weekly"
	recurrenceMonthly = "monthly"
)

// recurrenceEnvelope is the stored JSON shape.
type recurrenceEnvelope struct {
	Type       string `json:"type"`
	Weekdays   []int  `json:"weekdays,omitempty"`
	DayOfMonth *int   `json:"day_of_month,omitempty"`
}

// DecodeRecurrence parses a stored recurrence config. definitionID is only
// used for error context.
func DecodeRecurrence(definitionID string, raw []byte) (Recurrence, error) {
	var env recurrenceEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, &MalformedRuleError{DefinitionID: definitionID, Reason: fmt.Sprintf("invalid recurrence JSON: %v", err)}
	}

	switch env.Type {
	case recurrenceDaily:
		return Daily{}, nil

	case recurrenceWeekly:
		if len(env.Weekdays) == 0 {
			return nil, &MalformedRuleError{DefinitionID: definitionID, Reason: "weekly recurrence with empty weekday set"}
		}
		seen := make(map[int]bool, len(env.Weekdays))
		days := make([]time.Weekday, 0, len(env.Weekdays))
		for _, d := range env.Weekdays {
			if d < 0 || d > 6 {
				return nil, &MalformedRuleError{DefinitionID: definitionID, Reason: fmt.Sprintf("weekday %d out of range 0..6", d)}
			}
			if seen[d] {
				continue
			}
			seen[d] = true
			days = append(days, time.Weekday(d))
		}
		sort.Slice(days, func(i, j int) bool { return days[i] < days[j] })
		return Weekly{Weekdays: days}, nil

	case recurrenceMonthly:
		if env.DayOfMonth == nil {
			return nil, &MalformedRuleError{DefinitionID: definitionID, Reason: "monthly recurrence missing day_of_month"}
		}
		if *env.DayOfMonth < 1 || *env.DayOfMonth > 31 {
			return nil, &MalformedRuleError{DefinitionID: definitionID, Reason: fmt.Sprintf("day_of_month %d out of range 1..31", *env.DayOfMonth)}
		}
		return Monthly{DayOfMonth: *env.DayOfMonth}, nil

	default:
		return nil, &MalformedRuleError{DefinitionID: definitionID, Reason: fmt.Sprintf("unknown recurrence type %q", env.Type)}
	}
}

// EncodeRecurrence serializes a Recurrence to its stored JSON shape.
// Mostly used by fixtures and tests; the engine itself never writes configs.
func EncodeRecurrence(r Recurrence) ([]byte, error) {
	switch v := r.(type) {
	case Daily:
		return json.Marshal(recurrenceEnvelope{Type: recurrenceDaily})
	case Weekly:
		days := make([]int, len(v.Weekdays))
		for i, d := range v.Weekdays {
			days[i] = int(d)
		}
		return json.Marshal(recurrenceEnvelope{Type: recurrenceWeekly, Weekdays: days})
	case Monthly:
		d := v.DayOfMonth
		return json.Marshal(recurrenceEnvelope{Type: recurrenceMonthly, DayOfMonth: &d})
	default:
		panic(fmt.Sprintf("domain: unknown recurrence variant %T", r))
	}
}
