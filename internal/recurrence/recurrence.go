// Package recurrence decides when chores are due and when a completed
// recurring chore rolls back to pending.
//
// Calendar days and weekdays are always evaluated in the location of the
// instant passed in as "now".
package recurrence

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

const (
	OneTime   = "one-time"
	Recurring = "recurring"

	Daily  = "daily"
	Weekly = "weekly"
)

var dayNames = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// Schedule is the subset of a chore the engine looks at.
type Schedule struct {
	Type        string
	DueDate     *time.Time
	Frequency   string
	Days        []time.Weekday
	CompletedAt *time.Time
}

// ParseWeekday maps a day name to its weekday, ignoring case and surrounding space.
func ParseWeekday(name string) (time.Weekday, error) {
	d, ok := dayNames[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return 0, fmt.Errorf("invalid day of week %q", name)
	}
	return d, nil
}

// WeekdayName returns the lowercase English name used for storage.
func WeekdayName(d time.Weekday) string {
	return strings.ToLower(d.String())
}

// NormalizeDays validates day names and returns them lowercase, deduplicated
// and ordered Sunday first.
func NormalizeDays(names []string) ([]string, error) {
	days, err := ParseWeekdays(names)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(days))
	for i, d := range days {
		out[i] = WeekdayName(d)
	}
	return out, nil
}

// ParseWeekdays is NormalizeDays returning weekday values.
func ParseWeekdays(names []string) ([]time.Weekday, error) {
	days := make([]time.Weekday, 0, len(names))
	for _, n := range names {
		d, err := ParseWeekday(n)
		if err != nil {
			return nil, err
		}
		if !slices.Contains(days, d) {
			days = append(days, d)
		}
	}
	slices.Sort(days)
	return days, nil
}

// IsDue reports whether the chore needs doing at now.
func IsDue(s Schedule, now time.Time) bool {
	switch s.Type {
	case OneTime:
		return s.CompletedAt == nil && s.DueDate != nil && !now.Before(*s.DueDate)
	case Recurring:
		switch s.Frequency {
		case Daily:
			return !completedOn(s.CompletedAt, now)
		case Weekly:
			return slices.Contains(s.Days, now.Weekday()) && !completedOn(s.CompletedAt, now)
		}
	}
	return false
}

// NextDueDate is the value persisted as a chore's nextDueDate. For daily
// chores it is the start of now's day: the chore is due today.
func NextDueDate(s Schedule, now time.Time) *time.Time {
	switch s.Type {
	case OneTime:
		return s.DueDate
	case Recurring:
		switch s.Frequency {
		case Daily:
			t := StartOfDay(now)
			return &t
		case Weekly:
			if t, ok := nextScheduledDay(s.Days, now); ok {
				return &t
			}
		}
	}
	return nil
}

// NextReset is the instant a recurring chore completed at completedAt goes
// back to pending: the next midnight for daily chores, the start of the next
// scheduled day strictly after completedAt's weekday for weekly ones.
func NextReset(s Schedule, completedAt time.Time) (time.Time, bool) {
	if s.Type != Recurring {
		return time.Time{}, false
	}
	switch s.Frequency {
	case Daily:
		return StartOfDay(completedAt).AddDate(0, 0, 1), true
	case Weekly:
		return nextScheduledDay(s.Days, completedAt)
	}
	return time.Time{}, false
}

// nextScheduledDay picks the smallest scheduled weekday after today's,
// wrapping into next week when today is at or past the last one.
func nextScheduledDay(days []time.Weekday, now time.Time) (time.Time, bool) {
	if len(days) == 0 {
		return time.Time{}, false
	}
	today := int(now.Weekday())

	next, first := -1, 7
	for _, d := range days {
		i := int(d)
		if i > today && (next == -1 || i < next) {
			next = i
		}
		if i < first {
			first = i
		}
	}

	offset := next - today
	if next == -1 {
		offset = 7 - today + first
	}
	return StartOfDay(now).AddDate(0, 0, offset), true
}

func completedOn(completedAt *time.Time, now time.Time) bool {
	if completedAt == nil {
		return false
	}
	return SameDay(*completedAt, now)
}

// SameDay compares calendar days in b's location.
func SameDay(a, b time.Time) bool {
	a = a.In(b.Location())
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

func StartOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
