package chore

import (
	"time"

	"github.com/dukerupert/chorechamp/internal/model"
	"github.com/dukerupert/chorechamp/internal/recurrence"
)

// ScheduleOf extracts the recurrence engine's view of a chore. Unknown day
// names are skipped; they cannot be stored through Validate.
func ScheduleOf(c *model.Chore) recurrence.Schedule {
	s := recurrence.Schedule{
		Type:        c.ChoreType,
		DueDate:     c.DueDate,
		CompletedAt: c.CompletedAt,
	}
	if c.Recurrence != nil {
		s.Frequency = c.Recurrence.Frequency
		for _, name := range c.Recurrence.DaysOfWeek {
			if d, err := recurrence.ParseWeekday(name); err == nil {
				s.Days = append(s.Days, d)
			}
		}
	}
	return s
}

// NextDueDate computes the value persisted on every chore write.
func NextDueDate(c *model.Chore, now time.Time) *time.Time {
	return recurrence.NextDueDate(ScheduleOf(c), now)
}

// Annotate fills the computed IsDue flag for an API response.
func Annotate(c *model.Chore, now time.Time) {
	c.IsDue = recurrence.IsDue(ScheduleOf(c), now)
}

// NeedsReset reports whether a completed recurring chore has passed its reset
// instant and should go back to pending.
func NeedsReset(c *model.Chore, now time.Time) bool {
	if !c.IsRecurring() || c.Status == model.ChoreStatusPending {
		return false
	}
	if c.Recurrence == nil || c.Recurrence.LastCompleted == nil {
		return false
	}
	reset, ok := recurrence.NextReset(ScheduleOf(c), c.Recurrence.LastCompleted.In(now.Location()))
	return ok && !now.Before(reset)
}
