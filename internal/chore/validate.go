package chore

import (
	"fmt"
	"strings"
	"time"

	"github.com/dukerupert/chorechamp/internal/model"
	"github.com/dukerupert/chorechamp/internal/recurrence"
)

// Input is the writable part of a chore as submitted on create and update.
type Input struct {
	Title       string
	Description string
	Points      *int
	ChoreType   string
	AssignedTo  *int64
	DueDate     *time.Time
	Recurrence  *RecurrenceInput
}

type RecurrenceInput struct {
	Frequency  string
	DaysOfWeek []string
}

// ValidationError lists every problem found in an Input, each naming its field.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return strings.Join(e.Problems, "; ")
}

// Validate checks in and returns a normalized copy: title trimmed, day names
// lowercased, and the fields of the other chore type cleared.
func Validate(in Input) (Input, error) {
	var problems []string
	out := in
	out.Title = strings.TrimSpace(in.Title)
	out.Description = strings.TrimSpace(in.Description)

	if out.Title == "" {
		problems = append(problems, "title is required")
	}
	switch {
	case in.Points == nil:
		problems = append(problems, "points is required")
	case *in.Points < 0:
		problems = append(problems, "points must not be negative")
	}

	switch in.ChoreType {
	case model.ChoreTypeOneTime:
		out.Recurrence = nil
		if in.DueDate == nil {
			problems = append(problems, "dueDate is required for one-time chores")
		}
	case model.ChoreTypeRecurring:
		out.DueDate = nil
		rec, recProblems := validateRecurrence(in.Recurrence)
		out.Recurrence = rec
		problems = append(problems, recProblems...)
	case "":
		problems = append(problems, "choreType is required")
	default:
		problems = append(problems, fmt.Sprintf("choreType must be %q or %q", model.ChoreTypeOneTime, model.ChoreTypeRecurring))
	}

	if len(problems) > 0 {
		return Input{}, &ValidationError{Problems: problems}
	}
	return out, nil
}

func validateRecurrence(in *RecurrenceInput) (*RecurrenceInput, []string) {
	if in == nil || in.Frequency == "" {
		return nil, []string{"recurrence.frequency is required for recurring chores"}
	}

	freq := strings.ToLower(strings.TrimSpace(in.Frequency))
	switch freq {
	case model.FrequencyDaily:
		return &RecurrenceInput{Frequency: freq}, nil
	case model.FrequencyWeekly:
		if len(in.DaysOfWeek) == 0 {
			return nil, []string{"recurrence.daysOfWeek: weekly chores must have at least one day selected"}
		}
		days, err := recurrence.NormalizeDays(in.DaysOfWeek)
		if err != nil {
			return nil, []string{"recurrence.daysOfWeek: " + err.Error()}
		}
		return &RecurrenceInput{Frequency: freq, DaysOfWeek: days}, nil
	default:
		return nil, []string{fmt.Sprintf("recurrence.frequency must be %q or %q", model.FrequencyDaily, model.FrequencyWeekly)}
	}
}
