package model

import "time"

const (
	ChoreStatusPending   = "pending"
	ChoreStatusCompleted = "completed"
	ChoreStatusVerified  = "verified"

	ChoreTypeOneTime   = "one-time"
	ChoreTypeRecurring = "recurring"

	FrequencyDaily  = "daily"
	FrequencyWeekly = "weekly"
)

type Recurrence struct {
	Frequency     string     `json:"frequency"`
	DaysOfWeek    []string   `json:"daysOfWeek"`
	LastCompleted *time.Time `json:"lastCompleted"`
}

// Chore is a household task. CompletedBy and AwardedPoints record who the
// last completion credited and how much, so an undo reverses exactly that.
type Chore struct {
	ID            int64       `json:"id"`
	HouseholdID   int64       `json:"householdId"`
	Title         string      `json:"title"`
	Description   string      `json:"description"`
	Points        int         `json:"points"`
	AssignedTo    *int64      `json:"assignedTo"`
	CreatedBy     int64       `json:"createdBy"`
	Status        string      `json:"status"`
	ChoreType     string      `json:"choreType"`
	DueDate       *time.Time  `json:"dueDate"`
	Recurrence    *Recurrence `json:"recurrence"`
	CompletedAt   *time.Time  `json:"completedAt"`
	CompletedBy   *int64      `json:"completedBy"`
	AwardedPoints int         `json:"-"`
	NextDueDate   *time.Time  `json:"nextDueDate"`
	IsLocked      bool        `json:"isLocked"`
	IsDue         bool        `json:"isDue"`
	Version       int64       `json:"-"`
	CreatedAt     time.Time   `json:"createdAt"`
	UpdatedAt     time.Time   `json:"updatedAt"`
}

func (c *Chore) IsRecurring() bool {
	return c.ChoreType == ChoreTypeRecurring
}

func (c *Chore) IsAssignedTo(userID int64) bool {
	return c.AssignedTo != nil && *c.AssignedTo == userID
}
