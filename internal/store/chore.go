package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/dukerupert/chorechamp/internal/chore"
	"github.com/dukerupert/chorechamp/internal/model"
)

type ChoreStore struct {
	db *sql.DB
}

func NewChoreStore(db *sql.DB) *ChoreStore {
	return &ChoreStore{db: db}
}

// ChoreFields are the caller-editable fields of a chore. Fields belonging to
// the other chore type are expected to be zero.
type ChoreFields struct {
	Title       string
	Description string
	Points      int
	ChoreType   string
	AssignedTo  *int64
	DueDate     *time.Time
	Frequency   string
	DaysOfWeek  []string
}

func scanChore(scanner interface{ Scan(...any) error }) (*model.Chore, error) {
	var c model.Chore
	var assignedTo, completedBy sql.NullInt64
	var dueDate, lastCompleted, completedAt, nextDue sql.NullTime
	var frequency, days string
	err := scanner.Scan(
		&c.ID, &c.HouseholdID, &c.Title, &c.Description, &c.Points, &assignedTo,
		&c.CreatedBy, &c.Status, &c.ChoreType, &dueDate, &frequency, &days,
		&lastCompleted, &completedAt, &completedBy, &c.AwardedPoints, &nextDue, &c.IsLocked, &c.Version,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if assignedTo.Valid {
		c.AssignedTo = &assignedTo.Int64
	}
	if completedBy.Valid {
		c.CompletedBy = &completedBy.Int64
	}
	c.DueDate = timePtr(dueDate)
	c.CompletedAt = timePtr(completedAt)
	c.NextDueDate = timePtr(nextDue)
	if c.ChoreType == model.ChoreTypeRecurring {
		c.Recurrence = &model.Recurrence{
			Frequency:     frequency,
			DaysOfWeek:    splitDays(days),
			LastCompleted: timePtr(lastCompleted),
		}
	}
	return &c, nil
}

const choreCols = `id, household_id, title, description, points, assigned_to, created_by, status, chore_type, due_date, frequency, days_of_week, last_completed, completed_at, completed_by, awarded_points, next_due_date, is_locked, version, created_at, updated_at`

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func splitDays(s string) []string {
	if s == "" {
		return []string{}
	}
	return strings.Split(s, ",")
}

// apply copies f onto c. A nil AssignedTo leaves the assignee unchanged.
// Changing the chore type discards any completion and returns c to pending;
// points already credited stay with the completer.
func (f ChoreFields) apply(c *model.Chore) {
	if c.ChoreType != "" && c.ChoreType != f.ChoreType {
		c.Status = model.ChoreStatusPending
		c.CompletedAt = nil
		c.CompletedBy = nil
		c.AwardedPoints = 0
		if c.Recurrence != nil {
			c.Recurrence.LastCompleted = nil
		}
	}
	c.Title = f.Title
	c.Description = f.Description
	c.Points = f.Points
	c.ChoreType = f.ChoreType
	if f.AssignedTo != nil {
		c.AssignedTo = f.AssignedTo
	}
	if f.ChoreType == model.ChoreTypeRecurring {
		c.DueDate = nil
		var last *time.Time
		if c.Recurrence != nil {
			last = c.Recurrence.LastCompleted
		}
		c.Recurrence = &model.Recurrence{
			Frequency:     f.Frequency,
			DaysOfWeek:    f.DaysOfWeek,
			LastCompleted: last,
		}
		if f.Frequency != model.FrequencyWeekly {
			c.Recurrence.DaysOfWeek = []string{}
		}
	} else {
		c.DueDate = f.DueDate
		c.Recurrence = nil
	}
}

func recurrenceColumns(c *model.Chore) (frequency, days string, lastCompleted sql.NullTime) {
	if c.Recurrence == nil {
		return "", "", sql.NullTime{}
	}
	return c.Recurrence.Frequency, strings.Join(c.Recurrence.DaysOfWeek, ","), nullTime(c.Recurrence.LastCompleted)
}

func (s *ChoreStore) listChores(query string, args ...any) ([]model.Chore, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	chores := []model.Chore{}
	for rows.Next() {
		c, err := scanChore(rows)
		if err != nil {
			return nil, fmt.Errorf("scan chore: %w", err)
		}
		chores = append(chores, *c)
	}
	return chores, rows.Err()
}

// Create inserts a pending chore. The next due date is computed from now.
func (s *ChoreStore) Create(householdID, createdBy int64, f ChoreFields, now time.Time) (*model.Chore, error) {
	c := &model.Chore{HouseholdID: householdID, CreatedBy: createdBy, Status: model.ChoreStatusPending}
	f.apply(c)
	frequency, days, _ := recurrenceColumns(c)

	result, err := s.db.Exec(
		`INSERT INTO chores (household_id, title, description, points, assigned_to, created_by, status,
		                     chore_type, due_date, frequency, days_of_week, next_due_date)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		householdID, c.Title, c.Description, c.Points, nullInt64(c.AssignedTo), createdBy, c.Status,
		c.ChoreType, nullTime(c.DueDate), frequency, days, nullTime(chore.NextDueDate(c, now)),
	)
	if err != nil {
		return nil, fmt.Errorf("insert chore: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

func (s *ChoreStore) GetByID(id int64) (*model.Chore, error) {
	row := s.db.QueryRow(`SELECT `+choreCols+` FROM chores WHERE id = ?`, id)
	c, err := scanChore(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get chore: %w", err)
	}
	return c, nil
}

func (s *ChoreStore) ListByHousehold(householdID int64) ([]model.Chore, error) {
	chores, err := s.listChores(
		`SELECT `+choreCols+` FROM chores WHERE household_id = ? ORDER BY created_at DESC, id DESC`,
		householdID,
	)
	if err != nil {
		return nil, fmt.Errorf("list chores: %w", err)
	}
	return chores, nil
}

func (s *ChoreStore) ListByAssignee(userID int64) ([]model.Chore, error) {
	chores, err := s.listChores(
		`SELECT `+choreCols+` FROM chores WHERE assigned_to = ? ORDER BY created_at DESC, id DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list chores by assignee: %w", err)
	}
	return chores, nil
}

// Update replaces the editable fields of chore id. Status and the last
// completion are preserved unless the chore type changes. It returns
// (nil, nil) when the chore does not exist.
func (s *ChoreStore) Update(id int64, f ChoreFields, now time.Time) (*model.Chore, error) {
	c, err := s.GetByID(id)
	if err != nil || c == nil {
		return nil, err
	}
	f.apply(c)
	frequency, days, lastCompleted := recurrenceColumns(c)

	result, err := s.db.Exec(
		`UPDATE chores SET title = ?, description = ?, points = ?, assigned_to = ?, chore_type = ?,
		   due_date = ?, frequency = ?, days_of_week = ?, last_completed = ?, status = ?,
		   completed_at = ?, completed_by = ?, awarded_points = ?, next_due_date = ?,
		   version = version + 1, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND version = ?`,
		c.Title, c.Description, c.Points, nullInt64(c.AssignedTo), c.ChoreType,
		nullTime(c.DueDate), frequency, days, lastCompleted, c.Status,
		nullTime(c.CompletedAt), nullInt64(c.CompletedBy), c.AwardedPoints, nullTime(chore.NextDueDate(c, now)),
		id, c.Version,
	)
	if err != nil {
		return nil, fmt.Errorf("update chore: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return nil, ErrChoreModified
	}
	return s.GetByID(id)
}

func (s *ChoreStore) Delete(id int64) error {
	_, err := s.db.Exec(`DELETE FROM chores WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete chore: %w", err)
	}
	return nil
}

// SetAssignee assigns chore id to userID. A nil userID unassigns the chore and
// returns it to pending.
func (s *ChoreStore) SetAssignee(id int64, userID *int64) (*model.Chore, error) {
	var err error
	if userID == nil {
		_, err = s.db.Exec(
			`UPDATE chores SET assigned_to = NULL, status = 'pending', completed_at = NULL,
			   completed_by = NULL, awarded_points = 0, version = version + 1, updated_at = CURRENT_TIMESTAMP
			 WHERE id = ?`,
			id,
		)
	} else {
		_, err = s.db.Exec(
			`UPDATE chores SET assigned_to = ?, version = version + 1, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
			*userID, id,
		)
	}
	if err != nil {
		return nil, fmt.Errorf("set assignee: %w", err)
	}
	return s.GetByID(id)
}

func (s *ChoreStore) SetLocked(id int64, locked bool) (*model.Chore, error) {
	_, err := s.db.Exec(
		`UPDATE chores SET is_locked = ?, version = version + 1, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		locked, id,
	)
	if err != nil {
		return nil, fmt.Errorf("set locked: %w", err)
	}
	return s.GetByID(id)
}

// Complete marks a pending, assigned chore completed and credits its points
// to the assignee in one transaction.
func (s *ChoreStore) Complete(id int64, now time.Time) (*model.Chore, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	c, err := scanChore(tx.QueryRow(`SELECT `+choreCols+` FROM chores WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get chore: %w", err)
	}
	if c.AssignedTo == nil {
		return nil, ErrChoreNotAssigned
	}
	if c.Status != model.ChoreStatusPending {
		return nil, ErrChoreNotPending
	}

	var lastCompleted sql.NullTime
	if c.IsRecurring() {
		lastCompleted = nullTime(&now)
	}
	c.CompletedAt = &now
	result, err := tx.Exec(
		`UPDATE chores SET status = 'completed', completed_at = ?, last_completed = ?, next_due_date = ?,
		   completed_by = ?, awarded_points = ?, version = version + 1, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND version = ?`,
		now.UTC(), lastCompleted, nullTime(chore.NextDueDate(c, now)), *c.AssignedTo, c.Points, id, c.Version,
	)
	if err != nil {
		return nil, fmt.Errorf("complete chore: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return nil, ErrChoreModified
	}
	if _, err := tx.Exec(
		`UPDATE users SET points = points + ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		c.Points, *c.AssignedTo,
	); err != nil {
		return nil, fmt.Errorf("award points: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return s.GetByID(id)
}

// Verify moves a completed chore to verified. Points are not awarded again.
func (s *ChoreStore) Verify(id int64) (*model.Chore, error) {
	result, err := s.db.Exec(
		`UPDATE chores SET status = 'verified', version = version + 1, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND status = 'completed'`,
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("verify chore: %w", err)
	}
	c, err := s.GetByID(id)
	if err != nil || c == nil {
		return nil, err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return nil, ErrChoreNotCompleted
	}
	return c, nil
}

// Undo returns a completed or verified chore to pending and takes back the
// points its completion awarded from whoever completed it, never below zero,
// in one transaction. Later reassignment or point edits do not change the
// deduction.
func (s *ChoreStore) Undo(id int64, now time.Time) (*model.Chore, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	c, err := scanChore(tx.QueryRow(`SELECT `+choreCols+` FROM chores WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get chore: %w", err)
	}
	if c.Status == model.ChoreStatusPending {
		return nil, ErrChoreNotCompleted
	}

	c.CompletedAt = nil
	result, err := tx.Exec(
		`UPDATE chores SET status = 'pending', completed_at = NULL, last_completed = NULL, next_due_date = ?,
		   completed_by = NULL, awarded_points = 0, version = version + 1, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND version = ?`,
		nullTime(chore.NextDueDate(c, now)), id, c.Version,
	)
	if err != nil {
		return nil, fmt.Errorf("undo chore: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return nil, ErrChoreModified
	}
	if c.CompletedBy != nil {
		if _, err := tx.Exec(
			`UPDATE users SET points = MAX(points - ?, 0), updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
			c.AwardedPoints, *c.CompletedBy,
		); err != nil {
			return nil, fmt.Errorf("deduct points: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return s.GetByID(id)
}

// ResetIfUnchanged returns a recurring chore to pending provided it has not
// been written since c was read. It reports whether the reset happened.
func (s *ChoreStore) ResetIfUnchanged(c *model.Chore, now time.Time) (bool, error) {
	reset := *c
	reset.CompletedAt = nil
	result, err := s.db.Exec(
		`UPDATE chores SET status = 'pending', completed_at = NULL, last_completed = NULL, next_due_date = ?,
		   completed_by = NULL, awarded_points = 0, version = version + 1, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND version = ?`,
		nullTime(chore.NextDueDate(&reset, now)), c.ID, c.Version,
	)
	if err != nil {
		return false, fmt.Errorf("reset chore: %w", err)
	}
	n, _ := result.RowsAffected()
	return n > 0, nil
}

// Rotate applies every move in one transaction. A chore whose assignee or
// lock changed since planning aborts the rotation with ErrChoreModified.
func (s *ChoreStore) Rotate(moves []chore.Move) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, m := range moves {
		result, err := tx.Exec(
			`UPDATE chores SET assigned_to = ?, version = version + 1, updated_at = CURRENT_TIMESTAMP
			 WHERE id = ? AND assigned_to = ? AND is_locked = 0`,
			m.To, m.ChoreID, m.From,
		)
		if err != nil {
			return fmt.Errorf("rotate chore %d: %w", m.ChoreID, err)
		}
		if n, _ := result.RowsAffected(); n == 0 {
			return ErrChoreModified
		}
	}
	return tx.Commit()
}
