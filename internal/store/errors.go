package store

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrChoreNotPending   = errors.New("chore is not pending")
	ErrChoreNotCompleted = errors.New("chore is not completed")
	ErrChoreNotAssigned  = errors.New("chore is not assigned")
	ErrChoreModified     = errors.New("chore was modified concurrently")
	ErrChildInHousehold  = errors.New("child is already in a household")
	ErrAlreadyMember     = errors.New("user is already a member of a household")
	ErrInviteNotPending  = errors.New("invite is not pending")
)

// ConflictError reports a uniqueness violation on a named field.
type ConflictError struct {
	Field string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s already exists", e.Field)
}

// asConflict maps a SQLite UNIQUE constraint failure on column to a
// ConflictError naming field. It returns nil for any other error.
func asConflict(err error, column, field string) *ConflictError {
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed: "+column) {
		return &ConflictError{Field: field}
	}
	return nil
}
