package model

import "time"

const (
	RoleParent = "parent"
	RoleChild  = "child"
)

type User struct {
	ID                 int64     `json:"id"`
	Username           string    `json:"username"`
	FirstName          string    `json:"firstName"`
	LastName           string    `json:"lastName"`
	Email              *string   `json:"email"`
	Phone              string    `json:"phone"`
	PasswordHash       string    `json:"-"`
	Role               string    `json:"role"`
	ParentID           *int64    `json:"parentId"`
	HouseholdID        *int64    `json:"householdId"`
	Points             int       `json:"points"`
	ChoreRotationOrder int       `json:"choreRotationOrder"`
	CreatedAt          time.Time `json:"createdAt"`
	UpdatedAt          time.Time `json:"updatedAt"`
}

func (u *User) IsParent() bool {
	return u.Role == RoleParent
}

// EmailAddress returns the user's email or "" when none is set.
func (u *User) EmailAddress() string {
	if u.Email == nil {
		return ""
	}
	return *u.Email
}

// DisplayName prefers the first name, falling back to the username.
func (u *User) DisplayName() string {
	if u.FirstName != "" {
		return u.FirstName
	}
	return u.Username
}
