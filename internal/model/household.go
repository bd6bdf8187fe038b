package model

import "time"

const (
	ParentRoleOwner    = "owner"
	ParentRoleCoParent = "co-parent"

	ParentStatusPending = "pending"
	ParentStatusActive  = "active"

	InviteStatusPending  = "pending"
	InviteStatusAccepted = "accepted"
	InviteStatusExpired  = "expired"
)

type Household struct {
	ID        int64             `json:"id"`
	Name      string            `json:"name"`
	CreatedBy int64             `json:"createdBy"`
	Parents   []HouseholdParent `json:"parents"`
	Children  []User            `json:"children"`
	Invites   []Invite          `json:"invites,omitempty"`
	CreatedAt time.Time         `json:"createdAt"`
	UpdatedAt time.Time         `json:"updatedAt"`
}

type HouseholdParent struct {
	UserID    int64     `json:"userId"`
	Username  string    `json:"username"`
	Email     *string   `json:"email"`
	Role      string    `json:"role"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}

type Invite struct {
	ID          int64     `json:"id"`
	HouseholdID int64     `json:"householdId"`
	Email       string    `json:"email"`
	Token       string    `json:"-"`
	Role        string    `json:"role"`
	Status      string    `json:"status"`
	ExpiresAt   time.Time `json:"expiresAt"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Expired reports whether the invite's expiry has passed at now.
func (i *Invite) Expired(now time.Time) bool {
	return !now.Before(i.ExpiresAt)
}

// Parent returns the membership entry for userID, or nil.
func (h *Household) Parent(userID int64) *HouseholdParent {
	for i := range h.Parents {
		if h.Parents[i].UserID == userID {
			return &h.Parents[i]
		}
	}
	return nil
}

func (h *Household) HasChild(userID int64) bool {
	for _, c := range h.Children {
		if c.ID == userID {
			return true
		}
	}
	return false
}
