package auth

import (
	"context"

	"github.com/dukerupert/chorechamp/internal/model"
)

type contextKey struct{}

// AuthContext is the caller identity RequireAuth attaches to a request.
// HouseholdID is 0 until the user joins or creates a household.
type AuthContext struct {
	UserID      int64
	HouseholdID int64
	Role        string
}

// ForUser builds the request identity from a loaded account.
func ForUser(u *model.User) AuthContext {
	ac := AuthContext{UserID: u.ID, Role: u.Role}
	if u.HouseholdID != nil {
		ac.HouseholdID = *u.HouseholdID
	}
	return ac
}

func (ac AuthContext) IsParent() bool { return ac.Role == model.RoleParent }
func (ac AuthContext) IsChild() bool  { return ac.Role == model.RoleChild }

func (ac AuthContext) InHousehold() bool { return ac.HouseholdID != 0 }

// Owns reports whether a chore assigned to assignee is the caller's own.
func (ac AuthContext) Owns(assignee *int64) bool {
	return assignee != nil && *assignee == ac.UserID
}

func WithAuth(ctx context.Context, ac AuthContext) context.Context {
	return context.WithValue(ctx, contextKey{}, ac)
}

func FromContext(ctx context.Context) (AuthContext, bool) {
	ac, ok := ctx.Value(contextKey{}).(AuthContext)
	return ac, ok
}

func HouseholdID(ctx context.Context) int64 {
	ac, _ := FromContext(ctx)
	return ac.HouseholdID
}

func UserID(ctx context.Context) int64 {
	ac, _ := FromContext(ctx)
	return ac.UserID
}

func IsParent(ctx context.Context) bool {
	ac, ok := FromContext(ctx)
	return ok && ac.IsParent()
}
