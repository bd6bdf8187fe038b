package handler

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/dukerupert/chorechamp/internal/auth"
	"github.com/dukerupert/chorechamp/internal/model"
	"github.com/dukerupert/chorechamp/internal/store"
)

type AuthHandler struct {
	userStore *store.UserStore
	tokens    *auth.TokenIssuer
	mailer    Mailer
	logger    *slog.Logger
}

func NewAuthHandler(us *store.UserStore, tokens *auth.TokenIssuer, mailer Mailer, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{userStore: us, tokens: tokens, mailer: mailer, logger: logger}
}

type authResponse struct {
	User  *model.User `json:"user"`
	Token string      `json:"token"`
}

func conflictMessage(ce *store.ConflictError) string {
	switch ce.Field {
	case "username":
		return "Username already exists"
	case "email":
		return "Email already exists"
	}
	return fmt.Sprintf("%s already exists", ce.Field)
}

func (h *AuthHandler) RegisterParent(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Username == "" || req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "All fields are required")
		return
	}
	if len(req.Password) < auth.MinPasswordLength {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Password must be at least %d characters long", auth.MinPasswordLength))
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		serverError(w, r, h.logger, "hash password", err)
		return
	}

	u, err := h.userStore.Create(store.NewUser{
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: hash,
		Role:         model.RoleParent,
	})
	var ce *store.ConflictError
	if errors.As(err, &ce) {
		writeError(w, http.StatusBadRequest, conflictMessage(ce))
		return
	}
	if err != nil {
		serverError(w, r, h.logger, "create parent", err)
		return
	}

	token, err := h.tokens.Issue(u.ID)
	if err != nil {
		serverError(w, r, h.logger, "issue token", err)
		return
	}

	h.logger.Info("parent registered", "user_id", u.ID)
	writeJSON(w, http.StatusCreated, authResponse{User: u, Token: token})
}

func (h *AuthHandler) RegisterChild(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username  string `json:"username"`
		FirstName string `json:"firstName"`
		LastName  string `json:"lastName"`
		Email     string `json:"email"`
		Phone     string `json:"phone"`
		Password  string `json:"password"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	req.Username = strings.TrimSpace(req.Username)
	req.FirstName = strings.TrimSpace(req.FirstName)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Username == "" || req.FirstName == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "Username, First Name, and Password are required")
		return
	}
	if len(req.Password) < auth.MinPasswordLength {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Password must be at least %d characters long", auth.MinPasswordLength))
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		serverError(w, r, h.logger, "hash password", err)
		return
	}

	parentID := auth.UserID(r.Context())
	child, err := h.userStore.Create(store.NewUser{
		Username:     req.Username,
		FirstName:    req.FirstName,
		LastName:     strings.TrimSpace(req.LastName),
		Email:        req.Email,
		Phone:        strings.TrimSpace(req.Phone),
		PasswordHash: hash,
		Role:         model.RoleChild,
		ParentID:     &parentID,
	})
	var ce *store.ConflictError
	if errors.As(err, &ce) {
		writeError(w, http.StatusBadRequest, conflictMessage(ce))
		return
	}
	if err != nil {
		serverError(w, r, h.logger, "create child", err)
		return
	}

	if child.Email != nil {
		mailLogged(h.logger, "welcome", func() error {
			return h.mailer.SendWelcome(r.Context(), *child.Email, child.DisplayName())
		})
	}

	h.logger.Info("child registered", "user_id", child.ID, "parent_id", parentID)
	writeJSON(w, http.StatusCreated, child)
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "Username and password are required")
		return
	}

	u, err := h.userStore.GetByUsername(req.Username)
	if err != nil {
		serverError(w, r, h.logger, "lookup user", err)
		return
	}
	if u == nil || !auth.CheckPassword(u.PasswordHash, req.Password) {
		writeError(w, http.StatusUnauthorized, "Invalid username or password")
		return
	}

	token, err := h.tokens.Issue(u.ID)
	if err != nil {
		serverError(w, r, h.logger, "issue token", err)
		return
	}
	writeJSON(w, http.StatusOK, authResponse{User: u, Token: token})
}

func (h *AuthHandler) Profile(w http.ResponseWriter, r *http.Request) {
	u, err := h.userStore.GetByID(auth.UserID(r.Context()))
	if err != nil {
		serverError(w, r, h.logger, "get profile", err)
		return
	}
	if u == nil {
		writeError(w, http.StatusNotFound, "User not found")
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// GetUser returns one account. Callers may see themselves; parents may also
// see their own children and members of their household.
func (h *AuthHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	ac, _ := auth.FromContext(r.Context())

	u, err := h.userStore.GetByID(id)
	if err != nil {
		serverError(w, r, h.logger, "get user", err)
		return
	}
	if u == nil {
		writeError(w, http.StatusNotFound, "User not found")
		return
	}
	if !canView(ac, u) {
		writeError(w, http.StatusForbidden, "Not authorized to view this user")
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func canView(ac auth.AuthContext, u *model.User) bool {
	switch {
	case u.ID == ac.UserID:
		return true
	case !ac.IsParent():
		return false
	case u.ParentID != nil && *u.ParentID == ac.UserID:
		return true
	default:
		return ac.InHousehold() && u.HouseholdID != nil && *u.HouseholdID == ac.HouseholdID
	}
}

// UpdateProfile edits the caller's own account. Changing the password
// requires the current one.
func (h *AuthHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	if id != auth.UserID(r.Context()) {
		writeError(w, http.StatusForbidden, "Not authorized to update this profile")
		return
	}

	var req struct {
		Username        *string `json:"username"`
		FirstName       *string `json:"firstName"`
		LastName        *string `json:"lastName"`
		Email           *string `json:"email"`
		Phone           *string `json:"phone"`
		CurrentPassword string  `json:"currentPassword"`
		NewPassword     string  `json:"newPassword"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	u, err := h.userStore.GetByID(id)
	if err != nil {
		serverError(w, r, h.logger, "get user", err)
		return
	}
	if u == nil {
		writeError(w, http.StatusNotFound, "User not found")
		return
	}

	upd := store.UserUpdate{
		Username:  trimmed(req.Username),
		FirstName: trimmed(req.FirstName),
		LastName:  trimmed(req.LastName),
		Email:     lowered(req.Email),
		Phone:     trimmed(req.Phone),
	}
	if upd.Username != nil && *upd.Username == "" {
		writeError(w, http.StatusBadRequest, "username must not be empty")
		return
	}
	if u.IsParent() && upd.Email != nil && *upd.Email == "" {
		writeError(w, http.StatusBadRequest, "email is required for parents")
		return
	}
	if req.NewPassword != "" {
		if req.CurrentPassword == "" {
			writeError(w, http.StatusBadRequest, "Current password is required to change password")
			return
		}
		if !auth.CheckPassword(u.PasswordHash, req.CurrentPassword) {
			writeError(w, http.StatusBadRequest, "Current password is incorrect")
			return
		}
		if len(req.NewPassword) < auth.MinPasswordLength {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("Password must be at least %d characters long", auth.MinPasswordLength))
			return
		}
		hash, err := auth.HashPassword(req.NewPassword)
		if err != nil {
			serverError(w, r, h.logger, "hash password", err)
			return
		}
		upd.PasswordHash = &hash
	}

	updated, err := h.userStore.Update(id, upd)
	var ce *store.ConflictError
	if errors.As(err, &ce) {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("This %s is already in use", ce.Field))
		return
	}
	if err != nil {
		serverError(w, r, h.logger, "update profile", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": updated})
}

// Children lists the child accounts created by the calling parent.
func (h *AuthHandler) Children(w http.ResponseWriter, r *http.Request) {
	children, err := h.userStore.ListChildren(auth.UserID(r.Context()))
	if err != nil {
		serverError(w, r, h.logger, "list children", err)
		return
	}
	if children == nil {
		children = []model.User{}
	}
	writeJSON(w, http.StatusOK, children)
}

// ownChild loads child id and checks that the caller created it.
func (h *AuthHandler) ownChild(w http.ResponseWriter, r *http.Request) (*model.User, bool) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return nil, false
	}
	child, err := h.userStore.GetByID(id)
	if err != nil {
		serverError(w, r, h.logger, "get child", err)
		return nil, false
	}
	parentID := auth.UserID(r.Context())
	if child == nil || child.Role != model.RoleChild || child.ParentID == nil || *child.ParentID != parentID {
		writeError(w, http.StatusNotFound, "Child not found")
		return nil, false
	}
	return child, true
}

func (h *AuthHandler) UpdateChild(w http.ResponseWriter, r *http.Request) {
	child, ok := h.ownChild(w, r)
	if !ok {
		return
	}

	var req struct {
		Username           *string `json:"username"`
		FirstName          *string `json:"firstName"`
		LastName           *string `json:"lastName"`
		Email              *string `json:"email"`
		Phone              *string `json:"phone"`
		Password           string  `json:"password"`
		ChoreRotationOrder *int    `json:"choreRotationOrder"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	upd := store.UserUpdate{
		Username:           trimmed(req.Username),
		FirstName:          trimmed(req.FirstName),
		LastName:           trimmed(req.LastName),
		Email:              lowered(req.Email),
		Phone:              trimmed(req.Phone),
		ChoreRotationOrder: req.ChoreRotationOrder,
	}
	if upd.Username != nil && *upd.Username == "" {
		writeError(w, http.StatusBadRequest, "username must not be empty")
		return
	}
	if req.Password != "" {
		if len(req.Password) < auth.MinPasswordLength {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("Password must be at least %d characters long", auth.MinPasswordLength))
			return
		}
		hash, err := auth.HashPassword(req.Password)
		if err != nil {
			serverError(w, r, h.logger, "hash password", err)
			return
		}
		upd.PasswordHash = &hash
	}

	updated, err := h.userStore.Update(child.ID, upd)
	var ce *store.ConflictError
	if errors.As(err, &ce) {
		writeError(w, http.StatusBadRequest, conflictMessage(ce))
		return
	}
	if err != nil {
		serverError(w, r, h.logger, "update child", err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// DeleteChild removes a child account. Foreign keys unassign its chores and
// drop its household membership.
func (h *AuthHandler) DeleteChild(w http.ResponseWriter, r *http.Request) {
	child, ok := h.ownChild(w, r)
	if !ok {
		return
	}
	if err := h.userStore.Delete(child.ID); err != nil {
		serverError(w, r, h.logger, "delete child", err)
		return
	}
	h.logger.Info("child deleted", "user_id", child.ID)
	writeJSON(w, http.StatusOK, map[string]string{"message": "Child deleted successfully"})
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	return &v
}

func lowered(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.ToLower(strings.TrimSpace(*s))
	return &v
}
