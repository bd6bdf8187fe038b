package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dukerupert/chorechamp/internal/auth"
	"github.com/dukerupert/chorechamp/internal/model"
	"github.com/dukerupert/chorechamp/internal/store"
	"github.com/dukerupert/chorechamp/internal/websocket"
)

const inviteTTL = 48 * time.Hour

type HouseholdHandler struct {
	householdStore *store.HouseholdStore
	userStore      *store.UserStore
	mailer         Mailer
	hub            Broadcaster
	logger         *slog.Logger
	now            func() time.Time
}

func NewHouseholdHandler(hs *store.HouseholdStore, us *store.UserStore, mailer Mailer, hub Broadcaster, logger *slog.Logger) *HouseholdHandler {
	return &HouseholdHandler{
		householdStore: hs,
		userStore:      us,
		mailer:         mailer,
		hub:            hub,
		logger:         logger,
		now:            time.Now,
	}
}

func (h *HouseholdHandler) broadcast(householdID int64, action string, extra map[string]any) {
	if h.hub != nil {
		h.hub.Broadcast(householdID, websocket.NewMessage("household", action, householdID, extra))
	}
}

func (h *HouseholdHandler) disconnect(householdID, userID int64) {
	if h.hub == nil {
		return
	}
	if n := h.hub.Disconnect(householdID, userID); n > 0 {
		h.logger.Info("closed live connections of removed member", "household_id", householdID, "user_id", userID, "connections", n)
	}
}

// household loads the caller's household, writing a 404 when there is none.
func (h *HouseholdHandler) household(w http.ResponseWriter, r *http.Request) (*model.Household, bool) {
	hh, err := h.householdStore.GetForUser(auth.UserID(r.Context()))
	if err != nil {
		serverError(w, r, h.logger, "get household", err)
		return nil, false
	}
	if hh == nil {
		writeError(w, http.StatusNotFound, "Household not found")
		return nil, false
	}
	return hh, true
}

// parentOf loads the caller's household and their active parent entry in it.
func (h *HouseholdHandler) parentOf(w http.ResponseWriter, r *http.Request) (*model.Household, *model.HouseholdParent, bool) {
	hh, ok := h.household(w, r)
	if !ok {
		return nil, nil, false
	}
	p := hh.Parent(auth.UserID(r.Context()))
	if p == nil || p.Status != model.ParentStatusActive {
		writeError(w, http.StatusForbidden, "Only household parents can manage the household")
		return nil, nil, false
	}
	return hh, p, true
}

type nameRequest struct {
	Name string `json:"name"`
}

func (h *HouseholdHandler) Create(w http.ResponseWriter, r *http.Request) {
	ac, _ := auth.FromContext(r.Context())

	var req nameRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	member, err := h.householdStore.IsParentOfAny(ac.UserID)
	if err != nil {
		serverError(w, r, h.logger, "check membership", err)
		return
	}
	if member || ac.HouseholdID != 0 {
		writeError(w, http.StatusBadRequest, "You are already a member of a household")
		return
	}

	hh, err := h.householdStore.Create(req.Name, ac.UserID)
	if err != nil {
		serverError(w, r, h.logger, "create household", err)
		return
	}

	h.logger.Info("household created", "household_id", hh.ID, "owner_id", ac.UserID)
	writeJSON(w, http.StatusCreated, hh)
}

// Get returns the caller's household. Invites are only shown to parents.
func (h *HouseholdHandler) Get(w http.ResponseWriter, r *http.Request) {
	hh, ok := h.household(w, r)
	if !ok {
		return
	}
	if !auth.IsParent(r.Context()) {
		hh.Invites = nil
	}
	writeJSON(w, http.StatusOK, hh)
}

// All lists every household the caller is a parent of. Invitations are only
// shown for households where the caller's membership is active.
func (h *HouseholdHandler) All(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	households, err := h.householdStore.ListForParent(userID)
	if err != nil {
		serverError(w, r, h.logger, "list households", err)
		return
	}
	if len(households) == 0 {
		writeError(w, http.StatusNotFound, "No households found")
		return
	}
	for i := range households {
		if p := households[i].Parent(userID); p == nil || p.Status != model.ParentStatusActive {
			households[i].Invites = nil
		}
	}
	writeJSON(w, http.StatusOK, households)
}

func (h *HouseholdHandler) Update(w http.ResponseWriter, r *http.Request) {
	hh, _, ok := h.parentOf(w, r)
	if !ok {
		return
	}

	var req nameRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	updated, err := h.householdStore.UpdateName(hh.ID, req.Name)
	if err != nil {
		serverError(w, r, h.logger, "update household", err)
		return
	}

	h.broadcast(hh.ID, "updated", nil)
	writeJSON(w, http.StatusOK, updated)
}

// AvailableChildren lists child accounts that belong to no household.
func (h *HouseholdHandler) AvailableChildren(w http.ResponseWriter, r *http.Request) {
	children, err := h.userStore.ListAvailableChildren()
	if err != nil {
		serverError(w, r, h.logger, "list available children", err)
		return
	}
	if children == nil {
		children = []model.User{}
	}
	writeJSON(w, http.StatusOK, children)
}

// Invite creates a co-parent invitation and mails it. A failed send still
// succeeds and returns the link so it can be shared by hand.
func (h *HouseholdHandler) Invite(w http.ResponseWriter, r *http.Request) {
	hh, _, ok := h.parentOf(w, r)
	if !ok {
		return
	}

	var req struct {
		Email string `json:"email"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" || !strings.Contains(req.Email, "@") {
		writeError(w, http.StatusBadRequest, "a valid email is required")
		return
	}

	existing, err := h.householdStore.PendingInvite(hh.ID, req.Email)
	if err != nil {
		serverError(w, r, h.logger, "check pending invite", err)
		return
	}
	if existing != nil && !existing.Expired(h.now()) {
		writeError(w, http.StatusBadRequest, "Invitation already sent")
		return
	}
	if existing != nil {
		if err := h.householdStore.MarkInviteExpired(existing.ID); err != nil {
			serverError(w, r, h.logger, "expire invite", err)
			return
		}
	}

	invite, err := h.householdStore.CreateInvite(hh.ID, req.Email, h.now().Add(inviteTTL))
	if err != nil {
		serverError(w, r, h.logger, "create invite", err)
		return
	}

	inviter := "A ChoreChamp parent"
	if u, err := h.userStore.GetByID(auth.UserID(r.Context())); err == nil && u != nil {
		inviter = u.Username
	}

	h.logger.Info("invite created", "household_id", hh.ID, "invite_id", invite.ID)
	if err := h.mailer.SendInvite(r.Context(), req.Email, inviter, invite.Token); err != nil {
		h.logger.Warn("send email", "kind", "invite", "error", err)
		writeJSON(w, http.StatusOK, map[string]string{
			"message":   "Invitation created but email failed to send",
			"inviteUrl": h.mailer.InviteURL(invite.Token),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Invitation sent successfully"})
}

// Join accepts an invitation addressed to the caller's email.
func (h *HouseholdHandler) Join(w http.ResponseWriter, r *http.Request) {
	ac, _ := auth.FromContext(r.Context())

	invite, err := h.householdStore.GetInviteByToken(r.PathValue("token"))
	if err != nil {
		serverError(w, r, h.logger, "get invite", err)
		return
	}
	if invite == nil || invite.Status != model.InviteStatusPending {
		writeError(w, http.StatusNotFound, "Invalid or expired invitation")
		return
	}
	if invite.Expired(h.now()) {
		if err := h.householdStore.MarkInviteExpired(invite.ID); err != nil {
			h.logger.Error("expire invite", "invite_id", invite.ID, "error", err)
		}
		writeError(w, http.StatusNotFound, "Invalid or expired invitation")
		return
	}

	u, err := h.userStore.GetByID(ac.UserID)
	if err != nil {
		serverError(w, r, h.logger, "get user", err)
		return
	}
	if u == nil || !strings.EqualFold(u.EmailAddress(), invite.Email) {
		writeError(w, http.StatusForbidden, "This invitation was sent to a different email address")
		return
	}

	hh, err := h.householdStore.AcceptInvite(invite.ID, ac.UserID)
	switch {
	case errors.Is(err, store.ErrAlreadyMember):
		writeError(w, http.StatusBadRequest, "You are already a member of a household")
		return
	case errors.Is(err, store.ErrInviteNotPending):
		writeError(w, http.StatusNotFound, "Invalid or expired invitation")
		return
	case err != nil:
		serverError(w, r, h.logger, "accept invite", err)
		return
	}

	h.logger.Info("invite accepted", "household_id", hh.ID, "user_id", ac.UserID)
	h.broadcast(hh.ID, "parent_joined", map[string]any{"userId": ac.UserID})
	writeJSON(w, http.StatusOK, hh)
}

// AddChildren links existing child accounts to the caller's household.
func (h *HouseholdHandler) AddChildren(w http.ResponseWriter, r *http.Request) {
	hh, _, ok := h.parentOf(w, r)
	if !ok {
		return
	}

	var req struct {
		ChildrenIDs []int64 `json:"childrenIds"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if len(req.ChildrenIDs) == 0 {
		writeError(w, http.StatusBadRequest, "childrenIds is required")
		return
	}

	seen := make(map[int64]bool, len(req.ChildrenIDs))
	for _, id := range req.ChildrenIDs {
		if seen[id] {
			writeError(w, http.StatusBadRequest, "childrenIds must not contain duplicates")
			return
		}
		seen[id] = true

		u, err := h.userStore.GetByID(id)
		if err != nil {
			serverError(w, r, h.logger, "get child", err)
			return
		}
		if u == nil || u.Role != model.RoleChild {
			writeError(w, http.StatusBadRequest, "One or more children not found")
			return
		}
	}

	updated, err := h.householdStore.AddChildren(hh.ID, req.ChildrenIDs)
	if errors.Is(err, store.ErrChildInHousehold) {
		writeError(w, http.StatusBadRequest, "One or more children are already in a household")
		return
	}
	if err != nil {
		serverError(w, r, h.logger, "add children", err)
		return
	}

	h.broadcast(hh.ID, "children_added", map[string]any{"childrenIds": req.ChildrenIDs})
	writeJSON(w, http.StatusOK, updated)
}

func (h *HouseholdHandler) RemoveChild(w http.ResponseWriter, r *http.Request) {
	hh, _, ok := h.parentOf(w, r)
	if !ok {
		return
	}
	childID, err := parsePathID(r, "childId")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid childId")
		return
	}

	removed, err := h.householdStore.RemoveChild(hh.ID, childID)
	if err != nil {
		serverError(w, r, h.logger, "remove child", err)
		return
	}
	if !removed {
		writeError(w, http.StatusNotFound, "Child not found in household")
		return
	}

	updated, err := h.householdStore.GetByID(hh.ID)
	if err != nil {
		serverError(w, r, h.logger, "get household", err)
		return
	}
	h.broadcast(hh.ID, "child_removed", map[string]any{"childId": childID})
	h.disconnect(hh.ID, childID)
	writeJSON(w, http.StatusOK, updated)
}

// RemoveParent drops a co-parent. Only the owner may do this and the owner
// cannot be removed.
func (h *HouseholdHandler) RemoveParent(w http.ResponseWriter, r *http.Request) {
	hh, requester, ok := h.parentOf(w, r)
	if !ok {
		return
	}
	if requester.Role != model.ParentRoleOwner {
		writeError(w, http.StatusForbidden, "Only the household owner can remove parents")
		return
	}
	userID, err := parsePathID(r, "userId")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid userId")
		return
	}

	target := hh.Parent(userID)
	if target == nil {
		writeError(w, http.StatusNotFound, "Parent not found in household")
		return
	}
	if target.Role == model.ParentRoleOwner {
		writeError(w, http.StatusBadRequest, "Household owner cannot be removed")
		return
	}

	removed, err := h.householdStore.RemoveParent(hh.ID, userID)
	if err != nil {
		serverError(w, r, h.logger, "remove parent", err)
		return
	}
	if !removed {
		writeError(w, http.StatusNotFound, "Parent not found in household")
		return
	}

	updated, err := h.householdStore.GetByID(hh.ID)
	if err != nil {
		serverError(w, r, h.logger, "get household", err)
		return
	}
	h.broadcast(hh.ID, "parent_removed", map[string]any{"userId": userID})
	h.disconnect(hh.ID, userID)
	writeJSON(w, http.StatusOK, updated)
}
