package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/dukerupert/chorechamp/internal/auth"
	"github.com/dukerupert/chorechamp/internal/chore"
	"github.com/dukerupert/chorechamp/internal/model"
	"github.com/dukerupert/chorechamp/internal/store"
	"github.com/dukerupert/chorechamp/internal/websocket"
)

type ChoreHandler struct {
	choreStore     *store.ChoreStore
	userStore      *store.UserStore
	householdStore *store.HouseholdStore
	mailer         Mailer
	hub            Broadcaster
	logger         *slog.Logger
	now            func() time.Time
}

// NewChoreHandler returns a handler whose calendar-day logic runs in loc.
func NewChoreHandler(cs *store.ChoreStore, us *store.UserStore, hs *store.HouseholdStore, mailer Mailer, hub Broadcaster, loc *time.Location, logger *slog.Logger) *ChoreHandler {
	return &ChoreHandler{
		choreStore:     cs,
		userStore:      us,
		householdStore: hs,
		mailer:         mailer,
		hub:            hub,
		logger:         logger,
		now:            func() time.Time { return time.Now().In(loc) },
	}
}

func (h *ChoreHandler) broadcast(householdID int64, action string, c *model.Chore, extra map[string]any) {
	if h.hub == nil {
		return
	}
	var id int64
	if c != nil {
		id = c.ID
	}
	h.hub.Broadcast(householdID, websocket.NewMessage("chore", action, id, extra))
}

type recurrenceRequest struct {
	Frequency  string   `json:"frequency"`
	DaysOfWeek []string `json:"daysOfWeek"`
}

type choreRequest struct {
	Title       string             `json:"title"`
	Description string             `json:"description"`
	Points      *int               `json:"points"`
	ChoreType   string             `json:"choreType"`
	AssignedTo  *int64             `json:"assignedTo"`
	DueDate     *string            `json:"dueDate"`
	Recurrence  *recurrenceRequest `json:"recurrence"`
}

// parseDueDate accepts RFC 3339 timestamps and plain dates. Plain dates are
// midnight in loc.
func parseDueDate(s string, loc *time.Location) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.ParseInLocation("2006-01-02", s, loc)
}

// input decodes and validates a create or update body into store fields.
// On failure it writes the 400 response itself.
func (h *ChoreHandler) input(w http.ResponseWriter, r *http.Request, now time.Time) (store.ChoreFields, bool) {
	var req choreRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return store.ChoreFields{}, false
	}

	in := chore.Input{
		Title:       req.Title,
		Description: req.Description,
		Points:      req.Points,
		ChoreType:   req.ChoreType,
		AssignedTo:  req.AssignedTo,
	}
	if req.DueDate != nil && *req.DueDate != "" {
		due, err := parseDueDate(*req.DueDate, now.Location())
		if err != nil {
			writeError(w, http.StatusBadRequest, "dueDate must be a date (YYYY-MM-DD) or an RFC 3339 timestamp")
			return store.ChoreFields{}, false
		}
		in.DueDate = &due
	}
	if req.Recurrence != nil {
		in.Recurrence = &chore.RecurrenceInput{
			Frequency:  req.Recurrence.Frequency,
			DaysOfWeek: req.Recurrence.DaysOfWeek,
		}
	}

	valid, err := chore.Validate(in)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return store.ChoreFields{}, false
	}

	f := store.ChoreFields{
		Title:       valid.Title,
		Description: valid.Description,
		Points:      *valid.Points,
		ChoreType:   valid.ChoreType,
		AssignedTo:  valid.AssignedTo,
		DueDate:     valid.DueDate,
	}
	if valid.Recurrence != nil {
		f.Frequency = valid.Recurrence.Frequency
		f.DaysOfWeek = valid.Recurrence.DaysOfWeek
	}
	return f, true
}

// checkAssignee verifies that userID belongs to householdID, writing a 400
// when it does not.
func (h *ChoreHandler) checkAssignee(w http.ResponseWriter, r *http.Request, householdID, userID int64) bool {
	ok, err := h.householdStore.IsMember(householdID, userID)
	if err != nil {
		serverError(w, r, h.logger, "check assignee", err)
		return false
	}
	if !ok {
		writeError(w, http.StatusBadRequest, "assignedTo must be a member of your household")
		return false
	}
	return true
}

// refresh applies a due rollover to c and fills IsDue. A chore that was
// written concurrently keeps its stored state.
func (h *ChoreHandler) refresh(c *model.Chore, now time.Time) *model.Chore {
	if chore.NeedsReset(c, now) {
		reset, err := h.choreStore.ResetIfUnchanged(c, now)
		if err != nil {
			h.logger.Error("reset recurring chore", "chore_id", c.ID, "error", err)
		} else if reset {
			h.logger.Debug("recurring chore reset", "chore_id", c.ID)
			if fresh, err := h.choreStore.GetByID(c.ID); err == nil && fresh != nil {
				c = fresh
			}
		}
	}
	chore.Annotate(c, now)
	return c
}

func (h *ChoreHandler) refreshAll(chores []model.Chore, now time.Time) []model.Chore {
	out := make([]model.Chore, 0, len(chores))
	for i := range chores {
		out = append(out, *h.refresh(&chores[i], now))
	}
	return out
}

// load resolves the {id} chore within the caller's household. Chores of other
// households are reported as missing.
func (h *ChoreHandler) load(w http.ResponseWriter, r *http.Request, now time.Time) (*model.Chore, auth.AuthContext, bool) {
	ac, _ := auth.FromContext(r.Context())
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return nil, ac, false
	}
	c, err := h.choreStore.GetByID(id)
	if err != nil {
		serverError(w, r, h.logger, "get chore", err)
		return nil, ac, false
	}
	if c == nil || !ac.InHousehold() || c.HouseholdID != ac.HouseholdID {
		writeError(w, http.StatusNotFound, "Chore not found")
		return nil, ac, false
	}
	return h.refresh(c, now), ac, true
}

// writeChoreError maps store precondition failures to responses.
func (h *ChoreHandler) writeChoreError(w http.ResponseWriter, r *http.Request, op string, err error) {
	switch {
	case errors.Is(err, store.ErrChoreNotAssigned):
		writeError(w, http.StatusBadRequest, "Chore must be assigned before it can be completed")
	case errors.Is(err, store.ErrChoreNotPending):
		writeError(w, http.StatusBadRequest, "Chore is already completed")
	case errors.Is(err, store.ErrChoreNotCompleted):
		writeError(w, http.StatusBadRequest, "Chore must be completed first")
	case errors.Is(err, store.ErrChoreModified):
		writeError(w, http.StatusConflict, "Chore was changed by someone else, please reload")
	default:
		serverError(w, r, h.logger, op, err)
	}
}

// List returns every chore of a parent's household, or a child's own chores.
func (h *ChoreHandler) List(w http.ResponseWriter, r *http.Request) {
	ac, _ := auth.FromContext(r.Context())
	now := h.now()

	if q := r.URL.Query().Get("householdId"); q != "" {
		id, err := strconv.ParseInt(q, 10, 64)
		if err != nil || id != ac.HouseholdID {
			writeError(w, http.StatusNotFound, "Household not found")
			return
		}
	}

	var chores []model.Chore
	var err error
	switch {
	case ac.IsChild():
		chores, err = h.choreStore.ListByAssignee(ac.UserID)
	case ac.HouseholdID != 0:
		chores, err = h.choreStore.ListByHousehold(ac.HouseholdID)
	}
	if err != nil {
		serverError(w, r, h.logger, "list chores", err)
		return
	}
	writeJSON(w, http.StatusOK, h.refreshAll(chores, now))
}

func (h *ChoreHandler) Get(w http.ResponseWriter, r *http.Request) {
	c, ac, ok := h.load(w, r, h.now())
	if !ok {
		return
	}
	if ac.IsChild() && !ac.Owns(c.AssignedTo) {
		writeError(w, http.StatusNotFound, "Chore not found")
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// Assigned returns the open chores of one child.
func (h *ChoreHandler) Assigned(w http.ResponseWriter, r *http.Request) {
	ac, _ := auth.FromContext(r.Context())
	childID, err := parsePathID(r, "childId")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid childId")
		return
	}

	if ac.IsChild() {
		if childID != ac.UserID {
			writeError(w, http.StatusForbidden, "Not authorized to view these chores")
			return
		}
	} else {
		member, err := h.householdStore.IsMember(ac.HouseholdID, childID)
		if err != nil {
			serverError(w, r, h.logger, "check child membership", err)
			return
		}
		if !member {
			writeError(w, http.StatusForbidden, "Not authorized to view these chores")
			return
		}
	}

	chores, err := h.choreStore.ListByAssignee(childID)
	if err != nil {
		serverError(w, r, h.logger, "list assigned chores", err)
		return
	}
	open := []model.Chore{}
	for _, c := range h.refreshAll(chores, h.now()) {
		if c.Status == model.ChoreStatusPending {
			open = append(open, c)
		}
	}
	writeJSON(w, http.StatusOK, open)
}

func (h *ChoreHandler) Create(w http.ResponseWriter, r *http.Request) {
	ac, _ := auth.FromContext(r.Context())
	now := h.now()
	if !ac.InHousehold() {
		writeError(w, http.StatusBadRequest, "You must belong to a household to create chores")
		return
	}

	f, ok := h.input(w, r, now)
	if !ok {
		return
	}
	if f.AssignedTo != nil && !h.checkAssignee(w, r, ac.HouseholdID, *f.AssignedTo) {
		return
	}

	c, err := h.choreStore.Create(ac.HouseholdID, ac.UserID, f, now)
	if err != nil {
		serverError(w, r, h.logger, "create chore", err)
		return
	}

	if c.AssignedTo != nil {
		h.notifyAssigned(r, c)
	}
	h.broadcast(ac.HouseholdID, "created", c, nil)
	writeJSON(w, http.StatusCreated, h.refresh(c, now))
}

// Update edits a chore. Only its creator may do so.
func (h *ChoreHandler) Update(w http.ResponseWriter, r *http.Request) {
	now := h.now()
	existing, ac, ok := h.load(w, r, now)
	if !ok {
		return
	}
	if existing.CreatedBy != ac.UserID {
		writeError(w, http.StatusForbidden, "Not authorized to edit this chore")
		return
	}

	f, ok := h.input(w, r, now)
	if !ok {
		return
	}
	if f.AssignedTo != nil && !h.checkAssignee(w, r, ac.HouseholdID, *f.AssignedTo) {
		return
	}

	c, err := h.choreStore.Update(existing.ID, f, now)
	if err != nil {
		h.writeChoreError(w, r, "update chore", err)
		return
	}
	if c == nil {
		writeError(w, http.StatusNotFound, "Chore not found")
		return
	}

	if c.AssignedTo != nil && !existing.IsAssignedTo(*c.AssignedTo) {
		h.notifyAssigned(r, c)
	}
	h.broadcast(ac.HouseholdID, "updated", c, nil)
	writeJSON(w, http.StatusOK, h.refresh(c, now))
}

func (h *ChoreHandler) Delete(w http.ResponseWriter, r *http.Request) {
	c, ac, ok := h.load(w, r, h.now())
	if !ok {
		return
	}
	if c.CreatedBy != ac.UserID {
		writeError(w, http.StatusForbidden, "Not authorized to delete this chore")
		return
	}

	if err := h.choreStore.Delete(c.ID); err != nil {
		serverError(w, r, h.logger, "delete chore", err)
		return
	}

	h.broadcast(ac.HouseholdID, "deleted", c, nil)
	writeJSON(w, http.StatusOK, map[string]string{"message": "Chore deleted successfully"})
}

// Assign sets or clears the assignee. A JSON null or missing assignedTo
// unassigns the chore.
func (h *ChoreHandler) Assign(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AssignedTo *int64 `json:"assignedTo"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	h.setAssignee(w, r, req.AssignedTo)
}

func (h *ChoreHandler) Unassign(w http.ResponseWriter, r *http.Request) {
	h.setAssignee(w, r, nil)
}

func (h *ChoreHandler) setAssignee(w http.ResponseWriter, r *http.Request, userID *int64) {
	now := h.now()
	existing, ac, ok := h.load(w, r, now)
	if !ok {
		return
	}
	if userID != nil && !h.checkAssignee(w, r, ac.HouseholdID, *userID) {
		return
	}

	c, err := h.choreStore.SetAssignee(existing.ID, userID)
	if err != nil {
		serverError(w, r, h.logger, "assign chore", err)
		return
	}
	if c == nil {
		writeError(w, http.StatusNotFound, "Chore not found")
		return
	}

	action := "unassigned"
	if userID != nil {
		action = "assigned"
		if !existing.IsAssignedTo(*userID) {
			h.notifyAssigned(r, c)
		}
	}
	h.broadcast(ac.HouseholdID, action, c, map[string]any{"assignedTo": c.AssignedTo})
	writeJSON(w, http.StatusOK, h.refresh(c, now))
}

// Lock toggles whether rotation skips the chore.
func (h *ChoreHandler) Lock(w http.ResponseWriter, r *http.Request) {
	now := h.now()
	existing, ac, ok := h.load(w, r, now)
	if !ok {
		return
	}

	var req struct {
		IsLocked *bool `json:"isLocked"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.IsLocked == nil {
		writeError(w, http.StatusBadRequest, "isLocked is required")
		return
	}

	c, err := h.choreStore.SetLocked(existing.ID, *req.IsLocked)
	if err != nil {
		serverError(w, r, h.logger, "lock chore", err)
		return
	}
	if c == nil {
		writeError(w, http.StatusNotFound, "Chore not found")
		return
	}

	h.broadcast(ac.HouseholdID, "updated", c, nil)
	writeJSON(w, http.StatusOK, h.refresh(c, now))
}

// Complete marks a chore done and credits its points. The assignee or any
// parent may complete it.
func (h *ChoreHandler) Complete(w http.ResponseWriter, r *http.Request) {
	now := h.now()
	existing, ac, ok := h.load(w, r, now)
	if !ok {
		return
	}
	if !ac.IsParent() && !ac.Owns(existing.AssignedTo) {
		writeError(w, http.StatusForbidden, "Not authorized to complete this chore")
		return
	}

	c, err := h.choreStore.Complete(existing.ID, now)
	if err != nil {
		h.writeChoreError(w, r, "complete chore", err)
		return
	}
	if c == nil {
		writeError(w, http.StatusNotFound, "Chore not found")
		return
	}

	// c is re-read after commit; an unassign in between clears the completion
	// columns, so fall back to the assignee seen before the write.
	completer := c.CompletedBy
	if completer == nil {
		completer = existing.AssignedTo
	}
	var completerID int64
	if completer != nil {
		completerID = *completer
	}
	h.logger.Info("chore completed", "chore_id", c.ID, "completed_by", completerID, "points", c.AwardedPoints)
	h.notifyCompleted(r, c, completer)
	h.broadcast(ac.HouseholdID, "completed", c, map[string]any{"completedBy": completer, "points": c.AwardedPoints})
	writeJSON(w, http.StatusOK, h.refresh(c, now))
}

// Verify confirms a completed chore. Points were credited on completion.
func (h *ChoreHandler) Verify(w http.ResponseWriter, r *http.Request) {
	now := h.now()
	existing, ac, ok := h.load(w, r, now)
	if !ok {
		return
	}

	c, err := h.choreStore.Verify(existing.ID)
	if err != nil {
		h.writeChoreError(w, r, "verify chore", err)
		return
	}
	if c == nil {
		writeError(w, http.StatusNotFound, "Chore not found")
		return
	}

	h.broadcast(ac.HouseholdID, "verified", c, nil)
	writeJSON(w, http.StatusOK, h.refresh(c, now))
}

// Undo reverts a completion and takes the points back.
func (h *ChoreHandler) Undo(w http.ResponseWriter, r *http.Request) {
	now := h.now()
	existing, ac, ok := h.load(w, r, now)
	if !ok {
		return
	}
	if !ac.IsParent() && !ac.Owns(existing.AssignedTo) {
		writeError(w, http.StatusForbidden, "Not authorized to update this chore")
		return
	}

	c, err := h.choreStore.Undo(existing.ID, now)
	if err != nil {
		h.writeChoreError(w, r, "undo chore", err)
		return
	}
	if c == nil {
		writeError(w, http.StatusNotFound, "Chore not found")
		return
	}

	h.broadcast(ac.HouseholdID, "uncompleted", c, nil)
	writeJSON(w, http.StatusOK, h.refresh(c, now))
}

// Rotate hands every assigned, unlocked chore to the next household member.
func (h *ChoreHandler) Rotate(w http.ResponseWriter, r *http.Request) {
	ac, _ := auth.FromContext(r.Context())
	now := h.now()
	if !ac.InHousehold() {
		writeError(w, http.StatusBadRequest, "You must belong to a household to rotate chores")
		return
	}

	members, err := h.householdStore.RotationOrder(ac.HouseholdID)
	if err != nil {
		serverError(w, r, h.logger, "rotation order", err)
		return
	}
	if len(members) == 0 {
		writeError(w, http.StatusBadRequest, "No household members to rotate chores between")
		return
	}

	chores, err := h.choreStore.ListByHousehold(ac.HouseholdID)
	if err != nil {
		serverError(w, r, h.logger, "list chores", err)
		return
	}
	moves := chore.PlanRotation(members, chores)
	if err := h.choreStore.Rotate(moves); err != nil {
		h.writeChoreError(w, r, "rotate chores", err)
		return
	}

	chores, err = h.choreStore.ListByHousehold(ac.HouseholdID)
	if err != nil {
		serverError(w, r, h.logger, "list chores", err)
		return
	}

	h.logger.Info("chores rotated", "household_id", ac.HouseholdID, "moved", len(moves))
	h.broadcast(ac.HouseholdID, "rotated", nil, map[string]any{"moved": len(moves)})
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Chores rotated successfully",
		"moved":   len(moves),
		"chores":  h.refreshAll(chores, now),
	})
}

func (h *ChoreHandler) notifyAssigned(r *http.Request, c *model.Chore) {
	if c.AssignedTo == nil {
		return
	}
	u, err := h.userStore.GetByID(*c.AssignedTo)
	if err != nil || u == nil || u.Email == nil {
		return
	}
	mailLogged(h.logger, "chore_assigned", func() error {
		return h.mailer.SendChoreAssigned(r.Context(), *u.Email, u.DisplayName(), c.Title, c.Points, c.DueDate)
	})
}

func (h *ChoreHandler) notifyCompleted(r *http.Request, c *model.Chore, completer *int64) {
	creator, err := h.userStore.GetByID(c.CreatedBy)
	if err != nil || creator == nil || creator.Email == nil {
		return
	}
	completedBy := "Someone"
	if completer != nil {
		if u, err := h.userStore.GetByID(*completer); err == nil && u != nil {
			completedBy = u.DisplayName()
		}
	}
	mailLogged(h.logger, "chore_completed", func() error {
		return h.mailer.SendChoreCompleted(r.Context(), *creator.Email, creator.DisplayName(), completedBy, c.Title)
	})
}
