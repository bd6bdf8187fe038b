package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/dukerupert/chorechamp/internal/auth"
	"github.com/dukerupert/chorechamp/internal/database"
	"github.com/dukerupert/chorechamp/internal/model"
	"github.com/dukerupert/chorechamp/internal/store"
	"github.com/dukerupert/chorechamp/internal/websocket"
)

// Monday, 2 Feb 2026, 10:00 UTC.
var testNow = time.Date(2026, time.February, 2, 10, 0, 0, 0, time.UTC)

var errMailDown = errors.New("postmark unavailable")

type fakeMailer struct {
	mu   sync.Mutex
	err  error
	sent []string
}

func (m *fakeMailer) record(kind, to string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, kind+":"+to)
	return m.err
}

func (m *fakeMailer) SendInvite(_ context.Context, to, _, _ string) error {
	return m.record("invite", to)
}

func (m *fakeMailer) SendWelcome(_ context.Context, to, _ string) error {
	return m.record("welcome", to)
}

func (m *fakeMailer) SendChoreAssigned(_ context.Context, to, _, _ string, _ int, _ *time.Time) error {
	return m.record("assigned", to)
}

func (m *fakeMailer) SendChoreCompleted(_ context.Context, to, _, _, _ string) error {
	return m.record("completed", to)
}

func (m *fakeMailer) InviteURL(token string) string {
	return "http://app.test/join-household/" + token
}

func (m *fakeMailer) Sent() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.sent...)
}

type fakeHub struct {
	mu      sync.Mutex
	msgs    []websocket.Message
	dropped []int64
}

func (h *fakeHub) Disconnect(_, userID int64) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dropped = append(h.dropped, userID)
	return 1
}

func (h *fakeHub) disconnected() []int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]int64(nil), h.dropped...)
}

func (h *fakeHub) Broadcast(_ int64, msg websocket.Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.msgs = append(h.msgs, msg)
}

func (h *fakeHub) actions() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []string
	for _, m := range h.msgs {
		out = append(out, m.Entity+":"+m.Action)
	}
	return out
}

type testEnv struct {
	users      *store.UserStore
	chores     *store.ChoreStore
	households *store.HouseholdStore
	tokens     *auth.TokenIssuer
	mailer     *fakeMailer
	hub        *fakeHub
	authH      *AuthHandler
	choreH     *ChoreHandler
	householdH *HouseholdHandler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	e := &testEnv{
		users:      store.NewUserStore(db),
		chores:     store.NewChoreStore(db),
		households: store.NewHouseholdStore(db),
		tokens:     auth.NewTokenIssuer("test-secret", time.Hour),
		mailer:     &fakeMailer{},
		hub:        &fakeHub{},
	}
	e.authH = NewAuthHandler(e.users, e.tokens, e.mailer, logger)
	e.choreH = NewChoreHandler(e.chores, e.users, e.households, e.mailer, e.hub, time.UTC, logger)
	e.choreH.now = func() time.Time { return testNow }
	e.householdH = NewHouseholdHandler(e.households, e.users, e.mailer, e.hub, logger)
	e.householdH.now = func() time.Time { return testNow }
	return e
}

func (e *testEnv) parent(t *testing.T, username string) *model.User {
	t.Helper()
	u, err := e.users.Create(store.NewUser{
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: "hash",
		Role:         model.RoleParent,
	})
	if err != nil {
		t.Fatalf("create parent %s: %v", username, err)
	}
	return u
}

func (e *testEnv) child(t *testing.T, parentID int64, username string) *model.User {
	t.Helper()
	u, err := e.users.Create(store.NewUser{
		Username:     username,
		FirstName:    username,
		PasswordHash: "hash",
		Role:         model.RoleChild,
		ParentID:     &parentID,
	})
	if err != nil {
		t.Fatalf("create child %s: %v", username, err)
	}
	return u
}

// home creates a household owned by owner holding the given children.
func (e *testEnv) home(t *testing.T, owner *model.User, children ...*model.User) *model.Household {
	t.Helper()
	hh, err := e.households.Create("Home", owner.ID)
	if err != nil {
		t.Fatalf("create household: %v", err)
	}
	if len(children) > 0 {
		ids := make([]int64, len(children))
		for i, c := range children {
			ids[i] = c.ID
		}
		if hh, err = e.households.AddChildren(hh.ID, ids); err != nil {
			t.Fatalf("add children: %v", err)
		}
	}
	return hh
}

// as builds the auth context the middleware would attach for u.
func (e *testEnv) as(t *testing.T, u *model.User) auth.AuthContext {
	t.Helper()
	fresh, err := e.users.GetByID(u.ID)
	if err != nil || fresh == nil {
		t.Fatalf("reload user %d: %v", u.ID, err)
	}
	return auth.ForUser(fresh)
}

func (e *testEnv) points(t *testing.T, userID int64) int {
	t.Helper()
	u, err := e.users.GetByID(userID)
	if err != nil || u == nil {
		t.Fatalf("get user %d: %v", userID, err)
	}
	return u.Points
}

// call runs h with an optional JSON body, auth context and path values given
// as name/value pairs.
func call(h http.HandlerFunc, ac auth.AuthContext, method, target string, body any, path ...string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, target, &buf)
	for i := 0; i+1 < len(path); i += 2 {
		req.SetPathValue(path[i], path[i+1])
	}
	if ac.UserID != 0 {
		req = req.WithContext(auth.WithAuth(req.Context(), ac))
	}
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v (body %q)", err, rec.Body.String())
	}
	return v
}

func errorMessage(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	return decode[map[string]string](t, rec)["error"]
}

func expectStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("status = %d, want %d (body %s)", rec.Code, want, rec.Body.String())
	}
}
