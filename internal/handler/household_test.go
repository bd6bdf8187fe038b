package handler

import (
	"net/http"
	"slices"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/dukerupert/chorechamp/internal/model"
)

func TestHouseholdCreate(t *testing.T) {
	e := newTestEnv(t)
	alice := e.parent(t, "alice")

	rec := call(e.householdH.Create, e.as(t, alice), "POST", "/api/household", map[string]string{"name": " "})
	expectStatus(t, rec, http.StatusBadRequest)

	rec = call(e.householdH.Create, e.as(t, alice), "POST", "/api/household", map[string]string{"name": "The Smiths"})
	expectStatus(t, rec, http.StatusCreated)
	hh := decode[model.Household](t, rec)
	if hh.Name != "The Smiths" || hh.CreatedBy != alice.ID {
		t.Errorf("household = %+v", hh)
	}
	if p := hh.Parent(alice.ID); p == nil || p.Role != model.ParentRoleOwner || p.Status != model.ParentStatusActive {
		t.Errorf("owner entry = %+v", p)
	}

	rec = call(e.householdH.Create, e.as(t, alice), "POST", "/api/household", map[string]string{"name": "Second"})
	expectStatus(t, rec, http.StatusBadRequest)
}

func TestHouseholdGet(t *testing.T) {
	e := newTestEnv(t)
	alice := e.parent(t, "alice")
	bobby := e.child(t, alice.ID, "bobby")
	hh := e.home(t, alice, bobby)
	if _, err := e.households.CreateInvite(hh.ID, "carol@example.com", testNow.Add(time.Hour)); err != nil {
		t.Fatalf("create invite: %v", err)
	}

	rec := call(e.householdH.Get, e.as(t, alice), "GET", "/api/household", nil)
	expectStatus(t, rec, http.StatusOK)
	if got := decode[model.Household](t, rec); len(got.Invites) != 1 || len(got.Children) != 1 {
		t.Errorf("parent view: %d invites, %d children", len(got.Invites), len(got.Children))
	}

	rec = call(e.householdH.Get, e.as(t, bobby), "GET", "/api/household", nil)
	expectStatus(t, rec, http.StatusOK)
	if got := decode[model.Household](t, rec); len(got.Invites) != 0 {
		t.Errorf("child sees %d invites, want none", len(got.Invites))
	}

	lone := e.parent(t, "lone")
	rec = call(e.householdH.Get, e.as(t, lone), "GET", "/api/household", nil)
	expectStatus(t, rec, http.StatusNotFound)
}

func TestHouseholdUpdate(t *testing.T) {
	e := newTestEnv(t)
	alice := e.parent(t, "alice")
	e.home(t, alice)

	rec := call(e.householdH.Update, e.as(t, alice), "PUT", "/api/household", map[string]string{"name": "Renamed"})
	expectStatus(t, rec, http.StatusOK)
	if got := decode[model.Household](t, rec); got.Name != "Renamed" {
		t.Errorf("name = %q, want Renamed", got.Name)
	}
	if !slices.Contains(e.hub.actions(), "household:updated") {
		t.Errorf("broadcasts = %v", e.hub.actions())
	}
}

func TestHouseholdInvite(t *testing.T) {
	e := newTestEnv(t)
	alice := e.parent(t, "alice")
	e.home(t, alice)

	rec := call(e.householdH.Invite, e.as(t, alice), "POST", "/", map[string]string{"email": "not-an-email"})
	expectStatus(t, rec, http.StatusBadRequest)

	rec = call(e.householdH.Invite, e.as(t, alice), "POST", "/", map[string]string{"email": "Carol@Example.com"})
	expectStatus(t, rec, http.StatusOK)
	if sent := e.mailer.Sent(); len(sent) != 1 || sent[0] != "invite:carol@example.com" {
		t.Errorf("sent = %v", sent)
	}

	rec = call(e.householdH.Invite, e.as(t, alice), "POST", "/", map[string]string{"email": "carol@example.com"})
	expectStatus(t, rec, http.StatusBadRequest)
	if got := errorMessage(t, rec); got != "Invitation already sent" {
		t.Errorf("error = %q", got)
	}
}

func TestHouseholdInviteMailFailureReturnsLink(t *testing.T) {
	e := newTestEnv(t)
	e.mailer.err = errMailDown
	alice := e.parent(t, "alice")
	hh := e.home(t, alice)

	rec := call(e.householdH.Invite, e.as(t, alice), "POST", "/", map[string]string{"email": "carol@example.com"})
	expectStatus(t, rec, http.StatusOK)
	body := decode[map[string]string](t, rec)
	if !strings.HasPrefix(body["inviteUrl"], "http://app.test/join-household/") {
		t.Errorf("inviteUrl = %q", body["inviteUrl"])
	}

	invite, err := e.households.PendingInvite(hh.ID, "carol@example.com")
	if err != nil || invite == nil {
		t.Fatalf("pending invite: %v, %v", invite, err)
	}
	if !strings.HasSuffix(body["inviteUrl"], invite.Token) {
		t.Errorf("inviteUrl %q does not carry the invite token", body["inviteUrl"])
	}
}

func TestHouseholdInviteReplacesExpired(t *testing.T) {
	e := newTestEnv(t)
	alice := e.parent(t, "alice")
	hh := e.home(t, alice)
	old, err := e.households.CreateInvite(hh.ID, "carol@example.com", testNow.Add(-time.Hour))
	if err != nil {
		t.Fatalf("create invite: %v", err)
	}

	rec := call(e.householdH.Invite, e.as(t, alice), "POST", "/", map[string]string{"email": "carol@example.com"})
	expectStatus(t, rec, http.StatusOK)

	stale, err := e.households.GetInviteByToken(old.Token)
	if err != nil {
		t.Fatalf("get invite: %v", err)
	}
	if stale.Status != model.InviteStatusExpired {
		t.Errorf("old invite status = %q, want expired", stale.Status)
	}
}

func TestHouseholdJoin(t *testing.T) {
	e := newTestEnv(t)
	alice := e.parent(t, "alice")
	hh := e.home(t, alice)
	carol := e.parent(t, "carol")
	dave := e.parent(t, "dave")
	invite, err := e.households.CreateInvite(hh.ID, "carol@example.com", testNow.Add(inviteTTL))
	if err != nil {
		t.Fatalf("create invite: %v", err)
	}

	rec := call(e.householdH.Join, e.as(t, dave), "POST", "/", nil, "token", invite.Token)
	expectStatus(t, rec, http.StatusForbidden)

	rec = call(e.householdH.Join, e.as(t, carol), "POST", "/", nil, "token", "no-such-token")
	expectStatus(t, rec, http.StatusNotFound)

	rec = call(e.householdH.Join, e.as(t, carol), "POST", "/", nil, "token", invite.Token)
	expectStatus(t, rec, http.StatusOK)
	joined := decode[model.Household](t, rec)
	p := joined.Parent(carol.ID)
	if p == nil || p.Role != model.ParentRoleCoParent || p.Status != model.ParentStatusActive {
		t.Errorf("co-parent entry = %+v", p)
	}
	if ac := e.as(t, carol); ac.HouseholdID != hh.ID {
		t.Errorf("carol household = %d, want %d", ac.HouseholdID, hh.ID)
	}

	rec = call(e.householdH.Join, e.as(t, carol), "POST", "/", nil, "token", invite.Token)
	expectStatus(t, rec, http.StatusNotFound)
}

func TestHouseholdJoinExpired(t *testing.T) {
	e := newTestEnv(t)
	alice := e.parent(t, "alice")
	hh := e.home(t, alice)
	carol := e.parent(t, "carol")
	invite, err := e.households.CreateInvite(hh.ID, "carol@example.com", testNow.Add(inviteTTL))
	if err != nil {
		t.Fatalf("create invite: %v", err)
	}

	e.householdH.now = func() time.Time { return testNow.Add(inviteTTL + time.Minute) }
	rec := call(e.householdH.Join, e.as(t, carol), "POST", "/", nil, "token", invite.Token)
	expectStatus(t, rec, http.StatusNotFound)

	got, err := e.households.GetInviteByToken(invite.Token)
	if err != nil {
		t.Fatalf("get invite: %v", err)
	}
	if got.Status != model.InviteStatusExpired {
		t.Errorf("status = %q, want expired", got.Status)
	}
}

func TestHouseholdJoinAlreadyMember(t *testing.T) {
	e := newTestEnv(t)
	alice := e.parent(t, "alice")
	hh := e.home(t, alice)
	carol := e.parent(t, "carol")
	e.home(t, carol)
	invite, err := e.households.CreateInvite(hh.ID, "carol@example.com", testNow.Add(inviteTTL))
	if err != nil {
		t.Fatalf("create invite: %v", err)
	}

	rec := call(e.householdH.Join, e.as(t, carol), "POST", "/", nil, "token", invite.Token)
	expectStatus(t, rec, http.StatusBadRequest)
}

func TestHouseholdAddChildren(t *testing.T) {
	e := newTestEnv(t)
	alice := e.parent(t, "alice")
	hh := e.home(t, alice)
	bobby := e.child(t, alice.ID, "bobby")
	cara := e.child(t, alice.ID, "cara")

	rec := call(e.householdH.AvailableChildren, e.as(t, alice), "GET", "/", nil)
	expectStatus(t, rec, http.StatusOK)
	if got := decode[[]model.User](t, rec); len(got) != 2 {
		t.Errorf("available = %d, want 2", len(got))
	}

	tests := []struct {
		name string
		ids  []int64
	}{
		{"empty", nil},
		{"duplicates", []int64{bobby.ID, bobby.ID}},
		{"unknown child", []int64{bobby.ID, 9999}},
		{"parent id", []int64{alice.ID}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := call(e.householdH.AddChildren, e.as(t, alice), "POST", "/", map[string]any{"childrenIds": tt.ids})
			expectStatus(t, rec, http.StatusBadRequest)
		})
	}

	rec = call(e.householdH.AddChildren, e.as(t, alice), "POST", "/", map[string]any{"childrenIds": []int64{bobby.ID, cara.ID}})
	expectStatus(t, rec, http.StatusOK)
	if got := decode[model.Household](t, rec); len(got.Children) != 2 || got.ID != hh.ID {
		t.Errorf("household = %+v", got)
	}

	rec = call(e.householdH.AddChildren, e.as(t, alice), "POST", "/", map[string]any{"childrenIds": []int64{bobby.ID}})
	expectStatus(t, rec, http.StatusBadRequest)
	if got := errorMessage(t, rec); got != "One or more children are already in a household" {
		t.Errorf("error = %q", got)
	}
}

func TestHouseholdRemoveChild(t *testing.T) {
	e := newTestEnv(t)
	alice := e.parent(t, "alice")
	bobby := e.child(t, alice.ID, "bobby")
	e.home(t, alice, bobby)
	id := strconv.FormatInt(bobby.ID, 10)

	rec := call(e.householdH.RemoveChild, e.as(t, alice), "DELETE", "/", nil, "childId", id)
	expectStatus(t, rec, http.StatusOK)
	if got := decode[model.Household](t, rec); len(got.Children) != 0 {
		t.Errorf("children = %d, want 0", len(got.Children))
	}
	if ac := e.as(t, bobby); ac.HouseholdID != 0 {
		t.Errorf("child household = %d, want cleared", ac.HouseholdID)
	}
	if got := e.hub.disconnected(); !slices.Equal(got, []int64{bobby.ID}) {
		t.Errorf("disconnected = %v, want child's connections dropped", got)
	}

	rec = call(e.householdH.RemoveChild, e.as(t, alice), "DELETE", "/", nil, "childId", id)
	expectStatus(t, rec, http.StatusNotFound)
}

func TestHouseholdRemoveParent(t *testing.T) {
	e := newTestEnv(t)
	alice := e.parent(t, "alice")
	hh := e.home(t, alice)
	carol := e.parent(t, "carol")
	invite, err := e.households.CreateInvite(hh.ID, "carol@example.com", testNow.Add(inviteTTL))
	if err != nil {
		t.Fatalf("create invite: %v", err)
	}
	if _, err := e.households.AcceptInvite(invite.ID, carol.ID); err != nil {
		t.Fatalf("accept invite: %v", err)
	}
	aliceID := strconv.FormatInt(alice.ID, 10)
	carolID := strconv.FormatInt(carol.ID, 10)

	rec := call(e.householdH.RemoveParent, e.as(t, carol), "DELETE", "/", nil, "userId", aliceID)
	expectStatus(t, rec, http.StatusForbidden)

	rec = call(e.householdH.RemoveParent, e.as(t, alice), "DELETE", "/", nil, "userId", aliceID)
	expectStatus(t, rec, http.StatusBadRequest)
	if got := errorMessage(t, rec); got != "Household owner cannot be removed" {
		t.Errorf("error = %q", got)
	}

	rec = call(e.householdH.RemoveParent, e.as(t, alice), "DELETE", "/", nil, "userId", "9999")
	expectStatus(t, rec, http.StatusNotFound)

	rec = call(e.householdH.RemoveParent, e.as(t, alice), "DELETE", "/", nil, "userId", carolID)
	expectStatus(t, rec, http.StatusOK)
	if got := decode[model.Household](t, rec); got.Parent(carol.ID) != nil {
		t.Error("carol still listed as parent")
	}
	if got := e.hub.disconnected(); !slices.Equal(got, []int64{carol.ID}) {
		t.Errorf("disconnected = %v, want carol", got)
	}
}

func TestHouseholdAll(t *testing.T) {
	e := newTestEnv(t)
	alice := e.parent(t, "alice")
	bobby := e.child(t, alice.ID, "bobby")
	hh := e.home(t, alice, bobby)
	dave := e.parent(t, "dave")

	rec := call(e.householdH.All, e.as(t, alice), "GET", "/api/household/all", nil)
	expectStatus(t, rec, http.StatusOK)
	got := decode[[]model.Household](t, rec)
	if len(got) != 1 || got[0].ID != hh.ID {
		t.Fatalf("households = %+v", got)
	}
	if len(got[0].Children) != 1 || got[0].Children[0].ID != bobby.ID {
		t.Errorf("children = %+v", got[0].Children)
	}

	rec = call(e.householdH.All, e.as(t, dave), "GET", "/api/household/all", nil)
	expectStatus(t, rec, http.StatusNotFound)
	if msg := errorMessage(t, rec); msg != "No households found" {
		t.Errorf("error = %q", msg)
	}
}
