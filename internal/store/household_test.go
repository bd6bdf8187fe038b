package store

import (
	"errors"
	"testing"
	"time"

	"github.com/dukerupert/chorechamp/internal/model"
)

func setupHouseholdTestDB(t *testing.T) (*HouseholdStore, *UserStore) {
	t.Helper()
	db := setupTestDB(t)
	return NewHouseholdStore(db), NewUserStore(db)
}

func TestHouseholdCreate(t *testing.T) {
	hs, us := setupHouseholdTestDB(t)
	owner := createParent(t, us, "alice")

	h, err := hs.Create("The Smiths", owner.ID)
	if err != nil {
		t.Fatalf("create household: %v", err)
	}
	if h.Name != "The Smiths" {
		t.Errorf("name = %q, want %q", h.Name, "The Smiths")
	}
	if h.CreatedBy != owner.ID {
		t.Errorf("created by = %d, want %d", h.CreatedBy, owner.ID)
	}
	if len(h.Parents) != 1 {
		t.Fatalf("parents = %d, want 1", len(h.Parents))
	}
	p := h.Parents[0]
	if p.UserID != owner.ID || p.Role != model.ParentRoleOwner || p.Status != model.ParentStatusActive {
		t.Errorf("owner entry = %+v", p)
	}
	if len(h.Children) != 0 {
		t.Errorf("children = %d, want 0", len(h.Children))
	}

	u, err := us.GetByID(owner.ID)
	if err != nil {
		t.Fatalf("get owner: %v", err)
	}
	if u.HouseholdID == nil || *u.HouseholdID != h.ID {
		t.Errorf("owner household = %v, want %d", u.HouseholdID, h.ID)
	}
}

func TestHouseholdGetByIDNotFound(t *testing.T) {
	hs, _ := setupHouseholdTestDB(t)

	h, err := hs.GetByID(999)
	if err != nil {
		t.Fatalf("get by id: %v", err)
	}
	if h != nil {
		t.Error("expected nil for missing household")
	}
}

func TestHouseholdForUser(t *testing.T) {
	hs, us := setupHouseholdTestDB(t)
	owner := createParent(t, us, "alice")
	child := createChild(t, us, owner.ID, "bobby", 0)
	loner := createParent(t, us, "zoe")

	h, err := hs.Create("Home", owner.ID)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := hs.AddChildren(h.ID, []int64{child.ID}); err != nil {
		t.Fatalf("add children: %v", err)
	}

	for _, id := range []int64{owner.ID, child.ID} {
		got, err := hs.GetForUser(id)
		if err != nil {
			t.Fatalf("get for user %d: %v", id, err)
		}
		if got == nil || got.ID != h.ID {
			t.Errorf("household for user %d = %+v", id, got)
		}
	}

	got, err := hs.GetForUser(loner.ID)
	if err != nil {
		t.Fatalf("get for loner: %v", err)
	}
	if got != nil {
		t.Error("expected no household for loner")
	}

	isParent, err := hs.IsParentOfAny(owner.ID)
	if err != nil {
		t.Fatalf("is parent: %v", err)
	}
	if !isParent {
		t.Error("expected owner to be a parent of a household")
	}
}

func TestHouseholdUpdateName(t *testing.T) {
	hs, us := setupHouseholdTestDB(t)
	owner := createParent(t, us, "alice")
	h, _ := hs.Create("Home", owner.ID)

	updated, err := hs.UpdateName(h.ID, "Casa")
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Name != "Casa" {
		t.Errorf("name = %q, want Casa", updated.Name)
	}
}

func TestHouseholdAddChildren(t *testing.T) {
	hs, us := setupHouseholdTestDB(t)
	owner := createParent(t, us, "alice")
	a := createChild(t, us, owner.ID, "amy", 2)
	b := createChild(t, us, owner.ID, "ben", 1)
	h, _ := hs.Create("Home", owner.ID)

	updated, err := hs.AddChildren(h.ID, []int64{a.ID, b.ID})
	if err != nil {
		t.Fatalf("add children: %v", err)
	}
	if len(updated.Children) != 2 {
		t.Fatalf("children = %d, want 2", len(updated.Children))
	}
	if updated.Children[0].ID != b.ID {
		t.Errorf("first child = %d, want %d (rotation order)", updated.Children[0].ID, b.ID)
	}
	if !updated.HasChild(a.ID) {
		t.Error("expected amy in household")
	}

	available, err := us.ListAvailableChildren()
	if err != nil {
		t.Fatalf("available children: %v", err)
	}
	if len(available) != 0 {
		t.Errorf("available = %d, want 0", len(available))
	}
}

func TestHouseholdAddChildAlreadyInHousehold(t *testing.T) {
	hs, us := setupHouseholdTestDB(t)
	alice := createParent(t, us, "alice")
	zoe := createParent(t, us, "zoe")
	kid := createChild(t, us, alice.ID, "kid", 0)
	other := createChild(t, us, zoe.ID, "other", 0)

	h1, _ := hs.Create("One", alice.ID)
	h2, _ := hs.Create("Two", zoe.ID)
	if _, err := hs.AddChildren(h1.ID, []int64{kid.ID}); err != nil {
		t.Fatalf("add to first: %v", err)
	}

	_, err := hs.AddChildren(h2.ID, []int64{other.ID, kid.ID})
	if !errors.Is(err, ErrChildInHousehold) {
		t.Fatalf("err = %v, want ErrChildInHousehold", err)
	}

	// The batch is all or nothing.
	h, _ := hs.GetByID(h2.ID)
	if len(h.Children) != 0 {
		t.Errorf("second household children = %d, want 0", len(h.Children))
	}
}

func TestHouseholdRemoveChild(t *testing.T) {
	hs, us := setupHouseholdTestDB(t)
	owner := createParent(t, us, "alice")
	kid := createChild(t, us, owner.ID, "kid", 0)
	h, _ := hs.Create("Home", owner.ID)
	hs.AddChildren(h.ID, []int64{kid.ID})

	ok, err := hs.RemoveChild(h.ID, kid.ID)
	if err != nil {
		t.Fatalf("remove child: %v", err)
	}
	if !ok {
		t.Fatal("expected child to be removed")
	}
	u, _ := us.GetByID(kid.ID)
	if u.HouseholdID != nil {
		t.Errorf("child household = %d, want nil", *u.HouseholdID)
	}

	ok, err = hs.RemoveChild(h.ID, kid.ID)
	if err != nil {
		t.Fatalf("remove again: %v", err)
	}
	if ok {
		t.Error("expected second removal to report false")
	}
}

func TestHouseholdInviteFlow(t *testing.T) {
	hs, us := setupHouseholdTestDB(t)
	owner := createParent(t, us, "alice")
	bob := createParent(t, us, "bob")
	h, _ := hs.Create("Home", owner.ID)

	inv, err := hs.CreateInvite(h.ID, "bob@example.com", time.Now().Add(48*time.Hour))
	if err != nil {
		t.Fatalf("create invite: %v", err)
	}
	if len(inv.Token) != 64 {
		t.Errorf("token length = %d, want 64", len(inv.Token))
	}
	if inv.Status != model.InviteStatusPending || inv.Role != model.ParentRoleCoParent {
		t.Errorf("invite = %+v", inv)
	}

	pending, err := hs.PendingInvite(h.ID, "bob@example.com")
	if err != nil || pending == nil || pending.ID != inv.ID {
		t.Fatalf("pending invite = %+v, %v", pending, err)
	}

	byToken, err := hs.GetInviteByToken(inv.Token)
	if err != nil || byToken == nil {
		t.Fatalf("get by token = %+v, %v", byToken, err)
	}

	joined, err := hs.AcceptInvite(inv.ID, bob.ID)
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	p := joined.Parent(bob.ID)
	if p == nil || p.Role != model.ParentRoleCoParent || p.Status != model.ParentStatusActive {
		t.Fatalf("co-parent entry = %+v", p)
	}
	if joined.Parents[0].UserID != owner.ID {
		t.Error("expected owner listed first")
	}

	if _, err := hs.AcceptInvite(inv.ID, bob.ID); !errors.Is(err, ErrAlreadyMember) {
		t.Errorf("second accept err = %v, want ErrAlreadyMember", err)
	}
}

func TestHouseholdAcceptConsumedInvite(t *testing.T) {
	hs, us := setupHouseholdTestDB(t)
	owner := createParent(t, us, "alice")
	bob := createParent(t, us, "bob")
	carol := createParent(t, us, "carol")
	h, _ := hs.Create("Home", owner.ID)

	inv, _ := hs.CreateInvite(h.ID, "bob@example.com", time.Now().Add(time.Hour))
	if _, err := hs.AcceptInvite(inv.ID, bob.ID); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if _, err := hs.AcceptInvite(inv.ID, carol.ID); !errors.Is(err, ErrInviteNotPending) {
		t.Errorf("err = %v, want ErrInviteNotPending", err)
	}
}

func TestHouseholdMarkInviteExpired(t *testing.T) {
	hs, us := setupHouseholdTestDB(t)
	owner := createParent(t, us, "alice")
	h, _ := hs.Create("Home", owner.ID)

	inv, _ := hs.CreateInvite(h.ID, "bob@example.com", time.Now().Add(-time.Hour))
	if !inv.Expired(time.Now()) {
		t.Error("expected invite to be expired")
	}
	if err := hs.MarkInviteExpired(inv.ID); err != nil {
		t.Fatalf("mark expired: %v", err)
	}
	got, _ := hs.GetInviteByToken(inv.Token)
	if got.Status != model.InviteStatusExpired {
		t.Errorf("status = %q, want expired", got.Status)
	}
	pending, _ := hs.PendingInvite(h.ID, "bob@example.com")
	if pending != nil {
		t.Error("expected no pending invite")
	}
}

func TestHouseholdRemoveParent(t *testing.T) {
	hs, us := setupHouseholdTestDB(t)
	owner := createParent(t, us, "alice")
	bob := createParent(t, us, "bob")
	h, _ := hs.Create("Home", owner.ID)
	inv, _ := hs.CreateInvite(h.ID, "bob@example.com", time.Now().Add(time.Hour))
	hs.AcceptInvite(inv.ID, bob.ID)

	ok, err := hs.RemoveParent(h.ID, owner.ID)
	if err != nil {
		t.Fatalf("remove owner: %v", err)
	}
	if ok {
		t.Error("owner must never be removed")
	}

	ok, err = hs.RemoveParent(h.ID, bob.ID)
	if err != nil {
		t.Fatalf("remove co-parent: %v", err)
	}
	if !ok {
		t.Error("expected co-parent removal")
	}
	u, _ := us.GetByID(bob.ID)
	if u.HouseholdID != nil {
		t.Error("expected co-parent household cleared")
	}
}

func TestHouseholdRotationOrder(t *testing.T) {
	hs, us := setupHouseholdTestDB(t)
	owner := createParent(t, us, "alice")
	bob := createParent(t, us, "bob")
	late := createChild(t, us, owner.ID, "late", 5)
	early := createChild(t, us, owner.ID, "early", 1)
	h, _ := hs.Create("Home", owner.ID)
	inv, _ := hs.CreateInvite(h.ID, "bob@example.com", time.Now().Add(time.Hour))
	hs.AcceptInvite(inv.ID, bob.ID)
	hs.AddChildren(h.ID, []int64{late.ID, early.ID})

	order, err := hs.RotationOrder(h.ID)
	if err != nil {
		t.Fatalf("rotation order: %v", err)
	}
	want := []int64{owner.ID, bob.ID, early.ID, late.ID}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}

	member, err := hs.IsMember(h.ID, early.ID)
	if err != nil || !member {
		t.Errorf("is member = %v, %v", member, err)
	}
}

func TestHouseholdListForParent(t *testing.T) {
	hs, us := setupHouseholdTestDB(t)
	owner := createParent(t, us, "alice")
	coParent := createParent(t, us, "carol")
	stranger := createParent(t, us, "dave")

	hh, err := hs.Create("Home", owner.ID)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	invite, err := hs.CreateInvite(hh.ID, "carol@example.com", time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("invite: %v", err)
	}
	if _, err := hs.AcceptInvite(invite.ID, coParent.ID); err != nil {
		t.Fatalf("accept: %v", err)
	}

	for _, u := range []int64{owner.ID, coParent.ID} {
		got, err := hs.ListForParent(u)
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if len(got) != 1 || got[0].ID != hh.ID || len(got[0].Parents) != 2 {
			t.Errorf("user %d households = %+v", u, got)
		}
	}

	got, err := hs.ListForParent(stranger.ID)
	if err != nil {
		t.Fatalf("list stranger: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("stranger households = %d, want 0", len(got))
	}
}
