package store

import (
	"testing"

	"github.com/dje115/choreblimey-sub001/internal/model"
)

func TestMemberCreateAndGet(t *testing.T) {
	db := testDB(t)
	family, _ := NewFamilyStore(db).Create("Test")
	members := NewMemberStore(db)

	m, err := members.Create(family.ID, "Alice", model.RoleChild, "#10B981", "🦊")
	if err != nil {
		t.Fatalf("create member: %v", err)
	}
	if m.Name != "Alice" || m.Role != model.RoleChild || !m.Active {
		t.Errorf("member = %+v", m)
	}

	got, err := members.GetByID(family.ID, m.ID)
	if err != nil {
		t.Fatalf("get member: %v", err)
	}
	if got == nil || got.ID != m.ID {
		t.Errorf("got %+v", got)
	}
}

func TestMemberGetIsFamilyScoped(t *testing.T) {
	db := testDB(t)
	families := NewFamilyStore(db)
	ours, _ := families.Create("Ours")
	theirs, _ := families.Create("Theirs")
	members := NewMemberStore(db)

	m, _ := members.Create(ours.ID, "Alice", model.RoleChild, "#fff", "🦊")

	got, err := members.GetByID(theirs.ID, m.ID)
	if err != nil {
		t.Fatalf("get member: %v", err)
	}
	if got != nil {
		t.Error("member leaked across families")
	}
}

func TestMemberNameExists(t *testing.T) {
	db := testDB(t)
	family, _ := NewFamilyStore(db).Create("Test")
	members := NewMemberStore(db)

	m, _ := members.Create(family.ID, "Alice", model.RoleChild, "#fff", "🦊")

	exists, err := members.NameExists(family.ID, "Alice", 0)
	if err != nil {
		t.Fatalf("name exists: %v", err)
	}
	if !exists {
		t.Error("expected name to be taken")
	}

	// The member itself is excluded so renames to the same name pass.
	exists, err = members.NameExists(family.ID, "Alice", m.ID)
	if err != nil {
		t.Fatalf("name exists: %v", err)
	}
	if exists {
		t.Error("own name should not count as a conflict")
	}
}

func TestListActiveChildren(t *testing.T) {
	db := testDB(t)
	family, _ := NewFamilyStore(db).Create("Test")
	members := NewMemberStore(db)

	members.Create(family.ID, "Dad", model.RoleParent, "#fff", "🙂")
	alice, _ := members.Create(family.ID, "Alice", model.RoleChild, "#fff", "🦊")
	bob, _ := members.Create(family.ID, "Bob", model.RoleChild, "#fff", "🐸")

	if _, err := members.Update(family.ID, bob.ID, bob.Name, bob.Color, bob.AvatarEmoji, false); err != nil {
		t.Fatalf("deactivate bob: %v", err)
	}

	children, err := members.ListActiveChildren(family.ID)
	if err != nil {
		t.Fatalf("list children: %v", err)
	}
	if len(children) != 1 || children[0].ID != alice.ID {
		t.Errorf("children = %+v, want just Alice", children)
	}
}

func TestPINLifecycle(t *testing.T) {
	db := testDB(t)
	family, _ := NewFamilyStore(db).Create("Test")
	members := NewMemberStore(db)

	m, _ := members.Create(family.ID, "Alice", model.RoleChild, "#fff", "🦊")

	hash, err := members.GetPINHash(family.ID, m.ID)
	if err != nil {
		t.Fatalf("get pin hash: %v", err)
	}
	if hash != "" {
		t.Errorf("new member should have no pin, got %q", hash)
	}

	if err := members.SetPIN(family.ID, m.ID, "bcrypt-hash-here"); err != nil {
		t.Fatalf("set pin: %v", err)
	}
	hash, _ = members.GetPINHash(family.ID, m.ID)
	if hash != "bcrypt-hash-here" {
		t.Errorf("hash = %q", hash)
	}

	if err := members.ClearPIN(family.ID, m.ID); err != nil {
		t.Fatalf("clear pin: %v", err)
	}
	hash, _ = members.GetPINHash(family.ID, m.ID)
	if hash != "" {
		t.Errorf("hash after clear = %q", hash)
	}
}
