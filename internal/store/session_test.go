package store

import (
	"testing"
	"time"

	"github.com/dje115/choreblimey-sub001/internal/model"
)

func TestSessionCreateAndGet(t *testing.T) {
	db := testDB(t)
	family, _ := NewFamilyStore(db).Create("Test")
	parent, _ := NewMemberStore(db).Create(family.ID, "Dad", model.RoleParent, "#fff", "🙂")
	sessions := NewSessionStore(db)

	sess, err := sessions.Create(family.ID, parent.ID, "token-1", time.Hour)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if sess.Token != "token-1" || sess.MemberID != parent.ID {
		t.Errorf("session = %+v", sess)
	}

	got, err := sessions.GetByToken("token-1")
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if got == nil || got.ID != sess.ID {
		t.Errorf("got %+v", got)
	}
}

func TestSessionUnknownToken(t *testing.T) {
	sessions := NewSessionStore(testDB(t))

	got, err := sessions.GetByToken("nope")
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil for unknown token, got %+v", got)
	}
}

func TestSessionExpiry(t *testing.T) {
	db := testDB(t)
	family, _ := NewFamilyStore(db).Create("Test")
	parent, _ := NewMemberStore(db).Create(family.ID, "Dad", model.RoleParent, "#fff", "🙂")
	sessions := NewSessionStore(db)

	if _, err := sessions.Create(family.ID, parent.ID, "stale", -time.Minute); err != nil {
		t.Fatalf("create session: %v", err)
	}

	got, err := sessions.GetByToken("stale")
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if got != nil {
		t.Error("expired session should not resolve")
	}

	deleted, err := sessions.DeleteExpired()
	if err != nil {
		t.Fatalf("delete expired: %v", err)
	}
	if deleted != 1 {
		t.Errorf("deleted = %d, want 1", deleted)
	}
}

func TestSessionDelete(t *testing.T) {
	db := testDB(t)
	family, _ := NewFamilyStore(db).Create("Test")
	parent, _ := NewMemberStore(db).Create(family.ID, "Dad", model.RoleParent, "#fff", "🙂")
	sessions := NewSessionStore(db)

	sessions.Create(family.ID, parent.ID, "token-1", time.Hour)

	if err := sessions.Delete("token-1"); err != nil {
		t.Fatalf("delete session: %v", err)
	}
	got, _ := sessions.GetByToken("token-1")
	if got != nil {
		t.Error("deleted session should not resolve")
	}
}
