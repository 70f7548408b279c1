package auth

import (
	"context"
	"testing"

	"github.com/dje115/choreblimey-sub001/internal/model"
)

func TestWithActorAndFromContext(t *testing.T) {
	a := Actor{
		MemberID:  1,
		FamilyID:  2,
		Role:      model.RoleParent,
		SessionID: 3,
	}

	ctx := WithActor(context.Background(), a)
	got, ok := FromContext(ctx)
	if !ok {
		t.Fatal("expected actor in context")
	}
	if got != a {
		t.Errorf("got %+v, want %+v", got, a)
	}
}

func TestEmptyContext(t *testing.T) {
	ctx := context.Background()

	if _, ok := FromContext(ctx); ok {
		t.Error("expected no actor in empty context")
	}
	if FamilyID(ctx) != 0 {
		t.Error("FamilyID should be 0 for empty context")
	}
	if MemberID(ctx) != 0 {
		t.Error("MemberID should be 0 for empty context")
	}
	if IsParent(ctx) {
		t.Error("IsParent should be false for empty context")
	}
}

func TestIsParent(t *testing.T) {
	parent := WithActor(context.Background(), Actor{Role: model.RoleParent})
	child := WithActor(context.Background(), Actor{Role: model.RoleChild})

	if !IsParent(parent) {
		t.Error("expected parent")
	}
	if IsParent(child) {
		t.Error("child is not a parent")
	}
}
