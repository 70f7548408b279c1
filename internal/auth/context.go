package auth

import (
	"context"

	"github.com/dje115/choreblimey-sub001/internal/model"
)

type contextKey struct{}

// Actor is the authenticated family member on a request.
type Actor struct {
	MemberID  int64
	FamilyID  int64
	Role      model.Role
	SessionID int64
}

func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, contextKey{}, a)
}

func FromContext(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(contextKey{}).(Actor)
	return a, ok
}

func FamilyID(ctx context.Context) int64 {
	a, ok := FromContext(ctx)
	if !ok {
		return 0
	}
	return a.FamilyID
}

func MemberID(ctx context.Context) int64 {
	a, ok := FromContext(ctx)
	if !ok {
		return 0
	}
	return a.MemberID
}

func IsParent(ctx context.Context) bool {
	a, ok := FromContext(ctx)
	if !ok {
		return false
	}
	return a.Role == model.RoleParent
}
