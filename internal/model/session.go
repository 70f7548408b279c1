package model

import "time"

// Session is an opaque-token login for one family member.
type Session struct {
	ID        int64     `json:"id"`
	FamilyID  int64     `json:"family_id"`
	MemberID  int64     `json:"member_id"`
	Token     string    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}
