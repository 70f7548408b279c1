package model

import "time"

// Bid is one child's offer to do a bidding-enabled assignment for the
// given amount. Bids accumulate; they are never mutated or deleted.
type Bid struct {
	ID           int64     `json:"id"`
	FamilyID     int64     `json:"family_id"`
	AssignmentID int64     `json:"assignment_id"`
	ChildID      int64     `json:"child_id"`
	AmountPence  int       `json:"amount_pence"`
	CreatedAt    time.Time `json:"created_at"`
}
