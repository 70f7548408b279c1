package model

import "time"

type CompletionStatus string

const (
	CompletionPending  CompletionStatus = "pending"
	CompletionApproved CompletionStatus = "approved"
	CompletionRejected CompletionStatus = "rejected"
)

// Completion records a child's claim of having done an assignment. Status
// moves exactly once from pending to a terminal state; a resubmission
// after rejection is a new record.
type Completion struct {
	ID           int64            `json:"id"`
	FamilyID     int64            `json:"family_id"`
	AssignmentID int64            `json:"assignment_id"`
	ChildID      int64            `json:"child_id"`
	Status       CompletionStatus `json:"status"`
	Note         string           `json:"note"`
	SubmittedAt  time.Time        `json:"submitted_at"`
	ProcessedAt  *time.Time       `json:"processed_at"`
	ProcessedBy  *int64           `json:"processed_by"`
}
