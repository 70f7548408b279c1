package model

import "time"

// Recurrence is how often a task is expected to be done. The occurrence
// window of a completion (at most one pending per occurrence) derives
// from it.
type Recurrence string

const (
	RecurDaily  Recurrence = "daily"
	RecurWeekly Recurrence = "weekly"
	RecurOnce   Recurrence = "once"
)

func (r Recurrence) Valid() bool {
	switch r {
	case RecurDaily, RecurWeekly, RecurOnce:
		return true
	}
	return false
}

type Task struct {
	ID              int64      `json:"id"`
	FamilyID        int64      `json:"family_id"`
	Title           string     `json:"title"`
	Description     string     `json:"description"`
	BaseRewardPence int        `json:"base_reward_pence"`
	Recurrence      Recurrence `json:"recurrence"`
	ProofRequired   bool       `json:"proof_required"`
	Active          bool       `json:"active"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// Assignment links a task to a child (nil ChildID means open to any child
// in the family) and carries the bidding flag.
type Assignment struct {
	ID             int64     `json:"id"`
	FamilyID       int64     `json:"family_id"`
	TaskID         int64     `json:"task_id"`
	ChildID        *int64    `json:"child_id"`
	BiddingEnabled bool      `json:"bidding_enabled"`
	CreatedAt      time.Time `json:"created_at"`
}
