package model

// TaskStreak tracks consecutive qualifying days for one (child, task)
// pair. LastDay is a calendar day in YYYY-MM-DD form.
type TaskStreak struct {
	ID        int64  `json:"id"`
	FamilyID  int64  `json:"family_id"`
	ChildID   int64  `json:"child_id"`
	TaskID    int64  `json:"task_id"`
	Current   int    `json:"current"`
	Best      int    `json:"best"`
	LastDay   string `json:"last_day"`
	Disrupted bool   `json:"disrupted"`
}

// FamilyStreak is the family-wide aggregate: any child's qualifying
// activity on a day counts.
type FamilyStreak struct {
	FamilyID int64  `json:"family_id"`
	Current  int    `json:"current"`
	Best     int    `json:"best"`
	LastDay  string `json:"last_day"`
}

// ChildActivity carries the per-child consecutive-miss counter used by
// the escalating penalty in the daily sweep.
type ChildActivity struct {
	FamilyID      int64  `json:"family_id"`
	ChildID       int64  `json:"child_id"`
	LastActiveDay string `json:"last_active_day"`
	Misses        int    `json:"misses"`
}

// StreakStats is the per-child view returned by streaks.getStats.
type StreakStats struct {
	ChildID       int64        `json:"child_id"`
	CurrentStreak int          `json:"current_streak"`
	BestStreak    int          `json:"best_streak"`
	PerTask       []TaskStreak `json:"per_task"`
}
