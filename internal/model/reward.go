package model

import "time"

// Reward is a catalogue item children redeem stars for.
type Reward struct {
	ID          int64     `json:"id"`
	FamilyID    int64     `json:"family_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	StarCost    int       `json:"star_cost"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
}

type RedemptionStatus string

const (
	RedemptionPending   RedemptionStatus = "pending"
	RedemptionFulfilled RedemptionStatus = "fulfilled"
	RedemptionRejected  RedemptionStatus = "rejected"
)

// Redemption reserves stars at request time; rejection refunds them.
type Redemption struct {
	ID          int64            `json:"id"`
	FamilyID    int64            `json:"family_id"`
	ChildID     int64            `json:"child_id"`
	RewardID    int64            `json:"reward_id"`
	StarCost    int              `json:"star_cost"`
	Status      RedemptionStatus `json:"status"`
	RequestedAt time.Time        `json:"requested_at"`
	ProcessedAt *time.Time       `json:"processed_at"`
	ProcessedBy *int64           `json:"processed_by"`
}

type StarPurchaseStatus string

const (
	StarPurchasePending  StarPurchaseStatus = "pending"
	StarPurchaseApproved StarPurchaseStatus = "approved"
	StarPurchaseRejected StarPurchaseStatus = "rejected"
)

// StarPurchase converts money into stars at the family conversion rate.
// Money is taken at request time; rejection refunds it.
type StarPurchase struct {
	ID          int64              `json:"id"`
	FamilyID    int64              `json:"family_id"`
	ChildID     int64              `json:"child_id"`
	Stars       int                `json:"stars"`
	CostPence   int                `json:"cost_pence"`
	Status      StarPurchaseStatus `json:"status"`
	RequestedAt time.Time          `json:"requested_at"`
	ProcessedAt *time.Time         `json:"processed_at"`
	ProcessedBy *int64             `json:"processed_by"`
}
