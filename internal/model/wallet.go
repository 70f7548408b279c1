package model

import "time"

// Reason is the closed set of transaction causes. Every ledger entry
// carries exactly one.
type Reason string

const (
	ReasonCompletionReward   Reason = "completion_reward"
	ReasonRivalryBonus       Reason = "rivalry_bonus"
	ReasonStreakBonus        Reason = "streak_bonus"
	ReasonStreakPenalty      Reason = "streak_penalty"
	ReasonGift               Reason = "gift"
	ReasonPayout             Reason = "payout"
	ReasonStarPurchase       Reason = "star_purchase"
	ReasonStarPurchaseRefund Reason = "star_purchase_refund"
	ReasonRedemption         Reason = "redemption"
	ReasonRedemptionRefund   Reason = "redemption_refund"
)

func (r Reason) Valid() bool {
	switch r {
	case ReasonCompletionReward, ReasonRivalryBonus, ReasonStreakBonus,
		ReasonStreakPenalty, ReasonGift, ReasonPayout, ReasonStarPurchase,
		ReasonStarPurchaseRefund, ReasonRedemption, ReasonRedemptionRefund:
		return true
	}
	return false
}

// Wallet caches the running totals for one child. The transaction log is
// the source of truth; the cached columns are updated in the same
// transaction as every ledger entry.
type Wallet struct {
	ID           int64     `json:"id"`
	FamilyID     int64     `json:"family_id"`
	ChildID      int64     `json:"child_id"`
	BalancePence int       `json:"balance_pence"`
	Stars        int       `json:"stars"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// WalletTransaction is an immutable ledger entry. Never updated, never
// deleted.
type WalletTransaction struct {
	ID              int64     `json:"id"`
	FamilyID        int64     `json:"family_id"`
	WalletID        int64     `json:"wallet_id"`
	MoneyDeltaPence int       `json:"money_delta_pence"`
	StarDelta       int       `json:"star_delta"`
	Reason          Reason    `json:"reason"`
	ReferenceID     string    `json:"reference_id"`
	IdempotencyKey  *string   `json:"idempotency_key,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// Balance is the pair returned by wallet.getBalance.
type Balance struct {
	ChildID      int64 `json:"child_id"`
	BalancePence int   `json:"balance_pence"`
	Stars        int   `json:"stars"`
}

// LeaderboardEntry is one row of the family star leaderboard.
type LeaderboardEntry struct {
	ChildID      int64  `json:"child_id"`
	ChildName    string `json:"child_name"`
	Stars        int    `json:"stars"`
	BalancePence int    `json:"balance_pence"`
}
