package model

import "time"

type Family struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// BonusMode selects which currency a streak bonus pays out in.
type BonusMode string

const (
	BonusMoney BonusMode = "money"
	BonusStars BonusMode = "stars"
	BonusBoth  BonusMode = "both"
)

// FamilySettings holds the per-family economy configuration. One row per
// family, created with defaults when the family is created.
type FamilySettings struct {
	FamilyID             int64      `json:"family_id"`
	ConversionRatePence  int        `json:"conversion_rate_pence"`
	StreakProtectionDays int        `json:"streak_protection_days"`
	HolidayEnabled       bool       `json:"holiday_enabled"`
	HolidayStart         *time.Time `json:"holiday_start"`
	HolidayEnd           *time.Time `json:"holiday_end"`
	BonusEnabled         bool       `json:"bonus_enabled"`
	BonusIntervalDays    int        `json:"bonus_interval_days"`
	BonusMoneyPence      int        `json:"bonus_money_pence"`
	BonusStars           int        `json:"bonus_stars"`
	BonusMode            BonusMode  `json:"bonus_mode"`
	PenaltyEnabled       bool       `json:"penalty_enabled"`
	PenaltyFirstPence    int        `json:"penalty_first_pence"`
	PenaltySecondPence   int        `json:"penalty_second_pence"`
	PenaltyThirdPence    int        `json:"penalty_third_pence"`
	PenaltyFirstStars    int        `json:"penalty_first_stars"`
	PenaltySecondStars   int        `json:"penalty_second_stars"`
	PenaltyThirdStars    int        `json:"penalty_third_stars"`
	FloorPence           int        `json:"floor_pence"`
	FloorStars           int        `json:"floor_stars"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

// HolidayCovers reports whether holiday mode is active on the given day.
func (s FamilySettings) HolidayCovers(day time.Time) bool {
	if !s.HolidayEnabled || s.HolidayStart == nil || s.HolidayEnd == nil {
		return false
	}
	d := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	start := time.Date(s.HolidayStart.Year(), s.HolidayStart.Month(), s.HolidayStart.Day(), 0, 0, 0, 0, time.UTC)
	end := time.Date(s.HolidayEnd.Year(), s.HolidayEnd.Month(), s.HolidayEnd.Day(), 0, 0, 0, 0, time.UTC)
	return !d.Before(start) && !d.After(end)
}

// PenaltyAmounts returns the money and star penalty for the nth consecutive
// missed day (1-based). The third-miss amounts apply to every miss beyond
// the second.
func (s FamilySettings) PenaltyAmounts(miss int) (pence, stars int) {
	switch {
	case miss <= 1:
		return s.PenaltyFirstPence, s.PenaltyFirstStars
	case miss == 2:
		return s.PenaltySecondPence, s.PenaltySecondStars
	default:
		return s.PenaltyThirdPence, s.PenaltyThirdStars
	}
}

type Role string

const (
	RoleParent Role = "parent"
	RoleChild  Role = "child"
)

type Member struct {
	ID          int64     `json:"id"`
	FamilyID    int64     `json:"family_id"`
	Name        string    `json:"name"`
	Role        Role      `json:"role"`
	Color       string    `json:"color"`
	AvatarEmoji string    `json:"avatar_emoji"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
