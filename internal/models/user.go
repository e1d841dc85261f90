package models

import "time"

type UserAccount struct {
	ID        string `json:"id" redis:"id"`
	FirstName string `json:"first_name" redis:"first_name"`
	LastName  string `json:"last_name,omitempty" redis:"last_name"`

	RewardBalance        float64 `json:"reward_balance" redis:"reward_balance"`
	PendingFarmingPoints float64 `json:"pending_farming_points" redis:"pending_farming_points"`

	HasClaimed    bool       `json:"has_claimed" redis:"has_claimed"`
	LastClaimedAt *time.Time `json:"last_claimed_at,omitempty" redis:"last_claimed_at"`

	LoginStreakCount int        `json:"login_streak_count" redis:"login_streak_count"`
	LastLoginAt      *time.Time `json:"last_login_at,omitempty" redis:"last_login_at"`

	FarmingMultiplier float64 `json:"farming_multiplier" redis:"farming_multiplier"`

	ReferredBy string `json:"referred_by,omitempty" redis:"referred_by"`

	CreatedAt time.Time `json:"created_at" redis:"created_at"`
	UpdatedAt time.Time `json:"updated_at" redis:"updated_at"`
}

type ClaimRequest struct {
	Points *float64 `json:"points"`
}
