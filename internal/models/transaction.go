package models

import "time"

type TransactionType string

const (
	TransactionTypeClaim         TransactionType = "claim"
	TransactionTypeFarmingClaim  TransactionType = "farming_claim"
	TransactionTypeReferralBonus TransactionType = "referral_bonus"
	TransactionTypeStreakBonus   TransactionType = "streak_bonus"
	TransactionTypeStreakPoints  TransactionType = "streak_points"
)

type RewardTransaction struct {
	ID           string          `json:"id" redis:"id"`
	UserID       string          `json:"user_id" redis:"user_id"`
	Type         TransactionType `json:"type" redis:"type"`
	Amount       float64         `json:"amount" redis:"amount"`
	BalanceAfter float64         `json:"balance_after" redis:"balance_after"`
	Description  string          `json:"description" redis:"description"`
	CreatedAt    time.Time       `json:"created_at" redis:"created_at"`
}
