package services

import "time"

const (
	KeyUserAccount      = "user:%s:account"
	KeyUserReferrals    = "user:%s:referrals"
	KeyUsersIndex       = "users:index"
	KeyTransaction      = "transaction:%s"
	KeyUserTransactions = "user:%s:transactions"

	TTLTransaction = 30 * 24 * time.Hour // 30 days

	// Per-user transaction history is trimmed to the most recent entries.
	MaxTransactionHistory = 100
)
