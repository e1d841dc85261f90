package services

import (
	"context"
	"time"

	"tapfarm-backend/internal/models"
)

// Ledger is the persistence contract for user accounts. RedisService is the
// production implementation; MemoryLedger backs tests and Redis-less runs.
type Ledger interface {
	// GetOrCreate returns the account for id, creating it with defaults when
	// absent. On first creation with a valid, non-self referrer the referral
	// bonus is granted to the referrer exactly once. The second return value
	// reports whether the account was created by this call.
	GetOrCreate(ctx context.Context, id, firstName, lastName, referrerID string) (*models.UserAccount, bool, error)

	Get(ctx context.Context, id string) (*models.UserAccount, error)

	// Save persists the full account state, last-write-wins.
	Save(ctx context.Context, acc *models.UserAccount) error

	CountReferredBy(ctx context.Context, id string) (int64, error)

	// ForEachAccount applies fn to every account. Used by the farming sweep;
	// per-account failures are logged and do not stop the iteration.
	ForEachAccount(ctx context.Context, fn func(acc *models.UserAccount) error) error

	// ClaimPoints atomically credits points and restarts the claim cooldown.
	ClaimPoints(ctx context.Context, id string, points float64, now time.Time) (*models.UserAccount, error)

	// ClaimFarming atomically moves pending farming points into the balance.
	// Returns models.ErrNothingToClaim when no points have accrued.
	ClaimFarming(ctx context.Context, id string, now time.Time) (*models.UserAccount, float64, error)

	// AccrueFarming atomically adds one farming tick (the account's own
	// multiplier) to its pending points and returns the new pending total.
	AccrueFarming(ctx context.Context, id string) (float64, error)

	SaveTransaction(ctx context.Context, tx *models.RewardTransaction) error

	// GetTransactions returns the most recent reward transactions, newest first.
	GetTransactions(ctx context.Context, userID string, limit int64) ([]*models.RewardTransaction, error)
}
