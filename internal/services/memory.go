package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"tapfarm-backend/internal/models"
)

// MemoryLedger keeps the whole ledger in process memory. It reuses the
// RewardEngine's pure operations for the claim and accrual paths, guarded by
// a single mutex, so it honors the same invariants as the Redis ledger.
// Intended for tests and for running without a Redis instance.
type MemoryLedger struct {
	mu            sync.Mutex
	engine        *RewardEngine
	referralBonus float64
	accounts      map[string]*models.UserAccount
	referrals     map[string]map[string]bool
	transactions  map[string][]*models.RewardTransaction
}

func NewMemoryLedger(engine *RewardEngine, referralBonus float64) *MemoryLedger {
	return &MemoryLedger{
		engine:        engine,
		referralBonus: referralBonus,
		accounts:      make(map[string]*models.UserAccount),
		referrals:     make(map[string]map[string]bool),
		transactions:  make(map[string][]*models.RewardTransaction),
	}
}

func (m *MemoryLedger) GetOrCreate(ctx context.Context, id, firstName, lastName, referrerID string) (*models.UserAccount, bool, error) {
	if id == "" {
		return nil, false, fmt.Errorf("%w: id is required", models.ErrValidation)
	}
	if firstName == "" {
		return nil, false, fmt.Errorf("%w: first name is required", models.ErrValidation)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if acc, ok := m.accounts[id]; ok {
		return copyAccount(acc), false, nil
	}

	// Attribution only happens at creation, so self-referral is only an error
	// for accounts that do not exist yet.
	if referrerID == id {
		return nil, false, models.ErrSelfReferral
	}

	acc := models.NewUserAccount(id, firstName, lastName)

	if referrerID != "" {
		if referrer, ok := m.accounts[referrerID]; ok {
			acc.ReferredBy = referrerID
			if m.referrals[referrerID] == nil {
				m.referrals[referrerID] = make(map[string]bool)
			}
			if !m.referrals[referrerID][id] {
				m.referrals[referrerID][id] = true
				referrer.RewardBalance += m.referralBonus
				m.appendTransaction(models.NewRewardTransaction(referrerID,
					models.TransactionTypeReferralBonus, m.referralBonus,
					referrer.RewardBalance, fmt.Sprintf("referred user %s", id)))
			}
		} else {
			logrus.WithFields(logrus.Fields{
				"user_id":     id,
				"referrer_id": referrerID,
			}).Warn("referral attribution skipped: unknown referrer")
		}
	}

	m.accounts[id] = acc
	return copyAccount(acc), true, nil
}

func (m *MemoryLedger) Get(ctx context.Context, id string) (*models.UserAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	acc, ok := m.accounts[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return copyAccount(acc), nil
}

func (m *MemoryLedger) Save(ctx context.Context, acc *models.UserAccount) error {
	if err := acc.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	stored := copyAccount(acc)
	stored.UpdatedAt = time.Now().UTC()
	m.accounts[acc.ID] = stored
	return nil
}

func (m *MemoryLedger) CountReferredBy(ctx context.Context, id string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.referrals[id])), nil
}

func (m *MemoryLedger) ForEachAccount(ctx context.Context, fn func(acc *models.UserAccount) error) error {
	m.mu.Lock()
	ids := make([]string, 0, len(m.accounts))
	for id := range m.accounts {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	sort.Strings(ids)

	for _, id := range ids {
		acc, err := m.Get(ctx, id)
		if err != nil {
			continue
		}
		if err := fn(acc); err != nil {
			logrus.WithError(err).WithField("user_id", id).Warn("account sweep callback failed")
		}
	}
	return nil
}

func (m *MemoryLedger) ClaimPoints(ctx context.Context, id string, points float64, now time.Time) (*models.UserAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	acc, ok := m.accounts[id]
	if !ok {
		return nil, models.ErrNotFound
	}

	if err := m.engine.Claim(acc, points, now); err != nil {
		return nil, err
	}

	m.appendTransaction(models.NewRewardTransaction(id, models.TransactionTypeClaim,
		points, acc.RewardBalance, "points claim"))

	return copyAccount(acc), nil
}

func (m *MemoryLedger) ClaimFarming(ctx context.Context, id string, now time.Time) (*models.UserAccount, float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	acc, ok := m.accounts[id]
	if !ok {
		return nil, 0, models.ErrNotFound
	}

	claimed, err := m.engine.ClaimFarming(acc, now)
	if err != nil {
		return nil, 0, err
	}

	m.appendTransaction(models.NewRewardTransaction(id, models.TransactionTypeFarmingClaim,
		claimed, acc.RewardBalance, "farming claim"))

	return copyAccount(acc), claimed, nil
}

func (m *MemoryLedger) AccrueFarming(ctx context.Context, id string) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	acc, ok := m.accounts[id]
	if !ok {
		return 0, models.ErrNotFound
	}

	m.engine.AccrueFarming(acc)
	return acc.PendingFarmingPoints, nil
}

func (m *MemoryLedger) SaveTransaction(ctx context.Context, tx *models.RewardTransaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.appendTransaction(tx)
	return nil
}

func (m *MemoryLedger) GetTransactions(ctx context.Context, userID string, limit int64) ([]*models.RewardTransaction, error) {
	if limit <= 0 {
		limit = 50
	} else if limit > MaxTransactionHistory {
		limit = MaxTransactionHistory
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	history := m.transactions[userID]
	var out []*models.RewardTransaction
	for i := len(history) - 1; i >= 0 && int64(len(out)) < limit; i-- {
		out = append(out, history[i])
	}
	return out, nil
}

// appendTransaction assumes m.mu is held.
func (m *MemoryLedger) appendTransaction(tx *models.RewardTransaction) {
	history := append(m.transactions[tx.UserID], tx)
	if len(history) > MaxTransactionHistory {
		history = history[len(history)-MaxTransactionHistory:]
	}
	m.transactions[tx.UserID] = history
}

func copyAccount(acc *models.UserAccount) *models.UserAccount {
	dup := *acc
	if acc.LastClaimedAt != nil {
		t := *acc.LastClaimedAt
		dup.LastClaimedAt = &t
	}
	if acc.LastLoginAt != nil {
		t := *acc.LastLoginAt
		dup.LastLoginAt = &t
	}
	return &dup
}
