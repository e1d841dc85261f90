package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

func GenerateTransactionID() string {
	return fmt.Sprintf("tx_%s_%d",
		time.Now().Format("20060102"),
		uuid.New().ID())
}

// NewUserAccount builds an account in its default state: zero balances,
// no streak, farming multiplier at 1.
func NewUserAccount(id, firstName, lastName string) *UserAccount {
	now := time.Now().UTC()
	return &UserAccount{
		ID:                id,
		FirstName:         firstName,
		LastName:          lastName,
		FarmingMultiplier: 1,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

func NewRewardTransaction(userID string, txType TransactionType, amount, balanceAfter float64, description string) *RewardTransaction {
	return &RewardTransaction{
		ID:           GenerateTransactionID(),
		UserID:       userID,
		Type:         txType,
		Amount:       amount,
		BalanceAfter: balanceAfter,
		Description:  description,
		CreatedAt:    time.Now().UTC(),
	}
}

func (a *UserAccount) Validate() error {
	if a.ID == "" {
		return fmt.Errorf("%w: id is required", ErrValidation)
	}
	if a.FirstName == "" {
		return fmt.Errorf("%w: first name is required", ErrValidation)
	}
	if a.ReferredBy != "" && a.ReferredBy == a.ID {
		return ErrSelfReferral
	}
	return nil
}
