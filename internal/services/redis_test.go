package services_test

import (
	"context"
	"testing"
	"time"

	"tapfarm-backend/internal/config"
	"tapfarm-backend/internal/models"
	"tapfarm-backend/internal/services"
)

func setupTestRedis(t *testing.T) *services.RedisService {
	t.Helper()

	cfg := &config.Config{
		RedisURL:  "localhost:6379",
		RedisPass: "",
		RedisDB:   0,
		Rewards:   testRewardsConfig(),
	}

	redisService, err := services.NewRedisService(cfg)
	if err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	return redisService
}

func TestRedisLedger(t *testing.T) {
	redisService := setupTestRedis(t)
	defer redisService.Close()

	ctx := context.Background()
	referrerID := "900001"
	referredID := "900002"

	defer func() {
		redisService.DeleteAccount(ctx, referrerID)
		redisService.DeleteAccount(ctx, referredID)
	}()

	// Fresh accounts.
	referrer, created, err := redisService.GetOrCreate(ctx, referrerID, "Referrer", "User", "")
	if err != nil {
		t.Fatalf("Failed to create referrer: %v", err)
	}
	if !created {
		t.Error("Expected referrer to be created")
	}
	if referrer.FarmingMultiplier != 1 {
		t.Errorf("Expected default multiplier 1, got %f", referrer.FarmingMultiplier)
	}

	// Self-referral is rejected at creation.
	if _, _, err := redisService.GetOrCreate(ctx, referredID, "Newbie", "", referredID); err != models.ErrSelfReferral {
		t.Errorf("Expected self-referral error, got %v", err)
	}

	// But an existing account still resolves when the caller passes its own id.
	existing, created, err := redisService.GetOrCreate(ctx, referrerID, "Referrer", "User", referrerID)
	if err != nil {
		t.Errorf("Expected existing account despite self-referral arg, got %v", err)
	}
	if created {
		t.Error("Expected existing account, not a new one")
	}
	if existing != nil && existing.ReferredBy != "" {
		t.Errorf("Expected no attribution, got %q", existing.ReferredBy)
	}

	// Referred account creation grants the bonus once.
	if _, _, err := redisService.GetOrCreate(ctx, referredID, "Newbie", "", referrerID); err != nil {
		t.Fatalf("Failed to create referred account: %v", err)
	}
	if _, _, err := redisService.GetOrCreate(ctx, referredID, "Newbie", "", referrerID); err != nil {
		t.Fatalf("Repeated getOrCreate failed: %v", err)
	}

	referrer, err = redisService.Get(ctx, referrerID)
	if err != nil {
		t.Fatalf("Failed to get referrer: %v", err)
	}
	if referrer.RewardBalance != 50 {
		t.Errorf("Expected referral bonus 50 exactly once, got balance %f", referrer.RewardBalance)
	}

	count, err := redisService.CountReferredBy(ctx, referrerID)
	if err != nil {
		t.Fatalf("Failed to count referrals: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected 1 referral, got %d", count)
	}

	// Atomic points claim.
	now := time.Now()
	acc, err := redisService.ClaimPoints(ctx, referredID, 50, now)
	if err != nil {
		t.Fatalf("Failed to claim points: %v", err)
	}
	if acc.RewardBalance != 50 {
		t.Errorf("Expected balance 50 after claim, got %f", acc.RewardBalance)
	}
	if acc.LastClaimedAt == nil {
		t.Error("Expected lastClaimedAt to be set after claim")
	}

	if _, err := redisService.ClaimPoints(ctx, referredID, -1, now); err == nil {
		t.Error("Negative points claim should fail")
	}

	// Farming accrual and farming claim.
	pending, err := redisService.AccrueFarming(ctx, referredID)
	if err != nil {
		t.Fatalf("Failed to accrue farming: %v", err)
	}
	if pending != 1 {
		t.Errorf("Expected pending 1 after one tick, got %f", pending)
	}

	acc, claimed, err := redisService.ClaimFarming(ctx, referredID, now)
	if err != nil {
		t.Fatalf("Failed to claim farming points: %v", err)
	}
	if claimed != 1 {
		t.Errorf("Expected claimed 1, got %f", claimed)
	}
	if acc.PendingFarmingPoints != 0 {
		t.Errorf("Expected pending reset to 0, got %f", acc.PendingFarmingPoints)
	}

	if _, _, err := redisService.ClaimFarming(ctx, referredID, now); err != models.ErrNothingToClaim {
		t.Errorf("Expected nothing-to-claim error, got %v", err)
	}

	// Transaction history was recorded for claims and the referral bonus.
	transactions, err := redisService.GetTransactions(ctx, referredID, 10)
	if err != nil {
		t.Fatalf("Failed to get transactions: %v", err)
	}
	if len(transactions) != 2 {
		t.Errorf("Expected 2 transactions, got %d", len(transactions))
	}

	// Unknown accounts surface NotFound.
	if _, err := redisService.Get(ctx, "900404"); err != models.ErrNotFound {
		t.Errorf("Expected not-found error, got %v", err)
	}
	if _, err := redisService.ClaimPoints(ctx, "900404", 1, now); err != models.ErrNotFound {
		t.Errorf("Expected not-found error for claim, got %v", err)
	}
}

func TestRedisForEachAccount(t *testing.T) {
	redisService := setupTestRedis(t)
	defer redisService.Close()

	ctx := context.Background()
	ids := []string{"910001", "910002"}
	defer func() {
		for _, id := range ids {
			redisService.DeleteAccount(ctx, id)
		}
	}()

	for _, id := range ids {
		if _, _, err := redisService.GetOrCreate(ctx, id, "Sweep", "", ""); err != nil {
			t.Fatalf("Failed to create account %s: %v", id, err)
		}
	}

	seen := make(map[string]bool)
	err := redisService.ForEachAccount(ctx, func(acc *models.UserAccount) error {
		seen[acc.ID] = true
		return nil
	})
	if err != nil {
		t.Fatalf("ForEachAccount failed: %v", err)
	}

	for _, id := range ids {
		if !seen[id] {
			t.Errorf("Account %s missing from sweep", id)
		}
	}
}
