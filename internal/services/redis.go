package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"tapfarm-backend/internal/config"
	"tapfarm-backend/internal/models"
)

// RedisService is the Redis-backed Ledger. Accounts are stored as one JSON
// document per user; the claim and farming-accrual paths go through Lua
// scripts so concurrent updates on the same account cannot lose increments.
type RedisService struct {
	client        *redis.Client
	ctx           context.Context
	referralBonus float64
}

func NewRedisService(cfg *config.Config) (*RedisService, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisURL,
		Password: cfg.RedisPass,
		DB:       cfg.RedisDB,
	})

	ctx := context.Background()

	_, err := client.Ping(ctx).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %v", err)
	}

	return &RedisService{
		client:        client,
		ctx:           ctx,
		referralBonus: cfg.Rewards.ReferralBonus,
	}, nil
}

func (s *RedisService) Close() error {
	return s.client.Close()
}

func (s *RedisService) GetOrCreate(ctx context.Context, id, firstName, lastName, referrerID string) (*models.UserAccount, bool, error) {
	if id == "" {
		return nil, false, fmt.Errorf("%w: id is required", models.ErrValidation)
	}
	if firstName == "" {
		return nil, false, fmt.Errorf("%w: first name is required", models.ErrValidation)
	}

	key := fmt.Sprintf(KeyUserAccount, id)

	existing, err := s.Get(ctx, id)
	if err == nil {
		return existing, false, nil
	}
	if err != models.ErrNotFound {
		return nil, false, err
	}

	// Attribution only happens at creation, so self-referral is only an error
	// for accounts that do not exist yet.
	if referrerID == id {
		return nil, false, models.ErrSelfReferral
	}

	acc := models.NewUserAccount(id, firstName, lastName)

	referrerValid := false
	if referrerID != "" {
		if _, err := s.Get(ctx, referrerID); err == nil {
			referrerValid = true
			acc.ReferredBy = referrerID
		} else if err == models.ErrNotFound {
			logrus.WithFields(logrus.Fields{
				"user_id":     id,
				"referrer_id": referrerID,
			}).Warn("referral attribution skipped: unknown referrer")
		} else {
			return nil, false, err
		}
	}

	data, err := json.Marshal(acc)
	if err != nil {
		return nil, false, fmt.Errorf("failed to marshal account: %v", err)
	}

	// SETNX decides the winner on concurrent first contact, which is also what
	// keeps the referral bonus a grant-at-most-once.
	created, err := s.client.SetNX(ctx, key, data, 0).Result()
	if err != nil {
		return nil, false, fmt.Errorf("%w: create account: %v", models.ErrStoreUnavailable, err)
	}
	if !created {
		existing, err := s.Get(ctx, id)
		return existing, false, err
	}

	if err := s.client.SAdd(ctx, KeyUsersIndex, id).Err(); err != nil {
		logrus.WithError(err).WithField("user_id", id).Error("failed to index new account")
	}

	if referrerValid {
		s.grantReferralBonus(ctx, referrerID, id)
	}

	return acc, true, nil
}

// grantReferralBonus credits the referrer. SAdd on the referral set is the
// idempotency guard; the bonus is only applied when the referred id was not
// already in the set. Failures are logged, never propagated: the referred
// account is already created and must stay created.
func (s *RedisService) grantReferralBonus(ctx context.Context, referrerID, referredID string) {
	added, err := s.client.SAdd(ctx, fmt.Sprintf(KeyUserReferrals, referrerID), referredID).Result()
	if err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{
			"referrer_id": referrerID,
			"referred_id": referredID,
		}).Error("failed to record referral")
		return
	}
	if added == 0 {
		return
	}

	referrerKey := fmt.Sprintf(KeyUserAccount, referrerID)
	result, err := addBalanceScript.Run(ctx, s.client, []string{referrerKey},
		s.referralBonus, time.Now().UTC().Format(time.RFC3339Nano)).Result()
	if err != nil {
		logrus.WithError(err).WithField("referrer_id", referrerID).Error("failed to grant referral bonus")
		return
	}

	var referrer models.UserAccount
	if err := json.Unmarshal([]byte(result.(string)), &referrer); err != nil {
		logrus.WithError(err).WithField("referrer_id", referrerID).Error("failed to decode referrer after bonus")
		return
	}

	tx := models.NewRewardTransaction(referrerID, models.TransactionTypeReferralBonus,
		s.referralBonus, referrer.RewardBalance, fmt.Sprintf("referred user %s", referredID))
	if err := s.SaveTransaction(ctx, tx); err != nil {
		logrus.WithError(err).WithField("referrer_id", referrerID).Warn("failed to record referral transaction")
	}

	logrus.WithFields(logrus.Fields{
		"referrer_id": referrerID,
		"referred_id": referredID,
		"bonus":       s.referralBonus,
	}).Info("referral bonus granted")
}

func (s *RedisService) Get(ctx context.Context, id string) (*models.UserAccount, error) {
	key := fmt.Sprintf(KeyUserAccount, id)

	data, err := s.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get account: %v", models.ErrStoreUnavailable, err)
	}

	var acc models.UserAccount
	if err := json.Unmarshal([]byte(data), &acc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal account: %v", err)
	}

	return &acc, nil
}

func (s *RedisService) Save(ctx context.Context, acc *models.UserAccount) error {
	if err := acc.Validate(); err != nil {
		return err
	}

	acc.UpdatedAt = time.Now().UTC()

	data, err := json.Marshal(acc)
	if err != nil {
		return fmt.Errorf("failed to marshal account: %v", err)
	}

	key := fmt.Sprintf(KeyUserAccount, acc.ID)
	if err := s.client.Set(ctx, key, data, 0).Err(); err != nil {
		return fmt.Errorf("%w: save account: %v", models.ErrStoreUnavailable, err)
	}
	return nil
}

func (s *RedisService) CountReferredBy(ctx context.Context, id string) (int64, error) {
	count, err := s.client.SCard(ctx, fmt.Sprintf(KeyUserReferrals, id)).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: count referrals: %v", models.ErrStoreUnavailable, err)
	}
	return count, nil
}

func (s *RedisService) ForEachAccount(ctx context.Context, fn func(acc *models.UserAccount) error) error {
	ids, err := s.client.SMembers(ctx, KeyUsersIndex).Result()
	if err != nil {
		return fmt.Errorf("%w: list accounts: %v", models.ErrStoreUnavailable, err)
	}

	for _, id := range ids {
		acc, err := s.Get(ctx, id)
		if err != nil {
			logrus.WithError(err).WithField("user_id", id).Warn("skipping account during sweep")
			continue
		}
		if err := fn(acc); err != nil {
			logrus.WithError(err).WithField("user_id", id).Warn("account sweep callback failed")
		}
	}

	return nil
}

// addBalanceScript credits an amount to reward_balance inside the JSON
// document without a read-modify-write round trip.
var addBalanceScript = redis.NewScript(`
	local data = redis.call("GET", KEYS[1])
	if not data then
		return redis.error_reply("account not found")
	end

	local acc = cjson.decode(data)
	acc.reward_balance = (acc.reward_balance or 0) + tonumber(ARGV[1])
	acc.updated_at = ARGV[2]

	local updated = cjson.encode(acc)
	redis.call("SET", KEYS[1], updated)

	return updated
`)

var claimPointsScript = redis.NewScript(`
	local data = redis.call("GET", KEYS[1])
	if not data then
		return redis.error_reply("account not found")
	end

	local acc = cjson.decode(data)
	acc.reward_balance = (acc.reward_balance or 0) + tonumber(ARGV[1])
	acc.has_claimed = true
	acc.last_claimed_at = ARGV[2]
	acc.updated_at = ARGV[2]

	local updated = cjson.encode(acc)
	redis.call("SET", KEYS[1], updated)

	return updated
`)

var claimFarmingScript = redis.NewScript(`
	local data = redis.call("GET", KEYS[1])
	if not data then
		return redis.error_reply("account not found")
	end

	local acc = cjson.decode(data)
	local pending = acc.pending_farming_points or 0
	if pending <= 0 then
		return redis.error_reply("nothing to claim")
	end

	acc.reward_balance = (acc.reward_balance or 0) + pending
	acc.pending_farming_points = 0
	acc.has_claimed = true
	acc.last_claimed_at = ARGV[1]
	acc.updated_at = ARGV[1]

	local updated = cjson.encode(acc)
	redis.call("SET", KEYS[1], updated)

	return {updated, tostring(pending)}
`)

var accrueFarmingScript = redis.NewScript(`
	local data = redis.call("GET", KEYS[1])
	if not data then
		return redis.error_reply("account not found")
	end

	local acc = cjson.decode(data)
	local multiplier = acc.farming_multiplier or 1
	acc.pending_farming_points = (acc.pending_farming_points or 0) + multiplier
	acc.updated_at = ARGV[1]

	redis.call("SET", KEYS[1], cjson.encode(acc))

	return tostring(acc.pending_farming_points)
`)

func (s *RedisService) ClaimPoints(ctx context.Context, id string, points float64, now time.Time) (*models.UserAccount, error) {
	if points < 0 {
		return nil, fmt.Errorf("%w: points must be non-negative", models.ErrValidation)
	}

	key := fmt.Sprintf(KeyUserAccount, id)
	result, err := claimPointsScript.Run(ctx, s.client, []string{key},
		points, now.UTC().Format(time.RFC3339Nano)).Result()
	if err != nil {
		return nil, mapScriptError(err, "claim points")
	}

	var acc models.UserAccount
	if err := json.Unmarshal([]byte(result.(string)), &acc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal account after claim: %v", err)
	}

	tx := models.NewRewardTransaction(id, models.TransactionTypeClaim, points, acc.RewardBalance, "points claim")
	if err := s.SaveTransaction(ctx, tx); err != nil {
		logrus.WithError(err).WithField("user_id", id).Warn("failed to record claim transaction")
	}

	return &acc, nil
}

func (s *RedisService) ClaimFarming(ctx context.Context, id string, now time.Time) (*models.UserAccount, float64, error) {
	key := fmt.Sprintf(KeyUserAccount, id)
	result, err := claimFarmingScript.Run(ctx, s.client, []string{key},
		now.UTC().Format(time.RFC3339Nano)).Result()
	if err != nil {
		return nil, 0, mapScriptError(err, "claim farming")
	}

	parts, ok := result.([]interface{})
	if !ok || len(parts) != 2 {
		return nil, 0, fmt.Errorf("unexpected claim script result: %v", result)
	}

	var acc models.UserAccount
	if err := json.Unmarshal([]byte(parts[0].(string)), &acc); err != nil {
		return nil, 0, fmt.Errorf("failed to unmarshal account after claim: %v", err)
	}

	claimed, err := strconv.ParseFloat(parts[1].(string), 64)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to parse claimed amount: %v", err)
	}

	tx := models.NewRewardTransaction(id, models.TransactionTypeFarmingClaim, claimed, acc.RewardBalance, "farming claim")
	if err := s.SaveTransaction(ctx, tx); err != nil {
		logrus.WithError(err).WithField("user_id", id).Warn("failed to record claim transaction")
	}

	return &acc, claimed, nil
}

func (s *RedisService) AccrueFarming(ctx context.Context, id string) (float64, error) {
	key := fmt.Sprintf(KeyUserAccount, id)
	result, err := accrueFarmingScript.Run(ctx, s.client, []string{key},
		time.Now().UTC().Format(time.RFC3339Nano)).Result()
	if err != nil {
		return 0, mapScriptError(err, "accrue farming")
	}

	pending, err := strconv.ParseFloat(result.(string), 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse pending total: %v", err)
	}
	return pending, nil
}

func mapScriptError(err error, op string) error {
	switch {
	case strings.Contains(err.Error(), "account not found"):
		return models.ErrNotFound
	case strings.Contains(err.Error(), "nothing to claim"):
		return models.ErrNothingToClaim
	default:
		return fmt.Errorf("%w: %s: %v", models.ErrStoreUnavailable, op, err)
	}
}

func (s *RedisService) SaveTransaction(ctx context.Context, tx *models.RewardTransaction) error {
	txKey := fmt.Sprintf(KeyTransaction, tx.ID)

	data, err := json.Marshal(tx)
	if err != nil {
		return fmt.Errorf("failed to marshal transaction: %v", err)
	}

	if err := s.client.Set(ctx, txKey, data, TTLTransaction).Err(); err != nil {
		return fmt.Errorf("%w: save transaction: %v", models.ErrStoreUnavailable, err)
	}

	userTxKey := fmt.Sprintf(KeyUserTransactions, tx.UserID)
	if err := s.client.ZAdd(ctx, userTxKey, redis.Z{
		Score:  float64(tx.CreatedAt.UnixNano()),
		Member: tx.ID,
	}).Err(); err != nil {
		return fmt.Errorf("%w: index transaction: %v", models.ErrStoreUnavailable, err)
	}

	s.client.ZRemRangeByRank(ctx, userTxKey, 0, int64(-MaxTransactionHistory-1))

	return nil
}

func (s *RedisService) GetTransactions(ctx context.Context, userID string, limit int64) ([]*models.RewardTransaction, error) {
	if limit <= 0 {
		limit = 50
	} else if limit > MaxTransactionHistory {
		limit = MaxTransactionHistory
	}

	userTxKey := fmt.Sprintf(KeyUserTransactions, userID)
	txIDs, err := s.client.ZRevRange(ctx, userTxKey, 0, limit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: list transactions: %v", models.ErrStoreUnavailable, err)
	}

	var transactions []*models.RewardTransaction
	for _, txID := range txIDs {
		data, err := s.client.Get(ctx, fmt.Sprintf(KeyTransaction, txID)).Result()
		if err != nil {
			continue
		}

		var tx models.RewardTransaction
		if err := json.Unmarshal([]byte(data), &tx); err != nil {
			continue
		}

		transactions = append(transactions, &tx)
	}

	return transactions, nil
}

// DeleteAccount removes an account and its bookkeeping. Deletion is not part
// of the service surface; this exists for test cleanup.
func (s *RedisService) DeleteAccount(ctx context.Context, id string) error {
	s.client.SRem(ctx, KeyUsersIndex, id)
	s.client.Del(ctx, fmt.Sprintf(KeyUserReferrals, id))
	s.client.Del(ctx, fmt.Sprintf(KeyUserTransactions, id))
	return s.client.Del(ctx, fmt.Sprintf(KeyUserAccount, id)).Err()
}
