package services

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"tapfarm-backend/internal/config"
	"tapfarm-backend/internal/models"
)

// RewardEngine holds the pure reward/streak/claim rules. Every operation takes
// an account plus the current time and mutates only the account it is given;
// persistence is the caller's job.
type RewardEngine struct {
	cfg config.RewardsConfig
}

func NewRewardEngine(cfg config.RewardsConfig) *RewardEngine {
	return &RewardEngine{cfg: cfg}
}

func (e *RewardEngine) Config() config.RewardsConfig {
	return e.cfg
}

type ClaimStatus struct {
	CanClaim      bool    `json:"can_claim"`
	TimeRemaining float64 `json:"time_remaining"`
}

// EvaluateClaim reports claim eligibility without mutating the account.
// A user who has never claimed can claim immediately.
func (e *RewardEngine) EvaluateClaim(acc *models.UserAccount, now time.Time) ClaimStatus {
	interval := e.cfg.ClaimInterval

	if acc.LastClaimedAt == nil {
		return ClaimStatus{CanClaim: true, TimeRemaining: interval.Seconds()}
	}

	elapsed := now.Sub(*acc.LastClaimedAt)
	if elapsed >= interval {
		return ClaimStatus{CanClaim: true, TimeRemaining: 0}
	}

	return ClaimStatus{CanClaim: false, TimeRemaining: (interval - elapsed).Seconds()}
}

// Claim credits caller-supplied points and restarts the cooldown. It does not
// gate on EvaluateClaim; it only ever adds the points it is given, so an
// out-of-cadence call is safe.
func (e *RewardEngine) Claim(acc *models.UserAccount, points float64, now time.Time) error {
	if points < 0 {
		return fmt.Errorf("%w: points must be non-negative", models.ErrValidation)
	}

	acc.RewardBalance += points
	acc.HasClaimed = true
	t := now
	acc.LastClaimedAt = &t
	acc.UpdatedAt = now
	return nil
}

// ClaimFarming moves accrued farming points into the reward balance.
func (e *RewardEngine) ClaimFarming(acc *models.UserAccount, now time.Time) (float64, error) {
	if acc.PendingFarmingPoints <= 0 {
		return 0, models.ErrNothingToClaim
	}

	claimed := acc.PendingFarmingPoints
	acc.RewardBalance += claimed
	acc.PendingFarmingPoints = 0
	acc.HasClaimed = true
	t := now
	acc.LastClaimedAt = &t
	acc.UpdatedAt = now
	return claimed, nil
}

type LoginResult struct {
	StreakCount       int     `json:"login_streak_count"`
	PointsEarned      float64 `json:"points_earned"`
	MilestoneHit      bool    `json:"milestone_hit"`
	FarmingMultiplier float64 `json:"farming_multiplier"`
	// SameDay is true when the login landed on the same calendar day as the
	// previous one and the account was left untouched.
	SameDay bool `json:"-"`
}

// EvaluateLogin applies the daily login-streak rules. Day continuity uses
// calendar-day boundaries in UTC: a second login on the same calendar day is a
// no-op, a login on the next calendar day extends the streak, and any larger
// gap resets it to 1 (and resets the farming multiplier).
func (e *RewardEngine) EvaluateLogin(acc *models.UserAccount, now time.Time) LoginResult {
	if acc.LastLoginAt != nil {
		switch calendarDaysBetween(*acc.LastLoginAt, now) {
		case 0:
			return LoginResult{
				StreakCount:       acc.LoginStreakCount,
				FarmingMultiplier: acc.FarmingMultiplier,
				SameDay:           true,
			}
		case 1:
			acc.LoginStreakCount++
		default:
			acc.LoginStreakCount = 1
			acc.FarmingMultiplier = 1
		}
	} else {
		acc.LoginStreakCount = 1
	}

	result := LoginResult{StreakCount: acc.LoginStreakCount}

	switch e.cfg.StreakMode {
	case config.StreakModePerDay:
		if acc.LoginStreakCount <= e.cfg.MaxStreakDays {
			result.PointsEarned = float64(acc.LoginStreakCount) * e.cfg.PointsPerStreakDay
			acc.RewardBalance += result.PointsEarned
		}
	case config.StreakModeMilestone:
		if acc.LoginStreakCount >= e.cfg.StreakMilestone {
			result.MilestoneHit = true
			if e.cfg.MilestoneReward == config.MilestoneRewardMultiplier {
				acc.FarmingMultiplier += e.cfg.MultiplierStep
			} else {
				result.PointsEarned = e.cfg.MilestoneBonus
				acc.RewardBalance += e.cfg.MilestoneBonus
			}
			// Streak restarts from zero after a milestone.
			acc.LoginStreakCount = 0
			result.StreakCount = 0
		}
	}

	t := now
	acc.LastLoginAt = &t
	acc.UpdatedAt = now
	result.FarmingMultiplier = acc.FarmingMultiplier
	return result
}

// AccrueFarming adds one farming tick's worth of pending points.
func (e *RewardEngine) AccrueFarming(acc *models.UserAccount) {
	acc.PendingFarmingPoints += acc.FarmingMultiplier
}

// calendarDaysBetween counts whole calendar-day boundaries crossed between
// two instants, compared in UTC. Both timestamps on the same date yield 0.
func calendarDaysBetween(from, to time.Time) int {
	fy, fm, fd := from.UTC().Date()
	ty, tm, td := to.UTC().Date()
	start := time.Date(fy, fm, fd, 0, 0, 0, 0, time.UTC)
	end := time.Date(ty, tm, td, 0, 0, 0, 0, time.UTC)
	return int(end.Sub(start) / (24 * time.Hour))
}

// ProcessLogin loads an account, applies the streak rules and persists the
// outcome. Shared by the HTTP login endpoint and the bot's /start flow.
func ProcessLogin(ctx context.Context, ledger Ledger, engine *RewardEngine, userID string, now time.Time) (*models.UserAccount, LoginResult, error) {
	acc, err := ledger.Get(ctx, userID)
	if err != nil {
		return nil, LoginResult{}, err
	}

	result := engine.EvaluateLogin(acc, now)
	if result.SameDay {
		return acc, result, nil
	}

	if err := ledger.Save(ctx, acc); err != nil {
		return nil, LoginResult{}, err
	}

	if result.PointsEarned > 0 {
		txType := models.TransactionTypeStreakPoints
		description := fmt.Sprintf("login streak day %d", result.StreakCount)
		if result.MilestoneHit {
			txType = models.TransactionTypeStreakBonus
			description = fmt.Sprintf("streak milestone reached (%d days)", engine.cfg.StreakMilestone)
		}
		tx := models.NewRewardTransaction(userID, txType, result.PointsEarned, acc.RewardBalance, description)
		if err := ledger.SaveTransaction(ctx, tx); err != nil {
			logrus.WithError(err).WithField("user_id", userID).Warn("failed to record streak transaction")
		}
	}

	return acc, result, nil
}
