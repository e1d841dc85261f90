package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type ClaimMode string

const (
	// ClaimModePoints credits caller-supplied points on claim.
	ClaimModePoints ClaimMode = "points"
	// ClaimModeFarming moves passively accrued farming points into the balance.
	ClaimModeFarming ClaimMode = "farming"
)

type StreakMode string

const (
	// StreakModeMilestone grants a bonus (or multiplier bump) when the streak
	// hits the milestone threshold, then resets the streak.
	StreakModeMilestone StreakMode = "milestone"
	// StreakModePerDay awards streak * points-per-day on every qualifying login.
	StreakModePerDay StreakMode = "perday"
)

type MilestoneReward string

const (
	MilestoneRewardBalance    MilestoneReward = "balance"
	MilestoneRewardMultiplier MilestoneReward = "multiplier"
)

// RewardsConfig collects every tunable of the reward engine so that behavior
// differences between deployments stay configuration, not code forks.
type RewardsConfig struct {
	ClaimInterval time.Duration
	ClaimMode     ClaimMode

	StreakMode         StreakMode
	StreakMilestone    int
	MilestoneReward    MilestoneReward
	MilestoneBonus     float64
	MultiplierStep     float64
	PointsPerStreakDay float64
	MaxStreakDays      int

	FarmingTickInterval time.Duration

	ReferralBonus float64
}

type Config struct {
	Env  string
	Port string

	RedisURL  string
	RedisPass string
	RedisDB   int

	BotToken    string
	BotUsername string
	WebAppURL   string

	JWTSecret   string
	RequireAuth bool

	Rewards RewardsConfig
}

func Load() (*Config, error) {
	cfg := &Config{
		Env:  getEnv("ENV", "development"),
		Port: getEnv("PORT", "8080"),

		RedisURL:  getEnv("REDIS_URL", ""),
		RedisPass: getEnv("REDIS_PASSWORD", ""),
		RedisDB:   getEnvInt("REDIS_DB", 0),

		BotToken:    getEnv("TELEGRAM_BOT_TOKEN", ""),
		BotUsername: getEnv("TELEGRAM_BOT_USERNAME", ""),
		WebAppURL:   getEnv("WEBAPP_URL", ""),

		JWTSecret:   getEnv("JWT_SECRET", ""),
		RequireAuth: getEnvBool("REQUIRE_AUTH", false),

		Rewards: RewardsConfig{
			ClaimInterval:       getEnvDuration("CLAIM_INTERVAL", 8*time.Hour),
			ClaimMode:           ClaimMode(getEnv("CLAIM_MODE", string(ClaimModePoints))),
			StreakMode:          StreakMode(getEnv("STREAK_MODE", string(StreakModeMilestone))),
			StreakMilestone:     getEnvInt("STREAK_MILESTONE", 7),
			MilestoneReward:     MilestoneReward(getEnv("STREAK_MILESTONE_REWARD", string(MilestoneRewardBalance))),
			MilestoneBonus:      getEnvFloat("STREAK_MILESTONE_BONUS", 100),
			MultiplierStep:      getEnvFloat("STREAK_MULTIPLIER_STEP", 0.5),
			PointsPerStreakDay:  getEnvFloat("POINTS_PER_STREAK_DAY", 10),
			MaxStreakDays:       getEnvInt("MAX_STREAK_DAYS", 30),
			FarmingTickInterval: getEnvDuration("FARMING_TICK_INTERVAL", time.Minute),
			ReferralBonus:       getEnvFloat("REFERRAL_BONUS", 50),
		},
	}

	switch cfg.Rewards.ClaimMode {
	case ClaimModePoints, ClaimModeFarming:
	default:
		return nil, fmt.Errorf("invalid CLAIM_MODE: %s", cfg.Rewards.ClaimMode)
	}

	switch cfg.Rewards.StreakMode {
	case StreakModeMilestone, StreakModePerDay:
	default:
		return nil, fmt.Errorf("invalid STREAK_MODE: %s", cfg.Rewards.StreakMode)
	}

	switch cfg.Rewards.MilestoneReward {
	case MilestoneRewardBalance, MilestoneRewardMultiplier:
	default:
		return nil, fmt.Errorf("invalid STREAK_MILESTONE_REWARD: %s", cfg.Rewards.MilestoneReward)
	}

	if cfg.Rewards.ClaimInterval <= 0 {
		return nil, fmt.Errorf("CLAIM_INTERVAL must be positive")
	}
	if cfg.Rewards.FarmingTickInterval <= 0 {
		return nil, fmt.Errorf("FARMING_TICK_INTERVAL must be positive")
	}

	if cfg.RequireAuth && cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required when REQUIRE_AUTH is enabled")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value, exists := os.LookupEnv(key); exists {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return fallback
}
