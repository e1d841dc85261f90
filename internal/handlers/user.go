package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"tapfarm-backend/internal/config"
	"tapfarm-backend/internal/models"
	"tapfarm-backend/internal/services"
)

type UserHandler struct {
	ledger      services.Ledger
	engine      *services.RewardEngine
	broadcaster services.Broadcaster
}

func NewUserHandler(ledger services.Ledger, engine *services.RewardEngine, broadcaster services.Broadcaster) *UserHandler {
	if broadcaster == nil {
		broadcaster = services.NoopBroadcaster{}
	}
	return &UserHandler{
		ledger:      ledger,
		engine:      engine,
		broadcaster: broadcaster,
	}
}

func (h *UserHandler) GetUser(c *gin.Context) {
	userID := c.Param("userId")

	acc, err := h.ledger.Get(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}

	status := h.engine.EvaluateClaim(acc, time.Now())

	c.JSON(http.StatusOK, gin.H{
		"id":                   acc.ID,
		"firstName":            acc.FirstName,
		"lastName":             acc.LastName,
		"rewardBalance":        acc.RewardBalance,
		"pendingFarmingPoints": acc.PendingFarmingPoints,
		"loginStreakCount":     acc.LoginStreakCount,
		"lastLoginAt":          acc.LastLoginAt,
		"farmingMultiplier":    acc.FarmingMultiplier,
		"canClaim":             status.CanClaim,
		"timeRemaining":        status.TimeRemaining,
	})
}

func (h *UserHandler) ClaimRewards(c *gin.Context) {
	userID := c.Param("userId")
	ctx := c.Request.Context()
	now := time.Now()

	var acc *models.UserAccount
	var err error

	switch h.engine.Config().ClaimMode {
	case config.ClaimModeFarming:
		acc, _, err = h.ledger.ClaimFarming(ctx, userID, now)
	default:
		var req models.ClaimRequest
		if bindErr := c.ShouldBindJSON(&req); bindErr != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "Invalid request",
				"details": bindErr.Error(),
			})
			return
		}
		if req.Points == nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": "points is required"})
			return
		}
		acc, err = h.ledger.ClaimPoints(ctx, userID, *req.Points, now)
	}
	if err != nil {
		respondError(c, err)
		return
	}

	h.broadcaster.BroadcastBalanceUpdate(acc.ID, acc.RewardBalance, acc.PendingFarmingPoints)

	c.JSON(http.StatusOK, gin.H{
		"message":       "Points claimed successfully.",
		"rewardBalance": acc.RewardBalance,
	})
}

func (h *UserHandler) GetReferrals(c *gin.Context) {
	userID := c.Param("userId")

	count, err := h.ledger.CountReferredBy(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"referredCount": count})
}

func (h *UserHandler) Login(c *gin.Context) {
	userID := c.Param("userId")

	acc, result, err := services.ProcessLogin(c.Request.Context(), h.ledger, h.engine, userID, time.Now())
	if err != nil {
		respondError(c, err)
		return
	}

	if result.PointsEarned > 0 {
		h.broadcaster.BroadcastBalanceUpdate(acc.ID, acc.RewardBalance, acc.PendingFarmingPoints)
	}

	c.JSON(http.StatusOK, gin.H{
		"loginStreakCount":  result.StreakCount,
		"rewardBalance":     acc.RewardBalance,
		"farmingMultiplier": result.FarmingMultiplier,
		"pointsEarned":      result.PointsEarned,
		"milestoneHit":      result.MilestoneHit,
	})
}

func (h *UserHandler) GetStreak(c *gin.Context) {
	userID := c.Param("userId")

	acc, err := h.ledger.Get(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}

	status := h.engine.EvaluateClaim(acc, time.Now())

	c.JSON(http.StatusOK, gin.H{
		"streakCount":   acc.LoginStreakCount,
		"rewardBalance": acc.RewardBalance,
		"canClaim":      status.CanClaim,
	})
}

func (h *UserHandler) GetTransactions(c *gin.Context) {
	userID := c.Param("userId")

	if _, err := h.ledger.Get(c.Request.Context(), userID); err != nil {
		respondError(c, err)
		return
	}

	limit, _ := strconv.ParseInt(c.DefaultQuery("limit", "50"), 10, 64)

	transactions, err := h.ledger.GetTransactions(c.Request.Context(), userID, limit)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"transactions": transactions})
}

func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, models.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
	case errors.Is(err, models.ErrNothingToClaim):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Nothing to claim"})
	case errors.Is(err, models.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
	case errors.Is(err, models.ErrSelfReferral):
		c.JSON(http.StatusConflict, gin.H{"error": "Self-referral is not allowed"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal Server Error", "details": err.Error()})
	}
}
