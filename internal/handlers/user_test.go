package handlers_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tapfarm-backend/internal/config"
	"tapfarm-backend/internal/handlers"
	"tapfarm-backend/internal/services"
)

func testRewardsConfig() config.RewardsConfig {
	return config.RewardsConfig{
		ClaimInterval:       time.Minute,
		ClaimMode:           config.ClaimModePoints,
		StreakMode:          config.StreakModeMilestone,
		StreakMilestone:     7,
		MilestoneReward:     config.MilestoneRewardBalance,
		MilestoneBonus:      100,
		MultiplierStep:      0.5,
		PointsPerStreakDay:  10,
		MaxStreakDays:       30,
		FarmingTickInterval: time.Minute,
		ReferralBonus:       50,
	}
}

func setupRouter(cfg config.RewardsConfig) (*gin.Engine, *services.MemoryLedger) {
	gin.SetMode(gin.TestMode)

	engine := services.NewRewardEngine(cfg)
	ledger := services.NewMemoryLedger(engine, cfg.ReferralBonus)
	handler := handlers.NewUserHandler(ledger, engine, nil)

	router := gin.New()
	api := router.Group("/api")
	api.GET("/user/:userId", handler.GetUser)
	api.POST("/user/:userId/claim", handler.ClaimRewards)
	api.POST("/user/:userId/login", handler.Login)
	api.GET("/user/:userId/streak", handler.GetStreak)
	api.GET("/user/:userId/transactions", handler.GetTransactions)
	api.GET("/referrals/:userId", handler.GetReferrals)

	return router, ledger
}

func doRequest(t *testing.T, router *gin.Engine, method, path, body string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var parsed map[string]interface{}
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &parsed))
	}
	return w, parsed
}

func TestGetUserNotFound(t *testing.T) {
	router, _ := setupRouter(testRewardsConfig())

	w, body := doRequest(t, router, http.MethodGet, "/api/user/404", "")

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "User not found", body["error"])
}

func TestGetUserNeverClaimed(t *testing.T) {
	router, ledger := setupRouter(testRewardsConfig())
	_, _, err := ledger.GetOrCreate(context.Background(), "42", "Alice", "Smith", "")
	require.NoError(t, err)

	w, body := doRequest(t, router, http.MethodGet, "/api/user/42", "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "42", body["id"])
	assert.Equal(t, "Alice", body["firstName"])
	assert.Equal(t, true, body["canClaim"])
	assert.Equal(t, 60.0, body["timeRemaining"])
	assert.Equal(t, 0.0, body["rewardBalance"])
}

func TestClaimPointsFlow(t *testing.T) {
	router, ledger := setupRouter(testRewardsConfig())
	ctx := context.Background()
	_, _, err := ledger.GetOrCreate(ctx, "42", "Alice", "", "")
	require.NoError(t, err)

	w, body := doRequest(t, router, http.MethodPost, "/api/user/42/claim", `{"points": 50}`)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Points claimed successfully.", body["message"])
	assert.Equal(t, 50.0, body["rewardBalance"])

	// Immediately after the claim the cooldown is active.
	w, body = doRequest(t, router, http.MethodGet, "/api/user/42", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, body["canClaim"])
	assert.Greater(t, body["timeRemaining"].(float64), 0.0)
}

func TestClaimValidation(t *testing.T) {
	router, ledger := setupRouter(testRewardsConfig())
	_, _, err := ledger.GetOrCreate(context.Background(), "42", "Alice", "", "")
	require.NoError(t, err)

	w, _ := doRequest(t, router, http.MethodPost, "/api/user/42/claim", `{"points": -1}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = doRequest(t, router, http.MethodPost, "/api/user/42/claim", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = doRequest(t, router, http.MethodPost, "/api/user/404/claim", `{"points": 1}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestClaimFarmingMode(t *testing.T) {
	cfg := testRewardsConfig()
	cfg.ClaimMode = config.ClaimModeFarming
	router, ledger := setupRouter(cfg)
	ctx := context.Background()

	_, _, err := ledger.GetOrCreate(ctx, "42", "Alice", "", "")
	require.NoError(t, err)

	// Nothing accrued yet.
	w, body := doRequest(t, router, http.MethodPost, "/api/user/42/claim", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Nothing to claim", body["error"])

	_, err = ledger.AccrueFarming(ctx, "42")
	require.NoError(t, err)

	w, body = doRequest(t, router, http.MethodPost, "/api/user/42/claim", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1.0, body["rewardBalance"])
}

func TestLoginEndpoint(t *testing.T) {
	router, ledger := setupRouter(testRewardsConfig())
	_, _, err := ledger.GetOrCreate(context.Background(), "42", "Alice", "", "")
	require.NoError(t, err)

	w, body := doRequest(t, router, http.MethodPost, "/api/user/42/login", "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1.0, body["loginStreakCount"])
	assert.Equal(t, 1.0, body["farmingMultiplier"])

	w, _ = doRequest(t, router, http.MethodPost, "/api/user/404/login", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStreakEndpoint(t *testing.T) {
	router, ledger := setupRouter(testRewardsConfig())
	ctx := context.Background()

	_, _, err := ledger.GetOrCreate(ctx, "42", "Alice", "", "")
	require.NoError(t, err)

	w, body := doRequest(t, router, http.MethodGet, "/api/user/42/streak", "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0.0, body["streakCount"])
	assert.Equal(t, true, body["canClaim"])
}

func TestReferralsEndpoint(t *testing.T) {
	router, ledger := setupRouter(testRewardsConfig())
	ctx := context.Background()

	_, _, err := ledger.GetOrCreate(ctx, "12345", "Referrer", "", "")
	require.NoError(t, err)
	_, _, err = ledger.GetOrCreate(ctx, "999", "Newbie", "", "12345")
	require.NoError(t, err)

	w, body := doRequest(t, router, http.MethodGet, "/api/referrals/12345", "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1.0, body["referredCount"])

	// The referrer got the bonus.
	w, body = doRequest(t, router, http.MethodGet, "/api/user/12345", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 50.0, body["rewardBalance"])
}

func TestTransactionsEndpoint(t *testing.T) {
	router, ledger := setupRouter(testRewardsConfig())
	ctx := context.Background()

	_, _, err := ledger.GetOrCreate(ctx, "42", "Alice", "", "")
	require.NoError(t, err)
	_, err = ledger.ClaimPoints(ctx, "42", 25, time.Now())
	require.NoError(t, err)

	w, body := doRequest(t, router, http.MethodGet, "/api/user/42/transactions", "")

	assert.Equal(t, http.StatusOK, w.Code)
	transactions := body["transactions"].([]interface{})
	require.Len(t, transactions, 1)

	w, _ = doRequest(t, router, http.MethodGet, "/api/user/404/transactions", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}
