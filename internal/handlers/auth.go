package handlers

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"tapfarm-backend/internal/services"
)

type AuthHandler struct {
	ledger     services.Ledger
	engine     *services.RewardEngine
	jwtService *services.JWTService
	botToken   string
}

func NewAuthHandler(ledger services.Ledger, engine *services.RewardEngine, jwtService *services.JWTService, botToken string) *AuthHandler {
	return &AuthHandler{
		ledger:     ledger,
		engine:     engine,
		jwtService: jwtService,
		botToken:   botToken,
	}
}

var errInvalidInitData = errors.New("invalid init data")

type telegramWebAppUser struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Username  string `json:"username"`
}

// Authenticate validates Telegram WebApp initData, upserts the caller's
// account and issues a short-lived JWT for the mini-app.
func (h *AuthHandler) Authenticate(c *gin.Context) {
	initData := c.Query("initData")
	if initData == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "initData is required"})
		return
	}

	tgUser, err := h.verifyInitData(initData)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid init data"})
		return
	}

	userID := strconv.FormatInt(tgUser.ID, 10)

	acc, created, err := h.ledger.GetOrCreate(c.Request.Context(), userID, tgUser.FirstName, tgUser.LastName, "")
	if err != nil {
		respondError(c, err)
		return
	}
	if created {
		logrus.WithField("user_id", userID).Info("account created via web app auth")
	}

	if _, _, err := services.ProcessLogin(c.Request.Context(), h.ledger, h.engine, userID, time.Now()); err != nil {
		logrus.WithError(err).WithField("user_id", userID).Warn("login evaluation failed during auth")
	}

	token, err := h.jwtService.GenerateToken(userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal Server Error", "details": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token": token,
		"user": gin.H{
			"id":        acc.ID,
			"firstName": acc.FirstName,
			"lastName":  acc.LastName,
		},
	})
}

// verifyInitData checks the initData signature per the Telegram WebApp spec:
// HMAC-SHA256 over the sorted key=value pairs, keyed with
// HMAC-SHA256("WebAppData", botToken).
func (h *AuthHandler) verifyInitData(initData string) (*telegramWebAppUser, error) {
	values, err := url.ParseQuery(initData)
	if err != nil {
		return nil, err
	}

	receivedHash := values.Get("hash")
	if receivedHash == "" {
		return nil, errInvalidInitData
	}
	values.Del("hash")

	pairs := make([]string, 0, len(values))
	for key := range values {
		pairs = append(pairs, key+"="+values.Get(key))
	}
	sort.Strings(pairs)
	dataCheckString := strings.Join(pairs, "\n")

	secretMac := hmac.New(sha256.New, []byte("WebAppData"))
	secretMac.Write([]byte(h.botToken))
	secret := secretMac.Sum(nil)

	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(dataCheckString))
	expectedHash := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expectedHash), []byte(receivedHash)) {
		return nil, errInvalidInitData
	}

	var tgUser telegramWebAppUser
	if err := json.Unmarshal([]byte(values.Get("user")), &tgUser); err != nil {
		return nil, err
	}
	if tgUser.ID == 0 {
		return nil, errInvalidInitData
	}

	return &tgUser, nil
}
