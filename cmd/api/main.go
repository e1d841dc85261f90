package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"tapfarm-backend/internal/bot"
	"tapfarm-backend/internal/config"
	"tapfarm-backend/internal/handlers"
	"tapfarm-backend/internal/middleware"
	"tapfarm-backend/internal/services"
)

func main() {
	if err := godotenv.Load(); err != nil {
		logrus.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load config")
	}

	if cfg.Env == "production" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
		gin.SetMode(gin.ReleaseMode)
	} else {
		logrus.SetLevel(logrus.DebugLevel)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	engine := services.NewRewardEngine(cfg.Rewards)

	var ledger services.Ledger
	if cfg.RedisURL != "" {
		redisService, err := services.NewRedisService(cfg)
		if err != nil {
			logrus.WithError(err).Fatal("Failed to connect to Redis")
		}
		defer redisService.Close()
		ledger = redisService
	} else {
		logrus.Warn("REDIS_URL not set, using in-memory ledger; state will not survive restarts")
		ledger = services.NewMemoryLedger(engine, cfg.Rewards.ReferralBonus)
	}

	jwtService := services.NewJWTService(cfg)

	wsHandler := handlers.NewWebSocketHandler(ledger, engine)
	userHandler := handlers.NewUserHandler(ledger, engine, wsHandler)
	authHandler := handlers.NewAuthHandler(ledger, engine, jwtService, cfg.BotToken)

	scheduler := services.NewFarmingScheduler(ledger, wsHandler, cfg.Rewards.FarmingTickInterval)
	scheduler.Start(ctx)
	defer scheduler.Stop()

	if cfg.BotToken != "" {
		tgBot, err := bot.NewBot(cfg, ledger, engine)
		if err != nil {
			logrus.WithError(err).Fatal("Failed to create Telegram bot")
		}
		go func() {
			logrus.Info("Telegram bot is running")
			if err := tgBot.Start(ctx); err != nil {
				logrus.WithError(err).Error("Telegram bot stopped")
			}
		}()
	} else {
		logrus.Warn("TELEGRAM_BOT_TOKEN not set, bot disabled")
	}

	router := gin.Default()

	router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	router.GET("/auth/telegram", authHandler.Authenticate)

	api := router.Group("/api")
	if cfg.RequireAuth {
		api.Use(middleware.AuthMiddleware(jwtService))
	}
	{
		api.GET("/user/:userId", userHandler.GetUser)
		api.POST("/user/:userId/claim", userHandler.ClaimRewards)
		api.POST("/user/:userId/login", userHandler.Login)
		api.GET("/user/:userId/streak", userHandler.GetStreak)
		api.GET("/user/:userId/transactions", userHandler.GetTransactions)
		api.GET("/referrals/:userId", userHandler.GetReferrals)
		api.GET("/ws", wsHandler.HandleWebSocket)
	}

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		<-ctx.Done()
		logrus.Info("Shutting down")
		srv.Shutdown(context.Background())
	}()

	logrus.WithField("port", cfg.Port).Info("Server starting")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logrus.WithError(err).Fatal("Failed to start server")
	}
}
