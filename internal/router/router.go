package router

import (
	"time"

	"miturn/config"
	"miturn/internal/handler"
	"miturn/internal/middleware"
	"miturn/internal/repository"
	"miturn/internal/service"
	"miturn/internal/ws"
	"miturn/pkg/analytics"
	"miturn/pkg/bank"
	"miturn/pkg/cloudinary"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Deps carries the externally constructed collaborators. Nil entries fall
// back to stubs so local development works without provider credentials.
type Deps struct {
	Bank    bank.Provider
	Tracker analytics.Tracker
	Cloud   cloudinary.Client
	Logger  *zap.Logger
}

func Setup(cfg *config.Config, db *gorm.DB, deps Deps) *gin.Engine {
	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.Bank == nil {
		deps.Bank = &bank.StubProvider{}
	}
	if deps.Tracker == nil {
		deps.Tracker = analytics.Noop{}
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RateLimit(middleware.NewInMemoryRateLimiter(100, 60*time.Second)))

	// Repositories
	userRepo := repository.NewUserRepository(db)
	auditRepo := repository.NewAuditLogRepository(db)
	circleRepo := repository.NewCircleRepository(db)
	txRepo := repository.NewTransactionRepository(db)
	goalRepo := repository.NewGoalRepository(db)
	allocRepo := repository.NewAllocationRepository(db)
	recurringRepo := repository.NewRecurringRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)
	accountRepo := repository.NewLinkedAccountRepository(db)
	gamifyRepo := repository.NewGamificationRepository(db)

	circleHub := ws.NewCircleHub()

	// Services. Ledger listeners fire in subscription order: money movement
	// first (rotation, allocation), then engagement and notifications.
	ledger := service.NewLedgerService(txRepo, logger)
	notifSvc := service.NewNotificationService(notificationRepo, circleHub, logger)
	rotation := service.NewRotationService(circleRepo, txRepo, ledger, accountRepo, deps.Bank, notifSvc, deps.Tracker, logger)
	allocation := service.NewAllocationService(goalRepo, allocRepo, service.AllocationConfig{
		MinCents:         cfg.Allocation.MinCents,
		MaxCents:         cfg.Allocation.MaxCents,
		MaxDailyCents:    cfg.Allocation.MaxDailyCents,
		SplitAcrossGoals: cfg.Allocation.SplitAcrossGoals,
	}, deps.Tracker, logger)
	allocation.SubscribeTo(ledger)
	gamify := service.NewGamificationService(gamifyRepo, notifSvc, deps.Tracker, logger)
	gamify.SubscribeTo(ledger)
	allocation.OnGoalAchieved(gamify)
	notifSvc.SubscribeTo(ledger)
	contribution := service.NewContributionService(ledger, txRepo, accountRepo, deps.Bank, recurringRepo, circleRepo, logger)
	authSvc := service.NewAuthService(cfg, userRepo)

	// Handlers
	authHandler := handler.NewAuthHandler(authSvc, auditRepo, logger)
	meHandler := handler.NewMeHandler(userRepo, gamify)
	circleHandler := handler.NewCircleHandler(circleRepo, txRepo, rotation, gamify, logger)
	goalHandler := handler.NewGoalHandler(goalRepo, allocRepo, allocation)
	recurringHandler := handler.NewRecurringHandler(recurringRepo, circleRepo)
	txHandler := handler.NewTransactionHandler(txRepo, circleRepo, goalRepo, contribution)
	webhookHandler := handler.NewTransferWebhookHandler(ledger, logger)
	linkHandler := handler.NewLinkHandler(deps.Bank, accountRepo, deps.Tracker, logger)
	notificationHandler := handler.NewNotificationHandler(notificationRepo)

	authMw := middleware.AuthRequired(&cfg.JWT)

	api := r.Group("/api/v1")
	{
		authGroup := api.Group("/auth")
		{
			authGroup.POST("/register", authHandler.Register)
			authGroup.POST("/login", authHandler.Login)
			authGroup.POST("/refresh", authHandler.Refresh)
			authGroup.PATCH("/change-password", authMw, authHandler.ChangePassword)
		}

		me := api.Group("/me")
		me.Use(authMw)
		{
			me.GET("/profile", meHandler.Get)
			me.PATCH("/profile", meHandler.Update)
			me.GET("/notifications", notificationHandler.List)
			me.PUT("/notifications/:id/read", notificationHandler.MarkRead)
		}

		circles := api.Group("/circles")
		circles.Use(authMw)
		{
			circles.POST("", circleHandler.Create)
			circles.GET("", circleHandler.List)
			circles.GET("/:id", circleHandler.Get)
			circles.POST("/:id/join", circleHandler.Join)
			circles.POST("/:id/start", circleHandler.Start)
			circles.GET("/:id/transactions", circleHandler.Transactions)
		}

		goals := api.Group("/goals")
		goals.Use(authMw)
		{
			goals.POST("", goalHandler.Create)
			goals.GET("", goalHandler.List)
			goals.GET("/:id", goalHandler.Get)
			goals.GET("/:id/allocations", goalHandler.Allocations)
			goals.DELETE("/:id", goalHandler.Deactivate)
		}

		recurring := api.Group("/recurring")
		recurring.Use(authMw)
		{
			recurring.POST("", recurringHandler.Create)
			recurring.GET("", recurringHandler.List)
			recurring.PATCH("/:id", recurringHandler.Update)
			recurring.POST("/:id/pause", recurringHandler.Pause)
			recurring.POST("/:id/resume", recurringHandler.Resume)
		}

		api.POST("/transactions/contribute", authMw, txHandler.Contribute)
		api.GET("/transactions", authMw, txHandler.List)
		api.GET("/transactions/:id", authMw, txHandler.Get)

		link := api.Group("/link")
		link.Use(authMw)
		{
			link.POST("/token", linkHandler.CreateToken)
			link.POST("/exchange", linkHandler.Exchange)
			link.GET("/accounts", linkHandler.List)
		}

		api.POST("/webhooks/transfer", webhookHandler.Handle)
	}

	if deps.Cloud != nil {
		uploadHandler := handler.NewUploadHandler(deps.Cloud, userRepo)
		api.POST("/me/avatar", authMw, uploadHandler.UploadAvatar)
	}

	r.GET("/ws/activity", ws.UpgradeActivityWS(&cfg.JWT, circleHub, circleRepo))

	return r
}
