// The worker runs the scheduled passes: daily allocation suggestions,
// recurring contributions, rotation advancement and reminders. Rotation
// passes additionally take a per-circle Redis lease so multiple worker
// replicas never process the same circle concurrently.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"miturn/config"
	"miturn/internal/database"
	"miturn/internal/lease"
	"miturn/internal/repository"
	"miturn/internal/service"
	"miturn/pkg/analytics"
	"miturn/pkg/bank"
	"miturn/pkg/messaging"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

func main() {
	cfg := config.Load()
	logger := newLogger(cfg.Server.Env)
	defer logger.Sync()

	db, err := database.NewDB(&cfg.Database)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}

	var locker lease.Locker = lease.NopLocker{}
	if cfg.Redis.Addr != "" {
		rdb, err := lease.NewRedisClient(context.Background(), cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			logger.Fatal("redis", zap.Error(err))
		}
		locker = lease.NewRedisLocker(rdb, logger)
	} else {
		logger.Warn("no REDIS_ADDR set, rotation passes run without leases")
	}

	var transfer bank.Provider = &bank.StubProvider{}
	if cfg.Plaid.ClientID != "" {
		transfer = bank.NewPlaidProvider(cfg.Plaid.BaseURL, cfg.Plaid.ClientID, cfg.Plaid.Secret, cfg.Plaid.WebhookBase)
	}
	var sender messaging.Sender = &messaging.StubSender{Logger: logger}
	if cfg.SendGrid.APIKey != "" {
		sender = messaging.NewSendGridSender(cfg.SendGrid.APIKey, cfg.SendGrid.FromEmail, cfg.SendGrid.FromName, nil)
	}
	var tracker analytics.Tracker = analytics.Noop{}
	if cfg.Analytics.Endpoint != "" {
		tracker = analytics.NewClient(cfg.Analytics.Endpoint, cfg.Analytics.WriteKey, logger)
	}

	userRepo := repository.NewUserRepository(db)
	circleRepo := repository.NewCircleRepository(db)
	txRepo := repository.NewTransactionRepository(db)
	goalRepo := repository.NewGoalRepository(db)
	allocRepo := repository.NewAllocationRepository(db)
	recurringRepo := repository.NewRecurringRepository(db)
	reminderRepo := repository.NewReminderRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)
	accountRepo := repository.NewLinkedAccountRepository(db)
	gamifyRepo := repository.NewGamificationRepository(db)

	ledger := service.NewLedgerService(txRepo, logger)
	notifSvc := service.NewNotificationService(notificationRepo, nil, logger)
	rotation := service.NewRotationService(circleRepo, txRepo, ledger, accountRepo, transfer, notifSvc, tracker, logger)
	allocation := service.NewAllocationService(goalRepo, allocRepo, service.AllocationConfig{
		MinCents:         cfg.Allocation.MinCents,
		MaxCents:         cfg.Allocation.MaxCents,
		MaxDailyCents:    cfg.Allocation.MaxDailyCents,
		SplitAcrossGoals: cfg.Allocation.SplitAcrossGoals,
	}, tracker, logger)
	allocation.SubscribeTo(ledger)
	gamify := service.NewGamificationService(gamifyRepo, notifSvc, tracker, logger)
	gamify.SubscribeTo(ledger)
	allocation.OnGoalAchieved(gamify)
	notifSvc.SubscribeTo(ledger)
	contribution := service.NewContributionService(ledger, txRepo, accountRepo, transfer, recurringRepo, circleRepo, logger)
	reminder := service.NewReminderService(reminderRepo, userRepo, circleRepo, rotation, sender, notifSvc, tracker, service.ReminderConfig{
		UrgentAfterDays:  cfg.Reminder.UrgentAfterDays,
		OverdueAfterDays: cfg.Reminder.OverdueAfterDays,
	}, logger)

	c := cron.New()
	mustAdd(c, logger, "allocation", cfg.Worker.AllocationSpec, func(ctx context.Context) error {
		_, err := allocation.RunDailyPass(ctx, time.Now().UTC())
		return err
	})
	mustAdd(c, logger, "recurring", cfg.Worker.RecurringSpec, func(ctx context.Context) error {
		_, err := contribution.RunRecurringPass(ctx, time.Now().UTC())
		return err
	})
	mustAdd(c, logger, "rotation", cfg.Worker.RotationSpec, func(ctx context.Context) error {
		_, err := rotation.RunAll(ctx, time.Now().UTC(),
			func(circleID uint) bool {
				ok, err := locker.Acquire(ctx, circleKey(circleID), cfg.Worker.LeaseTTL)
				return err == nil && ok
			},
			func(circleID uint) {
				_ = locker.Release(ctx, circleKey(circleID))
			})
		return err
	})
	mustAdd(c, logger, "reminder", cfg.Worker.ReminderSpec, func(ctx context.Context) error {
		_, err := reminder.RunPass(ctx, time.Now().UTC())
		return err
	})

	c.Start()
	logger.Info("worker started",
		zap.String("allocation", cfg.Worker.AllocationSpec),
		zap.String("recurring", cfg.Worker.RecurringSpec),
		zap.String("rotation", cfg.Worker.RotationSpec),
		zap.String("reminder", cfg.Worker.ReminderSpec))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("worker stopping")
	<-c.Stop().Done()
}

func mustAdd(c *cron.Cron, logger *zap.Logger, name, spec string, run func(ctx context.Context) error) {
	_, err := c.AddFunc(spec, func() {
		start := time.Now()
		if err := run(context.Background()); err != nil {
			logger.Error("pass finished with errors", zap.String("pass", name), zap.Error(err))
		}
		logger.Info("pass done", zap.String("pass", name), zap.Duration("took", time.Since(start)))
	})
	if err != nil {
		logger.Fatal("invalid cron spec", zap.String("pass", name), zap.String("spec", spec), zap.Error(err))
	}
}

func circleKey(circleID uint) string {
	return fmt.Sprintf("rotation:circle:%d", circleID)
}

func newLogger(env string) *zap.Logger {
	if env == "production" {
		l, _ := zap.NewProduction()
		return l
	}
	l, _ := zap.NewDevelopment()
	return l
}
