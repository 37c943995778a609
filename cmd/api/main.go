package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/kpcloud/kpcloud/internal/account"
	"github.com/kpcloud/kpcloud/internal/activity"
	"github.com/kpcloud/kpcloud/internal/auth"
	"github.com/kpcloud/kpcloud/internal/billing"
	"github.com/kpcloud/kpcloud/internal/config"
	"github.com/kpcloud/kpcloud/internal/file"
	"github.com/kpcloud/kpcloud/internal/logger"
	"github.com/kpcloud/kpcloud/internal/notify"
	"github.com/kpcloud/kpcloud/internal/presigned"
	"github.com/kpcloud/kpcloud/internal/quota"
	"github.com/kpcloud/kpcloud/internal/server"
	"github.com/kpcloud/kpcloud/internal/storage"
	"github.com/kpcloud/kpcloud/internal/trash"
	"github.com/kpcloud/kpcloud/internal/usage"
	"go.uber.org/zap"
)

func main() {
	// a missing .env is fine; the environment may already be populated
	_ = godotenv.Load()

	zl, err := logger.Init()
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		zl.Fatal("load config", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := storage.OpenDatabase(ctx, cfg)
	if err != nil {
		zl.Fatal("open database", zap.String("driver", cfg.Database.Driver), zap.Error(err))
	}
	defer db.Close()

	store, err := storage.OpenObjectStore(ctx, cfg)
	if err != nil {
		zl.Fatal("open object store", zap.String("driver", cfg.ObjectStore.Driver), zap.Error(err))
	}

	verifier, err := auth.NewVerifier(ctx, cfg.Auth)
	if err != nil {
		zl.Fatal("init token verifier", zap.String("mode", cfg.Auth.Mode), zap.Error(err))
	}

	sender, closeSender, err := newSender(ctx, cfg, zl)
	if err != nil {
		zl.Fatal("init notification sender", zap.String("sender", cfg.Notify.Sender), zap.Error(err))
	}
	defer closeSender()

	locks := account.NewLocker()
	activities := activity.NewService(db.Activity, zl)
	accountant := usage.NewAccountant(store, cfg.ObjectStore.UsageScanTimeout)
	guard := quota.NewGuard(db.Accounts, accountant)
	trashService := trash.NewService(store, activities, zl)
	billingService := billing.NewService(db.Accounts, store, locks, notify.NewDispatcher(sender, zl), activities, cfg.Billing, zl)

	router := server.NewRouter(server.Dependencies{
		Config:      cfg,
		Log:         zl,
		Database:    db,
		ObjectStore: store,
		Verifier:    verifier,
		Accounts:    account.NewService(db.Accounts, locks, accountant, activities, cfg.Billing, zl),
		Billing:     billingService,
		Usage:       accountant,
		Files:       file.NewService(store, guard, trashService, activities, zl),
		Trash:       trashService,
		Grants:      presigned.NewService(store, guard, activities, cfg.Grants),
		Activity:    activities,
	})

	if cfg.Sweeper.Enabled {
		sweeper := billing.NewSweeper(billingService, db.Accounts, cfg.Sweeper.Interval, zl)
		go func() {
			if err := sweeper.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				zl.Error("billing sweeper stopped", zap.Error(err))
			}
		}()
	}

	httpServer := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		zl.Info("KPCloud API listening",
			zap.String("addr", cfg.Server.Address()),
			zap.String("object_store", cfg.ObjectStore.Driver),
			zap.String("database", cfg.Database.Driver))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zl.Fatal("http server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	zl.Info("shutting down gracefully")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		zl.Error("shutdown error", zap.Error(err))
	}
}

func newSender(ctx context.Context, cfg config.Config, zl *zap.Logger) (notify.Sender, func(), error) {
	switch cfg.Notify.Sender {
	case "pubsub":
		publisher, err := notify.NewPubSubPublisher(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			return nil, nil, err
		}
		closeFn := func() {
			if err := publisher.Close(); err != nil {
				zl.Warn("close pubsub client", zap.Error(err))
			}
		}
		return notify.NewPubSubSender(publisher, cfg.PubSub.Topic, cfg.Notify.From), closeFn, nil
	default:
		return notify.NewLogSender(zl), func() {}, nil
	}
}
