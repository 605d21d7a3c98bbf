package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/chris/debt-ledger-bot/pkg/bootstrap"
	"github.com/chris/debt-ledger-bot/pkg/config"
	"github.com/chris/debt-ledger-bot/pkg/handlers"
	"github.com/chris/debt-ledger-bot/pkg/logger"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}
	zl := logger.Must("debt-ledger-bot", cfg.Environment, cfg.LogLevel)
	defer func() { _ = zl.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.Build(ctx, cfg, zl, true)
	if err != nil {
		zl.Fatal("failed to build application", zap.Error(err))
	}
	defer func() {
		if err := app.Close(); err != nil {
			zl.Warn("failed to close resources", zap.Error(err))
		}
	}()

	if cfg.WebhookSecret == "" {
		if cfg.IsDevelopment() {
			zl.Warn("WEBHOOK_SECRET is not set; webhook calls are not authenticated")
		} else {
			zl.Warn("WEBHOOK_SECRET is not set; the webhook rejects every request")
		}
	}
	if cfg.AdminAPIToken == "" {
		zl.Warn("ADMIN_API_TOKEN is not set; the admin API rejects every request")
	}

	router := handlers.NewRouter(handlers.RouterConfig{
		Store:            app.Store,
		Ledger:           app.Ledger,
		Sweeper:          app.Outbox,
		Events:           app.Dispatcher,
		Scheduler:        app.Scheduler,
		WebhookSecret:    cfg.WebhookSecret,
		AllowOpenWebhook: cfg.IsDevelopment(),
		AdminToken:       cfg.AdminAPIToken,
		Gatherer:         app.Metrics,
		Logger:           zl.Named("http"),
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	sweepDone := make(chan struct{})
	go func() {
		defer close(sweepDone)
		runSweeper(ctx, cfg.Outbox.SweepInterval, app.Outbox.Sweep, app.PurgeExpiredUpdates, zl.Named("sweeper"))
	}()

	go func() {
		zl.Info("starting server", zap.String("addr", srv.Addr), zap.String("storage", cfg.StorageBackend))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zl.Error("server failed", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	zl.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zl.Error("server forced to shutdown", zap.Error(err))
	}
	<-sweepDone

	zl.Info("server exited")
}
