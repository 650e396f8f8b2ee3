package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/wabridge/wabridge/internal/api"
	"github.com/wabridge/wabridge/internal/client/bridge"
	"github.com/wabridge/wabridge/internal/config"
	"github.com/wabridge/wabridge/internal/controller"
	"github.com/wabridge/wabridge/internal/state"
	"github.com/wabridge/wabridge/internal/storage"
	"github.com/wabridge/wabridge/internal/webhook"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer logger.Sync()

	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	settings, err := storage.NewSettings(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("open settings: %w", err)
	}
	runtime, err := settings.Load()
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	messageLog, err := storage.OpenMessageLog(filepath.Join(cfg.DataDir, "messages.db"))
	if err != nil {
		return fmt.Errorf("open message log: %w", err)
	}
	defer messageLog.Close()

	store := state.NewStore()
	store.SetWebhookURL(runtime.WebhookURL)
	store.SetListening(runtime.Listening)

	caches := storage.NewCacheDirs(cfg.DataDir)
	relay := webhook.New(logger, messageLog, cfg.WebhookMaxInFlight)

	factory := bridge.Factory(bridge.Config{
		URL:        cfg.BridgeURL,
		AuthDir:    caches.AuthDir,
		ProfileDir: caches.ProfileDir,
	}, logger)

	ctrl := controller.New(controller.Config{SettleDelay: cfg.SettleDelay},
		logger, store, factory, relay, caches, clock.New())
	ctrl.Start()
	defer ctrl.Stop()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	watchdog := controller.NewWatchdog(cfg.WatchdogInterval, cfg.StaleThreshold,
		store, func(reason string) { go ctrl.Recover(false, reason) }, clock.New(), logger)
	go watchdog.Run(ctx)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	api.NewHandler(store, ctrl, settings, messageLog, logger).Mount(r)

	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.String("addr", cfg.ListenAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown incomplete", zap.Error(err))
	}
	relay.Wait()
	return nil
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	zcfg := zap.NewProductionConfig()
	zcfg.Level = lvl
	return zcfg.Build()
}
