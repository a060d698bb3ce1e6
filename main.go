package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"treesync/internal/api"
	"treesync/internal/app"
	"treesync/internal/config"
	"treesync/internal/logging"
	"treesync/internal/middleware"
)

func main() {
	// Load configuration
	cfg, err := config.LoadOrDefault(config.ConfigPath())
	if err != nil {
		log.Fatal("failed to load config:", err)
	}

	// Initialize logger
	logger, err := logging.NewLogger(cfg.LogLevel, cfg.Development())
	if err != nil {
		log.Fatal("failed to initialize logger:", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Open the remote store and session
	a, err := app.Open(ctx, cfg, logger.Logger)
	if err != nil {
		logger.Fatal("failed to open remote", zap.String("remote", cfg.Remote.Kind), zap.Error(err))
	}
	defer a.Close()

	// Set up router
	mux := http.NewServeMux()
	api.NewSyncHandler(a.Session, logger).Register(mux)

	// Apply middleware
	handler := middleware.Chain(
		mux,
		middleware.Logger(logger),
		middleware.Recover(logger),
		middleware.RequestID,
	)

	// Start server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{Addr: addr, Handler: handler}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Info("starting server",
		zap.String("address", addr),
		zap.String("remote", cfg.Remote.Kind),
		zap.Strings("branches", a.Session.Branches()))

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("server failed", zap.Error(err))
	}
}
