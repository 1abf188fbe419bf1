package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	_ "go.uber.org/automaxprocs"
	"go.uber.org/zap"

	"github.com/lhalley/roomcast/internal/v1/config"
	"github.com/lhalley/roomcast/internal/v1/health"
	"github.com/lhalley/roomcast/internal/v1/logging"
	"github.com/lhalley/roomcast/internal/v1/ratelimit"
	"github.com/lhalley/roomcast/internal/v1/room"
	"github.com/lhalley/roomcast/internal/v1/transport"
)

func main() {
	// Load .env file for local development.
	// Try multiple paths to handle different ways of running the app
	envPaths := []string{".env", "../../../.env", "../../.env"}
	var envLoaded bool

	for _, path := range envPaths {
		if err := godotenv.Load(path); err == nil {
			slog.Info("Loaded environment from", "path", path)
			envLoaded = true
			break
		}
	}

	if !envLoaded {
		slog.Warn("No .env file found in any expected location, relying on environment variables")
	}

	// Validate environment variables before starting the server
	cfg, err := config.ValidateEnv()
	if err != nil {
		slog.Error("Environment validation failed", "error", err)
		os.Exit(1)
	}

	if err := logging.Initialize(cfg.LogLevel, cfg.DevelopmentMode); err != nil {
		slog.Error("Failed to initialize logger", "error", err)
		os.Exit(1)
	}
	defer func() { _ = logging.GetLogger().Sync() }()

	ctx := context.Background()

	if cfg.DevelopmentMode {
		logging.Info(ctx, "Running in DEVELOPMENT MODE")
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	// --- Core wiring ---
	registry := room.NewRegistry(cfg.HistorySize, cfg.RemoveAfter)

	rateLimiter, err := ratelimit.NewRateLimiter(cfg)
	if err != nil {
		logging.Fatal(ctx, "Failed to create rate limiter", zap.Error(err))
	}

	handler := transport.NewHandler(registry, rateLimiter, cfg)
	healthHandler := health.NewHandler(registry)
	router := transport.NewRouter(cfg, handler, healthHandler, rateLimiter)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	// Start the server in a goroutine so it doesn't block; a bind
	// failure must exit non-zero rather than drift into the graceful
	// shutdown path.
	serveErr := make(chan error, 1)
	go func() {
		logging.Info(ctx, "Server starting", zap.String("port", cfg.Port))
		serveErr <- srv.ListenAndServe()
	}()

	// Wait for an interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			registry.Close()
			logging.Fatal(ctx, "Server failed", zap.Error(err))
		}
	case sig := <-quit:
		logging.Info(ctx, "Shutting down server", zap.String("signal", sig.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	// Closing the registry aborts pending eviction timers and closes
	// every hub, which ends each session's send loop and drains the
	// WebSocket connections.
	registry.Close()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Error(ctx, "Server forced to shutdown", zap.Error(err))
	}

	logging.Info(ctx, "Server exiting")
}
