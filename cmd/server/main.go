package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/sharesphere/spherecore/internal/api"
	"github.com/sharesphere/spherecore/internal/api/auth"
	"github.com/sharesphere/spherecore/internal/app"
	"github.com/sharesphere/spherecore/pkg/config"
	"github.com/sharesphere/spherecore/pkg/logging"
	"github.com/sharesphere/spherecore/pkg/telemetry"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	if err := logging.InitLogger(&cfg.Logging); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logging.GetLogger().Sync()

	logger := logging.GetLogger()
	logger.Info("Starting ShareSphere API Server", zap.String("store", cfg.Store.Backend))

	if cfg.Auth.JWTSecret == "" {
		logger.Fatal("jwt_secret is required")
	}

	// Initialize telemetry
	telemetryShutdown, err := telemetry.Init(&cfg.Telemetry)
	if err != nil {
		logger.Fatal("Failed to initialize telemetry", zap.Error(err))
	}
	defer telemetryShutdown()

	// Connect backing services
	startCtx, cancelStart := context.WithTimeout(context.Background(), 30*time.Second)
	services, err := app.New(startCtx, cfg)
	cancelStart()
	if err != nil {
		logger.Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	// Keep stored post scores decaying between votes
	refreshCtx, stopRefresh := context.WithCancel(context.Background())
	defer stopRefresh()
	if cfg.Ranking.RefreshInterval > 0 {
		go func() {
			logger.Info("Score refresher starting",
				zap.Duration("interval", cfg.Ranking.RefreshInterval),
				zap.Duration("window", cfg.Ranking.RefreshWindow))
			err := services.Engine.Ranking.RunRefresher(refreshCtx, cfg.Ranking.RefreshInterval, cfg.Ranking.RefreshWindow)
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("Score refresher stopped", zap.Error(err))
			}
		}()
	}

	// Create Gin router
	if cfg.Logging.Level == "DEBUG" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())

	apiRouter := api.NewRouter(services.Engine, auth.NewVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer))
	for name, check := range services.Checks {
		apiRouter.AddHealthCheck(name, api.HealthCheck(check))
	}
	apiRouter.SetupRoutes(router)

	// Create HTTP server
	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: router,
	}

	// Start server in goroutine
	go func() {
		logger.Info("Server starting", zap.String("address", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	metricsSrv := telemetry.MetricsServer(&cfg.Telemetry, cfg.Server.Host)
	if metricsSrv != nil {
		go func() {
			logger.Info("Metrics server starting", zap.String("address", metricsSrv.Addr))
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("Metrics server failed", zap.Error(err))
			}
		}()
	}

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	stopRefresh()

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if metricsSrv != nil {
		if err := metricsSrv.Shutdown(ctx); err != nil {
			logger.Error("Metrics server forced to shutdown", zap.Error(err))
		}
	}
	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}
