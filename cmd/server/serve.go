package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"

	"github.com/EgehanKilicarslan/pdfsaas/backend-go/internal/api"
	"github.com/EgehanKilicarslan/pdfsaas/backend-go/internal/billing"
	"github.com/EgehanKilicarslan/pdfsaas/backend-go/internal/config"
	"github.com/EgehanKilicarslan/pdfsaas/backend-go/internal/database"
	"github.com/EgehanKilicarslan/pdfsaas/backend-go/internal/database/repository"
	"github.com/EgehanKilicarslan/pdfsaas/backend-go/internal/database/service"
	internalgrpc "github.com/EgehanKilicarslan/pdfsaas/backend-go/internal/grpc"
	"github.com/EgehanKilicarslan/pdfsaas/backend-go/internal/handler"
	"github.com/EgehanKilicarslan/pdfsaas/backend-go/internal/logger"
	"github.com/EgehanKilicarslan/pdfsaas/backend-go/internal/middleware"
	"github.com/EgehanKilicarslan/pdfsaas/backend-go/internal/observability"
	"github.com/EgehanKilicarslan/pdfsaas/backend-go/internal/worker"
)

const backgroundTaskTimeout = 10 * time.Second

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP and gRPC servers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 1. Config
	cfg := config.LoadConfig()

	// 2. Logger
	appLogger := logger.New(cfg)
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	appLogger.Info("🚀 [Go] Starting entitlement engine...",
		"environment", cfg.AppEnv,
		"http_port", cfg.ApiServicePort,
		"grpc_port", cfg.ApiGrpcPort,
	)

	// 3. Connect to Database
	db, err := database.ConnectDatabase(ctx, cfg, appLogger)
	if err != nil {
		appLogger.Error("❌ Failed to connect to database", "error", err)
		return err
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}

	// 4. Initialize Repositories
	subRepo := repository.NewSubscriptionRepository(db)
	usageRepo := repository.NewUsageRepository(db)
	fileHistoryRepo := repository.NewFileHistoryRepository(db)
	txnRepo := repository.NewBillingTransactionRepository(db)

	// 5. Initialize Redis Client
	var cache database.SubscriptionCache
	var throttle database.RequestThrottle
	redisClient, err := database.NewRedisClient(ctx, cfg, appLogger)
	if err != nil {
		appLogger.Warn("⚠️ Failed to connect to Redis", "error", err)
		appLogger.Info("💡 Subscriptions will be read from Postgres only and request throttling is disabled")
	} else {
		cache = redisClient
		throttle = redisClient
		defer redisClient.Close()
	}

	// 6. Metrics, billing provider and background pool
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(registry)

	provider := billing.NewProvider(cfg.StripeSecretKey, cfg.StripeWebhookSecret, appLogger)
	pool := worker.NewPool(backgroundTaskTimeout, appLogger)

	// 7. Initialize Services
	entitlements := service.NewEntitlementService(service.Dependencies{
		Subscriptions: subRepo,
		Usage:         usageRepo,
		FileHistory:   fileHistoryRepo,
		Transactions:  txnRepo,
		Provider:      provider,
		Catalog:       config.NewCatalog(cfg.PriceRefs()),
		Cache:         cache,
		Pool:          pool,
		Metrics:       metrics,
	}, cfg, appLogger)
	authService := service.NewAuthService(cfg)

	// 8. Initialize Handlers & Middleware
	handlers := api.Handlers{
		Plans:         handler.NewPlanHandler(entitlements),
		Subscriptions: handler.NewSubscriptionHandler(entitlements, appLogger),
		Usage:         handler.NewUsageHandler(entitlements, appLogger),
		Webhooks:      handler.NewWebhookHandler(provider, entitlements, appLogger),
	}
	authMiddleware := middleware.NewAuthMiddleware(authService, appLogger)
	rateLimiter := middleware.NewRateLimiter(throttle, entitlements, appLogger)

	// 9. Start gRPC Server (Worker -> Go)
	grpcServer := grpc.NewServer()
	healthServer := internalgrpc.RegisterMeteringServer(grpcServer, internalgrpc.NewMeteringServer(entitlements, appLogger))

	grpcListener, err := net.Listen("tcp", fmt.Sprintf(":%s", cfg.ApiGrpcPort))
	if err != nil {
		appLogger.Error("❌ Failed to listen for gRPC", "error", err)
		return err
	}

	errCh := make(chan error, 2)
	go func() {
		appLogger.Info("🔌 [Go] gRPC Server running...", "port", cfg.ApiGrpcPort)
		if err := grpcServer.Serve(grpcListener); err != nil {
			errCh <- fmt.Errorf("gRPC server: %w", err)
		}
	}()

	// 10. Start HTTP Server
	r := api.SetupRouter(handlers, authMiddleware, rateLimiter, metrics)
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.ApiServicePort),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		appLogger.Info("🌍 [Go] HTTP Server running on port...", "port", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		appLogger.Info("🛑 [Go] Shutdown signal received")
	case runErr = <-errCh:
		appLogger.Error("❌ Server failed", "error", runErr)
	}

	// 11. Graceful shutdown
	shutdownTimeout := time.Duration(cfg.ShutdownTimeout) * time.Second
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	healthServer.Shutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("❌ HTTP Server forced to shutdown", "error", err)
	}
	grpcServer.GracefulStop()
	pool.Shutdown(shutdownTimeout)

	appLogger.Info("👋 [Go] Servers stopped")
	return runErr
}
