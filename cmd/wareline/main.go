package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"

	"github.com/wareline/wareline/internal/app"
	"github.com/wareline/wareline/internal/catalog"
	"github.com/wareline/wareline/internal/inventory"
	"github.com/wareline/wareline/internal/observability"
	"github.com/wareline/wareline/internal/platform/cache"
	"github.com/wareline/wareline/internal/platform/db"
	"github.com/wareline/wareline/internal/procurement"
	"github.com/wareline/wareline/internal/shared"
	"github.com/wareline/wareline/jobs"
)

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		// Stock reads fall back to Postgres when Redis is unavailable.
		logger.Warn("redis unavailable", slog.Any("error", err))
		redisClient = nil
	}
	defer func() {
		if redisClient == nil {
			return
		}
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	auditLogger := shared.NewAuditLogger(pool)
	idempotencyStore := shared.NewIdempotencyStore(pool)

	stockCache := inventory.NewStockCache(redisClient, cfg.StockCacheTTL)
	inventoryRepo := inventory.NewRepository(pool)
	inventoryService := inventory.NewService(inventoryRepo, auditLogger, stockCache, metrics, inventory.ServiceConfig{
		AllowNegativeStock: cfg.AllowNegativeStock,
	})
	inventoryHandler := inventory.NewHandler(logger, inventoryService)

	procurementRepo := procurement.NewRepository(pool)
	procurementService := procurement.NewService(procurementRepo, inventoryService, auditLogger, idempotencyStore)
	procurementHandler := procurement.NewHandler(logger, procurementService)

	catalogRepo := catalog.NewRepository(pool)
	catalogService := catalog.NewService(catalogRepo, logger)
	catalogHandler := catalog.NewHandler(logger, catalogService)

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobClient, err := jobs.NewClient(redisOpts)
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, jobClient, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		InventoryHandler:   inventoryHandler,
		ProcurementHandler: procurementHandler,
		CatalogHandler:     catalogHandler,
		JobHandler:         jobHandler,
		Metrics:            metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
