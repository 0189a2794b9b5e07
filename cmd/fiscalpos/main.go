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

	"github.com/hibiken/asynq"
	"golang.org/x/text/language"

	"github.com/fiscalpos/fiscalpos/internal/app"
	"github.com/fiscalpos/fiscalpos/internal/fiscal"
	"github.com/fiscalpos/fiscalpos/internal/inventory"
	"github.com/fiscalpos/fiscalpos/internal/observability"
	"github.com/fiscalpos/fiscalpos/internal/platform/cache"
	"github.com/fiscalpos/fiscalpos/internal/platform/db"
	"github.com/fiscalpos/fiscalpos/internal/purchasing"
	"github.com/fiscalpos/fiscalpos/internal/sales"
	"github.com/fiscalpos/fiscalpos/internal/shared"
	"github.com/fiscalpos/fiscalpos/internal/shifts"
	"github.com/fiscalpos/fiscalpos/jobs"
	"github.com/fiscalpos/fiscalpos/report"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	dbpool, err := db.New(ctx, cfg.PGDSN, db.PoolOptions{MaxConns: cfg.PGMaxConns})
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	auditLogger := shared.NewAuditLogger(dbpool)
	idempotencyStore := shared.NewIdempotencyStore(dbpool)

	rangeCache := fiscal.NewCache(redisClient, cfg.RangeCacheTTL)
	resolver := fiscal.NewResolver(rangeCache, logger)
	fiscalService := fiscal.NewService(fiscal.NewRepository(dbpool, cfg.DBTxRetries), auditLogger, rangeCache, metrics, logger)

	salesService := sales.NewService(
		sales.NewRepository(dbpool, cfg.DBTxRetries),
		resolver,
		idempotencyStore,
		auditLogger,
		metrics,
		logger,
		sales.ServiceConfig{AllowNegativeStock: cfg.AllowNegativeStock},
	)
	purchasingService := purchasing.NewService(purchasing.NewRepository(dbpool, cfg.DBTxRetries), auditLogger, logger)
	inventoryService := inventory.NewService(
		inventory.NewRepository(dbpool, cfg.DBTxRetries),
		auditLogger,
		logger,
		inventory.ServiceConfig{AllowNegativeStock: cfg.AllowNegativeStock},
	)

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword}
	jobClient := jobs.NewClient(redisOpts)
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()
	shiftService := shifts.NewService(shifts.NewRepository(dbpool, cfg.DBTxRetries), auditLogger, jobClient, logger)

	location, err := time.LoadLocation(cfg.ReportTimezone)
	if err != nil {
		logger.Error("load report timezone", slog.String("timezone", cfg.ReportTimezone), slog.Any("error", err))
		os.Exit(1)
	}
	reportClient := report.NewClient(cfg.GotenbergURL)
	shiftRenderer, err := report.NewShiftRenderer(reportClient, language.MustParse(cfg.ReportLocale), location)
	if err != nil {
		logger.Error("init shift renderer", slog.Any("error", err))
		os.Exit(1)
	}

	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:            logger,
		Config:            cfg,
		Metrics:           metrics,
		FiscalHandler:     fiscal.NewHandler(logger, fiscalService),
		SalesHandler:      sales.NewHandler(logger, salesService),
		PurchasingHandler: purchasing.NewHandler(logger, purchasingService),
		ShiftsHandler:     shifts.NewHandler(logger, shiftService),
		InventoryHandler:  inventory.NewHandler(logger, inventoryService),
		ReportHandler:     report.NewHandler(reportClient, shiftRenderer, shiftService, logger),
		JobHandler:        jobs.NewHandler(inspector, logger),
		Readiness: map[string]app.ReadinessCheck{
			"postgres": dbpool.Ping,
			"redis": func(ctx context.Context) error {
				return redisClient.Ping(ctx).Err()
			},
		},
	})

	server := &http.Server{
		Addr:              cfg.AppAddr,
		Handler:           router,
		ReadTimeout:       cfg.AppReadTimeout,
		ReadHeaderTimeout: cfg.AppReadTimeout,
		WriteTimeout:      cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr), slog.String("env", cfg.AppEnv))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
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
