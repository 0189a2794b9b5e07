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
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/text/language"

	"github.com/fiscalpos/fiscalpos/internal/app"
	"github.com/fiscalpos/fiscalpos/internal/fiscal"
	jobmetrics "github.com/fiscalpos/fiscalpos/internal/jobs"
	"github.com/fiscalpos/fiscalpos/internal/platform/db"
	"github.com/fiscalpos/fiscalpos/internal/shared"
	"github.com/fiscalpos/fiscalpos/internal/shifts"
	"github.com/fiscalpos/fiscalpos/jobs"
	"github.com/fiscalpos/fiscalpos/report"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
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

	pool, err := db.New(ctx, cfg.PGDSN, db.PoolOptions{MaxConns: cfg.PGMaxConns})
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	auditLogger := shared.NewAuditLogger(pool)
	metrics := jobmetrics.NewMetrics(nil)

	// Range administration is never mutated from the worker, so no cache invalidator.
	fiscalService := fiscal.NewService(fiscal.NewRepository(pool, cfg.DBTxRetries), auditLogger, nil, nil, logger)
	shiftService := shifts.NewService(shifts.NewRepository(pool, cfg.DBTxRetries), auditLogger, nil, logger)

	location, err := time.LoadLocation(cfg.ReportTimezone)
	if err != nil {
		logger.Error("load report timezone", slog.String("timezone", cfg.ReportTimezone), slog.Any("error", err))
		os.Exit(1)
	}
	renderer, err := report.NewShiftRenderer(report.NewClient(cfg.GotenbergURL), language.MustParse(cfg.ReportLocale), location)
	if err != nil {
		logger.Error("init shift renderer", slog.Any("error", err))
		os.Exit(1)
	}

	rangeWatch := jobs.NewRangeWatchJob(fiscalService, cfg.FiscalLowCapacityThreshold, cfg.FiscalExpiryWarningDays, logger, metrics)
	shiftReport := jobs.NewShiftReportJob(jobs.ShiftReportJobConfig{
		Source:     shiftService,
		Renderer:   renderer,
		StorageDir: cfg.ReportStorageDir,
		Logger:     logger,
		Metrics:    metrics,
	})
	cleanup := &jobs.IdempotencyCleanupJob{
		Store:   shared.NewIdempotencyStore(pool),
		Logger:  logger,
		Metrics: metrics,
	}

	watchTask, err := jobs.NewRangeWatchTask(jobs.RangeWatchPayload{
		LowCapacity: cfg.FiscalLowCapacityThreshold,
		ExpiryDays:  cfg.FiscalExpiryWarningDays,
	})
	if err != nil {
		logger.Error("build range watch task", slog.Any("error", err))
		os.Exit(1)
	}
	cleanupTask, err := jobs.NewIdempotencyCleanupTask(cfg.IdempotencyRetention)
	if err != nil {
		logger.Error("build cleanup task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword},
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskFiscalRangeWatch, Handler: rangeWatch.Handle},
			{Type: jobs.TaskShiftReport, Handler: shiftReport.Handle},
			{Type: jobs.TaskIdempotencyCleanup, Handler: cleanup.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.FiscalWatchCron, Task: watchTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "30 3 * * *", Task: cleanupTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	metricsServer := &http.Server{
		Addr:              cfg.WorkerMetricsAddr,
		Handler:           promhttp.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("worker metrics server", slog.Any("error", err))
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
