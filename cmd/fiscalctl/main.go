package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/fiscalpos/fiscalpos/cmd/fiscalctl/cli"
	"github.com/fiscalpos/fiscalpos/internal/app"
	"github.com/fiscalpos/fiscalpos/internal/fiscal"
	"github.com/fiscalpos/fiscalpos/internal/platform/cache"
	"github.com/fiscalpos/fiscalpos/internal/platform/db"
	"github.com/fiscalpos/fiscalpos/internal/shared"
	"github.com/fiscalpos/fiscalpos/migrations"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	root := cli.NewRootCommand(cli.Env{
		OpenRanges: func(ctx context.Context) (cli.RangeAdmin, func(), error) {
			pool, err := db.New(ctx, cfg.PGDSN, db.PoolOptions{MaxConns: 2})
			if err != nil {
				return nil, nil, err
			}
			release := pool.Close
			var invalidator fiscal.Invalidator
			// Without Redis the API keeps its cached selection until the TTL lapses.
			if client, err := cache.New(ctx, cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword}); err != nil {
				logger.Warn("redis unavailable, range cache not invalidated", slog.Any("error", err))
			} else {
				invalidator = fiscal.NewCache(client, cfg.RangeCacheTTL)
				release = func() {
					_ = client.Close()
					pool.Close()
				}
			}
			svc := fiscal.NewService(fiscal.NewRepository(pool, cfg.DBTxRetries), shared.NewAuditLogger(pool), invalidator, nil, logger)
			return svc, release, nil
		},
		OpenJobs: func(context.Context) (cli.JobQueue, func(), error) {
			jobsCLI := cli.NewJobsCLI(asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
			return jobsCLI, func() {
				if err := jobsCLI.Close(); err != nil {
					logger.Warn("jobs cli close", slog.Any("error", err))
				}
			}, nil
		},
		Migrate: func(ctx context.Context) ([]string, error) {
			pool, err := db.New(ctx, cfg.PGDSN, db.PoolOptions{MaxConns: 1})
			if err != nil {
				return nil, err
			}
			defer pool.Close()
			return migrations.Apply(ctx, pool)
		},
	})

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fiscalctl: %v\n", err)
		os.Exit(1)
	}
}
