package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"github.com/cs2predict/predict-api/internal/config"
	"github.com/cs2predict/predict-api/internal/handlers"
	"github.com/cs2predict/predict-api/internal/logic"
	"github.com/cs2predict/predict-api/internal/observability"
	"github.com/cs2predict/predict-api/internal/pipeline"
	"github.com/cs2predict/predict-api/internal/scheduler"
	"github.com/cs2predict/predict-api/internal/store"
	"github.com/cs2predict/predict-api/internal/task"
	"github.com/cs2predict/predict-api/internal/worker"
)

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:   "serve",
		Usage:  "run the scheduler and the evaluation API",
		Action: serve,
		Description: `
Environment variables:
	STORE_DSN              (required)
	STORE_DRIVER           (default: mysql, or postgres)
	STORE_MAX_OPEN_CONNS   (default: 10)
	CONNECT_ATTEMPTS       (default: 5, per backend at startup)
	PORT                   (default: 8080)
	ENV                    (production selects JSON logs)
	LOG_LEVEL              (debug, info, warn, error)
	ALLOWED_ORIGINS        (default: http://localhost:5173)
	REDIS_URL              (enables the response cache and pipeline status hash)
	CACHE_TTL              (default: 5m)
	CLICKHOUSE_URL         (enables stage run history)
	PIPELINES_FILE         (default: pipelines.yaml)
	SCHEDULER_TIMEZONE     (default: local time)
	STAGE_TIMEOUT          (default: none)
	SHUTDOWN_TIMEOUT       (default: 30s)
	HISTORY_WORKERS, HISTORY_QUEUE_SIZE, HISTORY_BATCH_SIZE, HISTORY_FLUSH_INTERVAL
`,
	}
}

func serve(ctx context.Context, cmd *cli.Command) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if f := cmd.String("pipelines"); f != "" {
		cfg.PipelinesFile = f
	}

	logger, err := observability.NewLogger(cfg.IsProduction(), cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()
	sugar := logger.Sugar()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var st *store.Store
	err = connect(ctx, sugar, "store", cfg.ConnectAttempts, func(ctx context.Context) (err error) {
		st, err = store.Open(ctx, cfg.StoreDriver, cfg.StoreDSN, cfg.StoreMaxOpenConns)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()
	sugar.Infow("Connected to store", "driver", cfg.StoreDriver)

	handlerCfg := handlers.Config{Store: st, Logger: logger}
	var (
		cache     *logic.Cache
		schedOpts = []scheduler.Option{scheduler.WithLocation(cfg.TimeZone)}
	)

	if cfg.RedisURL != "" {
		var rdb *redis.Client
		err := connect(ctx, sugar, "redis", cfg.ConnectAttempts, func(ctx context.Context) (err error) {
			rdb, err = openRedis(ctx, cfg.RedisURL)
			return err
		})
		if err != nil {
			return err
		}
		defer rdb.Close()
		cache = logic.NewCache(rdb, cfg.CacheTTL, logger)
		handlerCfg.Redis = rdb
		schedOpts = append(schedOpts, scheduler.WithObserver(scheduler.NewRedisStatusPublisher(rdb, logger)))
		sugar.Infow("Redis enabled", "cacheTTL", cfg.CacheTTL)
	}

	var pool *worker.Pool
	if cfg.ClickHouseURL != "" {
		var conn driver.Conn
		err := connect(ctx, sugar, "clickhouse", cfg.ConnectAttempts, func(ctx context.Context) (err error) {
			conn, err = worker.OpenClickHouse(ctx, cfg.ClickHouseURL)
			return err
		})
		if err != nil {
			return err
		}
		defer conn.Close()
		if err := worker.EnsureSchema(ctx, conn); err != nil {
			return fmt.Errorf("failed to create history table: %w", err)
		}
		pool = worker.NewPool(worker.PoolConfig{
			WorkerCount:   cfg.HistoryWorkers,
			QueueSize:     cfg.HistoryQueueSize,
			BatchSize:     cfg.HistoryBatchSize,
			FlushInterval: cfg.HistoryFlushInterval,
			ClickHouse:    conn,
			Logger:        logger,
		})
		pool.Start(context.Background())
		defer pool.Stop()
		schedOpts = append(schedOpts, scheduler.WithObserver(pool))
	}

	sched, err := newScheduler(cfg.PipelinesFile, cfg.StageTimeout, logger, schedOpts...)
	if err != nil {
		return err
	}
	handlerCfg.Scheduler = sched
	handlerCfg.Evaluation = logic.NewEvaluationService(st, cache)
	handlerCfg.Dataset = logic.NewDatasetService(st, cache)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handlers.New(handlerCfg).Routes(cfg.AllowedOrigins),
		ReadHeaderTimeout: 10 * time.Second,
	}

	sched.Start()
	serveErr := make(chan error, 1)
	go func() {
		sugar.Infow("HTTP server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		sugar.Info("Shutdown signal received")
	case err = <-serveErr:
		sugar.Errorw("HTTP server failed", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		sugar.Warnw("HTTP shutdown incomplete", "error", err)
	}
	if err := sched.Stop(shutdownCtx); err != nil {
		sugar.Warnw("Scheduler shutdown incomplete", "error", err)
	}
	// Observers are done once the scheduler has stopped.
	if pool != nil {
		pool.Stop()
	}
	return err
}

// newScheduler loads the trigger table and registers every pipeline.
func newScheduler(file string, stageTimeout time.Duration, logger *zap.Logger, opts ...scheduler.Option) (*scheduler.Scheduler, error) {
	defs, err := pipeline.LoadFile(file)
	if err != nil {
		return nil, err
	}

	runner := pipeline.NewRunner(task.NewAdapter(logger, stageTimeout), logger)
	sched := scheduler.New(runner, logger, opts...)
	for _, def := range defs {
		if err := sched.Register(def); err != nil {
			return nil, err
		}
	}
	logger.Sugar().Infow("Trigger table loaded", "file", file, "pipelines", len(defs))
	return sched, nil
}

func openRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return rdb, nil
}
