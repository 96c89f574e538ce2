// Package worker implements the buffered worker pool that records pipeline
// run history. It decouples the scheduler from ClickHouse writes, providing:
// - Load shedding when the queue is full, so a slow sink never stalls a chain
// - Batch inserts for efficient ClickHouse writes
// - Graceful shutdown with flush guarantees
package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/cs2predict/predict-api/internal/models"
	"github.com/cs2predict/predict-api/internal/pipeline"
	"github.com/cs2predict/predict-api/internal/task"
)

const stderrTailLines = 20

// Prometheus metrics
var (
	runsEnqueued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "predict_history_enqueued_total",
		Help: "Total number of stage runs queued for the history sink",
	})

	runsWritten = promauto.NewCounter(prometheus.CounterOpts{
		Name: "predict_history_written_total",
		Help: "Total number of stage runs written to ClickHouse",
	})

	runsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "predict_history_failed_total",
		Help: "Total number of stage runs that failed to be written",
	})

	runsLoadShed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "predict_history_load_shed_total",
		Help: "Total number of stage runs dropped due to load shedding",
	})

	queueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "predict_history_queue_depth",
		Help: "Current depth of the history queue",
	})

	batchInsertDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "predict_history_batch_insert_duration_seconds",
		Help:    "Duration of batch inserts to ClickHouse",
		Buckets: prometheus.DefBuckets,
	})
)

const createTable = `
	CREATE TABLE IF NOT EXISTS pipeline_stage_runs (
		run_id      UUID,
		pipeline    LowCardinality(String),
		stage_index UInt16,
		stage       LowCardinality(String),
		exit_code   Int32,
		succeeded   UInt8,
		error_kind  LowCardinality(String),
		error       String,
		stderr_tail String,
		started_at  DateTime64(3),
		duration_ms UInt64
	) ENGINE = MergeTree
	ORDER BY (pipeline, started_at)`

const insertRuns = `
	INSERT INTO pipeline_stage_runs (
		run_id, pipeline, stage_index, stage, exit_code, succeeded,
		error_kind, error, stderr_tail, started_at, duration_ms
	)`

// Job is one stage run waiting to be written.
type Job struct {
	Run models.StageRun
}

// PoolConfig configures the worker pool
type PoolConfig struct {
	WorkerCount   int
	QueueSize     int
	BatchSize     int
	FlushInterval time.Duration
	ClickHouse    driver.Conn
	Logger        *zap.Logger
}

// Pool batches stage results into ClickHouse. It implements
// scheduler.Observer.
type Pool struct {
	config   PoolConfig
	jobQueue chan Job
	wg       sync.WaitGroup
	ctx      context.Context
	cancel   context.CancelFunc
	logger   *zap.SugaredLogger

	mu     sync.RWMutex
	closed bool
}

// OpenClickHouse connects to the history database from a clickhouse:// URL.
func OpenClickHouse(ctx context.Context, url string) (driver.Conn, error) {
	opts, err := clickhouse.ParseDSN(url)
	if err != nil {
		return nil, fmt.Errorf("parse clickhouse url: %w", err)
	}
	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open clickhouse: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping clickhouse: %w", err)
	}
	return conn, nil
}

// EnsureSchema creates the history table if it does not exist.
func EnsureSchema(ctx context.Context, conn driver.Conn) error {
	return conn.Exec(ctx, createTable)
}

// NewPool creates a new worker pool
func NewPool(cfg PoolConfig) *Pool {
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1000
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 5 * time.Second
	}

	return &Pool{
		config:   cfg,
		jobQueue: make(chan Job, cfg.QueueSize),
		logger:   cfg.Logger.Sugar(),
	}
}

// Start launches the worker goroutines
func (p *Pool) Start(ctx context.Context) {
	p.ctx, p.cancel = context.WithCancel(ctx)

	for i := 0; i < p.config.WorkerCount; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}

	go p.reportQueueDepth()

	p.logger.Infow("History pool started",
		"workers", p.config.WorkerCount,
		"queueSize", p.config.QueueSize,
		"batchSize", p.config.BatchSize,
	)
}

// Stop drains the queue, flushes every pending batch and waits for the workers.
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.jobQueue)
	p.mu.Unlock()

	p.logger.Info("Stopping history pool...")
	p.wg.Wait()
	if p.cancel != nil {
		p.cancel()
	}
	p.logger.Info("History pool stopped")
}

// Enqueue adds a stage run without blocking. It returns false when the queue
// is full or the pool is stopped.
func (p *Pool) Enqueue(run models.StageRun) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		runsLoadShed.Inc()
		return false
	}

	select {
	case p.jobQueue <- Job{Run: run}:
		runsEnqueued.Inc()
		return true
	default:
		runsLoadShed.Inc()
		p.logger.Warnw("History queue full, dropping stage run", "pipeline", run.PipelineID, "stage", run.StageName)
		return false
	}
}

// QueueDepth returns current queue size
func (p *Pool) QueueDepth() int {
	return len(p.jobQueue)
}

func (p *Pool) ChainStarted(pipeline.Definition, time.Time) {}

// ChainFinished queues one row per executed stage.
func (p *Pool) ChainFinished(_ pipeline.Definition, res pipeline.ChainResult) {
	for _, run := range StageRuns(res) {
		p.Enqueue(run)
	}
}

// StageRuns flattens a chain result into history rows.
func StageRuns(res pipeline.ChainResult) []models.StageRun {
	runs := make([]models.StageRun, len(res.CompletedStages))
	for i, r := range res.CompletedStages {
		run := models.StageRun{
			RunID:      res.RunID,
			PipelineID: res.PipelineID,
			StageIndex: i,
			StageName:  r.StageName,
			ExitCode:   r.ExitCode,
			Succeeded:  r.Succeeded && r.Err == nil,
			StderrTail: r.StderrTail(stderrTailLines),
			StartedAt:  r.StartedAt,
			Duration:   r.Duration,
		}
		if r.Err != nil {
			run.ErrorKind = string(task.KindOf(r.Err))
			run.Error = r.Err.Error()
		}
		runs[i] = run
	}
	return runs
}

// worker processes jobs from the queue in batches
func (p *Pool) worker(id int) {
	defer p.wg.Done()

	batch := make([]Job, 0, p.config.BatchSize)
	ticker := time.NewTicker(p.config.FlushInterval)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}

		start := time.Now()
		written, err := p.processBatch(batch)
		if err != nil {
			p.logger.Errorw("History batch failed",
				"worker", id,
				"batchSize", len(batch),
				"error", err,
			)
			runsFailed.Add(float64(len(batch)))
		} else {
			p.logger.Debugw("History batch written", "worker", id, "batchSize", len(batch), "written", written, "duration", time.Since(start))
			runsWritten.Add(float64(written))
			runsFailed.Add(float64(len(batch) - written))
		}
		batchInsertDuration.Observe(time.Since(start).Seconds())

		batch = batch[:0]
	}

	for {
		select {
		case job, ok := <-p.jobQueue:
			if !ok {
				// Channel closed, flush remaining
				flush()
				return
			}

			batch = append(batch, job)
			if len(batch) >= p.config.BatchSize {
				flush()
			}

		case <-ticker.C:
			flush()
		}
	}
}

// processBatch writes a batch of stage runs in one insert and reports how
// many rows were sent. Rows the driver refuses to append are dropped.
func (p *Pool) processBatch(batch []Job) (int, error) {
	if len(batch) == 0 {
		return 0, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	chBatch, err := p.config.ClickHouse.PrepareBatch(ctx, insertRuns)
	if err != nil {
		return 0, err
	}

	appended := 0
	for _, job := range batch {
		run := job.Run
		err := chBatch.Append(
			parseOrGenerateUUID(run.RunID),
			run.PipelineID,
			uint16(run.StageIndex),
			run.StageName,
			int32(run.ExitCode),
			boolToUint8(run.Succeeded),
			run.ErrorKind,
			run.Error,
			run.StderrTail,
			run.StartedAt,
			uint64(run.Duration.Milliseconds()),
		)
		if err != nil {
			p.logger.Warnw("Failed to append stage run to batch", "error", err, "pipeline", run.PipelineID, "stage", run.StageName)
			continue
		}
		appended++
	}

	if err := chBatch.Send(); err != nil {
		return 0, err
	}
	return appended, nil
}

func (p *Pool) reportQueueDepth() {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			queueDepth.Set(float64(len(p.jobQueue)))
		case <-p.ctx.Done():
			return
		}
	}
}

// Helper functions

func boolToUint8(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}

func parseOrGenerateUUID(s string) uuid.UUID {
	if id, err := uuid.Parse(s); err == nil {
		return id
	}
	// Generate deterministic UUID from string
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(s))
}
