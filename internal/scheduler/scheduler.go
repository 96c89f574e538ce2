// Package scheduler fires pipeline chains from cron triggers.
//
// Each registered pipeline owns one cron entry. Fires run on their own
// goroutine, so a slow chain never delays another pipeline's timer, and the
// outcome of one chain never touches another. The Scheduler is the only
// component that logs chain outcomes.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/cs2predict/predict-api/internal/models"
	"github.com/cs2predict/predict-api/internal/pipeline"
)

var (
	ErrUnknownPipeline   = errors.New("unknown pipeline")
	ErrDuplicatePipeline = errors.New("pipeline already registered")
	ErrAlreadyStarted    = errors.New("scheduler already started")
	ErrAlreadyRunning    = errors.New("pipeline is already running")
	ErrStopped           = errors.New("scheduler stopped")
)

var (
	chainRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "predict_chain_runs_total",
		Help: "Pipeline chain executions by outcome",
	}, []string{"pipeline", "outcome"})

	chainRunning = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "predict_chain_running",
		Help: "Pipeline chains currently executing",
	}, []string{"pipeline"})

	chainSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "predict_chain_skipped_total",
		Help: "Trigger fires dropped because the previous run was still executing",
	}, []string{"pipeline"})
)

// Executor runs one chain. pipeline.Runner is the production implementation.
type Executor interface {
	Execute(ctx context.Context, def pipeline.Definition) pipeline.ChainResult
}

// Observer is notified around every chain run. Callbacks are invoked on the
// run's goroutine and must not block for long.
type Observer interface {
	ChainStarted(def pipeline.Definition, startedAt time.Time)
	ChainFinished(def pipeline.Definition, res pipeline.ChainResult)
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLocation evaluates cron expressions in loc instead of time.Local.
func WithLocation(loc *time.Location) Option {
	return func(s *Scheduler) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// WithObserver registers an observer.
func WithObserver(o Observer) Option {
	return func(s *Scheduler) {
		if o != nil {
			s.observers = append(s.observers, o)
		}
	}
}

// Scheduler owns the registered pipeline definitions for its lifetime.
type Scheduler struct {
	runner    Executor
	logger    *zap.SugaredLogger
	loc       *time.Location
	observers []Observer
	cron      *cron.Cron

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	order   []string
	entries map[string]*entry
	started bool
	stopped bool
}

func New(runner Executor, logger *zap.Logger, opts ...Option) *Scheduler {
	s := &Scheduler{
		runner:  runner,
		logger:  logger.Sugar(),
		loc:     time.Local,
		entries: make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.cron = cron.New(
		cron.WithLocation(s.loc),
		cron.WithLogger(cronLogger{s.logger}),
		cron.WithChain(cron.Recover(cronLogger{s.logger})),
	)
	return s
}

// Register adds a pipeline. It fails after Start, for a duplicate ID, or when
// the definition does not validate.
func (s *Scheduler) Register(def pipeline.Definition) error {
	if def.Overlap == "" {
		def.Overlap = pipeline.OverlapSkip
	}
	if err := def.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return ErrAlreadyStarted
	}
	if _, ok := s.entries[def.ID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicatePipeline, def.ID)
	}

	e := newEntry(def.Clone())
	id, err := s.cron.AddFunc(def.Cron, func() { s.guarded(e, "cron") })
	if err != nil {
		return fmt.Errorf("pipeline %q: %w", def.ID, err)
	}
	e.cronID = id

	s.entries[def.ID] = e
	s.order = append(s.order, def.ID)
	s.logger.Infow("Pipeline registered", "pipeline", def.ID, "cron", def.Cron, "overlap", def.Overlap, "stages", def.StageNames())
	return nil
}

// Start begins evaluating triggers. It does not block.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started || s.stopped {
		return
	}
	s.started = true
	s.cron.Start()
	s.logger.Infow("Scheduler started", "pipelines", len(s.entries), "location", s.loc.String())
}

// Stop halts the timers and waits for in-flight chains. When ctx expires
// first, running stages are canceled and ctx.Err() is returned.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	s.mu.Unlock()

	// cron's context completes once every job it started has returned;
	// the wait group covers manual triggers.
	cronCtx := s.cron.Stop()
	done := make(chan struct{})
	go func() {
		<-cronCtx.Done()
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.cancel()
		s.logger.Info("Scheduler stopped")
		return nil
	case <-ctx.Done():
		s.cancel()
		<-done
		s.logger.Warnw("Scheduler stop deadline exceeded, in-flight chains canceled", "error", ctx.Err())
		return ctx.Err()
	}
}

// Trigger starts a run outside the schedule, honoring the pipeline's overlap
// policy. It returns once the run is accepted; ErrAlreadyRunning is returned
// when a skip-policy pipeline is busy.
func (s *Scheduler) Trigger(id string) error {
	s.mu.Lock()
	e, ok := s.entries[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownPipeline, id)
	}
	if s.stopped {
		s.mu.Unlock()
		return ErrStopped
	}
	s.wg.Add(1)
	s.mu.Unlock()

	if e.def.Overlap == pipeline.OverlapSkip && !e.tryAcquire() {
		s.wg.Done()
		s.recordSkip(e, "manual")
		return ErrAlreadyRunning
	}

	go func() {
		defer s.wg.Done()
		if e.def.Overlap == pipeline.OverlapSkip {
			defer e.release()
			s.run(e)
			return
		}
		s.guarded(e, "manual")
	}()
	return nil
}

// RunNow executes a pipeline synchronously on the caller's goroutine, without
// overlap checks. Used by the one-shot CLI command.
func (s *Scheduler) RunNow(ctx context.Context, id string) (pipeline.ChainResult, error) {
	s.mu.Lock()
	e, ok := s.entries[id]
	s.mu.Unlock()
	if !ok {
		return pipeline.ChainResult{}, fmt.Errorf("%w: %s", ErrUnknownPipeline, id)
	}
	return s.execute(ctx, e), nil
}

// Definitions returns copies of the registered definitions in registration order.
func (s *Scheduler) Definitions() []pipeline.Definition {
	s.mu.Lock()
	defer s.mu.Unlock()

	defs := make([]pipeline.Definition, 0, len(s.order))
	for _, id := range s.order {
		defs = append(defs, s.entries[id].def.Clone())
	}
	return defs
}

// Status reports every pipeline in registration order.
func (s *Scheduler) Status() []models.PipelineStatus {
	s.mu.Lock()
	ids := append([]string(nil), s.order...)
	entries := make([]*entry, len(ids))
	for i, id := range ids {
		entries[i] = s.entries[id]
	}
	s.mu.Unlock()

	out := make([]models.PipelineStatus, len(entries))
	for i, e := range entries {
		st := e.status()
		if next := s.cron.Entry(e.cronID).Next; !next.IsZero() {
			st.NextRunAt = &next
		}
		out[i] = st
	}
	return out
}

// guarded applies the overlap policy, following the shape of
// cron.SkipIfStillRunning and cron.DelayIfStillRunning.
func (s *Scheduler) guarded(e *entry, source string) {
	switch e.def.Overlap {
	case pipeline.OverlapAllow:
		s.run(e)
	case pipeline.OverlapQueue:
		select {
		case e.sem <- struct{}{}:
		case <-s.ctx.Done():
			return
		}
		defer e.release()
		// A run queued behind one that outlived Stop is dropped.
		if s.isStopped() {
			s.logger.Infow("Scheduler stopping, dropping queued run", "pipeline", e.def.ID, "source", source)
			return
		}
		s.run(e)
	default:
		if !e.tryAcquire() {
			s.recordSkip(e, source)
			return
		}
		defer e.release()
		s.run(e)
	}
}

func (s *Scheduler) isStopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

func (s *Scheduler) run(e *entry) {
	s.execute(s.ctx, e)
}

func (s *Scheduler) execute(ctx context.Context, e *entry) pipeline.ChainResult {
	id := e.def.ID
	startedAt := time.Now()

	e.markStarted(startedAt)
	chainRunning.WithLabelValues(id).Inc()
	s.logger.Infow("Pipeline started", "pipeline", id)
	for _, o := range s.observers {
		o.ChainStarted(e.def, startedAt)
	}

	res := s.runner.Execute(ctx, e.def)

	chainRunning.WithLabelValues(id).Dec()
	e.markFinished(res)

	if failed, ok := res.FailedStage(); ok {
		chainRuns.WithLabelValues(id, "failed").Inc()
		s.logger.Errorw("Pipeline failed",
			"pipeline", id,
			"runId", res.RunID,
			"stage", failed.StageName,
			"stageIndex", res.FailedAt,
			"exitCode", failed.ExitCode,
			"error", failed.Err,
			"stderr", failed.StderrTail(20),
			"duration", res.FinishedAt.Sub(res.StartedAt),
		)
	} else {
		chainRuns.WithLabelValues(id, "succeeded").Inc()
		s.logger.Infow("Pipeline succeeded",
			"pipeline", id,
			"runId", res.RunID,
			"stages", len(res.CompletedStages),
			"duration", res.FinishedAt.Sub(res.StartedAt),
		)
	}

	for _, o := range s.observers {
		o.ChainFinished(e.def, res)
	}
	return res
}

func (s *Scheduler) recordSkip(e *entry, source string) {
	e.markSkipped()
	chainSkipped.WithLabelValues(e.def.ID).Inc()
	s.logger.Warnw("Pipeline still running, skipping trigger", "pipeline", e.def.ID, "source", source)
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	logger *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debugw("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Errorw("cron: "+msg, append(keysAndValues, "error", err)...)
}
