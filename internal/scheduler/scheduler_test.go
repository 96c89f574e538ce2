package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cs2predict/predict-api/internal/models"
	"github.com/cs2predict/predict-api/internal/pipeline"
	"github.com/cs2predict/predict-api/internal/task"
)

// fakeExecutor returns canned results per pipeline and can block until released.
type fakeExecutor struct {
	mu      sync.Mutex
	calls   map[string]int
	results map[string]pipeline.ChainResult
	block   chan struct{}
	started chan string
}

func newFakeExecutor() *fakeExecutor {
	return &fakeExecutor{
		calls:   make(map[string]int),
		results: make(map[string]pipeline.ChainResult),
		started: make(chan string, 16),
	}
}

func (f *fakeExecutor) Execute(ctx context.Context, def pipeline.Definition) pipeline.ChainResult {
	f.mu.Lock()
	f.calls[def.ID]++
	res, ok := f.results[def.ID]
	block := f.block
	f.mu.Unlock()

	f.started <- def.ID
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return pipeline.ChainResult{
				PipelineID: def.ID,
				FailedAt:   0,
				CompletedStages: []task.Result{{
					StageName: def.Stages[0].Name,
					Err:       &task.Error{Stage: def.Stages[0].Name, Kind: task.KindCanceled, Err: ctx.Err()},
				}},
			}
		}
	}
	if !ok {
		res = pipeline.ChainResult{PipelineID: def.ID, RunID: def.ID + "-run", FailedAt: pipeline.NoFailure}
	}
	res.StartedAt = time.Now()
	res.FinishedAt = res.StartedAt
	return res
}

func (f *fakeExecutor) count(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[id]
}

type recordingObserver struct {
	mu       sync.Mutex
	started  []string
	finished map[string]pipeline.ChainResult
}

func (o *recordingObserver) ChainStarted(def pipeline.Definition, _ time.Time) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.started = append(o.started, def.ID)
}

func (o *recordingObserver) ChainFinished(def pipeline.Definition, res pipeline.ChainResult) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.finished == nil {
		o.finished = make(map[string]pipeline.ChainResult)
	}
	o.finished[def.ID] = res
}

func (o *recordingObserver) result(id string) (pipeline.ChainResult, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	r, ok := o.finished[id]
	return r, ok
}

func def(id, cronExpr string, overlap pipeline.OverlapPolicy) pipeline.Definition {
	return pipeline.Definition{
		ID:      id,
		Cron:    cronExpr,
		Overlap: overlap,
		Stages:  []pipeline.StageDefinition{{Name: id + "-stage", Executable: "python"}},
	}
}

func failedResult(id string) pipeline.ChainResult {
	return pipeline.ChainResult{
		PipelineID: id,
		RunID:      id + "-run",
		FailedAt:   0,
		CompletedStages: []task.Result{{
			StageName: "upcomingMatches",
			ExitCode:  1,
			Stderr:    []string{"connection refused"},
			Err:       &task.Error{Stage: "upcomingMatches", Kind: task.KindNonZeroExit, ExitCode: 1},
		}},
	}
}

func stopNow(t *testing.T, s *Scheduler) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
}

func TestRegister_Errors(t *testing.T) {
	s := New(newFakeExecutor(), zap.NewNop())

	require.NoError(t, s.Register(def("daily", "0 23 * * *", "")))
	assert.ErrorIs(t, s.Register(def("daily", "0 1 * * 1", "")), ErrDuplicatePipeline)
	assert.Error(t, s.Register(def("bad", "not a cron", "")))
	assert.Error(t, s.Register(pipeline.Definition{ID: "empty", Cron: "* * * * *"}))

	s.Start()
	defer stopNow(t, s)
	assert.ErrorIs(t, s.Register(def("late", "0 1 * * 1", "")), ErrAlreadyStarted)
}

func TestRegister_DefaultsOverlapToSkip(t *testing.T) {
	s := New(newFakeExecutor(), zap.NewNop())
	require.NoError(t, s.Register(def("daily", "0 23 * * *", "")))

	defs := s.Definitions()
	require.Len(t, defs, 1)
	assert.Equal(t, pipeline.OverlapSkip, defs[0].Overlap)
}

func TestRegister_DefinitionIsImmutable(t *testing.T) {
	s := New(newFakeExecutor(), zap.NewNop())
	d := def("daily", "0 23 * * *", "")
	require.NoError(t, s.Register(d))

	d.Stages[0].Name = "mutated"
	s.Definitions()[0].Stages[0].Name = "mutated too"

	assert.Equal(t, "daily-stage", s.Definitions()[0].Stages[0].Name)
}

func TestIndependentPipelines(t *testing.T) {
	exec := newFakeExecutor()
	exec.results["daily"] = failedResult("daily")
	obs := &recordingObserver{}

	s := New(exec, zap.NewNop(), WithObserver(obs))
	require.NoError(t, s.Register(def("daily", "0 23 * * *", "")))
	require.NoError(t, s.Register(def("ranking", "0 1 * * 1", "")))

	require.NoError(t, s.Trigger("daily"))
	require.NoError(t, s.Trigger("ranking"))
	stopNow(t, s)

	daily, ok := obs.result("daily")
	require.True(t, ok)
	assert.False(t, daily.Succeeded())

	ranking, ok := obs.result("ranking")
	require.True(t, ok)
	assert.True(t, ranking.Succeeded())
	assert.Equal(t, pipeline.NoFailure, ranking.FailedAt)

	st := s.Status()
	require.Len(t, st, 2)
	assert.Equal(t, models.PipelineIdle, st[0].State)
	assert.Equal(t, string(models.PipelineFailed), st[0].LastOutcome)
	assert.Equal(t, "upcomingMatches", st[0].FailedStage)
	assert.Equal(t, string(models.PipelineSucceeded), st[1].LastOutcome)
	assert.Empty(t, st[1].FailedStage)
}

func TestCronFiresBothPipelines(t *testing.T) {
	exec := newFakeExecutor()
	exec.results["a"] = failedResult("a")

	s := New(exec, zap.NewNop(), WithLocation(time.UTC))
	require.NoError(t, s.Register(def("a", "@every 1s", "")))
	require.NoError(t, s.Register(def("b", "@every 1s", "")))
	s.Start()
	defer stopNow(t, s)

	assert.Eventually(t, func() bool {
		return exec.count("a") >= 1 && exec.count("b") >= 1
	}, 5*time.Second, 50*time.Millisecond)

	for _, st := range s.Status() {
		assert.NotNil(t, st.NextRunAt)
	}
}

func TestOverlapSkip(t *testing.T) {
	exec := newFakeExecutor()
	exec.block = make(chan struct{})

	s := New(exec, zap.NewNop())
	require.NoError(t, s.Register(def("daily", "0 23 * * *", pipeline.OverlapSkip)))

	require.NoError(t, s.Trigger("daily"))
	<-exec.started

	assert.ErrorIs(t, s.Trigger("daily"), ErrAlreadyRunning)
	st := s.Status()[0]
	assert.Equal(t, models.PipelineRunning, st.State)
	assert.Equal(t, int64(1), st.SkippedRuns)

	close(exec.block)
	stopNow(t, s)
	assert.Equal(t, 1, exec.count("daily"))
	assert.Equal(t, models.PipelineIdle, s.Status()[0].State)
}

func TestOverlapQueue(t *testing.T) {
	exec := newFakeExecutor()
	exec.block = make(chan struct{})

	s := New(exec, zap.NewNop())
	require.NoError(t, s.Register(def("daily", "0 23 * * *", pipeline.OverlapQueue)))

	require.NoError(t, s.Trigger("daily"))
	<-exec.started
	require.NoError(t, s.Trigger("daily"))

	select {
	case <-exec.started:
		t.Fatal("queued run started while the previous run was executing")
	case <-time.After(100 * time.Millisecond):
	}

	close(exec.block)
	<-exec.started
	stopNow(t, s)
	assert.Equal(t, 2, exec.count("daily"))
}

func TestOverlapQueue_StopDropsQueuedRun(t *testing.T) {
	exec := newFakeExecutor()
	exec.block = make(chan struct{})

	s := New(exec, zap.NewNop())
	require.NoError(t, s.Register(def("daily", "0 23 * * *", pipeline.OverlapQueue)))

	require.NoError(t, s.Trigger("daily"))
	<-exec.started
	require.NoError(t, s.Trigger("daily"))

	stopErr := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		stopErr <- s.Stop(ctx)
	}()
	require.Eventually(t, s.isStopped, time.Second, 10*time.Millisecond)

	close(exec.block)
	require.NoError(t, <-stopErr)
	assert.Equal(t, 1, exec.count("daily"))
	assert.Equal(t, models.PipelineIdle, s.Status()[0].State)
}

func TestOverlapAllow(t *testing.T) {
	exec := newFakeExecutor()
	exec.block = make(chan struct{})

	s := New(exec, zap.NewNop())
	require.NoError(t, s.Register(def("daily", "0 23 * * *", pipeline.OverlapAllow)))

	require.NoError(t, s.Trigger("daily"))
	require.NoError(t, s.Trigger("daily"))
	<-exec.started
	<-exec.started

	close(exec.block)
	stopNow(t, s)
	assert.Equal(t, 2, exec.count("daily"))
}

func TestTrigger_Unknown(t *testing.T) {
	s := New(newFakeExecutor(), zap.NewNop())
	assert.ErrorIs(t, s.Trigger("nope"), ErrUnknownPipeline)
}

func TestTrigger_AfterStop(t *testing.T) {
	s := New(newFakeExecutor(), zap.NewNop())
	require.NoError(t, s.Register(def("daily", "0 23 * * *", "")))
	stopNow(t, s)
	assert.ErrorIs(t, s.Trigger("daily"), ErrStopped)
}

func TestStop_DeadlineCancelsInFlight(t *testing.T) {
	exec := newFakeExecutor()
	exec.block = make(chan struct{})
	obs := &recordingObserver{}

	s := New(exec, zap.NewNop(), WithObserver(obs))
	require.NoError(t, s.Register(def("daily", "0 23 * * *", "")))
	require.NoError(t, s.Trigger("daily"))
	<-exec.started

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := s.Stop(ctx)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))

	res, ok := obs.result("daily")
	require.True(t, ok)
	failed, ok := res.FailedStage()
	require.True(t, ok)
	assert.ErrorIs(t, failed.Err, task.ErrCanceled)
}

func TestRunNow(t *testing.T) {
	exec := newFakeExecutor()
	exec.results["ranking"] = failedResult("ranking")

	s := New(exec, zap.NewNop())
	require.NoError(t, s.Register(def("ranking", "0 1 * * 1", "")))

	res, err := s.RunNow(context.Background(), "ranking")
	require.NoError(t, err)
	assert.Equal(t, 0, res.FailedAt)

	_, err = s.RunNow(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrUnknownPipeline)
}

func TestRedisStatusPublisher_UnreachableIsLogged(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 50 * time.Millisecond, MaxRetries: -1})
	defer client.Close()

	p := NewRedisStatusPublisher(client, zap.NewNop())
	assert.NotPanics(t, func() {
		p.ChainStarted(def("daily", "0 23 * * *", ""), time.Now())
		p.ChainFinished(def("daily", "0 23 * * *", ""), failedResult("daily"))
	})
}
