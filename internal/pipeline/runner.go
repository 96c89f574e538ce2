package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cs2predict/predict-api/internal/task"
)

// NoFailure is ChainResult.FailedAt when every stage succeeded.
const NoFailure = -1

// TaskRunner executes one stage. task.Adapter is the production implementation.
type TaskRunner interface {
	Run(ctx context.Context, cmd task.Command) task.Result
}

// ChainResult reports one execution of a pipeline. CompletedStages holds
// every stage that ran, including the failing one.
type ChainResult struct {
	PipelineID      string        `json:"pipeline"`
	RunID           string        `json:"run_id"`
	CompletedStages []task.Result `json:"stages"`
	FailedAt        int           `json:"failed_at"`
	StartedAt       time.Time     `json:"started_at"`
	FinishedAt      time.Time     `json:"finished_at"`
}

// Succeeded reports whether every stage ran and succeeded.
func (r ChainResult) Succeeded() bool {
	return r.FailedAt == NoFailure
}

// FailedStage returns the failing stage result, if any.
func (r ChainResult) FailedStage() (task.Result, bool) {
	if r.FailedAt == NoFailure || r.FailedAt >= len(r.CompletedStages) {
		return task.Result{}, false
	}
	return r.CompletedStages[r.FailedAt], true
}

// Runner executes stage chains strictly in order, stopping at the first failure.
type Runner struct {
	tasks  TaskRunner
	logger *zap.SugaredLogger
}

func NewRunner(tasks TaskRunner, logger *zap.Logger) *Runner {
	return &Runner{tasks: tasks, logger: logger.Sugar()}
}

// Execute runs def's stages in order. A stage runs only after the previous
// one succeeded; later stages would otherwise work from stale or missing
// input. Execute never panics and never returns an error: failure is
// reported through FailedAt.
func (r *Runner) Execute(ctx context.Context, def Definition) ChainResult {
	res := ChainResult{
		PipelineID:      def.ID,
		RunID:           uuid.NewString(),
		CompletedStages: make([]task.Result, 0, len(def.Stages)),
		FailedAt:        NoFailure,
		StartedAt:       time.Now(),
	}

	for i, stage := range def.Stages {
		var result task.Result
		if err := ctx.Err(); err != nil {
			result = task.Result{
				StageName: stage.Name,
				ExitCode:  -1,
				StartedAt: time.Now(),
				Err:       &task.Error{Stage: stage.Name, Kind: task.KindCanceled, ExitCode: -1, Err: err},
			}
		} else {
			r.logger.Debugw("Running stage", "pipeline", def.ID, "runId", res.RunID, "stage", stage.Name, "index", i)
			result = r.runStage(ctx, stage)
		}

		res.CompletedStages = append(res.CompletedStages, result)
		if !result.Succeeded || result.Err != nil {
			res.FailedAt = i
			break
		}
	}

	res.FinishedAt = time.Now()
	return res
}

func (r *Runner) runStage(ctx context.Context, stage StageDefinition) (result task.Result) {
	defer func() {
		if p := recover(); p != nil {
			result = task.Result{
				StageName: stage.Name,
				ExitCode:  -1,
				StartedAt: time.Now(),
				Err:       fmt.Errorf("stage %s panicked: %v", stage.Name, p),
			}
		}
	}()

	result = r.tasks.Run(ctx, stage.Command())
	if result.StageName == "" {
		result.StageName = stage.Name
	}
	if !result.Succeeded && result.Err == nil {
		result.Err = &task.Error{Stage: stage.Name, Kind: task.KindNonZeroExit, ExitCode: result.ExitCode}
	}
	return result
}
