package scheduler

import (
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/cs2predict/predict-api/internal/models"
	"github.com/cs2predict/predict-api/internal/pipeline"
)

// entry is the per-pipeline state: definition, overlap guard and the
// observable state machine (idle -> running -> idle, with failed recorded
// as the last outcome).
type entry struct {
	def    pipeline.Definition
	cronID cron.EntryID
	sem    chan struct{}

	mu             sync.Mutex
	running        int
	lastOutcome    string
	lastRunID      string
	lastStartedAt  time.Time
	lastFinishedAt time.Time
	failedStage    string
	skipped        int64
}

func newEntry(def pipeline.Definition) *entry {
	return &entry{def: def, sem: make(chan struct{}, 1)}
}

func (e *entry) tryAcquire() bool {
	select {
	case e.sem <- struct{}{}:
		return true
	default:
		return false
	}
}

func (e *entry) release() { <-e.sem }

func (e *entry) markStarted(at time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.running++
	e.lastStartedAt = at
}

func (e *entry) markFinished(res pipeline.ChainResult) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.running--
	e.lastRunID = res.RunID
	e.lastFinishedAt = res.FinishedAt
	e.failedStage = ""
	if failed, ok := res.FailedStage(); ok {
		e.lastOutcome = string(models.PipelineFailed)
		e.failedStage = failed.StageName
		return
	}
	e.lastOutcome = string(models.PipelineSucceeded)
}

func (e *entry) markSkipped() {
	e.mu.Lock()
	e.skipped++
	e.mu.Unlock()
}

func (e *entry) status() models.PipelineStatus {
	e.mu.Lock()
	defer e.mu.Unlock()

	st := models.PipelineStatus{
		ID:          e.def.ID,
		Cron:        e.def.Cron,
		Overlap:     string(e.def.Overlap),
		Stages:      e.def.StageNames(),
		State:       models.PipelineIdle,
		LastOutcome: e.lastOutcome,
		LastRunID:   e.lastRunID,
		FailedStage: e.failedStage,
		SkippedRuns: e.skipped,
	}
	if e.running > 0 {
		st.State = models.PipelineRunning
	}
	if !e.lastStartedAt.IsZero() {
		t := e.lastStartedAt
		st.LastStartedAt = &t
	}
	if !e.lastFinishedAt.IsZero() {
		t := e.lastFinishedAt
		st.LastFinishedAt = &t
	}
	return st
}
