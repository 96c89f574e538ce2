package models

import "time"

// PipelineState is the observable lifecycle of a scheduled pipeline.
type PipelineState string

const (
	PipelineIdle      PipelineState = "idle"
	PipelineRunning   PipelineState = "running"
	PipelineFailed    PipelineState = "failed"
	PipelineSucceeded PipelineState = "succeeded" // last outcome only
)

// PipelineStatus is what the dashboard sees for one pipeline.
type PipelineStatus struct {
	ID             string        `json:"id"`
	Cron           string        `json:"cron"`
	Overlap        string        `json:"overlap"`
	Stages         []string      `json:"stages"`
	State          PipelineState `json:"state"`
	LastOutcome    string        `json:"last_outcome,omitempty"`
	LastRunID      string        `json:"last_run_id,omitempty"`
	LastStartedAt  *time.Time    `json:"last_started_at,omitempty"`
	LastFinishedAt *time.Time    `json:"last_finished_at,omitempty"`
	FailedStage    string        `json:"failed_stage,omitempty"`
	NextRunAt      *time.Time    `json:"next_run_at,omitempty"`
	SkippedRuns    int64         `json:"skipped_runs"`
}

// StageRun is one executed stage as recorded in run history.
type StageRun struct {
	RunID      string
	PipelineID string
	StageIndex int
	StageName  string
	ExitCode   int
	Succeeded  bool
	ErrorKind  string
	Error      string
	StderrTail string
	StartedAt  time.Time
	Duration   time.Duration
}
