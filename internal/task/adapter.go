// Package task runs the external collection and prediction programs that
// make up pipeline stages. Each invocation blocks until the process exits and
// resolves to a Result; output is streamed line by line to the logger.
package task

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// waitDelay bounds how long Wait keeps reading output after the process was
// killed, in case a grandchild still holds the pipes.
const waitDelay = 5 * time.Second

var (
	stageRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "predict_stage_runs_total",
		Help: "External stage invocations by outcome",
	}, []string{"stage", "outcome"})

	stageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "predict_stage_duration_seconds",
		Help:    "Wall time of external stage invocations",
		Buckets: []float64{1, 5, 15, 30, 60, 300, 900, 1800, 3600},
	}, []string{"stage"})
)

// Command describes one external program invocation.
type Command struct {
	Name    string
	Path    string
	Args    []string
	Dir     string
	Env     map[string]string
	Timeout time.Duration
}

// Result is the outcome of one invocation. Err is nil iff Succeeded.
type Result struct {
	StageName string        `json:"stage"`
	ExitCode  int           `json:"exit_code"`
	Succeeded bool          `json:"succeeded"`
	Stdout    []string      `json:"stdout,omitempty"`
	Stderr    []string      `json:"stderr,omitempty"`
	Err       error         `json:"-"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
}

// StderrTail returns the last n stderr lines joined by newlines.
func (r Result) StderrTail(n int) string {
	lines := r.Stderr
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}

// Adapter starts external processes.
type Adapter struct {
	logger         *zap.SugaredLogger
	defaultTimeout time.Duration
}

// NewAdapter creates an Adapter. defaultTimeout applies to commands without
// their own timeout; zero means wait indefinitely.
func NewAdapter(logger *zap.Logger, defaultTimeout time.Duration) *Adapter {
	return &Adapter{
		logger:         logger.Sugar(),
		defaultTimeout: defaultTimeout,
	}
}

// Run starts cmd and blocks until it terminates and both output streams are
// drained.
func (a *Adapter) Run(ctx context.Context, cmd Command) Result {
	res := Result{
		StageName: cmd.Name,
		ExitCode:  -1,
		StartedAt: time.Now(),
	}

	runCtx := ctx
	timeout := cmd.Timeout
	if timeout <= 0 {
		timeout = a.defaultTimeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	a.logger.Infow("Starting stage", "stage", cmd.Name, "path", cmd.Path, "args", cmd.Args)

	stdout := &lineWriter{emit: func(line string) {
		res.Stdout = append(res.Stdout, line)
		a.logger.Infow("Stage stdout", "stage", cmd.Name, "line", line)
	}}
	stderr := &lineWriter{emit: func(line string) {
		res.Stderr = append(res.Stderr, line)
		a.logger.Errorw("Stage stderr", "stage", cmd.Name, "line", line)
	}}

	c := exec.CommandContext(runCtx, cmd.Path, cmd.Args...)
	c.Dir = cmd.Dir
	c.Env = mergeEnv(os.Environ(), cmd.Env)
	c.Stdout = stdout
	c.Stderr = stderr
	c.WaitDelay = waitDelay

	if err := c.Start(); err != nil {
		res.Duration = time.Since(res.StartedAt)
		res.Err = &Error{Stage: cmd.Name, Kind: KindLaunchFailure, ExitCode: -1, Err: err}
		a.finish(res)
		return res
	}

	err := c.Wait()
	stdout.Flush()
	stderr.Flush()
	res.Duration = time.Since(res.StartedAt)

	if c.ProcessState != nil {
		res.ExitCode = c.ProcessState.ExitCode()
	}

	switch {
	case err == nil:
		res.Succeeded = true
		res.ExitCode = 0
	case ctx.Err() != nil:
		res.Err = &Error{Stage: cmd.Name, Kind: KindCanceled, ExitCode: res.ExitCode, Err: ctx.Err()}
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		res.Err = &Error{Stage: cmd.Name, Kind: KindTimeout, ExitCode: res.ExitCode, Err: runCtx.Err()}
	default:
		res.Err = &Error{Stage: cmd.Name, Kind: KindNonZeroExit, ExitCode: res.ExitCode, Err: err}
	}

	a.finish(res)
	return res
}

func (a *Adapter) finish(res Result) {
	outcome := "success"
	if res.Err != nil {
		outcome = string(KindOf(res.Err))
	}
	stageRuns.WithLabelValues(res.StageName, outcome).Inc()
	stageDuration.WithLabelValues(res.StageName).Observe(res.Duration.Seconds())

	if res.Err != nil {
		a.logger.Errorw("Stage failed",
			"stage", res.StageName,
			"exitCode", res.ExitCode,
			"duration", res.Duration,
			"error", res.Err,
		)
		return
	}
	a.logger.Infow("Stage completed", "stage", res.StageName, "duration", res.Duration)
}

// mergeEnv overlays extra onto base. Keys are applied in sorted order so the
// resulting environment is stable across runs.
func mergeEnv(base []string, extra map[string]string) []string {
	if len(extra) == 0 {
		return base
	}
	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	env := make([]string, 0, len(base)+len(extra))
	for _, kv := range base {
		name, _, _ := strings.Cut(kv, "=")
		if _, overridden := extra[name]; overridden {
			continue
		}
		env = append(env, kv)
	}
	for _, k := range keys {
		env = append(env, k+"="+extra[k])
	}
	return env
}

// lineWriter splits a byte stream into lines. exec copies each stream from
// its own goroutine, so a writer is never shared between streams.
type lineWriter struct {
	mu   sync.Mutex
	buf  []byte
	emit func(line string)
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.buf = append(w.buf, p...)
	for {
		i := bytes.IndexByte(w.buf, '\n')
		if i < 0 {
			break
		}
		w.emit(strings.TrimRight(string(w.buf[:i]), "\r"))
		w.buf = w.buf[i+1:]
	}
	return len(p), nil
}

// Flush emits a trailing line that had no newline.
func (w *lineWriter) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if len(w.buf) > 0 {
		w.emit(strings.TrimRight(string(w.buf), "\r"))
		w.buf = nil
	}
}
