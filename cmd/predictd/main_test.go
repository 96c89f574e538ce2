package main

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cs2predict/predict-api/internal/pipeline"
)

func TestNextRuns(t *testing.T) {
	from := time.Date(2025, 5, 1, 22, 30, 0, 0, time.UTC)
	runs := nextRuns("0 23 * * *", from, 3)
	assert.Equal(t, []string{
		"2025-05-01 23:00 UTC",
		"2025-05-02 23:00 UTC",
		"2025-05-03 23:00 UTC",
	}, runs)

	assert.Nil(t, nextRuns("not a cron", from, 3))
}

func TestExampleTriggerTable(t *testing.T) {
	defs, err := pipeline.LoadFile(filepath.Join("..", "..", "pipelines.example.yaml"))
	require.NoError(t, err)
	require.Len(t, defs, 3)

	assert.Equal(t, "daily-predictions", defs[0].ID)
	assert.Equal(t, []string{"upcomingMatches", "lr_predict", "nn_predict"}, defs[0].StageNames())
	assert.Equal(t, pipeline.OverlapSkip, defs[1].Overlap)
	assert.Equal(t, pipeline.OverlapQueue, defs[2].Overlap)
	assert.Equal(t, time.Hour, defs[2].Stages[0].Timeout)
}

func TestConnect(t *testing.T) {
	logger := zap.NewNop().Sugar()

	calls := 0
	err := connect(context.Background(), logger, "store", 0, func(ctx context.Context) error {
		calls++
		return errors.New("connection refused")
	})
	assert.EqualError(t, err, "connection refused")
	assert.Equal(t, 1, calls)

	calls = 0
	err = connect(context.Background(), logger, "redis", 3, func(ctx context.Context) error {
		calls++
		if calls < 2 {
			return errors.New("loading dataset in memory")
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 2, calls)
}
