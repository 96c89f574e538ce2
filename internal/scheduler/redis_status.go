package scheduler

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/cs2predict/predict-api/internal/models"
	"github.com/cs2predict/predict-api/internal/pipeline"
)

// StatusHashKey is the Redis hash holding one JSON snapshot per pipeline.
const StatusHashKey = "predict:pipeline_status"

const redisTimeout = 2 * time.Second

// RedisStatusPublisher mirrors chain state into a Redis hash so other
// processes can read it without reaching the scheduler.
type RedisStatusPublisher struct {
	client *redis.Client
	logger *zap.SugaredLogger
}

func NewRedisStatusPublisher(client *redis.Client, logger *zap.Logger) *RedisStatusPublisher {
	return &RedisStatusPublisher{client: client, logger: logger.Sugar()}
}

type statusSnapshot struct {
	State       models.PipelineState `json:"state"`
	RunID       string               `json:"run_id,omitempty"`
	Outcome     string               `json:"outcome,omitempty"`
	FailedStage string               `json:"failed_stage,omitempty"`
	StartedAt   time.Time            `json:"started_at"`
	FinishedAt  *time.Time           `json:"finished_at,omitempty"`
}

func (p *RedisStatusPublisher) ChainStarted(def pipeline.Definition, startedAt time.Time) {
	p.publish(def.ID, statusSnapshot{State: models.PipelineRunning, StartedAt: startedAt})
}

func (p *RedisStatusPublisher) ChainFinished(def pipeline.Definition, res pipeline.ChainResult) {
	snap := statusSnapshot{
		State:      models.PipelineIdle,
		RunID:      res.RunID,
		Outcome:    string(models.PipelineSucceeded),
		StartedAt:  res.StartedAt,
		FinishedAt: &res.FinishedAt,
	}
	if failed, ok := res.FailedStage(); ok {
		snap.Outcome = string(models.PipelineFailed)
		snap.FailedStage = failed.StageName
	}
	p.publish(def.ID, snap)
}

func (p *RedisStatusPublisher) publish(id string, snap statusSnapshot) {
	data, err := json.Marshal(snap)
	if err != nil {
		p.logger.Errorw("Failed to encode pipeline status", "pipeline", id, "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
	defer cancel()
	if err := p.client.HSet(ctx, StatusHashKey, id, data).Err(); err != nil {
		p.logger.Warnw("Failed to publish pipeline status", "pipeline", id, "error", err)
	}
}

// ReadStatuses loads every published snapshot, keyed by pipeline ID.
func ReadStatuses(ctx context.Context, client *redis.Client) (map[string]json.RawMessage, error) {
	raw, err := client.HGetAll(ctx, StatusHashKey).Result()
	if err != nil {
		return nil, err
	}
	out := make(map[string]json.RawMessage, len(raw))
	for id, v := range raw {
		out[id] = json.RawMessage(v)
	}
	return out, nil
}
