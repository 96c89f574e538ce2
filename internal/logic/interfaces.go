package logic

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cs2predict/predict-api/internal/models"
	"github.com/cs2predict/predict-api/internal/stats"
	"github.com/cs2predict/predict-api/internal/store"
)

// ErrUpstreamQuery marks a failed read against the store. The whole
// computation that needed it is abandoned.
var ErrUpstreamQuery = errors.New("upstream query failed")

// excludedColumns are identifiers, not features.
var excludedColumns = []string{"id", "model_id", "match_id"}

// RedisClient defines the interface for Redis client
type RedisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// TrainingReport is the confusion matrix stored by the training job with
// its derived ratios.
type TrainingReport struct {
	models.TrainingMetrics
	stats.Ratios
}

// EvaluationService reports model quality.
type EvaluationService interface {
	ListModels(ctx context.Context) ([]models.Model, error)
	// GetModelMetrics evaluates a model against live outcomes. On
	// stats.ErrInsufficientData the returned Evaluation still carries the
	// record counts.
	GetModelMetrics(ctx context.Context, modelID string) (*stats.Evaluation, error)
	GetTrainingMetrics(ctx context.Context, modelName string) (*TrainingReport, error)
	GetScoredRecords(ctx context.Context, modelID string) ([]models.ScoredRecord, error)
	GetUpcomingMatches(ctx context.Context, modelID string) ([]models.UpcomingMatch, error)
}

// DatasetService describes the training and live feature datasets.
type DatasetService interface {
	GetDatasetStats(ctx context.Context, set store.Set, modelID string) (*models.DatasetStats, error)
	GetFeatureVectors(ctx context.Context, set store.Set, modelID *string) ([]models.FeatureRecord, error)
	GetFeatureDistributions(ctx context.Context, set store.Set, modelID *string) ([]stats.FeatureDistribution, error)
	GetCorrelations(ctx context.Context, set store.Set, modelID *string) (*stats.CorrelationMatrix, error)
}
