package handlers

import (
	"context"

	"github.com/redis/go-redis/v9"

	"github.com/cs2predict/predict-api/internal/logic"
	"github.com/cs2predict/predict-api/internal/models"
	"github.com/cs2predict/predict-api/internal/stats"
	"github.com/cs2predict/predict-api/internal/store"
)

// MockEvaluationService
type MockEvaluationService struct {
	ListModelsFunc         func(ctx context.Context) ([]models.Model, error)
	GetModelMetricsFunc    func(ctx context.Context, modelID string) (*stats.Evaluation, error)
	GetTrainingMetricsFunc func(ctx context.Context, modelName string) (*logic.TrainingReport, error)
	GetScoredRecordsFunc   func(ctx context.Context, modelID string) ([]models.ScoredRecord, error)
	GetUpcomingMatchesFunc func(ctx context.Context, modelID string) ([]models.UpcomingMatch, error)
}

func (m *MockEvaluationService) ListModels(ctx context.Context) ([]models.Model, error) {
	if m.ListModelsFunc != nil {
		return m.ListModelsFunc(ctx)
	}
	return []models.Model{}, nil
}

func (m *MockEvaluationService) GetModelMetrics(ctx context.Context, modelID string) (*stats.Evaluation, error) {
	if m.GetModelMetricsFunc != nil {
		return m.GetModelMetricsFunc(ctx, modelID)
	}
	return &stats.Evaluation{}, nil
}

func (m *MockEvaluationService) GetTrainingMetrics(ctx context.Context, modelName string) (*logic.TrainingReport, error) {
	if m.GetTrainingMetricsFunc != nil {
		return m.GetTrainingMetricsFunc(ctx, modelName)
	}
	return &logic.TrainingReport{}, nil
}

func (m *MockEvaluationService) GetScoredRecords(ctx context.Context, modelID string) ([]models.ScoredRecord, error) {
	if m.GetScoredRecordsFunc != nil {
		return m.GetScoredRecordsFunc(ctx, modelID)
	}
	return []models.ScoredRecord{}, nil
}

func (m *MockEvaluationService) GetUpcomingMatches(ctx context.Context, modelID string) ([]models.UpcomingMatch, error) {
	if m.GetUpcomingMatchesFunc != nil {
		return m.GetUpcomingMatchesFunc(ctx, modelID)
	}
	return []models.UpcomingMatch{}, nil
}

// MockDatasetService
type MockDatasetService struct {
	GetDatasetStatsFunc         func(ctx context.Context, set store.Set, modelID string) (*models.DatasetStats, error)
	GetFeatureVectorsFunc       func(ctx context.Context, set store.Set, modelID *string) ([]models.FeatureRecord, error)
	GetFeatureDistributionsFunc func(ctx context.Context, set store.Set, modelID *string) ([]stats.FeatureDistribution, error)
	GetCorrelationsFunc         func(ctx context.Context, set store.Set, modelID *string) (*stats.CorrelationMatrix, error)
}

func (m *MockDatasetService) GetDatasetStats(ctx context.Context, set store.Set, modelID string) (*models.DatasetStats, error) {
	if m.GetDatasetStatsFunc != nil {
		return m.GetDatasetStatsFunc(ctx, set, modelID)
	}
	return &models.DatasetStats{Set: string(set)}, nil
}

func (m *MockDatasetService) GetFeatureVectors(ctx context.Context, set store.Set, modelID *string) ([]models.FeatureRecord, error) {
	if m.GetFeatureVectorsFunc != nil {
		return m.GetFeatureVectorsFunc(ctx, set, modelID)
	}
	return []models.FeatureRecord{}, nil
}

func (m *MockDatasetService) GetFeatureDistributions(ctx context.Context, set store.Set, modelID *string) ([]stats.FeatureDistribution, error) {
	if m.GetFeatureDistributionsFunc != nil {
		return m.GetFeatureDistributionsFunc(ctx, set, modelID)
	}
	return []stats.FeatureDistribution{}, nil
}

func (m *MockDatasetService) GetCorrelations(ctx context.Context, set store.Set, modelID *string) (*stats.CorrelationMatrix, error) {
	if m.GetCorrelationsFunc != nil {
		return m.GetCorrelationsFunc(ctx, set, modelID)
	}
	return &stats.CorrelationMatrix{}, nil
}

// MockScheduler
type MockScheduler struct {
	StatusFunc  func() []models.PipelineStatus
	TriggerFunc func(id string) error
}

func (m *MockScheduler) Status() []models.PipelineStatus {
	if m.StatusFunc != nil {
		return m.StatusFunc()
	}
	return []models.PipelineStatus{}
}

func (m *MockScheduler) Trigger(id string) error {
	if m.TriggerFunc != nil {
		return m.TriggerFunc(id)
	}
	return nil
}

type MockStore struct {
	PingErr error
}

func (m *MockStore) Ping(context.Context) error { return m.PingErr }

type MockRedis struct {
	PingErr error
}

func (m *MockRedis) Ping(context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", m.PingErr)
}
