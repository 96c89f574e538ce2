package logic

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cs2predict/predict-api/internal/models"
	"github.com/cs2predict/predict-api/internal/store"
)

// mockReader implements store.Reader with optional function fields.
type mockReader struct {
	ListModelsFunc          func(ctx context.Context) ([]models.Model, error)
	GetModelByNameFunc      func(ctx context.Context, name string) (*models.TrainingMetrics, error)
	QueryScoredRecordsFunc  func(ctx context.Context, modelID string) ([]models.ScoredRecord, error)
	QueryFeatureVectorsFunc func(ctx context.Context, set store.Set, modelID *string) ([]models.FeatureRecord, error)
	ListUpcomingMatchesFunc func(ctx context.Context, modelID string) ([]models.UpcomingMatch, error)
	MatchSummaryFunc        func(ctx context.Context, set store.Set) (models.MatchSummary, error)
	FeatureRowCountFunc     func(ctx context.Context, set store.Set, modelID string) (int64, error)
	FirstFeatureRowFunc     func(ctx context.Context, set store.Set, modelID string) (models.FeatureRecord, error)

	mu    sync.Mutex
	calls map[string]int
}

func (m *mockReader) record(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.calls == nil {
		m.calls = make(map[string]int)
	}
	m.calls[name]++
}

func (m *mockReader) count(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[name]
}

func (m *mockReader) ListModels(ctx context.Context) ([]models.Model, error) {
	m.record("ListModels")
	if m.ListModelsFunc != nil {
		return m.ListModelsFunc(ctx)
	}
	return []models.Model{}, nil
}

func (m *mockReader) GetModelByName(ctx context.Context, name string) (*models.TrainingMetrics, error) {
	m.record("GetModelByName")
	if m.GetModelByNameFunc != nil {
		return m.GetModelByNameFunc(ctx, name)
	}
	return nil, store.ErrNotFound
}

func (m *mockReader) QueryScoredRecords(ctx context.Context, modelID string) ([]models.ScoredRecord, error) {
	m.record("QueryScoredRecords")
	if m.QueryScoredRecordsFunc != nil {
		return m.QueryScoredRecordsFunc(ctx, modelID)
	}
	return nil, nil
}

func (m *mockReader) QueryFeatureVectors(ctx context.Context, set store.Set, modelID *string) ([]models.FeatureRecord, error) {
	m.record("QueryFeatureVectors")
	if m.QueryFeatureVectorsFunc != nil {
		return m.QueryFeatureVectorsFunc(ctx, set, modelID)
	}
	return nil, nil
}

func (m *mockReader) ListUpcomingMatches(ctx context.Context, modelID string) ([]models.UpcomingMatch, error) {
	m.record("ListUpcomingMatches")
	if m.ListUpcomingMatchesFunc != nil {
		return m.ListUpcomingMatchesFunc(ctx, modelID)
	}
	return nil, nil
}

func (m *mockReader) MatchSummary(ctx context.Context, set store.Set) (models.MatchSummary, error) {
	m.record("MatchSummary")
	if m.MatchSummaryFunc != nil {
		return m.MatchSummaryFunc(ctx, set)
	}
	return models.MatchSummary{}, nil
}

func (m *mockReader) FeatureRowCount(ctx context.Context, set store.Set, modelID string) (int64, error) {
	m.record("FeatureRowCount")
	if m.FeatureRowCountFunc != nil {
		return m.FeatureRowCountFunc(ctx, set, modelID)
	}
	return 0, nil
}

func (m *mockReader) FirstFeatureRow(ctx context.Context, set store.Set, modelID string) (models.FeatureRecord, error) {
	m.record("FirstFeatureRow")
	if m.FirstFeatureRowFunc != nil {
		return m.FirstFeatureRowFunc(ctx, set, modelID)
	}
	return nil, nil
}

func (m *mockReader) Ping(context.Context) error { return nil }
func (m *mockReader) Close()                     {}

// mockRedis is an in-memory RedisClient.
type mockRedis struct {
	mu     sync.Mutex
	data   map[string]string
	getErr error
	setErr error
	ttls   map[string]time.Duration
}

func newMockRedis() *mockRedis {
	return &mockRedis{data: make(map[string]string), ttls: make(map[string]time.Duration)}
}

func (m *mockRedis) Get(_ context.Context, key string) *redis.StringCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return redis.NewStringResult("", m.getErr)
	}
	v, ok := m.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (m *mockRedis) Set(_ context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.setErr != nil {
		return redis.NewStatusResult("", m.setErr)
	}
	switch v := value.(type) {
	case []byte:
		m.data[key] = string(v)
	case string:
		m.data[key] = v
	}
	m.ttls[key] = expiration
	return redis.NewStatusResult("OK", nil)
}
