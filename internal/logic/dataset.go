package logic

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/cs2predict/predict-api/internal/models"
	"github.com/cs2predict/predict-api/internal/stats"
	"github.com/cs2predict/predict-api/internal/store"
)

type datasetService struct {
	store store.Reader
	cache *Cache
}

func NewDatasetService(r store.Reader, cache *Cache) DatasetService {
	return &datasetService{store: r, cache: cache}
}

// GetDatasetStats runs the three overview queries in parallel. The result is
// all-or-nothing: if any query fails the others are canceled and no partial
// stats are returned.
func (s *datasetService) GetDatasetStats(ctx context.Context, set store.Set, modelID string) (*models.DatasetStats, error) {
	var (
		summary  models.MatchSummary
		rowCount int64
		first    models.FeatureRecord
	)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		var err error
		if summary, err = s.store.MatchSummary(ctx, set); err != nil {
			return fmt.Errorf("match summary: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		var err error
		if rowCount, err = s.store.FeatureRowCount(ctx, set, modelID); err != nil {
			return fmt.Errorf("feature row count: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		var err error
		if first, err = s.store.FirstFeatureRow(ctx, set, modelID); err != nil {
			return fmt.Errorf("first feature row: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, upstream(err)
	}

	return &models.DatasetStats{
		Set:             string(set),
		MatchSummary:    summary,
		FeatureRowCount: rowCount,
		FeatureCount:    featureCount(first),
	}, nil
}

// featureCount counts the populated feature columns of a row.
func featureCount(rec models.FeatureRecord) int {
	n := 0
	for _, fv := range rec {
		if fv.Value == nil || isExcluded(fv.Name) {
			continue
		}
		n++
	}
	return n
}

func isExcluded(name string) bool {
	for _, ex := range excludedColumns {
		if name == ex {
			return true
		}
	}
	return false
}

func (s *datasetService) GetFeatureVectors(ctx context.Context, set store.Set, modelID *string) ([]models.FeatureRecord, error) {
	rows, err := s.store.QueryFeatureVectors(ctx, set, modelID)
	if err != nil {
		return nil, upstream(err)
	}
	return rows, nil
}

func (s *datasetService) GetFeatureDistributions(ctx context.Context, set store.Set, modelID *string) ([]stats.FeatureDistribution, error) {
	return cached(ctx, s.cache, cacheKey("distributions", set, modelID), func(ctx context.Context) ([]stats.FeatureDistribution, error) {
		rows, err := s.GetFeatureVectors(ctx, set, modelID)
		if err != nil {
			return nil, err
		}
		if len(rows) == 0 {
			return nil, stats.ErrInsufficientData
		}
		return stats.Distributions(rows, excludedColumns...), nil
	})
}

func (s *datasetService) GetCorrelations(ctx context.Context, set store.Set, modelID *string) (*stats.CorrelationMatrix, error) {
	m, err := cached(ctx, s.cache, cacheKey("correlations", set, modelID), func(ctx context.Context) (stats.CorrelationMatrix, error) {
		rows, err := s.GetFeatureVectors(ctx, set, modelID)
		if err != nil {
			return stats.CorrelationMatrix{}, err
		}
		if len(rows) < 2 {
			return stats.CorrelationMatrix{}, stats.ErrInsufficientData
		}
		return stats.SpearmanMatrix(rows, excludedColumns...), nil
	})
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func cacheKey(kind string, set store.Set, modelID *string) string {
	id := "*"
	if modelID != nil {
		id = *modelID
	}
	return kind + ":" + string(set) + ":" + id
}
