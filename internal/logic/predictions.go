package logic

import (
	"context"
	"errors"
	"fmt"

	"github.com/cs2predict/predict-api/internal/models"
	"github.com/cs2predict/predict-api/internal/stats"
	"github.com/cs2predict/predict-api/internal/store"
)

type evaluationService struct {
	store store.Reader
	cache *Cache
}

func NewEvaluationService(r store.Reader, cache *Cache) EvaluationService {
	return &evaluationService{store: r, cache: cache}
}

func (s *evaluationService) ListModels(ctx context.Context) ([]models.Model, error) {
	list, err := s.store.ListModels(ctx)
	if err != nil {
		return nil, upstream(err)
	}
	return list, nil
}

// GetModelMetrics scores a model's predictions against the outcomes recorded
// for upcoming matches that have since been played.
func (s *evaluationService) GetModelMetrics(ctx context.Context, modelID string) (*stats.Evaluation, error) {
	ev, err := cached(ctx, s.cache, "evaluation:"+modelID, func(ctx context.Context) (stats.Evaluation, error) {
		records, err := s.store.QueryScoredRecords(ctx, modelID)
		if err != nil {
			return stats.Evaluation{}, upstream(err)
		}
		return stats.Evaluate(positiveClassConfidence(records))
	})
	if err != nil && !errors.Is(err, stats.ErrInsufficientData) {
		return nil, err
	}
	return &ev, err
}

// GetTrainingMetrics returns the counts stored by the training job. A model
// with no recorded predictions reports stats.ErrInsufficientData.
func (s *evaluationService) GetTrainingMetrics(ctx context.Context, modelName string) (*TrainingReport, error) {
	m, err := s.store.GetModelByName(ctx, modelName)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		return nil, upstream(err)
	}

	counts := stats.ConfusionCounts{
		TruePositive:  m.TruePositive,
		TrueNegative:  m.TrueNegative,
		FalsePositive: m.FalsePositive,
		FalseNegative: m.FalseNegative,
	}
	report := &TrainingReport{TrainingMetrics: *m, Ratios: stats.FromCounts(counts)}
	if counts.Total() == 0 {
		return report, stats.ErrInsufficientData
	}
	return report, nil
}

func (s *evaluationService) GetScoredRecords(ctx context.Context, modelID string) ([]models.ScoredRecord, error) {
	records, err := s.store.QueryScoredRecords(ctx, modelID)
	if err != nil {
		return nil, upstream(err)
	}
	return records, nil
}

func (s *evaluationService) GetUpcomingMatches(ctx context.Context, modelID string) ([]models.UpcomingMatch, error) {
	matches, err := s.store.ListUpcomingMatches(ctx, modelID)
	if err != nil {
		return nil, upstream(err)
	}
	return matches, nil
}

// positiveClassConfidence rewrites confidences as P(label=1). The prediction
// stages store the probability of the predicted class, so a row predicted 0
// carries P(label=0).
func positiveClassConfidence(records []models.ScoredRecord) []models.ScoredRecord {
	out := make([]models.ScoredRecord, len(records))
	for i, r := range records {
		out[i] = r
		if r.PredictedLabel != nil && *r.PredictedLabel == 0 && r.Confidence != nil {
			p := 1 - *r.Confidence
			out[i].Confidence = &p
		}
	}
	return out
}

func upstream(err error) error {
	return fmt.Errorf("%w: %w", ErrUpstreamQuery, err)
}
