package models

import (
	"bytes"
	"encoding/json"
	"time"
)

// ScoredRecord pairs a model's prediction with the observed outcome.
// Any field may be missing in the store; see stats.Eligible.
type ScoredRecord struct {
	PredictedLabel *int     `json:"prediction"`
	ActualLabel    *int     `json:"actual_outcome"`
	Confidence     *float64 `json:"confidence"`
}

// NewScoredRecord builds a fully populated record.
func NewScoredRecord(predicted, actual int, confidence float64) ScoredRecord {
	return ScoredRecord{
		PredictedLabel: &predicted,
		ActualLabel:    &actual,
		Confidence:     &confidence,
	}
}

// FeatureValue is one column of a feature vector row. Value is whatever the
// store produced: a number, nil, or something non-numeric.
type FeatureValue struct {
	Name  string
	Value any
}

// FeatureRecord is a feature vector row with column order preserved.
type FeatureRecord []FeatureValue

// Get returns the value stored under name.
func (r FeatureRecord) Get(name string) (any, bool) {
	for _, fv := range r {
		if fv.Name == name {
			return fv.Value, true
		}
	}
	return nil, false
}

// Keys returns the column names in order.
func (r FeatureRecord) Keys() []string {
	keys := make([]string, len(r))
	for i, fv := range r {
		keys[i] = fv.Name
	}
	return keys
}

// MarshalJSON encodes the row as a JSON object in column order.
func (r FeatureRecord) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, fv := range r {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(fv.Name)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(fv.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Model is a row of the model registry.
type Model struct {
	ID   string `json:"model_id"`
	Name string `json:"model_name"`
}

// TrainingMetrics is the confusion matrix recorded by the training job.
type TrainingMetrics struct {
	ModelID       string `json:"model_id"`
	ModelName     string `json:"model_name"`
	TruePositive  int    `json:"t_pos"`
	TrueNegative  int    `json:"t_neg"`
	FalsePositive int    `json:"f_pos"`
	FalseNegative int    `json:"f_neg"`
}

// UpcomingMatch is a scheduled or recently played match with the requested
// model's prediction, if any.
type UpcomingMatch struct {
	MatchID        int64     `json:"match_id"`
	TeamA          string    `json:"team_a"`
	TeamB          string    `json:"team_b"`
	Date           time.Time `json:"date"`
	TournamentName *string   `json:"tournament_name"`
	TournamentType *string   `json:"tournament_type"`
	BestOf         *int      `json:"best_of"`
	ActualOutcome  *int      `json:"actual_outcome"`
	Prediction     *int      `json:"prediction"`
	Confidence     *float64  `json:"confidence"`
	ModelID        *string   `json:"model_id"`
}

// MatchSummary aggregates a match table.
type MatchSummary struct {
	RowCount int64      `json:"match_row_count"`
	MinDate  *time.Time `json:"match_min_date"`
	MaxDate  *time.Time `json:"match_max_date"`
}

// DatasetStats is the dashboard overview of one dataset.
type DatasetStats struct {
	Set string `json:"set"`
	MatchSummary
	FeatureRowCount int64 `json:"feature_row_count"`
	FeatureCount    int   `json:"feature_count"`
}
