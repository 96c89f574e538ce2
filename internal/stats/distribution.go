package stats

import (
	"encoding/json"
	"math"
	"slices"

	"github.com/cs2predict/predict-api/internal/models"
)

// FeatureDistribution summarises the numeric values of one feature.
type FeatureDistribution struct {
	Feature string  `json:"feature"`
	Count   int     `json:"count"`
	Mean    float64 `json:"mean"`
	SD      float64 `json:"sd"`
	Median  float64 `json:"median"`
}

// Distributions computes population mean, standard deviation and median for
// every feature named in the first record. Nulls and non-numeric values are
// skipped; a feature without any numeric value is left out of the result.
// Columns listed in exclude (identifiers, foreign keys) are ignored.
func Distributions(records []models.FeatureRecord, exclude ...string) []FeatureDistribution {
	keys := featureKeys(records, exclude)
	out := make([]FeatureDistribution, 0, len(keys))
	for _, key := range keys {
		values := numericColumn(records, key)
		if len(values) == 0 {
			continue
		}
		out = append(out, describe(key, values))
	}
	return out
}

func describe(feature string, values []float64) FeatureDistribution {
	n := float64(len(values))

	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / n

	var sq float64
	for _, v := range values {
		d := v - mean
		sq += d * d
	}

	return FeatureDistribution{
		Feature: feature,
		Count:   len(values),
		Mean:    mean,
		SD:      math.Sqrt(sq / n),
		Median:  median(values),
	}
}

func median(values []float64) float64 {
	sorted := slices.Clone(values)
	slices.Sort(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}

func featureKeys(records []models.FeatureRecord, exclude []string) []string {
	if len(records) == 0 {
		return nil
	}
	var keys []string
	for _, key := range records[0].Keys() {
		if slices.Contains(exclude, key) {
			continue
		}
		keys = append(keys, key)
	}
	return keys
}

func numericColumn(records []models.FeatureRecord, key string) []float64 {
	values := make([]float64, 0, len(records))
	for _, rec := range records {
		raw, ok := rec.Get(key)
		if !ok {
			continue
		}
		if v, ok := Numeric(raw); ok {
			values = append(values, v)
		}
	}
	return values
}

// Numeric reports whether v is a finite number and returns it as float64.
// Strings are not parsed: a value stored as text is not a number.
func Numeric(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int8:
		f = float64(n)
	case int16:
		f = float64(n)
	case int32:
		f = float64(n)
	case int64:
		f = float64(n)
	case uint:
		f = float64(n)
	case uint8:
		f = float64(n)
	case uint16:
		f = float64(n)
	case uint32:
		f = float64(n)
	case uint64:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
