package stats

import (
	"math"
	"sort"

	"github.com/cs2predict/predict-api/internal/models"
)

// CorrelationMatrix holds pairwise Spearman coefficients. Pairs that cannot
// be computed (too few shared rows, constant column) are absent.
type CorrelationMatrix struct {
	Features []string                      `json:"features"`
	Values   map[string]map[string]float64 `json:"values"`
}

// SpearmanMatrix correlates every pair of features named in the first
// record, using only rows where both values are numeric.
func SpearmanMatrix(records []models.FeatureRecord, exclude ...string) CorrelationMatrix {
	m := CorrelationMatrix{Values: make(map[string]map[string]float64)}

	// Resolve each column once; the mask marks rows with a numeric value.
	keys := featureKeys(records, exclude)
	cols := make([][]float64, len(keys))
	masks := make([][]bool, len(keys))
	for i, key := range keys {
		cols[i] = make([]float64, len(records))
		masks[i] = make([]bool, len(records))
		for r, rec := range records {
			raw, _ := rec.Get(key)
			if v, ok := Numeric(raw); ok {
				cols[i][r] = v
				masks[i][r] = true
			}
		}
	}

	for i := range keys {
		for j := i; j < len(keys); j++ {
			var xs, ys []float64
			for r := range records {
				if masks[i][r] && masks[j][r] {
					xs = append(xs, cols[i][r])
					ys = append(ys, cols[j][r])
				}
			}
			rho, ok := spearman(xs, ys)
			if !ok {
				continue
			}
			m.set(keys[i], keys[j], rho)
			m.set(keys[j], keys[i], rho)
		}
	}

	for _, key := range keys {
		if _, ok := m.Values[key]; ok {
			m.Features = append(m.Features, key)
		}
	}
	return m
}

func (m *CorrelationMatrix) set(a, b string, v float64) {
	row, ok := m.Values[a]
	if !ok {
		row = make(map[string]float64)
		m.Values[a] = row
	}
	row[b] = v
}

func spearman(xs, ys []float64) (float64, bool) {
	if len(xs) < 2 {
		return 0, false
	}
	return pearson(ranks(xs), ranks(ys))
}

// ranks assigns 1-based ranks, giving tied values the mean of their positions.
func ranks(values []float64) []float64 {
	idx := make([]int, len(values))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return values[idx[a]] < values[idx[b]] })

	out := make([]float64, len(values))
	for start := 0; start < len(idx); {
		end := start + 1
		for end < len(idx) && values[idx[end]] == values[idx[start]] {
			end++
		}
		avg := float64(start+end+1) / 2
		for k := start; k < end; k++ {
			out[idx[k]] = avg
		}
		start = end
	}
	return out
}

func pearson(xs, ys []float64) (float64, bool) {
	n := float64(len(xs))
	var sx, sy float64
	for i := range xs {
		sx += xs[i]
		sy += ys[i]
	}
	mx, my := sx/n, sy/n

	var cov, vx, vy float64
	for i := range xs {
		dx, dy := xs[i]-mx, ys[i]-my
		cov += dx * dy
		vx += dx * dx
		vy += dy * dy
	}
	if vx == 0 || vy == 0 {
		return 0, false
	}
	r := cov / math.Sqrt(vx*vy)
	// Guard against rounding drifting just outside [-1, 1].
	return math.Max(-1, math.Min(1, r)), true
}
