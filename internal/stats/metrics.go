// Package stats turns stored predictions and feature vectors into the
// model-performance numbers shown on the dashboard.
package stats

import (
	"errors"
	"math"
	"sort"

	"github.com/cs2predict/predict-api/internal/models"
)

// LogLossEpsilon bounds confidences away from 0 and 1 before taking logs.
const LogLossEpsilon = 1e-15

var (
	// ErrInsufficientData means no eligible record was available. It is
	// never folded into a zero-valued metric.
	ErrInsufficientData = errors.New("insufficient data")
	// ErrUndefinedAUC means the eligible records hold only one class.
	ErrUndefinedAUC = errors.New("roc auc undefined: need both positive and negative labels")
)

// Scored is an eligible record with its nullable fields resolved.
type Scored struct {
	Predicted  int
	Actual     int
	Confidence float64
}

// Eligible keeps records whose prediction, outcome and confidence are all
// present. Labels must be 0 or 1 and confidence a finite value in [0,1].
// Input order is preserved.
func Eligible(records []models.ScoredRecord) []Scored {
	out := make([]Scored, 0, len(records))
	for _, r := range records {
		if r.PredictedLabel == nil || r.ActualLabel == nil || r.Confidence == nil {
			continue
		}
		p, a, c := *r.PredictedLabel, *r.ActualLabel, *r.Confidence
		if !isBinary(p) || !isBinary(a) {
			continue
		}
		if math.IsNaN(c) || c < 0 || c > 1 {
			continue
		}
		out = append(out, Scored{Predicted: p, Actual: a, Confidence: c})
	}
	return out
}

func isBinary(v int) bool {
	return v == 0 || v == 1
}

// ConfusionCounts is the four-way tally behind accuracy, precision, recall and F1.
type ConfusionCounts struct {
	TruePositive  int `json:"t_pos"`
	TrueNegative  int `json:"t_neg"`
	FalsePositive int `json:"f_pos"`
	FalseNegative int `json:"f_neg"`
}

// Confusion tallies eligible records by (predicted, actual).
func Confusion(records []models.ScoredRecord) ConfusionCounts {
	return confusion(Eligible(records))
}

func confusion(scored []Scored) ConfusionCounts {
	var c ConfusionCounts
	for _, s := range scored {
		switch {
		case s.Predicted == 1 && s.Actual == 1:
			c.TruePositive++
		case s.Predicted == 0 && s.Actual == 0:
			c.TrueNegative++
		case s.Predicted == 1 && s.Actual == 0:
			c.FalsePositive++
		default:
			c.FalseNegative++
		}
	}
	return c
}

// Total is the number of records counted.
func (c ConfusionCounts) Total() int {
	return c.TruePositive + c.TrueNegative + c.FalsePositive + c.FalseNegative
}

// Accuracy is (tp+tn)/total, 0 when total is 0.
func (c ConfusionCounts) Accuracy() float64 {
	return safeDiv(float64(c.TruePositive+c.TrueNegative), float64(c.Total()))
}

// Precision is tp/(tp+fp), 0 when the model made no positive prediction.
func (c ConfusionCounts) Precision() float64 {
	return safeDiv(float64(c.TruePositive), float64(c.TruePositive+c.FalsePositive))
}

// Recall is tp/(tp+fn), 0 when there are no actual positives.
func (c ConfusionCounts) Recall() float64 {
	return safeDiv(float64(c.TruePositive), float64(c.TruePositive+c.FalseNegative))
}

// F1 is the harmonic mean of precision and recall, 0 when both are 0.
func (c ConfusionCounts) F1() float64 {
	p, r := c.Precision(), c.Recall()
	return safeDiv(2*p*r, p+r)
}

// Ratios are the threshold metrics derived from a confusion matrix.
type Ratios struct {
	Accuracy  float64 `json:"accuracy"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
}

// FromCounts derives Ratios from already tallied counts, such as the ones
// written by the training job.
func FromCounts(c ConfusionCounts) Ratios {
	return Ratios{
		Accuracy:  c.Accuracy(),
		Precision: c.Precision(),
		Recall:    c.Recall(),
		F1:        c.F1(),
	}
}

func safeDiv(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	return num / den
}

// LogLoss is the mean negative log-likelihood of the actual label, reading
// confidence as the probability of label 1.
func LogLoss(records []models.ScoredRecord) (float64, error) {
	return logLoss(Eligible(records))
}

func logLoss(scored []Scored) (float64, error) {
	if len(scored) == 0 {
		return math.NaN(), ErrInsufficientData
	}

	var total float64
	for _, s := range scored {
		p := math.Min(math.Max(s.Confidence, LogLossEpsilon), 1-LogLossEpsilon)
		y := float64(s.Actual)
		total += -(y*math.Log(p) + (1-y)*math.Log(1-p))
	}
	return total / float64(len(scored)), nil
}

// ROCAUC integrates the ROC curve with the trapezoid rule. Records are
// ranked by confidence, highest first; equal confidences keep their input
// order and are walked one at a time.
func ROCAUC(records []models.ScoredRecord) (float64, error) {
	return rocAUC(Eligible(records))
}

func rocAUC(scored []Scored) (float64, error) {
	if len(scored) == 0 {
		return math.NaN(), ErrInsufficientData
	}

	var pos, neg int
	for _, s := range scored {
		if s.Actual == 1 {
			pos++
		} else {
			neg++
		}
	}
	if pos == 0 || neg == 0 {
		return math.NaN(), ErrUndefinedAUC
	}

	ranked := make([]Scored, len(scored))
	copy(ranked, scored)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Confidence > ranked[j].Confidence
	})

	var (
		tp, fp           int
		prevTPR, prevFPR float64
		auc              float64
	)
	for _, s := range ranked {
		if s.Actual == 1 {
			tp++
		} else {
			fp++
		}
		tpr := float64(tp) / float64(pos)
		fpr := float64(fp) / float64(neg)
		auc += (fpr - prevFPR) * (tpr + prevTPR) / 2
		prevTPR, prevFPR = tpr, fpr
	}
	return auc, nil
}

// Evaluation is the full report for one model over its scored records.
type Evaluation struct {
	Records   int             `json:"records"`
	Eligible  int             `json:"eligible"`
	Confusion ConfusionCounts `json:"confusion"`
	Ratios
	LogLoss *float64 `json:"log_loss"`
	ROCAUC  *float64 `json:"roc_auc"`
	// Undefined explains every metric reported as null.
	Undefined map[string]string `json:"undefined,omitempty"`
}

// Evaluate computes every metric at once. It returns ErrInsufficientData
// when no record is eligible.
func Evaluate(records []models.ScoredRecord) (Evaluation, error) {
	scored := Eligible(records)
	ev := Evaluation{
		Records:  len(records),
		Eligible: len(scored),
	}
	if len(scored) == 0 {
		return ev, ErrInsufficientData
	}

	ev.Confusion = confusion(scored)
	ev.Ratios = FromCounts(ev.Confusion)

	if ll, err := logLoss(scored); err == nil {
		ev.LogLoss = &ll
	} else {
		ev.undefined("log_loss", err)
	}
	if auc, err := rocAUC(scored); err == nil {
		ev.ROCAUC = &auc
	} else {
		ev.undefined("roc_auc", err)
	}
	return ev, nil
}

func (e *Evaluation) undefined(metric string, err error) {
	if e.Undefined == nil {
		e.Undefined = make(map[string]string)
	}
	e.Undefined[metric] = err.Error()
}
