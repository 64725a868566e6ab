package ml

import (
	"errors"

	"github.com/swasthyaflow/intake/pkg/clinical"
)

// Prediction sources.
const (
	SourceModel     = "model"
	SourceHeuristic = "heuristic"
)

// ErrAttributionUnavailable is returned by classifiers that cannot produce
// per-instance attributions for a prediction.
var ErrAttributionUnavailable = errors.New("attribution unavailable")

// Output is a classifier prediction.
type Output struct {
	RiskProbabilities       map[clinical.RiskTier]float64 `json:"risk_probabilities"`
	DepartmentProbabilities map[string]float64            `json:"department_probabilities"`
	Risk                    clinical.RiskTier             `json:"risk_level"`
	Department              string                        `json:"department"`
	Confidence              float64                       `json:"confidence"`
	Source                  string                        `json:"source"`
	ModelVersion            string                        `json:"model_version,omitempty"`
}

// Classifier predicts risk and department distributions from a feature vector.
type Classifier interface {
	Predict(v FeatureVector) (Output, error)
}

// Attributor computes signed per-feature contributions toward a risk class,
// together with the expected (base) value for that class.
type Attributor interface {
	Attribute(v FeatureVector, class clinical.RiskTier) (contrib []float64, base float64, err error)
}

// ImportanceSource exposes static global feature importances, one per feature.
type ImportanceSource interface {
	GlobalImportances() []float64
}

// newOutput derives the argmax labels and confidence from the distributions.
// Ties resolve to the first class in order.
func newOutput(riskProbs []float64, deptClasses []string, deptProbs []float64, source string) Output {
	out := Output{
		RiskProbabilities:       make(map[clinical.RiskTier]float64, len(clinical.RiskTiers)),
		DepartmentProbabilities: make(map[string]float64, len(deptClasses)),
		Source:                  source,
	}
	best := -1
	for i, tier := range clinical.RiskTiers {
		p := riskProbs[i]
		out.RiskProbabilities[tier] = p
		if best < 0 || p > riskProbs[best] {
			best = i
		}
	}
	out.Risk = clinical.RiskTiers[best]
	out.Confidence = riskProbs[best]

	bestDept := -1
	for i, d := range deptClasses {
		out.DepartmentProbabilities[d] = deptProbs[i]
		if bestDept < 0 || deptProbs[i] > deptProbs[bestDept] {
			bestDept = i
		}
	}
	if bestDept >= 0 {
		out.Department = deptClasses[bestDept]
	} else {
		out.Department = clinical.DeptGeneralMedicine
	}
	return out
}
