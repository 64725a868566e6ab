package ml

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"

	"github.com/swasthyaflow/intake/pkg/clinical"
)

var (
	// ErrModelNotFound means no classifier artifact exists at the configured path.
	ErrModelNotFound = errors.New("classifier artifact not found")
	// ErrInvalidArtifact means the artifact exists but cannot be used.
	ErrInvalidArtifact = errors.New("invalid classifier artifact")
)

// Artifact is the on-disk form of a trained classifier, as exported by the
// offline training pipeline.
type Artifact struct {
	Version            string       `json:"version"`
	Symptoms           []string     `json:"symptoms"`
	Conditions         []string     `json:"conditions"`
	Genders            []string     `json:"genders"`
	Numeric            NumericScale `json:"numeric"`
	Risk               LinearHead   `json:"risk"`
	Department         LinearHead   `json:"department"`
	Background         []float64    `json:"background,omitempty"`
	FeatureImportances []float64    `json:"feature_importances,omitempty"`
}

// NumericScale holds standard-scaler parameters for NumericFeatures.
type NumericScale struct {
	Mean  []float64 `json:"mean"`
	Scale []float64 `json:"scale"`
}

// LinearHead is one multinomial logistic regression: a weight row and an
// intercept per class.
type LinearHead struct {
	Classes   []string    `json:"classes"`
	Coef      [][]float64 `json:"coef"`
	Intercept []float64   `json:"intercept"`
}

// LinearModel is a loaded, validated classifier artifact.
type LinearModel struct {
	version     string
	encoder     *Encoder
	risk        LinearHead
	riskOrder   []int // riskOrder[i] is the head row for clinical.RiskTiers[i]
	dept        LinearHead
	background  []float64
	importances []float64
}

// LoadModel reads and validates an artifact file.
func LoadModel(path string) (*LinearModel, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrModelNotFound, path)
		}
		return nil, fmt.Errorf("read classifier artifact: %w", err)
	}
	var a Artifact
	if err := json.Unmarshal(raw, &a); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArtifact, err)
	}
	return NewLinearModel(a)
}

// NewLinearModel validates a and builds a model from it.
func NewLinearModel(a Artifact) (*LinearModel, error) {
	genders := a.Genders
	if len(genders) == 0 {
		genders = clinical.Genders
	}
	enc, err := NewEncoder(a.Symptoms, a.Conditions, genders, a.Numeric.Mean, a.Numeric.Scale)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArtifact, err)
	}
	n := enc.Len()

	if err := a.Risk.validate("risk", n); err != nil {
		return nil, err
	}
	if err := a.Department.validate("department", n); err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(a.Department.Classes))
	for _, name := range a.Department.Classes {
		if !clinical.IsDepartment(name) {
			return nil, fmt.Errorf("%w: unknown department class %q", ErrInvalidArtifact, name)
		}
		if seen[name] {
			return nil, fmt.Errorf("%w: duplicate department class %s", ErrInvalidArtifact, name)
		}
		seen[name] = true
	}
	if len(a.Risk.Classes) != len(clinical.RiskTiers) {
		return nil, fmt.Errorf("%w: risk head has %d classes, want %d",
			ErrInvalidArtifact, len(a.Risk.Classes), len(clinical.RiskTiers))
	}
	order := make([]int, len(clinical.RiskTiers))
	for i := range order {
		order[i] = -1
	}
	for row, name := range a.Risk.Classes {
		tier, err := clinical.ParseRiskTier(name)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidArtifact, err)
		}
		if order[tier.Index()] >= 0 {
			return nil, fmt.Errorf("%w: duplicate risk class %s", ErrInvalidArtifact, tier)
		}
		order[tier.Index()] = row
	}
	if a.Background != nil && len(a.Background) != n {
		return nil, fmt.Errorf("%w: background has %d values, want %d", ErrInvalidArtifact, len(a.Background), n)
	}
	if a.FeatureImportances != nil && len(a.FeatureImportances) != n {
		return nil, fmt.Errorf("%w: feature_importances has %d values, want %d",
			ErrInvalidArtifact, len(a.FeatureImportances), n)
	}

	return &LinearModel{
		version:     a.Version,
		encoder:     enc,
		risk:        a.Risk,
		riskOrder:   order,
		dept:        a.Department,
		background:  a.Background,
		importances: a.FeatureImportances,
	}, nil
}

func (h LinearHead) validate(name string, n int) error {
	if len(h.Classes) == 0 {
		return fmt.Errorf("%w: %s head has no classes", ErrInvalidArtifact, name)
	}
	if len(h.Coef) != len(h.Classes) || len(h.Intercept) != len(h.Classes) {
		return fmt.Errorf("%w: %s head has %d classes, %d coefficient rows and %d intercepts",
			ErrInvalidArtifact, name, len(h.Classes), len(h.Coef), len(h.Intercept))
	}
	for i, row := range h.Coef {
		if len(row) != n {
			return fmt.Errorf("%w: %s coefficient row %d has %d weights, want %d",
				ErrInvalidArtifact, name, i, len(row), n)
		}
	}
	return nil
}

// Version returns the artifact version string.
func (m *LinearModel) Version() string { return m.version }

// Encoder returns the encoder matching the model's vocabulary.
func (m *LinearModel) Encoder() *Encoder { return m.encoder }

// Predict implements Classifier.
func (m *LinearModel) Predict(v FeatureVector) (Output, error) {
	if v.Len() != m.encoder.Len() {
		return Output{}, fmt.Errorf("feature vector has %d values, model expects %d", v.Len(), m.encoder.Len())
	}
	riskRaw := softmax(logits(m.risk, v.Values))
	riskProbs := make([]float64, len(clinical.RiskTiers))
	for i, row := range m.riskOrder {
		riskProbs[i] = riskRaw[row]
	}
	deptProbs := softmax(logits(m.dept, v.Values))

	out := newOutput(riskProbs, m.dept.Classes, deptProbs, SourceModel)
	out.ModelVersion = m.version
	return out, nil
}

// Attribute implements Attributor. For a linear logit the Shapley value of
// feature i against the background mean is w_i * (x_i - b_i), and the base
// value is the logit at the background point.
func (m *LinearModel) Attribute(v FeatureVector, class clinical.RiskTier) ([]float64, float64, error) {
	if m.background == nil {
		return nil, 0, ErrAttributionUnavailable
	}
	idx := class.Index()
	if idx < 0 {
		return nil, 0, fmt.Errorf("unknown risk class %q", class)
	}
	if v.Len() != len(m.background) {
		return nil, 0, fmt.Errorf("feature vector has %d values, background has %d", v.Len(), len(m.background))
	}
	row := m.riskOrder[idx]
	w := m.risk.Coef[row]
	contrib := make([]float64, len(w))
	base := m.risk.Intercept[row]
	for i := range w {
		contrib[i] = w[i] * (v.Values[i] - m.background[i])
		base += w[i] * m.background[i]
	}
	return contrib, base, nil
}

// GlobalImportances implements ImportanceSource.
func (m *LinearModel) GlobalImportances() []float64 {
	return m.importances
}

func logits(h LinearHead, x []float64) []float64 {
	z := make([]float64, len(h.Classes))
	for c, row := range h.Coef {
		s := h.Intercept[c]
		for i, w := range row {
			s += w * x[i]
		}
		z[c] = s
	}
	return z
}

func softmax(z []float64) []float64 {
	max := math.Inf(-1)
	for _, v := range z {
		if v > max {
			max = v
		}
	}
	out := make([]float64, len(z))
	var sum float64
	for i, v := range z {
		out[i] = math.Exp(v - max)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}
