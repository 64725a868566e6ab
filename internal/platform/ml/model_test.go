package ml

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/swasthyaflow/intake/pkg/clinical"
)

func TestLinearModel_Predict(t *testing.T) {
	m := mustModel(t, testArtifact())
	v := m.Encoder().Encode(Input{Symptoms: []string{"chest_pain"}, Age: 35, Gender: "F"})

	out, err := m.Predict(v)
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if out.Risk != clinical.RiskHigh {
		t.Errorf("Risk = %s, want HIGH", out.Risk)
	}
	if out.Department != clinical.DeptEmergency {
		t.Errorf("Department = %s, want Emergency", out.Department)
	}
	if out.Source != SourceModel || out.ModelVersion != "test-1" {
		t.Errorf("unexpected source/version %s/%s", out.Source, out.ModelVersion)
	}

	// logits LOW=-1, MEDIUM=0, HIGH=2
	denom := math.Exp(-1) + 1 + math.Exp(2)
	want := math.Exp(2) / denom
	if math.Abs(out.Confidence-want) > 1e-9 {
		t.Errorf("Confidence = %v, want %v", out.Confidence, want)
	}
	var sum float64
	for _, p := range out.RiskProbabilities {
		sum += p
	}
	if math.Abs(sum-1) > 1e-9 {
		t.Errorf("risk probabilities sum to %v", sum)
	}
}

func TestLinearModel_PredictWrongLength(t *testing.T) {
	m := mustModel(t, testArtifact())
	if _, err := m.Predict(FeatureVector{Values: []float64{1, 2}}); err == nil {
		t.Error("expected error for short vector")
	}
}

func TestLinearModel_AttributionIsAdditive(t *testing.T) {
	a := testArtifact()
	m := mustModel(t, a)
	v := m.Encoder().Encode(Input{Symptoms: []string{"chest_pain"}, Age: 55, Gender: "M"})

	contrib, base, err := m.Attribute(v, clinical.RiskHigh)
	if err != nil {
		t.Fatalf("Attribute: %v", err)
	}
	logit := a.Risk.Intercept[2]
	for i, w := range a.Risk.Coef[2] {
		logit += w * v.Values[i]
	}
	sum := base
	for _, c := range contrib {
		sum += c
	}
	if math.Abs(sum-logit) > 1e-9 {
		t.Errorf("base + contributions = %v, want logit %v", sum, logit)
	}
	if math.Abs(base-0.1) > 1e-9 {
		t.Errorf("base = %v, want 0.1", base)
	}
}

func TestLinearModel_AttributionNeedsBackground(t *testing.T) {
	a := testArtifact()
	a.Background = nil
	m := mustModel(t, a)
	v := m.Encoder().Encode(Input{})
	if _, _, err := m.Attribute(v, clinical.RiskLow); !errors.Is(err, ErrAttributionUnavailable) {
		t.Errorf("expected ErrAttributionUnavailable, got %v", err)
	}
}

func TestNewLinearModel_RejectsBadShapes(t *testing.T) {
	cases := map[string]func(a *Artifact){
		"short coef row":       func(a *Artifact) { a.Risk.Coef[0] = a.Risk.Coef[0][:3] },
		"missing intercept":    func(a *Artifact) { a.Department.Intercept = nil },
		"two risk classes":     func(a *Artifact) { a.Risk.Classes = a.Risk.Classes[:2]; a.Risk.Coef = a.Risk.Coef[:2]; a.Risk.Intercept = a.Risk.Intercept[:2] },
		"unknown risk class":   func(a *Artifact) { a.Risk.Classes[1] = "SEVERE" },
		"duplicate class":      func(a *Artifact) { a.Risk.Classes[1] = "LOW" },
		"unknown department":   func(a *Artifact) { a.Department.Classes[0] = "Oncology" },
		"duplicate department": func(a *Artifact) { a.Department.Classes[1] = a.Department.Classes[0] },
		"background length":    func(a *Artifact) { a.Background = []float64{0} },
		"importances length":   func(a *Artifact) { a.FeatureImportances = []float64{0} },
		"numeric scale short":  func(a *Artifact) { a.Numeric.Scale = a.Numeric.Scale[:2] },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			a := testArtifact()
			mutate(&a)
			if _, err := NewLinearModel(a); !errors.Is(err, ErrInvalidArtifact) {
				t.Errorf("expected ErrInvalidArtifact, got %v", err)
			}
		})
	}
}

func TestLoadModel(t *testing.T) {
	path := writeArtifact(t, testArtifact())
	m, err := LoadModel(path)
	if err != nil {
		t.Fatalf("LoadModel: %v", err)
	}
	if m.Version() != "test-1" {
		t.Errorf("Version() = %q", m.Version())
	}

	if _, err := LoadModel(filepath.Join(t.TempDir(), "missing.json")); !errors.Is(err, ErrModelNotFound) {
		t.Errorf("expected ErrModelNotFound, got %v", err)
	}

	bad := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(bad, []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadModel(bad); !errors.Is(err, ErrInvalidArtifact) {
		t.Errorf("expected ErrInvalidArtifact, got %v", err)
	}
}
