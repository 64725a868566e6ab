package ml

import (
	"math"
	"testing"

	"github.com/rs/zerolog"

	"github.com/swasthyaflow/intake/pkg/clinical"
)

func explainFixture(t *testing.T, a Artifact) (*LinearModel, FeatureVector, Output) {
	t.Helper()
	m := mustModel(t, a)
	v := m.Encoder().Encode(Input{Symptoms: []string{"chest_pain"}, Age: 55, Gender: "M"})
	out, err := m.Predict(v)
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	return m, v, out
}

func TestExplainer_Exact(t *testing.T) {
	m, v, out := explainFixture(t, testArtifact())
	e := NewExplainer(ExplainerConfig{}, zerolog.Nop())

	expl := e.Explain(m, v, out)
	if expl.Method != MethodExact {
		t.Fatalf("Method = %s, want exact", expl.Method)
	}
	if len(expl.TopFeatures) != 2 {
		t.Fatalf("TopFeatures = %+v, want 2 entries", expl.TopFeatures)
	}
	if expl.TopFeatures[0].Feature != "symptom_chest_pain" || expl.TopFeatures[1].Feature != "gender_M" {
		t.Errorf("unexpected order: %+v", expl.TopFeatures)
	}
	if expl.TopFeatures[0].Direction != "positive" {
		t.Errorf("Direction = %s", expl.TopFeatures[0].Direction)
	}
	if _, ok := expl.Contributions["age"]; !ok {
		t.Error("expected age in the detailed contribution map")
	}
	if len(expl.Contributions) != 3 {
		t.Errorf("Contributions = %v, want 3 entries", expl.Contributions)
	}
	if expl.BaseValue == nil || math.Abs(*expl.BaseValue-0.1) > 1e-9 {
		t.Errorf("BaseValue = %v, want 0.1", expl.BaseValue)
	}
	if expl.ModelConfidence != out.Confidence {
		t.Errorf("ModelConfidence = %v, want %v", expl.ModelConfidence, out.Confidence)
	}
}

func TestExplainer_TopKCap(t *testing.T) {
	m, v, out := explainFixture(t, testArtifact())
	e := NewExplainer(ExplainerConfig{TopK: 1}, zerolog.Nop())
	expl := e.Explain(m, v, out)
	if len(expl.TopFeatures) != 1 || expl.TopFeatures[0].Feature != "symptom_chest_pain" {
		t.Errorf("TopFeatures = %+v", expl.TopFeatures)
	}
}

func TestExplainer_GlobalImportanceFallback(t *testing.T) {
	a := testArtifact()
	a.Background = nil
	m, v, out := explainFixture(t, a)
	e := NewExplainer(ExplainerConfig{}, zerolog.Nop())

	expl := e.Explain(m, v, out)
	if expl.Method != MethodApproximate {
		t.Fatalf("Method = %s, want approximate", expl.Method)
	}
	if expl.Note != NoteApproximate {
		t.Errorf("Note = %q", expl.Note)
	}
	want := []string{"symptom_chest_pain", "symptom_fever", "age"}
	if len(expl.TopFeatures) != len(want) {
		t.Fatalf("TopFeatures = %+v", expl.TopFeatures)
	}
	for i, f := range expl.TopFeatures {
		if f.Feature != want[i] {
			t.Errorf("TopFeatures[%d] = %s, want %s", i, f.Feature, want[i])
		}
	}
	if expl.BaseValue != nil {
		t.Error("approximate explanations carry no base value")
	}
}

func TestExplainer_Unavailable(t *testing.T) {
	a := testArtifact()
	a.Background = nil
	a.FeatureImportances = nil
	m, v, out := explainFixture(t, a)
	e := NewExplainer(ExplainerConfig{}, zerolog.Nop())

	for _, c := range []Classifier{m, nil} {
		expl := e.Explain(c, v, out)
		if expl.Method != MethodUnavailable {
			t.Errorf("Method = %s, want unavailable", expl.Method)
		}
		if expl.TopFeatures == nil || len(expl.TopFeatures) != 0 {
			t.Errorf("TopFeatures = %v, want empty non-nil slice", expl.TopFeatures)
		}
		if expl.Note != NoteUnavailable || expl.ModelConfidence != out.Confidence {
			t.Errorf("unexpected note/confidence: %q %v", expl.Note, expl.ModelConfidence)
		}
	}
}

type panickingModel struct{}

func (panickingModel) Predict(FeatureVector) (Output, error) { return Output{}, nil }

func (panickingModel) Attribute(FeatureVector, clinical.RiskTier) ([]float64, float64, error) {
	panic("boom")
}

func TestExplainer_RecoversFromPanics(t *testing.T) {
	e := NewExplainer(ExplainerConfig{}, zerolog.Nop())
	v := DefaultEncoder().Encode(Input{})
	expl := e.Explain(panickingModel{}, v, Output{Risk: clinical.RiskLow, Confidence: 0.5})
	if expl.Method != MethodUnavailable {
		t.Errorf("Method = %s, want unavailable", expl.Method)
	}
}
