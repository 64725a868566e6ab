package ml

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

// testArtifact is a tiny two-symptom model: chest pain pushes toward HIGH,
// age and male gender nudge HIGH slightly.
func testArtifact() Artifact {
	n := 13 // 2 symptoms + 1 condition + 7 numeric + 3 gender
	row := func(set map[int]float64) []float64 {
		r := make([]float64, n)
		for i, w := range set {
			r[i] = w
		}
		return r
	}
	bg := make([]float64, n)
	bg[11] = 0.5 // gender_M

	return Artifact{
		Version:    "test-1",
		Symptoms:   []string{"chest_pain", "fever"},
		Conditions: []string{"diabetes"},
		Genders:    []string{"F", "M", "OTHER"},
		Numeric: NumericScale{
			Mean:  []float64{35, 120, 80, 72, 98.6, 98, 16},
			Scale: []float64{20, 15, 10, 12, 1, 2, 4},
		},
		Risk: LinearHead{
			Classes: []string{"LOW", "MEDIUM", "HIGH"},
			Coef: [][]float64{
				row(map[int]float64{0: -1}),
				row(map[int]float64{1: 1}),
				row(map[int]float64{0: 2, 3: 0.004, 11: 0.2}),
			},
			Intercept: []float64{0, 0, 0},
		},
		Department: LinearHead{
			Classes:   []string{"General Medicine", "Emergency"},
			Coef:      [][]float64{row(map[int]float64{1: 1}), row(map[int]float64{0: 3})},
			Intercept: []float64{0.5, 0},
		},
		Background:         bg,
		FeatureImportances: row(map[int]float64{0: 0.4, 1: 0.2, 3: 0.05, 4: 0.005}),
	}
}

func writeArtifact(t *testing.T, a Artifact) string {
	t.Helper()
	raw, err := json.Marshal(a)
	if err != nil {
		t.Fatalf("marshal artifact: %v", err)
	}
	path := filepath.Join(t.TempDir(), "model.json")
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		t.Fatalf("write artifact: %v", err)
	}
	return path
}

func mustModel(t *testing.T, a Artifact) *LinearModel {
	t.Helper()
	m, err := NewLinearModel(a)
	if err != nil {
		t.Fatalf("NewLinearModel: %v", err)
	}
	return m
}
