package ml

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/swasthyaflow/intake/pkg/clinical"
)

func TestRuntime_HeuristicBeforeLoad(t *testing.T) {
	r := NewRuntime(RuntimeConfig{}, zerolog.Nop())
	if r.Ready() || r.Mode() != ModeHeuristic {
		t.Fatal("expected heuristic mode before load")
	}
	c := r.Classify(Input{Symptoms: []string{"chest_pain"}})
	if c.Output.Source != SourceHeuristic || c.Output.Risk != clinical.RiskHigh {
		t.Errorf("unexpected output %+v", c.Output)
	}
	if c.Model != nil {
		t.Error("heuristic classification should carry no model")
	}
	if expl := r.Explain(c); expl.Method != MethodUnavailable {
		t.Errorf("Method = %s, want unavailable", expl.Method)
	}
}

func TestRuntime_LoadModels(t *testing.T) {
	path := writeArtifact(t, testArtifact())
	r := NewRuntime(RuntimeConfig{ModelPath: path}, zerolog.Nop())

	ok, err := r.LoadModels(context.Background())
	if err != nil || !ok {
		t.Fatalf("LoadModels() = %v, %v", ok, err)
	}
	if !r.Ready() || r.Mode() != ModeModel || r.ModelVersion() != "test-1" {
		t.Errorf("unexpected state: ready=%v mode=%s version=%s", r.Ready(), r.Mode(), r.ModelVersion())
	}

	// idempotent even if the file disappears
	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	if ok, err := r.LoadModels(context.Background()); !ok || err != nil {
		t.Errorf("second LoadModels() = %v, %v", ok, err)
	}

	c := r.Classify(Input{Symptoms: []string{"chest_pain"}, Gender: "M"})
	if c.Output.Source != SourceModel || c.Model == nil {
		t.Errorf("expected model prediction, got %+v", c.Output)
	}
	if expl := r.Explain(c); expl.Method != MethodExact {
		t.Errorf("Method = %s, want exact", expl.Method)
	}
}

func TestRuntime_MissingArtifactDegrades(t *testing.T) {
	r := NewRuntime(RuntimeConfig{ModelPath: filepath.Join(t.TempDir(), "none.json")}, zerolog.Nop())
	ok, err := r.LoadModels(context.Background())
	if ok || err != nil {
		t.Errorf("LoadModels() = %v, %v; want false, nil", ok, err)
	}
	if r.Ready() {
		t.Error("runtime should stay in heuristic mode")
	}
}

func TestRuntime_MalformedArtifactIsFatal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.json")
	if err := os.WriteFile(path, []byte(`{"version":"x"}`), 0o600); err != nil {
		t.Fatal(err)
	}
	r := NewRuntime(RuntimeConfig{ModelPath: path}, zerolog.Nop())
	if _, err := r.LoadModels(context.Background()); err == nil {
		t.Error("expected error for malformed artifact")
	}
}

func TestRuntime_EncodeUsesModelVocabulary(t *testing.T) {
	r := NewRuntime(RuntimeConfig{ModelPath: writeArtifact(t, testArtifact())}, zerolog.Nop())
	before := r.Encode(Input{}).Len()
	if _, err := r.LoadModels(context.Background()); err != nil {
		t.Fatal(err)
	}
	after := r.Encode(Input{}).Len()
	if before == after || after != 13 {
		t.Errorf("vector length before=%d after=%d", before, after)
	}
}
