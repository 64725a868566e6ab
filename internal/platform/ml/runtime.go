package ml

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// Classifier modes reported by Runtime.Mode.
const (
	ModeModel     = "model"
	ModeHeuristic = "heuristic"
)

// RuntimeConfig configures the classifier runtime.
type RuntimeConfig struct {
	ModelPath          string
	FallbackConfidence float64
	Explainer          ExplainerConfig
}

// Classification is the result of running one intake through the runtime.
type Classification struct {
	Vector FeatureVector
	Output Output
	// Model is the classifier that produced Output, nil in heuristic mode.
	Model Classifier
}

// Runtime owns the loaded classifier. Until a model is ready, and whenever
// the model fails, predictions come from the heuristic. Safe for concurrent use.
type Runtime struct {
	cfg       RuntimeConfig
	log       zerolog.Logger
	heuristic *Heuristic
	encoder   *Encoder
	explainer *Explainer

	loadMu   sync.Mutex
	model    atomic.Pointer[LinearModel]
	degraded atomic.Bool
}

// NewRuntime creates a runtime in heuristic mode.
func NewRuntime(cfg RuntimeConfig, log zerolog.Logger) *Runtime {
	log = log.With().Str("component", "classifier").Logger()
	return &Runtime{
		cfg:       cfg,
		log:       log,
		heuristic: NewHeuristic(cfg.FallbackConfidence),
		encoder:   DefaultEncoder(),
		explainer: NewExplainer(cfg.Explainer, log),
	}
}

// LoadModels loads the artifact at the configured path. It is idempotent:
// once a model is loaded further calls return true without reading the file.
// A missing artifact returns (false, nil) and leaves the heuristic in place;
// a malformed artifact returns an error, which callers treat as fatal.
func (r *Runtime) LoadModels(ctx context.Context) (bool, error) {
	r.loadMu.Lock()
	defer r.loadMu.Unlock()

	if r.model.Load() != nil {
		return true, nil
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if r.cfg.ModelPath == "" {
		r.log.Warn().Msg("no classifier artifact configured, using heuristic fallback")
		return false, nil
	}

	m, err := LoadModel(r.cfg.ModelPath)
	if err != nil {
		if errors.Is(err, ErrModelNotFound) {
			r.log.Warn().Str("path", r.cfg.ModelPath).Msg("classifier artifact missing, using heuristic fallback")
			return false, nil
		}
		return false, fmt.Errorf("load classifier: %w", err)
	}
	r.model.Store(m)
	r.degraded.Store(false)
	r.log.Info().
		Str("path", r.cfg.ModelPath).
		Str("version", m.Version()).
		Int("features", m.Encoder().Len()).
		Msg("classifier loaded")
	return true, nil
}

// Ready reports whether a trained model is serving predictions.
func (r *Runtime) Ready() bool {
	return r.model.Load() != nil
}

// Mode returns ModeModel or ModeHeuristic.
func (r *Runtime) Mode() string {
	if r.Ready() {
		return ModeModel
	}
	return ModeHeuristic
}

// ModelVersion returns the loaded artifact version, or "" in heuristic mode.
func (r *Runtime) ModelVersion() string {
	if m := r.model.Load(); m != nil {
		return m.Version()
	}
	return ""
}

// Encode builds the feature vector for in using the active vocabulary.
func (r *Runtime) Encode(in Input) FeatureVector {
	if m := r.model.Load(); m != nil {
		return m.Encoder().Encode(in)
	}
	return r.encoder.Encode(in)
}

// Classify encodes in and predicts its risk and department.
func (r *Runtime) Classify(in Input) Classification {
	m := r.model.Load()
	if m == nil {
		r.log.Debug().Msg("classifier not ready, heuristic prediction")
		return Classification{Vector: r.encoder.Encode(in), Output: r.heuristic.Classify(in)}
	}

	vec := m.Encoder().Encode(in)
	out, err := r.predict(m, vec)
	if err != nil {
		if !r.degraded.Swap(true) {
			r.log.Warn().Err(err).Msg("classifier failed, degraded to heuristic fallback")
		}
		return Classification{Vector: vec, Output: r.heuristic.Classify(in)}
	}
	if r.degraded.Swap(false) {
		r.log.Info().Msg("classifier recovered")
	}
	return Classification{Vector: vec, Output: out, Model: m}
}

func (r *Runtime) predict(m *LinearModel, vec FeatureVector) (out Output, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("classifier panicked: %v", rec)
		}
	}()
	return m.Predict(vec)
}

// Explain attributes a classification. It never fails.
func (r *Runtime) Explain(c Classification) Explanation {
	return r.explainer.Explain(c.Model, c.Vector, c.Output)
}
