package ml

import (
	"fmt"
	"math"
	"sort"

	"github.com/rs/zerolog"
)

// Explanation methods, from most to least faithful.
const (
	MethodExact       = "exact"
	MethodApproximate = "approximate"
	MethodUnavailable = "unavailable"
)

// Explanation notes attached by the fallback tiers.
const (
	NoteApproximate = "Using global feature importance (SHAP-equivalent attribution unavailable)"
	NoteUnavailable = "Explanation unavailable"
)

// Explainer defaults.
const (
	DefaultTopK            = 10
	DefaultSignificance    = 0.01
	DefaultDetailThreshold = 0.001
)

// FeatureAttribution is one feature's contribution to the predicted class.
type FeatureAttribution struct {
	Feature      string  `json:"feature"`
	Value        float64 `json:"value"`
	Contribution float64 `json:"contribution"`
	Direction    string  `json:"direction"`
}

// Explanation is the rationale attached to a decision. Its shape is the same
// whichever tier produced it.
type Explanation struct {
	Method          string               `json:"method"`
	TopFeatures     []FeatureAttribution `json:"top_features"`
	Contributions   map[string]float64   `json:"shap_values"`
	BaseValue       *float64             `json:"base_value,omitempty"`
	ModelConfidence float64              `json:"model_confidence"`
	RuleTriggered   *string              `json:"rule_triggered"`
	Note            string               `json:"note,omitempty"`
}

// ExplainerConfig tunes attribution filtering.
type ExplainerConfig struct {
	TopK            int
	Significance    float64
	DetailThreshold float64
}

// Explainer produces explanations through a fixed chain of strategies.
type Explainer struct {
	cfg ExplainerConfig
	log zerolog.Logger
}

// NewExplainer creates an explainer; zero config fields take the defaults.
func NewExplainer(cfg ExplainerConfig, log zerolog.Logger) *Explainer {
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultTopK
	}
	if cfg.Significance <= 0 {
		cfg.Significance = DefaultSignificance
	}
	if cfg.DetailThreshold <= 0 {
		cfg.DetailThreshold = DefaultDetailThreshold
	}
	return &Explainer{cfg: cfg, log: log}
}

type strategy struct {
	method string
	run    func(c Classifier, v FeatureVector, out Output) (Explanation, error)
}

// Explain attributes out to the features of v. c may be nil. It never fails:
// when no attribution can be computed the result carries an empty feature
// list and MethodUnavailable.
func (e *Explainer) Explain(c Classifier, v FeatureVector, out Output) Explanation {
	chain := []strategy{
		{MethodExact, e.exact},
		{MethodApproximate, e.approximate},
	}
	for _, s := range chain {
		expl, err := e.try(s, c, v, out)
		if err == nil {
			expl.Method = s.method
			expl.ModelConfidence = out.Confidence
			return expl
		}
		e.log.Debug().Err(err).Str("method", s.method).Msg("explanation tier skipped")
	}
	return Explanation{
		Method:          MethodUnavailable,
		TopFeatures:     []FeatureAttribution{},
		Contributions:   map[string]float64{},
		ModelConfidence: out.Confidence,
		Note:            NoteUnavailable,
	}
}

func (e *Explainer) try(s strategy, c Classifier, v FeatureVector, out Output) (expl Explanation, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s explanation panicked: %v", s.method, r)
		}
	}()
	return s.run(c, v, out)
}

func (e *Explainer) exact(c Classifier, v FeatureVector, out Output) (Explanation, error) {
	attr, ok := c.(Attributor)
	if !ok {
		return Explanation{}, ErrAttributionUnavailable
	}
	contrib, base, err := attr.Attribute(v, out.Risk)
	if err != nil {
		return Explanation{}, err
	}
	if len(contrib) != v.Len() {
		return Explanation{}, fmt.Errorf("got %d contributions for %d features", len(contrib), v.Len())
	}

	detail := make(map[string]float64)
	for i, phi := range contrib {
		if math.Abs(phi) > e.cfg.DetailThreshold {
			detail[v.Names[i]] = phi
		}
	}
	return Explanation{
		TopFeatures:   e.rank(v, contrib),
		Contributions: detail,
		BaseValue:     &base,
	}, nil
}

func (e *Explainer) approximate(c Classifier, v FeatureVector, _ Output) (Explanation, error) {
	src, ok := c.(ImportanceSource)
	if !ok {
		return Explanation{}, fmt.Errorf("classifier exposes no global importances")
	}
	imp := src.GlobalImportances()
	if len(imp) == 0 {
		return Explanation{}, fmt.Errorf("classifier has no global importances")
	}
	if len(imp) != v.Len() {
		return Explanation{}, fmt.Errorf("got %d importances for %d features", len(imp), v.Len())
	}
	return Explanation{
		TopFeatures:   e.rank(v, imp),
		Contributions: map[string]float64{},
		Note:          NoteApproximate,
	}, nil
}

// rank keeps significant contributions, orders them by magnitude and caps
// them at TopK.
func (e *Explainer) rank(v FeatureVector, contrib []float64) []FeatureAttribution {
	top := make([]FeatureAttribution, 0)
	for i, phi := range contrib {
		if math.Abs(phi) <= e.cfg.Significance {
			continue
		}
		dir := "positive"
		if phi < 0 {
			dir = "negative"
		}
		top = append(top, FeatureAttribution{
			Feature:      v.Names[i],
			Value:        v.Values[i],
			Contribution: phi,
			Direction:    dir,
		})
	}
	sort.SliceStable(top, func(i, j int) bool {
		return math.Abs(top[i].Contribution) > math.Abs(top[j].Contribution)
	})
	if len(top) > e.cfg.TopK {
		top = top[:e.cfg.TopK]
	}
	return top
}
