// Package ml turns intake data into feature vectors, runs the risk and
// department classifier, and explains its predictions.
package ml

import (
	"fmt"
	"strings"

	"github.com/swasthyaflow/intake/pkg/clinical"
)

// NumericFeatures lists the scaled numeric features in vector order.
var NumericFeatures = []string{
	"age",
	clinical.VitalSystolic,
	clinical.VitalDiastolic,
	clinical.VitalHeartRate,
	clinical.VitalTemperature,
	clinical.VitalSpO2,
	clinical.VitalRespiratoryRate,
}

// numericDefaults substitute for vitals that were not reported.
var numericDefaults = map[string]float64{
	clinical.VitalSystolic:        120,
	clinical.VitalDiastolic:       80,
	clinical.VitalHeartRate:       72,
	clinical.VitalTemperature:     98.6,
	clinical.VitalSpO2:            98,
	clinical.VitalRespiratoryRate: 16,
}

// Reference scaling used when no classifier artifact supplies its own.
var (
	defaultMean  = []float64{35, 120, 80, 72, 98.6, 98, 16}
	defaultScale = []float64{20, 15, 10, 12, 1, 2, 4}
)

// Input is the raw intake data the encoder consumes.
type Input struct {
	Symptoms   []string            `json:"symptoms"`
	Conditions []string            `json:"pre_existing_conditions,omitempty"`
	Vitals     clinical.VitalSigns `json:"vitals"`
	Age        int                 `json:"age"`
	Gender     string              `json:"gender"`
}

// FeatureVector is the fixed-shape numeric encoding of an Input.
type FeatureVector struct {
	Names  []string
	Values []float64
}

// Len returns the number of features.
func (v FeatureVector) Len() int { return len(v.Values) }

// Encoder builds feature vectors from a fixed vocabulary. It holds no mutable
// state once constructed and is safe for concurrent use.
type Encoder struct {
	symptoms   []string
	symptomIdx map[string]int
	conditions []string
	condIdx    map[string]int
	genders    []string
	mean       []float64
	scale      []float64
	names      []string
}

// NewEncoder creates an encoder over the given vocabularies and numeric
// scaling. mean and scale must each have len(NumericFeatures) entries.
func NewEncoder(symptoms, conditions, genders []string, mean, scale []float64) (*Encoder, error) {
	if len(mean) != len(NumericFeatures) || len(scale) != len(NumericFeatures) {
		return nil, fmt.Errorf("numeric scaling needs %d means and scales, got %d and %d",
			len(NumericFeatures), len(mean), len(scale))
	}
	for i, s := range scale {
		if s == 0 {
			return nil, fmt.Errorf("zero scale for %s", NumericFeatures[i])
		}
	}
	if len(genders) == 0 {
		return nil, fmt.Errorf("gender vocabulary is empty")
	}

	e := &Encoder{
		symptoms:   append([]string(nil), symptoms...),
		conditions: append([]string(nil), conditions...),
		genders:    append([]string(nil), genders...),
		mean:       append([]float64(nil), mean...),
		scale:      append([]float64(nil), scale...),
		symptomIdx: make(map[string]int, len(symptoms)),
		condIdx:    make(map[string]int, len(conditions)),
	}
	for i, s := range e.symptoms {
		if _, dup := e.symptomIdx[s]; dup {
			return nil, fmt.Errorf("duplicate symptom %q in vocabulary", s)
		}
		e.symptomIdx[s] = i
		e.names = append(e.names, "symptom_"+s)
	}
	for i, c := range e.conditions {
		if _, dup := e.condIdx[c]; dup {
			return nil, fmt.Errorf("duplicate condition %q in vocabulary", c)
		}
		e.condIdx[c] = i
		e.names = append(e.names, "condition_"+c)
	}
	e.names = append(e.names, NumericFeatures...)
	for _, g := range e.genders {
		e.names = append(e.names, "gender_"+g)
	}
	return e, nil
}

// DefaultEncoder encodes over the built-in clinical vocabulary.
func DefaultEncoder() *Encoder {
	e, err := NewEncoder(clinical.Symptoms, clinical.Conditions, clinical.Genders, defaultMean, defaultScale)
	if err != nil {
		panic(err)
	}
	return e
}

// Len returns the length of every vector this encoder produces.
func (e *Encoder) Len() int { return len(e.names) }

// FeatureNames returns a copy of the feature names in vector order.
func (e *Encoder) FeatureNames() []string {
	return append([]string(nil), e.names...)
}

// Encode builds the feature vector for in. Symptoms and conditions outside the
// vocabulary are ignored.
func (e *Encoder) Encode(in Input) FeatureVector {
	values := make([]float64, len(e.names))

	for _, s := range in.Symptoms {
		if i, ok := e.symptomIdx[normalizeTerm(s)]; ok {
			values[i] = 1
		}
	}
	off := len(e.symptoms)
	for _, c := range in.Conditions {
		if i, ok := e.condIdx[normalizeTerm(c)]; ok {
			values[off+i] = 1
		}
	}
	off += len(e.conditions)

	raw := make([]float64, len(NumericFeatures))
	raw[0] = float64(in.Age)
	for i, name := range NumericFeatures[1:] {
		raw[i+1] = in.Vitals.GetOr(name, numericDefaults[name])
	}
	for i, x := range raw {
		values[off+i] = (x - e.mean[i]) / e.scale[i]
	}
	off += len(NumericFeatures)

	values[off+e.genderIndex(in.Gender)] = 1

	return FeatureVector{Names: e.names, Values: values}
}

// genderIndex maps unknown codes to the male column, matching how the
// training pipeline one-hot encoded missing values.
func (e *Encoder) genderIndex(g string) int {
	g = strings.ToUpper(strings.TrimSpace(g))
	for i, code := range e.genders {
		if code == g {
			return i
		}
	}
	for i, code := range e.genders {
		if code == clinical.GenderMale {
			return i
		}
	}
	return 0
}

func normalizeTerm(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// NormalizeTerms lower-cases, trims and de-duplicates terms, keeping the
// order in which they were reported.
func NormalizeTerms(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = normalizeTerm(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
