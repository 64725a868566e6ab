package ml

import (
	"github.com/swasthyaflow/intake/pkg/clinical"
)

// DefaultFallbackConfidence is reported for every heuristic prediction so the
// fallback path stands out in logs and stored decisions.
const DefaultFallbackConfidence = 0.75

var (
	heuristicHighRisk   = []string{"chest_pain", "breathlessness", "seizures", "fainting"}
	heuristicMediumRisk = []string{"fever", "vomiting", "dizziness", "abdominal_pain"}

	heuristicDepartments = map[string]string{
		"chest_pain":     clinical.DeptEmergency,
		"breathlessness": clinical.DeptPulmonology,
		"fever":          clinical.DeptGeneralMedicine,
		"headache":       clinical.DeptGeneralMedicine,
		"abdominal_pain": clinical.DeptGastroenterology,
	}
)

// Heuristic is the deterministic classifier used while no trained model is
// available.
type Heuristic struct {
	confidence float64
	high       map[string]bool
	medium     map[string]bool
	depts      map[string]string
}

// NewHeuristic creates the fallback classifier. A non-positive confidence
// selects DefaultFallbackConfidence.
func NewHeuristic(confidence float64) *Heuristic {
	if confidence <= 0 || confidence > 1 {
		confidence = DefaultFallbackConfidence
	}
	h := &Heuristic{
		confidence: confidence,
		high:       make(map[string]bool),
		medium:     make(map[string]bool),
		depts:      heuristicDepartments,
	}
	for _, s := range heuristicHighRisk {
		h.high[s] = true
	}
	for _, s := range heuristicMediumRisk {
		h.medium[s] = true
	}
	return h
}

// Confidence returns the fixed confidence of heuristic predictions.
func (h *Heuristic) Confidence() float64 { return h.confidence }

// Classify predicts from raw intake data.
func (h *Heuristic) Classify(in Input) Output {
	symptoms := NormalizeTerms(in.Symptoms)

	risk := clinical.RiskLow
	for _, s := range symptoms {
		if h.high[s] {
			risk = clinical.RiskHigh
			break
		}
		if h.medium[s] {
			risk = clinical.RiskMedium
		}
	}

	if in.Vitals.GetOr(clinical.VitalSpO2, 100) < 92 || in.Vitals.GetOr(clinical.VitalTemperature, 98.6) > 102 {
		risk = risk.Escalate()
	}

	dept := clinical.DeptGeneralMedicine
	if len(symptoms) > 0 {
		if d, ok := h.depts[symptoms[0]]; ok {
			dept = d
		}
	}
	if risk == clinical.RiskHigh {
		dept = clinical.DeptEmergency
	}

	riskProbs := spread(len(clinical.RiskTiers), risk.Index(), h.confidence)
	deptIdx := 0
	for i, d := range clinical.Departments {
		if d == dept {
			deptIdx = i
		}
	}
	deptProbs := spread(len(clinical.Departments), deptIdx, h.confidence)

	out := newOutput(riskProbs, clinical.Departments, deptProbs, SourceHeuristic)
	out.Risk = risk
	out.Department = dept
	out.Confidence = h.confidence
	return out
}

// spread puts p on the chosen index and splits the remainder evenly.
func spread(n, chosen int, p float64) []float64 {
	out := make([]float64, n)
	rest := 0.0
	if n > 1 {
		rest = (1 - p) / float64(n-1)
	}
	for i := range out {
		out[i] = rest
	}
	out[chosen] = p
	return out
}
