package triage

import (
	"github.com/swasthyaflow/intake/internal/platform/ml"
	"github.com/swasthyaflow/intake/pkg/clinical"
)

// DefaultOverrideConfidence is the confidence reported for rule decisions.
const DefaultOverrideConfidence = 0.95

// SourceRule marks a decision made by the override table.
const SourceRule = "rule"

// Decision is the final triage outcome of one intake.
type Decision struct {
	Risk                    clinical.RiskTier             `json:"risk_level"`
	Department              string                        `json:"department"`
	Confidence              float64                       `json:"confidence"`
	RuleTriggered           *string                       `json:"rule_triggered"`
	RuleReason              *string                       `json:"rule_reason"`
	Source                  string                        `json:"source"`
	ModelVersion            string                        `json:"model_version,omitempty"`
	RiskProbabilities       map[clinical.RiskTier]float64 `json:"risk_probabilities"`
	DepartmentProbabilities map[string]float64            `json:"department_probabilities"`
	Explanation             ml.Explanation                `json:"explanation"`
}

// Combiner merges a rule match with the classifier output.
type Combiner struct {
	overrideConfidence float64
}

func NewCombiner(overrideConfidence float64) *Combiner {
	if overrideConfidence <= 0 {
		overrideConfidence = DefaultOverrideConfidence
	}
	return &Combiner{overrideConfidence: overrideConfidence}
}

// Decide lets a rule match override risk and department and pin confidence.
// The explanation is attached either way and carries the decision's
// confidence and rule id.
func (c *Combiner) Decide(match *RuleMatch, out ml.Output, expl ml.Explanation) Decision {
	d := Decision{
		Risk:                    out.Risk,
		Department:              out.Department,
		Confidence:              out.Confidence,
		Source:                  out.Source,
		ModelVersion:            out.ModelVersion,
		RiskProbabilities:       out.RiskProbabilities,
		DepartmentProbabilities: out.DepartmentProbabilities,
	}
	if match != nil {
		id, reason := match.RuleID, match.Reason
		d.Risk = match.Risk
		d.Department = match.Department
		d.Confidence = c.overrideConfidence
		d.RuleTriggered = &id
		d.RuleReason = &reason
		d.Source = SourceRule
	}

	expl.ModelConfidence = d.Confidence
	expl.RuleTriggered = d.RuleTriggered
	d.Explanation = expl
	return d
}
