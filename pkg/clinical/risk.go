// Package clinical holds the vocabulary shared by the intake pipeline: risk
// tiers, vital signs, departments, symptoms and pre-existing conditions.
package clinical

import (
	"fmt"
	"strings"
)

// RiskTier is a clinical urgency classification.
type RiskTier string

const (
	RiskLow    RiskTier = "LOW"
	RiskMedium RiskTier = "MEDIUM"
	RiskHigh   RiskTier = "HIGH"
)

// RiskTiers lists the tiers in ascending urgency. The index of a tier in this
// slice is its class index in classifier outputs.
var RiskTiers = []RiskTier{RiskLow, RiskMedium, RiskHigh}

// ParseRiskTier accepts a tier name in any case.
func ParseRiskTier(s string) (RiskTier, error) {
	switch RiskTier(strings.ToUpper(strings.TrimSpace(s))) {
	case RiskLow:
		return RiskLow, nil
	case RiskMedium:
		return RiskMedium, nil
	case RiskHigh:
		return RiskHigh, nil
	}
	return "", fmt.Errorf("invalid risk tier %q", s)
}

// Valid reports whether r is one of the known tiers.
func (r RiskTier) Valid() bool {
	return r.Index() >= 0
}

// Index returns the class index of the tier, or -1 if it is unknown.
func (r RiskTier) Index() int {
	for i, t := range RiskTiers {
		if t == r {
			return i
		}
	}
	return -1
}

// Escalate returns the next tier up, saturating at HIGH.
func (r RiskTier) Escalate() RiskTier {
	i := r.Index()
	if i < 0 {
		return RiskMedium
	}
	if i+1 >= len(RiskTiers) {
		return RiskHigh
	}
	return RiskTiers[i+1]
}

// Weight is the queue base weight of the tier.
func (r RiskTier) Weight() int {
	switch r {
	case RiskHigh:
		return 100
	case RiskMedium:
		return 50
	default:
		return 10
	}
}
