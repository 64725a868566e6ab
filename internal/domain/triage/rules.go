package triage

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/swasthyaflow/intake/pkg/clinical"
)

var ErrInvalidRuleTable = errors.New("invalid rule table")

// Bound is an open interval constraint. A nil side is unbounded.
type Bound struct {
	GT *float64 `json:"gt,omitempty" yaml:"gt"`
	LT *float64 `json:"lt,omitempty" yaml:"lt"`
}

func (b Bound) empty() bool { return b.GT == nil && b.LT == nil }

func (b Bound) holds(v float64) bool {
	if b.GT != nil && v <= *b.GT {
		return false
	}
	if b.LT != nil && v >= *b.LT {
		return false
	}
	return true
}

// VitalBound constrains one vital sign.
type VitalBound struct {
	Vital string `json:"vital"`
	Bound
}

// Rule is one row of the clinical override table.
type Rule struct {
	ID         string            `json:"id"`
	Symptoms   []string          `json:"symptoms"`
	MinMatch   int               `json:"min_match"`
	Age        Bound             `json:"age"`
	Vitals     []VitalBound      `json:"vitals,omitempty"`
	Risk       clinical.RiskTier `json:"risk_level"`
	Department string            `json:"department"`
	Reason     string            `json:"reason"`
}

// RuleMatch is the action of the rule that fired.
type RuleMatch struct {
	RuleID     string            `json:"rule_id"`
	Risk       clinical.RiskTier `json:"risk_level"`
	Department string            `json:"department"`
	Reason     string            `json:"reason"`
}

// ruleDoc is the on-disk form of a rule. Vitals are keyed by name.
type ruleDoc struct {
	ID         string           `yaml:"id"`
	Symptoms   []string         `yaml:"symptoms"`
	MinMatch   int              `yaml:"min_match"`
	Age        Bound            `yaml:"age"`
	Vitals     map[string]Bound `yaml:"vitals"`
	Risk       string           `yaml:"risk"`
	Department string           `yaml:"department"`
	Reason     string           `yaml:"reason"`
}

//go:embed rules_default.yaml
var defaultRules []byte

// ParseRules decodes a YAML rule table, preserving rule order.
func ParseRules(raw []byte) ([]Rule, error) {
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)

	var doc struct {
		Rules []ruleDoc `yaml:"rules"`
	}
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRuleTable, err)
	}
	if len(doc.Rules) == 0 {
		return nil, fmt.Errorf("%w: no rules", ErrInvalidRuleTable)
	}

	rules := make([]Rule, 0, len(doc.Rules))
	seen := make(map[string]bool)
	for i, d := range doc.Rules {
		r, err := d.rule()
		if err != nil {
			return nil, fmt.Errorf("%w: rule %d: %v", ErrInvalidRuleTable, i, err)
		}
		if seen[r.ID] {
			return nil, fmt.Errorf("%w: duplicate rule id %q", ErrInvalidRuleTable, r.ID)
		}
		seen[r.ID] = true
		rules = append(rules, r)
	}
	return rules, nil
}

// LoadRules reads a rule table file. An empty path yields the built-in table.
func LoadRules(path string) ([]Rule, error) {
	if path == "" {
		return ParseRules(defaultRules)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rule table %s: %w", path, err)
	}
	return ParseRules(raw)
}

func (d ruleDoc) rule() (Rule, error) {
	if d.ID == "" {
		return Rule{}, errors.New("id is required")
	}
	if len(d.Symptoms) == 0 {
		return Rule{}, fmt.Errorf("%s: at least one symptom is required", d.ID)
	}
	minMatch := d.MinMatch
	if minMatch == 0 {
		minMatch = len(d.Symptoms)
	}
	if minMatch < 0 || minMatch > len(d.Symptoms) {
		return Rule{}, fmt.Errorf("%s: min_match %d outside 1..%d", d.ID, d.MinMatch, len(d.Symptoms))
	}
	risk, err := clinical.ParseRiskTier(d.Risk)
	if err != nil {
		return Rule{}, fmt.Errorf("%s: %v", d.ID, err)
	}
	if !clinical.IsDepartment(d.Department) {
		return Rule{}, fmt.Errorf("%s: unknown department %q", d.ID, d.Department)
	}
	if d.Reason == "" {
		return Rule{}, fmt.Errorf("%s: reason is required", d.ID)
	}
	if err := checkBound(d.Age); err != nil {
		return Rule{}, fmt.Errorf("%s: age: %v", d.ID, err)
	}

	names := make([]string, 0, len(d.Vitals))
	for name := range d.Vitals {
		names = append(names, name)
	}
	sort.Strings(names)
	var vitals []VitalBound
	for _, name := range names {
		if !clinical.IsVital(name) {
			return Rule{}, fmt.Errorf("%s: unknown vital %q", d.ID, name)
		}
		b := d.Vitals[name]
		if b.empty() {
			return Rule{}, fmt.Errorf("%s: vital %s has no bound", d.ID, name)
		}
		if err := checkBound(b); err != nil {
			return Rule{}, fmt.Errorf("%s: vital %s: %v", d.ID, name, err)
		}
		vitals = append(vitals, VitalBound{Vital: name, Bound: b})
	}

	return Rule{
		ID:         d.ID,
		Symptoms:   d.Symptoms,
		MinMatch:   minMatch,
		Age:        d.Age,
		Vitals:     vitals,
		Risk:       risk,
		Department: d.Department,
		Reason:     d.Reason,
	}, nil
}

func checkBound(b Bound) error {
	if b.GT != nil && b.LT != nil && *b.GT >= *b.LT {
		return fmt.Errorf("empty interval (%v, %v)", *b.GT, *b.LT)
	}
	return nil
}

// RuleEngine evaluates the override table in order.
type RuleEngine struct {
	rules []Rule
}

func NewRuleEngine(rules []Rule) *RuleEngine {
	return &RuleEngine{rules: rules}
}

// Rules returns the table in evaluation order.
func (e *RuleEngine) Rules() []Rule {
	return append([]Rule(nil), e.rules...)
}

// Evaluate returns the first rule whose symptom, age and vital conditions all
// hold, or nil. A vital a rule constrains but the patient lacks fails the rule.
func (e *RuleEngine) Evaluate(symptoms []string, vitals clinical.VitalSigns, age int) *RuleMatch {
	present := make(map[string]bool, len(symptoms))
	for _, s := range symptoms {
		present[s] = true
	}

	for _, r := range e.rules {
		if !r.matches(present, vitals, age) {
			continue
		}
		return &RuleMatch{
			RuleID:     r.ID,
			Risk:       r.Risk,
			Department: r.Department,
			Reason:     r.Reason,
		}
	}
	return nil
}

func (r *Rule) matches(present map[string]bool, vitals clinical.VitalSigns, age int) bool {
	n := 0
	for _, s := range r.Symptoms {
		if present[s] {
			n++
		}
	}
	if n < r.MinMatch {
		return false
	}
	if !r.Age.holds(float64(age)) {
		return false
	}
	for _, vb := range r.Vitals {
		v, ok := vitals.Get(vb.Vital)
		if !ok || !vb.holds(v) {
			return false
		}
	}
	return true
}
