// Package rule defines the propositional rules the advisor reasons over.
package rule

import (
	"fmt"

	"github.com/atsushibanbanji-collab/visa-expert-system-v3/pkg/advisor/internalerr"
)

// Operator combines the conditions of a rule.
type Operator string

const (
	// And requires every condition to be known and satisfied.
	And Operator = "AND"
	// Or requires at least one known condition to be satisfied.
	Or Operator = "OR"
)

// Status classifies a single condition against the current facts.
type Status string

const (
	Unknown      Status = "unknown"
	Satisfied    Status = "satisfied"
	NotSatisfied Status = "not_satisfied"
)

// Condition references a fact and the value it must hold.
type Condition struct {
	FactName      string
	RequiredValue bool
}

// Rule is an immutable implication: when its conditions hold, Conclusion is set
// to ConclusionValue.
type Rule struct {
	ID              string
	Conditions      []Condition
	Operator        Operator
	Conclusion      string
	ConclusionValue bool
	Priority        int    // only used to order questions
	Category        string // optional visa category tag
	Terminal        bool   // conclusion is an actionable outcome
}

// FactReader is the read-only view of known facts a rule is evaluated against.
type FactReader interface {
	Lookup(name string) (value bool, known bool)
}

// Validate checks the structural invariants of a rule.
func (r Rule) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("rule: empty id: %w", internalerr.ErrInvalidInput)
	}
	if r.Conclusion == "" {
		return fmt.Errorf("rule %s: empty conclusion: %w", r.ID, internalerr.ErrInvalidInput)
	}
	switch r.Operator {
	case And, Or:
	default:
		return fmt.Errorf("rule %s: unknown operator %q: %w", r.ID, r.Operator, internalerr.ErrInvalidInput)
	}
	for _, c := range r.Conditions {
		if c.FactName == "" {
			return fmt.Errorf("rule %s: condition without fact name: %w", r.ID, internalerr.ErrInvalidInput)
		}
		if c.FactName == r.Conclusion {
			return fmt.Errorf("rule %s: conclusion %q is also a condition: %w", r.ID, r.Conclusion, internalerr.ErrInvalidInput)
		}
	}
	return nil
}

// CanFire reports whether the rule's conditions hold under facts.
//
// AND needs every condition known and matching, so an AND rule without
// conditions always fires. OR needs at least one known matching condition;
// unknown conditions are ignored.
func (r Rule) CanFire(facts FactReader) bool {
	if r.Operator == Or {
		for _, c := range r.Conditions {
			if v, ok := facts.Lookup(c.FactName); ok && v == c.RequiredValue {
				return true
			}
		}
		return false
	}

	for _, c := range r.Conditions {
		v, ok := facts.Lookup(c.FactName)
		if !ok || v != c.RequiredValue {
			return false
		}
	}
	return true
}

// ConditionStatus classifies every condition, in rule order.
func (r Rule) ConditionStatus(facts FactReader) []Status {
	out := make([]Status, len(r.Conditions))
	for i, c := range r.Conditions {
		v, ok := facts.Lookup(c.FactName)
		switch {
		case !ok:
			out[i] = Unknown
		case v == c.RequiredValue:
			out[i] = Satisfied
		default:
			out[i] = NotSatisfied
		}
	}
	return out
}

// IsPartiallyEvaluated reports whether any condition's fact is known.
func (r Rule) IsPartiallyEvaluated(facts FactReader) bool {
	for _, c := range r.Conditions {
		if _, ok := facts.Lookup(c.FactName); ok {
			return true
		}
	}
	return false
}

// FactNames returns the distinct condition fact names in rule order.
func (r Rule) FactNames() []string {
	seen := make(map[string]bool, len(r.Conditions))
	out := make([]string, 0, len(r.Conditions))
	for _, c := range r.Conditions {
		if seen[c.FactName] {
			continue
		}
		seen[c.FactName] = true
		out = append(out, c.FactName)
	}
	return out
}
