package inference

import (
	"sort"

	"github.com/atsushibanbanji-collab/visa-expert-system-v3/pkg/advisor/rule"
)

// Engine derives facts from a knowledge base and decides what to ask next.
// This interface allows swapping implementations (forward chaining today).
type Engine interface {
	// ForwardChain fires rules until a fixed point or the iteration cap.
	ForwardChain() ChainResult

	// NextQuestion returns the unknown basic fact that unblocks the most
	// (priority-weighted) rules, or ok=false when nothing is left to ask.
	NextQuestion() (fact string, ok bool)

	// Conclusions returns the true terminal conclusions, sorted.
	Conclusions() []string

	// Assert records a directly answered fact.
	Assert(fact string, value bool)

	// ResetFromFact removes fact and everything derived from it, then re-derives.
	ResetFromFact(fact string)

	// RuleStatuses projects every active rule for inspection. No mutation.
	RuleStatuses() []RuleStatus

	// Facts returns the current fact store.
	Facts() *Facts

	// FiredRules returns rule ids in firing order.
	FiredRules() []string

	// Clear drops every fact and the fired-rule record.
	Clear()
}

// ChainResult summarizes one ForwardChain call.
type ChainResult struct {
	Fired      []string // rule ids fired by this call
	Iterations int
	Converged  bool // false when the iteration cap stopped derivation
}

// Fact is a named boolean with its provenance.
type Fact struct {
	Name        string `json:"name"`
	Value       bool   `json:"value"`
	Derived     bool   `json:"is_derived"`
	DerivedFrom string `json:"derived_from_rule,omitempty"`
}

// Facts is a session's fact store. At most one entry exists per name.
type Facts struct {
	entries map[string]Fact
}

// NewFacts creates an empty fact store.
func NewFacts() *Facts {
	return &Facts{entries: make(map[string]Fact)}
}

// Lookup implements rule.FactReader.
func (f *Facts) Lookup(name string) (bool, bool) {
	e, ok := f.entries[name]
	return e.Value, ok
}

// Get returns the full entry for name.
func (f *Facts) Get(name string) (Fact, bool) {
	e, ok := f.entries[name]
	return e, ok
}

// Set records an answered fact.
func (f *Facts) Set(name string, value bool) {
	f.entries[name] = Fact{Name: name, Value: value}
}

// Derive records a fact concluded by ruleID.
func (f *Facts) Derive(name string, value bool, ruleID string) {
	f.entries[name] = Fact{Name: name, Value: value, Derived: true, DerivedFrom: ruleID}
}

// Delete removes name. Deleting an absent fact is a no-op.
func (f *Facts) Delete(name string) {
	delete(f.entries, name)
}

// Len returns the number of known facts.
func (f *Facts) Len() int { return len(f.entries) }

// Clear removes every fact.
func (f *Facts) Clear() {
	f.entries = make(map[string]Fact)
}

// Values returns a copy of the store as name -> value.
func (f *Facts) Values() map[string]bool {
	out := make(map[string]bool, len(f.entries))
	for name, e := range f.entries {
		out[name] = e.Value
	}
	return out
}

// List returns every entry sorted by name.
func (f *Facts) List() []Fact {
	out := make([]Fact, 0, len(f.entries))
	for _, e := range f.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

var _ rule.FactReader = (*Facts)(nil)

// ConditionState is one condition of a RuleStatus.
type ConditionState struct {
	FactName      string      `json:"fact_name"`
	RequiredValue bool        `json:"required_value"`
	Status        rule.Status `json:"status"`
	IsDerivable   bool        `json:"is_derivable"`
}

// RuleStatus is the read-only projection of a rule against the current facts.
type RuleStatus struct {
	RuleID            string           `json:"rule_id"`
	Conditions        []ConditionState `json:"conditions"`
	Operator          rule.Operator    `json:"operator"`
	Conclusion        string           `json:"conclusion"`
	ConclusionValue   bool             `json:"conclusion_value"`
	ConclusionDerived bool             `json:"conclusion_derived"`
	CanFire           bool             `json:"can_fire"`
	IsFired           bool             `json:"is_fired"`
	Terminal          bool             `json:"is_terminal"`
}
