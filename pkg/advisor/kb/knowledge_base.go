// Package kb holds the rule set of a consultation and classifies its facts.
//
// A KnowledgeBase is built once (AddRule... then Finalize) and is read-only
// afterwards, so a single instance can back any number of sessions.
package kb

import (
	"fmt"
	"sort"

	"github.com/atsushibanbanji-collab/visa-expert-system-v3/pkg/advisor/internalerr"
	"github.com/atsushibanbanji-collab/visa-expert-system-v3/pkg/advisor/rule"
)

// KnowledgeBase owns the full rule list and, after Finalize, the active subset.
type KnowledgeBase struct {
	all       []rule.Rule
	finalized bool
	category  string

	active     []rule.Rule
	byID       map[string]int
	byConcl    map[string][]int // conclusion fact -> active rule indexes
	dependents map[string][]int // condition fact -> active rule indexes

	allFacts  map[string]bool
	derivable map[string]bool
	basic     map[string]bool
}

// New creates an empty knowledge base.
func New() *KnowledgeBase {
	return &KnowledgeBase{}
}

// AddRule appends a rule to the unfiltered rule list.
func (k *KnowledgeBase) AddRule(r rule.Rule) error {
	if k.finalized {
		return internalerr.ErrAlreadyFinalized
	}
	if err := r.Validate(); err != nil {
		return err
	}
	k.all = append(k.all, r)
	return nil
}

// Finalize selects the active rules and classifies every fact name.
// An empty category keeps the full rule set; otherwise only rules tagged with
// category and the rules they transitively depend on are kept.
func (k *KnowledgeBase) Finalize(category string) error {
	if k.finalized {
		return internalerr.ErrAlreadyFinalized
	}

	if category == "" {
		k.active = append([]rule.Rule(nil), k.all...)
	} else {
		kept := closure(k.all, category)
		if len(kept) == 0 {
			return fmt.Errorf("finalize %q: %w", category, internalerr.ErrUnknownCategory)
		}
		k.active = kept
	}
	k.category = category
	k.index()
	k.finalized = true
	return nil
}

// closure returns the rules tagged with category plus every rule whose
// conclusion is needed, directly or transitively, by a kept rule. Rules keep
// their original relative order.
func closure(all []rule.Rule, category string) []rule.Rule {
	byConcl := make(map[string][]int)
	for i, r := range all {
		byConcl[r.Conclusion] = append(byConcl[r.Conclusion], i)
	}

	kept := make(map[int]bool)
	covered := make(map[string]bool)
	var work []int
	for i, r := range all {
		if r.Category == category {
			kept[i] = true
			work = append(work, i)
		}
	}

	for len(work) > 0 {
		i := work[len(work)-1]
		work = work[:len(work)-1]
		for _, c := range all[i].Conditions {
			if covered[c.FactName] {
				continue
			}
			covered[c.FactName] = true
			for _, j := range byConcl[c.FactName] {
				if !kept[j] {
					kept[j] = true
					work = append(work, j)
				}
			}
		}
	}

	out := make([]rule.Rule, 0, len(kept))
	for i, r := range all {
		if kept[i] {
			out = append(out, r)
		}
	}
	return out
}

func (k *KnowledgeBase) index() {
	k.byID = make(map[string]int, len(k.active))
	k.byConcl = make(map[string][]int)
	k.dependents = make(map[string][]int)
	k.allFacts = make(map[string]bool)
	k.derivable = make(map[string]bool)
	k.basic = make(map[string]bool)

	for i, r := range k.active {
		if _, dup := k.byID[r.ID]; !dup {
			k.byID[r.ID] = i
		}
		k.byConcl[r.Conclusion] = append(k.byConcl[r.Conclusion], i)
		k.derivable[r.Conclusion] = true
		k.allFacts[r.Conclusion] = true
		for _, name := range r.FactNames() {
			k.dependents[name] = append(k.dependents[name], i)
			k.allFacts[name] = true
		}
	}
	for name := range k.allFacts {
		if !k.derivable[name] {
			k.basic[name] = true
		}
	}
}

func (k *KnowledgeBase) mustFinalized() {
	if !k.finalized {
		panic(internalerr.ErrNotFinalized)
	}
}

// Finalized reports whether Finalize has completed.
func (k *KnowledgeBase) Finalized() bool { return k.finalized }

// Category is the category the active rules were filtered by ("" for all).
func (k *KnowledgeBase) Category() string { return k.category }

// AllRules returns the unfiltered rule list.
func (k *KnowledgeBase) AllRules() []rule.Rule {
	return append([]rule.Rule(nil), k.all...)
}

// Rules returns the active rules.
func (k *KnowledgeBase) Rules() []rule.Rule {
	k.mustFinalized()
	return k.active
}

// RuleByID returns the first active rule with the given id.
func (k *KnowledgeBase) RuleByID(id string) (rule.Rule, bool) {
	k.mustFinalized()
	i, ok := k.byID[id]
	if !ok {
		return rule.Rule{}, false
	}
	return k.active[i], true
}

// RulesWithConclusion returns the active rules concluding fact.
func (k *KnowledgeBase) RulesWithConclusion(fact string) []rule.Rule {
	k.mustFinalized()
	return k.pick(k.byConcl[fact])
}

// Dependents returns the active rules that list fact as a condition.
func (k *KnowledgeBase) Dependents(fact string) []rule.Rule {
	k.mustFinalized()
	return k.pick(k.dependents[fact])
}

func (k *KnowledgeBase) pick(idx []int) []rule.Rule {
	out := make([]rule.Rule, len(idx))
	for i, j := range idx {
		out[i] = k.active[j]
	}
	return out
}

// IsBasic reports whether fact must be asked rather than derived.
func (k *KnowledgeBase) IsBasic(fact string) bool {
	k.mustFinalized()
	return k.basic[fact]
}

// IsDerivable reports whether fact is the conclusion of an active rule.
func (k *KnowledgeBase) IsDerivable(fact string) bool {
	k.mustFinalized()
	return k.derivable[fact]
}

// AllFacts returns every fact name mentioned by the active rules, sorted.
func (k *KnowledgeBase) AllFacts() []string {
	k.mustFinalized()
	return sortedKeys(k.allFacts)
}

// BasicFacts returns the facts that are never concluded by an active rule, sorted.
func (k *KnowledgeBase) BasicFacts() []string {
	k.mustFinalized()
	return sortedKeys(k.basic)
}

// DerivableFacts returns the conclusions of the active rules, sorted.
func (k *KnowledgeBase) DerivableFacts() []string {
	k.mustFinalized()
	return sortedKeys(k.derivable)
}

// Categories lists the distinct non-empty category tags of the full rule set.
func (k *KnowledgeBase) Categories() []string {
	set := make(map[string]bool)
	for _, r := range k.all {
		if r.Category != "" {
			set[r.Category] = true
		}
	}
	return sortedKeys(set)
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Build adds rules in order and finalizes the knowledge base for category.
func Build(rules []rule.Rule, category string) (*KnowledgeBase, error) {
	k := New()
	for _, r := range rules {
		if err := k.AddRule(r); err != nil {
			return nil, err
		}
	}
	if err := k.Finalize(category); err != nil {
		return nil, err
	}
	return k, nil
}
