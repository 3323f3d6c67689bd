// Package forward implements inference.Engine with forward chaining.
package forward

import (
	"sort"

	"go.uber.org/zap"

	"github.com/atsushibanbanji-collab/visa-expert-system-v3/pkg/advisor/inference"
	"github.com/atsushibanbanji-collab/visa-expert-system-v3/pkg/advisor/internalerr"
	"github.com/atsushibanbanji-collab/visa-expert-system-v3/pkg/advisor/kb"
)

// DefaultMaxIterations bounds the passes of a single ForwardChain call.
const DefaultMaxIterations = 100

// Option configures an Engine.
type Option func(*Engine)

// WithMaxIterations overrides the pass cap. Values below 1 are ignored.
func WithMaxIterations(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxIter = n
		}
	}
}

// WithLogger sets the logger used for non-convergence warnings.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// Engine is a forward-chaining engine over one finalized knowledge base and
// one private fact store. It is not safe for concurrent use.
type Engine struct {
	kb      *kb.KnowledgeBase
	facts   *inference.Facts
	fired   []string
	maxIter int
	logger  *zap.Logger
}

var _ inference.Engine = (*Engine)(nil)

// New creates an engine. The knowledge base must already be finalized.
func New(k *kb.KnowledgeBase, opts ...Option) *Engine {
	if !k.Finalized() {
		panic(internalerr.ErrNotFinalized)
	}
	e := &Engine{
		kb:      k,
		facts:   inference.NewFacts(),
		maxIter: DefaultMaxIterations,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ForwardChain fires every rule whose conclusion is unknown and whose
// conditions hold, pass after pass, until a pass changes nothing. Hitting the
// iteration cap stops derivation with whatever is known so far.
func (e *Engine) ForwardChain() inference.ChainResult {
	res := inference.ChainResult{Converged: true}
	rules := e.kb.Rules()

	for changed := true; changed; {
		if res.Iterations == e.maxIter {
			res.Converged = false
			e.logger.Warn("forward chaining did not converge",
				zap.String("category", e.kb.Category()),
				zap.Int("max_iterations", e.maxIter),
				zap.Int("fired", len(res.Fired)))
			break
		}
		changed = false
		res.Iterations++

		for _, r := range rules {
			if _, known := e.facts.Lookup(r.Conclusion); known {
				continue
			}
			if !r.CanFire(e.facts) {
				continue
			}
			e.facts.Derive(r.Conclusion, r.ConclusionValue, r.ID)
			e.fired = append(e.fired, r.ID)
			res.Fired = append(res.Fired, r.ID)
			changed = true
		}
	}

	if len(res.Fired) > 0 {
		e.logger.Debug("derived facts", zap.Strings("rules", res.Fired), zap.Int("iterations", res.Iterations))
	}
	return res
}

// NextQuestion derives what it can, then scores each unknown basic fact by
// summing priority+1 over the pending rules that still need it. Ties go to the
// lexically smallest fact name.
func (e *Engine) NextQuestion() (string, bool) {
	e.ForwardChain()

	candidates := make(map[string]int)
	for _, name := range e.kb.BasicFacts() {
		if _, known := e.facts.Lookup(name); !known {
			candidates[name] = 0
		}
	}
	if len(candidates) == 0 {
		return "", false
	}

	for _, r := range e.kb.Rules() {
		if _, known := e.facts.Lookup(r.Conclusion); known {
			continue
		}
		for _, name := range r.FactNames() {
			if _, ok := candidates[name]; ok {
				candidates[name] += r.Priority + 1
			}
		}
	}

	names := make([]string, 0, len(candidates))
	for name := range candidates {
		names = append(names, name)
	}
	sort.Strings(names)

	best := names[0]
	for _, name := range names[1:] {
		if candidates[name] > candidates[best] {
			best = name
		}
	}
	return best, true
}

// Conclusions derives what it can and returns the true terminal conclusions.
func (e *Engine) Conclusions() []string {
	e.ForwardChain()

	seen := make(map[string]bool)
	var out []string
	for _, r := range e.kb.Rules() {
		if !r.Terminal || seen[r.Conclusion] {
			continue
		}
		if v, ok := e.facts.Lookup(r.Conclusion); ok && v {
			seen[r.Conclusion] = true
			out = append(out, r.Conclusion)
		}
	}
	sort.Strings(out)
	return out
}

// Assert records an answered fact without deriving.
func (e *Engine) Assert(fact string, value bool) {
	e.facts.Set(fact, value)
}

// ResetFromFact deletes fact and, walking the condition->rule index with a
// worklist, every conclusion that depended on a deleted fact. The fired-rule
// record is cleared and derivation re-runs, restoring whatever is still
// derivable.
func (e *Engine) ResetFromFact(fact string) {
	e.facts.Delete(fact)

	visited := map[string]bool{fact: true}
	work := []string{fact}
	for len(work) > 0 {
		cur := work[len(work)-1]
		work = work[:len(work)-1]

		for _, r := range e.kb.Dependents(cur) {
			concl := r.Conclusion
			if visited[concl] {
				continue
			}
			visited[concl] = true
			if _, ok := e.facts.Get(concl); !ok {
				continue
			}
			e.facts.Delete(concl)
			work = append(work, concl)
		}
	}

	e.fired = nil
	e.ForwardChain()
}

// RuleStatuses projects every active rule against the current facts.
func (e *Engine) RuleStatuses() []inference.RuleStatus {
	fired := make(map[string]bool, len(e.fired))
	for _, id := range e.fired {
		fired[id] = true
	}

	rules := e.kb.Rules()
	out := make([]inference.RuleStatus, 0, len(rules))
	for _, r := range rules {
		statuses := r.ConditionStatus(e.facts)
		conds := make([]inference.ConditionState, len(r.Conditions))
		for i, c := range r.Conditions {
			conds[i] = inference.ConditionState{
				FactName:      c.FactName,
				RequiredValue: c.RequiredValue,
				Status:        statuses[i],
				IsDerivable:   e.kb.IsDerivable(c.FactName),
			}
		}
		_, derived := e.facts.Lookup(r.Conclusion)
		out = append(out, inference.RuleStatus{
			RuleID:            r.ID,
			Conditions:        conds,
			Operator:          r.Operator,
			Conclusion:        r.Conclusion,
			ConclusionValue:   r.ConclusionValue,
			ConclusionDerived: derived,
			CanFire:           r.CanFire(e.facts),
			IsFired:           fired[r.ID],
			Terminal:          r.Terminal,
		})
	}
	return out
}

// Facts returns the engine's fact store.
func (e *Engine) Facts() *inference.Facts { return e.facts }

// FiredRules returns a copy of the fired rule ids in firing order.
func (e *Engine) FiredRules() []string {
	return append([]string(nil), e.fired...)
}

// Clear drops every fact and the fired-rule record.
func (e *Engine) Clear() {
	e.facts.Clear()
	e.fired = nil
}
