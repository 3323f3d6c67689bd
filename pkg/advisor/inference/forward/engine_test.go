package forward

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/atsushibanbanji-collab/visa-expert-system-v3/pkg/advisor/kb"
	"github.com/atsushibanbanji-collab/visa-expert-system-v3/pkg/advisor/rule"
)

func r(id, concl string, op rule.Operator, priority int, conds ...string) rule.Rule {
	out := rule.Rule{ID: id, Operator: op, Conclusion: concl, ConclusionValue: true, Priority: priority}
	for _, c := range conds {
		out.Conditions = append(out.Conditions, rule.Condition{FactName: c, RequiredValue: true})
	}
	return out
}

func build(t *testing.T, rules ...rule.Rule) *kb.KnowledgeBase {
	t.Helper()
	k, err := kb.Build(rules, "")
	require.NoError(t, err)
	return k
}

func TestEndToEndSingleRule(t *testing.T) {
	r1 := r("r1", "mayApplyCategoryL", rule.And, 0, "hasOffice")
	r1.Terminal = true
	e := New(build(t, r1))

	q, ok := e.NextQuestion()
	require.True(t, ok)
	require.Equal(t, "hasOffice", q)

	e.Assert("hasOffice", true)
	res := e.ForwardChain()
	require.True(t, res.Converged)
	require.Equal(t, []string{"r1"}, res.Fired)

	v, known := e.Facts().Lookup("mayApplyCategoryL")
	require.True(t, known)
	require.True(t, v)
	require.Equal(t, []string{"mayApplyCategoryL"}, e.Conclusions())

	_, ok = e.NextQuestion()
	require.False(t, ok)
}

func TestUnconditionalRuleFiresWithoutAnswers(t *testing.T) {
	always := r("r0", "eligibleBaseline", rule.And, 0)
	e := New(build(t, always, r("r1", "b", rule.And, 0, "eligibleBaseline", "a")))

	res := e.ForwardChain()
	require.Equal(t, []string{"r0"}, res.Fired)
	v, known := e.Facts().Lookup("eligibleBaseline")
	require.True(t, known)
	require.True(t, v)

	q, ok := e.NextQuestion()
	require.True(t, ok)
	require.Equal(t, "a", q)
}

func TestForwardChainIsIdempotent(t *testing.T) {
	e := New(build(t,
		r("r1", "b", rule.And, 0, "a"),
		r("r2", "c", rule.And, 0, "b"),
	))
	e.Assert("a", true)

	first := e.ForwardChain()
	require.Equal(t, []string{"r1", "r2"}, first.Fired)
	snapshot := e.Facts().List()

	second := e.ForwardChain()
	require.Empty(t, second.Fired)
	require.Equal(t, 1, second.Iterations)
	require.Equal(t, snapshot, e.Facts().List())
	require.Equal(t, []string{"r1", "r2"}, e.FiredRules())
}

func TestForwardChainNeverRefiresKnownConclusion(t *testing.T) {
	e := New(build(t, r("r1", "b", rule.And, 0, "a")))
	e.Assert("b", false)
	e.Assert("a", true)

	res := e.ForwardChain()
	require.Empty(t, res.Fired)
	v, _ := e.Facts().Lookup("b")
	require.False(t, v)
}

func TestForwardChainIterationCapIsNonFatal(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	// Reverse order forces one new fact per pass.
	e := New(build(t,
		r("r3", "d", rule.And, 0, "c"),
		r("r2", "c", rule.And, 0, "b"),
		r("r1", "b", rule.And, 0, "a"),
	), WithMaxIterations(1), WithLogger(zap.New(core)))
	e.Assert("a", true)

	res := e.ForwardChain()
	require.False(t, res.Converged)
	require.Equal(t, []string{"r1"}, res.Fired)
	require.Equal(t, 1, logs.FilterMessage("forward chaining did not converge").Len())

	_, known := e.Facts().Lookup("b")
	require.True(t, known, "facts derived before the cap stay valid")
	_, known = e.Facts().Lookup("d")
	require.False(t, known)
}

func TestNextQuestionPrefersPriority(t *testing.T) {
	e := New(build(t,
		r("high", "h", rule.And, 5, "x"),
		r("low1", "l1", rule.And, 0, "y"),
		r("low2", "l2", rule.And, 0, "y"),
	))

	q, ok := e.NextQuestion()
	require.True(t, ok)
	require.Equal(t, "x", q)

	e.Assert("x", true)
	q, ok = e.NextQuestion()
	require.True(t, ok)
	require.Equal(t, "y", q)
}

func TestNextQuestionPrefersMoreRules(t *testing.T) {
	e := New(build(t,
		r("r1", "p", rule.And, 0, "a", "b"),
		r("r2", "q", rule.And, 0, "b"),
	))

	q, ok := e.NextQuestion()
	require.True(t, ok)
	require.Equal(t, "b", q)
}

func TestNextQuestionSkipsDerivableFacts(t *testing.T) {
	e := New(build(t,
		r("r1", "mid", rule.And, 0, "base"),
		r("r2", "out", rule.And, 0, "mid"),
	))

	q, ok := e.NextQuestion()
	require.True(t, ok)
	require.Equal(t, "base", q)
}

func TestResetFromFactInvalidatesTransitively(t *testing.T) {
	e := New(build(t,
		r("r1", "b", rule.And, 0, "a"),
		r("r2", "c", rule.And, 0, "b"),
		r("r3", "e", rule.And, 0, "d"),
	))
	e.Assert("a", true)
	e.Assert("d", true)
	e.ForwardChain()
	require.Equal(t, 5, e.Facts().Len())

	e.ResetFromFact("a")

	for _, gone := range []string{"a", "b", "c"} {
		_, known := e.Facts().Lookup(gone)
		require.False(t, known, "%s should be invalidated", gone)
	}
	_, known := e.Facts().Lookup("e")
	require.True(t, known)
	require.Empty(t, e.FiredRules(), "nothing new is derivable after the reset")
}

func TestResetFromFactRestoresStillDerivable(t *testing.T) {
	e := New(build(t,
		r("r1", "g", rule.Or, 0, "a", "f"),
		r("r2", "h", rule.And, 0, "g"),
	))
	e.Assert("a", true)
	e.Assert("f", true)
	e.ForwardChain()

	e.ResetFromFact("a")

	v, known := e.Facts().Lookup("g")
	require.True(t, known)
	require.True(t, v)
	_, known = e.Facts().Lookup("h")
	require.True(t, known)
	require.Equal(t, []string{"r1", "r2"}, e.FiredRules())
}

func TestResetFromFactWithoutDependents(t *testing.T) {
	e := New(build(t, r("r1", "b", rule.And, 0, "a")))
	e.Assert("z", true)
	e.Assert("a", false)

	e.ResetFromFact("z")
	e.ResetFromFact("not-there")

	_, known := e.Facts().Lookup("z")
	require.False(t, known)
	_, known = e.Facts().Lookup("a")
	require.True(t, known)
}

func TestRuleStatuses(t *testing.T) {
	e := New(build(t,
		r("r1", "b", rule.And, 0, "a"),
		r("r2", "c", rule.And, 0, "b", "x"),
	))
	e.Assert("a", true)
	e.ForwardChain()

	statuses := e.RuleStatuses()
	require.Len(t, statuses, 2)

	require.Equal(t, "r1", statuses[0].RuleID)
	require.True(t, statuses[0].IsFired)
	require.True(t, statuses[0].ConclusionDerived)
	require.Equal(t, rule.Satisfied, statuses[0].Conditions[0].Status)

	require.False(t, statuses[1].CanFire)
	require.False(t, statuses[1].IsFired)
	require.True(t, statuses[1].Conditions[0].IsDerivable)
	require.Equal(t, rule.Unknown, statuses[1].Conditions[1].Status)
}

func TestConclusionsOnlyTerminalAndTrue(t *testing.T) {
	yes := r("yes", "mayApplyE", rule.And, 0, "a")
	yes.Terminal = true
	no := r("no", "mayApplyB", rule.And, 0, "a")
	no.Terminal = true
	no.ConclusionValue = false
	mid := r("mid", "intermediate", rule.And, 0, "a")

	e := New(build(t, yes, no, mid))
	e.Assert("a", true)
	require.Equal(t, []string{"mayApplyE"}, e.Conclusions())
}

func TestNewPanicsOnUnfinalized(t *testing.T) {
	k := kb.New()
	require.NoError(t, k.AddRule(r("r1", "b", rule.And, 0, "a")))
	require.Panics(t, func() { New(k) })
}
