package advisor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/atsushibanbanji-collab/visa-expert-system-v3/pkg/advisor/config"
	"github.com/atsushibanbanji-collab/visa-expert-system-v3/pkg/advisor/internalerr"
	"github.com/atsushibanbanji-collab/visa-expert-system-v3/pkg/advisor/rule"
	"github.com/atsushibanbanji-collab/visa-expert-system-v3/pkg/advisor/store/memstore"
)

func newAdvisor(t *testing.T) *Advisor {
	t.Helper()
	comp, err := (&config.Loader{RulesPath: "../../testdata/rules.yaml"}).Load()
	require.NoError(t, err)

	a, err := New(context.Background(), Options{Store: memstore.New(), Rules: comp.Rules})
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	return a
}

func TestCategories(t *testing.T) {
	a := newAdvisor(t)
	require.Equal(t, []string{"B", "E", "H-1B", "J-1", "L"}, a.Categories())
}

func TestFactsAreScopedToCategory(t *testing.T) {
	a := newAdvisor(t)

	facts, err := a.Facts("L")
	require.NoError(t, err)
	require.Contains(t, facts.Basic, "blanket_l_petition_approved")
	require.Contains(t, facts.Derivable, "qualifying_relationship")
	require.NotContains(t, facts.All, "selected_in_lottery")

	_, err = a.Facts("O-1")
	require.ErrorIs(t, err, internalerr.ErrUnknownCategory)
}

func TestKnowledgeBaseIsCached(t *testing.T) {
	a := newAdvisor(t)
	k1, err := a.KnowledgeBase("E")
	require.NoError(t, err)
	k2, err := a.KnowledgeBase("E")
	require.NoError(t, err)
	require.Same(t, k1, k2)
}

func TestConsultationStoresOneReport(t *testing.T) {
	ctx := context.Background()
	a := newAdvisor(t)

	turn, err := a.Start(ctx, "L")
	require.NoError(t, err)
	require.NotEmpty(t, turn.SessionID)
	require.Equal(t, "employed_abroad_one_year", turn.NextQuestion)

	for i := 0; !turn.Finished; i++ {
		require.Less(t, i, 10, "consultation should finish")
		turn, err = a.Answer(ctx, turn.SessionID, turn.NextQuestion, true)
		require.NoError(t, err)
	}
	require.Equal(t, []string{"may_apply_blanket_l", "may_apply_l_visa"}, turn.Conclusions)

	// Asking again after the end must not duplicate the report.
	_, err = a.Conclusions(ctx, turn.SessionID)
	require.NoError(t, err)
	_, err = a.Answer(ctx, turn.SessionID, "employed_abroad_one_year", true)
	require.NoError(t, err)

	reports, err := a.Reports(ctx, 10)
	require.NoError(t, err)
	require.Len(t, reports, 1)
	require.Equal(t, turn.SessionID, reports[0].SessionID)
	require.Equal(t, turn.Conclusions, reports[0].Conclusions)

	got, err := a.Report(ctx, reports[0].ID)
	require.NoError(t, err)
	require.Equal(t, "L", got.Category)
}

func TestChangedAnswerAfterFinishStoresNewReport(t *testing.T) {
	ctx := context.Background()
	a := newAdvisor(t)

	turn, err := a.Start(ctx, "B")
	require.NoError(t, err)
	require.Equal(t, "activities_are_business_meetings_only", turn.NextQuestion)
	turn, err = a.Answer(ctx, turn.SessionID, turn.NextQuestion, true)
	require.NoError(t, err)
	require.Equal(t, "paid_by_us_employer", turn.NextQuestion)
	turn, err = a.Answer(ctx, turn.SessionID, "paid_by_us_employer", false)
	require.NoError(t, err)
	require.True(t, turn.Finished)
	require.Equal(t, []string{"may_apply_b_visa"}, turn.Conclusions)

	back, err := a.GoBack(ctx, turn.SessionID)
	require.NoError(t, err)
	require.Equal(t, "activities_are_business_meetings_only", back.Current)

	turn, err = a.Answer(ctx, turn.SessionID, "paid_by_us_employer", true)
	require.NoError(t, err)
	require.True(t, turn.Finished)
	require.Empty(t, turn.Conclusions)

	reports, err := a.Reports(ctx, 10)
	require.NoError(t, err)
	require.Len(t, reports, 2)
	require.Equal(t, turn.SessionID, reports[0].SessionID)
	require.Empty(t, reports[0].Conclusions, "newest report must match the final outcome")
	require.Equal(t, []string{"may_apply_b_visa"}, reports[1].Conclusions)
}

func TestReansweringWithSameValueDoesNotDuplicateReport(t *testing.T) {
	ctx := context.Background()
	a := newAdvisor(t)

	turn, err := a.Start(ctx, "B")
	require.NoError(t, err)
	_, err = a.Answer(ctx, turn.SessionID, "activities_are_business_meetings_only", true)
	require.NoError(t, err)
	turn, err = a.Answer(ctx, turn.SessionID, "paid_by_us_employer", false)
	require.NoError(t, err)
	require.True(t, turn.Finished)

	_, err = a.Answer(ctx, turn.SessionID, "paid_by_us_employer", false)
	require.NoError(t, err)

	reports, err := a.Reports(ctx, 10)
	require.NoError(t, err)
	require.Len(t, reports, 1)
}

func TestCategoriesOfStoredCatalogue(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	require.NoError(t, st.ReplaceRules(ctx, []rule.Rule{
		{ID: "x1", Operator: rule.And, Conclusion: "may_apply_o1", Category: "O-1", Terminal: true},
		{ID: "x2", Operator: rule.Or, Conditions: []rule.Condition{{FactName: "a", RequiredValue: true}}, Conclusion: "b"},
	}))

	a, err := New(ctx, Options{Store: st})
	require.NoError(t, err)
	require.Equal(t, []string{"O-1"}, a.Categories())
}

func TestGoBackAndRestart(t *testing.T) {
	ctx := context.Background()
	a := newAdvisor(t)

	turn, err := a.Start(ctx, "E")
	require.NoError(t, err)
	first := turn.NextQuestion

	back, err := a.GoBack(ctx, turn.SessionID)
	require.NoError(t, err)
	require.Empty(t, back.Previous, "cannot go back from the first question")
	require.Equal(t, first, back.Current)

	turn, err = a.Answer(ctx, turn.SessionID, first, true)
	require.NoError(t, err)
	second := turn.NextQuestion
	require.NotEqual(t, first, second)

	back, err = a.GoBack(ctx, turn.SessionID)
	require.NoError(t, err)
	require.Equal(t, first, back.Previous)
	require.Equal(t, first, back.Current)

	viz, err := a.Visualization(ctx, turn.SessionID)
	require.NoError(t, err)
	require.Equal(t, []string{first}, viz.QuestionHistory)

	turn, err = a.Restart(ctx, turn.SessionID)
	require.NoError(t, err)
	require.Equal(t, first, turn.NextQuestion)

	viz, err = a.Visualization(ctx, turn.SessionID)
	require.NoError(t, err)
	require.Empty(t, viz.Facts)
	require.Equal(t, []string{first}, viz.QuestionHistory)
}

func TestUnknownSession(t *testing.T) {
	ctx := context.Background()
	a := newAdvisor(t)

	_, err := a.Answer(ctx, "nope", "x", true)
	require.ErrorIs(t, err, internalerr.ErrNoSession)
	_, err = a.GoBack(ctx, "nope")
	require.ErrorIs(t, err, internalerr.ErrNoSession)
	require.False(t, a.End("nope"))
}

func TestNewLoadsCatalogueFromStore(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	seeded, err := New(ctx, Options{Store: st, Rules: newAdvisor(t).Rules()})
	require.NoError(t, err)

	reopened, err := New(ctx, Options{Store: st})
	require.NoError(t, err)
	require.Equal(t, seeded.Rules(), reopened.Rules())
}
