// Package storetest holds the behaviour every store.Store must share.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/atsushibanbanji-collab/visa-expert-system-v3/pkg/advisor/internalerr"
	"github.com/atsushibanbanji-collab/visa-expert-system-v3/pkg/advisor/rule"
	"github.com/atsushibanbanji-collab/visa-expert-system-v3/pkg/advisor/store"
)

// Run exercises s. It expects an empty store.
func Run(t *testing.T, s store.Store) {
	t.Helper()
	t.Run("Rules", func(t *testing.T) { testRules(t, s) })
	t.Run("Reports", func(t *testing.T) { testReports(t, s) })
}

func testRules(t *testing.T, s store.Store) {
	ctx := context.Background()

	empty, err := s.ListRules(ctx)
	require.NoError(t, err)
	require.Empty(t, empty)

	rules := []rule.Rule{
		{
			ID: "l1", Operator: rule.And, Priority: 2, Category: "L", Terminal: true,
			Conditions: []rule.Condition{{FactName: "hasOffice", RequiredValue: true}, {FactName: "banned", RequiredValue: false}},
			Conclusion: "mayApplyL", ConclusionValue: true,
		},
		{
			ID: "x1", Operator: rule.Or,
			Conditions: []rule.Condition{{FactName: "a", RequiredValue: true}},
			Conclusion: "b", ConclusionValue: false,
		},
	}
	require.NoError(t, s.ReplaceRules(ctx, rules))

	got, err := s.ListRules(ctx)
	require.NoError(t, err)
	require.Equal(t, rules, got)

	require.NoError(t, s.ReplaceRules(ctx, rules[1:]))
	got, err = s.ListRules(ctx)
	require.NoError(t, err)
	require.Equal(t, rules[1:], got)
}

func testReports(t *testing.T, s store.Store) {
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	older := store.Report{
		ID: "01A", SessionID: "s1", Category: "L",
		Conclusions: []string{"mayApplyL"},
		Questions:   []string{"hasOffice"},
		Answers:     map[string]bool{"hasOffice": true},
		FiredRules:  []string{"l1"},
		CreatedAt:   base,
	}
	newer := store.Report{
		ID: "01B", SessionID: "s2", Category: "E",
		Conclusions: []string{},
		Questions:   []string{"treaty"},
		Answers:     map[string]bool{"treaty": false},
		FiredRules:  []string{},
		CreatedAt:   base.Add(500 * time.Millisecond),
	}
	require.NoError(t, s.SaveReport(ctx, older))
	require.NoError(t, s.SaveReport(ctx, newer))
	require.ErrorIs(t, s.SaveReport(ctx, older), internalerr.ErrDuplicate)
	require.ErrorIs(t, s.SaveReport(ctx, store.Report{}), internalerr.ErrInvalidInput)

	got, err := s.GetReport(ctx, "01A")
	require.NoError(t, err)
	require.Equal(t, older.Answers, got.Answers)
	require.Equal(t, older.Conclusions, got.Conclusions)
	require.True(t, older.CreatedAt.Equal(got.CreatedAt))

	_, err = s.GetReport(ctx, "missing")
	require.ErrorIs(t, err, internalerr.ErrNotFound)

	list, err := s.ListReports(ctx, 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, "01B", list[0].ID)

	list, err = s.ListReports(ctx, 1)
	require.NoError(t, err)
	require.Len(t, list, 1)
}
