package memstore

import (
	"context"
	"testing"

	"github.com/atsushibanbanji-collab/visa-expert-system-v3/pkg/advisor/rule"
	"github.com/atsushibanbanji-collab/visa-expert-system-v3/pkg/advisor/store/storetest"
)

func TestStoreConformance(t *testing.T) {
	storetest.Run(t, New())
}

func TestListRulesReturnsCopies(t *testing.T) {
	s := New()
	ctx := context.Background()
	in := []rule.Rule{{ID: "r1", Conditions: []rule.Condition{{FactName: "a", RequiredValue: true}}}}
	if err := s.ReplaceRules(ctx, in); err != nil {
		t.Fatal(err)
	}

	out, _ := s.ListRules(ctx)
	out[0].Conditions[0].FactName = "mutated"

	again, _ := s.ListRules(ctx)
	if again[0].Conditions[0].FactName != "a" {
		t.Errorf("store state leaked through ListRules: %q", again[0].Conditions[0].FactName)
	}
}
