package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/atsushibanbanji-collab/visa-expert-system-v3/pkg/advisor/rule"
)

func TestLoadRuleFileYAML(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "rules.yaml")

	content := `rules:
  - id: r1
    conditions:
      - fact_name: hasOffice
      - fact_name: bannedBefore
        required_value: false
    conclusion: mayApplyCategoryL
    priority: 2
    visa_type: L
    terminal: true
  - id: r2
    operator: or
    conditions:
      - fact_name: a
      - fact_name: b
    conclusion: c
    conclusion_value: false
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	rf, err := LoadRuleFile(path)
	if err != nil {
		t.Fatalf("Failed to load rules: %v", err)
	}

	rules, err := rf.ToRules(DefaultCategories(), DefaultTerminalMarker)
	if err != nil {
		t.Fatalf("ToRules: %v", err)
	}
	if len(rules) != 2 {
		t.Fatalf("Expected 2 rules, got %d", len(rules))
	}

	r1 := rules[0]
	if r1.Operator != rule.And {
		t.Errorf("Expected default operator AND, got %s", r1.Operator)
	}
	if !r1.ConclusionValue || !r1.Terminal || r1.Category != "L" || r1.Priority != 2 {
		t.Errorf("Unexpected r1: %+v", r1)
	}
	if !r1.Conditions[0].RequiredValue || r1.Conditions[1].RequiredValue {
		t.Errorf("Unexpected required values: %+v", r1.Conditions)
	}

	r2 := rules[1]
	if r2.Operator != rule.Or {
		t.Errorf("Expected OR, got %s", r2.Operator)
	}
	if r2.ConclusionValue {
		t.Error("Expected conclusion_value false")
	}
	if r2.Terminal {
		t.Error("r2 should not be terminal")
	}
}

func TestLoadRuleFileJSON(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "rules.json")

	content := `{"rules": [
  {"id": "rule_1",
   "conditions": [{"fact_name": "米国に拠点がある", "required_value": true}],
   "operator": "AND",
   "conclusion": "Lビザの申請ができます",
   "conclusion_value": true,
   "priority": 1}
]}`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	rf, err := LoadRuleFile(path)
	if err != nil {
		t.Fatalf("Failed to load rules: %v", err)
	}
	rules, err := rf.ToRules(DefaultCategories(), DefaultTerminalMarker)
	if err != nil {
		t.Fatalf("ToRules: %v", err)
	}

	if rules[0].Category != "L" {
		t.Errorf("Expected auto-detected category L, got %q", rules[0].Category)
	}
	if !rules[0].Terminal {
		t.Error("Expected terminal from marker")
	}
}

func TestToRulesRejectsInvalid(t *testing.T) {
	rf, err := ParseRuleFile([]byte(`rules:
  - id: loop
    conditions:
      - fact_name: x
    conclusion: x
`))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := rf.ToRules(nil, ""); err == nil {
		t.Error("Expected self-loop to be rejected")
	}
}

func TestDetectCategory(t *testing.T) {
	table := DefaultCategories()

	cases := map[string]RuleRecord{
		"E":    {Conclusion: "Eビザの申請ができます"},
		"L":    {Conclusion: "x", Conditions: []ConditionRecord{{FactName: "Blanket Lの承認を受けている"}}},
		"H-1B": {Conclusion: "H-1Bビザの申請ができます"},
		"B":    {Conclusion: "B-1の条件を満たす"},
		"J-1":  {Conclusion: "J-1ビザの申請ができます"},
		"":     {Conclusion: "中間結論"},
	}
	for want, rec := range cases {
		if got := table.Detect(rec); got != want {
			t.Errorf("Detect(%q) = %q, want %q", rec.Conclusion, got, want)
		}
	}
}

func TestFromRulesRoundTrip(t *testing.T) {
	in := []rule.Rule{{
		ID:              "r1",
		Operator:        rule.Or,
		Conditions:      []rule.Condition{{FactName: "a", RequiredValue: false}},
		Conclusion:      "b",
		ConclusionValue: true,
		Priority:        3,
		Category:        "E",
		Terminal:        true,
	}}

	data, err := FromRules(in).Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	rf, err := ParseRuleFile(data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	out, err := rf.ToRules(nil, "")
	if err != nil {
		t.Fatalf("ToRules: %v", err)
	}
	if len(out) != 1 || out[0].ID != "r1" || out[0].Conditions[0].RequiredValue || !out[0].Terminal || out[0].Category != "E" {
		t.Errorf("Round trip mismatch: %+v", out)
	}
}
