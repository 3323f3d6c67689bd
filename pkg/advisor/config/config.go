package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/atsushibanbanji-collab/visa-expert-system-v3/pkg/advisor/internalerr"
	"github.com/atsushibanbanji-collab/visa-expert-system-v3/pkg/advisor/rule"
)

// DefaultTerminalMarker marks legacy rule conclusions that are final outcomes
// ("may apply for ...").
const DefaultTerminalMarker = "申請ができます"

// RuleFile is the on-disk rule set. YAML and JSON share the same keys, so a
// single decoder handles both.
type RuleFile struct {
	Rules []RuleRecord `yaml:"rules" json:"rules"`
}

// RuleRecord is one serialized rule.
type RuleRecord struct {
	ID              string            `yaml:"id" json:"id"`
	Conditions      []ConditionRecord `yaml:"conditions" json:"conditions"`
	Operator        string            `yaml:"operator,omitempty" json:"operator,omitempty"`
	Conclusion      string            `yaml:"conclusion" json:"conclusion"`
	ConclusionValue *bool             `yaml:"conclusion_value,omitempty" json:"conclusion_value,omitempty"`
	Priority        int               `yaml:"priority,omitempty" json:"priority,omitempty"`
	VisaType        string            `yaml:"visa_type,omitempty" json:"visa_type,omitempty"`
	Terminal        *bool             `yaml:"terminal,omitempty" json:"terminal,omitempty"`
}

// ConditionRecord is one serialized condition.
type ConditionRecord struct {
	FactName      string `yaml:"fact_name" json:"fact_name"`
	RequiredValue *bool  `yaml:"required_value,omitempty" json:"required_value,omitempty"`
}

// LoadRuleFile reads a YAML or JSON rule file.
func LoadRuleFile(path string) (*RuleFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseRuleFile(data)
}

// ParseRuleFile decodes a rule file from YAML or JSON bytes.
func ParseRuleFile(data []byte) (*RuleFile, error) {
	var rf RuleFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("%w: %v", internalerr.ErrInvalidConfig, err)
	}
	return &rf, nil
}

// CategoryKeywords maps a category to the keywords that identify its rules.
type CategoryKeywords struct {
	Name     string   `yaml:"name"`
	Keywords []string `yaml:"keywords"`
}

// CategoryTable is an ordered keyword table; the first match wins.
type CategoryTable struct {
	Categories []CategoryKeywords `yaml:"categories"`
}

// DefaultCategories is the built-in table for the supported visa types.
func DefaultCategories() *CategoryTable {
	return &CategoryTable{Categories: []CategoryKeywords{
		{Name: "E", Keywords: []string{"Eビザ"}},
		{Name: "L", Keywords: []string{"Lビザ", "Blanket L"}},
		{Name: "H-1B", Keywords: []string{"H-1B"}},
		{Name: "B", Keywords: []string{"Bビザ", "B-1"}},
		{Name: "J-1", Keywords: []string{"J-1"}},
	}}
}

// LoadCategories loads a category keyword table from a YAML file.
func LoadCategories(path string) (*CategoryTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var ct CategoryTable
	if err := yaml.Unmarshal(data, &ct); err != nil {
		return nil, err
	}

	return &ct, nil
}

// Detect returns the category of the first entry with a keyword in the
// conclusion or any condition fact name, or "".
func (ct *CategoryTable) Detect(rec RuleRecord) string {
	if ct == nil {
		return ""
	}
	names := make([]string, 0, len(rec.Conditions))
	for _, c := range rec.Conditions {
		names = append(names, c.FactName)
	}
	conditions := strings.Join(names, " ")

	for _, cat := range ct.Categories {
		for _, kw := range cat.Keywords {
			if strings.Contains(rec.Conclusion, kw) || strings.Contains(conditions, kw) {
				return cat.Name
			}
		}
	}
	return ""
}

// ToRules converts records into rules. Records without a visa type are tagged
// through table; records without an explicit terminal flag are terminal when
// their conclusion contains marker (an empty marker disables the fallback).
func (rf *RuleFile) ToRules(table *CategoryTable, marker string) ([]rule.Rule, error) {
	out := make([]rule.Rule, 0, len(rf.Rules))
	for i, rec := range rf.Rules {
		r := rule.Rule{
			ID:              rec.ID,
			Operator:        rule.Operator(strings.ToUpper(strings.TrimSpace(rec.Operator))),
			Conclusion:      rec.Conclusion,
			ConclusionValue: boolOr(rec.ConclusionValue, true),
			Priority:        rec.Priority,
			Category:        rec.VisaType,
		}
		if r.Operator == "" {
			r.Operator = rule.And
		}
		if r.Category == "" {
			r.Category = table.Detect(rec)
		}
		switch {
		case rec.Terminal != nil:
			r.Terminal = *rec.Terminal
		case marker != "":
			r.Terminal = strings.Contains(rec.Conclusion, marker)
		}
		for _, c := range rec.Conditions {
			r.Conditions = append(r.Conditions, rule.Condition{
				FactName:      c.FactName,
				RequiredValue: boolOr(c.RequiredValue, true),
			})
		}
		if err := r.Validate(); err != nil {
			return nil, fmt.Errorf("rule #%d: %w", i+1, err)
		}
		out = append(out, r)
	}
	return out, nil
}

// FromRules converts rules back into a serializable rule file.
func FromRules(rules []rule.Rule) *RuleFile {
	rf := &RuleFile{Rules: make([]RuleRecord, 0, len(rules))}
	for _, r := range rules {
		value, terminal := r.ConclusionValue, r.Terminal
		rec := RuleRecord{
			ID:              r.ID,
			Operator:        string(r.Operator),
			Conclusion:      r.Conclusion,
			ConclusionValue: &value,
			Priority:        r.Priority,
			VisaType:        r.Category,
			Terminal:        &terminal,
		}
		for _, c := range r.Conditions {
			required := c.RequiredValue
			rec.Conditions = append(rec.Conditions, ConditionRecord{FactName: c.FactName, RequiredValue: &required})
		}
		rf.Rules = append(rf.Rules, rec)
	}
	return rf
}

// Marshal renders the rule file as YAML.
func (rf *RuleFile) Marshal() ([]byte, error) {
	return yaml.Marshal(rf)
}

func boolOr(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}
