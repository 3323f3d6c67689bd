package config

import (
	"fmt"

	"github.com/atsushibanbanji-collab/visa-expert-system-v3/pkg/advisor/rule"
)

// Loader loads the rule source and its companion files
type Loader struct {
	RulesPath      string
	CategoriesPath string
	// TerminalMarker overrides DefaultTerminalMarker; "-" disables the fallback.
	TerminalMarker string
}

// Components holds everything loaded by a Loader
type Components struct {
	Rules      []rule.Rule
	Categories *CategoryTable
}

// Load reads all configured files and returns the parsed rules
func (l *Loader) Load() (*Components, error) {
	comp := &Components{}

	// Load category keyword table
	if l.CategoriesPath != "" {
		table, err := LoadCategories(l.CategoriesPath)
		if err != nil {
			return nil, fmt.Errorf("load categories: %w", err)
		}
		comp.Categories = table
	} else {
		comp.Categories = DefaultCategories()
	}

	marker := l.TerminalMarker
	switch marker {
	case "":
		marker = DefaultTerminalMarker
	case "-":
		marker = ""
	}

	// Load rules
	if l.RulesPath != "" {
		rf, err := LoadRuleFile(l.RulesPath)
		if err != nil {
			return nil, fmt.Errorf("load rules: %w", err)
		}
		rules, err := rf.ToRules(comp.Categories, marker)
		if err != nil {
			return nil, fmt.Errorf("load rules: %w", err)
		}
		comp.Rules = rules
	}

	return comp, nil
}
