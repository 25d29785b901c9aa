package config

import (
	"fmt"

	"github.com/cognicore/libris/pkg/libris/classify"
)

// Loader resolves every configured rule table and compiles it.
type Loader struct {
	Config *Config
}

// Components holds the compiled classifiers, keyed by table name.
type Components struct {
	Classifiers map[string]*classify.Classifier
	Tables      []string // declaration order
}

// Load compiles all tables. Any invalid rule in any table fails the whole
// load, so a run never mixes old and new rule sets.
func (l *Loader) Load() (*Components, error) {
	cfg := l.Config
	if cfg == nil {
		cfg = Default()
	}

	comp := &Components{Classifiers: make(map[string]*classify.Classifier, len(cfg.Tables))}
	for _, tc := range cfg.Tables {
		table, err := cfg.RuleTable(tc)
		if err != nil {
			return nil, fmt.Errorf("load table %q: %w", tc.Name, err)
		}
		c, err := classify.Compile(table)
		if err != nil {
			return nil, fmt.Errorf("compile table %q: %w", tc.Name, err)
		}
		comp.Classifiers[tc.Name] = c
		comp.Tables = append(comp.Tables, tc.Name)
	}
	return comp, nil
}

// RuleTable resolves a table declaration into a rule table.
func (c *Config) RuleTable(tc TableConfig) (classify.RuleTable, error) {
	var (
		table classify.RuleTable
		err   error
	)

	switch {
	case tc.Builtin != "":
		table, err = BuiltinTable(tc.Builtin)
	case tc.RulesFile != "":
		table, err = LoadRuleTable(c.Resolve(tc.RulesFile))
	case len(tc.Rules) > 0:
		table = TableFile{Rules: tc.Rules}.RuleTable()
	default:
		// A bare declaration named after a builtin table picks it up.
		if builtin, berr := BuiltinTable(tc.Name); berr == nil {
			table = builtin
		}
	}
	if err != nil {
		return classify.RuleTable{}, err
	}

	table.Name = tc.Name
	if tc.DefaultLabel != "" {
		table.DefaultLabel = tc.DefaultLabel
	}
	if tc.Description != "" {
		table.Description = tc.Description
	}
	if tc.LabelField != "" {
		table.LabelField = tc.LabelField
	}
	if tc.IDField != "" {
		table.IDField = tc.IDField
	}
	return table, nil
}
