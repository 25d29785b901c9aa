// Package classify assigns labels to free text with an ordered list of
// case-insensitive regular expressions. The first matching rule wins.
package classify

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/cognicore/libris/pkg/libris/internalerr"
)

// DefaultDescription is used when a table does not define its own template.
const DefaultDescription = "Collection: {label}"

// Rule pairs a case-insensitive pattern with the label it assigns.
type Rule struct {
	Pattern string
	Label   string
}

// RuleTable is an ordered rule list plus the label used when nothing matches.
// Earlier rules take precedence over later ones.
type RuleTable struct {
	Name         string
	Rules        []Rule
	DefaultLabel string
	// Description is the group description template; "{label}" is replaced
	// with the group label.
	Description string
	// LabelField and IDField name the record keys written during enrichment.
	LabelField string
	IDField    string
}

// Match is the outcome of classifying one input.
type Match struct {
	Label string
	ID    string
	Rule  int // index into the table's rules, -1 for the default label
}

// Default reports whether no rule matched.
func (m Match) Default() bool { return m.Rule < 0 }

// Classifier evaluates a compiled rule table. It is immutable and safe for
// concurrent use.
type Classifier struct {
	table    RuleTable
	patterns []*regexp.Regexp
}

// Compile validates every rule of the table and returns a classifier.
// A single bad rule rejects the whole table.
func Compile(table RuleTable) (*Classifier, error) {
	if strings.TrimSpace(table.DefaultLabel) == "" {
		return nil, fmt.Errorf("table %q: empty default label: %w", table.Name, internalerr.ErrInvalidConfig)
	}

	patterns := make([]*regexp.Regexp, len(table.Rules))
	for i, r := range table.Rules {
		if r.Pattern == "" {
			return nil, fmt.Errorf("table %q rule %d (%s): empty pattern: %w", table.Name, i, r.Label, internalerr.ErrInvalidConfig)
		}
		if strings.TrimSpace(r.Label) == "" {
			return nil, fmt.Errorf("table %q rule %d: empty label: %w", table.Name, i, internalerr.ErrInvalidConfig)
		}
		re, err := regexp.Compile("(?i)" + r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("table %q rule %d (%s): %v: %w", table.Name, i, r.Label, err, internalerr.ErrInvalidConfig)
		}
		patterns[i] = re
	}

	t := table
	t.Rules = append([]Rule(nil), table.Rules...)
	if t.Description == "" {
		t.Description = DefaultDescription
	}
	if t.LabelField == "" {
		t.LabelField = t.Name + "Name"
	}
	if t.IDField == "" {
		t.IDField = t.Name + "Id"
	}

	return &Classifier{table: t, patterns: patterns}, nil
}

// MustCompile is like Compile but panics on an invalid table.
func MustCompile(table RuleTable) *Classifier {
	c, err := Compile(table)
	if err != nil {
		panic(err)
	}
	return c
}

// Detect returns the label of the first rule matching text, or the default label.
func (c *Classifier) Detect(text string) string {
	return c.match(text).Label
}

// Match classifies text and reports which rule fired.
func (c *Classifier) Match(text string) Match {
	m := c.match(text)
	m.ID = NormalizeID(m.Label)
	return m
}

func (c *Classifier) match(text string) Match {
	for i, re := range c.patterns {
		if re.MatchString(text) {
			return Match{Label: c.table.Rules[i].Label, Rule: i}
		}
	}
	return Match{Label: c.table.DefaultLabel, Rule: -1}
}

// Describe renders the group description for label.
func (c *Classifier) Describe(label string) string {
	return strings.ReplaceAll(c.table.Description, "{label}", label)
}

// Name returns the table name.
func (c *Classifier) Name() string { return c.table.Name }

// LabelField is the record key receiving the detected label.
func (c *Classifier) LabelField() string { return c.table.LabelField }

// IDField is the record key receiving the normalized id.
func (c *Classifier) IDField() string { return c.table.IDField }

// Table returns a copy of the compiled table.
func (c *Classifier) Table() RuleTable {
	t := c.table
	t.Rules = append([]Rule(nil), c.table.Rules...)
	return t
}

// Labels lists the distinct labels the classifier can produce, in rule
// order, followed by the default label.
func (c *Classifier) Labels() []string {
	seen := make(map[string]struct{}, len(c.table.Rules)+1)
	var out []string
	for _, r := range c.table.Rules {
		if _, ok := seen[r.Label]; ok {
			continue
		}
		seen[r.Label] = struct{}{}
		out = append(out, r.Label)
	}
	if _, ok := seen[c.table.DefaultLabel]; !ok {
		out = append(out, c.table.DefaultLabel)
	}
	return out
}

// Input builds the classification text for a record.
func Input(filename, title string) string {
	return strings.TrimSpace(filename + " " + title)
}
