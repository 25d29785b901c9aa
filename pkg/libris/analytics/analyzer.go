package analytics

import (
	"sort"

	"github.com/cognicore/libris/pkg/libris/catalog"
	"github.com/cognicore/libris/pkg/libris/classify"
)

// DefaultTopGroups is how many groups Report.Largest lists by default.
const DefaultTopGroups = 10

// Analyzer aggregates per-rule and per-group counts over classification results.
type Analyzer struct {
	table     classify.RuleTable
	topGroups int

	records      int64
	defaultCount int64
	ruleHits     []int64
	groupSize    map[string]int64
	groupLabel   map[string]string
	groupOrder   []string
}

// NewAnalyzer creates an empty analyzer for the rules of c.
func NewAnalyzer(c *classify.Classifier) *Analyzer {
	table := c.Table()
	return &Analyzer{
		table:      table,
		topGroups:  DefaultTopGroups,
		ruleHits:   make([]int64, len(table.Rules)),
		groupSize:  make(map[string]int64),
		groupLabel: make(map[string]string),
	}
}

// WithTopGroups sets how many groups Snapshot lists; n <= 0 lists all.
func (a *Analyzer) WithTopGroups(n int) *Analyzer {
	a.topGroups = n
	return a
}

// Process consumes one classification outcome.
func (a *Analyzer) Process(m classify.Match) {
	a.records++
	if m.Default() {
		a.defaultCount++
	} else if m.Rule < len(a.ruleHits) {
		a.ruleHits[m.Rule]++
	}
	if _, ok := a.groupSize[m.ID]; !ok {
		a.groupOrder = append(a.groupOrder, m.ID)
		a.groupLabel[m.ID] = m.Label
	}
	a.groupSize[m.ID]++
}

// ProcessResult consumes every match of a catalog pass.
func (a *Analyzer) ProcessResult(res catalog.Result) {
	for _, m := range res.Matches {
		a.Process(m)
	}
}

// RuleHit is the number of records one rule claimed.
type RuleHit struct {
	Rule    int
	Pattern string
	Label   string
	Hits    int64
}

// GroupSize is the member count of one group.
type GroupSize struct {
	ID    string
	Label string
	Size  int64
}

// Report exposes the aggregated counts.
type Report struct {
	Table        string
	Records      int64
	Groups       int
	DefaultCount int64
	// DefaultShare is DefaultCount / Records, 0 for an empty catalog.
	DefaultShare float64
	// RuleHits has one entry per rule, in rule order, including rules
	// that matched nothing.
	RuleHits []RuleHit
	// Largest lists groups by descending size, ties broken by id.
	Largest []GroupSize
}

// DeadRules returns the rules that claimed no record. A dead rule is
// either unused or shadowed by an earlier, broader pattern.
func (r Report) DeadRules() []RuleHit {
	var dead []RuleHit
	for _, h := range r.RuleHits {
		if h.Hits == 0 {
			dead = append(dead, h)
		}
	}
	return dead
}

// Snapshot returns a copy of the accumulated statistics.
func (a *Analyzer) Snapshot() Report {
	rep := Report{
		Table:        a.table.Name,
		Records:      a.records,
		Groups:       len(a.groupOrder),
		DefaultCount: a.defaultCount,
		RuleHits:     make([]RuleHit, len(a.table.Rules)),
	}
	if a.records > 0 {
		rep.DefaultShare = float64(a.defaultCount) / float64(a.records)
	}
	for i, r := range a.table.Rules {
		rep.RuleHits[i] = RuleHit{Rule: i, Pattern: r.Pattern, Label: r.Label, Hits: a.ruleHits[i]}
	}

	sizes := make([]GroupSize, 0, len(a.groupOrder))
	for _, id := range a.groupOrder {
		sizes = append(sizes, GroupSize{ID: id, Label: a.groupLabel[id], Size: a.groupSize[id]})
	}
	sort.SliceStable(sizes, func(i, j int) bool {
		if sizes[i].Size != sizes[j].Size {
			return sizes[i].Size > sizes[j].Size
		}
		return sizes[i].ID < sizes[j].ID
	})
	if a.topGroups > 0 && len(sizes) > a.topGroups {
		sizes = sizes[:a.topGroups]
	}
	rep.Largest = sizes
	return rep
}
