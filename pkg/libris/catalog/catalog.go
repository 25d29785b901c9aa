package catalog

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/cognicore/libris/pkg/libris/classify"
)

// Result holds the outcome of one classification pass.
type Result struct {
	// Records are the enriched records, in input order.
	Records []Record
	// Matches is parallel to Records and says which rule fired for each.
	Matches []classify.Match
	// Groups are ordered by the first record that produced each id.
	Groups []Group

	index map[string]int
}

// Group returns the group stored under id.
func (r Result) Group(id string) (Group, bool) {
	i, ok := r.index[id]
	if !ok {
		return Group{}, false
	}
	return r.Groups[i], true
}

// GroupIDs lists group keys in first-encounter order.
func (r Result) GroupIDs() []string {
	ids := make([]string, len(r.Groups))
	for i, g := range r.Groups {
		ids[i] = g.ID
	}
	return ids
}

// ClassifyAndGroup labels every record with c and groups them by normalized id.
// The input slice is not modified.
func ClassifyAndGroup(c *classify.Classifier, records []Record) Result {
	matches := make([]classify.Match, len(records))
	for i, rec := range records {
		matches[i] = c.Match(classify.Input(rec.Filename(), rec.Title()))
	}
	return group(c, records, matches)
}

// Builder runs ClassifyAndGroup with an optional worker pool for the
// per-record detection step. Grouping always happens in a single
// sequential pass, so the result is identical to ClassifyAndGroup.
type Builder struct {
	Classifier *classify.Classifier
	Workers    int
}

// Build classifies records, fanning detection out over b.Workers goroutines.
func (b Builder) Build(ctx context.Context, records []Record) (Result, error) {
	if b.Workers <= 1 || len(records) < 2 {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		return ClassifyAndGroup(b.Classifier, records), nil
	}

	matches := make([]classify.Match, len(records))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.Workers)
	for i := range records {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rec := records[i]
			matches[i] = b.Classifier.Match(classify.Input(rec.Filename(), rec.Title()))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Result{}, err
	}
	return group(b.Classifier, records, matches), nil
}

func group(c *classify.Classifier, records []Record, matches []classify.Match) Result {
	res := Result{
		Records: make([]Record, len(records)),
		Matches: matches,
		Groups:  []Group{},
		index:   make(map[string]int),
	}

	for i, rec := range records {
		m := matches[i]
		enriched := rec.Clone()
		enriched.Set(c.LabelField(), m.Label)
		enriched.Set(c.IDField(), m.ID)
		res.Records[i] = enriched

		gi, ok := res.index[m.ID]
		if !ok {
			gi = len(res.Groups)
			res.index[m.ID] = gi
			res.Groups = append(res.Groups, Group{
				ID:          m.ID,
				Label:       m.Label,
				Description: c.Describe(m.Label),
				CoverURL:    enriched.CoverURL(),
				IDKey:       c.IDField(),
				LabelKey:    c.LabelField(),
			})
		}
		res.Groups[gi].Books = append(res.Groups[gi].Books, enriched)
	}
	return res
}
