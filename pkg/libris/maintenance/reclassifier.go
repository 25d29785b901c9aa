package maintenance

import (
	"github.com/cognicore/libris/pkg/libris/catalog"
	"github.com/cognicore/libris/pkg/libris/classify"
)

// Reclassifier compares stored labels with what the current rules produce.
// It is used to preview a rule change before rewriting the catalog.
type Reclassifier struct {
	Classifier *classify.Classifier
}

// Change is one record whose stored classification differs.
type Change struct {
	Index    int
	Filename string
	OldLabel string
	NewLabel string
	OldID    string
	NewID    string
}

// Result summarizes a diff.
type Result struct {
	Processed int
	Changed   int
	// Unlabeled counts records that carried no label at all.
	Unlabeled int
	Changes   []Change
}

// Diff re-runs detection on records without modifying them.
func (r *Reclassifier) Diff(records []catalog.Record) Result {
	c := r.Classifier
	res := Result{Changes: []Change{}}
	for i, rec := range records {
		res.Processed++
		m := c.Match(classify.Input(rec.Filename(), rec.Title()))

		oldLabel := rec.Get(c.LabelField())
		oldID := rec.Get(c.IDField())
		if oldLabel == "" {
			res.Unlabeled++
		}
		if oldLabel == m.Label && oldID == m.ID {
			continue
		}
		res.Changed++
		res.Changes = append(res.Changes, Change{
			Index:    i,
			Filename: rec.Filename(),
			OldLabel: oldLabel,
			NewLabel: m.Label,
			OldID:    oldID,
			NewID:    m.ID,
		})
	}
	return res
}
