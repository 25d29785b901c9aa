package libris

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/cognicore/libris/pkg/libris/catalog"
	"github.com/cognicore/libris/pkg/libris/classify"
	"github.com/cognicore/libris/pkg/libris/config"
	"github.com/cognicore/libris/pkg/libris/internalerr"
	"github.com/cognicore/libris/pkg/libris/store"
	"github.com/cognicore/libris/pkg/libris/store/memstore"
)

func builtinClassifiers(t *testing.T) map[string]*classify.Classifier {
	t.Helper()
	out := make(map[string]*classify.Classifier)
	for _, name := range config.BuiltinTableNames() {
		table, err := config.BuiltinTable(name)
		if err != nil {
			t.Fatalf("builtin %s: %v", name, err)
		}
		out[name] = classify.MustCompile(table)
	}
	return out
}

func sampleRecords() []catalog.Record {
	return []catalog.Record{
		catalog.NewRecord("DK_Eyewitness_Egypt.pdf", "", "covers/egypt.jpg"),
		catalog.NewRecord("Unknown_Book.pdf", "", ""),
		catalog.NewRecord("DK_Eyewitness_Rome.pdf", "", "covers/rome.jpg"),
	}
}

func TestRunSavesRecordsAndGroups(t *testing.T) {
	ctx := context.Background()
	st := memstore.New(sampleRecords()...)

	engine := New(Options{Store: st, Classifiers: builtinClassifiers(t)})
	defer engine.Close()

	sum, err := engine.Run(ctx, "series")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if sum.Records != 3 || sum.Groups != 2 || sum.Defaults != 1 {
		t.Errorf("unexpected summary: %+v", sum)
	}
	if _, err := ulid.Parse(sum.RunID); err != nil {
		t.Errorf("run id %q is not a ULID: %v", sum.RunID, err)
	}

	records, err := st.LoadRecords(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if got := records[0].Get("seriesName"); got != "DK Eyewitness" {
		t.Errorf("seriesName = %q", got)
	}
	if got := records[1].Get("seriesId"); got != "others_book" {
		t.Errorf("seriesId = %q", got)
	}

	groups, err := engine.Groups(ctx, "series")
	if err != nil {
		t.Fatal(err)
	}
	if len(groups) != 2 || groups[0].ID != "dk_eyewitness" || groups[1].ID != "others_book" {
		t.Fatalf("unexpected groups: %+v", groups)
	}
	if groups[0].CoverURL != "covers/egypt.jpg" || groups[0].Len() != 2 {
		t.Errorf("first record should set the cover: %+v", groups[0])
	}

	runs, err := engine.Runs(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 || runs[0].ID != sum.RunID || runs[0].Table != "series" {
		t.Errorf("unexpected run history: %+v", runs)
	}
}

func TestRunAllAccumulatesFields(t *testing.T) {
	ctx := context.Background()
	st := memstore.New(sampleRecords()...)
	engine := New(Options{
		Store:       st,
		Classifiers: builtinClassifiers(t),
		Tables:      []string{"series", "themes"},
		Workers:     4,
	})

	sums, err := engine.RunAll(ctx)
	if err != nil {
		t.Fatalf("RunAll failed: %v", err)
	}
	if len(sums) != 2 || sums[0].Table != "series" || sums[1].Table != "themes" {
		t.Fatalf("unexpected summaries: %+v", sums)
	}

	records, _ := st.LoadRecords(ctx)
	first := records[0]
	if first.Get("seriesId") != "dk_eyewitness" || first.Get("themeName") != "History" {
		t.Errorf("expected both tables on the record, got %v", first.Keys())
	}
	if got := st.Tables(); len(got) != 2 {
		t.Errorf("expected groups for both tables, got %v", got)
	}
}

func TestRunUnknownTable(t *testing.T) {
	engine := New(Options{Store: memstore.New(), Classifiers: builtinClassifiers(t)})
	_, err := engine.Run(context.Background(), "authors")
	if !errors.Is(err, internalerr.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestRunWithoutCatalog(t *testing.T) {
	engine := New(Options{Store: memstore.New(), Classifiers: builtinClassifiers(t)})
	_, err := engine.Run(context.Background(), "series")
	if !errors.Is(err, internalerr.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPreviewDoesNotSave(t *testing.T) {
	ctx := context.Background()
	st := memstore.New(sampleRecords()...)
	engine := New(Options{Store: st, Classifiers: builtinClassifiers(t)})

	res, err := engine.Preview(ctx, "series")
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Groups) != 2 {
		t.Errorf("expected 2 groups, got %d", len(res.Groups))
	}
	records, _ := st.LoadRecords(ctx)
	if records[0].Has("seriesName") {
		t.Error("preview must not write records")
	}
	if len(st.Tables()) != 0 {
		t.Error("preview must not write groups")
	}
}

func TestImportMergesByFilename(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	engine := New(Options{Store: st, Classifiers: builtinClassifiers(t)})

	added, err := engine.Import(ctx, sampleRecords())
	if err != nil {
		t.Fatal(err)
	}
	if added != 3 {
		t.Fatalf("added = %d, want 3", added)
	}

	added, err = engine.Import(ctx, []catalog.Record{
		catalog.NewRecord("DK_Eyewitness_Rome.pdf", "Rome again", ""),
		catalog.NewRecord("Pocket_Genius_Dogs.pdf", "", ""),
	})
	if err != nil {
		t.Fatal(err)
	}
	if added != 1 {
		t.Fatalf("added = %d, want 1", added)
	}
	records, _ := st.LoadRecords(ctx)
	if len(records) != 4 || records[3].Filename() != "Pocket_Genius_Dogs.pdf" {
		t.Errorf("unexpected catalog after import: %d records", len(records))
	}
	if records[2].Title() != "" {
		t.Error("existing records must not be overwritten by an import")
	}
}

func TestImportEmptyCreatesCatalog(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	engine := New(Options{Store: st, Classifiers: builtinClassifiers(t)})

	if _, err := engine.Import(ctx, nil); err != nil {
		t.Fatal(err)
	}
	records, err := st.LoadRecords(ctx)
	if err != nil || len(records) != 0 {
		t.Errorf("expected an empty saved catalog, got %v, %v", records, err)
	}
}

func TestDiffAfterRuleChange(t *testing.T) {
	ctx := context.Background()
	st := memstore.New(sampleRecords()...)
	classifiers := builtinClassifiers(t)
	engine := New(Options{Store: st, Classifiers: classifiers})
	if _, err := engine.Run(ctx, "series"); err != nil {
		t.Fatal(err)
	}

	res, err := engine.Diff(ctx, "series")
	if err != nil {
		t.Fatal(err)
	}
	if res.Changed != 0 {
		t.Errorf("expected no changes right after a run, got %+v", res.Changes)
	}

	classifiers["series"] = classify.MustCompile(classify.RuleTable{
		Name:         "series",
		Rules:        []classify.Rule{{Pattern: `Unknown`, Label: "Mystery"}},
		DefaultLabel: "Others Book",
		LabelField:   "seriesName",
		IDField:      "seriesId",
	})
	res, err = engine.Diff(ctx, "series")
	if err != nil {
		t.Fatal(err)
	}
	if res.Changed != 3 {
		t.Errorf("expected every record to change, got %d", res.Changed)
	}
}

func TestReport(t *testing.T) {
	engine := New(Options{Store: memstore.New(sampleRecords()...), Classifiers: builtinClassifiers(t)})
	rep, err := engine.Report(context.Background(), "series", 1)
	if err != nil {
		t.Fatal(err)
	}
	if rep.Records != 3 || rep.DefaultCount != 1 || len(rep.Largest) != 1 {
		t.Errorf("unexpected report: %+v", rep)
	}
	if rep.Largest[0].ID != "dk_eyewitness" {
		t.Errorf("largest = %+v", rep.Largest[0])
	}
}

type bareStore struct{ records []catalog.Record }

func (b *bareStore) Close() error { return nil }
func (b *bareStore) LoadRecords(context.Context) ([]catalog.Record, error) {
	return b.records, nil
}
func (b *bareStore) SaveRecords(_ context.Context, r []catalog.Record) error {
	b.records = r
	return nil
}
func (b *bareStore) SaveGroups(context.Context, string, []catalog.Group) error { return nil }

var _ store.Store = (*bareStore)(nil)

func TestOptionalCapabilities(t *testing.T) {
	ctx := context.Background()
	engine := New(Options{Store: &bareStore{records: sampleRecords()}, Classifiers: builtinClassifiers(t)})

	if _, err := engine.Run(ctx, "series"); err != nil {
		t.Fatalf("Run must work without a run history: %v", err)
	}
	if _, err := engine.Runs(ctx, 5); !errors.Is(err, internalerr.ErrStoreUnavailable) {
		t.Errorf("Runs: expected ErrStoreUnavailable, got %v", err)
	}
	if _, err := engine.Groups(ctx, "series"); !errors.Is(err, internalerr.ErrStoreUnavailable) {
		t.Errorf("Groups: expected ErrStoreUnavailable, got %v", err)
	}
}

func TestRunIDsAreMonotonic(t *testing.T) {
	engine := New(Options{Store: memstore.New()})
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	a := engine.newRunID(fixed)
	b := engine.newRunID(fixed)
	if a >= b {
		t.Errorf("expected %s < %s", a, b)
	}
}

func TestTablesDefaultToSortedNames(t *testing.T) {
	engine := New(Options{Store: memstore.New(), Classifiers: builtinClassifiers(t)})
	got := engine.Tables()
	if len(got) != 2 || got[0] != "series" || got[1] != "themes" {
		t.Errorf("Tables() = %v", got)
	}
}
