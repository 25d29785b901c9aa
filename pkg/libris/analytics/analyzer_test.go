package analytics

import (
	"math"
	"testing"

	"github.com/cognicore/libris/pkg/libris/catalog"
	"github.com/cognicore/libris/pkg/libris/classify"
)

func testClassifier(t *testing.T) *classify.Classifier {
	t.Helper()
	c, err := classify.Compile(classify.RuleTable{
		Name: "series",
		Rules: []classify.Rule{
			{Pattern: `(?:^|[^\p{L}\p{N}])DK[\s_-]+Eyewitness(?:$|[^\p{L}\p{N}])`, Label: "DK Eyewitness"},
			{Pattern: `Encyclopedia`, Label: "DK Encyclopedia"},
			// Never reached: everything it matches is claimed above.
			{Pattern: `Children.*Encyclopedia`, Label: "DK Children's Encyclopedia"},
		},
		DefaultLabel: "Others Book",
	})
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestAnalyzerReport(t *testing.T) {
	c := testClassifier(t)
	records := []catalog.Record{
		catalog.NewRecord("DK_Eyewitness_Egypt.pdf", "Egypt", ""),
		catalog.NewRecord("DK_Eyewitness_Rome.pdf", "", ""),
		catalog.NewRecord("The_Childrens_Encyclopedia.pdf", "", ""),
		catalog.NewRecord("Unknown_Book.pdf", "", ""),
	}

	a := NewAnalyzer(c)
	a.ProcessResult(catalog.ClassifyAndGroup(c, records))
	rep := a.Snapshot()

	if rep.Table != "series" || rep.Records != 4 || rep.Groups != 3 {
		t.Fatalf("unexpected totals: %+v", rep)
	}
	if rep.DefaultCount != 1 || math.Abs(rep.DefaultShare-0.25) > 1e-9 {
		t.Errorf("default = %d (%.2f), want 1 (0.25)", rep.DefaultCount, rep.DefaultShare)
	}

	wantHits := []int64{2, 1, 0}
	if len(rep.RuleHits) != len(wantHits) {
		t.Fatalf("expected %d rule hits, got %d", len(wantHits), len(rep.RuleHits))
	}
	for i, want := range wantHits {
		if rep.RuleHits[i].Hits != want {
			t.Errorf("rule %d hits = %d, want %d", i, rep.RuleHits[i].Hits, want)
		}
	}

	dead := rep.DeadRules()
	if len(dead) != 1 || dead[0].Rule != 2 {
		t.Errorf("expected rule 2 to be dead, got %+v", dead)
	}

	if rep.Largest[0].ID != "dk_eyewitness" || rep.Largest[0].Size != 2 {
		t.Errorf("largest group = %+v", rep.Largest[0])
	}
	// Equal sizes are ordered by id.
	if rep.Largest[1].ID != "dk_encyclopedia" || rep.Largest[2].ID != "others_book" {
		t.Errorf("unexpected tie order: %+v", rep.Largest)
	}
}

func TestAnalyzerTopGroups(t *testing.T) {
	c := testClassifier(t)
	a := NewAnalyzer(c).WithTopGroups(1)
	a.Process(c.Match("DK Eyewitness Egypt"))
	a.Process(c.Match("nothing"))

	rep := a.Snapshot()
	if len(rep.Largest) != 1 {
		t.Fatalf("expected 1 group listed, got %d", len(rep.Largest))
	}
	if rep.Groups != 2 {
		t.Errorf("Groups counts all groups, got %d", rep.Groups)
	}
}

func TestAnalyzerEmpty(t *testing.T) {
	rep := NewAnalyzer(testClassifier(t)).Snapshot()
	if rep.Records != 0 || rep.DefaultShare != 0 || len(rep.Largest) != 0 {
		t.Errorf("unexpected empty report: %+v", rep)
	}
	if len(rep.DeadRules()) != 3 {
		t.Errorf("all rules are dead before any input")
	}
}
