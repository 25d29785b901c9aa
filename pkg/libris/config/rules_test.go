package config

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/cognicore/libris/pkg/libris/classify"
	"github.com/cognicore/libris/pkg/libris/internalerr"
)

func TestBuiltinSeriesTable(t *testing.T) {
	table, err := BuiltinTable("series")
	if err != nil {
		t.Fatalf("BuiltinTable: %v", err)
	}
	if len(table.Rules) != 20 {
		t.Errorf("Expected 20 series rules, got %d", len(table.Rules))
	}
	if table.DefaultLabel != "Others Book" {
		t.Errorf("Expected default 'Others Book', got %q", table.DefaultLabel)
	}
	if table.LabelField != "seriesName" || table.IDField != "seriesId" {
		t.Errorf("Unexpected fields %q/%q", table.LabelField, table.IDField)
	}

	c, err := classify.Compile(table)
	if err != nil {
		t.Fatalf("builtin series table must compile: %v", err)
	}

	cases := []struct {
		filename, title string
		want            string
	}{
		{"DK_Eyewitness_Egypt.pdf", "Egypt", "DK Eyewitness"},
		{"Unknown_Book.pdf", "", "Others Book"},
		{"eyewitness-travel.pdf", "DK Eyewitness Travel Guide: Italy", "DK Eyewitness"},
		{"The_New_Childrens_Encyclopedia.pdf", "", "DK Children’s Encyclopedia"},
		{"Star Wars Character Encyclopedia.pdf", "", "DK Licensed Media (Marvel / Star Wars)"},
		{"x.pdf", "The Science of Yoga", "DK Science of…"},
		{"DK_Workbooks_Math_Grade_1.pdf", "", "DK Workbooks"},
		{"DK Lets Look Farm.pdf", "", "DK Let’s Look"},
		{"Pocket_Genius_Dinosaurs.pdf", "", "DK Pocket Genius"},
		{"Simply Philosophy.pdf", "", "DK Philosophy & Psychology"},
		{"History of the World Map by Map.pdf", "", "DK History Map by Map"},
		{"Student_Atlas.pdf", "", "DK Reference Atlas"},
		{"1,000 Things You Should Know.pdf", "", "DK 100 / 1,000 Things"},
	}
	for _, tc := range cases {
		got := c.Detect(classify.Input(tc.filename, tc.title))
		if got != tc.want {
			t.Errorf("Detect(%q, %q) = %q, want %q", tc.filename, tc.title, got, tc.want)
		}
	}
}

func TestBuiltinTablesWordEdgesAreUnicodeAware(t *testing.T) {
	series := classify.MustCompile(mustBuiltin(t, "series"))
	themes := classify.MustCompile(mustBuiltin(t, "themes"))

	cases := []struct {
		c    *classify.Classifier
		text string
		want string
	}{
		{series, "ÉDK Eyewitness", "Others Book"},
		{series, "DK Eyewitnessé", "Others Book"},
		{series, "Égypte DK Eyewitness", "DK Eyewitness"},
		{series, "DK_Eyewitness_Egypt.pdf", "DK Eyewitness"},
		{series, "«DK Eyewitness»", "DK Eyewitness"},
		{themes, "Éwar diaries", "Others / General Knowledge"},
		{themes, "Ägypten und Egypt", "History"},
		{themes, "Pocket_Genius_Dinosaurs.pdf", "Nature & Animals"},
	}
	for _, tc := range cases {
		if got := tc.c.Detect(tc.text); got != tc.want {
			t.Errorf("%s: Detect(%q) = %q, want %q", tc.c.Name(), tc.text, got, tc.want)
		}
	}
}

func mustBuiltin(t *testing.T, name string) classify.RuleTable {
	t.Helper()
	table, err := BuiltinTable(name)
	if err != nil {
		t.Fatalf("BuiltinTable(%s): %v", name, err)
	}
	return table
}

func TestBuiltinTablesLabelsMapToDistinctIDs(t *testing.T) {
	for _, name := range BuiltinTableNames() {
		table, err := BuiltinTable(name)
		if err != nil {
			t.Fatalf("BuiltinTable(%s): %v", name, err)
		}
		c := classify.MustCompile(table)

		ids := make(map[string]string)
		for _, label := range c.Labels() {
			id := classify.NormalizeID(label)
			if id == "" {
				t.Errorf("%s: label %q normalizes to empty id", name, label)
			}
			if prev, ok := ids[id]; ok && prev != label {
				t.Errorf("%s: labels %q and %q share id %q", name, prev, label, id)
			}
			ids[id] = label
		}
	}
}

func TestBuiltinThemesTable(t *testing.T) {
	table, err := BuiltinTable("themes")
	if err != nil {
		t.Fatalf("BuiltinTable: %v", err)
	}
	c := classify.MustCompile(table)

	if got := c.Detect("Pocket_Genius_Dinosaurs.pdf"); got != "Nature & Animals" {
		t.Errorf("Expected 'Nature & Animals', got %q", got)
	}
	if got := c.Detect("Unknown_Book.pdf"); got != "Others / General Knowledge" {
		t.Errorf("Expected default theme, got %q", got)
	}
	if c.IDField() != "themeId" {
		t.Errorf("Expected themeId field, got %q", c.IDField())
	}
}

func TestBuiltinTableUnknown(t *testing.T) {
	_, err := BuiltinTable("nope")
	if !errors.Is(err, internalerr.ErrNotFound) {
		t.Fatalf("Expected ErrNotFound, got %v", err)
	}
}

func TestBuiltinTableNames(t *testing.T) {
	names := BuiltinTableNames()
	if !reflect.DeepEqual(names, []string{"series", "themes"}) {
		t.Errorf("Unexpected builtin tables: %v", names)
	}
}

func TestLoadRuleTableYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "genres.yaml")
	content := `default_label: Misc
rules:
  - pattern: '\bfantasy\b'
    label: Fantasy
  - pattern: 'sci.?fi'
    label: Science Fiction
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	table, err := LoadRuleTable(path)
	if err != nil {
		t.Fatalf("LoadRuleTable: %v", err)
	}
	if table.Name != "genres" {
		t.Errorf("Expected name from filename, got %q", table.Name)
	}
	if len(table.Rules) != 2 || table.Rules[1].Label != "Science Fiction" {
		t.Errorf("Unexpected rules: %+v", table.Rules)
	}
	if table.Rules[0].Pattern != `\bfantasy\b` {
		t.Errorf("Pattern not preserved: %q", table.Rules[0].Pattern)
	}
}

func TestLoadRuleTableTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "genres.toml")
	content := `name = "genre"
default_label = "Misc"
label_field = "genreName"

[[rules]]
pattern = '\bfantasy\b'
label = "Fantasy"

[[rules]]
pattern = 'horror'
label = "Horror"
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	table, err := LoadRuleTable(path)
	if err != nil {
		t.Fatalf("LoadRuleTable: %v", err)
	}
	if table.Name != "genre" || table.LabelField != "genreName" {
		t.Errorf("Unexpected header: %+v", table)
	}
	if len(table.Rules) != 2 || table.Rules[0].Pattern != `\bfantasy\b` {
		t.Errorf("Unexpected rules: %+v", table.Rules)
	}
}

func TestLoadRuleTableMissing(t *testing.T) {
	if _, err := LoadRuleTable(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("Expected error for missing file")
	}
}

func TestLoadRuleTableMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("rules: [unclosed"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadRuleTable(path); err == nil {
		t.Fatal("Expected parse error")
	}
}

func TestEncodeRuleTableRoundTrip(t *testing.T) {
	table, err := BuiltinTable("series")
	if err != nil {
		t.Fatal(err)
	}

	for _, format := range []Format{FormatYAML, FormatTOML} {
		data, err := EncodeRuleTable(table, format)
		if err != nil {
			t.Fatalf("Encode %s: %v", format, err)
		}
		back, err := DecodeRuleTable(data, format)
		if err != nil {
			t.Fatalf("Decode %s: %v\n%s", format, err, data)
		}
		if !reflect.DeepEqual(back, table) {
			t.Errorf("%s round trip changed the table", format)
		}
	}
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{"yaml": FormatYAML, "YML": FormatYAML, "": FormatYAML, "toml": FormatTOML} {
		got, err := ParseFormat(in)
		if err != nil || got != want {
			t.Errorf("ParseFormat(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseFormat("json"); !errors.Is(err, internalerr.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput, got %v", err)
	}
}
