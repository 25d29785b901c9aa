package maintenance

import (
	"bytes"
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/cognicore/libris/pkg/libris/classify"
	"github.com/cognicore/libris/pkg/libris/config"
	"github.com/cognicore/libris/pkg/libris/internalerr"
)

type fakeWriter struct {
	content string
	err     error
}

func (f *fakeWriter) WriteRules(ctx context.Context, content string) error {
	if f.err != nil {
		return f.err
	}
	f.content = content
	return nil
}

func genreTable() classify.RuleTable {
	return classify.RuleTable{
		Name: "genre",
		Rules: []classify.Rule{
			{Pattern: `\bfantasy\b`, Label: "Fantasy"},
			{Pattern: `poems?$`, Label: "Poetry"},
		},
		DefaultLabel: "Prose",
	}
}

func TestRuleExporterYAML(t *testing.T) {
	writer := &fakeWriter{}
	exporter := RuleExporter{Writer: writer}

	if err := exporter.Export(context.Background(), genreTable(), config.FormatYAML); err != nil {
		t.Fatalf("Export: %v", err)
	}
	if !strings.Contains(writer.content, "default_label: Prose") {
		t.Fatalf("unexpected export: %s", writer.content)
	}

	back, err := config.DecodeRuleTable([]byte(writer.content), config.FormatYAML)
	if err != nil {
		t.Fatalf("exported YAML does not decode: %v", err)
	}
	if !reflect.DeepEqual(back, genreTable()) {
		t.Errorf("round trip mismatch: %+v", back)
	}
}

func TestRuleExporterTOML(t *testing.T) {
	writer := &fakeWriter{}
	exporter := RuleExporter{Writer: writer}

	if err := exporter.Export(context.Background(), genreTable(), config.FormatTOML); err != nil {
		t.Fatalf("Export: %v", err)
	}
	if !strings.Contains(writer.content, "[[rules]]") {
		t.Fatalf("expected TOML array of tables, got: %s", writer.content)
	}
}

func TestRuleExporterUnknownFormat(t *testing.T) {
	exporter := RuleExporter{Writer: &fakeWriter{}}
	err := exporter.Export(context.Background(), genreTable(), config.Format("xml"))
	if !errors.Is(err, internalerr.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestRuleExporterWriterError(t *testing.T) {
	exporter := RuleExporter{Writer: &fakeWriter{err: errors.New("fail")}}
	if err := exporter.Export(context.Background(), genreTable(), config.FormatYAML); err == nil {
		t.Fatal("expected error")
	}
}

func TestRuleExporterNilWriter(t *testing.T) {
	exporter := RuleExporter{}
	if err := exporter.Export(context.Background(), genreTable(), config.FormatYAML); err == nil {
		t.Fatal("expected error")
	}
}

func TestStreamWriter(t *testing.T) {
	var buf bytes.Buffer
	if err := (StreamWriter{W: &buf}).WriteRules(context.Background(), "rules: []\n"); err != nil {
		t.Fatal(err)
	}
	if buf.String() != "rules: []\n" {
		t.Errorf("unexpected output %q", buf.String())
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := (StreamWriter{W: &buf}).WriteRules(ctx, "x"); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
