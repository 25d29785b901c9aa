package maintenance

import (
	"context"
	"fmt"
	"io"

	"github.com/cognicore/libris/pkg/libris/classify"
	"github.com/cognicore/libris/pkg/libris/config"
)

// RuleWriter persists a rendered rule table to a destination (file, stdout, etc.).
type RuleWriter interface {
	WriteRules(ctx context.Context, content string) error
}

// StreamWriter writes rules to an io.Writer.
type StreamWriter struct {
	W io.Writer
}

// WriteRules implements RuleWriter.
func (s StreamWriter) WriteRules(ctx context.Context, content string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := io.WriteString(s.W, content)
	return err
}

// RuleExporter renders rule tables as YAML or TOML files that
// config.LoadRuleTable reads back unchanged.
type RuleExporter struct {
	Writer RuleWriter
}

// Export encodes table in format and hands it to the writer.
func (e *RuleExporter) Export(ctx context.Context, table classify.RuleTable, format config.Format) error {
	if e.Writer == nil {
		return fmt.Errorf("rule exporter: nil writer")
	}
	data, err := config.EncodeRuleTable(table, format)
	if err != nil {
		return fmt.Errorf("rule exporter: %w", err)
	}
	return e.Writer.WriteRules(ctx, string(data))
}
