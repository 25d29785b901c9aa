package config

import (
	"bytes"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/cognicore/libris/pkg/libris/classify"
	"github.com/cognicore/libris/pkg/libris/internalerr"
)

//go:embed tables/*.yaml
var builtinTables embed.FS

// RuleSpec is one rule as written in a rule table file.
type RuleSpec struct {
	Pattern string `yaml:"pattern" toml:"pattern"`
	Label   string `yaml:"label" toml:"label"`
}

// TableFile is the on-disk form of a rule table.
type TableFile struct {
	Name         string     `yaml:"name" toml:"name"`
	DefaultLabel string     `yaml:"default_label" toml:"default_label"`
	Description  string     `yaml:"description,omitempty" toml:"description,omitempty"`
	LabelField   string     `yaml:"label_field,omitempty" toml:"label_field,omitempty"`
	IDField      string     `yaml:"id_field,omitempty" toml:"id_field,omitempty"`
	Rules        []RuleSpec `yaml:"rules" toml:"rules"`
}

// RuleTable converts the file form into a classify.RuleTable.
func (f TableFile) RuleTable() classify.RuleTable {
	rules := make([]classify.Rule, len(f.Rules))
	for i, r := range f.Rules {
		rules[i] = classify.Rule{Pattern: r.Pattern, Label: r.Label}
	}
	return classify.RuleTable{
		Name:         f.Name,
		Rules:        rules,
		DefaultLabel: f.DefaultLabel,
		Description:  f.Description,
		LabelField:   f.LabelField,
		IDField:      f.IDField,
	}
}

// FromRuleTable is the inverse of TableFile.RuleTable.
func FromRuleTable(t classify.RuleTable) TableFile {
	rules := make([]RuleSpec, len(t.Rules))
	for i, r := range t.Rules {
		rules[i] = RuleSpec{Pattern: r.Pattern, Label: r.Label}
	}
	return TableFile{
		Name:         t.Name,
		DefaultLabel: t.DefaultLabel,
		Description:  t.Description,
		LabelField:   t.LabelField,
		IDField:      t.IDField,
		Rules:        rules,
	}
}

// Format identifies a rule table encoding.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

// ParseFormat accepts "yaml", "yml" and "toml" in any case.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "yaml", "yml", "":
		return FormatYAML, nil
	case "toml":
		return FormatTOML, nil
	default:
		return "", fmt.Errorf("rule table format %q: %w", s, internalerr.ErrInvalidInput)
	}
}

func formatForPath(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		return FormatTOML
	}
	return FormatYAML
}

// LoadRuleTable reads a rule table from a YAML or TOML file, chosen by extension.
func LoadRuleTable(path string) (classify.RuleTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return classify.RuleTable{}, err
	}
	t, err := DecodeRuleTable(data, formatForPath(path))
	if err != nil {
		return classify.RuleTable{}, fmt.Errorf("%s: %w", path, err)
	}
	if t.Name == "" {
		t.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return t, nil
}

// DecodeRuleTable parses an encoded rule table.
func DecodeRuleTable(data []byte, format Format) (classify.RuleTable, error) {
	var f TableFile
	switch format {
	case FormatTOML:
		if err := toml.Unmarshal(data, &f); err != nil {
			return classify.RuleTable{}, fmt.Errorf("parse toml: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, &f); err != nil {
			return classify.RuleTable{}, fmt.Errorf("parse yaml: %w", err)
		}
	}
	return f.RuleTable(), nil
}

// EncodeRuleTable renders a rule table in the given format. The output
// decodes back to the same table.
func EncodeRuleTable(t classify.RuleTable, format Format) ([]byte, error) {
	f := FromRuleTable(t)
	switch format {
	case FormatTOML:
		var buf bytes.Buffer
		enc := toml.NewEncoder(&buf)
		if err := enc.Encode(f); err != nil {
			return nil, fmt.Errorf("encode toml: %w", err)
		}
		return buf.Bytes(), nil
	case FormatYAML:
		var buf bytes.Buffer
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(f); err != nil {
			return nil, fmt.Errorf("encode yaml: %w", err)
		}
		if err := enc.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("rule table format %q: %w", format, internalerr.ErrInvalidInput)
	}
}

// BuiltinTable returns one of the embedded rule tables ("series", "themes").
func BuiltinTable(name string) (classify.RuleTable, error) {
	data, err := builtinTables.ReadFile("tables/" + name + ".yaml")
	if err != nil {
		return classify.RuleTable{}, fmt.Errorf("builtin table %q: %w", name, internalerr.ErrNotFound)
	}
	return DecodeRuleTable(data, FormatYAML)
}

// BuiltinTableNames lists the embedded tables.
func BuiltinTableNames() []string {
	entries, err := builtinTables.ReadDir("tables")
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, strings.TrimSuffix(e.Name(), ".yaml"))
	}
	sort.Strings(names)
	return names
}
