package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/cognicore/libris/pkg/libris/classify"
	"github.com/cognicore/libris/pkg/libris/config"
	"github.com/cognicore/libris/pkg/libris/maintenance"
)

func newRulesCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "List configured rule tables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			comp, err := ctx.ensureComponents()
			if err != nil {
				return err
			}
			rows := make([][]string, 0, len(comp.Tables))
			for _, name := range comp.Tables {
				t := comp.Classifiers[name].Table()
				rows = append(rows, []string{
					name,
					strconv.Itoa(len(t.Rules)),
					t.DefaultLabel,
					t.LabelField,
					t.IDField,
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Table", "Rules", "Default", "Label field", "ID field"},
				rows,
				1,
			))
			return nil
		},
	}
	cmd.AddCommand(newRulesExportCommand(ctx))
	return cmd
}

func newRulesExportCommand(ctx *commandContext) *cobra.Command {
	var (
		tableName string
		format    string
		output    string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write a rule table as YAML or TOML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := config.ParseFormat(format)
			if err != nil {
				return err
			}
			tables, err := ctx.resolveTables(tableName)
			if err != nil {
				return err
			}
			comp, err := ctx.ensureComponents()
			if err != nil {
				return err
			}

			table := comp.Classifiers[tables[0]].Table()
			if output == "" {
				exporter := maintenance.RuleExporter{Writer: maintenance.StreamWriter{W: cmd.OutOrStdout()}}
				return exporter.Export(cmd.Context(), table, f)
			}
			return exportToFile(cmd.Context(), output, table, f)
		},
	}

	cmd.Flags().StringVarP(&tableName, "table", "t", "", "Rule table to export")
	cmd.Flags().StringVarP(&format, "format", "f", "yaml", "Output format (yaml, toml)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write to this file instead of stdout")
	_ = cmd.MarkFlagRequired("table")
	return cmd
}

// exportToFile writes the table next to path and renames it into place, so
// a failed export leaves any previous file untouched.
func exportToFile(ctx context.Context, path string, table classify.RuleTable, f config.Format) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	exporter := maintenance.RuleExporter{Writer: maintenance.StreamWriter{W: tmp}}
	if err = exporter.Export(ctx, table, f); err != nil {
		return err
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmp.Name(), err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename to %s: %w", path, err)
	}
	return nil
}
