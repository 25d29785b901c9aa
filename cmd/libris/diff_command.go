package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cognicore/libris/pkg/libris"
	"github.com/cognicore/libris/pkg/libris/maintenance"
)

func newDiffCommand(ctx *commandContext) *cobra.Command {
	var (
		tableName string
		jsonOut   bool
	)

	cmd := &cobra.Command{
		Use:   "diff",
		Short: "Preview label changes the current rules would make",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tables, err := ctx.resolveTables(tableName)
			if err != nil {
				return err
			}
			return ctx.withEngine(cmd.Context(), func(engine *libris.Libris) error {
				results := make(map[string]maintenance.Result, len(tables))
				for _, t := range tables {
					res, err := engine.Diff(cmd.Context(), t)
					if err != nil {
						return fmt.Errorf("table %s: %w", t, err)
					}
					results[t] = res
				}
				if jsonOut {
					return writeJSON(cmd, results)
				}

				out := cmd.OutOrStdout()
				for _, t := range tables {
					res := results[t]
					fmt.Fprintf(out, "%s: %d of %d books would change (%d unlabeled)\n", t, res.Changed, res.Processed, res.Unlabeled)
					if len(res.Changes) == 0 {
						continue
					}
					rows := make([][]string, 0, len(res.Changes))
					for _, c := range res.Changes {
						rows = append(rows, []string{c.Filename, valueOrDash(c.OldLabel), c.NewLabel})
					}
					fmt.Fprintln(out, renderTable([]string{"Book", "Current", "New"}, rows))
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&tableName, "table", "t", "", "Only check this rule table")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit JSON output")
	return cmd
}

func valueOrDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
