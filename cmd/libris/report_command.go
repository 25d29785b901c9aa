package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/cognicore/libris/pkg/libris"
	"github.com/cognicore/libris/pkg/libris/analytics"
)

func newReportCommand(ctx *commandContext) *cobra.Command {
	var (
		tableName string
		top       int
		jsonOut   bool
	)

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Rule hit counts and largest groups of a rule table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := ctx.resolveTables(tableName); err != nil {
				return err
			}
			return ctx.withEngine(cmd.Context(), func(engine *libris.Libris) error {
				rep, err := engine.Report(cmd.Context(), tableName, top)
				if err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(cmd, rep)
				}
				printReport(cmd, rep)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&tableName, "table", "t", "", "Rule table")
	cmd.Flags().IntVar(&top, "top", analytics.DefaultTopGroups, "Number of groups to list (0 for all)")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit JSON output")
	_ = cmd.MarkFlagRequired("table")
	return cmd
}

func printReport(cmd *cobra.Command, rep analytics.Report) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s: %d books in %d groups, %d unmatched (%.1f%%)\n",
		rep.Table, rep.Records, rep.Groups, rep.DefaultCount, rep.DefaultShare*100)

	rows := make([][]string, 0, len(rep.RuleHits))
	for _, h := range rep.RuleHits {
		rows = append(rows, []string{strconv.Itoa(h.Rule + 1), h.Label, strconv.FormatInt(h.Hits, 10)})
	}
	fmt.Fprintln(out, renderTable([]string{"#", "Label", "Hits"}, rows, 0, 2))

	rows = rows[:0]
	for _, g := range rep.Largest {
		rows = append(rows, []string{g.ID, g.Label, strconv.FormatInt(g.Size, 10)})
	}
	fmt.Fprintln(out, renderTable([]string{"Group", "Label", "Books"}, rows, 2))

	if dead := rep.DeadRules(); len(dead) > 0 {
		fmt.Fprintf(out, "%d rule(s) matched nothing\n", len(dead))
	}
}
