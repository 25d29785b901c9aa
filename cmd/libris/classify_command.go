package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/cognicore/libris/pkg/libris"
)

func newClassifyCommand(ctx *commandContext) *cobra.Command {
	var (
		tableName string
		dryRun    bool
		jsonOut   bool
	)

	cmd := &cobra.Command{
		Use:   "classify",
		Short: "Label every book and write the groups of each rule table",
		Long: "Classify runs each configured rule table over the catalog in order.\n" +
			"Records are enriched in place and every table writes its own group list.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tables, err := ctx.resolveTables(tableName)
			if err != nil {
				return err
			}
			return ctx.withEngine(cmd.Context(), func(engine *libris.Libris) error {
				summaries := make([]libris.Summary, 0, len(tables))
				switch {
				case dryRun:
					for _, t := range tables {
						sum, err := previewSummary(cmd, engine, t)
						if err != nil {
							return fmt.Errorf("table %s: %w", t, err)
						}
						summaries = append(summaries, sum)
					}
				case tableName == "":
					if summaries, err = engine.RunAll(cmd.Context()); err != nil {
						return err
					}
				default:
					sum, err := engine.Run(cmd.Context(), tables[0])
					if err != nil {
						return fmt.Errorf("table %s: %w", tables[0], err)
					}
					summaries = append(summaries, sum)
				}
				if jsonOut {
					return writeJSON(cmd, summaries)
				}
				printSummaries(cmd, summaries, dryRun)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&tableName, "table", "t", "", "Only run this rule table")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Classify without writing anything")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit JSON output")
	return cmd
}

func previewSummary(cmd *cobra.Command, engine *libris.Libris, table string) (libris.Summary, error) {
	start := time.Now()
	res, err := engine.Preview(cmd.Context(), table)
	if err != nil {
		return libris.Summary{}, err
	}
	sum := libris.Summary{
		Table:     table,
		StartedAt: start,
		Records:   len(res.Records),
		Groups:    len(res.Groups),
		Duration:  time.Since(start),
	}
	for _, m := range res.Matches {
		if m.Default() {
			sum.Defaults++
		}
	}
	return sum, nil
}

func printSummaries(cmd *cobra.Command, summaries []libris.Summary, dryRun bool) {
	rows := make([][]string, 0, len(summaries))
	for _, s := range summaries {
		runID := s.RunID
		if dryRun {
			runID = "(dry run)"
		}
		rows = append(rows, []string{
			s.Table,
			strconv.Itoa(s.Records),
			strconv.Itoa(s.Groups),
			strconv.Itoa(s.Defaults),
			s.Duration.Round(time.Millisecond).String(),
			runID,
		})
	}
	fmt.Fprintln(cmd.OutOrStdout(), renderTable(
		[]string{"Table", "Books", "Groups", "Unmatched", "Duration", "Run"},
		rows,
		1, 2, 3, 4,
	))
}
