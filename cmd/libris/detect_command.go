package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

type detection struct {
	Table string `json:"table"`
	Label string `json:"label"`
	ID    string `json:"id"`
	Rule  int    `json:"rule"`
}

func newDetectCommand(ctx *commandContext) *cobra.Command {
	var (
		tableName string
		jsonOut   bool
	)

	cmd := &cobra.Command{
		Use:   "detect <text...>",
		Short: "Show which label a filename or title gets",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tables, err := ctx.resolveTables(tableName)
			if err != nil {
				return err
			}
			comp, err := ctx.ensureComponents()
			if err != nil {
				return err
			}

			text := strings.Join(args, " ")
			out := make([]detection, 0, len(tables))
			for _, t := range tables {
				m := comp.Classifiers[t].Match(text)
				out = append(out, detection{Table: t, Label: m.Label, ID: m.ID, Rule: m.Rule})
			}
			if jsonOut {
				return writeJSON(cmd, out)
			}

			rows := make([][]string, 0, len(out))
			for _, d := range out {
				rule := "default"
				if d.Rule >= 0 {
					rule = "#" + strconv.Itoa(d.Rule+1)
				}
				rows = append(rows, []string{d.Table, d.Label, d.ID, rule})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Table", "Label", "ID", "Rule"}, rows))
			return nil
		},
	}

	cmd.Flags().StringVarP(&tableName, "table", "t", "", "Only use this rule table")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit JSON output")
	return cmd
}
