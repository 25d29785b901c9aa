package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/cognicore/libris/pkg/libris"
)

func newGroupsCommand(ctx *commandContext) *cobra.Command {
	var (
		tableName string
		jsonOut   bool
	)

	cmd := &cobra.Command{
		Use:   "groups",
		Short: "Show the saved groups of a rule table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := ctx.resolveTables(tableName); err != nil {
				return err
			}
			return ctx.withEngine(cmd.Context(), func(engine *libris.Libris) error {
				groups, err := engine.Groups(cmd.Context(), tableName)
				if err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(cmd, groups)
				}
				rows := make([][]string, 0, len(groups))
				for _, g := range groups {
					rows = append(rows, []string{g.ID, g.Label, strconv.Itoa(g.Len()), g.CoverURL})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"ID", "Label", "Books", "Cover"},
					rows,
					2,
				))
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&tableName, "table", "t", "", "Rule table")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit JSON output")
	_ = cmd.MarkFlagRequired("table")
	return cmd
}
