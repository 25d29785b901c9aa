package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/cognicore/libris/pkg/libris"
	"github.com/cognicore/libris/pkg/libris/catalog"
	"github.com/cognicore/libris/pkg/libris/source/htmlindex"
)

func newImportCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Add new books to the catalog",
	}
	cmd.AddCommand(newImportHTMLCommand(ctx))
	return cmd
}

func newImportHTMLCommand(ctx *commandContext) *cobra.Command {
	var base string

	cmd := &cobra.Command{
		Use:   "html <file|->",
		Short: "Import every PDF linked from an HTML page",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var r io.Reader = cmd.InOrStdin()
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return fmt.Errorf("open %s: %w", args[0], err)
				}
				defer f.Close()
				r = f
			}
			records, err := htmlindex.Parse(r, base)
			if err != nil {
				return err
			}
			return importRecords(cmd, ctx, records)
		},
	}

	cmd.Flags().StringVar(&base, "base", "", "Base URL for relative links")
	return cmd
}

func importRecords(cmd *cobra.Command, ctx *commandContext, records []catalog.Record) error {
	return ctx.withEngine(cmd.Context(), func(engine *libris.Libris) error {
		added, err := engine.Import(cmd.Context(), records)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "found %d PDF(s), added %d\n", len(records), added)
		return nil
	})
}
