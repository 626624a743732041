package cli

import (
	"context"
	"fmt"
	"io"
	"iter"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/xela07ax/demonlist-history/internal/domain"
	"github.com/xela07ax/demonlist-history/internal/history"
)

func newHistoryCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "history <demon-id>",
		Short: "Print the position history table of a demon",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			demonID, err := parseDemonID(args[0])
			if err != nil {
				return err
			}
			src, err := opts.source()
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 2*opts.timeout)
			defer cancel()

			extended, err := opts.resolveExtendedListSize(ctx, src)
			if err != nil {
				return err
			}
			events, err := src.movements.Movements(ctx, demonID)
			if err != nil {
				return err
			}

			projector := history.NewProjector(extended)
			out := cmd.OutOrStdout()
			if opts.output == "json" {
				return printJSON(out, projector.Project(events))
			}
			return printHistoryTable(out, projector.Rows(events))
		},
	}
}

func printHistoryTable(w io.Writer, rows iter.Seq[domain.DisplayRow]) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "DATE\tCHANGE\tNEW POSITION\tREASON")
	for row := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", row.Date, row.Delta.Text(), row.Position.Text(), row.Reason)
	}
	return tw.Flush()
}
