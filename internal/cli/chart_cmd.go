package cli

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/xela07ax/demonlist-history/internal/history"
)

func newChartCmd(opts *options) *cobra.Command {
	var current int

	cmd := &cobra.Command{
		Use:   "chart <demon-id>",
		Short: "Print the position chart points of a demon",
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

			ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
			defer cancel()

			events, err := src.movements.Movements(ctx, demonID)
			if err != nil {
				return err
			}

			var now *int
			if cmd.Flags().Changed("current") {
				now = &current
			}
			chart := history.Chart(events, now)

			out := cmd.OutOrStdout()
			if opts.output == "json" {
				return printJSON(out, chart)
			}
			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "LABEL\tPOSITION")
			for i, label := range chart.Labels {
				fmt.Fprintf(tw, "%s\t%d\n", label, chart.Data[i])
			}
			return tw.Flush()
		},
	}

	cmd.Flags().IntVar(&current, "current", 0, "Current position for the final \"Now\" point")
	return cmd
}
