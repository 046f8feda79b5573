package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jonathan/daily-brief/internal/observability"
)

func newTraceCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Inspect stored run traces",
	}

	var jsonOut bool
	show := &cobra.Command{
		Use:   "show <run_id>",
		Short: "Print the trace of a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := openBackend(cmd.Context(), root.cfg)
			if err != nil {
				return err
			}
			defer b.close()

			t, err := b.traces.Load(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if jsonOut {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(t)
			}
			printer := observability.NewPrinter(cmd.OutOrStdout())
			if t.Expansion != nil {
				printer.PrintExpansion(*t.Expansion)
			}
			printer.PrintScored(t.Scored)
			printer.PrintTrace(t)
			return nil
		},
	}
	show.Flags().BoolVar(&jsonOut, "json", false, "Print the trace as JSON")

	var user string
	var limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "List recent run ids for a user",
		RunE: func(cmd *cobra.Command, _ []string) error {
			b, err := openBackend(cmd.Context(), root.cfg)
			if err != nil {
				return err
			}
			defer b.close()

			if b.runs == nil {
				return errors.New("listing runs requires the sqlite or postgres storage driver")
			}
			ids, err := b.runs.RecentRuns(cmd.Context(), user, limit)
			if err != nil {
				return err
			}
			for _, id := range ids {
				fmt.Fprintln(cmd.OutOrStdout(), id)
			}
			return nil
		},
	}
	list.Flags().StringVarP(&user, "user", "u", defaultUser, "Profile user id")
	list.Flags().IntVar(&limit, "limit", 10, "Maximum number of runs")

	cmd.AddCommand(show, list)
	return cmd
}
