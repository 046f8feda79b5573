package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jonathan/daily-brief/internal/observability"
	"github.com/jonathan/daily-brief/internal/types"
)

func newProfileCmd(root *rootOptions) *cobra.Command {
	var user string
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Inspect or reset a preference profile",
	}
	cmd.PersistentFlags().StringVarP(&user, "user", "u", defaultUser, "Profile user id")

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the stored profile",
		RunE: func(cmd *cobra.Command, _ []string) error {
			b, err := openBackend(cmd.Context(), root.cfg)
			if err != nil {
				return err
			}
			defer b.close()

			p, err := b.profiles.Get(cmd.Context(), user)
			if err != nil {
				return err
			}
			if jsonOut {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(p)
			}
			observability.NewPrinter(cmd.OutOrStdout()).PrintProfile(p)
			return nil
		},
	}
	show.Flags().BoolVar(&jsonOut, "json", false, "Print the profile as JSON")

	reset := &cobra.Command{
		Use:   "reset",
		Short: "Replace the profile with the defaults",
		RunE: func(cmd *cobra.Command, _ []string) error {
			b, err := openBackend(cmd.Context(), root.cfg)
			if err != nil {
				return err
			}
			defer b.close()

			current, err := b.profiles.Get(cmd.Context(), user)
			if err != nil {
				return err
			}
			fresh := types.NewProfile(user)
			fresh.Version = current.Version + 1
			fresh.UpdatedAt = time.Now().UTC()
			if err := b.profiles.Put(cmd.Context(), user, fresh); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Profile %s reset (version %d)\n", user, fresh.Version)
			return nil
		},
	}

	cmd.AddCommand(show, reset)
	return cmd
}
