package main

import "github.com/spf13/cobra"

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "ballbot",
		Short:        "Collectible ball game bot for a Pronto channel",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBot(cmd.Context())
		},
	}

	cmd.AddCommand(newLookupUserCmd())
	cmd.AddCommand(newCatalogCmd())
	cmd.AddCommand(newMembersCmd())
	cmd.AddCommand(newCursorCmd())

	return cmd
}
