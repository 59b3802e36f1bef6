package main

import (
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"pronto-ballbot/internal/catalog"
	"pronto-ballbot/internal/config"
	"pronto-ballbot/internal/directory"
)

func newLookupUserCmd() *cobra.Command {
	return &cobra.Command{
		Use:          "lookup-user <full name>",
		Short:        "Print the user id for a member's full name",
		Args:         cobra.MinimumNArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			members, err := directory.Load(cfg.Game.MembersPath, nil)
			if err != nil {
				return err
			}

			name := strings.Join(args, " ")
			id, ok := members.LookupID(name)
			if !ok {
				return fmt.Errorf("no member named %q in %s", name, cfg.Game.MembersPath)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), id)
			return err
		},
	}
}

func newCatalogCmd() *cobra.Command {
	return &cobra.Command{
		Use:          "catalog",
		Short:        "List the catalog entries the bot would spawn",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			c, err := catalog.Load(cfg.Game.CatalogPath)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tRARITY\tALIASES\tIMAGE")
			for _, e := range c.Entries() {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", e.OfficialName, e.Rarity, strings.Join(e.Aliases, ", "), e.ImageRef)
			}
			return tw.Flush()
		},
	}
}

func newMembersCmd() *cobra.Command {
	return &cobra.Command{
		Use:          "members",
		Short:        "List the members a give can target",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			members, err := directory.Load(cfg.Game.MembersPath, nil)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME")
			for _, m := range members.Members() {
				fmt.Fprintf(tw, "%s\t%s\n", m.ID, m.FullName)
			}
			return tw.Flush()
		},
	}
}

func newCursorCmd() *cobra.Command {
	var reset, clearCache bool

	cmd := &cobra.Command{
		Use:          "cursor",
		Short:        "Show or reset the persisted poll cursor",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.Poll.CursorStore != "redis" {
				return errors.New("the cursor is only persisted with CURSOR_STORE=redis")
			}

			ctx := cmd.Context()
			store, c, err := openCursorStore(ctx, cfg, nil)
			if err != nil {
				return err
			}
			defer c.Close()

			out := cmd.OutOrStdout()
			switch {
			case clearCache:
				if err := c.Clear(ctx); err != nil {
					return fmt.Errorf("failed to clear cache: %w", err)
				}
				_, err = fmt.Fprintln(out, "cache cleared")
				return err
			case reset:
				removed, err := store.Reset(ctx)
				if err != nil {
					return fmt.Errorf("failed to reset cursor: %w", err)
				}
				if !removed {
					_, err = fmt.Fprintln(out, "no cursor stored")
					return err
				}
				_, err = fmt.Fprintln(out, "cursor reset")
				return err
			}

			id, err := store.LoadCursor(ctx)
			if err != nil {
				return fmt.Errorf("failed to read cursor: %w", err)
			}
			if id.IsZero() {
				_, err = fmt.Fprintln(out, "no cursor stored")
				return err
			}
			_, err = fmt.Fprintln(out, id)
			return err
		},
	}

	cmd.Flags().BoolVar(&reset, "reset", false, "delete the stored cursor")
	cmd.Flags().BoolVar(&clearCache, "clear-cache", false, "delete the cursor and every cached upload")
	return cmd
}
