package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var feedsCmd = &cobra.Command{
	Use:   "feeds",
	Short: "Manage the feed registry",
}

var feedsListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List registered feeds and their last poll result",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		feeds, err := application.Registry.ListFeeds(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to list feeds: %w", err)
		}
		if len(feeds) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No feeds registered.")
			return nil
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "URL\tACTIVE\tLAST CHECKED\tLAST ERROR")
		for _, f := range feeds {
			checked := "never"
			if f.LastChecked != nil {
				checked = f.LastChecked.Local().Format(time.DateTime)
			}
			fmt.Fprintf(tw, "%s\t%t\t%s\t%s\n", f.URL, f.IsActive, checked, f.LastError)
		}
		return tw.Flush()
	},
}

var feedsAddCmd = &cobra.Command{
	Use:   "add <url>",
	Short: "Register a feed (or re-activate it)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := application.Registry.AddFeed(cmd.Context(), args[0]); err != nil {
			return fmt.Errorf("failed to add feed: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Added %s\n", args[0])
		return nil
	},
}

var feedsDisableCmd = &cobra.Command{
	Use:   "disable <url>",
	Short: "Stop polling a feed without removing it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := application.Registry.SetActive(cmd.Context(), args[0], false); err != nil {
			return fmt.Errorf("failed to disable feed: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Disabled %s\n", args[0])
		return nil
	},
}

func init() {
	feedsCmd.AddCommand(feedsListCmd, feedsAddCmd, feedsDisableCmd)
}
