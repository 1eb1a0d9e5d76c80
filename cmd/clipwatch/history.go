package main

import (
	"context"
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go.klb.dev/clipwatch/internal/recorder"
)

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect or clear the recorded history",
	}
	cmd.AddCommand(newHistoryListCmd(), newHistoryClearCmd())
	return cmd
}

func newHistoryListCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:     "list",
		Short:   "List recorded entries, oldest first",
		Args:    cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error { return bindViper(cmd, v) },
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, conn, err := dialDaemon(v)
			if err != nil {
				return err
			}
			defer conn.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), rpcTimeout)
			defer cancel()
			entries, err := client.ListHistory(ctx, v.GetInt("limit"))
			if err != nil {
				return fmt.Errorf("list history: %w", err)
			}

			if v.GetBool("json") {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(entries)
			}
			return printEntries(cmd, entries, time.Now())
		},
	}
	f := cmd.Flags()
	f.Int("limit", 0, "show only the newest N entries (0 = all)")
	f.Bool("json", false, "output JSON")
	addSocketFlag(cmd)
	addConfigFlag(cmd)
	return cmd
}

func printEntries(cmd *cobra.Command, entries []recorder.Entry, now time.Time) error {
	if len(entries) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "History is empty.")
		return nil
	}
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 1, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "ID\tSELECTION\tCAPTURED\tSIZE\tCONTENT\n")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n",
			e.ID.String()[:8], e.Selection, fmtAge(now, e.CapturedAt), len(e.Content), preview(e.Content, 60))
	}
	return tw.Flush()
}

func newHistoryClearCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:     "clear",
		Short:   "Remove every recorded entry",
		Args:    cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error { return bindViper(cmd, v) },
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, conn, err := dialDaemon(v)
			if err != nil {
				return err
			}
			defer conn.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), rpcTimeout)
			defer cancel()
			if err := client.ClearHistory(ctx); err != nil {
				return fmt.Errorf("clear history: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "History cleared.")
			return nil
		},
	}
	addSocketFlag(cmd)
	addConfigFlag(cmd)
	return cmd
}
