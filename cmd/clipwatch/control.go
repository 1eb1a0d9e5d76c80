package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"go.klb.dev/clipwatch/internal/rpcservice"
)

// newStateCmd builds enable, disable and toggle. Each prints the resulting
// state.
func newStateCmd(name, short string) *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:     name,
		Short:   short,
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
			calls := map[string]func(context.Context) (string, error){
				"enable":  client.Enable,
				"disable": client.Disable,
				"toggle":  client.Toggle,
			}
			state, err := calls[name](ctx)
			if err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), state)
			return nil
		},
	}
	addSocketFlag(cmd)
	addConfigFlag(cmd)
	return cmd
}

func newStatusCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show whether the daemon is running and publishing",
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			return bindViper(cmd, v)
		},
		RunE: func(cmd *cobra.Command, _ []string) error { return runStatus(cmd, v) },
	}
	cmd.Flags().Bool("json", false, "output JSON")
	addSocketFlag(cmd)
	addConfigFlag(cmd)
	return cmd
}

type statusReport struct {
	Socket  string `json:"socket"`
	State   string `json:"state"`
	History *int   `json:"history_entries,omitempty"`
}

func runStatus(cmd *cobra.Command, v *viper.Viper) error {
	client, conn, err := dialDaemon(v)
	if err != nil {
		return err
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), rpcTimeout)
	defer cancel()
	report, err := fetchStatus(ctx, client)
	if err != nil {
		return err
	}
	report.Socket = v.GetString("socket")

	if v.GetBool("json") {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 1, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Socket:\t%s\n", report.Socket)
	fmt.Fprintf(w, "State:\t%s\n", report.State)
	if report.History != nil {
		fmt.Fprintf(w, "History:\t%d entries\n", *report.History)
	} else {
		fmt.Fprintf(w, "History:\tdisabled\n")
	}
	return w.Flush()
}

func fetchStatus(ctx context.Context, client *rpcservice.Client) (statusReport, error) {
	state, err := client.State(ctx)
	if err != nil {
		return statusReport{}, fmt.Errorf("state: %w", err)
	}
	report := statusReport{State: state}

	entries, err := client.ListHistory(ctx, 0)
	switch {
	case status.Code(err) == codes.Unavailable:
	case err != nil:
		fmt.Fprintf(os.Stderr, "warning: history unavailable: %v\n", err)
	default:
		n := len(entries)
		report.History = &n
	}
	return report, nil
}
