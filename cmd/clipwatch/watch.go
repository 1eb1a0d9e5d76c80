package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func newWatchCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print selection changes as the daemon publishes them",
		Long: `Streams every change the daemon publishes until interrupted. Changes
made while the monitor is disabled are not shown.`,
		Args:    cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error { return bindViper(cmd, v) },
		RunE:    func(cmd *cobra.Command, _ []string) error { return runWatch(cmd, v) },
	}
	f := cmd.Flags()
	f.String("selection", "", "only show this selection: clipboard|primary")
	f.Bool("json", false, "print one JSON object per change")
	addSocketFlag(cmd)
	addConfigFlag(cmd)
	return cmd
}

func runWatch(cmd *cobra.Command, v *viper.Viper) error {
	client, conn, err := dialDaemon(v)
	if err != nil {
		return err
	}
	defer conn.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	stream, err := client.Watch(ctx, v.GetString("selection"))
	if err != nil {
		return fmt.Errorf("watch: %w", err)
	}

	out := cmd.OutOrStdout()
	enc := json.NewEncoder(out)
	for {
		ev, err := stream.Recv()
		if err != nil {
			if ctx.Err() != nil || status.Code(err) == codes.Canceled {
				return nil
			}
			return fmt.Errorf("watch: %w", err)
		}
		if v.GetBool("json") {
			if err := enc.Encode(ev); err != nil {
				return err
			}
			continue
		}
		fmt.Fprintf(out, "[%s] %s\n", ev.Selection, preview(ev.Content, 100))
	}
}
