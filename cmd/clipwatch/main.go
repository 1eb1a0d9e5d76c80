// clipwatch: watches the clipboard and primary selection and keeps a history.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"go.klb.dev/clipwatch/internal/logging"
)

// Version is set at build time via -ldflags "-X main.Version=x.y.z".
var Version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "clipwatch",
		Short: "Selection monitor and clipboard history",
		Long: `clipwatch follows the system clipboard and the X11/Wayland primary
selection, publishes every change to subscribers and records it in a
history file.

Run "clipwatch daemon" once per session. The other commands talk to the
daemon over its local socket.

Config file search order (first found wins):
  /etc/clipwatch/clipwatch.toml
  $HOME/.config/clipwatch/clipwatch.toml
  path supplied via --config

All flags can be set via CLIPWATCH_<FLAG> env vars or config-file keys.`,
		SilenceUsage: true,
	}

	root.AddCommand(
		newDaemonCmd(),
		newStatusCmd(),
		newStateCmd("enable", "Resume publishing selection changes"),
		newStateCmd("disable", "Stop publishing selection changes (watchers keep running)"),
		newStateCmd("toggle", "Flip between enabled and disabled"),
		newWatchCmd(),
		newHistoryCmd(),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "clipwatch %s\n", Version)
		},
	}
}

// resolveLogging sets up the global slog logger after flags are parsed.
func resolveLogging(interactive bool, formatStr, levelStr string) {
	format := logging.ParseFormat(formatStr)
	level := logging.ParseLevel(levelStr)
	if levelStr == "" {
		if interactive {
			level = slog.LevelDebug
		} else {
			level = slog.LevelInfo
		}
	}
	logging.Setup(format, level)
}
