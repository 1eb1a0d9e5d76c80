package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"go.klb.dev/clipwatch/internal/crypto"
	"go.klb.dev/clipwatch/internal/history"
	"go.klb.dev/clipwatch/internal/history/sqlitestore"
	"go.klb.dev/clipwatch/internal/ipc"
	"go.klb.dev/clipwatch/internal/logging"
	"go.klb.dev/clipwatch/internal/monitor"
	"go.klb.dev/clipwatch/internal/recorder"
	"go.klb.dev/clipwatch/internal/rpcservice"
	"go.klb.dev/clipwatch/internal/selection"
)

func newDaemonCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Watch the selections, record history and serve the control socket",
		Long: `Starts the selection monitor. Every change of the clipboard or the
primary selection is published to "clipwatch watch" clients and appended to
the history file.

history-max, paused and log-level are re-read when the config file changes.

Precedence (lowest → highest): defaults → config file → CLIPWATCH_* env vars → flags`,
		Args:    cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error { return bindViper(cmd, v) },
		RunE:    func(_ *cobra.Command, _ []string) error { return runDaemon(v) },
	}

	f := cmd.Flags()
	f.Bool("no-clipboard", false, "do not watch the clipboard")
	f.Bool("no-primary", false, "do not watch the primary selection")
	f.Bool("load-current", true, "publish the current selection contents at startup")
	f.Int("filter-min-size", 0, "ignore content of at most this many bytes")
	f.Bool("paused", false, "start with publishing disabled")
	f.Int("reconnect-attempts", 3, "backend rebuild attempts before a selection is given up")
	f.Duration("reconnect-backoff", monitor.DefaultOptions().ReconnectBackoff, "initial delay between backend rebuild attempts")
	f.Bool("no-history", false, "do not record history")
	f.String("history-file", "", "history location (default $XDG_DATA_HOME/clipwatch/history.cwhs, or history.db for sqlite)")
	f.String("history-driver", "file", "history storage: file|sqlite")
	f.Int("history-max", 50, "entries kept in history (0 = unlimited)")
	f.String("history-passphrase", "", "seal the history file with a key derived from this passphrase (file driver only)")
	addSocketFlag(cmd)
	addLoggingFlags(cmd)
	addConfigFlag(cmd)

	return cmd
}

func monitorOptions(v *viper.Viper) monitor.Options {
	opts := monitor.DefaultOptions()
	opts.EnableClipboard = !v.GetBool("no-clipboard")
	opts.EnablePrimary = !v.GetBool("no-primary")
	opts.LoadCurrent = v.GetBool("load-current")
	opts.FilterMinSize = v.GetInt("filter-min-size")
	opts.ReconnectAttempts = v.GetInt("reconnect-attempts")
	opts.ReconnectBackoff = v.GetDuration("reconnect-backoff")
	// Without a recorder nothing stays subscribed between watch clients.
	opts.StopWhenUnsubscribed = !v.GetBool("no-history")
	return opts
}

// historyFile is the configured history-file, or the driver's default location.
func historyFile(v *viper.Viper) string {
	if p := v.GetString("history-file"); p != "" {
		return p
	}
	return defaultHistoryFile(v.GetString("history-driver"))
}

func openHistory(ctx context.Context, v *viper.Viper) (history.Store[recorder.Entry], error) {
	path := historyFile(v)
	key, err := crypto.DeriveKey(v.GetString("history-passphrase"))
	if err != nil {
		return nil, err
	}
	switch driver := v.GetString("history-driver"); driver {
	case "", "file":
		return history.NewFileStore[recorder.Entry](path, key), nil
	case "sqlite":
		if key != nil {
			slog.Warn("history-passphrase is ignored by the sqlite driver")
		}
		return sqlitestore.Open[recorder.Entry](ctx, path)
	default:
		return nil, fmt.Errorf("unknown history driver %q (want file or sqlite)", driver)
	}
}

func runDaemon(v *viper.Viper) error {
	setupLogging(v)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := monitorOptions(v)
	socket := v.GetString("socket")
	slog.Info("clipwatch daemon starting",
		"version", Version,
		"clipboard", opts.EnableClipboard,
		"primary", opts.EnablePrimary,
		"filter_min_size", opts.FilterMinSize,
		"socket", socket,
	)

	ln, err := ipc.Listen(socket)
	if err != nil {
		return fmt.Errorf("listen %s: %w", socket, err)
	}

	ctrl, err := monitor.New(opts)
	if err != nil {
		ln.Close()
		return err
	}
	defer ctrl.Close()
	if v.GetBool("paused") {
		ctrl.Disable()
	}

	var (
		rec  *recorder.Recorder
		hist rpcservice.History
	)
	if !v.GetBool("no-history") {
		store, err := openHistory(ctx, v)
		if err != nil {
			ln.Close()
			return fmt.Errorf("history: %w", err)
		}
		rec = recorder.New(store, v.GetInt("history-max"))
		defer rec.Close()
		hist = rec
		if err := rec.SetMax(ctx, rec.Max()); err != nil {
			slog.Warn("trimming history failed", "err", err)
		}
		slog.Info("recording history", "file", historyFile(v), "driver", v.GetString("history-driver"), "max", rec.Max())
	}

	watchConfig(v, reloader(ctrl, rec, v.GetBool("paused")))

	// The recorder subscribes before the watchers start so it receives the
	// startup content.
	g, ctx := errgroup.WithContext(ctx)
	if rec != nil {
		rx := ctrl.Subscribe()
		g.Go(func() error { return rec.Run(ctx, rx) })
	}
	ctrl.Start()
	watched := ctrl.Active()
	g.Go(func() error { return rpcservice.Serve(ctx, ln, rpcservice.New(ctrl, hist)) })
	g.Go(func() error { return supervise(ctx, ctrl, watched) })

	slog.Info("IPC socket listening", "path", socket)
	err = g.Wait()
	slog.Info("clipwatch daemon stopped")
	return err
}

// supervise logs watchers that gave up and fails once all watched selections
// are lost.
func supervise(ctx context.Context, ctrl *monitor.Controller, watched int) error {
	failed := make(map[selection.Kind]bool)
	for {
		select {
		case <-ctx.Done():
			return nil
		case err, ok := <-ctrl.Errors():
			if !ok {
				return nil
			}
			var initErr *monitor.BackendInitError
			if !errors.As(err, &initErr) {
				slog.Error("selection watcher failed", "err", err)
				continue
			}
			failed[initErr.Selection] = true
			slog.Error("selection no longer watched", "selection", initErr.Selection.String(), "err", initErr.Err)
			if len(failed) >= watched {
				return fmt.Errorf("no selection left to watch: %w", err)
			}
		}
	}
}

// reloader applies the hot-reloadable keys. paused is only acted on when its
// configured value changes, so a runtime toggle is not undone by unrelated
// edits.
func reloader(ctrl *monitor.Controller, rec *recorder.Recorder, paused bool) func(*viper.Viper) {
	return func(v *viper.Viper) {
		if p := v.GetBool("paused"); p != paused {
			paused = p
			if p {
				ctrl.Disable()
			} else {
				ctrl.Enable()
			}
		}
		if lvl := v.GetString("log-level"); lvl != "" {
			logging.SetLevel(logging.ParseLevel(lvl))
		}
		if rec != nil {
			if n := v.GetInt("history-max"); n != rec.Max() {
				if err := rec.SetMax(context.Background(), n); err != nil {
					slog.Error("applying history-max failed", "err", err)
					return
				}
				slog.Info("history limit changed", "max", n)
			}
		}
	}
}
