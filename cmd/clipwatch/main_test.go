package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go.klb.dev/clipwatch/internal/clip"
	"go.klb.dev/clipwatch/internal/history"
	"go.klb.dev/clipwatch/internal/history/sqlitestore"
	"go.klb.dev/clipwatch/internal/monitor"
	"go.klb.dev/clipwatch/internal/recorder"
	"go.klb.dev/clipwatch/internal/selection"
)

// daemonViper binds the daemon's flags with args applied, without running it.
func daemonViper(t *testing.T, args ...string) *viper.Viper {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	cmd := newDaemonCmd()
	if err := cmd.ParseFlags(args); err != nil {
		t.Fatal(err)
	}
	v := viper.New()
	if err := bindViper(cmd, v); err != nil {
		t.Fatal(err)
	}
	return v
}

func TestMonitorOptionsFromFlags(t *testing.T) {
	v := daemonViper(t, "--no-primary", "--filter-min-size=4", "--load-current=false", "--reconnect-backoff=250ms")
	opts := monitorOptions(v)
	if !opts.EnableClipboard || opts.EnablePrimary {
		t.Fatalf("selections: clipboard=%v primary=%v", opts.EnableClipboard, opts.EnablePrimary)
	}
	if opts.FilterMinSize != 4 || opts.LoadCurrent {
		t.Fatalf("unexpected options %+v", opts)
	}
	if opts.ReconnectBackoff != 250*time.Millisecond || opts.ReconnectAttempts != 3 {
		t.Fatalf("reconnect: %v x%d", opts.ReconnectBackoff, opts.ReconnectAttempts)
	}
	if !opts.StopWhenUnsubscribed {
		t.Fatal("with the recorder subscribed, an unheard watcher should stop")
	}
	if monitorOptions(daemonViper(t, "--no-history")).StopWhenUnsubscribed {
		t.Fatal("without history a watcher must outlive its watch clients")
	}
}

func TestEnvOverridesConfigFile(t *testing.T) {
	dir := t.TempDir()
	cfg := filepath.Join(dir, "clipwatch.toml")
	if err := os.WriteFile(cfg, []byte("filter-min-size = 7\nhistory-max = 10\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CLIPWATCH_HISTORY_MAX", "20")

	v := daemonViper(t, "--config="+cfg)
	if got := v.GetInt("filter-min-size"); got != 7 {
		t.Fatalf("filter-min-size = %d, want 7 from config", got)
	}
	if got := v.GetInt("history-max"); got != 20 {
		t.Fatalf("history-max = %d, want 20 from env", got)
	}
}

func TestDefaultHistoryFile(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "/data")
	if got := defaultHistoryFile("file"); got != filepath.Join("/data", "clipwatch", "history.cwhs") {
		t.Fatalf("got %q", got)
	}
	if got := defaultHistoryFile("sqlite"); got != filepath.Join("/data", "clipwatch", "history.db") {
		t.Fatalf("got %q", got)
	}
	t.Setenv("XDG_DATA_HOME", "")
	t.Setenv("HOME", "/home/someone")
	if got := defaultHistoryFile("file"); !strings.HasSuffix(got, filepath.Join(".local", "share", "clipwatch", "history.cwhs")) {
		t.Fatalf("got %q", got)
	}
}

func TestHistoryFileFollowsDriver(t *testing.T) {
	v := daemonViper(t)
	if got := historyFile(v); filepath.Base(got) != "history.cwhs" {
		t.Fatalf("file driver default = %q", got)
	}
	v = daemonViper(t, "--history-driver=sqlite")
	if got := historyFile(v); filepath.Base(got) != "history.db" {
		t.Fatalf("sqlite driver default = %q", got)
	}
	v = daemonViper(t, "--history-file=/tmp/mine.cwhs", "--history-driver=sqlite")
	if got := historyFile(v); got != "/tmp/mine.cwhs" {
		t.Fatalf("explicit path = %q", got)
	}
}

func TestOpenHistoryDrivers(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	v := daemonViper(t, "--history-file="+filepath.Join(dir, "h.db"))
	s, err := openHistory(ctx, v)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := s.(*history.FileStore[recorder.Entry]); !ok {
		t.Fatalf("file driver gave %T", s)
	}

	v = daemonViper(t, "--history-driver=sqlite", "--history-file="+filepath.Join(dir, "h.sqlite"))
	s, err = openHistory(ctx, v)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	if _, ok := s.(*sqlitestore.Store[recorder.Entry]); !ok {
		t.Fatalf("sqlite driver gave %T", s)
	}

	v = daemonViper(t, "--history-driver=csv")
	if _, err := openHistory(ctx, v); err == nil {
		t.Fatal("unknown driver accepted")
	}
}

func TestReloaderAppliesChangedKeys(t *testing.T) {
	ctx := context.Background()
	ctrl, err := monitor.New(monitor.Options{})
	if err != nil {
		t.Fatal(err)
	}
	defer ctrl.Close()

	store := history.NewFileStore[recorder.Entry](filepath.Join(t.TempDir(), "h.db"), nil)
	rec := recorder.New(store, 10)
	for _, c := range []string{"a", "b", "c"} {
		rec.Record(ctx, monitor.Event{Content: c})
	}

	apply := reloader(ctrl, rec, false)
	v := viper.New()
	v.Set("paused", true)
	v.Set("history-max", 2)
	apply(v)

	if ctrl.State() != monitor.Disabled {
		t.Fatal("paused = true should disable the monitor")
	}
	entries, _ := rec.List(ctx, 0)
	if rec.Max() != 2 || len(entries) != 2 {
		t.Fatalf("max=%d entries=%d", rec.Max(), len(entries))
	}

	// A toggle at runtime survives a reload that leaves paused unchanged.
	ctrl.Enable()
	apply(v)
	if ctrl.State() != monitor.Enabled {
		t.Fatal("unchanged paused key overrode a runtime enable")
	}
}

func TestSuperviseStopsWithContextAndClose(t *testing.T) {
	ctrl, err := monitor.New(monitor.Options{})
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := supervise(ctx, ctrl, ctrl.Active()); err != nil {
		t.Fatalf("canceled: %v", err)
	}

	ctrl.Close()
	if err := supervise(context.Background(), ctrl, ctrl.Active()); err != nil {
		t.Fatalf("closed: %v", err)
	}
}

var errDisplayGone = errors.New("display gone")

// lostSelection builds one working backend; every rebuild after that fails.
type lostSelection struct {
	builds atomic.Int32
	fail   chan error
}

func newLostSelection() *lostSelection { return &lostSelection{fail: make(chan error)} }

func (s *lostSelection) factory() (clip.Backend, error) {
	if s.builds.Add(1) > 1 {
		return nil, errDisplayGone
	}
	return lostBackend{s}, nil
}

func (s *lostSelection) breakRead(t *testing.T) {
	t.Helper()
	select {
	case s.fail <- errors.New("read failed"):
	case <-time.After(2 * time.Second):
		t.Fatal("watcher never waited for a change")
	}
}

type lostBackend struct{ sel *lostSelection }

func (lostBackend) Name() string          { return "lost" }
func (lostBackend) Load() (string, error) { return "", nil }
func (lostBackend) Close()                {}

func (b lostBackend) LoadWait(ctx context.Context) (string, error) {
	select {
	case err := <-b.sel.fail:
		return "", err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func TestSuperviseFailsOnceEverySelectionIsLost(t *testing.T) {
	clipSel, primSel := newLostSelection(), newLostSelection()
	ctrl, err := monitor.New(monitor.Options{
		EnableClipboard: true,
		EnablePrimary:   true,
		Factories: map[selection.Kind]clip.Factory{
			selection.Clipboard: clipSel.factory,
			selection.Primary:   primSel.factory,
		},
		ReconnectAttempts: 1,
		ReconnectBackoff:  time.Millisecond,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer ctrl.Close()
	ctrl.Start()

	done := make(chan error, 1)
	go func() { done <- supervise(context.Background(), ctrl, ctrl.Active()) }()

	clipSel.breakRead(t)
	select {
	case err := <-done:
		t.Fatalf("supervise returned with primary still watched: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	primSel.breakRead(t)
	select {
	case err := <-done:
		var initErr *monitor.BackendInitError
		if !errors.As(err, &initErr) {
			t.Fatalf("got %v, want *monitor.BackendInitError", err)
		}
		if !errors.Is(err, errDisplayGone) {
			t.Fatalf("error does not wrap the rebuild failure: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("supervise kept running with no selection left")
	}
}

func TestPreview(t *testing.T) {
	cases := []struct {
		in   string
		n    int
		want string
	}{
		{"short", 10, "short"},
		{"two\nlines\t here", 20, "two lines here"},
		{"abcdefghij", 5, "abcd…"},
		{"ünïcödé text", 4, "ünï…"},
	}
	for _, c := range cases {
		if got := preview(c.in, c.n); got != c.want {
			t.Errorf("preview(%q, %d) = %q, want %q", c.in, c.n, got, c.want)
		}
	}
}

func TestFmtAge(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	cases := map[time.Duration]string{
		5 * time.Second: "5s ago",
		3 * time.Minute: "3m ago",
		2 * time.Hour:   "2h ago",
	}
	for d, want := range cases {
		if got := fmtAge(now, now.Add(-d)); got != want {
			t.Errorf("fmtAge(-%v) = %q, want %q", d, got, want)
		}
	}
}

func TestPrintEntries(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	cmd := &cobra.Command{}
	var out bytes.Buffer
	cmd.SetOut(&out)

	if err := printEntries(cmd, nil, now); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "History is empty.") {
		t.Fatalf("got %q", out.String())
	}

	out.Reset()
	entries := []recorder.Entry{{
		ID:         uuid.MustParse("0d6a1a8e-4b1e-4c1f-9d5a-3a3f2b1c0e9f"),
		Selection:  selection.Primary,
		Content:    "selected\ntext",
		CapturedAt: now.Add(-30 * time.Second),
	}}
	if err := printEntries(cmd, entries, now); err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"0d6a1a8e", "primary", "30s ago", "selected text"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output missing %q:\n%s", want, out.String())
		}
	}
}

func TestVersionCmd(t *testing.T) {
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version"})
	if err := root.Execute(); err != nil {
		t.Fatal(err)
	}
	if got := out.String(); got != "clipwatch dev\n" {
		t.Fatalf("got %q", got)
	}
}
