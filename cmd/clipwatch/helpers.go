package main

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/spf13/viper"
	"google.golang.org/grpc"

	"go.klb.dev/clipwatch/internal/ipc"
	"go.klb.dev/clipwatch/internal/rpcservice"
)

const rpcTimeout = 5 * time.Second

// dialDaemon connects to the daemon named by the socket key. The returned
// conn must be closed by the caller.
func dialDaemon(v *viper.Viper) (*rpcservice.Client, *grpc.ClientConn, error) {
	path := v.GetString("socket")
	if !ipc.IsRunning(path) {
		return nil, nil, fmt.Errorf("clipwatch daemon is not running (no listener on %s)", path)
	}
	conn, err := rpcservice.Dial(path)
	if err != nil {
		return nil, nil, fmt.Errorf("dial: %w", err)
	}
	return rpcservice.NewClient(conn), conn, nil
}

// preview flattens s to a single line of at most n runes.
func preview(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n-1]) + "…"
}

func fmtAge(now, t time.Time) string {
	age := now.Sub(t).Round(time.Second)
	switch {
	case age < time.Minute:
		return fmt.Sprintf("%ds ago", int(age.Seconds()))
	case age < time.Hour:
		return fmt.Sprintf("%dm ago", int(age.Minutes()))
	case age < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(age.Hours()))
	}
	return t.Local().Format("2006-01-02 15:04")
}
