// Package logging configures the global slog logger for clipwatch.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/pwntr/tinter"
)

// Format selects the log output format.
type Format string

const (
	FormatAuto Format = "auto"
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// level is shared by every handler Setup installs so it can be changed while
// the daemon runs.
var level = new(slog.LevelVar)

// ParseFormat converts a string to a Format, returning FormatAuto for unknown values.
func ParseFormat(s string) Format {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "text", "tint", "human":
		return FormatText
	case "json":
		return FormatJSON
	default:
		return FormatAuto
	}
}

// ParseLevel converts a string to a slog.Level, defaulting to Info.
func ParseLevel(s string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo
	}
	return l
}

// IsTTY reports whether w is a terminal.
func IsTTY(w io.Writer) bool {
	if f, ok := w.(*os.File); ok {
		return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return false
}

// Setup installs a stderr logger as the slog default.
func Setup(format Format, l slog.Level) {
	slog.SetDefault(slog.New(NewHandler(os.Stderr, format, l)))
}

// NewHandler builds the handler Setup installs, writing to w. Text output is
// colourised with tinter; auto picks text only when w is a terminal.
func NewHandler(w io.Writer, format Format, l slog.Level) slog.Handler {
	level.Set(l)
	if format == FormatText || (format == FormatAuto && IsTTY(w)) {
		return tinter.NewHandler(w, &tinter.Options{
			Level:      level,
			TimeFormat: "15:04:05.000",
		})
	}
	return slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
}

// SetLevel changes the level of every handler built by this package.
func SetLevel(l slog.Level) {
	if level.Level() == l {
		return
	}
	level.Set(l)
	slog.Info("log level changed", "level", l.String())
}

// Level returns the active level.
func Level() slog.Level { return level.Level() }
