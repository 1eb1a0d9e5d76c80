package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"
)

func TestParseFormat(t *testing.T) {
	cases := map[string]Format{
		"":      FormatAuto,
		"auto":  FormatAuto,
		"text":  FormatText,
		"TINT":  FormatText,
		"human": FormatText,
		" json": FormatJSON,
		"yaml":  FormatAuto,
	}
	for in, want := range cases {
		if got := ParseFormat(in); got != want {
			t.Errorf("ParseFormat(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"error":   slog.LevelError,
		"info":    slog.LevelInfo,
		"verbose": slog.LevelInfo,
		"":        slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestJSONHandlerFollowsSetLevel(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(NewHandler(&buf, FormatAuto, slog.LevelInfo))

	log.Debug("hidden")
	if buf.Len() != 0 {
		t.Fatalf("debug written at info level: %s", buf.String())
	}

	SetLevel(slog.LevelDebug)
	t.Cleanup(func() { level.Set(slog.LevelInfo) })
	log.Debug("shown", "k", "v")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("auto format on a buffer should be JSON: %v (%s)", err, buf.String())
	}
	if rec["msg"] != "shown" || rec["k"] != "v" {
		t.Fatalf("unexpected record %v", rec)
	}
	if Level() != slog.LevelDebug {
		t.Fatalf("Level() = %v", Level())
	}
}

func TestIsTTYOnBuffer(t *testing.T) {
	if IsTTY(&bytes.Buffer{}) {
		t.Fatal("a buffer is not a terminal")
	}
}
