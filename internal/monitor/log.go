package monitor

import (
	"context"
	"log/slog"
	"unicode/utf8"
)

const previewLen = 120

// logEvent logs a published change at DEBUG with a truncated preview. Content
// is never logged at INFO.
func logEvent(log *slog.Logger, ev Event, receivers int) {
	if !log.Enabled(context.Background(), slog.LevelDebug) {
		return
	}
	log.Debug("selection changed", "size_bytes", len(ev.Content), "receivers", receivers, "preview", previewOf(ev.Content))
}

// previewOf cuts s to at most previewLen bytes on a rune boundary.
func previewOf(s string) string {
	if len(s) <= previewLen {
		return s
	}
	cut := previewLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "…"
}
