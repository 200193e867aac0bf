package logging

import (
	"log/slog"
	"strings"
)

// DefaultLevel is the level used when none is configured.
const DefaultLevel = slog.LevelInfo

// ParseLevel converts debug, info, warn or error (case-insensitive) to a
// slog.Level. An empty string is the default level. It returns
// (DefaultLevel, false) for anything else.
func ParseLevel(s string) (level slog.Level, ok bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, true
	case "info", "":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	default:
		return DefaultLevel, false
	}
}

// ParseLevelOrDefault is ParseLevel without the ok result.
func ParseLevelOrDefault(s string) slog.Level {
	level, _ := ParseLevel(s)
	return level
}
