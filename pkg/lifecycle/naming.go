package lifecycle

import (
	"log/slog"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"
)

const (
	// Separator joins component names into fully-qualified names.
	Separator = "."

	// MaxNameLength is the maximum length of a component name in bytes.
	MaxNameLength = 64

	placeholderPrefix = "component-"
)

// SanitizeName returns a usable component name and whether name had to be
// changed. Blank names get a generated placeholder; the separator and
// control characters are replaced with '_'; the result is truncated to
// [MaxNameLength] bytes on a rune boundary.
func SanitizeName(name string) (string, bool) {
	if strings.TrimSpace(name) == "" {
		return placeholderPrefix + uuid.NewString()[:8], true
	}

	var b strings.Builder
	b.Grow(len(name))
	changed := false
	for _, r := range name {
		if r == utf8.RuneError || unicode.IsControl(r) || strings.ContainsRune(Separator, r) {
			b.WriteByte('_')
			changed = true
			continue
		}
		b.WriteRune(r)
	}

	out := b.String()
	if len(out) > MaxNameLength {
		cut := MaxNameLength
		for cut > 0 && !utf8.RuneStart(out[cut]) {
			cut--
		}
		out = out[:cut]
		changed = true
	}
	return out, changed
}

// sanitizeName is SanitizeName with the warning side effect.
func sanitizeName(logger *slog.Logger, name string) string {
	clean, changed := SanitizeName(name)
	if changed {
		logger.Warn("lifecycle: component name sanitized",
			"requested", name,
			"name", clean,
		)
	}
	return clean
}
