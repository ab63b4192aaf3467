package generator

import (
	"regexp"
	"strings"
)

var (
	fencePattern    = regexp.MustCompile("`{3,}[A-Za-z0-9_+-]*")
	backtickRun     = regexp.MustCompile("`{2,}")
	emphasisPattern = regexp.MustCompile(`(^|\s)\*(\w|\w[^*\n]*?\w)\*($|[\s.,:;!?])`)
	bulletPattern   = regexp.MustCompile(`(?m)^([ \t]*)\*[ \t]+`)
)

// Sanitize strips markdown and comment lines from model output so it can be
// executed. It is idempotent. A "*" survives unless it is a bullet or wraps a
// word, so COUNT(*) and multiplication are kept.
func Sanitize(text string) string {
	for {
		next := sanitizeOnce(text)
		if next == text {
			return next
		}
		text = next
	}
}

func sanitizeOnce(text string) string {
	text = fencePattern.ReplaceAllString(text, "")

	lines := strings.Split(text, "\n")
	kept := lines[:0]
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "#") || strings.HasPrefix(trimmed, "--") {
			continue
		}
		kept = append(kept, line)
	}
	text = strings.Join(kept, "\n")

	text = strings.ReplaceAll(text, "**", "")
	text = emphasisPattern.ReplaceAllString(text, "$1$2$3")
	text = bulletPattern.ReplaceAllString(text, "$1")
	text = backtickRun.ReplaceAllString(text, "")
	text = strings.TrimSpace(text)

	if len(text) >= 2 && strings.Count(text, "`") == 2 && strings.HasPrefix(text, "`") && strings.HasSuffix(text, "`") {
		text = strings.TrimSpace(text[1 : len(text)-1])
	}
	return text
}
