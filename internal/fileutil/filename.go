// Package fileutil holds small filesystem helpers shared across the daemon.
package fileutil

import (
	"regexp"
	"strings"
)

var (
	illegalChars = regexp.MustCompile(`[\/\\:*?"<>|]`)
	whitespace   = regexp.MustCompile(`[\s_]+`)
)

// SanitizeForFilename makes an arbitrary string (an upload name, a track
// title) safe to embed in a filename. Illegal characters become
// underscores, runs of whitespace collapse to hyphens, and the result is
// capped at 50 bytes. An input that sanitizes away entirely falls back to
// "audio".
func SanitizeForFilename(input string) string {
	if input == "" {
		return "audio"
	}

	sanitized := illegalChars.ReplaceAllString(input, "_")
	sanitized = whitespace.ReplaceAllString(sanitized, "-")
	sanitized = strings.Trim(sanitized, "-.")

	if len(sanitized) > 50 {
		sanitized = sanitized[:50]
		sanitized = strings.TrimRight(sanitized, "-.")
	}

	if sanitized == "" {
		return "audio"
	}
	return sanitized
}
