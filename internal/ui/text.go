package ui

import (
	"fmt"
	"strings"
)

// TruncateLines keeps the first maxLines lines of text and notes how many
// were hidden.
func TruncateLines(text string, maxLines int) string {
	if maxLines <= 0 {
		return text
	}
	lines := strings.Split(text, "\n")
	if len(lines) <= maxLines {
		return text
	}
	hidden := len(lines) - maxLines
	return strings.Join(lines[:maxLines], "\n") + "\n" + RenderMuted(fmt.Sprintf("... (%d lines hidden)", hidden))
}
