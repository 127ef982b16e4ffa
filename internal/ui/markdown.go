package ui

import (
	"charm.land/glamour/v2"
)

// maxReadableWidth caps word wrap on wide terminals.
const maxReadableWidth = 100

// RenderMarkdown renders markdown text with glamour for terminal display.
// Returns the original text if colors are disabled or rendering fails.
// Word wraps at terminal width (or 80 columns if width can't be detected).
func RenderMarkdown(markdown string) string {
	if !ShouldUseColor() {
		return markdown
	}
	return renderMarkdown(markdown, min(TerminalWidth(80), maxReadableWidth))
}

func renderMarkdown(markdown string, wrapWidth int) string {
	renderer, err := glamour.NewTermRenderer(
		glamour.WithWordWrap(wrapWidth),
	)
	if err != nil {
		return markdown
	}
	rendered, err := renderer.Render(markdown)
	if err != nil {
		return markdown
	}
	return rendered
}
