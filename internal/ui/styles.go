// Package ui renders j2g terminal output: run summaries, check results,
// previews and the live-run prompt. Colors adapt to light and dark
// backgrounds and are dropped entirely when color is off (see ConfigureColor).
package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	green  = lipgloss.AdaptiveColor{Light: "#86b300", Dark: "#c2d94c"}
	yellow = lipgloss.AdaptiveColor{Light: "#f2ae49", Dark: "#ffb454"}
	red    = lipgloss.AdaptiveColor{Light: "#f07171", Dark: "#f07178"}
	gray   = lipgloss.AdaptiveColor{Light: "#828c99", Dark: "#6c7680"}
	blue   = lipgloss.AdaptiveColor{Light: "#399ee6", Dark: "#59c2ff"}
)

// Styles used across commands.
var (
	PassStyle   = lipgloss.NewStyle().Foreground(green)
	WarnStyle   = lipgloss.NewStyle().Foreground(yellow)
	FailStyle   = lipgloss.NewStyle().Foreground(red)
	MutedStyle  = lipgloss.NewStyle().Foreground(gray)
	AccentStyle = lipgloss.NewStyle().Foreground(blue)

	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(blue)
	bannerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(yellow).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(yellow).
			Padding(0, 1)
)

// Status icons.
const (
	IconPass = "✓"
	IconWarn = "⚠"
	IconFail = "✗"
	IconSkip = "-"
	IconInfo = "ℹ"
)

const (
	detailPrefix = "└─ "
	separator    = "──────────────────────────────────────────"
)

func RenderPass(s string) string  { return PassStyle.Render(s) }
func RenderWarn(s string) string  { return WarnStyle.Render(s) }
func RenderFail(s string) string  { return FailStyle.Render(s) }
func RenderMuted(s string) string { return MutedStyle.Render(s) }

// RenderCategory renders a section header, e.g. an issue key above its preview.
func RenderCategory(s string) string {
	return headerStyle.Render(strings.ToUpper(s))
}

// RenderSeparator renders a muted horizontal rule.
func RenderSeparator() string {
	return MutedStyle.Render(separator)
}

// RenderBanner renders a boxed notice.
func RenderBanner(s string) string {
	return bannerStyle.Render(s)
}

// outcomeLook maps an issue outcome to its icon and style.
var outcomeLook = map[string]struct {
	icon  string
	style lipgloss.Style
}{
	"created":  {IconPass, PassStyle},
	"updated":  {IconPass, PassStyle},
	"filtered": {IconSkip, MutedStyle},
	"failed":   {IconFail, FailStyle},
}

// RenderOutcome renders an issue outcome with its icon. Unknown outcomes
// get the info icon.
func RenderOutcome(outcome string) string {
	look, ok := outcomeLook[outcome]
	if !ok {
		return AccentStyle.Render(IconInfo + " " + outcome)
	}
	return look.style.Render(look.icon + " " + outcome)
}

// RenderCount renders an aligned "label: n" summary line; zero is muted.
func RenderCount(label string, n int, style lipgloss.Style) string {
	if n == 0 {
		style = MutedStyle
	}
	return fmt.Sprintf("  %-12s %s", label+":", style.Render(fmt.Sprint(n)))
}

// RenderDetail renders an indented detail line under an item.
func RenderDetail(s string) string {
	return "   " + MutedStyle.Render(detailPrefix) + s
}
