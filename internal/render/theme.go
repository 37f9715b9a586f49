// Package render turns view models into terminal text for the CLI and TUI.
package render

import (
	"os"
	"strings"

	"boardsync/internal/model"
	"boardsync/internal/views"

	"github.com/charmbracelet/lipgloss"
	xansi "github.com/charmbracelet/x/ansi"
	"github.com/muesli/termenv"
)

func ac(light, dark string) lipgloss.AdaptiveColor {
	return lipgloss.AdaptiveColor{Light: light, Dark: dark}
}

var (
	colorMuted   lipgloss.TerminalColor = ac("240", "243")
	colorAccent  lipgloss.TerminalColor = ac("27", "62")
	colorBorder  lipgloss.TerminalColor = ac("250", "243")
	colorWarning lipgloss.TerminalColor = ac("#b3261e", "#e5484d")
	colorDone    lipgloss.TerminalColor = ac("#5C7B7C", "#7fa3a4")

	priorityColors = map[model.Priority]lipgloss.TerminalColor{
		model.PriorityHigh:   ac("#b3261e", "#e5484d"),
		model.PriorityMedium: ac("#8B7355", "#c9a66b"),
		model.PriorityLow:    ac("#6B7C5C", "#8fa67a"),
	}
	barColors = map[views.BarColor]lipgloss.TerminalColor{
		views.BarHigh:    priorityColors[model.PriorityHigh],
		views.BarMedium:  priorityColors[model.PriorityMedium],
		views.BarLow:     priorityColors[model.PriorityLow],
		views.BarOverdue: colorWarning,
		views.BarDone:    colorDone,
	}
)

func styleMuted() lipgloss.Style   { return lipgloss.NewStyle().Foreground(colorMuted) }
func styleHeading() lipgloss.Style { return lipgloss.NewStyle().Bold(true).Foreground(colorAccent) }

// ApplyColorProfile sets the lipgloss color profile for output. NO_COLOR
// (or color=false) forces plain text; otherwise termenv's detection is used,
// upgraded when TERM/COLORTERM advertise more than was detected.
func ApplyColorProfile(color bool) {
	if !color || strings.TrimSpace(os.Getenv("NO_COLOR")) != "" {
		lipgloss.SetColorProfile(termenv.Ascii)
		return
	}
	profile := termenv.EnvColorProfile()
	colorterm := strings.ToLower(os.Getenv("COLORTERM"))
	term := strings.ToLower(os.Getenv("TERM"))
	switch {
	case profile == termenv.Ascii:
	case strings.Contains(colorterm, "truecolor") || strings.Contains(colorterm, "24bit"):
		profile = termenv.TrueColor
	case strings.Contains(term, "256color") && profile == termenv.ANSI:
		profile = termenv.ANSI256
	}
	lipgloss.SetColorProfile(profile)
}

// truncate cuts s to w cells, ending with an ellipsis when shortened.
func truncate(s string, w int) string {
	s = strings.TrimSpace(strings.ReplaceAll(s, "\n", " "))
	if w <= 0 {
		return ""
	}
	if xansi.StringWidth(s) <= w {
		return s
	}
	if w == 1 {
		return "…"
	}
	return xansi.Truncate(s, w, "…")
}

// pad truncates or right-pads s to exactly w cells.
func pad(s string, w int) string {
	s = truncate(s, w)
	if n := w - xansi.StringWidth(s); n > 0 {
		return s + strings.Repeat(" ", n)
	}
	return s
}

func priorityLabel(p model.Priority) string {
	c, ok := priorityColors[p]
	if !ok {
		return string(p)
	}
	return lipgloss.NewStyle().Foreground(c).Render(string(p))
}

func dueLabel(due string, overdue bool) string {
	if due == "" {
		return views.Placeholder
	}
	if overdue {
		return lipgloss.NewStyle().Foreground(colorWarning).Render(due)
	}
	return due
}

func checkbox(done bool) string {
	if done {
		return "[x]"
	}
	return "[ ]"
}
