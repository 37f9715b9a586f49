package render

import (
	"fmt"
	"strings"

	"boardsync/internal/views"

	"github.com/charmbracelet/lipgloss"
)

const (
	dayWidth   = 14
	ganttLabel = 24
)

// Month renders the Monday-first calendar grid. Each in-month cell lists up
// to views.MaxDayTasks titles and a "+n more" line.
func Month(m views.Month) string {
	var b strings.Builder
	b.WriteString(styleHeading().Render(fmt.Sprintf("%s %d", m.Month, m.Year)))
	b.WriteString("\n")
	for _, d := range views.Weekdays {
		b.WriteString(pad(d, dayWidth))
		b.WriteString(" ")
	}
	for _, week := range m.Weeks {
		b.WriteString("\n")
		cells := make([]string, 0, len(week))
		for _, d := range week {
			cells = append(cells, dayCell(d))
		}
		b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, cells...))
	}
	return b.String()
}

func dayCell(d views.Day) string {
	num := fmt.Sprintf("%2d", d.Day)
	switch {
	case d.Today:
		num = lipgloss.NewStyle().Reverse(true).Render(num)
	case !d.InMonth:
		num = styleMuted().Render(num)
	}
	lines := []string{num}
	for _, t := range d.Tasks {
		title := truncate(t.Title, dayWidth-1)
		if t.Done {
			title = styleMuted().Render(title)
		} else if c, ok := priorityColors[t.Priority]; ok {
			title = lipgloss.NewStyle().Foreground(c).Render(title)
		}
		lines = append(lines, title)
	}
	if d.More > 0 {
		lines = append(lines, styleMuted().Render(fmt.Sprintf("+%d more", d.More)))
	}
	for len(lines) < views.MaxDayTasks+2 {
		lines = append(lines, "")
	}
	return lipgloss.NewStyle().Width(dayWidth).MarginRight(1).Render(strings.Join(lines, "\n"))
}

// MiniMonth renders the compact dashboard calendar; days with tasks are
// underlined.
func MiniMonth(m views.Month) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("%s %d\n", m.Month, m.Year))
	for _, d := range views.Weekdays {
		b.WriteString(d[:2] + " ")
	}
	for _, week := range m.Weeks {
		b.WriteString("\n")
		for _, d := range week {
			st := lipgloss.NewStyle()
			switch {
			case d.Today:
				st = st.Reverse(true)
			case !d.InMonth:
				st = st.Foreground(colorMuted)
			}
			if d.HasTasks {
				st = st.Underline(true)
			}
			b.WriteString(st.Render(fmt.Sprintf("%2d", d.Day)) + " ")
		}
	}
	return b.String()
}

// Gantt draws one bar per dated task on a day grid, one cell per day.
func Gantt(g views.Gantt) string {
	if g.Missing {
		return styleMuted().Render("Project not found.")
	}
	if len(g.Bars) == 0 {
		return styleMuted().Render("No tasks with due dates.")
	}
	var b strings.Builder
	header := []rune(strings.Repeat(" ", g.Days))
	for _, w := range g.Weeks {
		label := []rune(w.Date[5:])
		for i, r := range label {
			if w.Offset+i < len(header) {
				header[w.Offset+i] = r
			}
		}
	}
	b.WriteString(pad("", ganttLabel) + " " + styleMuted().Render(string(header)))

	for _, bar := range g.Bars {
		line := make([]string, g.Days)
		for i := range line {
			line[i] = " "
			if i == g.Today {
				line[i] = styleMuted().Render("│")
			}
		}
		fill := lipgloss.NewStyle().Foreground(barColors[bar.Color]).Render("█")
		for i := bar.Left; i < bar.Left+bar.Width && i < g.Days; i++ {
			line[i] = fill
		}
		label := bar.Title
		if bar.AssigneeName != "" {
			label += " · " + bar.AssigneeName
		}
		b.WriteString("\n")
		b.WriteString(pad(label, ganttLabel) + " " + strings.Join(line, ""))
	}
	return b.String()
}
