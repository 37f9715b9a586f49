package render

import (
	"fmt"
	"strings"

	"boardsync/internal/model"
	"boardsync/internal/views"

	"github.com/charmbracelet/lipgloss"
)

func counter(label string, n int, c lipgloss.TerminalColor) string {
	num := lipgloss.NewStyle().Bold(true)
	if c != nil {
		num = num.Foreground(c)
	}
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(colorBorder).
		Padding(0, 2).
		Render(num.Render(fmt.Sprint(n)) + "\n" + styleMuted().Render(label))
}

func feed(title string, items []views.FeedItem) string {
	var b strings.Builder
	b.WriteString(styleHeading().Render(title))
	if len(items) == 0 {
		b.WriteString("\n" + styleMuted().Render("Nothing here."))
	}
	for _, it := range items {
		b.WriteString(fmt.Sprintf("\n%s %-10s %s %s",
			checkbox(it.Done),
			dueLabel(it.DueDate, it.Overdue && !it.Done),
			truncate(it.Title, 40),
			styleMuted().Render(it.ProjectName)))
	}
	return b.String()
}

// Dashboard renders the counters, the today and upcoming feeds and the mini
// calendar.
func Dashboard(d views.Dashboard) string {
	counters := lipgloss.JoinHorizontal(lipgloss.Top,
		counter("my tasks", d.MyTasks, nil),
		counter("overdue", d.Overdue, colorWarning),
		counter("done", d.Done, colorDone),
		counter("projects", d.ActiveProjects, nil),
		counter("unread", d.Unread, colorAccent),
	)
	feeds := feed("Today", d.Today) + "\n\n" + feed("Upcoming", d.Upcoming)
	body := lipgloss.JoinHorizontal(lipgloss.Top,
		lipgloss.NewStyle().MarginRight(4).Render(feeds),
		MiniMonth(d.Calendar),
	)
	return counters + "\n\n" + body
}

func progressBar(pct, w int) string {
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	n := pct * w / 100
	return lipgloss.NewStyle().Foreground(colorDone).Render(strings.Repeat("█", n)) +
		styleMuted().Render(strings.Repeat("░", w-n))
}

// ProjectCards renders one line per project with its progress.
func ProjectCards(ps []views.ProjectSummary) string {
	if len(ps) == 0 {
		return styleMuted().Render("No projects.")
	}
	lines := make([]string, 0, len(ps))
	for _, p := range ps {
		name := lipgloss.NewStyle().Bold(true)
		if p.Color != "" {
			name = name.Foreground(lipgloss.Color(p.Color))
		}
		line := fmt.Sprintf("%s %s %3d%%  %d/%d",
			name.Render(pad(p.Name, 24)),
			progressBar(p.Progress, 20),
			p.Progress, p.Done, p.Total)
		if p.Overdue > 0 {
			line += lipgloss.NewStyle().Foreground(colorWarning).Render(fmt.Sprintf("  %d overdue", p.Overdue))
		}
		if p.Deadline != "" {
			line += styleMuted().Render("  due " + p.Deadline)
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

// Statistics renders the totals and the per-project progress table.
func Statistics(s views.Statistics) string {
	counters := lipgloss.JoinHorizontal(lipgloss.Top,
		counter("tasks", s.Total, nil),
		counter("overdue", s.Overdue, colorWarning),
		counter("high", s.High, priorityColors[model.PriorityHigh]),
		counter("done", s.Done, colorDone),
	)
	var prio []string
	for _, p := range []model.Priority{model.PriorityHigh, model.PriorityMedium, model.PriorityLow} {
		prio = append(prio, fmt.Sprintf("%s %d", priorityLabel(p), s.ByPriority[p]))
	}
	return counters + "\n" + strings.Join(prio, "   ") + "\n\n" +
		styleHeading().Render(fmt.Sprintf("Projects (%d active)", s.ActiveProjects)) + "\n" +
		ProjectCards(s.Projects)
}
