package render

import (
	"fmt"
	"strings"

	"boardsync/internal/model"
	"boardsync/internal/views"

	"github.com/charmbracelet/lipgloss"
	xansi "github.com/charmbracelet/x/ansi"
)

const (
	minColumnWidth = 18
	pxPerCell      = 8
	titleMinWidth  = 16
)

// Kanban lays the board's columns out side by side within width cells.
func Kanban(k views.Kanban, width int) string {
	if k.Missing {
		return styleMuted().Render("Project not found.")
	}
	if len(k.Columns) == 0 {
		return styleMuted().Render("No columns.")
	}
	colW := width/len(k.Columns) - 1
	if colW < minColumnWidth {
		colW = minColumnWidth
	}
	inner := colW - 4

	blocks := make([]string, 0, len(k.Columns))
	for _, c := range k.Columns {
		var b strings.Builder
		head := lipgloss.NewStyle().Bold(true)
		if c.Column.Color != "" {
			head = head.Foreground(lipgloss.Color(c.Column.Color))
		}
		b.WriteString(head.Render(truncate(fmt.Sprintf("%s (%d)", c.Column.Name, len(c.Cards)), inner)))
		for _, card := range c.Cards {
			b.WriteString("\n")
			b.WriteString(cardBlock(card, inner))
		}
		blocks = append(blocks, lipgloss.NewStyle().
			Width(colW-2).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorBorder).
			Padding(0, 1).
			Render(b.String()))
	}
	out := lipgloss.JoinHorizontal(lipgloss.Top, blocks...)
	if k.Orphans > 0 {
		out += "\n" + styleMuted().Render(fmt.Sprintf("%d task(s) without a column; see the list view.", k.Orphans))
	}
	return out
}

func cardBlock(c views.Card, w int) string {
	title := c.Title
	if c.Done {
		title = lipgloss.NewStyle().Strikethrough(true).Render(title)
	}
	lines := []string{"• " + truncate(title, w-2)}
	var meta []string
	meta = append(meta, priorityLabel(c.Priority))
	if c.DueDate != "" {
		meta = append(meta, dueLabel(c.DueDate, c.Overdue && !c.Done))
	}
	if c.Initials != "" {
		meta = append(meta, c.Initials)
	}
	if c.ChecklistTotal > 0 {
		meta = append(meta, fmt.Sprintf("%d/%d", c.ChecklistDone, c.ChecklistTotal))
	}
	lines = append(lines, "  "+truncate(strings.Join(meta, " · "), w-2))
	return strings.Join(lines, "\n")
}

// listColumnWidth converts a stored pixel width into terminal cells.
func listColumnWidth(c model.ListColumnPref) int {
	switch c.ID {
	case "checkbox":
		return 3
	case "title":
		return 0
	}
	w := c.Width / pxPerCell
	if w < 4 {
		w = 4
	}
	return w
}

var listLabels = map[string]string{
	"checkbox": "",
	"title":    "Task",
	"desc":     "Description",
	"assignee": "Assignee",
	"status":   "Status",
	"due":      "Due",
	"priority": "Priority",
	"created":  "Created",
}

// List renders the sectioned task table with the visible columns in their
// saved order. The title column takes whatever width is left.
func List(l views.List, width int) string {
	if l.Missing {
		return styleMuted().Render("Project not found.")
	}
	widths := make([]int, len(l.Columns))
	fixed := 0
	titleIdx := -1
	for i, c := range l.Columns {
		widths[i] = listColumnWidth(c)
		if c.ID == "title" {
			titleIdx = i
		}
		fixed += widths[i] + 1
	}
	if titleIdx >= 0 {
		widths[titleIdx] = width - fixed
		if widths[titleIdx] < titleMinWidth {
			widths[titleIdx] = titleMinWidth
		}
	}

	row := func(cells []string) string {
		parts := make([]string, len(cells))
		for i, s := range cells {
			parts[i] = pad(s, widths[i])
		}
		return strings.TrimRight(strings.Join(parts, " "), " ")
	}

	var b strings.Builder
	head := make([]string, len(l.Columns))
	for i, c := range l.Columns {
		head[i] = listLabels[c.ID]
	}
	b.WriteString(styleMuted().Render(row(head)))
	for _, s := range l.Sections {
		b.WriteString("\n\n")
		marker := "▾"
		if s.Collapsed {
			marker = "▸"
		}
		title := lipgloss.NewStyle().Bold(true)
		if s.Color != "" {
			title = title.Foreground(lipgloss.Color(s.Color))
		}
		b.WriteString(title.Render(fmt.Sprintf("%s %s (%d)", marker, s.Name, s.Count)))
		for _, r := range s.Rows {
			cells := make([]string, len(l.Columns))
			for i, c := range l.Columns {
				cells[i] = listCell(r, c.ID)
			}
			b.WriteString("\n")
			b.WriteString(row(cells))
		}
	}
	return b.String()
}

func listCell(r views.ListRow, id string) string {
	switch id {
	case "checkbox":
		return checkbox(r.Done)
	case "title":
		return r.Title
	case "desc":
		return r.Desc
	case "assignee":
		if r.AssigneeName == "" {
			return views.Placeholder
		}
		return r.AssigneeName
	case "status":
		if r.Done {
			return "done"
		}
		return "open"
	case "due":
		return dueLabel(r.DueDate, r.Overdue && !r.Done)
	case "priority":
		return priorityLabel(r.Priority)
	case "created":
		if r.CreatedAt.IsZero() {
			return views.Placeholder
		}
		return r.CreatedAt.Local().Format("2006-01-02")
	}
	return ""
}

// Width reports the printed width of s, ignoring escape sequences.
func Width(s string) int {
	w := 0
	for _, line := range strings.Split(s, "\n") {
		if n := xansi.StringWidth(line); n > w {
			w = n
		}
	}
	return w
}
