package render

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"boardsync/internal/mention"
	"boardsync/internal/model"
	"boardsync/internal/statusutil"
	"boardsync/internal/views"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
)

var (
	mdMu        sync.Mutex
	mdRenderers = map[string]*glamour.TermRenderer{}
)

func markdownStyle() string {
	if lipgloss.HasDarkBackground() {
		return "dark"
	}
	return "light"
}

// Markdown renders md word-wrapped to width. Renderers are cached per style
// and width; a rendering failure falls back to the raw text.
func Markdown(md string, width int) string {
	md = strings.TrimSpace(md)
	if md == "" {
		return ""
	}
	if width < 10 {
		width = 10
	}
	style := markdownStyle()
	key := fmt.Sprintf("%s:%d", style, width)

	mdMu.Lock()
	r := mdRenderers[key]
	if r == nil {
		rr, err := glamour.NewTermRenderer(glamour.WithStandardStyle(style), glamour.WithWordWrap(width))
		if err != nil {
			mdMu.Unlock()
			return md
		}
		mdRenderers[key] = rr
		r = rr
	}
	mdMu.Unlock()

	out, err := r.Render(md)
	if err != nil {
		return md
	}
	return strings.TrimRight(out, "\n")
}

func mentions(text string) string {
	st := lipgloss.NewStyle().Bold(true).Foreground(colorAccent)
	return mention.Highlight(text, func(tok string) string { return st.Render(tok) })
}

func when(ts model.Timestamp, now time.Time) string {
	if ts.IsZero() {
		return views.Placeholder
	}
	return humanize.RelTime(ts.Time, now, "ago", "from now")
}

// Task renders the full detail of one task.
func Task(t model.Task, p *model.Project, width int, now time.Time) string {
	var b strings.Builder
	title := styleHeading().Render(t.Title)
	if statusutil.IsTaskDone(t, p) {
		title += " " + lipgloss.NewStyle().Foreground(colorDone).Render("(done)")
	}
	b.WriteString(title + "\n")

	column := views.Placeholder
	if p != nil {
		if c, ok := p.Column(t.ColumnID); ok {
			column = c.Name
		}
	}
	assignee := t.AssigneeName
	if assignee == "" {
		assignee = views.Placeholder
	}
	fields := [][2]string{
		{"Column", column},
		{"Priority", priorityLabel(t.EffectivePriority())},
		{"Start", orPlaceholder(t.StartDate)},
		{"Due", dueLabel(t.DueDate, views.IsOverdueOpen(t, p, now))},
		{"Assignee", assignee},
		{"Created", fmt.Sprintf("%s by %s", when(t.CreatedAt, now), orPlaceholder(t.CreatedByName))},
	}
	for _, f := range fields {
		b.WriteString(styleMuted().Render(pad(f[0], 10)) + f[1] + "\n")
	}
	if desc := Markdown(t.Desc, width); desc != "" {
		b.WriteString("\n" + desc + "\n")
	}

	if len(t.Checklist) > 0 {
		done, total := t.ChecklistProgress()
		b.WriteString(fmt.Sprintf("\n%s %d/%d\n", styleHeading().Render("Checklist"), done, total))
		for i, it := range t.Checklist {
			b.WriteString(fmt.Sprintf("%2d %s %s\n", i, checkbox(it.Done), it.Text))
		}
	}
	if len(t.Attachments) > 0 {
		b.WriteString("\n" + styleHeading().Render("Attachments") + "\n")
		for i, a := range t.Attachments {
			b.WriteString(fmt.Sprintf("%2d %s %s\n", i, a.Name, styleMuted().Render(humanize.IBytes(uint64(a.Size)))))
		}
	}
	if len(t.Comments) > 0 {
		b.WriteString("\n" + styleHeading().Render("Comments") + "\n")
		for i, c := range t.Comments {
			b.WriteString(fmt.Sprintf("%2d %s %s\n", i, lipgloss.NewStyle().Bold(true).Render(c.AuthorName), styleMuted().Render(when(c.At, now))))
			if c.Text != "" {
				b.WriteString("   " + mentions(c.Text) + "\n")
			}
			if n := len(c.Images); n > 0 {
				b.WriteString(styleMuted().Render(fmt.Sprintf("   %d image(s)", n)) + "\n")
			}
		}
	}
	if len(t.History) > 0 {
		b.WriteString("\n" + styleHeading().Render("History") + "\n")
		for _, h := range t.History {
			b.WriteString(styleMuted().Render(fmt.Sprintf("%s · %s · %s", when(h.At, now), h.By, h.Action)) + "\n")
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func orPlaceholder(s string) string {
	if strings.TrimSpace(s) == "" {
		return views.Placeholder
	}
	return s
}

// Inbox lists mention notifications, unread first in bold.
func Inbox(items []model.InboxItem, now time.Time) string {
	if len(items) == 0 {
		return styleMuted().Render("Inbox is empty.")
	}
	lines := make([]string, 0, len(items))
	for _, it := range items {
		head := fmt.Sprintf("%s mentioned you in %q (%s)", it.FromName, it.TaskTitle, it.ProjectName)
		if !it.Read {
			head = lipgloss.NewStyle().Bold(true).Render("● " + head)
		} else {
			head = "  " + head
		}
		lines = append(lines, head+" "+styleMuted().Render(when(it.CreatedAt, now)))
		if it.CommentText != "" {
			lines = append(lines, "    "+truncate(mentions(it.CommentText), 100))
		}
	}
	return strings.Join(lines, "\n")
}

// Chat renders a project conversation oldest first.
func Chat(msgs []model.ChatMessage, me string, now time.Time) string {
	if len(msgs) == 0 {
		return styleMuted().Render("No messages yet.")
	}
	lines := make([]string, 0, len(msgs))
	for _, m := range msgs {
		name := lipgloss.NewStyle().Bold(true)
		if m.SenderID == me {
			name = name.Foreground(colorAccent)
		}
		lines = append(lines, fmt.Sprintf("%s %s %s", styleMuted().Render(when(m.CreatedAt, now)), name.Render(m.SenderName+":"), mentions(m.Text)))
	}
	return strings.Join(lines, "\n")
}

// Notes lists the user's notes, most recently updated first.
func Notes(notes []model.Note, now time.Time) string {
	if len(notes) == 0 {
		return styleMuted().Render("No notes.")
	}
	lines := make([]string, 0, len(notes))
	for _, n := range notes {
		preview := strings.TrimSpace(strings.SplitN(n.Body, "\n", 2)[0])
		lines = append(lines, fmt.Sprintf("%s  %s  %s",
			lipgloss.NewStyle().Bold(true).Render(pad(n.Title, 28)),
			pad(preview, 40),
			styleMuted().Render(when(n.UpdatedAt, now))))
	}
	return strings.Join(lines, "\n")
}
