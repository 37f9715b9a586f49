package publish

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"boardsync/internal/entitystore"
	"boardsync/internal/model"
	"boardsync/internal/statusutil"
	"boardsync/internal/views"
)

func stamp(ts model.Timestamp) string {
	if ts.IsZero() {
		return "unknown"
	}
	return ts.UTC().Format(time.RFC3339)
}

// RenderTaskMarkdown renders one task as a standalone page.
func RenderTaskMarkdown(snap *entitystore.Snapshot, taskID string) (string, error) {
	t, ok := snap.Task(strings.TrimSpace(taskID))
	if !ok {
		return "", fmt.Errorf("task not found: %s", taskID)
	}
	var p *model.Project
	if proj, ok := snap.Project(t.ProjectID); ok {
		p = &proj
	}

	var buf bytes.Buffer
	writeLn := func(s string) {
		buf.WriteString(s)
		buf.WriteString("\n")
	}

	writeLn("# " + strings.TrimSpace(t.Title))
	writeLn("")
	writeLn("## Meta")
	writeLn("")
	writeLn("- ID: " + t.ID)
	if p != nil {
		writeLn("- Project: " + p.Name + " (" + t.ProjectID + ")")
		if col, ok := p.Column(t.ColumnID); ok {
			writeLn("- Column: " + col.Name)
		}
	} else {
		writeLn("- Project: " + t.ProjectID)
	}
	if statusutil.IsTaskDone(t, p) {
		writeLn("- Status: done")
	} else {
		writeLn("- Status: open")
	}
	writeLn("- Priority: " + string(t.EffectivePriority()))
	if t.AssigneeName != "" {
		writeLn("- Assignee: " + t.AssigneeName)
	}
	if t.StartDate != "" {
		writeLn("- Start: " + t.StartDate)
	}
	if t.DueDate != "" {
		writeLn("- Due: " + t.DueDate)
	}
	writeLn("- Created: " + stamp(t.CreatedAt))

	if desc := strings.TrimSpace(t.Desc); desc != "" {
		writeLn("")
		writeLn("## Description")
		writeLn("")
		writeLn(desc)
	}

	if len(t.Checklist) > 0 {
		writeLn("")
		writeLn("## Checklist")
		writeLn("")
		for _, it := range t.Checklist {
			mark := " "
			if it.Done {
				mark = "x"
			}
			writeLn("- [" + mark + "] " + it.Text)
		}
	}

	if len(t.Attachments) > 0 {
		writeLn("")
		writeLn("## Attachments")
		writeLn("")
		for _, a := range t.Attachments {
			writeLn(fmt.Sprintf("- %s (%d bytes)", a.Name, a.Size))
		}
	}

	if len(t.Comments) > 0 {
		writeLn("")
		writeLn("## Comments")
		writeLn("")
		for _, c := range t.Comments {
			writeLn("### " + c.AuthorName + " (" + stamp(c.At) + ")")
			writeLn("")
			body := strings.TrimSpace(c.Text)
			if body == "" {
				body = "(empty)"
			}
			writeLn(body)
			for _, img := range c.Images {
				writeLn("")
				writeLn("- image: " + img.Name)
			}
			writeLn("")
		}
	}

	if len(t.History) > 0 {
		writeLn("")
		writeLn("## History")
		writeLn("")
		for _, h := range t.History {
			writeLn("- " + stamp(h.At) + " " + h.By + ": " + h.Action)
		}
	}

	return buf.String(), nil
}

// RenderProjectIndexMarkdown lists a project's tasks grouped by column, in
// board order, linking to the task pages.
func RenderProjectIndexMarkdown(snap *entitystore.Snapshot, pid string) (string, error) {
	return renderProjectIndex(snap, pid, ".md")
}

func renderProjectIndex(snap *entitystore.Snapshot, pid, ext string) (string, error) {
	p, ok := snap.Project(strings.TrimSpace(pid))
	if !ok {
		return "", fmt.Errorf("project not found: %s", pid)
	}

	var buf bytes.Buffer
	writeLn := func(s string) {
		buf.WriteString(s)
		buf.WriteString("\n")
	}

	writeLn("# " + p.Name + " (" + p.ID + ")")
	writeLn("")
	if d := strings.TrimSpace(p.Desc); d != "" {
		writeLn(d)
		writeLn("")
	}
	if p.Deadline != "" {
		writeLn("- Deadline: " + p.Deadline)
	}
	names := make([]string, 0, len(p.Members))
	for _, m := range p.Members {
		names = append(names, m.Name)
	}
	writeLn("- Members: " + strings.Join(names, ", "))

	byCol := map[string][]model.Task{}
	var orphans []model.Task
	for _, t := range snap.ProjectTasks(p.ID) {
		if _, ok := p.Column(t.ColumnID); ok {
			byCol[t.ColumnID] = append(byCol[t.ColumnID], t)
		} else {
			orphans = append(orphans, t)
		}
	}
	section := func(title string, tasks []model.Task) {
		writeLn("")
		writeLn(fmt.Sprintf("## %s (%d)", title, len(tasks)))
		writeLn("")
		for _, t := range tasks {
			mark := " "
			if statusutil.IsTaskDone(t, &p) {
				mark = "x"
			}
			line := fmt.Sprintf("- [%s] [%s](tasks/%s%s)", mark, strings.TrimSpace(t.Title), t.ID, ext)
			if t.DueDate != "" {
				line += " due " + t.DueDate
			}
			writeLn(line)
		}
	}
	for _, c := range views.SortedColumns(p) {
		section(c.Name, byCol[c.ID])
	}
	if len(orphans) > 0 {
		section("Without a column", orphans)
	}
	return buf.String(), nil
}
