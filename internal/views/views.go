// Package views builds render models from an entity store snapshot. Every
// builder is a pure function of its inputs: building twice from the same
// snapshot yields equal models, and missing projects, columns or assignees
// degrade to placeholders instead of errors.
package views

import (
	"strings"
	"time"
	"unicode"

	"boardsync/internal/entitystore"
	"boardsync/internal/model"
	"boardsync/internal/statusutil"
)

// Placeholder is shown for a referenced entity that no longer exists.
const Placeholder = "—"

// IsOverdue reports whether a date-only due date lies strictly before today.
// Unparseable or empty dates are never overdue.
func IsOverdue(due string, today time.Time) bool {
	d, ok := model.ParseDate(due, today.Location())
	if !ok {
		return false
	}
	return d.Before(model.StartOfDay(today))
}

// IsOverdueOpen is IsOverdue restricted to tasks that are not done.
func IsOverdueOpen(t model.Task, p *model.Project, today time.Time) bool {
	return IsOverdue(t.DueDate, today) && !statusutil.IsTaskDone(t, p)
}

// Initials returns up to two uppercase initials of a display name, "U" when
// the name is empty.
func Initials(name string) string {
	var b strings.Builder
	n := 0
	for _, w := range strings.Fields(name) {
		r := []rune(w)[0]
		b.WriteRune(unicode.ToUpper(r))
		n++
		if n == 2 {
			break
		}
	}
	if n == 0 {
		return "U"
	}
	return b.String()
}

func percent(done, total int) int {
	if total <= 0 {
		return 0
	}
	return (done*200 + total) / (2 * total)
}

func projectPtr(snap *entitystore.Snapshot, pid string) *model.Project {
	p, ok := snap.Project(pid)
	if !ok {
		return nil
	}
	return &p
}

// projectLookup resolves projects of a task set once per build.
type projectLookup struct {
	snap  *entitystore.Snapshot
	cache map[string]*model.Project
}

func newProjectLookup(snap *entitystore.Snapshot) *projectLookup {
	return &projectLookup{snap: snap, cache: map[string]*model.Project{}}
}

func (l *projectLookup) get(pid string) *model.Project {
	if p, ok := l.cache[pid]; ok {
		return p
	}
	p := projectPtr(l.snap, pid)
	l.cache[pid] = p
	return p
}

// Card is the summary of one task as shown on boards, lists and feeds.
type Card struct {
	ID           string         `json:"id"`
	ProjectID    string         `json:"projectId"`
	Title        string         `json:"title"`
	DueDate      string         `json:"dueDate,omitempty"`
	Overdue      bool           `json:"overdue"`
	Priority     model.Priority `json:"priority"`
	AssigneeName string         `json:"assigneeName,omitempty"`
	Initials     string         `json:"initials,omitempty"`
	Done         bool           `json:"done"`

	ChecklistDone    int `json:"checklistDone"`
	ChecklistTotal   int `json:"checklistTotal"`
	ChecklistPercent int `json:"checklistPercent"`
}

func newCard(t model.Task, p *model.Project, today time.Time) Card {
	done, total := t.ChecklistProgress()
	c := Card{
		ID:               t.ID,
		ProjectID:        t.ProjectID,
		Title:            t.Title,
		DueDate:          t.DueDate,
		Overdue:          IsOverdue(t.DueDate, today),
		Priority:         t.EffectivePriority(),
		AssigneeName:     t.AssigneeName,
		Done:             statusutil.IsTaskDone(t, p),
		ChecklistDone:    done,
		ChecklistTotal:   total,
		ChecklistPercent: percent(done, total),
	}
	if t.AssigneeName != "" {
		c.Initials = Initials(t.AssigneeName)
	}
	return c
}
