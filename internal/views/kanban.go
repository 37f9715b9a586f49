package views

import (
	"sort"
	"time"

	"boardsync/internal/entitystore"
	"boardsync/internal/model"
)

type KanbanColumn struct {
	Column model.Column `json:"column"`
	Cards  []Card       `json:"cards"`
}

type Kanban struct {
	ProjectID   string         `json:"projectId"`
	ProjectName string         `json:"projectName"`
	Columns     []KanbanColumn `json:"columns"`
	// Orphans counts tasks whose column no longer exists. The board has no
	// place for them; the list view shows them under Remaining.
	Orphans int `json:"orphans"`
	// Missing is set when the project is not (or no longer) in the store.
	Missing bool `json:"missing,omitempty"`
}

// SortedColumns returns p's columns ordered by Order. Columns sharing an
// order value keep their stored relative order.
func SortedColumns(p model.Project) []model.Column {
	cols := append([]model.Column(nil), p.Columns...)
	sort.SliceStable(cols, func(i, j int) bool { return cols[i].Order < cols[j].Order })
	return cols
}

// BuildKanban partitions a project's tasks by column. Tasks inside a column
// keep snapshot order; there is no intra-column ordering field.
func BuildKanban(snap *entitystore.Snapshot, pid string, f Filter, today time.Time) Kanban {
	p, ok := snap.Project(pid)
	if !ok {
		return Kanban{ProjectID: pid, ProjectName: Placeholder, Missing: true}
	}
	k := Kanban{ProjectID: pid, ProjectName: p.Name}
	cols := SortedColumns(p)
	idx := make(map[string]int, len(cols))
	k.Columns = make([]KanbanColumn, len(cols))
	for i, c := range cols {
		idx[c.ID] = i
		k.Columns[i] = KanbanColumn{Column: c, Cards: []Card{}}
	}
	for _, t := range snap.ProjectTasks(pid) {
		if !f.Match(t, &p) {
			continue
		}
		i, ok := idx[t.ColumnID]
		if !ok {
			k.Orphans++
			continue
		}
		k.Columns[i].Cards = append(k.Columns[i].Cards, newCard(t, &p, today))
	}
	return k
}
