package views

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"boardsync/internal/entitystore"
	"boardsync/internal/model"
	"boardsync/internal/statusutil"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

type SortKey string

const (
	SortDue      SortKey = "due"
	SortTitle    SortKey = "title"
	SortAssignee SortKey = "assignee"
	SortPriority SortKey = "priority"
	SortStatus   SortKey = "status"
	SortCreated  SortKey = "created"
)

var SortKeys = []SortKey{SortDue, SortTitle, SortAssignee, SortPriority, SortStatus, SortCreated}

func ParseSortKey(s string) (SortKey, error) {
	k := SortKey(strings.ToLower(strings.TrimSpace(s)))
	if k == "" {
		return SortDue, nil
	}
	for _, v := range SortKeys {
		if v == k {
			return k, nil
		}
	}
	return "", fmt.Errorf("invalid sort key: %q", s)
}

// Next cycles through SortKeys.
func (k SortKey) Next() SortKey {
	for i, v := range SortKeys {
		if v == k {
			return SortKeys[(i+1)%len(SortKeys)]
		}
	}
	return SortDue
}

// RemainingSection is the id of the synthetic section holding orphan tasks.
const RemainingSection = "__none__"

// RemainingName is the label of the orphan section.
const RemainingName = "Remaining"

type ListOptions struct {
	Sort   SortKey
	Desc   bool
	Filter Filter
	// Collapsed holds the ids of collapsed sections.
	Collapsed map[string]bool
	// Columns is the merged column layout; only visible entries are kept.
	Columns []model.ListColumnPref
}

type ListRow struct {
	Card
	Desc       string           `json:"desc,omitempty"`
	Status     model.TaskStatus `json:"status"`
	ColumnName string           `json:"columnName"`
	CreatedAt  model.Timestamp  `json:"createdAt"`
}

type Section struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Color     string    `json:"color,omitempty"`
	Count     int       `json:"count"`
	Collapsed bool      `json:"collapsed"`
	Rows      []ListRow `json:"rows"`
}

type List struct {
	ProjectID string                 `json:"projectId"`
	Sort      SortKey                `json:"sort"`
	Desc      bool                   `json:"desc"`
	Columns   []model.ListColumnPref `json:"columns"`
	Sections  []Section              `json:"sections"`
	Missing   bool                   `json:"missing,omitempty"`
}

// BuildList groups a project's filtered, sorted tasks into one section per
// column plus a Remaining section for orphans. Collapsed sections keep their
// count but carry no rows.
func BuildList(snap *entitystore.Snapshot, pid string, opts ListOptions, today time.Time) List {
	if opts.Sort == "" {
		opts.Sort = SortDue
	}
	l := List{ProjectID: pid, Sort: opts.Sort, Desc: opts.Desc, Columns: []model.ListColumnPref{}, Sections: []Section{}}
	for _, c := range opts.Columns {
		if c.Visible {
			l.Columns = append(l.Columns, c)
		}
	}
	p, ok := snap.Project(pid)
	if !ok {
		l.Missing = true
		return l
	}

	var tasks []model.Task
	for _, t := range snap.ProjectTasks(pid) {
		if opts.Filter.Match(t, &p) {
			tasks = append(tasks, t)
		}
	}
	SortTasks(tasks, opts.Sort, opts.Desc, &p)

	cols := SortedColumns(p)
	byColumn := map[string][]ListRow{}
	for _, t := range tasks {
		key := t.ColumnID
		name := Placeholder
		if c, ok := p.Column(t.ColumnID); ok {
			name = c.Name
		} else {
			key = RemainingSection
		}
		byColumn[key] = append(byColumn[key], ListRow{
			Card:       newCard(t, &p, today),
			Desc:       t.Desc,
			Status:     t.Status,
			ColumnName: name,
			CreatedAt:  t.CreatedAt,
		})
	}

	add := func(id, name, color string, always bool) {
		rows := byColumn[id]
		if len(rows) == 0 && !always {
			return
		}
		s := Section{ID: id, Name: name, Color: color, Count: len(rows), Collapsed: opts.Collapsed[id], Rows: []ListRow{}}
		if !s.Collapsed {
			s.Rows = append(s.Rows, rows...)
		}
		l.Sections = append(l.Sections, s)
	}
	for _, c := range cols {
		add(c.ID, c.Name, c.Color, true)
	}
	add(RemainingSection, RemainingName, "", false)
	return l
}

// SortTasks orders tasks in place. The sort is stable. Tasks without a due
// (or created) date sort after dated ones in both directions and compare by
// title among themselves; descending order only reverses the dated tasks.
// Tasks with the same status compare by title.
// p resolves the legacy done fallback for the status key and may be nil.
func SortTasks(tasks []model.Task, key SortKey, desc bool, p *model.Project) {
	dir := 1
	if desc {
		dir = -1
	}
	// A collator is not safe for concurrent use; build one per call.
	col := collate.New(language.Polish)
	cmpText := func(a, b string) int { return col.CompareString(a, b) }
	loc := time.Local

	var cmp func(a, b model.Task) int
	switch key {
	case SortTitle:
		cmp = func(a, b model.Task) int { return cmpText(a.Title, b.Title) * dir }
	case SortAssignee:
		cmp = func(a, b model.Task) int { return cmpText(a.AssigneeName, b.AssigneeName) * dir }
	case SortPriority:
		cmp = func(a, b model.Task) int {
			return (a.EffectivePriority().Rank() - b.EffectivePriority().Rank()) * dir
		}
	case SortStatus:
		cmp = func(a, b model.Task) int {
			if r := (doneRank(a, p) - doneRank(b, p)) * dir; r != 0 {
				return r
			}
			return cmpText(a.Title, b.Title)
		}
	case SortCreated:
		cmp = func(a, b model.Task) int {
			az, bz := a.CreatedAt.IsZero(), b.CreatedAt.IsZero()
			switch {
			case !az && !bz:
				return a.CreatedAt.Compare(b.CreatedAt.Time) * dir
			case !az:
				return -1
			case !bz:
				return 1
			}
			return 0
		}
	default:
		cmp = func(a, b model.Task) int {
			ad, aok := model.ParseDate(a.DueDate, loc)
			bd, bok := model.ParseDate(b.DueDate, loc)
			switch {
			case aok && bok:
				return ad.Compare(bd) * dir
			case aok:
				return -1
			case bok:
				return 1
			}
			return cmpText(a.Title, b.Title)
		}
	}
	sort.SliceStable(tasks, func(i, j int) bool { return cmp(tasks[i], tasks[j]) < 0 })
}

func doneRank(t model.Task, p *model.Project) int {
	if statusutil.IsTaskDone(t, p) {
		return 1
	}
	return 0
}
