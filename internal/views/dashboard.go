package views

import (
	"sort"
	"strings"
	"time"

	"boardsync/internal/entitystore"
	"boardsync/internal/model"
	"boardsync/internal/statusutil"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

type FeedItem struct {
	TaskID      string         `json:"taskId"`
	ProjectID   string         `json:"projectId"`
	ProjectName string         `json:"projectName"`
	Title       string         `json:"title"`
	DueDate     string         `json:"dueDate,omitempty"`
	Priority    model.Priority `json:"priority"`
	Overdue     bool           `json:"overdue"`
	Done        bool           `json:"done"`
}

type Dashboard struct {
	MyTasks        int        `json:"myTasks"`
	Overdue        int        `json:"overdue"`
	Done           int        `json:"done"`
	ActiveProjects int        `json:"activeProjects"`
	Unread         int        `json:"unread"`
	Upcoming       []FeedItem `json:"upcoming"`
	Today          []FeedItem `json:"today"`
	Calendar       Month      `json:"calendar"`
}

func feedItem(t model.Task, projects *projectLookup, today time.Time) FeedItem {
	p := projects.get(t.ProjectID)
	name := Placeholder
	if p != nil {
		name = p.Name
	}
	return FeedItem{
		TaskID:      t.ID,
		ProjectID:   t.ProjectID,
		ProjectName: name,
		Title:       t.Title,
		DueDate:     t.DueDate,
		Priority:    t.EffectivePriority(),
		Overdue:     IsOverdue(t.DueDate, today),
		Done:        statusutil.IsTaskDone(t, p),
	}
}

// BuildDashboard counts over the user's own tasks. The upcoming (due from
// tomorrow) and today feeds take open tasks from every subscribed project
// that are assigned to the user or to nobody.
func BuildDashboard(snap *entitystore.Snapshot, today time.Time) Dashboard {
	projects := newProjectLookup(snap)
	d := Dashboard{
		ActiveProjects: len(snap.ActiveProjects()),
		Unread:         snap.UnreadCount(),
		Upcoming:       []FeedItem{},
		Today:          []FeedItem{},
	}
	mine := snap.MyTasks()
	d.MyTasks = len(mine)
	for _, t := range mine {
		if IsOverdue(t.DueDate, today) {
			d.Overdue++
		}
		if statusutil.IsTaskDone(t, projects.get(t.ProjectID)) {
			d.Done++
		}
	}

	loc := today.Location()
	tomorrow := model.StartOfDay(today).AddDate(0, 0, 1)
	todayStr := model.FormatDate(today)
	type dated struct {
		due  time.Time
		item FeedItem
	}
	var upcoming []dated
	all := snap.AllTasks()
	for _, t := range all {
		if t.AssigneeID != "" && t.AssigneeID != snap.UserID {
			continue
		}
		due, ok := model.ParseDate(t.DueDate, loc)
		if !ok || statusutil.IsTaskDone(t, projects.get(t.ProjectID)) {
			continue
		}
		switch {
		case model.FormatDate(due) == todayStr:
			d.Today = append(d.Today, feedItem(t, projects, today))
		case !due.Before(tomorrow):
			upcoming = append(upcoming, dated{due: due, item: feedItem(t, projects, today)})
		}
	}
	sort.SliceStable(upcoming, func(i, j int) bool { return upcoming[i].due.Before(upcoming[j].due) })
	for _, u := range upcoming {
		d.Upcoming = append(d.Upcoming, u.item)
	}
	d.Calendar = MiniMonth(today.Year(), today.Month(), all, today)
	return d
}

type StatsPeriod string

const (
	PeriodAll   StatsPeriod = "all"
	PeriodWeek  StatsPeriod = "week"
	PeriodMonth StatsPeriod = "month"
)

type StatsSort string

const (
	StatsByName     StatsSort = "name"
	StatsByTasks    StatsSort = "tasks"
	StatsByProgress StatsSort = "progress"
)

type StatsOptions struct {
	// ProjectID limits the task totals to one project; empty means all.
	ProjectID string
	Period    StatsPeriod
	SortBy    StatsSort
}

type ProjectSummary struct {
	ProjectID string `json:"projectId"`
	Name      string `json:"name"`
	Desc      string `json:"desc,omitempty"`
	Color     string `json:"color,omitempty"`
	Deadline  string `json:"deadline,omitempty"`
	Archived  bool   `json:"archived,omitempty"`
	Total     int    `json:"total"`
	Done      int    `json:"done"`
	Progress  int    `json:"progress"`
	Overdue   int    `json:"overdue"`
	Members   int    `json:"members"`
}

type Statistics struct {
	Total          int                    `json:"total"`
	Overdue        int                    `json:"overdue"`
	High           int                    `json:"high"`
	Done           int                    `json:"done"`
	ByPriority     map[model.Priority]int `json:"byPriority"`
	ActiveProjects int                    `json:"activeProjects"`
	Projects       []ProjectSummary       `json:"projects"`
}

// BuildStatistics totals the user's own tasks, optionally narrowed to one
// project and to tasks due within the last week or month, and summarizes
// progress of every active project over all of its tasks.
func BuildStatistics(snap *entitystore.Snapshot, opts StatsOptions, today time.Time) Statistics {
	projects := newProjectLookup(snap)
	st := Statistics{ByPriority: map[model.Priority]int{}, Projects: []ProjectSummary{}}

	var since time.Time
	switch opts.Period {
	case PeriodWeek:
		since = model.StartOfDay(today).AddDate(0, 0, -7)
	case PeriodMonth:
		since = model.StartOfDay(today).AddDate(0, 0, -30)
	}
	for _, t := range snap.MyTasks() {
		if opts.ProjectID != "" && t.ProjectID != opts.ProjectID {
			continue
		}
		if !since.IsZero() {
			due, ok := model.ParseDate(t.DueDate, today.Location())
			if !ok || due.Before(since) {
				continue
			}
		}
		st.Total++
		if IsOverdue(t.DueDate, today) {
			st.Overdue++
		}
		pr := t.EffectivePriority()
		if pr == model.PriorityHigh {
			st.High++
		}
		st.ByPriority[pr]++
		if statusutil.IsTaskDone(t, projects.get(t.ProjectID)) {
			st.Done++
		}
	}

	active := snap.ActiveProjects()
	st.ActiveProjects = len(active)
	for _, p := range active {
		st.Projects = append(st.Projects, summarize(snap, p, today))
	}
	switch opts.SortBy {
	case StatsByTasks:
		sort.SliceStable(st.Projects, func(i, j int) bool { return st.Projects[i].Total > st.Projects[j].Total })
	case StatsByProgress:
		sort.SliceStable(st.Projects, func(i, j int) bool { return st.Projects[i].Progress > st.Projects[j].Progress })
	default:
		col := collate.New(language.Polish)
		sort.SliceStable(st.Projects, func(i, j int) bool {
			return col.CompareString(st.Projects[i].Name, st.Projects[j].Name) < 0
		})
	}
	return st
}

func ParseStatsPeriod(s string) StatsPeriod {
	switch StatsPeriod(strings.ToLower(s)) {
	case PeriodWeek:
		return PeriodWeek
	case PeriodMonth:
		return PeriodMonth
	}
	return PeriodAll
}

func summarize(snap *entitystore.Snapshot, p model.Project, today time.Time) ProjectSummary {
	s := ProjectSummary{
		ProjectID: p.ID,
		Name:      p.Name,
		Desc:      p.Desc,
		Color:     p.Color,
		Deadline:  p.Deadline,
		Archived:  p.Archived,
		Members:   len(p.Members),
	}
	for _, t := range snap.ProjectTasks(p.ID) {
		s.Total++
		if statusutil.IsTaskDone(t, &p) {
			s.Done++
		}
		if IsOverdue(t.DueDate, today) {
			s.Overdue++
		}
	}
	s.Progress = percent(s.Done, s.Total)
	return s
}

// ProjectCard summarizes one project for the project grid.
func ProjectCard(snap *entitystore.Snapshot, pid string, today time.Time) (ProjectSummary, bool) {
	p, ok := snap.Project(pid)
	if !ok {
		return ProjectSummary{ProjectID: pid, Name: Placeholder}, false
	}
	return summarize(snap, p, today), true
}

// ProjectCards summarizes the active (or archived) projects in store order.
func ProjectCards(snap *entitystore.Snapshot, archived bool, today time.Time) []ProjectSummary {
	src := snap.ActiveProjects()
	if archived {
		src = snap.ArchivedProjects()
	}
	out := make([]ProjectSummary, 0, len(src))
	for _, p := range src {
		out = append(out, summarize(snap, p, today))
	}
	return out
}
