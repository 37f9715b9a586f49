package app

import (
	"time"

	"boardsync/internal/entitystore"
	"boardsync/internal/model"
	"boardsync/internal/views"
)

// UIState is the per-session navigation state.
type UIState struct {
	ProjectID string        `json:"projectId,omitempty"`
	View      View          `json:"view"`
	Sort      views.SortKey `json:"sort"`
	Desc      bool          `json:"desc"`
	Year      int           `json:"year"`
	Month     time.Month    `json:"month"`
}

func (a *App) State() UIState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return UIState{ProjectID: a.projectID, View: a.view, Sort: a.sortKey, Desc: a.sortDesc, Year: a.year, Month: a.month}
}

// SelectProject makes pid the current project and makes sure its tasks are
// subscribed.
func (a *App) SelectProject(pid string) error {
	if _, err := a.project(pid); err != nil {
		return err
	}
	a.subs.EnsureTasks(pid)
	a.mu.Lock()
	a.projectID = pid
	a.mu.Unlock()
	return nil
}

// CycleProject moves the current project by delta through the active
// projects, wrapping around.
func (a *App) CycleProject(delta int) string {
	ps := a.Snapshot().ActiveProjects()
	if len(ps) == 0 {
		return ""
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	n := len(ps)
	idx := -1
	for i, p := range ps {
		if p.ID == a.projectID {
			idx = i
		}
	}
	switch {
	case idx >= 0:
		idx = ((idx+delta)%n + n) % n
	case delta < 0:
		idx = n - 1
	default:
		idx = 0
	}
	a.projectID = ps[idx].ID
	a.subs.EnsureTasks(a.projectID)
	return a.projectID
}

func (a *App) CurrentProject() (model.Project, bool) {
	a.mu.Lock()
	pid := a.projectID
	a.mu.Unlock()
	if pid == "" {
		return model.Project{}, false
	}
	return a.Snapshot().Project(pid)
}

func (a *App) SetView(v View) {
	a.mu.Lock()
	a.view = v
	a.mu.Unlock()
}

func (a *App) SetFilter(pid string, f views.Filter) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if f.IsZero() {
		delete(a.filters, pid)
		return
	}
	a.filters[pid] = f
}

func (a *App) Filter(pid string) views.Filter {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.filters[pid]
}

func (a *App) SetSort(key views.SortKey, desc bool) {
	a.mu.Lock()
	a.sortKey, a.sortDesc = key, desc
	a.mu.Unlock()
}

// CycleSort advances to the next sort key, ascending.
func (a *App) CycleSort() views.SortKey {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sortKey = a.sortKey.Next()
	a.sortDesc = false
	return a.sortKey
}

func (a *App) ReverseSort() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sortDesc = !a.sortDesc
	return a.sortDesc
}

// ToggleSection collapses or expands a list section and persists the choice.
func (a *App) ToggleSection(pid, sectionID string) bool {
	return a.prefs.ToggleCollapsed(pid, sectionID)
}

// ShiftMonth moves the calendar by delta months.
func (a *App) ShiftMonth(delta int) (int, time.Month) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.year, a.month = views.ShiftMonth(a.year, a.month, delta)
	return a.year, a.month
}

func (a *App) Kanban(pid string) views.Kanban {
	return views.BuildKanban(a.Snapshot(), pid, a.Filter(pid), a.Today())
}

func (a *App) List(pid string) views.List {
	st := a.State()
	return views.BuildList(a.Snapshot(), pid, views.ListOptions{
		Sort:      st.Sort,
		Desc:      st.Desc,
		Filter:    a.Filter(pid),
		Collapsed: a.prefs.Collapsed(pid),
		Columns:   a.prefs.ListColumns(),
	}, a.Today())
}

func (a *App) Gantt(pid string) views.Gantt {
	return views.BuildGantt(a.Snapshot(), pid, a.Today(), views.GanttOptions{Filter: a.Filter(pid)})
}

// Calendar is the month grid over every task of the user's projects.
func (a *App) Calendar() views.Month {
	st := a.State()
	snap := a.Snapshot()
	return views.BuildMonth(st.Year, st.Month, snap.AllTasks(), projectFunc(snap), a.Today())
}

func (a *App) Dashboard() views.Dashboard {
	return views.BuildDashboard(a.Snapshot(), a.Today())
}

func (a *App) Statistics(opts views.StatsOptions) views.Statistics {
	return views.BuildStatistics(a.Snapshot(), opts, a.Today())
}

func (a *App) ProjectCards(archived bool) []views.ProjectSummary {
	return views.ProjectCards(a.Snapshot(), archived, a.Today())
}

func projectFunc(snap *entitystore.Snapshot) func(string) *model.Project {
	return func(pid string) *model.Project {
		p, ok := snap.Project(pid)
		if !ok {
			return nil
		}
		return &p
	}
}
