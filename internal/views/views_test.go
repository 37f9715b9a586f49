package views

import (
	"reflect"
	"testing"
	"time"

	"boardsync/internal/entitystore"
	"boardsync/internal/model"
	"boardsync/internal/statusutil"
)

var today = time.Date(2024, 3, 13, 15, 30, 0, 0, time.UTC) // a Wednesday

func defaultProject(id, owner string) model.Project {
	return model.Project{
		ID:        id,
		Name:      "Website",
		OwnerID:   owner,
		MemberIDs: []string{owner},
		Members:   []model.Member{{UID: owner, Name: "Anna Kowalska", Role: model.RoleOwner}},
		Columns: []model.Column{
			{ID: "done", Name: "Done", Order: 2},
			{ID: "todo", Name: "To do", Order: 0},
			{ID: "doing", Name: "In progress", Order: 1},
		},
	}
}

func snapshotOf(uid string, projects []model.Project, tasks ...model.Task) *entitystore.Snapshot {
	s := entitystore.New()
	s.Begin(uid)
	var pc []entitystore.Change[model.Project]
	for _, p := range projects {
		pc = append(pc, entitystore.Change[model.Project]{Kind: entitystore.Added, ID: p.ID, Value: p})
	}
	s.ApplyProjects(true, pc)
	byProject := map[string][]entitystore.Change[model.Task]{}
	var order []string
	for _, t := range tasks {
		if _, ok := byProject[t.ProjectID]; !ok {
			order = append(order, t.ProjectID)
		}
		byProject[t.ProjectID] = append(byProject[t.ProjectID], entitystore.Change[model.Task]{Kind: entitystore.Added, ID: t.ID, Value: t})
	}
	for _, pid := range order {
		s.ApplyTasks(pid, true, byProject[pid])
	}
	return s.Snapshot()
}

func cardIDs(cards []Card) []string {
	out := []string{}
	for _, c := range cards {
		out = append(out, c.ID)
	}
	return out
}

func rowIDs(rows []ListRow) []string {
	out := []string{}
	for _, r := range rows {
		out = append(out, r.ID)
	}
	return out
}

func TestIsOverdue(t *testing.T) {
	t.Parallel()
	cases := map[string]bool{
		"2024-03-12": true,
		"2024-03-13": false,
		"2024-03-14": false,
		"":           false,
		"not-a-date": false,
	}
	for due, want := range cases {
		if got := IsOverdue(due, today); got != want {
			t.Fatalf("IsOverdue(%q): expected %v, got %v", due, want, got)
		}
	}
}

func TestInitials(t *testing.T) {
	t.Parallel()
	cases := map[string]string{
		"anna kowalska":       "AK",
		"Jan":                 "J",
		"Jan Maria Rokita":    "JM",
		"":                    "U",
		"  łukasz  żółw ":     "ŁŻ",
	}
	for in, want := range cases {
		if got := Initials(in); got != want {
			t.Fatalf("Initials(%q): expected %q, got %q", in, want, got)
		}
	}
}

func TestScenario_NewTaskInDefaultProject(t *testing.T) {
	t.Parallel()
	p := defaultProject("p1", "u1")
	task := model.Task{ID: "t1", ProjectID: "p1", ColumnID: "todo", Title: "Write copy", Status: model.StatusOpen}
	snap := snapshotOf("u1", []model.Project{p}, task)

	k := BuildKanban(snap, "p1", Filter{}, today)
	if k.Columns[0].Column.Name != "To do" || !reflect.DeepEqual(cardIDs(k.Columns[0].Cards), []string{"t1"}) {
		t.Fatalf("expected t1 in To do, got %+v", k.Columns)
	}
	l := BuildList(snap, "p1", ListOptions{}, today)
	if l.Sections[0].Name != "To do" || !reflect.DeepEqual(rowIDs(l.Sections[0].Rows), []string{"t1"}) {
		t.Fatalf("expected t1 in To do section, got %+v", l.Sections)
	}
	if statusutil.IsTaskDone(task, &p) {
		t.Fatalf("new task should not be done")
	}

	task.Status = model.StatusDone
	snap = snapshotOf("u1", []model.Project{p}, task)
	k = BuildKanban(snap, "p1", Filter{}, today)
	if !statusutil.IsTaskDone(task, &p) || !k.Columns[0].Cards[0].Done {
		t.Fatalf("explicit status should mark the task done without moving it: %+v", k.Columns[0])
	}
}

func TestBuildKanban_ColumnsByOrderAndOrphans(t *testing.T) {
	t.Parallel()
	p := defaultProject("p1", "u1")
	snap := snapshotOf("u1", []model.Project{p},
		model.Task{ID: "a", ProjectID: "p1", ColumnID: "doing"},
		model.Task{ID: "b", ProjectID: "p1", ColumnID: "todo"},
		model.Task{ID: "c", ProjectID: "p1", ColumnID: "deleted-column"},
		model.Task{ID: "d", ProjectID: "p1", ColumnID: "todo", AssigneeName: "Jan Nowak",
			Checklist: []model.ChecklistItem{{Done: true}, {}, {}}},
	)
	k := BuildKanban(snap, "p1", Filter{}, today)
	var names []string
	for _, c := range k.Columns {
		names = append(names, c.Column.Name)
	}
	if !reflect.DeepEqual(names, []string{"To do", "In progress", "Done"}) {
		t.Fatalf("unexpected column order: %v", names)
	}
	if got := cardIDs(k.Columns[0].Cards); !reflect.DeepEqual(got, []string{"b", "d"}) {
		t.Fatalf("cards should keep snapshot order: %v", got)
	}
	if k.Orphans != 1 {
		t.Fatalf("expected one orphan, got %d", k.Orphans)
	}
	d := k.Columns[0].Cards[1]
	if d.Initials != "JN" || d.ChecklistDone != 1 || d.ChecklistTotal != 3 || d.ChecklistPercent != 33 {
		t.Fatalf("unexpected card: %+v", d)
	}
}

func TestBuildKanban_MissingProjectDegrades(t *testing.T) {
	t.Parallel()
	snap := snapshotOf("u1", nil, model.Task{ID: "t1", ProjectID: "gone", ColumnID: "todo"})
	k := BuildKanban(snap, "gone", Filter{}, today)
	if !k.Missing || k.ProjectName != Placeholder || len(k.Columns) != 0 {
		t.Fatalf("expected a placeholder board, got %+v", k)
	}
}

func TestFilter_Match(t *testing.T) {
	t.Parallel()
	p := defaultProject("p1", "u1")
	task := model.Task{Title: "Fix header", Desc: "logo too big", AssigneeID: "u2", AssigneeName: "Jan", ColumnID: "done"}
	cases := []struct {
		f    Filter
		want bool
	}{
		{Filter{}, true},
		{Filter{Priority: model.PriorityMedium}, true},
		{Filter{Priority: model.PriorityHigh}, false},
		{Filter{AssigneeID: "u2"}, true},
		{Filter{AssigneeID: "u1"}, false},
		{Filter{Search: "LOGO"}, true},
		{Filter{Search: "jan"}, true},
		{Filter{Search: "footer"}, false},
		{Filter{HideDone: true}, false},
	}
	for _, tc := range cases {
		if got := tc.f.Match(task, &p); got != tc.want {
			t.Fatalf("%+v: expected %v, got %v", tc.f, tc.want, got)
		}
	}
}

func dueTasks() []model.Task {
	return []model.Task{
		{ID: "late", Title: "b", DueDate: "2024-03-20"},
		{ID: "none-z", Title: "zeta"},
		{ID: "early", Title: "a", DueDate: "2024-03-01"},
		{ID: "none-a", Title: "alpha"},
		{ID: "mid", Title: "c", DueDate: "2024-03-10"},
	}
}

func ids(tasks []model.Task) []string {
	out := []string{}
	for _, t := range tasks {
		out = append(out, t.ID)
	}
	return out
}

func TestSortTasks_UndatedLastInBothDirections(t *testing.T) {
	t.Parallel()
	asc := dueTasks()
	SortTasks(asc, SortDue, false, nil)
	if got := ids(asc); !reflect.DeepEqual(got, []string{"early", "mid", "late", "none-a", "none-z"}) {
		t.Fatalf("ascending: %v", got)
	}
	desc := dueTasks()
	SortTasks(desc, SortDue, true, nil)
	if got := ids(desc); !reflect.DeepEqual(got, []string{"late", "mid", "early", "none-a", "none-z"}) {
		t.Fatalf("descending: %v", got)
	}
}

func TestSortTasks_OtherKeys(t *testing.T) {
	t.Parallel()
	p := defaultProject("p1", "u1")
	tasks := func() []model.Task {
		return []model.Task{
			{ID: "1", Title: "Łódź", AssigneeName: "Zofia", Priority: model.PriorityLow, Status: model.StatusDone},
			{ID: "2", Title: "Lublin", AssigneeName: "Adam", Status: model.StatusOpen},
			{ID: "3", Title: "Mielec", AssigneeName: "Ćwik", Priority: model.PriorityHigh, ColumnID: "done"},
			{ID: "4", Title: "Kraków", AssigneeName: "Bartek", Priority: model.PriorityMedium},
		}
	}
	cases := []struct {
		key  SortKey
		desc bool
		want []string
	}{
		// Polish collation puts Ł after L.
		{SortTitle, false, []string{"4", "2", "1", "3"}},
		{SortTitle, true, []string{"3", "1", "2", "4"}},
		{SortAssignee, false, []string{"2", "4", "3", "1"}},
		{SortPriority, false, []string{"3", "2", "4", "1"}},
		{SortPriority, true, []string{"1", "2", "4", "3"}},
		// Legacy task 3 sits in a Done column. Equal status falls back to
		// title order in both directions.
		{SortStatus, false, []string{"4", "2", "1", "3"}},
		{SortStatus, true, []string{"1", "3", "4", "2"}},
	}
	for _, tc := range cases {
		ts := tasks()
		SortTasks(ts, tc.key, tc.desc, &p)
		if got := ids(ts); !reflect.DeepEqual(got, tc.want) {
			t.Fatalf("%s desc=%v: expected %v, got %v", tc.key, tc.desc, tc.want, got)
		}
	}
}

func TestSortTasks_CreatedUndatedLast(t *testing.T) {
	t.Parallel()
	at := func(s string) model.Timestamp {
		v, _ := time.Parse(time.RFC3339, s)
		return model.NewTimestamp(v)
	}
	ts := []model.Task{
		{ID: "none"},
		{ID: "new", CreatedAt: at("2024-03-02T00:00:00Z")},
		{ID: "old", CreatedAt: at("2024-03-01T00:00:00Z")},
	}
	SortTasks(ts, SortCreated, true, nil)
	if got := ids(ts); !reflect.DeepEqual(got, []string{"new", "old", "none"}) {
		t.Fatalf("unexpected order: %v", got)
	}
}

func TestBuildList_SectionsCollapseAndRemaining(t *testing.T) {
	t.Parallel()
	p := defaultProject("p1", "u1")
	snap := snapshotOf("u1", []model.Project{p},
		model.Task{ID: "a", ProjectID: "p1", ColumnID: "todo", Title: "b"},
		model.Task{ID: "b", ProjectID: "p1", ColumnID: "todo", Title: "a"},
		model.Task{ID: "c", ProjectID: "p1", ColumnID: "doing"},
		model.Task{ID: "d", ProjectID: "p1", ColumnID: "removed"},
	)
	l := BuildList(snap, "p1", ListOptions{
		Sort:      SortTitle,
		Collapsed: map[string]bool{"doing": true},
		Columns: []model.ListColumnPref{
			{ID: "title", Visible: true},
			{ID: "desc", Visible: false},
			{ID: "due", Width: 90, Visible: true},
		},
	}, today)

	var got []string
	for _, s := range l.Sections {
		got = append(got, s.ID)
	}
	if !reflect.DeepEqual(got, []string{"todo", "doing", "done", RemainingSection}) {
		t.Fatalf("unexpected sections: %v", got)
	}
	if ids := rowIDs(l.Sections[0].Rows); !reflect.DeepEqual(ids, []string{"b", "a"}) {
		t.Fatalf("rows should be sorted by title: %v", ids)
	}
	doing := l.Sections[1]
	if !doing.Collapsed || doing.Count != 1 || len(doing.Rows) != 0 {
		t.Fatalf("collapsed section should keep its count only: %+v", doing)
	}
	rem := l.Sections[3]
	if rem.Name != RemainingName || rem.Rows[0].ColumnName != Placeholder {
		t.Fatalf("unexpected remaining section: %+v", rem)
	}
	if len(l.Columns) != 2 || l.Columns[1].ID != "due" {
		t.Fatalf("only visible columns expected: %+v", l.Columns)
	}
}

func TestBuildList_NoRemainingSectionWithoutOrphans(t *testing.T) {
	t.Parallel()
	p := defaultProject("p1", "u1")
	snap := snapshotOf("u1", []model.Project{p}, model.Task{ID: "a", ProjectID: "p1", ColumnID: "todo"})
	l := BuildList(snap, "p1", ListOptions{}, today)
	if len(l.Sections) != 3 {
		t.Fatalf("expected only column sections, got %+v", l.Sections)
	}
}

func TestBuilders_AreIdempotent(t *testing.T) {
	t.Parallel()
	p := defaultProject("p1", "u1")
	snap := snapshotOf("u1", []model.Project{p},
		model.Task{ID: "a", ProjectID: "p1", ColumnID: "todo", DueDate: "2024-03-12"},
		model.Task{ID: "b", ProjectID: "p1", ColumnID: "x", DueDate: "2024-03-20", StartDate: "2024-03-18"},
	)
	opts := ListOptions{Sort: SortDue, Desc: true}
	if a, b := BuildKanban(snap, "p1", Filter{}, today), BuildKanban(snap, "p1", Filter{}, today); !reflect.DeepEqual(a, b) {
		t.Fatalf("kanban differs between builds")
	}
	if a, b := BuildList(snap, "p1", opts, today), BuildList(snap, "p1", opts, today); !reflect.DeepEqual(a, b) {
		t.Fatalf("list differs between builds")
	}
	if a, b := BuildGantt(snap, "p1", today, GanttOptions{}), BuildGantt(snap, "p1", today, GanttOptions{}); !reflect.DeepEqual(a, b) {
		t.Fatalf("gantt differs between builds")
	}
	if a, b := BuildDashboard(snap, today), BuildDashboard(snap, today); !reflect.DeepEqual(a, b) {
		t.Fatalf("dashboard differs between builds")
	}
	if a, b := BuildStatistics(snap, StatsOptions{}, today), BuildStatistics(snap, StatsOptions{}, today); !reflect.DeepEqual(a, b) {
		t.Fatalf("statistics differ between builds")
	}
}
