package statusutil

import (
	"testing"

	"boardsync/internal/model"
)

func TestNormalizeStatus(t *testing.T) {
	cases := []struct {
		in      string
		want    model.TaskStatus
		wantErr bool
	}{
		{"open", model.StatusOpen, false},
		{"TODO", model.StatusOpen, false},
		{"done", model.StatusDone, false},
		{" Done ", model.StatusDone, false},
		{"none", "", false},
		{"", "", true},
		{"backlog", "", true},
	}
	for _, tc := range cases {
		got, err := NormalizeStatus(tc.in)
		if tc.wantErr && err == nil {
			t.Fatalf("NormalizeStatus(%q): expected error", tc.in)
		}
		if !tc.wantErr && err != nil {
			t.Fatalf("NormalizeStatus(%q): unexpected error: %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("NormalizeStatus(%q): expected %q, got %q", tc.in, tc.want, got)
		}
	}
}

func TestLegacyDoneColumn(t *testing.T) {
	cases := map[string]bool{
		"Gotowe":        true,
		"Zakończone":    true,
		"DONE":          true,
		"Almost done":   true,
		"To do":         false,
		"In progress":   false,
		"":              false,
		"W trakcie":     false,
		"zakonczone ok": true,
	}
	for name, want := range cases {
		if got := LegacyDoneColumn(name); got != want {
			t.Fatalf("LegacyDoneColumn(%q): expected %v, got %v", name, want, got)
		}
	}
}

func TestIsTaskDone(t *testing.T) {
	p := &model.Project{Columns: []model.Column{
		{ID: "todo", Name: "To do"},
		{ID: "done", Name: "Done"},
	}}
	cases := []struct {
		name string
		task model.Task
		p    *model.Project
		want bool
	}{
		{"explicit done in todo column", model.Task{Status: model.StatusDone, ColumnID: "todo"}, p, true},
		{"explicit open in done column", model.Task{Status: model.StatusOpen, ColumnID: "done"}, p, false},
		{"legacy task in done column", model.Task{ColumnID: "done"}, p, true},
		{"legacy task in todo column", model.Task{ColumnID: "todo"}, p, false},
		{"legacy task with missing column", model.Task{ColumnID: "gone"}, p, false},
		{"legacy task with missing project", model.Task{ColumnID: "done"}, nil, false},
		{"explicit done with missing project", model.Task{Status: model.StatusDone}, nil, true},
		{"unknown status is not done", model.Task{Status: "archived", ColumnID: "done"}, p, false},
	}
	for _, tc := range cases {
		if got := IsTaskDone(tc.task, tc.p); got != tc.want {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, got)
		}
	}
}
