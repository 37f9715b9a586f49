// Package prefs keeps the per-user list layout: which list columns show, in
// what order, and which list sections are collapsed in each project.
package prefs

import (
	"fmt"

	"boardsync/internal/model"
)

// Column is one list-view column as rendered. Width 0 means the column
// takes the remaining space.
type Column struct {
	ID      string `json:"id"`
	Label   string `json:"label"`
	Width   int    `json:"width"`
	Visible bool   `json:"visible"`
}

// Defaults is the shipped column layout. Widths here always win over stored
// ones so width changes need no migration.
var Defaults = []Column{
	{ID: "checkbox", Label: "", Width: 36, Visible: true},
	{ID: "title", Label: "Task", Width: 0, Visible: true},
	{ID: "desc", Label: "Description", Width: 200, Visible: false},
	{ID: "assignee", Label: "Assignee", Width: 130, Visible: true},
	{ID: "status", Label: "Status", Width: 100, Visible: true},
	{ID: "due", Label: "Due", Width: 90, Visible: true},
	{ID: "priority", Label: "Priority", Width: 90, Visible: true},
	{ID: "created", Label: "Created", Width: 110, Visible: false},
}

// Merge overlays saved visibility and order on defaults. Saved ids unknown
// to defaults are dropped; default columns missing from saved keep their
// default visibility and go last, in default order.
func Merge(defaults []Column, saved []model.ListColumnPref) []Column {
	byID := make(map[string]Column, len(defaults))
	for _, d := range defaults {
		byID[d.ID] = d
	}
	out := make([]Column, 0, len(defaults))
	used := map[string]bool{}
	for _, s := range saved {
		d, ok := byID[s.ID]
		if !ok || used[s.ID] {
			continue
		}
		used[s.ID] = true
		d.Visible = s.Visible
		out = append(out, d)
	}
	for _, d := range defaults {
		if !used[d.ID] {
			out = append(out, d)
		}
	}
	return out
}

// Persisted converts a layout into its stored form.
func Persisted(cols []Column) []model.ListColumnPref {
	out := make([]model.ListColumnPref, 0, len(cols))
	for _, c := range cols {
		out = append(out, model.ListColumnPref{ID: c.ID, Width: c.Width, Visible: c.Visible})
	}
	return out
}

func indexOf(cols []Column, id string) int {
	for i, c := range cols {
		if c.ID == id {
			return i
		}
	}
	return -1
}

// ToggleVisible flips one column's visibility. The title column always shows.
func ToggleVisible(cols []Column, id string) ([]Column, error) {
	i := indexOf(cols, id)
	if i < 0 {
		return nil, fmt.Errorf("unknown column %q", id)
	}
	if id == "title" {
		return nil, fmt.Errorf("column %q cannot be hidden", id)
	}
	out := append([]Column(nil), cols...)
	out[i].Visible = !out[i].Visible
	return out, nil
}

// Move shifts a column by delta positions, clamped to the list bounds.
func Move(cols []Column, id string, delta int) ([]Column, error) {
	i := indexOf(cols, id)
	if i < 0 {
		return nil, fmt.Errorf("unknown column %q", id)
	}
	j := i + delta
	if j < 0 {
		j = 0
	}
	if j > len(cols)-1 {
		j = len(cols) - 1
	}
	out := append([]Column(nil), cols...)
	c := out[i]
	out = append(out[:i], out[i+1:]...)
	out = append(out[:j], append([]Column{c}, out[j:]...)...)
	return out, nil
}
