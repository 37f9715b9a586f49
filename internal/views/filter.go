package views

import (
	"strings"

	"boardsync/internal/model"
	"boardsync/internal/statusutil"
)

// Filter narrows the tasks a board or list shows. Zero values match
// everything.
type Filter struct {
	Priority   model.Priority `json:"priority,omitempty"`
	AssigneeID string         `json:"assigneeId,omitempty"`
	Search     string         `json:"search,omitempty"`
	HideDone   bool           `json:"hideDone,omitempty"`
}

func (f Filter) IsZero() bool {
	return f == Filter{}
}

// Match reports whether t passes every set criterion. Priority compares the
// effective priority, so filtering by medium includes tasks without one.
func (f Filter) Match(t model.Task, p *model.Project) bool {
	if f.Priority != "" && t.EffectivePriority() != f.Priority {
		return false
	}
	if f.AssigneeID != "" && t.AssigneeID != f.AssigneeID {
		return false
	}
	if f.HideDone && statusutil.IsTaskDone(t, p) {
		return false
	}
	if q := strings.ToLower(strings.TrimSpace(f.Search)); q != "" {
		hay := strings.ToLower(t.Title + "\n" + t.Desc + "\n" + t.AssigneeName)
		if !strings.Contains(hay, q) {
			return false
		}
	}
	return true
}
