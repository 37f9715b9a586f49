package statusutil

import (
	"fmt"
	"strings"

	"boardsync/internal/model"
)

// NormalizeStatus maps user input onto the task status field. "none" clears
// the field, which puts the task back on the legacy column-name fallback.
func NormalizeStatus(s string) (model.TaskStatus, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "open", "todo", "undone":
		return model.StatusOpen, nil
	case "done", "closed", "complete":
		return model.StatusDone, nil
	case "none":
		return "", nil
	case "":
		return "", fmt.Errorf("invalid status: empty")
	default:
		return "", fmt.Errorf("invalid status: %q (want open|done|none)", s)
	}
}

// legacyDoneKeywords are lowercase substrings of column names that meant
// "done" before tasks carried an explicit status ("Gotowe", "Zakończone", "Done").
var legacyDoneKeywords = []string{"gotow", "zako", "done"}

// LegacyDoneColumn reports whether a column name reads as a done column.
// Only tasks without a status field consult it.
func LegacyDoneColumn(name string) bool {
	n := strings.ToLower(name)
	for _, kw := range legacyDoneKeywords {
		if strings.Contains(n, kw) {
			return true
		}
	}
	return false
}

// IsTaskDone prefers the explicit status field. Tasks without one fall back
// to the name of their column; a missing project or column means open.
func IsTaskDone(t model.Task, p *model.Project) bool {
	switch t.Status {
	case model.StatusDone:
		return true
	case "":
	default:
		return false
	}
	if p == nil {
		return false
	}
	col, ok := p.Column(t.ColumnID)
	if !ok {
		return false
	}
	return LegacyDoneColumn(col.Name)
}
