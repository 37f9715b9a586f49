package views

import (
	"time"

	"boardsync/internal/model"
	"boardsync/internal/statusutil"
)

// MaxDayTasks is how many tasks a month cell lists before summarizing.
const MaxDayTasks = 3

// Weekdays are the grid column headers, Monday first.
var Weekdays = []string{"Mon", "Tue", "Wed", "Thu", "Fri", "Sat", "Sun"}

type CalendarTask struct {
	ID        string         `json:"id"`
	ProjectID string         `json:"projectId"`
	Title     string         `json:"title"`
	Priority  model.Priority `json:"priority"`
	Done      bool           `json:"done"`
}

type Day struct {
	Date    string `json:"date"`
	Day     int    `json:"day"`
	InMonth bool   `json:"inMonth"`
	Today   bool   `json:"today"`
	// Tasks holds at most MaxDayTasks entries; More counts the rest.
	Tasks    []CalendarTask `json:"tasks,omitempty"`
	More     int            `json:"more,omitempty"`
	HasTasks bool           `json:"hasTasks"`
}

type Month struct {
	Year  int        `json:"year"`
	Month time.Month `json:"month"`
	Weeks [][7]Day   `json:"weeks"`
}

// ShiftMonth moves (year, month) by delta months.
func ShiftMonth(year int, month time.Month, delta int) (int, time.Month) {
	t := time.Date(year, month+time.Month(delta), 1, 0, 0, 0, 0, time.UTC)
	return t.Year(), t.Month()
}

// BuildMonth lays out a Monday-first month grid. In-month cells list the
// tasks whose due date string equals the cell's date; filler days from the
// neighbouring months carry only their day number. project resolves the legacy
// done fallback and may be nil.
func BuildMonth(year int, month time.Month, tasks []model.Task, project func(pid string) *model.Project, today time.Time) Month {
	return buildMonth(year, month, tasks, project, today, true)
}

// MiniMonth is BuildMonth without task lists; days only report HasTasks.
func MiniMonth(year int, month time.Month, tasks []model.Task, today time.Time) Month {
	return buildMonth(year, month, tasks, nil, today, false)
}

func buildMonth(year int, month time.Month, tasks []model.Task, project func(string) *model.Project, today time.Time, withTasks bool) Month {
	loc := today.Location()
	first := time.Date(year, month, 1, 0, 0, 0, 0, loc)
	lead := (int(first.Weekday()) + 6) % 7
	daysIn := time.Date(year, month+1, 0, 0, 0, 0, 0, loc).Day()
	todayStr := model.FormatDate(today)

	byDate := map[string][]model.Task{}
	for _, t := range tasks {
		if t.DueDate != "" {
			byDate[t.DueDate] = append(byDate[t.DueDate], t)
		}
	}

	m := Month{Year: first.Year(), Month: first.Month()}
	cells := lead + daysIn
	if r := cells % 7; r != 0 {
		cells += 7 - r
	}
	start := first.AddDate(0, 0, -lead)
	var week [7]Day
	for i := 0; i < cells; i++ {
		d := start.AddDate(0, 0, i)
		ds := model.FormatDate(d)
		day := Day{Date: ds, Day: d.Day(), InMonth: d.Month() == first.Month(), Today: ds == todayStr}
		if day.InMonth {
			due := byDate[ds]
			day.HasTasks = len(due) > 0
			if withTasks {
				for j, t := range due {
					if j == MaxDayTasks {
						day.More = len(due) - MaxDayTasks
						break
					}
					var p *model.Project
					if project != nil {
						p = project(t.ProjectID)
					}
					day.Tasks = append(day.Tasks, CalendarTask{
						ID:        t.ID,
						ProjectID: t.ProjectID,
						Title:     t.Title,
						Priority:  t.EffectivePriority(),
						Done:      statusutil.IsTaskDone(t, p),
					})
				}
			}
		}
		week[i%7] = day
		if i%7 == 6 {
			m.Weeks = append(m.Weeks, week)
			week = [7]Day{}
		}
	}
	return m
}
