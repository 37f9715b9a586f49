package views

import (
	"sort"
	"time"

	"boardsync/internal/entitystore"
	"boardsync/internal/model"
	"boardsync/internal/statusutil"
)

type BarColor string

const (
	BarHigh    BarColor = "high"
	BarMedium  BarColor = "medium"
	BarLow     BarColor = "low"
	BarOverdue BarColor = "overdue"
	BarDone    BarColor = "done"
)

// DefaultGanttBuffer is how far past the latest due date the range extends.
const DefaultGanttBuffer = 14

type GanttOptions struct {
	Filter Filter
	// BufferDays defaults to DefaultGanttBuffer.
	BufferDays int
}

type Bar struct {
	TaskID       string `json:"taskId"`
	Title        string `json:"title"`
	AssigneeName string `json:"assigneeName,omitempty"`
	StartDate    string `json:"startDate"`
	DueDate      string `json:"dueDate"`
	// Left and Width are in days from the range start.
	Left    int      `json:"left"`
	Width   int      `json:"width"`
	Color   BarColor `json:"color"`
	Overdue bool     `json:"overdue"`
	Done    bool     `json:"done"`
}

type WeekMarker struct {
	Offset int    `json:"offset"`
	Date   string `json:"date"`
}

type Gantt struct {
	ProjectID string       `json:"projectId"`
	Start     string       `json:"start,omitempty"`
	End       string       `json:"end,omitempty"`
	Days      int          `json:"days"`
	Today     int          `json:"today"`
	Weeks     []WeekMarker `json:"weeks"`
	Bars      []Bar        `json:"bars"`
	Missing   bool         `json:"missing,omitempty"`
}

// BuildGantt lays out a project's dated tasks on a day grid. The range runs
// from the Monday on or before the earlier of today and the first bar start,
// to the Sunday on or after the latest due date plus the buffer. A task
// without a usable start date is a single-day bar on its due date. Overdue
// open tasks take BarOverdue whatever their priority.
func BuildGantt(snap *entitystore.Snapshot, pid string, today time.Time, opts GanttOptions) Gantt {
	g := Gantt{ProjectID: pid, Today: -1, Weeks: []WeekMarker{}, Bars: []Bar{}}
	p, ok := snap.Project(pid)
	if !ok {
		g.Missing = true
		return g
	}
	buffer := opts.BufferDays
	if buffer <= 0 {
		buffer = DefaultGanttBuffer
	}
	loc := today.Location()
	today = model.StartOfDay(today)

	type span struct {
		t          model.Task
		start, due time.Time
	}
	var spans []span
	for _, t := range snap.ProjectTasks(pid) {
		if !opts.Filter.Match(t, &p) {
			continue
		}
		due, ok := model.ParseDate(t.DueDate, loc)
		if !ok {
			continue
		}
		start, ok := model.ParseDate(t.StartDate, loc)
		if !ok || start.After(due) {
			start = due
		}
		spans = append(spans, span{t: t, start: start, due: due})
	}
	if len(spans) == 0 {
		return g
	}
	sort.SliceStable(spans, func(i, j int) bool { return spans[i].due.Before(spans[j].due) })

	earliest, latest := today, spans[0].due
	for _, s := range spans {
		if s.start.Before(earliest) {
			earliest = s.start
		}
		if s.due.After(latest) {
			latest = s.due
		}
	}
	rangeStart := earliest.AddDate(0, 0, -((int(earliest.Weekday()) + 6) % 7))
	end := latest.AddDate(0, 0, buffer)
	rangeEnd := end.AddDate(0, 0, (7-int(end.Weekday()))%7)

	g.Start = model.FormatDate(rangeStart)
	g.End = model.FormatDate(rangeEnd)
	g.Days = model.DaysBetween(rangeStart, rangeEnd) + 1
	if off := model.DaysBetween(rangeStart, today); off >= 0 && off < g.Days {
		g.Today = off
	}
	for off := 0; off < g.Days; off += 7 {
		g.Weeks = append(g.Weeks, WeekMarker{Offset: off, Date: model.FormatDate(rangeStart.AddDate(0, 0, off))})
	}
	for _, s := range spans {
		done := statusutil.IsTaskDone(s.t, &p)
		overdue := s.due.Before(today) && !done
		b := Bar{
			TaskID:       s.t.ID,
			Title:        s.t.Title,
			AssigneeName: s.t.AssigneeName,
			StartDate:    model.FormatDate(s.start),
			DueDate:      s.t.DueDate,
			Left:         model.DaysBetween(rangeStart, s.start),
			Width:        model.DaysBetween(s.start, s.due) + 1,
			Overdue:      overdue,
			Done:         done,
		}
		switch {
		case overdue:
			b.Color = BarOverdue
		case done:
			b.Color = BarDone
		default:
			b.Color = BarColor(s.t.EffectivePriority())
		}
		g.Bars = append(g.Bars, b)
	}
	return g
}
