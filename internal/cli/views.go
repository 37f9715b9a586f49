package cli

import (
	"fmt"
	"strings"
	"time"

	"boardsync/internal/app"
	"boardsync/internal/model"
	"boardsync/internal/render"
	"boardsync/internal/views"

	"github.com/spf13/cobra"
)

func newBoardCmd(a *App) *cobra.Command {
	var pflag string
	var f filterFlags
	cmd := &cobra.Command{
		Use:   "board",
		Short: "Show the Kanban board of a project",
		RunE: withSession(a, func(cmd *cobra.Command, rt *runtime, args []string) error {
			pid, err := rt.projectID(pflag)
			if err != nil {
				return err
			}
			rt.app.SetFilter(pid, f.filter())
			rt.app.SetView(app.ViewBoard)
			k := rt.app.Kanban(pid)
			return writeView(cmd, a, k, func() string { return render.Kanban(k, termWidth()) })
		}),
	}
	cmd.Flags().StringVar(&pflag, "project", "", "Project id (default: current)")
	f.bind(cmd)
	return cmd
}

// filterFlags bind the board/list/gantt filter.
type filterFlags struct {
	query, priority, assignee string
	hideDone                  bool
}

func (f *filterFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.query, "search", "", "Only tasks matching this text")
	cmd.Flags().StringVar(&f.priority, "priority", "", "Only tasks with this priority")
	cmd.Flags().StringVar(&f.assignee, "assignee", "", "Only tasks assigned to this uid")
	cmd.Flags().BoolVar(&f.hideDone, "hide-done", false, "Hide finished tasks")
}

func (f *filterFlags) filter() views.Filter {
	return views.Filter{
		Search:     f.query,
		Priority:   model.Priority(strings.ToLower(f.priority)),
		AssigneeID: f.assignee,
		HideDone:   f.hideDone,
	}
}

func newListCmd(a *App) *cobra.Command {
	var pflag, sortBy string
	var desc bool
	var f filterFlags
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Show a project as a sectioned task list",
		RunE: withSession(a, func(cmd *cobra.Command, rt *runtime, args []string) error {
			pid, err := rt.projectID(pflag)
			if err != nil {
				return err
			}
			key, err := views.ParseSortKey(sortBy)
			if err != nil {
				return err
			}
			rt.app.SetSort(key, desc)
			rt.app.SetFilter(pid, f.filter())
			rt.app.SetView(app.ViewList)
			l := rt.app.List(pid)
			return writeView(cmd, a, l, func() string { return render.List(l, termWidth()) })
		}),
	}
	cmd.Flags().StringVar(&pflag, "project", "", "Project id (default: current)")
	cmd.Flags().StringVar(&sortBy, "sort", "due", "Sort key (due|priority|title|assignee|created|status)")
	cmd.Flags().BoolVar(&desc, "desc", false, "Reverse the sort order")
	f.bind(cmd)
	return cmd
}

func newCalendarCmd(a *App) *cobra.Command {
	var month string
	var mini bool
	cmd := &cobra.Command{
		Use:   "calendar",
		Short: "Show a month of due dates across all projects",
		RunE: withSession(a, func(cmd *cobra.Command, rt *runtime, args []string) error {
			if month != "" {
				t, err := time.Parse("2006-01", month)
				if err != nil {
					return fmt.Errorf("invalid --month %q (want YYYY-MM)", month)
				}
				st := rt.app.State()
				delta := (t.Year()-st.Year)*12 + int(t.Month()-st.Month)
				rt.app.ShiftMonth(delta)
			}
			rt.app.SetView(app.ViewCalendar)
			m := rt.app.Calendar()
			if mini {
				st := rt.app.State()
				m = views.MiniMonth(st.Year, st.Month, rt.app.Snapshot().AllTasks(), rt.app.Today())
				return writeView(cmd, a, m, func() string { return render.MiniMonth(m) })
			}
			return writeView(cmd, a, m, func() string { return render.Month(m) })
		}),
	}
	cmd.Flags().StringVar(&month, "month", "", "Month to show (YYYY-MM, default: this month)")
	cmd.Flags().BoolVar(&mini, "mini", false, "Compact month grid with due markers only")
	return cmd
}

func newGanttCmd(a *App) *cobra.Command {
	var pflag string
	var f filterFlags
	cmd := &cobra.Command{
		Use:   "gantt",
		Short: "Show a project's timeline",
		RunE: withSession(a, func(cmd *cobra.Command, rt *runtime, args []string) error {
			pid, err := rt.projectID(pflag)
			if err != nil {
				return err
			}
			rt.app.SetFilter(pid, f.filter())
			rt.app.SetView(app.ViewGantt)
			g := rt.app.Gantt(pid)
			return writeView(cmd, a, g, func() string { return render.Gantt(g) })
		}),
	}
	cmd.Flags().StringVar(&pflag, "project", "", "Project id (default: current)")
	f.bind(cmd)
	return cmd
}

func newDashboardCmd(a *App) *cobra.Command {
	return &cobra.Command{
		Use:   "dashboard",
		Short: "Show counters, my tasks and upcoming deadlines",
		RunE: withSession(a, func(cmd *cobra.Command, rt *runtime, args []string) error {
			d := rt.app.Dashboard()
			return writeView(cmd, a, d, func() string { return render.Dashboard(d) })
		}),
	}
}

func newStatsCmd(a *App) *cobra.Command {
	var pflag, period, sortBy string
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show completion statistics",
		RunE: withSession(a, func(cmd *cobra.Command, rt *runtime, args []string) error {
			opts := views.StatsOptions{
				ProjectID: pflag,
				Period:    views.ParseStatsPeriod(period),
				SortBy:    views.StatsSort(sortBy),
			}
			switch opts.SortBy {
			case views.StatsByName, views.StatsByTasks, views.StatsByProgress:
			default:
				return fmt.Errorf("invalid --sort %q (want name|tasks|progress)", sortBy)
			}
			s := rt.app.Statistics(opts)
			return writeView(cmd, a, s, func() string { return render.Statistics(s) })
		}),
	}
	cmd.Flags().StringVar(&pflag, "project", "", "Limit task totals to one project")
	cmd.Flags().StringVar(&period, "period", "all", "Period (all|week|month)")
	cmd.Flags().StringVar(&sortBy, "sort", "name", "Sort projects by name|tasks|progress")
	return cmd
}
