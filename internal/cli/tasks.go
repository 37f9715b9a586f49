package cli

import (
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"boardsync/internal/editing"
	"boardsync/internal/model"
	"boardsync/internal/render"
	"boardsync/internal/statusutil"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func newTasksCmd(a *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "tasks",
		Aliases: []string{"task"},
		Short:   "Task commands",
	}
	cmd.AddCommand(newTasksCreateCmd(a))
	cmd.AddCommand(newTasksShowCmd(a))
	cmd.AddCommand(newTasksEditCmd(a))
	cmd.AddCommand(newTasksMoveCmd(a))
	cmd.AddCommand(newTasksDoneCmd(a))
	cmd.AddCommand(newTasksDeleteCmd(a))
	cmd.AddCommand(newTasksCommentCmd(a))
	cmd.AddCommand(newTasksUncommentCmd(a))
	cmd.AddCommand(newTasksAttachCmd(a))
	cmd.AddCommand(newTasksDetachCmd(a))
	cmd.AddCommand(newChecklistCmd(a))
	return cmd
}

// taskEdits holds the field flags shared by create and edit. Only flags the
// user actually passed are applied.
type taskEdits struct {
	title, desc, priority, due, start, column, status, assignee string
}

func (e *taskEdits) bind(cmd *cobra.Command, withTitle bool) {
	if withTitle {
		cmd.Flags().StringVar(&e.title, "title", "", "Title")
	}
	cmd.Flags().StringVar(&e.desc, "desc", "", "Description (markdown)")
	cmd.Flags().StringVar(&e.priority, "priority", "", "Priority (high|medium|low)")
	cmd.Flags().StringVar(&e.due, "due", "", "Due date (YYYY-MM-DD, empty clears)")
	cmd.Flags().StringVar(&e.start, "start", "", "Start date (YYYY-MM-DD, empty clears)")
	cmd.Flags().StringVar(&e.status, "status", "", "Status (open|done)")
	cmd.Flags().StringVar(&e.assignee, "assignee", "", "Assignee uid (empty clears)")
}

func (e *taskEdits) any(cmd *cobra.Command) bool {
	for _, n := range []string{"title", "desc", "priority", "due", "start", "column", "status", "assignee"} {
		if f := cmd.Flags().Lookup(n); f != nil && f.Changed {
			return true
		}
	}
	return false
}

func (e *taskEdits) apply(cmd *cobra.Command, s *editing.Session) error {
	changed := func(n string) bool {
		f := cmd.Flags().Lookup(n)
		return f != nil && f.Changed
	}
	steps := []struct {
		flag string
		set  func() error
	}{
		{"title", func() error { return s.SetTitle(e.title) }},
		{"desc", func() error { return s.SetDesc(e.desc) }},
		{"priority", func() error { return s.SetPriority(model.Priority(strings.ToLower(e.priority))) }},
		{"due", func() error { return s.SetDueDate(e.due) }},
		{"start", func() error { return s.SetStartDate(e.start) }},
		{"column", func() error { return s.SetColumn(e.column) }},
		{"status", func() error {
			st, err := statusutil.NormalizeStatus(e.status)
			if err != nil {
				return err
			}
			return s.SetStatus(st)
		}},
		{"assignee", func() error { return s.SetAssignee(e.assignee) }},
	}
	for _, st := range steps {
		if !changed(st.flag) {
			continue
		}
		if err := st.set(); err != nil {
			return err
		}
	}
	return nil
}

// termWidth is the width of stdout when it is a terminal, else 80.
func termWidth() int {
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 20 {
		return w
	}
	return 80
}

func newTasksCreateCmd(a *App) *cobra.Command {
	var pflag string
	var e taskEdits
	cmd := &cobra.Command{
		Use:   "create <title>",
		Short: "Create a task in the current project",
		Args:  cobra.ExactArgs(1),
		RunE: withSession(a, func(cmd *cobra.Command, rt *runtime, args []string) error {
			pid, err := rt.projectID(pflag)
			if err != nil {
				return err
			}
			if !e.any(cmd) {
				id, err := rt.app.CreateTask(cmd.Context(), pid, e.column, args[0])
				if err != nil {
					return err
				}
				return writeOut(cmd, a, map[string]any{"id": id, "projectId": pid})
			}
			s, err := rt.app.CreateTaskAndOpen(cmd.Context(), pid, e.column, args[0])
			if err != nil {
				return err
			}
			if err := e.apply(cmd, s); err != nil {
				_ = rt.app.CloseTask(cmd.Context(), editing.CloseDiscard)
				return err
			}
			if err := rt.app.CloseTask(cmd.Context(), editing.CloseFlush); err != nil {
				return err
			}
			return writeOut(cmd, a, map[string]any{"id": s.TaskID(), "projectId": pid, "task": s.Draft()})
		}),
	}
	cmd.Flags().StringVar(&pflag, "project", "", "Project id (default: current)")
	cmd.Flags().StringVar(&e.column, "column", "", "Column id (default: first column)")
	e.bind(cmd, false)
	return cmd
}

func newTasksShowCmd(a *App) *cobra.Command {
	return &cobra.Command{
		Use:   "show <task-id>",
		Short: "Show a task with its checklist, comments and history",
		Args:  cobra.ExactArgs(1),
		RunE: withSession(a, func(cmd *cobra.Command, rt *runtime, args []string) error {
			snap := rt.app.Snapshot()
			t, ok := snap.Task(args[0])
			if !ok {
				return fmt.Errorf("task %s not found", args[0])
			}
			var p *model.Project
			if proj, ok := snap.Project(t.ProjectID); ok {
				p = &proj
			}
			return writeView(cmd, a, t, func() string {
				return render.Task(t, p, termWidth(), rt.app.Today())
			})
		}),
	}
}

// editTask opens taskID, runs fn and closes the editor. Edits are saved on
// success and dropped on error.
func editTask(cmd *cobra.Command, rt *runtime, taskID string, fn func(s *editing.Session) error) (editing.Draft, error) {
	s, err := rt.app.OpenTask(taskID)
	if err != nil {
		return editing.Draft{}, err
	}
	if err := fn(s); err != nil {
		_ = rt.app.CloseTask(cmd.Context(), editing.CloseDiscard)
		return editing.Draft{}, err
	}
	if err := rt.app.CloseTask(cmd.Context(), editing.CloseFlush); err != nil {
		return editing.Draft{}, err
	}
	return s.Draft(), nil
}

func newTasksEditCmd(a *App) *cobra.Command {
	var e taskEdits
	cmd := &cobra.Command{
		Use:   "edit <task-id>",
		Short: "Change task fields",
		Args:  cobra.ExactArgs(1),
		RunE: withSession(a, func(cmd *cobra.Command, rt *runtime, args []string) error {
			if !e.any(cmd) {
				return fmt.Errorf("nothing to change")
			}
			d, err := editTask(cmd, rt, args[0], func(s *editing.Session) error { return e.apply(cmd, s) })
			if err != nil {
				return err
			}
			return writeOut(cmd, a, map[string]any{"id": args[0], "task": d})
		}),
	}
	cmd.Flags().StringVar(&e.column, "column", "", "Column id")
	e.bind(cmd, true)
	return cmd
}

func newTasksMoveCmd(a *App) *cobra.Command {
	return &cobra.Command{
		Use:   "move <task-id> <column-id>",
		Short: "Move a task to another column",
		Args:  cobra.ExactArgs(2),
		RunE: withSession(a, func(cmd *cobra.Command, rt *runtime, args []string) error {
			if err := rt.app.MoveTask(cmd.Context(), args[0], args[1]); err != nil {
				return err
			}
			return writeOut(cmd, a, map[string]any{"id": args[0], "columnId": args[1]})
		}),
	}
}

func newTasksDoneCmd(a *App) *cobra.Command {
	return &cobra.Command{
		Use:   "done <task-id>",
		Short: "Toggle a task between open and done",
		Args:  cobra.ExactArgs(1),
		RunE: withSession(a, func(cmd *cobra.Command, rt *runtime, args []string) error {
			done, err := rt.app.ToggleDone(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return writeOut(cmd, a, map[string]any{"id": args[0], "done": done})
		}),
	}
}

func newTasksDeleteCmd(a *App) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <task-id>",
		Short: "Delete a task",
		Args:  cobra.ExactArgs(1),
		RunE: withSession(a, func(cmd *cobra.Command, rt *runtime, args []string) error {
			if err := rt.app.DeleteTask(cmd.Context(), args[0]); err != nil {
				return err
			}
			return writeOut(cmd, a, map[string]any{"id": args[0], "deleted": true})
		}),
	}
}

// readUploads loads files from disk, guessing the media type from the
// extension.
func readUploads(paths []string) ([]editing.Upload, error) {
	out := make([]editing.Upload, 0, len(paths))
	for _, p := range paths {
		b, err := os.ReadFile(p)
		if err != nil {
			return nil, err
		}
		typ := mime.TypeByExtension(strings.ToLower(filepath.Ext(p)))
		if typ == "" {
			typ = "application/octet-stream"
		}
		out = append(out, editing.Upload{Name: filepath.Base(p), Type: typ, Data: b})
	}
	return out, nil
}

func newTasksCommentCmd(a *App) *cobra.Command {
	var images []string
	cmd := &cobra.Command{
		Use:   "comment <task-id> <text>",
		Short: "Comment on a task; @First mentions notify members",
		Args:  cobra.RangeArgs(1, 2),
		RunE: withSession(a, func(cmd *cobra.Command, rt *runtime, args []string) error {
			text := ""
			if len(args) == 2 {
				text = args[1]
			}
			ups, err := readUploads(images)
			if err != nil {
				return err
			}
			var c model.Comment
			if _, err := editTask(cmd, rt, args[0], func(s *editing.Session) error {
				c, err = s.AddComment(cmd.Context(), text, ups)
				return err
			}); err != nil {
				return err
			}
			return writeOut(cmd, a, c)
		}),
	}
	cmd.Flags().StringArrayVar(&images, "image", nil, "Attach an image file (repeatable)")
	return cmd
}

func parseIndex(s string) (int, error) {
	i, err := strconv.Atoi(s)
	if err != nil || i < 0 {
		return 0, fmt.Errorf("invalid index %q", s)
	}
	return i, nil
}

func newTasksUncommentCmd(a *App) *cobra.Command {
	return &cobra.Command{
		Use:   "uncomment <task-id> <index>",
		Short: "Delete one of your comments",
		Args:  cobra.ExactArgs(2),
		RunE: withSession(a, func(cmd *cobra.Command, rt *runtime, args []string) error {
			idx, err := parseIndex(args[1])
			if err != nil {
				return err
			}
			if _, err := editTask(cmd, rt, args[0], func(s *editing.Session) error {
				return s.DeleteComment(cmd.Context(), idx)
			}); err != nil {
				return err
			}
			return writeOut(cmd, a, map[string]any{"id": args[0], "deletedComment": idx})
		}),
	}
}

func newTasksAttachCmd(a *App) *cobra.Command {
	return &cobra.Command{
		Use:   "attach <task-id> <file>...",
		Short: "Attach files to a task",
		Args:  cobra.MinimumNArgs(2),
		RunE: withSession(a, func(cmd *cobra.Command, rt *runtime, args []string) error {
			ups, err := readUploads(args[1:])
			if err != nil {
				return err
			}
			var n int
			var addErr error
			if _, err := editTask(cmd, rt, args[0], func(s *editing.Session) error {
				n, addErr = s.AddAttachments(cmd.Context(), ups)
				if n == 0 {
					return addErr
				}
				return nil
			}); err != nil {
				return err
			}
			out := map[string]any{"id": args[0], "attached": n}
			if addErr != nil {
				out["skipped"] = addErr.Error()
			}
			return writeOut(cmd, a, out)
		}),
	}
}

func newTasksDetachCmd(a *App) *cobra.Command {
	return &cobra.Command{
		Use:   "detach <task-id> <index>",
		Short: "Remove an attachment",
		Args:  cobra.ExactArgs(2),
		RunE: withSession(a, func(cmd *cobra.Command, rt *runtime, args []string) error {
			idx, err := parseIndex(args[1])
			if err != nil {
				return err
			}
			if _, err := editTask(cmd, rt, args[0], func(s *editing.Session) error {
				return s.RemoveAttachment(cmd.Context(), idx)
			}); err != nil {
				return err
			}
			return writeOut(cmd, a, map[string]any{"id": args[0], "removedAttachment": idx})
		}),
	}
}

func newChecklistCmd(a *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "checklist",
		Short: "Task checklist items",
	}
	run := func(use, short string, nargs int, fn func(s *editing.Session, args []string) error) *cobra.Command {
		return &cobra.Command{
			Use:   use,
			Short: short,
			Args:  cobra.ExactArgs(nargs),
			RunE: withSession(a, func(cmd *cobra.Command, rt *runtime, args []string) error {
				d, err := editTask(cmd, rt, args[0], func(s *editing.Session) error { return fn(s, args[1:]) })
				if err != nil {
					return err
				}
				return writeOut(cmd, a, map[string]any{"id": args[0], "checklist": d.Checklist})
			}),
		}
	}
	cmd.AddCommand(run("add <task-id> <text>", "Add an item", 2, func(s *editing.Session, args []string) error {
		return s.AddChecklistItem(args[0])
	}))
	cmd.AddCommand(run("toggle <task-id> <index>", "Check or uncheck an item", 2, func(s *editing.Session, args []string) error {
		idx, err := parseIndex(args[0])
		if err != nil {
			return err
		}
		return s.ToggleChecklistItem(idx)
	}))
	cmd.AddCommand(run("edit <task-id> <index> <text>", "Change an item's text", 3, func(s *editing.Session, args []string) error {
		idx, err := parseIndex(args[0])
		if err != nil {
			return err
		}
		return s.EditChecklistItem(idx, args[1])
	}))
	cmd.AddCommand(run("remove <task-id> <index>", "Remove an item", 2, func(s *editing.Session, args []string) error {
		idx, err := parseIndex(args[0])
		if err != nil {
			return err
		}
		return s.RemoveChecklistItem(idx)
	}))
	return cmd
}
