package cli

import (
	"context"
	"strings"

	"boardsync/internal/app"
	"boardsync/internal/entitystore"
	"boardsync/internal/model"
	"boardsync/internal/render"
	"boardsync/internal/views"

	"github.com/spf13/cobra"
)

func newProjectsCmd(a *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "projects",
		Short: "Project commands",
	}
	cmd.AddCommand(newProjectsListCmd(a))
	cmd.AddCommand(newProjectsCreateCmd(a))
	cmd.AddCommand(newProjectsUpdateCmd(a))
	cmd.AddCommand(newProjectsUseCmd(a))
	cmd.AddCommand(newProjectsShowCmd(a))
	cmd.AddCommand(newProjectsArchiveCmd(a, true))
	cmd.AddCommand(newProjectsArchiveCmd(a, false))
	cmd.AddCommand(newProjectsDeleteCmd(a))
	cmd.AddCommand(newMembersCmd(a))
	return cmd
}

// waitProject blocks until pred holds for project pid and returns it.
func waitProject(ctx context.Context, rt *runtime, pid string, pred func(model.Project) bool) model.Project {
	var out model.Project
	rt.app.Sync(ctx, func(s *entitystore.Snapshot) bool {
		p, ok := s.Project(pid)
		if ok && (pred == nil || pred(p)) {
			out = p
			return true
		}
		return false
	})
	return out
}

func newProjectsListCmd(a *App) *cobra.Command {
	var archived bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List projects with progress",
		RunE: withSession(a, func(cmd *cobra.Command, rt *runtime, args []string) error {
			cards := rt.app.ProjectCards(archived)
			return writeView(cmd, a, cards, func() string { return render.ProjectCards(cards) })
		}),
	}
	cmd.Flags().BoolVar(&archived, "archived", false, "List archived projects instead")
	return cmd
}

func projectInputFlags(cmd *cobra.Command, in *app.ProjectInput) {
	cmd.Flags().StringVar(&in.Desc, "desc", "", "Description")
	cmd.Flags().StringVar(&in.Deadline, "deadline", "", "Deadline (YYYY-MM-DD)")
	cmd.Flags().StringVar(&in.Color, "color", "", "Color (#RRGGBB)")
}

func newProjectsCreateCmd(a *App) *cobra.Command {
	var in app.ProjectInput
	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a project with the default columns and make it current",
		Args:  cobra.ExactArgs(1),
		RunE: withSession(a, func(cmd *cobra.Command, rt *runtime, args []string) error {
			in.Name = args[0]
			pid, err := rt.app.CreateProject(cmd.Context(), in)
			if err != nil {
				return err
			}
			p := waitProject(cmd.Context(), rt, pid, nil)
			if p.ID != "" {
				_ = rt.app.SelectProject(pid)
				rt.remember()
			}
			return writeOut(cmd, a, map[string]any{"id": pid, "project": p})
		}),
	}
	projectInputFlags(cmd, &in)
	return cmd
}

func newProjectsUpdateCmd(a *App) *cobra.Command {
	var in app.ProjectInput
	var name, pflag string
	cmd := &cobra.Command{
		Use:   "update",
		Short: "Change a project's name, description, deadline or color",
		RunE: withSession(a, func(cmd *cobra.Command, rt *runtime, args []string) error {
			pid, err := rt.projectID(pflag)
			if err != nil {
				return err
			}
			cur, _ := rt.app.CurrentProject()
			merged := app.ProjectInput{Name: cur.Name, Desc: cur.Desc, Deadline: cur.Deadline, Color: cur.Color}
			if cmd.Flags().Changed("name") {
				merged.Name = name
			}
			if cmd.Flags().Changed("desc") {
				merged.Desc = in.Desc
			}
			if cmd.Flags().Changed("deadline") {
				merged.Deadline = in.Deadline
			}
			if cmd.Flags().Changed("color") {
				merged.Color = in.Color
			}
			if err := rt.app.UpdateProject(cmd.Context(), pid, merged); err != nil {
				return err
			}
			return writeOut(cmd, a, map[string]any{"id": pid, "updated": true})
		}),
	}
	cmd.Flags().StringVar(&name, "name", "", "New name")
	cmd.Flags().StringVar(&pflag, "project", "", "Project id (default: current)")
	projectInputFlags(cmd, &in)
	return cmd
}

func newProjectsUseCmd(a *App) *cobra.Command {
	return &cobra.Command{
		Use:   "use <project-id>",
		Short: "Make a project current for later commands",
		Args:  cobra.ExactArgs(1),
		RunE: withSession(a, func(cmd *cobra.Command, rt *runtime, args []string) error {
			if err := rt.app.SelectProject(args[0]); err != nil {
				return err
			}
			rt.remember()
			p, _ := rt.app.CurrentProject()
			return writeOut(cmd, a, p)
		}),
	}
}

func newProjectsShowCmd(a *App) *cobra.Command {
	var pflag string
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show a project with its columns and members",
		RunE: withSession(a, func(cmd *cobra.Command, rt *runtime, args []string) error {
			if _, err := rt.projectID(pflag); err != nil {
				return err
			}
			p, _ := rt.app.CurrentProject()
			card, _ := views.ProjectCard(rt.app.Snapshot(), p.ID, rt.app.Today())
			return writeView(cmd, a, map[string]any{"project": p, "summary": card}, func() string {
				var b strings.Builder
				b.WriteString(render.ProjectCards([]views.ProjectSummary{card}))
				b.WriteString("\n\nColumns:")
				for _, c := range views.SortedColumns(p) {
					b.WriteString("\n  " + c.ID + "  " + c.Name)
				}
				b.WriteString("\n\nMembers:")
				for _, m := range p.Members {
					b.WriteString("\n  " + m.UID + "  " + m.Name + " <" + m.Email + "> " + string(m.Role))
				}
				return b.String()
			})
		}),
	}
	cmd.Flags().StringVar(&pflag, "project", "", "Project id (default: current)")
	return cmd
}

func newProjectsArchiveCmd(a *App, archive bool) *cobra.Command {
	use, short := "archive <project-id>", "Archive a project"
	if !archive {
		use, short = "restore <project-id>", "Restore an archived project"
	}
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: withSession(a, func(cmd *cobra.Command, rt *runtime, args []string) error {
			var err error
			if archive {
				err = rt.app.ArchiveProject(cmd.Context(), args[0])
			} else {
				err = rt.app.RestoreProject(cmd.Context(), args[0])
			}
			if err != nil {
				return err
			}
			rt.remember()
			return writeOut(cmd, a, map[string]any{"id": args[0], "archived": archive})
		}),
	}
}

func newProjectsDeleteCmd(a *App) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <project-id>",
		Short: "Delete a project with all its tasks and chat (owner only)",
		Args:  cobra.ExactArgs(1),
		RunE: withSession(a, func(cmd *cobra.Command, rt *runtime, args []string) error {
			if err := rt.app.DeleteProject(cmd.Context(), args[0]); err != nil {
				return err
			}
			rt.remember()
			return writeOut(cmd, a, map[string]any{"id": args[0], "deleted": true})
		}),
	}
}

func newMembersCmd(a *App) *cobra.Command {
	var pflag string
	cmd := &cobra.Command{
		Use:   "members",
		Short: "Project membership",
	}
	cmd.PersistentFlags().StringVar(&pflag, "project", "", "Project id (default: current)")
	cmd.AddCommand(&cobra.Command{
		Use:   "add <email>",
		Short: "Add a registered user by email",
		Args:  cobra.ExactArgs(1),
		RunE: withSession(a, func(cmd *cobra.Command, rt *runtime, args []string) error {
			pid, err := rt.projectID(pflag)
			if err != nil {
				return err
			}
			m, err := rt.app.AddMember(cmd.Context(), pid, args[0])
			if err != nil {
				return err
			}
			return writeOut(cmd, a, m)
		}),
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "remove <uid>",
		Short: "Remove a member",
		Args:  cobra.ExactArgs(1),
		RunE: withSession(a, func(cmd *cobra.Command, rt *runtime, args []string) error {
			pid, err := rt.projectID(pflag)
			if err != nil {
				return err
			}
			if err := rt.app.RemoveMember(cmd.Context(), pid, args[0]); err != nil {
				return err
			}
			return writeOut(cmd, a, map[string]any{"projectId": pid, "removed": args[0]})
		}),
	})
	return cmd
}

func newColumnsCmd(a *App) *cobra.Command {
	var pflag, color string
	cmd := &cobra.Command{
		Use:   "columns",
		Short: "Board column commands",
	}
	cmd.PersistentFlags().StringVar(&pflag, "project", "", "Project id (default: current)")

	add := &cobra.Command{
		Use:   "add <name>",
		Short: "Append a column",
		Args:  cobra.ExactArgs(1),
		RunE: withSession(a, func(cmd *cobra.Command, rt *runtime, args []string) error {
			pid, err := rt.projectID(pflag)
			if err != nil {
				return err
			}
			id, err := rt.app.AddColumn(cmd.Context(), pid, args[0], color)
			if err != nil {
				return err
			}
			return writeOut(cmd, a, map[string]any{"projectId": pid, "columnId": id})
		}),
	}
	add.Flags().StringVar(&color, "color", "", "Column color")

	rename := &cobra.Command{
		Use:   "rename <column-id> <name>",
		Short: "Rename (and optionally recolor) a column",
		Args:  cobra.ExactArgs(2),
		RunE: withSession(a, func(cmd *cobra.Command, rt *runtime, args []string) error {
			pid, err := rt.projectID(pflag)
			if err != nil {
				return err
			}
			if err := rt.app.UpdateColumn(cmd.Context(), pid, args[0], args[1], color); err != nil {
				return err
			}
			return writeOut(cmd, a, map[string]any{"projectId": pid, "columnId": args[0]})
		}),
	}
	rename.Flags().StringVar(&color, "color", "", "New color")

	del := &cobra.Command{
		Use:   "delete <column-id>",
		Short: "Delete a column; its tasks move to Remaining",
		Args:  cobra.ExactArgs(1),
		RunE: withSession(a, func(cmd *cobra.Command, rt *runtime, args []string) error {
			pid, err := rt.projectID(pflag)
			if err != nil {
				return err
			}
			if err := rt.app.DeleteColumn(cmd.Context(), pid, args[0]); err != nil {
				return err
			}
			return writeOut(cmd, a, map[string]any{"projectId": pid, "deleted": args[0]})
		}),
	}

	cmd.AddCommand(add, rename, del)
	return cmd
}
