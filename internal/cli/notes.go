package cli

import (
	"context"
	"errors"
	"fmt"

	"boardsync/internal/editing"
	"boardsync/internal/entitystore"
	"boardsync/internal/model"
	"boardsync/internal/render"

	"github.com/spf13/cobra"
)

func newNotesCmd(a *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "notes",
		Short: "Personal notes",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List notes, most recently edited first",
		RunE: withSession(a, func(cmd *cobra.Command, rt *runtime, args []string) error {
			notes := rt.app.Snapshot().Notes
			if notes == nil {
				notes = []model.Note{}
			}
			return writeView(cmd, a, notes, func() string { return render.Notes(notes, rt.app.Today()) })
		}),
	})

	var title, body string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a note",
		RunE: withSession(a, func(cmd *cobra.Command, rt *runtime, args []string) error {
			id, err := rt.app.CreateNote(cmd.Context(), title)
			if err != nil {
				return err
			}
			if body != "" {
				if !rt.app.Sync(cmd.Context(), noteIn(id)) {
					return fmt.Errorf("note %s did not sync", id)
				}
				if err := editNote(cmd.Context(), rt, id, func(n *editing.NoteSession) error { return n.SetBody(body) }); err != nil {
					return err
				}
			}
			return writeOut(cmd, a, map[string]any{"id": id})
		}),
	}
	create.Flags().StringVar(&title, "title", "", "Title (default: Untitled)")
	create.Flags().StringVar(&body, "body", "", "Body text")

	edit := &cobra.Command{
		Use:   "edit <note-id>",
		Short: "Change a note's title or body",
		Args:  cobra.ExactArgs(1),
		RunE: withSession(a, func(cmd *cobra.Command, rt *runtime, args []string) error {
			tChanged, bChanged := cmd.Flags().Changed("title"), cmd.Flags().Changed("body")
			if !tChanged && !bChanged {
				return errors.New("nothing to change")
			}
			err := editNote(cmd.Context(), rt, args[0], func(n *editing.NoteSession) error {
				if tChanged {
					if err := n.SetTitle(title); err != nil {
						return err
					}
				}
				if bChanged {
					return n.SetBody(body)
				}
				return nil
			})
			if err != nil {
				return err
			}
			return writeOut(cmd, a, map[string]any{"id": args[0], "updated": true})
		}),
	}
	edit.Flags().StringVar(&title, "title", "", "New title")
	edit.Flags().StringVar(&body, "body", "", "New body")

	del := &cobra.Command{
		Use:   "delete <note-id>",
		Short: "Delete a note",
		Args:  cobra.ExactArgs(1),
		RunE: withSession(a, func(cmd *cobra.Command, rt *runtime, args []string) error {
			if err := rt.app.DeleteNote(cmd.Context(), args[0]); err != nil {
				return err
			}
			return writeOut(cmd, a, map[string]any{"id": args[0], "deleted": true})
		}),
	}

	cmd.AddCommand(create, edit, del)
	return cmd
}

func noteIn(id string) func(*entitystore.Snapshot) bool {
	return func(s *entitystore.Snapshot) bool {
		_, ok := s.Note(id)
		return ok
	}
}

func editNote(ctx context.Context, rt *runtime, id string, fn func(n *editing.NoteSession) error) error {
	n, err := rt.app.OpenNote(id)
	if err != nil {
		return err
	}
	if err := fn(n); err != nil {
		_ = rt.app.CloseNote(ctx, editing.CloseDiscard)
		return err
	}
	return rt.app.CloseNote(ctx, editing.CloseFlush)
}

func newInboxCmd(a *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inbox",
		Short: "Mentions of you in task comments",
	}
	var unread bool
	list := &cobra.Command{
		Use:   "list",
		Short: "List inbox items, newest first",
		RunE: withSession(a, func(cmd *cobra.Command, rt *runtime, args []string) error {
			items := []model.InboxItem{}
			for _, it := range rt.app.Snapshot().Inbox {
				if unread && it.Read {
					continue
				}
				items = append(items, it)
			}
			return writeView(cmd, a, items, func() string { return render.Inbox(items, rt.app.Today()) })
		}),
	}
	list.Flags().BoolVar(&unread, "unread", false, "Only unread items")

	var all bool
	read := &cobra.Command{
		Use:   "read [item-id]",
		Short: "Mark an item (or --all) as read",
		Args:  cobra.MaximumNArgs(1),
		RunE: withSession(a, func(cmd *cobra.Command, rt *runtime, args []string) error {
			if all {
				n, err := rt.app.MarkAllInboxRead(cmd.Context())
				if err != nil {
					return err
				}
				return writeOut(cmd, a, map[string]any{"marked": n})
			}
			if len(args) == 0 {
				return errors.New("pass an item id or --all")
			}
			if err := rt.app.MarkInboxRead(cmd.Context(), args[0]); err != nil {
				return err
			}
			return writeOut(cmd, a, map[string]any{"marked": 1})
		}),
	}
	read.Flags().BoolVar(&all, "all", false, "Mark every unread item")

	cmd.AddCommand(list, read)
	return cmd
}

func newChatCmd(a *App) *cobra.Command {
	var pflag string
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Project chat",
	}
	cmd.PersistentFlags().StringVar(&pflag, "project", "", "Project id (default: current)")

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "Show the project's chat",
		RunE: withSession(a, func(cmd *cobra.Command, rt *runtime, args []string) error {
			pid, err := rt.projectID(pflag)
			if err != nil {
				return err
			}
			if err := rt.app.OpenChat(pid); err != nil {
				return err
			}
			defer rt.app.CloseChat(pid)
			wctx, cancel := context.WithTimeout(cmd.Context(), syncTimeout)
			defer cancel()
			if err := rt.app.Subscriptions().WaitSettled(wctx, 0); err != nil {
				return fmt.Errorf("chat sync: %w", err)
			}
			msgs := rt.app.Snapshot().Chat(pid)
			if msgs == nil {
				msgs = []model.ChatMessage{}
			}
			me := rt.session.UID
			return writeView(cmd, a, msgs, func() string { return render.Chat(msgs, me, rt.app.Today()) })
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "send <text>",
		Short: "Post a message",
		Args:  cobra.ExactArgs(1),
		RunE: withSession(a, func(cmd *cobra.Command, rt *runtime, args []string) error {
			pid, err := rt.projectID(pflag)
			if err != nil {
				return err
			}
			id, err := rt.app.SendChat(cmd.Context(), pid, args[0])
			if err != nil {
				return err
			}
			if id == "" {
				return writeOut(cmd, a, map[string]any{"sent": false})
			}
			return writeOut(cmd, a, map[string]any{"sent": true, "id": id})
		}),
	})
	return cmd
}
