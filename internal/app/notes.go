package app

import (
	"context"
	"strings"

	"boardsync/internal/docstore"
	"boardsync/internal/editing"

	"golang.org/x/sync/errgroup"
)

const defaultNoteTitle = "New note"

func (a *App) CreateNote(ctx context.Context, title string) (string, error) {
	u, err := a.requireUser()
	if err != nil {
		return "", err
	}
	title = strings.TrimSpace(title)
	if title == "" {
		title = defaultNoteTitle
	}
	id, err := a.backend.Create(ctx, "notes", map[string]any{
		"userId":    u.UID,
		"title":     title,
		"body":      "",
		"createdAt": docstore.ServerTimestamp(),
		"updatedAt": docstore.ServerTimestamp(),
	})
	if err != nil {
		return "", a.fail("Could not create note", err)
	}
	a.ok("Note created")
	return id, nil
}

// OpenNote starts the autosaving editor for a note in the store.
func (a *App) OpenNote(noteID string) (*editing.NoteSession, error) {
	n, ok := a.Snapshot().Note(noteID)
	if !ok {
		return nil, a.fail("Could not open note", NotFoundError{Kind: "note", ID: noteID})
	}
	s := editing.OpenNote(a.backend, noteID, n.Title, n.Body, a.opts.NoteDebounce, a.opts.Logger)
	a.mu.Lock()
	prev := a.noteEditor
	a.noteEditor = s
	a.mu.Unlock()
	if prev != nil {
		_ = prev.Close(context.Background(), editing.CloseDiscard)
	}
	return s, nil
}

func (a *App) NoteEditor() *editing.NoteSession {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.noteEditor
}

func (a *App) CloseNote(ctx context.Context, policy editing.ClosePolicy) error {
	a.mu.Lock()
	s := a.noteEditor
	a.noteEditor = nil
	a.mu.Unlock()
	if s == nil {
		return nil
	}
	if err := s.Close(ctx, policy); err != nil {
		return a.fail("Could not save note", err)
	}
	return nil
}

func (a *App) DeleteNote(ctx context.Context, noteID string) error {
	a.mu.Lock()
	s := a.noteEditor
	if s != nil && s.NoteID() == noteID {
		a.noteEditor = nil
	} else {
		s = nil
	}
	a.mu.Unlock()
	if s != nil {
		_ = s.Close(ctx, editing.CloseDiscard)
	}
	if err := a.backend.Delete(ctx, "notes", noteID); err != nil {
		return a.fail("Could not delete note", err)
	}
	a.ok("Note deleted")
	return nil
}

// OpenChat subscribes to a project's chat. CloseChat releases it.
func (a *App) OpenChat(pid string) error {
	if _, err := a.project(pid); err != nil {
		return a.fail("Could not open chat", err)
	}
	a.subs.EnsureChat(pid)
	return nil
}

func (a *App) CloseChat(pid string) {
	a.subs.ReleaseChat(pid)
}

// SendChat posts a message to a project chat. Blank messages are ignored.
func (a *App) SendChat(ctx context.Context, pid, text string) (string, error) {
	u, err := a.requireUser()
	if err != nil {
		return "", err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", nil
	}
	if _, err := a.project(pid); err != nil {
		return "", a.fail("Could not send message", err)
	}
	id, err := a.backend.Create(ctx, "chat", map[string]any{
		"projectId":  pid,
		"senderId":   u.UID,
		"senderName": displayName(u.Name),
		"text":       text,
		"createdAt":  docstore.ServerTimestamp(),
	})
	if err != nil {
		return "", a.fail("Could not send message", err)
	}
	return id, nil
}

func (a *App) MarkInboxRead(ctx context.Context, id string) error {
	if err := a.backend.Update(ctx, "inbox", id, map[string]any{"read": true}); err != nil {
		return a.fail("Could not mark as read", err)
	}
	return nil
}

// MarkAllInboxRead marks every unread inbox item read and returns how many
// were updated.
func (a *App) MarkAllInboxRead(ctx context.Context) (int, error) {
	var unread []string
	for _, it := range a.Snapshot().Inbox {
		if !it.Read {
			unread = append(unread, it.ID)
		}
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cascadeWorkers)
	for _, id := range unread {
		g.Go(func() error {
			return a.backend.Update(gctx, "inbox", id, map[string]any{"read": true})
		})
	}
	if err := g.Wait(); err != nil {
		return 0, a.fail("Could not mark as read", err)
	}
	return len(unread), nil
}
