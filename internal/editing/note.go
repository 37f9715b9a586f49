package editing

import (
	"context"
	"fmt"
	"sync"
	"time"

	"boardsync/internal/docstore"

	"go.uber.org/zap"
)

// DefaultNoteDebounce is the autosave delay of the note editor.
const DefaultNoteDebounce = 800 * time.Millisecond

// NoteSession autosaves the title and body of one note.
type NoteSession struct {
	backend docstore.Backend
	noteID  string
	log     *zap.Logger
	sched   *Scheduler

	mu     sync.Mutex
	title  string
	body   string
	err    error
	closed bool
}

// OpenNote starts editing a note whose current title and body are given.
// A zero debounce uses DefaultNoteDebounce.
func OpenNote(backend docstore.Backend, noteID, title, body string, debounce time.Duration, log *zap.Logger) *NoteSession {
	if debounce <= 0 {
		debounce = DefaultNoteDebounce
	}
	n := &NoteSession{backend: backend, noteID: noteID, title: title, body: body, log: orNop(log).With(zap.String("note", noteID))}
	n.sched = NewScheduler(debounce, n.save, n.saved)
	return n
}

func (n *NoteSession) NoteID() string { return n.noteID }

func (n *NoteSession) Content() (title, body string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.title, n.body
}

// Err is the result of the last save.
func (n *NoteSession) Err() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.err
}

func (n *NoteSession) SetTitle(v string) error {
	return n.edit(func() { n.title = v })
}

func (n *NoteSession) SetBody(v string) error {
	return n.edit(func() { n.body = v })
}

func (n *NoteSession) edit(fn func()) error {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return ErrClosed
	}
	fn()
	n.mu.Unlock()
	n.sched.Notify()
	return nil
}

func (n *NoteSession) save(ctx context.Context) error {
	title, body := n.Content()
	err := n.backend.Update(ctx, "notes", n.noteID, map[string]any{
		"title":     title,
		"body":      body,
		"updatedAt": docstore.ServerTimestamp(),
	})
	if err != nil {
		return fmt.Errorf("save note %s: %w", n.noteID, err)
	}
	return nil
}

func (n *NoteSession) saved(err error) {
	if err != nil {
		n.log.Warn("note autosave failed", zap.Error(err))
	}
	n.mu.Lock()
	n.err = err
	n.mu.Unlock()
}

func (n *NoteSession) SaveNow(ctx context.Context) error {
	return n.sched.Flush(ctx)
}

// Close ends the session with the same policies as Session.Close.
func (n *NoteSession) Close(ctx context.Context, policy ClosePolicy) error {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return nil
	}
	n.closed = true
	n.mu.Unlock()
	var err error
	if policy == CloseFlush {
		err = n.sched.Flush(ctx)
	}
	n.sched.Stop()
	return err
}
