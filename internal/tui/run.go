package tui

import (
	"context"
	"sync"

	"boardsync/internal/app"
	"boardsync/internal/render"

	tea "github.com/charmbracelet/bubbletea"
)

// Notifier forwards app toasts into the running program. Toasts raised
// while no program is attached are dropped.
type Notifier struct {
	mu sync.Mutex
	p  *tea.Program
}

func (n *Notifier) Toast(kind app.ToastKind, msg string) {
	n.mu.Lock()
	p := n.p
	n.mu.Unlock()
	if p == nil {
		return
	}
	// Send blocks until the event loop reads it, and toasts can be raised
	// from inside Update.
	go p.Send(toastMsg{kind: kind, text: msg})
}

func (n *Notifier) attach(p *tea.Program) {
	n.mu.Lock()
	n.p = p
	n.mu.Unlock()
}

// Run starts the interactive client for a signed-in App and blocks until the
// user quits or ctx is cancelled. n may be nil.
func Run(ctx context.Context, a *app.App, n *Notifier) error {
	render.ApplyColorProfile(true)
	sigs, cancel := a.Hub().Subscribe()
	defer cancel()

	p := tea.NewProgram(newModel(ctx, a, sigs), tea.WithAltScreen(), tea.WithContext(ctx))
	if n != nil {
		n.attach(p)
		defer n.attach(nil)
	}
	final, err := p.Run()
	if fm, ok := final.(model); ok && fm.chatPID != "" {
		a.CloseChat(fm.chatPID)
	}
	return err
}
