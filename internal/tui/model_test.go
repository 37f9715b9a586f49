package tui

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"boardsync/internal/app"
	"boardsync/internal/auth"
	"boardsync/internal/docstore"
	"boardsync/internal/entitystore"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/crypto/bcrypt"
)

func newSignedInApp(t *testing.T) (*app.App, string) {
	t.Helper()
	lipgloss.SetColorProfile(termenv.Ascii)
	ctx := context.Background()
	docs, err := docstore.OpenSQLite(ctx, filepath.Join(t.TempDir(), "docs.sqlite"), docstore.SQLiteOptions{WatchInterval: -1})
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { _ = docs.Close() })
	local, err := auth.NewLocal(ctx, docs.DB(), docs, auth.Options{Secret: []byte("tui"), Cost: bcrypt.MinCost})
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}
	a := app.New(docs, local, app.Options{OpenPollAttempts: 200, OpenPollInterval: 10 * time.Millisecond})
	t.Cleanup(func() { a.Close(context.Background()) })
	if _, err := a.SignUp(ctx, "anna@example.com", "secret1", "Anna"); err != nil {
		t.Fatalf("SignUp: %v", err)
	}
	pid, err := a.CreateProject(ctx, app.ProjectInput{Name: "Website"})
	if err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	if _, err := a.CreateTask(ctx, pid, "", "Write copy"); err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	if !a.Sync(ctx, func(s *entitystore.Snapshot) bool { return len(s.ProjectTasks(pid)) == 1 }) {
		t.Fatalf("task never arrived")
	}
	return a, pid
}

func press(t *testing.T, m model, keys string) model {
	t.Helper()
	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(keys)})
	return next.(model)
}

func TestModel_SwitchesViewsAndSelectsProject(t *testing.T) {
	a, pid := newSignedInApp(t)
	sigs, cancel := a.Hub().Subscribe()
	defer cancel()

	var m tea.Model = newModel(context.Background(), a, sigs)
	m, _ = m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	mm := m.(model)
	if !strings.Contains(mm.View(), "my tasks") {
		t.Fatalf("dashboard not shown:\n%s", mm.View())
	}

	mm = press(t, mm, "b")
	if got := a.State(); got.View != app.ViewBoard || got.ProjectID != pid {
		t.Fatalf("state after b = %+v", got)
	}
	out := mm.View()
	for _, want := range []string{"To do (1)", "Write copy", "Website"} {
		if !strings.Contains(out, want) {
			t.Fatalf("board missing %q:\n%s", want, out)
		}
	}

	mm = press(t, mm, "l")
	if !strings.Contains(mm.View(), "sort: due asc") {
		t.Fatalf("list header:\n%s", mm.View())
	}
	mm = press(t, mm, "r")
	if !strings.Contains(mm.View(), "sort: due desc") {
		t.Fatalf("reverse not applied:\n%s", mm.View())
	}
}

func TestModel_ChatSubscriptionFollowsView(t *testing.T) {
	a, pid := newSignedInApp(t)
	sigs, cancel := a.Hub().Subscribe()
	defer cancel()

	var m tea.Model = newModel(context.Background(), a, sigs)
	m, _ = m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	mm := press(t, m.(model), "t")
	if mm.chatPID != pid {
		t.Fatalf("chat not opened for %s (got %q)", pid, mm.chatPID)
	}
	mm = press(t, mm, "d")
	if mm.chatPID != "" {
		t.Fatalf("chat still held after leaving view")
	}
}

func TestModel_ToastExpires(t *testing.T) {
	a, _ := newSignedInApp(t)
	var m tea.Model = newModel(context.Background(), a, nil)
	m, _ = m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	m, _ = m.Update(toastMsg{kind: app.ToastSuccess, text: "Saved"})
	if !strings.Contains(m.View(), "Saved") {
		t.Fatalf("toast not shown")
	}
	m, _ = m.Update(toastExpiredMsg{seq: m.(model).toastSeq})
	if strings.Contains(m.View(), "Saved") {
		t.Fatalf("toast not cleared")
	}
}
