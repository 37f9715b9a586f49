// Package tui is the live terminal client: it re-renders the current view
// whenever the subscription hub reports a change.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"boardsync/internal/app"
	"boardsync/internal/render"
	"boardsync/internal/subscription"
	"boardsync/internal/views"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const toastTTL = 4 * time.Second

type signalMsg subscription.Signal

type toastMsg struct {
	kind app.ToastKind
	text string
}

type toastExpiredMsg struct{ seq int }

type cmdErrMsg struct{ err error }

var tabs = []struct {
	view  app.View
	label string
}{
	{app.ViewDashboard, "Dashboard"},
	{app.ViewBoard, "Board"},
	{app.ViewList, "List"},
	{app.ViewCalendar, "Calendar"},
	{app.ViewGantt, "Gantt"},
	{app.ViewNotes, "Notes"},
	{app.ViewInbox, "Inbox"},
	{app.ViewChat, "Chat"},
	{app.ViewStats, "Stats"},
	{app.ViewProjects, "Projects"},
}

type model struct {
	ctx  context.Context
	app  *app.App
	keys keyMap
	help help.Model

	sigs <-chan subscription.Signal

	width  int
	height int
	vp     viewport.Model
	ready  bool

	composing bool
	input     textinput.Model
	chatPID   string

	toast    toastMsg
	toastSeq int
}

func newModel(ctx context.Context, a *app.App, sigs <-chan subscription.Signal) model {
	in := textinput.New()
	in.Placeholder = "Message"
	in.CharLimit = 2000
	m := model{
		ctx:   ctx,
		app:   a,
		keys:  defaultKeyMap(),
		help:  help.New(),
		sigs:  sigs,
		input: in,
	}
	m.syncChat()
	return m
}

func waitForSignal(sigs <-chan subscription.Signal) tea.Cmd {
	return func() tea.Msg {
		sig, ok := <-sigs
		if !ok {
			return nil
		}
		return signalMsg(sig)
	}
}

func expireToast(seq int) tea.Cmd {
	return tea.Tick(toastTTL, func(time.Time) tea.Msg { return toastExpiredMsg{seq: seq} })
}

func (m model) Init() tea.Cmd {
	return tea.Batch(waitForSignal(m.sigs), textinput.Blink)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.help.Width = msg.Width
		h := m.contentHeight()
		if !m.ready {
			m.vp = viewport.New(msg.Width, h)
			m.ready = true
		} else {
			m.vp.Width, m.vp.Height = msg.Width, h
		}
		m.refresh()
		return m, nil

	case signalMsg:
		m.refresh()
		return m, waitForSignal(m.sigs)

	case toastMsg:
		m.toast = msg
		m.toastSeq++
		return m, expireToast(m.toastSeq)

	case toastExpiredMsg:
		if msg.seq == m.toastSeq {
			m.toast = toastMsg{}
		}
		return m, nil

	case cmdErrMsg:
		// The app already toasted it.
		return m, nil

	case tea.KeyMsg:
		if m.composing {
			return m.updateComposer(msg)
		}
		return m.updateKeys(msg)
	}

	var cmd tea.Cmd
	m.vp, cmd = m.vp.Update(msg)
	return m, cmd
}

func (m model) updateKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	a := m.app
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
		if m.ready {
			m.vp.Height = m.contentHeight()
		}
	case key.Matches(msg, m.keys.Dashboard):
		m.switchView(app.ViewDashboard)
	case key.Matches(msg, m.keys.Board):
		m.switchView(app.ViewBoard)
	case key.Matches(msg, m.keys.List):
		m.switchView(app.ViewList)
	case key.Matches(msg, m.keys.Calendar):
		m.switchView(app.ViewCalendar)
	case key.Matches(msg, m.keys.Gantt):
		m.switchView(app.ViewGantt)
	case key.Matches(msg, m.keys.Notes):
		m.switchView(app.ViewNotes)
	case key.Matches(msg, m.keys.Inbox):
		m.switchView(app.ViewInbox)
	case key.Matches(msg, m.keys.Chat):
		m.switchView(app.ViewChat)
	case key.Matches(msg, m.keys.Stats):
		m.switchView(app.ViewStats)
	case key.Matches(msg, m.keys.Projects):
		m.switchView(app.ViewProjects)
	case key.Matches(msg, m.keys.PrevProject):
		a.CycleProject(-1)
		m.syncChat()
	case key.Matches(msg, m.keys.NextProject):
		a.CycleProject(1)
		m.syncChat()
	case key.Matches(msg, m.keys.PrevMonth):
		a.ShiftMonth(-1)
	case key.Matches(msg, m.keys.NextMonth):
		a.ShiftMonth(1)
	case key.Matches(msg, m.keys.Sort):
		a.CycleSort()
	case key.Matches(msg, m.keys.Reverse):
		a.ReverseSort()
	case key.Matches(msg, m.keys.HideDone):
		if p, ok := a.CurrentProject(); ok {
			f := a.Filter(p.ID)
			f.HideDone = !f.HideDone
			a.SetFilter(p.ID, f)
		}
	case key.Matches(msg, m.keys.ReadAll):
		if a.State().View == app.ViewInbox {
			return m, m.markAllRead()
		}
	case key.Matches(msg, m.keys.Compose):
		if a.State().View == app.ViewChat && m.chatPID != "" {
			m.composing = true
			m.input.Reset()
			return m, m.input.Focus()
		}
	default:
		var cmd tea.Cmd
		m.vp, cmd = m.vp.Update(msg)
		return m, cmd
	}
	m.refresh()
	return m, nil
}

func (m model) updateComposer(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.composing = false
		m.input.Blur()
		return m, nil
	case tea.KeyEnter:
		text, pid := m.input.Value(), m.chatPID
		m.composing = false
		m.input.Blur()
		m.input.Reset()
		a, ctx := m.app, m.ctx
		return m, func() tea.Msg {
			if _, err := a.SendChat(ctx, pid, text); err != nil {
				return cmdErrMsg{err}
			}
			return nil
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m model) markAllRead() tea.Cmd {
	a, ctx := m.app, m.ctx
	return func() tea.Msg {
		n, err := a.MarkAllInboxRead(ctx)
		if err != nil {
			return cmdErrMsg{err}
		}
		return toastMsg{kind: app.ToastSuccess, text: fmt.Sprintf("Marked %d as read", n)}
	}
}

func needsProject(v app.View) bool {
	switch v {
	case app.ViewBoard, app.ViewList, app.ViewGantt, app.ViewChat:
		return true
	}
	return false
}

func (m *model) switchView(v app.View) {
	m.app.SetView(v)
	if needsProject(v) {
		if _, ok := m.app.CurrentProject(); !ok {
			m.app.CycleProject(0)
		}
	}
	m.syncChat()
	if m.ready {
		m.vp.GotoTop()
	}
}

// syncChat keeps exactly the chat of the current project subscribed while
// the chat view is showing.
func (m *model) syncChat() {
	want := ""
	if m.app.State().View == app.ViewChat {
		if p, ok := m.app.CurrentProject(); ok {
			want = p.ID
		}
	}
	if want == m.chatPID {
		return
	}
	if m.chatPID != "" {
		m.app.CloseChat(m.chatPID)
	}
	m.chatPID = ""
	if want != "" && m.app.OpenChat(want) == nil {
		m.chatPID = want
	}
}

func (m model) contentHeight() int {
	h := m.height - lipgloss.Height(m.header()) - lipgloss.Height(m.footer())
	if h < 3 {
		h = 3
	}
	return h
}

func (m *model) refresh() {
	if !m.ready {
		return
	}
	m.vp.SetContent(m.content())
}

func (m model) content() string {
	a := m.app
	st := a.State()
	now := a.Today()
	snap := a.Snapshot()
	p, hasProject := a.CurrentProject()
	if needsProject(st.View) && !hasProject {
		return "No project selected. Create one with `boardsync projects create`."
	}
	switch st.View {
	case app.ViewBoard:
		return render.Kanban(a.Kanban(p.ID), m.width)
	case app.ViewList:
		return render.List(a.List(p.ID), m.width)
	case app.ViewCalendar:
		return render.Month(a.Calendar())
	case app.ViewGantt:
		return render.Gantt(a.Gantt(p.ID))
	case app.ViewNotes:
		return render.Notes(snap.Notes, now)
	case app.ViewInbox:
		return render.Inbox(snap.Inbox, now)
	case app.ViewChat:
		u, _ := a.User()
		return render.Chat(snap.Chat(p.ID), u.UID, now)
	case app.ViewStats:
		return render.Statistics(a.Statistics(views.StatsOptions{}))
	case app.ViewProjects:
		return render.ProjectCards(a.ProjectCards(false))
	default:
		return render.Dashboard(a.Dashboard())
	}
}

func (m model) header() string {
	st := m.app.State()
	var parts []string
	for _, t := range tabs {
		label := " " + t.label + " "
		if t.view == app.ViewInbox {
			if n := m.app.Snapshot().UnreadCount(); n > 0 {
				label = fmt.Sprintf(" %s (%d) ", t.label, n)
			}
		}
		if t.view == st.View {
			label = lipgloss.NewStyle().Reverse(true).Render(label)
		}
		parts = append(parts, label)
	}
	line := strings.Join(parts, "")

	var info []string
	if u, ok := m.app.User(); ok {
		info = append(info, u.Name)
	}
	if p, ok := m.app.CurrentProject(); ok {
		info = append(info, p.Name)
	}
	if st.View == app.ViewList {
		dir := "asc"
		if st.Desc {
			dir = "desc"
		}
		info = append(info, fmt.Sprintf("sort: %s %s", st.Sort, dir))
	}
	return line + "\n" + lipgloss.NewStyle().Faint(true).Render(strings.Join(info, " · "))
}

func (m model) footer() string {
	var lines []string
	if m.composing {
		lines = append(lines, m.input.View())
	}
	if m.toast.text != "" {
		st := lipgloss.NewStyle().Bold(true)
		switch m.toast.kind {
		case app.ToastError:
			st = st.Foreground(lipgloss.Color("9"))
		case app.ToastSuccess:
			st = st.Foreground(lipgloss.Color("10"))
		}
		lines = append(lines, st.Render(m.toast.text))
	}
	lines = append(lines, m.help.View(m.keys))
	return strings.Join(lines, "\n")
}

func (m model) View() string {
	if !m.ready {
		return "Loading…"
	}
	return m.header() + "\n" + m.vp.View() + "\n" + m.footer()
}
