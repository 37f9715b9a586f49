package tui

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Dashboard key.Binding
	Board     key.Binding
	List      key.Binding
	Calendar  key.Binding
	Gantt     key.Binding
	Notes     key.Binding
	Inbox     key.Binding
	Chat      key.Binding
	Stats     key.Binding
	Projects  key.Binding

	PrevProject key.Binding
	NextProject key.Binding
	PrevMonth   key.Binding
	NextMonth   key.Binding
	Sort        key.Binding
	Reverse     key.Binding
	HideDone    key.Binding
	Compose     key.Binding
	ReadAll     key.Binding

	Help key.Binding
	Quit key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		Dashboard: key.NewBinding(key.WithKeys("d"), key.WithHelp("d", "dashboard")),
		Board:     key.NewBinding(key.WithKeys("b"), key.WithHelp("b", "board")),
		List:      key.NewBinding(key.WithKeys("l"), key.WithHelp("l", "list")),
		Calendar:  key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "calendar")),
		Gantt:     key.NewBinding(key.WithKeys("g"), key.WithHelp("g", "gantt")),
		Notes:     key.NewBinding(key.WithKeys("n"), key.WithHelp("n", "notes")),
		Inbox:     key.NewBinding(key.WithKeys("i"), key.WithHelp("i", "inbox")),
		Chat:      key.NewBinding(key.WithKeys("t"), key.WithHelp("t", "chat")),
		Stats:     key.NewBinding(key.WithKeys("x"), key.WithHelp("x", "stats")),
		Projects:  key.NewBinding(key.WithKeys("p"), key.WithHelp("p", "projects")),

		PrevProject: key.NewBinding(key.WithKeys("["), key.WithHelp("[", "prev project")),
		NextProject: key.NewBinding(key.WithKeys("]"), key.WithHelp("]", "next project")),
		PrevMonth:   key.NewBinding(key.WithKeys("<", ","), key.WithHelp("<", "prev month")),
		NextMonth:   key.NewBinding(key.WithKeys(">", "."), key.WithHelp(">", "next month")),
		Sort:        key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "sort")),
		Reverse:     key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "reverse")),
		HideDone:    key.NewBinding(key.WithKeys("h"), key.WithHelp("h", "hide done")),
		Compose:     key.NewBinding(key.WithKeys("m"), key.WithHelp("m", "message")),
		ReadAll:     key.NewBinding(key.WithKeys("a"), key.WithHelp("a", "mark all read")),

		Help: key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
		Quit: key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Board, k.List, k.Calendar, k.Gantt, k.Dashboard, k.PrevProject, k.NextProject, k.Help, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Dashboard, k.Board, k.List, k.Calendar, k.Gantt},
		{k.Notes, k.Inbox, k.Chat, k.Stats, k.Projects},
		{k.PrevProject, k.NextProject, k.PrevMonth, k.NextMonth},
		{k.Sort, k.Reverse, k.HideDone, k.Compose, k.ReadAll},
		{k.Help, k.Quit},
	}
}
