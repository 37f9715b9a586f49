package entitystore

import (
	"boardsync/internal/model"
)

type taskRef struct {
	pid string
	idx int
}

// Snapshot is a read-only view of the store at one version. Callers must
// treat every returned value as read-only; values are copies, so mutating
// them never reaches the store.
type Snapshot struct {
	UserID  string
	Version uint64

	// Projects sorted by creation time.
	Projects []model.Project
	// Notes sorted by last update, newest first.
	Notes []model.Note
	// Inbox sorted newest first.
	Inbox []model.InboxItem

	projects     map[string]int
	tasks        map[string][]model.Task
	taskProjects []string
	taskLoc      map[string]taskRef
	chat         map[string][]model.ChatMessage
}

// Empty returns a snapshot with no data, useful before sign-in.
func Empty() *Snapshot {
	return &Snapshot{
		projects: map[string]int{},
		tasks:    map[string][]model.Task{},
		taskLoc:  map[string]taskRef{},
		chat:     map[string][]model.ChatMessage{},
	}
}

func (s *Snapshot) Project(id string) (model.Project, bool) {
	i, ok := s.projects[id]
	if !ok {
		return model.Project{}, false
	}
	return s.Projects[i], true
}

// ActiveProjects excludes archived projects.
func (s *Snapshot) ActiveProjects() []model.Project {
	var out []model.Project
	for _, p := range s.Projects {
		if !p.Archived {
			out = append(out, p)
		}
	}
	return out
}

func (s *Snapshot) ArchivedProjects() []model.Project {
	var out []model.Project
	for _, p := range s.Projects {
		if p.Archived {
			out = append(out, p)
		}
	}
	return out
}

// ProjectTasks returns a project's tasks in snapshot (delivery) order.
func (s *Snapshot) ProjectTasks(pid string) []model.Task {
	return s.tasks[pid]
}

func (s *Snapshot) Task(id string) (model.Task, bool) {
	ref, ok := s.taskLoc[id]
	if !ok {
		return model.Task{}, false
	}
	return s.tasks[ref.pid][ref.idx], true
}

// AllTasks is every task of every subscribed project ("all in my projects").
func (s *Snapshot) AllTasks() []model.Task {
	var out []model.Task
	for _, pid := range s.taskProjects {
		out = append(out, s.tasks[pid]...)
	}
	return out
}

// MyTasks is the tasks assigned to the signed-in user plus unassigned tasks
// in projects the user owns.
func (s *Snapshot) MyTasks() []model.Task {
	var out []model.Task
	for _, pid := range s.taskProjects {
		p, hasProject := s.Project(pid)
		owner := hasProject && p.OwnerID == s.UserID && s.UserID != ""
		for _, t := range s.tasks[pid] {
			switch {
			case s.UserID != "" && t.AssigneeID == s.UserID:
				out = append(out, t)
			case t.AssigneeID == "" && owner:
				out = append(out, t)
			}
		}
	}
	return out
}

func (s *Snapshot) Note(id string) (model.Note, bool) {
	for _, n := range s.Notes {
		if n.ID == id {
			return n, true
		}
	}
	return model.Note{}, false
}

func (s *Snapshot) UnreadCount() int {
	n := 0
	for _, it := range s.Inbox {
		if !it.Read {
			n++
		}
	}
	return n
}

// Chat returns a project's messages, oldest first.
func (s *Snapshot) Chat(pid string) []model.ChatMessage {
	return s.chat[pid]
}
