package entitystore

import (
	"sort"
	"sync"

	"boardsync/internal/model"
)

type ChangeKind string

const (
	Added    ChangeKind = "added"
	Modified ChangeKind = "modified"
	Removed  ChangeKind = "removed"
)

// Change is one decoded live-query event. Value is unset for removals.
type Change[T any] struct {
	Kind  ChangeKind
	ID    string
	Value T
}

// Store holds the latest known state of every subscribed entity.
//
// Only the subscription layer calls the Apply* methods; everything else reads
// through Snapshot, which never shares mutable state with the store.
type Store struct {
	mu      sync.RWMutex
	uid     string
	version uint64

	projects  map[string]model.Project
	tasks     map[string]*orderedSet[model.Task]
	notes     map[string]model.Note
	inbox     map[string]model.InboxItem
	chat      map[string]*orderedSet[model.ChatMessage]
	cached    *Snapshot
	cachedVer uint64
}

func New() *Store {
	s := &Store{}
	s.reset("")
	return s
}

func (s *Store) reset(uid string) {
	s.uid = uid
	s.projects = map[string]model.Project{}
	s.tasks = map[string]*orderedSet[model.Task]{}
	s.notes = map[string]model.Note{}
	s.inbox = map[string]model.InboxItem{}
	s.chat = map[string]*orderedSet[model.ChatMessage]{}
	s.cached = nil
}

// Begin clears all state and binds the store to uid (sign-in).
func (s *Store) Begin(uid string) {
	s.mu.Lock()
	s.reset(uid)
	s.version++
	s.mu.Unlock()
}

// Clear drops every entity (sign-out). Nothing survives a user switch.
func (s *Store) Clear() {
	s.Begin("")
}

func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

func (s *Store) UserID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.uid
}

// ApplyProjects applies a project batch. When initial is set the batch is the
// complete result set and projects missing from it are removed. It returns
// the ids of projects that were removed.
func (s *Store) ApplyProjects(initial bool, changes []Change[model.Project]) (removed []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if initial {
		present := map[string]bool{}
		for _, c := range changes {
			if c.Kind != Removed {
				present[c.ID] = true
			}
		}
		for id := range s.projects {
			if !present[id] {
				removed = append(removed, id)
			}
		}
	}
	for _, c := range changes {
		switch c.Kind {
		case Removed:
			if _, ok := s.projects[c.ID]; ok {
				removed = append(removed, c.ID)
			}
		default:
			p := c.Value
			p.ID = c.ID
			s.projects[c.ID] = p
		}
	}
	sort.Strings(removed)
	for _, id := range removed {
		s.dropProjectLocked(id)
	}
	s.version++
	return removed
}

// DropProject removes a project together with its tasks and chat.
func (s *Store) DropProject(pid string) {
	s.mu.Lock()
	s.dropProjectLocked(pid)
	s.version++
	s.mu.Unlock()
}

func (s *Store) dropProjectLocked(pid string) {
	delete(s.projects, pid)
	delete(s.tasks, pid)
	delete(s.chat, pid)
}

// ApplyTasks applies a task batch for one project, preserving delivery order.
func (s *Store) ApplyTasks(pid string, initial bool, changes []Change[model.Task]) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set := s.tasks[pid]
	if set == nil || initial {
		set = newOrderedSet[model.Task]()
		s.tasks[pid] = set
	}
	for _, c := range changes {
		if c.Kind == Removed {
			set.remove(c.ID)
			continue
		}
		t := c.Value
		t.ID = c.ID
		if t.ProjectID == "" {
			t.ProjectID = pid
		}
		set.put(c.ID, t)
	}
	s.version++
}

func (s *Store) ApplyNotes(initial bool, changes []Change[model.Note]) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if initial {
		s.notes = map[string]model.Note{}
	}
	for _, c := range changes {
		if c.Kind == Removed {
			delete(s.notes, c.ID)
			continue
		}
		n := c.Value
		n.ID = c.ID
		s.notes[c.ID] = n
	}
	s.version++
}

func (s *Store) ApplyInbox(initial bool, changes []Change[model.InboxItem]) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if initial {
		s.inbox = map[string]model.InboxItem{}
	}
	for _, c := range changes {
		if c.Kind == Removed {
			delete(s.inbox, c.ID)
			continue
		}
		it := c.Value
		it.ID = c.ID
		s.inbox[c.ID] = it
	}
	s.version++
}

func (s *Store) ApplyChat(pid string, initial bool, changes []Change[model.ChatMessage]) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set := s.chat[pid]
	if set == nil || initial {
		set = newOrderedSet[model.ChatMessage]()
		s.chat[pid] = set
	}
	for _, c := range changes {
		if c.Kind == Removed {
			set.remove(c.ID)
			continue
		}
		m := c.Value
		m.ID = c.ID
		set.put(c.ID, m)
	}
	s.version++
}

// HasProject reports whether pid is currently known.
func (s *Store) HasProject(pid string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.projects[pid]
	return ok
}

// Snapshot returns an immutable copy of the current state. Repeated calls
// without an intervening change return the same value.
func (s *Store) Snapshot() *Snapshot {
	s.mu.RLock()
	if s.cached != nil && s.cachedVer == s.version {
		snap := s.cached
		s.mu.RUnlock()
		return snap
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cached != nil && s.cachedVer == s.version {
		return s.cached
	}
	snap := s.buildSnapshotLocked()
	s.cached = snap
	s.cachedVer = s.version
	return snap
}

func (s *Store) buildSnapshotLocked() *Snapshot {
	snap := &Snapshot{
		UserID:   s.uid,
		Version:  s.version,
		projects: map[string]int{},
		tasks:    map[string][]model.Task{},
		taskLoc:  map[string]taskRef{},
		chat:     map[string][]model.ChatMessage{},
	}

	for _, p := range s.projects {
		snap.Projects = append(snap.Projects, p.Clone())
	}
	sort.SliceStable(snap.Projects, func(i, j int) bool {
		a, b := snap.Projects[i], snap.Projects[j]
		if !a.CreatedAt.Equal(b.CreatedAt.Time) {
			return a.CreatedAt.Before(b.CreatedAt.Time)
		}
		return a.ID < b.ID
	})
	for i, p := range snap.Projects {
		snap.projects[p.ID] = i
	}

	pids := make([]string, 0, len(s.tasks))
	for pid := range s.tasks {
		pids = append(pids, pid)
	}
	sort.Strings(pids)
	for _, pid := range pids {
		vals := s.tasks[pid].values()
		out := make([]model.Task, 0, len(vals))
		for _, t := range vals {
			out = append(out, t.Clone())
		}
		snap.tasks[pid] = out
		for i, t := range out {
			snap.taskLoc[t.ID] = taskRef{pid: pid, idx: i}
		}
		snap.taskProjects = append(snap.taskProjects, pid)
	}

	for _, n := range s.notes {
		snap.Notes = append(snap.Notes, n)
	}
	sort.SliceStable(snap.Notes, func(i, j int) bool {
		a, b := snap.Notes[i], snap.Notes[j]
		if !a.UpdatedAt.Equal(b.UpdatedAt.Time) {
			return a.UpdatedAt.After(b.UpdatedAt.Time)
		}
		return a.ID < b.ID
	})

	for _, it := range s.inbox {
		snap.Inbox = append(snap.Inbox, it)
	}
	sort.SliceStable(snap.Inbox, func(i, j int) bool {
		a, b := snap.Inbox[i], snap.Inbox[j]
		if !a.CreatedAt.Equal(b.CreatedAt.Time) {
			return a.CreatedAt.After(b.CreatedAt.Time)
		}
		return a.ID < b.ID
	})

	for pid, set := range s.chat {
		msgs := append([]model.ChatMessage(nil), set.values()...)
		sort.SliceStable(msgs, func(i, j int) bool {
			return msgs[i].CreatedAt.Before(msgs[j].CreatedAt.Time)
		})
		snap.chat[pid] = msgs
	}
	return snap
}

// orderedSet keeps values by id in first-insertion order.
type orderedSet[T any] struct {
	order []string
	byID  map[string]T
}

func newOrderedSet[T any]() *orderedSet[T] {
	return &orderedSet[T]{byID: map[string]T{}}
}

func (o *orderedSet[T]) put(id string, v T) {
	if _, ok := o.byID[id]; !ok {
		o.order = append(o.order, id)
	}
	o.byID[id] = v
}

func (o *orderedSet[T]) remove(id string) {
	if _, ok := o.byID[id]; !ok {
		return
	}
	delete(o.byID, id)
	for i, x := range o.order {
		if x == id {
			o.order = append(o.order[:i:i], o.order[i+1:]...)
			break
		}
	}
}

func (o *orderedSet[T]) values() []T {
	out := make([]T, 0, len(o.order))
	for _, id := range o.order {
		out = append(out, o.byID[id])
	}
	return out
}
