package subscription

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"boardsync/internal/docstore"
	"boardsync/internal/entitystore"
)

func openBackend(t *testing.T) *docstore.SQLite {
	t.Helper()
	s, err := docstore.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "docs.sqlite"), docstore.SQLiteOptions{WatchInterval: -1})
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func waitFor(t *testing.T, m *Manager, what string, pred func(*entitystore.Snapshot) bool) {
	t.Helper()
	if !m.WaitFor(context.Background(), 200, 10*time.Millisecond, pred) {
		t.Fatalf("timed out waiting for %s", what)
	}
}

func waitState(t *testing.T, m *Manager, k Key, want State) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if m.State(k) == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("key %s: state %s, want %s", k, m.State(k), want)
}

func seedProject(t *testing.T, b docstore.Backend, members ...string) string {
	t.Helper()
	id, err := b.Create(context.Background(), "projects", map[string]any{
		"name":      "Website",
		"ownerId":   members[0],
		"memberIds": members,
		"columns":   []map[string]any{{"id": "c1", "name": "To do", "order": 0}},
	})
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	return id
}

func seedTask(t *testing.T, b docstore.Backend, pid, title string) string {
	t.Helper()
	id, err := b.Create(context.Background(), "tasks", map[string]any{"projectId": pid, "columnId": "c1", "title": title})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	return id
}

func TestManager_LoadsProjectsAndTasksLazily(t *testing.T) {
	t.Parallel()
	b := openBackend(t)
	pid := seedProject(t, b, "u1")
	tid := seedTask(t, b, pid, "Design header")
	_ = seedProject(t, b, "someone-else")

	m := NewManager(b, entitystore.New(), nil, Options{})
	defer m.Stop()
	if err := m.Start(context.Background(), "u1"); err != nil {
		t.Fatalf("Start: %v", err)
	}

	waitFor(t, m, "task to arrive", func(s *entitystore.Snapshot) bool {
		_, ok := s.Task(tid)
		return ok
	})
	snap := m.Store().Snapshot()
	if len(snap.Projects) != 1 || snap.Projects[0].ID != pid {
		t.Fatalf("expected only the member project, got %+v", snap.Projects)
	}
	waitState(t, m, Key{Collection: "tasks", Scope: pid}, StateActive)
	waitState(t, m, Key{Collection: "projects", Scope: "u1"}, StateActive)
}

func TestManager_MembershipRevocationDropsProject(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	b := openBackend(t)
	pid := seedProject(t, b, "owner", "u1")
	tid := seedTask(t, b, pid, "Shared task")

	m := NewManager(b, entitystore.New(), nil, Options{})
	defer m.Stop()
	_ = m.Start(ctx, "u1")
	waitFor(t, m, "task", func(s *entitystore.Snapshot) bool { _, ok := s.Task(tid); return ok })

	if err := b.Update(ctx, "projects", pid, map[string]any{"memberIds": docstore.ArrayRemove("u1")}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	waitFor(t, m, "project removal", func(s *entitystore.Snapshot) bool {
		_, hasProject := s.Project(pid)
		_, hasTask := s.Task(tid)
		return !hasProject && !hasTask
	})
	waitState(t, m, Key{Collection: "tasks", Scope: pid}, StateUnsubscribed)
}

func TestManager_CascadeDeleteRemovesTasks(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	b := openBackend(t)
	pid := seedProject(t, b, "u1")
	t1 := seedTask(t, b, pid, "one")
	t2 := seedTask(t, b, pid, "two")

	m := NewManager(b, entitystore.New(), nil, Options{})
	defer m.Stop()
	_ = m.Start(ctx, "u1")
	waitFor(t, m, "tasks", func(s *entitystore.Snapshot) bool { return len(s.ProjectTasks(pid)) == 2 })

	for _, id := range []string{t1, t2} {
		if err := b.Delete(ctx, "tasks", id); err != nil {
			t.Fatalf("Delete: %v", err)
		}
	}
	if err := b.Delete(ctx, "projects", pid); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	waitFor(t, m, "cascade", func(s *entitystore.Snapshot) bool {
		return len(s.AllTasks()) == 0 && len(s.Projects) == 0
	})
}

func TestManager_StopClearsEverything(t *testing.T) {
	t.Parallel()
	b := openBackend(t)
	pid := seedProject(t, b, "u1")
	_ = seedTask(t, b, pid, "one")

	hub := NewHub()
	sigs, cancel := hub.Subscribe()
	defer cancel()

	m := NewManager(b, entitystore.New(), hub, Options{})
	_ = m.Start(context.Background(), "u1")
	waitFor(t, m, "tasks", func(s *entitystore.Snapshot) bool { return len(s.AllTasks()) == 1 })

	awaitTopic(t, sigs, TasksTopic(pid))

	m.Stop()
	snap := m.Store().Snapshot()
	if snap.UserID != "" || len(snap.Projects) != 0 || len(snap.AllTasks()) != 0 {
		t.Fatalf("expected empty store after Stop, got %+v", snap)
	}
	if len(m.States()) != 0 {
		t.Fatalf("expected no subscriptions after Stop, got %v", m.States())
	}
	awaitTopic(t, sigs, TopicSession)

	// Late lazy requests from a stale view open nothing.
	m.EnsureTasks(pid)
	m.EnsureChat(pid)
	if len(m.States()) != 0 {
		t.Fatalf("expected no subscriptions after Stop, got %v", m.States())
	}
}

func awaitTopic(t *testing.T, sigs <-chan Signal, topic string) {
	t.Helper()
	timeout := time.After(3 * time.Second)
	for {
		select {
		case sig := <-sigs:
			if sig.Topic == topic {
				return
			}
		case <-timeout:
			t.Fatalf("no %s signal", topic)
		}
	}
}

// countingBackend counts Listen calls per query and can fail the first few.
type countingBackend struct {
	docstore.Backend

	mu       sync.Mutex
	listens  map[string]int
	failures map[string]int
}

func (c *countingBackend) Listen(ctx context.Context, q docstore.Query) (docstore.Listener, error) {
	c.mu.Lock()
	c.listens[q.Collection]++
	if c.failures[q.Collection] > 0 {
		c.failures[q.Collection]--
		c.mu.Unlock()
		return nil, errors.New("backend unavailable")
	}
	c.mu.Unlock()
	return c.Backend.Listen(ctx, q)
}

func (c *countingBackend) count(collection string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.listens[collection]
}

func TestManager_TaskSubscriptionNeverDuplicated(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	b := &countingBackend{Backend: openBackend(t), listens: map[string]int{}, failures: map[string]int{}}
	pid := seedProject(t, b, "u1")

	m := NewManager(b, entitystore.New(), nil, Options{})
	defer m.Stop()
	_ = m.Start(ctx, "u1")
	waitState(t, m, Key{Collection: "tasks", Scope: pid}, StateActive)

	// Project edits re-deliver the project; the task subscription must stay single.
	for i := 0; i < 3; i++ {
		if err := b.Update(ctx, "projects", pid, map[string]any{"name": "Rename " + string(rune('A'+i))}); err != nil {
			t.Fatalf("Update: %v", err)
		}
	}
	waitFor(t, m, "rename", func(s *entitystore.Snapshot) bool {
		p, ok := s.Project(pid)
		return ok && p.Name == "Rename C"
	})
	m.EnsureTasks(pid)
	if got := b.count("tasks"); got != 1 {
		t.Fatalf("expected one task listen, got %d", got)
	}
}

func TestManager_ResubscribesWithBackoffAfterFailure(t *testing.T) {
	t.Parallel()
	b := &countingBackend{Backend: openBackend(t), listens: map[string]int{}, failures: map[string]int{"projects": 2}}
	pid := seedProject(t, b, "u1")

	m := NewManager(b, entitystore.New(), nil, Options{
		ResubscribeBase: time.Millisecond,
		ResubscribeMax:  5 * time.Millisecond,
		ResubscribeRate: 1000,
	})
	defer m.Stop()
	_ = m.Start(context.Background(), "u1")

	waitFor(t, m, "project after retries", func(s *entitystore.Snapshot) bool {
		_, ok := s.Project(pid)
		return ok
	})
	waitState(t, m, Key{Collection: "projects", Scope: "u1"}, StateActive)
	if got := b.count("projects"); got != 3 {
		t.Fatalf("expected 3 listen attempts, got %d", got)
	}
	if err := m.LastError(Key{Collection: "projects", Scope: "u1"}); err != nil {
		t.Fatalf("expected error cleared after success, got %v", err)
	}
}

func TestBackoff(t *testing.T) {
	t.Parallel()
	base, limit := 500*time.Millisecond, 30*time.Second
	cases := map[int]time.Duration{
		0:  500 * time.Millisecond,
		1:  500 * time.Millisecond,
		2:  time.Second,
		3:  2 * time.Second,
		7:  30 * time.Second,
		40: 30 * time.Second,
	}
	for attempt, want := range cases {
		if got := Backoff(attempt, base, limit); got != want {
			t.Fatalf("attempt %d: got %v want %v", attempt, got, want)
		}
	}
	for i := 0; i < 100; i++ {
		d := jitter(time.Second)
		if d < 500*time.Millisecond || d >= time.Second {
			t.Fatalf("jitter out of range: %v", d)
		}
	}
}

func TestHub_NonBlockingBroadcast(t *testing.T) {
	t.Parallel()
	h := NewHub()
	ch, cancel := h.Subscribe()
	for i := 0; i < 100; i++ {
		h.Broadcast(Signal{Topic: TopicProjects, Version: uint64(i)})
	}
	if got := len(ch); got != 8 {
		t.Fatalf("expected buffered signals to cap at 8, got %d", got)
	}
	cancel()
	cancel()
	h.Broadcast(Signal{Topic: TopicProjects})
}

func TestManager_WaitSettledCoversLazyTaskSubscriptions(t *testing.T) {
	t.Parallel()
	b := openBackend(t)
	pid := seedProject(t, b, "u1")
	tid := seedTask(t, b, pid, "Design header")

	m := NewManager(b, entitystore.New(), nil, Options{})
	defer m.Stop()
	if m.Settled() {
		t.Fatalf("settled before Start")
	}
	if err := m.Start(context.Background(), "u1"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := m.WaitSettled(ctx, 5*time.Millisecond); err != nil {
		t.Fatalf("WaitSettled: %v", err)
	}
	if _, ok := m.Store().Snapshot().Task(tid); !ok {
		t.Fatalf("task missing once settled")
	}
}
