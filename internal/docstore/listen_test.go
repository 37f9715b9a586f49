package docstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func nextSnapshot(t *testing.T, l Listener) Snapshot {
	t.Helper()
	select {
	case snap, ok := <-l.Snapshots():
		if !ok {
			t.Fatalf("listener closed early: %v", l.Err())
		}
		return snap
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for snapshot")
	}
	return Snapshot{}
}

func TestListen_InitialSnapshotThenIncrementalChanges(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := openTestStore(t)

	keep, _ := s.Create(ctx, "tasks", map[string]any{"projectId": "p1", "title": "one"})
	_, _ = s.Create(ctx, "tasks", map[string]any{"projectId": "p2", "title": "other project"})

	l, err := s.Listen(ctx, Collection("tasks").Eq("projectId", "p1"))
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer l.Close()

	snap := nextSnapshot(t, l)
	if !snap.Initial || len(snap.Changes) != 1 || snap.Changes[0].Doc.ID != keep || snap.Changes[0].Type != ChangeAdded {
		t.Fatalf("unexpected initial snapshot: %+v", snap)
	}

	added, _ := s.Create(ctx, "tasks", map[string]any{"projectId": "p1", "title": "two"})
	snap = nextSnapshot(t, l)
	if snap.Initial || len(snap.Changes) != 1 || snap.Changes[0].Type != ChangeAdded || snap.Changes[0].Doc.ID != added {
		t.Fatalf("unexpected add snapshot: %+v", snap)
	}

	if err := s.Update(ctx, "tasks", keep, map[string]any{"title": "one (edited)"}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	snap = nextSnapshot(t, l)
	if len(snap.Changes) != 1 || snap.Changes[0].Type != ChangeModified || snap.Changes[0].Doc.Fields["title"] != "one (edited)" {
		t.Fatalf("unexpected modify snapshot: %+v", snap)
	}

	// Moving the task out of the filter reports it as removed.
	if err := s.Update(ctx, "tasks", added, map[string]any{"projectId": "p2"}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	snap = nextSnapshot(t, l)
	if len(snap.Changes) != 1 || snap.Changes[0].Type != ChangeRemoved || snap.Changes[0].Doc.ID != added {
		t.Fatalf("unexpected remove snapshot: %+v", snap)
	}
}

func TestListen_EmptyInitialSnapshotIsDelivered(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)

	l, err := s.Listen(context.Background(), Collection("notes").Eq("userId", "nobody"))
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer l.Close()

	snap := nextSnapshot(t, l)
	if !snap.Initial || len(snap.Changes) != 0 {
		t.Fatalf("expected empty initial snapshot, got %+v", snap)
	}
}

func TestListen_CloseStopsDelivery(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)

	l, err := s.Listen(context.Background(), Collection("notes"))
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	_ = nextSnapshot(t, l)
	l.Close()

	if _, ok := <-l.Snapshots(); ok {
		t.Fatalf("expected closed channel after Close")
	}
	if l.Err() != nil {
		t.Fatalf("Close should not record an error: %v", l.Err())
	}
}

func TestListen_SeesCommitsFromAnotherConnection(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "shared.sqlite")

	watcher, err := OpenSQLite(ctx, path, SQLiteOptions{WatchInterval: 20 * time.Millisecond})
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	defer watcher.Close()
	writer, err := OpenSQLite(ctx, path, SQLiteOptions{WatchInterval: -1})
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	defer writer.Close()

	l, err := watcher.Listen(ctx, Collection("chat").Eq("projectId", "p1"))
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer l.Close()
	_ = nextSnapshot(t, l)

	id, err := writer.Create(ctx, "chat", map[string]any{"projectId": "p1", "text": "hello"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	snap := nextSnapshot(t, l)
	if len(snap.Changes) != 1 || snap.Changes[0].Doc.ID != id {
		t.Fatalf("expected the other connection's write, got %+v", snap)
	}
}

func TestDiffDocuments_ReportsRemovalsAfterUpserts(t *testing.T) {
	t.Parallel()

	prev := map[string]string{"a": `{"v":1}`, "b": `{"v":1}`}
	docs := []Document{
		{ID: "a", Fields: map[string]any{"v": 2}},
		{ID: "c", Fields: map[string]any{"v": 1}},
	}
	snap, next := diffDocuments("x", prev, docs, false)
	if len(next) != 2 {
		t.Fatalf("unexpected next set: %v", next)
	}
	want := []ChangeType{ChangeModified, ChangeAdded, ChangeRemoved}
	if len(snap.Changes) != len(want) {
		t.Fatalf("unexpected changes: %+v", snap.Changes)
	}
	for i, c := range snap.Changes {
		if c.Type != want[i] {
			t.Fatalf("change %d: got %s want %s", i, c.Type, want[i])
		}
	}
	if snap.Changes[2].Doc.ID != "b" || snap.Changes[2].Doc.Collection != "x" {
		t.Fatalf("unexpected removed doc: %+v", snap.Changes[2].Doc)
	}
}
