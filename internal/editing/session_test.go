package editing

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"boardsync/internal/docstore"
	"boardsync/internal/entitystore"
	"boardsync/internal/mention"
	"boardsync/internal/model"
)

type fixture struct {
	backend *countingBackend
	store   *entitystore.Store
	pid     string
	tid     string
}

type countingBackend struct {
	docstore.Backend
	updates atomic.Int32
}

func (c *countingBackend) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	c.updates.Add(1)
	return c.Backend.Update(ctx, collection, id, fields)
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	s, err := docstore.OpenSQLite(ctx, filepath.Join(t.TempDir(), "docs.sqlite"), docstore.SQLiteOptions{WatchInterval: -1})
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	pid, err := s.Create(ctx, "projects", map[string]any{
		"name":      "Website",
		"ownerId":   "u1",
		"memberIds": []string{"u1", "u2"},
		"members": []model.Member{
			{UID: "u1", Name: "Anna Kowalska", Role: model.RoleOwner},
			{UID: "u2", Name: "Jan Nowak", Role: model.RoleMember},
		},
		"columns": []model.Column{{ID: "todo", Name: "To do", Order: 0}, {ID: "done", Name: "Done", Order: 1}},
	})
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	tid, err := s.Create(ctx, "tasks", map[string]any{
		"projectId": pid,
		"columnId":  "todo",
		"title":     "Draft copy",
		"status":    "open",
		"priority":  "medium",
		"history":   []model.HistoryEntry{{Action: "Task created", By: "Anna Kowalska"}},
	})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	f := &fixture{backend: &countingBackend{Backend: s}, store: entitystore.New(), pid: pid, tid: tid}
	f.store.Begin("u1")
	f.sync(t)
	return f
}

// sync reloads the project and its tasks into the entity store.
func (f *fixture) sync(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	doc, err := f.backend.Get(ctx, "projects", f.pid)
	if err != nil {
		t.Fatalf("Get project: %v", err)
	}
	var p model.Project
	if err := doc.Decode(&p); err != nil {
		t.Fatalf("Decode project: %v", err)
	}
	f.store.ApplyProjects(true, []entitystore.Change[model.Project]{{Kind: entitystore.Added, ID: p.ID, Value: p}})
	docs, err := f.backend.Query(ctx, docstore.Collection("tasks").Eq("projectId", f.pid))
	if err != nil {
		t.Fatalf("Query tasks: %v", err)
	}
	var changes []entitystore.Change[model.Task]
	for _, d := range docs {
		var task model.Task
		if err := d.Decode(&task); err != nil {
			t.Fatalf("Decode task: %v", err)
		}
		changes = append(changes, entitystore.Change[model.Task]{Kind: entitystore.Added, ID: task.ID, Value: task})
	}
	f.store.ApplyTasks(f.pid, true, changes)
}

func (f *fixture) task(t *testing.T) model.Task {
	t.Helper()
	doc, err := f.backend.Get(context.Background(), "tasks", f.tid)
	if err != nil {
		t.Fatalf("Get task: %v", err)
	}
	var task model.Task
	if err := doc.Decode(&task); err != nil {
		t.Fatalf("Decode task: %v", err)
	}
	return task
}

func (f *fixture) open(t *testing.T, editor Editor, opts Options) *Session {
	t.Helper()
	s, err := Open(f.backend, f.store, f.tid, editor, opts)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close(context.Background(), CloseDiscard) })
	return s
}

func actions(task model.Task) []string {
	var out []string
	for _, h := range task.History {
		out = append(out, h.Action)
	}
	return out
}

var anna = Editor{UID: "u1", Name: "Anna Kowalska"}

func waitState(t *testing.T, s *Session, want SaveState) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if st, _ := s.State(); st == want {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	st, err := s.State()
	t.Fatalf("state %v (%v), want %v", st, err, want)
}

func TestSession_DebouncedAutosaveCoalescesEdits(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	s := f.open(t, anna, Options{Debounce: 30 * time.Millisecond, SavedDecay: time.Hour})

	for _, title := range []string{"D", "Dr", "Draft v2"} {
		if err := s.SetTitle(title); err != nil {
			t.Fatalf("SetTitle: %v", err)
		}
	}
	if err := s.SetPriority(model.PriorityHigh); err != nil {
		t.Fatalf("SetPriority: %v", err)
	}
	if err := s.ToggleChecklistItem(0); err == nil {
		t.Fatalf("expected an out of range error on an empty checklist")
	}
	if err := s.AddChecklistItem("Proofread"); err != nil {
		t.Fatalf("AddChecklistItem: %v", err)
	}
	waitState(t, s, StateSaved)

	if n := f.backend.updates.Load(); n != 1 {
		t.Fatalf("expected one coalesced write, got %d", n)
	}
	task := f.task(t)
	if task.Title != "Draft v2" || task.Priority != model.PriorityHigh || len(task.Checklist) != 1 {
		t.Fatalf("unexpected saved task: %+v", task)
	}
	want := []string{"Task created", `Changed title from "Draft copy" to "Draft v2"`, `Changed priority to "high"`}
	if got := actions(task); strings.Join(got, "|") != strings.Join(want, "|") {
		t.Fatalf("unexpected history: %q", got)
	}
	if task.History[1].By != "Anna Kowalska" || task.History[1].At.IsZero() {
		t.Fatalf("history entry should carry author and time: %+v", task.History[1])
	}
}

func TestSession_SaveResolvesAssigneeAndKeepsBlankTitle(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	s := f.open(t, anna, Options{Debounce: time.Hour})

	_ = s.SetTitle("   ")
	_ = s.SetAssignee("u2")
	_ = s.SetColumn("done")
	_ = s.SetStatus(model.StatusDone)
	_ = s.SetDueDate("2024-05-01")
	if err := s.SaveNow(context.Background()); err != nil {
		t.Fatalf("SaveNow: %v", err)
	}
	task := f.task(t)
	if task.Title != "Draft copy" {
		t.Fatalf("blank title should keep the previous one, got %q", task.Title)
	}
	if task.AssigneeID != "u2" || task.AssigneeName != "Jan Nowak" {
		t.Fatalf("assignee name should be resolved from members: %+v", task)
	}
	want := []string{
		"Task created",
		`Moved to "Done"`,
		`Changed status to "Done"`,
		`Changed due date to "2024-05-01"`,
		`Assigned to "Jan Nowak"`,
	}
	if got := actions(task); strings.Join(got, "|") != strings.Join(want, "|") {
		t.Fatalf("unexpected history: %q", got)
	}

	// Saving again without changes writes no new history.
	_ = s.SetDesc("details")
	if err := s.SaveNow(context.Background()); err != nil {
		t.Fatalf("SaveNow: %v", err)
	}
	if got := f.task(t); len(got.History) != len(want) || got.Desc != "details" {
		t.Fatalf("unexpected task after second save: %+v", got)
	}
}

func TestSession_ValidationRejectsBadInput(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	s := f.open(t, anna, Options{Debounce: time.Hour})
	var ve model.ValidationError
	if err := s.SetPriority("urgent"); !errors.As(err, &ve) {
		t.Fatalf("expected a validation error, got %v", err)
	}
	if err := s.SetDueDate("01/05/2024"); !errors.As(err, &ve) {
		t.Fatalf("expected a validation error, got %v", err)
	}
	if s.Dirty() {
		t.Fatalf("rejected edits should not schedule a save")
	}
}

func TestSession_CloseDiscardAbandonsPendingEdits(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	s := f.open(t, anna, Options{Debounce: 20 * time.Millisecond})
	_ = s.SetTitle("never saved")
	if err := s.Close(context.Background(), CloseDiscard); err != nil {
		t.Fatalf("Close: %v", err)
	}
	time.Sleep(60 * time.Millisecond)
	if got := f.task(t).Title; got != "Draft copy" {
		t.Fatalf("discarded edit was written: %q", got)
	}
	if err := s.SetTitle("again"); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestSession_CloseFlushSavesPendingEdits(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	s := f.open(t, anna, Options{Debounce: time.Hour})
	_ = s.SetTitle("flushed")
	if err := s.Close(context.Background(), CloseFlush); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if got := f.task(t).Title; got != "flushed" {
		t.Fatalf("expected flushed title, got %q", got)
	}
}

func TestSession_StateTransitions(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	var (
		mu     sync.Mutex
		states []SaveState
	)
	s := f.open(t, anna, Options{
		Debounce:   5 * time.Millisecond,
		SavedDecay: 10 * time.Millisecond,
		OnState: func(st SaveState, _ error) {
			mu.Lock()
			states = append(states, st)
			mu.Unlock()
		},
	})
	_ = s.SetTitle("x")
	// SetTitle left the session dirty, so idle is only reached through a save.
	waitState(t, s, StateIdle)
	for deadline := time.Now().Add(time.Second); time.Now().Before(deadline); time.Sleep(2 * time.Millisecond) {
		mu.Lock()
		n := len(states)
		mu.Unlock()
		if n >= 4 {
			break
		}
	}

	mu.Lock()
	defer mu.Unlock()
	want := []SaveState{StateDirty, StateSaving, StateSaved, StateIdle}
	if len(states) != len(want) {
		t.Fatalf("unexpected transitions: %v", states)
	}
	for i := range want {
		if states[i] != want[i] {
			t.Fatalf("unexpected transitions: %v", states)
		}
	}
}

func TestSession_SaveFailureSetsErrorState(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	s := f.open(t, anna, Options{Debounce: time.Hour})
	if err := f.backend.Delete(context.Background(), "tasks", f.tid); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	_ = s.SetTitle("orphaned")
	if err := s.SaveNow(context.Background()); !errors.Is(err, ErrTaskGone) {
		t.Fatalf("expected ErrTaskGone, got %v", err)
	}
	if st, err := s.State(); st != StateError || err == nil {
		t.Fatalf("expected error state, got %v %v", st, err)
	}
}

func TestScenario_AttachmentCap(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	s := f.open(t, anna, Options{Debounce: time.Hour})

	big := Upload{Name: "scan.pdf", Type: "application/pdf", Data: bytes.Repeat([]byte{1}, 2*1024*1024)}
	n, err := s.AddAttachments(ctx, []Upload{big})
	if !errors.Is(err, ErrAttachmentTooLarge) || n != 0 {
		t.Fatalf("expected rejection, got n=%d err=%v", n, err)
	}
	if !strings.Contains(err.Error(), "2.0 MiB") {
		t.Fatalf("error should mention the size: %v", err)
	}
	task := f.task(t)
	if len(task.Attachments) != 0 || len(task.History) != 1 {
		t.Fatalf("rejected upload must not touch the task: %+v", task)
	}

	ok := Upload{Name: "logo.png", Type: "image/png", Data: bytes.Repeat([]byte{2}, 1024*1024)}
	if n, err := s.AddAttachments(ctx, []Upload{ok}); err != nil || n != 1 {
		t.Fatalf("AddAttachments: n=%d err=%v", n, err)
	}
	task = f.task(t)
	if len(task.Attachments) != 1 || task.Attachments[0].Size != 1024*1024 || !strings.HasPrefix(task.Attachments[0].URL, "data:image/png;base64,") {
		t.Fatalf("unexpected attachments: %+v", task.Attachments)
	}
	if len(task.History) != 2 || task.History[1].Action != "Added an attachment" {
		t.Fatalf("expected exactly one new history entry, got %q", actions(task))
	}
}

func TestSession_MixedBatchKeepsSmallFiles(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	s := f.open(t, anna, Options{Debounce: time.Hour, MaxAttachmentBytes: 10})
	n, err := s.AddAttachments(ctx, []Upload{
		{Name: "a.txt", Data: []byte("small")},
		{Name: "b.txt", Data: []byte("far too large")},
		{Name: "c.txt", Data: []byte("tiny")},
	})
	if n != 2 || !errors.Is(err, ErrAttachmentTooLarge) {
		t.Fatalf("expected 2 added and one rejection, got n=%d err=%v", n, err)
	}

	f.sync(t)
	if err := s.RemoveAttachment(ctx, 0); err != nil {
		t.Fatalf("RemoveAttachment: %v", err)
	}
	task := f.task(t)
	if len(task.Attachments) != 1 || task.Attachments[0].Name != "c.txt" {
		t.Fatalf("unexpected attachments: %+v", task.Attachments)
	}
	if last := task.History[len(task.History)-1].Action; last != `Removed attachment "a.txt"` {
		t.Fatalf("unexpected history entry: %q", last)
	}
}

func TestSession_SameFileCanBeAddedAgain(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	s := f.open(t, anna, Options{Debounce: time.Hour})

	up := Upload{Name: "logo.png", Type: "image/png", Data: []byte("png bytes")}
	if n, err := s.AddAttachments(ctx, []Upload{up, up}); err != nil || n != 2 {
		t.Fatalf("AddAttachments: n=%d err=%v", n, err)
	}
	if n, err := s.AddAttachments(ctx, []Upload{up}); err != nil || n != 1 {
		t.Fatalf("AddAttachments again: n=%d err=%v", n, err)
	}
	task := f.task(t)
	if len(task.Attachments) != 3 {
		t.Fatalf("expected 3 attachments, got %d", len(task.Attachments))
	}
	for _, a := range task.Attachments {
		if a.Name != "logo.png" {
			t.Fatalf("unexpected attachment: %+v", a)
		}
	}
	want := []string{"Task created", "Added an attachment", "Added an attachment"}
	if got := actions(task); strings.Join(got, "|") != strings.Join(want, "|") {
		t.Fatalf("history = %q, want %q", got, want)
	}

	// Identical comments posted twice are both kept.
	for i := 0; i < 2; i++ {
		if _, err := s.AddComment(ctx, "looks good", nil); err != nil {
			t.Fatalf("AddComment: %v", err)
		}
	}
	if task = f.task(t); len(task.Comments) != 2 {
		t.Fatalf("expected 2 comments, got %+v", task.Comments)
	}
}

func TestSession_CommentsAndMentions(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	s := f.open(t, anna, Options{Debounce: time.Hour, Mentions: mention.NewDispatcher(f.backend, nil)})

	if _, err := s.AddComment(ctx, "  ", nil); !errors.Is(err, ErrEmptyComment) {
		t.Fatalf("expected ErrEmptyComment, got %v", err)
	}
	if _, err := s.AddComment(ctx, "@Jan can you review?", nil); err != nil {
		t.Fatalf("AddComment: %v", err)
	}
	task := f.task(t)
	if len(task.Comments) != 1 || task.Comments[0].AuthorID != "u1" {
		t.Fatalf("unexpected comments: %+v", task.Comments)
	}
	if last := task.History[len(task.History)-1].Action; last != "Added a comment" {
		t.Fatalf("unexpected history entry: %q", last)
	}
	inbox, err := f.backend.Query(ctx, docstore.Collection("inbox").Eq("toUid", "u2"))
	if err != nil || len(inbox) != 1 {
		t.Fatalf("expected one inbox item for u2, got %d (%v)", len(inbox), err)
	}

	f.sync(t)
	jan := f.open(t, Editor{UID: "u2", Name: "Jan Nowak"}, Options{Debounce: time.Hour})
	if err := jan.DeleteComment(ctx, 0); !errors.Is(err, ErrNotAuthor) {
		t.Fatalf("expected ErrNotAuthor, got %v", err)
	}
	historyLen := len(f.task(t).History)
	if err := s.DeleteComment(ctx, 0); err != nil {
		t.Fatalf("DeleteComment: %v", err)
	}
	task = f.task(t)
	if len(task.Comments) != 0 || len(task.History) != historyLen {
		t.Fatalf("comment should be gone without a history entry: %+v", task)
	}
}

func TestSession_OversizedCommentImageIsRejected(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	s := f.open(t, anna, Options{Debounce: time.Hour, MaxAttachmentBytes: 4})
	_, err := s.AddComment(context.Background(), "see screenshot", []Upload{{Name: "shot.png", Data: []byte("12345")}})
	if !errors.Is(err, ErrAttachmentTooLarge) {
		t.Fatalf("expected ErrAttachmentTooLarge, got %v", err)
	}
	if got := f.task(t); len(got.Comments) != 0 {
		t.Fatalf("comment should not be written: %+v", got.Comments)
	}
}

func TestSession_TaskOverlaysDraft(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	s := f.open(t, anna, Options{Debounce: time.Hour})
	_ = s.SetAssignee("u2")
	_ = s.SetTitle("local")
	task, ok := s.Task()
	if !ok || task.Title != "local" || task.AssigneeName != "Jan Nowak" || len(task.History) != 1 {
		t.Fatalf("unexpected overlay: %+v", task)
	}
}

func TestOpen_MissingTask(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	if _, err := Open(f.backend, f.store, "nope", anna, Options{}); !errors.Is(err, ErrTaskGone) {
		t.Fatalf("expected ErrTaskGone, got %v", err)
	}
}
