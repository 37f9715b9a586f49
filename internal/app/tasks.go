package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"boardsync/internal/docstore"
	"boardsync/internal/editing"
	"boardsync/internal/entitystore"
	"boardsync/internal/model"
	"boardsync/internal/statusutil"
	"boardsync/internal/views"
)

func (a *App) task(id string) (model.Task, error) {
	t, ok := a.Snapshot().Task(id)
	if !ok {
		return model.Task{}, NotFoundError{Kind: "task", ID: id}
	}
	return t, nil
}

func (a *App) historyEntry(u string, action string) model.HistoryEntry {
	return model.HistoryEntry{Action: action, By: u, At: model.NewTimestamp(a.opts.Now())}
}

func displayName(name string) string {
	if strings.TrimSpace(name) == "" {
		return "User"
	}
	return name
}

// CreateTask adds an open, medium-priority task. An empty columnID places
// it in the first column of the project.
func (a *App) CreateTask(ctx context.Context, pid, columnID, title string) (string, error) {
	u, err := a.requireUser()
	if err != nil {
		return "", err
	}
	title = strings.TrimSpace(title)
	if err := model.Required("title", title); err != nil {
		return "", a.fail("Invalid task", err)
	}
	p, err := a.project(pid)
	if err != nil {
		return "", a.fail("Could not create task", err)
	}
	if columnID == "" {
		if cols := views.SortedColumns(p); len(cols) > 0 {
			columnID = cols[0].ID
		}
	} else if _, ok := p.Column(columnID); !ok {
		return "", a.fail("Could not create task", NotFoundError{Kind: "column", ID: columnID})
	}
	name := displayName(u.Name)
	id, err := a.backend.Create(ctx, "tasks", map[string]any{
		"projectId":     pid,
		"columnId":      columnID,
		"title":         title,
		"status":        model.StatusOpen,
		"desc":          "",
		"priority":      model.PriorityMedium,
		"dueDate":       nil,
		"assigneeId":    nil,
		"assigneeName":  nil,
		"checklist":     []model.ChecklistItem{},
		"attachments":   []model.Attachment{},
		"comments":      []model.Comment{},
		"history":       []model.HistoryEntry{a.historyEntry(name, "Task created")},
		"createdAt":     docstore.ServerTimestamp(),
		"createdBy":     u.UID,
		"createdByName": name,
	})
	if err != nil {
		return "", a.fail("Could not create task", err)
	}
	return id, nil
}

// CreateTaskAndOpen creates a task and opens its editor once the task has
// arrived through the subscription.
func (a *App) CreateTaskAndOpen(ctx context.Context, pid, columnID, title string) (*editing.Session, error) {
	id, err := a.CreateTask(ctx, pid, columnID, title)
	if err != nil {
		return nil, err
	}
	a.subs.EnsureTasks(pid)
	if !a.Sync(ctx, func(s *entitystore.Snapshot) bool { _, ok := s.Task(id); return ok }) {
		return nil, a.fail("Could not open task", fmt.Errorf("task %s did not arrive in time", id))
	}
	return a.OpenTask(id)
}

// MoveTask moves a task to another column, recording the move in history.
func (a *App) MoveTask(ctx context.Context, taskID, columnID string) error {
	u, err := a.requireUser()
	if err != nil {
		return err
	}
	t, err := a.task(taskID)
	if err != nil {
		return a.fail("Could not move task", err)
	}
	p, err := a.project(t.ProjectID)
	if err != nil {
		return a.fail("Could not move task", err)
	}
	col, ok := p.Column(columnID)
	if !ok {
		return a.fail("Could not move task", NotFoundError{Kind: "column", ID: columnID})
	}
	if t.ColumnID == columnID {
		return nil
	}
	if err := a.backend.Update(ctx, "tasks", taskID, map[string]any{
		"columnId": columnID,
		"history":  docstore.ArrayAppend(a.historyEntry(displayName(u.Name), fmt.Sprintf("Moved to %q", col.Name))),
	}); err != nil {
		return a.fail("Could not move task", err)
	}
	return nil
}

// ToggleDone flips a task between done and open and reports the new state.
func (a *App) ToggleDone(ctx context.Context, taskID string) (bool, error) {
	u, err := a.requireUser()
	if err != nil {
		return false, err
	}
	t, err := a.task(taskID)
	if err != nil {
		return false, a.fail("Could not change status", err)
	}
	p, _ := a.project(t.ProjectID)
	done := !statusutil.IsTaskDone(t, &p)
	status, action := model.StatusOpen, "Reopened"
	if done {
		status, action = model.StatusDone, "Marked as done"
	}
	if err := a.backend.Update(ctx, "tasks", taskID, map[string]any{
		"status":  status,
		"history": docstore.ArrayAppend(a.historyEntry(displayName(u.Name), action)),
	}); err != nil {
		return false, a.fail("Could not change status", err)
	}
	return done, nil
}

func (a *App) DeleteTask(ctx context.Context, taskID string) error {
	a.mu.Lock()
	s := a.editor
	if s != nil && s.TaskID() == taskID {
		a.editor = nil
	} else {
		s = nil
	}
	a.mu.Unlock()
	if s != nil {
		_ = s.Close(ctx, editing.CloseDiscard)
	}
	if err := a.backend.Delete(ctx, "tasks", taskID); err != nil {
		return a.fail("Could not delete task", err)
	}
	a.ok("Task deleted")
	return nil
}

// OpenTask opens the editor for a task in the store. A previously open
// editor is closed with discard semantics.
func (a *App) OpenTask(taskID string) (*editing.Session, error) {
	u, err := a.requireUser()
	if err != nil {
		return nil, err
	}
	s, err := editing.Open(a.backend, a.store, taskID, editing.Editor{UID: u.UID, Name: u.Name}, editing.Options{
		Debounce:           a.opts.AutosaveDebounce,
		MaxAttachmentBytes: a.opts.MaxAttachmentBytes,
		Mentions:           a.mentions,
		Logger:             a.opts.Logger,
		Now:                a.opts.Now,
		OnState:            a.opts.OnSaveState,
	})
	if err != nil {
		if errors.Is(err, editing.ErrTaskGone) {
			err = NotFoundError{Kind: "task", ID: taskID}
		}
		return nil, a.fail("Could not open task", err)
	}
	a.mu.Lock()
	prev := a.editor
	a.editor = s
	a.mu.Unlock()
	if prev != nil {
		_ = prev.Close(context.Background(), editing.CloseDiscard)
	}
	return s, nil
}

// Editor returns the open task editor, if any.
func (a *App) Editor() *editing.Session {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.editor
}

// CloseTask closes the open editor with policy.
func (a *App) CloseTask(ctx context.Context, policy editing.ClosePolicy) error {
	a.mu.Lock()
	s := a.editor
	a.editor = nil
	a.mu.Unlock()
	if s == nil {
		return nil
	}
	if err := s.Close(ctx, policy); err != nil {
		return a.fail("Could not save task", err)
	}
	return nil
}
