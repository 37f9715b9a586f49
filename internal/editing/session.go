// Package editing holds the editable drafts of the task and note currently
// open. Field edits are saved by a debounced scheduler; comments and
// attachments are written immediately. Concurrent sessions on one task
// resolve by last write wins.
package editing

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"boardsync/internal/docstore"
	"boardsync/internal/entitystore"
	"boardsync/internal/mention"
	"boardsync/internal/model"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"
)

// DefaultMaxAttachmentBytes caps every inlined file. Attachments live inside
// the task document, whose total size the backend limits.
const DefaultMaxAttachmentBytes = 1536 * 1024

var (
	ErrAttachmentTooLarge = errors.New("attachment too large")
	ErrTaskGone           = errors.New("task no longer exists")
	ErrNotAuthor          = errors.New("only the author can delete a comment")
	ErrClosed             = errors.New("editing session closed")
	ErrEmptyComment       = errors.New("comment is empty")
)

type SaveState int

const (
	StateIdle SaveState = iota
	StateDirty
	StateSaving
	StateSaved
	StateError
)

func (s SaveState) String() string {
	switch s {
	case StateDirty:
		return "unsaved changes"
	case StateSaving:
		return "saving"
	case StateSaved:
		return "saved"
	case StateError:
		return "save failed"
	default:
		return ""
	}
}

type ClosePolicy int

const (
	// CloseDiscard abandons edits still waiting for their debounce window.
	CloseDiscard ClosePolicy = iota
	// CloseFlush saves pending edits before closing.
	CloseFlush
)

// SnapshotSource yields the latest entity store snapshot.
type SnapshotSource interface {
	Snapshot() *entitystore.Snapshot
}

// Editor is the signed-in user making the edits.
type Editor struct {
	UID  string
	Name string
}

func (e Editor) label() string {
	if strings.TrimSpace(e.Name) == "" {
		return "User"
	}
	return e.Name
}

// Upload is a file to inline into a task as an attachment or comment image.
type Upload struct {
	Name string
	Type string
	Data []byte
}

func (u Upload) dataURL() string {
	typ := u.Type
	if typ == "" {
		typ = "application/octet-stream"
	}
	return "data:" + typ + ";base64," + base64.StdEncoding.EncodeToString(u.Data)
}

// Draft is the debounced part of a task: everything except comments,
// attachments and history.
type Draft struct {
	Title      string                `json:"title"`
	Desc       string                `json:"desc"`
	Priority   model.Priority        `json:"priority"`
	StartDate  string                `json:"startDate"`
	DueDate    string                `json:"dueDate"`
	ColumnID   string                `json:"columnId"`
	Status     model.TaskStatus      `json:"status"`
	AssigneeID string                `json:"assigneeId"`
	Checklist  []model.ChecklistItem `json:"checklist"`
}

func draftOf(t model.Task) Draft {
	st := t.Status
	if st == "" {
		st = model.StatusOpen
	}
	return Draft{
		Title:      t.Title,
		Desc:       t.Desc,
		Priority:   t.EffectivePriority(),
		StartDate:  t.StartDate,
		DueDate:    t.DueDate,
		ColumnID:   t.ColumnID,
		Status:     st,
		AssigneeID: t.AssigneeID,
		Checklist:  append([]model.ChecklistItem(nil), t.Checklist...),
	}
}

type Options struct {
	// Debounce defaults to 1200ms.
	Debounce time.Duration
	// SavedDecay is how long StateSaved shows before returning to idle.
	SavedDecay         time.Duration
	MaxAttachmentBytes int64
	Mentions           *mention.Dispatcher
	Logger             *zap.Logger
	Now                func() time.Time
	// OnState observes every save state transition.
	OnState func(SaveState, error)
}

type Session struct {
	backend docstore.Backend
	src     SnapshotSource
	taskID  string
	editor  Editor
	opts    Options
	log     *zap.Logger
	sched   *Scheduler

	mu     sync.Mutex
	draft  Draft
	base   Draft
	state  SaveState
	err    error
	decay  *time.Timer
	closed bool
}

// Open starts editing a task that is present in the entity store.
func Open(backend docstore.Backend, src SnapshotSource, taskID string, editor Editor, opts Options) (*Session, error) {
	t, ok := src.Snapshot().Task(taskID)
	if !ok {
		return nil, fmt.Errorf("open task %s: %w", taskID, ErrTaskGone)
	}
	if opts.SavedDecay <= 0 {
		opts.SavedDecay = 2 * time.Second
	}
	if opts.MaxAttachmentBytes <= 0 {
		opts.MaxAttachmentBytes = DefaultMaxAttachmentBytes
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	s := &Session{
		backend: backend,
		src:     src,
		taskID:  taskID,
		editor:  editor,
		opts:    opts,
		log:     orNop(opts.Logger).With(zap.String("task", taskID)),
		draft:   draftOf(t),
		base:    draftOf(t),
	}
	s.sched = NewScheduler(opts.Debounce, s.save, s.saved)
	return s, nil
}

func orNop(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}

func (s *Session) TaskID() string { return s.taskID }

// Draft returns a copy of the current draft.
func (s *Session) Draft() Draft {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.draft
	d.Checklist = append([]model.ChecklistItem(nil), s.draft.Checklist...)
	return d
}

// Task is the stored task with the unsaved draft laid over it.
func (s *Session) Task() (model.Task, bool) {
	snap := s.src.Snapshot()
	t, ok := snap.Task(s.taskID)
	if !ok {
		return model.Task{}, false
	}
	d := s.Draft()
	t.Title, t.Desc, t.Priority = d.Title, d.Desc, d.Priority
	t.StartDate, t.DueDate, t.ColumnID = d.StartDate, d.DueDate, d.ColumnID
	t.Status, t.AssigneeID, t.Checklist = d.Status, d.AssigneeID, d.Checklist
	if p, ok := snap.Project(t.ProjectID); ok {
		t.AssigneeName = assigneeName(p, d.AssigneeID)
	}
	return t, true
}

func (s *Session) State() (SaveState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, s.err
}

// Dirty reports whether edits are waiting to be saved.
func (s *Session) Dirty() bool {
	return s.sched.Pending()
}

// setStateLocked records a transition; callers hold s.mu and report it with
// notifyState after unlocking.
func (s *Session) setStateLocked(st SaveState, err error) {
	s.state, s.err = st, err
	if s.decay != nil {
		s.decay.Stop()
		s.decay = nil
	}
	if st == StateSaved {
		s.decay = time.AfterFunc(s.opts.SavedDecay, s.decaySaved)
	}
}

func (s *Session) decaySaved() {
	s.mu.Lock()
	changed := s.state == StateSaved
	if changed {
		s.state, s.decay = StateIdle, nil
	}
	s.mu.Unlock()
	if changed {
		s.notifyState(StateIdle, nil)
	}
}

func (s *Session) notifyState(st SaveState, err error) {
	if s.opts.OnState != nil {
		s.opts.OnState(st, err)
	}
}

// Edit applies fn to the draft and schedules an autosave.
func (s *Session) Edit(fn func(*Draft)) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	fn(&s.draft)
	dirty := s.state != StateSaving
	if dirty {
		s.setStateLocked(StateDirty, nil)
	}
	s.mu.Unlock()
	if dirty {
		s.notifyState(StateDirty, nil)
	}
	s.sched.Notify()
	return nil
}

func (s *Session) SetTitle(v string) error { return s.Edit(func(d *Draft) { d.Title = v }) }

func (s *Session) SetDesc(v string) error { return s.Edit(func(d *Draft) { d.Desc = v }) }

func (s *Session) SetPriority(p model.Priority) error {
	if err := model.ValidatePriority(p); err != nil {
		return err
	}
	return s.Edit(func(d *Draft) { d.Priority = p })
}

func (s *Session) SetDueDate(v string) error {
	v = strings.TrimSpace(v)
	if err := model.ValidateDate("dueDate", v); err != nil {
		return err
	}
	return s.Edit(func(d *Draft) { d.DueDate = v })
}

func (s *Session) SetStartDate(v string) error {
	v = strings.TrimSpace(v)
	if err := model.ValidateDate("startDate", v); err != nil {
		return err
	}
	return s.Edit(func(d *Draft) { d.StartDate = v })
}

func (s *Session) SetColumn(id string) error { return s.Edit(func(d *Draft) { d.ColumnID = id }) }

func (s *Session) SetStatus(st model.TaskStatus) error {
	if err := model.ValidateStatus(st); err != nil {
		return err
	}
	return s.Edit(func(d *Draft) { d.Status = st })
}

// SetAssignee takes a member uid, or "" to unassign.
func (s *Session) SetAssignee(uid string) error { return s.Edit(func(d *Draft) { d.AssigneeID = uid }) }

func (s *Session) AddChecklistItem(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return model.ValidationError{Field: "checklist", Msg: "item text is required"}
	}
	return s.Edit(func(d *Draft) { d.Checklist = append(d.Checklist, model.ChecklistItem{Text: text}) })
}

func (s *Session) checklistEdit(idx int, fn func(d *Draft)) error {
	s.mu.Lock()
	n := len(s.draft.Checklist)
	s.mu.Unlock()
	if idx < 0 || idx >= n {
		return fmt.Errorf("checklist item %d out of range", idx)
	}
	return s.Edit(func(d *Draft) {
		if idx < len(d.Checklist) {
			fn(d)
		}
	})
}

func (s *Session) ToggleChecklistItem(idx int) error {
	return s.checklistEdit(idx, func(d *Draft) { d.Checklist[idx].Done = !d.Checklist[idx].Done })
}

func (s *Session) EditChecklistItem(idx int, text string) error {
	return s.checklistEdit(idx, func(d *Draft) { d.Checklist[idx].Text = text })
}

func (s *Session) RemoveChecklistItem(idx int) error {
	return s.checklistEdit(idx, func(d *Draft) {
		d.Checklist = append(d.Checklist[:idx:idx], d.Checklist[idx+1:]...)
	})
}

// SaveNow saves pending edits immediately.
func (s *Session) SaveNow(ctx context.Context) error {
	return s.sched.Flush(ctx)
}

func (s *Session) historyEntry(action string) model.HistoryEntry {
	return model.HistoryEntry{Action: action, By: s.editor.label(), At: model.NewTimestamp(s.opts.Now())}
}

func assigneeName(p model.Project, uid string) string {
	if uid == "" {
		return ""
	}
	if m, ok := p.Member(uid); ok {
		return m.Name
	}
	return ""
}

// save writes every draft field and appends one history entry per field
// that changed meaningfully since the last save.
func (s *Session) save(ctx context.Context) error {
	s.mu.Lock()
	draft := s.draft
	draft.Checklist = append([]model.ChecklistItem(nil), s.draft.Checklist...)
	base := s.base
	s.setStateLocked(StateSaving, nil)
	s.mu.Unlock()
	s.notifyState(StateSaving, nil)

	var project model.Project
	if t, ok := s.src.Snapshot().Task(s.taskID); ok {
		project, _ = s.src.Snapshot().Project(t.ProjectID)
	}
	if strings.TrimSpace(draft.Title) == "" {
		draft.Title = base.Title
	} else {
		draft.Title = strings.TrimSpace(draft.Title)
	}
	name := assigneeName(project, draft.AssigneeID)

	var actions []string
	if draft.Title != base.Title {
		actions = append(actions, fmt.Sprintf("Changed title from %q to %q", base.Title, draft.Title))
	}
	if draft.Priority != base.Priority {
		actions = append(actions, fmt.Sprintf("Changed priority to %q", draft.Priority))
	}
	if draft.ColumnID != base.ColumnID {
		label := draft.ColumnID
		if c, ok := project.Column(draft.ColumnID); ok {
			label = c.Name
		}
		actions = append(actions, fmt.Sprintf("Moved to %q", label))
	}
	if draft.Status != base.Status {
		label := "Open"
		if draft.Status == model.StatusDone {
			label = "Done"
		}
		actions = append(actions, fmt.Sprintf("Changed status to %q", label))
	}
	if draft.DueDate != base.DueDate {
		if draft.DueDate == "" {
			actions = append(actions, "Removed due date")
		} else {
			actions = append(actions, fmt.Sprintf("Changed due date to %q", draft.DueDate))
		}
	}
	if draft.AssigneeID != base.AssigneeID {
		label := name
		if label == "" {
			label = "nobody"
		}
		actions = append(actions, fmt.Sprintf("Assigned to %q", label))
	}

	checklist := draft.Checklist
	if checklist == nil {
		checklist = []model.ChecklistItem{}
	}
	fields := map[string]any{
		"title":        draft.Title,
		"desc":         draft.Desc,
		"priority":     draft.Priority,
		"startDate":    nullIfEmpty(draft.StartDate),
		"dueDate":      nullIfEmpty(draft.DueDate),
		"columnId":     draft.ColumnID,
		"status":       draft.Status,
		"assigneeId":   nullIfEmpty(draft.AssigneeID),
		"assigneeName": nullIfEmpty(name),
		"checklist":    checklist,
	}
	if len(actions) > 0 {
		entries := make([]any, 0, len(actions))
		for _, a := range actions {
			entries = append(entries, s.historyEntry(a))
		}
		fields["history"] = docstore.ArrayAppend(entries...)
	}
	if err := s.backend.Update(ctx, "tasks", s.taskID, fields); err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			err = ErrTaskGone
		}
		return fmt.Errorf("save task %s: %w", s.taskID, err)
	}
	s.mu.Lock()
	s.base = draft
	s.mu.Unlock()
	return nil
}

func (s *Session) saved(err error) {
	st := StateSaved
	switch {
	case err != nil:
		s.log.Warn("autosave failed", zap.Error(err))
		st = StateError
	case s.sched.Pending():
		st = StateDirty
	}
	s.mu.Lock()
	s.setStateLocked(st, err)
	s.mu.Unlock()
	s.notifyState(st, err)
}

func nullIfEmpty(v string) any {
	if v == "" {
		return nil
	}
	return v
}

// AddComment appends a comment right away, records it in the history and
// notifies mentioned members. Oversized images are rejected before writing.
func (s *Session) AddComment(ctx context.Context, text string, images []Upload) (model.Comment, error) {
	if err := s.checkOpen(); err != nil {
		return model.Comment{}, err
	}
	text = strings.TrimSpace(text)
	if text == "" && len(images) == 0 {
		return model.Comment{}, ErrEmptyComment
	}
	c := model.Comment{
		Text:       text,
		AuthorID:   s.editor.UID,
		AuthorName: s.editor.label(),
		At:         model.NewTimestamp(s.opts.Now()),
	}
	for _, img := range images {
		if err := s.checkSize(img); err != nil {
			return model.Comment{}, err
		}
		c.Images = append(c.Images, model.CommentImage{DataURL: img.dataURL(), Name: img.Name})
	}
	err := s.backend.Update(ctx, "tasks", s.taskID, map[string]any{
		"comments": docstore.ArrayAppend(c),
		"history":  docstore.ArrayAppend(s.historyEntry("Added a comment")),
	})
	if err != nil {
		return model.Comment{}, s.writeErr("add comment", err)
	}

	if s.opts.Mentions != nil && text != "" {
		snap := s.src.Snapshot()
		t, _ := snap.Task(s.taskID)
		p, ok := snap.Project(t.ProjectID)
		if ok {
			// Notification failures never undo the comment.
			if _, err := s.opts.Mentions.Dispatch(ctx, t, p, mention.Author{UID: s.editor.UID, Name: s.editor.label()}, text); err != nil {
				s.log.Warn("mention dispatch incomplete", zap.Error(err))
			}
		}
	}
	return c, nil
}

// DeleteComment removes the comment at idx of the visible comment list. Only
// its author may delete it; no history entry is written.
func (s *Session) DeleteComment(ctx context.Context, idx int) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	t, ok := s.Task()
	if !ok {
		return ErrTaskGone
	}
	if idx < 0 || idx >= len(t.Comments) {
		return fmt.Errorf("comment %d out of range", idx)
	}
	target := t.Comments[idx]
	if target.AuthorID != s.editor.UID {
		return ErrNotAuthor
	}
	fresh, err := s.fetch(ctx)
	if err != nil {
		return err
	}
	comments := make([]model.Comment, 0, len(fresh.Comments))
	removed := false
	for _, c := range fresh.Comments {
		if !removed && c.AuthorID == target.AuthorID && c.At.Equal(target.At.Time) && c.Text == target.Text {
			removed = true
			continue
		}
		comments = append(comments, c)
	}
	if !removed {
		return nil
	}
	if err := s.backend.Update(ctx, "tasks", s.taskID, map[string]any{"comments": comments}); err != nil {
		return s.writeErr("delete comment", err)
	}
	return nil
}

// AddAttachments inlines files into the task. Files over the size cap are
// skipped and reported in the returned error (wrapping
// ErrAttachmentTooLarge); the others are still written, with one history
// entry for the batch.
func (s *Session) AddAttachments(ctx context.Context, files []Upload) (int, error) {
	if err := s.checkOpen(); err != nil {
		return 0, err
	}
	var (
		accepted []any
		errs     []error
	)
	for _, f := range files {
		if err := s.checkSize(f); err != nil {
			errs = append(errs, err)
			continue
		}
		accepted = append(accepted, model.Attachment{
			Name: f.Name,
			URL:  f.dataURL(),
			Type: f.Type,
			Size: int64(len(f.Data)),
		})
	}
	if len(accepted) == 0 {
		return 0, errors.Join(errs...)
	}
	err := s.backend.Update(ctx, "tasks", s.taskID, map[string]any{
		"attachments": docstore.ArrayAppend(accepted...),
		"history":     docstore.ArrayAppend(s.historyEntry("Added an attachment")),
	})
	if err != nil {
		errs = append(errs, s.writeErr("add attachments", err))
		return 0, errors.Join(errs...)
	}
	return len(accepted), errors.Join(errs...)
}

// RemoveAttachment drops the attachment at idx of the visible list and logs
// its name in the history.
func (s *Session) RemoveAttachment(ctx context.Context, idx int) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	t, ok := s.Task()
	if !ok {
		return ErrTaskGone
	}
	if idx < 0 || idx >= len(t.Attachments) {
		return fmt.Errorf("attachment %d out of range", idx)
	}
	target := t.Attachments[idx]
	fresh, err := s.fetch(ctx)
	if err != nil {
		return err
	}
	kept := make([]model.Attachment, 0, len(fresh.Attachments))
	removed := false
	for _, a := range fresh.Attachments {
		if !removed && a == target {
			removed = true
			continue
		}
		kept = append(kept, a)
	}
	if !removed {
		return nil
	}
	err = s.backend.Update(ctx, "tasks", s.taskID, map[string]any{
		"attachments": kept,
		"history":     docstore.ArrayAppend(s.historyEntry(fmt.Sprintf("Removed attachment %q", target.Name))),
	})
	if err != nil {
		return s.writeErr("remove attachment", err)
	}
	return nil
}

func (s *Session) checkSize(f Upload) error {
	if n := int64(len(f.Data)); n > s.opts.MaxAttachmentBytes {
		return fmt.Errorf("%q is %s, the limit is %s: %w", f.Name,
			humanize.IBytes(uint64(n)), humanize.IBytes(uint64(s.opts.MaxAttachmentBytes)), ErrAttachmentTooLarge)
	}
	return nil
}

func (s *Session) fetch(ctx context.Context) (model.Task, error) {
	doc, err := s.backend.Get(ctx, "tasks", s.taskID)
	if err != nil {
		return model.Task{}, s.writeErr("read task", err)
	}
	var t model.Task
	if err := doc.Decode(&t); err != nil {
		return model.Task{}, fmt.Errorf("decode task %s: %w", s.taskID, err)
	}
	return t, nil
}

func (s *Session) writeErr(op string, err error) error {
	if errors.Is(err, docstore.ErrNotFound) {
		err = ErrTaskGone
	}
	return fmt.Errorf("%s: %w", op, err)
}

func (s *Session) checkOpen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

// Close ends the session. CloseDiscard drops edits still inside their
// debounce window; CloseFlush saves them first. A save already running is
// never cancelled.
func (s *Session) Close(ctx context.Context, policy ClosePolicy) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	var err error
	if policy == CloseFlush {
		err = s.sched.Flush(ctx)
	} else if s.sched.Pending() {
		s.log.Debug("discarding unsaved edits on close")
	}
	s.sched.Stop()

	s.mu.Lock()
	if s.decay != nil {
		s.decay.Stop()
		s.decay = nil
	}
	s.mu.Unlock()
	return err
}
