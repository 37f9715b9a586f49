package prefs

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"boardsync/internal/docstore"
	"boardsync/internal/editing"
	"boardsync/internal/model"

	"go.uber.org/zap"
)

// DefaultDebounce delays preference writes so drag-reorders and toggles
// collapse into one write.
const DefaultDebounce = 600 * time.Millisecond

type Options struct {
	Debounce time.Duration
	Logger   *zap.Logger
}

// Store holds the signed-in user's layout preferences in memory and writes
// them to users/{uid} with merge semantics, creating the document lazily.
type Store struct {
	backend docstore.Backend
	log     *zap.Logger

	mu          sync.Mutex
	uid         string
	saved       []model.ListColumnPref
	collapsed   map[string]map[string]bool
	dirtyLayout bool
	dirtyFolds  bool
	sched       *editing.Scheduler
}

func NewStore(backend docstore.Backend, opts Options) *Store {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	s := &Store{backend: backend, log: opts.Logger, collapsed: map[string]map[string]bool{}}
	s.sched = editing.NewScheduler(opts.Debounce, s.save, s.saveDone)
	return s
}

// Load reads the user's stored preferences. A missing users document means
// defaults everywhere.
func (s *Store) Load(ctx context.Context, uid string) error {
	var p model.UserPrefs
	doc, err := s.backend.Get(ctx, "users", uid)
	switch {
	case errors.Is(err, docstore.ErrNotFound):
	case err != nil:
		return fmt.Errorf("load preferences: %w", err)
	default:
		if err := doc.Decode(&p); err != nil {
			return fmt.Errorf("decode preferences: %w", err)
		}
	}

	collapsed := make(map[string]map[string]bool, len(p.CollapsedSections))
	for pid, ids := range p.CollapsedSections {
		set := make(map[string]bool, len(ids))
		for _, id := range ids {
			set[id] = true
		}
		collapsed[pid] = set
	}
	s.mu.Lock()
	s.uid = uid
	s.saved = p.ListColumnConfig
	s.collapsed = collapsed
	s.dirtyLayout, s.dirtyFolds = false, false
	s.mu.Unlock()
	return nil
}

// Columns is the merged layout.
func (s *Store) Columns() []Column {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Merge(Defaults, s.saved)
}

// ListColumns is the merged layout in the form list views take.
func (s *Store) ListColumns() []model.ListColumnPref {
	return Persisted(s.Columns())
}

// SetColumns replaces the layout and schedules a write.
func (s *Store) SetColumns(cols []Column) {
	s.mu.Lock()
	s.saved = Persisted(cols)
	s.dirtyLayout = true
	s.mu.Unlock()
	s.sched.Notify()
}

func (s *Store) ToggleVisible(id string) error {
	cols, err := ToggleVisible(s.Columns(), id)
	if err != nil {
		return err
	}
	s.SetColumns(cols)
	return nil
}

func (s *Store) Move(id string, delta int) error {
	cols, err := Move(s.Columns(), id, delta)
	if err != nil {
		return err
	}
	s.SetColumns(cols)
	return nil
}

// Collapsed returns a copy of the collapsed section ids of a project.
func (s *Store) Collapsed(pid string) map[string]bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := map[string]bool{}
	for id := range s.collapsed[pid] {
		out[id] = true
	}
	return out
}

// ToggleCollapsed flips one section and reports whether it is now collapsed.
func (s *Store) ToggleCollapsed(pid, sectionID string) bool {
	s.mu.Lock()
	set := s.collapsed[pid]
	if set == nil {
		set = map[string]bool{}
		s.collapsed[pid] = set
	}
	now := !set[sectionID]
	if now {
		set[sectionID] = true
	} else {
		delete(set, sectionID)
	}
	s.dirtyFolds = true
	s.mu.Unlock()
	s.sched.Notify()
	return now
}

// Flush writes pending changes now.
func (s *Store) Flush(ctx context.Context) error {
	return s.sched.Flush(ctx)
}

// Reset forgets the signed-in user. A pending write finds no user and is
// dropped.
func (s *Store) Reset() {
	s.mu.Lock()
	s.uid = ""
	s.saved = nil
	s.collapsed = map[string]map[string]bool{}
	s.dirtyLayout, s.dirtyFolds = false, false
	s.mu.Unlock()
}

// Close stops the write scheduler. Unflushed changes are lost.
func (s *Store) Close() {
	s.sched.Stop()
}

func (s *Store) save(ctx context.Context) error {
	s.mu.Lock()
	uid := s.uid
	fields := map[string]any{}
	if s.dirtyLayout {
		fields["listColumnConfig"] = append([]model.ListColumnPref{}, s.saved...)
	}
	if s.dirtyFolds {
		folds := make(map[string][]string, len(s.collapsed))
		for pid, set := range s.collapsed {
			ids := make([]string, 0, len(set))
			for id := range set {
				ids = append(ids, id)
			}
			sort.Strings(ids)
			folds[pid] = ids
		}
		fields["collapsedSections"] = folds
	}
	s.dirtyLayout, s.dirtyFolds = false, false
	s.mu.Unlock()

	if uid == "" || len(fields) == 0 {
		return nil
	}
	if err := s.backend.Set(ctx, "users", uid, fields, true); err != nil {
		return fmt.Errorf("save preferences: %w", err)
	}
	return nil
}

func (s *Store) saveDone(err error) {
	if err != nil {
		s.log.Warn("preference write failed", zap.Error(err))
	}
}
