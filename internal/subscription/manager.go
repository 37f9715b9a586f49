package subscription

import (
	"context"
	"errors"
	"math/rand"
	"sort"
	"sync"
	"time"

	"boardsync/internal/docstore"
	"boardsync/internal/entitystore"
	"boardsync/internal/model"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

type State string

const (
	StateUnsubscribed State = "unsubscribed"
	StateSubscribing  State = "subscribing"
	StateActive       State = "active"
	// StateFailed means the live query broke and a resubscribe is scheduled.
	StateFailed State = "failed"
)

// Key identifies one live subscription: a collection and the scope it is
// filtered to (user id or project id).
type Key struct {
	Collection string
	Scope      string
}

func (k Key) String() string {
	if k.Scope == "" {
		return k.Collection
	}
	return k.Collection + ":" + k.Scope
}

type Options struct {
	Logger *zap.Logger
	// ResubscribeBase and ResubscribeMax bound the exponential backoff used
	// after a live query fails (defaults 500ms and 30s).
	ResubscribeBase time.Duration
	ResubscribeMax  time.Duration
	// ResubscribeRate caps resubscribe attempts across all keys (default 4/s).
	ResubscribeRate rate.Limit
}

// Manager keeps exactly one live query per (collection, scope) for the
// signed-in user and routes their changes into the entity store.
type Manager struct {
	backend docstore.Backend
	store   *entitystore.Store
	hub     *Hub
	log     *zap.Logger

	base    time.Duration
	max     time.Duration
	limiter *rate.Limiter

	// mu serializes change application; callbacks never interleave.
	mu     sync.Mutex
	uid    string
	ctx    context.Context
	cancel context.CancelFunc
	subs   map[Key]*sub
	wg     sync.WaitGroup
}

type sub struct {
	key    Key
	query  docstore.Query
	apply  func(initial bool, changes []docstore.Change)
	ctx    context.Context
	cancel context.CancelFunc

	state    State
	attempts int
	lastErr  error
}

func NewManager(backend docstore.Backend, store *entitystore.Store, hub *Hub, opts Options) *Manager {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	base := opts.ResubscribeBase
	if base <= 0 {
		base = 500 * time.Millisecond
	}
	maxDelay := opts.ResubscribeMax
	if maxDelay <= 0 {
		maxDelay = 30 * time.Second
	}
	limit := opts.ResubscribeRate
	if limit == 0 {
		limit = 4
	}
	if hub == nil {
		hub = NewHub()
	}
	return &Manager{
		backend: backend,
		store:   store,
		hub:     hub,
		log:     log.Named("subscription"),
		base:    base,
		max:     maxDelay,
		limiter: rate.NewLimiter(limit, 1),
		subs:    map[Key]*sub{},
	}
}

func (m *Manager) Hub() *Hub { return m.hub }

func (m *Manager) Store() *entitystore.Store { return m.store }

// Start binds the manager to uid and opens the per-user subscriptions
// (projects, notes, inbox). Task subscriptions follow the projects lazily.
func (m *Manager) Start(ctx context.Context, uid string) error {
	if uid == "" {
		return errors.New("subscription: empty user id")
	}
	m.Stop()

	m.mu.Lock()
	m.uid = uid
	m.ctx, m.cancel = context.WithCancel(ctx)
	m.store.Begin(uid)

	m.openLocked(Key{Collection: "projects", Scope: uid},
		docstore.Collection("projects").ArrayContains("memberIds", uid),
		m.applyProjects)
	m.openLocked(Key{Collection: "notes", Scope: uid},
		docstore.Collection("notes").Eq("userId", uid),
		m.applyNotes)
	m.openLocked(Key{Collection: "inbox", Scope: uid},
		docstore.Collection("inbox").Eq("toUid", uid).Order("createdAt", false),
		m.applyInbox)
	m.mu.Unlock()

	m.hub.Broadcast(Signal{Topic: TopicSession, Version: m.store.Version()})
	return nil
}

// Stop tears down every subscription and clears the entity store. Partial
// state never survives a user switch.
func (m *Manager) Stop() {
	m.mu.Lock()
	if m.cancel != nil {
		m.cancel()
	}
	for _, s := range m.subs {
		s.cancel()
	}
	m.subs = map[Key]*sub{}
	m.uid = ""
	m.ctx, m.cancel = nil, nil
	m.mu.Unlock()

	m.wg.Wait()
	m.store.Clear()
	m.hub.Broadcast(Signal{Topic: TopicSession, Version: m.store.Version()})
}

func (m *Manager) UserID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.uid
}

// EnsureTasks opens the task subscription for pid unless one exists.
func (m *Manager) EnsureTasks(pid string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ensureTasksLocked(pid)
}

func (m *Manager) ensureTasksLocked(pid string) {
	if pid == "" || m.ctx == nil {
		return
	}
	key := Key{Collection: "tasks", Scope: pid}
	if _, ok := m.subs[key]; ok {
		return
	}
	m.openLocked(key, docstore.Collection("tasks").Eq("projectId", pid), func(initial bool, changes []docstore.Change) {
		m.applyTasks(pid, initial, changes)
	})
}

// EnsureChat opens the chat subscription for pid unless one exists.
func (m *Manager) EnsureChat(pid string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if pid == "" || m.ctx == nil {
		return
	}
	key := Key{Collection: "chat", Scope: pid}
	if _, ok := m.subs[key]; ok {
		return
	}
	m.openLocked(key, docstore.Collection("chat").Eq("projectId", pid).Order("createdAt", false), func(initial bool, changes []docstore.Change) {
		m.applyChat(pid, initial, changes)
	})
}

// ReleaseChat closes the chat subscription for pid.
func (m *Manager) ReleaseChat(pid string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeLocked(Key{Collection: "chat", Scope: pid})
}

// States reports the state of every known subscription.
func (m *Manager) States() map[Key]State {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[Key]State, len(m.subs))
	for k, s := range m.subs {
		out[k] = s.state
	}
	return out
}

// State reports a single key; unknown keys are unsubscribed.
func (m *Manager) State(k Key) State {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.subs[k]; ok {
		return s.state
	}
	return StateUnsubscribed
}

// LastError returns the most recent failure of k, cleared by the next
// successful snapshot.
func (m *Manager) LastError(k Key) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.subs[k]; ok {
		return s.lastErr
	}
	return nil
}

// Keys lists open subscriptions in a stable order.
func (m *Manager) Keys() []Key {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Key, 0, len(m.subs))
	for k := range m.subs {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

func (m *Manager) openLocked(key Key, q docstore.Query, apply func(bool, []docstore.Change)) {
	ctx, cancel := context.WithCancel(m.ctx)
	s := &sub{key: key, query: q, apply: apply, ctx: ctx, cancel: cancel, state: StateSubscribing}
	m.subs[key] = s
	m.wg.Add(1)
	go m.run(s)
}

func (m *Manager) closeLocked(key Key) {
	s, ok := m.subs[key]
	if !ok {
		return
	}
	s.cancel()
	delete(m.subs, key)
}

func (m *Manager) setState(s *sub, st State, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.ctx.Err() != nil {
		return
	}
	s.state = st
	if err != nil {
		s.lastErr = err
	}
}

// run owns one live query for the lifetime of the subscription, reopening it
// with backoff whenever the backend reports a failure.
func (m *Manager) run(s *sub) {
	defer m.wg.Done()
	log := m.log.With(zap.String("key", s.key.String()))

	for {
		if s.ctx.Err() != nil {
			return
		}
		m.setState(s, StateSubscribing, nil)
		l, err := m.backend.Listen(s.ctx, s.query)
		if err == nil {
			log.Debug("subscribed")
			err = m.drain(s, l)
			l.Close()
		}
		if s.ctx.Err() != nil {
			log.Debug("unsubscribed")
			return
		}
		if errors.Is(err, docstore.ErrClosed) {
			log.Warn("backend closed; subscription stopped")
			m.setState(s, StateFailed, err)
			return
		}
		if err == nil {
			err = errors.New("live query ended unexpectedly")
		}

		m.mu.Lock()
		s.attempts++
		attempt := s.attempts
		m.mu.Unlock()
		m.setState(s, StateFailed, err)

		delay := jitter(Backoff(attempt, m.base, m.max))
		log.Warn("subscription failed; resubscribing", zap.Error(err), zap.Int("attempt", attempt), zap.Duration("backoff", delay))

		t := time.NewTimer(delay)
		select {
		case <-s.ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
		if err := m.limiter.Wait(s.ctx); err != nil {
			return
		}
	}
}

// drain applies snapshots until the listener stops and returns its error.
func (m *Manager) drain(s *sub, l docstore.Listener) error {
	for {
		select {
		case <-s.ctx.Done():
			return nil
		case snap, ok := <-l.Snapshots():
			if !ok {
				return l.Err()
			}
			m.mu.Lock()
			if s.ctx.Err() != nil {
				m.mu.Unlock()
				return nil
			}
			s.apply(snap.Initial, snap.Changes)
			s.state = StateActive
			s.attempts = 0
			s.lastErr = nil
			m.mu.Unlock()

			m.hub.Broadcast(Signal{Topic: topicFor(s.key), Version: m.store.Version()})
		}
	}
}

func topicFor(k Key) string {
	switch k.Collection {
	case "tasks":
		return TasksTopic(k.Scope)
	case "chat":
		return ChatTopic(k.Scope)
	default:
		return k.Collection
	}
}

// Backoff returns base * 2^(attempt-1), capped at limit.
func Backoff(attempt int, base, limit time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= limit {
			return limit
		}
	}
	if d > limit {
		return limit
	}
	return d
}

// jitter spreads d over [d/2, d).
func jitter(d time.Duration) time.Duration {
	if d <= 1 {
		return d
	}
	half := d / 2
	return half + time.Duration(rand.Int63n(int64(half)))
}

// Apply callbacks below run with m.mu held.

func (m *Manager) applyProjects(initial bool, changes []docstore.Change) {
	decoded := decodeChanges[model.Project](m.log, changes)
	removed := m.store.ApplyProjects(initial, decoded)
	for _, pid := range removed {
		m.closeLocked(Key{Collection: "tasks", Scope: pid})
		m.closeLocked(Key{Collection: "chat", Scope: pid})
	}
	for _, c := range decoded {
		if c.Kind != entitystore.Removed {
			m.ensureTasksLocked(c.ID)
		}
	}
}

func (m *Manager) applyTasks(pid string, initial bool, changes []docstore.Change) {
	if !m.store.HasProject(pid) {
		// The project went away while this batch was in flight.
		return
	}
	m.store.ApplyTasks(pid, initial, decodeChanges[model.Task](m.log, changes))
}

func (m *Manager) applyNotes(initial bool, changes []docstore.Change) {
	m.store.ApplyNotes(initial, decodeChanges[model.Note](m.log, changes))
}

func (m *Manager) applyInbox(initial bool, changes []docstore.Change) {
	m.store.ApplyInbox(initial, decodeChanges[model.InboxItem](m.log, changes))
}

func (m *Manager) applyChat(pid string, initial bool, changes []docstore.Change) {
	if !m.store.HasProject(pid) {
		return
	}
	m.store.ApplyChat(pid, initial, decodeChanges[model.ChatMessage](m.log, changes))
}

// decodeChanges converts backend changes into typed store changes. Documents
// that fail to decode are logged and skipped.
func decodeChanges[T any](log *zap.Logger, changes []docstore.Change) []entitystore.Change[T] {
	out := make([]entitystore.Change[T], 0, len(changes))
	for _, c := range changes {
		ec := entitystore.Change[T]{ID: c.Doc.ID}
		switch c.Type {
		case docstore.ChangeAdded:
			ec.Kind = entitystore.Added
		case docstore.ChangeModified:
			ec.Kind = entitystore.Modified
		case docstore.ChangeRemoved:
			ec.Kind = entitystore.Removed
			out = append(out, ec)
			continue
		default:
			continue
		}
		if err := c.Doc.Decode(&ec.Value); err != nil {
			log.Warn("skipping undecodable document", zap.String("collection", c.Doc.Collection), zap.String("id", c.Doc.ID), zap.Error(err))
			continue
		}
		out = append(out, ec)
	}
	return out
}
