// Package app is the controller: it owns the signed-in session, the entity
// store and its subscriptions, the open editors, and per-project UI state,
// and exposes every user command as a method.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"boardsync/internal/auth"
	"boardsync/internal/docstore"
	"boardsync/internal/editing"
	"boardsync/internal/entitystore"
	"boardsync/internal/mention"
	"boardsync/internal/prefs"
	"boardsync/internal/subscription"
	"boardsync/internal/views"

	"go.uber.org/zap"
)

// Identity is the account provider used by SignIn/SignUp. Remote sessions
// authenticate elsewhere and call Begin directly.
type Identity interface {
	SignUp(ctx context.Context, email, password, name string) (auth.Identity, error)
	SignIn(ctx context.Context, email, password string) (auth.Identity, error)
	SignOut()
	UpdateDisplayName(ctx context.Context, name string) (auth.Identity, error)
}

type View string

const (
	ViewDashboard View = "dashboard"
	ViewBoard     View = "board"
	ViewList      View = "list"
	ViewCalendar  View = "calendar"
	ViewGantt     View = "gantt"
	ViewNotes     View = "notes"
	ViewInbox     View = "inbox"
	ViewChat      View = "chat"
	ViewStats     View = "stats"
	ViewProjects  View = "projects"
)

func ParseView(s string) (View, error) {
	switch v := View(s); v {
	case ViewDashboard, ViewBoard, ViewList, ViewCalendar, ViewGantt, ViewNotes, ViewInbox, ViewChat, ViewStats, ViewProjects:
		return v, nil
	case "":
		return ViewDashboard, nil
	default:
		return "", fmt.Errorf("unknown view %q", s)
	}
}

type Options struct {
	Logger   *zap.Logger
	Notifier Notifier
	Hub      *subscription.Hub
	Now      func() time.Time

	Subscription       subscription.Options
	AutosaveDebounce   time.Duration
	NoteDebounce       time.Duration
	PrefsDebounce      time.Duration
	MaxAttachmentBytes int64
	OpenPollAttempts   int
	OpenPollInterval   time.Duration
	// OnSaveState observes the save indicator of the open task editor.
	OnSaveState func(editing.SaveState, error)
}

type App struct {
	backend  docstore.Backend
	ident    Identity
	store    *entitystore.Store
	subs     *subscription.Manager
	prefs    *prefs.Store
	mentions *mention.Dispatcher
	notify   Notifier
	log      *zap.Logger
	opts     Options

	mu         sync.Mutex
	user       auth.Identity
	projectID  string
	view       View
	filters    map[string]views.Filter
	sortKey    views.SortKey
	sortDesc   bool
	year       int
	month      time.Month
	editor     *editing.Session
	noteEditor *editing.NoteSession
}

// New wires a controller over backend. ident may be nil when sessions are
// always started with Begin.
func New(backend docstore.Backend, ident Identity, opts Options) *App {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Notifier == nil {
		opts.Notifier = nopNotifier{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Subscription.Logger == nil {
		opts.Subscription.Logger = opts.Logger
	}
	store := entitystore.New()
	a := &App{
		backend:  backend,
		ident:    ident,
		store:    store,
		subs:     subscription.NewManager(backend, store, opts.Hub, opts.Subscription),
		prefs:    prefs.NewStore(backend, prefs.Options{Debounce: opts.PrefsDebounce, Logger: opts.Logger}),
		mentions: mention.NewDispatcher(backend, opts.Logger),
		notify:   opts.Notifier,
		log:      opts.Logger.Named("app"),
		opts:     opts,
		view:     ViewDashboard,
		filters:  map[string]views.Filter{},
		sortKey:  views.SortDue,
	}
	now := opts.Now()
	a.year, a.month = now.Year(), now.Month()
	return a
}

func (a *App) Hub() *subscription.Hub { return a.subs.Hub() }

func (a *App) Subscriptions() *subscription.Manager { return a.subs }

func (a *App) Prefs() *prefs.Store { return a.prefs }

// Snapshot is the current read-only view of the entity store.
func (a *App) Snapshot() *entitystore.Snapshot { return a.store.Snapshot() }

func (a *App) Today() time.Time { return a.opts.Now() }

func (a *App) User() (auth.Identity, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.user, a.user.UID != ""
}

func (a *App) requireUser() (auth.Identity, error) {
	u, ok := a.User()
	if !ok {
		return auth.Identity{}, ErrSignedOut
	}
	return u, nil
}

// fail is the command error boundary: it logs, shows an error toast and
// returns err to the caller.
func (a *App) fail(msg string, err error) error {
	a.log.Warn(msg, zap.Error(err))
	a.notify.Toast(ToastError, fmt.Sprintf("%s: %v", msg, err))
	return err
}

func (a *App) ok(msg string) {
	a.notify.Toast(ToastSuccess, msg)
}

func (a *App) SignUp(ctx context.Context, email, password, name string) (auth.Identity, error) {
	if a.ident == nil {
		return auth.Identity{}, errors.New("no identity provider configured")
	}
	id, err := a.ident.SignUp(ctx, email, password, name)
	if err != nil {
		return auth.Identity{}, a.fail("Sign-up failed", err)
	}
	return id, a.Begin(ctx, id)
}

func (a *App) SignIn(ctx context.Context, email, password string) (auth.Identity, error) {
	if a.ident == nil {
		return auth.Identity{}, errors.New("no identity provider configured")
	}
	id, err := a.ident.SignIn(ctx, email, password)
	if err != nil {
		return auth.Identity{}, a.fail("Sign-in failed", err)
	}
	return id, a.Begin(ctx, id)
}

// Begin starts a session for an already authenticated user: subscriptions
// open and preferences load. Any previous session is torn down first.
func (a *App) Begin(ctx context.Context, id auth.Identity) error {
	a.teardown(ctx)
	a.mu.Lock()
	a.user = id
	a.mu.Unlock()
	if err := a.subs.Start(ctx, id.UID); err != nil {
		return a.fail("Could not start sync", err)
	}
	if err := a.prefs.Load(ctx, id.UID); err != nil {
		// Defaults keep the list usable.
		a.log.Warn("loading preferences failed", zap.Error(err))
	}
	return nil
}

// SignOut is the teardown boundary: editors close without saving pending
// edits, subscriptions stop, the store and preferences are cleared.
func (a *App) SignOut(ctx context.Context) {
	a.teardown(ctx)
	if a.ident != nil {
		a.ident.SignOut()
	}
}

func (a *App) teardown(ctx context.Context) {
	a.mu.Lock()
	task, note := a.editor, a.noteEditor
	a.editor, a.noteEditor = nil, nil
	a.user = auth.Identity{}
	a.projectID = ""
	a.view = ViewDashboard
	a.filters = map[string]views.Filter{}
	a.sortKey, a.sortDesc = views.SortDue, false
	a.mu.Unlock()

	if task != nil {
		_ = task.Close(ctx, editing.CloseDiscard)
	}
	if note != nil {
		_ = note.Close(ctx, editing.CloseDiscard)
	}
	a.subs.Stop()
	a.prefs.Reset()
}

// Close signs out and releases background work.
func (a *App) Close(ctx context.Context) {
	a.teardown(ctx)
	a.prefs.Close()
}

// UpdateDisplayName renames the signed-in user.
func (a *App) UpdateDisplayName(ctx context.Context, name string) error {
	if a.ident == nil {
		return errors.New("no identity provider configured")
	}
	id, err := a.ident.UpdateDisplayName(ctx, name)
	if err != nil {
		return a.fail("Could not rename", err)
	}
	a.mu.Lock()
	a.user = id
	a.mu.Unlock()
	a.ok("Name updated")
	return nil
}

// Sync waits until pred holds on the entity store, for callers that need a
// write they just made to be visible.
func (a *App) Sync(ctx context.Context, pred func(*entitystore.Snapshot) bool) bool {
	return a.subs.WaitFor(ctx, a.opts.OpenPollAttempts, a.opts.OpenPollInterval, pred)
}
