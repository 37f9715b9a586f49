package cli

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"boardsync/internal/app"
	"boardsync/internal/auth"
	"boardsync/internal/config"
	"boardsync/internal/docstore"
	"boardsync/internal/format"
	"boardsync/internal/logging"
	"boardsync/internal/relay"
	"boardsync/internal/subscription"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type App struct {
	ConfigDir string
	Remote    string
	Format    string
	Pretty    bool
	LogLevel  string

	cfg config.Config
	log *zap.Logger
}

func NewRootCmd() *cobra.Command {
	a := &App{}

	cmd := &cobra.Command{
		Use:          "boardsync",
		Short:        "Shared project boards, synced live",
		SilenceUsage: true,
		Example: strings.TrimSpace(`
  # Create an account and a project
  boardsync signup --email anna@example.com --name Anna
  boardsync projects create "Website"

  # Look at the board of the current project
  boardsync board --format text

  # Start the interactive client
  boardsync tui

  # Serve the local store to other machines
  boardsync serve --addr :8787
`),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if a.ConfigDir == "" {
			dir, err := config.ConfigDir()
			if err != nil {
				return writeErr(cmd, err)
			}
			a.ConfigDir = dir
		}
		cfg, err := config.Load(a.ConfigDir)
		if err != nil {
			return writeErr(cmd, fmt.Errorf("load config: %w", err))
		}
		if cmd.Flags().Changed("remote") {
			cfg.Remote = a.Remote
		}
		if !cmd.Flags().Changed("format") && cfg.Format != "" {
			a.Format = cfg.Format
		}
		if !cmd.Flags().Changed("pretty") {
			a.Pretty = a.Pretty || cfg.Pretty
		}
		if cmd.Flags().Changed("log-level") {
			cfg.LogLevel = a.LogLevel
		}
		a.cfg = cfg
		log, err := logging.New(logging.Options{Level: cfg.LogLevel, File: cfg.LogFile})
		if err != nil {
			return writeErr(cmd, fmt.Errorf("logger: %w", err))
		}
		a.log = log
		return nil
	}
	cmd.PersistentPostRun = func(cmd *cobra.Command, args []string) {
		if a.log != nil {
			_ = a.log.Sync()
		}
	}

	cmd.PersistentFlags().StringVar(&a.ConfigDir, "config-dir", envOr("BOARDSYNC_CONFIG_DIR", ""), "Directory holding config.yaml, the session and the local database")
	cmd.PersistentFlags().StringVar(&a.Remote, "remote", envOr("BOARDSYNC_REMOTE", ""), "Relay base URL (http://host:port); empty uses the local database")
	cmd.PersistentFlags().StringVar(&a.Format, "format", envOr("BOARDSYNC_FORMAT", "json"), "Output format (json|text)")
	cmd.PersistentFlags().BoolVar(&a.Pretty, "pretty", false, "Pretty-print JSON output")
	cmd.PersistentFlags().StringVar(&a.LogLevel, "log-level", "", "Log level (debug|info|warn|error)")

	cmd.AddCommand(newSignUpCmd(a))
	cmd.AddCommand(newSignInCmd(a))
	cmd.AddCommand(newSignOutCmd(a))
	cmd.AddCommand(newWhoAmICmd(a))
	cmd.AddCommand(newRenameCmd(a))
	cmd.AddCommand(newProjectsCmd(a))
	cmd.AddCommand(newColumnsCmd(a))
	cmd.AddCommand(newTasksCmd(a))
	cmd.AddCommand(newBoardCmd(a))
	cmd.AddCommand(newListCmd(a))
	cmd.AddCommand(newCalendarCmd(a))
	cmd.AddCommand(newGanttCmd(a))
	cmd.AddCommand(newDashboardCmd(a))
	cmd.AddCommand(newStatsCmd(a))
	cmd.AddCommand(newNotesCmd(a))
	cmd.AddCommand(newInboxCmd(a))
	cmd.AddCommand(newChatCmd(a))
	cmd.AddCommand(newPrefsCmd(a))
	cmd.AddCommand(newServeCmd(a))
	cmd.AddCommand(newExportCmd(a))
	cmd.AddCommand(newDocsCmd(a))
	cmd.AddCommand(newTUICmd(a))

	return cmd
}

// runtime is one opened backend plus the controller over it.
type runtime struct {
	cli     *App
	app     *app.App
	session *config.Session
	local   *auth.Local
	closers []func() error
}

func (rt *runtime) Close() {
	ctx := context.Background()
	if rt.app != nil {
		_ = rt.app.Prefs().Flush(ctx)
		rt.app.Close(ctx)
	}
	for i := len(rt.closers) - 1; i >= 0; i-- {
		_ = rt.closers[i]()
	}
}

// tokenSecret returns the configured JWT secret, or a random one persisted
// next to the local database on first use.
func tokenSecret(cfg config.Config) ([]byte, error) {
	if s := strings.TrimSpace(cfg.JWTSecret); s != "" {
		return []byte(s), nil
	}
	path := filepath.Join(cfg.DataDir, "token.secret")
	if b, err := os.ReadFile(path); err == nil && len(b) > 0 {
		return b, nil
	} else if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	var raw [32]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return nil, err
	}
	secret := []byte(hex.EncodeToString(raw[:]))
	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, secret, 0o600); err != nil {
		return nil, err
	}
	return secret, nil
}

func (a *App) appOptions(n app.Notifier) app.Options {
	c := a.cfg
	return app.Options{
		Logger:   a.log,
		Notifier: n,
		Subscription: subscription.Options{
			Logger:          a.log,
			ResubscribeBase: c.ResubscribeBase,
			ResubscribeMax:  c.ResubscribeMax,
		},
		AutosaveDebounce:   c.AutosaveDebounce,
		NoteDebounce:       c.NoteDebounce,
		PrefsDebounce:      c.PrefsDebounce,
		MaxAttachmentBytes: c.MaxAttachmentBytes,
		OpenPollAttempts:   c.OpenPollAttempts,
		OpenPollInterval:   c.OpenPollInterval,
	}
}

// openLocal opens the SQLite store and the account provider over it.
func (a *App) openLocal(ctx context.Context) (*docstore.SQLite, *auth.Local, error) {
	docs, err := docstore.OpenSQLite(ctx, a.cfg.DBPath, docstore.SQLiteOptions{
		WatchInterval: a.cfg.WatchInterval,
		Logger:        a.log,
	})
	if err != nil {
		return nil, nil, err
	}
	secret, err := tokenSecret(a.cfg)
	if err != nil {
		_ = docs.Close()
		return nil, nil, err
	}
	local, err := auth.NewLocal(ctx, docs.DB(), docs, auth.Options{Secret: secret, TokenTTL: a.cfg.TokenTTL, Logger: a.log})
	if err != nil {
		_ = docs.Close()
		return nil, nil, err
	}
	return docs, local, nil
}

// open builds a runtime without signing in. Remote runtimes need a token, so
// they are only built by session.
func (a *App) open(ctx context.Context, n app.Notifier) (*runtime, error) {
	st, err := config.LoadSession(a.ConfigDir)
	if err != nil {
		return nil, err
	}
	rt := &runtime{cli: a, session: st}
	docs, local, err := a.openLocal(ctx)
	if err != nil {
		return nil, err
	}
	rt.closers = append(rt.closers, docs.Close)
	rt.local = local
	rt.app = app.New(docs, local, a.appOptions(n))
	return rt, nil
}

// session builds a runtime for the saved session and waits for the first
// complete sync, so one-shot commands read a full store.
func (a *App) session(ctx context.Context, n app.Notifier) (*runtime, error) {
	st, err := config.LoadSession(a.ConfigDir)
	if err != nil {
		return nil, err
	}
	if !st.SignedIn() || st.Token == "" {
		return nil, errNotSignedIn
	}

	var rt *runtime
	var id auth.Identity
	if a.cfg.Remote != "" {
		client, err := relay.Dial(ctx, a.cfg.Remote, st.Token, relay.ClientOptions{Logger: a.log})
		if err != nil {
			return nil, sessionErr(err)
		}
		rt = &runtime{cli: a, session: st, closers: []func() error{client.Close}}
		rt.app = app.New(client, nil, a.appOptions(n))
		id = auth.Identity{UID: st.UID, Name: st.Name, Email: st.Email}
	} else {
		rt, err = a.open(ctx, n)
		if err != nil {
			return nil, err
		}
		id, err = rt.local.Resume(ctx, st.Token)
		if err != nil {
			rt.Close()
			return nil, sessionErr(err)
		}
	}
	if err := rt.app.Begin(ctx, id); err != nil {
		rt.Close()
		return nil, err
	}
	wctx, cancel := context.WithTimeout(ctx, syncTimeout)
	defer cancel()
	if err := rt.app.Subscriptions().WaitSettled(wctx, 0); err != nil {
		rt.Close()
		return nil, fmt.Errorf("initial sync: %w", err)
	}
	if st.CurrentProjectID != "" {
		_ = rt.app.SelectProject(st.CurrentProjectID)
	}
	if v, err := app.ParseView(st.View); err == nil {
		rt.app.SetView(v)
	}
	return rt, nil
}

// saveSession stores the signed-in identity and token.
func (a *App) saveSession(id auth.Identity, token string) error {
	st, err := config.LoadSession(a.ConfigDir)
	if err != nil {
		return err
	}
	if st.UID != id.UID {
		st.CurrentProjectID = ""
	}
	st.UID, st.Name, st.Email, st.Token = id.UID, id.Name, id.Email, token
	return config.SaveSession(a.ConfigDir, st)
}

// projectID resolves a --project flag, falling back to the session's current
// project.
func (rt *runtime) projectID(flag string) (string, error) {
	pid := strings.TrimSpace(flag)
	if pid == "" {
		if p, ok := rt.app.CurrentProject(); ok {
			pid = p.ID
		}
	}
	if pid == "" {
		return "", errNoProject
	}
	if err := rt.app.SelectProject(pid); err != nil {
		return "", err
	}
	return pid, nil
}

// remember persists the current project so the next invocation starts there.
func (rt *runtime) remember() {
	if rt.session == nil {
		return
	}
	st := rt.app.State()
	rt.session.CurrentProjectID = st.ProjectID
	rt.session.View = string(st.View)
	_ = config.SaveSession(rt.cli.ConfigDir, rt.session)
}

func envOr(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

// writeOut writes v inside a {"data": ...} envelope.
func writeOut(cmd *cobra.Command, a *App, v any) error {
	return format.Write(cmd.OutOrStdout(), map[string]any{"data": v}, a.Format, a.Pretty)
}

// writeView is writeOut with a text rendering for --format text.
func writeView(cmd *cobra.Command, a *App, v any, text func() string) error {
	out := format.Rendered{Value: map[string]any{"data": v}, Render: text}
	return format.Write(cmd.OutOrStdout(), out, a.Format, a.Pretty)
}

func writeErr(cmd *cobra.Command, err error) error {
	fmt.Fprintln(cmd.ErrOrStderr(), err.Error())
	return err
}

// withSession wraps a command body that needs a signed-in, synced runtime.
func withSession(a *App, fn func(cmd *cobra.Command, rt *runtime, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		rt, err := a.session(cmd.Context(), nil)
		if err != nil {
			return writeErr(cmd, err)
		}
		defer rt.Close()
		if err := fn(cmd, rt, args); err != nil {
			return writeErr(cmd, err)
		}
		return nil
	}
}
