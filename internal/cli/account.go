package cli

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"boardsync/internal/auth"
	"boardsync/internal/config"
	"boardsync/internal/relay"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

type identityOut struct {
	UID   string `json:"uid"`
	Name  string `json:"name"`
	Email string `json:"email"`
	// Remote is the relay the session talks to; empty for the local store.
	Remote string `json:"remote,omitempty"`
}

// readPassword takes --password, then $BOARDSYNC_PASSWORD, then prompts on a
// terminal (or reads one line from piped stdin).
func readPassword(cmd *cobra.Command, flag string) (string, error) {
	if flag != "" {
		return flag, nil
	}
	if v := os.Getenv("BOARDSYNC_PASSWORD"); v != "" {
		return v, nil
	}
	in := cmd.InOrStdin()
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(cmd.ErrOrStderr(), "Password: ")
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(cmd.ErrOrStderr())
		return string(b), err
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && line == "" {
		return "", errors.New("missing password (use --password or BOARDSYNC_PASSWORD)")
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func newSignUpCmd(a *App) *cobra.Command {
	var email, name, password string
	cmd := &cobra.Command{
		Use:   "signup",
		Short: "Create a local account and sign in",
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.cfg.Remote != "" {
				return writeErr(cmd, errors.New("accounts are created on the relay host; run signup there and signin here"))
			}
			pw, err := readPassword(cmd, password)
			if err != nil {
				return writeErr(cmd, err)
			}
			rt, err := a.open(cmd.Context(), nil)
			if err != nil {
				return writeErr(cmd, err)
			}
			defer rt.Close()
			id, err := rt.local.SignUp(cmd.Context(), email, pw, name)
			if err != nil {
				return writeErr(cmd, err)
			}
			tok, err := rt.local.IssueToken(id)
			if err != nil {
				return writeErr(cmd, err)
			}
			if err := a.saveSession(id, tok); err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, a, identityOut{UID: id.UID, Name: id.Name, Email: id.Email})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "Email address")
	cmd.Flags().StringVar(&name, "name", "", "Display name (default: the part of the email before @)")
	cmd.Flags().StringVar(&password, "password", "", "Password (prefer BOARDSYNC_PASSWORD or the prompt)")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func newSignInCmd(a *App) *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "signin",
		Short: "Sign in to the local store or the configured relay",
		RunE: func(cmd *cobra.Command, args []string) error {
			pw, err := readPassword(cmd, password)
			if err != nil {
				return writeErr(cmd, err)
			}
			var id auth.Identity
			var tok string
			if a.cfg.Remote != "" {
				tok, id, err = relay.SignIn(cmd.Context(), a.cfg.Remote, email, pw)
				if err != nil {
					return writeErr(cmd, err)
				}
			} else {
				rt, err := a.open(cmd.Context(), nil)
				if err != nil {
					return writeErr(cmd, err)
				}
				defer rt.Close()
				if id, err = rt.local.SignIn(cmd.Context(), email, pw); err != nil {
					return writeErr(cmd, err)
				}
				if tok, err = rt.local.IssueToken(id); err != nil {
					return writeErr(cmd, err)
				}
			}
			if err := a.saveSession(id, tok); err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, a, identityOut{UID: id.UID, Name: id.Name, Email: id.Email, Remote: a.cfg.Remote})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "Email address")
	cmd.Flags().StringVar(&password, "password", "", "Password (prefer BOARDSYNC_PASSWORD or the prompt)")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func newSignOutCmd(a *App) *cobra.Command {
	return &cobra.Command{
		Use:   "signout",
		Short: "Forget the saved session",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.ClearSession(a.ConfigDir); err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, a, map[string]bool{"signedOut": true})
		},
	}
}

func newWhoAmICmd(a *App) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := config.LoadSession(a.ConfigDir)
			if err != nil {
				return writeErr(cmd, err)
			}
			if !st.SignedIn() {
				return writeErr(cmd, errNotSignedIn)
			}
			return writeOut(cmd, a, identityOut{UID: st.UID, Name: st.Name, Email: st.Email, Remote: a.cfg.Remote})
		},
	}
}

func newRenameCmd(a *App) *cobra.Command {
	return &cobra.Command{
		Use:   "rename <display-name>",
		Short: "Change your display name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.cfg.Remote != "" {
				return writeErr(cmd, errors.New("rename is only available against the local store"))
			}
			rt, err := a.session(cmd.Context(), nil)
			if err != nil {
				return writeErr(cmd, err)
			}
			defer rt.Close()
			if err := rt.app.UpdateDisplayName(cmd.Context(), args[0]); err != nil {
				return writeErr(cmd, err)
			}
			u, _ := rt.app.User()
			tok, err := rt.local.IssueToken(u)
			if err != nil {
				return writeErr(cmd, err)
			}
			if err := a.saveSession(u, tok); err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, a, identityOut{UID: u.UID, Name: u.Name, Email: u.Email})
		},
	}
}
