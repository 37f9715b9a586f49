package cli

import (
	"errors"
	"fmt"
	"time"

	"boardsync/internal/auth"
	"boardsync/internal/relay"
)

const syncTimeout = 10 * time.Second

var (
	errNotSignedIn = errors.New("not signed in; run `boardsync signin` first")
	errNoProject   = errors.New("no current project; pass --project or run `boardsync projects use <id>`")
	errRemoteServe = errors.New("serve exposes the local store; unset --remote")
)

// sessionErr explains why a saved session could not be resumed.
func sessionErr(err error) error {
	switch {
	case errors.Is(err, auth.ErrInvalidToken):
		return fmt.Errorf("session expired or invalid; run `boardsync signin` again: %w", err)
	case errors.Is(err, relay.ErrDisconnected):
		return fmt.Errorf("relay unreachable: %w", err)
	default:
		return err
	}
}
