package app

import (
	"errors"
	"fmt"
)

// ErrSignedOut is returned by commands that need a signed-in user.
var ErrSignedOut = errors.New("not signed in")

type NotFoundError struct {
	Kind string
	ID   string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

// OwnerOnlyError is returned when a command is reserved to the project owner.
type OwnerOnlyError struct {
	ProjectID string
	Action    string
}

func (e OwnerOnlyError) Error() string {
	return fmt.Sprintf("only the project owner can %s", e.Action)
}
