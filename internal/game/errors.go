package game

import (
	"errors"
	"fmt"
)

// ErrNotFound covers games, items, and players that are absent or not
// visible to the caller.
var ErrNotFound = errors.New("not found")

// ErrForbidden marks an action attempted by the wrong role. The HTTP layer
// collapses it into a not-found response so existence is not leaked.
var ErrForbidden = errors.New("forbidden")

// InvalidStateError is a client error: the action is recognized but illegal
// in the game's current state.
type InvalidStateError struct {
	Reason string
}

func (e *InvalidStateError) Error() string {
	return e.Reason
}

func invalidState(format string, args ...any) error {
	return &InvalidStateError{Reason: fmt.Sprintf(format, args...)}
}

// IsInvalidState reports whether err is an InvalidStateError.
func IsInvalidState(err error) bool {
	var ise *InvalidStateError
	return errors.As(err, &ise)
}
