package adapters

import (
	"errors"
	"fmt"
)

// ErrNoTotal is returned when the grid status text contains no number at all.
var ErrNoTotal = errors.New("no record count in status text")

// AuthError means neither a restored session nor a fresh login could be
// confirmed. Nothing is persisted when it is returned.
type AuthError struct {
	Reason string
	Err    error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("authentication failed: %s: %v", e.Reason, e.Err)
	}
	return "authentication failed: " + e.Reason
}

func (e *AuthError) Unwrap() error { return e.Err }
