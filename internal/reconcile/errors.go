package reconcile

import (
	"errors"
	"fmt"
)

var (
	// ErrNoChanges signals that generation was requested with no pending
	// edits. It is a user-facing notice, not a failure.
	ErrNoChanges = errors.New("reconcile: no pending edits to apply")

	// ErrEmptyQuery signals a blank SQL query
	ErrEmptyQuery = errors.New("reconcile: query is empty")
)

// NetworkError wraps a failed or rejected request. Nothing is retried; the
// user re-triggers the action.
type NetworkError struct {
	Op     string
	Status int
	Err    error
}

func (e *NetworkError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("reconcile: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("reconcile: %s: unexpected status %d", e.Op, e.Status)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// MalformedResponseError marks a successful response that is missing an
// expected field. The operation is aborted and prior state stays intact.
type MalformedResponseError struct {
	Op    string
	Field string
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("reconcile: %s: response missing %q", e.Op, e.Field)
}
