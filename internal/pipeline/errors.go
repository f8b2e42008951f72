package pipeline

import (
	"errors"
	"fmt"
)

var (
	// ErrNoRoute is signalled when the agent has no route for the assembled context.
	ErrNoRoute = errors.New("no matching route")

	// ErrAlreadyResponded is returned by Response.Send once a terminal call was made.
	ErrAlreadyResponded = errors.New("response already sent")
)

// ValidationError reports a malformed or incomplete input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid input: %s %s", e.Field, e.Reason)
}

// StageError tags an error with the middleware stage that produced it.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return e.Stage + ": " + e.Err.Error()
}

func (e *StageError) Unwrap() error { return e.Err }

// StageOf returns the stage name carried by err, or "" if there is none.
func StageOf(err error) string {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return ""
}
