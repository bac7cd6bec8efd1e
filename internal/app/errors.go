package app

import (
	"errors"
	"fmt"
)

// Application errors.
var (
	// ErrAlreadyActive indicates Activate was called twice.
	ErrAlreadyActive = errors.New("application already active")

	// ErrNotActive indicates the application has not been activated.
	ErrNotActive = errors.New("application not active")

	// ErrUnknownCommand indicates no command is registered under an ID.
	ErrUnknownCommand = errors.New("unknown command")

	// ErrMissingArgument indicates a command was called without a
	// required argument.
	ErrMissingArgument = errors.New("missing argument")

	// ErrNoDocumentHost indicates the workspace cannot open documents by path.
	ErrNoDocumentHost = errors.New("workspace cannot open documents by path")

	// ErrPrecondition indicates a command refused to run; the reason has
	// already been shown to the user.
	ErrPrecondition = errors.New("command precondition failed")

	// ErrNoDocument indicates the Document Guard rejected the active
	// document; the reason has already been shown to the user.
	ErrNoDocument = errors.New("no eligible document")
)

// InitError reports a missing or invalid component at construction.
type InitError struct {
	Component string
	Err       error
}

func (e *InitError) Error() string {
	return fmt.Sprintf("init %s: %v", e.Component, e.Err)
}

func (e *InitError) Unwrap() error {
	return e.Err
}

// CommandError wraps the failure of a command.
type CommandError struct {
	Command string
	Err     error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("command %s: %v", e.Command, e.Err)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// PanicError is returned by Execute when a command panics.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}
