package resolve

import (
	"errors"
	"fmt"
)

// Sentinel errors matched with errors.Is against an *Error.
var (
	// ErrNotFound indicates the tool is not on PATH.
	ErrNotFound = errors.New("executable not found in PATH")

	// ErrMissingFile indicates the candidate path does not exist.
	ErrMissingFile = errors.New("executable path does not exist")

	// ErrNotExecutable indicates the candidate is not readable and executable.
	ErrNotExecutable = errors.New("path is not an executable")
)

// Kind classifies a resolution failure.
type Kind int

const (
	// KindNotFound means a PATH lookup found nothing.
	KindNotFound Kind = iota
	// KindMissingFile means the candidate path does not exist.
	KindMissingFile
	// KindNotExecutable means the candidate lacks read or execute permission.
	KindNotExecutable
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not found"
	case KindMissingFile:
		return "missing file"
	case KindNotExecutable:
		return "not executable"
	default:
		return "unknown"
	}
}

// Error is a resolution failure. Its message is the user-facing remediation.
type Error struct {
	Kind Kind
	Spec Spec
	// Path is the rejected candidate; empty for KindNotFound.
	Path string
	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	return e.Remediation()
}

// Remediation returns the message presented to the user.
func (e *Error) Remediation() string {
	setting := e.Spec.Setting
	switch e.Kind {
	case KindNotFound:
		msg := fmt.Sprintf("Could not find '%s' in PATH. Please set the '%s' setting.", e.Spec.Tool, setting)
		if e.Spec.Example != "" {
			msg += fmt.Sprintf(" For example '%s'.", e.Spec.Example)
		}
		return msg
	case KindMissingFile:
		return fmt.Sprintf("`%s` %s does not exist", setting, e.Path)
	case KindNotExecutable:
		return fmt.Sprintf("`%s` %s is not an executable", setting, e.Path)
	default:
		return fmt.Sprintf("`%s` could not be resolved", setting)
	}
}

// Unwrap exposes both the kind sentinel and the underlying cause.
func (e *Error) Unwrap() []error {
	var sentinel error
	switch e.Kind {
	case KindNotFound:
		sentinel = ErrNotFound
	case KindMissingFile:
		sentinel = ErrMissingFile
	default:
		sentinel = ErrNotExecutable
	}
	if e.Err == nil {
		return []error{sentinel}
	}
	return []error{sentinel, e.Err}
}

// IsResolutionError reports whether err is (or wraps) a resolution failure.
func IsResolutionError(err error) bool {
	var re *Error
	return errors.As(err, &re)
}
