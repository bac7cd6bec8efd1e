package invoke

import (
	"errors"
	"fmt"

	"github.com/dshills/vemodkit/internal/integration/process"
)

// Sentinel errors matched with errors.Is.
var (
	// ErrSave indicates the document could not be saved before invocation.
	ErrSave = errors.New("document save failed")

	// ErrLaunch indicates the tool could not be started.
	ErrLaunch = errors.New("tool failed to launch")

	// ErrExitStatus indicates the tool exited with a non-zero code.
	ErrExitStatus = errors.New("tool exited with non-zero status")

	// ErrSignaled indicates the tool was terminated by a signal.
	ErrSignaled = errors.New("tool terminated by signal")
)

// SaveError reports a failed save of the document at Path.
type SaveError struct {
	Path string
}

func (e *SaveError) Error() string {
	return fmt.Sprintf("save %s: %v", e.Path, ErrSave)
}

func (e *SaveError) Unwrap() error {
	return ErrSave
}

// ProcessError reports a headless invocation that did not succeed.
type ProcessError struct {
	Tool    string
	Outcome process.Outcome
	// Stderr is the captured standard error, if any.
	Stderr string
}

func (e *ProcessError) Error() string {
	return fmt.Sprintf("%s %s", e.Tool, e.Outcome)
}

// Unwrap returns the sentinel for the outcome kind and, for launch
// failures, the underlying cause.
func (e *ProcessError) Unwrap() []error {
	switch e.Outcome.Kind {
	case process.OutcomeLaunchFailed:
		if e.Outcome.Err != nil {
			return []error{ErrLaunch, e.Outcome.Err}
		}
		return []error{ErrLaunch}
	case process.OutcomeSignaled:
		return []error{ErrSignaled}
	default:
		return []error{ErrExitStatus}
	}
}
