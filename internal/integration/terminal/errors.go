package terminal

import "errors"

// Sentinel errors for the terminal package.
var (
	// ErrTerminalClosed is returned when operations are attempted on a closed terminal.
	ErrTerminalClosed = errors.New("terminal is closed")

	// ErrNoClient is returned when an operation needs an attached tmux
	// client and the process is not running inside tmux.
	ErrNoClient = errors.New("not running inside tmux")

	// ErrManagerClosed is returned when operations are attempted on a closed manager.
	ErrManagerClosed = errors.New("terminal manager is closed")
)
