package process

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"syscall"
	"time"
)

// State represents the state of a process.
type State int

const (
	// StateCreated indicates the process has been created but not started.
	StateCreated State = iota
	// StateRunning indicates the process is currently running.
	StateRunning
	// StateExited indicates the process exited on its own with an exit code.
	StateExited
	// StateSignaled indicates the process was terminated by a signal.
	StateSignaled
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateRunning:
		return "running"
	case StateExited:
		return "exited"
	case StateSignaled:
		return "signaled"
	default:
		return fmt.Sprintf("unknown(%d)", s)
	}
}

// OutcomeKind enumerates the ways a one-shot process can end.
// Exactly one applies to any process.
type OutcomeKind int

const (
	// OutcomeLaunchFailed means the process never started.
	OutcomeLaunchFailed OutcomeKind = iota
	// OutcomeExited means the process exited with an exit code.
	OutcomeExited
	// OutcomeSignaled means the process was terminated by a signal and has no exit code.
	OutcomeSignaled
)

// String returns the kind name.
func (k OutcomeKind) String() string {
	switch k {
	case OutcomeLaunchFailed:
		return "launch failed"
	case OutcomeExited:
		return "exited"
	case OutcomeSignaled:
		return "signaled"
	default:
		return "unknown"
	}
}

// Outcome is the terminal result of a process.
//
// For OutcomeExited only ExitCode is meaningful, for OutcomeSignaled only
// Signal, and for OutcomeLaunchFailed only Err.
type Outcome struct {
	Kind     OutcomeKind
	ExitCode int
	Signal   string
	Err      error
}

// Success reports whether the process exited with code 0.
func (o Outcome) Success() bool {
	return o.Kind == OutcomeExited && o.ExitCode == 0
}

// String describes the outcome.
func (o Outcome) String() string {
	switch o.Kind {
	case OutcomeExited:
		return fmt.Sprintf("exited with code %d", o.ExitCode)
	case OutcomeSignaled:
		return fmt.Sprintf("terminated by signal %s", o.Signal)
	default:
		return fmt.Sprintf("failed to launch: %v", o.Err)
	}
}

// Process represents a managed child process.
//
// Process wraps an exec.Cmd with lifecycle and outcome tracking.
// It is safe for concurrent use.
type Process struct {
	// ID is the unique identifier for this process.
	ID string

	// Name is a human-readable name for the process.
	Name string

	// Cmd is the underlying exec.Cmd.
	Cmd *exec.Cmd

	// Started is the time the process was started.
	Started time.Time

	done  chan struct{}
	state atomic.Int32

	mu      sync.RWMutex
	outcome Outcome

	waitOnce sync.Once
}

// NewProcess creates a new Process wrapping the given command.
//
// The command should not be started before calling NewProcess.
// Use Supervisor.Start to start the process with tracking.
func NewProcess(id, name string, cmd *exec.Cmd) *Process {
	p := &Process{
		ID:   id,
		Name: name,
		Cmd:  cmd,
		done: make(chan struct{}),
	}
	p.state.Store(int32(StateCreated))
	return p
}

// State returns the current process state.
func (p *Process) State() State {
	return State(p.state.Load())
}

// Outcome returns how the process ended. It is only meaningful after Done
// is closed.
func (p *Process) Outcome() Outcome {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.outcome
}

// Done returns a channel that is closed when the process exits.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// IsRunning returns true if the process is currently running.
func (p *Process) IsRunning() bool {
	return p.State() == StateRunning
}

// PID returns the process ID, or -1 if not started.
func (p *Process) PID() int {
	if p.Cmd.Process == nil {
		return -1
	}
	return p.Cmd.Process.Pid
}

// Signal sends a signal to the process.
func (p *Process) Signal(sig os.Signal) error {
	if !p.IsRunning() || p.Cmd.Process == nil {
		return ErrProcessNotStarted
	}
	return p.Cmd.Process.Signal(sig)
}

// Kill sends SIGKILL to the process.
func (p *Process) Kill() error {
	return p.Signal(syscall.SIGKILL)
}

// Terminate sends SIGTERM to the process.
func (p *Process) Terminate() error {
	return p.Signal(syscall.SIGTERM)
}

// start starts the process and begins waiting for it.
func (p *Process) start() error {
	if p.State() != StateCreated {
		return ErrProcessAlreadyStarted
	}

	if err := p.Cmd.Start(); err != nil {
		return fmt.Errorf("start process: %w", err)
	}

	p.Started = time.Now()
	p.state.Store(int32(StateRunning))

	go p.waitLoop()

	return nil
}

// waitLoop waits for the process to exit and records its outcome.
func (p *Process) waitLoop() {
	p.waitOnce.Do(func() {
		err := p.Cmd.Wait()
		outcome := Classify(p.Cmd.ProcessState, err)

		p.mu.Lock()
		p.outcome = outcome
		p.mu.Unlock()

		if outcome.Kind == OutcomeSignaled {
			p.state.Store(int32(StateSignaled))
		} else {
			p.state.Store(int32(StateExited))
		}
		close(p.done)
	})
}

// Classify converts the result of exec.Cmd.Wait into an Outcome.
func Classify(state *os.ProcessState, waitErr error) Outcome {
	if state == nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			state = exitErr.ProcessState
		}
	}
	if state == nil {
		if waitErr == nil {
			waitErr = ErrProcessNotStarted
		}
		return Outcome{Kind: OutcomeLaunchFailed, Err: waitErr}
	}

	if status, ok := state.Sys().(syscall.WaitStatus); ok && status.Signaled() {
		return Outcome{Kind: OutcomeSignaled, Signal: signalName(status.Signal())}
	}
	return Outcome{Kind: OutcomeExited, ExitCode: state.ExitCode()}
}

// Sentinel errors for the process package.
var (
	// ErrProcessNotStarted is returned when operations require a started process.
	ErrProcessNotStarted = errors.New("process not started")

	// ErrProcessAlreadyStarted is returned when starting a process twice.
	ErrProcessAlreadyStarted = errors.New("process already started")
)
